package sensor

// Record is a sparse key-value rendering of a descriptor or event.
type Record map[string]any

// Descriptor record field names.
const (
	FieldName                   = "name"
	FieldVendor                 = "vendor"
	FieldVersion                = "version"
	FieldType                   = "type"
	FieldMaxRange               = "maxRange"
	FieldResolution             = "resolution"
	FieldPower                  = "power"
	FieldMinDelay               = "minDelay"
	FieldReportingMode          = "reportingMode"
	FieldIsDynamicSensor        = "isDynamicSensor"
	FieldIsWakeUpSensor         = "isWakeUpSensor"
	FieldFifoReservedEventCount = "fifoReservedEventCount"
	FieldFifoMaxEventCount      = "fifoMaxEventCount"
	FieldStringType             = "stringType"
	FieldMaxDelay               = "maxDelay"
	FieldID                     = "id"
)

// Event record field names.
const (
	FieldSensor      = "sensor"
	FieldAccuracy    = "accuracy"
	FieldTimestamp   = "timestamp"
	FieldValues      = "values"
	FieldIsConnected = "isConnected"
	FieldNewAccuracy = "newAccuracy"
)

// ToRecord converts a descriptor into a record. Extended fields are only
// present when caps.ExtendedDescriptor is set.
//
// A nil sensor yields an empty, non-nil record. This is how "no default
// sensor of this type" reaches the client.
func ToRecord(s *Sensor, caps Capabilities) Record {
	if s == nil {
		return Record{}
	}

	r := Record{
		FieldName:       s.Name,
		FieldVendor:     s.Vendor,
		FieldVersion:    s.Version,
		FieldType:       int(s.Type),
		FieldMaxRange:   s.MaxRange,
		FieldResolution: s.Resolution,
		FieldPower:      s.Power,
		FieldMinDelay:   s.MinDelay,
	}
	if !caps.ExtendedDescriptor {
		return r
	}

	stringType := s.StringType
	if stringType == "" {
		stringType = TypeName(s.Type)
	}
	r[FieldReportingMode] = int(s.ReportingMode)
	r[FieldIsDynamicSensor] = s.IsDynamic
	r[FieldIsWakeUpSensor] = s.IsWakeUp
	r[FieldFifoReservedEventCount] = s.FifoReservedEventCount
	r[FieldFifoMaxEventCount] = s.FifoMaxEventCount
	r[FieldStringType] = stringType
	r[FieldMaxDelay] = s.MaxDelay
	r[FieldID] = s.ID
	return r
}

// ToRecords converts a descriptor list, preserving order.
func ToRecords(sensors []*Sensor, caps Capabilities) []Record {
	out := make([]Record, 0, len(sensors))
	for _, s := range sensors {
		out = append(out, ToRecord(s, caps))
	}
	return out
}

// EventRecord renders a continuous sensor event.
func EventRecord(e *Event, caps Capabilities) Record {
	return Record{
		FieldSensor:    ToRecord(e.Sensor, caps),
		FieldAccuracy:  e.Accuracy,
		FieldTimestamp: e.Timestamp,
		FieldValues:    copyValues(e.Values),
	}
}

// TriggerRecord renders a trigger event.
func TriggerRecord(e *TriggerEvent, caps Capabilities) Record {
	return Record{
		FieldSensor:    ToRecord(e.Sensor, caps),
		FieldTimestamp: e.Timestamp,
		FieldValues:    copyValues(e.Values),
	}
}

// ConnectivityRecord renders a hot-plug notification: the descriptor
// fields plus isConnected.
func ConnectivityRecord(s *Sensor, connected bool, caps Capabilities) Record {
	r := ToRecord(s, caps)
	r[FieldIsConnected] = connected
	return r
}

// AccuracyRecord renders an accuracy change on a continuous stream: the
// descriptor fields plus newAccuracy.
func AccuracyRecord(s *Sensor, accuracy int, caps Capabilities) Record {
	r := ToRecord(s, caps)
	r[FieldNewAccuracy] = accuracy
	return r
}

// Hosts may reuse their value buffers between callbacks.
func copyValues(v []float32) []float32 {
	if v == nil {
		return []float32{}
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
