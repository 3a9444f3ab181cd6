package sensor

// Host is the platform sensor framework the bridge binds to.
//
// Callbacks on the listener interfaces are invoked on goroutines owned by
// the host and may run concurrently with any bind or unbind call. A host
// must not invoke a listener after the matching unbind call has returned.
type Host interface {
	// Platform describes the running platform build.
	Platform() Platform

	// SensorList returns every sensor of the given type, or all sensors
	// for TypeAll.
	SensorList(t Type) []*Sensor

	// DynamicSensorList returns the currently connected dynamic sensors.
	DynamicSensorList(t Type) []*Sensor

	// IsDynamicSensorDiscoverySupported reports whether the host can
	// detect dynamic sensors at runtime.
	IsDynamicSensorDiscoverySupported() bool

	// DefaultSensor returns the default sensor for a type, or nil.
	DefaultSensor(t Type) *Sensor

	// DefaultSensorWakeUp returns the default sensor of a type with the
	// requested wake-up property, or nil.
	DefaultSensorWakeUp(t Type, wakeUp bool) *Sensor

	// RegisterListener starts continuous delivery of events from s to l.
	// It returns false if the host refused the registration.
	RegisterListener(l EventListener, s *Sensor, interval Delay) bool

	// UnregisterListener stops delivery from s to l.
	UnregisterListener(l EventListener, s *Sensor)

	// RequestTriggerSensor arms a one-shot trigger. The host disarms it
	// automatically after delivering one event.
	RequestTriggerSensor(l TriggerListener, s *Sensor) bool

	// CancelTriggerSensor disarms a trigger. Cancelling an expired or
	// unknown request is allowed and returns false.
	CancelTriggerSensor(l TriggerListener, s *Sensor) bool

	// RegisterDynamicSensorCallback starts hot-plug notifications.
	RegisterDynamicSensorCallback(cb DynamicSensorCallback)

	// UnregisterDynamicSensorCallback stops hot-plug notifications.
	UnregisterDynamicSensorCallback(cb DynamicSensorCallback)
}

// EventListener receives continuous sensor events.
type EventListener interface {
	OnSensorChanged(e *Event)
	OnAccuracyChanged(s *Sensor, accuracy int)
}

// TriggerListener receives the event of an armed trigger.
type TriggerListener interface {
	OnTrigger(e *TriggerEvent)
}

// DynamicSensorCallback receives hot-plug notifications.
type DynamicSensorCallback interface {
	OnDynamicSensorConnected(s *Sensor)
	OnDynamicSensorDisconnected(s *Sensor)
}
