package sensor

import "fmt"

// Minimum platform API levels for optional host features.
const (
	APILevelTriggerSensors     = 18
	APILevelWakeUpSensors      = 21
	APILevelDynamicSensors     = 24
	APILevelExtendedDescriptor = 24
)

// Platform identifies the running host platform build.
type Platform struct {
	// Name is the platform family, e.g. "Android".
	Name string

	// Release is the user-visible release string, e.g. "14".
	Release string

	// APILevel is the integer API level used for capability checks.
	APILevel int
}

// String returns "<name> <release>", the getPlatformVersion reply.
func (p Platform) String() string {
	if p.Release == "" {
		return p.Name
	}
	return fmt.Sprintf("%s %s", p.Name, p.Release)
}

// Capabilities is the set of optional host features available on the
// running platform. It is computed once by Negotiate.
type Capabilities struct {
	TriggerSensors     bool
	WakeUpSensors      bool
	DynamicSensors     bool
	ExtendedDescriptor bool
}

// Negotiate derives the capability set from a platform description.
func Negotiate(p Platform) Capabilities {
	return Capabilities{
		TriggerSensors:     p.APILevel >= APILevelTriggerSensors,
		WakeUpSensors:      p.APILevel >= APILevelWakeUpSensors,
		DynamicSensors:     p.APILevel >= APILevelDynamicSensors,
		ExtendedDescriptor: p.APILevel >= APILevelExtendedDescriptor,
	}
}

// Record returns the capability set as a wire record.
func (c Capabilities) Record() Record {
	return Record{
		"triggerSensors":     c.TriggerSensors,
		"wakeUpSensors":      c.WakeUpSensors,
		"dynamicSensors":     c.DynamicSensors,
		"extendedDescriptor": c.ExtendedDescriptor,
	}
}
