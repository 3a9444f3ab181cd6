package stream

import (
	"strconv"

	"github.com/switches/sensorbridge/pkg/sensor"
)

// Kind is the stream variant.
type Kind uint8

const (
	// KindContinuous streams readings at a delivery interval.
	KindContinuous Kind = iota + 1

	// KindTrigger delivers a single one-shot event.
	KindTrigger

	// KindHotplug delivers dynamic sensor connect/disconnect notifications.
	KindHotplug
)

// String returns the kind name used in channel names.
func (k Kind) String() string {
	switch k {
	case KindContinuous:
		return "continuous"
	case KindTrigger:
		return "trigger"
	case KindHotplug:
		return "hotplug"
	default:
		return "unknown"
	}
}

// HotplugTarget is the target segment of the hot-plug stream key.
const HotplugTarget = "dynamic"

// Key identifies an independent stream.
type Key struct {
	Kind       Kind
	SensorType sensor.Type
}

// ContinuousKey returns the key of the continuous stream for a type.
func ContinuousKey(t sensor.Type) Key {
	return Key{Kind: KindContinuous, SensorType: t}
}

// TriggerKey returns the key of the trigger stream for a type.
func TriggerKey(t sensor.Type) Key {
	return Key{Kind: KindTrigger, SensorType: t}
}

// HotplugKey returns the key of the single hot-plug stream.
func HotplugKey() Key {
	return Key{Kind: KindHotplug}
}

// Target returns the sensor-type identifier of the key. Codes missing from
// the type table render as "Unknown.<code>" so that distinct vendor types
// do not share a stream.
func (k Key) Target() string {
	if k.Kind == KindHotplug {
		return HotplugTarget
	}
	name := sensor.TypeName(k.SensorType)
	if name == sensor.UnknownTypeName {
		return name + "." + strconv.Itoa(int(k.SensorType))
	}
	return name
}

// String returns "<kind>/<target>".
func (k Key) String() string {
	return k.Kind.String() + "/" + k.Target()
}

// ChannelName returns the event channel name of the stream under prefix.
// The name is deterministic, so repeated requests reuse the same channel.
func (k Key) ChannelName(prefix string) string {
	return prefix + "/" + k.String()
}
