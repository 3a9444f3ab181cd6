package sensor

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrUnknownType is returned by ParseType for names missing from the table.
var ErrUnknownType = errors.New("unknown sensor type")

// Type is the numeric sensor type code used by the host framework.
type Type int32

// TypeAll selects every sensor in list queries.
const TypeAll Type = -1

// Sensor type codes.
const (
	TypeAccelerometer                        Type = 1
	TypeMagneticField                        Type = 2
	TypeOrientation                          Type = 3
	TypeGyroscope                            Type = 4
	TypeLight                                Type = 5
	TypePressure                             Type = 6
	TypeTemperature                          Type = 7
	TypeProximity                            Type = 8
	TypeGravity                              Type = 9
	TypeLinearAcceleration                   Type = 10
	TypeRotationVector                       Type = 11
	TypeRelativeHumidity                     Type = 12
	TypeAmbientTemperature                   Type = 13
	TypeMagneticFieldUncalibrated            Type = 14
	TypeGameRotationVector                   Type = 15
	TypeGyroscopeUncalibrated                Type = 16
	TypeSignificantMotion                    Type = 17
	TypeStepDetector                         Type = 18
	TypeStepCounter                          Type = 19
	TypeGeomagneticRotationVector            Type = 20
	TypeHeartRate                            Type = 21
	TypeTiltDetector                         Type = 22
	TypeWakeGesture                          Type = 23
	TypeGlanceGesture                        Type = 24
	TypePickUpGesture                        Type = 25
	TypeWristTiltGesture                     Type = 26
	TypeDeviceOrientation                    Type = 27
	TypePose6DOF                             Type = 28
	TypeStationaryDetect                     Type = 29
	TypeMotionDetect                         Type = 30
	TypeHeartBeat                            Type = 31
	TypeDynamicSensorMeta                    Type = 32
	TypeLowLatencyOffbodyDetect              Type = 34
	TypeAccelerometerUncalibrated            Type = 35
	TypeHingeAngle                           Type = 36
	TypeHeadTracker                          Type = 37
	TypeAccelerometerLimitedAxes             Type = 38
	TypeGyroscopeLimitedAxes                 Type = 39
	TypeAccelerometerLimitedAxesUncalibrated Type = 40
	TypeGyroscopeLimitedAxesUncalibrated     Type = 41
	TypeHeading                              Type = 42
)

// UnknownTypeName is returned by TypeName for codes missing from the table.
const UnknownTypeName = "Unknown"

// typeNames is the canonical string identifier of every known type code.
// Keep it a flat table: completeness is audited by the tests.
var typeNames = map[Type]string{
	TypeAccelerometer:                        "android.sensor.accelerometer",
	TypeMagneticField:                        "android.sensor.magnetic_field",
	TypeOrientation:                          "android.sensor.orientation",
	TypeGyroscope:                            "android.sensor.gyroscope",
	TypeLight:                                "android.sensor.light",
	TypePressure:                             "android.sensor.pressure",
	TypeTemperature:                          "android.sensor.temperature",
	TypeProximity:                            "android.sensor.proximity",
	TypeGravity:                              "android.sensor.gravity",
	TypeLinearAcceleration:                   "android.sensor.linear_acceleration",
	TypeRotationVector:                       "android.sensor.rotation_vector",
	TypeRelativeHumidity:                     "android.sensor.relative_humidity",
	TypeAmbientTemperature:                   "android.sensor.ambient_temperature",
	TypeMagneticFieldUncalibrated:            "android.sensor.magnetic_field_uncalibrated",
	TypeGameRotationVector:                   "android.sensor.game_rotation_vector",
	TypeGyroscopeUncalibrated:                "android.sensor.gyroscope_uncalibrated",
	TypeSignificantMotion:                    "android.sensor.significant_motion",
	TypeStepDetector:                         "android.sensor.step_detector",
	TypeStepCounter:                          "android.sensor.step_counter",
	TypeGeomagneticRotationVector:            "android.sensor.geomagnetic_rotation_vector",
	TypeHeartRate:                            "android.sensor.heart_rate",
	TypeTiltDetector:                         "android.sensor.tilt_detector",
	TypeWakeGesture:                          "android.sensor.wake_gesture",
	TypeGlanceGesture:                        "android.sensor.glance_gesture",
	TypePickUpGesture:                        "android.sensor.pick_up_gesture",
	TypeWristTiltGesture:                     "android.sensor.wrist_tilt_gesture",
	TypeDeviceOrientation:                    "android.sensor.device_orientation",
	TypePose6DOF:                             "android.sensor.pose_6dof",
	TypeStationaryDetect:                     "android.sensor.stationary_detect",
	TypeMotionDetect:                         "android.sensor.motion_detect",
	TypeHeartBeat:                            "android.sensor.heart_beat",
	TypeDynamicSensorMeta:                    "android.sensor.dynamic_sensor_meta",
	TypeLowLatencyOffbodyDetect:              "android.sensor.low_latency_offbody_detect",
	TypeAccelerometerUncalibrated:            "android.sensor.accelerometer_uncalibrated",
	TypeHingeAngle:                           "android.sensor.hinge_angle",
	TypeHeadTracker:                          "android.sensor.head_tracker",
	TypeAccelerometerLimitedAxes:             "android.sensor.accelerometer_limited_axes",
	TypeGyroscopeLimitedAxes:                 "android.sensor.gyroscope_limited_axes",
	TypeAccelerometerLimitedAxesUncalibrated: "android.sensor.accelerometer_limited_axes_uncalibrated",
	TypeGyroscopeLimitedAxesUncalibrated:     "android.sensor.gyroscope_limited_axes_uncalibrated",
	TypeHeading:                              "android.sensor.heading",
}

// TypeName returns the canonical string identifier for a sensor type code,
// or UnknownTypeName if the code is not in the table.
func TypeName(t Type) string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return UnknownTypeName
}

// TypeFromName is the reverse lookup of TypeName.
func TypeFromName(name string) (Type, bool) {
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// ParseType accepts a numeric code, a canonical identifier
// ("android.sensor.light") or its last segment ("light"). Numeric codes
// need not be in the table.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return Type(n), nil
	}
	name := strings.ToLower(s)
	if name == "all" {
		return TypeAll, nil
	}
	if t, ok := TypeFromName(name); ok {
		return t, nil
	}
	if t, ok := TypeFromName("android.sensor." + name); ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// IsKnown reports whether the type code is present in the table.
func (t Type) IsKnown() bool {
	_, ok := typeNames[t]
	return ok
}

// String returns the canonical identifier, or "Unknown(<code>)".
func (t Type) String() string {
	if t == TypeAll {
		return "all"
	}
	if name, ok := typeNames[t]; ok {
		return name
	}
	return UnknownTypeName + "(" + strconv.Itoa(int(t)) + ")"
}

// KnownTypes returns every type code in the table in ascending order.
func KnownTypes() []Type {
	types := make([]Type, 0, len(typeNames))
	for t := range typeNames {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// ReportingMode describes how a sensor produces events.
type ReportingMode int32

const (
	ReportingModeContinuous     ReportingMode = 0
	ReportingModeOnChange       ReportingMode = 1
	ReportingModeOneShot        ReportingMode = 2
	ReportingModeSpecialTrigger ReportingMode = 3
)

// String returns the reporting mode name.
func (m ReportingMode) String() string {
	switch m {
	case ReportingModeContinuous:
		return "CONTINUOUS"
	case ReportingModeOnChange:
		return "ON_CHANGE"
	case ReportingModeOneShot:
		return "ONE_SHOT"
	case ReportingModeSpecialTrigger:
		return "SPECIAL_TRIGGER"
	default:
		return "UNKNOWN"
	}
}

// Accuracy codes reported with sensor events.
const (
	AccuracyNoContact  = -1
	AccuracyUnreliable = 0
	AccuracyLow        = 1
	AccuracyMedium     = 2
	AccuracyHigh       = 3
)
