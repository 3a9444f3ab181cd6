package simhost

import (
	"math"
	"time"

	"github.com/switches/sensorbridge/pkg/sensor"
)

// PhoneSensors returns a typical handset sensor set. Each call returns
// fresh descriptors.
func PhoneSensors() []*sensor.Sensor {
	continuous := func(id int, t sensor.Type, name, vendor string, maxRange, resolution, power float32, minDelay int) *sensor.Sensor {
		return &sensor.Sensor{
			ID:                     id,
			Name:                   name,
			Vendor:                 vendor,
			Version:                1,
			Type:                   t,
			StringType:             sensor.TypeName(t),
			MaxRange:               maxRange,
			Resolution:             resolution,
			Power:                  power,
			MinDelay:               minDelay,
			MaxDelay:               200000,
			ReportingMode:          sensor.ReportingModeContinuous,
			FifoReservedEventCount: 300,
			FifoMaxEventCount:      3000,
		}
	}
	onChange := func(id int, t sensor.Type, name, vendor string, maxRange float32, wakeUp bool) *sensor.Sensor {
		return &sensor.Sensor{
			ID:            id,
			Name:          name,
			Vendor:        vendor,
			Version:       1,
			Type:          t,
			StringType:    sensor.TypeName(t),
			MaxRange:      maxRange,
			Resolution:    1,
			Power:         0.1,
			ReportingMode: sensor.ReportingModeOnChange,
			IsWakeUp:      wakeUp,
		}
	}
	oneShot := func(id int, t sensor.Type, name, vendor string) *sensor.Sensor {
		return &sensor.Sensor{
			ID:            id,
			Name:          name,
			Vendor:        vendor,
			Version:       1,
			Type:          t,
			StringType:    sensor.TypeName(t),
			MaxRange:      1,
			Resolution:    1,
			Power:         0.3,
			MinDelay:      -1,
			ReportingMode: sensor.ReportingModeOneShot,
			IsWakeUp:      true,
		}
	}

	return []*sensor.Sensor{
		continuous(1, sensor.TypeAccelerometer, "LSM6DSO Accelerometer", "STMicro", 78.4532, 0.0023928226, 0.17, 2404),
		continuous(2, sensor.TypeMagneticField, "AK09918 Magnetometer", "AKM", 4912, 0.15, 1.1, 10000),
		continuous(3, sensor.TypeGyroscope, "LSM6DSO Gyroscope", "STMicro", 34.906586, 0.0012217305, 0.55, 2404),
		continuous(4, sensor.TypeGravity, "Gravity Sensor", "AOSP", 19.6133, 0.0023928226, 0.72, 5000),
		continuous(5, sensor.TypeLinearAcceleration, "Linear Acceleration Sensor", "AOSP", 19.6133, 0.0023928226, 0.72, 5000),
		continuous(6, sensor.TypeRotationVector, "Rotation Vector Sensor", "AOSP", 1, 5.9604645e-08, 0.72, 5000),
		continuous(7, sensor.TypeGameRotationVector, "Game Rotation Vector Sensor", "AOSP", 1, 5.9604645e-08, 0.72, 5000),
		continuous(8, sensor.TypePressure, "BMP380 Pressure", "Bosch", 1100, 0.0086, 0.004, 40000),
		onChange(9, sensor.TypeLight, "TCS3701 Light", "AMS", 65535, false),
		onChange(10, sensor.TypeProximity, "TCS3701 Proximity", "AMS", 5, true),
		onChange(11, sensor.TypeStepCounter, "Step Counter", "Google", 4294967295, false),
		onChange(12, sensor.TypeStepDetector, "Step Detector", "Google", 1, false),
		oneShot(13, sensor.TypeSignificantMotion, "Significant Motion", "Google"),
		oneShot(14, sensor.TypeWakeGesture, "Wake Gesture", "Google"),
	}
}

// Waveform produces smooth periodic readings with the dimension each type
// reports.
func Waveform(s *sensor.Sensor, at time.Time) []float32 {
	phase := float64(at.UnixNano()%int64(10*time.Second)) / float64(10*time.Second) * 2 * math.Pi
	sin := float32(math.Sin(phase))
	cos := float32(math.Cos(phase))

	switch s.Type {
	case sensor.TypeAccelerometer:
		return []float32{0.3 * sin, 0.3 * cos, 9.81}
	case sensor.TypeGravity:
		return []float32{0, 0, 9.81}
	case sensor.TypeLinearAcceleration:
		return []float32{0.3 * sin, 0.3 * cos, 0}
	case sensor.TypeMagneticField:
		return []float32{22 * cos, 5 * sin, -40}
	case sensor.TypeGyroscope:
		return []float32{0.05 * cos, -0.05 * sin, 0.01}
	case sensor.TypeRotationVector, sensor.TypeGeomagneticRotationVector:
		half := float32(phase / 2)
		return []float32{0, 0, float32(math.Sin(float64(half))), float32(math.Cos(float64(half))), 0.05}
	case sensor.TypeGameRotationVector:
		half := float32(phase / 2)
		return []float32{0, 0, float32(math.Sin(float64(half))), float32(math.Cos(float64(half)))}
	case sensor.TypeMagneticFieldUncalibrated, sensor.TypeGyroscopeUncalibrated, sensor.TypeAccelerometerUncalibrated:
		return []float32{sin, cos, 0, 0, 0, 0}
	case sensor.TypePressure:
		return []float32{1013.25 + 0.5*sin}
	case sensor.TypeAmbientTemperature, sensor.TypeTemperature:
		return []float32{21.5 + 0.2*sin}
	case sensor.TypeRelativeHumidity:
		return []float32{45 + 2*cos}
	case sensor.TypeLight:
		return []float32{320 + 40*sin}
	case sensor.TypeHeartRate:
		return []float32{72 + 3*sin}
	default:
		return []float32{sin}
	}
}
