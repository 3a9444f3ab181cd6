package sensor

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sensor is an immutable descriptor of a physical or virtual sensor.
//
// Fields in the extended group (ID through FifoMaxEventCount) are only
// meaningful on platforms with the ExtendedDescriptor capability. The
// record mapper omits them otherwise.
type Sensor struct {
	Name       string
	Vendor     string
	Version    int
	Type       Type
	MaxRange   float32
	Resolution float32
	Power      float32 // mA
	MinDelay   int     // microseconds, 0 for non-streaming sensors

	// Extended descriptor.
	ID                     int
	StringType             string
	ReportingMode          ReportingMode
	IsDynamic              bool
	IsWakeUp               bool
	MaxDelay               int // microseconds
	FifoReservedEventCount int
	FifoMaxEventCount      int
}

// Event is one reading delivered by a continuous sensor registration.
type Event struct {
	Sensor    *Sensor
	Accuracy  int
	Timestamp int64 // nanoseconds, host monotonic clock
	Values    []float32
}

// TriggerEvent is the single reading delivered by a trigger request.
type TriggerEvent struct {
	Sensor    *Sensor
	Timestamp int64
	Values    []float32
}

// Delay is the requested delivery interval for a continuous registration.
// Values 0..3 are the symbolic rates; larger values are microseconds.
type Delay int32

// Symbolic delivery rates.
const (
	DelayFastest Delay = 0
	DelayGame    Delay = 1
	DelayUI      Delay = 2
	DelayNormal  Delay = 3
)

// Period returns the nominal interval between events.
func (d Delay) Period() time.Duration {
	switch d {
	case DelayFastest:
		return 0
	case DelayGame:
		return 20 * time.Millisecond
	case DelayUI:
		return 66667 * time.Microsecond
	case DelayNormal:
		return 200 * time.Millisecond
	}
	if d < 0 {
		return DelayNormal.Period()
	}
	return time.Duration(d) * time.Microsecond
}

// String returns the symbolic rate name or the interval.
func (d Delay) String() string {
	switch d {
	case DelayFastest:
		return "FASTEST"
	case DelayGame:
		return "GAME"
	case DelayUI:
		return "UI"
	case DelayNormal:
		return "NORMAL"
	default:
		return d.Period().String()
	}
}

// ParseDelay accepts a symbolic rate name (fastest, game, ui, normal) or an
// interval in microseconds.
func ParseDelay(s string) (Delay, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fastest":
		return DelayFastest, nil
	case "game":
		return DelayGame, nil
	case "ui":
		return DelayUI, nil
	case "normal", "":
		return DelayNormal, nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid delay %q", s)
	}
	return Delay(n), nil
}
