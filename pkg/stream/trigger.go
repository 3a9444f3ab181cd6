package stream

import (
	"fmt"

	"github.com/switches/sensorbridge/pkg/sensor"
)

// Trigger arms a one-shot trigger and forwards at most one event. After the
// event fires the controller is Idle without any Unbind call.
type Trigger struct {
	binding

	host sensor.Host

	// armed is the sensor the trigger was requested on. It is kept after
	// the trigger fires so that Unbind still cancels at the host.
	armed *sensor.Sensor
}

// NewTrigger creates an unbound trigger controller.
func NewTrigger(host sensor.Host, t sensor.Type, opts Options) *Trigger {
	return &Trigger{
		binding: binding{key: TriggerKey(t), opts: opts},
		host:    host,
	}
}

// Bind implements Controller. A controller that already fired cannot be
// re-armed; the registry creates a fresh one per subscription.
func (t *Trigger) Bind(sink Sink) error {
	if sink == nil {
		return ErrNilSink
	}

	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.armed != nil {
		return ErrAlreadyBound
	}

	s := t.host.DefaultSensor(t.key.SensorType)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSensorNotFound, t.key.SensorType)
	}

	t.attach(sink)
	if !t.host.RequestTriggerSensor(t, s) {
		t.detach()
		return fmt.Errorf("%w: trigger for %s", ErrRegistrationRefused, t.key.SensorType)
	}
	t.armed = s
	return nil
}

// Unbind implements Controller. The host cancel is issued even when the
// trigger already fired.
func (t *Trigger) Unbind() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.armed == nil {
		return
	}
	t.host.CancelTriggerSensor(t, t.armed)
	t.armed = nil
	t.detach()
}

// OnTrigger implements sensor.TriggerListener.
func (t *Trigger) OnTrigger(e *sensor.TriggerEvent) {
	if e == nil {
		return
	}
	t.deliver(sensor.TriggerRecord(e, t.opts.Capabilities), true)
}

var (
	_ Controller             = (*Trigger)(nil)
	_ sensor.TriggerListener = (*Trigger)(nil)
)
