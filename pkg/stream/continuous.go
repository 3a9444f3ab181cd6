package stream

import (
	"fmt"

	"github.com/switches/sensorbridge/pkg/sensor"
)

// Continuous forwards every reading of the default sensor of a type.
type Continuous struct {
	binding

	host     sensor.Host
	interval sensor.Delay

	// registered is the sensor handed to the host, nil while unbound.
	registered *sensor.Sensor
}

// NewContinuous creates an unbound continuous controller.
func NewContinuous(host sensor.Host, t sensor.Type, interval sensor.Delay, opts Options) *Continuous {
	return &Continuous{
		binding:  binding{key: ContinuousKey(t), opts: opts},
		host:     host,
		interval: interval,
	}
}

// Interval returns the requested delivery interval.
func (c *Continuous) Interval() sensor.Delay {
	return c.interval
}

// Bind implements Controller. The sink is attached before the host
// registration so that the first readings are not lost.
func (c *Continuous) Bind(sink Sink) error {
	if sink == nil {
		return ErrNilSink
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.registered != nil {
		return ErrAlreadyBound
	}

	s := c.host.DefaultSensor(c.key.SensorType)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSensorNotFound, c.key.SensorType)
	}

	c.attach(sink)
	if !c.host.RegisterListener(c, s, c.interval) {
		c.detach()
		return fmt.Errorf("%w: listener for %s", ErrRegistrationRefused, c.key.SensorType)
	}
	c.registered = s
	return nil
}

// Unbind implements Controller.
func (c *Continuous) Unbind() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.registered == nil {
		return
	}
	c.host.UnregisterListener(c, c.registered)
	c.registered = nil
	c.detach()
}

// OnSensorChanged implements sensor.EventListener.
func (c *Continuous) OnSensorChanged(e *sensor.Event) {
	if e == nil {
		return
	}
	c.deliver(sensor.EventRecord(e, c.opts.Capabilities), false)
}

// OnAccuracyChanged implements sensor.EventListener.
func (c *Continuous) OnAccuracyChanged(s *sensor.Sensor, accuracy int) {
	c.deliver(sensor.AccuracyRecord(s, accuracy, c.opts.Capabilities), false)
}

var (
	_ Controller           = (*Continuous)(nil)
	_ sensor.EventListener = (*Continuous)(nil)
)
