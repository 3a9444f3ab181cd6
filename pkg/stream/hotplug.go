package stream

import (
	"github.com/switches/sensorbridge/pkg/sensor"
)

// Hotplug forwards dynamic sensor connect and disconnect notifications.
type Hotplug struct {
	binding

	host       sensor.Host
	registered bool
}

// NewHotplug creates an unbound hot-plug controller.
func NewHotplug(host sensor.Host, opts Options) *Hotplug {
	return &Hotplug{
		binding: binding{key: HotplugKey(), opts: opts},
		host:    host,
	}
}

// Bind implements Controller.
func (h *Hotplug) Bind(sink Sink) error {
	if sink == nil {
		return ErrNilSink
	}

	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	if h.registered {
		return ErrAlreadyBound
	}
	h.attach(sink)
	h.host.RegisterDynamicSensorCallback(h)
	h.registered = true
	return nil
}

// Unbind implements Controller.
func (h *Hotplug) Unbind() {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	if !h.registered {
		return
	}
	h.host.UnregisterDynamicSensorCallback(h)
	h.registered = false
	h.detach()
}

// OnDynamicSensorConnected implements sensor.DynamicSensorCallback.
func (h *Hotplug) OnDynamicSensorConnected(s *sensor.Sensor) {
	if s == nil {
		return
	}
	h.deliver(sensor.ConnectivityRecord(s, true, h.opts.Capabilities), false)
}

// OnDynamicSensorDisconnected implements sensor.DynamicSensorCallback.
func (h *Hotplug) OnDynamicSensorDisconnected(s *sensor.Sensor) {
	if s == nil {
		return
	}
	h.deliver(sensor.ConnectivityRecord(s, false, h.opts.Capabilities), false)
}

var (
	_ Controller                   = (*Hotplug)(nil)
	_ sensor.DynamicSensorCallback = (*Hotplug)(nil)
)
