package bridge

import (
	"sync"

	"github.com/switches/sensorbridge/pkg/channel"
	"github.com/switches/sensorbridge/pkg/sensor"
	"github.com/switches/sensorbridge/pkg/stream"
)

// streamHandler connects the listen/cancel hooks of one event channel to
// the registry entry of its stream key.
type streamHandler struct {
	plugin *Plugin
	key    stream.Key

	mu      sync.Mutex
	factory stream.Factory
	sink    stream.Sink // non-nil while the client listens
}

func newStreamHandler(p *Plugin, key stream.Key, factory stream.Factory) *streamHandler {
	return &streamHandler{plugin: p, key: key, factory: factory}
}

// OnListen binds a fresh controller to events.
func (h *streamHandler) OnListen(_ map[string]any, events channel.EventSink) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sink := h.newSink(events)
	if err := h.plugin.registry.Subscribe(h.key, h.factory, sink); err != nil {
		h.sink = nil
		return err
	}
	h.sink = sink
	return nil
}

// OnCancel unbinds the controller. No event reaches the client afterwards.
func (h *streamHandler) OnCancel(map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sink = nil
	h.plugin.registry.Unsubscribe(h.key)
	return nil
}

// replace swaps the controller factory. A bound stream is rebound to a
// controller from the new factory after the old one is unbound. A trigger
// that already fired stays idle until the client listens again.
func (h *streamHandler) replace(factory stream.Factory) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.factory = factory
	if h.sink == nil || h.plugin.registry.State(h.key) != stream.StateBound {
		return nil
	}
	if err := h.plugin.registry.Subscribe(h.key, factory, h.sink); err != nil {
		h.sink = nil
		return err
	}
	return nil
}

// newSink adapts the event channel to a stream sink. Trigger streams end
// after their single event.
func (h *streamHandler) newSink(events channel.EventSink) stream.Sink {
	if h.key.Kind != stream.KindTrigger {
		return stream.SinkFunc(func(event sensor.Record) error {
			return events.Success(event)
		})
	}
	return stream.SinkFunc(func(event sensor.Record) error {
		if err := events.Success(event); err != nil {
			return err
		}
		return events.EndOfStream()
	})
}

var _ channel.StreamHandler = (*streamHandler)(nil)
