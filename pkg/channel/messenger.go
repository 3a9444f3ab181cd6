package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/switches/sensorbridge/pkg/log"
	"github.com/switches/sensorbridge/pkg/wire"
)

// Sender writes one encoded message to the peer.
type Sender interface {
	Send(data []byte) error
}

// Call is a decoded method invocation.
type Call struct {
	Channel string
	Method  string
	Args    map[string]any
}

// MethodHandler handles calls on a method channel. The returned value is
// the Reply payload.
type MethodHandler func(ctx context.Context, call *Call) (any, error)

// EventSink pushes events on one event channel.
type EventSink interface {
	// Success sends one event. It fails with ErrSinkClosed once the stream
	// has been cancelled or ended.
	Success(event any) error

	// EndOfStream tells the client that no further events follow.
	EndOfStream() error
}

// StreamHandler serves the listen/cancel lifecycle of an event channel.
type StreamHandler interface {
	// OnListen starts delivering events to sink.
	OnListen(args map[string]any, sink EventSink) error

	// OnCancel stops delivery. No event may reach the sink once it returns.
	OnCancel(args map[string]any) error
}

// Config configures a Messenger.
type Config struct {
	// ConnectionID tags protocol log events.
	ConnectionID string

	// ProtocolLogger receives decoded message events (optional).
	ProtocolLogger log.Logger

	// Logger for operational messages (optional).
	Logger *slog.Logger
}

// Messenger routes calls of one connection to registered channel handlers.
type Messenger struct {
	sender Sender
	config Config

	mu      sync.RWMutex
	methods map[string]MethodHandler
	streams map[string]StreamHandler
	active  map[string]*eventSink
	closed  bool
}

// NewMessenger creates a messenger that replies through sender.
func NewMessenger(sender Sender, config Config) *Messenger {
	return &Messenger{
		sender:  sender,
		config:  config,
		methods: make(map[string]MethodHandler),
		streams: make(map[string]StreamHandler),
		active:  make(map[string]*eventSink),
	}
}

// SetMethodCallHandler registers h for channel. A nil handler removes it.
func (m *Messenger) SetMethodCallHandler(channel string, h MethodHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		delete(m.methods, channel)
		return
	}
	m.methods[channel] = h
}

// SetStreamHandler registers h for event channel. A nil handler removes it.
// Registering the same channel again replaces the handler; an active
// listener stays attached to the old handler until cancelled.
func (m *Messenger) SetStreamHandler(channel string, h StreamHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		delete(m.streams, channel)
		return
	}
	m.streams[channel] = h
}

// HasStreamHandler reports whether channel has a stream handler.
func (m *Messenger) HasStreamHandler(channel string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.streams[channel]
	return ok
}

// Listening reports whether channel has an active listener.
func (m *Messenger) Listening(channel string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[channel]
	return ok
}

// HandleFrame decodes one frame and dispatches it. Calls are answered
// before HandleFrame returns. Non-call messages are ignored.
func (m *Messenger) HandleFrame(ctx context.Context, data []byte) {
	msg, err := wire.DecodeMessage(data)
	if err != nil {
		m.logError("decode", err)
		return
	}
	m.logMessage(msg, log.DirectionIn, nil)

	if msg.Kind != wire.KindCall {
		m.debug("ignoring non-call message", "kind", msg.Kind.String(), "channel", msg.Channel)
		return
	}

	start := time.Now()
	result, err := m.dispatch(ctx, msg)

	var reply *wire.Message
	if err != nil {
		status, text, details := StatusOf(err)
		reply = wire.NewErrorReply(msg, status, text, details)
	} else {
		reply = wire.NewReply(msg, result)
	}
	elapsed := time.Since(start)
	m.send(reply, &elapsed)
}

func (m *Messenger) dispatch(ctx context.Context, msg *wire.Message) (any, error) {
	m.mu.RLock()
	closed := m.closed
	method, isMethod := m.methods[msg.Channel]
	stream, isStream := m.streams[msg.Channel]
	m.mu.RUnlock()

	switch {
	case closed:
		return nil, ErrClosed
	case isMethod:
		return method(ctx, &Call{Channel: msg.Channel, Method: msg.Method, Args: msg.Arguments})
	case isStream:
		switch msg.Method {
		case wire.MethodListen:
			return nil, m.listen(msg.Channel, stream, msg.Arguments)
		case wire.MethodCancel:
			return nil, m.cancel(msg.Channel, stream, msg.Arguments)
		default:
			return nil, NotImplemented(msg.Method)
		}
	default:
		return nil, NewError(wire.StatusNotImplemented, "no handler for channel %s", msg.Channel)
	}
}

func (m *Messenger) listen(channel string, h StreamHandler, args map[string]any) error {
	m.mu.Lock()
	prev := m.active[channel]
	delete(m.active, channel)
	m.mu.Unlock()

	if prev != nil {
		prev.close()
		if err := h.OnCancel(nil); err != nil {
			m.logError("cancel previous listener", err)
		}
	}

	sink := &eventSink{messenger: m, channel: channel}
	if err := h.OnListen(args, sink); err != nil {
		sink.close()
		return err
	}

	m.mu.Lock()
	m.active[channel] = sink
	m.mu.Unlock()
	return nil
}

func (m *Messenger) cancel(channel string, h StreamHandler, args map[string]any) error {
	m.mu.Lock()
	sink, ok := m.active[channel]
	delete(m.active, channel)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotListening, channel)
	}
	err := h.OnCancel(args)
	sink.close()
	return err
}

// Close cancels every active listener. Later calls are answered with an
// error.
func (m *Messenger) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	active := m.active
	m.active = make(map[string]*eventSink)
	streams := m.streams
	m.mu.Unlock()

	for channel, sink := range active {
		if h, ok := streams[channel]; ok {
			if err := h.OnCancel(nil); err != nil {
				m.logError("cancel on close", err)
			}
		}
		sink.close()
	}
}

func (m *Messenger) send(msg *wire.Message, elapsed *time.Duration) error {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		m.logError("encode", err)
		return err
	}
	if err := m.sender.Send(data); err != nil {
		m.debug("send failed", "channel", msg.Channel, "error", err)
		return err
	}
	m.logMessage(msg, log.DirectionOut, elapsed)
	return nil
}

func (m *Messenger) logMessage(msg *wire.Message, dir log.Direction, elapsed *time.Duration) {
	if m.config.ProtocolLogger == nil {
		return
	}
	ev := log.NewMessageEvent(msg)
	ev.ProcessingTime = elapsed
	m.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: m.config.ConnectionID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Channel:      msg.Channel,
		Message:      ev,
	})
}

func (m *Messenger) logError(context string, err error) {
	if m.config.ProtocolLogger != nil {
		m.config.ProtocolLogger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: m.config.ConnectionID,
			Layer:        log.LayerWire,
			Category:     log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerWire,
				Message: err.Error(),
				Context: context,
			},
		})
	}
	if m.config.Logger != nil {
		m.config.Logger.Warn("channel error", "conn_id", m.config.ConnectionID, "context", context, "error", err)
	}
}

func (m *Messenger) debug(msg string, args ...any) {
	if m.config.Logger != nil {
		m.config.Logger.Debug(msg, append([]any{"conn_id", m.config.ConnectionID}, args...)...)
	}
}

// eventSink is the EventSink handed to OnListen.
type eventSink struct {
	messenger *Messenger
	channel   string
	closed    atomic.Bool
}

func (s *eventSink) Success(event any) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	return s.messenger.send(wire.NewEvent(s.channel, event), nil)
}

func (s *eventSink) EndOfStream() error {
	if s.closed.Swap(true) {
		return ErrSinkClosed
	}
	return s.messenger.send(wire.NewEndOfStream(s.channel), nil)
}

func (s *eventSink) close() {
	s.closed.Store(true)
}

var _ EventSink = (*eventSink)(nil)
