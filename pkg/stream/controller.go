package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/switches/sensorbridge/pkg/sensor"
)

// Controller errors.
var (
	ErrSensorNotFound      = errors.New("no default sensor for type")
	ErrRegistrationRefused = errors.New("host refused registration")
	ErrAlreadyBound        = errors.New("controller already bound")
	ErrNilSink             = errors.New("nil sink")
	ErrKeyMismatch         = errors.New("controller key does not match subscription key")
	ErrSinkPanic           = errors.New("sink panicked")
)

// State is the lifecycle state of a controller.
type State uint8

const (
	// StateIdle means no host registration and no sink.
	StateIdle State = iota

	// StateBound means the host registration is live and events reach the sink.
	StateBound
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateBound:
		return "BOUND"
	default:
		return "UNKNOWN"
	}
}

// Sink receives events produced by a controller.
type Sink interface {
	Send(event sensor.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event sensor.Record) error

// Send implements Sink.
func (f SinkFunc) Send(event sensor.Record) error {
	return f(event)
}

// Controller owns the host registration of one stream.
type Controller interface {
	// Key returns the stream this controller serves.
	Key() Key

	// Bind issues the host bind call and attaches sink.
	Bind(sink Sink) error

	// Unbind issues the host unbind call and detaches the sink. It is
	// idempotent.
	Unbind()

	// State returns the current lifecycle state.
	State() State
}

// Factory constructs an unbound controller.
type Factory func() (Controller, error)

// StateChangeHandler is notified on every lifecycle transition.
type StateChangeHandler func(key Key, from, to State)

// Options holds settings shared by all controllers.
type Options struct {
	// Capabilities selects the descriptor form of emitted records.
	Capabilities sensor.Capabilities

	// OnStateChange is called after each transition, outside any lock.
	OnStateChange StateChangeHandler

	// Logger for delivery failures. Nil disables logging.
	Logger *slog.Logger
}

// Stats counts events handled by a controller.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Failed    uint64
}

// binding is the sink slot shared by all controller kinds. mu is held for
// the whole delivery, which is what makes Unbind a barrier.
type binding struct {
	key  Key
	opts Options

	// lifecycle serializes Bind and Unbind.
	lifecycle sync.Mutex

	mu    sync.Mutex
	sink  Sink
	state State

	// current mirrors state for readers that must not wait on a delivery.
	current atomic.Uint32

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func (b *binding) Key() Key {
	return b.key
}

func (b *binding) State() State {
	return State(b.current.Load())
}

func (b *binding) setState(state State) {
	b.state = state
	b.current.Store(uint32(state))
}

// Stats returns delivery counters.
func (b *binding) Stats() Stats {
	return Stats{
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
		Failed:    b.failed.Load(),
	}
}

func (b *binding) attach(sink Sink) {
	b.mu.Lock()
	from := b.state
	b.sink = sink
	b.setState(StateBound)
	b.mu.Unlock()

	b.notify(from, StateBound)
}

func (b *binding) detach() {
	b.mu.Lock()
	from := b.state
	b.sink = nil
	b.setState(StateIdle)
	b.mu.Unlock()

	b.notify(from, StateIdle)
}

// deliver sends event to the current sink. When last is set the sink is
// dropped in the same critical section, so at most one such delivery ever
// succeeds.
func (b *binding) deliver(event sensor.Record, last bool) bool {
	ok, from := b.deliverLocked(event, last)
	if ok && last {
		b.notify(from, StateIdle)
	}
	return ok
}

func (b *binding) deliverLocked(event sensor.Record, last bool) (bool, State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	if b.sink == nil {
		b.dropped.Add(1)
		return false, from
	}

	if err := b.send(event); err != nil {
		b.failed.Add(1)
		if b.opts.Logger != nil {
			b.opts.Logger.Debug("stream delivery failed", "stream", b.key.String(), "error", err)
		}
	} else {
		b.delivered.Add(1)
	}

	if last {
		b.sink = nil
		b.setState(StateIdle)
	}
	return true, from
}

// send passes event to the sink. A panicking sink counts as a failed
// delivery.
func (b *binding) send(event sensor.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSinkPanic, r)
		}
	}()
	return b.sink.Send(event)
}

func (b *binding) notify(from, to State) {
	if from != to && b.opts.OnStateChange != nil {
		b.opts.OnStateChange(b.key, from, to)
	}
}
