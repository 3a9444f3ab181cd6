package stream

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry errors.
var (
	ErrResourceExhausted = errors.New("stream limit reached")
	ErrRegistryClosed    = errors.New("registry closed")
)

// DefaultMaxStreams bounds the number of concurrent streams per registry.
const DefaultMaxStreams = 64

// Config configures a Registry.
type Config struct {
	// MaxStreams limits concurrently registered streams.
	// Default: DefaultMaxStreams.
	MaxStreams int
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{MaxStreams: DefaultMaxStreams}
}

// Registry maps stream keys to controllers. It holds at most one
// controller per key.
//
// Controller Bind and Unbind run under the registry lock, so operations on
// the same key are totally ordered. Host callbacks never take the registry
// lock.
type Registry struct {
	mu sync.Mutex

	config      Config
	controllers map[Key]Controller
	closed      bool
}

// NewRegistry creates an empty registry with default configuration.
func NewRegistry() *Registry {
	return NewRegistryWithConfig(DefaultConfig())
}

// NewRegistryWithConfig creates an empty registry.
func NewRegistryWithConfig(config Config) *Registry {
	if config.MaxStreams <= 0 {
		config.MaxStreams = DefaultMaxStreams
	}
	return &Registry{
		config:      config,
		controllers: make(map[Key]Controller),
	}
}

// Subscribe binds a fresh controller for key to sink. An existing
// controller for the key is unbound and removed first, as is every
// controller that went Idle on its own (a fired trigger). On failure the
// key is left without a controller.
func (r *Registry) Subscribe(key Key, factory Factory, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	if existing, ok := r.controllers[key]; ok {
		existing.Unbind()
		delete(r.controllers, key)
	}
	r.pruneLocked()

	if len(r.controllers) >= r.config.MaxStreams {
		return ErrResourceExhausted
	}

	ctrl, err := factory()
	if err != nil {
		return err
	}
	if ctrl.Key() != key {
		return fmt.Errorf("%w: %s != %s", ErrKeyMismatch, ctrl.Key(), key)
	}
	if err := ctrl.Bind(sink); err != nil {
		return err
	}

	r.controllers[key] = ctrl
	return nil
}

// Unsubscribe unbinds and removes the controller for key. When it returns
// no further event for key reaches the old sink. Unknown keys are ignored;
// the result reports whether a controller was removed.
func (r *Registry) Unsubscribe(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctrl, ok := r.controllers[key]
	if !ok {
		return false
	}
	ctrl.Unbind()
	delete(r.controllers, key)
	return true
}

// Lookup returns the controller for key.
func (r *Registry) Lookup(key Key) (Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctrl, ok := r.controllers[key]
	return ctrl, ok
}

// State returns the state of the controller for key. Keys without a
// controller report StateIdle.
func (r *Registry) State(key Key) State {
	ctrl, ok := r.Lookup(key)
	if !ok {
		return StateIdle
	}
	return ctrl.State()
}

// Count returns the number of bound controllers. A fired trigger that has
// not been cancelled yet is not counted.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ctrl := range r.controllers {
		if ctrl.State() == StateBound {
			n++
		}
	}
	return n
}

// pruneLocked removes controllers that are no longer bound. Unbind still
// runs so the host registration is released.
func (r *Registry) pruneLocked() {
	for key, ctrl := range r.controllers {
		if ctrl.State() != StateBound {
			ctrl.Unbind()
			delete(r.controllers, key)
		}
	}
}

// Keys returns the registered keys in channel-name order.
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	keys := make([]Key, 0, len(r.controllers))
	for key := range r.controllers {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Close unbinds every controller and rejects further subscriptions.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, ctrl := range r.controllers {
		ctrl.Unbind()
		delete(r.controllers, key)
	}
	r.closed = true
}
