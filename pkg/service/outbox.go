package service

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/switches/sensorbridge/pkg/transport"
	"github.com/switches/sensorbridge/pkg/wire"
)

// DefaultEventQueueSize is the number of stream events a session buffers
// for a client that reads slower than its sensors produce.
const DefaultEventQueueSize = 256

// ErrEventDropped is returned for an event that did not fit the session
// queue.
var ErrEventDropped = errors.New("event queue full, event dropped")

// outbox queues the outgoing frames of one session and writes them on its
// own goroutine, so host callbacks never wait on the network. Events are
// dropped once maxEvents of them are pending; replies and end-of-stream
// frames are always queued.
type outbox struct {
	conn      transport.ServerConnection
	maxEvents int

	mu      sync.Mutex
	pending []frame
	events  int
	closed  bool

	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	stopped sync.Once

	dropped atomic.Uint64
	onError func(error)
}

type frame struct {
	data  []byte
	event bool
}

func newOutbox(conn transport.ServerConnection, maxEvents int, onError func(error)) *outbox {
	if maxEvents <= 0 {
		maxEvents = DefaultEventQueueSize
	}
	o := &outbox{
		conn:      conn,
		maxEvents: maxEvents,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		onError:   onError,
	}
	go o.run()
	return o
}

// Send queues data. It never blocks on the connection.
func (o *outbox) Send(data []byte) error {
	kind, _ := wire.PeekKind(data)
	f := frame{data: data, event: kind == wire.KindEvent}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return transport.ErrConnectionClosed
	}
	if f.event && o.events >= o.maxEvents {
		o.mu.Unlock()
		o.dropped.Add(1)
		return ErrEventDropped
	}
	o.pending = append(o.pending, f)
	if f.event {
		o.events++
	}
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// Dropped returns the number of events discarded because the queue was
// full.
func (o *outbox) Dropped() uint64 {
	return o.dropped.Load()
}

// close stops the writer and discards unsent frames. It waits for a write
// in progress to return.
func (o *outbox) close() {
	o.stopped.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.pending = nil
		o.events = 0
		o.mu.Unlock()
		close(o.stop)
	})
	<-o.done
}

func (o *outbox) run() {
	defer close(o.done)
	for {
		select {
		case <-o.stop:
			return
		case <-o.wake:
		}

		for {
			f, ok := o.next()
			if !ok {
				break
			}
			if err := o.conn.Send(f.data); err != nil {
				// A stalled or broken client ends the session.
				if o.onError != nil {
					o.onError(err)
				}
				_ = o.conn.Close()
				o.mu.Lock()
				o.closed = true
				o.pending = nil
				o.events = 0
				o.mu.Unlock()
				return
			}
		}
	}
}

func (o *outbox) next() (frame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || len(o.pending) == 0 {
		return frame{}, false
	}
	f := o.pending[0]
	o.pending[0] = frame{}
	o.pending = o.pending[1:]
	if f.event {
		o.events--
	}
	return f, true
}
