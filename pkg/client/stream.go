package client

import (
	"sync"
	"sync/atomic"

	"github.com/switches/sensorbridge/pkg/sensor"
)

// Stream receives the events of one event channel.
type Stream struct {
	client  *Client
	channel string

	mu       sync.Mutex
	events   chan sensor.Record
	done     chan struct{}
	finished bool
	err      error

	dropped atomic.Uint64
}

func newStream(c *Client, channelName string, buffer int) *Stream {
	return &Stream{
		client:  c,
		channel: channelName,
		events:  make(chan sensor.Record, buffer),
		done:    make(chan struct{}),
	}
}

// Channel returns the event channel name.
func (s *Stream) Channel() string {
	return s.channel
}

// Events returns the event records. The channel is closed when the stream
// ends: on cancel, on end of stream, or when the client closes.
func (s *Stream) Events() <-chan sensor.Record {
	return s.events
}

// Done is closed when the stream ends.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns why the stream ended. It is nil for a cancel or a regular end
// of stream.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped returns the number of events discarded because the buffer was
// full.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// deliver never blocks; the read loop must keep serving replies.
func (s *Stream) deliver(payload any) {
	record := toRecord(payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	select {
	case s.events <- record:
	default:
		s.dropped.Add(1)
	}
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	close(s.events)
	close(s.done)
}

func toRecord(payload any) sensor.Record {
	switch p := payload.(type) {
	case sensor.Record:
		return p
	case map[string]any:
		return sensor.Record(p)
	case map[any]any:
		r := make(sensor.Record, len(p))
		for k, v := range p {
			if ks, ok := k.(string); ok {
				r[ks] = v
			}
		}
		return r
	default:
		return nil
	}
}
