package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/switches/sensorbridge/pkg/channel"
	"github.com/switches/sensorbridge/pkg/wire"
)

// Client errors.
var (
	ErrRequestTimeout   = errors.New("request timed out")
	ErrClientClosed     = errors.New("client is closed")
	ErrUnexpectedReply  = errors.New("unexpected reply")
	ErrAlreadyListening = errors.New("already listening on channel")
)

// Sender sends encoded frames to the bridge.
type Sender interface {
	Send(data []byte) error
}

// DefaultTimeout bounds how long a call waits for its reply.
const DefaultTimeout = 30 * time.Second

// DefaultEventBuffer is the per-stream event buffer size.
const DefaultEventBuffer = 64

// Client matches replies to calls and routes events to open streams. Feed
// every received frame to HandleFrame.
type Client struct {
	mu sync.RWMutex

	sender      Sender
	timeout     time.Duration
	eventBuffer int

	nextMsgID uint32

	pending   map[uint32]chan *wire.Message
	pendingMu sync.Mutex

	streams map[string]*Stream

	closed bool
}

// NewClient creates a client that sends through sender.
func NewClient(sender Sender) *Client {
	return &Client{
		sender:      sender,
		timeout:     DefaultTimeout,
		eventBuffer: DefaultEventBuffer,
		pending:     make(map[uint32]chan *wire.Message),
		streams:     make(map[string]*Stream),
	}
}

// SetTimeout sets the call timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// SetEventBuffer sets the event buffer size of streams opened afterwards.
func (c *Client) SetEventBuffer(n int) {
	if n < 1 {
		n = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventBuffer = n
}

// Close fails pending calls and ends every open stream.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	streams := c.streams
	c.streams = make(map[string]*Stream)
	c.mu.Unlock()

	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint32]chan *wire.Message)
	c.pendingMu.Unlock()

	for _, s := range streams {
		s.finish(ErrClientClosed)
	}
	return nil
}

func (c *Client) nextMessageID() uint32 {
	id := atomic.AddUint32(&c.nextMsgID, 1)
	if id == 0 {
		id = atomic.AddUint32(&c.nextMsgID, 1)
	}
	return id
}

// Call invokes method on channelName and returns the reply payload. A
// failed reply is returned as *channel.Error.
func (c *Client) Call(ctx context.Context, channelName, method string, args map[string]any) (any, error) {
	reply, err := c.roundTrip(ctx, wire.NewCall(c.nextMessageID(), channelName, method, args))
	if err != nil {
		return nil, err
	}
	if err := channel.ReplyError(reply); err != nil {
		return nil, err
	}
	return reply.Payload, nil
}

func (c *Client) roundTrip(ctx context.Context, call *wire.Message) (*wire.Message, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClientClosed
	}
	timeout := c.timeout
	c.mu.RUnlock()

	replyCh := make(chan *wire.Message, 1)

	c.pendingMu.Lock()
	c.pending[call.MessageID] = replyCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, call.MessageID)
		c.pendingMu.Unlock()
	}()

	data, err := wire.EncodeMessage(call)
	if err != nil {
		return nil, err
	}
	if err := c.sender.Send(data); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s %s", ErrRequestTimeout, call.Channel, call.Method)
	case reply, ok := <-replyCh:
		if !ok {
			return nil, ErrClientClosed
		}
		return reply, nil
	}
}

// Listen attaches to an event channel. The stream is registered before the
// listen call goes out so no early event is lost.
func (c *Client) Listen(ctx context.Context, channelName string) (*Stream, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	if _, exists := c.streams[channelName]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyListening, channelName)
	}
	s := newStream(c, channelName, c.eventBuffer)
	c.streams[channelName] = s
	c.mu.Unlock()

	if _, err := c.Call(ctx, channelName, wire.MethodListen, nil); err != nil {
		c.removeStream(s)
		s.finish(err)
		return nil, err
	}
	return s, nil
}

// Cancel detaches from the stream's event channel. Events still buffered
// stay readable.
func (c *Client) Cancel(ctx context.Context, s *Stream) error {
	if !c.removeStream(s) {
		return nil
	}
	s.finish(nil)
	_, err := c.Call(ctx, s.channel, wire.MethodCancel, nil)
	return err
}

func (c *Client) removeStream(s *Stream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streams[s.channel] != s {
		return false
	}
	delete(c.streams, s.channel)
	return true
}

// HandleFrame decodes and routes one received frame.
func (c *Client) HandleFrame(data []byte) error {
	msg, err := wire.DecodeMessage(data)
	if err != nil {
		return err
	}
	return c.HandleMessage(msg)
}

// HandleMessage routes a reply to its call, or an event to its stream.
func (c *Client) HandleMessage(msg *wire.Message) error {
	switch msg.Kind {
	case wire.KindReply:
		c.pendingMu.Lock()
		ch, exists := c.pending[msg.MessageID]
		c.pendingMu.Unlock()
		if !exists {
			return fmt.Errorf("%w: message %d", ErrUnexpectedReply, msg.MessageID)
		}
		select {
		case ch <- msg:
		default:
		}
		return nil

	case wire.KindEvent:
		c.mu.RLock()
		s := c.streams[msg.Channel]
		c.mu.RUnlock()
		if s != nil {
			s.deliver(msg.Payload)
		}
		return nil

	case wire.KindEndOfStream:
		c.mu.Lock()
		s := c.streams[msg.Channel]
		if s != nil {
			delete(c.streams, msg.Channel)
		}
		c.mu.Unlock()
		if s != nil {
			s.finish(nil)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedReply, msg.Kind)
	}
}
