package channel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switches/sensorbridge/pkg/log"
	"github.com/switches/sensorbridge/pkg/wire"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []*wire.Message
	err  error
}

func (s *recordingSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	msg, err := wire.DecodeMessage(data)
	if err != nil {
		return err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSender) Messages() []*wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wire.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *recordingSender) Last(t *testing.T) *wire.Message {
	t.Helper()
	msgs := s.Messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *captureLogger) Log(e log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *captureLogger) Events() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

type testStream struct {
	mu       sync.Mutex
	sink     EventSink
	listens  int
	cancels  int
	listenFn func(args map[string]any) error
}

func (s *testStream) OnListen(args map[string]any, sink EventSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listens++
	if s.listenFn != nil {
		if err := s.listenFn(args); err != nil {
			return err
		}
	}
	s.sink = sink
	return nil
}

func (s *testStream) OnCancel(map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	s.sink = nil
	return nil
}

func (s *testStream) Sink() EventSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

func call(t *testing.T, m *Messenger, id uint32, channel, method string, args map[string]any) {
	t.Helper()
	data, err := wire.EncodeMessage(wire.NewCall(id, channel, method, args))
	require.NoError(t, err)
	m.HandleFrame(context.Background(), data)
}

func TestMethodCall(t *testing.T) {
	sender := &recordingSender{}
	m := NewMessenger(sender, Config{})
	m.SetMethodCallHandler("calc", func(_ context.Context, c *Call) (any, error) {
		switch c.Method {
		case "double":
			n, err := wire.RequireInt(c.Args, "n")
			if err != nil {
				return nil, err
			}
			return n * 2, nil
		case "fail":
			return nil, errors.New("boom")
		default:
			return nil, NotImplemented(c.Method)
		}
	})

	call(t, m, 1, "calc", "double", map[string]any{"n": 21})
	reply := sender.Last(t)
	assert.Equal(t, wire.KindReply, reply.Kind)
	assert.Equal(t, uint32(1), reply.MessageID)
	assert.Equal(t, wire.StatusSuccess, reply.Status)
	n, ok := wire.ToInt(reply.Payload)
	require.True(t, ok)
	assert.Equal(t, 42, n)

	tests := []struct {
		method string
		args   map[string]any
		want   wire.Status
	}{
		{"double", nil, wire.StatusInvalidArgument},
		{"double", map[string]any{"n": "x"}, wire.StatusInvalidArgument},
		{"fail", nil, wire.StatusError},
		{"nope", nil, wire.StatusNotImplemented},
	}
	for i, tt := range tests {
		call(t, m, uint32(10+i), "calc", tt.method, tt.args)
		reply := sender.Last(t)
		assert.Equal(t, tt.want, reply.Status, tt.method)
		assert.Equal(t, uint32(10+i), reply.MessageID)
		assert.NotEmpty(t, reply.Error)
	}
}

func TestUnknownChannel(t *testing.T) {
	sender := &recordingSender{}
	m := NewMessenger(sender, Config{})

	call(t, m, 3, "missing", "anything", nil)
	reply := sender.Last(t)
	assert.Equal(t, wire.StatusNotImplemented, reply.Status)
	assert.Contains(t, reply.Error, "missing")
}

func TestUnsupportedDetails(t *testing.T) {
	sender := &recordingSender{}
	m := NewMessenger(sender, Config{})
	m.SetMethodCallHandler("c", func(context.Context, *Call) (any, error) {
		return nil, Unsupported("dynamic sensors", 24)
	})

	call(t, m, 1, "c", "x", nil)
	reply := sender.Last(t)
	require.Equal(t, wire.StatusUnsupported, reply.Status)

	err := ReplyError(reply)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	details, ok := ce.Details.(map[string]any)
	require.True(t, ok)
	level, ok := wire.ToInt(details["requiredApiLevel"])
	require.True(t, ok)
	assert.Equal(t, 24, level)
	assert.Equal(t, "dynamic sensors", details["capability"])
}

func TestListenDeliversEvents(t *testing.T) {
	sender := &recordingSender{}
	m := NewMessenger(sender, Config{})
	h := &testStream{}
	m.SetStreamHandler("ev", h)
	assert.True(t, m.HasStreamHandler("ev"))

	call(t, m, 1, "ev", wire.MethodListen, nil)
	assert.Equal(t, wire.StatusSuccess, sender.Last(t).Status)
	assert.True(t, m.Listening("ev"))

	sink := h.Sink()
	require.NotNil(t, sink)
	require.NoError(t, sink.Success(map[string]any{"v": 1}))
	require.NoError(t, sink.Success(map[string]any{"v": 2}))

	msgs := sender.Messages()
	require.Len(t, msgs, 3)
	for i, msg := range msgs[1:] {
		assert.Equal(t, wire.KindEvent, msg.Kind)
		assert.Equal(t, "ev", msg.Channel)
		payload := msg.Payload.(map[string]any)
		v, _ := wire.ToInt(payload["v"])
		assert.Equal(t, i+1, v)
	}

	call(t, m, 2, "ev", wire.MethodCancel, nil)
	assert.Equal(t, wire.StatusSuccess, sender.Last(t).Status)
	assert.False(t, m.Listening("ev"))
	assert.ErrorIs(t, sink.Success(1), ErrSinkClosed)
	assert.Equal(t, 1, h.cancels)
}

func TestListenTwiceCancelsPrevious(t *testing.T) {
	sender := &recordingSender{}
	m := NewMessenger(sender, Config{})
	h := &testStream{}
	m.SetStreamHandler("ev", h)

	call(t, m, 1, "ev", wire.MethodListen, nil)
	first := h.Sink()
	call(t, m, 2, "ev", wire.MethodListen, nil)
	second := h.Sink()

	assert.Equal(t, 2, h.listens)
	assert.Equal(t, 1, h.cancels)
	assert.ErrorIs(t, first.Success(1), ErrSinkClosed)
	assert.NoError(t, second.Success(1))
}

func TestListenFailure(t *testing.T) {
	sender := &recordingSender{}
	m := NewMessenger(sender, Config{})
	h := &testStream{listenFn: func(map[string]any) error {
		return NewError(wire.StatusError, "host refused")
	}}
	m.SetStreamHandler("ev", h)

	call(t, m, 1, "ev", wire.MethodListen, nil)
	reply := sender.Last(t)
	assert.Equal(t, wire.StatusError, reply.Status)
	assert.Equal(t, "host refused", reply.Error)
	assert.False(t, m.Listening("ev"))
}

func TestCancelWithoutListen(t *testing.T) {
	sender := &recordingSender{}
	m := NewMessenger(sender, Config{})
	h := &testStream{}
	m.SetStreamHandler("ev", h)

	call(t, m, 1, "ev", wire.MethodCancel, nil)
	reply := sender.Last(t)
	assert.Equal(t, wire.StatusError, reply.Status)
	assert.Contains(t, reply.Error, "no active stream")
	assert.Equal(t, 0, h.cancels)

	call(t, m, 2, "ev", "pause", nil)
	assert.Equal(t, wire.StatusNotImplemented, sender.Last(t).Status)
}

func TestEndOfStream(t *testing.T) {
	sender := &recordingSender{}
	m := NewMessenger(sender, Config{})
	h := &testStream{}
	m.SetStreamHandler("ev", h)
	call(t, m, 1, "ev", wire.MethodListen, nil)

	sink := h.Sink()
	require.NoError(t, sink.EndOfStream())
	assert.Equal(t, wire.KindEndOfStream, sender.Last(t).Kind)
	assert.ErrorIs(t, sink.EndOfStream(), ErrSinkClosed)
	assert.ErrorIs(t, sink.Success(1), ErrSinkClosed)
}

func TestCloseCancelsListeners(t *testing.T) {
	sender := &recordingSender{}
	m := NewMessenger(sender, Config{})
	a, b := &testStream{}, &testStream{}
	m.SetStreamHandler("a", a)
	m.SetStreamHandler("b", b)
	call(t, m, 1, "a", wire.MethodListen, nil)
	call(t, m, 2, "b", wire.MethodListen, nil)

	sinkA := a.Sink()
	m.Close()
	m.Close()

	assert.Equal(t, 1, a.cancels)
	assert.Equal(t, 1, b.cancels)
	assert.ErrorIs(t, sinkA.Success(1), ErrSinkClosed)

	call(t, m, 3, "a", wire.MethodListen, nil)
	assert.Equal(t, wire.StatusError, sender.Last(t).Status)
	assert.Equal(t, 1, a.listens)
}

func TestNonCallIgnored(t *testing.T) {
	sender := &recordingSender{}
	m := NewMessenger(sender, Config{})

	data, err := wire.EncodeMessage(wire.NewEvent("ev", 1))
	require.NoError(t, err)
	m.HandleFrame(context.Background(), data)
	m.HandleFrame(context.Background(), []byte{0xff, 0x00})

	assert.Empty(t, sender.Messages())
}

func TestProtocolLogging(t *testing.T) {
	sender := &recordingSender{}
	logger := &captureLogger{}
	m := NewMessenger(sender, Config{ConnectionID: "c1", ProtocolLogger: logger})
	m.SetMethodCallHandler("c", func(context.Context, *Call) (any, error) { return "ok", nil })

	call(t, m, 7, "c", "x", nil)
	m.HandleFrame(context.Background(), []byte{0xff})

	events := logger.Events()
	require.Len(t, events, 3)

	assert.Equal(t, log.DirectionIn, events[0].Direction)
	require.NotNil(t, events[0].Message)
	assert.Equal(t, wire.KindCall, events[0].Message.Kind)
	assert.Nil(t, events[0].Message.ProcessingTime)

	assert.Equal(t, log.DirectionOut, events[1].Direction)
	require.NotNil(t, events[1].Message)
	assert.Equal(t, wire.KindReply, events[1].Message.Kind)
	assert.Equal(t, uint32(7), events[1].Message.MessageID)
	assert.NotNil(t, events[1].Message.ProcessingTime)
	assert.Equal(t, "c1", events[1].ConnectionID)
	assert.Equal(t, "c", events[1].Channel)

	assert.Equal(t, log.CategoryError, events[2].Category)
	require.NotNil(t, events[2].Error)
	assert.Equal(t, "decode", events[2].Error.Context)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want wire.Status
	}{
		{"channel error", NewError(wire.StatusUnsupported, "x"), wire.StatusUnsupported},
		{"wrapped channel error", errors.Join(errors.New("ctx"), NotImplemented("m")), wire.StatusNotImplemented},
		{"not implemented sentinel", ErrNotImplemented, wire.StatusNotImplemented},
		{"missing argument", wire.ErrMissingArgument, wire.StatusInvalidArgument},
		{"invalid argument", wire.ErrInvalidArgument, wire.StatusInvalidArgument},
		{"other", errors.New("x"), wire.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, _ := StatusOf(tt.err)
			if got != tt.want {
				t.Errorf("StatusOf() = %v, want %v", got, tt.want)
			}
		})
	}
}
