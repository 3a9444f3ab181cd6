package service

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switches/sensorbridge/pkg/transport"
	"github.com/switches/sensorbridge/pkg/wire"
)

// stalledConn is a connection whose writes block until release is closed.
type stalledConn struct {
	release chan struct{}
	fail    error

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newStalledConn() *stalledConn {
	return &stalledConn{release: make(chan struct{})}
}

func (c *stalledConn) ConnID() string       { return "stalled" }
func (c *stalledConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func (c *stalledConn) Send(data []byte) error {
	<-c.release
	if c.fail != nil {
		return c.fail
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *stalledConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stalledConn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func encode(t *testing.T, msg *wire.Message) []byte {
	t.Helper()
	data, err := wire.EncodeMessage(msg)
	require.NoError(t, err)
	return data
}

func TestOutboxDropsEventsForStalledClient(t *testing.T) {
	conn := newStalledConn()
	out := newOutbox(conn, 2, nil)
	defer out.close()

	event := encode(t, wire.NewEvent("com.switches/sensor_manager/continuous/android.sensor.light", map[string]any{"values": []float32{1}}))
	reply := encode(t, wire.NewReply(wire.NewCall(1, "com.switches/sensor_manager", "getPlatformVersion", nil), "Android 14"))

	start := time.Now()
	// The writer picks up the first event and blocks on it; two more fill
	// the queue.
	require.NoError(t, out.Send(event))
	assert.Eventually(t, func() bool {
		out.mu.Lock()
		defer out.mu.Unlock()
		return len(out.pending) == 0
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, out.Send(event))
	require.NoError(t, out.Send(event))

	assert.ErrorIs(t, out.Send(event), ErrEventDropped)
	assert.ErrorIs(t, out.Send(event), ErrEventDropped)
	assert.NoError(t, out.Send(reply), "replies are queued even when events are full")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, uint64(2), out.Dropped())

	close(conn.release)
	assert.Eventually(t, func() bool { return len(conn.Sent()) == 4 }, 2*time.Second, 5*time.Millisecond)
	sent := conn.Sent()
	assert.Equal(t, reply, sent[3])
}

func TestOutboxClosesConnectionOnWriteError(t *testing.T) {
	conn := newStalledConn()
	conn.fail = errors.New("i/o timeout")
	close(conn.release)

	var mu sync.Mutex
	var reported error
	out := newOutbox(conn, 0, func(err error) {
		mu.Lock()
		reported = err
		mu.Unlock()
	})

	require.NoError(t, out.Send(encode(t, wire.NewEndOfStream("com.switches/sensor_manager/hotplug/dynamic"))))
	assert.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.closed
	}, 2*time.Second, 5*time.Millisecond)

	out.close()
	mu.Lock()
	assert.EqualError(t, reported, "i/o timeout")
	mu.Unlock()
	assert.ErrorIs(t, out.Send([]byte{0x01}), transport.ErrConnectionClosed)
}

func TestOutboxCloseIsIdempotent(t *testing.T) {
	out := newOutbox(newStalledConn(), 0, nil)
	out.close()
	out.close()
	assert.ErrorIs(t, out.Send([]byte{0x01}), transport.ErrConnectionClosed)
}
