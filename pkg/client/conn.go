package client

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/switches/sensorbridge/pkg/log"
	"github.com/switches/sensorbridge/pkg/transport"
	"github.com/switches/sensorbridge/pkg/version"
)

// Config configures a bridge connection.
type Config struct {
	// TLSConfig enables TLS. NextProtos defaults to the supported ALPN
	// identifiers.
	TLSConfig *tls.Config

	// ConnectTimeout bounds the dial (default: 10s).
	ConnectTimeout time.Duration

	// CallTimeout bounds each call (default: DefaultTimeout).
	CallTimeout time.Duration

	// EventBuffer is the per-stream event buffer (default: DefaultEventBuffer).
	EventBuffer int

	// ProtocolLogger captures frames (optional).
	ProtocolLogger log.Logger

	// Logger for operational messages (optional).
	Logger *slog.Logger
}

// Conn is a Client bound to a transport connection with its own read loop.
type Conn struct {
	*Client

	conn   *transport.ClientConn
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial connects to a bridge and starts reading.
func Dial(ctx context.Context, address string, config Config) (*Conn, error) {
	tlsConfig := config.TLSConfig
	if tlsConfig != nil && len(tlsConfig.NextProtos) == 0 {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.NextProtos = version.SupportedALPNProtocols()
	}

	tc, err := transport.Dial(ctx, address, transport.ClientConfig{
		TLSConfig:      tlsConfig,
		ConnectTimeout: config.ConnectTimeout,
		Logger:         config.ProtocolLogger,
	})
	if err != nil {
		return nil, err
	}

	c := &Conn{
		Client: NewClient(tc),
		conn:   tc,
		logger: config.Logger,
		done:   make(chan struct{}),
	}
	if config.CallTimeout > 0 {
		c.SetTimeout(config.CallTimeout)
	}
	if config.EventBuffer > 0 {
		c.SetEventBuffer(config.EventBuffer)
	}

	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// SensorManager returns a command wrapper for the default channel.
func (c *Conn) SensorManager() *SensorManager {
	return NewSensorManager(c.Client)
}

// RemoteAddr returns the bridge address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection and ends all streams.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer close(c.done)
	defer c.Client.Close()

	for {
		data, err := c.conn.Receive(0)
		if err != nil {
			if !errors.Is(err, transport.ErrConnectionClosed) && !errors.Is(err, net.ErrClosed) {
				c.debugLog("read failed", "error", err)
			}
			return
		}
		if err := c.HandleFrame(data); err != nil {
			c.debugLog("dropped message", "error", err)
		}
	}
}

func (c *Conn) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
