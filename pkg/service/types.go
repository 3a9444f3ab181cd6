package service

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/switches/sensorbridge/pkg/bridge"
	"github.com/switches/sensorbridge/pkg/log"
	"github.com/switches/sensorbridge/pkg/sensor"
	"github.com/switches/sensorbridge/pkg/stream"
	"github.com/switches/sensorbridge/pkg/transport"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateStarting - service is starting up.
	StateStarting

	// StateRunning - service is running normally.
	StateRunning

	// StateStopping - service is shutting down.
	StateStopping

	// StateStopped - service has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a BridgeService.
type Config struct {
	// ListenAddress is the address to listen on (e.g., ":47420").
	ListenAddress string

	// TLSConfig enables TLS. Nil serves plain TCP. NextProtos is filled
	// with the supported ALPN identifiers when empty.
	TLSConfig *tls.Config

	// MaxConnections limits concurrent client sessions. Zero means unlimited.
	MaxConnections int

	// MaxMessageSize is the maximum frame size (default: 64KB).
	MaxMessageSize uint32

	// ChannelPrefix names the command channel (default: bridge.MethodChannel).
	ChannelPrefix string

	// MaxStreamsPerSession limits bound streams per client session.
	MaxStreamsPerSession int

	// DefaultInterval is the sampling delay used when registerListener
	// carries no interval.
	DefaultInterval sensor.Delay

	// EventQueueSize bounds the stream events buffered per session. Events
	// beyond it are dropped (default: DefaultEventQueueSize).
	EventQueueSize int

	// WriteTimeout closes a session whose client stops reading for this
	// long (default: 10s).
	WriteTimeout time.Duration

	// IdleTimeout closes sessions that have no bound stream and sent no
	// message for this long. Zero disables the reaper.
	IdleTimeout time.Duration

	// InstanceName is the mDNS instance name used when an advertiser is set.
	InstanceName string

	// BridgeName is a human readable name published in the TXT record.
	BridgeName string

	// Logger for operational messages (optional).
	Logger *slog.Logger

	// ProtocolLogger captures frames, messages and stream state changes
	// (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddress:        fmt.Sprintf(":%d", transport.DefaultPort),
		MaxConnections:       16,
		MaxMessageSize:       transport.DefaultMaxMessageSize,
		ChannelPrefix:        bridge.MethodChannel,
		MaxStreamsPerSession: stream.DefaultMaxStreams,
		DefaultInterval:      sensor.DelayNormal,
		EventQueueSize:       DefaultEventQueueSize,
		WriteTimeout:         10 * time.Second,
		InstanceName:         "sensorbridge",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxConnections < 0 {
		return fmt.Errorf("%w: max connections must not be negative", ErrInvalidConfig)
	}
	if c.MaxStreamsPerSession < 0 {
		return fmt.Errorf("%w: max streams must not be negative", ErrInvalidConfig)
	}
	if c.DefaultInterval < 0 {
		return fmt.Errorf("%w: default interval must not be negative", ErrInvalidConfig)
	}
	if c.EventQueueSize < 0 {
		return fmt.Errorf("%w: event queue size must not be negative", ErrInvalidConfig)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("%w: write timeout must not be negative", ErrInvalidConfig)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// EventType identifies a service event.
type EventType uint8

const (
	// EventConnected - client session opened.
	EventConnected EventType = iota

	// EventDisconnected - client session closed.
	EventDisconnected

	// EventSessionReaped - idle session closed by the reaper.
	EventSessionReaped

	// EventAdvertised - mDNS advertising started.
	EventAdvertised

	// EventError - transport or advertising error.
	EventError
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventSessionReaped:
		return "SESSION_REAPED"
	case EventAdvertised:
		return "ADVERTISED"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is passed to event handlers.
type Event struct {
	// Type is the event type.
	Type EventType

	// ConnectionID identifies the client session (session events).
	ConnectionID string

	// RemoteAddr is the client address (session events).
	RemoteAddr string

	// Error is set for EventError.
	Error error
}

// EventHandler handles service events.
type EventHandler func(Event)
