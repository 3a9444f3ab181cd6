package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/switches/sensorbridge/pkg/bridge"
	"github.com/switches/sensorbridge/pkg/discovery"
	"github.com/switches/sensorbridge/pkg/log"
	"github.com/switches/sensorbridge/pkg/sensor"
	"github.com/switches/sensorbridge/pkg/transport"
	"github.com/switches/sensorbridge/pkg/version"
)

// BridgeService serves the sensor manager to remote clients. Every
// connection gets its own session with an independent stream registry.
type BridgeService struct {
	mu sync.RWMutex

	host   sensor.Host
	config Config
	caps   sensor.Capabilities
	state  ServiceState

	server     *transport.Server
	sessions   *sessionTracker
	advertiser discovery.Advertiser

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	eventHandlers []EventHandler
}

// NewBridgeService creates a bridge service for host.
func NewBridgeService(host sensor.Host, config Config) (*BridgeService, error) {
	if host == nil {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.ChannelPrefix == "" {
		config.ChannelPrefix = bridge.MethodChannel
	}

	return &BridgeService{
		host:     host,
		config:   config,
		caps:     sensor.Negotiate(host.Platform()),
		state:    StateIdle,
		sessions: newSessionTracker(),
	}, nil
}

// SetAdvertiser sets the mDNS advertiser used on Start. Must be called
// before Start.
func (s *BridgeService) SetAdvertiser(a discovery.Advertiser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertiser = a
}

// SetLogger sets the debug logger. Must be called before Start.
func (s *BridgeService) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Logger = logger
}

// SetProtocolLogger sets the protocol event logger. Must be called before
// Start.
func (s *BridgeService) SetProtocolLogger(logger log.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.ProtocolLogger = logger
}

// OnEvent registers a handler for service events.
func (s *BridgeService) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// State returns the current service state.
func (s *BridgeService) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Capabilities returns the capability set negotiated with the host.
func (s *BridgeService) Capabilities() sensor.Capabilities {
	return s.caps
}

// Start starts listening for clients.
func (s *BridgeService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	tlsConfig := s.config.TLSConfig
	if tlsConfig != nil && len(tlsConfig.NextProtos) == 0 {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.NextProtos = version.SupportedALPNProtocols()
	}

	server := transport.NewServer(transport.ServerConfig{
		Address:        s.config.ListenAddress,
		TLSConfig:      tlsConfig,
		MaxMessageSize: s.config.MaxMessageSize,
		MaxConnections: s.config.MaxConnections,
		WriteTimeout:   s.config.WriteTimeout,
		Logger:         s.config.ProtocolLogger,
		OnConnect:      s.handleConnect,
		OnDisconnect:   s.handleDisconnect,
		OnMessage:      s.handleMessage,
		OnError:        s.handleError,
	})
	if err := server.Start(s.ctx); err != nil {
		s.cancel()
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.server = server
	s.state = StateRunning
	advertiser := s.advertiser
	s.mu.Unlock()

	s.debugLog("bridge started", "addr", server.Addr().String(), "platform", s.host.Platform().String())

	if s.config.IdleTimeout > 0 {
		s.wg.Add(1)
		go s.runReaper(s.ctx)
	}

	if advertiser != nil {
		if err := advertiser.Advertise(s.ctx, s.BridgeInfo()); err != nil {
			s.debugLog("advertise failed", "error", err)
			s.emitEvent(Event{Type: EventError, Error: fmt.Errorf("advertise: %w", err)})
		} else {
			s.emitEvent(Event{Type: EventAdvertised})
		}
	}

	return nil
}

// Stop closes every session and stops listening.
func (s *BridgeService) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	server := s.server
	advertiser := s.advertiser
	s.mu.Unlock()

	if advertiser != nil {
		_ = advertiser.Stop()
	}

	if s.cancel != nil {
		s.cancel()
	}

	// Closing the connections runs handleDisconnect for each session.
	err := server.Stop()
	s.wg.Wait()

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	s.debugLog("bridge stopped")
	return err
}

// Addr returns the listen address, or nil when not running.
func (s *BridgeService) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return nil
	}
	return s.server.Addr()
}

// SessionCount returns the number of connected clients.
func (s *BridgeService) SessionCount() int {
	return s.sessions.Len()
}

// StreamCount returns the number of bound streams of one session.
func (s *BridgeService) StreamCount(connID string) int {
	sess, ok := s.sessions.Get(connID)
	if !ok {
		return 0
	}
	return sess.plugin.Registry().Count()
}

// DroppedEvents returns the number of events one session discarded
// because its client did not keep up.
func (s *BridgeService) DroppedEvents(connID string) uint64 {
	sess, ok := s.sessions.Get(connID)
	if !ok {
		return 0
	}
	return sess.outbox.Dropped()
}

// BridgeInfo describes the bridge for mDNS advertising.
func (s *BridgeService) BridgeInfo() *discovery.BridgeInfo {
	platform := s.host.Platform()
	info := &discovery.BridgeInfo{
		InstanceName:    s.config.InstanceName,
		ProtocolVersion: version.Current,
		Platform:        platform.String(),
		APILevel:        platform.APILevel,
		SensorCount:     len(s.host.SensorList(sensor.TypeAll)),
		Capabilities:    capabilityNames(s.caps),
		BridgeName:      s.config.BridgeName,
	}
	if addr, ok := s.Addr().(*net.TCPAddr); ok && addr != nil {
		info.Port = uint16(addr.Port)
	}
	return info
}

func (s *BridgeService) handleConnect(conn *transport.ServerConn) {
	sess := newSession(conn, s.pluginConfig(), s.config)
	s.sessions.Add(sess)

	s.debugLog("client connected", "conn_id", conn.ConnID(), "remote", conn.RemoteAddr().String())
	s.emitEvent(Event{
		Type:         EventConnected,
		ConnectionID: conn.ConnID(),
		RemoteAddr:   conn.RemoteAddr().String(),
	})
}

func (s *BridgeService) handleMessage(conn *transport.ServerConn, data []byte) {
	sess, ok := s.sessions.Get(conn.ConnID())
	if !ok {
		return
	}
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	sess.handle(ctx, data)
}

func (s *BridgeService) handleDisconnect(conn *transport.ServerConn) {
	sess, ok := s.sessions.Remove(conn.ConnID())
	if !ok {
		return
	}
	sess.close()

	s.debugLog("client disconnected", "conn_id", conn.ConnID())
	s.emitEvent(Event{
		Type:         EventDisconnected,
		ConnectionID: conn.ConnID(),
		RemoteAddr:   conn.RemoteAddr().String(),
	})
}

func (s *BridgeService) handleError(conn *transport.ServerConn, err error) {
	if errors.Is(err, net.ErrClosed) {
		return
	}
	ev := Event{Type: EventError, Error: err}
	if conn != nil {
		ev.ConnectionID = conn.ConnID()
		ev.RemoteAddr = conn.RemoteAddr().String()
	}
	s.debugLog("transport error", "conn_id", ev.ConnectionID, "error", err)
	s.emitEvent(ev)
}

// runReaper closes sessions without bound streams that stay silent for
// IdleTimeout.
func (s *BridgeService) runReaper(ctx context.Context) {
	defer s.wg.Done()

	interval := s.config.IdleTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sess := range s.sessions.CloseStale(s.config.IdleTimeout) {
				s.debugLog("idle session closed", "conn_id", sess.conn.ConnID())
				s.emitEvent(Event{
					Type:         EventSessionReaped,
					ConnectionID: sess.conn.ConnID(),
					RemoteAddr:   sess.conn.RemoteAddr().String(),
				})
			}
		}
	}
}

func (s *BridgeService) pluginConfig() bridge.Config {
	return bridge.Config{
		Host:            s.host,
		ChannelPrefix:   s.config.ChannelPrefix,
		MaxStreams:      s.config.MaxStreamsPerSession,
		DefaultInterval: s.config.DefaultInterval,
		ProtocolLogger:  s.config.ProtocolLogger,
		Logger:          s.config.Logger,
	}
}

// emitEvent calls all registered event handlers.
func (s *BridgeService) emitEvent(event Event) {
	s.mu.RLock()
	handlers := append([]EventHandler(nil), s.eventHandlers...)
	s.mu.RUnlock()
	for _, handler := range handlers {
		go handler(event)
	}
}

// debugLog logs a debug message if logging is enabled.
func (s *BridgeService) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

// capabilityNames maps negotiated capabilities to their TXT record names.
func capabilityNames(c sensor.Capabilities) []string {
	var names []string
	if c.TriggerSensors {
		names = append(names, discovery.CapTriggerSensors)
	}
	if c.WakeUpSensors {
		names = append(names, discovery.CapWakeUpSensors)
	}
	if c.DynamicSensors {
		names = append(names, discovery.CapDynamicSensors)
	}
	if c.ExtendedDescriptor {
		names = append(names, discovery.CapExtendedDescriptor)
	}
	return names
}
