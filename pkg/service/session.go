package service

import (
	"context"
	"sync"
	"time"

	"github.com/switches/sensorbridge/pkg/bridge"
	"github.com/switches/sensorbridge/pkg/channel"
	"github.com/switches/sensorbridge/pkg/transport"
)

// session is the state of one client connection: its outgoing queue, its
// messenger and the plugin that owns its streams.
type session struct {
	conn      transport.ServerConnection
	outbox    *outbox
	messenger *channel.Messenger
	plugin    *bridge.Plugin

	mu           sync.Mutex
	lastActivity time.Time
	closeOnce    sync.Once
}

func newSession(conn transport.ServerConnection, pluginConfig bridge.Config, config Config) *session {
	out := newOutbox(conn, config.EventQueueSize, func(err error) {
		if config.Logger != nil {
			config.Logger.Debug("session write failed", "conn_id", conn.ConnID(), "error", err)
		}
	})
	m := channel.NewMessenger(out, channel.Config{
		ConnectionID:   conn.ConnID(),
		ProtocolLogger: config.ProtocolLogger,
		Logger:         config.Logger,
	})
	pluginConfig.ConnectionID = conn.ConnID()
	p := bridge.NewPlugin(pluginConfig)
	p.Attach(m)

	return &session{
		conn:         conn,
		outbox:       out,
		messenger:    m,
		plugin:       p,
		lastActivity: time.Now(),
	}
}

// handle dispatches one frame. Frames of a connection arrive in order on
// its read goroutine.
func (s *session) handle(ctx context.Context, data []byte) {
	s.touch()
	s.messenger.HandleFrame(ctx, data)
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// idleSince reports when the session last saw a message. ok is false while
// a stream is bound; a fired trigger no longer counts.
func (s *session) idleSince() (time.Time, bool) {
	if s.plugin.Registry().Count() > 0 {
		return time.Time{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity, true
}

// close cancels every listener and unbinds all streams. It is safe to call
// more than once.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.messenger.Close()
		s.plugin.Detach()
		s.outbox.close()
	})
}

// sessionTracker tracks live sessions by connection ID.
type sessionTracker struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{sessions: make(map[string]*session)}
}

// Add registers a session.
func (st *sessionTracker) Add(s *session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.conn.ConnID()] = s
}

// Remove deregisters a session and returns it. Safe to call on absent IDs.
func (st *sessionTracker) Remove(connID string) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[connID]
	delete(st.sessions, connID)
	return s, ok
}

// Get returns the session of connID.
func (st *sessionTracker) Get(connID string) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[connID]
	return s, ok
}

// CloseStale closes the sessions that have been idle longer than maxAge.
// The disconnect path removes them from the tracker.
func (st *sessionTracker) CloseStale(maxAge time.Duration) []*session {
	st.mu.Lock()
	candidates := make([]*session, 0, len(st.sessions))
	for _, s := range st.sessions {
		candidates = append(candidates, s)
	}
	st.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var closed []*session
	for _, s := range candidates {
		since, idle := s.idleSince()
		if idle && since.Before(cutoff) {
			_ = s.conn.Close()
			closed = append(closed, s)
		}
	}
	return closed
}

// Len returns the number of tracked sessions.
func (st *sessionTracker) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
