// Package live manages interactive analysis sessions.
//
// A session holds search settings and a buffered stream of events. Each
// analysis request supersedes the previous one of the same session: only
// the latest request ever produces an analysis_complete or analysis_error
// event. Sessions survive subscriber disconnects until they are closed or
// stay idle for longer than the idle timeout.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/discochess/coach/internal/engine"
	"github.com/discochess/coach/internal/replay"
	"github.com/discochess/coach/internal/stats"
	"github.com/discochess/coach/internal/uci"
)

var (
	// ErrSessionNotFound indicates an unknown session ID.
	ErrSessionNotFound = errors.New("live: session not found")

	// ErrSessionClosed indicates the session was closed or evicted.
	ErrSessionClosed = errors.New("live: session closed")

	// ErrDetached indicates the subscription was replaced or closed.
	ErrDetached = errors.New("live: subscription detached")

	// ErrClosed indicates the manager has been shut down.
	ErrClosed = errors.New("live: manager closed")
)

// Engine is the part of the supervisor sessions use.
type Engine interface {
	Submit(ctx context.Context, job engine.Job) (*engine.Future, error)
	State() engine.State
}

// Subscription is an attached event consumer. Events are removed from the
// session buffer only by the current subscriber, so a reconnecting client
// resumes where the previous one stopped.
type Subscription struct {
	m *Manager
	s *session
}

// Next returns the next buffered event, waiting until one arrives. It
// returns ErrDetached once a newer subscriber took over or Close was
// called, and ErrSessionClosed after the final session_closed event has
// been returned.
func (sub *Subscription) Next(ctx context.Context) (Event, error) {
	s := sub.s
	for {
		s.mu.Lock()
		if s.subscriber != sub {
			s.mu.Unlock()
			return Event{}, ErrDetached
		}
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		if s.state == StateClosed {
			s.mu.Unlock()
			return Event{}, ErrSessionClosed
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Unread puts an event returned by Next back at the head of the session
// buffer, for events that could not be delivered. It is kept even when the
// subscription has since been detached.
func (sub *Subscription) Unread(ev Event) {
	s := sub.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unread(ev) {
		sub.m.opts.stats.IncCounter(stats.MetricLiveDropped, 1)
	}
}

// Close detaches the subscriber. The session keeps buffering events.
func (sub *Subscription) Close() {
	s := sub.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriber == sub && s.state != StateClosed {
		s.subscriber = nil
		s.lastActivity = time.Now()
		s.notify()
	}
}

// Manager is the registry of live sessions.
type Manager struct {
	engine Engine
	opts   options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.RWMutex
	sessions map[string]*session
	closed   map[string]time.Time
	shut     bool
}

// New creates a manager and starts its janitor. Call Close to stop it.
func New(eng Engine, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		engine:   eng,
		opts:     o,
		logger:   o.logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		sessions: make(map[string]*session),
		closed:   make(map[string]time.Time),
	}
	go m.janitor()
	return m
}

// Create opens a session with the default settings. Its first event is
// connection_established.
func (m *Manager) Create() (Info, error) {
	now := time.Now()
	s := &session{
		id:           uuid.NewString(),
		createdAt:    now,
		state:        StateCreated,
		settings:     m.opts.defaults,
		lastActivity: now,
		bufferSize:   m.opts.bufferSize,
		wake:         make(chan struct{}),
	}

	m.mu.Lock()
	if m.shut {
		m.mu.Unlock()
		return Info{}, ErrClosed
	}
	m.sessions[s.id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	s.mu.Lock()
	m.push(s, newEvent(EventConnectionEstablished, ConnectionData{
		SessionID: s.id,
		Settings:  s.settings,
		Engine:    m.engine.State(),
	}))
	s.state = StateConnected
	s.mu.Unlock()

	m.opts.stats.SetGauge(stats.MetricLiveSessions, int64(count))
	m.logger.Debug("session created", zap.String("session", s.id))
	return s.info(), nil
}

// Get returns a snapshot of a session.
func (m *Manager) Get(id string) (Info, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return s.info(), nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Subscribe attaches a consumer to the session's event stream. A previous
// subscriber of the same session is detached.
func (m *Manager) Subscribe(id string) (*Subscription, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}
	sub := &Subscription{m: m, s: s}
	s.subscriber = sub
	s.lastActivity = time.Now()
	s.notify()
	return sub, nil
}

// Analyze starts analyzing fen with the session settings and overrides.
// A request still in flight for the session is stopped and its result
// discarded. It returns the request ID carried by the events.
func (m *Manager) Analyze(id, fen string, overrides Overrides) (string, error) {
	s, err := m.lookup(id)
	if err != nil {
		return "", err
	}
	if _, err := replay.LegalMoves(fen); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return "", fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}

	if f := s.inflight; f != nil {
		select {
		case <-f.Done():
		default:
			m.opts.stats.IncCounter(stats.MetricLiveSuperseded, 1)
		}
		f.Cancel()
		s.inflight = nil
	}

	settings := overrides.Apply(s.settings)
	s.generation++
	gen := s.generation
	requestID := uuid.NewString()
	s.lastActivity = time.Now()

	f, err := m.engine.Submit(m.ctx, engine.Job{
		ID:  requestID,
		FEN: fen,
		Options: uci.SearchOptions{
			Depth:   settings.Depth,
			MultiPV: settings.MultiPV,
		},
		TimeLimit: settings.TimeLimit(),
		Origin:    engine.OriginLive,
		SessionID: id,
	})
	if err != nil {
		s.state = StateIdle
		m.push(s, newEvent(EventAnalysisError, ErrorData{
			RequestID: requestID,
			FEN:       fen,
			Message:   err.Error(),
		}))
		return "", err
	}

	s.inflight = f
	s.requestID = requestID
	s.state = StateAnalyzing
	m.push(s, newEvent(EventAnalysisStarted, StartedData{
		RequestID: requestID,
		FEN:       fen,
		Settings:  settings,
	}))

	go m.await(s, gen, requestID, fen, f)
	return requestID, nil
}

// await publishes the outcome of a request unless it was superseded.
func (m *Manager) await(s *session, gen uint64, requestID, fen string, f *engine.Future) {
	<-f.Done()
	res, err := f.Wait(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.state == StateClosed {
		m.logger.Debug("discarding superseded result",
			zap.String("session", s.id),
			zap.String("request", requestID),
		)
		return
	}
	s.inflight = nil
	s.state = StateIdle
	s.lastActivity = time.Now()

	if err != nil {
		m.logger.Info("live analysis failed",
			zap.String("session", s.id),
			zap.String("fen", fen),
			zap.Error(err),
		)
		m.push(s, newEvent(EventAnalysisError, ErrorData{
			RequestID: requestID,
			FEN:       fen,
			Message:   err.Error(),
		}))
		return
	}
	m.push(s, newEvent(EventAnalysisComplete, CompleteData{
		RequestID: requestID,
		Result:    res,
	}))
}

// UpdateSettings merges overrides into the session settings and emits
// settings_updated. It does not start an analysis.
func (m *Manager) UpdateSettings(id string, overrides Overrides) (Settings, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return Settings{}, fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}
	s.settings = overrides.Apply(s.settings)
	s.lastActivity = time.Now()
	m.push(s, newEvent(EventSettingsUpdated, s.settings))
	return s.settings, nil
}

// CloseSession stops the session's analysis and emits session_closed. The
// subscriber may still drain the events buffered before it.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		m.closed[id] = time.Now()
	}
	count := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		_, err := m.lookup(id)
		return err
	}

	m.closeSession(s, "closed by client")
	m.opts.stats.SetGauge(stats.MetricLiveSessions, int64(count))
	return nil
}

// BroadcastEngineStatus sends an engine_status event to every session. It
// does not block and can be registered with the supervisor's
// OnStateChange.
func (m *Manager) BroadcastEngineStatus(st engine.State) {
	for _, s := range m.snapshot() {
		s.mu.Lock()
		if s.state != StateClosed {
			m.push(s, newEvent(EventEngineStatus, st))
		}
		s.mu.Unlock()
	}
}

// Close closes every session and stops the janitor.
func (m *Manager) Close() error {
	m.cancel()
	<-m.done

	m.mu.Lock()
	if m.shut {
		m.mu.Unlock()
		return nil
	}
	m.shut = true
	sessions := make([]*session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		m.closeSession(s, "server shutting down")
	}
	m.opts.stats.SetGauge(stats.MetricLiveSessions, 0)
	return nil
}

func (m *Manager) lookup(id string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	if _, ok := m.closed[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

func (m *Manager) snapshot() []*session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (m *Manager) closeSession(s *session, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.generation++
	if s.inflight != nil {
		s.inflight.Cancel()
		s.inflight = nil
	}
	m.push(s, newEvent(EventSessionClosed, ClosedData{Reason: reason}))
	m.logger.Debug("session closed", zap.String("session", s.id), zap.String("reason", reason))
}

// push emits ev on s. s.mu must be held.
func (m *Manager) push(s *session, ev Event) {
	if dropped := s.emit(ev); dropped > 0 {
		m.opts.stats.IncCounter(stats.MetricLiveDropped, int64(dropped))
	}
}

// janitor sends heartbeats to subscribed sessions and evicts idle ones.
func (m *Manager) janitor() {
	defer close(m.done)
	ticker := time.NewTicker(m.opts.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	var idle []*session
	for _, s := range m.snapshot() {
		s.mu.Lock()
		switch {
		case s.state == StateClosed:
		case s.subscriber != nil:
			m.push(s, newEvent(EventHeartbeat, struct{}{}))
		case s.state != StateAnalyzing && now.Sub(s.lastActivity) >= m.opts.idleTimeout:
			idle = append(idle, s)
		}
		s.mu.Unlock()
	}

	m.mu.Lock()
	for _, s := range idle {
		delete(m.sessions, s.id)
		m.closed[s.id] = now
	}
	for id, at := range m.closed {
		if now.Sub(at) >= m.opts.idleTimeout {
			delete(m.closed, id)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, s := range idle {
		m.closeSession(s, "idle timeout")
		m.logger.Info("evicted idle session", zap.String("session", s.id))
	}
	if len(idle) > 0 {
		m.opts.stats.SetGauge(stats.MetricLiveSessions, int64(count))
	}
}
