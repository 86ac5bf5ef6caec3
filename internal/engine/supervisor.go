// Package engine supervises a single UCI engine process.
//
// The Supervisor owns the process. One goroutine performs every read and
// write on the engine pipes, so at most one search runs at a time. Other
// components submit jobs and receive futures; they never touch the process.
package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/discochess/coach/internal/fen"
	"github.com/discochess/coach/internal/stats"
	"github.com/discochess/coach/internal/uci"
)

type requestKind int

const (
	requestHealth requestKind = iota
	requestRestart
	requestReset
)

type request struct {
	kind  requestKind
	reply chan error
}

// Supervisor owns an engine process and serializes jobs against it.
type Supervisor struct {
	launcher Launcher
	opts     options
	logger   *zap.Logger
	stats    stats.Collector

	queue    *queue
	requests chan request

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
	closed  sync.Once

	mu    sync.RWMutex
	state State

	listenersMu sync.Mutex
	listeners   []func(State)

	// Owned by the run goroutine.
	proc     Process
	client   *uci.Client
	failures []time.Time
}

// New creates a supervisor. Call Start to launch the engine.
func New(launcher Launcher, opts ...Option) *Supervisor {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.stats == nil {
		o.stats = stats.NewNoop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		launcher:  launcher,
		opts:      o,
		logger:    o.logger,
		stats:     o.stats,
		queue:     newQueue(),
		requests:  make(chan request),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     State{Status: StatusStarting},
		listeners: slices.Clone(o.listeners),
	}
}

// Start launches the engine and blocks until the handshake completes or
// fails. A failed startup leaves the supervisor in StatusFailed; jobs are
// rejected with ErrEngineUnavailable until Reset succeeds.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("engine: supervisor already started")
	}

	ready := make(chan error, 1)
	go s.run(ready)

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, fails queued jobs with ErrClosed and shuts
// the engine down.
func (s *Supervisor) Close() error {
	s.closed.Do(func() {
		s.cancel()
		if s.started.Load() {
			<-s.done
			return
		}
		s.queue.close(ErrClosed)
		s.mu.Lock()
		s.state.Status = StatusStopped
		s.mu.Unlock()
	})
	return nil
}

// OnStateChange registers fn to be called on lifecycle changes. fn runs on
// the supervisor goroutine and must not block.
func (s *Supervisor) OnStateChange(fn func(State)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// State returns a snapshot of the engine state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	st := s.state
	s.mu.RUnlock()
	st.QueueDepth = s.queue.len()
	return st
}

// Submit enqueues a job and returns its future. The future's lifetime is
// bound to ctx: canceling ctx cancels the job.
//
// A live job with a SessionID supersedes queued jobs of the same session;
// their futures fail with ErrSuperseded.
func (s *Supervisor) Submit(ctx context.Context, job Job) (*Future, error) {
	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	if err := fen.Validate(job.FEN); err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	f := newFuture(ctx, job)
	f.dequeue = s.queue.remove
	context.AfterFunc(f.ctx, func() {
		if s.queue.remove(f) {
			f.complete(nil, ErrCanceled)
		}
	})

	if job.Origin == OriginLive && job.SessionID != "" {
		for _, old := range s.queue.removeSession(job.SessionID) {
			old.complete(nil, ErrSuperseded)
			s.stats.IncCounter(stats.MetricLiveSuperseded, 1)
		}
	}

	if err := s.queue.push(f); err != nil {
		f.cancel()
		return nil, err
	}
	s.stats.SetGauge(stats.MetricQueueDepth, int64(s.queue.len()))
	return f, nil
}

// Analyze submits a job and waits for its result.
func (s *Supervisor) Analyze(ctx context.Context, job Job) (*uci.Result, error) {
	f, err := s.Submit(ctx, job)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// EnsureHealthy probes the engine with "isready". An engine that does not
// answer is restarted and the probe fails with ErrEngineUnresponsive.
func (s *Supervisor) EnsureHealthy(ctx context.Context) error {
	return s.do(ctx, requestHealth)
}

// Restart replaces the engine process. The restart counts against the
// restart budget only if the new process fails to start.
func (s *Supervisor) Restart(ctx context.Context) error {
	return s.do(ctx, requestRestart)
}

// Reset clears the restart budget and launches a fresh engine. It is the
// only way out of StatusFailed.
func (s *Supervisor) Reset(ctx context.Context) error {
	return s.do(ctx, requestReset)
}

func (s *Supervisor) do(ctx context.Context, kind requestKind) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	req := request{kind: kind, reply: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) run(ready chan<- error) {
	defer close(s.done)

	err := s.launch()
	if err != nil {
		s.fail(err)
	}
	ready <- err

	var heartbeat <-chan time.Time
	if s.opts.heartbeatInterval > 0 {
		ticker := time.NewTicker(s.opts.heartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		// Control requests and shutdown take precedence over queued work.
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case req := <-s.requests:
			req.reply <- s.handle(req.kind)
			continue
		default:
		}

		if s.status() == StatusReady {
			if f := s.queue.pop(); f != nil {
				s.stats.SetGauge(stats.MetricQueueDepth, int64(s.queue.len()))
				s.execute(f)
				continue
			}
		}

		var exited <-chan struct{}
		if s.client != nil {
			exited = s.client.Closed()
		}

		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case req := <-s.requests:
			req.reply <- s.handle(req.kind)
		case <-s.queue.ready():
		case <-heartbeat:
			if s.status() == StatusReady {
				_ = s.checkHealth()
			}
		case <-exited:
			s.recover(fmt.Errorf("%w: engine process exited", ErrEngineUnresponsive))
		}
	}
}

func (s *Supervisor) handle(kind requestKind) error {
	switch kind {
	case requestHealth:
		if s.status() == StatusFailed {
			return s.unavailable()
		}
		return s.checkHealth()

	case requestRestart:
		if s.status() == StatusFailed {
			return s.unavailable()
		}
		s.logger.Info("restarting engine on request")
		s.teardown()
		s.setStatus(StatusRestarting, nil)
		s.countRestart()
		if err := s.launch(); err != nil {
			s.recover(err)
			return err
		}
		return nil

	case requestReset:
		s.logger.Info("resetting engine")
		s.teardown()
		if s.status() != StatusFailed {
			s.setStatus(StatusRestarting, nil)
		}
		s.failures = nil
		s.mu.Lock()
		s.state.RestartCount = 0
		s.state.LastError = ""
		s.mu.Unlock()
		s.queue.reopen()
		if err := s.launch(); err != nil {
			s.fail(err)
			return err
		}
		return nil
	}
	return fmt.Errorf("engine: unknown request %d", kind)
}

// launch spawns a process and performs the handshake.
func (s *Supervisor) launch() error {
	s.setStatus(StatusStarting, nil)

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.startupTimeout)
	defer cancel()

	proc, err := s.launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineStartupFailed, err)
	}
	client := uci.NewClient(proc.Stdin(), proc.Stdout(), s.logger.Named("uci"))
	s.proc, s.client = proc, client

	id, err := client.Handshake(ctx)
	if err == nil {
		err = s.configure(client)
	}
	if err == nil {
		err = client.Ready(ctx)
	}
	if err != nil {
		s.teardown()
		return fmt.Errorf("%w: %v", ErrEngineStartupFailed, err)
	}

	s.mu.Lock()
	s.state.Identity = id
	s.state.LastHeartbeatAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("engine ready",
		zap.String("name", id.Name),
		zap.Int("pid", proc.Pid()),
	)
	s.setStatus(StatusReady, nil)
	return nil
}

func (s *Supervisor) configure(client *uci.Client) error {
	if s.opts.hashMB > 0 {
		if err := client.SetOption("Hash", strconv.Itoa(s.opts.hashMB)); err != nil {
			return err
		}
	}
	if s.opts.threads > 0 {
		if err := client.SetOption("Threads", strconv.Itoa(s.opts.threads)); err != nil {
			return err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(s.opts.engineOptions)) {
		if err := client.SetOption(name, s.opts.engineOptions[name]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) execute(f *Future) {
	if f.ctx.Err() != nil {
		f.complete(nil, ErrCanceled)
		return
	}

	s.setStatus(StatusBusy, nil)
	job := f.job

	if job.NewGame {
		err := s.client.NewGame()
		if err == nil {
			ctx, cancel := context.WithTimeout(s.ctx, s.opts.heartbeatTimeout)
			err = s.client.Ready(ctx)
			cancel()
		}
		if err != nil {
			cause := fmt.Errorf("%w: ucinewgame: %v", ErrEngineUnresponsive, err)
			f.complete(nil, cause)
			s.recover(cause)
			return
		}
	}

	limit := job.TimeLimit
	if limit <= 0 {
		limit = s.opts.defaultTimeLimit
	}
	opts := job.Options
	if opts.MoveTime <= 0 {
		opts.MoveTime = limit
	}

	ctx, cancel := context.WithCancel(f.ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	defer cancel()

	start := time.Now()
	res, err := s.client.Search(ctx, job.FEN, opts, limit+s.opts.searchGrace, s.opts.searchGrace)
	s.stats.IncCounter(stats.MetricSearches, 1)
	s.stats.ObserveHistogram(stats.MetricSearchSeconds, time.Since(start).Seconds())

	switch {
	case err == nil:
		s.setStatus(StatusReady, nil)
		f.complete(res, nil)

	case errors.Is(err, uci.ErrSearchTimeout):
		s.stats.IncCounter(stats.MetricSearchErrors, 1)
		s.setStatus(StatusReady, nil)
		f.complete(res, fmt.Errorf("%w: exceeded %s", ErrAnalysisTimeout, limit))

	case errors.Is(err, uci.ErrUnresponsive), errors.Is(err, uci.ErrClosed):
		s.stats.IncCounter(stats.MetricSearchErrors, 1)
		cause := fmt.Errorf("%w: %v", ErrEngineUnresponsive, err)
		f.complete(nil, cause)
		s.recover(cause)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.setStatus(StatusReady, nil)
		if s.ctx.Err() != nil {
			f.complete(nil, ErrClosed)
			return
		}
		f.complete(nil, fmt.Errorf("%w: %v", ErrCanceled, err))

	default:
		s.stats.IncCounter(stats.MetricSearchErrors, 1)
		s.setStatus(StatusReady, nil)
		f.complete(nil, err)
	}
}

func (s *Supervisor) checkHealth() error {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.heartbeatTimeout)
	defer cancel()

	if err := s.client.Ready(ctx); err != nil {
		if s.ctx.Err() != nil {
			return ErrClosed
		}
		s.stats.IncCounter(stats.MetricHeartbeatFailures, 1)
		cause := fmt.Errorf("%w: heartbeat: %v", ErrEngineUnresponsive, err)
		s.recover(cause)
		return cause
	}

	s.mu.Lock()
	s.state.LastHeartbeatAt = time.Now()
	s.mu.Unlock()
	return nil
}

// recover replaces a failed process until one starts or the restart
// budget is spent.
func (s *Supervisor) recover(cause error) {
	s.logger.Warn("engine failure", zap.Error(cause))
	s.teardown()

	for {
		if s.ctx.Err() != nil {
			return
		}
		if !s.allowRestart() {
			s.fail(fmt.Errorf("%d failures within %s: %w", len(s.failures), s.opts.restartWindow, cause))
			return
		}
		s.setStatus(StatusRestarting, cause)
		s.countRestart()

		err := s.launch()
		if err == nil {
			return
		}
		s.logger.Warn("engine restart failed", zap.Error(err))
		cause = err
	}
}

// allowRestart records a failure and reports whether the budget permits
// another restart.
func (s *Supervisor) allowRestart() bool {
	now := time.Now()
	cutoff := now.Add(-s.opts.restartWindow)
	s.failures = slices.DeleteFunc(s.failures, func(t time.Time) bool {
		return t.Before(cutoff)
	})
	s.failures = append(s.failures, now)
	return len(s.failures) < s.opts.maxRestarts
}

func (s *Supervisor) countRestart() {
	s.mu.Lock()
	s.state.RestartCount++
	s.mu.Unlock()
	s.stats.IncCounter(stats.MetricRestarts, 1)
}

// fail gives up on the engine. Pending and new jobs fail fast.
func (s *Supervisor) fail(cause error) {
	s.logger.Error("engine failed", zap.Error(cause))
	s.teardown()
	s.setStatus(StatusFailed, cause)

	err := fmt.Errorf("%w: %w", ErrEngineUnavailable, cause)
	for _, f := range s.queue.close(err) {
		f.complete(nil, err)
	}
	s.stats.SetGauge(stats.MetricQueueDepth, 0)
}

func (s *Supervisor) unavailable() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.LastError == "" {
		return ErrEngineUnavailable
	}
	return fmt.Errorf("%w: %s", ErrEngineUnavailable, s.state.LastError)
}

func (s *Supervisor) shutdown() {
	for _, f := range s.queue.close(ErrClosed) {
		f.complete(nil, ErrClosed)
	}
	s.teardown()
	s.setStatus(StatusStopped, nil)
	s.logger.Info("engine stopped")
}

// teardown ends the current process: "quit", then SIGTERM, then SIGKILL,
// each after the kill grace period.
func (s *Supervisor) teardown() {
	if s.proc == nil {
		return
	}
	proc, client := s.proc, s.client
	s.proc, s.client = nil, nil

	_ = client.Quit()
	if !s.waitExit(proc) {
		_ = proc.Terminate()
		if !s.waitExit(proc) {
			s.logger.Warn("killing engine", zap.Int("pid", proc.Pid()))
			_ = proc.Kill()
			s.waitExit(proc)
		}
	}
	client.Close()
}

func (s *Supervisor) waitExit(proc Process) bool {
	timer := time.NewTimer(s.opts.killGrace)
	defer timer.Stop()
	select {
	case <-proc.Exited():
		return true
	case <-timer.C:
		return false
	}
}

func (s *Supervisor) status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Status
}

func (s *Supervisor) setStatus(next Status, cause error) {
	s.mu.Lock()
	prev := s.state.Status
	if prev == next {
		s.mu.Unlock()
		return
	}
	if !canTransition(prev, next) {
		s.logger.DPanic("invalid engine transition",
			zap.Stringer("from", prev),
			zap.Stringer("to", next),
		)
	}
	s.state.Status = next
	if cause != nil {
		s.state.LastError = cause.Error()
	}
	snapshot := s.state
	s.mu.Unlock()

	if isBusyFlip(prev, next) {
		return
	}
	s.logger.Info("engine status",
		zap.Stringer("from", prev),
		zap.Stringer("to", next),
	)

	snapshot.QueueDepth = s.queue.len()
	s.listenersMu.Lock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(snapshot)
	}
}

func isBusyFlip(prev, next Status) bool {
	return (prev == StatusReady && next == StatusBusy) || (prev == StatusBusy && next == StatusReady)
}
