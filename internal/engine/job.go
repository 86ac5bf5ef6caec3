package engine

import (
	"context"
	"sync"
	"time"

	"github.com/discochess/coach/internal/uci"
)

// Origin identifies who submitted a job. Live jobs are served before
// batch jobs.
type Origin int

const (
	OriginBatch Origin = iota
	OriginLive
)

func (o Origin) String() string {
	if o == OriginLive {
		return "live"
	}
	return "batch"
}

// Job is one position to analyze.
type Job struct {
	// ID identifies the job. Submit assigns one if empty.
	ID string

	// FEN is the position to analyze.
	FEN string

	// Options control the search.
	Options uci.SearchOptions

	// TimeLimit bounds the search. The supervisor adds its grace period on
	// top before presuming the engine hung. Zero uses the default limit.
	TimeLimit time.Duration

	Origin Origin

	// SessionID groups live jobs. Submitting a live job discards queued
	// jobs of the same session.
	SessionID string

	// NewGame sends "ucinewgame" before the search.
	NewGame bool
}

// Future is the pending result of a submitted job.
type Future struct {
	job    Job
	ctx    context.Context
	cancel context.CancelFunc

	once   sync.Once
	done   chan struct{}
	result *uci.Result
	err    error

	// dequeue removes the future from the queue if it has not started.
	dequeue func(*Future) bool
}

func newFuture(ctx context.Context, job Job) *Future {
	ctx, cancel := context.WithCancel(ctx)
	return &Future{
		job:    job,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Job returns the submitted job.
func (f *Future) Job() Job {
	return f.job
}

// Done is closed when the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job finishes or ctx is done. Returning because of
// ctx does not cancel the job.
func (f *Future) Wait(ctx context.Context) (*uci.Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel aborts the job. A queued job is dropped and fails with
// ErrCanceled; a running search is stopped as soon as the engine
// acknowledges.
func (f *Future) Cancel() {
	f.cancel()
	if f.dequeue != nil && f.dequeue(f) {
		f.complete(nil, ErrCanceled)
	}
}

func (f *Future) complete(res *uci.Result, err error) {
	f.once.Do(func() {
		f.result = res
		f.err = err
		close(f.done)
		f.cancel()
	})
}
