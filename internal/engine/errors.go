package engine

import "errors"

// Sentinel errors for the engine error taxonomy.
var (
	// ErrEngineStartupFailed indicates the engine process could not be
	// spawned or did not complete the UCI handshake in time. The engine
	// stays failed until Reset is called.
	ErrEngineStartupFailed = errors.New("engine: startup failed")

	// ErrEngineUnresponsive indicates the engine stopped answering. It
	// triggers a supervised restart.
	ErrEngineUnresponsive = errors.New("engine: unresponsive")

	// ErrEngineUnavailable indicates restarts are exhausted. Callers may
	// retry once the engine has been reset.
	ErrEngineUnavailable = errors.New("engine: unavailable")

	// ErrAnalysisTimeout indicates a search exceeded its time bound and
	// was aborted.
	ErrAnalysisTimeout = errors.New("engine: analysis timed out")

	// ErrSuperseded indicates a queued live job was replaced by a newer
	// request from the same session.
	ErrSuperseded = errors.New("engine: superseded by a newer request")

	// ErrCanceled indicates the job was canceled before it produced a result.
	ErrCanceled = errors.New("engine: job canceled")

	// ErrClosed indicates the supervisor has been closed.
	ErrClosed = errors.New("engine: supervisor closed")

	// ErrNotStarted indicates Start has not been called.
	ErrNotStarted = errors.New("engine: supervisor not started")
)
