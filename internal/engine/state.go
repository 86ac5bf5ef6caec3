package engine

import (
	"fmt"
	"time"

	"github.com/discochess/coach/internal/uci"
)

// Status is the lifecycle status of the engine process.
type Status int

const (
	StatusStarting Status = iota
	StatusReady
	StatusBusy
	StatusRestarting
	StatusFailed
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusReady:
		return "ready"
	case StatusBusy:
		return "busy"
	case StatusRestarting:
		return "restarting"
	case StatusFailed:
		return "failed"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// transitions lists the allowed successor statuses. A restarted process
// always passes through Starting, and therefore a fresh handshake, before
// it is Ready again.
var transitions = map[Status][]Status{
	StatusStarting:   {StatusReady, StatusRestarting, StatusFailed, StatusStopped},
	StatusReady:      {StatusBusy, StatusRestarting, StatusFailed, StatusStopped},
	StatusBusy:       {StatusReady, StatusRestarting, StatusFailed, StatusStopped},
	StatusRestarting: {StatusStarting, StatusFailed, StatusStopped},
	StatusFailed:     {StatusStarting, StatusStopped},
}

func canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// State is a snapshot of the supervised engine.
type State struct {
	Status          Status       `json:"status"`
	RestartCount    int          `json:"restartCount"`
	LastHeartbeatAt time.Time    `json:"lastHeartbeatAt"`
	LastError       string       `json:"lastError,omitempty"`
	Identity        uci.Identity `json:"identity"`
	QueueDepth      int          `json:"queueDepth"`
}

// Available reports whether jobs can currently be accepted.
func (s State) Available() bool {
	return s.Status != StatusFailed && s.Status != StatusStopped
}

func (s State) String() string {
	return fmt.Sprintf("%s (restarts=%d)", s.Status, s.RestartCount)
}
