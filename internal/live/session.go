package live

import (
	"sync"
	"time"

	"github.com/discochess/coach/internal/engine"
)

// State is the lifecycle state of a session.
type State int

const (
	StateCreated State = iota
	StateConnected
	StateIdle
	StateAnalyzing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnected:
		return "connected"
	case StateIdle:
		return "idle"
	case StateAnalyzing:
		return "analyzing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Settings are the search parameters of a session.
type Settings struct {
	Depth       int `json:"depth" yaml:"depth"`
	TimeLimitMs int `json:"timeLimitMs" yaml:"time_limit_ms"`
	MultiPV     int `json:"multiPv" yaml:"multipv"`
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{Depth: 20, TimeLimitMs: 5000, MultiPV: 3}
}

// TimeLimit returns the time limit as a duration.
func (s Settings) TimeLimit() time.Duration {
	return time.Duration(s.TimeLimitMs) * time.Millisecond
}

func (s Settings) withDefaults(d Settings) Settings {
	if s.Depth <= 0 {
		s.Depth = d.Depth
	}
	if s.TimeLimitMs <= 0 {
		s.TimeLimitMs = d.TimeLimitMs
	}
	if s.MultiPV <= 0 {
		s.MultiPV = d.MultiPV
	}
	return s
}

// Overrides change some settings. Nil fields keep the current value.
type Overrides struct {
	Depth       *int `json:"depth,omitempty"`
	TimeLimitMs *int `json:"timeLimitMs,omitempty"`
	MultiPV     *int `json:"multiPv,omitempty"`
}

// Apply returns s with the non-nil, positive overrides applied.
func (o Overrides) Apply(s Settings) Settings {
	if o.Depth != nil && *o.Depth > 0 {
		s.Depth = *o.Depth
	}
	if o.TimeLimitMs != nil && *o.TimeLimitMs > 0 {
		s.TimeLimitMs = *o.TimeLimitMs
	}
	if o.MultiPV != nil && *o.MultiPV > 0 {
		s.MultiPV = *o.MultiPV
	}
	return s
}

// Info is a snapshot of a session.
type Info struct {
	ID             string    `json:"sessionId"`
	State          State     `json:"state"`
	Settings       Settings  `json:"settings"`
	Subscribed     bool      `json:"subscribed"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

type session struct {
	id        string
	createdAt time.Time

	mu           sync.Mutex
	state        State
	settings     Settings
	lastActivity time.Time

	// queue holds undelivered events, oldest first. It outlives
	// subscribers so a reconnecting client picks up where the previous one
	// left off.
	queue      []Event
	bufferSize int

	// wake is closed and replaced whenever the queue or the subscriber
	// changes.
	wake chan struct{}

	// subscriber is the only consumer allowed to take events. It stays
	// set after the session closes so the remaining events can be drained.
	subscriber *Subscription

	// generation identifies the latest analysis request. Results of older
	// requests are discarded.
	generation uint64
	inflight   *engine.Future
	requestID  string
}

func (s *session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:             s.id,
		State:          s.state,
		Settings:       s.settings,
		Subscribed:     s.subscriber != nil,
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActivity,
	}
}

// emit queues ev, dropping the oldest buffered events when full. It
// reports how many events were dropped. s.mu must be held.
func (s *session) emit(ev Event) int {
	s.queue = append(s.queue, ev)
	dropped := 0
	if over := len(s.queue) - s.bufferSize; over > 0 {
		clear(s.queue[:over])
		s.queue = s.queue[over:]
		dropped = over
	}
	s.notify()
	return dropped
}

// unread puts ev back at the head of the queue. It reports false when the
// queue is full, in which case ev, being the oldest, is dropped. s.mu must
// be held.
func (s *session) unread(ev Event) bool {
	if len(s.queue) >= s.bufferSize {
		return false
	}
	s.queue = append([]Event{ev}, s.queue...)
	s.notify()
	return true
}

// notify wakes every goroutine waiting on the session. s.mu must be held.
func (s *session) notify() {
	close(s.wake)
	s.wake = make(chan struct{})
}
