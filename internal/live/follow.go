package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// ErrConnectionLost indicates the stream could not be re-established
// within the backoff attempt budget.
var ErrConnectionLost = errors.New("live: connection lost")

// Follower consumes a session's event stream and reconnects with
// backoff when the transport drops.
type Follower struct {
	Client  *http.Client
	Backoff Backoff
	Logger  *zap.Logger
}

// NewFollower returns a Follower with the default client and backoff.
func NewFollower(logger *zap.Logger) *Follower {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Follower{
		Client:  http.DefaultClient,
		Backoff: DefaultBackoff(),
		Logger:  logger,
	}
}

// Follow calls fn for every event of the stream at url until the session
// closes, fn fails or ctx is done. Dropped connections are retried; the
// attempt budget resets whenever a connection delivers events. An unknown
// or closed session ends following immediately.
func (f *Follower) Follow(ctx context.Context, url string, fn func(Received) error) error {
	failures := 0
	for {
		delivered, err := f.stream(ctx, url, fn)
		if err == nil {
			return nil
		}
		var he handlerError
		switch {
		case errors.As(err, &he):
			return he.err
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionClosed):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}

		if delivered {
			failures = 0
		}
		if f.Backoff.Exhausted(failures) {
			return fmt.Errorf("%w after %d attempts: %w", ErrConnectionLost, failures, err)
		}
		f.Logger.Warn("event stream dropped, reconnecting",
			zap.String("url", url),
			zap.Int("attempt", failures+1),
			zap.Duration("delay", f.Backoff.Delay(failures)),
			zap.Error(err),
		)
		if err := f.Backoff.Wait(ctx, failures); err != nil {
			return err
		}
		failures++
	}
}

type handlerError struct{ err error }

func (e handlerError) Error() string { return e.err.Error() }

// stream reads one connection. It returns nil once session_closed arrives
// and reports whether any event was delivered.
func (f *Follower) stream(ctx context.Context, url string, fn func(Received) error) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, handlerError{err}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := f.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, ErrSessionNotFound
	case http.StatusGone:
		return false, ErrSessionClosed
	default:
		return false, fmt.Errorf("unexpected status %s", resp.Status)
	}

	delivered := false
	reader := NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return delivered, io.ErrUnexpectedEOF
		}
		if err != nil {
			return delivered, err
		}
		delivered = true
		if err := fn(ev); err != nil {
			return delivered, handlerError{err}
		}
		if ev.Type == EventSessionClosed {
			return delivered, nil
		}
	}
}
