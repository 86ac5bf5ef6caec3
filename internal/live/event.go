package live

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/discochess/coach/internal/engine"
	"github.com/discochess/coach/internal/uci"
)

// EventType names a pushed event.
type EventType string

const (
	EventConnectionEstablished EventType = "connection_established"
	EventAnalysisStarted       EventType = "analysis_started"
	EventAnalysisComplete      EventType = "analysis_complete"
	EventAnalysisError         EventType = "analysis_error"
	EventSettingsUpdated       EventType = "settings_updated"
	EventEngineStatus          EventType = "engine_status"
	EventHeartbeat             EventType = "heartbeat"
	EventSessionClosed         EventType = "session_closed"
)

// Event is one pushed message.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(typ EventType, data any) Event {
	return Event{Type: typ, Data: data, Timestamp: time.Now().UTC()}
}

// ConnectionData is the payload of connection_established.
type ConnectionData struct {
	SessionID string       `json:"sessionId"`
	Settings  Settings     `json:"settings"`
	Engine    engine.State `json:"engine"`
}

// StartedData is the payload of analysis_started.
type StartedData struct {
	RequestID string   `json:"requestId"`
	FEN       string   `json:"fen"`
	Settings  Settings `json:"settings"`
}

// CompleteData is the payload of analysis_complete.
type CompleteData struct {
	RequestID string      `json:"requestId"`
	Result    *uci.Result `json:"result"`
}

// ErrorData is the payload of analysis_error.
type ErrorData struct {
	RequestID string `json:"requestId"`
	FEN       string `json:"fen"`
	Message   string `json:"message"`
}

// ClosedData is the payload of session_closed.
type ClosedData struct {
	Reason string `json:"reason"`
}

// WriteEvent writes ev as a server-sent event. The data line carries the
// whole event as JSON.
func WriteEvent(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

// WriteRetry tells the client how long to wait before reconnecting.
func WriteRetry(w io.Writer, d time.Duration) error {
	_, err := fmt.Fprintf(w, "retry: %d\n\n", d.Milliseconds())
	return err
}

// Received is an event read from a stream. Data is left encoded.
type Received struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode unmarshals the event data into v.
func (r Received) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Reader reads server-sent events written by WriteEvent.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Reader{scanner: scanner}
}

// Next returns the next event. Comments, retry hints and frames without
// data are skipped. It returns io.EOF at the end of the stream.
func (r *Reader) Next() (Received, error) {
	var data bytes.Buffer
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev Received
			if err := json.Unmarshal(data.Bytes(), &ev); err != nil {
				return Received{}, fmt.Errorf("decoding event: %w", err)
			}
			return ev, nil
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := r.scanner.Err(); err != nil {
		return Received{}, err
	}
	return Received{}, io.EOF
}
