package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/coach"
	"github.com/discochess/coach/internal/engine"
	"github.com/discochess/coach/internal/live"
)

// errBadRequest marks malformed requests.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, coach.ErrInvalidPosition),
		errors.Is(err, coach.ErrInvalidPGN),
		errors.Is(err, coach.ErrIllegalMove):
		return http.StatusBadRequest
	case errors.Is(err, coach.ErrGameNotFound),
		errors.Is(err, coach.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, coach.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, coach.ErrAnalysisInProgress):
		return http.StatusConflict
	case errors.Is(err, coach.ErrAnalysisTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, coach.ErrEngineUnavailable),
		errors.Is(err, coach.ErrEngineStartupFailed),
		errors.Is(err, coach.ErrEngineUnresponsive),
		errors.Is(err, engine.ErrClosed),
		errors.Is(err, engine.ErrNotStarted),
		errors.Is(err, live.ErrClosed),
		errors.Is(err, coach.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the flusher underneath.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
