package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/discochess/coach/internal/live"
)

type sessionResponse struct {
	SessionID string        `json:"sessionId"`
	Settings  live.Settings `json:"settings"`
}

func (s *server) createSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.backend.Sessions().Create()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: info.ID, Settings: info.Settings})
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

// sessionID takes the session from the query string, falling back to the
// decoded body.
func sessionID(r *http.Request, fromBody string) (string, error) {
	if id := r.URL.Query().Get("sessionId"); id != "" {
		return id, nil
	}
	if fromBody != "" {
		return fromBody, nil
	}
	return "", badRequest("sessionId is required")
}

func (s *server) closeSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if r.URL.Query().Get("sessionId") == "" {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	id, err := sessionID(r, req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.backend.Sessions().CloseSession(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type liveAnalyzeRequest struct {
	SessionID string `json:"sessionId"`
	FEN       string `json:"fen"`
	Depth     *int   `json:"depth,omitempty"`
	TimeLimit *int   `json:"timeLimit,omitempty"`
	MultiPV   *int   `json:"multiPv,omitempty"`
}

type liveAnalyzeResponse struct {
	RequestID string `json:"requestId"`
}

func (s *server) analyzeLive(w http.ResponseWriter, r *http.Request) {
	var req liveAnalyzeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := sessionID(r, req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.FEN == "" {
		s.writeError(w, r, badRequest("fen is required"))
		return
	}

	requestID, err := s.backend.Sessions().Analyze(id, req.FEN, live.Overrides{
		Depth:       req.Depth,
		TimeLimitMs: req.TimeLimit,
		MultiPV:     req.MultiPV,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, liveAnalyzeResponse{RequestID: requestID})
}

type settingsRequest struct {
	SessionID string `json:"sessionId"`
	live.Overrides
}

func (s *server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := sessionID(r, req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	settings, err := s.backend.Sessions().UpdateSettings(id, req.Overrides)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *server) legalMoves(w http.ResponseWriter, r *http.Request) {
	fen := r.URL.Query().Get("fen")
	if fen == "" {
		s.writeError(w, r, badRequest("fen is required"))
		return
	}
	moves, err := s.backend.LegalMoves(fen)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, moves)
}

// stream pushes the session's events until the session closes or the
// client goes away. A disconnect leaves the session in place.
func (s *server) stream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	sub, err := s.backend.Sessions().Subscribe(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := live.WriteRetry(w, s.opts.retry); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		s.logger.Warn("streaming unsupported", zap.Error(err))
		return
	}

	send := func(ev live.Event) bool {
		if err := live.WriteEvent(w, ev); err != nil {
			s.logger.Debug("stream write failed", zap.String("session", id), zap.Error(err))
			return false
		}
		return rc.Flush() == nil
	}

	ctx := r.Context()
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return
		}
		if ctx.Err() != nil || !send(ev) {
			// Undelivered; the next subscriber gets it.
			sub.Unread(ev)
			return
		}
	}
}
