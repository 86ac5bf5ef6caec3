package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/discochess/coach"
	"github.com/discochess/coach/internal/review"
)

type importRequest struct {
	PGN    string `json:"pgn"`
	Source string `json:"source"`
}

func (s *server) importGame(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.PGN) == "" {
		s.writeError(w, r, badRequest("pgn is required"))
		return
	}
	g, err := s.backend.ImportGame(r.Context(), req.PGN, req.Source)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *server) game(w http.ResponseWriter, r *http.Request) {
	g, err := s.backend.Game(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// analyzeRequest leaves the window fields nil when they are omitted, so
// the configured defaults apply.
type analyzeRequest struct {
	Depth            int  `json:"depth"`
	SkipOpeningMoves *int `json:"skipOpeningMoves,omitempty"`
	MaxPositions     *int `json:"maxPositions,omitempty"`
	MultiPV          int  `json:"multiPv"`
	TimeLimitMs      int  `json:"timeLimitMs"`
}

func negative(n *int) bool { return n != nil && *n < 0 }

func (req analyzeRequest) validate() error {
	if req.Depth < 0 || negative(req.SkipOpeningMoves) || negative(req.MaxPositions) || req.MultiPV < 0 || req.TimeLimitMs < 0 {
		return badRequest("options must not be negative")
	}
	return nil
}

func (s *server) analyzeGame(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.backend.AnalyzeGame(r.Context(), r.PathValue("id"), review.Options{
		Depth:            req.Depth,
		SkipOpeningMoves: req.SkipOpeningMoves,
		MaxPositions:     req.MaxPositions,
		MultiPV:          req.MultiPV,
		TimeLimit:        time.Duration(req.TimeLimitMs) * time.Millisecond,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *server) analysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.backend.Analysis(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *server) analysisStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.AnalysisStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) deleteAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteAnalysis(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type evaluateRequest struct {
	FEN         string `json:"fen"`
	Depth       int    `json:"depth"`
	MultiPV     int    `json:"multiPv"`
	TimeLimitMs int    `json:"timeLimitMs"`
}

type evaluateResponse struct {
	FEN       string   `json:"fen"`
	Score     string   `json:"score"`
	BestMove  string   `json:"bestMove,omitempty"`
	Depth     int      `json:"depth"`
	ElapsedMs int64    `json:"elapsedMs"`
	Complete  bool     `json:"complete"`
	Lines     []pvJSON `json:"lines"`
}

type pvJSON struct {
	Score      string `json:"score"`
	Centipawns int    `json:"centipawns"`
	Mate       *int   `json:"mate,omitempty"`
	Line       string `json:"line"`
}

func (s *server) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.FEN == "" {
		s.writeError(w, r, badRequest("fen is required"))
		return
	}
	eval, err := s.backend.Evaluate(r.Context(), req.FEN, coach.EvalOptions{
		Depth:     req.Depth,
		MultiPV:   req.MultiPV,
		TimeLimit: time.Duration(req.TimeLimitMs) * time.Millisecond,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := evaluateResponse{
		FEN:       eval.FEN,
		Score:     eval.Score(),
		BestMove:  eval.BestMove,
		Depth:     eval.Depth,
		ElapsedMs: eval.Elapsed.Milliseconds(),
		Complete:  eval.Complete,
		Lines:     make([]pvJSON, len(eval.Lines)),
	}
	for i, pv := range eval.Lines {
		resp.Lines[i] = pvJSON{Score: pv.Score(), Centipawns: pv.Centipawns, Mate: pv.Mate, Line: pv.Line()}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) engineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.EngineStatus())
}

func (s *server) resetEngine(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.ResetEngine(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.backend.EngineStatus())
}
