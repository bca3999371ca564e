package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mathchange/backend/pkg/auth"
	mcerr "github.com/mathchange/backend/pkg/errors"
	"github.com/mathchange/backend/pkg/models"
)

// maxScoreBytes caps the score submission body.
const maxScoreBytes = 16 << 10

// defaultTopLimit is the leaderboard size when the client gives none.
const defaultTopLimit = 10

// scoreSubmission is the body of a score POST. The username comes from the
// authenticated account, never from the body, so players cannot submit
// scores for each other.
type scoreSubmission struct {
	Score        int     `json:"score"`
	CorrectCount int     `json:"correctCount"`
	ErrorCount   int     `json:"errorCount"`
	AvgTime      float64 `json:"avgTime"`
	Category     string  `json:"category"`
	Difficulty   string  `json:"difficulty"`
}

// handleSubmitScore records one finished round for the caller and
// invalidates the cached leaderboard.
func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	acct := auth.MustAccountFromContext(r.Context())

	var sub scoreSubmission
	if err := decodeJSON(r, &sub, maxScoreBytes); err != nil {
		writeError(w, r, err)
		return
	}
	if sub.Score < 0 || sub.CorrectCount < 0 || sub.ErrorCount < 0 || sub.AvgTime < 0 {
		writeError(w, r, mcerr.Validation("api: score fields must not be negative"))
		return
	}

	rec := models.NewScoreRecord(acct.Username, sub.Score, sub.CorrectCount, sub.ErrorCount, sub.AvgTime, time.Now())
	rec.Category = sub.Category
	rec.Difficulty = sub.Difficulty

	if err := s.scores.Insert(r.Context(), rec); err != nil {
		writeError(w, r, err)
		return
	}
	if s.board != nil {
		s.board.Invalidate(r.Context())
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleListScores returns the caller's own rounds, most recent first.
func (s *Server) handleListScores(w http.ResponseWriter, r *http.Request) {
	acct := auth.MustAccountFromContext(r.Context())

	limit, err := queryLimit(r, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	recs, err := s.scores.ListByUser(r.Context(), acct.Username, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*models.ScoreRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleTopScores returns the global leaderboard, served through the
// Redis cache when one is configured.
func (s *Server) handleTopScores(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultTopLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var recs []*models.ScoreRecord
	if s.board != nil {
		recs, err = s.board.Top(r.Context(), limit, s.scores.TopScores)
	} else {
		recs, err = s.scores.TopScores(r.Context(), limit)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*models.ScoreRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// queryLimit parses the optional "limit" query parameter.
func queryLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, mcerr.Newf(mcerr.CodeValidation, "api: invalid limit %q", raw)
	}
	return limit, nil
}
