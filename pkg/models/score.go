package models

import (
	"time"

	"github.com/google/uuid"
)

// ScoreRecord captures the outcome of one completed game round. Records are
// append-only: the service inserts them and aggregates them for the
// leaderboard but never updates one in place.
type ScoreRecord struct {
	// ID is the locally generated record identifier.
	ID string `json:"id"`

	// Username identifies the player the round belongs to. Scores key on
	// username rather than account id because the leaderboard displays
	// usernames directly.
	Username string `json:"user"`

	// Score is the final point total for the round.
	Score int `json:"score"`

	// CorrectCount is the number of correctly answered questions.
	CorrectCount int `json:"correctCount"`

	// ErrorCount is the number of incorrectly answered questions.
	ErrorCount int `json:"errorCount"`

	// AvgTime is the mean answer time in seconds.
	AvgTime float64 `json:"avgTime"`

	// Date records when the round finished.
	Date time.Time `json:"date"`

	// Category is the question category played, if any.
	Category string `json:"category,omitempty"`

	// Difficulty is the difficulty tier played, if any.
	Difficulty string `json:"difficulty,omitempty"`
}

// NewScoreRecord creates a ScoreRecord with a fresh id and the given round
// outcome.
func NewScoreRecord(username string, score, correct, errs int, avgTime float64, date time.Time) *ScoreRecord {
	return &ScoreRecord{
		ID:           uuid.NewString(),
		Username:     username,
		Score:        score,
		CorrectCount: correct,
		ErrorCount:   errs,
		AvgTime:      avgTime,
		Date:         date.UTC(),
	}
}
