package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mathchange/backend/pkg/models"
)

// scoreColumns is the column list every score query selects, in the order
// scanScore expects.
const scoreColumns = `id, username, score, correct_count, error_count, avg_time, played_at, category, difficulty`

// DefaultScoreLimit bounds score listings when the caller does not give a
// limit of its own.
const DefaultScoreLimit = 50

// ScoreStore persists [models.ScoreRecord] rows. Records are append-only.
//
// ScoreStore is safe for concurrent use by multiple goroutines.
type ScoreStore struct {
	pool   Pool
	tracer trace.Tracer
}

// NewScoreStore creates a ScoreStore backed by pool.
func NewScoreStore(pool Pool) *ScoreStore {
	return &ScoreStore{
		pool:   pool,
		tracer: otel.Tracer(tracerName),
	}
}

// Insert persists one finished round.
func (s *ScoreStore) Insert(ctx context.Context, rec *models.ScoreRecord) error {
	const sql = `INSERT INTO scores (id, username, score, correct_count, error_count, avg_time, played_at, category, difficulty)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	ctx, span := startSpan(ctx, s.tracer, "ScoreStore.Insert", sql)

	_, err := s.pool.Exec(ctx, sql,
		rec.ID, rec.Username, rec.Score, rec.CorrectCount, rec.ErrorCount,
		rec.AvgTime, rec.Date, rec.Category, rec.Difficulty,
	)
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "postgres: score insert failed")
	}
	return nil
}

// ListByUser returns the given player's rounds, most recent first.
func (s *ScoreStore) ListByUser(ctx context.Context, username string, limit int) ([]*models.ScoreRecord, error) {
	const sql = `SELECT ` + scoreColumns + ` FROM scores WHERE username = $1 ORDER BY played_at DESC LIMIT $2`

	if limit <= 0 {
		limit = DefaultScoreLimit
	}
	ctx, span := startSpan(ctx, s.tracer, "ScoreStore.ListByUser", sql)

	rows, err := s.pool.Query(ctx, sql, username, limit)
	if err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "postgres: score list failed")
	}
	defer rows.Close()

	recs, err := collectScores(rows)
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// TopScores returns the highest-scoring rounds across all players, best
// first. It feeds the leaderboard; callers normally read through the
// leaderboard cache instead of hitting this directly.
func (s *ScoreStore) TopScores(ctx context.Context, limit int) ([]*models.ScoreRecord, error) {
	const sql = `SELECT ` + scoreColumns + ` FROM scores ORDER BY score DESC, played_at ASC LIMIT $1`

	if limit <= 0 {
		limit = DefaultScoreLimit
	}
	ctx, span := startSpan(ctx, s.tracer, "ScoreStore.TopScores", sql)

	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "postgres: top scores query failed")
	}
	defer rows.Close()

	recs, err := collectScores(rows)
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// collectScores drains rows into score records.
func collectScores(rows pgx.Rows) ([]*models.ScoreRecord, error) {
	var recs []*models.ScoreRecord
	for rows.Next() {
		var rec models.ScoreRecord
		err := rows.Scan(
			&rec.ID, &rec.Username, &rec.Score, &rec.CorrectCount, &rec.ErrorCount,
			&rec.AvgTime, &rec.Date, &rec.Category, &rec.Difficulty,
		)
		if err != nil {
			return nil, wrapError(err, "postgres: score scan failed")
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(err, "postgres: score iteration failed")
	}
	return recs, nil
}
