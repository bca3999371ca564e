package postgres

import (
	"context"

	mcerr "github.com/mathchange/backend/pkg/errors"
)

// schema is the DDL for the tables this package owns. Statements are
// idempotent so EnsureSchema can run on every startup.
//
// The unique index on accounts.email is load-bearing: the identity
// resolver's first-contact race recovery depends on concurrent inserts for
// the same email failing with a unique violation.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id             TEXT PRIMARY KEY,
    email          TEXT NOT NULL UNIQUE,
    username       TEXT NOT NULL,
    role           TEXT NOT NULL DEFAULT 'USER',
    status         TEXT NOT NULL DEFAULT 'ACTIVE',
    created_at     TIMESTAMPTZ NOT NULL,
    last_login     TIMESTAMPTZ,
    avatar_url     TEXT NOT NULL DEFAULT '',
    settings       JSONB NOT NULL DEFAULT '{}',
    unlocked_level INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS scores (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL,
    score         INTEGER NOT NULL,
    correct_count INTEGER NOT NULL DEFAULT 0,
    error_count   INTEGER NOT NULL DEFAULT 0,
    avg_time      DOUBLE PRECISION NOT NULL DEFAULT 0,
    played_at     TIMESTAMPTZ NOT NULL,
    category      TEXT NOT NULL DEFAULT '',
    difficulty    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS scores_username_idx ON scores (username);
CREATE INDEX IF NOT EXISTS scores_score_idx ON scores (score DESC);
`

// EnsureSchema creates the tables and indexes this package uses if they do
// not exist yet.
func EnsureSchema(ctx context.Context, pool Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return mcerr.Wrap(err, mcerr.CodeInternalDatabase, "postgres: failed to apply schema")
	}
	return nil
}
