package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	mcerr "github.com/mathchange/backend/pkg/errors"
	"github.com/mathchange/backend/pkg/models"
)

// accountColumns is the column list every account query selects, in the
// order scanAccount expects.
const accountColumns = `id, email, username, role, status, created_at, last_login, avatar_url, settings, unlocked_level`

// AccountStore persists [models.Account] records. It satisfies the
// identity resolver's store interface: FindByEmail returns an NF-coded
// error on a miss, and Insert returns a CONF-coded error when the email is
// already taken.
//
// AccountStore is safe for concurrent use by multiple goroutines.
type AccountStore struct {
	pool   Pool
	tracer trace.Tracer
}

// NewAccountStore creates an AccountStore backed by pool.
func NewAccountStore(pool Pool) *AccountStore {
	return &AccountStore{
		pool:   pool,
		tracer: otel.Tracer(tracerName),
	}
}

// FindByEmail returns the account whose email matches exactly, or an error
// with code [mcerr.CodeNotFoundAccount] when none does.
func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	ctx, span := startSpan(ctx, s.tracer, "AccountStore.FindByEmail",
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`)

	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	acct, err := scanAccount(row)
	finishSpan(span, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mcerr.Newf(mcerr.CodeNotFoundAccount, "postgres: no account with email %q", email)
		}
		return nil, wrapError(err, "postgres: account lookup failed")
	}
	return acct, nil
}

// FindByID returns the account with the given id, or an error with code
// [mcerr.CodeNotFoundAccount] when none exists.
func (s *AccountStore) FindByID(ctx context.Context, id string) (*models.Account, error) {
	ctx, span := startSpan(ctx, s.tracer, "AccountStore.FindByID",
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`)

	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	acct, err := scanAccount(row)
	finishSpan(span, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mcerr.Newf(mcerr.CodeNotFoundAccount, "postgres: no account with id %q", id)
		}
		return nil, wrapError(err, "postgres: account lookup failed")
	}
	return acct, nil
}

// Insert persists a new account. When the email is already registered the
// returned error carries [mcerr.CodeConflictDuplicateEmail]; the identity
// resolver recovers from that by re-reading the winning row.
func (s *AccountStore) Insert(ctx context.Context, acct *models.Account) (*models.Account, error) {
	const sql = `INSERT INTO accounts (id, email, username, role, status, created_at, last_login, avatar_url, settings, unlocked_level)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	ctx, span := startSpan(ctx, s.tracer, "AccountStore.Insert", sql)

	_, err := s.pool.Exec(ctx, sql,
		acct.ID, acct.Email, acct.Username, string(acct.Role), string(acct.Status),
		acct.CreatedAt, acct.LastLogin, acct.AvatarURL, acct.Settings, acct.UnlockedLevel,
	)
	finishSpan(span, err)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, mcerr.Wrapf(err, mcerr.CodeConflictDuplicateEmail,
				"postgres: email %q is already registered", acct.Email)
		}
		return nil, wrapError(err, "postgres: account insert failed")
	}
	return acct, nil
}

// Upsert inserts the account or, when the email already exists, updates the
// mutable fields (username, settings, unlocked level, avatar) of the
// existing row. Role, status, and created_at of an existing row are
// untouched; those change through dedicated admin paths, not through a
// client-driven save. Returns the stored row.
func (s *AccountStore) Upsert(ctx context.Context, acct *models.Account) (*models.Account, error) {
	const sql = `INSERT INTO accounts (id, email, username, role, status, created_at, last_login, avatar_url, settings, unlocked_level)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (email) DO UPDATE SET
    username = EXCLUDED.username,
    avatar_url = EXCLUDED.avatar_url,
    settings = EXCLUDED.settings,
    unlocked_level = EXCLUDED.unlocked_level
RETURNING ` + accountColumns

	ctx, span := startSpan(ctx, s.tracer, "AccountStore.Upsert", sql)

	row := s.pool.QueryRow(ctx, sql,
		acct.ID, acct.Email, acct.Username, string(acct.Role), string(acct.Status),
		acct.CreatedAt, acct.LastLogin, acct.AvatarURL, acct.Settings, acct.UnlockedLevel,
	)
	stored, err := scanAccount(row)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "postgres: account upsert failed")
	}
	return stored, nil
}

// List returns all accounts ordered by creation time, newest first.
func (s *AccountStore) List(ctx context.Context) ([]*models.Account, error) {
	const sql = `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC`

	ctx, span := startSpan(ctx, s.tracer, "AccountStore.List", sql)

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "postgres: account list failed")
	}
	defer rows.Close()

	var accts []*models.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			finishSpan(span, err)
			return nil, wrapError(err, "postgres: account scan failed")
		}
		accts = append(accts, acct)
	}
	finishSpan(span, rows.Err())
	if err := rows.Err(); err != nil {
		return nil, wrapError(err, "postgres: account list failed")
	}
	return accts, nil
}

// TouchLastLogin records the most recent successful identity resolution
// for the account.
func (s *AccountStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const sql = `UPDATE accounts SET last_login = $2 WHERE id = $1`

	ctx, span := startSpan(ctx, s.tracer, "AccountStore.TouchLastLogin", sql)

	tag, err := s.pool.Exec(ctx, sql, id, at)
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "postgres: last login update failed")
	}
	if tag.RowsAffected() == 0 {
		return mcerr.Newf(mcerr.CodeNotFoundAccount, "postgres: no account with id %q", id)
	}
	return nil
}

// SetAvatarURL points the account at its uploaded avatar object.
func (s *AccountStore) SetAvatarURL(ctx context.Context, id, url string) error {
	const sql = `UPDATE accounts SET avatar_url = $2 WHERE id = $1`

	ctx, span := startSpan(ctx, s.tracer, "AccountStore.SetAvatarURL", sql)

	tag, err := s.pool.Exec(ctx, sql, id, url)
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "postgres: avatar update failed")
	}
	if tag.RowsAffected() == 0 {
		return mcerr.Newf(mcerr.CodeNotFoundAccount, "postgres: no account with id %q", id)
	}
	return nil
}

// SetStatus changes the account standing. Used by the admin moderation
// path to ban and unban players.
func (s *AccountStore) SetStatus(ctx context.Context, id string, status models.Status) error {
	if !status.Valid() {
		return mcerr.Newf(mcerr.CodeValidation, "postgres: invalid account status %q", status)
	}
	const sql = `UPDATE accounts SET status = $2 WHERE id = $1`

	ctx, span := startSpan(ctx, s.tracer, "AccountStore.SetStatus", sql)

	tag, err := s.pool.Exec(ctx, sql, id, string(status))
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "postgres: status update failed")
	}
	if tag.RowsAffected() == 0 {
		return mcerr.Newf(mcerr.CodeNotFoundAccount, "postgres: no account with id %q", id)
	}
	return nil
}

// scanAccount reads one account row in accountColumns order. Works for
// both pgx.Row and pgx.Rows.
func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		acct      models.Account
		role      string
		status    string
		lastLogin *time.Time
	)
	err := row.Scan(
		&acct.ID, &acct.Email, &acct.Username, &role, &status,
		&acct.CreatedAt, &lastLogin, &acct.AvatarURL, &acct.Settings, &acct.UnlockedLevel,
	)
	if err != nil {
		return nil, err
	}
	acct.Role = models.Role(role)
	acct.Status = models.Status(status)
	acct.LastLogin = lastLogin
	return &acct, nil
}
