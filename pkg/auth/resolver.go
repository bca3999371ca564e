package auth

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	mcerr "github.com/mathchange/backend/pkg/errors"
	"github.com/mathchange/backend/pkg/models"
)

// AccountStore is the persistence surface the resolver depends on. The
// postgres store satisfies it; tests substitute in-memory fakes.
//
// Implementations must return a NF-category coded error from FindByEmail
// when no account matches, and a CONF-category coded error from Insert when
// the email is already taken. The resolver's race recovery relies on those
// categories.
type AccountStore interface {
	// FindByEmail returns the account whose email matches exactly.
	FindByEmail(ctx context.Context, email string) (*models.Account, error)

	// Insert persists a new account and returns the stored record.
	Insert(ctx context.Context, acct *models.Account) (*models.Account, error)
}

// LastLoginToucher is an optional extension of [AccountStore]. When the
// configured store implements it, the resolver records the login instant on
// each successful resolution of an existing account.
type LastLoginToucher interface {
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// Resolver maps verified provider claims to local accounts, provisioning
// an account just-in-time on first contact. Accounts link to provider
// identities by email.
//
// Resolver is safe for concurrent use by multiple goroutines.
type Resolver struct {
	store  AccountStore
	now    func() time.Time
	tracer trace.Tracer
}

// NewResolver creates a Resolver backed by store.
func NewResolver(store AccountStore) (*Resolver, error) {
	if store == nil {
		return nil, mcerr.New(mcerr.CodeValidation, "auth: account store must not be nil")
	}
	return &Resolver{
		store:  store,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Resolve returns the local account for the given verified claims, creating
// one when no account with the claimed email exists yet.
//
// Provisioning is concurrency-safe: when two first requests for the same
// identity race, the loser's insert fails on the email uniqueness
// constraint and the resolver re-reads the winner's row, so both callers
// resolve to the same single account.
//
// Claims without an email cannot be linked to an account and are rejected
// with an AUTH-coded error; storage failures surface as UNAVAIL-coded
// errors so the transport layer answers 5xx rather than 401.
func (r *Resolver) Resolve(ctx context.Context, claims *VerifiedClaims) (*models.Account, error) {
	ctx, span := r.tracer.Start(ctx, "auth.Resolve")
	defer span.End()

	if claims == nil || claims.Email == "" {
		err := mcerr.New(mcerr.CodeAuthIncompleteIdentity, "auth: token carries no email claim")
		finishSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.email", claims.Email))

	acct, err := r.store.FindByEmail(ctx, claims.Email)
	switch {
	case err == nil:
		r.touchLastLogin(ctx, acct)
		return acct, nil
	case !mcerr.IsNotFound(err):
		wrapped := mcerr.Wrap(err, mcerr.CodeUnavailableDependency, "auth: account lookup failed")
		finishSpan(span, wrapped)
		return nil, wrapped
	}

	// First contact: provision a local account from the verified claims.
	span.SetAttributes(attribute.Bool("auth.provisioned", true))
	created, err := r.store.Insert(ctx, models.NewAccount(claims.Email, claims.DisplayName, r.now()))
	if err == nil {
		slog.InfoContext(ctx, "auth: provisioned account on first contact",
			"account_id", created.ID,
			"email", created.Email,
		)
		return created, nil
	}
	if mcerr.IsConflict(err) {
		// Lost a first-contact race; the winner's row is authoritative.
		winner, readErr := r.store.FindByEmail(ctx, claims.Email)
		if readErr != nil {
			wrapped := mcerr.Wrap(readErr, mcerr.CodeUnavailableDependency, "auth: account re-read after insert conflict failed")
			finishSpan(span, wrapped)
			return nil, wrapped
		}
		r.touchLastLogin(ctx, winner)
		return winner, nil
	}

	wrapped := mcerr.Wrap(err, mcerr.CodeUnavailableDependency, "auth: account provisioning failed")
	finishSpan(span, wrapped)
	return nil, wrapped
}

// touchLastLogin records the login instant when the store supports it. The
// write is best effort: a failure is logged but never fails the request.
func (r *Resolver) touchLastLogin(ctx context.Context, acct *models.Account) {
	toucher, ok := r.store.(LastLoginToucher)
	if !ok {
		return
	}
	at := r.now().UTC()
	if err := toucher.TouchLastLogin(ctx, acct.ID, at); err != nil {
		slog.WarnContext(ctx, "auth: failed to record last login",
			"error", err,
			"account_id", acct.ID,
		)
		return
	}
	acct.LastLogin = &at
}
