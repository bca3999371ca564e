// Package api exposes the Math-Change backend's REST surface.
//
// Every route except the health probe sits behind the authentication
// middleware: requests carry a provider-issued bearer token, and handlers
// read the resolved [models.Account] from the request context. Admin-only
// routes are additionally wrapped in the role guard.
//
// Handlers depend on narrow interfaces rather than concrete stores, so
// unit tests run against in-memory fakes while production wires the
// postgres, minio, and redis implementations.
package api

import (
	"context"
	"io"
	"net/http"

	"github.com/mathchange/backend/pkg/auth"
	"github.com/mathchange/backend/pkg/cache/leaderboard"
	"github.com/mathchange/backend/pkg/models"
)

// AccountStore is the account persistence surface the handlers use.
// The postgres account store satisfies it.
type AccountStore interface {
	List(ctx context.Context) ([]*models.Account, error)
	Upsert(ctx context.Context, acct *models.Account) (*models.Account, error)
	SetAvatarURL(ctx context.Context, id, url string) error
	SetStatus(ctx context.Context, id string, status models.Status) error
}

// ScoreStore is the score persistence surface the handlers use.
type ScoreStore interface {
	Insert(ctx context.Context, rec *models.ScoreRecord) error
	ListByUser(ctx context.Context, username string, limit int) ([]*models.ScoreRecord, error)
	TopScores(ctx context.Context, limit int) ([]*models.ScoreRecord, error)
}

// AvatarStore uploads avatar images and presigns download URLs.
type AvatarStore interface {
	Upload(ctx context.Context, accountID string, r io.Reader, size int64, contentType string) (string, error)
	URL(ctx context.Context, objectName string) (string, error)
}

// Board caches the top-scores leaderboard.
type Board interface {
	Top(ctx context.Context, limit int, load leaderboard.Loader) ([]*models.ScoreRecord, error)
	Invalidate(ctx context.Context)
}

// Server holds the handler dependencies and assembles the route table.
type Server struct {
	accounts AccountStore
	scores   ScoreStore
	avatars  AvatarStore
	board    Board
	mw       *auth.Middleware
}

// NewServer creates a Server from its dependencies. All of them are
// required except board and avatars, which may be nil when the deployment
// runs without Redis or object storage; the affected routes then answer
// from the primary store or 503 respectively.
func NewServer(accounts AccountStore, scores ScoreStore, avatars AvatarStore, board Board, mw *auth.Middleware) *Server {
	return &Server{
		accounts: accounts,
		scores:   scores,
		avatars:  avatars,
		board:    board,
		mw:       mw,
	}
}

// Routes returns the complete route table with authentication applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.Handle("GET /me", s.authed(s.handleMe))
	mux.Handle("POST /users", s.authed(s.handleUpsertUser))
	mux.Handle("POST /users/avatar", s.authed(s.handleUploadAvatar))
	mux.Handle("GET /scores", s.authed(s.handleListScores))
	mux.Handle("POST /scores", s.authed(s.handleSubmitScore))
	mux.Handle("GET /stats/top", s.authed(s.handleTopScores))

	mux.Handle("GET /users", s.admin(s.handleListUsers))
	mux.Handle("POST /users/{id}/status", s.admin(s.handleSetUserStatus))

	return mux
}

// authed wraps a handler in the authentication middleware.
func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return s.mw.Authenticate(h)
}

// admin wraps a handler in authentication plus the admin role guard.
func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.mw.Authenticate(s.mw.RequireAdmin(h))
}

// handleHealth is the liveness probe. It deliberately checks nothing
// downstream so a database outage does not get the process restarted.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
