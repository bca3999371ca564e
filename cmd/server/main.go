// The server command runs the Math-Change backend: a REST API whose
// requests authenticate with provider-issued identity tokens, backed by
// PostgreSQL for accounts and scores, MinIO for avatar images, and an
// optional Redis leaderboard cache.
//
// Configuration is resolved in layers (struct defaults, then an optional
// config file named by MATHCHANGE_CONFIG_FILE, then MATHCHANGE_-prefixed
// environment variables):
//
//	MATHCHANGE_AUTH_CERTS_URL=https://... \
//	MATHCHANGE_AUTH_AUDIENCE=my-app \
//	MATHCHANGE_POSTGRES_URI=postgres://... \
//	MATHCHANGE_AVATARS_ENDPOINT=localhost:9000 ... go run ./cmd/server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mathchange/backend/pkg/api"
	"github.com/mathchange/backend/pkg/auth"
	"github.com/mathchange/backend/pkg/cache/leaderboard"
	"github.com/mathchange/backend/pkg/config"
	mcerr "github.com/mathchange/backend/pkg/errors"
	"github.com/mathchange/backend/pkg/storage/avatars"
	"github.com/mathchange/backend/pkg/store/postgres"
)

const envPrefix = "MATHCHANGE"

// AuthConfig holds the identity provider settings.
type AuthConfig struct {
	// CertsURL is the provider endpoint publishing the current signing
	// keys as a kid-to-certificate JSON document.
	CertsURL string `env:"CERTS_URL" yaml:"certsUrl" required:"true"`

	// Audience is the application identifier tokens must be issued for.
	Audience string `env:"AUDIENCE" yaml:"audience" required:"true"`

	// KeyMaxAge is the key freshness window used when the provider
	// response carries no Cache-Control max-age.
	KeyMaxAge time.Duration `env:"KEY_MAX_AGE" envDefault:"1h" yaml:"keyMaxAge"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080" yaml:"addr"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s" yaml:"readTimeout"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s" yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s" yaml:"shutdownTimeout"`
}

// AppConfig is the full configuration tree of the backend.
type AppConfig struct {
	Server   ServerConfig       `env:"SERVER" yaml:"server"`
	Auth     AuthConfig         `env:"AUTH" yaml:"auth"`
	Postgres postgres.Config    `env:"POSTGRES" yaml:"postgres"`
	Avatars  avatars.Config     `env:"AVATARS" yaml:"avatars"`
	Board    leaderboard.Config `env:"BOARD" yaml:"board"`

	// BoardEnabled toggles the Redis leaderboard cache. When false the
	// leaderboard route answers straight from PostgreSQL.
	BoardEnabled bool `env:"BOARD_ENABLED" envDefault:"true" yaml:"boardEnabled"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info" yaml:"logLevel"`
}

func main() {
	loader := config.New().WithEnvPrefix(envPrefix)
	if path := os.Getenv(envPrefix + "_CONFIG_FILE"); path != "" {
		loader = loader.WithFile(path)
	}
	cfg := config.MustLoad[AppConfig](loader)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err, "code", string(mcerr.GetCode(err)))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg AppConfig, logger *slog.Logger) error {
	pool, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	accounts := postgres.NewAccountStore(pool)
	scores := postgres.NewScoreStore(pool)

	avatarStore, err := avatars.New(ctx, cfg.Avatars)
	if err != nil {
		return err
	}

	var board api.Board
	if cfg.BoardEnabled {
		cache, err := leaderboard.New(ctx, cfg.Board)
		if err != nil {
			// The cache is an accelerator, not a dependency. Run degraded.
			logger.Warn("leaderboard cache unavailable, serving from postgres", "error", err)
		} else {
			defer func() { _ = cache.Close() }()
			board = cache
		}
	}

	keys := auth.NewKeyCache(cfg.Auth.CertsURL, cfg.Auth.KeyMaxAge, nil)
	verifier, err := auth.NewVerifier(keys, cfg.Auth.Audience)
	if err != nil {
		return err
	}
	resolver, err := auth.NewResolver(accounts)
	if err != nil {
		return err
	}
	mw, err := auth.NewMiddleware(verifier, resolver)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(accounts, scores, avatarStore, board, mw).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return mcerr.Wrap(err, mcerr.CodeTimeout, "server: graceful shutdown did not complete")
	}
	logger.Info("server stopped")
	return <-errCh
}

// logLevel maps the configured level name to a slog level, defaulting to
// info on unknown values.
func logLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}
