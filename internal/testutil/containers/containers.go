//go:build integration

// Package containers provides testcontainers-go helpers for integration
// testing against real database and service containers.
//
// All helpers in this package are gated behind the "integration" build
// tag so they do not pull Docker-related dependencies into unit test
// builds. Use them exclusively from test files that carry the same tag:
//
//	//go:build integration
//
// Each Start* function returns a *Result struct with the container handle
// and the connection details the corresponding client needs. The caller is
// responsible for terminating the container:
//
//	result, err := containers.StartPostgres(ctx)
//	if err != nil { ... }
//	defer result.Container.Terminate(ctx)
package containers

import (
	"context"
	"fmt"

	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// ===========================================================================
// PostgreSQL
// ===========================================================================

// DefaultPostgresImage is the container image used for PostgreSQL
// integration tests. Alpine variant is used for minimal image size and
// fast startup time.
const DefaultPostgresImage = "docker.io/postgres:16-alpine"

// DefaultPostgresDatabase is the database name created inside the
// PostgreSQL container for integration tests.
const DefaultPostgresDatabase = "mathchange_test"

// DefaultPostgresUser is the superuser name for the PostgreSQL container.
const DefaultPostgresUser = "testuser"

// DefaultPostgresPassword is the password for the test superuser. This is
// a deliberately weak credential suitable only for ephemeral test
// containers.
const DefaultPostgresPassword = "testpassword"

// PostgresResult holds a started PostgreSQL container and the connection
// string needed to connect to it. ConnString includes sslmode=disable
// because testcontainers expose PostgreSQL on localhost without TLS.
type PostgresResult struct {
	Container  *tcpostgres.PostgresContainer
	ConnString string
}

// StartPostgres starts a PostgreSQL 16 container and returns the container
// handle and a connection string ready for pgxpool.
func StartPostgres(ctx context.Context) (*PostgresResult, error) {
	container, err := tcpostgres.Run(ctx,
		DefaultPostgresImage,
		tcpostgres.WithDatabase(DefaultPostgresDatabase),
		tcpostgres.WithUsername(DefaultPostgresUser),
		tcpostgres.WithPassword(DefaultPostgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get connection string: %w", err)
	}

	return &PostgresResult{Container: container, ConnString: connStr}, nil
}

// ===========================================================================
// Redis
// ===========================================================================

// DefaultRedisImage is the container image used for Redis integration
// tests.
const DefaultRedisImage = "docker.io/redis:7-alpine"

// RedisResult holds a started Redis container and a redis:// connection
// string for it.
type RedisResult struct {
	Container  *tcredis.RedisContainer
	ConnString string
}

// StartRedis starts a Redis 7 container and returns the container handle
// and its connection string.
func StartRedis(ctx context.Context) (*RedisResult, error) {
	container, err := tcredis.Run(ctx, DefaultRedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start redis container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get connection string: %w", err)
	}

	return &RedisResult{Container: container, ConnString: connStr}, nil
}

// ===========================================================================
// MinIO
// ===========================================================================

// DefaultMinIOImage is the container image used for MinIO integration
// tests.
const DefaultMinIOImage = "docker.io/minio/minio:latest"

// MinIOResult holds a started MinIO container, its API endpoint, and the
// root credentials configured for it.
type MinIOResult struct {
	Container *tcminio.MinioContainer
	Endpoint  string
	User      string
	Password  string
}

// StartMinIO starts a MinIO container and returns the container handle,
// API endpoint, and credentials.
func StartMinIO(ctx context.Context) (*MinIOResult, error) {
	container, err := tcminio.Run(ctx, DefaultMinIOImage)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start minio container: %w", err)
	}

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get endpoint: %w", err)
	}

	return &MinIOResult{
		Container: container,
		Endpoint:  endpoint,
		User:      container.Username,
		Password:  container.Password,
	}, nil
}
