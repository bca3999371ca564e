//go:build integration

// Package avatars_test contains integration tests for the avatar store
// that require a running MinIO instance. They are gated behind the
// "integration" build tag and run in CI with Docker via testcontainers.
//
// Run locally with:
//
//	go test -v -race -tags=integration ./pkg/storage/avatars/...
package avatars_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathchange/backend/internal/testutil/containers"
	"github.com/mathchange/backend/internal/testutil/fixtures"
	"github.com/mathchange/backend/pkg/config"
	"github.com/mathchange/backend/pkg/storage/avatars"
)

func setupStore(t *testing.T) *avatars.Store {
	t.Helper()
	ctx := context.Background()

	result, err := containers.StartMinIO(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		if termErr := result.Container.Terminate(ctx); termErr != nil {
			t.Logf("failed to terminate minio container: %v", termErr)
		}
	})

	store, err := avatars.New(ctx, avatars.Config{
		Endpoint:  result.Endpoint,
		AccessKey: result.User,
		SecretKey: config.Secret(result.Password),
		Bucket:    "avatars",
		URLExpiry: time.Hour,
	})
	require.NoError(t, err)
	return store
}

func TestUploadAndFetchThroughPresignedURL(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	payload := bytes.Repeat([]byte{0x42}, 512)
	objectName, err := store.Upload(ctx, fixtures.TestAccountID,
		bytes.NewReader(payload), int64(len(payload)), "image/png")
	require.NoError(t, err)

	url, err := store.URL(ctx, objectName)
	require.NoError(t, err)

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestUploadOverwritesPreviousAvatar(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first := bytes.Repeat([]byte{0x01}, 64)
	_, err := store.Upload(ctx, fixtures.TestAccountID, bytes.NewReader(first), int64(len(first)), "image/png")
	require.NoError(t, err)

	second := bytes.Repeat([]byte{0x02}, 64)
	objectName, err := store.Upload(ctx, fixtures.TestAccountID, bytes.NewReader(second), int64(len(second)), "image/png")
	require.NoError(t, err)

	url, err := store.URL(ctx, objectName)
	require.NoError(t, err)
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, second, body)
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	payload := []byte{0x01}
	objectName, err := store.Upload(ctx, fixtures.TestAccountID, bytes.NewReader(payload), 1, "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, objectName))
	require.NoError(t, store.Remove(ctx, objectName), "removing an absent object is not an error")
}
