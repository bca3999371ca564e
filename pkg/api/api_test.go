package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathchange/backend/internal/testutil"
	"github.com/mathchange/backend/internal/testutil/fixtures"
	"github.com/mathchange/backend/pkg/auth"
	"github.com/mathchange/backend/pkg/cache/leaderboard"
	mcerr "github.com/mathchange/backend/pkg/errors"
	"github.com/mathchange/backend/pkg/models"
)

// fakeStore backs both the auth resolver and the API handlers in tests.
type fakeStore struct {
	mu      sync.Mutex
	byEmail map[string]*models.Account
}

func newFakeStore() *fakeStore {
	return &fakeStore{byEmail: map[string]*models.Account{}}
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byEmail[email]
	if !ok {
		return nil, mcerr.Newf(mcerr.CodeNotFoundAccount, "no account with email %q", email)
	}
	copied := *acct
	return &copied, nil
}

func (s *fakeStore) Insert(_ context.Context, acct *models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[acct.Email]; exists {
		return nil, mcerr.New(mcerr.CodeConflictDuplicateEmail, "email already registered")
	}
	copied := *acct
	s.byEmail[acct.Email] = &copied
	return acct, nil
}

func (s *fakeStore) List(context.Context) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var accts []*models.Account
	for _, acct := range s.byEmail {
		copied := *acct
		accts = append(accts, &copied)
	}
	return accts, nil
}

func (s *fakeStore) Upsert(_ context.Context, acct *models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *acct
	s.byEmail[acct.Email] = &copied
	return acct, nil
}

func (s *fakeStore) SetAvatarURL(_ context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.byEmail {
		if acct.ID == id {
			acct.AvatarURL = url
			return nil
		}
	}
	return mcerr.Newf(mcerr.CodeNotFoundAccount, "no account with id %q", id)
}

func (s *fakeStore) SetStatus(_ context.Context, id string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.byEmail {
		if acct.ID == id {
			acct.Status = status
			return nil
		}
	}
	return mcerr.Newf(mcerr.CodeNotFoundAccount, "no account with id %q", id)
}

// fakeScores is an in-memory ScoreStore.
type fakeScores struct {
	mu   sync.Mutex
	recs []*models.ScoreRecord
}

func (s *fakeScores) Insert(_ context.Context, rec *models.ScoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *fakeScores) ListByUser(_ context.Context, username string, limit int) ([]*models.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScoreRecord
	for _, rec := range s.recs {
		if rec.Username == username && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeScores) TopScores(_ context.Context, limit int) ([]*models.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ScoreRecord, len(s.recs))
	copy(out, s.recs)
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Score > out[i].Score {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeAvatars records uploads and presigns deterministic URLs.
type fakeAvatars struct {
	uploaded map[string][]byte
}

func (f *fakeAvatars) Upload(_ context.Context, accountID string, r io.Reader, size int64, contentType string) (string, error) {
	if contentType != "image/png" && contentType != "image/jpeg" && contentType != "image/webp" {
		return "", mcerr.Newf(mcerr.CodeValidation, "unsupported content type %q", contentType)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if f.uploaded == nil {
		f.uploaded = map[string][]byte{}
	}
	name := accountID + ".png"
	f.uploaded[name] = data
	return name, nil
}

func (f *fakeAvatars) URL(_ context.Context, objectName string) (string, error) {
	return "https://storage.example.com/avatars/" + objectName + "?sig=abc", nil
}

// fakeBoard is a pass-through Board that counts invalidations.
type fakeBoard struct {
	invalidated int
}

func (b *fakeBoard) Top(ctx context.Context, limit int, load leaderboard.Loader) ([]*models.ScoreRecord, error) {
	return load(ctx, limit)
}

func (b *fakeBoard) Invalidate(context.Context) {
	b.invalidated++
}

// testAPI is a fully wired API server over fakes, plus the signing key for
// minting request tokens.
type testAPI struct {
	handler http.Handler
	store   *fakeStore
	scores  *fakeScores
	avatars *fakeAvatars
	board   *fakeBoard
	key     *testutil.SigningKey
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	key := testutil.NewSigningKey(t)
	certs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]string{fixtures.TestKeyID: key.CertPEM})
		require.NoError(t, err)
	}))
	t.Cleanup(certs.Close)

	store := newFakeStore()
	verifier, err := auth.NewVerifier(auth.NewKeyCache(certs.URL, 0, nil), fixtures.TestAudience)
	require.NoError(t, err)
	resolver, err := auth.NewResolver(store)
	require.NoError(t, err)
	mw, err := auth.NewMiddleware(verifier, resolver)
	require.NoError(t, err)

	scores := &fakeScores{}
	avatars := &fakeAvatars{}
	board := &fakeBoard{}
	srv := NewServer(store, scores, avatars, board, mw)

	return &testAPI{
		handler: srv.Routes(),
		store:   store,
		scores:  scores,
		avatars: avatars,
		board:   board,
		key:     key,
	}
}

// do performs an authenticated request as the given email, provisioning
// the identity through the real middleware chain.
func (a *testAPI) do(t *testing.T, method, path, email string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	token := testutil.SignToken(t, a.key, fixtures.TestKeyID, fixtures.TestAudience,
		testutil.WithClaim("email", email))
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) addAdmin(email string) *models.Account {
	admin := models.NewAccount(email, "", time.Now())
	admin.Role = models.RoleAdmin
	a.store.byEmail[email] = admin
	return admin
}

func TestHealthzIsPublic(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMeProvisionsOnFirstContact(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/me", "fresh@example.com", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var acct models.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acct))
	assert.Equal(t, "fresh@example.com", acct.Email)
	assert.Equal(t, models.RoleUser, acct.Role)
	assert.Contains(t, api.store.byEmail, "fresh@example.com")
}

func TestMeRequiresToken(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestUpsertUserUpdatesOwnProfile(t *testing.T) {
	api := newTestAPI(t)

	body := bytes.NewBufferString(`{"username":"NewName","unlockedLevel":4,"settings":{"customTimers":{"sprint":20}}}`)
	rec := api.do(t, http.MethodPost, "/users", fixtures.TestEmail, body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var acct models.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acct))
	assert.Equal(t, "NewName", acct.Username)
	assert.Equal(t, 4, acct.UnlockedLevel)
	assert.Equal(t, map[string]int{"sprint": 20}, acct.Settings.CustomTimers)
}

func TestUpsertUserValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty username", `{"username":""}`},
		{"negative level", `{"unlockedLevel":-1}`},
		{"unknown field", `{"role":"ADMIN"}`},
		{"not json", `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/users", fixtures.TestEmail, bytes.NewBufferString(tt.body), nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListUsersIsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	api.addAdmin(fixtures.AdminEmail)

	rec := api.do(t, http.MethodGet, "/users", fixtures.TestEmail, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "a regular user must get 403, not 401")

	rec = api.do(t, http.MethodGet, "/users", fixtures.AdminEmail, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var accts []*models.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accts))
	assert.NotEmpty(t, accts)
}

func TestSetUserStatusBans(t *testing.T) {
	api := newTestAPI(t)
	api.addAdmin(fixtures.AdminEmail)

	target := models.NewAccount("target@example.com", "", time.Now())
	api.store.byEmail[target.Email] = target

	rec := api.do(t, http.MethodPost, "/users/"+target.ID+"/status", fixtures.AdminEmail,
		bytes.NewBufferString(`{"status":"BANNED"}`), nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusBanned, api.store.byEmail[target.Email].Status)

	// The banned player now authenticates but gets 403 everywhere.
	rec = api.do(t, http.MethodGet, "/me", target.Email, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubmitScoreRecordsAndInvalidatesBoard(t *testing.T) {
	api := newTestAPI(t)

	body := bytes.NewBufferString(`{"score":420,"correctCount":20,"errorCount":2,"avgTime":3.5,"category":"mul","difficulty":"hard"}`)
	rec := api.do(t, http.MethodPost, "/scores", fixtures.TestEmail, body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var stored models.ScoreRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, 420, stored.Score)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, 1, api.board.invalidated)

	require.Len(t, api.scores.recs, 1)
	assert.NotEqual(t, "", api.scores.recs[0].Username,
		"the username must come from the authenticated account")
}

func TestSubmitScoreRejectsNegativeFields(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/scores", fixtures.TestEmail,
		bytes.NewBufferString(`{"score":-5}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, api.board.invalidated)
}

func TestListScoresReturnsOwnRoundsOnly(t *testing.T) {
	api := newTestAPI(t)

	// Provision the caller so their username is known, then seed rounds.
	rec := api.do(t, http.MethodGet, "/me", fixtures.TestEmail, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var acct models.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acct))

	api.scores.recs = []*models.ScoreRecord{
		models.NewScoreRecord(acct.Username, 100, 10, 0, 2.0, time.Now()),
		models.NewScoreRecord("someone-else", 900, 30, 0, 1.0, time.Now()),
	}

	rec = api.do(t, http.MethodGet, "/scores?limit=10", fixtures.TestEmail, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var recs []*models.ScoreRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, acct.Username, recs[0].Username)
}

func TestTopScoresServesLeaderboard(t *testing.T) {
	api := newTestAPI(t)

	for i, s := range []int{100, 300, 200} {
		api.scores.recs = append(api.scores.recs,
			models.NewScoreRecord(fmt.Sprintf("p%d", i), s, s/10, 0, 2.0, time.Now()))
	}

	rec := api.do(t, http.MethodGet, "/stats/top?limit=2", fixtures.TestEmail, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var recs []*models.ScoreRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, 300, recs[0].Score)
	assert.Equal(t, 200, recs[1].Score)
}

func TestTopScoresRejectsBadLimit(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/stats/top?limit=zero", fixtures.TestEmail, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAvatarStoresAndLinks(t *testing.T) {
	api := newTestAPI(t)

	payload := bytes.Repeat([]byte{0x89}, 64)
	rec := api.do(t, http.MethodPost, "/users/avatar", fixtures.TestEmail,
		bytes.NewReader(payload), map[string]string{"Content-Type": "image/png"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["avatar"], "storage.example.com")

	// /me now carries the presigned avatar URL.
	rec = api.do(t, http.MethodGet, "/me", fixtures.TestEmail, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var acct models.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acct))
	assert.Contains(t, acct.AvatarURL, "storage.example.com")
}
