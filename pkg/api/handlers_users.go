package api

import (
	"net/http"

	"github.com/mathchange/backend/pkg/auth"
	mcerr "github.com/mathchange/backend/pkg/errors"
	"github.com/mathchange/backend/pkg/models"
)

// maxProfileBytes caps the profile update body.
const maxProfileBytes = 64 << 10

// handleMe returns the caller's own account. The stored avatar object name
// is swapped for a presigned download URL before it leaves the service.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acct := auth.MustAccountFromContext(r.Context())
	writeJSON(w, http.StatusOK, s.withAvatarURL(r, acct))
}

// profileUpdate is the client-writable subset of an account.
type profileUpdate struct {
	Username      *string          `json:"username"`
	Settings      *models.Settings `json:"settings"`
	UnlockedLevel *int             `json:"unlockedLevel"`
}

// handleUpsertUser applies a profile update to the caller's own account.
// Role and status are not client-writable; they only change through the
// admin moderation route.
func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	acct := auth.MustAccountFromContext(r.Context())

	var update profileUpdate
	if err := decodeJSON(r, &update, maxProfileBytes); err != nil {
		writeError(w, r, err)
		return
	}

	if update.Username != nil {
		if *update.Username == "" {
			writeError(w, r, mcerr.Validation("api: username must not be empty"))
			return
		}
		acct.Username = *update.Username
	}
	if update.Settings != nil {
		acct.Settings = *update.Settings
	}
	if update.UnlockedLevel != nil {
		if *update.UnlockedLevel < 0 {
			writeError(w, r, mcerr.Validation("api: unlockedLevel must not be negative"))
			return
		}
		acct.UnlockedLevel = *update.UnlockedLevel
	}

	stored, err := s.accounts.Upsert(r.Context(), acct)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.withAvatarURL(r, stored))
}

// handleUploadAvatar stores the request body as the caller's avatar. The
// image arrives raw with its type in Content-Type; multipart is not used
// because the client sends exactly one file.
func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	if s.avatars == nil {
		writeError(w, r, mcerr.New(mcerr.CodeUnavailableDependency, "api: avatar storage is not configured"))
		return
	}
	acct := auth.MustAccountFromContext(r.Context())

	objectName, err := s.avatars.Upload(r.Context(), acct.ID,
		r.Body, r.ContentLength, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.accounts.SetAvatarURL(r.Context(), acct.ID, objectName); err != nil {
		writeError(w, r, err)
		return
	}

	url, err := s.avatars.URL(r.Context(), objectName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatar": url})
}

// handleListUsers returns every account. Admin only.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	accts, err := s.accounts.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if accts == nil {
		accts = []*models.Account{}
	}
	writeJSON(w, http.StatusOK, accts)
}

// statusUpdate is the body of the admin moderation route.
type statusUpdate struct {
	Status models.Status `json:"status"`
}

// handleSetUserStatus bans or unbans the account named in the path. Admin
// only.
func (s *Server) handleSetUserStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var update statusUpdate
	if err := decodeJSON(r, &update, maxProfileBytes); err != nil {
		writeError(w, r, err)
		return
	}
	if !update.Status.Valid() {
		writeError(w, r, mcerr.Newf(mcerr.CodeValidation, "api: invalid status %q", update.Status))
		return
	}
	if err := s.accounts.SetStatus(r.Context(), id, update.Status); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// withAvatarURL returns a copy of acct with AvatarURL replaced by a
// presigned download URL. When presigning fails the avatar is omitted
// rather than failing the whole request.
func (s *Server) withAvatarURL(r *http.Request, acct *models.Account) *models.Account {
	out := *acct
	if out.AvatarURL == "" || s.avatars == nil {
		return &out
	}
	url, err := s.avatars.URL(r.Context(), out.AvatarURL)
	if err != nil {
		out.AvatarURL = ""
		return &out
	}
	out.AvatarURL = url
	return &out
}
