// Package models defines the core data models for the Math-Change backend.
//
// The models in this package represent the central data structures shared
// across the service. They are designed for serialization (JSON) and
// database persistence.
//
// Account Model:
//
// The [Account] type is the local record for an authenticated player. The
// identity provider owns authentication; this service owns the Account. An
// Account is created exactly once per email address, either explicitly or
// just-in-time by the identity resolver the first time a verified token
// carrying a never-seen email reaches the API. The account id is generated
// locally and is deliberately independent of the provider's subject id, so
// the local id space survives a provider migration.
//
// Role and status are authoritative here, not in the provider's token: a
// token only proves who the caller is, while the Account decides what they
// may do and whether the account is still in good standing.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the authorization level of an account.
type Role string

const (
	// RoleUser is the default role assigned to every newly provisioned
	// account. Users may read and write their own records.
	RoleUser Role = "USER"

	// RoleAdmin grants access to privileged operations such as listing
	// all accounts. Admin is only ever assigned out-of-band; the identity
	// resolver never provisions an admin.
	RoleAdmin Role = "ADMIN"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether the role is one of the recognized values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// Status represents the standing of an account.
type Status string

const (
	// StatusActive is the default standing of a provisioned account.
	StatusActive Status = "ACTIVE"

	// StatusBanned marks an account as deactivated. Banned accounts still
	// authenticate (their tokens verify) but every request is rejected
	// with 403 before reaching a handler.
	StatusBanned Status = "BANNED"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether the status is one of the recognized values.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusBanned:
		return true
	default:
		return false
	}
}

// Settings is the player-owned preference bag persisted with the account.
// The service treats it as opaque apart from JSON round-tripping; the
// frontend reads and writes it wholesale.
type Settings struct {
	// CustomTimers maps a game mode to a per-question time limit in
	// seconds, overriding the mode's default.
	CustomTimers map[string]int `json:"customTimers,omitempty"`

	// UnlockedLevels maps a category to the highest unlocked level index.
	UnlockedLevels map[string]int `json:"unlockedLevels,omitempty"`
}

// Account is the local record for a player. Email is the unique natural
// key; at most one Account exists per email, enforced by the account
// store's unique constraint and relied on by the identity resolver's
// first-contact race recovery.
type Account struct {
	// ID is the locally generated, stable identifier. It is not the
	// identity provider's subject id.
	ID string `json:"id"`

	// Email is the unique natural key linking provider identities to
	// local accounts.
	Email string `json:"email"`

	// Username is the display name shown on leaderboards. Defaults to
	// the token's display name, or the local part of the email.
	Username string `json:"username"`

	// Role is the authorization level (USER or ADMIN).
	Role Role `json:"role"`

	// Status is the account standing (ACTIVE or BANNED).
	Status Status `json:"status"`

	// CreatedAt records when the account was provisioned.
	CreatedAt time.Time `json:"createdAt"`

	// LastLogin records the most recent successful identity resolution.
	// Nil until the account's second request.
	LastLogin *time.Time `json:"lastLogin,omitempty"`

	// AvatarURL points at the account's avatar object, if one has been
	// uploaded.
	AvatarURL string `json:"avatar,omitempty"`

	// Settings holds player preferences.
	Settings Settings `json:"settings"`

	// UnlockedLevel is the highest globally unlocked level index.
	UnlockedLevel int `json:"unlockedLevel"`
}

// NewAccount creates an Account for a never-seen email with a fresh local
// id, role USER, status ACTIVE, and empty settings. The username defaults
// to displayName when non-empty, otherwise to the local part of the email.
// This is the account shape the identity resolver provisions on first
// contact.
func NewAccount(email, displayName string, now time.Time) *Account {
	username := displayName
	if username == "" {
		username = emailLocalPart(email)
	}
	return &Account{
		ID:        uuid.NewString(),
		Email:     email,
		Username:  username,
		Role:      RoleUser,
		Status:    StatusActive,
		CreatedAt: now.UTC(),
		Settings:  Settings{},
	}
}

// IsAdmin reports whether the account holds the ADMIN role.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsBanned reports whether the account has been deactivated.
func (a *Account) IsBanned() bool {
	return a.Status == StatusBanned
}

// emailLocalPart returns everything before the first '@', or the whole
// string when no '@' is present.
func emailLocalPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
