// Package domain contains core domain types for the Aviya backend.
package domain

import (
	"strings"
	"time"
)

// MemoryLimit caps the long-term memory kept per identity.
const MemoryLimit = 80

// Role is the privilege level of an identity.
type Role string

const (
	RoleUser    Role = "user"
	RoleCreator Role = "creator"
)

// Identity is a persisted account, linked to one or more OAuth providers.
type Identity struct {
	ID          string            `json:"id"`
	Email       string            `json:"email,omitempty"`
	DisplayName string            `json:"name"`
	AvatarURL   string            `json:"avatar,omitempty"`
	Role        Role              `json:"role"`
	Links       map[string]string `json:"-"` // provider -> subject id
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IsCreator reports whether the identity holds the creator role.
func (i *Identity) IsCreator() bool {
	return i.Role == RoleCreator
}

// HasLink reports whether the identity is linked to the given provider.
func (i *Identity) HasLink(provider string) bool {
	return i.Links[provider] != ""
}

// MatchesEmail compares the identity email case-insensitively.
func (i *Identity) MatchesEmail(email string) bool {
	email = strings.TrimSpace(email)
	return email != "" && strings.EqualFold(strings.TrimSpace(i.Email), email)
}

// PublicIdentity is the projection returned by GET /me.
type PublicIdentity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Role   Role   `json:"role"`
}

// Public returns the client-safe projection of the identity.
func (i *Identity) Public() PublicIdentity {
	return PublicIdentity{
		ID:     i.ID,
		Name:   i.DisplayName,
		Email:  i.Email,
		Avatar: i.AvatarURL,
		Role:   i.Role,
	}
}

// Speaker identifies who produced a long-term memory entry.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Label returns the transcript label for the speaker.
func (s Speaker) Label() string {
	if s == SpeakerAgent {
		return AgentLabel
	}
	return UserLabel
}

// MemoryEntry is one line of an identity's long-term memory.
type MemoryEntry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// LoginSession binds a browser cookie token to an identity.
type LoginSession struct {
	Token      string
	IdentityID string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Expired reports whether the login session is past its expiry.
func (l *LoginSession) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
