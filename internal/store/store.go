// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/aviya/internal/domain"
)

// ErrNotFound is returned by updates that matched no row.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for persisting identities, their
// long-term memory, and login sessions. Lookups return (nil, nil) when the
// record does not exist.
type Repository interface {
	// GetIdentity retrieves an identity by id, including provider links.
	GetIdentity(ctx context.Context, id string) (*domain.Identity, error)

	// FindIdentityByLink retrieves the identity linked to a provider subject.
	FindIdentityByLink(ctx context.Context, provider, subject string) (*domain.Identity, error)

	// FindIdentityByEmail retrieves an identity by email, case-insensitively.
	FindIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error)

	// CreateIdentity inserts an identity together with its provider links.
	CreateIdentity(ctx context.Context, identity *domain.Identity) error

	// AddLink links a provider subject to an existing identity.
	AddLink(ctx context.Context, identityID, provider, subject string) error

	// SetRole updates the role of an identity.
	SetRole(ctx context.Context, identityID string, role domain.Role) error

	// RecentMemory returns up to limit most recent entries, oldest first.
	RecentMemory(ctx context.Context, identityID string, limit int) ([]domain.MemoryEntry, error)

	// AppendMemory appends entries and trims the list to the newest limit
	// entries in one transaction.
	AppendMemory(ctx context.Context, identityID string, entries []domain.MemoryEntry, limit int) error

	// CreateLoginSession stores a browser login session.
	CreateLoginSession(ctx context.Context, session *domain.LoginSession) error

	// GetLoginSession retrieves a login session by token.
	GetLoginSession(ctx context.Context, token string) (*domain.LoginSession, error)

	// DeleteLoginSession removes a login session.
	DeleteLoginSession(ctx context.Context, token string) error

	// CleanupExpiredLoginSessions removes login sessions expired before now.
	CleanupExpiredLoginSessions(ctx context.Context, now time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
