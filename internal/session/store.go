// Package session provides conversational session stores.
package session

import (
	"context"
	"time"

	"github.com/ashureev/aviya/internal/domain"
)

// Store persists per-conversation state keyed by session id. Values are
// copied in and out, so two concurrent turns on the same id resolve as
// last-writer-wins and different ids never share state.
type Store interface {
	// GetOrCreate returns the session for id, or a fresh one if the id is
	// unseen or has expired. A fresh session is not stored until Update.
	GetOrCreate(ctx context.Context, id string) (domain.Session, error)

	// Update writes the session back and refreshes its idle expiry.
	Update(ctx context.Context, id string, s domain.Session) error

	// Delete drops the session.
	Delete(ctx context.Context, id string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// clock is swapped in tests.
var clock = time.Now

// clone detaches the transcript so callers never share a backing array.
func clone(s domain.Session) domain.Session {
	if s.Transcript != nil {
		s.Transcript = append([]string(nil), s.Transcript...)
	}
	return s
}
