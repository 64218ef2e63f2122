package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/aviya/internal/shared"
)

// DefaultCleanupInterval is how often expired login sessions are swept.
const DefaultCleanupInterval = 5 * time.Minute

// LoginSessionSweeper removes expired login sessions.
type LoginSessionSweeper interface {
	CleanupExpiredLoginSessions(ctx context.Context, now time.Time) (int64, error)
}

// StartCleanupWorker runs a background goroutine that periodically deletes
// expired login sessions until ctx is cancelled.
func StartCleanupWorker(ctx context.Context, repo LoginSessionSweeper, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Login session cleanup worker started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				cleanupExpiredLoginSessions(ctx, repo, time.Now())
			case <-ctx.Done():
				slog.Info("Login session cleanup worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// cleanupExpiredLoginSessions retries with exponential backoff on SQLITE_BUSY.
func cleanupExpiredLoginSessions(ctx context.Context, repo LoginSessionSweeper, now time.Time) int64 {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		deleted, err := repo.CleanupExpiredLoginSessions(ctx, now)
		if err == nil {
			if deleted > 0 {
				slog.Info("Cleaned up expired login sessions", "count", deleted)
			}
			return deleted
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("Login session cleanup hit a locked database, retrying",
				"attempt", i+1,
				"delay", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return 0
			}
		}

		if ctx.Err() != nil {
			slog.Debug("Login session cleanup cancelled", "error", err)
			return 0
		}
		slog.Error("Failed to clean up expired login sessions", "error", err)
		return 0
	}
	return 0
}
