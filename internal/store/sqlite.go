package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/aviya/internal/domain"
	"github.com/ashureev/aviya/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db       *sql.DB
	memoryMu sync.Mutex // serialises memory appends to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers, busy timeout for writers.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS identities (
		id TEXT PRIMARY KEY,
		email TEXT,
		display_name TEXT NOT NULL,
		avatar_url TEXT,
		role TEXT NOT NULL DEFAULT 'user',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_identities_email ON identities(email COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS identity_links (
		provider TEXT NOT NULL,
		subject TEXT NOT NULL,
		identity_id TEXT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (provider, subject)
	);
	CREATE INDEX IF NOT EXISTS idx_identity_links_identity ON identity_links(identity_id);

	CREATE TABLE IF NOT EXISTS memories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity_id TEXT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
		speaker TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_identity ON memories(identity_id, id);

	CREATE TABLE IF NOT EXISTS login_sessions (
		token TEXT PRIMARY KEY,
		identity_id TEXT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_login_sessions_expires ON login_sessions(expires_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const identityColumns = `id, email, display_name, avatar_url, role, created_at, updated_at`

func (s *SQLiteStore) queryIdentity(ctx context.Context, where string, args ...any) (*domain.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE `+where, args...)

	var identity domain.Identity
	var email, avatar sql.NullString
	var role string
	var createdAt, updatedAt int64

	err := row.Scan(&identity.ID, &email, &identity.DisplayName, &avatar, &role, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan identity row: %w", err)
	}

	identity.Email = email.String
	identity.AvatarURL = avatar.String
	identity.Role = domain.Role(role)
	identity.CreatedAt = time.Unix(createdAt, 0)
	identity.UpdatedAt = time.Unix(updatedAt, 0)

	links, err := s.loadLinks(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	identity.Links = links

	return &identity, nil
}

func (s *SQLiteStore) loadLinks(ctx context.Context, identityID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider, subject FROM identity_links WHERE identity_id = ?`, identityID)
	if err != nil {
		return nil, fmt.Errorf("query identity links: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close identity link rows", "error", closeErr)
		}
	}()

	links := make(map[string]string)
	for rows.Next() {
		var provider, subject string
		if err := rows.Scan(&provider, &subject); err != nil {
			return nil, fmt.Errorf("scan identity link: %w", err)
		}
		links[provider] = subject
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity links: %w", err)
	}
	return links, nil
}

// GetIdentity retrieves an identity by id.
func (s *SQLiteStore) GetIdentity(ctx context.Context, id string) (*domain.Identity, error) {
	return s.queryIdentity(ctx, `id = ?`, id)
}

// FindIdentityByLink retrieves the identity linked to a provider subject.
func (s *SQLiteStore) FindIdentityByLink(ctx context.Context, provider, subject string) (*domain.Identity, error) {
	return s.queryIdentity(ctx,
		`id = (SELECT identity_id FROM identity_links WHERE provider = ? AND subject = ?)`,
		provider, subject)
}

// FindIdentityByEmail retrieves the oldest identity with the given email.
func (s *SQLiteStore) FindIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	if email == "" {
		return nil, nil
	}
	return s.queryIdentity(ctx, `email = ? COLLATE NOCASE ORDER BY created_at ASC LIMIT 1`, email)
}

// CreateIdentity inserts an identity together with its provider links.
func (s *SQLiteStore) CreateIdentity(ctx context.Context, identity *domain.Identity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create identity: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var email, avatar any
	if identity.Email != "" {
		email = identity.Email
	}
	if identity.AvatarURL != "" {
		avatar = identity.AvatarURL
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identities (id, email, display_name, avatar_url, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		identity.ID, email, identity.DisplayName, avatar, string(identity.Role),
		identity.CreatedAt.Unix(), identity.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}

	for provider, subject := range identity.Links {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO identity_links (provider, subject, identity_id, created_at) VALUES (?, ?, ?, ?)`,
			provider, subject, identity.ID, identity.CreatedAt.Unix(),
		); err != nil {
			return fmt.Errorf("insert identity link %s: %w", provider, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create identity: %w", err)
	}
	return nil
}

// AddLink links a provider subject to an existing identity. Re-linking the
// same subject to the same identity is a no-op.
func (s *SQLiteStore) AddLink(ctx context.Context, identityID, provider, subject string) error {
	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO identity_links (provider, subject, identity_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider, subject) DO NOTHING`,
		provider, subject, identityID, now,
	)
	if err != nil {
		return fmt.Errorf("add identity link: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		if _, err := s.db.ExecContext(ctx, `UPDATE identities SET updated_at = ? WHERE id = ?`, now, identityID); err != nil {
			return fmt.Errorf("touch identity: %w", err)
		}
	}
	return nil
}

// SetRole updates the role of an identity.
func (s *SQLiteStore) SetRole(ctx context.Context, identityID string, role domain.Role) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE identities SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now().Unix(), identityID,
	)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("SetRole affected 0 rows", "identity_id", identityID)
		return fmt.Errorf("identity %s: %w", identityID, ErrNotFound)
	}
	return nil
}

// RecentMemory returns up to limit most recent entries, oldest first.
func (s *SQLiteStore) RecentMemory(ctx context.Context, identityID string, limit int) ([]domain.MemoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT speaker, text, created_at FROM (
			SELECT id, speaker, text, created_at FROM memories
			WHERE identity_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		identityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close memory rows", "error", closeErr)
		}
	}()

	var entries []domain.MemoryEntry
	for rows.Next() {
		var speaker, text string
		var createdAt int64
		if err := rows.Scan(&speaker, &text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		entries = append(entries, domain.MemoryEntry{
			Speaker:   domain.Speaker(speaker),
			Text:      text,
			Timestamp: time.UnixMilli(createdAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return entries, nil
}

// AppendMemory appends entries and trims to the newest limit entries.
// Retries with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) AppendMemory(ctx context.Context, identityID string, entries []domain.MemoryEntry, limit int) error {
	if len(entries) == 0 {
		return nil
	}

	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.appendMemoryOnce(ctx, identityID, entries, limit)
		if err == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms
			slog.Debug("AppendMemory failed with SQLITE_BUSY, retrying",
				"identity_id", identityID,
				"attempt", i+1,
				"delay", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return fmt.Errorf("append memory for %s: %w", identityID, ctx.Err())
			}
		}

		return fmt.Errorf("append memory for %s after %d attempts: %w", identityID, i+1, err)
	}

	return nil
}

func (s *SQLiteStore) appendMemoryOnce(ctx context.Context, identityID string, entries []domain.MemoryEntry, limit int) error {
	s.memoryMu.Lock()
	defer s.memoryMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append memory: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memories (identity_id, speaker, text, created_at) VALUES (?, ?, ?, ?)`,
			identityID, string(e.Speaker), e.Text, e.Timestamp.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}
	}

	if limit > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM memories WHERE identity_id = ? AND id NOT IN (
				SELECT id FROM memories WHERE identity_id = ? ORDER BY id DESC LIMIT ?
			)`,
			identityID, identityID, limit,
		); err != nil {
			return fmt.Errorf("trim memories: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append memory: %w", err)
	}
	return nil
}

// CreateLoginSession stores a browser login session.
func (s *SQLiteStore) CreateLoginSession(ctx context.Context, session *domain.LoginSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_sessions (token, identity_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		session.Token, session.IdentityID, session.ExpiresAt.Unix(), session.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert login session: %w", err)
	}
	return nil
}

// GetLoginSession retrieves a login session by token.
func (s *SQLiteStore) GetLoginSession(ctx context.Context, token string) (*domain.LoginSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, identity_id, expires_at, created_at FROM login_sessions WHERE token = ?`, token)

	var ls domain.LoginSession
	var expiresAt, createdAt int64
	err := row.Scan(&ls.Token, &ls.IdentityID, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan login session: %w", err)
	}
	ls.ExpiresAt = time.Unix(expiresAt, 0)
	ls.CreatedAt = time.Unix(createdAt, 0)
	return &ls, nil
}

// DeleteLoginSession removes a login session.
func (s *SQLiteStore) DeleteLoginSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete login session: %w", err)
	}
	return nil
}

// CleanupExpiredLoginSessions removes login sessions expired before now.
func (s *SQLiteStore) CleanupExpiredLoginSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired login sessions: %w", err)
	}
	return result.RowsAffected()
}
