package shared

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"modernc.org/sqlite"
)

// busyError provokes a real SQLITE_BUSY: one connection holds the write lock
// while a second one, with no busy timeout, tries to write.
func busyError(t *testing.T) error {
	t.Helper()
	path := filepath.Join(t.TempDir(), "busy.db")
	ctx := context.Background()

	holder, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = holder.Close() })
	_, err = holder.ExecContext(ctx, `CREATE TABLE t (v INTEGER)`)
	require.NoError(t, err)

	tx, err := holder.BeginTx(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	_, err = tx.ExecContext(ctx, `INSERT INTO t (v) VALUES (1)`)
	require.NoError(t, err)

	other, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	_, err = other.ExecContext(ctx, `INSERT INTO t (v) VALUES (2)`)
	require.Error(t, err)
	return err
}

func constraintError(t *testing.T) error {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "constraint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE t (v INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO t (v) VALUES (1)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO t (v) VALUES (1)`)
	require.Error(t, err)
	return err
}

func TestSQLiteErrorClassification(t *testing.T) {
	busy := busyError(t)
	var se *sqlite.Error
	require.True(t, errors.As(busy, &se), "driver should return *sqlite.Error, got %T", busy)

	tests := []struct {
		name     string
		err      error
		busy     bool
		locked   bool
		conflict bool
	}{
		{"nil", nil, false, false, false},
		{"driver busy", busy, true, false, true},
		{"wrapped driver busy", fmt.Errorf("append memory: %w", busy), true, false, true},
		{"driver constraint", constraintError(t), false, false, false},
		{"busy text", errors.New("step: SQLITE_BUSY"), true, false, true},
		{"locked text", errors.New("database is locked"), false, true, true},
		{"unrelated", errors.New("no such table: t"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.busy, IsSQLiteBusyError(tt.err))
			assert.Equal(t, tt.locked, IsSQLiteLockedError(tt.err))
			assert.Equal(t, tt.conflict, IsSQLiteConflictError(tt.err))
		})
	}
}
