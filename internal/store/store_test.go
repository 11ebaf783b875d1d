package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "2"))
}

func TestOpen_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "qc.db")

	s, err := Open(path)
	require.NoError(t, err)
	rec := createTestRecord("r1", "P1", "UDS", "2024-01-01")
	rec.QCStatus = visit.QCStatus{"a": visit.Pass, "b": visit.Fail}
	require.NoError(t, s.PutRecord(ctx, rec))
	seq := s.clock.Current()
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, rec.QCStatus, got.QCStatus)

	// The clock resumes after the last stamped row.
	assert.Equal(t, seq, s.clock.Current())
	assert.Equal(t, seq+1, s.clock.Next())
}
