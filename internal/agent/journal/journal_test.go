package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestJournal(t *testing.T) *Journal {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	j, err := New(db, zerolog.Nop())
	require.NoError(t, err)
	return j
}

func session(id, source string, started time.Time) Session {
	return Session{
		ID:          id,
		Source:      source,
		Path:        "/tmp/" + id + ".pprof",
		PID:         4242,
		StartedAt:   started,
		FinishedAt:  started.Add(2 * time.Minute),
		SampleCount: 120,
		Status:      StatusCompleted,
	}
}

func TestJournal_RecordAndList(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, j.Record(ctx, session("a", "CPUTrigger", now.Add(-time.Hour))))
	require.NoError(t, j.Record(ctx, session("b", "RandomSampling", now)))

	sessions, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, "b", sessions[0].ID, "newest first")
	assert.Equal(t, "RandomSampling", sessions[0].Source)
	assert.Equal(t, 4242, sessions[0].PID)
	assert.Equal(t, int64(120), sessions[0].SampleCount)
	assert.Equal(t, 2*time.Minute, sessions[0].Duration())
	assert.True(t, now.Equal(sessions[0].StartedAt.UTC()))
}

func TestJournal_ListLimit(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, j.Record(ctx, session(id, "OneShot", now.Add(time.Duration(i)*time.Minute))))
	}

	sessions, err := j.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s3", sessions[0].ID)
	assert.Equal(t, "s2", sessions[1].ID)
}

func TestJournal_RecordUpdatesExisting(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	s := session("dup", "MemoryTrigger", now)
	require.NoError(t, j.Record(ctx, s))

	s.Status = StatusFailed
	s.SampleCount = 0
	require.NoError(t, j.Record(ctx, s))

	sessions, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, StatusFailed, sessions[0].Status)
	assert.Zero(t, sessions[0].SampleCount)
}

func TestJournal_OpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.duckdb")
	ctx := context.Background()

	j, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, session("persisted", "CPUTrigger", time.Now().UTC())))
	require.NoError(t, j.Close())

	j, err = Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	sessions, err := j.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "persisted", sessions[0].ID)
}
