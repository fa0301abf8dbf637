package history_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/pyfreeze/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(state string, started time.Time) history.Entry {
	return history.Entry{
		ID:         uuid.NewString(),
		Command:    "python -m PyInstaller main.py",
		Script:     "/work/main.py",
		DistDir:    "/work/output/dist",
		State:      state,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// Recorded out of order on purpose.
	second := entry("failed", base.Add(time.Minute))
	first := entry("succeeded", base)
	third := entry("cancelled", base.Add(2*time.Minute))
	for _, e := range []history.Entry{second, first, third} {
		require.NoError(t, s.Record(e))
	}

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, 3*time.Second, all[0].Duration())
	assert.True(t, all[2].StartedAt.Equal(base))

	limited, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestLast(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Last(false)
	require.NoError(t, err)
	assert.False(t, ok)

	base := time.Now()
	ok1 := entry("succeeded", base)
	fail := entry("failed", base.Add(time.Second))
	require.NoError(t, s.Record(ok1))
	require.NoError(t, s.Record(fail))

	last, ok, err := s.Last(false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fail.ID, last.ID)

	last, ok, err = s.Last(true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ok1.ID, last.ID)
	assert.True(t, last.Succeeded())
}

func TestRecordRequiresID(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.Record(history.Entry{}))
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := history.Open(path)
	require.NoError(t, err)
	e := entry("succeeded", time.Now())
	require.NoError(t, s.Record(e))
	require.NoError(t, s.Close())

	s, err = history.Open(path)
	require.NoError(t, err)
	defer s.Close()

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, e.ID, all[0].ID)
	assert.Equal(t, e.DistDir, all[0].DistDir)
}
