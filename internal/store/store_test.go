package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "run")
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, RunStatusRunning, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, "run", got.Command)
		assert.Equal(t, RunStatusRunning, got.Status)
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetRun(context.Background(), "nonexistent-id")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("FinishRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "affinity")
		require.NoError(t, err)
		require.NoError(t, s.FinishRun(ctx, run.ID, RunStatusFailed, "pipeline: read output/top_lists/RFQ.json"))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, RunStatusFailed, got.Status)
		assert.Equal(t, "pipeline: read output/top_lists/RFQ.json", got.Error)
	})

	t.Run("FinishRunNotFound", func(t *testing.T) {
		s := newStore(t)

		err := s.FinishRun(context.Background(), "nonexistent-id", RunStatusComplete, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("ListRunsFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.CreateRun(ctx, "run")
		require.NoError(t, err)
		_, err = s.CreateRun(ctx, "total")
		require.NoError(t, err)
		require.NoError(t, s.FinishRun(ctx, a.ID, RunStatusComplete, ""))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		complete, err := s.ListRuns(ctx, RunFilter{Status: RunStatusComplete})
		require.NoError(t, err)
		require.Len(t, complete, 1)
		assert.Equal(t, a.ID, complete[0].ID)

		totals, err := s.ListRuns(ctx, RunFilter{Command: "total"})
		require.NoError(t, err)
		require.Len(t, totals, 1)
		assert.Equal(t, "total", totals[0].Command)

		limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("PhaseLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "run")
		require.NoError(t, err)

		phase, err := s.CreatePhase(ctx, run.ID, "affinity", "in-1")
		require.NoError(t, err)
		assert.Equal(t, PhaseStatusRunning, phase.Status)

		require.NoError(t, s.CompletePhase(ctx, phase.ID, PhaseResult{
			Status:       PhaseStatusComplete,
			OutputDigest: "out-1",
			DurationMs:   12,
			Metadata:     map[string]any{"rows": 3},
		}))

		phases, err := s.ListPhases(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, phases, 1)
		assert.Equal(t, "affinity", phases[0].Name)
		assert.Equal(t, PhaseStatusComplete, phases[0].Status)
		assert.Equal(t, "in-1", phases[0].InputDigest)
		assert.Equal(t, "out-1", phases[0].OutputDigest)
		assert.Equal(t, int64(12), phases[0].DurationMs)
		assert.Equal(t, map[string]any{"rows": float64(3)}, phases[0].Metadata)
	})

	t.Run("CompletePhaseNotFound", func(t *testing.T) {
		s := newStore(t)

		err := s.CompletePhase(context.Background(), "nonexistent-id", PhaseResult{Status: PhaseStatusComplete})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("OutputDigests", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "run")
		require.NoError(t, err)

		record := func(name, in, out string, status PhaseStatus) string {
			p, err := s.CreatePhase(ctx, run.ID, name, in)
			require.NoError(t, err)
			require.NoError(t, s.CompletePhase(ctx, p.ID, PhaseResult{Status: status, OutputDigest: out}))
			return p.ID
		}
		record("synergy", "in", "out-a", PhaseStatusComplete)
		record("synergy", "in", "out-a", PhaseStatusComplete)
		record("synergy", "in", "out-failed", PhaseStatusFailed)
		record("synergy", "other", "out-c", PhaseStatusComplete)
		record("total", "in", "out-d", PhaseStatusComplete)
		latest := record("synergy", "in", "out-b", PhaseStatusComplete)

		digests, err := s.OutputDigests(ctx, "synergy", "in", latest)
		require.NoError(t, err)
		assert.Equal(t, []string{"out-a"}, digests)

		none, err := s.OutputDigests(ctx, "groups", "in", "")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestSQLiteStore_MigrateTwice(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLiteStore_PhaseNeedsRun(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.CreatePhase(context.Background(), "no-such-run", "groups", "in")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start stage groups")
}

func TestSQLiteStore_CompletePhaseTouchesRun(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "run")
	require.NoError(t, err)
	p, err := s.CreatePhase(ctx, run.ID, "aggregate", "in")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.CompletePhase(ctx, p.ID, PhaseResult{Status: PhaseStatusComplete}))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt), "updated_at %v should follow created_at %v", got.UpdatedAt, got.CreatedAt)
}

func TestSQLiteStore_ListRunsOffset(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for _, cmd := range []string{"aggregate", "groups", "affinity"} {
		_, err := s.CreateRun(ctx, cmd)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	page, err := s.ListRuns(ctx, RunFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "groups", page[0].Command)
	assert.Equal(t, "aggregate", page[1].Command)
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
