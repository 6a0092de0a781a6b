package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, j.Record(ctx, Run{
			ID:          fmt.Sprintf("run-%d", i),
			Started:     base.Add(time.Duration(i) * time.Hour),
			Finished:    base.Add(time.Duration(i)*time.Hour + 42*time.Second),
			Phase:       "verified",
			Outcome:     "completed",
			Verdict:     "verified",
			TargetURL:   "https://site.test/",
			SessionFile: "/srv/session.json",
		}))
	}

	runs, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-1", runs[1].ID)
	assert.Equal(t, 42*time.Second, runs[0].Duration())
	assert.True(t, runs[0].Started.Equal(base.Add(2*time.Hour)))
}

func TestRecord_ReplacesSameID(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	first := Run{ID: "x", Started: now, Finished: now, Phase: "timed_out", Outcome: "timed_out"}
	require.NoError(t, j.Record(ctx, first))
	second := first
	second.Phase = "fatal"
	second.Error = "navigation to https://site.test/ failed: boom"
	require.NoError(t, j.Record(ctx, second))

	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	got.Started, got.Finished = got.Started.UTC(), got.Finished.UTC()
	second.Started, second.Finished = second.Started.UTC(), second.Finished.UTC()
	if diff := cmp.Diff(second, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestOpen_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	j, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), Run{ID: "keep", Started: time.Now(), Finished: time.Now(), Phase: "verified"}))
	require.NoError(t, j.Close())

	j, err = Open(path, nil)
	require.NoError(t, err)
	defer j.Close()
	runs, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "keep", runs[0].ID)
	assert.Equal(t, path, j.Path())
}

func TestRunDuration_Unfinished(t *testing.T) {
	assert.Zero(t, Run{Started: time.Now()}.Duration())
}
