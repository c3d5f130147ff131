package runstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calpadsrunner/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func report(id string, started time.Time) *domain.BatchReport {
	unit := domain.OrgUnit{Short: "A", NumericKey: "0100001"}
	return &domain.BatchReport{
		RunID:       id,
		RunDate:     started,
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
		Results: []domain.WorkflowResult{
			{
				Job:      domain.WorkflowJob{Seq: 0, Task: domain.TaskUpload, Unit: unit, ArtifactName: "A 0100001 SENR 06.01.2024"},
				Outcome:  domain.Succeeded,
				Stage:    domain.StageConfirmed,
				Attempts: 1,
			},
			{
				Job:      domain.WorkflowJob{Seq: 1, Task: domain.TaskExtractDownload, Unit: unit},
				Outcome:  domain.Failed,
				Kind:     domain.KindSelectorTimeout,
				Stage:    domain.StagePageReady,
				Err:      errors.New("wait a.btn"),
				Attempts: 2,
			},
		},
	}
}

func TestSaveReportAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t0 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveReport(ctx, report("run-old", t0)))
	require.NoError(t, s.SaveReport(ctx, report("run-new", t0.Add(24*time.Hour))))

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, 1, runs[0].Succeeded)
	assert.Equal(t, 1, runs[0].Failed)

	rows, err := s.Results(ctx, "run-old")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "upload", rows[0].Task)
	assert.Equal(t, "A 0100001 SENR 06.01.2024", rows[0].Artifact)
	assert.Equal(t, "failed", rows[1].Outcome)
	assert.Equal(t, "SELECTOR_TIMEOUT", rows[1].ErrorKind)
	assert.Equal(t, 2, rows[1].Attempts)
}

func TestSaveReport_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := report("run", time.Now())
	require.NoError(t, s.SaveReport(ctx, r))
	require.NoError(t, s.SaveReport(ctx, r))

	rows, err := s.Results(ctx, "run")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSaveReport_DuplicateSeq(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := report("run", time.Now())
	r.Results[1].Job.Seq = r.Results[0].Job.Seq
	require.NoError(t, s.SaveReport(ctx, r))

	rows, err := s.Results(ctx, "run")
	require.NoError(t, err)
	require.Len(t, rows, 2, "jobs sharing a seq keep separate rows")
	assert.Equal(t, 0, rows[0].Seq)
	assert.Equal(t, 1, rows[1].Seq)
	assert.Equal(t, "upload", rows[0].Task)
	assert.Equal(t, "extract-download", rows[1].Task)
}

func TestRecentRuns_Limit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveReport(ctx, report(id, base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)
}
