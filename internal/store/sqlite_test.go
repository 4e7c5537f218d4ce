package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/deskmove/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleSummary(id string, end time.Time) model.JobSummary {
	return model.JobSummary{
		JobID:           id,
		User:            "alice@example.com",
		SourceGroup:     "CPC-Westeurope",
		OldResourceName: "CPC-alice-1",
		TargetGroup:     "CPC-Northeurope",
		NewResourceName: "CPC-alice-2",
		Status:          model.StatusSuccess,
		Stage:           model.StageComplete,
		StartTime:       end.Add(-40 * time.Minute),
		EndTime:         end,
		Message:         "migrated 1 resource(s) to CPC-Northeurope",
		Anomalies:       1,
	}
}

func TestSaveAndGetSummary(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	end := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	want := sampleSummary("job_1", end)

	require.NoError(t, st.SaveSummary(ctx, want))

	got, err := st.GetSummary(ctx, "job_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	missing, err := st.GetSummary(ctx, "job_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveSummaryReplaces(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	s := sampleSummary("job_1", time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC))
	require.NoError(t, st.SaveSummary(ctx, s))

	s.Status = model.StatusFailed
	s.Message = "WaitingForGracePeriod: timed out after 15m0s"
	require.NoError(t, st.SaveSummary(ctx, s))

	got, err := st.GetSummary(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)

	_, total, err := st.ListSummaries(ctx, model.DefaultListOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestSaveSummaryRejectsUnfinished(t *testing.T) {
	st := testStore(t)
	s := sampleSummary("job_1", time.Now())
	s.Status = model.StatusMonitoring
	assert.Error(t, st.SaveSummary(context.Background(), s))
	assert.Error(t, st.SaveSummary(context.Background(), model.JobSummary{Status: model.StatusFailed}))
}

func TestListSummaries(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s := sampleSummary(fmt.Sprintf("job_%d", i), base.Add(time.Duration(i)*time.Minute))
		if i%2 == 1 {
			s.Status = model.StatusFailed
			s.User = "Bob@Example.com"
		}
		require.NoError(t, st.SaveSummary(ctx, s))
	}

	all, total, err := st.ListSummaries(ctx, model.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, all, 2)
	assert.Equal(t, "job_4", all[0].JobID, "newest first")
	assert.Equal(t, "job_3", all[1].JobID)

	page, _, err := st.ListSummaries(ctx, model.ListOptions{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "job_0", page[0].JobID)

	failed, total, err := st.ListSummaries(ctx, model.ListOptions{Status: string(model.StatusFailed)})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, failed, 2)

	bob, total, err := st.ListSummaries(ctx, model.ListOptions{User: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, bob, 2)
}

func TestMigrateIsIdempotent(t *testing.T) {
	st := testStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestMigrateAddsColumnsToOldSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE job_history (
		job_id TEXT PRIMARY KEY, user_name TEXT NOT NULL, source_group TEXT NOT NULL,
		old_resource_name TEXT NOT NULL DEFAULT '', target_group TEXT NOT NULL,
		new_resource_name TEXT NOT NULL DEFAULT '', status TEXT NOT NULL, stage TEXT NOT NULL,
		start_time TEXT, end_time TEXT NOT NULL, message TEXT NOT NULL DEFAULT '')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	st, err := NewSQLiteStore(path, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	s := sampleSummary("job_1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, st.SaveSummary(ctx, s))
	got, err := st.GetSummary(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Anomalies)
}
