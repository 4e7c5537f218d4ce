package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/deskmove/internal/config"
	"github.com/me/deskmove/internal/engine"
	"github.com/me/deskmove/internal/gateway"
	"github.com/me/deskmove/internal/scheduler"
	"github.com/me/deskmove/internal/server"
	"github.com/me/deskmove/internal/store"
	"github.com/me/deskmove/pkg/model"
)

type testEnv struct {
	url     string
	queue   *scheduler.Queue
	history *store.SQLiteStore
}

// startTestServer starts a server over an in-memory tenant and history store.
// The queue never ticks on its own.
func startTestServer(t *testing.T) *testEnv {
	t.Helper()
	srvLogger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	gw := gateway.NewMemory()
	require.NoError(t, gw.LoadFixture(strings.NewReader(gateway.DemoFixture)))
	events := server.NewBroadcaster(16, srvLogger)
	eng := engine.New(gw, engine.DefaultConfig(), srvLogger)
	eng.SetNotifier(events.OnLog)
	q := scheduler.NewQueue(eng, scheduler.DefaultConfig(), events, srvLogger)

	st, err := store.NewSQLiteStore(":memory:", srvLogger)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	srv := server.New(config.DefaultConfig().Server, q, srvLogger, server.WithHistory(st), server.WithEvents(events))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{url: ts.URL, queue: q, history: st}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func enqueueAlice(t *testing.T, env *testEnv) string {
	t.Helper()
	out, err := runCLI(t, "--server", env.url, "enqueue",
		"--user", "alice@example.com", "--source", "grp-standard", "--target", "grp-gpu")
	require.NoError(t, err, out)
	jobs := env.queue.Jobs()
	require.NotEmpty(t, jobs)
	return jobs[len(jobs)-1].ID
}

func TestEnqueueCommand(t *testing.T) {
	env := startTestServer(t)
	out, err := runCLI(t, "--server", env.url, "enqueue",
		"--user", "alice@example.com", "--source", "grp-standard", "--target", "grp-gpu")
	require.NoError(t, err)
	assert.Contains(t, out, "Job queued: job_")
	assert.Equal(t, 1, env.queue.Stats().Queued)
}

func TestEnqueueCommand_ValidationError(t *testing.T) {
	env := startTestServer(t)
	_, err := runCLI(t, "--server", env.url, "enqueue", "--user", "alice@example.com", "--source", "grp-standard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	assert.Equal(t, 0, env.queue.Stats().Total)
}

func TestEnqueueCommand_Batch(t *testing.T) {
	env := startTestServer(t)
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source_group_id: grp-standard
target_group_id: grp-gpu
jobs:
  - user_principal_name: alice@example.com
  - user_principal_name: bob@example.com
    target_group_id: grp-other
`), 0o644))

	out, err := runCLI(t, "--server", env.url, "enqueue", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Queued 2 job(s)")

	jobs := env.queue.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "grp-gpu", jobs[0].TargetGroupID)
	assert.Equal(t, "grp-other", jobs[1].TargetGroupID)
	assert.Equal(t, "grp-standard", jobs[1].SourceGroupID)
}

func TestParseBatch(t *testing.T) {
	reqs, err := parseBatch(strings.NewReader(`
- user_principal_name: a@example.com
  source_group_id: s
  target_group_id: t
- user_id: u-2
  source_group_id: s
  target_group_id: t
`))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "u-2", reqs[1].UserID)

	for name, body := range map[string]string{
		"empty":   "",
		"scalar":  "just text",
		"no jobs": "jobs: []",
		"bad":     "- [unclosed",
	} {
		_, err := parseBatch(strings.NewReader(body))
		assert.Error(t, err, name)
	}
}

func TestListCommand(t *testing.T) {
	env := startTestServer(t)
	id := enqueueAlice(t, env)

	out, err := runCLI(t, "--server", env.url, "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "Queued")

	out, err = runCLI(t, "--server", env.url, "list", "--status", "Failed")
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs found.")
}

func TestListCommand_JSON(t *testing.T) {
	env := startTestServer(t)
	enqueueAlice(t, env)

	out, err := runCLI(t, "--server", env.url, "--json", "list")
	require.NoError(t, err)
	var jobs []model.Job
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	require.Len(t, jobs, 1)
}

func TestStatusCommand(t *testing.T) {
	env := startTestServer(t)
	id := enqueueAlice(t, env)

	out, err := runCLI(t, "--server", env.url, "status", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Job: "+id)
	assert.Contains(t, out, "Status:    Queued")
	assert.Contains(t, out, "Stage:     GettingUserInfo")

	_, err = runCLI(t, "--server", env.url, "status", "job_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestRemoveAndReorderCommands(t *testing.T) {
	env := startTestServer(t)
	first := enqueueAlice(t, env)
	out, err := runCLI(t, "--server", env.url, "enqueue",
		"--user", "bob@example.com", "--source", "grp-standard", "--target", "grp-gpu")
	require.NoError(t, err, out)
	second := env.queue.Jobs()[1].ID

	out, err = runCLI(t, "--server", env.url, "reorder", second, "top")
	require.NoError(t, err)
	assert.Contains(t, out, "position 1")
	assert.Equal(t, second, env.queue.Jobs()[0].ID)

	_, err = runCLI(t, "--server", env.url, "reorder", second, "sideways")
	assert.Error(t, err)

	out, err = runCLI(t, "--server", env.url, "rm", first)
	require.NoError(t, err)
	assert.Contains(t, out, "Job removed")
	assert.Len(t, env.queue.Jobs(), 1)
}

func TestQueueCommands(t *testing.T) {
	env := startTestServer(t)

	out, err := runCLI(t, "--server", env.url, "queue", "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Queue:       stopped")

	out, err = runCLI(t, "--server", env.url, "queue", "concurrency", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Concurrency: 7 (max 20)")

	_, err = runCLI(t, "--server", env.url, "queue", "concurrency", "many")
	assert.Error(t, err)

	out, err = runCLI(t, "--server", env.url, "queue", "start")
	require.NoError(t, err)
	assert.Contains(t, out, "Queue:       running")

	out, err = runCLI(t, "--server", env.url, "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "0 total")
}

func TestHistoryCommand(t *testing.T) {
	env := startTestServer(t)

	out, err := runCLI(t, "--server", env.url, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No finished jobs found.")

	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, env.history.SaveSummary(context.Background(), model.JobSummary{
		JobID:           "job_done",
		User:            "alice@example.com",
		SourceGroup:     "grp-standard",
		TargetGroup:     "grp-gpu",
		NewResourceName: "CPC-alice-gpu",
		Status:          model.StatusSuccess,
		Stage:           model.StageComplete,
		EndTime:         end,
		Message:         "migrated",
	}))

	out, err = runCLI(t, "--server", env.url, "history", "--user", "alice@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "2026-03-01 12:00:00")
	assert.Contains(t, out, "CPC-alice-gpu")
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printEvent(&buf, "log",
		[]byte(`{"type":"log","time":"2026-03-01T12:00:00Z","job_id":"job_1","level":"warn","message":"status anomaly"}`)))
	require.NoError(t, printEvent(&buf, "removed", []byte(`{"type":"removed","time":"2026-03-01T12:00:01Z","job_id":"job_2"}`)))
	require.NoError(t, printEvent(&buf, "snapshot", []byte(`[]`)))

	out := buf.String()
	assert.Contains(t, out, "warn   job_1  status anomaly")
	assert.Contains(t, out, "gone   job_2")
	assert.Contains(t, out, "watching 0 job(s)")

	assert.Error(t, printEvent(&buf, "log", []byte("{")))
}

func TestWatchCommand(t *testing.T) {
	env := startTestServer(t)
	id := enqueueAlice(t, env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := NewRootCmd()
	var out syncBuffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--server", env.url, "watch", "--job", id})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "watching 1 job(s)") },
		5*time.Second, 10*time.Millisecond)
	require.NoError(t, env.queue.Remove(id))
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "gone   "+id) },
		5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
