package worker

import (
	"context"
	"testing"
	"time"

	"github.com/temporal-agent/temporal-agent-mcp/internal/dispatch"
	"github.com/temporal-agent/temporal-agent-mcp/internal/schedule"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store/sqldb"
)

func newTestRepo(t *testing.T) *sqldb.Repo {
	t.Helper()
	repo, err := sqldb.Open(":memory:", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.EnsureSchema(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// storeOnlyRouter delivers store callbacks and nothing else, so webhook
// tasks fail deterministically without network.
func storeOnlyRouter(repo store.Repository) *dispatch.Router {
	return dispatch.NewRouter(nil, nil, nil, dispatch.NewStoreDispatcher(repo))
}

func newTestWorker(repo store.Repository) *Worker {
	return New(repo, storeOnlyRouter(repo), schedule.NewEvaluator(), Options{})
}

func createTask(t *testing.T, repo store.Repository, task *store.Task) *store.Task {
	t.Helper()
	if task.CallbackConfig == nil {
		task.CallbackConfig = store.ConfigMap{}
	}
	if task.Payload == nil {
		task.Payload = store.JSONMap{}
	}
	task.Status = store.StatusActive
	task.MaxRetries = 2
	task.RetryDelaySeconds = 30
	task.CreatedBy = "alice"
	if err := repo.CreateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	return task
}

func TestPollFiresDueOneShot(t *testing.T) {
	repo := newTestRepo(t)
	w := newTestWorker(repo)
	ctx := context.Background()
	now := time.Now().UTC()

	fireAt := now.Add(-time.Second)
	task := createTask(t, repo, &store.Task{
		Name: "ping", Kind: store.KindOneShot, FireAt: &fireAt,
		CallbackKind: store.CallbackStore,
	})

	w.PollOnce(ctx)

	got, err := repo.GetTask(ctx, task.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.FireCount != 1 {
		t.Fatalf("fire_count = %d, want 1", got.FireCount)
	}

	execs, err := repo.ListExecutions(ctx, task.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 1 || execs[0].Status != store.ExecSuccess {
		t.Fatalf("executions = %+v", execs)
	}

	notes, err := repo.PullNotifications(ctx, "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notes))
	}

	// A completed task is not due again.
	w.PollOnce(ctx)
	execs, _ = repo.ListExecutions(ctx, task.ID, 10)
	if len(execs) != 1 {
		t.Fatalf("second poll re-fired: %d executions", len(execs))
	}
}

func TestPollSkipsFutureAndPaused(t *testing.T) {
	repo := newTestRepo(t)
	w := newTestWorker(repo)
	ctx := context.Background()
	now := time.Now().UTC()

	future := now.Add(time.Hour)
	createTask(t, repo, &store.Task{
		Name: "later", Kind: store.KindOneShot, FireAt: &future,
		CallbackKind: store.CallbackStore,
	})

	past := now.Add(-time.Minute)
	paused := createTask(t, repo, &store.Task{
		Name: "paused", Kind: store.KindOneShot, FireAt: &past,
		CallbackKind: store.CallbackStore,
	})
	if err := repo.PauseTask(ctx, paused.ID, "alice", now); err != nil {
		t.Fatal(err)
	}

	w.PollOnce(ctx)

	notes, _ := repo.PullNotifications(ctx, "alice", 10)
	if len(notes) != 0 {
		t.Fatalf("fired %d tasks, want 0", len(notes))
	}
}

func TestTwoWorkersNeverDoubleFire(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fireAt := now.Add(-time.Second)
	task := createTask(t, repo, &store.Task{
		Name: "once", Kind: store.KindOneShot, FireAt: &fireAt,
		CallbackKind: store.CallbackStore,
	})

	a := newTestWorker(repo)
	b := newTestWorker(repo)
	a.PollOnce(ctx)
	b.PollOnce(ctx)

	execs, err := repo.ListExecutions(ctx, task.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 1 {
		t.Fatalf("executions = %d, want exactly 1", len(execs))
	}
}

func TestRecurringAdvances(t *testing.T) {
	repo := newTestRepo(t)
	w := newTestWorker(repo)
	ctx := context.Background()
	now := time.Now().UTC()

	next := now.Add(-time.Minute)
	task := createTask(t, repo, &store.Task{
		Name: "tick", Kind: store.KindRecurring,
		Cron: "*/15 * * * *", Timezone: "UTC", NextFireAt: &next,
		CallbackKind: store.CallbackStore,
	})

	w.PollOnce(ctx)

	got, err := repo.GetTask(ctx, task.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
	if got.FireCount != 1 {
		t.Fatalf("fire_count = %d, want 1", got.FireCount)
	}
	if got.NextFireAt == nil || !got.NextFireAt.After(now) {
		t.Fatalf("next_fire_at = %v, want after now", got.NextFireAt)
	}
	if got.LockedAt != nil {
		t.Error("lease not released after advance")
	}
}

func TestFailureRetriesThenFails(t *testing.T) {
	repo := newTestRepo(t)
	w := newTestWorker(repo)
	ctx := context.Background()

	// Webhook callbacks have no dispatcher in this router, so every
	// attempt fails and exercises the retry path.
	clock := time.Now().UTC()
	w.now = func() time.Time { return clock }

	fireAt := clock.Add(-time.Second)
	task := createTask(t, repo, &store.Task{
		Name: "doomed", Kind: store.KindOneShot, FireAt: &fireAt,
		CallbackKind: store.CallbackWebhook,
		CallbackConfig: store.ConfigMap{"url": "https://example.com/h"},
	})

	// MaxRetries=2: attempts 1 and 2 defer, attempt 3 exhausts the budget.
	for attempt := 1; attempt <= 3; attempt++ {
		w.PollOnce(ctx)
		clock = clock.Add(time.Duration(task.RetryDelaySeconds+1) * time.Second)
	}

	got, err := repo.GetTask(ctx, task.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}

	execs, _ := repo.ListExecutions(ctx, task.ID, 10)
	if len(execs) != 3 {
		t.Fatalf("executions = %d, want 3", len(execs))
	}
	for _, e := range execs {
		if e.Status != store.ExecFailed {
			t.Errorf("execution status = %s, want failed", e.Status)
		}
	}
}

func TestStartStopIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	w := newTestWorker(repo)
	ctx := context.Background()

	w.Start(ctx)
	w.Start(ctx)
	w.Stop()
	w.Stop()
}
