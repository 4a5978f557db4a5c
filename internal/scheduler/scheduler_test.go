package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pathakanu/mealremind/internal/scheduler"
	"github.com/pathakanu/mealremind/internal/testutil"
	"gorm.io/gorm"
)

type pingPayload struct {
	Key  string `json:"key"`
	Note string `json:"note"`
}

func (p pingPayload) TaskName() string { return "ping" }
func (p pingPayload) TaskRef() string  { return p.Key }

var baseTime = time.Date(2030, 5, 10, 8, 0, 0, 0, time.UTC)

func newPoller(store *scheduler.Store, now time.Time) *scheduler.Poller {
	return scheduler.NewPoller(store, scheduler.PollerConfig{
		LockLifetime: 10 * time.Minute,
		BatchSize:    10,
		Now:          func() time.Time { return now },
	}, testutil.Logger())
}

func TestStoreScheduleAndList(t *testing.T) {
	t.Parallel()
	store := scheduler.NewStore(testutil.NewTestDatabase(t))
	ctx := context.Background()

	id, err := store.Schedule(ctx, baseTime, pingPayload{Key: "a", Note: "first"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := store.Schedule(ctx, baseTime, pingPayload{Key: "b"}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	tasks, err := store.ListTasks(ctx, scheduler.Filter{Refs: []string{"a"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != id {
		t.Fatalf("expected task %s, got %+v", id, tasks)
	}
	if !tasks[0].Pending() || !tasks[0].NextRunAt.Equal(baseTime) {
		t.Fatalf("unexpected run time: %v", tasks[0].NextRunAt)
	}

	var payload pingPayload
	if err := tasks[0].Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Note != "first" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	none, err := store.ListTasks(ctx, scheduler.Filter{Refs: []string{}})
	if err != nil || len(none) != 0 {
		t.Fatalf("empty ref list should match nothing, got %v, %v", none, err)
	}
}

func TestStoreListsMostRecentlyModifiedFirst(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDatabase(t)
	store := scheduler.NewStore(db)
	ctx := context.Background()

	offsets := []time.Duration{time.Minute, 3 * time.Minute, 2 * time.Minute}
	ids := make([]string, len(offsets))
	for i, offset := range offsets {
		id, err := store.Schedule(ctx, baseTime, pingPayload{Key: "same"})
		if err != nil {
			t.Fatalf("schedule: %v", err)
		}
		err = db.Model(&scheduler.Task{}).Where("id = ?", id).UpdateColumn("updated_at", baseTime.Add(offset)).Error
		if err != nil {
			t.Fatalf("stamp task: %v", err)
		}
		ids[i] = id
	}

	tasks, err := store.ListTasks(ctx, scheduler.Filter{Refs: []string{"same"}})
	if err != nil || len(tasks) != 3 {
		t.Fatalf("list: %d %v", len(tasks), err)
	}
	want := []string{ids[1], ids[2], ids[0]}
	for i, task := range tasks {
		if task.ID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, task.ID, want[i])
		}
	}
}

func TestStoreCancel(t *testing.T) {
	t.Parallel()
	store := scheduler.NewStore(testutil.NewTestDatabase(t))
	ctx := context.Background()

	for _, key := range []string{"a", "a", "b"} {
		if _, err := store.Schedule(ctx, baseTime, pingPayload{Key: key}); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}

	if _, err := store.Cancel(ctx, scheduler.Filter{}); !errors.Is(err, scheduler.ErrEmptyFilter) {
		t.Fatalf("expected ErrEmptyFilter, got %v", err)
	}
	if n, err := store.Cancel(ctx, scheduler.Filter{IDs: []string{}}); err != nil || n != 0 {
		t.Fatalf("empty id list: n=%d err=%v", n, err)
	}

	n, err := store.Cancel(ctx, scheduler.Filter{Refs: []string{"a"}})
	if err != nil || n != 2 {
		t.Fatalf("cancel a: n=%d err=%v", n, err)
	}
	n, err = store.Cancel(ctx, scheduler.Filter{Refs: []string{"a"}})
	if err != nil || n != 0 {
		t.Fatalf("second cancel should be a no-op: n=%d err=%v", n, err)
	}

	left, err := store.ListTasks(ctx, scheduler.Filter{Name: "ping"})
	if err != nil || len(left) != 1 || left[0].Ref != "b" {
		t.Fatalf("expected only b left, got %+v (%v)", left, err)
	}
}

func TestPollerRunsDueTaskOnce(t *testing.T) {
	t.Parallel()
	store := scheduler.NewStore(testutil.NewTestDatabase(t))
	ctx := context.Background()

	dueID, _ := store.Schedule(ctx, baseTime.Add(-time.Minute), pingPayload{Key: "due"})
	futureID, _ := store.Schedule(ctx, baseTime.Add(time.Hour), pingPayload{Key: "later"})

	var fired []string
	handler := func(_ context.Context, task scheduler.Task) error {
		fired = append(fired, task.ID)
		return nil
	}
	first := newPoller(store, baseTime)
	second := newPoller(store, baseTime)
	first.Define("ping", handler)
	second.Define("ping", handler)

	ran, err := first.RunDue(ctx)
	if err != nil || ran != 1 {
		t.Fatalf("first poll: ran=%d err=%v", ran, err)
	}
	ran, err = second.RunDue(ctx)
	if err != nil || ran != 0 {
		t.Fatalf("second poll should find nothing: ran=%d err=%v", ran, err)
	}
	if len(fired) != 1 || fired[0] != dueID {
		t.Fatalf("unexpected fires: %v", fired)
	}

	tasks, _ := store.ListTasks(ctx, scheduler.Filter{IDs: []string{dueID, futureID}})
	for _, task := range tasks {
		switch task.ID {
		case dueID:
			if task.Pending() || task.LastFinishedAt == nil || task.LockedAt != nil {
				t.Fatalf("due task not finished: %+v", task)
			}
		case futureID:
			if !task.Pending() {
				t.Fatalf("future task should still be pending")
			}
		}
	}

	pending, _ := store.ListTasks(ctx, scheduler.Filter{Name: "ping", PendingOnly: true})
	if len(pending) != 1 || pending[0].ID != futureID {
		t.Fatalf("expected only the future task pending, got %+v", pending)
	}
}

func TestPollerRecordsFailure(t *testing.T) {
	t.Parallel()
	store := scheduler.NewStore(testutil.NewTestDatabase(t))
	ctx := context.Background()

	id, _ := store.Schedule(ctx, baseTime, pingPayload{Key: "x"})
	poller := newPoller(store, baseTime)
	poller.Define("ping", func(context.Context, scheduler.Task) error {
		return errors.New("delivery refused")
	})

	if _, err := poller.RunDue(ctx); err != nil {
		t.Fatalf("run due: %v", err)
	}

	tasks, _ := store.ListTasks(ctx, scheduler.Filter{IDs: []string{id}})
	if len(tasks) != 1 {
		t.Fatalf("task missing")
	}
	if tasks[0].FailCount != 1 || tasks[0].FailReason != "delivery refused" || tasks[0].Pending() {
		t.Fatalf("unexpected failure record: %+v", tasks[0])
	}
}

func TestPollerReclaimsExpiredLock(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDatabase(t)
	store := scheduler.NewStore(db)
	ctx := context.Background()

	id, _ := store.Schedule(ctx, baseTime.Add(-time.Hour), pingPayload{Key: "crash"})
	lock(t, db, id, baseTime.Add(-time.Minute))

	runs := 0
	poller := newPoller(store, baseTime)
	poller.Define("ping", func(context.Context, scheduler.Task) error {
		runs++
		return nil
	})

	if ran, _ := poller.RunDue(ctx); ran != 0 {
		t.Fatalf("fresh lock must not be stolen, ran=%d", ran)
	}

	lock(t, db, id, baseTime.Add(-time.Hour))
	if ran, _ := poller.RunDue(ctx); ran != 1 || runs != 1 {
		t.Fatalf("expired lock should be re-run, ran=%d runs=%d", ran, runs)
	}
}

func TestPollerSkipsUndefinedTasks(t *testing.T) {
	t.Parallel()
	store := scheduler.NewStore(testutil.NewTestDatabase(t))
	ctx := context.Background()

	id, _ := store.Schedule(ctx, baseTime.Add(-time.Minute), pingPayload{Key: "orphan"})
	poller := newPoller(store, baseTime)
	poller.Define("other", func(context.Context, scheduler.Task) error { return nil })

	if ran, err := poller.RunDue(ctx); err != nil || ran != 0 {
		t.Fatalf("ran=%d err=%v", ran, err)
	}
	tasks, _ := store.ListTasks(ctx, scheduler.Filter{IDs: []string{id}, PendingOnly: true})
	if len(tasks) != 1 {
		t.Fatalf("undefined task should stay pending for another process")
	}
}

func TestPollerPurge(t *testing.T) {
	t.Parallel()
	store := scheduler.NewStore(testutil.NewTestDatabase(t))
	ctx := context.Background()

	store.Schedule(ctx, baseTime.Add(-time.Minute), pingPayload{Key: "old"})
	store.Schedule(ctx, baseTime.Add(time.Hour*24), pingPayload{Key: "pending"})

	poller := newPoller(store, baseTime)
	poller.Define("ping", func(context.Context, scheduler.Task) error { return nil })
	poller.RunDue(ctx)

	if n, err := poller.Purge(ctx, time.Hour); err != nil || n != 0 {
		t.Fatalf("nothing is old enough yet: n=%d err=%v", n, err)
	}

	later := newPoller(store, baseTime.Add(2*time.Hour))
	if n, err := later.Purge(ctx, time.Hour); err != nil || n != 1 {
		t.Fatalf("expected one purged task: n=%d err=%v", n, err)
	}
	left, _ := store.ListTasks(ctx, scheduler.Filter{Name: "ping"})
	if len(left) != 1 || left[0].Ref != "pending" {
		t.Fatalf("pending task must survive purge, got %+v", left)
	}
}

func lock(t *testing.T, db *gorm.DB, id string, at time.Time) {
	t.Helper()
	err := db.Model(&scheduler.Task{}).Where("id = ?", id).Update("locked_at", at).Error
	if err != nil {
		t.Fatalf("lock task: %v", err)
	}
}
