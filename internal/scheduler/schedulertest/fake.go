// Package schedulertest provides an in-memory scheduler.Scheduler for tests.
package schedulertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pathakanu/mealremind/internal/scheduler"
)

// ErrDown is returned by every call while the fake is marked down.
var ErrDown = errors.New("schedulertest: scheduler unavailable")

// Fake keeps tasks in memory. Set Down to simulate an unreachable service, or
// FailScheduleAfter to let only the first n Schedule calls succeed.
type Fake struct {
	mu     sync.Mutex
	tasks  map[string]scheduler.Task
	seq    int
	clock  time.Time
	down   bool
	budget int

	ScheduleCalls int
	CancelCalls   int
}

// New returns an empty, healthy fake.
func New() *Fake {
	return &Fake{
		tasks:  make(map[string]scheduler.Task),
		clock:  time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		budget: -1,
	}
}

// SetDown toggles the unavailable state.
func (f *Fake) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// FailScheduleAfter makes Schedule fail once n more calls have succeeded.
// A negative n removes the limit.
func (f *Fake) FailScheduleAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.budget = n
}

// tick returns a strictly increasing modification time.
func (f *Fake) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// Schedule implements scheduler.Scheduler.
func (f *Fake) Schedule(_ context.Context, at time.Time, payload scheduler.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ScheduleCalls++
	if f.down {
		return "", ErrDown
	}
	if f.budget == 0 {
		return "", ErrDown
	}
	if f.budget > 0 {
		f.budget--
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	f.seq++
	id := fmt.Sprintf("task-%d", f.seq)
	runAt := at.UTC()
	now := f.tick()
	f.tasks[id] = scheduler.Task{
		ID:        id,
		Name:      payload.TaskName(),
		Ref:       payload.TaskRef(),
		Data:      data,
		NextRunAt: &runAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

// Cancel implements scheduler.Scheduler.
func (f *Fake) Cancel(_ context.Context, filter scheduler.Filter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CancelCalls++
	if f.down {
		return 0, ErrDown
	}
	if filter.IDs == nil && filter.Name == "" && filter.Refs == nil && !filter.PendingOnly {
		return 0, scheduler.ErrEmptyFilter
	}
	var n int64
	for id, task := range f.tasks {
		if matches(task, filter) {
			delete(f.tasks, id)
			n++
		}
	}
	return n, nil
}

// ListTasks implements scheduler.Scheduler.
func (f *Fake) ListTasks(_ context.Context, filter scheduler.Filter) ([]scheduler.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, ErrDown
	}
	var out []scheduler.Task
	for _, task := range f.tasks {
		if matches(task, filter) {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Inject stores a task as-is, bypassing Schedule. Used to seed duplicates.
func (f *Fake) Inject(at time.Time, payload scheduler.Payload) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := json.Marshal(payload)
	f.seq++
	id := fmt.Sprintf("task-%d", f.seq)
	runAt := at.UTC()
	now := f.tick()
	f.tasks[id] = scheduler.Task{
		ID: id, Name: payload.TaskName(), Ref: payload.TaskRef(), Data: data,
		NextRunAt: &runAt, CreatedAt: now, UpdatedAt: now,
	}
	return id
}

// MarkFired clears the run time of a task as the poller would after running it.
func (f *Fake) MarkFired(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task, ok := f.tasks[id]; ok {
		task.NextRunAt = nil
		task.UpdatedAt = f.tick()
		f.tasks[id] = task
	}
}

// Live returns the ids of pending tasks referencing ref.
func (f *Fake) Live(ref string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, task := range f.tasks {
		if task.Ref == ref && task.NextRunAt != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Task returns a stored task by id.
func (f *Fake) Task(id string) (scheduler.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	return task, ok
}

// Len returns the number of stored tasks.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func matches(task scheduler.Task, f scheduler.Filter) bool {
	if f.IDs != nil && !slices.Contains(f.IDs, task.ID) {
		return false
	}
	if f.Name != "" && task.Name != f.Name {
		return false
	}
	if f.Refs != nil && !slices.Contains(f.Refs, task.Ref) {
		return false
	}
	if f.PendingOnly && task.NextRunAt == nil {
		return false
	}
	return true
}
