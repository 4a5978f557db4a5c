package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pathakanu/mealremind/internal/model"
	"github.com/pathakanu/mealremind/internal/scheduler"
)

// Task states reported by PlanReminders.
const (
	TaskPending = "pending"
	TaskDone    = "done"
	TaskMissing = "missing"
	TaskNone    = "none"
)

// CleanupRedundantTasks removes duplicate live tasks of the user's reminders,
// keeping the most recently modified one per reminder. It returns how many
// tasks were cancelled.
func (m *Manager) CleanupRedundantTasks(ctx context.Context, userID string) (int, error) {
	reminders, err := m.reminders.FindByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load reminders of user %s: %w", userID, err)
	}
	if len(reminders) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(reminders))
	for _, r := range reminders {
		ids = append(ids, r.ID)
	}
	tasks, err := m.tasks.ListTasks(ctx, scheduler.Filter{Name: TaskSendReminder, Refs: ids, PendingOnly: true})
	if err != nil {
		return 0, unavailable("list tasks", err)
	}
	// ListTasks returns the most recently modified first.
	byRef := make(map[string][]scheduler.Task, len(reminders))
	for _, task := range tasks {
		byRef[task.Ref] = append(byRef[task.Ref], task)
	}

	var (
		redundant []string
		errs      []error
	)
	for i := range reminders {
		r := &reminders[i]
		live := byRef[r.ID]
		if len(live) < 2 {
			continue
		}
		keep := live[0]
		for _, task := range live[1:] {
			redundant = append(redundant, task.ID)
		}
		if r.TaskID == nil || *r.TaskID != keep.ID {
			if err := m.reminders.SetTaskID(ctx, r.ID, keep.ID); err != nil {
				errs = append(errs, fmt.Errorf("repoint reminder %s: %w", r.ID, err))
			}
		}
		m.log.Warn().Str("reminder_id", r.ID).Int("live_tasks", len(live)).Msg("redundant tasks for reminder")
	}
	if len(redundant) == 0 {
		return 0, errors.Join(errs...)
	}

	n, err := m.tasks.Cancel(ctx, scheduler.Filter{IDs: redundant})
	if err != nil {
		errs = append(errs, unavailable("cancel redundant tasks", err))
	}
	return int(n), errors.Join(errs...)
}

// CleanupAll runs CleanupRedundantTasks for every user owning reminders, then
// cancels pending tasks whose reminder no longer exists.
func (m *Manager) CleanupAll(ctx context.Context) (int, error) {
	users, err := m.reminders.Owners(ctx)
	if err != nil {
		return 0, fmt.Errorf("load reminder owners: %w", err)
	}
	total := 0
	var errs []error
	for _, userID := range users {
		n, err := m.CleanupRedundantTasks(ctx, userID)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	n, err := m.CancelOrphanTasks(ctx)
	total += n
	if err != nil {
		errs = append(errs, err)
	}
	return total, errors.Join(errs...)
}

// CancelOrphanTasks cancels pending sendReminder tasks whose reminder row is
// gone. Such tasks are left behind when reminders are deleted while the
// scheduler cannot be reached.
func (m *Manager) CancelOrphanTasks(ctx context.Context) (int, error) {
	tasks, err := m.tasks.ListTasks(ctx, scheduler.Filter{Name: TaskSendReminder, PendingOnly: true})
	if err != nil {
		return 0, unavailable("list tasks", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	refs := make([]string, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		if !seen[task.Ref] {
			seen[task.Ref] = true
			refs = append(refs, task.Ref)
		}
	}
	existing, err := m.reminders.ExistingIDs(ctx, refs)
	if err != nil {
		return 0, fmt.Errorf("load reminder ids: %w", err)
	}
	alive := make(map[string]bool, len(existing))
	for _, id := range existing {
		alive[id] = true
	}

	var orphans []string
	for _, task := range tasks {
		if !alive[task.Ref] {
			orphans = append(orphans, task.ID)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}
	n, err := m.tasks.Cancel(ctx, scheduler.Filter{IDs: orphans})
	if err != nil {
		return 0, unavailable("cancel orphan tasks", err)
	}
	m.log.Info().Int64("cancelled", n).Msg("orphan reminder tasks")
	return int(n), nil
}

// RetryUnscheduled is the reconciliation sweep. Active scheduled reminders
// whose task handle is missing or no longer pending get a fresh task; the ones
// already in the past are expired instead. It returns how many were repaired.
func (m *Manager) RetryUnscheduled(ctx context.Context) (int, error) {
	reminders, err := m.reminders.FindActiveScheduled(ctx, m.sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("load scheduled reminders: %w", err)
	}
	if len(reminders) == 0 {
		return 0, nil
	}

	var handles []string
	for _, r := range reminders {
		if r.HasTask() {
			handles = append(handles, *r.TaskID)
		}
	}
	live := make(map[string]bool, len(handles))
	if len(handles) > 0 {
		tasks, err := m.tasks.ListTasks(ctx, scheduler.Filter{IDs: handles, PendingOnly: true})
		if err != nil {
			return 0, unavailable("list tasks", err)
		}
		for _, task := range tasks {
			live[task.ID] = true
		}
	}

	repaired := 0
	var errs []error
	now := m.now()
	for i := range reminders {
		r := &reminders[i]
		if r.HasTask() && live[*r.TaskID] {
			continue
		}
		if !r.RemindAt.After(now) {
			err = m.disarm(ctx, r, model.ReminderExpired)
		} else {
			err = m.arm(ctx, r)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("repair reminder %s: %w", r.ID, err))
			continue
		}
		repaired++
	}
	if repaired > 0 {
		m.log.Info().Int("repaired", repaired).Msg("reminder sweep")
	}
	return repaired, errors.Join(errs...)
}

// View is a reminder together with the state of its task.
type View struct {
	model.Reminder
	TaskStatus string     `json:"task_status"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
}

// PlanReminders lists the reminders of a plan with their task state.
func (m *Manager) PlanReminders(ctx context.Context, planID string) ([]View, error) {
	reminders, err := m.reminders.FindByPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load reminders of plan %s: %w", planID, err)
	}
	return m.views(ctx, reminders)
}

func (m *Manager) views(ctx context.Context, reminders []model.Reminder) ([]View, error) {
	views := make([]View, 0, len(reminders))
	if len(reminders) == 0 {
		return views, nil
	}

	ids := make([]string, 0, len(reminders))
	for _, r := range reminders {
		ids = append(ids, r.ID)
	}
	tasks, err := m.tasks.ListTasks(ctx, scheduler.Filter{Name: TaskSendReminder, Refs: ids})
	if err != nil {
		return nil, unavailable("list tasks", err)
	}
	byID := make(map[string]scheduler.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	for _, r := range reminders {
		v := View{Reminder: r, TaskStatus: TaskNone}
		if r.HasTask() {
			task, ok := byID[*r.TaskID]
			switch {
			case !ok:
				v.TaskStatus = TaskMissing
			case task.Pending():
				v.TaskStatus = TaskPending
				v.NextRunAt = task.NextRunAt
			default:
				v.TaskStatus = TaskDone
			}
		}
		views = append(views, v)
	}
	return views, nil
}
