// Package reminder keeps meal reminders and their scheduled tasks consistent
// with the meal plan they belong to, and delivers them when their task fires.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pathakanu/mealremind/internal/model"
	"github.com/pathakanu/mealremind/internal/repository"
	"github.com/pathakanu/mealremind/internal/scheduler"
	"github.com/rs/zerolog"
)

// TaskSendReminder is the task name reminders are scheduled under.
const TaskSendReminder = "sendReminder"

// ErrSchedulerUnavailable marks a failed call to the task scheduler. The
// reminder row is committed regardless and the sweep retries scheduling.
var ErrSchedulerUnavailable = errors.New("reminder: scheduler unavailable")

// SendReminderPayload is the data carried by a sendReminder task.
type SendReminderPayload struct {
	ReminderID  string `json:"reminder_id"`
	OwnerUserID string `json:"owner_user_id"`
	Message     string `json:"message"`
}

// TaskName implements scheduler.Payload.
func (SendReminderPayload) TaskName() string { return TaskSendReminder }

// TaskRef implements scheduler.Payload; tasks are filtered by reminder id.
func (p SendReminderPayload) TaskRef() string { return p.ReminderID }

// Fire is handed to the Notifier once a reminder transitions to sent.
type Fire struct {
	ReminderID  string    `json:"reminder_id"`
	OwnerUserID string    `json:"owner_user_id"`
	Message     string    `json:"message"`
	SentAt      time.Time `json:"sent_at"`
}

// Notifier delivers fired reminders.
type Notifier interface {
	Notify(ctx context.Context, fire Fire) error
}

// Target identifies the meal a reminder is reconciled for.
type Target struct {
	OwnerUserID string
	MealPlanID  string
	MealDayID   string
	MealID      string
	Meal        *model.Meal
	MealDay     *model.MealDay
	Location    *time.Location
	// Suspended is set while the plan is paused or blocked.
	Suspended bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used to decide whether a reminder is in the past.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSweepBatch sets how many reminders RetryUnscheduled inspects per run.
func WithSweepBatch(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sweepBatch = n
		}
	}
}

// Manager is the reminder consistency manager.
type Manager struct {
	reminders  repository.ReminderRepository
	tasks      scheduler.Scheduler
	notifier   Notifier
	log        zerolog.Logger
	now        func() time.Time
	sweepBatch int
}

// NewManager returns a Manager over the reminder store and task scheduler.
// Fired reminders are handed to notifier.
func NewManager(reminders repository.ReminderRepository, tasks scheduler.Scheduler, notifier Notifier, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		reminders:  reminders,
		tasks:      tasks,
		notifier:   notifier,
		log:        log,
		now:        time.Now,
		sweepBatch: 200,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrSchedulerUnavailable, err)
}

func payloadOf(r *model.Reminder) SendReminderPayload {
	return SendReminderPayload{ReminderID: r.ID, OwnerUserID: r.UserID, Message: r.Message}
}

// Reconcile makes the stored reminder and its task match the meal. It returns
// the surviving reminder, or nil when the meal needs none.
func (m *Manager) Reconcile(ctx context.Context, t Target) (*model.Reminder, error) {
	if t.Meal == nil || t.MealDay == nil {
		return nil, fmt.Errorf("reconcile meal %s: %w", t.MealID, model.ErrNotFound)
	}

	log := m.log.With().Str("user_id", t.OwnerUserID).Str("meal_id", t.MealID).Logger()

	if len(t.Meal.Dishes) == 0 {
		existing, err := m.reminders.FindByTuple(ctx, t.OwnerUserID, t.MealPlanID, t.MealDayID, t.MealID)
		if err != nil {
			return nil, fmt.Errorf("load reminders: %w", err)
		}
		if _, err := m.remove(ctx, existing); err != nil {
			return nil, err
		}
		return nil, nil
	}

	remindAt, err := RemindAt(t.MealDay.Date, t.Meal.Time, t.Location)
	if err != nil {
		return nil, err
	}
	message := ComposeMessage(t.Meal)

	existing, err := m.reminders.FindByTuple(ctx, t.OwnerUserID, t.MealPlanID, t.MealDayID, t.MealID)
	if err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	if len(existing) > 1 {
		log.Warn().Int("count", len(existing)).Msg("duplicate reminders for meal, keeping the earliest")
		if _, err := m.remove(ctx, existing[1:]); err != nil {
			return nil, err
		}
		existing = existing[:1]
	}

	var r *model.Reminder
	if len(existing) == 1 {
		r = &existing[0]
		if r.Status == model.ReminderSent && r.RemindAt.Equal(remindAt) && r.Message == message {
			return r, nil
		}
		r.RemindAt = remindAt
		r.Message = message
		r.SentAt = nil
	} else {
		r = &model.Reminder{
			UserID:     t.OwnerUserID,
			MealPlanID: t.MealPlanID,
			MealDayID:  t.MealDayID,
			MealID:     t.MealID,
			Message:    message,
			RemindAt:   remindAt,
			IsActive:   true,
			Status:     model.ReminderScheduled,
		}
		if err := m.reminders.Create(ctx, r); err != nil {
			return nil, fmt.Errorf("create reminder: %w", err)
		}
	}

	switch {
	case t.Suspended:
		return r, m.disarm(ctx, r, model.ReminderPaused)
	case !remindAt.After(m.now()):
		return r, m.disarm(ctx, r, model.ReminderExpired)
	}
	return r, m.arm(ctx, r)
}

// arm replaces every task of r with a fresh one and stores its handle. The
// reminder is persisted as scheduled before the scheduler is called.
func (m *Manager) arm(ctx context.Context, r *model.Reminder) error {
	r.Status = model.ReminderScheduled
	r.IsActive = true
	r.TaskID = nil
	if err := m.reminders.Save(ctx, r); err != nil {
		return fmt.Errorf("save reminder %s: %w", r.ID, err)
	}
	if _, err := m.cancelRefs(ctx, []string{r.ID}); err != nil {
		return unavailable("cancel previous task", err)
	}
	id, err := m.tasks.Schedule(ctx, r.RemindAt, payloadOf(r))
	if err != nil {
		return unavailable("schedule reminder", err)
	}
	r.TaskID = &id
	if err := m.reminders.SetTaskID(ctx, r.ID, id); err != nil {
		return fmt.Errorf("store task handle of %s: %w", r.ID, err)
	}
	return nil
}

// disarm stores r as inactive with the given status and drops its tasks.
// A failed cancel is only logged: the handler refuses inactive reminders.
func (m *Manager) disarm(ctx context.Context, r *model.Reminder, status model.ReminderStatus) error {
	if r.Status != model.ReminderSent {
		r.Status = status
	}
	r.IsActive = false
	r.TaskID = nil
	if err := m.reminders.Save(ctx, r); err != nil {
		return fmt.Errorf("save reminder %s: %w", r.ID, err)
	}
	if _, err := m.cancelRefs(ctx, []string{r.ID}); err != nil {
		m.log.Warn().Err(err).Str("reminder_id", r.ID).Msg("cancel task failed")
	}
	return nil
}

// remove cancels the tasks of the given reminders and hard-deletes them.
func (m *Manager) remove(ctx context.Context, reminders []model.Reminder) (int64, error) {
	if len(reminders) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(reminders))
	for _, r := range reminders {
		ids = append(ids, r.ID)
	}
	if _, err := m.cancelRefs(ctx, ids); err != nil {
		m.log.Warn().Err(err).Strs("reminder_ids", ids).Msg("cancel tasks failed")
	}
	n, err := m.reminders.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete reminders: %w", err)
	}
	return n, nil
}

func (m *Manager) cancelRefs(ctx context.Context, reminderIDs []string) (int64, error) {
	if len(reminderIDs) == 0 {
		return 0, nil
	}
	return m.tasks.Cancel(ctx, scheduler.Filter{Name: TaskSendReminder, Refs: reminderIDs})
}

// CancelTasks cancels every task referencing the given reminders in one call.
func (m *Manager) CancelTasks(ctx context.Context, reminderIDs []string) (int64, error) {
	n, err := m.cancelRefs(ctx, reminderIDs)
	if err != nil {
		return 0, unavailable("cancel tasks", err)
	}
	return n, nil
}

// CancelPlanTasks cancels the tasks of every reminder of a plan in one call.
func (m *Manager) CancelPlanTasks(ctx context.Context, planID string) (int64, error) {
	reminders, err := m.reminders.FindByPlan(ctx, planID)
	if err != nil {
		return 0, fmt.Errorf("load reminders of plan %s: %w", planID, err)
	}
	ids := make([]string, 0, len(reminders))
	for _, r := range reminders {
		ids = append(ids, r.ID)
	}
	return m.CancelTasks(ctx, ids)
}

// RemoveForMeal drops the reminders of a meal that is being deleted.
func (m *Manager) RemoveForMeal(ctx context.Context, mealID string) (int64, error) {
	reminders, err := m.reminders.FindByMeal(ctx, mealID)
	if err != nil {
		return 0, fmt.Errorf("load reminders: %w", err)
	}
	return m.remove(ctx, reminders)
}
