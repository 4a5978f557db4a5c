package reminder

import (
	"context"
	"fmt"

	"github.com/pathakanu/mealremind/internal/model"
)

// Get returns one reminder with the state of its task.
func (m *Manager) Get(ctx context.Context, id string) (*View, error) {
	r, err := m.reminders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := m.views(ctx, []model.Reminder{*r})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListByUser returns every reminder of a user, oldest first.
func (m *Manager) ListByUser(ctx context.Context, userID string) ([]View, error) {
	reminders, err := m.reminders.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load reminders of user %s: %w", userID, err)
	}
	return m.views(ctx, reminders)
}

// CancelReminder cancels the tasks of a reminder and stores it as cancelled.
// When the scheduler cannot be reached nothing is changed, so the call can be
// repeated. A sent reminder keeps its status.
func (m *Manager) CancelReminder(ctx context.Context, id string) (*model.Reminder, error) {
	r, err := m.reminders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := m.CancelTasks(ctx, []string{r.ID}); err != nil {
		return nil, err
	}
	if r.Status != model.ReminderSent {
		r.Status = model.ReminderCancelled
	}
	r.IsActive = false
	r.TaskID = nil
	if err := m.reminders.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save reminder %s: %w", r.ID, err)
	}
	m.log.Info().Str("reminder_id", r.ID).Str("user_id", r.UserID).Msg("reminder cancelled")
	return r, nil
}
