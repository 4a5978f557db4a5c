package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pathakanu/mealremind/internal/model"
	"github.com/pathakanu/mealremind/internal/scheduler"
)

// HandleSendReminder runs when a sendReminder task fires. It may run more than
// once for the same fire; only the invocation that flips the reminder to sent
// notifies.
func (m *Manager) HandleSendReminder(ctx context.Context, task scheduler.Task) error {
	var payload SendReminderPayload
	if err := task.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", TaskSendReminder, err)
	}
	log := m.log.With().Str("reminder_id", payload.ReminderID).Str("task_id", task.ID).Logger()

	r, err := m.reminders.FindByID(ctx, payload.ReminderID)
	if errors.Is(err, model.ErrNotFound) {
		log.Debug().Msg("reminder gone, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case !r.IsActive:
		log.Debug().Str("status", string(r.Status)).Msg("reminder inactive, skipping")
		return nil
	case r.Status == model.ReminderSent:
		log.Debug().Msg("reminder already sent")
		return nil
	case r.HasTask() && *r.TaskID != task.ID:
		log.Debug().Msg("stale task, skipping")
		return nil
	case !r.HasTask() && !firesAt(task, r.RemindAt):
		// No handle stored yet: accept the fire only if it was scheduled
		// for the reminder's current time.
		log.Debug().Msg("unrecognised task for reminder without handle, skipping")
		return nil
	}

	sentAt := m.now().UTC()
	won, err := m.reminders.MarkSent(ctx, r.ID, sentAt)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if !won {
		log.Debug().Msg("reminder claimed concurrently")
		return nil
	}

	fire := Fire{
		ReminderID:  r.ID,
		OwnerUserID: r.UserID,
		Message:     r.Message,
		SentAt:      sentAt,
	}
	if err := m.notifier.Notify(ctx, fire); err != nil {
		return fmt.Errorf("notify user %s: %w", r.UserID, err)
	}
	log.Info().Str("user_id", r.UserID).Msg("reminder sent")
	return nil
}

func firesAt(task scheduler.Task, at time.Time) bool {
	return task.NextRunAt != nil && task.NextRunAt.Equal(at)
}
