package reminder

import (
	"context"
	"errors"
	"fmt"

	"github.com/pathakanu/mealremind/internal/model"
)

// CascadeStats summarizes a pause or resume cascade.
type CascadeStats struct {
	Paused    int `json:"paused"`
	Scheduled int `json:"scheduled"`
	Expired   int `json:"expired"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// SetPlanPause pauses or resumes every reminder of a plan. Each reminder is
// handled on its own: a failure on one leaves the others intact, and running
// the cascade again converges. Failures are joined into the returned error.
func (m *Manager) SetPlanPause(ctx context.Context, planID string, paused bool) (CascadeStats, error) {
	var stats CascadeStats

	reminders, err := m.reminders.FindByPlan(ctx, planID)
	if err != nil {
		return stats, fmt.Errorf("load reminders of plan %s: %w", planID, err)
	}
	if len(reminders) == 0 {
		return stats, nil
	}

	log := m.log.With().Str("meal_plan_id", planID).Bool("paused", paused).Logger()

	if paused {
		ids := make([]string, 0, len(reminders))
		for _, r := range reminders {
			ids = append(ids, r.ID)
		}
		if _, err := m.cancelRefs(ctx, ids); err != nil {
			log.Warn().Err(err).Msg("cancel tasks failed, relying on inactive flag")
		}
	}

	var errs []error
	now := m.now()
	for i := range reminders {
		r := &reminders[i]
		if paused {
			if r.Status == model.ReminderSent {
				stats.Skipped++
			} else {
				r.Status = model.ReminderPaused
				stats.Paused++
			}
			r.IsActive = false
			r.TaskID = nil
			if err := m.reminders.Save(ctx, r); err != nil {
				stats.Failed++
				errs = append(errs, fmt.Errorf("pause reminder %s: %w", r.ID, err))
			}
			continue
		}

		switch r.Status {
		case model.ReminderSent, model.ReminderCancelled, model.ReminderExpired:
			stats.Skipped++
			continue
		}
		if !r.RemindAt.After(now) {
			if err := m.disarm(ctx, r, model.ReminderExpired); err != nil {
				stats.Failed++
				errs = append(errs, err)
				continue
			}
			stats.Expired++
			continue
		}
		if err := m.arm(ctx, r); err != nil {
			stats.Failed++
			errs = append(errs, fmt.Errorf("resume reminder %s: %w", r.ID, err))
			continue
		}
		stats.Scheduled++
	}

	log.Info().
		Int("paused_count", stats.Paused).
		Int("scheduled", stats.Scheduled).
		Int("expired", stats.Expired).
		Int("failed", stats.Failed).
		Msg("plan reminders cascaded")
	return stats, errors.Join(errs...)
}
