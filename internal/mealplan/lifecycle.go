package mealplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pathakanu/mealremind/internal/model"
	"github.com/pathakanu/mealremind/internal/reminder"
	"github.com/pathakanu/mealremind/internal/repository"
)

// ReminderReport is the reminder view of a plan.
type ReminderReport struct {
	MealPlanID string          `json:"meal_plan_id"`
	IsPause    bool            `json:"is_pause"`
	IsBlock    bool            `json:"is_block"`
	Reminders  []reminder.View `json:"reminders"`
}

// SetPause pauses or resumes a plan. Asking for the state the plan is already
// in returns it unchanged. Resuming a blocked plan only clears the pause flag;
// its reminders stay paused until the plan is unblocked.
func (s *Service) SetPause(ctx context.Context, planID string, paused bool) (*model.MealPlan, reminder.CascadeStats, error) {
	var stats reminder.CascadeStats
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, stats, err
	}
	if plan.IsDelete {
		return nil, stats, fmt.Errorf("meal plan %s: %w", planID, model.ErrPlanDeleted)
	}
	if plan.IsPause == paused {
		return plan, stats, nil
	}

	var cascadeErr error
	if paused || !plan.IsBlock {
		stats, cascadeErr = s.reminders.SetPlanPause(ctx, planID, paused)
	}

	plan.IsPause = paused
	if err := s.plans.SavePlan(ctx, plan); err != nil {
		return nil, stats, errors.Join(fmt.Errorf("save plan: %w", err), cascadeErr)
	}
	s.log.Info().Str("meal_plan_id", planID).Bool("paused", paused).Msg("meal plan pause changed")
	return plan, stats, cascadeErr
}

// SetBlock blocks or unblocks a plan, pausing or resuming its reminders.
// Unblocking a plan the user paused leaves its reminders paused.
func (s *Service) SetBlock(ctx context.Context, planID string, blocked bool) (*model.MealPlan, reminder.CascadeStats, error) {
	var stats reminder.CascadeStats
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, stats, err
	}
	if plan.IsDelete {
		return nil, stats, fmt.Errorf("meal plan %s: %w", planID, model.ErrPlanDeleted)
	}
	if plan.IsBlock == blocked {
		return plan, stats, nil
	}

	var cascadeErr error
	if blocked || !plan.IsPause {
		stats, cascadeErr = s.reminders.SetPlanPause(ctx, planID, blocked)
	}

	plan.IsBlock = blocked
	if err := s.plans.SavePlan(ctx, plan); err != nil {
		return nil, stats, errors.Join(fmt.Errorf("save plan: %w", err), cascadeErr)
	}
	s.log.Info().Str("meal_plan_id", planID).Bool("blocked", blocked).Msg("meal plan block changed")
	return plan, stats, cascadeErr
}

// DeleteMealPlanData tears down everything below a plan: the tasks of its
// reminders are cancelled in one call, then reminders, tracking rows, meals
// and days are deleted in that order. Calling it again removes nothing.
// A failed cancel does not stop the teardown; it is reported with the result.
func (s *Service) DeleteMealPlanData(ctx context.Context, planID string) (repository.CascadeResult, error) {
	_, cancelErr := s.reminders.CancelPlanTasks(ctx, planID)
	if cancelErr != nil {
		s.log.Warn().Err(cancelErr).Str("meal_plan_id", planID).Msg("cancel plan tasks failed")
	}

	result, err := s.plans.DeletePlanData(ctx, planID)
	if err != nil {
		return result, errors.Join(fmt.Errorf("delete plan data: %w", err), cancelErr)
	}
	if result.Total() > 0 {
		s.log.Info().
			Str("meal_plan_id", planID).
			Int64("reminders", result.Reminders).
			Int64("trackings", result.Trackings).
			Int64("meals", result.Meals).
			Int64("days", result.Days).
			Msg("meal plan data deleted")
	}
	return result, cancelErr
}

// DeletePlan soft-deletes a plan after removing its data and clears it as
// the owner's active plan.
func (s *Service) DeletePlan(ctx context.Context, planID string) (repository.CascadeResult, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return repository.CascadeResult{}, err
	}

	result, cascadeErr := s.DeleteMealPlanData(ctx, planID)
	if cascadeErr != nil && !errors.Is(cascadeErr, reminder.ErrSchedulerUnavailable) {
		return result, cascadeErr
	}

	if !plan.IsDelete {
		plan.IsDelete = true
		if err := s.plans.SavePlan(ctx, plan); err != nil {
			return result, fmt.Errorf("save plan: %w", err)
		}
	}
	if err := s.clearActive(ctx, plan); err != nil {
		return result, err
	}
	return result, cascadeErr
}

func (s *Service) clearActive(ctx context.Context, plan *model.MealPlan) error {
	active, err := s.plans.ActivePlan(ctx, plan.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if active.MealPlanID == nil || *active.MealPlanID != plan.ID {
		return nil
	}
	return s.plans.SetActivePlan(ctx, plan.UserID, nil, active.StartDate)
}

// ActivatePaidPlan runs after a successful payment. The user's previous plan
// is archived and torn down, the paid plan is unblocked and becomes active.
func (s *Service) ActivatePaidPlan(ctx context.Context, planID string) (*model.MealPlan, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.IsDelete {
		return nil, fmt.Errorf("meal plan %s: %w", planID, model.ErrPlanDeleted)
	}
	now := s.now()

	var errs []error
	active, err := s.plans.ActivePlan(ctx, plan.UserID)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		return nil, err
	case active.MealPlanID != nil && *active.MealPlanID != planID:
		if err := s.retire(ctx, *active.MealPlanID, active, now); err != nil {
			errs = append(errs, err)
		}
	}

	if plan.IsBlock {
		if _, _, err := s.SetBlock(ctx, planID, false); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.plans.SetActivePlan(ctx, plan.UserID, &planID, now); err != nil {
		return nil, fmt.Errorf("set active plan: %w", err)
	}

	plan, err = s.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	return plan, errors.Join(errs...)
}

// retire archives the previously active plan and removes its data.
func (s *Service) retire(ctx context.Context, oldID string, active *model.UserMealPlan, now time.Time) error {
	history := &model.UserMealPlanHistory{
		UserID:     active.UserID,
		MealPlanID: oldID,
		StartedAt:  active.StartDate,
		EndedAt:    now.UTC(),
	}
	if err := s.plans.AddHistory(ctx, history); err != nil {
		return fmt.Errorf("archive plan %s: %w", oldID, err)
	}

	old, err := s.plans.GetPlan(ctx, oldID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}
	_, err = s.DeleteMealPlanData(ctx, oldID)
	if old != nil && !old.IsDelete {
		old.IsDelete = true
		if saveErr := s.plans.SavePlan(ctx, old); saveErr != nil {
			return errors.Join(fmt.Errorf("retire plan %s: %w", oldID, saveErr), err)
		}
	}
	s.log.Info().Str("meal_plan_id", oldID).Str("user_id", active.UserID).Msg("previous meal plan retired")
	return err
}

// PlanReminders reports the reminders of a plan with their task state.
func (s *Service) PlanReminders(ctx context.Context, planID string) (*ReminderReport, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	views, err := s.reminders.PlanReminders(ctx, planID)
	if err != nil {
		return nil, err
	}
	return &ReminderReport{
		MealPlanID: plan.ID,
		IsPause:    plan.IsPause,
		IsBlock:    plan.IsBlock,
		Reminders:  views,
	}, nil
}
