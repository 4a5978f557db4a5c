package mealplan

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pathakanu/mealremind/internal/model"
)

// UpdateMealInput changes the time or name of a meal. Nil fields are kept.
type UpdateMealInput struct {
	Time *string `json:"time"`
	Name *string `json:"name"`
}

// TrackInput records whether a meal was eaten.
type TrackInput struct {
	IsDone           bool    `json:"is_done"`
	CaloriesConsumed float64 `json:"calories_consumed" validate:"gte=0"`
}

type mealRef struct {
	plan *model.MealPlan
	day  *model.MealDay
	meal *model.Meal
}

func (s *Service) loadDay(ctx context.Context, planID, dayID string) (*model.MealPlan, *model.MealDay, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	day, err := s.plans.GetDay(ctx, planID, dayID)
	if err != nil {
		return nil, nil, err
	}
	return plan, day, nil
}

func (s *Service) loadMeal(ctx context.Context, planID, dayID, mealID string) (*mealRef, error) {
	plan, day, err := s.loadDay(ctx, planID, dayID)
	if err != nil {
		return nil, err
	}
	meal, err := s.plans.GetMeal(ctx, dayID, mealID)
	if err != nil {
		return nil, err
	}
	return &mealRef{plan: plan, day: day, meal: meal}, nil
}

// reconcile brings the meal's reminder in line after a change.
func (s *Service) reconcile(ctx context.Context, ref *mealRef) error {
	_, err := s.reminders.Reconcile(ctx, s.target(ref.plan, ref.day, ref.meal))
	return err
}

// AddMeal adds a meal to a day of the plan.
func (s *Service) AddMeal(ctx context.Context, planID, dayID string, in MealInput) (*model.Meal, error) {
	plan, day, err := s.loadDay(ctx, planID, dayID)
	if err != nil {
		return nil, err
	}
	if err := s.editable(plan); err != nil {
		return nil, err
	}
	if !validTime(in.Time) {
		return nil, invalid("meal time %q", in.Time)
	}

	meal := &model.Meal{
		MealDayID: day.ID,
		Time:      strings.TrimSpace(in.Time),
		Name:      strings.TrimSpace(in.Name),
		Dishes:    newDishes(in.Dishes),
	}
	if err := s.plans.CreateMeal(ctx, meal); err != nil {
		return nil, fmt.Errorf("create meal: %w", err)
	}
	return meal, s.reconcile(ctx, &mealRef{plan: plan, day: day, meal: meal})
}

// UpdateMeal changes a meal's time or name and reschedules its reminder.
func (s *Service) UpdateMeal(ctx context.Context, planID, dayID, mealID string, in UpdateMealInput) (*model.Meal, error) {
	ref, err := s.loadMeal(ctx, planID, dayID, mealID)
	if err != nil {
		return nil, err
	}
	if err := s.editable(ref.plan); err != nil {
		return nil, err
	}
	if in.Time != nil {
		if !validTime(*in.Time) {
			return nil, invalid("meal time %q", *in.Time)
		}
		ref.meal.Time = strings.TrimSpace(*in.Time)
	}
	if in.Name != nil {
		ref.meal.Name = strings.TrimSpace(*in.Name)
	}
	if err := s.plans.SaveMeal(ctx, ref.meal); err != nil {
		return nil, fmt.Errorf("save meal: %w", err)
	}
	return ref.meal, s.reconcile(ctx, ref)
}

// RemoveMeal deletes a meal with its reminders, tasks and tracking rows.
func (s *Service) RemoveMeal(ctx context.Context, planID, dayID, mealID string) error {
	ref, err := s.loadMeal(ctx, planID, dayID, mealID)
	if err != nil {
		return err
	}
	if err := s.editable(ref.plan); err != nil {
		return err
	}
	if _, err := s.reminders.RemoveForMeal(ctx, mealID); err != nil {
		return err
	}
	if err := s.plans.DeleteMeal(ctx, mealID); err != nil {
		return fmt.Errorf("delete meal: %w", err)
	}
	return nil
}

// AddDishes appends dishes to a meal, skipping ones already present.
func (s *Service) AddDishes(ctx context.Context, planID, dayID, mealID string, dishes []DishInput) (*model.Meal, error) {
	if len(dishes) == 0 {
		return nil, invalid("no dishes given")
	}
	ref, err := s.loadMeal(ctx, planID, dayID, mealID)
	if err != nil {
		return nil, err
	}
	if err := s.editable(ref.plan); err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(ref.meal.Dishes))
	for _, d := range ref.meal.Dishes {
		present[d.DishID] = true
	}
	var fresh []DishInput
	for _, d := range dishes {
		if strings.TrimSpace(d.DishID) == "" {
			return nil, invalid("dish id is required")
		}
		if !present[d.DishID] {
			fresh = append(fresh, d)
		}
	}
	ref.meal.Dishes = append(ref.meal.Dishes, newDishes(fresh)...)

	if err := s.plans.SaveMeal(ctx, ref.meal); err != nil {
		return nil, fmt.Errorf("save meal: %w", err)
	}
	return ref.meal, s.reconcile(ctx, ref)
}

// RemoveDish removes one dish entry from a meal. A meal left without dishes
// loses its reminder.
func (s *Service) RemoveDish(ctx context.Context, planID, dayID, mealID, dishID string) (*model.Meal, error) {
	ref, err := s.loadMeal(ctx, planID, dayID, mealID)
	if err != nil {
		return nil, err
	}
	if err := s.editable(ref.plan); err != nil {
		return nil, err
	}

	idx := -1
	for i, d := range ref.meal.Dishes {
		if d.ID == dishID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("dish %s: %w", dishID, model.ErrNotFound)
	}
	ref.meal.Dishes = append(ref.meal.Dishes[:idx], ref.meal.Dishes[idx+1:]...)

	if err := s.plans.SaveMeal(ctx, ref.meal); err != nil {
		return nil, fmt.Errorf("save meal: %w", err)
	}
	return ref.meal, s.reconcile(ctx, ref)
}

// TrackMeal records the owner's consumption of a meal.
func (s *Service) TrackMeal(ctx context.Context, planID, dayID, mealID string, in TrackInput) (*model.MealTracking, error) {
	ref, err := s.loadMeal(ctx, planID, dayID, mealID)
	if err != nil {
		return nil, err
	}
	if ref.plan.IsDelete {
		return nil, fmt.Errorf("meal plan %s: %w", planID, model.ErrPlanDeleted)
	}
	tracking := &model.MealTracking{
		Base:             model.Base{ID: uuid.NewString()},
		UserID:           ref.plan.UserID,
		MealPlanID:       ref.plan.ID,
		MealDayID:        ref.day.ID,
		MealID:           ref.meal.ID,
		IsDone:           in.IsDone,
		CaloriesConsumed: in.CaloriesConsumed,
	}
	if err := s.plans.SaveTracking(ctx, tracking); err != nil {
		return nil, fmt.Errorf("save tracking: %w", err)
	}
	return tracking, nil
}
