// Package mealplan owns meal plan mutations and cascades them into reminders.
//
// Mutations that reach the scheduler may return the updated entity together
// with an error wrapping reminder.ErrSchedulerUnavailable. The change is
// committed in that case and the reminder sweep finishes the scheduling.
package mealplan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pathakanu/mealremind/internal/model"
	"github.com/pathakanu/mealremind/internal/reminder"
	"github.com/pathakanu/mealremind/internal/repository"
	"github.com/rs/zerolog"
)

const maxDuration = 366

// DishInput is a dish reference added to a meal.
type DishInput struct {
	DishID   string  `json:"dish_id" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Calories float64 `json:"calories" validate:"gte=0"`
}

// MealInput describes a meal to add.
type MealInput struct {
	Time   string      `json:"time" validate:"required"`
	Name   string      `json:"name"`
	Dishes []DishInput `json:"dishes" validate:"dive"`
}

// CreatePlanInput describes a new plan. CreatedBy differs from UserID when a
// nutritionist authors the plan for a user; such plans start blocked.
type CreatePlanInput struct {
	Title     string         `json:"title" validate:"required"`
	UserID    string         `json:"user_id" validate:"required"`
	CreatedBy string         `json:"created_by"`
	Type      model.PlanType `json:"type" validate:"required,oneof=fixed custom"`
	Duration  int            `json:"duration" validate:"required,min=1,max=366"`
	StartDate string         `json:"start_date" validate:"required"`
	Price     float64        `json:"price" validate:"gte=0"`
	Timezone  string         `json:"timezone"`
	Meals     []MealInput    `json:"meals" validate:"dive"`
}

// DayDetail is a day with its meals.
type DayDetail struct {
	model.MealDay
	Meals []model.Meal `json:"meals"`
}

// Detail is a plan with its days.
type Detail struct {
	model.MealPlan
	Days []DayDetail `json:"days"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for expiry checks and history stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service runs meal plan mutations and keeps their reminders reconciled.
type Service struct {
	plans      repository.PlanRepository
	reminders  *reminder.Manager
	defaultLoc *time.Location
	log        zerolog.Logger
	now        func() time.Time
}

// NewService returns a Service. defaultLoc is used for plans without a timezone.
func NewService(plans repository.PlanRepository, reminders *reminder.Manager, defaultLoc *time.Location, log zerolog.Logger, opts ...Option) *Service {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	s := &Service{
		plans:      plans,
		reminders:  reminders,
		defaultLoc: defaultLoc,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), model.ErrInvalidInput)
}

func validTime(clock string) bool {
	_, err := time.Parse(model.TimeLayout, strings.TrimSpace(clock))
	return err == nil
}

func newDishes(in []DishInput) []model.Dish {
	dishes := make([]model.Dish, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, d := range in {
		if seen[d.DishID] {
			continue
		}
		seen[d.DishID] = true
		dishes = append(dishes, model.Dish{
			ID:       uuid.NewString(),
			DishID:   d.DishID,
			Name:     strings.TrimSpace(d.Name),
			Calories: d.Calories,
		})
	}
	return dishes
}

// CreatePlan stores a plan with one day per duration day. Fixed plans copy
// their template meals into every day.
func (s *Service) CreatePlan(ctx context.Context, in CreatePlanInput) (*Detail, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, invalid("user id is required")
	}
	if in.Duration < 1 || in.Duration > maxDuration {
		return nil, invalid("duration %d out of range", in.Duration)
	}
	switch in.Type {
	case model.PlanFixed:
		if len(in.Meals) == 0 {
			return nil, invalid("fixed plan needs template meals")
		}
	case model.PlanCustom:
	default:
		return nil, invalid("unknown plan type %q", in.Type)
	}
	for _, m := range in.Meals {
		if !validTime(m.Time) {
			return nil, invalid("meal time %q", m.Time)
		}
	}
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			return nil, invalid("timezone %q", in.Timezone)
		}
	}
	startDay, err := time.Parse(model.DateLayout, in.StartDate)
	if err != nil {
		return nil, invalid("start date %q", in.StartDate)
	}

	createdBy := in.CreatedBy
	if createdBy == "" {
		createdBy = in.UserID
	}
	authored := createdBy != in.UserID

	plan := &model.MealPlan{
		Base:      model.Base{ID: uuid.NewString()},
		Title:     in.Title,
		UserID:    in.UserID,
		CreatedBy: createdBy,
		Type:      in.Type,
		Duration:  in.Duration,
		StartDate: startDay.Format(model.DateLayout),
		EndDate:   startDay.AddDate(0, 0, in.Duration-1).Format(model.DateLayout),
		Timezone:  in.Timezone,
		IsBlock:   authored,
	}
	if authored {
		plan.Price = in.Price
	}

	detail := &Detail{Days: make([]DayDetail, 0, in.Duration)}
	days := make([]model.MealDay, 0, in.Duration)
	var meals []model.Meal
	for i := 0; i < in.Duration; i++ {
		day := model.MealDay{
			Base:       model.Base{ID: uuid.NewString()},
			MealPlanID: plan.ID,
			Date:       startDay.AddDate(0, 0, i).Format(model.DateLayout),
		}
		days = append(days, day)
		dd := DayDetail{MealDay: day}
		if in.Type == model.PlanFixed {
			for _, tmpl := range in.Meals {
				meal := model.Meal{
					Base:      model.Base{ID: uuid.NewString()},
					MealDayID: day.ID,
					Time:      strings.TrimSpace(tmpl.Time),
					Name:      strings.TrimSpace(tmpl.Name),
					Dishes:    newDishes(tmpl.Dishes),
				}
				meals = append(meals, meal)
				dd.Meals = append(dd.Meals, meal)
			}
		}
		detail.Days = append(detail.Days, dd)
	}

	if err := s.plans.CreatePlan(ctx, plan, days, meals); err != nil {
		return nil, err
	}
	detail.MealPlan = *plan

	if !authored {
		if err := s.plans.SetActivePlan(ctx, plan.UserID, &plan.ID, s.now()); err != nil {
			return nil, fmt.Errorf("set active plan: %w", err)
		}
	}

	log := s.log.With().Str("meal_plan_id", plan.ID).Str("user_id", plan.UserID).Logger()
	log.Info().Int("duration", plan.Duration).Bool("blocked", plan.IsBlock).Msg("meal plan created")

	var reconcileErr error
	for i := range detail.Days {
		day := &detail.Days[i]
		for j := range day.Meals {
			meal := &day.Meals[j]
			if len(meal.Dishes) == 0 {
				continue
			}
			if _, err := s.reminders.Reconcile(ctx, s.target(plan, &day.MealDay, meal)); err != nil {
				reconcileErr = err
			}
		}
	}
	return detail, reconcileErr
}

// GetPlan returns a plan with its days and meals.
func (s *Service) GetPlan(ctx context.Context, planID string) (*Detail, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	days, err := s.plans.ListDays(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	dayIDs := make([]string, 0, len(days))
	for _, d := range days {
		dayIDs = append(dayIDs, d.ID)
	}
	meals, err := s.plans.ListMeals(ctx, dayIDs)
	if err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	byDay := make(map[string][]model.Meal, len(days))
	for _, m := range meals {
		byDay[m.MealDayID] = append(byDay[m.MealDayID], m)
	}

	detail := &Detail{MealPlan: *plan, Days: make([]DayDetail, 0, len(days))}
	for _, d := range days {
		detail.Days = append(detail.Days, DayDetail{MealDay: d, Meals: byDay[d.ID]})
	}
	return detail, nil
}

func (s *Service) target(plan *model.MealPlan, day *model.MealDay, meal *model.Meal) reminder.Target {
	return reminder.Target{
		OwnerUserID: plan.UserID,
		MealPlanID:  plan.ID,
		MealDayID:   day.ID,
		MealID:      meal.ID,
		Meal:        meal,
		MealDay:     day,
		Location:    plan.Location(s.defaultLoc),
		Suspended:   plan.Suspended(),
	}
}

// editable rejects meal edits on plans that are deleted, paused or over.
// Blocked plans stay editable so their author can fill them in; their
// reminders remain paused until payment.
func (s *Service) editable(plan *model.MealPlan) error {
	switch {
	case plan.IsDelete:
		return fmt.Errorf("meal plan %s: %w", plan.ID, model.ErrPlanDeleted)
	case plan.IsPause:
		return fmt.Errorf("meal plan %s: %w", plan.ID, model.ErrPlanPaused)
	case plan.Expired(s.now(), s.defaultLoc):
		return fmt.Errorf("meal plan %s: %w", plan.ID, model.ErrPlanExpired)
	}
	return nil
}
