package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pathakanu/mealremind/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CascadeResult counts the rows removed by a plan teardown.
type CascadeResult struct {
	Reminders int64 `json:"reminders"`
	Trackings int64 `json:"trackings"`
	Meals     int64 `json:"meals"`
	Days      int64 `json:"days"`
}

// Total is the number of rows removed.
func (c CascadeResult) Total() int64 {
	return c.Reminders + c.Trackings + c.Meals + c.Days
}

type (
	PlanRepository interface {
		CreatePlan(ctx context.Context, plan *model.MealPlan, days []model.MealDay, meals []model.Meal) error
		GetPlan(ctx context.Context, id string) (*model.MealPlan, error)
		SavePlan(ctx context.Context, plan *model.MealPlan) error
		GetDay(ctx context.Context, planID, dayID string) (*model.MealDay, error)
		ListDays(ctx context.Context, planID string) ([]model.MealDay, error)
		GetMeal(ctx context.Context, dayID, mealID string) (*model.Meal, error)
		ListMeals(ctx context.Context, dayIDs []string) ([]model.Meal, error)
		CreateMeal(ctx context.Context, meal *model.Meal) error
		SaveMeal(ctx context.Context, meal *model.Meal) error
		DeleteMeal(ctx context.Context, mealID string) error
		SaveTracking(ctx context.Context, tracking *model.MealTracking) error
		ActivePlan(ctx context.Context, userID string) (*model.UserMealPlan, error)
		SetActivePlan(ctx context.Context, userID string, planID *string, start time.Time) error
		AddHistory(ctx context.Context, history *model.UserMealPlanHistory) error
		DeletePlanData(ctx context.Context, planID string) (CascadeResult, error)
	}

	planRepository struct {
		db *gorm.DB
	}
)

// NewPlanRepository returns a gorm-backed PlanRepository.
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, model.ErrNotFound)
	}
	return err
}

// CreatePlan stores a plan with its days and meals atomically. Days and meals
// must carry their ids so meals can reference their day.
func (r *planRepository) CreatePlan(ctx context.Context, plan *model.MealPlan, days []model.MealDay, meals []model.Meal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(plan).Error; err != nil {
			return fmt.Errorf("create plan: %w", err)
		}
		if len(days) > 0 {
			if err := tx.Create(&days).Error; err != nil {
				return fmt.Errorf("create days: %w", err)
			}
		}
		if len(meals) > 0 {
			if err := tx.Create(&meals).Error; err != nil {
				return fmt.Errorf("create meals: %w", err)
			}
		}
		return nil
	})
}

func (r *planRepository) GetPlan(ctx context.Context, id string) (*model.MealPlan, error) {
	var plan model.MealPlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, notFound(err, "meal plan", id)
	}
	return &plan, nil
}

func (r *planRepository) SavePlan(ctx context.Context, plan *model.MealPlan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *planRepository) GetDay(ctx context.Context, planID, dayID string) (*model.MealDay, error) {
	var day model.MealDay
	err := r.db.WithContext(ctx).Where("id = ? AND meal_plan_id = ?", dayID, planID).First(&day).Error
	if err != nil {
		return nil, notFound(err, "meal day", dayID)
	}
	return &day, nil
}

func (r *planRepository) ListDays(ctx context.Context, planID string) ([]model.MealDay, error) {
	var days []model.MealDay
	err := r.db.WithContext(ctx).Where("meal_plan_id = ?", planID).Order("date ASC").Find(&days).Error
	return days, err
}

func (r *planRepository) GetMeal(ctx context.Context, dayID, mealID string) (*model.Meal, error) {
	var meal model.Meal
	err := r.db.WithContext(ctx).Where("id = ? AND meal_day_id = ?", mealID, dayID).First(&meal).Error
	if err != nil {
		return nil, notFound(err, "meal", mealID)
	}
	return &meal, nil
}

func (r *planRepository) ListMeals(ctx context.Context, dayIDs []string) ([]model.Meal, error) {
	var meals []model.Meal
	if len(dayIDs) == 0 {
		return meals, nil
	}
	err := r.db.WithContext(ctx).Where("meal_day_id IN ?", dayIDs).Order("time ASC").Find(&meals).Error
	return meals, err
}

func (r *planRepository) CreateMeal(ctx context.Context, meal *model.Meal) error {
	return r.db.WithContext(ctx).Create(meal).Error
}

func (r *planRepository) SaveMeal(ctx context.Context, meal *model.Meal) error {
	return r.db.WithContext(ctx).Save(meal).Error
}

// DeleteMeal removes a meal and its tracking rows. Reminders are removed by
// the reminder manager, which also owns their tasks.
func (r *planRepository) DeleteMeal(ctx context.Context, mealID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("meal_id = ?", mealID).Delete(&model.MealTracking{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", mealID).Delete(&model.Meal{}).Error
	})
}

// SaveTracking upserts the tracking row of (user, meal).
func (r *planRepository) SaveTracking(ctx context.Context, tracking *model.MealTracking) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.MealTracking
		err := tx.Where("user_id = ? AND meal_id = ?", tracking.UserID, tracking.MealID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(tracking).Error
		case err != nil:
			return err
		}
		tracking.Base = existing.Base
		return tx.Save(tracking).Error
	})
}

func (r *planRepository) ActivePlan(ctx context.Context, userID string) (*model.UserMealPlan, error) {
	var active model.UserMealPlan
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&active).Error; err != nil {
		return nil, notFound(err, "active plan of user", userID)
	}
	return &active, nil
}

func (r *planRepository) SetActivePlan(ctx context.Context, userID string, planID *string, start time.Time) error {
	row := model.UserMealPlan{UserID: userID, MealPlanID: planID, StartDate: start.UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"meal_plan_id", "start_date"}),
	}).Create(&row).Error
}

func (r *planRepository) AddHistory(ctx context.Context, history *model.UserMealPlanHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

// DeletePlanData hard-deletes everything hanging off a plan, children first,
// in one transaction. The plan row itself is kept. Running it on a plan that
// is already clean removes nothing.
func (r *planRepository) DeletePlanData(ctx context.Context, planID string) (CascadeResult, error) {
	var result CascadeResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dayIDs []string
		if err := tx.Model(&model.MealDay{}).Where("meal_plan_id = ?", planID).Pluck("id", &dayIDs).Error; err != nil {
			return fmt.Errorf("collect days: %w", err)
		}

		res := tx.Where("meal_plan_id = ?", planID).Delete(&model.Reminder{})
		if res.Error != nil {
			return fmt.Errorf("delete reminders: %w", res.Error)
		}
		result.Reminders = res.RowsAffected

		res = tx.Where("meal_plan_id = ?", planID).Delete(&model.MealTracking{})
		if res.Error != nil {
			return fmt.Errorf("delete tracking: %w", res.Error)
		}
		result.Trackings = res.RowsAffected

		if len(dayIDs) > 0 {
			res = tx.Where("meal_day_id IN ?", dayIDs).Delete(&model.Meal{})
			if res.Error != nil {
				return fmt.Errorf("delete meals: %w", res.Error)
			}
			result.Meals = res.RowsAffected
		}

		res = tx.Where("meal_plan_id = ?", planID).Delete(&model.MealDay{})
		if res.Error != nil {
			return fmt.Errorf("delete days: %w", res.Error)
		}
		result.Days = res.RowsAffected
		return nil
	})
	if err != nil {
		return CascadeResult{}, err
	}
	return result, nil
}
