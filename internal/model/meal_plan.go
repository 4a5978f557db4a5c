package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	// DateLayout is the plan-local calendar date format of MealDay.Date.
	DateLayout = "2006-01-02"
	// TimeLayout is the time-of-day format of Meal.Time.
	TimeLayout = "15:04"
)

// PlanType distinguishes template-driven plans from free-form ones.
type PlanType string

const (
	PlanFixed  PlanType = "fixed"
	PlanCustom PlanType = "custom"
)

// MealPlan is a user's plan of meals across Duration consecutive days.
type MealPlan struct {
	Base
	Title     string   `gorm:"type:varchar(255)" json:"title"`
	UserID    string   `gorm:"type:varchar(64);not null;index" json:"user_id"`
	CreatedBy string   `gorm:"type:varchar(64);not null;index" json:"created_by"`
	Type      PlanType `gorm:"type:varchar(16);not null" json:"type"`
	Duration  int      `gorm:"not null" json:"duration"`
	StartDate string   `gorm:"type:varchar(10);not null" json:"start_date"`
	EndDate   string   `gorm:"type:varchar(10);not null" json:"end_date"`
	Price     float64  `json:"price"`
	Timezone  string   `gorm:"type:varchar(64)" json:"timezone,omitempty"`
	IsBlock   bool     `gorm:"not null;default:false" json:"is_block"`
	IsPause   bool     `gorm:"not null;default:false" json:"is_pause"`
	IsDelete  bool     `gorm:"not null;default:false;index" json:"is_delete"`
}

// Location resolves the plan's time zone, falling back to def.
func (p *MealPlan) Location(def *time.Location) *time.Location {
	if tz := strings.TrimSpace(p.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	if def == nil {
		return time.UTC
	}
	return def
}

// Suspended reports whether reminders of the plan must stay unscheduled.
func (p *MealPlan) Suspended() bool {
	return p.IsPause || p.IsBlock || p.IsDelete
}

// Expired reports whether the last day of the plan is over at now.
func (p *MealPlan) Expired(now time.Time, def *time.Location) bool {
	end, err := time.ParseInLocation(DateLayout, p.EndDate, p.Location(def))
	if err != nil {
		return false
	}
	return !now.Before(end.AddDate(0, 0, 1))
}

// MealDay is one calendar day of a plan.
type MealDay struct {
	Base
	MealPlanID string `gorm:"type:varchar(36);not null;index" json:"meal_plan_id"`
	Date       string `gorm:"type:varchar(10);not null" json:"date"`
}

// Dish is a dish reference embedded in a meal.
type Dish struct {
	ID       string  `json:"id"`
	DishID   string  `json:"dish_id"`
	Name     string  `json:"name"`
	Calories float64 `json:"calories,omitempty"`
}

// Meal is an eating event within a day. A meal without dishes has no reminder.
type Meal struct {
	Base
	MealDayID string                    `gorm:"type:varchar(36);not null;index" json:"meal_day_id"`
	Time      string                    `gorm:"type:varchar(5);not null" json:"time"`
	Name      string                    `gorm:"type:varchar(255)" json:"name"`
	Dishes    datatypes.JSONSlice[Dish] `json:"dishes"`
}

// DishNames returns the non-empty dish names in order.
func (m *Meal) DishNames() []string {
	names := make([]string, 0, len(m.Dishes))
	for _, d := range m.Dishes {
		if n := strings.TrimSpace(d.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// MealTracking records whether the owner ate a meal.
type MealTracking struct {
	Base
	UserID           string  `gorm:"type:varchar(64);not null;index" json:"user_id"`
	MealPlanID       string  `gorm:"type:varchar(36);not null;index" json:"meal_plan_id"`
	MealDayID        string  `gorm:"type:varchar(36);not null" json:"meal_day_id"`
	MealID           string  `gorm:"type:varchar(36);not null;index" json:"meal_id"`
	IsDone           bool    `json:"is_done"`
	CaloriesConsumed float64 `json:"calories_consumed"`
}

// UserMealPlan points at the plan a user currently follows.
type UserMealPlan struct {
	UserID     string    `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	MealPlanID *string   `gorm:"type:varchar(36)" json:"meal_plan_id"`
	StartDate  time.Time `json:"start_date"`
}

// UserMealPlanHistory archives a plan the user followed before switching.
type UserMealPlanHistory struct {
	Base
	UserID     string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	MealPlanID string    `gorm:"type:varchar(36);not null" json:"meal_plan_id"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}
