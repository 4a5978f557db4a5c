package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base carries the uuid primary key and timestamps shared by all records.
type Base struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a uuid when the caller did not provide one.
func (b *Base) BeforeCreate(_ *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// All returns every model managed by AutoMigrate.
func All() []any {
	return []any{
		&MealPlan{},
		&MealDay{},
		&Meal{},
		&MealTracking{},
		&UserMealPlan{},
		&UserMealPlanHistory{},
		&Reminder{},
		&UserContact{},
	}
}
