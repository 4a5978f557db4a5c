package model

import "time"

// ReminderStatus is the lifecycle state of a Reminder.
type ReminderStatus string

const (
	ReminderScheduled ReminderStatus = "scheduled"
	ReminderPaused    ReminderStatus = "paused"
	ReminderSent      ReminderStatus = "sent"
	ReminderCancelled ReminderStatus = "cancelled"
	ReminderExpired   ReminderStatus = "expired"
)

// Reminder is the obligation to notify a user about one meal of a plan.
// At most one reminder exists per (user, plan, day, meal).
type Reminder struct {
	Base
	UserID     string         `gorm:"type:varchar(64);not null;index:idx_reminder_tuple,priority:1" json:"user_id"`
	MealPlanID string         `gorm:"type:varchar(36);not null;index:idx_reminder_tuple,priority:2;index" json:"meal_plan_id"`
	MealDayID  string         `gorm:"type:varchar(36);not null;index:idx_reminder_tuple,priority:3" json:"meal_day_id"`
	MealID     string         `gorm:"type:varchar(36);not null;index:idx_reminder_tuple,priority:4;index" json:"meal_id"`
	Message    string         `gorm:"type:text;not null" json:"message"`
	RemindAt   time.Time      `gorm:"not null;index" json:"remind_at"`
	TaskID     *string        `gorm:"type:varchar(36)" json:"task_id"`
	IsActive   bool           `gorm:"not null;default:true" json:"is_active"`
	Status     ReminderStatus `gorm:"type:varchar(16);not null;default:scheduled;index" json:"status"`
	SentAt     *time.Time     `json:"sent_at,omitempty"`
}

// HasTask reports whether the reminder references a scheduled task.
func (r *Reminder) HasTask() bool {
	return r.TaskID != nil && *r.TaskID != ""
}

// UserContact maps a user to the WhatsApp number reminders are delivered to.
type UserContact struct {
	UserID         string    `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	WhatsAppNumber string    `gorm:"column:whatsapp_number;type:varchar(32);not null" json:"whatsapp_number"`
	UpdatedAt      time.Time `json:"updated_at"`
}
