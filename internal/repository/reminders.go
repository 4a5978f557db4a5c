package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pathakanu/mealremind/internal/model"
	"gorm.io/gorm"
)

type (
	// ReminderRepository is the Reminder Store.
	ReminderRepository interface {
		FindByID(ctx context.Context, id string) (*model.Reminder, error)
		FindByTuple(ctx context.Context, userID, planID, dayID, mealID string) ([]model.Reminder, error)
		FindByMeal(ctx context.Context, mealID string) ([]model.Reminder, error)
		FindByPlan(ctx context.Context, planID string) ([]model.Reminder, error)
		FindByUser(ctx context.Context, userID string) ([]model.Reminder, error)
		FindActiveScheduled(ctx context.Context, limit int) ([]model.Reminder, error)
		ExistingIDs(ctx context.Context, ids []string) ([]string, error)
		Owners(ctx context.Context) ([]string, error)
		Create(ctx context.Context, reminder *model.Reminder) error
		Save(ctx context.Context, reminder *model.Reminder) error
		SetTaskID(ctx context.Context, id, taskID string) error
		DeleteByIDs(ctx context.Context, ids []string) (int64, error)
		MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error)
	}

	reminderRepository struct {
		db *gorm.DB
	}
)

// NewReminderRepository returns a gorm-backed ReminderRepository.
func NewReminderRepository(db *gorm.DB) ReminderRepository {
	return &reminderRepository{db: db}
}

func (r *reminderRepository) FindByID(ctx context.Context, id string) (*model.Reminder, error) {
	var reminder model.Reminder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&reminder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("reminder %s: %w", id, model.ErrNotFound)
		}
		return nil, err
	}
	return &reminder, nil
}

// FindByTuple returns the reminders of one meal for one user, oldest first.
func (r *reminderRepository) FindByTuple(ctx context.Context, userID, planID, dayID, mealID string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND meal_plan_id = ? AND meal_day_id = ? AND meal_id = ?", userID, planID, dayID, mealID).
		Order("created_at ASC, id ASC").
		Find(&reminders).Error
	return reminders, err
}

func (r *reminderRepository) FindByMeal(ctx context.Context, mealID string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := r.db.WithContext(ctx).Where("meal_id = ?", mealID).Find(&reminders).Error
	return reminders, err
}

func (r *reminderRepository) FindByPlan(ctx context.Context, planID string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := r.db.WithContext(ctx).
		Where("meal_plan_id = ?", planID).
		Order("remind_at ASC").
		Find(&reminders).Error
	return reminders, err
}

func (r *reminderRepository) FindByUser(ctx context.Context, userID string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&reminders).Error
	return reminders, err
}

// FindActiveScheduled returns reminders that are expected to hold a live task.
func (r *reminderRepository) FindActiveScheduled(ctx context.Context, limit int) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := r.db.WithContext(ctx).
		Where("status = ? AND is_active = ?", model.ReminderScheduled, true).
		Order("remind_at ASC").
		Limit(limit).
		Find(&reminders).Error
	return reminders, err
}

// ExistingIDs returns the subset of ids that still have a reminder row.
func (r *reminderRepository) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []string
	err := r.db.WithContext(ctx).Model(&model.Reminder{}).Where("id IN ?", ids).Pluck("id", &found).Error
	return found, err
}

func (r *reminderRepository) Owners(ctx context.Context) ([]string, error) {
	var users []string
	err := r.db.WithContext(ctx).Model(&model.Reminder{}).Distinct().Pluck("user_id", &users).Error
	return users, err
}

func (r *reminderRepository) Create(ctx context.Context, reminder *model.Reminder) error {
	return r.db.WithContext(ctx).Create(reminder).Error
}

func (r *reminderRepository) Save(ctx context.Context, reminder *model.Reminder) error {
	return r.db.WithContext(ctx).Save(reminder).Error
}

// SetTaskID stores the task handle of a reminder without touching its status,
// so a fire that already marked it sent is not overwritten.
func (r *reminderRepository) SetTaskID(ctx context.Context, id, taskID string) error {
	return r.db.WithContext(ctx).Model(&model.Reminder{}).Where("id = ?", id).Update("task_id", taskID).Error
}

func (r *reminderRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.Reminder{})
	return res.RowsAffected, res.Error
}

// MarkSent flips an active, unsent reminder to sent. It reports false when
// another invocation already did, or the reminder was paused or removed.
func (r *reminderRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("id = ? AND is_active = ? AND status <> ?", id, true, model.ReminderSent).
		Updates(map[string]any{"status": model.ReminderSent, "sent_at": sentAt})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
