package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store is the gorm-backed task queue.
type Store struct {
	db *gorm.DB
}

// NewStore returns a Store on db. The scheduled_tasks table must already be migrated.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Schedule implements Scheduler.
func (s *Store) Schedule(ctx context.Context, at time.Time, payload Payload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", payload.TaskName(), err)
	}

	runAt := at.UTC()
	task := Task{
		ID:        uuid.NewString(),
		Name:      payload.TaskName(),
		Ref:       payload.TaskRef(),
		Data:      datatypes.JSON(data),
		NextRunAt: &runAt,
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return "", fmt.Errorf("schedule %s: %w", task.Name, err)
	}
	return task.ID, nil
}

// Cancel implements Scheduler.
func (s *Store) Cancel(ctx context.Context, filter Filter) (int64, error) {
	if filter.empty() {
		return 0, ErrEmptyFilter
	}
	if filter.matchesNothing() {
		return 0, nil
	}
	res := applyFilter(s.db.WithContext(ctx), filter).Delete(&Task{})
	if res.Error != nil {
		return 0, fmt.Errorf("cancel tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListTasks implements Scheduler.
func (s *Store) ListTasks(ctx context.Context, filter Filter) ([]Task, error) {
	if filter.matchesNothing() {
		return nil, nil
	}
	var tasks []Task
	err := applyFilter(s.db.WithContext(ctx), filter).
		Order("updated_at DESC, created_at DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// due returns up to limit tasks with a handler in names whose run time has come.
func (s *Store) due(ctx context.Context, names []string, now, lockBefore time.Time, limit int) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).
		Where("name IN ?", names).
		Where("next_run_at IS NOT NULL AND next_run_at <= ?", now).
		Where("(locked_at IS NULL OR locked_at < ?)", lockBefore).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("find due tasks: %w", err)
	}
	return tasks, nil
}

// claim locks a due task for this poll invocation. Only one concurrent caller
// observes true for a given fire.
func (s *Store) claim(ctx context.Context, id string, now, lockBefore time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Task{}).
		Where("id = ?", id).
		Where("next_run_at IS NOT NULL AND next_run_at <= ?", now).
		Where("(locked_at IS NULL OR locked_at < ?)", lockBefore).
		Updates(map[string]any{"locked_at": now, "last_run_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("claim task %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// finish records the outcome of a run. Tasks are one-shot, so the run time is
// cleared whether the handler failed or not.
func (s *Store) finish(ctx context.Context, id string, now time.Time, runErr error) error {
	updates := map[string]any{
		"next_run_at":      nil,
		"locked_at":        nil,
		"last_finished_at": now,
	}
	if runErr != nil {
		updates["fail_count"] = gorm.Expr("fail_count + 1")
		updates["fail_reason"] = runErr.Error()
	}
	if err := s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("finish task %s: %w", id, err)
	}
	return nil
}

// Purge deletes fired tasks that finished before cutoff.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("next_run_at IS NULL AND locked_at IS NULL").
		Where("last_finished_at IS NOT NULL AND last_finished_at < ?", cutoff.UTC()).
		Delete(&Task{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func applyFilter(q *gorm.DB, f Filter) *gorm.DB {
	if f.IDs != nil {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.Name != "" {
		q = q.Where("name = ?", f.Name)
	}
	if f.Refs != nil {
		q = q.Where("ref IN ?", f.Refs)
	}
	if f.PendingOnly {
		q = q.Where("next_run_at IS NOT NULL")
	}
	return q
}
