// Package scheduler is a persistent, poll-based task queue stored next to the
// application data. Tasks survive restarts; a Poller picks due tasks up on a
// fixed interval and hands each fire to exactly one poll invocation. Delivery
// is at-least-once: a poller that dies mid-run leaves a lock that expires, and
// the task is picked up again. Handlers must therefore be idempotent.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// TableName is the well-known table the queue persists tasks in.
const TableName = "scheduled_tasks"

// ErrEmptyFilter is returned by Cancel when the filter would match every task.
var ErrEmptyFilter = errors.New("scheduler: refusing to cancel with an empty filter")

// Task is one scheduled execution. NextRunAt is nil once the task has fired.
type Task struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name           string         `gorm:"type:varchar(64);not null;index" json:"name"`
	Ref            string         `gorm:"type:varchar(64);index" json:"ref"`
	Data           datatypes.JSON `json:"data"`
	NextRunAt      *time.Time     `gorm:"index" json:"next_run_at"`
	LockedAt       *time.Time     `json:"locked_at,omitempty"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	LastFinishedAt *time.Time     `json:"last_finished_at,omitempty"`
	FailCount      int            `json:"fail_count"`
	FailReason     string         `gorm:"type:text" json:"fail_reason,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName implements gorm's tabler.
func (Task) TableName() string { return TableName }

// Pending reports whether the task is still waiting to fire.
func (t Task) Pending() bool { return t.NextRunAt != nil }

// Decode unmarshals the task payload into v.
func (t Task) Decode(v any) error {
	return json.Unmarshal(t.Data, v)
}

// Payload is the typed data carried by a task. TaskName selects the handler
// and TaskRef is the indexed key tasks are filtered by.
type Payload interface {
	TaskName() string
	TaskRef() string
}

// Filter selects tasks. Nil slices are ignored; a non-nil empty slice matches nothing.
type Filter struct {
	IDs         []string
	Name        string
	Refs        []string
	PendingOnly bool
}

func (f Filter) empty() bool {
	return f.IDs == nil && f.Name == "" && f.Refs == nil && !f.PendingOnly
}

func (f Filter) matchesNothing() bool {
	return (f.IDs != nil && len(f.IDs) == 0) || (f.Refs != nil && len(f.Refs) == 0)
}

// Scheduler is the contract the reminder core depends on.
type Scheduler interface {
	// Schedule stores a task that fires at at and returns its id.
	Schedule(ctx context.Context, at time.Time, payload Payload) (string, error)
	// Cancel removes matching tasks. Matching nothing is not an error.
	Cancel(ctx context.Context, filter Filter) (int64, error)
	// ListTasks returns matching tasks, most recently modified first.
	ListTasks(ctx context.Context, filter Filter) ([]Task, error)
}

// Handler executes a fired task.
type Handler func(ctx context.Context, task Task) error
