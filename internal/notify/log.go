// Package notify implements delivery channels for fired reminders.
package notify

import (
	"context"

	"github.com/pathakanu/mealremind/internal/reminder"
	"github.com/rs/zerolog"
)

// Log writes fired reminders to the log. It is used when no messaging
// provider is configured.
type Log struct {
	log zerolog.Logger
}

// NewLog returns a Log notifier writing to log.
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log}
}

// Notify implements reminder.Notifier.
func (l *Log) Notify(_ context.Context, fire reminder.Fire) error {
	l.log.Info().
		Str("reminder_id", fire.ReminderID).
		Str("user_id", fire.OwnerUserID).
		Time("sent_at", fire.SentAt).
		Str("message", fire.Message).
		Msg("reminder fired")
	return nil
}
