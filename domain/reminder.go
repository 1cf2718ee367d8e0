package domain

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Reminder asks the delivery side to notify users about a task or subtask at At.
type Reminder struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	BoardID    string    `json:"board_id,omitempty"`
	Title      string    `json:"title"`
	UserIDs    []string  `json:"user_ids"`
	At         time.Time `json:"at"`
}

type ReminderScheduler interface {
	Schedule(ctx context.Context, r Reminder) error
}

// NopScheduler drops reminders. Used when no queue is configured.
type NopScheduler struct{}

func (NopScheduler) Schedule(context.Context, Reminder) error { return nil }

// scheduleReminder enqueues r when it has a time and recipients.
// Failures are logged and never fail the caller.
func scheduleReminder(ctx context.Context, sched ReminderScheduler, r Reminder) {
	if sched == nil || r.At.IsZero() || len(r.UserIDs) == 0 {
		return
	}
	if err := sched.Schedule(ctx, r); err != nil {
		log.WithError(err).WithFields(log.Fields{"entity": r.EntityID, "type": r.EntityType}).Error("failed to schedule reminder")
	}
}
