package api

import (
	"context"

	"kanban-api/domain"
)

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the domain operations the handlers call into.
type Services struct {
	Boards   domain.BoardService
	Lists    domain.ListService
	Tasks    domain.TaskService
	SubTasks domain.SubTaskService
	Reader   domain.Aggregator
	Health   Pinger
}

// NewServices wires every service to the same store.
func NewServices(st domain.Store, gen domain.ShortLinkGenerator, reminders domain.ReminderScheduler, shortLinkBase string) Services {
	return Services{
		Boards:   domain.NewBoardService(st, gen),
		Lists:    domain.NewListService(st),
		Tasks:    domain.NewTaskService(st, reminders),
		SubTasks: domain.NewSubTaskService(st, reminders),
		Reader:   domain.NewAggregator(st, shortLinkBase),
		Health:   st,
	}
}
