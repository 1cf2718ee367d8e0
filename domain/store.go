package domain

import "context"

// Getters return (nil, nil) when the record does not exist.
// Inserts return *DuplicateError on uniqueness violations and
// ErrMissingReference when a referenced parent is gone.

type BoardStore interface {
	InsertBoard(ctx context.Context, b Board) error
	GetBoard(ctx context.Context, id string) (*Board, error)
	GetBoardByShortLink(ctx context.Context, shortLink string) (*Board, error)
	ShortLinkExists(ctx context.Context, shortLink string) (bool, error)
	ListBoardsForUser(ctx context.Context, userID string, opts PageOptions) ([]Board, error)
	CountBoardsForUser(ctx context.Context, userID string) (int, error)
}

type ListStore interface {
	InsertList(ctx context.Context, l List) error
	GetList(ctx context.Context, id string) (*List, error)
	ListsByBoard(ctx context.Context, boardID string) ([]List, error)
}

type TaskStore interface {
	InsertTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	TasksByBoard(ctx context.Context, boardID string) ([]Task, error)
	// MoveTask sets list_id to to only while it still equals from.
	// It returns ErrRecordNotFound when nothing matched.
	MoveTask(ctx context.Context, id, from, to string) error
	// ToggleTaskCompletion flips is_completed in one store operation and
	// returns the new value. ErrRecordNotFound when the task is gone.
	ToggleTaskCompletion(ctx context.Context, id string) (bool, error)
	// DeleteTaskCascade removes the task's subtasks and then the task.
	// It returns the number of subtasks removed.
	DeleteTaskCascade(ctx context.Context, id string) (int, error)
}

type SubTaskStore interface {
	InsertSubTask(ctx context.Context, st SubTask) error
	SubTasksByTask(ctx context.Context, taskID string) ([]SubTask, error)
}

type UserStore interface {
	UserExists(ctx context.Context, id string) (bool, error)
}

// Store is the full persistence capability.
type Store interface {
	BoardStore
	ListStore
	TaskStore
	SubTaskStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}
