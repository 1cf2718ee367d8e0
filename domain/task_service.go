package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// moveRetries bounds how often a list move is retried after the task was
// moved by someone else between the read and the conditional update.
const moveRetries = 3

const (
	maxTaskShortLink = 100
	maxTaskShortURL  = 255
)

type CreateTaskInput struct {
	Title         string
	Description   string
	ListID        string
	Start         *time.Time
	Due           *time.Time
	DueReminder   *time.Time
	Labels        []string
	UsersReminder []string
	ShortLink     string
	ShortURL      string
}

type TaskServiceStore interface {
	BoardStore
	ListStore
	TaskStore
	UserStore
}

// TaskService creates tasks and drives their list and completion transitions.
type TaskService struct {
	st        TaskServiceStore
	reminders ReminderScheduler
	now       func() time.Time
}

func NewTaskService(st TaskServiceStore, reminders ReminderScheduler) TaskService {
	if reminders == nil {
		reminders = NopScheduler{}
	}
	return TaskService{st: st, reminders: reminders, now: time.Now}
}

// Create adds a task to an existing list. The board is taken from the list.
func (s TaskService) Create(ctx context.Context, in CreateTaskInput) (*Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, Invalid("O título da tarefa é obrigatório")
	}
	if in.ListID == "" {
		return nil, Invalid("A lista da tarefa é obrigatória")
	}
	if len(in.ShortLink) > maxTaskShortLink || len(in.ShortURL) > maxTaskShortURL {
		return nil, Invalid("Link da tarefa excede o tamanho permitido")
	}
	list, err := s.st.GetList(ctx, in.ListID)
	if err != nil {
		return nil, guard("get list", "Erro ao criar tarefa", err)
	}
	if list == nil {
		return nil, NotFound("Lista não encontrada")
	}
	users := uniqueIDs(in.UsersReminder)
	if err := requireUsers(ctx, s.st, users); err != nil {
		return nil, guard("check reminder users", "Erro ao criar tarefa", err)
	}

	ts := s.now().UTC()
	t := Task{
		ID:            NewID(),
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		ListID:        list.ID,
		BoardID:       list.BoardID,
		Start:         in.Start,
		Due:           in.Due,
		DueReminder:   in.DueReminder,
		Labels:        uniqueIDs(in.Labels),
		UsersReminder: users,
		ShortLink:     in.ShortLink,
		ShortURL:      in.ShortURL,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if err := s.st.InsertTask(ctx, t); err != nil {
		if errors.Is(err, ErrMissingReference) {
			return nil, NotFound("Lista não encontrada")
		}
		return nil, guard("insert task", "Erro ao criar tarefa", err)
	}
	log.WithFields(log.Fields{"task": t.ID, "list": t.ListID, "board": t.BoardID}).Info("task created")

	if t.DueReminder != nil {
		scheduleReminder(ctx, s.reminders, Reminder{
			EntityType: "task",
			EntityID:   t.ID,
			BoardID:    t.BoardID,
			Title:      t.Title,
			UserIDs:    t.UsersReminder,
			At:         *t.DueReminder,
		})
	}
	return &t, nil
}

// ChangeList moves a task to another list of the same board.
// Moving a task to the list it already is in is a conflict.
func (s TaskService) ChangeList(ctx context.Context, taskID, newListID string) error {
	if taskID == "" {
		return Invalid("O ID da tarefa é obrigatório")
	}
	if newListID == "" {
		return Invalid("O ID da lista é obrigatório")
	}
	task, err := s.st.GetTask(ctx, taskID)
	if err != nil {
		return guard("get task", "Erro ao atualizar tarefa", err)
	}
	if task == nil {
		return NotFound("Tarefa não encontrada")
	}
	if task.ListID == newListID {
		return Conflict("A tarefa já está nesta lista")
	}
	list, err := s.st.GetList(ctx, newListID)
	if err != nil {
		return guard("get list", "Erro ao atualizar tarefa", err)
	}
	if list == nil {
		return NotFound("Lista não encontrada")
	}
	if list.BoardID != task.BoardID {
		return Invalid("A lista pertence a outro board")
	}

	from := task.ListID
	for attempt := 0; attempt < moveRetries; attempt++ {
		err := s.st.MoveTask(ctx, taskID, from, newListID)
		if err == nil {
			log.WithFields(log.Fields{"task": taskID, "from": from, "to": newListID}).Info("task moved")
			return nil
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return guard("move task", "Erro ao atualizar tarefa", err)
		}
		cur, err := s.st.GetTask(ctx, taskID)
		if err != nil {
			return guard("get task", "Erro ao atualizar tarefa", err)
		}
		if cur == nil {
			log.WithField("task", taskID).Warn("task removed during move")
			return NotFound("Tarefa não encontrada")
		}
		if cur.ListID == newListID {
			return Conflict("A tarefa já está nesta lista")
		}
		from = cur.ListID
	}
	return Conflict("A tarefa foi alterada por outra requisição")
}

// ToggleStatus flips the completion flag and returns the new value.
// Only the board owner and members may toggle.
func (s TaskService) ToggleStatus(ctx context.Context, taskID, actingUser string) (bool, error) {
	if taskID == "" {
		return false, Invalid("O ID da tarefa é obrigatório")
	}
	task, board, err := s.taskWithBoard(ctx, taskID)
	if err != nil {
		return false, err
	}
	if err := Authorize(*board, actingUser); err != nil {
		log.WithFields(log.Fields{"task": taskID, "board": board.ID, "user": actingUser}).Warn("status toggle denied")
		return false, err
	}
	done, err := s.st.ToggleTaskCompletion(ctx, task.ID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return false, NotFound("Tarefa não encontrada")
		}
		return false, guard("toggle task", "Erro ao atualizar tarefa", err)
	}
	log.WithFields(log.Fields{"task": taskID, "is_completed": done}).Info("task status toggled")
	return done, nil
}

// Delete removes a task and its subtasks. It returns how many subtasks went with it.
func (s TaskService) Delete(ctx context.Context, taskID, actingUser string) (int, error) {
	if taskID == "" {
		return 0, Invalid("O ID da tarefa é obrigatório")
	}
	_, board, err := s.taskWithBoard(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if err := Authorize(*board, actingUser); err != nil {
		return 0, err
	}
	removed, err := s.st.DeleteTaskCascade(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return 0, NotFound("Tarefa não encontrada")
		}
		return 0, guard("delete task", "Erro ao remover tarefa", err)
	}
	log.WithFields(log.Fields{"task": taskID, "subtasks": removed}).Info("task deleted")
	return removed, nil
}

func (s TaskService) taskWithBoard(ctx context.Context, taskID string) (*Task, *Board, error) {
	task, err := s.st.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, guard("get task", "Erro ao atualizar tarefa", err)
	}
	if task == nil {
		return nil, nil, NotFound("Tarefa não encontrada")
	}
	board, err := s.st.GetBoard(ctx, task.BoardID)
	if err != nil {
		return nil, nil, guard("get board", "Erro ao atualizar tarefa", err)
	}
	if board == nil {
		return nil, nil, NotFound("Board não encontrado")
	}
	return task, board, nil
}

// requireUsers fails with NotFound on the first id that has no user.
func requireUsers(ctx context.Context, st UserStore, ids []string) error {
	for _, id := range ids {
		ok, err := st.UserExists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return NotFound(fmt.Sprintf("Usuário com ID %s não encontrado", id))
		}
	}
	return nil
}
