package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

type CreateSubTaskInput struct {
	Title         string
	Description   string
	TaskID        string
	Start         *time.Time
	Due           *time.Time
	DueReminder   *time.Time
	UsersReminder []string
}

type SubTaskServiceStore interface {
	TaskStore
	SubTaskStore
	UserStore
}

type SubTaskService struct {
	st        SubTaskServiceStore
	reminders ReminderScheduler
	now       func() time.Time
}

func NewSubTaskService(st SubTaskServiceStore, reminders ReminderScheduler) SubTaskService {
	if reminders == nil {
		reminders = NopScheduler{}
	}
	return SubTaskService{st: st, reminders: reminders, now: time.Now}
}

// Create adds a subtask to an existing task.
func (s SubTaskService) Create(ctx context.Context, in CreateSubTaskInput) (*SubTask, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, Invalid("O título da subtarefa é obrigatório")
	}
	if in.TaskID == "" {
		return nil, Invalid("A tarefa da subtarefa é obrigatória")
	}
	task, err := s.st.GetTask(ctx, in.TaskID)
	if err != nil {
		return nil, guard("get task", "Erro ao criar subtarefa", err)
	}
	if task == nil {
		return nil, NotFound("Tarefa não encontrada")
	}
	users := uniqueIDs(in.UsersReminder)
	if err := requireUsers(ctx, s.st, users); err != nil {
		return nil, guard("check reminder users", "Erro ao criar subtarefa", err)
	}

	ts := s.now().UTC()
	st := SubTask{
		ID:            NewID(),
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		TaskID:        task.ID,
		Start:         in.Start,
		Due:           in.Due,
		DueReminder:   in.DueReminder,
		UsersReminder: users,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if err := s.st.InsertSubTask(ctx, st); err != nil {
		if errors.Is(err, ErrMissingReference) {
			return nil, NotFound("Tarefa não encontrada")
		}
		return nil, guard("insert subtask", "Erro ao criar subtarefa", err)
	}
	log.WithFields(log.Fields{"subtask": st.ID, "task": st.TaskID}).Info("subtask created")

	if st.DueReminder != nil {
		scheduleReminder(ctx, s.reminders, Reminder{
			EntityType: "subtask",
			EntityID:   st.ID,
			BoardID:    task.BoardID,
			Title:      st.Title,
			UserIDs:    st.UsersReminder,
			At:         *st.DueReminder,
		})
	}
	return &st, nil
}
