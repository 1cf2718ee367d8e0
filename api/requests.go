package api

import (
	"bytes"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"kanban-api/domain"
)

const maxBodySize = 1 << 20

type createBoardRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
	IsPrivate   bool     `json:"is_private"`
}

type createListRequest struct {
	Name    string             `json:"name"`
	BoardID string             `json:"id_board"`
	Pos     *int               `json:"pos"`
	Closed  bool               `json:"closed"`
	Color   string             `json:"color"`
	Limits  *domain.ListLimits `json:"limits"`
}

type createTaskRequest struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	ListID        string     `json:"list_id"`
	Start         *time.Time `json:"start"`
	Due           *time.Time `json:"due"`
	DueReminder   *time.Time `json:"due_reminder"`
	Labels        []string   `json:"labels"`
	UsersReminder []string   `json:"users_reminder"`
	ShortLink     string     `json:"short_link"`
	ShortURL      string     `json:"short_url"`
}

type changeListRequest struct {
	ListID string `json:"list_id"`
}

type createSubTaskRequest struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	TaskID        string     `json:"task_id"`
	Start         *time.Time `json:"start"`
	Due           *time.Time `json:"due"`
	DueReminder   *time.Time `json:"due_reminder"`
	UsersReminder []string   `json:"users_reminder"`
}

type statusResponse struct {
	IsCompleted bool `json:"is_completed"`
}

type deleteResponse struct {
	RemovedSubTasks int `json:"removed_subtasks"`
}

// decodeBody reads a JSON body of bounded size. Unknown fields are rejected.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("Corpo da requisição inválido")
	}
	rest, err := io.ReadAll(io.MultiReader(dec.Buffered(), lr))
	if err != nil || len(bytes.TrimSpace(rest)) > 0 {
		return domain.Invalid("Corpo da requisição inválido")
	}
	return nil
}
