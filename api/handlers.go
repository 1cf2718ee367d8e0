package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services, auth Authenticator, deduper Deduper, logger *log.Logger) {
	authed := requireUser(auth, logger)
	idem := IdempotencyMiddleware(deduper, logger)

	e.GET("/healthz", healthz(svc.Health))

	e.POST("/board", createBoard(svc.Boards, logger), authed, idem)
	e.GET("/board", listBoards(svc.Reader, logger), authed)
	e.GET("/board/:id", getBoard(svc.Reader, logger), authed)

	e.POST("/list", createList(svc.Lists, logger), authed, idem)

	e.POST("/task", createTask(svc.Tasks, logger), authed, idem)
	e.GET("/task/:id", getTask(svc.Reader, logger), authed)
	e.PATCH("/task/:id/list", changeTaskList(svc.Tasks, logger), authed)
	e.PATCH("/task/:id/status", toggleTaskStatus(svc.Tasks, logger), authed)
	e.DELETE("/task/:id", deleteTask(svc.Tasks, logger), authed)

	e.POST("/sub_task", createSubTask(svc.SubTasks, logger), authed, idem)
}

func healthz(p Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if p != nil {
			if err := p.Ping(c.Request().Context()); err != nil {
				setErrorStage(c, "storage")
				c.Logger().Error(err)
				return fail(c, http.StatusServiceUnavailable, "Serviço indisponível")
			}
		}
		return respond(c, http.StatusOK, "ok", nil)
	}
}

func createBoard(svc domain.BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createBoardRequest
		if err := decodeBody(c, &req); err != nil {
			return failWith(c, logger, err)
		}
		_, err := svc.Create(c.Request().Context(), domain.CreateBoardInput{
			Name:        req.Name,
			Description: req.Description,
			Members:     req.Members,
			OwnerID:     userFrom(c),
			IsPrivate:   req.IsPrivate,
		})
		if err != nil {
			return failWith(c, logger, err)
		}
		return respond(c, http.StatusCreated, "Board criado", nil)
	}
}

func listBoards(reader domain.Aggregator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		opts, err := pageOptionsFrom(c)
		if err != nil {
			return failWith(c, logger, err)
		}
		page, err := reader.FetchBoardsPage(c.Request().Context(), userFrom(c), opts)
		if err != nil {
			return failWith(c, logger, err)
		}
		return respond(c, http.StatusOK, "Quadros encontrados com sucesso!", page)
	}
}

func getBoard(reader domain.Aggregator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		view, err := reader.FetchBoard(c.Request().Context(), c.Param("id"), userFrom(c))
		if err != nil {
			return failWith(c, logger, err)
		}
		return respond(c, http.StatusOK, "Quadro encontrado com sucesso!", view)
	}
}

func createList(svc domain.ListService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createListRequest
		if err := decodeBody(c, &req); err != nil {
			return failWith(c, logger, err)
		}
		_, err := svc.Create(c.Request().Context(), domain.CreateListInput{
			Name:    req.Name,
			BoardID: req.BoardID,
			Pos:     req.Pos,
			Closed:  req.Closed,
			Color:   req.Color,
			Limits:  req.Limits,
		})
		if err != nil {
			return failWith(c, logger, err)
		}
		return respond(c, http.StatusCreated, "Lista criada com sucesso!", nil)
	}
}

func createTask(svc domain.TaskService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return failWith(c, logger, err)
		}
		_, err := svc.Create(c.Request().Context(), domain.CreateTaskInput{
			Title:         req.Title,
			Description:   req.Description,
			ListID:        req.ListID,
			Start:         req.Start,
			Due:           req.Due,
			DueReminder:   req.DueReminder,
			Labels:        req.Labels,
			UsersReminder: req.UsersReminder,
			ShortLink:     req.ShortLink,
			ShortURL:      req.ShortURL,
		})
		if err != nil {
			return failWith(c, logger, err)
		}
		return respond(c, http.StatusCreated, "Tarefa criada com sucesso!", nil)
	}
}

func getTask(reader domain.Aggregator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		view, err := reader.FetchTaskWithSubtasks(c.Request().Context(), c.Param("id"))
		if err != nil {
			return failWith(c, logger, err)
		}
		return respond(c, http.StatusOK, "Tarefa encontrada com sucesso!", view)
	}
}

func changeTaskList(svc domain.TaskService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req changeListRequest
		if err := decodeBody(c, &req); err != nil {
			return failWith(c, logger, err)
		}
		if err := svc.ChangeList(c.Request().Context(), c.Param("id"), req.ListID); err != nil {
			return failWith(c, logger, err)
		}
		return respond(c, http.StatusOK, "Tarefa atualizada com sucesso!", nil)
	}
}

func toggleTaskStatus(svc domain.TaskService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		done, err := svc.ToggleStatus(c.Request().Context(), c.Param("id"), userFrom(c))
		if err != nil {
			return failWith(c, logger, err)
		}
		return respond(c, http.StatusOK, "Tarefa atualizada com sucesso!", statusResponse{IsCompleted: done})
	}
}

func deleteTask(svc domain.TaskService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		removed, err := svc.Delete(c.Request().Context(), c.Param("id"), userFrom(c))
		if err != nil {
			return failWith(c, logger, err)
		}
		return respond(c, http.StatusOK, "Tarefa removida com sucesso!", deleteResponse{RemovedSubTasks: removed})
	}
}

func createSubTask(svc domain.SubTaskService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createSubTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return failWith(c, logger, err)
		}
		_, err := svc.Create(c.Request().Context(), domain.CreateSubTaskInput{
			Title:         req.Title,
			Description:   req.Description,
			TaskID:        req.TaskID,
			Start:         req.Start,
			Due:           req.Due,
			DueReminder:   req.DueReminder,
			UsersReminder: req.UsersReminder,
		})
		if err != nil {
			return failWith(c, logger, err)
		}
		return respond(c, http.StatusCreated, "Subtarefa criada com sucesso!", nil)
	}
}

// pageOptionsFrom reads page, limit and order. Missing values take defaults;
// malformed ones are rejected.
func pageOptionsFrom(c echo.Context) (domain.PageOptions, error) {
	var opts domain.PageOptions
	var err error
	if opts.Page, err = queryInt(c, "page"); err != nil {
		return opts, err
	}
	if opts.Limit, err = queryInt(c, "limit"); err != nil {
		return opts, err
	}
	switch order := strings.ToUpper(strings.TrimSpace(c.QueryParam("order"))); order {
	case "", domain.OrderAsc, domain.OrderDesc:
		opts.Order = order
	default:
		return opts, domain.Invalid("Parâmetro order deve ser ASC ou DESC")
	}
	return opts.Normalize(), nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, domain.Invalid("Parâmetro " + name + " inválido")
	}
	return n, nil
}
