package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

const internalMessage = "Erro interno do servidor"

// envelope is the body of every response. Only respond and fail build one,
// so an error response never carries data.
type envelope struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, envelope{Message: message, Data: data})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, envelope{Error: true, Message: message})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalid:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// failWith renders a domain error. Internal errors only expose their
// caller-facing message; the cause is logged.
func failWith(c echo.Context, logger *log.Logger, err error) error {
	kind := domain.KindOf(err)
	msg := domain.MessageOf(err)
	if kind == domain.KindInternal {
		setErrorStage(c, "internal")
		logger.WithError(err).WithFields(log.Fields{"route": c.Path(), "method": c.Request().Method}).Error("request failed")
		if msg == "" {
			msg = internalMessage
		}
	} else {
		setErrorStage(c, kind.String())
	}
	return fail(c, statusFor(kind), msg)
}

// HTTPErrorHandler renders errors that escape handlers, such as unknown
// routes or panics caught by Recover, in the response envelope.
func HTTPErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := internalMessage
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok && status < http.StatusInternalServerError {
				msg = m
			} else if status < http.StatusInternalServerError {
				msg = http.StatusText(status)
			}
		}
		if status >= http.StatusInternalServerError {
			logger.WithError(err).WithField("route", c.Path()).Error("unhandled error")
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = fail(c, status, msg)
		}
		if err != nil {
			logger.WithError(err).Error("failed to write error response")
		}
	}
}
