package storage

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"kanban-api/domain"
)

type uniqueField struct {
	entity string
	field  string
}

// postgres reports the constraint name, sqlite the violated table.column list.
var uniqueConstraints = map[string]uniqueField{
	"boards_name_unique":       {"board", "name"},
	"boards_short_link_unique": {"board", "short_link"},
	"lists_board_name_unique":  {"list", "name"},
}

var tableEntities = map[string]string{
	"boards":        "board",
	"board_members": "board_member",
	"lists":         "list",
	"tasks":         "task",
	"subtasks":      "subtask",
	"users":         "user",
}

// mapSQLError translates driver errors into the store outcomes the domain understands.
func mapSQLError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrRecordNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			if f, ok := uniqueConstraints[pqErr.Constraint]; ok {
				return &domain.DuplicateError{Entity: f.entity, Field: f.field}
			}
			return &domain.DuplicateError{Entity: tableEntity(pqErr.Table), Field: pqErr.Constraint}
		case "23503":
			return domain.ErrMissingReference
		}
		return err
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return parseSQLiteUnique(liteErr.Error())
		case sqlite3.ErrConstraintForeignKey:
			return domain.ErrMissingReference
		}
	}
	return err
}

// parseSQLiteUnique reads messages such as
// "UNIQUE constraint failed: lists.board_id, lists.name".
func parseSQLiteUnique(msg string) error {
	_, cols, ok := strings.Cut(msg, "failed: ")
	if !ok {
		return &domain.DuplicateError{Entity: "unknown", Field: "unknown"}
	}
	parts := strings.Split(cols, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	table, field, ok := strings.Cut(last, ".")
	if !ok {
		return &domain.DuplicateError{Entity: "unknown", Field: last}
	}
	return &domain.DuplicateError{Entity: tableEntity(table), Field: field}
}

func tableEntity(table string) string {
	if e, ok := tableEntities[table]; ok {
		return e
	}
	return table
}
