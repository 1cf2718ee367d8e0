package domain

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Kind classifies failures so the transport layer can map them to status codes.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
	KindConflict
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is a classified domain failure. Message is safe to show to callers;
// Err is kept for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Invalid(msg string) error   { return &Error{Kind: KindInvalid, Message: msg} }
func NotFound(msg string) error  { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) error  { return &Error{Kind: KindConflict, Message: msg} }
func Forbidden(msg string) error { return &Error{Kind: KindForbidden, Message: msg} }

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message of a classified error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// Store outcomes. Stores return these instead of driver specific errors.
var (
	// ErrRecordNotFound is returned by conditional updates and deletes that matched nothing.
	ErrRecordNotFound = errors.New("record not found")
	// ErrMissingReference indicates a foreign key pointed at a record that no longer exists.
	ErrMissingReference = errors.New("referenced record missing")
	// ErrConcurrencyConflict indicates that the underlying storage rejected an
	// update because a newer version of the entity is already persisted.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrGenerationExhausted is returned when no free short link was found.
	ErrGenerationExhausted = errors.New("short link generation exhausted")
)

// DuplicateError reports a uniqueness violation detected by the store.
type DuplicateError struct {
	Entity string
	Field  string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s.%s", e.Entity, e.Field)
}

// guard passes classified errors through unchanged. Anything else is logged
// with the operation name and replaced by an internal error carrying msg.
func guard(op, msg string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	log.WithError(err).WithField("op", op).Error("unexpected failure")
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}
