package cards

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation marks user-correctable input problems.
	ErrValidation = errors.New("cards: validation failed")
	// ErrNotFound marks references to cards that do not exist.
	ErrNotFound = errors.New("cards: not found")
	// ErrTransient marks store failures and timeouts that are safe to retry.
	ErrTransient = errors.New("cards: transient store failure")
	// ErrFatal marks a broken invariant that must not be swallowed.
	ErrFatal = errors.New("cards: invariant violated")

	errMissingDatabase = errors.New("database handle is required")
	errEmptyTitle      = errors.New("title is required")
	errEmptyBody       = errors.New("body is required")
	errTooLong         = errors.New("value exceeds maximum length")
	errMissingCardID   = errors.New("card id is required")
	errCounterNotMoved = errors.New("counter update affected no rows")
)

// ServiceError carries a stable "<operation>.<reason>" code and an error kind.
type ServiceError struct {
	code string
	kind error
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Is matches the error kind so callers can use errors.Is(err, ErrNotFound).
func (e *ServiceError) Is(target error) bool {
	return target != nil && target == e.kind
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

// Kind returns the sentinel classifying this error.
func (e *ServiceError) Kind() error {
	return e.kind
}

const (
	opServiceNew     = "cards.service.new"
	opCreateCard     = "cards.create_card"
	opCreateComment  = "cards.create_comment"
	opGetCard        = "cards.get_card"
	opGetComments    = "cards.get_comments"
	opListSorted     = "cards.list_sorted"
	opLikeCard       = "cards.like_card"
	reasonTimeout    = "timeout"
	reasonCanceled   = "canceled"
	reasonQuery      = "query_failed"
	reasonInsert     = "insert_failed"
	reasonNotFound   = "card_not_found"
	reasonMissingDB  = "missing_database"
	reasonCounter    = "counter_update_failed"
	reasonMissingID  = "missing_card_id"
	reasonTitle      = "invalid_title"
	reasonBody       = "invalid_body"
	reasonAuthor     = "invalid_author"
	fieldCardID      = "card_id"
	fieldIPAddress   = "ip_address"
	fieldDeviceID    = "device_id"
	kindLabelInvalid = "validation"
)

func newServiceError(operation, reason string, kind, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, kind: kind, err: cause}
}

func validationError(operation, reason string, cause error) error {
	return newServiceError(operation, reason, ErrValidation, cause)
}

func notFoundError(operation string) error {
	return newServiceError(operation, reasonNotFound, ErrNotFound, nil)
}

// storeError classifies a store failure as transient, distinguishing timeouts from
// callers that went away.
func storeError(operation, reason string, cause error) error {
	switch {
	case errors.Is(cause, context.Canceled):
		return newServiceError(operation, reasonCanceled, ErrTransient, cause)
	case errors.Is(cause, context.DeadlineExceeded):
		return newServiceError(operation, reasonTimeout, ErrTransient, cause)
	}
	return newServiceError(operation, reason, ErrTransient, cause)
}

// KindLabel names the kind of a service error for logs and metrics.
func KindLabel(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return kindLabelInvalid
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrFatal):
		return "fatal"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}
