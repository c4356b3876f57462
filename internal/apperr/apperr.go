// Package apperr defines the domain error taxonomy shared by every
// component and the HTTP status mapping described in spec section 7.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error into the taxonomy of spec section 7.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindPermission
	KindConflict
	KindNotFound
	KindState
	KindExternalUnavailable
	KindExpired
)

// Error is a taxonomy-tagged domain error. Handlers translate it to an
// HTTP response with Status(); nothing else inspects Kind directly.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Status maps an error to the HTTP status code of spec section 7. Errors
// that are not *Error are treated as internal.
func Status(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindPermission:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindState:
		return http.StatusBadRequest
	case KindExternalUnavailable:
		return http.StatusBadGateway
	case KindExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel errors reused across domain packages so callers can
// errors.Is() against a stable identity instead of matching messages.
var (
	ErrNotFound         = New(KindNotFound, "not found")
	ErrVersionConflict  = New(KindConflict, "version conflict")
	ErrPermissionDenied = New(KindPermission, "permission denied")

	ErrLockConflict     = New(KindConflict, "draft is locked by another user")
	ErrLockNotHeld      = New(KindPermission, "caller does not hold the draft lock")
	ErrLockInvalidState = New(KindState, "draft is not in a lockable state")
	ErrDraftNotEditable = New(KindState, "draft is not editable in its current status")

	ErrInvalidTransition    = New(KindState, "invalid state transition")
	ErrShiftInvalidState    = New(KindState, "shift is not in a valid state for this operation")
	ErrShiftAlreadyActive   = New(KindState, "server already has an active shift")
	ErrNoActiveShift        = New(KindState, "server has no active shift")
	ErrApprovalRequired     = New(KindPermission, "this cash-drawer event requires an approver")

	ErrExpiredQR = New(KindExpired, "qr payment window expired")
)
