package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")

	ErrLinkNotFound        = errors.New("share link not found")
	ErrLinkExpired         = errors.New("share link expired")
	ErrLinkRevoked         = errors.New("share link revoked")
	ErrExtractCodeMismatch = errors.New("extract code mismatch")
	ErrAccessLimitReached  = errors.New("access limit reached")

	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrRecordNotFound       = errors.New("supply record not found")
	ErrAlreadyDisabled      = errors.New("supply record already disabled")
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrForbidden            = errors.New("forbidden")

	// ErrBusy means the lock on a link or order could not be taken in time.
	// Callers may retry with backoff.
	ErrBusy = errors.New("resource busy")
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidInput
	KindDenied
	KindRejected
	KindBusy
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindDenied:
		return "denied"
	case KindRejected:
		return "rejected"
	case KindBusy:
		return "busy"
	default:
		return "internal"
	}
}

// InsufficientQuantityError carries the figures observed at admission time so
// the supplier can adjust and resubmit.
type InsufficientQuantityError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientQuantityError) Is(target error) bool {
	return target == ErrInsufficientQuantity
}

func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrLinkNotFound),
		errors.Is(err, ErrLinkExpired),
		errors.Is(err, ErrLinkRevoked),
		errors.Is(err, ErrExtractCodeMismatch),
		errors.Is(err, ErrAccessLimitReached),
		errors.Is(err, ErrForbidden):
		return KindDenied
	case errors.Is(err, ErrInsufficientQuantity),
		errors.Is(err, ErrRecordNotFound),
		errors.Is(err, ErrAlreadyDisabled),
		errors.Is(err, ErrDuplicateRequest):
		return KindRejected
	case errors.Is(err, ErrBusy):
		return KindBusy
	default:
		return KindInternal
	}
}

func Retryable(err error) bool {
	return KindOf(err) == KindBusy
}

// Reason returns the stable reason code surfaced to callers.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrLinkNotFound):
		return "not_found"
	case errors.Is(err, ErrLinkExpired):
		return "expired"
	case errors.Is(err, ErrLinkRevoked):
		return "revoked"
	case errors.Is(err, ErrExtractCodeMismatch):
		return "extract_code_mismatch"
	case errors.Is(err, ErrAccessLimitReached):
		return "access_limit_reached"
	case errors.Is(err, ErrInsufficientQuantity):
		return "insufficient_quantity"
	case errors.Is(err, ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyDisabled):
		return "already_disabled"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "internal_error"
	}
}
