package api

import (
	"context"
	"errors"

	"github.com/solatis/healthsignals/internal/types"
)

// ErrorKind classifies service errors for transport mapping.
// Validation errors map to INVALID_ARGUMENT / 400.
// Rule file failures, including an oversized sheet, map to UNAVAILABLE / 503.
// Context timeouts map to DEADLINE_EXCEEDED / 504.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalid
	KindNotFound
	KindUnavailable
	KindCanceled
	KindDeadline
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindDeadline
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, types.ErrRuleSourceUnavailable):
		return KindUnavailable
	case errors.Is(err, types.ErrEvaluationNotFound):
		return KindNotFound
	case errors.Is(err, types.ErrInvalidMetrics),
		errors.Is(err, types.ErrEmptyGrid),
		errors.Is(err, types.ErrTooManyRules),
		errors.Is(err, types.ErrTooManyColumns),
		errors.Is(err, types.ErrNoRuleSource):
		return KindInvalid
	default:
		return KindInternal
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindInvalid:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindCanceled:
		return "canceled"
	case KindDeadline:
		return "deadline_exceeded"
	default:
		return "internal"
	}
}
