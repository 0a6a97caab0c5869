package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/agnosticeng/query-gateway/internal/engine"
)

type Kind int

const (
	KindConnectionFailure Kind = iota + 1
	KindQueryRejected
	KindTimeout
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindConnectionFailure:
		return "connection_failure"
	case KindQueryRejected:
		return "query_rejected"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	ErrConnectionFailure = &QueryError{Kind: KindConnectionFailure}
	ErrQueryRejected     = &QueryError{Kind: KindQueryRejected}
	ErrTimeout           = &QueryError{Kind: KindTimeout}
	ErrCanceled          = &QueryError{Kind: KindCanceled}
)

// QueryError is the only error type returned by FetchRecords.
type QueryError struct {
	Kind    Kind
	QueryID string
	Err     error
}

func (e *QueryError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}

	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is matches any *QueryError of the same Kind, so the package level sentinels
// can be used with errors.Is.
func (e *QueryError) Is(target error) bool {
	t, ok := target.(*QueryError)
	return ok && t.Kind == e.Kind
}

func KindOf(err error) (Kind, bool) {
	var qe *QueryError

	if errors.As(err, &qe) {
		return qe.Kind, true
	}

	return 0, false
}

func newQueryError(kind Kind, queryID string, err error) *QueryError {
	return &QueryError{Kind: kind, QueryID: queryID, Err: err}
}

// classify maps a driver error to a Kind. callerCtx is the context passed by
// the caller, used to tell caller cancellation apart from the gateway's own
// query deadline carried by opCtx.
func classify(callerCtx context.Context, opCtx context.Context, err error) Kind {
	switch {
	case errors.Is(callerCtx.Err(), context.Canceled):
		return KindCanceled
	case errors.Is(callerCtx.Err(), context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(opCtx.Err(), context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, engine.ErrRejected):
		return KindQueryRejected
	case errors.Is(err, engine.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindConnectionFailure
	}
}

// classifyAcquire reports pool acquisition failures. Anything not caused by
// the caller's context is a connection failure, including pool exhaustion.
func classifyAcquire(callerCtx context.Context) Kind {
	switch {
	case errors.Is(callerCtx.Err(), context.Canceled):
		return KindCanceled
	case errors.Is(callerCtx.Err(), context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindConnectionFailure
	}
}
