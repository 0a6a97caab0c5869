package engine

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnavailable = errors.New("backend unavailable")
	ErrRejected    = errors.New("query rejected by backend")
	ErrTimeout     = errors.New("backend timed out")
)

type Driver interface {
	Name() string
	Connect(ctx context.Context) (Conn, error)
}

// Conn is a single backend session. Implementations are not safe for
// concurrent use; the gateway pool loans each one to a single caller at a time.
type Conn interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, query string, args ...any) (*RowSet, error)
	Close() error
}

type RowSet struct {
	Columns  []string
	Rows     [][]any
	Metadata *QueryMetadata
}

type QueryMetadata struct {
	Rows       uint64
	Bytes      uint64
	TotalRows  uint64
	WroteRows  uint64
	WroteBytes uint64
	Elapsed    time.Duration
	Logs       []*Log
}

type Log struct {
	Time     time.Time
	Hostname string
	QueryID  string
	ThreadID uint64
	Priority int8
	Source   string
	Text     string
}

type queryIDKey struct{}

func WithQueryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, queryIDKey{}, id)
}

func QueryIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(queryIDKey{}).(string)
	return id
}
