// Package enginetest provides an in-memory engine.Driver for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/agnosticeng/query-gateway/internal/engine"
)

type QueryFunc func(ctx context.Context, query string, args []any) (*engine.RowSet, error)

type Driver struct {
	mu         sync.Mutex
	connectErr error
	queryFunc  QueryFunc
	tables     map[string]*engine.RowSet

	connects  atomic.Int64
	closes    atomic.Int64
	active    atomic.Int64
	maxActive atomic.Int64
	queries   atomic.Int64
}

func NewDriver() *Driver {
	return &Driver{tables: make(map[string]*engine.RowSet)}
}

func (d *Driver) Name() string {
	return "memory"
}

// WithRows registers the result returned for an exact query string.
func (d *Driver) WithRows(query string, columns []string, rows ...[]any) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[query] = &engine.RowSet{Columns: columns, Rows: rows}
	return d
}

func (d *Driver) WithConnectError(err error) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
	return d
}

// WithQueryFunc overrides lookup by query string.
func (d *Driver) WithQueryFunc(f QueryFunc) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queryFunc = f
	return d
}

func (d *Driver) Connect(ctx context.Context) (engine.Conn, error) {
	d.mu.Lock()
	var err = d.connectErr
	d.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.connects.Add(1)
	return &Conn{driver: d}, nil
}

func (d *Driver) Connects() int64  { return d.connects.Load() }
func (d *Driver) Closes() int64    { return d.closes.Load() }
func (d *Driver) Queries() int64   { return d.queries.Load() }
func (d *Driver) MaxActive() int64 { return d.maxActive.Load() }

func (d *Driver) query(ctx context.Context, query string, args []any) (*engine.RowSet, error) {
	d.queries.Add(1)

	var n = d.active.Add(1)
	defer d.active.Add(-1)

	for {
		var m = d.maxActive.Load()

		if n <= m || d.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	d.mu.Lock()
	var (
		f  = d.queryFunc
		rs = d.tables[query]
	)
	d.mu.Unlock()

	if f != nil {
		return f(ctx, query, args)
	}

	if rs == nil {
		return nil, fmt.Errorf("%w: unknown query %q", engine.ErrRejected, query)
	}

	return &engine.RowSet{
		Columns:  rs.Columns,
		Rows:     rs.Rows,
		Metadata: &engine.QueryMetadata{Rows: uint64(len(rs.Rows))},
	}, nil
}

type Conn struct {
	driver *Driver
	closed atomic.Bool
}

func (conn *Conn) Ping(ctx context.Context) error {
	if conn.closed.Load() {
		return fmt.Errorf("%w: connection closed", engine.ErrUnavailable)
	}

	return ctx.Err()
}

func (conn *Conn) Query(ctx context.Context, query string, args ...any) (*engine.RowSet, error) {
	if conn.closed.Load() {
		return nil, fmt.Errorf("%w: connection closed", engine.ErrUnavailable)
	}

	return conn.driver.query(ctx, query, args)
}

func (conn *Conn) Close() error {
	if conn.closed.CompareAndSwap(false, true) {
		conn.driver.closes.Add(1)
	}

	return nil
}
