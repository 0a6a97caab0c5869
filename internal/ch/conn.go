package ch

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	chproto "github.com/ClickHouse/ch-go/proto"
	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/ClickHouse/clickhouse-go/v2/lib/proto"
	"github.com/agnosticeng/query-gateway/internal/engine"
	"github.com/samber/lo"
)

type Conn struct {
	chConn driver.Conn
}

func (conn *Conn) Ping(ctx context.Context) error {
	return classifyError(conn.chConn.Ping(ctx))
}

func (conn *Conn) Query(ctx context.Context, query string, args ...any) (*engine.RowSet, error) {
	var (
		md   engine.QueryMetadata
		opts = []clickhouse.QueryOption{
			clickhouse.WithProgress(progressHandler(&md)),
			clickhouse.WithLogs(logHandler(&md)),
		}
	)

	if id := engine.QueryIDFromContext(ctx); len(id) > 0 {
		opts = append(opts, clickhouse.WithQueryID(id))
	}

	rows, err := conn.chConn.Query(clickhouse.Context(ctx, opts...), query, args...)

	if err != nil {
		return nil, classifyError(err)
	}

	defer rows.Close()

	var rs = &engine.RowSet{
		Columns:  rows.Columns(),
		Metadata: &md,
	}

	var scanTypes = lo.Map(rows.ColumnTypes(), func(ct driver.ColumnType, _ int) reflect.Type {
		return ct.ScanType()
	})

	for rows.Next() {
		var dest = lo.Map(scanTypes, func(t reflect.Type, _ int) any {
			return reflect.New(t).Interface()
		})

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: failed to scan row: %w", engine.ErrUnavailable, err)
		}

		rs.Rows = append(rs.Rows, lo.Map(dest, func(v any, _ int) any {
			return reflect.ValueOf(v).Elem().Interface()
		}))
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	return rs, nil
}

func (conn *Conn) Close() error {
	return conn.chConn.Close()
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if ex, ok := lo.ErrorsAs[*proto.Exception](err); ok {
		switch chproto.Error(ex.Code) {
		case chproto.ErrTimeoutExceeded:
			return fmt.Errorf("%w: %w", engine.ErrTimeout, err)
		default:
			return fmt.Errorf("%w: %w", engine.ErrRejected, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", engine.ErrTimeout, err)
	}

	return fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
}

func progressHandler(md *engine.QueryMetadata) func(*proto.Progress) {
	return func(p *proto.Progress) {
		if p == nil {
			return
		}

		md.Rows += p.Rows
		md.Bytes += p.Bytes
		md.TotalRows += p.TotalRows
		md.WroteRows += p.WroteRows
		md.WroteBytes += p.WroteBytes
		md.Elapsed += p.Elapsed
	}
}

func logHandler(md *engine.QueryMetadata) func(*clickhouse.Log) {
	return func(l *clickhouse.Log) {
		md.Logs = append(md.Logs, &engine.Log{
			Time:     l.Time,
			Hostname: l.Hostname,
			QueryID:  l.QueryID,
			ThreadID: l.ThreadID,
			Priority: l.Priority,
			Source:   l.Source,
			Text:     l.Text,
		})
	}
}
