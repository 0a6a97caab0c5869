package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agnosticeng/query-gateway/internal/engine"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
)

type DriverConfig struct {
	Dsn            string
	ConnectTimeout time.Duration
	// AllowWrites disables default_transaction_read_only on new sessions.
	AllowWrites bool
}

func (conf DriverConfig) WithDefaults() DriverConfig {
	if len(conf.Dsn) == 0 {
		conf.Dsn = "postgres://127.0.0.1:5432/postgres"
	}

	if conf.ConnectTimeout == 0 {
		conf.ConnectTimeout = 5 * time.Second
	}

	return conf
}

type Driver struct {
	conf DriverConfig
}

func NewDriver(conf DriverConfig) *Driver {
	return &Driver{conf: conf.WithDefaults()}
}

func (d *Driver) Name() string {
	return "postgres"
}

func (d *Driver) Connect(ctx context.Context) (engine.Conn, error) {
	pgconf, err := pgx.ParseConfig(d.conf.Dsn)

	if err != nil {
		return nil, fmt.Errorf("%w: invalid dsn: %w", engine.ErrUnavailable, err)
	}

	pgconf.ConnectTimeout = d.conf.ConnectTimeout

	if !d.conf.AllowWrites {
		pgconf.RuntimeParams["default_transaction_read_only"] = "on"
	}

	conn, err := pgx.ConnectConfig(ctx, pgconf)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
	}

	return &Conn{conn: conn}, nil
}

type Conn struct {
	conn *pgx.Conn
}

func (conn *Conn) Ping(ctx context.Context) error {
	return classifyError(conn.conn.Ping(ctx), !conn.conn.IsClosed())
}

func (conn *Conn) Query(ctx context.Context, query string, args ...any) (*engine.RowSet, error) {
	var t0 = time.Now()

	rows, err := conn.conn.Query(ctx, query, args...)

	if err != nil {
		return nil, classifyError(err, !conn.conn.IsClosed())
	}

	defer rows.Close()

	var rs = &engine.RowSet{
		Columns: lo.Map(rows.FieldDescriptions(), func(fd pgconn.FieldDescription, _ int) string {
			return fd.Name
		}),
	}

	for rows.Next() {
		values, err := rows.Values()

		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode row: %w", engine.ErrUnavailable, err)
		}

		rs.Rows = append(rs.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(err, !conn.conn.IsClosed())
	}

	rs.Metadata = &engine.QueryMetadata{
		Rows:    uint64(len(rs.Rows)),
		Elapsed: time.Since(t0),
	}

	return rs, nil
}

func (conn *Conn) Close() error {
	var ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return conn.conn.Close(ctx)
}

// classifyError maps pgx errors to engine error classes. Errors that are
// neither server errors nor timeouts are client side rejections (argument
// count or encoding) as long as the connection survived them.
func classifyError(err error, alive bool) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "57014":
			// query_canceled, raised by statement_timeout
			return fmt.Errorf("%w: %w", engine.ErrTimeout, err)
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "28"),
			strings.HasPrefix(pgErr.Code, "57P"):
			return fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
		default:
			return fmt.Errorf("%w: %w", engine.ErrRejected, err)
		}
	}

	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", engine.ErrTimeout, err)
	}

	if alive {
		return fmt.Errorf("%w: %w", engine.ErrRejected, err)
	}

	return fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
}
