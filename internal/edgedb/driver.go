package edgedb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agnosticeng/query-gateway/internal/engine"
	"github.com/edgedb/edgedb-go"
)

type DriverConfig struct {
	// Dsn is optional; an empty Dsn resolves the instance from the EDGEDB_*
	// environment or the linked project, like the CLI does.
	Dsn            string
	ConnectTimeout time.Duration
}

func (conf DriverConfig) WithDefaults() DriverConfig {
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
	return "edgedb"
}

func (d *Driver) Connect(ctx context.Context) (engine.Conn, error) {
	var (
		opts = edgedb.Options{Concurrency: 1, ConnectTimeout: d.conf.ConnectTimeout}
		cli  *edgedb.Client
		err  error
	)

	if len(d.conf.Dsn) > 0 {
		cli, err = edgedb.CreateClientDSN(ctx, d.conf.Dsn, opts)
	} else {
		cli, err = edgedb.CreateClient(ctx, opts)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
	}

	if err := cli.EnsureConnected(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", engine.ErrUnavailable, err)
	}

	return &Conn{cli: cli}, nil
}

type Conn struct {
	cli *edgedb.Client
}

func (conn *Conn) Ping(ctx context.Context) error {
	return classifyError(conn.cli.EnsureConnected(ctx))
}

func (conn *Conn) Query(ctx context.Context, query string, args ...any) (*engine.RowSet, error) {
	var (
		t0   = time.Now()
		data []byte
	)

	if err := conn.cli.QueryJSON(ctx, query, &data, args...); err != nil {
		return nil, classifyError(err)
	}

	rs, err := decodeRowSet(data)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
	}

	rs.Metadata = &engine.QueryMetadata{
		Rows:    uint64(len(rs.Rows)),
		Bytes:   uint64(len(data)),
		Elapsed: time.Since(t0),
	}

	return rs, nil
}

func (conn *Conn) Close() error {
	return conn.cli.Close()
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", engine.ErrTimeout, err)
	}

	var edbErr edgedb.Error

	if errors.As(err, &edbErr) {
		switch {
		case edbErr.Category(edgedb.ClientConnectionError):
			return fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
		default:
			return fmt.Errorf("%w: %w", engine.ErrRejected, err)
		}
	}

	return fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
}
