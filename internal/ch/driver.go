package ch

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/agnosticeng/query-gateway/internal/engine"
)

type DriverConfig struct {
	Dsn         string
	DialTimeout time.Duration
	Settings    map[string]any
}

func (conf DriverConfig) WithDefaults() DriverConfig {
	if len(conf.Dsn) == 0 {
		conf.Dsn = "tcp://127.0.0.1:9000"
	}

	if conf.DialTimeout == 0 {
		conf.DialTimeout = 5 * time.Second
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
	return "clickhouse"
}

func (d *Driver) Connect(ctx context.Context) (engine.Conn, error) {
	chopts, err := clickhouse.ParseDSN(d.conf.Dsn)

	if err != nil {
		return nil, fmt.Errorf("%w: invalid dsn: %w", engine.ErrUnavailable, err)
	}

	// the gateway pool owns connection reuse and lifetime
	chopts.MaxOpenConns = 1
	chopts.MaxIdleConns = 1
	chopts.ConnMaxLifetime = 24 * time.Hour
	chopts.DialTimeout = d.conf.DialTimeout

	if len(d.conf.Settings) > 0 {
		chopts.Settings = NormalizeSettings(d.conf.Settings)
	}

	chconn, err := clickhouse.Open(chopts)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
	}

	if err := chconn.Ping(ctx); err != nil {
		chconn.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", engine.ErrUnavailable, err)
	}

	return &Conn{chConn: chconn}, nil
}
