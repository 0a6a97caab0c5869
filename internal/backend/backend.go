package backend

import (
	"fmt"
	"strings"

	"github.com/agnosticeng/query-gateway/internal/ch"
	"github.com/agnosticeng/query-gateway/internal/edgedb"
	"github.com/agnosticeng/query-gateway/internal/engine"
	"github.com/agnosticeng/query-gateway/internal/pg"
)

const (
	KindClickhouse = "clickhouse"
	KindPostgres   = "postgres"
	KindEdgedb     = "edgedb"
)

// Config selects one backend driver. Only the section matching Kind is used.
type Config struct {
	Kind       string
	Clickhouse ch.DriverConfig
	Postgres   pg.DriverConfig
	Edgedb     edgedb.DriverConfig
}

func (conf Config) WithDefaults() Config {
	if len(conf.Kind) == 0 {
		conf.Kind = KindEdgedb
	}

	conf.Kind = strings.ToLower(conf.Kind)
	conf.Clickhouse = conf.Clickhouse.WithDefaults()
	conf.Postgres = conf.Postgres.WithDefaults()
	conf.Edgedb = conf.Edgedb.WithDefaults()
	return conf
}

func (conf Config) Validate() error {
	switch conf.Kind {
	case KindClickhouse, KindPostgres, KindEdgedb:
		return nil
	default:
		return fmt.Errorf("unknown backend kind %q (expected %s, %s or %s)", conf.Kind, KindClickhouse, KindPostgres, KindEdgedb)
	}
}

func NewDriver(conf Config) (engine.Driver, error) {
	conf = conf.WithDefaults()

	switch conf.Kind {
	case KindClickhouse:
		return ch.NewDriver(conf.Clickhouse), nil
	case KindPostgres:
		return pg.NewDriver(conf.Postgres), nil
	case KindEdgedb:
		return edgedb.NewDriver(conf.Edgedb), nil
	default:
		return nil, conf.Validate()
	}
}
