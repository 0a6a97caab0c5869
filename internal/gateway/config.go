package gateway

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

type Config struct {
	MaxConns        int
	MinConns        int
	AcquireTimeout  time.Duration
	QueryTimeout    time.Duration
	MaxConnLifetime time.Duration
}

func (conf Config) WithDefaults() Config {
	if conf.MaxConns <= 0 {
		conf.MaxConns = 4
	}

	if conf.AcquireTimeout == 0 {
		conf.AcquireTimeout = 5 * time.Second
	}

	if conf.QueryTimeout == 0 {
		conf.QueryTimeout = 30 * time.Second
	}

	if conf.MaxConnLifetime == 0 {
		conf.MaxConnLifetime = time.Hour
	}

	return conf
}

func (conf Config) Validate() error {
	var res *multierror.Error

	if conf.MaxConns <= 0 {
		res = multierror.Append(res, fmt.Errorf("MaxConns must be positive, got %d", conf.MaxConns))
	}

	if conf.MinConns < 0 || conf.MinConns > conf.MaxConns {
		res = multierror.Append(res, fmt.Errorf("MinConns must be between 0 and MaxConns (%d), got %d", conf.MaxConns, conf.MinConns))
	}

	if conf.AcquireTimeout < 0 {
		res = multierror.Append(res, fmt.Errorf("AcquireTimeout must not be negative"))
	}

	if conf.QueryTimeout < 0 {
		res = multierror.Append(res, fmt.Errorf("QueryTimeout must not be negative"))
	}

	if conf.MaxConnLifetime < 0 {
		res = multierror.Append(res, fmt.Errorf("MaxConnLifetime must not be negative"))
	}

	return res.ErrorOrNil()
}
