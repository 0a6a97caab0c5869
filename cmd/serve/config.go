package serve

import (
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/agnosticeng/query-gateway/internal/backend"
	"github.com/agnosticeng/query-gateway/internal/gateway"
	"github.com/hashicorp/go-multierror"
)

type pageConfig struct {
	Title string
	// Catalog entry rendered on the index page.
	Query string
	// Raw query used when the catalog has no entry named Query.
	Fallback string
}

func (conf pageConfig) WithDefaults() pageConfig {
	if len(conf.Title) == 0 {
		conf.Title = "Todos"
	}

	if len(conf.Query) == 0 {
		conf.Query = "todos"
	}

	if len(conf.Fallback) == 0 {
		conf.Fallback = "select Todo{title};"
	}

	return conf
}

type config struct {
	Backend         backend.Config
	Gateway         gateway.Config
	StartupProbe    gateway.StartupProbeConfig
	Catalog         string
	Page            pageConfig
	Addr            string
	PromAddr        string
	ShutdownTimeout time.Duration
}

func (conf config) WithDefaults() config {
	conf.Backend = conf.Backend.WithDefaults()
	conf.Gateway = conf.Gateway.WithDefaults()
	conf.StartupProbe = conf.StartupProbe.WithDefaults()
	conf.Page = conf.Page.WithDefaults()

	if len(conf.Addr) == 0 {
		conf.Addr = ":8080"
	}

	if len(conf.PromAddr) == 0 {
		conf.PromAddr = ":9000"
	}

	if conf.ShutdownTimeout == 0 {
		conf.ShutdownTimeout = 10 * time.Second
	}

	return conf
}

func (conf config) Validate() error {
	var res *multierror.Error

	if err := conf.Backend.Validate(); err != nil {
		res = multierror.Append(res, err)
	}

	if err := conf.Gateway.Validate(); err != nil {
		res = multierror.Append(res, err)
	}

	if conf.Addr == conf.PromAddr {
		res = multierror.Append(res, fmt.Errorf("Addr and PromAddr must differ, both are %q", conf.Addr))
	}

	if conf.ShutdownTimeout < 0 {
		res = multierror.Append(res, fmt.Errorf("ShutdownTimeout must not be negative"))
	}

	return res.ErrorOrNil()
}

// catalogLocation returns the directory holding the config file at
// configPath, keeping the scheme and host of remote locations.
func catalogLocation(configPath string) (string, error) {
	u, err := url.Parse(configPath)

	if err != nil {
		return "", fmt.Errorf("invalid config location %q: %w", configPath, err)
	}

	u.Path = path.Dir(u.Path)
	return u.String(), nil
}
