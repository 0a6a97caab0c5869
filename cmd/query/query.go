package query

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/agnosticeng/query-gateway/internal/backend"
	"github.com/agnosticeng/query-gateway/internal/catalog"
	"github.com/agnosticeng/query-gateway/internal/gateway"
	"github.com/agnosticeng/query-gateway/internal/utils"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	slogctx "github.com/veqryn/slog-context"
	"gopkg.in/yaml.v3"
)

var Flags = []cli.Flag{
	&cli.StringFlag{Name: "config"},
	&cli.StringFlag{Name: "catalog"},
	&cli.BoolFlag{Name: "raw", Usage: "treat the argument as query text instead of a catalog name"},
	&cli.StringSliceFlag{Name: "var"},
	&cli.StringSliceFlag{Name: "param"},
	&cli.StringFlag{Name: "format", Value: "json"},
}

type config struct {
	Backend backend.Config
	Gateway gateway.Config
	Catalog string
}

func (conf config) WithDefaults() config {
	conf.Backend = conf.Backend.WithDefaults()
	conf.Gateway = conf.Gateway.WithDefaults()
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

	return res.ErrorOrNil()
}

func Command() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "run a single query and print its records",
		ArgsUsage: "<name|query>",
		Flags:     Flags,
		Action: func(ctx *cli.Context) error {
			var (
				logger = slogctx.FromCtx(ctx.Context)
				arg    = ctx.Args().Get(0)
				vars   = utils.ParseKeyValues(ctx.StringSlice("var"), "=")
				params = lo.Map(ctx.StringSlice("param"), func(p string, _ int) any { return p })
				format = ctx.String("format")
				cfg    config
			)

			if len(arg) == 0 {
				return fmt.Errorf("a query name or query text must be specified")
			}

			if format != "json" && format != "yaml" {
				return fmt.Errorf("unknown format %q (expected json or yaml)", format)
			}

			if err := utils.LoadConfig(ctx.Context, ctx.String("config"), &cfg); err != nil {
				return err
			}

			if v := ctx.String("catalog"); len(v) > 0 {
				cfg.Catalog = v
			}

			cfg = cfg.WithDefaults()

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			var req = gateway.NewQueryRequest(arg, params...)

			if !ctx.Bool("raw") {
				cat, err := catalog.Open(ctx.Context, cfg.Catalog)

				if err != nil {
					return err
				}

				req, err = cat.Request(arg, vars, params...)

				if err != nil {
					return err
				}
			}

			driver, err := backend.NewDriver(cfg.Backend)

			if err != nil {
				return err
			}

			gw, err := gateway.New(ctx.Context, driver, cfg.Gateway)

			if err != nil {
				return err
			}

			defer gw.Close()

			records, err := gw.FetchRecords(ctx.Context, req)

			if err != nil {
				return err
			}

			logger.Debug("query done", "records", len(records))
			return writeRecords(os.Stdout, records, format)
		},
	}
}

func writeRecords(w io.Writer, records []gateway.Record, format string) error {
	if records == nil {
		records = []gateway.Record{}
	}

	switch format {
	case "yaml":
		var enc = yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(records); err != nil {
			return err
		}

		return enc.Close()
	default:
		var enc = json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
}
