package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agnosticeng/query-gateway/internal/backend"
	"github.com/agnosticeng/query-gateway/internal/catalog"
	"github.com/agnosticeng/query-gateway/internal/gateway"
	"github.com/agnosticeng/query-gateway/internal/utils"
	tallyctx "github.com/agnosticeng/tallyctx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uber-go/tally/v4"
	promreporter "github.com/uber-go/tally/v4/prometheus"
	"github.com/urfave/cli/v2"
	slogctx "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"
)

var Flags = []cli.Flag{
	&cli.StringFlag{Name: "catalog", Usage: "directory or URL holding *.sql / *.edgeql query templates"},
	&cli.StringFlag{Name: "addr"},
}

func Command() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "serve catalog queries over HTTP",
		ArgsUsage: "[config-path]",
		Flags:     Flags,
		Action: func(ctx *cli.Context) error {
			var (
				logger = slogctx.FromCtx(ctx.Context)
				path   = ctx.Args().Get(0)
				cfg    config
			)

			if err := utils.LoadConfig(ctx.Context, path, &cfg); err != nil {
				return err
			}

			if v := ctx.String("catalog"); len(v) > 0 {
				cfg.Catalog = v
			}

			if v := ctx.String("addr"); len(v) > 0 {
				cfg.Addr = v
			}

			if len(cfg.Catalog) == 0 && len(path) > 0 {
				loc, err := catalogLocation(path)

				if err != nil {
					return err
				}

				cfg.Catalog = loc
			}

			cfg = cfg.WithDefaults()

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			cat, err := catalog.Open(ctx.Context, cfg.Catalog)

			if err != nil {
				return err
			}

			logger.Info("catalog loaded", "location", cfg.Catalog, "queries", cat.Names())

			var serveCtx, serveCancel = signal.NotifyContext(ctx.Context, syscall.SIGTERM, os.Interrupt)
			defer serveCancel()

			var promReporter = promreporter.NewReporter(promreporter.Options{
				OnRegisterError: func(err error) {
					logger.Log(ctx.Context, -30, "failed to register metric", "error", err.Error())
				},
			})

			scope, scopeCloser := tally.NewRootScope(tally.ScopeOptions{
				Prefix:         "query_gateway",
				CachedReporter: promReporter,
				Separator:      promreporter.DefaultSeparator,
			}, 1*time.Second)

			defer scopeCloser.Close()

			serveCtx = tallyctx.NewContext(serveCtx, scope)

			driver, err := backend.NewDriver(cfg.Backend)

			if err != nil {
				return err
			}

			gw, err := gateway.New(serveCtx, driver, cfg.Gateway)

			if err != nil {
				return err
			}

			defer gw.Close()

			if err := gateway.RunStartupProbe(serveCtx, gw, cfg.StartupProbe); err != nil {
				return err
			}

			if err := gw.Warmup(serveCtx); err != nil {
				return err
			}

			srv, err := newServer(gw, cat, cfg.Page)

			if err != nil {
				return err
			}

			var group, groupCtx = errgroup.WithContext(serveCtx)

			group.Go(func() error {
				var poolConf = gw.Config()

				logger.Info(
					"serving queries",
					"addr", cfg.Addr,
					"backend", driver.Name(),
					"max_conns", poolConf.MaxConns,
					"query_timeout", poolConf.QueryTimeout,
				)
				return listenAndServe(groupCtx, &http.Server{Addr: cfg.Addr, Handler: srv.Handler()}, cfg.ShutdownTimeout)
			})

			group.Go(func() error {
				return listenAndServe(groupCtx, &http.Server{Addr: cfg.PromAddr, Handler: promhttp.Handler()}, cfg.ShutdownTimeout)
			})

			return group.Wait()
		},
	}
}

// listenAndServe runs srv until ctx is done, then shuts it down gracefully.
func listenAndServe(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	var baseCtx = context.WithoutCancel(ctx)

	srv.BaseContext = func(net.Listener) context.Context { return baseCtx }

	var errCh = make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to serve on %s: %w", srv.Addr, err)

	case <-ctx.Done():
		var shutdownCtx, cancel = context.WithTimeout(baseCtx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server on %s: %w", srv.Addr, err)
		}

		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}
