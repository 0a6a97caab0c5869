package gateway

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"
)

type StartupProbeConfig struct {
	Disabled bool
	Timeout  time.Duration
	Interval time.Duration
}

func (conf StartupProbeConfig) WithDefaults() StartupProbeConfig {
	if conf.Timeout == 0 {
		conf.Timeout = time.Minute
	}

	if conf.Interval == 0 {
		conf.Interval = time.Second
	}

	return conf
}

// RunStartupProbe pings the backend until it answers or conf.Timeout elapses.
func RunStartupProbe(ctx context.Context, gw *Gateway, conf StartupProbeConfig) error {
	if conf.Disabled {
		return nil
	}

	conf = conf.WithDefaults()

	var (
		logger           = slogctx.FromCtx(ctx)
		probeCtx, cancel = context.WithTimeout(ctx, conf.Timeout)
		attempt          int
	)

	defer cancel()

	for {
		attempt++

		var err = gw.Ping(probeCtx)

		if err == nil {
			logger.Debug("startup probe succeeded", "attempts", attempt)
			return nil
		}

		logger.Warn("startup probe failed", "attempt", attempt, "error", err.Error())

		select {
		case <-probeCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return fmt.Errorf("backend not ready after %s: %w", conf.Timeout, err)
		case <-time.After(conf.Interval):
		}
	}
}
