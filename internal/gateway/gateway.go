package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agnosticeng/concu/worker"
	"github.com/agnosticeng/panicsafe"
	"github.com/agnosticeng/query-gateway/internal/engine"
	tallyctx "github.com/agnosticeng/tallyctx"
	"github.com/google/uuid"
	"github.com/jackc/puddle/v2"
	slogctx "github.com/veqryn/slog-context"
)

type Gateway struct {
	conf    Config
	driver  engine.Driver
	pool    *puddle.Pool[engine.Conn]
	metrics *Metrics
}

func New(ctx context.Context, driver engine.Driver, conf Config) (*Gateway, error) {
	conf = conf.WithDefaults()

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway config: %w", err)
	}

	var (
		logger   = slogctx.FromCtx(ctx).With("driver", driver.Name())
		poolConf = puddle.Config[engine.Conn]{
			MaxSize: int32(conf.MaxConns),
		}
	)

	poolConf.Constructor = func(ctx context.Context) (engine.Conn, error) {
		conn, err := driver.Connect(ctx)

		if err != nil {
			return nil, err
		}

		logger.Debug("connection opened")
		return conn, nil
	}

	poolConf.Destructor = func(conn engine.Conn) {
		if err := conn.Close(); err != nil {
			logger.Warn("failed to close connection", "error", err.Error())
			return
		}

		logger.Debug("connection closed")
	}

	pool, err := puddle.NewPool(&poolConf)

	if err != nil {
		return nil, err
	}

	return &Gateway{
		conf:    conf,
		driver:  driver,
		pool:    pool,
		metrics: NewMetrics(tallyctx.FromContextOrNoop(ctx)),
	}, nil
}

func (gw *Gateway) Config() Config {
	return gw.conf
}

// FetchRecords runs req on a pooled connection and returns every row in
// backend order. Any returned error is a *QueryError.
func (gw *Gateway) FetchRecords(ctx context.Context, req QueryRequest) (records []Record, err error) {
	var (
		logger  = slogctx.FromCtx(ctx)
		queryID = newQueryID()
		t0      = time.Now()
	)

	defer func() {
		gw.metrics.observeFetch(err, time.Since(t0), len(records))
		gw.metrics.observePool(gw.pool.Stat())
	}()

	if req.empty() {
		return nil, newQueryError(KindQueryRejected, queryID, fmt.Errorf("query must not be empty"))
	}

	res, err := gw.acquire(ctx)

	if err != nil {
		return nil, newQueryError(classifyAcquire(ctx), queryID, err)
	}

	var keep bool

	defer func() {
		if keep {
			res.Release()
		} else {
			res.Destroy()
		}
	}()

	var queryCtx, cancel = context.WithTimeout(engine.WithQueryID(ctx, queryID), gw.conf.QueryTimeout)
	defer cancel()

	if logger.Enabled(ctx, slog.Level(-10)) {
		logger.Log(ctx, -10, req.query, "query_id", queryID, "params", len(req.params))
	}

	var rs *engine.RowSet

	err = panicsafe.Recover(func() error {
		var err error
		rs, err = res.Value().Query(queryCtx, req.query, req.params...)
		return err
	})

	if err != nil {
		var kind = classify(ctx, queryCtx, err)
		keep = kind == KindQueryRejected
		return nil, newQueryError(kind, queryID, fmt.Errorf("failed to execute query: %w", err))
	}

	if rs == nil {
		return nil, newQueryError(KindConnectionFailure, queryID, fmt.Errorf("driver returned no row set"))
	}

	engine.LogQueryMetadata(ctx, logger, slog.LevelDebug, "query executed", rs.Metadata)

	records = make([]Record, 0, len(rs.Rows))

	for i, row := range rs.Rows {
		rec, err := newRecordFromRow(rs.Columns, row)

		if err != nil {
			return nil, newQueryError(KindConnectionFailure, queryID, fmt.Errorf("failed to map row %d: %w", i, err))
		}

		records = append(records, rec)
	}

	keep = true
	return records, nil
}

// Warmup opens MinConns idle connections concurrently.
func (gw *Gateway) Warmup(ctx context.Context) error {
	var missing = gw.conf.MinConns - int(gw.pool.Stat().TotalResources())

	if missing <= 0 {
		return nil
	}

	var err = worker.RunN(ctx, missing, func(ctx context.Context, _ int) func() error {
		return func() error {
			return gw.pool.CreateResource(ctx)
		}
	})

	if err != nil {
		return newQueryError(classifyAcquire(ctx), "", fmt.Errorf("failed to warm up pool: %w", err))
	}

	return nil
}

// Ping checks a pooled connection. A connection that fails the check is
// discarded.
func (gw *Gateway) Ping(ctx context.Context) error {
	res, err := gw.acquire(ctx)

	if err != nil {
		return newQueryError(classifyAcquire(ctx), "", err)
	}

	if err := res.Value().Ping(ctx); err != nil {
		res.Destroy()
		return newQueryError(classify(ctx, ctx, err), "", fmt.Errorf("failed to ping backend: %w", err))
	}

	res.Release()
	return nil
}

func (gw *Gateway) Stat() Stats {
	return newStats(gw.pool.Stat())
}

// Close destroys idle connections and waits for loaned ones to come back.
func (gw *Gateway) Close() {
	gw.pool.Close()
}

func (gw *Gateway) acquire(ctx context.Context) (*puddle.Resource[engine.Conn], error) {
	var (
		acquireCtx, cancel = context.WithTimeout(ctx, gw.conf.AcquireTimeout)
		t0                 = time.Now()
	)

	defer cancel()

	for {
		res, err := gw.pool.Acquire(acquireCtx)

		switch {
		case errors.Is(err, puddle.ErrClosedPool):
			return nil, fmt.Errorf("%w: gateway is closed", engine.ErrUnavailable)
		case err != nil && ctx.Err() == nil && errors.Is(acquireCtx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: no connection available after %s: %w", engine.ErrUnavailable, gw.conf.AcquireTimeout, err)
		case err != nil:
			return nil, fmt.Errorf("failed to acquire connection: %w", err)
		}

		if time.Since(res.CreationTime()) >= gw.conf.MaxConnLifetime {
			res.Destroy()
			continue
		}

		gw.metrics.AcquireDuration.RecordDuration(time.Since(t0))
		return res, nil
	}
}

func newQueryID() string {
	id, err := uuid.NewV7()

	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
