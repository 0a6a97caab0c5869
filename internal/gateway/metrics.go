package gateway

import (
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/uber-go/tally/v4"
)

type Metrics struct {
	Fetches         map[string]tally.Counter
	Rows            tally.Counter
	FetchDuration   tally.Histogram
	AcquireDuration tally.Histogram
	PoolTotal       tally.Gauge
	PoolAcquired    tally.Gauge
	PoolIdle        tally.Gauge
}

func NewMetrics(scope tally.Scope) *Metrics {
	var fetches = make(map[string]tally.Counter)

	for _, outcome := range []string{
		"ok",
		KindConnectionFailure.String(),
		KindQueryRejected.String(),
		KindTimeout.String(),
		KindCanceled.String(),
	} {
		fetches[outcome] = scope.Tagged(map[string]string{"outcome": outcome}).Counter("fetches")
	}

	return &Metrics{
		Fetches: fetches,
		Rows:    scope.Counter("rows"),
		FetchDuration: scope.Histogram(
			"fetch_duration",
			tally.MustMakeExponentialDurationBuckets(time.Millisecond, 2, 14),
		),
		AcquireDuration: scope.Histogram(
			"acquire_duration",
			tally.MustMakeExponentialDurationBuckets(100*time.Microsecond, 2, 14),
		),
		PoolTotal:    scope.Gauge("pool_total"),
		PoolAcquired: scope.Gauge("pool_acquired"),
		PoolIdle:     scope.Gauge("pool_idle"),
	}
}

func (m *Metrics) observeFetch(err error, d time.Duration, rows int) {
	var outcome = "ok"

	if kind, ok := KindOf(err); ok {
		outcome = kind.String()
	}

	m.Fetches[outcome].Inc(1)
	m.Rows.Inc(int64(rows))
	m.FetchDuration.RecordDuration(d)
}

func (m *Metrics) observePool(stat *puddle.Stat) {
	m.PoolTotal.Update(float64(stat.TotalResources()))
	m.PoolAcquired.Update(float64(stat.AcquiredResources()))
	m.PoolIdle.Update(float64(stat.IdleResources()))
}
