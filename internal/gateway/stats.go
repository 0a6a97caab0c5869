package gateway

import (
	"time"

	"github.com/jackc/puddle/v2"
)

type Stats struct {
	Total             int
	Idle              int
	Acquired          int
	Constructing      int
	Max               int
	AcquireCount      int64
	EmptyAcquireCount int64
	AcquireDuration   time.Duration
}

func newStats(stat *puddle.Stat) Stats {
	return Stats{
		Total:             int(stat.TotalResources()),
		Idle:              int(stat.IdleResources()),
		Acquired:          int(stat.AcquiredResources()),
		Constructing:      int(stat.ConstructingResources()),
		Max:               int(stat.MaxResources()),
		AcquireCount:      stat.AcquireCount(),
		EmptyAcquireCount: stat.EmptyAcquireCount(),
		AcquireDuration:   stat.AcquireDuration(),
	}
}
