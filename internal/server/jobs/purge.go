// Package jobs runs periodic maintenance next to the servers.
package jobs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/logging"
)

// Purger removes expired refresh records.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RefreshPurge calls Purger every Interval until its context ends. Each run
// gets at most Timeout.
type RefreshPurge struct {
	Purger   Purger
	Interval time.Duration
	Timeout  time.Duration
	Log      logging.Logger
}

func NewRefreshPurge(p Purger, interval time.Duration, l logging.Logger) *RefreshPurge {
	if l == nil {
		l = logging.Nop{}
	}
	timeout := interval / 2
	if timeout <= 0 || timeout > time.Minute {
		timeout = time.Minute
	}
	return &RefreshPurge{Purger: p, Interval: interval, Timeout: timeout, Log: l.With("module", "jobs")}
}

// Run blocks until ctx is done. A non-positive interval disables the job.
func (j *RefreshPurge) Run(ctx context.Context) {
	if j.Interval <= 0 {
		j.Log.Info(ctx, "refresh purge disabled")
		return
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single purge and logs the outcome.
func (j *RefreshPurge) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	n, err := j.Purger.PurgeExpired(ctx)
	if err != nil {
		j.Log.Error(ctx, "refresh purge failed", "error", err)
		return
	}
	if n > 0 {
		j.Log.Info(ctx, "expired refresh tokens purged", "count", n)
	}
}
