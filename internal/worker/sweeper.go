package worker

import (
	"context"
	"log/slog"
	"time"
)

// RecordSweeper deletes notification records idle for longer than retention.
type RecordSweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (int64, error)
}

// Pruner drops idle in-memory state such as rate limiter buckets.
type Pruner interface {
	Prune(idle time.Duration) int
}

// RetentionSweep returns the job that purges stale notification records.
func RetentionSweep(target RecordSweeper, every, retention time.Duration) Job {
	return Job{
		Name:    "notification-retention",
		Every:   every,
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			n, err := target.Sweep(ctx, retention)
			if err != nil {
				return err
			}
			if n > 0 {
				slog.Info("swept notification records", "deleted", n, "retention", retention)
			}
			return nil
		},
	}
}

// PruneIdle returns the job that drops state untouched for idle.
func PruneIdle(name string, target Pruner, every, idle time.Duration) Job {
	return Job{
		Name:  name,
		Every: every,
		Run: func(context.Context) error {
			if n := target.Prune(idle); n > 0 {
				slog.Debug("pruned idle entries", "job", name, "count", n)
			}
			return nil
		},
	}
}
