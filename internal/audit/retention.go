package audit

import (
	"context"
	"time"
)

// Pruner deletes journal records older than a cutoff. Satisfied by
// *SQLiteRepository.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Logger is the logging interface used by the retention loop.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// RunRetention prunes records older than keep, once immediately and then
// every interval, until ctx is cancelled. A failed prune is logged and
// retried on the next tick.
func RunRetention(ctx context.Context, p Pruner, keep, every time.Duration, logger Logger) {
	prune := func() {
		n, err := p.Prune(ctx, time.Now().Add(-keep))
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("command journal prune failed", "error", err)
		case n > 0:
			logger.Info("command journal pruned", "removed", n, "kept", keep.String())
		}
	}

	prune()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
