package audiocache

import (
	"context"
	"time"

	"github.com/kuitang/studynotes/internal/obs"
)

// RunSweeper sweeps entries older than maxAge every interval until ctx is
// done. It sweeps once at start.
func (c *Cache) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	log := obs.Pkg("audiocache")
	sweep := func() {
		n, err := c.Sweep(ctx, maxAge)
		if err != nil {
			log.Warn("audiocache.sweep_failed", "error", err)
			return
		}
		if n > 0 {
			log.Info("audiocache.swept", "removed", n, "max_age", maxAge.String())
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
