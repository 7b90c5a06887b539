package auth

import (
	"context"
	"log/slog"
	"time"
)

// purgeTimeout bounds one retention sweep.
const purgeTimeout = time.Minute

// RunUnverifiedCleanup deletes accounts left unverified for longer than
// retention, once immediately and then every interval, until ctx is done.
func RunUnverifiedCleanup(ctx context.Context, service AuthService, retention, interval time.Duration) {
	sweep := func() {
		sweepCtx, cancel := context.WithTimeout(ctx, purgeTimeout)
		defer cancel()

		n, err := service.PurgeUnverified(sweepCtx, retention)
		if err != nil {
			slog.Error("purging unverified accounts", slog.Any("error", err))
			return
		}
		if n > 0 {
			slog.Info("purged unverified accounts", slog.Int64("count", n))
		}
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweep()
		case <-ctx.Done():
			return
		}
	}
}
