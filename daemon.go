package ddns

import (
	"context"
	"time"
)

const (
	DefaultInterval        = 1 * time.Minute
	DefaultCleanupInterval = 24 * time.Hour
	minInterval            = 1 * time.Second
)

// RunDaemon looks up the zone, runs a cycle immediately, and then keeps running cycles every interval
// and blacklist cleanups every cleanupEvery until ctx is done.
//
// Both jobs run on the calling goroutine, so cycles never overlap and a slow cycle only delays the next one.
// Non-positive durations select DefaultInterval and DefaultCleanupInterval.
//
// If the zone cannot be found the error is returned before any cycle runs.
// Otherwise RunDaemon returns ctx.Err().
func RunDaemon(ctx context.Context, r *Reconciler, interval, cleanupEvery time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if interval < minInterval {
		interval = minInterval
	}
	if cleanupEvery <= 0 {
		cleanupEvery = DefaultCleanupInterval
	}

	if err := r.LoadZone(ctx); err != nil {
		return err
	}
	r.logger.Infof("Updating DNS records now and every %s", interval)

	clk := r.clock
	r.runCycle(ctx)
	now := clk.Now()
	nextCycle, nextCleanup := now.Add(interval), now.Add(cleanupEvery)

	for {
		next := nextCycle
		if nextCleanup.Before(next) {
			next = nextCleanup
		}
		timer := clk.Timer(next.Sub(clk.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		now := clk.Now()
		if !now.Before(nextCycle) {
			r.runCycle(ctx)
			nextCycle = clk.Now().Add(interval)
		}
		if !now.Before(nextCleanup) {
			if n := r.CleanBlacklist(); n > 0 {
				r.logger.Debugf("Blacklist cleanup removed %d domains", n)
			}
			nextCleanup = now.Add(cleanupEvery)
		}
	}
}

// runCycle runs one cycle for the daemon, which has nobody to return the error to.
func (r *Reconciler) runCycle(ctx context.Context) {
	if err := r.RunCycle(ctx); err != nil {
		r.logger.Debugf("ddns.RunDaemon: cycle ended early: %s", err)
	}
}
