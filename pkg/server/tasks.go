package server

import (
	"context"
	"errors"
	"log"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/nicktill/munin2tinyobs/pkg/server/monitor"
)

const (
	maxLogBackoff   = 5 * time.Minute
	storageWarnPerc = 80
)

// GarbageCollector is implemented by badger.Storage
type GarbageCollector interface {
	RunGC(discardRatio float64) error
}

// RunBadgerGC reclaims value log space every interval until ctx is done.
// Imports rewrite points with ON CONFLICT semantics, so stale versions pile
// up in the value log quickly during a bulk load.
func RunBadgerGC(ctx context.Context, store GarbageCollector, interval time.Duration, discardRatio float64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("🧹 BadgerDB GC scheduler started (every %v, discard ratio %.2f)", interval, discardRatio)

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			err := store.RunGC(discardRatio)
			switch {
			case err == nil:
				log.Printf("🧹 GC completed in %v (disk space reclaimed)", time.Since(start).Round(time.Millisecond))
			case errors.Is(err, badgerdb.ErrNoRewrite), errors.Is(err, badgerdb.ErrRejected):
				// nothing worth rewriting, or GC already running
			default:
				log.Printf("⚠️  BadgerDB GC failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("🛑 Stopping BadgerDB GC scheduler")
			return
		}
	}
}

// RunStorageWatch logs when the data directory nears or passes its limit.
// Failures to measure are logged with exponential backoff so a missing
// directory does not flood the log.
func RunStorageWatch(ctx context.Context, sm *monitor.StorageMonitor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		consecutiveErrors int
		lastErrorTime     time.Time
		wasExceeded       bool
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			usage, err := sm.Snapshot()
			if err != nil {
				consecutiveErrors++
				now := time.Now()
				backoff := logBackoff(consecutiveErrors)
				if lastErrorTime.IsZero() || now.Sub(lastErrorTime) >= backoff {
					log.Printf("⚠️  Failed to measure storage (error #%d, backoff %v): %v", consecutiveErrors, backoff, err)
					lastErrorTime = now
				}
				continue
			}

			if consecutiveErrors > 0 {
				log.Printf("✅ Storage measurement recovered after %d errors", consecutiveErrors)
				consecutiveErrors = 0
				lastErrorTime = time.Time{}
			}

			switch {
			case usage.Exceeded && !wasExceeded:
				log.Printf("🚨 Storage limit reached (%d of %d bytes), writes are refused", usage.UsedBytes, usage.LimitBytes)
			case !usage.Exceeded && wasExceeded:
				log.Printf("✅ Storage back under limit (%.1f%%)", usage.Percent)
			case !usage.Exceeded && usage.Percent >= storageWarnPerc:
				log.Printf("⚠️  Storage at %.1f%% of limit", usage.Percent)
			}
			wasExceeded = usage.Exceeded
		}
	}
}

// logBackoff doubles from 1s per consecutive error, capped at maxLogBackoff
func logBackoff(consecutiveErrors int) time.Duration {
	backoff := time.Duration(1<<uint(min(consecutiveErrors-1, 9))) * time.Second
	return min(backoff, maxLogBackoff)
}
