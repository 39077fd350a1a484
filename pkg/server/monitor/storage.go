// Package monitor watches the on-disk footprint of the point store.
package monitor

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultCacheDuration bounds how often the data directory is walked
const DefaultCacheDuration = 10 * time.Second

// Usage is a point-in-time view of the data directory
type Usage struct {
	UsedBytes  int64   `json:"used_bytes"`
	LimitBytes int64   `json:"limit_bytes"`
	Percent    float64 `json:"percent"`
	Exceeded   bool    `json:"exceeded"`
}

// StorageMonitor reports the size of the data directory against a limit.
// Usage is cached so hot ingest paths never walk the tree themselves.
type StorageMonitor struct {
	dataDir       string
	maxBytes      int64
	cacheDuration time.Duration

	mu          sync.RWMutex
	cachedUsage int64
	lastCheck   time.Time
}

// NewStorageMonitor creates a monitor for dataDir. A maxBytes of zero disables the limit.
func NewStorageMonitor(dataDir string, maxBytes int64) *StorageMonitor {
	return &StorageMonitor{
		dataDir:       dataDir,
		maxBytes:      maxBytes,
		cacheDuration: DefaultCacheDuration,
	}
}

// GetUsage returns the bytes used by the data directory
func (sm *StorageMonitor) GetUsage() (int64, error) {
	sm.mu.RLock()
	if time.Since(sm.lastCheck) < sm.cacheDuration {
		usage := sm.cachedUsage
		sm.mu.RUnlock()
		return usage, nil
	}
	sm.mu.RUnlock()

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// another caller may have refreshed while we waited
	if time.Since(sm.lastCheck) < sm.cacheDuration {
		return sm.cachedUsage, nil
	}

	usage, err := calculateDirSize(sm.dataDir)
	if err != nil {
		return 0, err
	}
	sm.cachedUsage = usage
	sm.lastCheck = time.Now()
	return usage, nil
}

// GetLimit returns the configured limit in bytes
func (sm *StorageMonitor) GetLimit() int64 {
	return sm.maxBytes
}

// Snapshot combines usage and limit
func (sm *StorageMonitor) Snapshot() (Usage, error) {
	used, err := sm.GetUsage()
	if err != nil {
		return Usage{}, err
	}
	u := Usage{UsedBytes: used, LimitBytes: sm.maxBytes}
	if sm.maxBytes > 0 {
		u.Percent = float64(used) / float64(sm.maxBytes) * 100
		u.Exceeded = used >= sm.maxBytes
	}
	return u, nil
}

// calculateDirSize sums allocated (not logical) file sizes so sparse badger
// value logs are not over-counted.
func calculateDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		actual, err := getActualFileSize(filePath, info)
		if err != nil {
			size += info.Size()
		} else {
			size += actual
		}
		return nil
	})
	return size, err
}
