package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// Storage implements storage.Storage using BadgerDB (LSM tree)
type Storage struct {
	db *badger.DB
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = 48 MB laptop default)
	MaxMemoryMB int64
}

// New creates a BadgerDB storage backend
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// Badger logs to stderr by default; importer runs are noisy enough
	opts = opts.WithLogger(nil)

	// BadgerDB defaults: 64 MB memtable, 5 x 64 MB = 320 MB total.
	// 16 MB memtable is the minimum before flushes get excessive.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3 // ~33% for memtable
	}

	blockCacheSize := memTableSize / 2 // Block cache: 50% of memtable
	indexCacheSize := memTableSize / 4 // Index cache: 25% of memtable

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2). // badger refuses fewer than two
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20) // 64 MB value log files instead of default 2GB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Storage{db: db}, nil
}

// Write stores points in BadgerDB. A point rewritten with the same series and
// second replaces the previous one, so re-importing a file is idempotent.
// Writes go through a WriteBatch, which splits into as many transactions as
// badger needs; a multi-year history import would overflow a single Update.
func (s *Storage) Write(ctx context.Context, requests []metrics.WriteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i, w := range requests {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("write operation cancelled: %w", err)
			}
		}

		value, err := encodePoint(w)
		if err != nil {
			return fmt.Errorf("failed to encode point: %w", err)
		}
		if err := wb.Set(makeKey(w), value); err != nil {
			return fmt.Errorf("failed to write point: %w", err)
		}
	}
	return wb.Flush()
}

// Query retrieves points matching the request. When measurements are named
// only their key prefixes are scanned.
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]metrics.WriteRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefixes := [][]byte{nil}
	if len(req.Measurements) > 0 {
		prefixes = prefixes[:0]
		for _, m := range req.Measurements {
			prefixes = append(prefixes, measurementPrefix(m))
		}
	}

	type queryResult struct {
		results []metrics.WriteRequest
		err     error
	}
	done := make(chan queryResult, 1)

	go func() {
		var res queryResult
		res.err = s.db.View(func(txn *badger.Txn) error {
			for _, prefix := range prefixes {
				full, err := scanPrefix(ctx, txn, prefix, req, &res.results)
				if err != nil || full {
					return err
				}
			}
			return nil
		})
		done <- res
	}()

	select {
	case res := <-done:
		return res.results, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("query operation cancelled: %w", ctx.Err())
	}
}

// scanPrefix appends matching points under prefix to out and reports whether
// req.Limit was reached
func scanPrefix(ctx context.Context, txn *badger.Txn, prefix []byte, req storage.QueryRequest, out *[]metrics.WriteRequest) (bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 100
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var iterCount int
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		iterCount++
		if iterCount%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}

		// Skip values outside the time range without decoding them
		_, ts := parseKey(it.Item().Key())
		if ts.Before(req.Start) || ts.After(req.End) {
			continue
		}

		err := it.Item().Value(func(val []byte) error {
			w, err := decodePoint(val)
			if err != nil {
				return err
			}
			if req.Matches(w) {
				*out = append(*out, w)
			}
			return nil
		})
		if err != nil {
			return false, err
		}

		if req.Limit > 0 && len(*out) >= req.Limit {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes points older than the given time. Keys are collected in a
// read transaction and removed through a WriteBatch.
func (s *Storage) Delete(ctx context.Context, before time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var keysToDelete [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		var iterCount int
		for it.Rewind(); it.Valid(); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			if _, ts := parseKey(it.Item().Key()); ts.Before(before) {
				keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete operation cancelled: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keysToDelete {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection.
// Returns badger.ErrNoRewrite when nothing could be reclaimed.
func (s *Storage) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type statsResult struct {
		stats *storage.Stats
		err   error
	}
	done := make(chan statsResult, 1)

	go func() {
		var res statsResult
		stats := &storage.Stats{}

		res.err = s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			series := make(map[uint64]bool)
			var iterCount int

			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				stats.TotalPoints++

				hash, ts := parseKey(it.Item().Key())
				series[hash] = true

				if stats.OldestPoint.IsZero() || ts.Before(stats.OldestPoint) {
					stats.OldestPoint = ts
				}
				if stats.NewestPoint.IsZero() || ts.After(stats.NewestPoint) {
					stats.NewestPoint = ts
				}
			}

			stats.TotalSeries = uint64(len(series))
			return nil
		})

		if res.err == nil {
			lsmSize, vlogSize := s.db.Size()
			stats.SizeBytes = uint64(lsmSize + vlogSize)
		}

		res.stats = stats
		done <- res
	}()

	select {
	case res := <-done:
		return res.stats, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("stats operation cancelled: %w", ctx.Err())
	}
}

const keyLen = 24

// makeKey lays out [measurement hash][series hash][unix seconds], all
// big-endian, so one measurement's series are contiguous and each series is
// time ordered
func makeKey(w metrics.WriteRequest) []byte {
	key := make([]byte, keyLen)
	binary.BigEndian.PutUint64(key[0:8], xxhash.Sum64String(w.Measurement))
	binary.BigEndian.PutUint64(key[8:16], xxhash.Sum64String(w.SeriesKey()))
	binary.BigEndian.PutUint64(key[16:24], uint64(w.Time.Unix()))
	return key
}

func measurementPrefix(measurement string) []byte {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, xxhash.Sum64String(measurement))
	return prefix
}

// parseKey extracts the series hash and timestamp from a storage key
func parseKey(key []byte) (uint64, time.Time) {
	hash := binary.BigEndian.Uint64(key[8:16])
	secs := binary.BigEndian.Uint64(key[16:24])
	return hash, time.Unix(int64(secs), 0)
}

func encodePoint(w metrics.WriteRequest) ([]byte, error) {
	return json.Marshal(w)
}

func decodePoint(data []byte) (metrics.WriteRequest, error) {
	var w metrics.WriteRequest
	err := json.Unmarshal(data, &w)
	return w, err
}

var _ storage.Storage = (*Storage)(nil)
