package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/munin"
	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/batch"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// Loader produces a parsed archive for an RRD path. rrd.Dumper implements it.
type Loader interface {
	Load(ctx context.Context, path string) (*rrd.Archive, error)
}

// Recorder observes import outcomes. pkg/observability provides the
// Prometheus implementation.
type Recorder interface {
	FileImported(res *ImportResult)
	FileFailed(err error)
	BatchWritten(size int, took time.Duration)
}

// ImportResult summarises one imported file
type ImportResult struct {
	Path       string             `json:"path,omitempty"`
	Identity   munin.FileIdentity `json:"identity"`
	Points     int                `json:"points"`
	PointsByCF map[string]int     `json:"points_by_cf"`
	Batches    int                `json:"batches"`
	Duration   time.Duration      `json:"duration_ns"`
}

// Importer runs the per-file pipeline: identity, load, decode, map, batch write.
// It holds no state between calls, so one Importer may serve several
// goroutines as long as its Writer is safe for concurrent use.
type Importer struct {
	Loader    Loader
	Writer    storage.Writer
	BatchSize int
	Recorder  Recorder
}

// ImportFile imports one RRD file. The filename is validated before the file
// is dumped, so a misnamed file costs nothing.
func (im *Importer) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	id, err := munin.ParseFilename(path)
	if err != nil {
		im.failed(err)
		return nil, err
	}

	if im.Loader == nil {
		err := errors.New("importer has no loader")
		im.failed(err)
		return nil, err
	}

	archive, err := im.Loader.Load(ctx, path)
	if err != nil {
		err = fmt.Errorf("failed to load %s: %w", path, err)
		im.failed(err)
		return nil, err
	}

	res, err := im.importArchive(ctx, id, archive)
	res.Path = path
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

// ImportArchive writes every point of an already parsed archive under id.
// On error the returned result still reports what reached the store.
func (im *Importer) ImportArchive(ctx context.Context, id munin.FileIdentity, archive *rrd.Archive) (*ImportResult, error) {
	return im.importArchive(ctx, id, archive)
}

func (im *Importer) importArchive(ctx context.Context, id munin.FileIdentity, archive *rrd.Archive) (*ImportResult, error) {
	start := time.Now()
	res := &ImportResult{
		Identity:   id,
		PointsByCF: make(map[string]int),
	}

	if im.Writer == nil {
		err := errors.New("importer has no writer")
		im.failed(err)
		return res, err
	}

	// Only batches the store accepted are counted, one CF tag per point
	b := batch.New(im.Writer, batch.Config{
		MaxBatchSize: im.BatchSize,
		OnFlush: func(written []metrics.WriteRequest, took time.Duration) {
			for _, wr := range written {
				res.PointsByCF[wr.Tags[metrics.TagCF]]++
			}
			if im.Recorder != nil {
				im.Recorder.BatchWritten(len(written), took)
			}
		},
	})

	n, err := b.WriteAll(ctx, Map(id, rrd.Points(archive)))
	res.Points = n
	res.Batches = b.Batches()
	res.Duration = time.Since(start)

	if err != nil {
		im.failed(err)
		return res, err
	}

	if im.Recorder != nil {
		im.Recorder.FileImported(res)
	}
	return res, nil
}

func (im *Importer) failed(err error) {
	if im.Recorder != nil {
		im.Recorder.FileFailed(err)
	}
}
