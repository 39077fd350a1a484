// Command munin2tinyobs imports Munin RRD files into a time-series store.
//
// Usage:
//
//	munin2tinyobs [flags] <group>/<node>-<service>-<field>-<type>.rrd ...
//
// Each file is dumped with `rrdtool dump` (files ending in .xml are read as
// dumps directly), decoded, mapped to points tagged rrd_cf, ds_type and
// source=munin, and written in batches to the configured sink.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nicktill/munin2tinyobs/pkg/config"
	"github.com/nicktill/munin2tinyobs/pkg/export"
	"github.com/nicktill/munin2tinyobs/pkg/ingest"
	"github.com/nicktill/munin2tinyobs/pkg/observability"
	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath  string
	sink        string
	batchSize   int
	workers     int
	failFast    bool
	print       bool
	exportRRA   int
	metricsFile string
	dumpCommand string
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, map[string]bool, error) {
	fs := flag.NewFlagSet("munin2tinyobs", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&opts.sink, "sink", "", "store client: influx, badger, memory, timescale, parquet or http")
	fs.IntVar(&opts.batchSize, "batch-size", 0, "points per store write")
	fs.IntVar(&opts.workers, "workers", 0, "files imported concurrently")
	fs.BoolVar(&opts.failFast, "fail-fast", false, "stop at the first failed file")
	fs.BoolVar(&opts.print, "print", false, "print points as JSON lines instead of writing them")
	fs.IntVar(&opts.exportRRA, "export-rra", -1, "write RRA section N of each file as CSV and exit")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write import metrics in Prometheus text format to this file")
	fs.StringVar(&opts.dumpCommand, "dump-command", "", "rrdtool binary used to dump .rrd files")

	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return opts, fs.Args(), set, nil
}

// loadConfig reads the config file, then lets explicitly set flags win
func loadConfig(opts *options, set map[string]bool) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if set["sink"] {
		cfg.Sink = opts.sink
	}
	if set["batch-size"] {
		cfg.Import.BatchSize = opts.batchSize
	}
	if set["workers"] {
		cfg.Import.Workers = opts.workers
	}
	if set["fail-fast"] {
		cfg.Import.FailFast = opts.failFast
	}
	if set["dump-command"] {
		cfg.Import.DumpCommand = opts.dumpCommand
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate flags: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	log.SetOutput(stderr)

	opts, files, set, err := parseFlags(args, stderr)
	if err != nil {
		return exitUsage
	}
	if len(files) == 0 {
		fmt.Fprintln(stderr, "usage: munin2tinyobs [flags] <rrd file> ...")
		return exitUsage
	}

	cfg, err := loadConfig(opts, set)
	if err != nil {
		log.Printf("❌ Invalid configuration: %v", err)
		return exitUsage
	}

	loader := rrd.Dumper{Command: cfg.Import.DumpCommand}

	if opts.exportRRA >= 0 {
		return exportSections(ctx, loader, files, opts.exportRRA, stdout)
	}

	var writer storage.Writer
	if opts.print {
		writer = newLineWriter(stdout)
	} else {
		writer, err = openSink(cfg)
		if err != nil {
			log.Printf("❌ Failed to open %s sink: %v", cfg.Sink, err)
			return exitFailed
		}
	}
	defer func() {
		if err := writer.Close(); err != nil {
			log.Printf("⚠️  Failed to close sink: %v", err)
		}
	}()

	recorder := observability.New()
	importer := &ingest.Importer{
		Loader:    loader,
		Writer:    writer,
		BatchSize: cfg.Import.BatchSize,
		Recorder:  recorder,
	}

	failures := importAll(ctx, importer, files, cfg.Import.Workers, cfg.Import.FailFast)

	if opts.metricsFile != "" {
		if err := recorder.WriteToTextfile(opts.metricsFile); err != nil {
			log.Printf("⚠️  Failed to write metrics file: %v", err)
		}
	}

	if failures > 0 {
		log.Printf("❌ %d of %d files failed", failures, len(files))
		return exitFailed
	}
	log.Printf("✅ Imported %d files", len(files))
	return exitOK
}

// importAll runs the importer over files with at most workers in flight and
// returns the number of failed files
func importAll(ctx context.Context, importer *ingest.Importer, files []string, workers int, failFast bool) int64 {
	var failures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range files {
		if failFast && gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if failFast && gctx.Err() != nil {
				return nil
			}
			res, err := importer.ImportFile(gctx, path)
			if err != nil {
				failures.Add(1)
				log.Printf("❌ %v", err)
				if failFast {
					return err
				}
				return nil
			}
			log.Printf("📥 %s → %s: %d points %v in %d batches (%v)",
				path, res.Identity.Measurement(), res.Points, res.PointsByCF, res.Batches, res.Duration.Round(time.Millisecond))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("🛑 Stopped after first failure")
	}
	return failures.Load()
}

// exportSections writes RRA section index of every file as CSV
func exportSections(ctx context.Context, loader rrd.Dumper, files []string, index int, stdout io.Writer) int {
	for _, path := range files {
		archive, err := loader.Load(ctx, path)
		if err != nil {
			log.Printf("❌ %v", err)
			return exitFailed
		}
		if err := export.ExportRRA(stdout, archive, index); err != nil {
			log.Printf("❌ Failed to export %s: %v", path, err)
			return exitFailed
		}
	}
	return exitOK
}
