package config

import "time"

// Server defaults
const (
	DefaultPort         = "8080"
	DefaultDataDir      = "./data/munin2tinyobs"
	DefaultMaxStorageGB = 1
	DefaultMaxMemoryMB  = 48
)

// Import defaults
const (
	DefaultBatchSize   = 50
	DefaultWorkers     = 1
	DefaultDumpCommand = "rrdtool"
	DefaultSink        = "influx"
)

// Store client defaults
const (
	DefaultInfluxAddr      = "http://localhost:8086"
	DefaultInfluxDatabase  = "munin"
	DefaultInfluxTimeout   = 10 * time.Second
	DefaultTimescaleTable  = "munin_points"
	DefaultParquetPath     = "munin.parquet"
	DefaultParquetCodec    = "snappy"
	DefaultHTTPEndpoint    = "http://localhost:8080/v1/write"
	DefaultTransportWindow = 10 * time.Second
)

// Maintenance intervals
const (
	BadgerGCInterval     = 10 * time.Minute
	BadgerGCDiscardRatio = 0.5
	StorageCheckInterval = 1 * time.Minute
)

// Handler timeouts and limits
const (
	WriteTimeout         = 10 * time.Second
	ArchiveImportTimeout = 2 * time.Minute
	StatsTimeout         = 5 * time.Second
	QueryTimeout         = 10 * time.Second
	DefaultQueryWindow   = 24 * time.Hour
	MaxQueryWindow       = 10 * 365 * 24 * time.Hour
	DefaultMaxPoints     = 1000
	MaxPointsLimit       = 5000
)

// Export defaults and limits
const (
	DefaultExportWindow = 24 * time.Hour
	MaxExportWindow     = 10 * 365 * 24 * time.Hour
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSClientBuffer    = 64
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)
