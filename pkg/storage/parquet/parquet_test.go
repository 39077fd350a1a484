package parquet

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
)

func point(cf string, ts int64, value rrd.Value) metrics.WriteRequest {
	return metrics.WriteRequest{
		Measurement: "cpu.host1.system.load",
		Tags:        map[string]string{metrics.TagCF: cf, metrics.TagDSType: "gauge", metrics.TagSource: metrics.SourceMunin},
		Time:        time.Unix(ts, 0),
		Value:       value,
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	for _, codec := range []string{"snappy", "zstd", "gzip", "none"} {
		t.Run(codec, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "points.parquet")

			w, err := New(Config{Path: path, Compression: codec})
			require.NoError(t, err)

			ctx := context.Background()
			require.NoError(t, w.Write(ctx, []metrics.WriteRequest{
				point("AVERAGE", 1304014720, rrd.ParseValue("5.0000000000e-01")),
				point("AVERAGE", 1304014780, rrd.ParseValue("U")),
			}))
			require.NoError(t, w.Write(ctx, []metrics.WriteRequest{
				point("MAX", 1304014800, rrd.ParseValue("NaN")),
			}))
			require.Equal(t, int64(3), w.Rows())
			require.NoError(t, w.Close())

			got, err := ReadFile(path)
			require.NoError(t, err)
			require.Len(t, got, 3)

			require.Equal(t, "cpu.host1.system.load", got[0].Measurement)
			require.Equal(t, "AVERAGE", got[0].Tags[metrics.TagCF])
			require.Equal(t, int64(1304014720), got[0].Time.Unix())
			require.Equal(t, 0.5, got[0].Value.Number)
			require.Equal(t, "5.0000000000e-01", got[0].Value.Raw)

			require.False(t, got[1].Value.IsNumber)
			require.Equal(t, "U", got[1].Value.Raw)

			require.Equal(t, "MAX", got[2].Tags[metrics.TagCF])
			require.True(t, got[2].Value.IsNumber)
			require.True(t, math.IsNaN(got[2].Value.Number))
		})
	}
}

func TestWriter_WriteAfterClose(t *testing.T) {
	w, err := New(Config{Path: filepath.Join(t.TempDir(), "p.parquet")})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	err = w.Write(context.Background(), []metrics.WriteRequest{point("AVERAGE", 1, rrd.NumberValue(1))})
	require.Error(t, err)
}

func TestWriter_CancelledContext(t *testing.T) {
	w, err := New(Config{Path: filepath.Join(t.TempDir(), "p.parquet")})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, w.Write(ctx, []metrics.WriteRequest{point("AVERAGE", 1, rrd.NumberValue(1))}), context.Canceled)
	require.Zero(t, w.Rows())
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Path: filepath.Join(t.TempDir(), "p.parquet"), Compression: "brotli9"})
	require.ErrorContains(t, err, "unknown parquet compression")

	_, err = New(Config{Path: filepath.Join(t.TempDir(), "missing", "p.parquet")})
	require.Error(t, err)
}

func TestRowFromWriteRequest(t *testing.T) {
	row := RowFromWriteRequest(point("MIN", 60, rrd.ParseValue("U")))
	require.Nil(t, row.Value)
	require.Equal(t, "U", row.Raw)
	require.Equal(t, int64(60), row.Timestamp)

	row = RowFromWriteRequest(point("MIN", 60, rrd.NumberValue(2.5)))
	require.NotNil(t, row.Value)
	require.Equal(t, 2.5, *row.Value)
}
