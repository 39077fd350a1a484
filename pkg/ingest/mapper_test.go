package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/munin2tinyobs/pkg/munin"
	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
)

func loadIdentity() munin.FileIdentity {
	return munin.FileIdentity{Group: "cpu", Node: "host1", Service: "system", Field: "load", DSType: munin.Gauge}
}

// sampleArchive builds a single-DS archive with one AVERAGE section of n rows
// and one MAX section of n/2 rows, 300 seconds apart
func sampleArchive(n int) *rrd.Archive {
	a := &rrd.Archive{
		Version:     "0003",
		Step:        300,
		LastUpdate:  1304014500 + int64(n-1)*300,
		DataSources: []rrd.DataSource{{Name: "42", Type: "GAUGE", MinimalHeartbeat: 600, Min: "NaN", Max: "NaN"}},
		RRAs:        []rrd.RRA{{CF: "AVERAGE", PdpPerRow: 1}, {CF: "MAX", PdpPerRow: 6}},
	}
	for i := 0; i < n; i++ {
		a.RRAs[0].AppendRow(1304014500+int64(i)*300, "5.0000000000e-01")
	}
	for i := 0; i < n/2; i++ {
		a.RRAs[1].AppendRow(1304014500+int64(i)*1800, "U")
	}
	return a
}

func TestNewWriteRequest(t *testing.T) {
	wr := NewWriteRequest(loadIdentity(), rrd.Point{CF: "AVERAGE", Timestamp: 1304014720, Value: rrd.NumberValue(0.5)})

	require.Equal(t, "cpu.host1.system.load", wr.Measurement)
	require.Equal(t, map[string]string{"rrd_cf": "AVERAGE", "ds_type": "gauge", "source": "munin"}, wr.Tags)
	require.Equal(t, time.Unix(1304014720, 0), wr.Time)
	require.Equal(t, 0.5, wr.Value.Number)
}

func TestNewWriteRequest_UnknownValue(t *testing.T) {
	id := munin.FileIdentity{Group: "disk", Node: "db1", Service: "df", Field: "root", DSType: munin.Derive}
	wr := NewWriteRequest(id, rrd.Point{CF: "MAX", Timestamp: 1304014780, Value: rrd.ParseValue("U")})

	require.Equal(t, "disk.db1.df.root", wr.Measurement)
	require.Equal(t, "derive", wr.Tags[metrics.TagDSType])
	require.Equal(t, "MAX", wr.Tags[metrics.TagCF])
	require.False(t, wr.Value.IsNumber)
	require.Equal(t, "U", wr.Value.Raw)
}

func TestMap(t *testing.T) {
	var got []metrics.WriteRequest
	for wr, err := range Map(loadIdentity(), rrd.Points(sampleArchive(4))) {
		require.NoError(t, err)
		got = append(got, wr)
	}

	require.Len(t, got, 6)
	require.Equal(t, "AVERAGE", got[0].Tags[metrics.TagCF])
	require.Equal(t, int64(1304014500), got[0].Time.Unix())
	require.Equal(t, "MAX", got[5].Tags[metrics.TagCF])
	require.Equal(t, int64(1304014500+1800), got[5].Time.Unix())
}

func TestMap_PassesErrorsThrough(t *testing.T) {
	upstream := errors.New("boom")
	seq := func(yield func(rrd.Point, error) bool) {
		if !yield(rrd.Point{CF: "AVERAGE", Timestamp: 1, Value: rrd.NumberValue(1)}, nil) {
			return
		}
		if !yield(rrd.Point{}, upstream) {
			return
		}
		yield(rrd.Point{CF: "AVERAGE", Timestamp: 2, Value: rrd.NumberValue(2)}, nil)
	}

	var n int
	var gotErr error
	for _, err := range Map(loadIdentity(), seq) {
		if err != nil {
			gotErr = err
			continue
		}
		n++
	}

	require.Equal(t, 1, n, "nothing is yielded after an error")
	require.Same(t, upstream, gotErr)
}

func TestMap_MalformedArchive(t *testing.T) {
	a := sampleArchive(2)
	a.DataSources = append(a.DataSources, rrd.DataSource{Name: "43"})

	var errs []error
	for _, err := range Map(loadIdentity(), rrd.Points(a)) {
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], rrd.ErrMalformedArchive)
}

func TestMap_StopsWhenConsumerBreaks(t *testing.T) {
	n := 0
	for range Map(loadIdentity(), rrd.Points(sampleArchive(10))) {
		n++
		if n == 3 {
			break
		}
	}
	require.Equal(t, 3, n)
}
