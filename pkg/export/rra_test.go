package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/munin2tinyobs/pkg/rrd"
)

func twoSourceArchive() *rrd.Archive {
	a := &rrd.Archive{
		Step: 300,
		DataSources: []rrd.DataSource{
			{Name: " 42 ", Type: "GAUGE"},
			{Name: "43", Type: "DERIVE"},
		},
		RRAs: []rrd.RRA{{CF: "AVERAGE", PdpPerRow: 1}, {CF: "MAX", PdpPerRow: 6}},
	}
	a.RRAs[0].AppendRow(1304014720, " 5.0000000000e-01 ", "1.0000000000e+00")
	a.RRAs[0].AppendRow(1304015020, "U", " NaN")
	a.RRAs[1].AppendRow(1304014800, "7.0000000000e-01", "U")
	return a
}

func TestExportRRA(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportRRA(&buf, twoSourceArchive(), 0))

	require.Equal(t, "42,43\n5.0000000000e-01,1.0000000000e+00\nU,NaN\n", buf.String())
}

func TestExportRRA_SecondSection(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportRRA(&buf, twoSourceArchive(), 1))

	require.Equal(t, "42,43\n7.0000000000e-01,U\n", buf.String())
}

func TestExportRRA_EmptySection(t *testing.T) {
	a := twoSourceArchive()
	a.RRAs = append(a.RRAs, rrd.RRA{CF: "MIN"})

	var buf bytes.Buffer
	require.NoError(t, ExportRRA(&buf, a, 2))
	require.Equal(t, "42,43\n", buf.String())
}

func TestExportRRA_IndexOutOfRange(t *testing.T) {
	for _, index := range []int{-1, 2, 10} {
		var buf bytes.Buffer
		err := ExportRRA(&buf, twoSourceArchive(), index)
		require.ErrorIs(t, err, ErrRRAIndex, "index %d", index)
		require.Empty(t, buf.String(), "nothing is written for a bad index")
	}
}

func TestExportRRA_NilArchive(t *testing.T) {
	err := ExportRRA(&bytes.Buffer{}, nil, 0)
	require.ErrorIs(t, err, rrd.ErrMalformedArchive)
}
