package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nicktill/munin2tinyobs/pkg/rrd"
)

// ErrRRAIndex is returned when the requested archive section does not exist
var ErrRRAIndex = errors.New("rra index out of range")

// ExportRRA writes one archive section as CSV: a header of data source names,
// then one record per row with its values whitespace-trimmed. Unlike the point
// path this works for archives with several data sources.
func ExportRRA(w io.Writer, a *rrd.Archive, index int) error {
	if a == nil {
		return fmt.Errorf("%w: nil archive", rrd.ErrMalformedArchive)
	}
	if index < 0 || index >= len(a.RRAs) {
		return fmt.Errorf("%w: %d (archive has %d sections)", ErrRRAIndex, index, len(a.RRAs))
	}

	writer := csv.NewWriter(w)

	header := make([]string, len(a.DataSources))
	for i, ds := range a.DataSources {
		header[i] = strings.TrimSpace(ds.Name)
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range a.RRAs[index].Rows {
		record := make([]string, len(row.Values))
		for i, v := range row.Values {
			record[i] = strings.TrimSpace(v)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
