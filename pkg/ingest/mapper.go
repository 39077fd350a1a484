package ingest

import (
	"iter"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/munin"
	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
)

// NewWriteRequest turns one archive point into the store's write request.
// The value is passed through untouched, including raw text such as "U".
func NewWriteRequest(id munin.FileIdentity, p rrd.Point) metrics.WriteRequest {
	return metrics.WriteRequest{
		Measurement: id.Measurement(),
		Tags: map[string]string{
			metrics.TagCF:     p.CF,
			metrics.TagDSType: string(id.DSType),
			metrics.TagSource: metrics.SourceMunin,
		},
		Time:  time.Unix(p.Timestamp, 0),
		Value: p.Value,
	}
}

// Map lazily applies NewWriteRequest to every point of seq. Errors from seq
// are yielded unchanged and end the sequence.
func Map(id munin.FileIdentity, seq iter.Seq2[rrd.Point, error]) iter.Seq2[metrics.WriteRequest, error] {
	return func(yield func(metrics.WriteRequest, error) bool) {
		for p, err := range seq {
			if err != nil {
				yield(metrics.WriteRequest{}, err)
				return
			}
			if !yield(NewWriteRequest(id, p), nil) {
				return
			}
		}
	}
}
