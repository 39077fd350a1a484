package metrics

import (
	"sort"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/rrd"
)

// Tag keys attached to every imported point
const (
	TagCF     = "rrd_cf"
	TagDSType = "ds_type"
	TagSource = "source"

	// SourceMunin is the value of the source tag
	SourceMunin = "munin"

	// FieldValue is the single field written per point
	FieldValue = "value"
)

// WriteRequest is one point as submitted to a time-series store
type WriteRequest struct {
	Measurement string            `json:"measurement"`
	Tags        map[string]string `json:"tags,omitempty"`
	Time        time.Time         `json:"time"`
	Value       rrd.Value         `json:"value"`
}

// SeriesKey returns measurement plus tags in sorted order, e.g.
// "cpu.host1.system.load,ds_type=gauge,rrd_cf=AVERAGE,source=munin"
func (w WriteRequest) SeriesKey() string {
	if len(w.Tags) == 0 {
		return w.Measurement
	}

	keys := make([]string, 0, len(w.Tags))
	for k := range w.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := w.Measurement
	for _, k := range keys {
		key += "," + k + "=" + w.Tags[k]
	}
	return key
}
