package rrd

import (
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"
)

// Point is one consolidated data point (CDP) of an archive section
type Point struct {
	CF        string
	Timestamp int64
	Value     Value
}

// Value is a CDP value: a number, or the raw text when it does not parse as one
type Value struct {
	Number   float64
	Raw      string
	IsNumber bool
}

// ParseValue converts a <v> text. Unparseable input such as the "U" unknown marker
// is kept verbatim rather than treated as an error.
func ParseValue(s string) Value {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Value{Raw: s}
	}
	return Value{Number: f, Raw: s, IsNumber: true}
}

// NumberValue builds a numeric Value
func NumberValue(f float64) Value {
	return Value{Number: f, Raw: strconv.FormatFloat(f, 'g', -1, 64), IsNumber: true}
}

// Finite reports whether the value is a number other than NaN or ±Inf
func (v Value) Finite() bool {
	return v.IsNumber && !math.IsNaN(v.Number) && !math.IsInf(v.Number, 0)
}

// Interface returns a float64 for numbers and the raw string otherwise
func (v Value) Interface() any {
	if v.IsNumber {
		return v.Number
	}
	return v.Raw
}

func (v Value) String() string {
	if v.IsNumber {
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	}
	return v.Raw
}

// MarshalJSON encodes finite numbers as JSON numbers and everything else as strings
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Finite() {
		return json.Marshal(v.Number)
	}
	if v.IsNumber {
		return json.Marshal(v.String())
	}
	return json.Marshal(v.Raw)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = ParseValue(s)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("value must be a number or string: %w", err)
	}
	*v = NumberValue(f)
	return nil
}

// Points returns the CDPs of an archive, section by section in document order.
//
// The archive must define exactly one data source, every row must carry exactly one
// value, and each section must hold as many date annotations as rows. Violations are
// yielded as ErrMalformedArchive and end the sequence. A count mismatch is never
// silently truncated to the shorter list.
func Points(a *Archive) iter.Seq2[Point, error] {
	return func(yield func(Point, error) bool) {
		if a == nil {
			yield(Point{}, fmt.Errorf("%w: nil archive", ErrMalformedArchive))
			return
		}

		// Munin RRDs have one DS each
		if n := len(a.DataSources); n != 1 {
			yield(Point{}, fmt.Errorf("%w: expected exactly one data source, found %d", ErrMalformedArchive, n))
			return
		}

		for i := range a.RRAs {
			rra := &a.RRAs[i]
			if len(rra.Annotations) != len(rra.Rows) {
				yield(Point{}, fmt.Errorf("%w: rra %d (%s) has %d date annotations for %d rows",
					ErrMalformedArchive, i, rra.CF, len(rra.Annotations), len(rra.Rows)))
				return
			}

			for j := range rra.Rows {
				p, err := rra.point(j)
				if err != nil {
					yield(Point{}, fmt.Errorf("%w: rra %d (%s) row %d: %v", ErrMalformedArchive, i, rra.CF, j, err))
					return
				}
				if !yield(p, nil) {
					return
				}
			}
		}
	}
}

// Collect drains Points into a slice
func Collect(a *Archive) ([]Point, error) {
	var points []Point
	for p, err := range Points(a) {
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// point pairs row i with annotation i
func (r *RRA) point(i int) (Point, error) {
	values := r.Rows[i].Values
	if len(values) != 1 {
		return Point{}, fmt.Errorf("expected one value per row, found %d", len(values))
	}

	ts, err := AnnotationTimestamp(r.Annotations[i])
	if err != nil {
		return Point{}, err
	}

	return Point{CF: r.CF, Timestamp: ts, Value: ParseValue(values[0])}, nil
}

// AnnotationTimestamp extracts the epoch from a date comment such as
// "2011-04-28 19:18:40 BST / 1304014720"
func AnnotationTimestamp(c string) (int64, error) {
	parts := strings.Split(c, "/")
	if len(parts) != 2 {
		return 0, fmt.Errorf("date annotation %q: expected \"<date> / <epoch>\"", c)
	}

	epoch := strings.TrimSpace(parts[1])
	if ts, err := strconv.ParseInt(epoch, 10, 64); err == nil {
		return ts, nil
	}

	// Accept "1304014720.0" and friends, truncated to whole seconds.
	// float64(MaxInt64) rounds up to 2^63, hence >=.
	f, err := strconv.ParseFloat(epoch, 64)
	if err != nil || math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("date annotation %q: invalid epoch %q", c, epoch)
	}
	return int64(f), nil
}
