package ingest

import (
	"fmt"

	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
)

// Cardinality and validation limits
const (
	// Per-request limits
	MaxTagsPerRequest        = 20   // Maximum tags per write request
	MaxTagKeyLength          = 256  // Maximum tag key length
	MaxTagValueLength        = 1024 // Maximum tag value length
	MaxMeasurementNameLength = 512  // Maximum measurement name length

	// Global limits
	MaxUniqueSeries         = 100000 // Maximum unique series held by the server
	MaxSeriesPerMeasurement = 64     // Munin gives each measurement one series per CF
	MaxRequestsPerWrite     = 1000   // Maximum write requests in a single /v1/write call
	MaxArchiveBytes         = 64 << 20
)

var (
	// ErrTooManyTags is returned when a write request has too many tags
	ErrTooManyTags = fmt.Errorf("too many tags (max %d)", MaxTagsPerRequest)

	// ErrTagKeyTooLong is returned when a tag key is too long
	ErrTagKeyTooLong = fmt.Errorf("tag key too long (max %d chars)", MaxTagKeyLength)

	// ErrTagValueTooLong is returned when a tag value is too long
	ErrTagValueTooLong = fmt.Errorf("tag value too long (max %d chars)", MaxTagValueLength)

	// ErrMeasurementTooLong is returned when a measurement name is too long
	ErrMeasurementTooLong = fmt.Errorf("measurement name too long (max %d chars)", MaxMeasurementNameLength)

	// ErrMeasurementEmpty is returned when a measurement name is empty
	ErrMeasurementEmpty = fmt.Errorf("measurement name cannot be empty")

	// ErrMissingTime is returned when a write request carries no timestamp
	ErrMissingTime = fmt.Errorf("time is required")

	// ErrCardinalityLimit is returned when the total series limit is exceeded
	ErrCardinalityLimit = fmt.Errorf("cardinality limit exceeded (max %d unique series)", MaxUniqueSeries)

	// ErrMeasurementCardinalityLimit is returned when a single measurement's series limit is exceeded
	ErrMeasurementCardinalityLimit = fmt.Errorf("measurement cardinality limit exceeded (max %d series per measurement)", MaxSeriesPerMeasurement)

	// ErrTooManyRequests is returned when a write call contains too many requests
	ErrTooManyRequests = fmt.Errorf("too many write requests (max %d)", MaxRequestsPerWrite)
)

// ValidateWriteRequest checks a write request against the per-request limits
func ValidateWriteRequest(w metrics.WriteRequest) error {
	if w.Measurement == "" {
		return ErrMeasurementEmpty
	}
	if len(w.Measurement) > MaxMeasurementNameLength {
		return fmt.Errorf("%w: %q has %d chars", ErrMeasurementTooLong, w.Measurement, len(w.Measurement))
	}

	if w.Time.IsZero() {
		return fmt.Errorf("%w: measurement %q", ErrMissingTime, w.Measurement)
	}

	if len(w.Tags) > MaxTagsPerRequest {
		return fmt.Errorf("%w: measurement %q has %d tags", ErrTooManyTags, w.Measurement, len(w.Tags))
	}

	for k, v := range w.Tags {
		if len(k) > MaxTagKeyLength {
			return fmt.Errorf("%w: key %q in measurement %q", ErrTagKeyTooLong, k, w.Measurement)
		}
		if len(v) > MaxTagValueLength {
			return fmt.Errorf("%w: value for key %q in measurement %q", ErrTagValueTooLong, k, w.Measurement)
		}
	}

	return nil
}
