package ingest

import (
	"errors"
	"fmt"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/calibration"
)

var (
	// ErrUnauthorized means the device credential is missing or unknown
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedPayload means the body is not a JSON object
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrStorageUnavailable wraps durable store failures. On the write path it
	// is reported in Result.StorageErr and never fails the ingestion.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrCalibrationUnavailable is only ever logged; readings fall back to raw values
	ErrCalibrationUnavailable = calibration.ErrModelUnavailable
)

// ValidationKind classifies a rejected field
type ValidationKind string

const (
	MissingField  ValidationKind = "missing_field"
	InvalidFormat ValidationKind = "invalid_format"
	OutOfRange    ValidationKind = "out_of_range"
)

// ValidationError describes the first field that failed validation
type ValidationError struct {
	Kind  ValidationKind
	Field string
	Min   float64
	Max   float64
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case MissingField:
		return fmt.Sprintf("missing required field: %s", e.Field)
	case InvalidFormat:
		return fmt.Sprintf("invalid number format for field: %s", e.Field)
	case OutOfRange:
		return fmt.Sprintf("%s must be between %g and %g", e.Field, e.Min, e.Max)
	default:
		return fmt.Sprintf("invalid field: %s", e.Field)
	}
}

// IsValidationError reports whether err carries a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
