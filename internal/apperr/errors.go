// Package apperr holds the error kinds shared by the ingestion and scoring pipeline.
package apperr

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable is returned when a forecasting or scoring model failed
// to load or was never configured. It is fatal to the request, not the process.
var ErrModelUnavailable = errors.New("model unavailable")

// ValidationError represents a malformed or incomplete raw record
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("validation error for %s (%s): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// UpstreamError wraps a failure raised by the data source or a model
// collaborator, tagged with the pipeline stage that called it.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Stages reported in UpstreamError
const (
	StageFetch    = "fetch"
	StageForecast = "forecast"
	StageScore    = "score"
)

// Upstream wraps err as an UpstreamError for stage
func Upstream(stage string, err error) error {
	return &UpstreamError{Stage: stage, Err: err}
}

// Kind names the error kind for logging and status mapping
func Kind(err error) string {
	var ve *ValidationError
	var ue *UpstreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ue):
		return "upstream_" + ue.Stage
	default:
		return "internal"
	}
}
