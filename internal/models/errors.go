package models

import (
	"errors"
	"fmt"
)

// Stage names a phase of the disclosure pipeline.
type Stage string

const (
	StageScan    Stage = "scan"
	StageAcquire Stage = "acquire"
	StageConvert Stage = "convert"
	StageEnrich  Stage = "enrich"
	StageMarket  Stage = "market"
	StagePersist Stage = "persist"
)

// ErrorKind classifies a stage failure for reporting and retry decisions.
type ErrorKind string

const (
	KindTransientNetwork      ErrorKind = "transient_network"
	KindFetchTimeout          ErrorKind = "fetch_timeout"
	KindUnexpectedContentType ErrorKind = "unexpected_content_type"
	KindConversionFailed      ErrorKind = "conversion_failed"
	KindModelOutputInvalid    ErrorKind = "model_output_invalid"
	KindResourceExhausted     ErrorKind = "resource_exhausted"
	KindScanUnavailable       ErrorKind = "scan_unavailable"
	KindPersistence           ErrorKind = "persistence"
)

// StageError records which pipeline stage failed and how. It wraps the
// underlying cause so callers can still use errors.Is/As.
type StageError struct {
	Stage Stage
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with stage and kind context.
func NewStageError(stage Stage, kind ErrorKind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// AsStageError extracts a *StageError from err's chain, or nil.
func AsStageError(err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return nil
}
