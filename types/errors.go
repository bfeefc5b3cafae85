package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrInvalidState      = errors.New("job is still active")
	ErrAlreadyRunning    = errors.New("a job is already running")
)

// Pipeline failure categories
var (
	ErrInvalidURL       = errors.New("unsupported or malformed url")
	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrUpstreamAPI      = errors.New("upstream api error")
	ErrDownload         = errors.New("download failed")
	ErrTagging          = errors.New("tagging failed")
	ErrImport           = errors.New("import failed")
)

// AdmissionError is returned when a job is requested while another is active
type AdmissionError struct {
	ActiveJobID string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("a job is already running: %s", e.ActiveJobID)
}

// Is lets errors.Is(err, ErrAlreadyRunning) match admission conflicts.
func (e *AdmissionError) Is(target error) bool {
	return target == ErrAlreadyRunning
}

// PipelineError carries a sanitized public message alongside the full cause
type PipelineError struct {
	Public string
	Err    error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Public
	}
	return fmt.Sprintf("%s: %v", e.Public, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps cause under one of the pipeline sentinels
func NewPipelineError(kind error, public string, cause error) *PipelineError {
	if cause == nil {
		return &PipelineError{Public: public, Err: kind}
	}
	return &PipelineError{Public: public, Err: fmt.Errorf("%w: %w", kind, cause)}
}

// PublicMessage returns the text safe to expose on a failed job
func PublicMessage(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) && pe.Public != "" {
		return pe.Public
	}
	switch {
	case errors.Is(err, ErrInvalidURL):
		return "Unsupported or malformed URL"
	case errors.Is(err, ErrPlaylistNotFound):
		return "Playlist not found or unavailable"
	case errors.Is(err, ErrUpstreamAPI):
		return "YouTube Music request failed"
	case errors.Is(err, ErrDownload):
		return "Download failed"
	case errors.Is(err, ErrTagging):
		return "Tagging failed"
	case errors.Is(err, ErrImport):
		return "Import into library failed"
	}
	return "Sync failed"
}
