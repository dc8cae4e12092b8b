package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFrameNotReady signals that the frame source had nothing to hand
// out yet. The capture loop treats it as transient and retries the
// same frame index.
var ErrFrameNotReady = errors.New("frame not ready")

// ErrAttemptsExhausted signals that a bounded capture loop used up its
// attempt budget without finding the required fields.
var ErrAttemptsExhausted = errors.New("capture attempts exhausted")

// DeviceAccessError means the camera could not be acquired. The
// session stays in INTRO and may try again.
type DeviceAccessError struct {
	Reason string
}

func (e *DeviceAccessError) Error() string {
	if e.Reason == "" {
		return "camera access denied"
	}
	return "camera access denied: " + e.Reason
}

// IncompleteExtractionError reports which required fields a scan
// failed to yield.
type IncompleteExtractionError struct {
	DocumentType DocumentType
	Missing      []Field
}

func (e *IncompleteExtractionError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return fmt.Sprintf("incomplete extraction from %s: missing %s", e.DocumentType, strings.Join(names, ", "))
}

// NameMismatchError reports disagreeing names across the two documents.
type NameMismatchError struct {
	PrimaryName   string
	SecondaryName string
}

func (e *NameMismatchError) Error() string {
	return fmt.Sprintf("name mismatch: %q vs %q", e.PrimaryName, e.SecondaryName)
}

// SubmissionError carries the portal backend's rejection of a final
// submission. The session stays in FORM so the user can correct and
// resubmit.
type SubmissionError struct {
	StatusCode int
	Message    string
}

func (e *SubmissionError) Error() string {
	if e.Message != "" {
		return "submission rejected: " + e.Message
	}
	return fmt.Sprintf("submission failed with status %d", e.StatusCode)
}
