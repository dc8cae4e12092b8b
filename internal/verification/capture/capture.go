// Package capture runs the multi-frame camera capture loops that feed
// OCR text into field extraction.
package capture

import (
	"context"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
)

// Camera gives exclusive access to a frame-producing device for the
// duration of a scan. Release must be safe to call more than once.
type Camera interface {
	Acquire(ctx context.Context) error
	Release()
}

// FrameSource hands out captured frames. Capture returns
// domain.ErrFrameNotReady when no frame is available yet; the caller
// retries the same frame index after a delay.
type FrameSource interface {
	Capture(ctx context.Context) (domain.Frame, error)
}

// Recognizer turns a frame into raw text. An error from the engine is
// treated as an empty read, not a failed attempt.
type Recognizer interface {
	Recognize(ctx context.Context, frame domain.Frame) (string, error)
}

// Progress reports per-frame advancement of a capture loop so the
// client can show live feedback.
type Progress struct {
	FrameIndex int            `json:"frame_index"`
	FrameCount int            `json:"frame_count"`
	Found      []domain.Field `json:"found,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// ProgressSink receives progress updates. A nil sink is allowed.
type ProgressSink func(Progress)

// Mode selects how a capture loop terminates.
type Mode string

const (
	// ModeBurst captures a fixed number of frames and keeps the best.
	ModeBurst Mode = "burst"
	// ModeRetryUntilFound keeps capturing single frames until the
	// required fields appear or the attempt budget runs out.
	ModeRetryUntilFound Mode = "retry_until_found"
)

// Policy configures one capture run. FrameCount applies to burst mode;
// MaxAttempts applies to retry mode, with zero meaning unbounded.
type Policy struct {
	Mode        Mode
	FrameCount  int
	MaxAttempts int
}
