package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/internal/verification/extract"
	"github.com/campusgate/campusgate-backend/pkg/logger"
)

// Controller drives capture loops against a frame source and an OCR
// engine. It is stateless across runs; one controller serves all scans
// of a session.
type Controller struct {
	source     FrameSource
	recognizer Recognizer
	log        *logger.Logger

	frameRetryDelay time.Duration
	interFrameDelay time.Duration
	progress        ProgressSink
}

// Option tunes a Controller.
type Option func(*Controller)

// WithFrameRetryDelay sets the wait before re-requesting a frame that
// was not ready.
func WithFrameRetryDelay(d time.Duration) Option {
	return func(c *Controller) { c.frameRetryDelay = d }
}

// WithInterFrameDelay sets the pause between consecutive burst frames.
func WithInterFrameDelay(d time.Duration) Option {
	return func(c *Controller) { c.interFrameDelay = d }
}

// WithProgressSink registers a callback for per-frame progress.
func WithProgressSink(sink ProgressSink) Option {
	return func(c *Controller) { c.progress = sink }
}

// NewController creates a capture controller.
func NewController(source FrameSource, recognizer Recognizer, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		source:          source,
		recognizer:      recognizer,
		log:             log,
		frameRetryDelay: time.Second,
		interFrameDelay: 2500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the capture loop described by the policy and returns
// the accepted attempt. It errors only on context cancellation, an
// exhausted attempt budget, or a misconfigured policy.
func (c *Controller) Run(ctx context.Context, docType domain.DocumentType, policy Policy) (*domain.CaptureAttempt, error) {
	switch policy.Mode {
	case ModeBurst:
		attempts, err := c.CaptureBurst(ctx, docType, policy.FrameCount)
		if err != nil {
			return nil, err
		}
		best := SelectBest(attempts)
		return &best, nil
	case ModeRetryUntilFound:
		return c.CaptureUntilFound(ctx, docType, policy.MaxAttempts)
	default:
		return nil, fmt.Errorf("unknown capture mode %q", policy.Mode)
	}
}

// CaptureBurst captures frameCount frames, recognizing and extracting
// each one. Every attempt appears in the result with a 1-based frame
// index; a frame whose recognition failed contributes empty text and
// an empty field set rather than shrinking the burst.
func (c *Controller) CaptureBurst(ctx context.Context, docType domain.DocumentType, frameCount int) ([]domain.CaptureAttempt, error) {
	if frameCount < 1 {
		return nil, fmt.Errorf("frame count must be positive, got %d", frameCount)
	}

	attempts := make([]domain.CaptureAttempt, 0, frameCount)
	for i := 1; i <= frameCount; i++ {
		attempt, err := c.captureOne(ctx, docType, i, frameCount)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *attempt)

		if i < frameCount {
			if err := sleep(ctx, c.interFrameDelay); err != nil {
				return nil, err
			}
		}
	}
	return attempts, nil
}

// CaptureUntilFound captures single frames until one yields all fields
// the document type requires. maxAttempts of zero means unbounded; a
// positive budget that runs out returns domain.ErrAttemptsExhausted.
func (c *Controller) CaptureUntilFound(ctx context.Context, docType domain.DocumentType, maxAttempts int) (*domain.CaptureAttempt, error) {
	required := docType.RequiredFields()

	for attempt := 1; maxAttempts == 0 || attempt <= maxAttempts; attempt++ {
		result, err := c.captureOne(ctx, docType, attempt, maxAttempts)
		if err != nil {
			return nil, err
		}
		if len(result.Fields.Missing(required)) == 0 {
			return result, nil
		}
		c.log.Debug().
			Int("attempt", attempt).
			Str("document_type", string(docType)).
			Msg("required fields not found, retrying")

		if err := sleep(ctx, c.interFrameDelay); err != nil {
			return nil, err
		}
	}
	return nil, domain.ErrAttemptsExhausted
}

// CaptureFrame grabs a single frame with not-ready retry and no
// recognition. Used for the selfie step.
func (c *Controller) CaptureFrame(ctx context.Context) (domain.Frame, error) {
	return c.nextFrame(ctx)
}

func (c *Controller) captureOne(ctx context.Context, docType domain.DocumentType, index, total int) (*domain.CaptureAttempt, error) {
	frame, err := c.nextFrame(ctx)
	if err != nil {
		return nil, err
	}

	text, err := c.recognizer.Recognize(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn().Err(err).Int("frame_index", index).Msg("recognition failed, treating frame as empty")
		text = ""
	}

	fields := extract.Extract(docType, text)
	attempt := &domain.CaptureAttempt{
		FrameIndex:     index,
		Image:          frame,
		RecognizedText: text,
		Fields:         fields,
		Score:          extract.Score(fields),
	}

	c.report(Progress{
		FrameIndex: index,
		FrameCount: total,
		Found:      fields.Found(),
	})
	return attempt, nil
}

// nextFrame pulls a frame from the source, retrying the same slot
// after a short delay whenever the source is not ready.
func (c *Controller) nextFrame(ctx context.Context) (domain.Frame, error) {
	for {
		frame, err := c.source.Capture(ctx)
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, domain.ErrFrameNotReady) {
			return domain.Frame{}, err
		}
		if err := sleep(ctx, c.frameRetryDelay); err != nil {
			return domain.Frame{}, err
		}
	}
}

func (c *Controller) report(p Progress) {
	if c.progress != nil {
		c.progress(p)
	}
}

// SelectBest picks the winning attempt of a burst: highest score, ties
// broken by the earliest frame index. Attempts must be non-empty.
func SelectBest(attempts []domain.CaptureAttempt) domain.CaptureAttempt {
	best := attempts[0]
	for _, a := range attempts[1:] {
		if a.Score > best.Score {
			best = a
		}
	}
	return best
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
