package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/pkg/logger"
)

// scriptedSource returns one pre-programmed result per Capture call.
type scriptedSource struct {
	results []sourceResult
	calls   int
}

type sourceResult struct {
	frame domain.Frame
	err   error
}

func (s *scriptedSource) Capture(ctx context.Context) (domain.Frame, error) {
	if err := ctx.Err(); err != nil {
		return domain.Frame{}, err
	}
	if s.calls >= len(s.results) {
		return domain.Frame{}, domain.ErrFrameNotReady
	}
	r := s.results[s.calls]
	s.calls++
	return r.frame, r.err
}

// scriptedRecognizer returns one pre-programmed text per frame.
type scriptedRecognizer struct {
	texts []string
	errs  []error
	calls int
}

func (r *scriptedRecognizer) Recognize(ctx context.Context, frame domain.Frame) (string, error) {
	i := r.calls
	r.calls++
	var err error
	if i < len(r.errs) {
		err = r.errs[i]
	}
	text := ""
	if i < len(r.texts) {
		text = r.texts[i]
	}
	return text, err
}

func frame() domain.Frame {
	return domain.Frame{Data: []byte{0xFF, 0xD8, 0xFF, 0x00}, CapturedAt: time.Now()}
}

func frames(n int) []sourceResult {
	out := make([]sourceResult, n)
	for i := range out {
		out[i] = sourceResult{frame: frame()}
	}
	return out
}

func newTestController(src FrameSource, rec Recognizer, opts ...Option) *Controller {
	base := []Option{
		WithFrameRetryDelay(time.Millisecond),
		WithInterFrameDelay(0),
	}
	return NewController(src, rec, logger.Nop(), append(base, opts...)...)
}

func TestCaptureBurst_AllFramesAttempted(t *testing.T) {
	src := &scriptedSource{results: frames(4)}
	rec := &scriptedRecognizer{texts: []string{
		"",
		"5590 8885 4237",
		"Abhi Jain\nDOB: 23/03/2005\nMale\n5590 8885 4237",
		"DOB: 23/03/2005",
	}}
	c := newTestController(src, rec)

	attempts, err := c.CaptureBurst(context.Background(), domain.DocumentTypeAadhar, 4)

	require.NoError(t, err)
	require.Len(t, attempts, 4)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.FrameIndex)
	}

	best := SelectBest(attempts)
	assert.Equal(t, 3, best.FrameIndex)
	require.NotNil(t, best.Fields.FullName)
	assert.Equal(t, "Abhi Jain", *best.Fields.FullName)
}

func TestCaptureBurst_RecognizerErrorYieldsEmptyAttempt(t *testing.T) {
	src := &scriptedSource{results: frames(2)}
	rec := &scriptedRecognizer{
		texts: []string{"", "5590 8885 4237"},
		errs:  []error{errors.New("engine timeout"), nil},
	}
	c := newTestController(src, rec)

	attempts, err := c.CaptureBurst(context.Background(), domain.DocumentTypeAadhar, 2)

	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 0, attempts[0].Score)
	assert.Empty(t, attempts[0].RecognizedText)
	assert.Equal(t, 40, attempts[1].Score)
}

func TestCaptureBurst_RetriesFrameNotReady(t *testing.T) {
	src := &scriptedSource{results: []sourceResult{
		{err: domain.ErrFrameNotReady},
		{err: domain.ErrFrameNotReady},
		{frame: frame()},
	}}
	rec := &scriptedRecognizer{texts: []string{"Code: 55908"}}
	c := newTestController(src, rec)

	attempts, err := c.CaptureBurst(context.Background(), domain.DocumentTypeCollegeID, 1)

	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 1, attempts[0].FrameIndex)
	assert.Equal(t, 3, src.calls)
}

func TestCaptureBurst_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptedSource{results: frames(4)}
	c := newTestController(src, &scriptedRecognizer{})

	_, err := c.CaptureBurst(ctx, domain.DocumentTypeAadhar, 4)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelectBest_TieGoesToEarliestFrame(t *testing.T) {
	attempts := []domain.CaptureAttempt{
		{FrameIndex: 1, Score: 40},
		{FrameIndex: 2, Score: 72},
		{FrameIndex: 3, Score: 72},
		{FrameIndex: 4, Score: 0},
	}

	best := SelectBest(attempts)

	assert.Equal(t, 2, best.FrameIndex)
}

func TestCaptureUntilFound_SucceedsOnLaterAttempt(t *testing.T) {
	src := &scriptedSource{results: frames(3)}
	rec := &scriptedRecognizer{texts: []string{"blurry", "still blurry", "Code: 55908"}}
	c := newTestController(src, rec)

	attempt, err := c.CaptureUntilFound(context.Background(), domain.DocumentTypeCollegeID, 0)

	require.NoError(t, err)
	require.NotNil(t, attempt.Fields.DocumentNumber)
	assert.Equal(t, "55908", *attempt.Fields.DocumentNumber)
	assert.Equal(t, 3, attempt.FrameIndex)
}

func TestCaptureUntilFound_BudgetExhausted(t *testing.T) {
	src := &scriptedSource{results: frames(2)}
	rec := &scriptedRecognizer{texts: []string{"nothing", "nothing"}}
	c := newTestController(src, rec)

	_, err := c.CaptureUntilFound(context.Background(), domain.DocumentTypeCollegeID, 2)

	assert.ErrorIs(t, err, domain.ErrAttemptsExhausted)
}

func TestRun_ProgressReported(t *testing.T) {
	src := &scriptedSource{results: frames(2)}
	rec := &scriptedRecognizer{texts: []string{"", "5590 8885 4237"}}

	var updates []Progress
	c := newTestController(src, rec, WithProgressSink(func(p Progress) {
		updates = append(updates, p)
	}))

	best, err := c.Run(context.Background(), domain.DocumentTypeAadhar, Policy{Mode: ModeBurst, FrameCount: 2})

	require.NoError(t, err)
	assert.Equal(t, 2, best.FrameIndex)
	require.Len(t, updates, 2)
	assert.Equal(t, 1, updates[0].FrameIndex)
	assert.Equal(t, 2, updates[0].FrameCount)
	assert.Contains(t, updates[1].Found, domain.FieldDocumentNumber)
}
