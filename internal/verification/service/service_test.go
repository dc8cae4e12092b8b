package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgate/campusgate-backend/internal/verification/client"
	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/internal/verification/session"
	"github.com/campusgate/campusgate-backend/pkg/config"
	"github.com/campusgate/campusgate-backend/pkg/errors"
	"github.com/campusgate/campusgate-backend/pkg/logger"
)

type stubRecognizer struct{ text string }

func (r *stubRecognizer) Recognize(ctx context.Context, frame domain.Frame) (string, error) {
	return r.text, nil
}

type stubPortal struct{}

func (p *stubPortal) CompleteRecovery(ctx context.Context, token string, req *client.CompleteRecoveryRequest) error {
	return nil
}

type stubAuditor struct{}

func (a *stubAuditor) Create(ctx context.Context, log *domain.AuditLog) error { return nil }

type stubEvents struct{}

func (e *stubEvents) PublishSessionStarted(ctx context.Context, sessionID, email string) {}
func (e *stubEvents) PublishSessionCompleted(ctx context.Context, sessionID, email, documentNumber string, nameOverridden bool) {
}
func (e *stubEvents) PublishSessionAbandoned(ctx context.Context, sessionID, email string, stage domain.Stage) {
}
func (e *stubEvents) PublishNameOverridden(ctx context.Context, sessionID, email, primaryName, secondaryName string) {
}

func newTestService(t *testing.T) *VerificationService {
	t.Helper()
	cfg := &config.Config{
		Capture: config.CaptureConfig{
			BurstFrameCount:    4,
			PrimaryMaxAttempts: 3,
			FrameRetryDelay:    time.Millisecond,
			InterFrameDelay:    0,
			AdvanceDelay:       time.Millisecond,
			SelfieDelay:        time.Millisecond,
			FrameWait:          10 * time.Millisecond,
			SessionTTL:         time.Minute,
		},
	}
	svc := NewVerificationService(cfg, &stubRecognizer{}, session.NewMemoryStore(time.Minute),
		&stubPortal{}, &stubAuditor{}, &stubEvents{}, logger.Nop())
	t.Cleanup(svc.Shutdown)
	return svc
}

func TestService_CreateAndGet(t *testing.T) {
	svc := newTestService(t)

	sess, err := svc.Create(context.Background(), "student@example.edu", "tok")
	require.NoError(t, err)
	assert.Len(t, sess.ID, 32)

	got, err := svc.Get(sess.ID, "student@example.edu")
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	status, err := svc.Status(sess.ID, "student@example.edu")
	require.NoError(t, err)
	assert.Equal(t, domain.StageIntro, status.Stage)
}

func TestService_GetUnknownSession(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get("missing", "student@example.edu")
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.StatusCode)
}

func TestService_GetWrongOwner(t *testing.T) {
	svc := newTestService(t)

	sess, err := svc.Create(context.Background(), "student@example.edu", "tok")
	require.NoError(t, err)

	_, err = svc.Get(sess.ID, "other@example.edu")
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 403, appErr.StatusCode)
}

func TestService_ReportCameraDenied(t *testing.T) {
	svc := newTestService(t)

	sess, err := svc.Create(context.Background(), "student@example.edu", "tok")
	require.NoError(t, err)

	status, err := svc.ReportCamera(context.Background(), sess.ID, "student@example.edu", false)

	var devErr *domain.DeviceAccessError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, domain.StageIntro, status.Stage)
}

func TestService_ReportCameraGrantedStartsScanning(t *testing.T) {
	svc := newTestService(t)

	sess, err := svc.Create(context.Background(), "student@example.edu", "tok")
	require.NoError(t, err)

	status, err := svc.ReportCamera(context.Background(), sess.ID, "student@example.edu", true)

	require.NoError(t, err)
	assert.Equal(t, domain.StagePrimaryIDScan, status.Stage)
}

func TestService_PushFrameBeforeCameraActive(t *testing.T) {
	svc := newTestService(t)

	sess, err := svc.Create(context.Background(), "student@example.edu", "tok")
	require.NoError(t, err)

	err = svc.PushFrame(context.Background(), sess.ID, "student@example.edu", []byte{0xFF, 0xD8, 0xFF, 0x00})
	assert.ErrorIs(t, err, session.ErrCameraInactive)
}

func TestService_AbandonRemovesSession(t *testing.T) {
	svc := newTestService(t)

	sess, err := svc.Create(context.Background(), "student@example.edu", "tok")
	require.NoError(t, err)

	require.NoError(t, svc.Abandon(context.Background(), sess.ID, "student@example.edu"))

	_, err = svc.Get(sess.ID, "student@example.edu")
	require.Error(t, err)
}

func TestService_SweepExpiresStaleSessions(t *testing.T) {
	svc := newTestService(t)

	sess, err := svc.Create(context.Background(), "student@example.edu", "tok")
	require.NoError(t, err)

	svc.mu.Lock()
	svc.sessions[sess.ID].CreatedAt = time.Now().Add(-2 * time.Minute)
	svc.mu.Unlock()

	svc.sweep(time.Minute)

	_, err = svc.Get(sess.ID, "student@example.edu")
	require.Error(t, err)
	assert.Equal(t, domain.StageAbandoned, sess.Workflow.Status().Stage)
}
