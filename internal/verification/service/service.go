// Package service owns the live verification sessions: creation,
// lookup, frame ingestion, and expiry.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/campusgate/campusgate-backend/internal/verification/capture"
	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/internal/verification/session"
	"github.com/campusgate/campusgate-backend/internal/verification/workflow"
	"github.com/campusgate/campusgate-backend/pkg/config"
	"github.com/campusgate/campusgate-backend/pkg/errors"
	"github.com/campusgate/campusgate-backend/pkg/logger"
)

// frameBuffer is how many uploaded frames a session queues before the
// oldest is dropped.
const frameBuffer = 8

// Session is one live verification session.
type Session struct {
	ID        string
	Email     string
	Feed      *session.FrameFeed
	Workflow  *workflow.Workflow
	CreatedAt time.Time
}

// VerificationService manages the registry of live sessions.
type VerificationService struct {
	cfg        *config.Config
	recognizer capture.Recognizer
	snapshots  session.Store
	portal     workflow.PortalSubmitter
	audit      workflow.Auditor
	events     workflow.EventSink
	log        *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	stop     chan struct{}
}

// NewVerificationService creates the session registry and starts its
// expiry sweep.
func NewVerificationService(cfg *config.Config, recognizer capture.Recognizer, snapshots session.Store,
	portal workflow.PortalSubmitter, audit workflow.Auditor, events workflow.EventSink, log *logger.Logger) *VerificationService {

	s := &VerificationService{
		cfg:        cfg,
		recognizer: recognizer,
		snapshots:  snapshots,
		portal:     portal,
		audit:      audit,
		events:     events,
		log:        log,
		sessions:   make(map[string]*Session),
		stop:       make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Create starts a new session for the authenticated student.
func (s *VerificationService) Create(ctx context.Context, email, bearerToken string) (*Session, error) {
	id := session.GenerateSessionID()
	feed := session.NewFrameFeed(frameBuffer, s.cfg.Capture.FrameWait)
	controller := capture.NewController(feed, s.recognizer, s.log,
		capture.WithFrameRetryDelay(s.cfg.Capture.FrameRetryDelay),
		capture.WithInterFrameDelay(s.cfg.Capture.InterFrameDelay),
	)

	wfCfg := workflow.Config{
		PrimaryPolicy: capture.Policy{
			Mode:        capture.ModeRetryUntilFound,
			MaxAttempts: s.cfg.Capture.PrimaryMaxAttempts,
		},
		SecondaryPolicy: capture.Policy{
			Mode:       capture.ModeBurst,
			FrameCount: s.cfg.Capture.BurstFrameCount,
		},
		AdvanceDelay: s.cfg.Capture.AdvanceDelay,
		SelfieDelay:  s.cfg.Capture.SelfieDelay,
	}

	sess := &Session{
		ID:        id,
		Email:     email,
		Feed:      feed,
		Workflow:  workflow.New(id, email, bearerToken, wfCfg, feed, controller, s.snapshots, s.portal, s.audit, s.events, s.log),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.log.Info().Str("session_id", id).Str("email", email).Msg("verification session created")
	return sess, nil
}

// Get returns the session if it exists and belongs to the given
// student.
func (s *VerificationService) Get(sessionID, email string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, errors.NotFound("session")
	}
	if sess.Email != email {
		return nil, errors.Forbidden("session belongs to a different account")
	}
	return sess, nil
}

// ReportCamera records the client's camera grant and, while the
// session is in intro, tries to start scanning.
func (s *VerificationService) ReportCamera(ctx context.Context, sessionID, email string, granted bool) (workflow.Status, error) {
	sess, err := s.Get(sessionID, email)
	if err != nil {
		return workflow.Status{}, err
	}
	sess.Feed.SetCameraGrant(granted)
	if err := sess.Workflow.Start(ctx); err != nil {
		return sess.Workflow.Status(), err
	}
	return sess.Workflow.Status(), nil
}

// PushFrame queues a frame uploaded by the client.
func (s *VerificationService) PushFrame(ctx context.Context, sessionID, email string, data []byte) error {
	sess, err := s.Get(sessionID, email)
	if err != nil {
		return err
	}
	return sess.Feed.Push(domain.Frame{Data: data, CapturedAt: time.Now()})
}

// Decide resolves a session's pending decision.
func (s *VerificationService) Decide(ctx context.Context, sessionID, email string, action domain.DecisionAction) (workflow.Status, error) {
	sess, err := s.Get(sessionID, email)
	if err != nil {
		return workflow.Status{}, err
	}
	if err := sess.Workflow.Decide(ctx, action); err != nil {
		return sess.Workflow.Status(), err
	}
	return sess.Workflow.Status(), nil
}

// SubmitForm runs the final submission for a session.
func (s *VerificationService) SubmitForm(ctx context.Context, sessionID, email string, form *domain.RecoveryForm) (workflow.Status, error) {
	sess, err := s.Get(sessionID, email)
	if err != nil {
		return workflow.Status{}, err
	}
	if err := sess.Workflow.SubmitForm(ctx, form); err != nil {
		return sess.Workflow.Status(), err
	}
	return sess.Workflow.Status(), nil
}

// Abandon terminates a session and removes it from the registry.
func (s *VerificationService) Abandon(ctx context.Context, sessionID, email string) error {
	sess, err := s.Get(sessionID, email)
	if err != nil {
		return err
	}
	if err := sess.Workflow.Abandon(ctx); err != nil {
		return err
	}
	s.remove(sess)
	return nil
}

// Status returns the current view of a session.
func (s *VerificationService) Status(sessionID, email string) (workflow.Status, error) {
	sess, err := s.Get(sessionID, email)
	if err != nil {
		return workflow.Status{}, err
	}
	return sess.Workflow.Status(), nil
}

// Shutdown stops the sweep and tears down every live session.
func (s *VerificationService) Shutdown() {
	close(s.stop)
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Workflow.Close()
		sess.Feed.Close()
	}
}

func (s *VerificationService) remove(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.mu.Unlock()
	sess.Workflow.Close()
	sess.Feed.Close()
}

func (s *VerificationService) sweepLoop() {
	ttl := s.cfg.Capture.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(ttl)
		}
	}
}

// sweep abandons sessions past their TTL so cameras and snapshots are
// not leaked by clients that simply went away.
func (s *VerificationService) sweep(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		s.log.Info().Str("session_id", sess.ID).Msg("expiring stale verification session")
		sess.Workflow.Close()
		sess.Feed.Close()
	}
}
