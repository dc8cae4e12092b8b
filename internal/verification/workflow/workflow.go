// Package workflow drives a verification session through its stages:
// intro, primary ID scan, secondary ID scan, selfie, form, submission.
// All stage work runs in goroutines guarded by a per-stage epoch so a
// superseded stage can never mutate the session it left behind.
package workflow

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/campusgate/campusgate-backend/internal/verification/capture"
	"github.com/campusgate/campusgate-backend/internal/verification/client"
	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/internal/verification/extract"
	"github.com/campusgate/campusgate-backend/internal/verification/session"
	"github.com/campusgate/campusgate-backend/pkg/logger"
)

var (
	// ErrNoPendingDecision is returned when a decision arrives while
	// nothing is waiting for one.
	ErrNoPendingDecision = errors.New("no pending decision")
	// ErrInvalidAction is returned when the action is not among the
	// pending decision's allowed answers.
	ErrInvalidAction = errors.New("action not allowed for pending decision")
	// ErrInvalidStage is returned when an operation does not apply to
	// the session's current stage.
	ErrInvalidStage = errors.New("operation not valid in current stage")
)

// PortalSubmitter submits the completed recovery to the portal backend.
type PortalSubmitter interface {
	CompleteRecovery(ctx context.Context, bearerToken string, req *client.CompleteRecoveryRequest) error
}

// Auditor records the session's audit trail.
type Auditor interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// EventSink publishes lifecycle events. Implementations log failures
// and never block the workflow.
type EventSink interface {
	PublishSessionStarted(ctx context.Context, sessionID, email string)
	PublishSessionCompleted(ctx context.Context, sessionID, email, documentNumber string, nameOverridden bool)
	PublishSessionAbandoned(ctx context.Context, sessionID, email string, stage domain.Stage)
	PublishNameOverridden(ctx context.Context, sessionID, email, primaryName, secondaryName string)
}

// Config tunes the stage machine.
type Config struct {
	PrimaryPolicy   capture.Policy
	SecondaryPolicy capture.Policy
	// AdvanceDelay is the pause between accepting a scan and entering
	// the next stage, giving the client time to show the result.
	AdvanceDelay time.Duration
	// SelfieDelay is the settle time before the selfie frame is taken.
	SelfieDelay time.Duration
}

// Status is a point-in-time view of a session for the API.
type Status struct {
	SessionID      string                  `json:"session_id"`
	Email          string                  `json:"email"`
	Stage          domain.Stage            `json:"stage"`
	Pending        *domain.PendingDecision `json:"pending_decision,omitempty"`
	Primary        *domain.DocumentResult  `json:"primary,omitempty"`
	Secondary      *domain.DocumentResult  `json:"secondary,omitempty"`
	SelfieCaptured bool                    `json:"selfie_captured"`
	NameOverridden bool                    `json:"name_overridden"`
	LastError      string                  `json:"last_error,omitempty"`
}

// Workflow is the state machine of one verification session.
type Workflow struct {
	id    string
	email string
	token string
	cfg   Config

	camera     capture.Camera
	controller *capture.Controller
	snapshots  session.Store
	portal     PortalSubmitter
	audit      Auditor
	events     EventSink
	log        *logger.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu             sync.Mutex
	stage          domain.Stage
	epoch          uint64
	stageCancel    context.CancelFunc
	state          domain.VerificationState
	pending        *domain.PendingDecision
	candidate      *domain.CaptureAttempt
	nameOverridden bool
	lastErr        string
}

// New creates a workflow in INTRO for the given session.
func New(id, email, bearerToken string, cfg Config, camera capture.Camera, controller *capture.Controller,
	snapshots session.Store, portal PortalSubmitter, audit Auditor, events EventSink, log *logger.Logger) *Workflow {

	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Workflow{
		id:         id,
		email:      email,
		token:      bearerToken,
		cfg:        cfg,
		camera:     camera,
		controller: controller,
		snapshots:  snapshots,
		portal:     portal,
		audit:      audit,
		events:     events,
		log:        log.WithSessionID(id),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		stage:      domain.StageIntro,
	}
}

// Start acquires the camera and begins the primary ID scan. On a
// camera failure the session stays in INTRO and Start may be called
// again after the client re-reports the grant.
func (w *Workflow) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stage != domain.StageIntro {
		return ErrInvalidStage
	}
	if err := w.camera.Acquire(ctx); err != nil {
		w.lastErr = err.Error()
		w.log.Warn().Err(err).Msg("camera acquisition failed, staying in intro")
		return err
	}
	w.lastErr = ""

	w.recordAudit(domain.AuditSessionStarted, nil)
	w.events.PublishSessionStarted(ctx, w.id, w.email)
	w.transitionLocked(domain.StagePrimaryIDScan)
	return nil
}

// transitionLocked moves to the next stage under the lock: it bumps
// the epoch, cancels the previous stage's context, and launches the
// new stage's entry work.
func (w *Workflow) transitionLocked(next domain.Stage) {
	w.epoch++
	if w.stageCancel != nil {
		w.stageCancel()
		w.stageCancel = nil
	}
	w.stage = next
	w.pending = nil
	w.candidate = nil

	w.log.Info().Str("stage", string(next)).Uint64("epoch", w.epoch).Msg("stage transition")

	epoch := w.epoch
	var stageCtx context.Context
	switch next {
	case domain.StagePrimaryIDScan, domain.StageSecondaryIDScan, domain.StageSelfie:
		stageCtx, w.stageCancel = context.WithCancel(w.baseCtx)
	}

	switch next {
	case domain.StagePrimaryIDScan:
		go w.runPrimaryScan(stageCtx, epoch)
	case domain.StageSecondaryIDScan:
		go w.runSecondaryScan(stageCtx, epoch)
	case domain.StageSelfie:
		go w.runSelfie(stageCtx, epoch)
	}

	go w.saveSnapshot()
}

func (w *Workflow) runPrimaryScan(ctx context.Context, epoch uint64) {
	attempt, err := w.controller.Run(ctx, domain.DocumentTypeCollegeID, w.cfg.PrimaryPolicy)
	if err != nil {
		w.handleScanFailure(ctx, epoch, domain.StagePrimaryIDScan, domain.DocumentTypeCollegeID, err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if epoch != w.epoch {
		return
	}

	w.state.Primary = &domain.DocumentResult{
		Type:       domain.DocumentTypeCollegeID,
		Fields:     attempt.Fields,
		Image:      attempt.Image,
		FrameIndex: attempt.FrameIndex,
		AcceptedAt: time.Now(),
	}
	w.log.Info().
		Int("frame_index", attempt.FrameIndex).
		Msg("primary document accepted")
	go w.saveSnapshot()
	w.scheduleAdvanceLocked(epoch, domain.StageSecondaryIDScan)
}

func (w *Workflow) runSecondaryScan(ctx context.Context, epoch uint64) {
	attempt, err := w.controller.Run(ctx, domain.DocumentTypeAadhar, w.cfg.SecondaryPolicy)
	if err != nil {
		w.handleScanFailure(ctx, epoch, domain.StageSecondaryIDScan, domain.DocumentTypeAadhar, err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if epoch != w.epoch {
		return
	}

	required := domain.DocumentTypeAadhar.RequiredFields()
	if missing := attempt.Fields.Missing(required); len(missing) > 0 {
		w.pending = &domain.PendingDecision{
			Kind:    domain.DecisionIncompleteExtraction,
			Stage:   domain.StageSecondaryIDScan,
			Missing: missing,
			Allowed: []domain.DecisionAction{domain.DecisionRetry, domain.DecisionAbandon},
		}
		w.log.Info().Interface("missing", missing).Msg("secondary scan incomplete, awaiting decision")
		return
	}

	if w.state.Primary != nil && w.state.Primary.Fields.FullName != nil && attempt.Fields.FullName != nil {
		primaryName := *w.state.Primary.Fields.FullName
		secondaryName := *attempt.Fields.FullName
		if !extract.NamesMatch(primaryName, secondaryName) {
			w.candidate = attempt
			w.pending = &domain.PendingDecision{
				Kind:          domain.DecisionNameMismatch,
				Stage:         domain.StageSecondaryIDScan,
				PrimaryName:   primaryName,
				SecondaryName: secondaryName,
				Allowed:       []domain.DecisionAction{domain.DecisionRetry, domain.DecisionOverride, domain.DecisionAbandon},
			}
			w.log.Warn().
				Str("primary_name", primaryName).
				Str("secondary_name", secondaryName).
				Msg("name mismatch across documents, awaiting decision")
			return
		}
	}

	w.acceptSecondaryLocked(attempt, epoch)
}

func (w *Workflow) acceptSecondaryLocked(attempt *domain.CaptureAttempt, epoch uint64) {
	w.state.Secondary = &domain.DocumentResult{
		Type:       domain.DocumentTypeAadhar,
		Fields:     attempt.Fields,
		Image:      attempt.Image,
		FrameIndex: attempt.FrameIndex,
		AcceptedAt: time.Now(),
	}
	w.log.Info().
		Int("frame_index", attempt.FrameIndex).
		Int("score", attempt.Score).
		Msg("secondary document accepted")
	go w.saveSnapshot()
	w.scheduleAdvanceLocked(epoch, domain.StageSelfie)
}

func (w *Workflow) runSelfie(ctx context.Context, epoch uint64) {
	if err := sleepCtx(ctx, w.cfg.SelfieDelay); err != nil {
		return
	}

	frame, err := w.controller.CaptureFrame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if epoch != w.epoch {
			return
		}
		w.lastErr = "selfie capture failed"
		w.log.Error().Err(err).Msg("selfie capture failed")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if epoch != w.epoch {
		return
	}

	w.state.Selfie = &frame
	// Scanning is done; the camera is released before the form stage.
	w.camera.Release()
	w.log.Info().Msg("selfie captured, camera released")
	go w.saveSnapshot()
	w.scheduleAdvanceLocked(epoch, domain.StageForm)
}

// handleScanFailure turns capture errors into pending decisions. A
// cancelled context means the stage was superseded and is ignored.
func (w *Workflow) handleScanFailure(ctx context.Context, epoch uint64, stage domain.Stage, docType domain.DocumentType, err error) {
	if ctx != nil && ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if epoch != w.epoch {
		return
	}

	if errors.Is(err, domain.ErrAttemptsExhausted) {
		w.pending = &domain.PendingDecision{
			Kind:    domain.DecisionIncompleteExtraction,
			Stage:   stage,
			Missing: docType.RequiredFields(),
			Allowed: []domain.DecisionAction{domain.DecisionRetry, domain.DecisionAbandon},
		}
		w.log.Info().Str("stage", string(stage)).Msg("attempt budget exhausted, awaiting decision")
		return
	}

	w.lastErr = err.Error()
	w.log.Error().Err(err).Str("stage", string(stage)).Msg("scan failed")
}

// Decide resolves the pending decision with the user's answer.
func (w *Workflow) Decide(ctx context.Context, action domain.DecisionAction) error {
	w.mu.Lock()

	if w.pending == nil {
		w.mu.Unlock()
		return ErrNoPendingDecision
	}
	if !w.pending.Allows(action) {
		w.mu.Unlock()
		return ErrInvalidAction
	}

	pending := w.pending
	w.recordAudit(domain.AuditDecisionResolved, map[string]interface{}{
		"kind":   string(pending.Kind),
		"action": string(action),
	})

	switch action {
	case domain.DecisionRetry:
		w.transitionLocked(pending.Stage)
		w.mu.Unlock()
		return nil

	case domain.DecisionOverride:
		candidate := w.candidate
		w.nameOverridden = true
		w.log.Warn().
			Str("primary_name", pending.PrimaryName).
			Str("secondary_name", pending.SecondaryName).
			Msg("name mismatch overridden by user")
		stage := w.stage
		primaryName, secondaryName := pending.PrimaryName, pending.SecondaryName
		entry := &domain.AuditLog{
			SessionID:     w.id,
			Email:         w.email,
			Action:        domain.AuditNameOverridden,
			Stage:         stringPtr(string(stage)),
			PrimaryName:   &primaryName,
			SecondaryName: &secondaryName,
		}
		w.pending = nil
		w.candidate = nil
		w.acceptSecondaryLocked(candidate, w.epoch)
		w.mu.Unlock()

		w.persistAudit(entry)
		w.events.PublishNameOverridden(ctx, w.id, w.email, primaryName, secondaryName)
		return nil

	case domain.DecisionAbandon:
		w.abandonLocked()
		w.mu.Unlock()
		return nil
	}

	w.mu.Unlock()
	return ErrInvalidAction
}

// SubmitForm validates the account form, submits the collected
// identity to the portal, and finishes the session. On a portal
// rejection the session returns to FORM with the server's message.
func (w *Workflow) SubmitForm(ctx context.Context, form *domain.RecoveryForm) error {
	w.mu.Lock()
	if w.stage != domain.StageForm {
		w.mu.Unlock()
		return ErrInvalidStage
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		w.mu.Unlock()
		return err
	}

	req := w.buildSubmissionLocked(form, string(hash))
	w.state.Form = form
	w.epoch++
	w.stage = domain.StageSubmitting
	epoch := w.epoch
	w.mu.Unlock()

	err = w.portal.CompleteRecovery(ctx, w.token, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	if epoch != w.epoch {
		return err
	}

	if err != nil {
		w.epoch++
		w.stage = domain.StageForm
		var subErr *domain.SubmissionError
		if errors.As(err, &subErr) {
			w.lastErr = subErr.Message
		} else {
			w.lastErr = "submission failed"
		}
		w.log.Warn().Err(err).Msg("submission rejected, returning to form")
		return err
	}

	w.epoch++
	w.stage = domain.StageSucceeded
	w.lastErr = ""
	w.camera.Release()
	w.recordAudit(domain.AuditSessionCompleted, nil)
	w.events.PublishSessionCompleted(ctx, w.id, w.email, req.ComputerCode, w.nameOverridden)
	go w.deleteSnapshot()
	w.log.Info().Msg("verification session completed")
	return nil
}

func (w *Workflow) buildSubmissionLocked(form *domain.RecoveryForm, passwordHash string) *client.CompleteRecoveryRequest {
	req := &client.CompleteRecoveryRequest{
		Email:            w.email,
		Semester:         form.Semester,
		EnrollmentNumber: form.EnrollmentNumber,
		NewPasswordHash:  passwordHash,
		NameOverridden:   w.nameOverridden,
	}
	if w.state.Primary != nil && w.state.Primary.Fields.DocumentNumber != nil {
		req.ComputerCode = *w.state.Primary.Fields.DocumentNumber
	}
	if w.state.Secondary != nil {
		f := w.state.Secondary.Fields
		if f.DocumentNumber != nil {
			req.AadharNumber = *f.DocumentNumber
		}
		if f.DateOfBirth != nil {
			req.DateOfBirth = *f.DateOfBirth
		}
		if f.Gender != nil {
			req.Gender = *f.Gender
		}
		if f.FullName != nil {
			req.FullName = *f.FullName
		}
	}
	if w.state.Primary != nil {
		req.PrimaryImage = base64.StdEncoding.EncodeToString(w.state.Primary.Image.Data)
	}
	if w.state.Secondary != nil {
		req.SecondaryImage = base64.StdEncoding.EncodeToString(w.state.Secondary.Image.Data)
	}
	if w.state.Selfie != nil {
		req.SelfieImage = base64.StdEncoding.EncodeToString(w.state.Selfie.Data)
	}
	return req
}

// Abandon terminates the session from any non-terminal stage.
func (w *Workflow) Abandon(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stage.Terminal() {
		return nil
	}
	w.abandonLocked()
	return nil
}

func (w *Workflow) abandonLocked() {
	prior := w.stage
	w.epoch++
	if w.stageCancel != nil {
		w.stageCancel()
		w.stageCancel = nil
	}
	w.pending = nil
	w.candidate = nil
	w.stage = domain.StageAbandoned
	w.camera.Release()

	w.recordAudit(domain.AuditSessionAbandoned, map[string]interface{}{"stage": string(prior)})
	w.events.PublishSessionAbandoned(context.Background(), w.id, w.email, prior)
	go w.deleteSnapshot()
	w.log.Info().Str("stage", string(prior)).Msg("verification session abandoned")
}

// Close tears the session down. A non-terminal session is abandoned
// first so the camera invariant holds on every exit path.
func (w *Workflow) Close() {
	w.mu.Lock()
	if !w.stage.Terminal() {
		w.abandonLocked()
	}
	w.mu.Unlock()
	w.baseCancel()
}

// Status returns a point-in-time view of the session.
func (w *Workflow) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := Status{
		SessionID:      w.id,
		Email:          w.email,
		Stage:          w.stage,
		Primary:        w.state.Primary,
		Secondary:      w.state.Secondary,
		SelfieCaptured: w.state.Selfie != nil,
		NameOverridden: w.nameOverridden,
		LastError:      w.lastErr,
	}
	if w.pending != nil {
		cp := *w.pending
		st.Pending = &cp
	}
	return st
}

// scheduleAdvanceLocked arms the delayed transition to the next stage.
// The timer callback re-checks the epoch so a stale timer from a
// superseded stage does nothing.
func (w *Workflow) scheduleAdvanceLocked(epoch uint64, next domain.Stage) {
	time.AfterFunc(w.cfg.AdvanceDelay, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if epoch != w.epoch || w.stage.Terminal() {
			return
		}
		w.transitionLocked(next)
	})
}

// recordAudit writes an audit row without holding up the caller.
// Callers must hold the lock for the field reads.
func (w *Workflow) recordAudit(action string, details map[string]interface{}) {
	entry := &domain.AuditLog{
		SessionID: w.id,
		Email:     w.email,
		Action:    action,
		Stage:     stringPtr(string(w.stage)),
		Details:   details,
	}
	w.persistAudit(entry)
}

func (w *Workflow) persistAudit(entry *domain.AuditLog) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.audit.Create(ctx, entry); err != nil {
			w.log.Error().Err(err).Str("action", entry.Action).Msg("failed to write audit entry")
		}
	}()
}

func (w *Workflow) saveSnapshot() {
	w.mu.Lock()
	snap := &session.Snapshot{
		SessionID: w.id,
		Email:     w.email,
		Stage:     w.stage,
		Primary:   w.state.Primary,
		Secondary: w.state.Secondary,
	}
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.snapshots.Save(ctx, snap); err != nil {
		w.log.Error().Err(err).Msg("failed to save session snapshot")
	}
}

func (w *Workflow) deleteSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.snapshots.Delete(ctx, w.id); err != nil {
		w.log.Error().Err(err).Msg("failed to delete session snapshot")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

func stringPtr(s string) *string {
	return &s
}
