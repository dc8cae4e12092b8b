// Package handler exposes the verification session API.
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/internal/verification/repository"
	"github.com/campusgate/campusgate-backend/internal/verification/service"
	"github.com/campusgate/campusgate-backend/internal/verification/session"
	"github.com/campusgate/campusgate-backend/internal/verification/workflow"
	apperrors "github.com/campusgate/campusgate-backend/pkg/errors"
	"github.com/campusgate/campusgate-backend/pkg/httputil"
	"github.com/campusgate/campusgate-backend/pkg/logger"
)

// maxFrameBytes caps one uploaded frame.
const maxFrameBytes = 8 << 20

// VerificationHandler handles verification session endpoints
type VerificationHandler struct {
	service *service.VerificationService
	audit   *repository.AuditRepository
	logger  *logger.Logger
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(svc *service.VerificationService, audit *repository.AuditRepository, log *logger.Logger) *VerificationHandler {
	return &VerificationHandler{
		service: svc,
		audit:   audit,
		logger:  log,
	}
}

// CreateSession starts a new verification session for the
// authenticated student
func (h *VerificationHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	email := httputil.GetRecoveryEmail(r.Context())

	sess, err := h.service.Create(r.Context(), email, bearerToken(r))
	if err != nil {
		httputil.Error(w, mapDomainError(err))
		return
	}

	httputil.JSON(w, http.StatusCreated, sess.Workflow.Status())
}

// GetSession returns the current session status
func (h *VerificationHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(chi.URLParam(r, "id"), httputil.GetRecoveryEmail(r.Context()))
	if err != nil {
		httputil.Error(w, mapDomainError(err))
		return
	}
	httputil.JSON(w, http.StatusOK, status)
}

type cameraRequest struct {
	Granted *bool `json:"granted" validate:"required"`
}

// ReportCamera records the camera permission answer and starts
// scanning when access was granted
func (h *VerificationHandler) ReportCamera(w http.ResponseWriter, r *http.Request) {
	var req cameraRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	status, err := h.service.ReportCamera(r.Context(), chi.URLParam(r, "id"), httputil.GetRecoveryEmail(r.Context()), *req.Granted)
	if err != nil {
		httputil.Error(w, mapDomainError(err))
		return
	}
	httputil.JSON(w, http.StatusOK, status)
}

// PushFrame accepts one camera frame as multipart form data
func (h *VerificationHandler) PushFrame(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFrameBytes); err != nil {
		httputil.Error(w, apperrors.BadRequest("invalid multipart payload"))
		return
	}

	file, _, err := r.FormFile("frame")
	if err != nil {
		httputil.Error(w, apperrors.BadRequest("missing frame file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxFrameBytes))
	if err != nil {
		httputil.Error(w, apperrors.BadRequest("failed to read frame"))
		return
	}

	err = h.service.PushFrame(r.Context(), chi.URLParam(r, "id"), httputil.GetRecoveryEmail(r.Context()), data)
	if err != nil {
		httputil.Error(w, mapDomainError(err))
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type decisionRequest struct {
	Action domain.DecisionAction `json:"action" validate:"required,oneof=retry override abandon"`
}

// Decide resolves a pending decision
func (h *VerificationHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	status, err := h.service.Decide(r.Context(), chi.URLParam(r, "id"), httputil.GetRecoveryEmail(r.Context()), req.Action)
	if err != nil {
		httputil.Error(w, mapDomainError(err))
		return
	}
	httputil.JSON(w, http.StatusOK, status)
}

// SubmitForm validates the account form and runs the final submission
func (h *VerificationHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	var form domain.RecoveryForm
	if err := httputil.DecodeJSON(r, &form); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&form); err != nil {
		httputil.Error(w, err)
		return
	}

	status, err := h.service.SubmitForm(r.Context(), chi.URLParam(r, "id"), httputil.GetRecoveryEmail(r.Context()), &form)
	if err != nil {
		httputil.Error(w, mapDomainError(err))
		return
	}
	httputil.JSON(w, http.StatusOK, status)
}

// AbandonSession terminates a session
func (h *VerificationHandler) AbandonSession(w http.ResponseWriter, r *http.Request) {
	err := h.service.Abandon(r.Context(), chi.URLParam(r, "id"), httputil.GetRecoveryEmail(r.Context()))
	if err != nil {
		httputil.Error(w, mapDomainError(err))
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
}

// ListAudit returns the audit trail of a session
func (h *VerificationHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	email := httputil.GetRecoveryEmail(r.Context())

	// Ownership check against the live registry; expired sessions keep
	// their audit rows but are no longer queryable here.
	if _, err := h.service.Get(sessionID, email); err != nil {
		httputil.Error(w, err)
		return
	}

	logs, err := h.audit.ListBySession(r.Context(), sessionID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, logs)
}

// Routes mounts the verification API onto a router.
func (h *VerificationHandler) Routes(r chi.Router) {
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/camera", h.ReportCamera)
		r.Post("/frames", h.PushFrame)
		r.Post("/decision", h.Decide)
		r.Post("/form", h.SubmitForm)
		r.Delete("/", h.AbandonSession)
		r.Get("/audit", h.ListAudit)
	})
}

// mapDomainError translates workflow and session errors into API
// errors; AppErrors pass through untouched.
func mapDomainError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var devErr *domain.DeviceAccessError
	if errors.As(err, &devErr) {
		return apperrors.New("DEVICE_ACCESS_FAILURE", devErr.Error(), http.StatusConflict)
	}

	var subErr *domain.SubmissionError
	if errors.As(err, &subErr) {
		message := subErr.Message
		if message == "" {
			message = "submission rejected by portal"
		}
		return apperrors.New("SUBMISSION_REJECTED", message, http.StatusBadGateway)
	}

	switch {
	case errors.Is(err, workflow.ErrNoPendingDecision):
		return apperrors.BadRequest("no pending decision to resolve")
	case errors.Is(err, workflow.ErrInvalidAction):
		return apperrors.BadRequest("action not allowed for pending decision")
	case errors.Is(err, workflow.ErrInvalidStage):
		return apperrors.Conflict("operation not valid in current stage")
	case errors.Is(err, session.ErrCameraInactive):
		return apperrors.Conflict("camera is not active")
	case errors.Is(err, session.ErrFeedClosed):
		return apperrors.Conflict("session is closed")
	}
	return err
}
