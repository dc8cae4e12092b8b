package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgate/campusgate-backend/internal/verification/client"
	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/internal/verification/handler"
	"github.com/campusgate/campusgate-backend/internal/verification/repository"
	"github.com/campusgate/campusgate-backend/internal/verification/service"
	"github.com/campusgate/campusgate-backend/internal/verification/session"
	"github.com/campusgate/campusgate-backend/internal/verification/token"
	"github.com/campusgate/campusgate-backend/internal/verification/workflow"
	"github.com/campusgate/campusgate-backend/pkg/config"
	"github.com/campusgate/campusgate-backend/pkg/database"
	"github.com/campusgate/campusgate-backend/pkg/logger"
	"github.com/campusgate/campusgate-backend/pkg/testutil"
)

type stubRecognizer struct{}

func (r *stubRecognizer) Recognize(ctx context.Context, frame domain.Frame) (string, error) {
	return "Computer Code: 55908", nil
}

type stubPortal struct{}

func (p *stubPortal) CompleteRecovery(ctx context.Context, tok string, req *client.CompleteRecoveryRequest) error {
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

type testAPI struct {
	router *chi.Mux
	tokens *token.Manager
	svc    *service.VerificationService
	mockDB *testutil.MockDB
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.Config{
		Capture: config.CaptureConfig{
			BurstFrameCount:    4,
			PrimaryMaxAttempts: 3,
			FrameRetryDelay:    time.Millisecond,
			AdvanceDelay:       time.Millisecond,
			SelfieDelay:        time.Millisecond,
			FrameWait:          10 * time.Millisecond,
			SessionTTL:         time.Minute,
		},
		JWT: config.JWTConfig{
			Secret:         "test-secret-at-least-32-bytes!!!",
			RecoveryExpiry: 15 * time.Minute,
			Issuer:         "campusgate-test",
		},
	}

	svc := service.NewVerificationService(cfg, &stubRecognizer{}, session.NewMemoryStore(time.Minute),
		&stubPortal{}, &stubAuditor{}, &stubEvents{}, logger.Nop())
	t.Cleanup(svc.Shutdown)

	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })
	auditRepo := repository.NewAuditRepository(database.FromSqlx(mockDB.DB, logger.Nop()))

	tokens := token.NewManager(&cfg.JWT)
	h := handler.NewVerificationHandler(svc, auditRepo, logger.Nop())

	r := chi.NewRouter()
	r.Route("/api/v1/verification", func(r chi.Router) {
		r.Use(handler.RequireRecoveryToken(tokens))
		h.Routes(r)
	})

	return &testAPI{router: r, tokens: tokens, svc: svc, mockDB: mockDB}
}

func (api *testAPI) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	signed, _, err := api.tokens.IssueRecoveryToken("student@example.edu")
	require.NoError(t, err)
	req := testutil.WithBearerToken(testutil.NewHTTPRequest(method, path, body), signed)
	return testutil.ExecuteRequest(api.router, req)
}

func (api *testAPI) createSession(t *testing.T) string {
	t.Helper()
	rr := api.request(t, http.MethodPost, "/api/v1/verification/sessions", nil)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var resp struct {
		Data workflow.Status `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &resp)
	require.NotEmpty(t, resp.Data.SessionID)
	return resp.Data.SessionID
}

func TestCreateSession(t *testing.T) {
	api := newTestAPI(t)

	rr := api.request(t, http.MethodPost, "/api/v1/verification/sessions", nil)

	testutil.AssertStatus(t, rr, http.StatusCreated)
	var resp struct {
		Success bool            `json:"success"`
		Data    workflow.Status `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, domain.StageIntro, resp.Data.Stage)
	assert.Equal(t, "student@example.edu", resp.Data.Email)
}

func TestCreateSession_RequiresToken(t *testing.T) {
	api := newTestAPI(t)

	req := testutil.NewHTTPRequest(http.MethodPost, "/api/v1/verification/sessions", nil)
	rr := testutil.ExecuteRequest(api.router, req)

	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestCreateSession_RejectsBadToken(t *testing.T) {
	api := newTestAPI(t)

	req := testutil.WithBearerToken(
		testutil.NewHTTPRequest(http.MethodPost, "/api/v1/verification/sessions", nil), "garbage")
	rr := testutil.ExecuteRequest(api.router, req)

	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestGetSession(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	rr := api.request(t, http.MethodGet, "/api/v1/verification/sessions/"+id, nil)

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, "INTRO")
}

func TestGetSession_NotFound(t *testing.T) {
	api := newTestAPI(t)

	rr := api.request(t, http.MethodGet, "/api/v1/verification/sessions/nope", nil)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestReportCamera_Granted(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	rr := api.request(t, http.MethodPost, "/api/v1/verification/sessions/"+id+"/camera",
		map[string]bool{"granted": true})

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, "PRIMARY_ID_SCAN")
}

func TestReportCamera_Denied(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	rr := api.request(t, http.MethodPost, "/api/v1/verification/sessions/"+id+"/camera",
		map[string]bool{"granted": false})

	testutil.AssertStatus(t, rr, http.StatusConflict)
	testutil.AssertBodyContains(t, rr, "DEVICE_ACCESS_FAILURE")
}

func TestReportCamera_MissingField(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	rr := api.request(t, http.MethodPost, "/api/v1/verification/sessions/"+id+"/camera",
		map[string]string{})

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "VALIDATION_ERROR")
}

func TestPushFrame(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	rr := api.request(t, http.MethodPost, "/api/v1/verification/sessions/"+id+"/camera",
		map[string]bool{"granted": true})
	testutil.AssertStatus(t, rr, http.StatusOK)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("frame", "frame.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte{0xFF, 0xD8, 0xFF, 0x00, 0x01})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	signed, _, err := api.tokens.IssueRecoveryToken("student@example.edu")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verification/sessions/"+id+"/frames", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+signed)

	rr = testutil.ExecuteRequest(api.router, req)
	testutil.AssertStatus(t, rr, http.StatusAccepted)
}

func TestPushFrame_BeforeCameraGrant(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("frame", "frame.jpg")
	require.NoError(t, err)
	part.Write([]byte{0xFF, 0xD8, 0xFF, 0x00})
	require.NoError(t, writer.Close())

	signed, _, err := api.tokens.IssueRecoveryToken("student@example.edu")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verification/sessions/"+id+"/frames", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+signed)

	rr := testutil.ExecuteRequest(api.router, req)
	testutil.AssertStatus(t, rr, http.StatusConflict)
}

func TestDecide_NoPendingDecision(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	rr := api.request(t, http.MethodPost, "/api/v1/verification/sessions/"+id+"/decision",
		map[string]string{"action": "retry"})

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestDecide_UnknownAction(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	rr := api.request(t, http.MethodPost, "/api/v1/verification/sessions/"+id+"/decision",
		map[string]string{"action": "shrug"})

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestSubmitForm_WrongStage(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	rr := api.request(t, http.MethodPost, "/api/v1/verification/sessions/"+id+"/form",
		map[string]string{"new_password": "correct-horse", "confirm_password": "correct-horse"})

	testutil.AssertStatus(t, rr, http.StatusConflict)
}

func TestSubmitForm_PasswordTooShort(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	rr := api.request(t, http.MethodPost, "/api/v1/verification/sessions/"+id+"/form",
		map[string]string{"new_password": "short", "confirm_password": "short"})

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "NewPassword")
}

func TestSubmitForm_ConfirmationMismatch(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	rr := api.request(t, http.MethodPost, "/api/v1/verification/sessions/"+id+"/form",
		map[string]string{"new_password": "correct-horse", "confirm_password": "correct-mule"})

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "ConfirmPassword")
}

func TestAbandonSession(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	rr := api.request(t, http.MethodDelete, "/api/v1/verification/sessions/"+id, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = api.request(t, http.MethodGet, "/api/v1/verification/sessions/"+id, nil)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestListAudit(t *testing.T) {
	api := newTestAPI(t)
	id := api.createSession(t)

	rows := testutil.MockRows("id", "session_id", "email", "action", "stage", "primary_name", "secondary_name", "created_at").
		AddRow("1", id, "student@example.edu", domain.AuditSessionStarted, nil, nil, nil, time.Now())
	api.mockDB.ExpectQuery("SELECT id, session_id, email, action").WillReturnRows(rows)

	rr := api.request(t, http.MethodGet, "/api/v1/verification/sessions/"+id+"/audit", nil)

	testutil.AssertStatus(t, rr, http.StatusOK)
	var resp struct {
		Data []json.RawMessage `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &resp)
	assert.Len(t, resp.Data, 1)
}
