// Package client calls the placement portal backend to finish a
// verified account recovery.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/pkg/config"
	"github.com/campusgate/campusgate-backend/pkg/logger"
)

// PortalClient provides the HTTP client for the portal backend.
type PortalClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewPortalClient creates a new portal backend client.
func NewPortalClient(cfg *config.PortalConfig, log *logger.Logger) *PortalClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PortalClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// CompleteRecoveryRequest is the final submission payload. The
// password travels as a bcrypt hash; the plaintext never leaves this
// service.
type CompleteRecoveryRequest struct {
	Email            string `json:"email"`
	ComputerCode     string `json:"computer_code"`
	AadharNumber     string `json:"aadhar_number"`
	DateOfBirth      string `json:"date_of_birth,omitempty"`
	Gender           string `json:"gender,omitempty"`
	FullName         string `json:"full_name,omitempty"`
	Semester         string `json:"semester,omitempty"`
	EnrollmentNumber string `json:"enrollment_number,omitempty"`
	NewPasswordHash  string `json:"new_password_hash"`
	NameOverridden   bool   `json:"name_overridden"`

	// Captured evidence, base64-encoded JPEG.
	PrimaryImage   string `json:"primary_image,omitempty"`
	SecondaryImage string `json:"secondary_image,omitempty"`
	SelfieImage    string `json:"selfie_image,omitempty"`
}

// CompleteRecovery submits the verified identity to the portal
// backend. A non-2xx response becomes a domain.SubmissionError
// carrying the portal's message so the form can show it.
func (c *PortalClient) CompleteRecovery(ctx context.Context, bearerToken string, req *CompleteRecoveryRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/auth/complete-recovery", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+bearerToken)

	c.logger.Info().
		Str("email", req.Email).
		Str("computer_code", req.ComputerCode).
		Msg("submitting completed recovery to portal")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to call portal backend")
		return fmt.Errorf("failed to call portal backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		message := errResp.Error.Message
		if message == "" {
			message = errResp.Message
		}
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("message", message).
			Msg("portal rejected recovery submission")
		return &domain.SubmissionError{StatusCode: resp.StatusCode, Message: message}
	}

	c.logger.Info().Str("email", req.Email).Msg("recovery submission accepted")
	return nil
}
