package events

import (
	"context"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/pkg/logger"
	"github.com/campusgate/campusgate-backend/pkg/messaging"
)

// VerificationEventPublisher publishes verification lifecycle events
type VerificationEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewVerificationEventPublisher creates a new verification event publisher
func NewVerificationEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*VerificationEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeVerificationEvents, "verification-service", log)
	if err != nil {
		return nil, err
	}
	return &VerificationEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishSessionStarted publishes a session started event. Publish
// failures are logged, never propagated; the workflow must not stall
// on the broker.
func (p *VerificationEventPublisher) PublishSessionStarted(ctx context.Context, sessionID, email string) {
	data := messaging.SessionStartedEvent{
		SessionID: sessionID,
		Email:     email,
	}
	if err := p.publisher.Publish(ctx, messaging.EventSessionStarted, data); err != nil {
		p.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to publish session started event")
	}
}

// PublishSessionCompleted publishes a session completed event
func (p *VerificationEventPublisher) PublishSessionCompleted(ctx context.Context, sessionID, email, documentNumber string, nameOverridden bool) {
	data := messaging.SessionCompletedEvent{
		SessionID:      sessionID,
		Email:          email,
		DocumentNumber: documentNumber,
		NameOverridden: nameOverridden,
	}
	if err := p.publisher.Publish(ctx, messaging.EventSessionCompleted, data); err != nil {
		p.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to publish session completed event")
	}
}

// PublishSessionAbandoned publishes a session abandoned event
func (p *VerificationEventPublisher) PublishSessionAbandoned(ctx context.Context, sessionID, email string, stage domain.Stage) {
	data := messaging.SessionAbandonedEvent{
		SessionID: sessionID,
		Email:     email,
		Stage:     string(stage),
	}
	if err := p.publisher.Publish(ctx, messaging.EventSessionAbandoned, data); err != nil {
		p.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to publish session abandoned event")
	}
}

// PublishNameOverridden publishes a name override event carrying both
// conflicting values
func (p *VerificationEventPublisher) PublishNameOverridden(ctx context.Context, sessionID, email, primaryName, secondaryName string) {
	data := messaging.NameOverriddenEvent{
		SessionID:     sessionID,
		Email:         email,
		PrimaryName:   primaryName,
		SecondaryName: secondaryName,
	}
	if err := p.publisher.Publish(ctx, messaging.EventNameOverridden, data); err != nil {
		p.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to publish name overridden event")
	}
}
