package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventSessionStarted   = "verification.session.started"
	EventSessionCompleted = "verification.session.completed"
	EventSessionAbandoned = "verification.session.abandoned"
	EventNameOverridden   = "verification.name.overridden"
)

// Exchange names
const (
	ExchangeVerificationEvents = "verification.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}

// SessionStartedEvent is published when a verification session begins scanning
type SessionStartedEvent struct {
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
}

// SessionCompletedEvent is published after a successful submission to the portal
type SessionCompletedEvent struct {
	SessionID      string `json:"session_id"`
	Email          string `json:"email"`
	DocumentNumber string `json:"document_number"`
	NameOverridden bool   `json:"name_overridden"`
}

// SessionAbandonedEvent is published when the user abandons verification
type SessionAbandonedEvent struct {
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
	Stage     string `json:"stage"`
}

// NameOverriddenEvent is published when the user continues past a name mismatch.
// Both conflicting values are carried so the decision is auditable downstream.
type NameOverriddenEvent struct {
	SessionID     string `json:"session_id"`
	Email         string `json:"email"`
	PrimaryName   string `json:"primary_name"`
	SecondaryName string `json:"secondary_name"`
}
