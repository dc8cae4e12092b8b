package domain

import (
	"time"
)

// Audit actions recorded for a verification session
const (
	AuditSessionStarted   = "session_started"
	AuditDecisionResolved = "decision_resolved"
	AuditNameOverridden   = "name_overridden"
	AuditSessionCompleted = "session_completed"
	AuditSessionAbandoned = "session_abandoned"
)

// AuditLog is one row of the verification audit trail. Name overrides
// carry both conflicting values so the decision stays reviewable.
type AuditLog struct {
	ID            string                 `json:"id" db:"id"`
	SessionID     string                 `json:"session_id" db:"session_id"`
	Email         string                 `json:"email" db:"email"`
	Action        string                 `json:"action" db:"action"`
	Stage         *string                `json:"stage,omitempty" db:"stage"`
	PrimaryName   *string                `json:"primary_name,omitempty" db:"primary_name"`
	SecondaryName *string                `json:"secondary_name,omitempty" db:"secondary_name"`
	Details       map[string]interface{} `json:"details,omitempty" db:"-"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
}
