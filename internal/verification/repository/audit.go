// Package repository persists the verification audit trail.
package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/pkg/database"
)

// AuditRepository handles audit log persistence
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	detailsJSON, err := json.Marshal(log.Details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	query := `
		INSERT INTO verification_audit (id, session_id, email, action, stage,
		                                primary_name, secondary_name, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err = r.db.QueryRowxContext(ctx, query,
		log.ID,
		log.SessionID,
		log.Email,
		log.Action,
		log.Stage,
		log.PrimaryName,
		log.SecondaryName,
		detailsJSON,
	).Scan(&log.CreatedAt)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

// ListBySession lists the audit trail of one session, oldest first
func (r *AuditRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.AuditLog, error) {
	query := `
		SELECT id, session_id, email, action, stage, primary_name, secondary_name, created_at
		FROM verification_audit
		WHERE session_id = $1
		ORDER BY created_at ASC
	`

	logs := []*domain.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, sessionID); err != nil {
		return nil, database.MapPQError(err)
	}
	return logs, nil
}

// ListByEmail lists recent audit entries for a student, newest first
func (r *AuditRepository) ListByEmail(ctx context.Context, email string, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, session_id, email, action, stage, primary_name, secondary_name, created_at
		FROM verification_audit
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	logs := []*domain.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, email, limit); err != nil {
		return nil, database.MapPQError(err)
	}
	return logs, nil
}
