package session

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a
// session.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is the durable checkpoint written after every stage
// transition. It carries the extracted fields but never raw frame
// bytes; images stay in process memory until submission.
type Snapshot struct {
	SessionID string                 `json:"session_id"`
	Email     string                 `json:"email"`
	Stage     domain.Stage           `json:"stage"`
	Primary   *domain.DocumentResult `json:"primary,omitempty"`
	Secondary *domain.DocumentResult `json:"secondary,omitempty"`
	SavedAt   time.Time              `json:"saved_at"`
}

// Store persists session snapshots across stage transitions. Delete is
// called on successful submission and on abandonment.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// GenerateSessionID creates a cryptographically random session ID.
func GenerateSessionID() string {
	b := make([]byte, 16)
	rand.Read(b)
	const hex = "0123456789abcdef"
	id := make([]byte, 32)
	for i, v := range b {
		id[i*2] = hex[v>>4]
		id[i*2+1] = hex[v&0x0f]
	}
	return string(id)
}
