package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/internal/verification/repository"
	"github.com/campusgate/campusgate-backend/pkg/testutil"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS verification_audit (
	id             UUID PRIMARY KEY,
	session_id     TEXT NOT NULL,
	email          TEXT NOT NULL,
	action         TEXT NOT NULL,
	stage          TEXT,
	primary_name   TEXT,
	secondary_name TEXT,
	details        JSONB NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_verification_audit_session ON verification_audit (session_id);
CREATE INDEX IF NOT EXISTS idx_verification_audit_email ON verification_audit (email);
`

func TestAuditRepository_Integration(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()

	suite, err := testutil.NewIntegrationSuite(ctx)
	require.NoError(t, err)
	defer suite.Cleanup(ctx)

	_, err = suite.RawDB.ExecContext(ctx, auditSchema)
	require.NoError(t, err)

	repo := repository.NewAuditRepository(suite.DB)

	primary := "Abhi Jain"
	secondary := "Abhishek Jain"
	entries := []*domain.AuditLog{
		{SessionID: "sess-1", Email: "student@example.edu", Action: domain.AuditSessionStarted},
		{SessionID: "sess-1", Email: "student@example.edu", Action: domain.AuditNameOverridden,
			PrimaryName: &primary, SecondaryName: &secondary},
		{SessionID: "sess-2", Email: "other@example.edu", Action: domain.AuditSessionStarted},
	}
	for _, e := range entries {
		require.NoError(t, repo.Create(ctx, e))
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}

	bySession, err := repo.ListBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, bySession, 2)
	assert.Equal(t, domain.AuditSessionStarted, bySession[0].Action)
	assert.Equal(t, domain.AuditNameOverridden, bySession[1].Action)
	require.NotNil(t, bySession[1].PrimaryName)
	assert.Equal(t, "Abhi Jain", *bySession[1].PrimaryName)

	byEmail, err := repo.ListByEmail(ctx, "other@example.edu", 10)
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, "sess-2", byEmail[0].SessionID)
}
