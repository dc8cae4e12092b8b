package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/internal/verification/repository"
	"github.com/campusgate/campusgate-backend/pkg/database"
	"github.com/campusgate/campusgate-backend/pkg/logger"
	"github.com/campusgate/campusgate-backend/pkg/testutil"
)

func newAuditRepo(t *testing.T) (*repository.AuditRepository, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	repo := repository.NewAuditRepository(database.FromSqlx(mockDB.DB, logger.Nop()))
	return repo, mockDB
}

func TestAuditRepository_Create(t *testing.T) {
	repo, mockDB := newAuditRepo(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.ExpectQuery("INSERT INTO verification_audit").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	primary := "Abhi Jain"
	secondary := "Abhishek Jain"
	entry := &domain.AuditLog{
		SessionID:     "abc123",
		Email:         "student@example.edu",
		Action:        domain.AuditNameOverridden,
		PrimaryName:   &primary,
		SecondaryName: &secondary,
	}

	err := repo.Create(context.Background(), entry)

	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, now, entry.CreatedAt)
	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_CreateKeepsProvidedID(t *testing.T) {
	repo, mockDB := newAuditRepo(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO verification_audit").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	entry := &domain.AuditLog{
		ID:        "fixed-id",
		SessionID: "abc123",
		Email:     "student@example.edu",
		Action:    domain.AuditSessionStarted,
	}

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.Equal(t, "fixed-id", entry.ID)
	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_ListBySession(t *testing.T) {
	repo, mockDB := newAuditRepo(t)
	defer mockDB.Close()

	rows := testutil.MockRows("id", "session_id", "email", "action", "stage", "primary_name", "secondary_name", "created_at").
		AddRow("1", "abc123", "student@example.edu", domain.AuditSessionStarted, nil, nil, nil, time.Now()).
		AddRow("2", "abc123", "student@example.edu", domain.AuditSessionCompleted, nil, nil, nil, time.Now())

	mockDB.ExpectQuery("SELECT id, session_id, email, action, stage, primary_name, secondary_name, created_at").
		WithArgs("abc123").
		WillReturnRows(rows)

	logs, err := repo.ListBySession(context.Background(), "abc123")

	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.AuditSessionStarted, logs[0].Action)
	assert.Equal(t, domain.AuditSessionCompleted, logs[1].Action)
	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_ListByEmailDefaultLimit(t *testing.T) {
	repo, mockDB := newAuditRepo(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT id, session_id, email, action, stage, primary_name, secondary_name, created_at").
		WithArgs("student@example.edu", 50).
		WillReturnRows(testutil.MockRows("id", "session_id", "email", "action", "stage", "primary_name", "secondary_name", "created_at"))

	logs, err := repo.ListByEmail(context.Background(), "student@example.edu", 0)

	require.NoError(t, err)
	assert.Empty(t, logs)
	mockDB.ExpectationsWereMet(t)
}
