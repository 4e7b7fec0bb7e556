package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"wisefido-motion-coach/internal/models"
)

func setupMockSessionsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SessionsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewSessionsRepository(db, logger)

	return db, mock, repo
}

func sessionColumns() []string {
	return []string{
		"session_id", "tenant_id", "started_at", "ended_at",
		"observation_count", "decision_count", "intervention_count",
		"avg_confidence", "dominant_phase", "updated_at",
	}
}

func TestUpsertSessionSummary_Success(t *testing.T) {
	db, mock, repo := setupMockSessionsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	summary := &models.SessionSummary{
		SessionID:         "session-1",
		StartedAt:         time.Now().Add(-30 * time.Minute),
		ObservationCount:  54000,
		DecisionCount:     42,
		InterventionCount: 3,
		AvgConfidence:     0.71,
		DominantPhase:     models.PhaseMain,
	}

	mock.ExpectExec(`INSERT INTO coach_sessions`).
		WithArgs(
			"session-1", tenantID, summary.StartedAt, sqlmock.AnyArg(),
			int64(54000), int64(42), int64(3), 0.71, "main", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpsertSessionSummary(ctx, tenantID, summary)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSessionSummary_InvalidTenantID(t *testing.T) {
	db, mock, repo := setupMockSessionsDB(t)
	defer db.Close()

	err := repo.UpsertSessionSummary(context.Background(), "", &models.SessionSummary{SessionID: "session-1"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionSummary_Success(t *testing.T) {
	db, mock, repo := setupMockSessionsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	now := time.Now()

	rows := sqlmock.NewRows(sessionColumns()).AddRow(
		"session-1", tenantID, now.Add(-time.Hour), now,
		int64(108000), int64(30), int64(1), 0.66, "main", now,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs("session-1", tenantID).
		WillReturnRows(rows)

	record, err := repo.GetSessionSummary(ctx, tenantID, "session-1")

	require.NoError(t, err)
	assert.Equal(t, "session-1", record.SessionID)
	assert.Equal(t, int64(30), record.DecisionCount)
	assert.Equal(t, "main", record.DominantPhase)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionSummary_NotFound(t *testing.T) {
	db, mock, repo := setupMockSessionsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("session-x", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	record, err := repo.GetSessionSummary(context.Background(), uuid.New().String(), "session-x")

	assert.Error(t, err)
	assert.Nil(t, record)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessionSummaries_Success(t *testing.T) {
	db, mock, repo := setupMockSessionsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	now := time.Now()

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(2)
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(tenantID).
		WillReturnRows(countRows)

	listRows := sqlmock.NewRows(sessionColumns()).
		AddRow("session-2", tenantID, now.Add(-time.Hour), now,
			int64(90000), int64(25), int64(2), 0.7, "main", now).
		AddRow("session-1", tenantID, now.Add(-3*time.Hour), now.Add(-2*time.Hour),
			int64(54000), int64(18), int64(0), 0.63, "cooldown", now)

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, 20, 0).
		WillReturnRows(listRows)

	records, total, err := repo.ListSessionSummaries(ctx, tenantID, 1, 20)

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, records, 2)
	assert.Equal(t, "session-2", records[0].SessionID)

	require.NoError(t, mock.ExpectationsWereMet())
}
