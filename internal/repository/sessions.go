package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-motion-coach/internal/models"

	"go.uber.org/zap"
)

// SessionSummaryRecord coach_sessions 表的一行
type SessionSummaryRecord struct {
	SessionID         string    `json:"session_id"`
	TenantID          string    `json:"tenant_id"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at"`
	ObservationCount  int64     `json:"observation_count"`
	DecisionCount     int64     `json:"decision_count"`
	InterventionCount int64     `json:"intervention_count"`
	AvgConfidence     float64   `json:"avg_confidence"`
	DominantPhase     string    `json:"dominant_phase"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SessionsRepository 会话摘要仓库
type SessionsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSessionsRepository 创建会话摘要仓库
func NewSessionsRepository(db *sql.DB, logger *zap.Logger) *SessionsRepository {
	return &SessionsRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertSessionSummary 写入会话摘要（重复结束同一会话时覆盖）
func (r *SessionsRepository) UpsertSessionSummary(ctx context.Context, tenantID string, summary *models.SessionSummary) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if summary == nil {
		return fmt.Errorf("summary is required")
	}
	if summary.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	query := `
		INSERT INTO coach_sessions (
			session_id,
			tenant_id,
			started_at,
			ended_at,
			observation_count,
			decision_count,
			intervention_count,
			avg_confidence,
			dominant_phase,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (session_id, tenant_id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			observation_count = EXCLUDED.observation_count,
			decision_count = EXCLUDED.decision_count,
			intervention_count = EXCLUDED.intervention_count,
			avg_confidence = EXCLUDED.avg_confidence,
			dominant_phase = EXCLUDED.dominant_phase,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		query,
		summary.SessionID,
		tenantID,
		summary.StartedAt,
		now,
		summary.ObservationCount,
		summary.DecisionCount,
		summary.InterventionCount,
		summary.AvgConfidence,
		string(summary.DominantPhase),
		now,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert session summary: %w", err)
	}

	return nil
}

// GetSessionSummary 获取会话摘要
func (r *SessionsRepository) GetSessionSummary(ctx context.Context, tenantID, sessionID string) (*SessionSummaryRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	query := `
		SELECT
			session_id,
			tenant_id,
			started_at,
			ended_at,
			observation_count,
			decision_count,
			intervention_count,
			avg_confidence,
			dominant_phase,
			updated_at
		FROM coach_sessions
		WHERE session_id = $1 AND tenant_id = $2
	`

	var record SessionSummaryRecord
	err := r.db.QueryRowContext(ctx, query, sessionID, tenantID).Scan(
		&record.SessionID,
		&record.TenantID,
		&record.StartedAt,
		&record.EndedAt,
		&record.ObservationCount,
		&record.DecisionCount,
		&record.InterventionCount,
		&record.AvgConfidence,
		&record.DominantPhase,
		&record.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session summary not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get session summary: %w", err)
	}

	return &record, nil
}

// ListSessionSummaries 列出租户的会话摘要（按结束时间倒序）
func (r *SessionsRepository) ListSessionSummaries(ctx context.Context, tenantID string, page, size int) ([]*SessionSummaryRecord, int, error) {
	if tenantID == "" {
		return []*SessionSummaryRecord{}, 0, nil
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coach_sessions WHERE tenant_id = $1`,
		tenantID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count session summaries: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := `
		SELECT
			session_id,
			tenant_id,
			started_at,
			ended_at,
			observation_count,
			decision_count,
			intervention_count,
			avg_confidence,
			dominant_phase,
			updated_at
		FROM coach_sessions
		WHERE tenant_id = $1
		ORDER BY ended_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query session summaries: %w", err)
	}
	defer rows.Close()

	records := []*SessionSummaryRecord{}
	for rows.Next() {
		var record SessionSummaryRecord
		err := rows.Scan(
			&record.SessionID,
			&record.TenantID,
			&record.StartedAt,
			&record.EndedAt,
			&record.ObservationCount,
			&record.DecisionCount,
			&record.InterventionCount,
			&record.AvgConfidence,
			&record.DominantPhase,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan session summary: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate session summaries: %w", err)
	}

	return records, total, nil
}
