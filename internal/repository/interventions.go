package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wisefido-motion-coach/internal/models"

	"go.uber.org/zap"
)

// InterventionRecord intervention_events 表的一行
type InterventionRecord struct {
	EventID           string          `json:"event_id"`
	TenantID          string          `json:"tenant_id"`
	SessionID         string          `json:"session_id"`
	InterventionType  string          `json:"intervention_type"`
	Priority          string          `json:"priority"`
	TriggerReason     string          `json:"trigger_reason"`
	RecommendedAction string          `json:"recommended_action"`
	Alternatives      json.RawMessage `json:"alternatives"`
	BodyRegions       json.RawMessage `json:"body_regions"`
	CorrectiveSteps   json.RawMessage `json:"corrective_steps"`
	RiskSnapshot      json.RawMessage `json:"risk_snapshot"`
	Trend             string          `json:"trend"`
	Confidence        float64         `json:"confidence"`
	TriggeredAt       time.Time       `json:"triggered_at"`
	CreatedAt         time.Time       `json:"created_at"`
}

// InterventionsRepository 干预事件仓库
type InterventionsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInterventionsRepository 创建干预事件仓库
func NewInterventionsRepository(db *sql.DB, logger *zap.Logger) *InterventionsRepository {
	return &InterventionsRepository{
		db:     db,
		logger: logger,
	}
}

// InterventionFilters 干预事件查询过滤条件
type InterventionFilters struct {
	StartTime *time.Time // triggered_at >= StartTime
	EndTime   *time.Time // triggered_at <= EndTime

	SessionID *string

	InterventionType  *string
	InterventionTypes []string // 类型列表（IN 查询）
	Priority          *string
	Trend             *string
}

// CreateIntervention 持久化一条干预事件（需验证 tenant_id）
func (r *InterventionsRepository) CreateIntervention(ctx context.Context, tenantID string, event *models.InterventionEvent) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if event == nil {
		return fmt.Errorf("event is required")
	}

	alternatives, err := json.Marshal(event.Alternatives)
	if err != nil {
		return fmt.Errorf("failed to marshal alternatives: %w", err)
	}
	bodyRegions, err := json.Marshal(event.BodyRegions)
	if err != nil {
		return fmt.Errorf("failed to marshal body regions: %w", err)
	}
	correctiveSteps, err := json.Marshal(event.CorrectiveSteps)
	if err != nil {
		return fmt.Errorf("failed to marshal corrective steps: %w", err)
	}
	riskSnapshot, err := json.Marshal(event.Risk)
	if err != nil {
		return fmt.Errorf("failed to marshal risk snapshot: %w", err)
	}

	query := `
		INSERT INTO intervention_events (
			event_id,
			tenant_id,
			session_id,
			intervention_type,
			priority,
			trigger_reason,
			recommended_action,
			alternatives,
			body_regions,
			corrective_steps,
			risk_snapshot,
			trend,
			confidence,
			triggered_at,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err = r.db.ExecContext(ctx,
		query,
		event.EventID,
		tenantID,
		event.SessionID,
		string(event.Type),
		event.Priority.String(),
		event.TriggerReason,
		event.RecommendedAction,
		alternatives,
		bodyRegions,
		correctiveSteps,
		riskSnapshot,
		string(event.Trend),
		event.Confidence,
		event.Timestamp,
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to create intervention event: %w", err)
	}

	return nil
}

// buildWhereClause 构建 WHERE 子句
func (r *InterventionsRepository) buildWhereClause(tenantID string, filters InterventionFilters, args *[]interface{}, argN *int) []string {
	where := []string{fmt.Sprintf("tenant_id = $%d", *argN)}
	*args = append(*args, tenantID)
	*argN++

	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("triggered_at >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("triggered_at <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}

	if filters.SessionID != nil {
		where = append(where, fmt.Sprintf("session_id = $%d", *argN))
		*args = append(*args, *filters.SessionID)
		*argN++
	}

	if filters.InterventionType != nil {
		where = append(where, fmt.Sprintf("intervention_type = $%d", *argN))
		*args = append(*args, *filters.InterventionType)
		*argN++
	}
	if len(filters.InterventionTypes) > 0 {
		placeholders := make([]string, len(filters.InterventionTypes))
		for i := range filters.InterventionTypes {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, filters.InterventionTypes[i])
			*argN++
		}
		where = append(where, fmt.Sprintf("intervention_type IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filters.Priority != nil {
		where = append(where, fmt.Sprintf("priority = $%d", *argN))
		*args = append(*args, *filters.Priority)
		*argN++
	}
	if filters.Trend != nil {
		where = append(where, fmt.Sprintf("trend = $%d", *argN))
		*args = append(*args, *filters.Trend)
		*argN++
	}

	return where
}

// ListInterventions 列表查询（支持多条件过滤、分页，按触发时间倒序）
func (r *InterventionsRepository) ListInterventions(ctx context.Context, tenantID string, filters InterventionFilters, page, size int) ([]*InterventionRecord, int, error) {
	if tenantID == "" {
		return []*InterventionRecord{}, 0, nil
	}

	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(tenantID, filters, &args, &argN)
	whereClause := "WHERE " + strings.Join(where, " AND ")

	queryCount := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM intervention_events
		%s
	`, whereClause)

	var total int
	err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count intervention events: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT
			event_id,
			tenant_id,
			session_id,
			intervention_type,
			priority,
			trigger_reason,
			recommended_action,
			alternatives,
			body_regions,
			corrective_steps,
			risk_snapshot,
			trend,
			confidence,
			triggered_at,
			created_at
		FROM intervention_events
		%s
		ORDER BY triggered_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, len(args)+1, len(args)+2)

	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query intervention events: %w", err)
	}
	defer rows.Close()

	records := []*InterventionRecord{}
	for rows.Next() {
		record, err := scanIntervention(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan intervention event: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate intervention events: %w", err)
	}

	return records, total, nil
}

// GetRecentIntervention 获取会话最近一条同类型干预（审计/去重查询）
func (r *InterventionsRepository) GetRecentIntervention(ctx context.Context, tenantID, sessionID, interventionType string, withinMinutes int) (*InterventionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if interventionType == "" {
		return nil, fmt.Errorf("intervention_type is required")
	}

	thresholdTime := time.Now().Add(-time.Duration(withinMinutes) * time.Minute)

	query := `
		SELECT
			event_id,
			tenant_id,
			session_id,
			intervention_type,
			priority,
			trigger_reason,
			recommended_action,
			alternatives,
			body_regions,
			corrective_steps,
			risk_snapshot,
			trend,
			confidence,
			triggered_at,
			created_at
		FROM intervention_events
		WHERE tenant_id = $1
		  AND session_id = $2
		  AND intervention_type = $3
		  AND triggered_at > $4
		ORDER BY triggered_at DESC
		LIMIT 1
	`

	record, err := scanIntervention(r.db.QueryRowContext(ctx, query, tenantID, sessionID, interventionType, thresholdTime))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 窗口内没有同类型干预
		}
		return nil, fmt.Errorf("failed to query recent intervention: %w", err)
	}

	return record, nil
}

// GetInterventionsBySession 获取会话的干预事件列表
func (r *InterventionsRepository) GetInterventionsBySession(ctx context.Context, tenantID, sessionID string, filters InterventionFilters, page, size int) ([]*InterventionRecord, int, error) {
	filters.SessionID = &sessionID
	return r.ListInterventions(ctx, tenantID, filters, page, size)
}

// CountInterventions 统计干预事件数量（按条件）
func (r *InterventionsRepository) CountInterventions(ctx context.Context, tenantID string, filters InterventionFilters) (int, error) {
	if tenantID == "" {
		return 0, nil
	}

	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(tenantID, filters, &args, &argN)

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM intervention_events
		WHERE %s
	`, strings.Join(where, " AND "))

	var total int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count intervention events: %w", err)
	}

	return total, nil
}

// scanIntervention 扫描一行干预事件记录
func scanIntervention(row rowScanner) (*InterventionRecord, error) {
	var record InterventionRecord
	var alternatives, bodyRegions, correctiveSteps, riskSnapshot []byte

	err := row.Scan(
		&record.EventID,
		&record.TenantID,
		&record.SessionID,
		&record.InterventionType,
		&record.Priority,
		&record.TriggerReason,
		&record.RecommendedAction,
		&alternatives,
		&bodyRegions,
		&correctiveSteps,
		&riskSnapshot,
		&record.Trend,
		&record.Confidence,
		&record.TriggeredAt,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(alternatives) > 0 {
		record.Alternatives = alternatives
	} else {
		record.Alternatives = json.RawMessage("[]")
	}
	if len(bodyRegions) > 0 {
		record.BodyRegions = bodyRegions
	} else {
		record.BodyRegions = json.RawMessage("[]")
	}
	if len(correctiveSteps) > 0 {
		record.CorrectiveSteps = correctiveSteps
	} else {
		record.CorrectiveSteps = json.RawMessage("[]")
	}
	if len(riskSnapshot) > 0 {
		record.RiskSnapshot = riskSnapshot
	} else {
		record.RiskSnapshot = json.RawMessage("{}")
	}

	return &record, nil
}
