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

// DecisionRecord coach_decisions 表的一行
//
// 决策的结构化明细（内容/动作/推理链）以 JSONB 持久化，
// 查询侧常用的字段单独成列
type DecisionRecord struct {
	DecisionID       string          `json:"decision_id"`
	TenantID         string          `json:"tenant_id"`
	SessionID        string          `json:"session_id"`
	DecisionType     string          `json:"decision_type"`
	Priority         string          `json:"priority"`
	PrimaryMessage   string          `json:"primary_message"`
	Confidence       float64         `json:"confidence"`
	LatencyMs        float64         `json:"latency_ms"`
	Content          json.RawMessage `json:"content"`
	Actions          json.RawMessage `json:"actions"`
	Reasoning        json.RawMessage `json:"reasoning"`
	Effectiveness    *float64        `json:"effectiveness,omitempty"`
	UserResponse     *string         `json:"user_response,omitempty"`
	TimeToResponseMs *float64        `json:"time_to_response_ms,omitempty"`
	FeedbackAt       *time.Time      `json:"feedback_at,omitempty"`
	TriggeredAt      time.Time       `json:"triggered_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

// DecisionsRepository 教练决策仓库
type DecisionsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDecisionsRepository 创建决策仓库
func NewDecisionsRepository(db *sql.DB, logger *zap.Logger) *DecisionsRepository {
	return &DecisionsRepository{
		db:     db,
		logger: logger,
	}
}

// DecisionFilters 决策查询过滤条件
type DecisionFilters struct {
	// 时间段过滤
	StartTime *time.Time // triggered_at >= StartTime
	EndTime   *time.Time // triggered_at <= EndTime

	// 会话过滤
	SessionID *string

	// 类型和优先级过滤
	DecisionType *string
	Priority     *string
	Priorities   []string // 优先级列表（IN 查询）

	// 反馈过滤
	HasFeedback *bool // true 只查已回传反馈的决策
}

// recordFromDecision 把管线决策转换为持久化记录
func recordFromDecision(tenantID string, d *models.Decision) (*DecisionRecord, error) {
	content, err := json.Marshal(d.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}
	actions, err := json.Marshal(d.Actions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal actions: %w", err)
	}
	reasoning, err := json.Marshal(d.Reasoning)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reasoning: %w", err)
	}

	return &DecisionRecord{
		DecisionID:     d.DecisionID,
		TenantID:       tenantID,
		SessionID:      d.SessionID,
		DecisionType:   string(d.Type),
		Priority:       d.Priority.String(),
		PrimaryMessage: d.Content.PrimaryMessage,
		Confidence:     d.Confidence,
		LatencyMs:      d.LatencyMs,
		Content:        content,
		Actions:        actions,
		Reasoning:      reasoning,
		TriggeredAt:    d.Timestamp,
		CreatedAt:      time.Now(),
	}, nil
}

// CreateDecision 持久化一条决策（需验证 tenant_id）
func (r *DecisionsRepository) CreateDecision(ctx context.Context, tenantID string, decision *models.Decision) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if decision == nil {
		return fmt.Errorf("decision is required")
	}

	record, err := recordFromDecision(tenantID, decision)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO coach_decisions (
			decision_id,
			tenant_id,
			session_id,
			decision_type,
			priority,
			primary_message,
			confidence,
			latency_ms,
			content,
			actions,
			reasoning,
			triggered_at,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err = r.db.ExecContext(ctx,
		query,
		record.DecisionID,
		record.TenantID,
		record.SessionID,
		record.DecisionType,
		record.Priority,
		record.PrimaryMessage,
		record.Confidence,
		record.LatencyMs,
		record.Content,
		record.Actions,
		record.Reasoning,
		record.TriggeredAt,
		record.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create decision: %w", err)
	}

	return nil
}

// GetDecision 根据 decision_id 获取单条决策（需验证 tenant_id）
func (r *DecisionsRepository) GetDecision(ctx context.Context, tenantID, decisionID string) (*DecisionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if decisionID == "" {
		return nil, fmt.Errorf("decision_id is required")
	}

	query := `
		SELECT
			decision_id,
			tenant_id,
			session_id,
			decision_type,
			priority,
			primary_message,
			confidence,
			latency_ms,
			content,
			actions,
			reasoning,
			effectiveness,
			user_response,
			time_to_response_ms,
			feedback_at,
			triggered_at,
			created_at
		FROM coach_decisions
		WHERE decision_id = $1
		  AND tenant_id = $2
	`

	record, err := r.scanDecision(r.db.QueryRowContext(ctx, query, decisionID, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("decision not found: decision_id=%s, tenant_id=%s", decisionID, tenantID)
		}
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	return record, nil
}

// buildWhereClause 构建 WHERE 子句
func (r *DecisionsRepository) buildWhereClause(tenantID string, filters DecisionFilters, args *[]interface{}, argN *int) []string {
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

	if filters.DecisionType != nil {
		where = append(where, fmt.Sprintf("decision_type = $%d", *argN))
		*args = append(*args, *filters.DecisionType)
		*argN++
	}
	if filters.Priority != nil {
		where = append(where, fmt.Sprintf("priority = $%d", *argN))
		*args = append(*args, *filters.Priority)
		*argN++
	}
	if len(filters.Priorities) > 0 {
		placeholders := make([]string, len(filters.Priorities))
		for i := range filters.Priorities {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, filters.Priorities[i])
			*argN++
		}
		where = append(where, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filters.HasFeedback != nil {
		if *filters.HasFeedback {
			where = append(where, "effectiveness IS NOT NULL")
		} else {
			where = append(where, "effectiveness IS NULL")
		}
	}

	return where
}

// ListDecisions 列表查询（支持多条件过滤、分页，按触发时间倒序）
func (r *DecisionsRepository) ListDecisions(ctx context.Context, tenantID string, filters DecisionFilters, page, size int) ([]*DecisionRecord, int, error) {
	if tenantID == "" {
		return []*DecisionRecord{}, 0, nil
	}

	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(tenantID, filters, &args, &argN)
	whereClause := "WHERE " + strings.Join(where, " AND ")

	queryCount := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM coach_decisions
		%s
	`, whereClause)

	var total int
	err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count decisions: %w", err)
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
			decision_id,
			tenant_id,
			session_id,
			decision_type,
			priority,
			primary_message,
			confidence,
			latency_ms,
			content,
			actions,
			reasoning,
			effectiveness,
			user_response,
			time_to_response_ms,
			feedback_at,
			triggered_at,
			created_at
		FROM coach_decisions
		%s
		ORDER BY triggered_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, len(args)+1, len(args)+2)

	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	records := []*DecisionRecord{}
	for rows.Next() {
		record, err := r.scanDecision(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan decision: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate decisions: %w", err)
	}

	return records, total, nil
}

// UpdateDecisionFeedback 回写决策效果反馈（需验证 tenant_id）
func (r *DecisionsRepository) UpdateDecisionFeedback(ctx context.Context, tenantID string, feedback models.DecisionFeedback) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if feedback.DecisionID == "" {
		return fmt.Errorf("decision_id is required")
	}
	if feedback.Effectiveness < 0 || feedback.Effectiveness > 1 {
		return fmt.Errorf("effectiveness must be in [0, 1]: %f", feedback.Effectiveness)
	}

	query := `
		UPDATE coach_decisions
		SET effectiveness = $1,
		    user_response = $2,
		    time_to_response_ms = $3,
		    feedback_at = CURRENT_TIMESTAMP
		WHERE decision_id = $4
		  AND tenant_id = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		feedback.Effectiveness,
		feedback.UserResponse,
		float64(feedback.TimeToResponse.Milliseconds()),
		feedback.DecisionID,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update decision feedback: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("decision not found: decision_id=%s, tenant_id=%s", feedback.DecisionID, tenantID)
	}

	return nil
}

// CountDecisions 统计决策数量（按条件）
func (r *DecisionsRepository) CountDecisions(ctx context.Context, tenantID string, filters DecisionFilters) (int, error) {
	if tenantID == "" {
		return 0, nil
	}

	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(tenantID, filters, &args, &argN)

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM coach_decisions
		WHERE %s
	`, strings.Join(where, " AND "))

	var total int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count decisions: %w", err)
	}

	return total, nil
}

// GetDecisionsBySession 获取会话的决策列表
func (r *DecisionsRepository) GetDecisionsBySession(ctx context.Context, tenantID, sessionID string, filters DecisionFilters, page, size int) ([]*DecisionRecord, int, error) {
	filters.SessionID = &sessionID
	return r.ListDecisions(ctx, tenantID, filters, page, size)
}

// rowScanner QueryRow 和 Rows 的公共 Scan 接口
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanDecision 扫描一行决策记录
func (r *DecisionsRepository) scanDecision(row rowScanner) (*DecisionRecord, error) {
	var record DecisionRecord
	var effectiveness sql.NullFloat64
	var userResponse sql.NullString
	var timeToResponseMs sql.NullFloat64
	var feedbackAt sql.NullTime
	var content, actions, reasoning []byte

	err := row.Scan(
		&record.DecisionID,
		&record.TenantID,
		&record.SessionID,
		&record.DecisionType,
		&record.Priority,
		&record.PrimaryMessage,
		&record.Confidence,
		&record.LatencyMs,
		&content,
		&actions,
		&reasoning,
		&effectiveness,
		&userResponse,
		&timeToResponseMs,
		&feedbackAt,
		&record.TriggeredAt,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if effectiveness.Valid {
		record.Effectiveness = &effectiveness.Float64
	}
	if userResponse.Valid {
		record.UserResponse = &userResponse.String
	}
	if timeToResponseMs.Valid {
		record.TimeToResponseMs = &timeToResponseMs.Float64
	}
	if feedbackAt.Valid {
		record.FeedbackAt = &feedbackAt.Time
	}

	if len(content) > 0 {
		record.Content = content
	} else {
		record.Content = json.RawMessage("{}")
	}
	if len(actions) > 0 {
		record.Actions = actions
	} else {
		record.Actions = json.RawMessage("[]")
	}
	if len(reasoning) > 0 {
		record.Reasoning = reasoning
	} else {
		record.Reasoning = json.RawMessage("{}")
	}

	return &record, nil
}
