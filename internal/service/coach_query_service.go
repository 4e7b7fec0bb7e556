package service

import (
	"context"
	"fmt"
	"wisefido-motion-coach/internal/consumer"
	"wisefido-motion-coach/internal/engine"
	"wisefido-motion-coach/internal/models"
	"wisefido-motion-coach/internal/repository"

	"go.uber.org/zap"
)

// CoachQueryService 决策/干预查询服务层
// 职责：
// 1. 业务规则验证
// 2. 分页参数规范化
// 3. 业务编排（协调 Repository、引擎、实时快照）
type CoachQueryService struct {
	decisionsRepo     *repository.DecisionsRepository
	interventionsRepo *repository.InterventionsRepository
	cacheManager      *consumer.CacheManager
	engine            *engine.CoachEngine
	logger            *zap.Logger
}

// NewCoachQueryService 创建查询服务
func NewCoachQueryService(
	decisionsRepo *repository.DecisionsRepository,
	interventionsRepo *repository.InterventionsRepository,
	cacheManager *consumer.CacheManager,
	coachEngine *engine.CoachEngine,
	logger *zap.Logger,
) *CoachQueryService {
	return &CoachQueryService{
		decisionsRepo:     decisionsRepo,
		interventionsRepo: interventionsRepo,
		cacheManager:      cacheManager,
		engine:            coachEngine,
		logger:            logger,
	}
}

// normalizePagination 分页参数规范化
func normalizePagination(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20 // 默认每页 20 条
	}
	if size > 100 {
		size = 100 // 最大每页 100 条
	}
	return page, size
}

// ============================================
// 决策查询方法
// ============================================

// ListDecisions 查询决策列表（支持多条件过滤和分页）
// 业务规则：
// - tenant_id 必填
// - page 和 size 必须 > 0
func (s *CoachQueryService) ListDecisions(
	ctx context.Context,
	tenantID string,
	filters repository.DecisionFilters,
	page, size int,
) ([]*repository.DecisionRecord, int, error) {
	// 业务规则验证
	if tenantID == "" {
		return nil, 0, fmt.Errorf("tenant_id is required")
	}
	page, size = normalizePagination(page, size)

	// 调用 Repository
	records, total, err := s.decisionsRepo.ListDecisions(ctx, tenantID, filters, page, size)
	if err != nil {
		s.logger.Error("Failed to list decisions",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil, 0, fmt.Errorf("failed to list decisions: %w", err)
	}

	return records, total, nil
}

// GetDecision 获取单个决策
// 业务规则：
// - tenant_id 和 decision_id 必填
func (s *CoachQueryService) GetDecision(
	ctx context.Context,
	tenantID, decisionID string,
) (*repository.DecisionRecord, error) {
	// 业务规则验证
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if decisionID == "" {
		return nil, fmt.Errorf("decision_id is required")
	}

	// 调用 Repository
	record, err := s.decisionsRepo.GetDecision(ctx, tenantID, decisionID)
	if err != nil {
		s.logger.Error("Failed to get decision",
			zap.String("tenant_id", tenantID),
			zap.String("decision_id", decisionID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	return record, nil
}

// CountDecisions 统计决策数量
func (s *CoachQueryService) CountDecisions(
	ctx context.Context,
	tenantID string,
	filters repository.DecisionFilters,
) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenant_id is required")
	}

	count, err := s.decisionsRepo.CountDecisions(ctx, tenantID, filters)
	if err != nil {
		s.logger.Error("Failed to count decisions",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return 0, fmt.Errorf("failed to count decisions: %w", err)
	}

	return count, nil
}

// GetDecisionsBySession 根据会话ID获取决策列表
func (s *CoachQueryService) GetDecisionsBySession(
	ctx context.Context,
	tenantID, sessionID string,
	filters repository.DecisionFilters,
	page, size int,
) ([]*repository.DecisionRecord, int, error) {
	if sessionID == "" {
		return nil, 0, fmt.Errorf("session_id is required")
	}
	filters.SessionID = &sessionID
	return s.ListDecisions(ctx, tenantID, filters, page, size)
}

// ============================================
// 反馈回写方法
// ============================================

// SubmitFeedback 提交决策反馈（持久化并回灌引擎）
// 业务规则：
// - tenant_id 和 decision_id 必填
// - effectiveness 必须在 [0, 1] 区间
// - 反馈同时写入数据库和运行中的引擎（调整后续决策置信度）
func (s *CoachQueryService) SubmitFeedback(
	ctx context.Context,
	tenantID string,
	feedback models.DecisionFeedback,
) error {
	// 业务规则验证
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if feedback.DecisionID == "" {
		return fmt.Errorf("decision_id is required")
	}
	if feedback.Effectiveness < 0 || feedback.Effectiveness > 1 {
		return fmt.Errorf("effectiveness must be in [0, 1], got %f", feedback.Effectiveness)
	}

	// 调用 Repository
	if err := s.decisionsRepo.UpdateDecisionFeedback(ctx, tenantID, feedback); err != nil {
		s.logger.Error("Failed to update decision feedback",
			zap.String("tenant_id", tenantID),
			zap.String("decision_id", feedback.DecisionID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to update decision feedback: %w", err)
	}

	// 回灌运行中的引擎（决策可能已滑出近期窗口，不算失败）
	if s.engine != nil {
		if !s.engine.UpdateFeedback(feedback) {
			s.logger.Debug("Decision not in recent window, feedback persisted only",
				zap.String("decision_id", feedback.DecisionID),
			)
		}
	}

	s.logger.Info("Decision feedback submitted",
		zap.String("tenant_id", tenantID),
		zap.String("decision_id", feedback.DecisionID),
		zap.Float64("effectiveness", feedback.Effectiveness),
	)

	return nil
}

// ============================================
// 干预事件查询方法
// ============================================

// ListInterventions 查询干预事件列表
func (s *CoachQueryService) ListInterventions(
	ctx context.Context,
	tenantID string,
	filters repository.InterventionFilters,
	page, size int,
) ([]*repository.InterventionRecord, int, error) {
	if tenantID == "" {
		return nil, 0, fmt.Errorf("tenant_id is required")
	}
	page, size = normalizePagination(page, size)

	records, total, err := s.interventionsRepo.ListInterventions(ctx, tenantID, filters, page, size)
	if err != nil {
		s.logger.Error("Failed to list interventions",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil, 0, fmt.Errorf("failed to list interventions: %w", err)
	}

	return records, total, nil
}

// GetInterventionsBySession 根据会话ID获取干预事件列表
func (s *CoachQueryService) GetInterventionsBySession(
	ctx context.Context,
	tenantID, sessionID string,
	filters repository.InterventionFilters,
	page, size int,
) ([]*repository.InterventionRecord, int, error) {
	if sessionID == "" {
		return nil, 0, fmt.Errorf("session_id is required")
	}
	filters.SessionID = &sessionID
	return s.ListInterventions(ctx, tenantID, filters, page, size)
}

// CountInterventions 统计干预事件数量
func (s *CoachQueryService) CountInterventions(
	ctx context.Context,
	tenantID string,
	filters repository.InterventionFilters,
) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenant_id is required")
	}

	count, err := s.interventionsRepo.CountInterventions(ctx, tenantID, filters)
	if err != nil {
		s.logger.Error("Failed to count interventions",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return 0, fmt.Errorf("failed to count interventions: %w", err)
	}

	return count, nil
}

// ============================================
// 实时状态查询方法
// ============================================

// GetRealtimeSnapshot 获取会话实时快照（Redis 缓存）
func (s *CoachQueryService) GetRealtimeSnapshot(
	ctx context.Context,
	sessionID string,
) (*models.RealtimeSnapshot, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	snapshot, err := s.cacheManager.GetSnapshot(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get realtime snapshot: %w", err)
	}

	return snapshot, nil
}

// GetEngineMetrics 获取引擎运行指标
func (s *CoachQueryService) GetEngineMetrics() models.SystemMetrics {
	return s.engine.GetMetrics()
}
