package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
	"wisefido-motion-coach/internal/config"
	"wisefido-motion-coach/internal/consumer"
	"wisefido-motion-coach/internal/engine"
	"wisefido-motion-coach/internal/models"
	"wisefido-motion-coach/internal/repository"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// CoachService 运动教练服务（整合各层）
//
// 数据通路：
//
//	MQTT/Streams 姿态帧 → StreamConsumer → CoachEngine →
//	决策/干预通道 → 发射泵 → Streams 发布 + PostgreSQL 持久化 + 实时快照
type CoachService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
	tenantID    string

	// 各层组件
	cacheManager      *consumer.CacheManager
	stateManager      *consumer.StateManager
	streamConsumer    *consumer.StreamConsumer
	streamPublisher   *consumer.StreamPublisher
	mqttSource        *consumer.MQTTSource
	decisionsRepo     *repository.DecisionsRepository
	interventionsRepo *repository.InterventionsRepository
	sessionsRepo      *repository.SessionsRepository
	engine            *engine.CoachEngine

	wg sync.WaitGroup
}

// NewCoachService 创建教练服务
func NewCoachService(cfg *config.Config, logger *zap.Logger, tenantID string) (*CoachService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 创建 Repository 层
	decisionsRepo := repository.NewDecisionsRepository(db, logger)
	interventionsRepo := repository.NewInterventionsRepository(db, logger)
	sessionsRepo := repository.NewSessionsRepository(db, logger)

	// 4. 创建 Consumer 层
	cacheManager := consumer.NewCacheManager(cfg, redisClient, logger)
	stateManager := consumer.NewStateManager(cfg, redisClient, logger)
	streamPublisher := consumer.NewStreamPublisher(cfg, redisClient, logger)
	streamConsumer := consumer.NewStreamConsumer(cfg, redisClient, stateManager, logger, cfg.MQTT.ClientID)

	// 5. 创建决策引擎
	coachEngine := engine.NewCoachEngine(cfg, logger)

	svc := &CoachService{
		config:            cfg,
		db:                db,
		redisClient:       redisClient,
		logger:            logger,
		tenantID:          tenantID,
		cacheManager:      cacheManager,
		stateManager:      stateManager,
		streamConsumer:    streamConsumer,
		streamPublisher:   streamPublisher,
		decisionsRepo:     decisionsRepo,
		interventionsRepo: interventionsRepo,
		sessionsRepo:      sessionsRepo,
		engine:            coachEngine,
	}

	// 6. 可选的 MQTT 姿态入口
	if cfg.MQTT.Enabled {
		svc.mqttSource = consumer.NewMQTTSource(cfg, streamPublisher, logger)
	}

	return svc, nil
}

// Engine 决策引擎（查询服务和指标接口使用）
func (s *CoachService) Engine() *engine.CoachEngine {
	return s.engine
}

// Start 启动服务（阻塞直到 ctx 取消）
func (s *CoachService) Start(ctx context.Context) error {
	s.logger.Info("Starting motion coach service",
		zap.String("tenant_id", s.tenantID),
		zap.String("pose_stream", s.config.Coach.Streams.PoseStream),
		zap.Bool("mqtt_enabled", s.config.MQTT.Enabled),
	)

	// 发射泵：决策/干预通道 → 发布 + 持久化 + 快照；
	// 二级队列 → 升级投递流
	s.wg.Add(3)
	go s.pumpDecisions(ctx)
	go s.pumpInterventions(ctx)
	go s.pumpSecondary(ctx)

	// 可选的 MQTT 姿态入口
	if s.mqttSource != nil {
		if err := s.mqttSource.Start(ctx); err != nil {
			return fmt.Errorf("failed to start mqtt source: %w", err)
		}
	}

	// 姿态流消费（阻塞）
	if err := s.streamConsumer.Start(ctx, s.engine); err != nil {
		return fmt.Errorf("failed to start stream consumer: %w", err)
	}

	return nil
}

// Stop 停止服务
func (s *CoachService) Stop() error {
	s.logger.Info("Stopping motion coach service")

	// 等待发射泵排空
	s.wg.Wait()

	if s.mqttSource != nil {
		s.mqttSource.Stop()
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}

// EndSession 结束会话：捕获引擎摘要并持久化
// 业务规则：
// - 引擎有观测在途时拒绝（返回错误，不做任何修改）
// - 实时快照靠 TTL 自然过期，不主动删除
func (s *CoachService) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	summary, ok := s.engine.EndSession(sessionID)
	if !ok {
		return fmt.Errorf("cannot end session while observation in flight")
	}

	if err := s.sessionsRepo.UpsertSessionSummary(ctx, s.tenantID, summary); err != nil {
		s.logger.Error("Failed to persist session summary",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to persist session summary: %w", err)
	}

	s.logger.Info("Session ended",
		zap.String("session_id", sessionID),
		zap.Int64("observation_count", summary.ObservationCount),
		zap.Int64("decision_count", summary.DecisionCount),
		zap.Int64("intervention_count", summary.InterventionCount),
	)

	return nil
}

// pumpDecisions 消费决策通道：发布到 Streams、持久化、更新实时快照
func (s *CoachService) pumpDecisions(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case decision := <-s.engine.Decisions():
			if err := s.streamPublisher.PublishDecision(ctx, decision); err != nil {
				s.logger.Error("Failed to publish decision",
					zap.String("decision_id", decision.DecisionID),
					zap.Error(err),
				)
			}

			if err := s.decisionsRepo.CreateDecision(ctx, s.tenantID, decision); err != nil {
				s.logger.Error("Failed to persist decision",
					zap.String("decision_id", decision.DecisionID),
					zap.Error(err),
				)
			}

			s.updateSnapshot(ctx, decision)
		}
	}
}

// pumpInterventions 消费干预通道：发布到 Streams、持久化
func (s *CoachService) pumpInterventions(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.engine.Interventions():
			if err := s.streamPublisher.PublishIntervention(ctx, event); err != nil {
				s.logger.Error("Failed to publish intervention",
					zap.String("event_id", event.EventID),
					zap.Error(err),
				)
			}

			if err := s.interventionsRepo.CreateIntervention(ctx, s.tenantID, event); err != nil {
				s.logger.Error("Failed to persist intervention",
					zap.String("event_id", event.EventID),
					zap.Error(err),
				)
			}
		}
	}
}

// pumpSecondary 排空引擎的高优先级二级队列 → 升级投递流
//
// 队列容量 10、只收 High 及以上，短周期轮询足以跟上产生速率
func (s *CoachService) pumpSecondary(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				decision := s.engine.DequeueSecondary()
				if decision == nil {
					break
				}
				if err := s.streamPublisher.PublishPriorityDecision(ctx, decision); err != nil {
					s.logger.Error("Failed to publish priority decision",
						zap.String("decision_id", decision.DecisionID),
						zap.Error(err),
					)
				}
			}
		}
	}
}

// updateSnapshot 从最新决策刷新会话实时快照
func (s *CoachService) updateSnapshot(ctx context.Context, decision *models.Decision) {
	metrics := s.engine.GetMetrics()

	snapshot := &models.RealtimeSnapshot{
		SessionID:     decision.SessionID,
		Phase:         decision.Context.Workout.Phase,
		Intensity:     decision.Context.Workout.Intensity,
		Risk:          decision.Context.Risk,
		Trend:         models.TrendUnknown,
		ActiveModes:   metrics.ActiveModes,
		DecisionCount: metrics.TotalDecisions,
		LastDecision:  decision.Content.PrimaryMessage,
		UpdatedAt:     time.Now(),
	}

	if history := s.engine.InterventionHistory(); len(history) > 0 {
		snapshot.Trend = history[len(history)-1].Trend
	}

	if err := s.cacheManager.UpdateSnapshot(ctx, snapshot); err != nil {
		s.logger.Error("Failed to update realtime snapshot",
			zap.String("session_id", decision.SessionID),
			zap.Error(err),
		)
	}
}
