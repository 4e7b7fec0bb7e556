package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"wisefido-motion-coach/internal/config"
	"wisefido-motion-coach/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 发射流的近似截断长度（防止无人消费时无限增长）
const streamMaxLen = 10000

// StreamPublisher 决策/干预发射流发布器
type StreamPublisher struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewStreamPublisher 创建发布器
func NewStreamPublisher(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *StreamPublisher {
	return &StreamPublisher{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishObservation 将姿态观测写入姿态流（MQTT 桥接等入口使用）
func (p *StreamPublisher) PublishObservation(ctx context.Context, obs *models.PoseObservation) error {
	return p.publish(ctx, p.config.Coach.Streams.PoseStream, "observation", obs)
}

// PublishDecision 将决策写入决策发射流
func (p *StreamPublisher) PublishDecision(ctx context.Context, decision *models.Decision) error {
	if err := p.publish(ctx, p.config.Coach.Streams.DecisionStream, "decision", decision); err != nil {
		return err
	}
	p.logger.Debug("Decision published",
		zap.String("decision_id", decision.DecisionID),
		zap.String("type", string(decision.Type)),
		zap.String("priority", decision.Priority.String()),
	)
	return nil
}

// PublishIntervention 将干预事件写入干预发射流
func (p *StreamPublisher) PublishIntervention(ctx context.Context, event *models.InterventionEvent) error {
	if err := p.publish(ctx, p.config.Coach.Streams.InterventionStream, "intervention", event); err != nil {
		return err
	}
	p.logger.Debug("Intervention published",
		zap.String("event_id", event.EventID),
		zap.String("type", string(event.Type)),
	)
	return nil
}

// PublishPriorityDecision 将高优先级决策写入紧急投递流
//
// 二级处理通道：下游投递服务优先消费该流做升级投递（推送/振动），
// 普通决策流仍然收到同一条决策
func (p *StreamPublisher) PublishPriorityDecision(ctx context.Context, decision *models.Decision) error {
	if err := p.publish(ctx, p.config.Coach.Streams.PriorityStream, "decision", decision); err != nil {
		return err
	}
	p.logger.Debug("Priority decision published",
		zap.String("decision_id", decision.DecisionID),
		zap.String("priority", decision.Priority.String()),
	)
	return nil
}

// publish 序列化并 XADD（带近似截断）
func (p *StreamPublisher) publish(ctx context.Context, stream, field string, value interface{}) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", field, err)
	}

	err = p.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{field: string(jsonData)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}

	return nil
}
