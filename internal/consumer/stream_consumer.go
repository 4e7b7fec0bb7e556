package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"wisefido-motion-coach/internal/config"
	"wisefido-motion-coach/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Processor 姿态观测处理器接口（决策引擎实现）
type Processor interface {
	// Process 处理一帧观测；实现方自己负责丢帧，不返回错误
	Process(ctx context.Context, obs *models.PoseObservation, user models.UserState)
}

// StreamConsumer 姿态观测流消费者
//
// 通过消费者组从 Redis Streams 读取姿态帧，
// 解码后附带最新用户状态交给决策引擎，逐条 ACK。
// 解码失败的消息 ACK 后跳过，不阻塞后续帧
type StreamConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	states      *StateManager
	logger      *zap.Logger
	consumerID  string
}

// NewStreamConsumer 创建姿态流消费者
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	states *StateManager,
	logger *zap.Logger,
	consumerID string,
) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		states:      states,
		logger:      logger,
		consumerID:  consumerID,
	}
}

// ensureGroup 创建消费者组（组已存在时忽略）
func (c *StreamConsumer) ensureGroup(ctx context.Context) error {
	stream := c.config.Coach.Streams.PoseStream
	group := c.config.Coach.Streams.ConsumerGroup

	err := c.redisClient.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}

// Start 启动消费循环（阻塞直到 ctx 取消）
func (c *StreamConsumer) Start(ctx context.Context, processor Processor) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info("Pose stream consumer started",
		zap.String("stream", c.config.Coach.Streams.PoseStream),
		zap.String("group", c.config.Coach.Streams.ConsumerGroup),
		zap.String("consumer", c.consumerID),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Pose stream consumer stopped")
			return nil
		default:
		}

		if err := c.readBatch(ctx, processor); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Pose stream consumer stopped")
				return nil
			}
			c.logger.Error("Failed to read pose stream",
				zap.Error(err),
			)
			// 短暂退避后继续，不中断
			time.Sleep(time.Second)
		}
	}
}

// readBatch 读取并处理一批消息
func (c *StreamConsumer) readBatch(ctx context.Context, processor Processor) error {
	streams, err := c.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.Coach.Streams.ConsumerGroup,
		Consumer: c.consumerID,
		Streams:  []string{c.config.Coach.Streams.PoseStream, ">"},
		Count:    c.config.Coach.Streams.BatchSize,
		Block:    time.Second * 5,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			// 阻塞窗口内无新消息
			return nil
		}
		return err
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			c.handleMessage(ctx, processor, msg)
			if err := c.redisClient.XAck(ctx,
				c.config.Coach.Streams.PoseStream,
				c.config.Coach.Streams.ConsumerGroup,
				msg.ID,
			).Err(); err != nil {
				c.logger.Error("Failed to ack message",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
		}
	}

	return nil
}

// handleMessage 解码单条消息并交给处理器
func (c *StreamConsumer) handleMessage(ctx context.Context, processor Processor, msg redis.XMessage) {
	payload, ok := msg.Values["observation"].(string)
	if !ok {
		c.logger.Warn("Pose message missing observation field",
			zap.String("message_id", msg.ID),
		)
		return
	}

	var obs models.PoseObservation
	if err := json.Unmarshal([]byte(payload), &obs); err != nil {
		c.logger.Warn("Failed to unmarshal pose observation",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}

	if !obs.Valid() {
		c.logger.Debug("Invalid pose observation skipped",
			zap.String("message_id", msg.ID),
			zap.String("session_id", obs.SessionID),
			zap.Int("landmark_count", len(obs.Landmarks)),
		)
		return
	}

	if err := c.states.TouchSession(ctx, obs.SessionID, obs.DeviceID, obs.Timestamp); err != nil {
		c.logger.Debug("Failed to touch session state",
			zap.String("session_id", obs.SessionID),
			zap.Error(err),
		)
	}

	user := c.states.LoadUserState(ctx, obs.SessionID)
	processor.Process(ctx, &obs, user)
}
