package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"wisefido-motion-coach/internal/config"
	"wisefido-motion-coach/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheManager Redis 缓存管理器（会话实时教练快照）
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// snapshotKey 构建快照缓存键
func (c *CacheManager) snapshotKey(sessionID string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Coach.Cache.RealtimeKeyPrefix,
		sessionID,
		c.config.Coach.Cache.RealtimeSuffix,
	)
}

// GetSnapshot 从 Redis 读取会话实时快照
func (c *CacheManager) GetSnapshot(ctx context.Context, sessionID string) (*models.RealtimeSnapshot, error) {
	val, err := c.redisClient.Get(ctx, c.snapshotKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("snapshot not found for session: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	var snapshot models.RealtimeSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}

// UpdateSnapshot 更新会话实时快照（带 TTL，停止上报后自动过期）
func (c *CacheManager) UpdateSnapshot(ctx context.Context, snapshot *models.RealtimeSnapshot) error {
	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := c.snapshotKey(snapshot.SessionID)
	err = c.redisClient.Set(
		ctx,
		key,
		jsonData,
		time.Duration(c.config.Coach.Cache.RealtimeTTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set snapshot cache: %w", err)
	}

	c.logger.Debug("Updated realtime snapshot",
		zap.String("session_id", snapshot.SessionID),
		zap.String("key", key),
		zap.String("phase", string(snapshot.Phase)),
	)

	return nil
}

// GetActiveSessionIDs 扫描所有有实时快照的会话 ID
func (c *CacheManager) GetActiveSessionIDs(ctx context.Context) ([]string, error) {
	pattern := fmt.Sprintf("%s*%s",
		c.config.Coach.Cache.RealtimeKeyPrefix,
		c.config.Coach.Cache.RealtimeSuffix,
	)

	var sessionIDs []string
	iter := c.redisClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		// 去掉前缀和后缀得到 session_id
		sessionID := key[len(c.config.Coach.Cache.RealtimeKeyPrefix):]
		sessionID = sessionID[:len(sessionID)-len(c.config.Coach.Cache.RealtimeSuffix)]
		sessionIDs = append(sessionIDs, sessionID)
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	return sessionIDs, nil
}
