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

// 用户状态键的 TTL：App 端持续刷新，过期即回落到默认状态
const userStateTTL = 10 * time.Minute

// StateManager 会话状态管理器
//
// 用户自述状态（情绪/精力/专注度/偏好）由 App 端异步写入 Redis，
// 管线每帧读取最新值；读不到时使用中性默认值，不阻塞处理
type StateManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewStateManager 创建状态管理器
func NewStateManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *StateManager {
	return &StateManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// GetStateKey 构建状态键
func (s *StateManager) GetStateKey(sessionID, stateType string) string {
	return fmt.Sprintf("%s%s:%s",
		s.config.Coach.Cache.StateKeyPrefix,
		sessionID,
		stateType,
	)
}

// SetState 设置状态（带 TTL）
func (s *StateManager) SetState(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	err = s.redisClient.Set(ctx, key, jsonData, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set state: %w", err)
	}

	return nil
}

// GetState 获取状态
func (s *StateManager) GetState(ctx context.Context, key string, dest interface{}) error {
	val, err := s.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("state not found: %s", key)
		}
		return fmt.Errorf("failed to get state: %w", err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return nil
}

// DeleteState 删除状态
func (s *StateManager) DeleteState(ctx context.Context, key string) error {
	err := s.redisClient.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// ExistsState 检查状态是否存在
func (s *StateManager) ExistsState(ctx context.Context, key string) (bool, error) {
	count, err := s.redisClient.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check state existence: %w", err)
	}
	return count > 0, nil
}

// SaveUserState 写入用户自述状态
func (s *StateManager) SaveUserState(ctx context.Context, sessionID string, state models.UserState) error {
	key := s.GetStateKey(sessionID, "user")
	return s.SetState(ctx, key, state, userStateTTL)
}

// LoadUserState 读取用户自述状态
//
// 状态缺失或读取失败时返回中性默认值，管线不因此停顿
func (s *StateManager) LoadUserState(ctx context.Context, sessionID string) models.UserState {
	key := s.GetStateKey(sessionID, "user")

	var state models.UserState
	if err := s.GetState(ctx, key, &state); err != nil {
		s.logger.Debug("User state not available, using defaults",
			zap.String("session_id", sessionID),
		)
		return models.UserState{Mood: 0.5, Energy: 0.5, Focus: 0.5}
	}
	return state
}

// SessionState 会话生命周期状态
type SessionState struct {
	SessionID         string `json:"session_id"`
	DeviceID          string `json:"device_id,omitempty"`
	StartedAt         int64  `json:"started_at"`
	LastObservationAt int64  `json:"last_observation_at"`
}

// TouchSession 更新会话的最近观测时间（首次观测时建立会话状态）
func (s *StateManager) TouchSession(ctx context.Context, sessionID, deviceID string, ts time.Time) error {
	key := s.GetStateKey(sessionID, "session")

	var state SessionState
	if err := s.GetState(ctx, key, &state); err != nil {
		state = SessionState{
			SessionID: sessionID,
			DeviceID:  deviceID,
			StartedAt: ts.Unix(),
		}
	}
	state.LastObservationAt = ts.Unix()

	return s.SetState(ctx, key, state, userStateTTL)
}

// GetSessionState 读取会话生命周期状态
func (s *StateManager) GetSessionState(ctx context.Context, sessionID string) (*SessionState, error) {
	key := s.GetStateKey(sessionID, "session")

	var state SessionState
	if err := s.GetState(ctx, key, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
