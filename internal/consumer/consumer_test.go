package consumer

import (
	"context"
	"testing"
	"time"

	"wisefido-motion-coach/internal/config"
	"wisefido-motion-coach/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*config.Config, *redis.Client) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg, err := config.Load()
	require.NoError(t, err)

	return cfg, redisClient
}

func TestCacheManager_SnapshotRoundTrip(t *testing.T) {
	cfg, redisClient := setupTestRedis(t)
	cacheManager := NewCacheManager(cfg, redisClient, zap.NewNop())

	ctx := context.Background()
	snapshot := &models.RealtimeSnapshot{
		SessionID:     "session-123",
		Phase:         models.PhaseMain,
		Intensity:     0.65,
		Trend:         models.TrendStable,
		ActiveModes:   "normal",
		DecisionCount: 4,
		LastDecision:  "Check your form",
		UpdatedAt:     time.Now(),
	}

	err := cacheManager.UpdateSnapshot(ctx, snapshot)
	require.NoError(t, err)

	got, err := cacheManager.GetSnapshot(ctx, "session-123")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseMain, got.Phase)
	assert.Equal(t, 0.65, got.Intensity)
	assert.Equal(t, int64(4), got.DecisionCount)
	assert.Equal(t, "Check your form", got.LastDecision)
}

func TestCacheManager_GetSnapshot_NotFound(t *testing.T) {
	cfg, redisClient := setupTestRedis(t)
	cacheManager := NewCacheManager(cfg, redisClient, zap.NewNop())

	_, err := cacheManager.GetSnapshot(context.Background(), "session-not-exist")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot not found")
}

func TestCacheManager_GetActiveSessionIDs(t *testing.T) {
	cfg, redisClient := setupTestRedis(t)
	cacheManager := NewCacheManager(cfg, redisClient, zap.NewNop())

	ctx := context.Background()
	for _, id := range []string{"s1", "s2"} {
		err := cacheManager.UpdateSnapshot(ctx, &models.RealtimeSnapshot{SessionID: id})
		require.NoError(t, err)
	}

	ids, err := cacheManager.GetActiveSessionIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, ids)
}

func TestStateManager_UserStateRoundTrip(t *testing.T) {
	cfg, redisClient := setupTestRedis(t)
	stateManager := NewStateManager(cfg, redisClient, zap.NewNop())

	ctx := context.Background()
	state := models.UserState{
		Mood:   0.8,
		Energy: 0.4,
		Focus:  0.9,
		Preferences: models.UserPreferences{
			ProactiveCoaching:  true,
			PreferredIntensity: "high",
		},
	}

	err := stateManager.SaveUserState(ctx, "session-123", state)
	require.NoError(t, err)

	got := stateManager.LoadUserState(ctx, "session-123")
	assert.Equal(t, 0.4, got.Energy)
	assert.True(t, got.Preferences.ProactiveCoaching)
	assert.Equal(t, "high", got.Preferences.PreferredIntensity)
}

func TestStateManager_LoadUserState_DefaultsWhenMissing(t *testing.T) {
	cfg, redisClient := setupTestRedis(t)
	stateManager := NewStateManager(cfg, redisClient, zap.NewNop())

	got := stateManager.LoadUserState(context.Background(), "session-unknown")

	// 状态缺失时回落到中性默认值
	assert.Equal(t, 0.5, got.Mood)
	assert.Equal(t, 0.5, got.Energy)
	assert.Equal(t, 0.5, got.Focus)
}

func TestStateManager_TouchSession(t *testing.T) {
	cfg, redisClient := setupTestRedis(t)
	stateManager := NewStateManager(cfg, redisClient, zap.NewNop())

	ctx := context.Background()
	t0 := time.Now()

	err := stateManager.TouchSession(ctx, "session-123", "cam-7", t0)
	require.NoError(t, err)

	// 第二次 touch 保留 StartedAt，只推进 LastObservationAt
	err = stateManager.TouchSession(ctx, "session-123", "cam-7", t0.Add(time.Minute))
	require.NoError(t, err)

	state, err := stateManager.GetSessionState(ctx, "session-123")
	require.NoError(t, err)
	assert.Equal(t, "cam-7", state.DeviceID)
	assert.Equal(t, t0.Unix(), state.StartedAt)
	assert.Equal(t, t0.Add(time.Minute).Unix(), state.LastObservationAt)
}

func TestStateManager_ExistsState(t *testing.T) {
	cfg, redisClient := setupTestRedis(t)
	stateManager := NewStateManager(cfg, redisClient, zap.NewNop())

	ctx := context.Background()
	key := stateManager.GetStateKey("session-123", "user")

	exists, err := stateManager.ExistsState(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	err = stateManager.SetState(ctx, key, map[string]string{"test": "value"}, time.Minute)
	require.NoError(t, err)

	exists, err = stateManager.ExistsState(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStreamPublisher_PublishDecision(t *testing.T) {
	cfg, redisClient := setupTestRedis(t)
	publisher := NewStreamPublisher(cfg, redisClient, zap.NewNop())

	ctx := context.Background()
	decision := &models.Decision{
		DecisionID: "d-1",
		SessionID:  "session-123",
		Type:       models.DecisionSafety,
		Priority:   models.PriorityCritical,
	}

	err := publisher.PublishDecision(ctx, decision)
	require.NoError(t, err)

	count, err := redisClient.XLen(ctx, cfg.Coach.Streams.DecisionStream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStreamPublisher_PublishIntervention(t *testing.T) {
	cfg, redisClient := setupTestRedis(t)
	publisher := NewStreamPublisher(cfg, redisClient, zap.NewNop())

	ctx := context.Background()
	event := &models.InterventionEvent{
		EventID:   "e-1",
		SessionID: "session-123",
		Type:      models.InterventionInjuryPrevention,
		Priority:  models.PriorityCritical,
	}

	err := publisher.PublishIntervention(ctx, event)
	require.NoError(t, err)

	count, err := redisClient.XLen(ctx, cfg.Coach.Streams.InterventionStream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStreamPublisher_PublishPriorityDecision(t *testing.T) {
	cfg, redisClient := setupTestRedis(t)
	publisher := NewStreamPublisher(cfg, redisClient, zap.NewNop())

	ctx := context.Background()
	decision := &models.Decision{
		DecisionID: "d-2",
		SessionID:  "session-123",
		Type:       models.DecisionSafety,
		Priority:   models.PriorityHigh,
	}

	err := publisher.PublishPriorityDecision(ctx, decision)
	require.NoError(t, err)

	// 升级投递流收到决策，普通决策流不受影响
	count, err := redisClient.XLen(ctx, cfg.Coach.Streams.PriorityStream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = redisClient.XLen(ctx, cfg.Coach.Streams.DecisionStream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

// recordingProcessor 记录收到的观测
type recordingProcessor struct {
	observations []*models.PoseObservation
	users        []models.UserState
}

func (p *recordingProcessor) Process(ctx context.Context, obs *models.PoseObservation, user models.UserState) {
	p.observations = append(p.observations, obs)
	p.users = append(p.users, user)
}

func validObservation(sessionID string) *models.PoseObservation {
	lm := make([]models.Landmark, models.LandmarkCount)
	for i := range lm {
		lm[i] = models.Landmark{X: 0.5, Y: 0.5, Visibility: 1.0}
	}
	return &models.PoseObservation{
		SessionID: sessionID,
		DeviceID:  "cam-7",
		Landmarks: lm,
		Timestamp: time.Now(),
	}
}

func TestStreamConsumer_DeliversObservations(t *testing.T) {
	cfg, redisClient := setupTestRedis(t)
	logger := zap.NewNop()
	states := NewStateManager(cfg, redisClient, logger)
	publisher := NewStreamPublisher(cfg, redisClient, logger)
	consumer := NewStreamConsumer(cfg, redisClient, states, logger, "test-consumer")

	ctx := context.Background()

	// 预存用户状态：消费时随观测一起交给处理器
	err := states.SaveUserState(ctx, "session-123", models.UserState{Energy: 0.9})
	require.NoError(t, err)

	err = publisher.PublishObservation(ctx, validObservation("session-123"))
	require.NoError(t, err)

	require.NoError(t, consumer.ensureGroup(ctx))
	processor := &recordingProcessor{}
	require.NoError(t, consumer.readBatch(ctx, processor))

	require.Len(t, processor.observations, 1)
	assert.Equal(t, "session-123", processor.observations[0].SessionID)
	assert.Equal(t, 0.9, processor.users[0].Energy)

	// 消费过程建立了会话状态
	state, err := states.GetSessionState(ctx, "session-123")
	require.NoError(t, err)
	assert.Equal(t, "cam-7", state.DeviceID)
}

func TestStreamConsumer_SkipsMalformedMessages(t *testing.T) {
	cfg, redisClient := setupTestRedis(t)
	logger := zap.NewNop()
	states := NewStateManager(cfg, redisClient, logger)
	consumer := NewStreamConsumer(cfg, redisClient, states, logger, "test-consumer")

	ctx := context.Background()
	err := redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: cfg.Coach.Streams.PoseStream,
		Values: map[string]interface{}{"observation": "not-json"},
	}).Err()
	require.NoError(t, err)

	require.NoError(t, consumer.ensureGroup(ctx))
	processor := &recordingProcessor{}
	require.NoError(t, consumer.readBatch(ctx, processor))

	// 坏消息被 ACK 并跳过，处理器没有收到任何观测
	assert.Empty(t, processor.observations)
}
