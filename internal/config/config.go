package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（摄像头端设备直接通过 MQTT 上报姿态帧时使用）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	// 姿态帧主题，如 "wisefido/+/pose/#"
	PoseTopic string
	Enabled   bool
}

// Config 运动教练服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 教练服务特定配置
	Coach struct {
		// Redis 缓存配置
		Cache struct {
			RealtimeKeyPrefix string // 实时教练快照键前缀，如 "vital-coach:session:"
			RealtimeSuffix    string // 实时教练快照键后缀，如 ":realtime"
			RealtimeTTL       int    // 实时快照 TTL（秒），默认 30秒
			StateKeyPrefix    string // 会话状态键前缀，如 "vital-coach:state:"
		}

		// Redis Streams 配置
		Streams struct {
			PoseStream         string // 姿态观测流，如 "vital-coach:stream:pose"
			DecisionStream     string // 决策发射流
			InterventionStream string // 干预发射流
			PriorityStream     string // 高优先级决策的升级投递流
			ConsumerGroup      string // 消费者组名称
			BatchSize          int64  // 单次读取消息数，默认 10
		}

		// 管线配置
		Pipeline struct {
			FrameBufferSize         int // 帧环形缓冲区容量，默认 150（约 5秒 @30fps）
			RiskHistorySize         int // 风险历史容量，默认 100
			InterventionHistorySize int // 干预历史容量，默认 50
			AnalyzerTimeoutMs       int // 分析器并发 join 超时（毫秒），默认 60
			LatencyBudgetMs         int // 端到端延迟预算（毫秒），默认 100
			QueueCapacity           int // 优先级分发队列容量，默认 10
		}

		// 干预阈值配置
		Intervention struct {
			InjuryThreshold   float64 // 受伤风险阈值，默认 0.8（CRITICAL，绕过冷却）
			FormThreshold     float64 // 动作质量风险阈值，默认 0.6
			FatigueThreshold  float64 // 疲劳风险阈值，默认 0.7
			BalanceThreshold  float64 // 平衡风险阈值，默认 0.6
			OverloadThreshold float64 // 过载风险阈值，默认 0.7
			FormCooldownSec   int     // 动作纠正冷却窗口（秒），默认 15
		}

		// 自适应模式控制配置
		Adaptive struct {
			CheckInterval   int     // 每处理多少帧检查一次，默认 50
			FastLatencyMs   float64 // 平均延迟超过该值（毫秒）抬起 Fast，默认 80
			LightweightLoad float64 // 负载超过该值抬起 Lightweight，默认 0.8
			RobustErrorRate float64 // 错误率超过该值抬起 Robust，默认 0.05
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-motion-coach")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.MQTT.PoseTopic = getEnv("MQTT_POSE_TOPIC", "wisefido/+/pose/#")
	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"

	// 缓存配置
	cfg.Coach.Cache.RealtimeKeyPrefix = getEnv("CACHE_REALTIME_PREFIX", "vital-coach:session:")
	cfg.Coach.Cache.RealtimeSuffix = ":realtime"
	cfg.Coach.Cache.RealtimeTTL = 30 // 30秒
	cfg.Coach.Cache.StateKeyPrefix = getEnv("CACHE_STATE_PREFIX", "vital-coach:state:")

	// Streams 配置
	cfg.Coach.Streams.PoseStream = getEnv("STREAM_POSE", "vital-coach:stream:pose")
	cfg.Coach.Streams.DecisionStream = getEnv("STREAM_DECISIONS", "vital-coach:stream:decisions")
	cfg.Coach.Streams.InterventionStream = getEnv("STREAM_INTERVENTIONS", "vital-coach:stream:interventions")
	cfg.Coach.Streams.PriorityStream = getEnv("STREAM_PRIORITY", "vital-coach:stream:priority")
	cfg.Coach.Streams.ConsumerGroup = getEnv("STREAM_CONSUMER_GROUP", "motion-coach")
	cfg.Coach.Streams.BatchSize = 10

	// 管线配置
	cfg.Coach.Pipeline.FrameBufferSize = 150 // 约 5秒 @30fps
	cfg.Coach.Pipeline.RiskHistorySize = 100
	cfg.Coach.Pipeline.InterventionHistorySize = 50
	cfg.Coach.Pipeline.AnalyzerTimeoutMs = getEnvInt("ANALYZER_TIMEOUT_MS", 60)
	cfg.Coach.Pipeline.LatencyBudgetMs = 100
	cfg.Coach.Pipeline.QueueCapacity = 10

	// 干预阈值
	cfg.Coach.Intervention.InjuryThreshold = 0.8
	cfg.Coach.Intervention.FormThreshold = 0.6
	cfg.Coach.Intervention.FatigueThreshold = 0.7
	cfg.Coach.Intervention.BalanceThreshold = 0.6
	cfg.Coach.Intervention.OverloadThreshold = 0.7
	cfg.Coach.Intervention.FormCooldownSec = getEnvInt("INTERVENTION_FORM_COOLDOWN_SEC", 15)

	// 自适应模式控制
	cfg.Coach.Adaptive.CheckInterval = 50
	cfg.Coach.Adaptive.FastLatencyMs = 80
	cfg.Coach.Adaptive.LightweightLoad = 0.8
	cfg.Coach.Adaptive.RobustErrorRate = 0.05

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
