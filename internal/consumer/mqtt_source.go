package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"wisefido-motion-coach/internal/config"
	"wisefido-motion-coach/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTSource MQTT 姿态帧入口
//
// 摄像头端设备不直连 Redis 时走 MQTT 上报：
// 订阅姿态主题，解码后桥接到姿态观测流，
// 由 StreamConsumer 统一消费。解码失败的消息丢弃并记日志
type MQTTSource struct {
	config    *config.Config
	client    mqtt.Client
	publisher *StreamPublisher
	logger    *zap.Logger
}

// NewMQTTSource 创建 MQTT 姿态入口（不连接）
func NewMQTTSource(
	cfg *config.Config,
	publisher *StreamPublisher,
	logger *zap.Logger,
) *MQTTSource {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)

	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
	}
	if cfg.MQTT.Password != "" {
		opts.SetPassword(cfg.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	return &MQTTSource{
		config:    cfg,
		client:    mqtt.NewClient(opts),
		publisher: publisher,
		logger:    logger,
	}
}

// Start 连接 broker 并订阅姿态主题
func (m *MQTTSource) Start(ctx context.Context) error {
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	topic := m.config.MQTT.PoseTopic
	if token := m.client.Subscribe(topic, m.config.MQTT.QoS, func(client mqtt.Client, msg mqtt.Message) {
		m.handleMessage(ctx, msg.Topic(), msg.Payload())
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	m.logger.Info("MQTT pose source started",
		zap.String("broker", m.config.MQTT.Broker),
		zap.String("topic", topic),
	)

	return nil
}

// Stop 断开 MQTT 连接
func (m *MQTTSource) Stop() {
	m.client.Disconnect(250)
	m.logger.Info("MQTT pose source stopped")
}

// handleMessage 解码姿态帧并桥接到姿态流
func (m *MQTTSource) handleMessage(ctx context.Context, topic string, payload []byte) {
	var obs models.PoseObservation
	if err := json.Unmarshal(payload, &obs); err != nil {
		m.logger.Warn("Failed to unmarshal MQTT pose message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}

	if !obs.Valid() {
		m.logger.Debug("Invalid MQTT pose observation skipped",
			zap.String("topic", topic),
			zap.Int("landmark_count", len(obs.Landmarks)),
		)
		return
	}

	if err := m.publisher.PublishObservation(ctx, &obs); err != nil {
		m.logger.Error("Failed to bridge pose observation to stream",
			zap.String("session_id", obs.SessionID),
			zap.Error(err),
		)
	}
}
