package models

import "time"

// RealtimeSnapshot 会话实时教练快照（写入 Redis 供前端/看板拉取）
type RealtimeSnapshot struct {
	SessionID     string       `json:"session_id"`
	Phase         WorkoutPhase `json:"phase"`
	Intensity     float64      `json:"intensity"`
	Risk          *RiskMetrics `json:"risk,omitempty"`
	Trend         RiskTrend    `json:"trend"`
	ActiveModes   string       `json:"active_modes"`
	DecisionCount int64        `json:"decision_count"`
	LastDecision  string       `json:"last_decision,omitempty"` // 最近一条决策的主消息
	UpdatedAt     time.Time    `json:"updated_at"`
}
