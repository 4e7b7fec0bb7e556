package models

import "time"

// InterventionType 干预类型
type InterventionType string

const (
	InterventionInjuryPrevention      InterventionType = "injury_prevention"
	InterventionFormCorrection        InterventionType = "form_correction"
	InterventionFatigueManagement     InterventionType = "fatigue_management"
	InterventionBalanceAssistance     InterventionType = "balance_assistance"
	InterventionOverloadWarning       InterventionType = "overload_warning"
	InterventionTechniqueOptimization InterventionType = "technique_optimization"
)

// InterventionEvent 安全干预事件（独立于决策通道发射）
//
// 每个发射的事件立即追加到有界干预历史（容量 50），
// 供同类型干预的冷却检查使用
type InterventionEvent struct {
	EventID           string           `json:"event_id"`
	SessionID         string           `json:"session_id"`
	Type              InterventionType `json:"type"`
	Priority          Priority         `json:"priority"`
	TriggerReason     string           `json:"trigger_reason"`
	RecommendedAction string           `json:"recommended_action"`
	Alternatives      []string         `json:"alternatives,omitempty"`
	BodyRegions       []string         `json:"body_regions,omitempty"`
	CorrectiveSteps   []string         `json:"corrective_steps,omitempty"`
	Risk              RiskMetrics      `json:"risk"` // 触发时的风险快照
	Trend             RiskTrend        `json:"trend"`
	Confidence        float64          `json:"confidence"`
	Timestamp         time.Time        `json:"timestamp"`
}
