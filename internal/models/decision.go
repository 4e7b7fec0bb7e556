package models

import "time"

// DecisionType 决策类型
type DecisionType string

const (
	DecisionSafety         DecisionType = "safety"
	DecisionFormCorrection DecisionType = "form_correction"
	DecisionMotivation     DecisionType = "motivation"
	DecisionProgress       DecisionType = "progress"
)

// Priority 决策/干预优先级（数值越大越优先）
type Priority int

const (
	PriorityBackground Priority = 0
	PriorityLow        Priority = 1
	PriorityMedium     Priority = 2
	PriorityHigh       Priority = 3
	PriorityCritical   Priority = 4
)

// String 优先级名称（用于日志和持久化）
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return "BACKGROUND"
	}
}

// ParsePriority 从持久化名称还原优先级
func ParsePriority(s string) Priority {
	switch s {
	case "CRITICAL":
		return PriorityCritical
	case "HIGH":
		return PriorityHigh
	case "MEDIUM":
		return PriorityMedium
	case "LOW":
		return PriorityLow
	default:
		return PriorityBackground
	}
}

// DecisionContent 决策内容（按决策类型从模板生成）
type DecisionContent struct {
	PrimaryMessage string `json:"primary_message"`
	Advice         string `json:"advice,omitempty"`
	VisualCue      string `json:"visual_cue,omitempty"`
	AudioCue       string `json:"audio_cue,omitempty"`
}

// DecisionAction 决策附带的建议动作
type DecisionAction struct {
	Type        string `json:"type"` // adjust_form, slow_down, rest, continue, hydrate
	Description string `json:"description"`
}

// DecisionReasoning 决策推理记录（哪些触发规则命中、哪些分析参与）
type DecisionReasoning struct {
	Triggers           []string           `json:"triggers"`
	RiskFactors        []string           `json:"risk_factors,omitempty"`
	OpportunityFactors []string           `json:"opportunity_factors,omitempty"`
	SourceConfidence   map[string]float64 `json:"source_confidence"`
}

// Decision 教练决策（由合成器创建，不可变，由分发消费一次）
type Decision struct {
	DecisionID      string            `json:"decision_id"`
	SessionID       string            `json:"session_id"`
	Type            DecisionType      `json:"type"`
	Priority        Priority          `json:"priority"`
	Content         DecisionContent   `json:"content"`
	Actions         []DecisionAction  `json:"actions"`
	Reasoning       DecisionReasoning `json:"reasoning"`
	Confidence      float64           `json:"confidence"`
	ExpectedOutcome string            `json:"expected_outcome,omitempty"`
	Context         DecisionContext   `json:"context"`
	LatencyMs       float64           `json:"latency_ms"` // 从观测进入到发射的耗时
	Timestamp       time.Time         `json:"timestamp"`
}

// DecisionFeedback 决策效果反馈（UpdateFeedback 的载荷）
type DecisionFeedback struct {
	DecisionID     string        `json:"decision_id"`
	Effectiveness  float64       `json:"effectiveness"` // 0.0-1.0
	UserResponse   string        `json:"user_response"` // followed, ignored, dismissed
	TimeToResponse time.Duration `json:"time_to_response"`
}
