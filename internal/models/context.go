package models

import "time"

// WorkoutPhase 训练阶段
type WorkoutPhase string

const (
	PhaseWarmup     WorkoutPhase = "warmup"
	PhaseMain       WorkoutPhase = "main"
	PhaseCooldown   WorkoutPhase = "cooldown"
	PhaseRest       WorkoutPhase = "rest"
	PhaseTransition WorkoutPhase = "transition"
	PhaseUnknown    WorkoutPhase = "unknown"
)

// WorkoutContext 训练上下文（每帧观测更新一次，单写多读）
type WorkoutContext struct {
	Phase           WorkoutPhase  `json:"phase"`
	Intensity       float64       `json:"intensity"` // 0.0-1.0
	Pace            float64       `json:"pace"`      // 动作节奏（次/分钟估计）
	FatigueLevel    float64       `json:"fatigue_level"`
	SessionDuration time.Duration `json:"session_duration"`
	EnergyExpended  float64       `json:"energy_expended"` // kcal 估计
	Confidence      float64       `json:"confidence"`
}

// 分析器组件标识（AnalysisResult.Component）
const (
	ComponentWorkoutContext   = "workout_context"
	ComponentRiskAssessment   = "risk_assessment"
	ComponentFeedbackNeed     = "feedback_need"
	ComponentInterventionNeed = "intervention_need"
)

// AnalysisResult 单个分析器的输出
//
// 分析器内部失败时返回 Confidence=0 且 Error 非空的降级结果，
// 聚合器将零置信度结果视为缺失，而不是零值信号
type AnalysisResult struct {
	Component  string          `json:"component"`
	Summary    string          `json:"summary"`
	Risk       *RiskMetrics    `json:"risk,omitempty"`    // 仅风险评估器填写
	Workout    *WorkoutContext `json:"workout,omitempty"` // 仅训练上下文分类器填写
	Confidence float64         `json:"confidence"`
	Error      string          `json:"error,omitempty"`
}

// Absent 结果是否应被聚合视为缺失
func (a AnalysisResult) Absent() bool {
	return a.Confidence <= 0
}

// SessionSummary 会话历史摘要（可选富化项，Lightweight 模式下省略）
type SessionSummary struct {
	SessionID         string       `json:"session_id"`
	StartedAt         time.Time    `json:"started_at"`
	ObservationCount  int64        `json:"observation_count"`
	DecisionCount     int64        `json:"decision_count"`
	InterventionCount int64        `json:"intervention_count"`
	AvgConfidence     float64      `json:"avg_confidence"`
	DominantPhase     WorkoutPhase `json:"dominant_phase"`
}

// EnvironmentInfo 环境因素（可选富化项）
type EnvironmentInfo struct {
	LightingQuality float64 `json:"lighting_quality"` // 从关键点可见度推断
	CameraStability float64 `json:"camera_stability"`
}

// DecisionContext 决策上下文（每帧观测新建，构建后不可变）
type DecisionContext struct {
	Timestamp time.Time        `json:"timestamp"`
	Workout   WorkoutContext   `json:"workout"`
	Analyses  []AnalysisResult `json:"analyses"`
	Risk      *RiskMetrics     `json:"risk,omitempty"`
	User      UserState        `json:"user"`

	// 可选富化项（Lightweight 模式下为 nil）
	Session     *SessionSummary  `json:"session,omitempty"`
	Environment *EnvironmentInfo `json:"environment,omitempty"`

	// 是否因负载降级而省略了富化项
	Reduced bool `json:"reduced"`
}
