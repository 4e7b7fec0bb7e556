package analyzer

import (
	"fmt"
	"math"

	"wisefido-motion-coach/internal/adaptive"
	"wisefido-motion-coach/internal/models"
)

// 阶段判定阈值
const (
	restVelocity     = 0.10 // 低于该速度视为静止
	warmupDuration   = 5 * 60 // 秒，会话前 5 分钟允许判定为热身
	highIntensity    = 0.7
	kcalPerIntensity = 0.15 // 每秒每单位强度的能耗估计
)

// WorkoutContextAnalyzer 训练上下文分类器
//
// 从当前帧 + 上一帧上下文推导新的 WorkoutContext
// （阶段/强度/节奏/疲劳/时长/能耗）；引擎在 join 后提交结果，
// 分析器本身不持有状态
type WorkoutContextAnalyzer struct{}

// NewWorkoutContextAnalyzer 创建训练上下文分类器
func NewWorkoutContextAnalyzer() *WorkoutContextAnalyzer {
	return &WorkoutContextAnalyzer{}
}

func (a *WorkoutContextAnalyzer) Name() string { return models.ComponentWorkoutContext }

// Optional 上下文分类是下游所有阶段的输入，Lightweight 下也不跳过
func (a *WorkoutContextAnalyzer) Optional() bool { return false }

// Analyze 分类训练阶段并推进累计量
func (a *WorkoutContextAnalyzer) Analyze(input Input) models.AnalysisResult {
	prev := input.Workout
	frame := input.Frame

	duration := frame.Timestamp.Sub(input.SessionStart)
	if duration < 0 {
		duration = 0
	}

	intensity := clamp01(frame.LinearVelocity / 2.0)
	// 与上一帧做指数平滑，避免单帧抖动翻转阶段
	if prev.Confidence > 0 {
		intensity = 0.3*intensity + 0.7*prev.Intensity
	}

	phase := classifyPhase(prev.Phase, intensity, duration.Seconds(), frame)

	// Fast 模式下跳过节奏历史扫描，沿用上一帧节奏
	pace := prev.Pace
	if input.Mode&adaptive.ModeFast == 0 {
		pace = estimatePace(input.History)
	}

	fatigue := frame.Fatigue.Level()

	// 能耗积分：上一帧以来的时间 * 当前强度
	energy := prev.EnergyExpended
	dt := duration - prev.SessionDuration
	if dt > 0 {
		energy += intensity * dt.Seconds() * kcalPerIntensity
	}

	confidence := contextConfidence(input.History, frame)

	workout := models.WorkoutContext{
		Phase:           phase,
		Intensity:       intensity,
		Pace:            pace,
		FatigueLevel:    fatigue,
		SessionDuration: duration,
		EnergyExpended:  energy,
		Confidence:      confidence,
	}

	return models.AnalysisResult{
		Component:  a.Name(),
		Summary:    fmt.Sprintf("phase=%s intensity=%.2f pace=%.1f", phase, intensity, pace),
		Workout:    &workout,
		Confidence: confidence,
	}
}

// classifyPhase 阶段判定（首个命中的规则生效）
func classifyPhase(prev models.WorkoutPhase, intensity, durationSec float64, frame models.MovementFrame) models.WorkoutPhase {
	switch {
	case frame.LinearVelocity < restVelocity && intensity < 0.15:
		return models.PhaseRest
	case durationSec < warmupDuration && intensity < highIntensity:
		return models.PhaseWarmup
	case prev == models.PhaseRest && intensity >= 0.15:
		// 从静止恢复运动：先经过过渡阶段
		return models.PhaseTransition
	case intensity < 0.3 && prev == models.PhaseMain:
		return models.PhaseCooldown
	case intensity >= 0.15:
		return models.PhaseMain
	default:
		return models.PhaseUnknown
	}
}

// estimatePace 动作节奏估计（速度峰值计数折算为 次/分钟）
func estimatePace(history []models.MovementFrame) float64 {
	if len(history) < 10 {
		return 0
	}
	// 最近 90 帧（约 3 秒）内速度越过均值的上升沿次数
	start := 0
	if len(history) > 90 {
		start = len(history) - 90
	}
	window := history[start:]

	var mean float64
	for _, f := range window {
		mean += f.LinearVelocity
	}
	mean /= float64(len(window))
	if mean < restVelocity {
		return 0
	}

	crossings := 0
	above := window[0].LinearVelocity > mean
	for _, f := range window[1:] {
		nowAbove := f.LinearVelocity > mean
		if nowAbove && !above {
			crossings++
		}
		above = nowAbove
	}

	seconds := window[len(window)-1].Timestamp.Sub(window[0].Timestamp).Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(crossings) / seconds * 60
}

// contextConfidence 历史越满、稳定性越高，分类置信度越高
func contextConfidence(history []models.MovementFrame, frame models.MovementFrame) float64 {
	historyFactor := math.Min(float64(len(history))/60.0, 1.0)
	return clamp01(0.4 + 0.4*historyFactor + 0.2*frame.StabilityScore)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
