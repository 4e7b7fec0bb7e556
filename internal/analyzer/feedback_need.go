package analyzer

import (
	"fmt"

	"wisefido-motion-coach/internal/models"
)

// FeedbackNeedAnalyzer 反馈需求分析器
//
// 判断当前是否适合给用户正向反馈或激励：
// 强度与用户偏好的偏差、动作持续稳定、阶段进展
type FeedbackNeedAnalyzer struct{}

// NewFeedbackNeedAnalyzer 创建反馈需求分析器
func NewFeedbackNeedAnalyzer() *FeedbackNeedAnalyzer {
	return &FeedbackNeedAnalyzer{}
}

func (a *FeedbackNeedAnalyzer) Name() string { return models.ComponentFeedbackNeed }

// Optional 反馈建议属于可选富化，Lightweight 模式下跳过
func (a *FeedbackNeedAnalyzer) Optional() bool { return true }

// Analyze 产出反馈需求评分（Summary 形如 "need=motivation score=0.72"）
func (a *FeedbackNeedAnalyzer) Analyze(input Input) models.AnalysisResult {
	frame := input.Frame
	workout := input.Workout

	preferred := preferredIntensity(input.User.Preferences.PreferredIntensity)
	gap := preferred - workout.Intensity

	var need string
	var score float64
	switch {
	case input.User.Energy < 0.3 && workout.Phase == models.PhaseMain:
		// 用户精力低但还在主训练段：需要激励
		need = "motivation"
		score = 0.7 + 0.3*(0.3-input.User.Energy)
	case gap > 0.25:
		// 强度低于偏好：鼓励提速
		need = "push"
		score = clamp01(0.5 + gap)
	case gap < -0.3:
		// 强度超出偏好：提示放缓
		need = "ease"
		score = clamp01(0.5 - gap)
	case frame.StabilityScore > 0.85 && workout.Phase == models.PhaseMain:
		// 动作稳定：正向肯定的机会
		need = "praise"
		score = 0.5
	default:
		need = "none"
		score = 0.2
	}

	return models.AnalysisResult{
		Component:  a.Name(),
		Summary:    fmt.Sprintf("need=%s score=%.2f", need, clamp01(score)),
		Confidence: feedbackConfidence(workout, input.User),
	}
}

func preferredIntensity(pref string) float64 {
	switch pref {
	case "low":
		return 0.3
	case "high":
		return 0.8
	default: // moderate
		return 0.55
	}
}

// feedbackConfidence 上下文置信度和用户状态新鲜度的合成
func feedbackConfidence(workout models.WorkoutContext, user models.UserState) float64 {
	base := 0.5 * workout.Confidence
	if user.Mood > 0 || user.Energy > 0 || user.Focus > 0 {
		base += 0.35
	}
	return clamp01(base + 0.1)
}
