package analyzer

import (
	"fmt"

	"wisefido-motion-coach/internal/adaptive"
	"wisefido-motion-coach/internal/models"
)

// InterventionNeedAnalyzer 干预需求分析器
//
// 对帧级危险信号做快速筛查（不做阈值判定，那是干预触发引擎的职责），
// 产出一个紧迫度评分供合成器参考
type InterventionNeedAnalyzer struct{}

// NewInterventionNeedAnalyzer 创建干预需求分析器
func NewInterventionNeedAnalyzer() *InterventionNeedAnalyzer {
	return &InterventionNeedAnalyzer{}
}

func (a *InterventionNeedAnalyzer) Name() string { return models.ComponentInterventionNeed }

// Optional Lightweight 模式下跳过（干预触发引擎仍独立兜底）
func (a *InterventionNeedAnalyzer) Optional() bool { return true }

// Analyze 产出紧迫度评分（Summary 形如 "urgency=0.64"）
func (a *InterventionNeedAnalyzer) Analyze(input Input) models.AnalysisResult {
	frame := input.Frame

	instability := 1 - frame.StabilityScore
	fatigue := frame.Fatigue.Level()
	velocity := clamp01(frame.LinearVelocity / 3.0)

	urgency := clamp01(0.45*instability + 0.35*fatigue + 0.2*velocity)

	// 近期稳定性持续滑落时加成（Fast 模式下跳过历史扫描）
	if input.Mode&adaptive.ModeFast == 0 && len(input.History) >= 15 {
		recent := input.History[len(input.History)-15:]
		declining := 0
		for i := 1; i < len(recent); i++ {
			if recent[i].StabilityScore < recent[i-1].StabilityScore {
				declining++
			}
		}
		if declining > len(recent)*2/3 {
			urgency = clamp01(urgency + 0.15)
		}
	}

	return models.AnalysisResult{
		Component:  a.Name(),
		Summary:    fmt.Sprintf("urgency=%.2f", urgency),
		Confidence: clamp01(0.6 + 0.3*frame.StabilityScore),
	}
}
