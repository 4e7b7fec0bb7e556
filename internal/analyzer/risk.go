package analyzer

import (
	"fmt"
	"math"

	"wisefido-motion-coach/internal/models"
)

// 风险子项阈值（文档化常量，测试依赖这些值）
const (
	// 膝关节角度：深蹲到 90° 以下进入高风险
	kneeAngleHighRisk = 90.0  // <90° → 0.8
	kneeAngleModerate = 110.0 // <110° → 0.5

	// 速度：超过 2.0 单位/秒进入高风险
	velocityHighRisk = 2.0 // >2.0 → 0.8
	velocityExtreme  = 3.0 // >3.0 → 1.0

	// 加加速度：动作突变
	jerkHighRisk = 40.0

	// 左右关节角度不对称（度）
	asymmetryTolerance = 25.0
)

// RiskAnalyzer 风险评估器
//
// 计算七个风险子项（受伤/动作质量/疲劳/过载/平衡/速度/关节角度），
// 全部钳制在 [0,1]，打包为结构化载荷返回
type RiskAnalyzer struct{}

// NewRiskAnalyzer 创建风险评估器
func NewRiskAnalyzer() *RiskAnalyzer {
	return &RiskAnalyzer{}
}

func (a *RiskAnalyzer) Name() string { return models.ComponentRiskAssessment }

// Optional 风险评估是安全关键路径，任何降级模式下都不跳过
func (a *RiskAnalyzer) Optional() bool { return false }

// Analyze 计算七个风险子项
func (a *RiskAnalyzer) Analyze(input Input) models.AnalysisResult {
	frame := input.Frame

	risk := models.RiskMetrics{
		AngleRisk:    angleRisk(frame.JointAngles),
		VelocityRisk: velocityRisk(frame.LinearVelocity),
		BalanceRisk:  1 - frame.StabilityScore,
		FatigueRisk:  frame.Fatigue.Level(),
		OverloadRisk: overloadRisk(frame.RegionLoads),
		FormRisk:     formRisk(frame),
		Timestamp:    frame.Timestamp,
	}
	risk.InjuryRisk = injuryRisk(risk, frame)
	risk.Clamp()

	confidence := riskConfidence(input.History, frame)

	return models.AnalysisResult{
		Component:  a.Name(),
		Summary:    fmt.Sprintf("overall=%.2f injury=%.2f form=%.2f", risk.Overall(), risk.InjuryRisk, risk.FormRisk),
		Risk:       &risk,
		Confidence: confidence,
	}
}

// angleRisk 关节角度风险：膝角 <90° → 0.8，<110° → 0.5
func angleRisk(angles map[string]float64) float64 {
	knee := minPositive(angles[models.JointLeftKnee], angles[models.JointRightKnee])
	if knee == 0 {
		return 0
	}
	switch {
	case knee < kneeAngleHighRisk:
		return 0.8
	case knee < kneeAngleModerate:
		return 0.5
	default:
		// 110° 以上随伸展程度线性下降
		return clamp01(0.5 * (180 - knee) / (180 - kneeAngleModerate))
	}
}

// velocityRisk 速度风险：>2.0 单位/秒 → 0.8，>3.0 → 1.0
func velocityRisk(v float64) float64 {
	switch {
	case v > velocityExtreme:
		return 1.0
	case v > velocityHighRisk:
		return 0.8
	default:
		return clamp01(v / velocityHighRisk * 0.6)
	}
}

// overloadRisk 过载风险：各身体区域受力的最大值
func overloadRisk(loads map[string]float64) float64 {
	var max float64
	for _, v := range loads {
		if v > max {
			max = v
		}
	}
	return clamp01(max)
}

// formRisk 动作质量风险（质量的反向值）：
// 左右不对称 + 躯干抖动 + 稳定性
func formRisk(frame models.MovementFrame) float64 {
	kneeAsym := math.Abs(frame.JointAngles[models.JointLeftKnee] - frame.JointAngles[models.JointRightKnee])
	hipAsym := math.Abs(frame.JointAngles[models.JointLeftHip] - frame.JointAngles[models.JointRightHip])
	asymmetry := clamp01((kneeAsym + hipAsym) / (2 * asymmetryTolerance))

	tremor := frame.Fatigue.TremorLevel
	instability := 1 - frame.StabilityScore

	return clamp01(0.5*asymmetry + 0.2*tremor + 0.3*instability)
}

// injuryRisk 受伤风险：各子项加权，动作突变（高加加速度）额外加成
func injuryRisk(r models.RiskMetrics, frame models.MovementFrame) float64 {
	base := 0.35*r.AngleRisk + 0.25*r.VelocityRisk + 0.2*r.BalanceRisk + 0.2*r.OverloadRisk
	if math.Abs(frame.Jerk) > jerkHighRisk {
		base += 0.2
	}
	return clamp01(base)
}

// riskConfidence 历史不足或关键点可见度差时降低置信度
func riskConfidence(history []models.MovementFrame, frame models.MovementFrame) float64 {
	historyFactor := math.Min(float64(len(history))/30.0, 1.0)
	return clamp01(0.5 + 0.3*historyFactor + 0.2*frame.StabilityScore)
}

func minPositive(a, b float64) float64 {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	return math.Min(a, b)
}
