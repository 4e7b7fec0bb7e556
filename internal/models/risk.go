package models

import "time"

// RiskMetrics 风险指标（每帧由风险评估器计算，全部钳制在 0.0-1.0）
type RiskMetrics struct {
	InjuryRisk   float64 `json:"injury_risk"`
	FormRisk     float64 `json:"form_risk"` // 动作质量的反向值
	FatigueRisk  float64 `json:"fatigue_risk"`
	OverloadRisk float64 `json:"overload_risk"`
	BalanceRisk  float64 `json:"balance_risk"`
	VelocityRisk float64 `json:"velocity_risk"`
	AngleRisk    float64 `json:"angle_risk"`

	Timestamp time.Time `json:"timestamp"`
}

// Overall 综合风险（各子项的最大值，安全判断取最保守值）
func (r RiskMetrics) Overall() float64 {
	max := r.InjuryRisk
	for _, v := range []float64{r.FormRisk, r.FatigueRisk, r.OverloadRisk, r.BalanceRisk, r.VelocityRisk, r.AngleRisk} {
		if v > max {
			max = v
		}
	}
	return max
}

// Mean 各子项均值（用于趋势分类）
func (r RiskMetrics) Mean() float64 {
	sum := r.InjuryRisk + r.FormRisk + r.FatigueRisk + r.OverloadRisk +
		r.BalanceRisk + r.VelocityRisk + r.AngleRisk
	return sum / 7.0
}

// Clamp 将所有子项钳制到 [0,1]（评估器返回前调用）
func (r *RiskMetrics) Clamp() {
	r.InjuryRisk = clamp01(r.InjuryRisk)
	r.FormRisk = clamp01(r.FormRisk)
	r.FatigueRisk = clamp01(r.FatigueRisk)
	r.OverloadRisk = clamp01(r.OverloadRisk)
	r.BalanceRisk = clamp01(r.BalanceRisk)
	r.VelocityRisk = clamp01(r.VelocityRisk)
	r.AngleRisk = clamp01(r.AngleRisk)
}

// RiskTrend 风险趋势分类（最近 10 条与之前 10 条风险均值之差）
type RiskTrend string

const (
	TrendStable           RiskTrend = "stable"
	TrendImproving        RiskTrend = "improving"          // Δ < -0.1
	TrendDegrading        RiskTrend = "degrading"          // Δ > 0.1
	TrendRapidlyDegrading RiskTrend = "rapidly_degrading"  // Δ > 0.2
	TrendUnknown          RiskTrend = "unknown"            // 历史不足
)
