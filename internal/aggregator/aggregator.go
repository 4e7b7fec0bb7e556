// Package aggregator 决策上下文聚合
//
// 将所有分析结果 + 外部用户状态合并为一个 DecisionContext；
// Fast/Lightweight 模式下省略可选富化项以收缩下游工作量。
// 零置信度（降级/超时）的分析结果按缺失处理，不进入上下文
package aggregator

import (
	"time"

	"wisefido-motion-coach/internal/adaptive"
	"wisefido-motion-coach/internal/models"

	"go.uber.org/zap"
)

// Input 一次聚合的输入
type Input struct {
	Timestamp time.Time
	Results   []models.AnalysisResult
	Workout   models.WorkoutContext
	User      models.UserState
	Frame     models.MovementFrame
	Session   *models.SessionSummary // 会话历史摘要（可选富化）
}

// Aggregator 上下文聚合器
type Aggregator struct {
	flags  *adaptive.Flags
	logger *zap.Logger
}

// NewAggregator 创建聚合器
func NewAggregator(flags *adaptive.Flags, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		flags:  flags,
		logger: logger,
	}
}

// Aggregate 构建决策上下文（构建后不再修改）
func (a *Aggregator) Aggregate(input Input) models.DecisionContext {
	mode := a.flags.Snapshot()
	reduced := mode&(adaptive.ModeFast|adaptive.ModeLightweight) != 0

	ctx := models.DecisionContext{
		Timestamp: input.Timestamp,
		Workout:   input.Workout,
		User:      input.User,
		Reduced:   reduced,
	}

	// 零置信度结果视为缺失，不作为零值信号参与决策
	for _, r := range input.Results {
		if r.Absent() {
			a.logger.Debug("Analysis result absent",
				zap.String("component", r.Component),
				zap.String("error", r.Error),
			)
			continue
		}
		ctx.Analyses = append(ctx.Analyses, r)
		if r.Component == models.ComponentRiskAssessment && r.Risk != nil {
			risk := *r.Risk
			ctx.Risk = &risk
		}
	}

	// 可选富化项：负载降级时省略
	if !reduced {
		ctx.Session = input.Session
		ctx.Environment = &models.EnvironmentInfo{
			LightingQuality: input.Frame.StabilityScore, // 可见度已折入稳定性评分
			CameraStability: 1 - clamp01(input.Frame.Fatigue.TremorLevel),
		}
	}

	return ctx
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
