// Package synthesizer 决策合成
//
// 将 DecisionContext 映射为单个决策：按序触发规则分类决策类型
// （safety > form_correction > motivation > progress，首个命中生效），
// 从固定表推导优先级，按类型模板生成内容，
// 综合置信度为参与分析置信度的均值。
// 置信度 ≤0.3、主消息为空或动作列表为空的决策被拒绝（验证不变式，
// 不是异常情况）
package synthesizer

import (
	"fmt"
	"strings"
	"sync"

	"wisefido-motion-coach/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 验证不变式：低于该置信度的决策不发射
const minConfidence = 0.3

// 反馈偏置的上下界
const maxFeedbackBias = 0.1

// 类型 → 优先级固定表
var priorityTable = map[models.DecisionType]models.Priority{
	models.DecisionSafety:         models.PriorityCritical,
	models.DecisionFormCorrection: models.PriorityHigh,
	models.DecisionMotivation:     models.PriorityMedium,
	models.DecisionProgress:       models.PriorityLow,
}

// Synthesizer 决策合成器
type Synthesizer struct {
	logger *zap.Logger

	// 按决策类型的效果反馈偏置（UpdateFeedback 驱动的指数滑动平均）
	mu           sync.RWMutex
	feedbackBias map[models.DecisionType]float64
}

// NewSynthesizer 创建决策合成器
func NewSynthesizer(logger *zap.Logger) *Synthesizer {
	return &Synthesizer{
		logger:       logger,
		feedbackBias: make(map[models.DecisionType]float64),
	}
}

// Synthesize 从决策上下文合成一个决策
//
// 返回 (nil, reason) 表示决策被验证拒绝或无规则命中；
// 拒绝不是错误，调用方只需计入指标
func (s *Synthesizer) Synthesize(sessionID string, ctx models.DecisionContext) (*models.Decision, string) {
	if len(ctx.Analyses) == 0 {
		return nil, "no_analyses"
	}

	decisionType, triggers := classify(ctx)
	if decisionType == "" {
		return nil, "no_trigger"
	}

	confidence := s.confidence(decisionType, ctx)
	content, actions, outcome := buildContent(decisionType, ctx)

	reasoning := models.DecisionReasoning{
		Triggers:         triggers,
		SourceConfidence: make(map[string]float64, len(ctx.Analyses)),
	}
	for _, a := range ctx.Analyses {
		reasoning.SourceConfidence[a.Component] = a.Confidence
	}
	if ctx.Risk != nil {
		reasoning.RiskFactors = riskFactors(*ctx.Risk)
	}
	if ctx.Workout.Phase == models.PhaseMain && ctx.Workout.Intensity > 0.5 {
		reasoning.OpportunityFactors = append(reasoning.OpportunityFactors, "sustained_main_phase")
	}

	decision := &models.Decision{
		DecisionID:      uuid.New().String(),
		SessionID:       sessionID,
		Type:            decisionType,
		Priority:        priorityTable[decisionType],
		Content:         content,
		Actions:         actions,
		Reasoning:       reasoning,
		Confidence:      confidence,
		ExpectedOutcome: outcome,
		Context:         ctx,
		Timestamp:       ctx.Timestamp,
	}

	// 验证不变式（§构造即校验）：不满足的决策直接拒绝
	if reason := validate(decision); reason != "" {
		s.logger.Debug("Decision rejected",
			zap.String("reason", reason),
			zap.String("type", string(decisionType)),
			zap.Float64("confidence", confidence),
		)
		return nil, reason
	}

	return decision, ""
}

// ApplyFeedback 按决策类型累积效果反馈（影响后续置信度 ±0.1 以内）
func (s *Synthesizer) ApplyFeedback(decisionType models.DecisionType, effectiveness float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bias := s.feedbackBias[decisionType]
	bias = 0.8*bias + 0.2*(effectiveness-0.5)*2*maxFeedbackBias
	if bias > maxFeedbackBias {
		bias = maxFeedbackBias
	} else if bias < -maxFeedbackBias {
		bias = -maxFeedbackBias
	}
	s.feedbackBias[decisionType] = bias
}

// Reset 清除反馈偏置（会话重置时调用）
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedbackBias = make(map[models.DecisionType]float64)
}

// classify 按序触发规则，首个命中生效
func classify(ctx models.DecisionContext) (models.DecisionType, []string) {
	risk := ctx.Risk

	// 1. 安全
	if risk != nil {
		if risk.InjuryRisk > 0.6 {
			return models.DecisionSafety, []string{"injury_risk_elevated"}
		}
		if risk.Overall() > 0.75 {
			return models.DecisionSafety, []string{"overall_risk_elevated"}
		}
	}

	// 2. 动作纠正
	if risk != nil {
		var triggers []string
		if risk.FormRisk > 0.5 {
			triggers = append(triggers, "form_quality_degraded")
		}
		if risk.AngleRisk > 0.5 {
			triggers = append(triggers, "joint_angle_unsafe")
		}
		if len(triggers) > 0 {
			return models.DecisionFormCorrection, triggers
		}
	}

	// 3. 激励
	if needsMotivation(ctx) {
		return models.DecisionMotivation, []string{"motivation_needed"}
	}

	// 4. 进展（主训练段的默认正向反馈）
	if ctx.Workout.Phase == models.PhaseMain || ctx.Workout.Phase == models.PhaseCooldown {
		return models.DecisionProgress, []string{"progress_update"}
	}

	return "", nil
}

// needsMotivation 反馈需求分析器给出激励信号，或用户精力低迷
func needsMotivation(ctx models.DecisionContext) bool {
	for _, a := range ctx.Analyses {
		if a.Component == models.ComponentFeedbackNeed {
			switch {
			case strings.Contains(a.Summary, "need=motivation"),
				strings.Contains(a.Summary, "need=push"),
				strings.Contains(a.Summary, "need=ease"):
				return true
			}
		}
	}
	return ctx.User.Energy < 0.25 && ctx.Workout.Phase == models.PhaseMain
}

// confidence 参与分析置信度的均值 + 类型反馈偏置
func (s *Synthesizer) confidence(t models.DecisionType, ctx models.DecisionContext) float64 {
	var sum float64
	for _, a := range ctx.Analyses {
		sum += a.Confidence
	}
	mean := sum / float64(len(ctx.Analyses))

	s.mu.RLock()
	bias := s.feedbackBias[t]
	s.mu.RUnlock()

	return clamp01(mean + bias)
}

// buildContent 按类型模板生成内容/动作/预期结果
func buildContent(t models.DecisionType, ctx models.DecisionContext) (models.DecisionContent, []models.DecisionAction, string) {
	switch t {
	case models.DecisionSafety:
		return models.DecisionContent{
				PrimaryMessage: "Slow down - your movement is putting you at risk",
				Advice:         "Reduce your range and speed until your form recovers",
				VisualCue:      "highlight_risk_regions",
				AudioCue:       "alert_tone",
			}, []models.DecisionAction{
				{Type: "slow_down", Description: "Reduce movement speed"},
				{Type: "adjust_form", Description: "Return to a neutral, stable position"},
			}, "risk scores return below safety thresholds"

	case models.DecisionFormCorrection:
		msg := "Check your form"
		if ctx.Risk != nil && ctx.Risk.AngleRisk >= 0.5 {
			msg = "Watch your knee angle - don't go below 90 degrees"
		}
		return models.DecisionContent{
				PrimaryMessage: msg,
				Advice:         "Keep joints aligned and movements symmetric",
				VisualCue:      "overlay_form_guide",
				AudioCue:       "soft_chime",
			}, []models.DecisionAction{
				{Type: "adjust_form", Description: "Correct joint alignment"},
			}, "form quality score improves within the next repetitions"

	case models.DecisionMotivation:
		return models.DecisionContent{
				PrimaryMessage: "You're doing great - keep it up",
				Advice:         "Stay with your pace, the session is almost there",
				AudioCue:       "encouragement",
			}, []models.DecisionAction{
				{Type: "continue", Description: "Maintain current pace"},
			}, "user sustains engagement through the main phase"

	default: // progress
		return models.DecisionContent{
				PrimaryMessage: fmt.Sprintf("Solid work - %.0f kcal burned so far", ctx.Workout.EnergyExpended),
				Advice:         "Form and pacing are on track",
			}, []models.DecisionAction{
				{Type: "continue", Description: "Keep current form and pace"},
			}, "user stays informed of session progress"
	}
}

// validate 验证不变式；返回空串表示通过
func validate(d *models.Decision) string {
	if d.Confidence <= minConfidence {
		return "low_confidence"
	}
	if d.Content.PrimaryMessage == "" {
		return "empty_message"
	}
	if len(d.Actions) == 0 {
		return "no_actions"
	}
	return ""
}

func riskFactors(r models.RiskMetrics) []string {
	var factors []string
	if r.InjuryRisk > 0.5 {
		factors = append(factors, "injury")
	}
	if r.FormRisk > 0.5 {
		factors = append(factors, "form")
	}
	if r.FatigueRisk > 0.5 {
		factors = append(factors, "fatigue")
	}
	if r.BalanceRisk > 0.5 {
		factors = append(factors, "balance")
	}
	if r.OverloadRisk > 0.5 {
		factors = append(factors, "overload")
	}
	if r.VelocityRisk > 0.5 {
		factors = append(factors, "velocity")
	}
	if r.AngleRisk > 0.5 {
		factors = append(factors, "joint_angle")
	}
	return factors
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
