// Package intervention 干预触发引擎
//
// 独立于决策合成：只消费风险评估器的 RiskMetrics，
// 按阈值表逐帧评估（同一帧可触发多个事件），
// 动作纠正类干预受冷却窗口约束，受伤预防类绕过所有冷却。
// 每个发射的事件先追加到有界干预历史，再返回给调用方——
// 该写入先行发生于下一次同类型冷却读取
package intervention

import (
	"time"

	"wisefido-motion-coach/internal/config"
	"wisefido-motion-coach/internal/models"
	"wisefido-motion-coach/internal/ringbuf"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 趋势分类窗口：最近 10 条 vs 之前 10 条
const trendWindow = 10

// Engine 干预触发引擎（风险历史与干预历史的唯一写者）
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger

	riskHistory *ringbuf.Buffer[models.RiskMetrics]
	history     *ringbuf.Buffer[models.InterventionEvent]
}

// NewEngine 创建干预触发引擎
func NewEngine(cfg *config.Config, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		logger:      logger,
		riskHistory: ringbuf.New[models.RiskMetrics](cfg.Coach.Pipeline.RiskHistorySize),
		history:     ringbuf.New[models.InterventionEvent](cfg.Coach.Pipeline.InterventionHistorySize),
	}
}

// Evaluate 评估一帧风险指标，返回触发的干预事件（可能为空）
//
// 只能从管线的处理 goroutine 调用（单写者约束）
func (e *Engine) Evaluate(sessionID string, risk models.RiskMetrics, user models.UserState) []models.InterventionEvent {
	e.riskHistory.Append(risk)
	trend := e.ClassifyTrend()
	th := e.cfg.Coach.Intervention

	var events []models.InterventionEvent

	emit := func(ev models.InterventionEvent) {
		// 先写历史再返回：下一次冷却检查必须看到本事件
		e.history.Append(ev)
		events = append(events, ev)
		e.logger.Info("Intervention triggered",
			zap.String("event_id", ev.EventID),
			zap.String("type", string(ev.Type)),
			zap.String("priority", ev.Priority.String()),
			zap.String("trigger_reason", ev.TriggerReason),
		)
	}

	// 受伤预防：CRITICAL，绕过冷却，始终触发
	if risk.InjuryRisk > th.InjuryThreshold {
		emit(e.buildEvent(sessionID, models.InterventionInjuryPrevention, models.PriorityCritical,
			"injury risk above critical threshold", risk, trend))
	}

	// 动作纠正：HIGH，受冷却窗口约束
	if risk.FormRisk > th.FormThreshold {
		cooldown := time.Duration(th.FormCooldownSec) * time.Second
		if !e.firedWithin(models.InterventionFormCorrection, risk.Timestamp, cooldown) {
			emit(e.buildEvent(sessionID, models.InterventionFormCorrection, models.PriorityHigh,
				"form quality risk above threshold", risk, trend))
		}
	}

	// 疲劳管理：HIGH
	if risk.FatigueRisk > th.FatigueThreshold {
		emit(e.buildEvent(sessionID, models.InterventionFatigueManagement, models.PriorityHigh,
			"fatigue risk above threshold", risk, trend))
	}

	// 平衡辅助：MEDIUM
	if risk.BalanceRisk > th.BalanceThreshold {
		emit(e.buildEvent(sessionID, models.InterventionBalanceAssistance, models.PriorityMedium,
			"balance risk above threshold", risk, trend))
	}

	// 过载警告：MEDIUM
	if risk.OverloadRisk > th.OverloadThreshold {
		emit(e.buildEvent(sessionID, models.InterventionOverloadWarning, models.PriorityMedium,
			"overload risk above threshold", risk, trend))
	}

	// 技术优化建议：LOW，趋势恶化 + 用户接受主动建议
	if trend == models.TrendDegrading && user.Preferences.ProactiveCoaching {
		emit(e.buildEvent(sessionID, models.InterventionTechniqueOptimization, models.PriorityLow,
			"risk trend degrading", risk, trend))
	}

	return events
}

// ClassifyTrend 风险趋势分类
//
// 最近 10 条风险均值与之前 10 条的差：
// Δ > 0.2 → RapidlyDegrading，Δ > 0.1 → Degrading，
// Δ < -0.1 → Improving，否则 Stable；历史不足 20 条 → Unknown
func (e *Engine) ClassifyTrend() models.RiskTrend {
	entries := e.riskHistory.Last(2 * trendWindow)
	if len(entries) < 2*trendWindow {
		return models.TrendUnknown
	}

	var priorSum, recentSum float64
	for i := 0; i < trendWindow; i++ {
		priorSum += entries[i].Mean()
		recentSum += entries[trendWindow+i].Mean()
	}
	delta := (recentSum - priorSum) / trendWindow

	switch {
	case delta > 0.2:
		return models.TrendRapidlyDegrading
	case delta > 0.1:
		return models.TrendDegrading
	case delta < -0.1:
		return models.TrendImproving
	default:
		return models.TrendStable
	}
}

// firedWithin 检查某类型干预是否在窗口内已触发（冷却查询）
//
// 读取的是历史快照，与逐出并发无冲突
func (e *Engine) firedWithin(t models.InterventionType, now time.Time, window time.Duration) bool {
	for _, ev := range e.history.Snapshot() {
		if ev.Type == t && now.Sub(ev.Timestamp) < window && !ev.Timestamp.After(now) {
			return true
		}
	}
	return false
}

// buildEvent 构建干预事件（含建议动作/替代方案/目标身体区域/纠正步骤）
func (e *Engine) buildEvent(sessionID string, t models.InterventionType, p models.Priority, reason string, risk models.RiskMetrics, trend models.RiskTrend) models.InterventionEvent {
	ev := models.InterventionEvent{
		EventID:       uuid.New().String(),
		SessionID:     sessionID,
		Type:          t,
		Priority:      p,
		TriggerReason: reason,
		Risk:          risk,
		Trend:         trend,
		Confidence:    eventConfidence(t, risk),
		Timestamp:     risk.Timestamp,
	}

	switch t {
	case models.InterventionInjuryPrevention:
		ev.RecommendedAction = "Stop the current movement immediately"
		ev.Alternatives = []string{"switch to a low-impact variation", "take a guided rest"}
		ev.BodyRegions = riskRegions(risk)
		ev.CorrectiveSteps = []string{
			"stop and return to a neutral stance",
			"check for pain or discomfort",
			"resume only at reduced intensity",
		}
	case models.InterventionFormCorrection:
		ev.RecommendedAction = "Adjust your form before the next repetition"
		ev.Alternatives = []string{"reduce the range of motion", "use a mirror or camera check"}
		ev.BodyRegions = riskRegions(risk)
		ev.CorrectiveSteps = []string{
			"reset to the starting position",
			"perform one slow repetition with full control",
		}
	case models.InterventionFatigueManagement:
		ev.RecommendedAction = "Take a short rest before continuing"
		ev.Alternatives = []string{"lower the pace", "hydrate"}
		ev.CorrectiveSteps = []string{"pause for 30-60 seconds", "resume at reduced intensity"}
	case models.InterventionBalanceAssistance:
		ev.RecommendedAction = "Widen your stance to regain stability"
		ev.Alternatives = []string{"hold onto a support", "slow the movement down"}
		ev.BodyRegions = []string{models.RegionAnkles, models.RegionHips}
		ev.CorrectiveSteps = []string{"plant both feet firmly", "re-center your weight"}
	case models.InterventionOverloadWarning:
		ev.RecommendedAction = "Reduce the load on the highlighted regions"
		ev.Alternatives = []string{"shorten the range of motion", "switch sides"}
		ev.BodyRegions = riskRegions(risk)
		ev.CorrectiveSteps = []string{"ease out of the current position", "redistribute your weight"}
	case models.InterventionTechniqueOptimization:
		ev.RecommendedAction = "Consider refining your technique - risk is trending up"
		ev.Alternatives = []string{"review the exercise guide", "slow down for a few repetitions"}
		ev.CorrectiveSteps = []string{"focus on controlled, symmetric movement"}
	}

	return ev
}

// eventConfidence 触发风险值相对阈值的超出程度
func eventConfidence(t models.InterventionType, risk models.RiskMetrics) float64 {
	var score float64
	switch t {
	case models.InterventionInjuryPrevention:
		score = risk.InjuryRisk
	case models.InterventionFormCorrection:
		score = risk.FormRisk
	case models.InterventionFatigueManagement:
		score = risk.FatigueRisk
	case models.InterventionBalanceAssistance:
		score = risk.BalanceRisk
	case models.InterventionOverloadWarning:
		score = risk.OverloadRisk
	default:
		score = risk.Mean()
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// riskRegions 按风险子项推断目标身体区域
func riskRegions(risk models.RiskMetrics) []string {
	var regions []string
	if risk.AngleRisk > 0.5 {
		regions = append(regions, models.RegionKnees)
	}
	if risk.OverloadRisk > 0.5 {
		regions = append(regions, models.RegionLowerBack)
	}
	if risk.BalanceRisk > 0.5 {
		regions = append(regions, models.RegionAnkles)
	}
	if len(regions) == 0 {
		regions = append(regions, models.RegionHips)
	}
	return regions
}

// History 干预历史快照（从旧到新）
func (e *Engine) History() []models.InterventionEvent {
	return e.history.Snapshot()
}

// RiskHistory 风险历史快照（从旧到新）
func (e *Engine) RiskHistory() []models.RiskMetrics {
	return e.riskHistory.Snapshot()
}

// Reset 清空风险和干预历史（会话重置时调用）
func (e *Engine) Reset() {
	e.riskHistory.Clear()
	e.history.Clear()
}
