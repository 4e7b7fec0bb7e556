package intervention

import (
	"testing"
	"time"

	"wisefido-motion-coach/internal/config"
	"wisefido-motion-coach/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T) *Engine {
	cfg, err := config.Load()
	require.NoError(t, err)
	return NewEngine(cfg, zap.NewNop())
}

func riskAt(ts time.Time) models.RiskMetrics {
	return models.RiskMetrics{Timestamp: ts}
}

func typesOf(events []models.InterventionEvent) []models.InterventionType {
	var out []models.InterventionType
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestEvaluate_NoRiskNoEvents(t *testing.T) {
	e := newTestEngine(t)

	events := e.Evaluate("s1", riskAt(time.Now()), models.UserState{})

	assert.Empty(t, events)
	assert.Empty(t, e.History())
}

func TestEvaluate_InjuryCritical(t *testing.T) {
	e := newTestEngine(t)

	risk := riskAt(time.Now())
	risk.InjuryRisk = 0.85

	events := e.Evaluate("s1", risk, models.UserState{})

	require.Len(t, events, 1)
	assert.Equal(t, models.InterventionInjuryPrevention, events[0].Type)
	assert.Equal(t, models.PriorityCritical, events[0].Priority)
	assert.NotEmpty(t, events[0].RecommendedAction)
	assert.NotEmpty(t, events[0].CorrectiveSteps)
	assert.Equal(t, 0.85, events[0].Risk.InjuryRisk)
}

func TestEvaluate_FormCooldownEnforcement(t *testing.T) {
	e := newTestEngine(t)
	t0 := time.Now()

	form := func(ts time.Time) models.RiskMetrics {
		r := riskAt(ts)
		r.FormRisk = 0.7
		return r
	}

	// 第一次：触发
	events := e.Evaluate("s1", form(t0), models.UserState{})
	require.Len(t, events, 1)
	assert.Equal(t, models.InterventionFormCorrection, events[0].Type)
	assert.Equal(t, models.PriorityHigh, events[0].Priority)

	// 15 秒内的第二次：被冷却抑制
	events = e.Evaluate("s1", form(t0.Add(5*time.Second)), models.UserState{})
	assert.Empty(t, events)

	// 15 秒后的第三次：再次触发
	events = e.Evaluate("s1", form(t0.Add(16*time.Second)), models.UserState{})
	require.Len(t, events, 1)
	assert.Equal(t, models.InterventionFormCorrection, events[0].Type)

	// 历史共两条动作纠正事件
	assert.Len(t, e.History(), 2)
}

func TestEvaluate_CriticalBypassesCooldown(t *testing.T) {
	e := newTestEngine(t)
	t0 := time.Now()

	// 先触发一次动作纠正，进入冷却
	r1 := riskAt(t0)
	r1.FormRisk = 0.7
	e.Evaluate("s1", r1, models.UserState{})

	// 冷却窗口内出现受伤风险：CRITICAL 必须照常触发
	r2 := riskAt(t0.Add(2 * time.Second))
	r2.InjuryRisk = 0.9
	r2.FormRisk = 0.7

	events := e.Evaluate("s1", r2, models.UserState{})

	require.Len(t, events, 1)
	assert.Equal(t, models.InterventionInjuryPrevention, events[0].Type)
	assert.Equal(t, models.PriorityCritical, events[0].Priority)
}

func TestEvaluate_MultipleEventsSameFrame(t *testing.T) {
	e := newTestEngine(t)

	risk := riskAt(time.Now())
	risk.FatigueRisk = 0.8
	risk.BalanceRisk = 0.7
	risk.OverloadRisk = 0.75

	events := e.Evaluate("s1", risk, models.UserState{})

	types := typesOf(events)
	assert.Contains(t, types, models.InterventionFatigueManagement)
	assert.Contains(t, types, models.InterventionBalanceAssistance)
	assert.Contains(t, types, models.InterventionOverloadWarning)
	assert.Len(t, events, 3)
}

func TestEvaluate_ProactiveTechniqueOptimization(t *testing.T) {
	e := newTestEngine(t)
	t0 := time.Now()
	user := models.UserState{Preferences: models.UserPreferences{ProactiveCoaching: true}}

	// 前 10 条低风险，后 10 条抬升 0.15 → Degrading
	feed := func(base float64, offset int, n int) {
		for i := 0; i < n; i++ {
			r := riskAt(t0.Add(time.Duration(offset+i) * 33 * time.Millisecond))
			r.InjuryRisk = base
			r.FormRisk = base
			r.FatigueRisk = base
			r.OverloadRisk = base
			r.BalanceRisk = base
			r.VelocityRisk = base
			r.AngleRisk = base
			e.Evaluate("s1", r, user)
		}
	}

	feed(0.2, 0, 10)
	feed(0.35, 10, 9)

	// 第 20 条进入窗口后触发技术优化建议
	r := riskAt(t0.Add(19 * 33 * time.Millisecond))
	r.InjuryRisk, r.FormRisk, r.FatigueRisk = 0.35, 0.35, 0.35
	r.OverloadRisk, r.BalanceRisk, r.VelocityRisk, r.AngleRisk = 0.35, 0.35, 0.35, 0.35

	events := e.Evaluate("s1", r, user)

	require.Len(t, events, 1)
	assert.Equal(t, models.InterventionTechniqueOptimization, events[0].Type)
	assert.Equal(t, models.PriorityLow, events[0].Priority)
	assert.Equal(t, models.TrendDegrading, events[0].Trend)
}

func TestEvaluate_NoProactiveWithoutPreference(t *testing.T) {
	e := newTestEngine(t)
	t0 := time.Now()
	user := models.UserState{} // 未开启主动建议

	for i := 0; i < 10; i++ {
		r := riskAt(t0.Add(time.Duration(i) * time.Second))
		r.FormRisk = 0.2
		e.Evaluate("s1", r, user)
	}
	for i := 10; i < 20; i++ {
		r := riskAt(t0.Add(time.Duration(i) * time.Second))
		r.FormRisk = 0.59 // 低于触发阈值但足以形成恶化趋势
		e.Evaluate("s1", r, user)
	}

	assert.Empty(t, e.History())
}

// ============================================
// 趋势分类
// ============================================

func TestClassifyTrend_InsufficientHistory(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, models.TrendUnknown, e.ClassifyTrend())
}

func trendEngine(t *testing.T, priorMean, recentMean float64) *Engine {
	e := newTestEngine(t)
	t0 := time.Now()
	set := func(r *models.RiskMetrics, v float64) {
		r.InjuryRisk = v
		r.FormRisk = v
		r.FatigueRisk = v
		r.OverloadRisk = v
		r.BalanceRisk = v
		r.VelocityRisk = v
		r.AngleRisk = v
	}
	for i := 0; i < 10; i++ {
		r := riskAt(t0.Add(time.Duration(i) * 33 * time.Millisecond))
		set(&r, priorMean)
		e.riskHistory.Append(r)
	}
	for i := 10; i < 20; i++ {
		r := riskAt(t0.Add(time.Duration(i) * 33 * time.Millisecond))
		set(&r, recentMean)
		e.riskHistory.Append(r)
	}
	return e
}

func TestClassifyTrend_RapidlyDegrading(t *testing.T) {
	// 均值抬升 0.25 > 0.2
	e := trendEngine(t, 0.2, 0.45)
	assert.Equal(t, models.TrendRapidlyDegrading, e.ClassifyTrend())
}

func TestClassifyTrend_Degrading(t *testing.T) {
	e := trendEngine(t, 0.2, 0.35)
	assert.Equal(t, models.TrendDegrading, e.ClassifyTrend())
}

func TestClassifyTrend_Improving(t *testing.T) {
	e := trendEngine(t, 0.5, 0.3)
	assert.Equal(t, models.TrendImproving, e.ClassifyTrend())
}

func TestClassifyTrend_Stable(t *testing.T) {
	e := trendEngine(t, 0.3, 0.32)
	assert.Equal(t, models.TrendStable, e.ClassifyTrend())
}

// ============================================
// 有界历史
// ============================================

func TestHistoriesBounded(t *testing.T) {
	e := newTestEngine(t)
	t0 := time.Now()

	for i := 0; i < 300; i++ {
		r := riskAt(t0.Add(time.Duration(i) * time.Minute)) // 间隔超过冷却窗口
		r.InjuryRisk = 0.9
		e.Evaluate("s1", r, models.UserState{})
	}

	assert.Len(t, e.RiskHistory(), 100)
	assert.Len(t, e.History(), 50)
}

func TestReset(t *testing.T) {
	e := newTestEngine(t)
	r := riskAt(time.Now())
	r.InjuryRisk = 0.9
	e.Evaluate("s1", r, models.UserState{})
	require.NotEmpty(t, e.History())

	e.Reset()
	assert.Empty(t, e.History())
	assert.Empty(t, e.RiskHistory())
	assert.Equal(t, models.TrendUnknown, e.ClassifyTrend())
}
