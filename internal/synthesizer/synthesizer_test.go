package synthesizer

import (
	"testing"
	"time"

	"wisefido-motion-coach/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func baseContext(confidence float64) models.DecisionContext {
	return models.DecisionContext{
		Timestamp: time.Now(),
		Workout:   models.WorkoutContext{Phase: models.PhaseMain, Intensity: 0.6, Confidence: confidence},
		User:      models.UserState{Mood: 0.6, Energy: 0.6, Focus: 0.6},
		Analyses: []models.AnalysisResult{
			{Component: models.ComponentWorkoutContext, Summary: "phase=main", Confidence: confidence},
			{Component: models.ComponentRiskAssessment, Summary: "overall=0.2", Confidence: confidence},
		},
	}
}

func withRisk(ctx models.DecisionContext, risk models.RiskMetrics) models.DecisionContext {
	risk.Timestamp = ctx.Timestamp
	ctx.Risk = &risk
	return ctx
}

func TestSynthesize_SafetyFirstMatchWins(t *testing.T) {
	s := NewSynthesizer(zap.NewNop())

	// 受伤风险和动作质量同时超标：安全规则优先
	ctx := withRisk(baseContext(0.8), models.RiskMetrics{InjuryRisk: 0.7, FormRisk: 0.9})

	decision, reason := s.Synthesize("session-1", ctx)

	require.NotNil(t, decision, "reason=%s", reason)
	assert.Equal(t, models.DecisionSafety, decision.Type)
	assert.Equal(t, models.PriorityCritical, decision.Priority)
	assert.Contains(t, decision.Reasoning.Triggers, "injury_risk_elevated")
	assert.NotEmpty(t, decision.Content.PrimaryMessage)
	assert.NotEmpty(t, decision.Actions)
	assert.NotEmpty(t, decision.DecisionID)
}

func TestSynthesize_FormCorrection(t *testing.T) {
	s := NewSynthesizer(zap.NewNop())

	ctx := withRisk(baseContext(0.8), models.RiskMetrics{FormRisk: 0.6, AngleRisk: 0.55})

	decision, _ := s.Synthesize("session-1", ctx)

	require.NotNil(t, decision)
	assert.Equal(t, models.DecisionFormCorrection, decision.Type)
	assert.Equal(t, models.PriorityHigh, decision.Priority)
	assert.Contains(t, decision.Reasoning.Triggers, "form_quality_degraded")
	assert.Contains(t, decision.Reasoning.Triggers, "joint_angle_unsafe")
}

func TestSynthesize_MotivationFromFeedbackNeed(t *testing.T) {
	s := NewSynthesizer(zap.NewNop())

	ctx := baseContext(0.8)
	ctx.Analyses = append(ctx.Analyses, models.AnalysisResult{
		Component:  models.ComponentFeedbackNeed,
		Summary:    "need=motivation score=0.80",
		Confidence: 0.7,
	})

	decision, _ := s.Synthesize("session-1", ctx)

	require.NotNil(t, decision)
	assert.Equal(t, models.DecisionMotivation, decision.Type)
	assert.Equal(t, models.PriorityMedium, decision.Priority)
}

func TestSynthesize_ProgressDefault(t *testing.T) {
	s := NewSynthesizer(zap.NewNop())

	decision, _ := s.Synthesize("session-1", baseContext(0.8))

	require.NotNil(t, decision)
	assert.Equal(t, models.DecisionProgress, decision.Type)
	assert.Equal(t, models.PriorityLow, decision.Priority)
}

func TestSynthesize_ConfidenceIsMeanOfAnalyses(t *testing.T) {
	s := NewSynthesizer(zap.NewNop())

	ctx := baseContext(0.8)
	ctx.Analyses = []models.AnalysisResult{
		{Component: models.ComponentWorkoutContext, Confidence: 0.6},
		{Component: models.ComponentRiskAssessment, Confidence: 0.8},
	}

	decision, _ := s.Synthesize("session-1", ctx)

	require.NotNil(t, decision)
	assert.InDelta(t, 0.7, decision.Confidence, 0.001)
	assert.Equal(t, 0.6, decision.Reasoning.SourceConfidence[models.ComponentWorkoutContext])
	assert.Equal(t, 0.8, decision.Reasoning.SourceConfidence[models.ComponentRiskAssessment])
}

func TestSynthesize_RejectsLowConfidence(t *testing.T) {
	s := NewSynthesizer(zap.NewNop())

	// 置信度 0.29 ≤ 0.3：拒绝
	decision, reason := s.Synthesize("session-1", baseContext(0.29))
	assert.Nil(t, decision)
	assert.Equal(t, "low_confidence", reason)

	// 置信度 0.31：通过
	decision, reason = s.Synthesize("session-1", baseContext(0.31))
	require.NotNil(t, decision, "reason=%s", reason)
	assert.InDelta(t, 0.31, decision.Confidence, 0.001)
}

func TestSynthesize_NoAnalysesNoDecision(t *testing.T) {
	s := NewSynthesizer(zap.NewNop())

	ctx := baseContext(0.8)
	ctx.Analyses = nil

	decision, reason := s.Synthesize("session-1", ctx)
	assert.Nil(t, decision)
	assert.Equal(t, "no_analyses", reason)
}

func TestSynthesize_NoTriggerOutsideActivePhases(t *testing.T) {
	s := NewSynthesizer(zap.NewNop())

	ctx := baseContext(0.8)
	ctx.Workout.Phase = models.PhaseUnknown

	decision, reason := s.Synthesize("session-1", ctx)
	assert.Nil(t, decision)
	assert.Equal(t, "no_trigger", reason)
}

func TestApplyFeedback_BiasesConfidence(t *testing.T) {
	s := NewSynthesizer(zap.NewNop())

	// 多次负面反馈把进展类决策的置信度往下压
	for i := 0; i < 20; i++ {
		s.ApplyFeedback(models.DecisionProgress, 0.0)
	}

	with, _ := s.Synthesize("session-1", baseContext(0.8))
	require.NotNil(t, with)
	assert.Less(t, with.Confidence, 0.8)

	// 偏置有界：不低于均值 - 0.1
	assert.GreaterOrEqual(t, with.Confidence, 0.8-0.101)

	s.Reset()
	after, _ := s.Synthesize("session-1", baseContext(0.8))
	require.NotNil(t, after)
	assert.InDelta(t, 0.8, after.Confidence, 0.001)
}
