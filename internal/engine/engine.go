// Package engine 实时教练决策管线
//
// 每帧观测执行一次完整的处理流程：
// 运动状态推导 → 分析器并发 fan-out/有界 join → 上下文聚合
// → 决策合成 → 优先级分发；干预触发引擎独立消费风险指标；
// 自适应控制器以粗粒度节拍调整降级标志。
//
// 并发模型：每个引擎实例同一时刻至多一个在途的 Process 调用，
// 在途期间到达的新调用被丢弃（不排队）并计入指标，
// 保证帧/风险/干预历史不会被并发修改
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"wisefido-motion-coach/internal/adaptive"
	"wisefido-motion-coach/internal/aggregator"
	"wisefido-motion-coach/internal/analyzer"
	"wisefido-motion-coach/internal/config"
	"wisefido-motion-coach/internal/dispatch"
	"wisefido-motion-coach/internal/intervention"
	"wisefido-motion-coach/internal/models"
	"wisefido-motion-coach/internal/movement"
	"wisefido-motion-coach/internal/ringbuf"
	"wisefido-motion-coach/internal/synthesizer"

	"go.uber.org/zap"
)

// 发射通道缓冲大小（下游消费者短暂落后时的缓冲）
const emitBuffer = 64

// 反馈查询用的近期决策缓存容量
const recentDecisionCap = 100

// CoachEngine 教练决策引擎
type CoachEngine struct {
	cfg    *config.Config
	logger *zap.Logger

	builder       *movement.Builder
	runner        *analyzer.Runner
	aggregator    *aggregator.Aggregator
	synthesizer   *synthesizer.Synthesizer
	interventions *intervention.Engine
	queue         *dispatch.Queue
	controller    *adaptive.Controller

	// 单写者状态（仅 Process 内读写）
	workout      models.WorkoutContext
	sessionStart time.Time

	// 单飞门闸
	inFlight atomic.Bool

	// 指标计数
	totalDecisions     atomic.Int64
	totalInterventions atomic.Int64
	dropped            atomic.Int64
	invalid            atomic.Int64
	evictions          atomic.Int64
	emitDropped        atomic.Int64
	confidenceSum      atomic.Int64 // 千分位定点累计

	// 反馈查询用的近期决策
	recent *ringbuf.Buffer[*models.Decision]

	decisionCh     chan *models.Decision
	interventionCh chan *models.InterventionEvent

	startedAt time.Time
}

// NewCoachEngine 创建教练决策引擎
func NewCoachEngine(cfg *config.Config, logger *zap.Logger) *CoachEngine {
	controller := adaptive.NewController(cfg, logger)
	return &CoachEngine{
		cfg:            cfg,
		logger:         logger,
		builder:        movement.NewBuilder(cfg.Coach.Pipeline.FrameBufferSize, logger),
		runner:         analyzer.NewRunner(controller.Flags(), time.Duration(cfg.Coach.Pipeline.AnalyzerTimeoutMs)*time.Millisecond, logger),
		aggregator:     aggregator.NewAggregator(controller.Flags(), logger),
		synthesizer:    synthesizer.NewSynthesizer(logger),
		interventions:  intervention.NewEngine(cfg, logger),
		queue:          dispatch.NewQueue(cfg.Coach.Pipeline.QueueCapacity),
		controller:     controller,
		recent:         ringbuf.New[*models.Decision](recentDecisionCap),
		decisionCh:     make(chan *models.Decision, emitBuffer),
		interventionCh: make(chan *models.InterventionEvent, emitBuffer),
		startedAt:      time.Now(),
	}
}

// Decisions 决策发射通道（所有通过验证的决策）
func (e *CoachEngine) Decisions() <-chan *models.Decision {
	return e.decisionCh
}

// Interventions 干预发射通道（独立于决策通道）
func (e *CoachEngine) Interventions() <-chan *models.InterventionEvent {
	return e.interventionCh
}

// Process 处理一帧观测（唯一入口）
//
// 帧率调用安全：已有调用在途时本次观测被丢弃并计入指标，
// 不向调用方传播错误；在途调用总是运行到完成或其内部超时
func (e *CoachEngine) Process(ctx context.Context, obs *models.PoseObservation, user models.UserState) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.dropped.Add(1)
		e.logger.Warn("Observation dropped, previous call still in flight",
			zap.String("session_id", obs.SessionID),
		)
		return
	}
	defer e.inFlight.Store(false)

	start := time.Now()
	if e.sessionStart.IsZero() {
		e.sessionStart = obs.Timestamp
	}

	// 1. 运动状态推导
	frame := e.builder.Build(obs)

	// 2. 分析器并发 fan-out + 有界 join
	results := e.runner.RunAll(ctx, analyzer.Input{
		Frame:        frame,
		History:      e.builder.History(),
		Workout:      e.workout,
		User:         user,
		SessionStart: e.sessionStart,
	})

	hadError := false
	var risk *models.RiskMetrics
	for _, r := range results {
		if r.Error != "" {
			hadError = true
		}
		if r.Absent() {
			continue
		}
		switch r.Component {
		case models.ComponentWorkoutContext:
			if r.Workout != nil {
				// 训练上下文单写者：引擎在 join 后提交
				e.workout = *r.Workout
			}
		case models.ComponentRiskAssessment:
			risk = r.Risk
		}
	}

	// 3. 干预触发引擎（独立于决策合成，消费风险指标）
	if risk != nil {
		for _, ev := range e.interventions.Evaluate(obs.SessionID, *risk, user) {
			ev := ev
			e.totalInterventions.Add(1)
			e.emitIntervention(&ev)
		}
	}

	// 4. 上下文聚合
	decisionCtx := e.aggregator.Aggregate(aggregator.Input{
		Timestamp: obs.Timestamp,
		Results:   results,
		Workout:   e.workout,
		User:      user,
		Frame:     frame,
		Session:   e.sessionSummary(obs.SessionID),
	})

	// 5. 决策合成 + 验证
	decision, reason := e.synthesizer.Synthesize(obs.SessionID, decisionCtx)
	switch {
	case decision != nil:
		decision.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		e.totalDecisions.Add(1)
		e.confidenceSum.Add(int64(decision.Confidence * 1000))
		e.recent.Append(decision)
		e.emitDecision(decision)

		// High 及以上进入二级处理队列
		if decision.Priority >= models.PriorityHigh {
			if evicted := e.queue.Push(decision); evicted != nil {
				e.evictions.Add(1)
				e.logger.Debug("Queue evicted decision",
					zap.String("decision_id", evicted.DecisionID),
					zap.String("priority", evicted.Priority.String()),
				)
			}
		}
	case reason == "low_confidence" || reason == "empty_message" || reason == "no_actions":
		// 验证失败：静默丢弃，计入错误率
		e.invalid.Add(1)
		hadError = true
	}

	// 6. 自适应模式控制（粗粒度节拍）
	e.controller.Observe(float64(time.Since(start).Microseconds())/1000.0, hadError)
}

// DequeueSecondary 取出一条待二级处理的高优先级决策（空队列返回 nil）
func (e *CoachEngine) DequeueSecondary() *models.Decision {
	return e.queue.Pop()
}

// GetMetrics 运行指标快照（只读非阻塞）
func (e *CoachEngine) GetMetrics() models.SystemMetrics {
	elapsed := time.Since(e.startedAt).Seconds()
	var throughput float64
	if elapsed > 0 {
		throughput = float64(e.controller.Processed()) / elapsed
	}
	return models.SystemMetrics{
		AvgLatencyMs:        e.controller.AvgLatencyMs(),
		TotalObservations:   e.controller.Processed(),
		TotalDecisions:      e.totalDecisions.Load(),
		TotalInterventions:  e.totalInterventions.Load(),
		DroppedObservations: e.dropped.Load(),
		InvalidDecisions:    e.invalid.Load(),
		QueueEvictions:      e.evictions.Load(),
		SystemLoad:          e.controller.Load(),
		ErrorRate:           e.controller.ErrorRate(),
		ThroughputPerSec:    throughput,
		ActiveModes:         e.controller.Flags().Snapshot().String(),
	}
}

// UpdateFeedback 回传决策效果（不影响在途处理）
func (e *CoachEngine) UpdateFeedback(fb models.DecisionFeedback) bool {
	for _, d := range e.recent.Snapshot() {
		if d.DecisionID == fb.DecisionID {
			e.synthesizer.ApplyFeedback(d.Type, fb.Effectiveness)
			e.logger.Debug("Decision feedback applied",
				zap.String("decision_id", fb.DecisionID),
				zap.Float64("effectiveness", fb.Effectiveness),
				zap.String("user_response", fb.UserResponse),
			)
			return true
		}
	}
	e.logger.Warn("Feedback for unknown decision",
		zap.String("decision_id", fb.DecisionID),
	)
	return false
}

// ResetSession 清空所有有界历史和模式标志
//
// 只能在无观测在途时调用；在途时返回 false 且不做任何修改
func (e *CoachEngine) ResetSession() bool {
	if !e.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer e.inFlight.Store(false)

	e.resetLocked()
	return true
}

// EndSession 结束会话：捕获会话摘要后清空状态
//
// 与 ResetSession 相同的门闸规则；摘要供上层持久化
func (e *CoachEngine) EndSession(sessionID string) (*models.SessionSummary, bool) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, false
	}
	defer e.inFlight.Store(false)

	summary := e.sessionSummary(sessionID)
	e.resetLocked()
	return summary, true
}

// resetLocked 清空所有有界历史和模式标志（调用方必须持有门闸）
func (e *CoachEngine) resetLocked() {
	e.builder.Reset()
	e.interventions.Reset()
	e.synthesizer.Reset()
	e.queue.Clear()
	e.controller.Reset()
	e.recent.Clear()
	e.workout = models.WorkoutContext{}
	e.sessionStart = time.Time{}
	e.totalDecisions.Store(0)
	e.totalInterventions.Store(0)
	e.dropped.Store(0)
	e.invalid.Store(0)
	e.evictions.Store(0)
	e.emitDropped.Store(0)
	e.confidenceSum.Store(0)

	e.logger.Info("Session reset")
}

// InterventionHistory 干预历史快照（查询服务使用）
func (e *CoachEngine) InterventionHistory() []models.InterventionEvent {
	return e.interventions.History()
}

// sessionSummary 从计数器构建会话摘要（可选富化项）
func (e *CoachEngine) sessionSummary(sessionID string) *models.SessionSummary {
	decisions := e.totalDecisions.Load()
	var avgConfidence float64
	if decisions > 0 {
		avgConfidence = float64(e.confidenceSum.Load()) / 1000.0 / float64(decisions)
	}
	return &models.SessionSummary{
		SessionID:         sessionID,
		StartedAt:         e.sessionStart,
		ObservationCount:  e.controller.Processed(),
		DecisionCount:     decisions,
		InterventionCount: e.totalInterventions.Load(),
		AvgConfidence:     avgConfidence,
		DominantPhase:     e.workout.Phase,
	}
}

// emitDecision 非阻塞发射：下游长期不消费时丢弃而不是拖垮管线
func (e *CoachEngine) emitDecision(d *models.Decision) {
	select {
	case e.decisionCh <- d:
	default:
		e.emitDropped.Add(1)
		e.logger.Warn("Decision channel full, emission dropped",
			zap.String("decision_id", d.DecisionID),
		)
	}
}

func (e *CoachEngine) emitIntervention(ev *models.InterventionEvent) {
	select {
	case e.interventionCh <- ev:
	default:
		e.emitDropped.Add(1)
		e.logger.Warn("Intervention channel full, emission dropped",
			zap.String("event_id", ev.EventID),
		)
	}
}
