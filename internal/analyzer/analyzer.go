// Package analyzer 风险与上下文分析器
//
// 固定的一组独立分析器，各自以只读方式消费运动状态帧和滚动历史，
// 产出一个 AnalysisResult。分析器之间不共享可变状态、不阻塞；
// 内部失败时返回置信度 0 的降级结果而不是向外传播异常
package analyzer

import (
	"context"
	"fmt"
	"time"

	"wisefido-motion-coach/internal/adaptive"
	"wisefido-motion-coach/internal/models"

	"go.uber.org/zap"
)

// Input 一次分析的只读输入
type Input struct {
	Frame        models.MovementFrame
	History      []models.MovementFrame // 帧历史快照（从旧到新）
	Workout      models.WorkoutContext  // 上一帧的训练上下文
	User         models.UserState
	SessionStart time.Time
	Mode         adaptive.Mode // 本次处理的降级标志（RunAll 填充）
}

// Analyzer 单个分析器
type Analyzer interface {
	// Name 组件标识（models.Component* 常量）
	Name() string
	// Analyze 纯函数分析，必须快速返回且不阻塞
	Analyze(input Input) models.AnalysisResult
	// Optional Lightweight 模式下是否可整体跳过
	Optional() bool
}

// Runner 并发执行所有分析器并做有界 join
type Runner struct {
	analyzers []Analyzer
	flags     *adaptive.Flags
	timeout   time.Duration
	logger    *zap.Logger
}

// NewRunner 创建分析器执行器（默认分析器集合）
func NewRunner(flags *adaptive.Flags, timeout time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		analyzers: []Analyzer{
			NewWorkoutContextAnalyzer(),
			NewRiskAnalyzer(),
			NewFeedbackNeedAnalyzer(),
			NewInterventionNeedAnalyzer(),
		},
		flags:   flags,
		timeout: timeout,
		logger:  logger,
	}
}

// RunAll 并发运行分析器，等待全部完成或超时（先到为准）
//
// 超时未返回的分析器按缺失处理（置信度 0），join 永不无限阻塞；
// Fast 模式传入分析器，由各分析器跳过历史扫描类富化；
// Lightweight 模式下直接跳过可选分析器；
// Robust 模式下对返回错误标记的分析器做一次有界重试
func (r *Runner) RunAll(ctx context.Context, input Input) []models.AnalysisResult {
	mode := r.flags.Snapshot()
	input.Mode = mode

	type slot struct {
		idx int
		res models.AnalysisResult
	}

	results := make([]models.AnalysisResult, 0, len(r.analyzers))
	ch := make(chan slot, len(r.analyzers))
	launched := 0

	for i, a := range r.analyzers {
		if mode&adaptive.ModeLightweight != 0 && a.Optional() {
			continue
		}
		launched++
		go func(idx int, a Analyzer) {
			res := r.runOne(a, input)
			if res.Error != "" && mode&adaptive.ModeRobust != 0 {
				// Robust：瞬时失败重试一次
				res = r.runOne(a, input)
			}
			ch <- slot{idx: idx, res: res}
		}(i, a)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	received := 0
	for received < launched {
		select {
		case s := <-ch:
			results = append(results, s.res)
			received++
		case <-timer.C:
			r.logger.Warn("Analyzer join timed out",
				zap.Int("received", received),
				zap.Int("launched", launched),
				zap.Duration("timeout", r.timeout),
			)
			return results
		case <-ctx.Done():
			return results
		}
	}
	return results
}

// runOne 运行单个分析器，panic 转为降级结果
func (r *Runner) runOne(a Analyzer, input Input) (res models.AnalysisResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Analyzer panicked",
				zap.String("component", a.Name()),
				zap.Any("panic", rec),
			)
			res = Degraded(a.Name(), fmt.Sprintf("panic: %v", rec))
		}
	}()
	return a.Analyze(input)
}

// Degraded 构造降级结果（置信度 0，带错误标记）
//
// 聚合器将这类结果视为缺失，而不是零值信号
func Degraded(component, errMsg string) models.AnalysisResult {
	return models.AnalysisResult{
		Component:  component,
		Summary:    "analysis unavailable",
		Confidence: 0,
		Error:      errMsg,
	}
}
