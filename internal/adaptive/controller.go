// Package adaptive 自适应模式控制
//
// 控制器以粗粒度节拍（默认每 50 帧）检查滚动延迟、错误率和负载，
// 按转换规则抬起进程级降级标志；标志粘滞，只在会话重置时清除
package adaptive

import (
	"sync/atomic"

	"wisefido-motion-coach/internal/config"
	"wisefido-motion-coach/internal/ringbuf"

	"go.uber.org/zap"
)

// 延迟滚动窗口大小
const latencyWindow = 100

// Controller 自适应模式控制器
//
// Observe 只能从管线的处理 goroutine 调用（单写者）；
// 指标读取（AvgLatencyMs/Load/ErrorRate）可从任意 goroutine 调用
type Controller struct {
	flags  *Flags
	cfg    *config.Config
	logger *zap.Logger

	latencies *ringbuf.Buffer[float64]
	processed atomic.Int64
	errors    atomic.Int64
}

// NewController 创建控制器
func NewController(cfg *config.Config, logger *zap.Logger) *Controller {
	return &Controller{
		flags:     &Flags{},
		cfg:       cfg,
		logger:    logger,
		latencies: ringbuf.New[float64](latencyWindow),
	}
}

// Flags 供各阶段读取的模式标志
func (c *Controller) Flags() *Flags {
	return c.flags
}

// Observe 记录一次观测的处理结果，按节拍评估模式转换
func (c *Controller) Observe(latencyMs float64, hadError bool) {
	c.latencies.Append(latencyMs)
	n := c.processed.Add(1)
	if hadError {
		c.errors.Add(1)
	}

	interval := int64(c.cfg.Coach.Adaptive.CheckInterval)
	if interval <= 0 || n%interval != 0 {
		return
	}
	c.evaluate()
}

// evaluate 模式转换规则（各布尔条件独立，可同时抬起多个标志）
func (c *Controller) evaluate() {
	before := c.flags.Snapshot()

	avgLatency := c.AvgLatencyMs()
	load := c.Load()
	errorRate := c.ErrorRate()

	if avgLatency > c.cfg.Coach.Adaptive.FastLatencyMs {
		c.flags.Raise(ModeFast)
	}
	if load > c.cfg.Coach.Adaptive.LightweightLoad {
		c.flags.Raise(ModeLightweight)
	}
	if errorRate > c.cfg.Coach.Adaptive.RobustErrorRate {
		c.flags.Raise(ModeRobust)
	}

	after := c.flags.Snapshot()
	if after != before {
		c.logger.Warn("Pipeline mode degraded",
			zap.String("modes", after.String()),
			zap.Float64("avg_latency_ms", avgLatency),
			zap.Float64("load", load),
			zap.Float64("error_rate", errorRate),
		)
	}
}

// AvgLatencyMs 滚动窗口内的平均处理延迟（毫秒）
func (c *Controller) AvgLatencyMs() float64 {
	window := c.latencies.Snapshot()
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

// Load 系统负载（平均延迟相对延迟预算的占比，0.0-1.0+）
func (c *Controller) Load() float64 {
	budget := float64(c.cfg.Coach.Pipeline.LatencyBudgetMs)
	if budget <= 0 {
		return 0
	}
	return c.AvgLatencyMs() / budget
}

// ErrorRate 累计错误率
func (c *Controller) ErrorRate() float64 {
	n := c.processed.Load()
	if n == 0 {
		return 0
	}
	return float64(c.errors.Load()) / float64(n)
}

// Processed 已处理观测数
func (c *Controller) Processed() int64 {
	return c.processed.Load()
}

// Reset 清除标志和滚动指标（会话重置时调用）
func (c *Controller) Reset() {
	c.flags.Reset()
	c.latencies.Clear()
	c.processed.Store(0)
	c.errors.Store(0)
}
