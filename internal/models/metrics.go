package models

// SystemMetrics 管线运行指标快照（GetMetrics 返回，只读非阻塞）
type SystemMetrics struct {
	AvgLatencyMs        float64 `json:"avg_latency_ms"`
	TotalObservations   int64   `json:"total_observations"`
	TotalDecisions      int64   `json:"total_decisions"`
	TotalInterventions  int64   `json:"total_interventions"`
	DroppedObservations int64   `json:"dropped_observations"` // 单飞策略丢弃数
	InvalidDecisions    int64   `json:"invalid_decisions"`    // 验证失败被拒的决策数
	QueueEvictions      int64   `json:"queue_evictions"`      // 优先级队列逐出数
	SystemLoad          float64 `json:"system_load"`          // 0.0-1.0，延迟相对预算的占比
	ErrorRate           float64 `json:"error_rate"`           // 无效决策 + 降级分析占比
	ThroughputPerSec    float64 `json:"throughput_per_sec"`
	ActiveModes         string  `json:"active_modes"` // 如 "fast|lightweight"
}
