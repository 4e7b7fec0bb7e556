package adaptive

import (
	"strings"
	"sync/atomic"
)

// Mode 管线降级标志位（可组合）
type Mode uint32

const (
	// ModeFast 分析器和聚合器跳过可选富化
	ModeFast Mode = 1 << iota
	// ModeLightweight 跳过部分分析器
	ModeLightweight
	// ModeRobust 分析器对瞬时失败做有界重试
	ModeRobust
)

// String 激活标志名称，如 "fast|lightweight"；无标志时为 "normal"
func (m Mode) String() string {
	if m == 0 {
		return "normal"
	}
	var parts []string
	if m&ModeFast != 0 {
		parts = append(parts, "fast")
	}
	if m&ModeLightweight != 0 {
		parts = append(parts, "lightweight")
	}
	if m&ModeRobust != 0 {
		parts = append(parts, "robust")
	}
	return strings.Join(parts, "|")
}

// Flags 进程级模式标志（控制器单写，各阶段宽松读取）
//
// 写入频率很低（粗粒度节拍），读者容忍一个周期的陈旧值，
// 因此用无锁原子读写，不加全局锁
type Flags struct {
	v atomic.Uint32
}

// Raise 抬起标志（粘滞，只有 Reset 能清除）
func (f *Flags) Raise(m Mode) {
	for {
		old := f.v.Load()
		if old&uint32(m) == uint32(m) {
			return
		}
		if f.v.CompareAndSwap(old, old|uint32(m)) {
			return
		}
	}
}

// Has 检查标志是否激活
func (f *Flags) Has(m Mode) bool {
	return f.v.Load()&uint32(m) != 0
}

// Snapshot 当前标志组合
func (f *Flags) Snapshot() Mode {
	return Mode(f.v.Load())
}

// Reset 清除所有标志（会话重置时调用）
func (f *Flags) Reset() {
	f.v.Store(0)
}
