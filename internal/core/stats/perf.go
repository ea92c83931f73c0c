package stats

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// PerformanceTracker 计时跟踪器
//
// 计时结果以纳秒送入内部 MeanVar，指标名带 "_timing" 后缀。
type PerformanceTracker struct {
	clock clock.Clock
	*MeanVar
}

// Stopwatch 一次计时
type Stopwatch struct {
	tracker *PerformanceTracker
	start   time.Time
}

// NewPerformanceTracker 创建计时跟踪器
func NewPerformanceTracker(reg prometheus.Registerer, namespace, name string, window int, clk clock.Clock) *PerformanceTracker {
	if clk == nil {
		clk = clock.New()
	}
	return &PerformanceTracker{
		clock:   clk,
		MeanVar: NewMeanVar(reg, namespace, name+"_timing", window),
	}
}

// Start 开始计时
func (p *PerformanceTracker) Start() Stopwatch {
	return Stopwatch{tracker: p, start: p.clock.Now()}
}

// Stop 结束计时并记录，返回耗时
func (w Stopwatch) Stop() time.Duration {
	elapsed := w.tracker.clock.Since(w.start)
	w.tracker.Observe(float64(elapsed.Nanoseconds()))
	return elapsed
}
