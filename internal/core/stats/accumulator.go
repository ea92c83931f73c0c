package stats

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-ctlplane/internal/util/logger"
)

var log = logger.Logger("core/stats")

// DefaultWindowSize 默认滑动窗口长度
const DefaultWindowSize = 100

// Options 累加器选项
type Options struct {
	// Namespace 指标名前缀
	Namespace string

	// WindowSize 滑动窗口长度
	WindowSize int

	// Clock 计时时钟，nil 使用系统时钟
	Clock clock.Clock
}

// Accumulator 按名称管理的统计累加器
//
// 跟踪器在首次使用时创建并注册。三个入口不会失败，也不拒绝任何输入。
type Accumulator struct {
	reg  prometheus.Registerer
	opts Options

	mu       sync.RWMutex
	meanVars map[string]*MeanVar
	statuses map[string]*StatusTracker
}

// NewAccumulator 创建累加器
func NewAccumulator(reg prometheus.Registerer, opts Options) *Accumulator {
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Accumulator{
		reg:      reg,
		opts:     opts,
		meanVars: make(map[string]*MeanVar),
		statuses: make(map[string]*StatusTracker),
	}
}

// RecordDuration 记录一次耗时（纳秒）
func (a *Accumulator) RecordDuration(name string, elapsedNanos int64) {
	a.MeanVar(name + "_duration").Observe(float64(elapsedNanos))
}

// RecordOutcome 记录一次结果
func (a *Accumulator) RecordOutcome(name string, success bool) {
	a.Status(name).Record(success)
}

// Observe 记录一个任意值
func (a *Accumulator) Observe(name string, value float64) {
	a.MeanVar(name).Observe(value)
}

// MeanVar 获取（必要时创建）均值/方差跟踪器
func (a *Accumulator) MeanVar(name string) *MeanVar {
	a.mu.RLock()
	m, ok := a.meanVars[name]
	a.mu.RUnlock()
	if ok {
		return m
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok = a.meanVars[name]; ok {
		return m
	}
	m = NewMeanVar(a.reg, a.opts.Namespace, name, a.opts.WindowSize)
	a.meanVars[name] = m
	return m
}

// Status 获取（必要时创建）结果计数器
func (a *Accumulator) Status(name string) *StatusTracker {
	a.mu.RLock()
	s, ok := a.statuses[name]
	a.mu.RUnlock()
	if ok {
		return s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok = a.statuses[name]; ok {
		return s
	}
	s = NewStatusTracker(a.reg, a.opts.Namespace, name)
	a.statuses[name] = s
	return s
}

// Performance 创建一个使用累加器时钟的计时跟踪器
func (a *Accumulator) Performance(name string) *PerformanceTracker {
	return NewPerformanceTracker(a.reg, a.opts.Namespace, name, a.opts.WindowSize, a.opts.Clock)
}

// Clock 返回累加器时钟
func (a *Accumulator) Clock() clock.Clock {
	return a.opts.Clock
}

// Registerer 返回指标注册器
func (a *Accumulator) Registerer() prometheus.Registerer {
	return a.reg
}

// Namespace 返回指标名前缀
func (a *Accumulator) Namespace() string {
	return a.opts.Namespace
}

// WindowSize 返回滑动窗口长度
func (a *Accumulator) WindowSize() int {
	return a.opts.WindowSize
}

// Snapshot 累加器快照
type Snapshot struct {
	MeanVars map[string]MeanVarSnapshot `json:"mean_vars"`
	Statuses map[string]StatusSnapshot  `json:"statuses"`
}

// Snapshot 返回所有跟踪器的快照
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := Snapshot{
		MeanVars: make(map[string]MeanVarSnapshot, len(a.meanVars)),
		Statuses: make(map[string]StatusSnapshot, len(a.statuses)),
	}
	for name, m := range a.meanVars {
		snap.MeanVars[name] = m.Snapshot()
	}
	for name, s := range a.statuses {
		snap.Statuses[name] = s.Snapshot()
	}
	return snap
}

// Names 返回已创建的跟踪器名称（排序）
func (a *Accumulator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.meanVars)+len(a.statuses))
	for name := range a.meanVars {
		names = append(names, name)
	}
	for name := range a.statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
