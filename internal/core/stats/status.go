package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// StatusSnapshot StatusTracker 快照
type StatusSnapshot struct {
	Total   uint64 `json:"total"`
	Success uint64 `json:"success"`
	Fail    uint64 `json:"fail"`
	Active  int64  `json:"active"`
}

// StatusTracker 结果计数器
//
// total/success/fail 单调递增，active 在 Start 时加一、完成时减一，
// 不会低于 0。静止时 total == success + fail；并发读取的快照中
// total 不小于 success + fail。
type StatusTracker struct {
	name string

	total   atomic.Uint64
	success atomic.Uint64
	fail    atomic.Uint64
	active  atomic.Int64

	totalCtr   prometheus.Counter
	successCtr prometheus.Counter
	failCtr    prometheus.Counter
	activeG    prometheus.Gauge
}

// NewStatusTracker 创建结果计数器
func NewStatusTracker(reg prometheus.Registerer, namespace, name string) *StatusTracker {
	return &StatusTracker{
		name:       name,
		totalCtr:   registerCounter(reg, namespace, name+"_total_event_ctr", "Total occurrences of "+name),
		successCtr: registerCounter(reg, namespace, name+"_success_event_ctr", "Successful events of "+name),
		failCtr:    registerCounter(reg, namespace, name+"_fail_event_ctr", "Failed events of "+name),
		activeG:    registerGauge(reg, namespace, name+"_active_event_ctr", "Currently active number of events of "+name),
	}
}

// Name 返回指标名
func (s *StatusTracker) Name() string {
	return s.name
}

// Start 标记一个事件开始
func (s *StatusTracker) Start() {
	s.activeG.Set(float64(s.active.Add(1)))
}

// Success 记录一次成功
func (s *StatusTracker) Success() {
	s.countTotal()
	s.success.Add(1)
	s.successCtr.Inc()
	s.release()
}

// Fail 记录一次失败
func (s *StatusTracker) Fail() {
	s.countTotal()
	s.fail.Add(1)
	s.failCtr.Inc()
	s.release()
}

// Record 按结果记录
func (s *StatusTracker) Record(ok bool) {
	if ok {
		s.Success()
		return
	}
	s.Fail()
}

// countTotal 先于 success/fail 增加 total
func (s *StatusTracker) countTotal() {
	s.total.Add(1)
	s.totalCtr.Inc()
}

// release 把 active 减一（不低于 0）
func (s *StatusTracker) release() {
	for {
		cur := s.active.Load()
		if cur <= 0 {
			return
		}
		if s.active.CompareAndSwap(cur, cur-1) {
			s.activeG.Set(float64(cur - 1))
			return
		}
	}
}

// Snapshot 返回当前计数
//
// 读取顺序与写入顺序相反（success/fail 在 total 之前）。
func (s *StatusTracker) Snapshot() StatusSnapshot {
	success := s.success.Load()
	fail := s.fail.Load()
	return StatusSnapshot{
		Total:   s.total.Load(),
		Success: success,
		Fail:    fail,
		Active:  s.active.Load(),
	}
}
