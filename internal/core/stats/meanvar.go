package stats

import (
	"encoding/json"
	"math"
	"sync"

	"github.com/eapache/queue"
	"github.com/prometheus/client_golang/prometheus"
)

// MeanVarSnapshot MeanVar 状态快照
type MeanVarSnapshot struct {
	Count          uint64  `json:"count"`
	Mean           float64 `json:"mean"`
	Variance       float64 `json:"variance"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	MovingMean     float64 `json:"moving_mean"`
	MovingVariance float64 `json:"moving_variance"`
	Window         int     `json:"window"`
}

// MarshalJSON 实现 json.Marshaler
//
// 未观测时的无穷哨兵值输出为 null。
func (s MeanVarSnapshot) MarshalJSON() ([]byte, error) {
	type alias MeanVarSnapshot
	return json.Marshal(struct {
		alias
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	}{
		alias: alias(s),
		Min:   finite(s.Min),
		Max:   finite(s.Max),
	})
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// MeanVar 在线均值/方差跟踪器
//
// 全局统计使用 Knuth 算法：
//
//	m_new = m_prev + (x - m_prev) / n
//	S    += (x - m_prev) * (x - m_new)
//	var   = S / (n - 1)        (n > 1)
//
// 窗口统计在 n > W 后对新值与离开窗口的旧值同时做对称修正，
// n <= W 时与全局统计一致。
type MeanVar struct {
	name   string
	window int

	mu      sync.Mutex
	n       uint64
	mean    float64
	s       float64
	min     float64
	max     float64
	movMean float64
	movS    float64
	values  *queue.Queue

	eventCtr    prometheus.Counter
	meanGauge   prometheus.Gauge
	varGauge    prometheus.Gauge
	movMeanG    prometheus.Gauge
	movVarGauge prometheus.Gauge
	maxGauge    prometheus.Gauge
	minGauge    prometheus.Gauge
}

// NewMeanVar 创建均值/方差跟踪器
//
// window 小于 1 时按 1 处理。reg 为 nil 时只维护内部状态。
func NewMeanVar(reg prometheus.Registerer, namespace, name string, window int) *MeanVar {
	if window < 1 {
		window = 1
	}

	m := &MeanVar{
		name:   name,
		window: window,
		min:    math.Inf(1),
		max:    math.Inf(-1),
		values: queue.New(),
	}

	m.eventCtr = registerCounter(reg, namespace, name+"_event_ctr", "Number of occurrences of "+name)
	m.meanGauge = registerGauge(reg, namespace, name+"_mean", "Mean of "+name)
	m.varGauge = registerGauge(reg, namespace, name+"_var", "Variance of "+name)
	m.movMeanG = registerGauge(reg, namespace, name+"_moving_mean", "Moving mean of "+name)
	m.movVarGauge = registerGauge(reg, namespace, name+"_moving_var", "Moving variance of "+name)
	m.maxGauge = registerGauge(reg, namespace, name+"_max", "Maximum "+name)
	m.minGauge = registerGauge(reg, namespace, name+"_min", "Minimum "+name)

	m.minGauge.Set(m.min)
	m.maxGauge.Set(m.max)

	return m
}

// Name 返回指标名
func (m *MeanVar) Name() string {
	return m.name
}

// Observe 记录一个新值
//
// 接受任意有限值，包括 0 与负数。
func (m *MeanVar) Observe(x float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// ────────────────────────────────────────────────────────────────────
	// 全局 Knuth 更新
	// ────────────────────────────────────────────────────────────────────
	m.n++
	prev := m.mean
	m.mean = prev + (x-prev)/float64(m.n)
	m.s += (x - prev) * (x - m.mean)

	if x < m.min {
		m.min = x
	}
	if x > m.max {
		m.max = x
	}

	// ────────────────────────────────────────────────────────────────────
	// 滑动窗口
	// ────────────────────────────────────────────────────────────────────
	m.values.Add(x)
	if m.values.Length() > m.window {
		old := m.values.Remove().(float64)
		prevMov := m.movMean
		m.movMean = prevMov + (x-old)/float64(m.window)
		m.movS += (x - old) * (x - m.movMean + old - prevMov)
		if m.movS < 0 {
			// 浮点抵消误差
			m.movS = 0
		}
	} else {
		m.movMean = m.mean
		m.movS = m.s
	}

	m.publish()
}

// publish 把内部状态镜像到 prometheus 指标（调用方持有锁）
func (m *MeanVar) publish() {
	m.eventCtr.Inc()
	m.meanGauge.Set(m.mean)
	if m.n > 1 {
		m.varGauge.Set(m.s / float64(m.n-1))
	}
	m.movMeanG.Set(m.movMean)
	if v, ok := m.movingVariance(); ok {
		m.movVarGauge.Set(v)
	}
	m.maxGauge.Set(m.max)
	m.minGauge.Set(m.min)
}

// movingVariance 返回窗口方差（调用方持有锁）
func (m *MeanVar) movingVariance() (float64, bool) {
	k := m.values.Length()
	if k < 2 {
		return 0, false
	}
	return m.movS / float64(k-1), true
}

// Snapshot 返回当前状态快照
//
// Count <= 1 时 Variance 为 0；未观测时 Min/Max 为 +Inf/-Inf。
func (m *MeanVar) Snapshot() MeanVarSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MeanVarSnapshot{
		Count:      m.n,
		Mean:       m.mean,
		Min:        m.min,
		Max:        m.max,
		MovingMean: m.movMean,
		Window:     m.window,
	}
	if m.n > 1 {
		snap.Variance = m.s / float64(m.n-1)
	}
	if v, ok := m.movingVariance(); ok {
		snap.MovingVariance = v
	}
	return snap
}
