package stats

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// 汇总分位数：中位数、P90、P99
var summaryObjectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

// registerCounter 注册计数器，同名指标已存在时复用
func registerCounter(reg prometheus.Registerer, namespace, name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	if existing, ok := register(reg, c).(prometheus.Counter); ok {
		return existing
	}
	return c
}

// registerGauge 注册仪表，同名指标已存在时复用
func registerGauge(reg prometheus.Registerer, namespace, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	if existing, ok := register(reg, g).(prometheus.Gauge); ok {
		return existing
	}
	return g
}

// registerSummary 注册汇总，同名指标已存在时复用
func registerSummary(reg prometheus.Registerer, namespace, name, help string) prometheus.Summary {
	s := prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace:  namespace,
		Name:       name,
		Help:       help,
		Objectives: summaryObjectives,
	})
	if existing, ok := register(reg, s).(prometheus.Summary); ok {
		return existing
	}
	return s
}

// register 返回已存在的同名采集器；新注册或注册失败时返回 nil
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if reg == nil {
		return nil
	}
	err := reg.Register(c)
	if err == nil {
		return nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector
	}

	// 描述冲突等错误只影响导出，内部统计照常工作
	log.Warn("指标注册失败", "error", err)
	return nil
}
