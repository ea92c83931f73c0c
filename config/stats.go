package config

import "errors"

// StatsConfig 统计累加器配置
type StatsConfig struct {
	// WindowSize 滑动窗口长度（移动均值/方差）
	WindowSize int `json:"window_size" yaml:"window_size"`

	// Namespace 指标名前缀
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultStatsConfig 返回默认统计配置
func DefaultStatsConfig() StatsConfig {
	return StatsConfig{
		WindowSize: 100,
		Namespace:  "ctlplane",
	}
}

// Validate 验证统计配置
func (c StatsConfig) Validate() error {
	if c.WindowSize <= 0 {
		return errors.New("window size must be positive")
	}
	return nil
}

// WithWindowSize 设置滑动窗口长度
func (c StatsConfig) WithWindowSize(n int) StatsConfig {
	c.WindowSize = n
	return c
}
