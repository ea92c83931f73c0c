package interfaces

// HealthReporter 健康状态只读视图
type HealthReporter interface {
	// Snapshot 返回 标志名 -> 0/1
	Snapshot() map[string]int

	// Healthy 所有标志均存活
	Healthy() bool
}
