// Package buildinfo 保存版本与构建信息
//
// 根包 ctlplane 重新导出这些值；内部组件（控制台 version 命令、
// RPC VERI 指令）从这里读取，避免依赖根包。
package buildinfo

import "runtime"

// Version 当前版本
const Version = "v0.3.0"

// 构建信息（通过 ldflags 注入）
var (
	// GitCommit Git 提交哈希
	GitCommit string

	// BuildDate 构建日期
	BuildDate string
)

// String 返回完整版本信息字符串
func String() string {
	info := "ctlplane " + Version
	if GitCommit != "" {
		info += " (" + GitCommit[:min(8, len(GitCommit))] + ")"
	}
	if BuildDate != "" {
		info += " built " + BuildDate
	}
	return info + " " + runtime.Version()
}
