package ctlplane

import "github.com/dep2p/go-ctlplane/internal/buildinfo"

// ════════════════════════════════════════════════════════════════════════════
//                              版本信息
// ════════════════════════════════════════════════════════════════════════════

// Version 当前版本
const Version = buildinfo.Version

// VersionInfo 返回完整版本信息字符串
//
// 与控制台 version 命令、RPC VERI 指令的输出一致。
func VersionInfo() string {
	return buildinfo.String()
}

// SetBuildInfo 设置构建信息，通常由 main 包在启动时调用
func SetBuildInfo(gitCommit, buildDate string) {
	buildinfo.GitCommit = gitCommit
	buildinfo.BuildDate = buildDate
}
