// Package interfaces 定义 ctlplane 的公共接口
//
// 每个接口文件对应一个实现目录：
//   - console.go        - 控制台会话与行处理器（internal/core/console）
//   - control.go        - 控制 RPC 分发器与对端认证器（internal/core/control, internal/core/wire）
//   - health.go         - 健康标志上报（internal/core/health）
//
// 服务器的所有回调都在构造时注入，部分配置的服务器无法运行。
package interfaces
