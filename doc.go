// Package ctlplane 提供嵌入长期运行服务的管理控制面
//
// 控制面包含两个常驻的管理服务器与它们共用的基础设施：
//
//   - 文本控制台: 类 telnet 的行协议，支持历史、Tab 补全与空闲驱逐
//   - 控制 RPC: 多帧请求/应答，4 字节标签分发（LOGL、VERI、PING、STAT）
//   - 认证网关: 控制 RPC 新对端握手时按许可列表与凭证校验
//   - 统计累加器: 均值/方差、结果计数，导出为 Prometheus 指标
//   - 健康注册表: 各工作循环每轮 Beat 的存活标志
//
// # 快速开始
//
//	import "github.com/dep2p/go-ctlplane"
//
//	h, err := ctlplane.New(
//	    ctlplane.WithConfigFile("ctlplane.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := h.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Stop()
//
// # 自定义命令
//
// 控制台命令通过 WithConsoleCommand 追加，或用 WithConsoleHandler 整体替换；
// 控制 RPC 的分发器通过 WithDispatcher 替换。
//
// # 架构
//
//	┌──────────────────────────────────────────────────────────────┐
//	│  Harness   ctlplane.New() / Start() / Stop()                 │
//	├──────────────────────────────────────────────────────────────┤
//	│  console.Server   control.Server   auth.Service   introspect │
//	├──────────────────────────────────────────────────────────────┤
//	│  wire (tcp / ipc / inproc)   stats   health   logger         │
//	└──────────────────────────────────────────────────────────────┘
//
// 组件通过 Fx 装配，启动顺序为 认证网关 → 控制 RPC → 控制台 → 诊断服务，
// 停止顺序相反。
package ctlplane
