// Package introspect 提供本地诊断 HTTP 服务
//
// 该服务运行在本地端口，提供指标导出、健康检查与 JSON 格式的诊断信息。
// 默认绑定到 127.0.0.1，不暴露到网络。
//
// # 端点
//
//	GET /metrics                  - Prometheus 指标（EnableMetrics）
//	GET /health                   - 健康标志，全部存活为 ok，否则 degraded
//	GET /debug/introspect         - 完整诊断报告 (JSON)
//	GET /debug/introspect/stats   - 统计累加器快照
//	GET /debug/introspect/runtime - 运行时信息
//	GET /debug/pprof/*            - Go pprof 端点
//
// # 使用示例
//
//	server := introspect.New(introspect.Config{
//	    Addr:     "127.0.0.1:6060",
//	    Gatherer: registry,
//	    Health:   healthRegistry,
//	})
//	server.Start(ctx)
//	defer server.Stop()
//
// # 安全
//
// 默认只监听本地地址。如果需要远程访问，请在前面配置访问控制。
//
// 通过 config.Diagnostics.EnableIntrospect 配置启用。
package introspect
