// Package console 实现交互式文本控制台
//
// 控制台是一个类 telnet 的行协议服务，由两部分组成：
//
//   - Session：单连接协议引擎（协商、回显、退格、方向键历史、Tab 补全、行提取）
//   - Server：接受连接、限制并发会话数、驱逐空闲会话
//
// Server 不创建驱动循环。调用方周期性调用 Update()，会话状态只在
// Update 调用内被修改，引擎本身不持有锁。网络读写由后台 goroutine
// 通过带缓冲通道交给 Update 处理，因此 Update 从不阻塞。
//
// 使用示例：
//
//	srv, err := console.NewServer(cfg, handler)
//	if err := srv.Initialise(cfg.Port, cfg.MaxSessions); err != nil {
//	    // 绑定失败，调用方决定是否重试
//	}
//	for range ticker.C {
//	    srv.Update()
//	}
//	srv.Shutdown()
package console
