// Package control 实现结构化控制 RPC 服务器
//
// 服务器在一个应答套接字上接收多帧请求，交给构造时注入的
// interfaces.Dispatcher 处理，无论成功与否都回复一条应答。
//
// # 内置命令
//
// 请求首帧的前 4 字节是小端打包的命令标签：
//
//	LOGL  [tag, "v"|"vv"|"vvv"]  切换日志详细程度
//	VERI  [tag]                  版本信息
//	PING  [tag]                  应答 "PONG"
//	STAT  [tag]                  健康标志 JSON，如 {"console":1,"control":1}
//
// 应答固定两帧：4 字节状态标签（成功 0x1000，失败 0x0800）与 UTF-8 内容。
// 未知标签或帧数不符返回失败状态与诊断文本。
//
// # 工作循环
//
// 每轮先 Beat 健康标志，再以 RecvTimeout 阻塞接收。超时只表示本轮没有
// 请求。分发器 panic 会被恢复并转为失败应答，循环继续。Shutdown 设置
// 停止标志，等待当前一轮结束后关闭套接字。
//
// 认证网关复用同一个服务器，只是分发器与记录器不同。
package control
