// Package wire 实现控制面使用的多帧消息传输
//
// 消息由若干分片组成，线上格式为：分片数（uvarint），随后每个分片为
// 长度（uvarint）加内容。一条消息总是完整地读写。
//
// 端点格式：
//
//	tcp://host:port      TCP
//	ipc:///path/to.sock  Unix 域套接字
//	inproc://name        进程内管道
//
// RepSocket 为应答端：接受多个对端，请求公平排队，严格一问一答。
// ReqSocket 为请求端：同一时刻只有一个请求在途。
//
// 新连接先交换问候消息：
//
//	客户端 → ["CTL", "1", identity, mechanism, secrets...]
//	服务端 → ["OK"] 或 ["ERR", status, reason]
//
// 应答端配置了 Authenticator 时，问候内容被转换为认证请求：
//
//	[version, token, domain, address, identity, mechanism, credentials...]
//
// 认证器返回 [version, token, status, reason]，status 为 "200" 时接受连接。
// AuthClient 把认证请求转发到绑定在另一个端点上的认证网关。
//
// 传输事件（监听、绑定失败、握手结论、断开）通过 Monitor 回调报告。
package wire
