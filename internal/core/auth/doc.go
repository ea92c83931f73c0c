// Package auth 实现对等认证网关
//
// 控制服务器接受新连接时，把对端的身份、地址、机制与凭证打包成
// 认证请求发到网关，网关按许可列表与机制校验器给出结论：
//
//	请求: [版本 "1.0", 关联令牌, 域, 地址, 身份, 机制, 凭证...]
//	应答: [版本 "1.0", 关联令牌, 状态码, 原因]
//
// 状态码：
//   - "200": 通过
//   - "400": 策略拒绝或请求格式错误，原因说明被拒绝的项
//   - "500": 校验器故障或处理 panic
//
// 检查顺序为 版本 → 机制 → 身份 → 域 → 地址 → 凭证。
//
// 支持的机制：
//   - NULL: 不携带凭证
//   - PLAIN: 用户名与密码，密码以 argon2id 哈希保存
//   - CURVE: 32 字节公钥白名单，文件中以 base58 编码
//
// 许可列表与校验器都可以在运行期间修改。
package auth
