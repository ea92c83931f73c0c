package auth

import (
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-ctlplane/internal/core/wire"
	"github.com/dep2p/go-ctlplane/internal/util/logger"
)

// 包级别日志实例
var log = logger.Logger("core/auth")

// replyParts 认证应答帧数
const replyParts = 4

// Gateway 对等认证网关
//
// 每条请求得到 4 帧应答：[版本, 关联令牌, 状态码, 原因]。
// 通过为 "200"，策略拒绝为 "400"，内部故障为 "500"。
type Gateway struct {
	checker *Checker

	// 拒绝日志限速
	warnLimiter *rate.Limiter
}

// NewGateway 创建认证网关
func NewGateway(c *Checker) *Gateway {
	return &Gateway{
		checker:     c,
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 10),
	}
}

// Checker 返回认证策略
func (g *Gateway) Checker() *Checker {
	return g.checker
}

// Handle 处理一条认证请求，总是返回 4 帧应答
func (g *Gateway) Handle(parts [][]byte) (reply [][]byte) {
	var token []byte
	if len(parts) > 1 {
		token = parts[1]
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("认证处理 panic", "panic", r)
			reply = makeReply(token, wire.StatusInternal, "internal error")
		}
	}()

	req, err := ParseRequest(parts)
	if err == nil {
		err = g.checker.Check(req)
	}

	var rej *Rejection
	switch {
	case err == nil:
		logger.Trace(log, "认证通过", "identity", req.Identity, "address", req.Address, "mechanism", req.Mechanism)
		return makeReply(token, wire.StatusOK, "OK")
	case errors.As(err, &rej):
		if g.warnLimiter.Allow() {
			log.Warn("认证被拒绝", "reason", rej.Reason)
		}
		return makeReply(token, wire.StatusRejected, rej.Reason)
	default:
		log.Error("认证内部错误", "identity", req.Identity, "address", req.Address, "err", err)
		return makeReply(token, wire.StatusInternal, "internal error")
	}
}

// Dispatch 实现 interfaces.Dispatcher
func (g *Gateway) Dispatch(request [][]byte) ([][]byte, bool) {
	reply := g.Handle(request)
	return reply, string(reply[2]) == wire.StatusOK
}

func makeReply(token []byte, status, reason string) [][]byte {
	reply := make([][]byte, 0, replyParts)
	return append(reply, []byte(wire.AuthVersion), token, []byte(status), []byte(reason))
}
