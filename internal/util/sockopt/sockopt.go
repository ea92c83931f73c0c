// Package sockopt 提供监听套接字选项
package sockopt

import (
	"context"
	"net"
)

// Listen 按需设置 SO_REUSEADDR 后监听
func Listen(ctx context.Context, network, address string, reuseAddr bool) (net.Listener, error) {
	lc := net.ListenConfig{}
	if reuseAddr && network != "unix" {
		lc.Control = reuseAddrControl
	}
	return lc.Listen(ctx, network, address)
}
