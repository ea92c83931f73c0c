package wire

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/dep2p/go-ctlplane/internal/util/addrutil"
	"github.com/dep2p/go-ctlplane/internal/util/sockopt"
)

// listen 按端点传输方式监听
//
// ipc 端点会先删除残留的套接字文件。
func listen(ctx context.Context, ep addrutil.Endpoint, reuseAddr bool) (net.Listener, error) {
	switch ep.Transport {
	case addrutil.TransportTCP:
		return sockopt.Listen(ctx, "tcp", ep.Address, reuseAddr)
	case addrutil.TransportIPC:
		if err := os.Remove(ep.Address); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
		return sockopt.Listen(ctx, "unix", ep.Address, false)
	case addrutil.TransportInproc:
		return listenInproc(ep.Address)
	default:
		return nil, addrutil.ErrUnknownTransport
	}
}

// dial 按端点传输方式拨号
func dial(ctx context.Context, ep addrutil.Endpoint) (net.Conn, error) {
	switch ep.Transport {
	case addrutil.TransportTCP, addrutil.TransportIPC:
		var d net.Dialer
		return d.DialContext(ctx, ep.Network(), ep.Address)
	case addrutil.TransportInproc:
		return dialInproc(ctx, ep.Address)
	default:
		return nil, addrutil.ErrUnknownTransport
	}
}
