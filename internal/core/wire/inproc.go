package wire

import (
	"context"
	"net"
	"sync"
)

// ============================================================================
//                              进程内端点
// ============================================================================

// inprocRegistry 进程内端点注册表
var inprocRegistry = struct {
	sync.Mutex
	listeners map[string]*inprocListener
}{listeners: make(map[string]*inprocListener)}

// inprocAddr 进程内地址
type inprocAddr string

func (a inprocAddr) Network() string { return "inproc" }
func (a inprocAddr) String() string  { return string(a) }

// inprocListener 基于 net.Pipe 的监听器
type inprocListener struct {
	name  string
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func listenInproc(name string) (*inprocListener, error) {
	inprocRegistry.Lock()
	defer inprocRegistry.Unlock()

	if _, ok := inprocRegistry.listeners[name]; ok {
		return nil, ErrEndpointInUse
	}
	l := &inprocListener{
		name:  name,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	inprocRegistry.listeners[name] = l
	return l, nil
}

// Accept 实现 net.Listener
func (l *inprocListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close 实现 net.Listener
func (l *inprocListener) Close() error {
	l.once.Do(func() {
		inprocRegistry.Lock()
		if inprocRegistry.listeners[l.name] == l {
			delete(inprocRegistry.listeners, l.name)
		}
		inprocRegistry.Unlock()
		close(l.done)
	})
	return nil
}

// Addr 实现 net.Listener
func (l *inprocListener) Addr() net.Addr {
	return inprocAddr(l.name)
}

// dialInproc 连接进程内端点
func dialInproc(ctx context.Context, name string) (net.Conn, error) {
	inprocRegistry.Lock()
	l, ok := inprocRegistry.listeners[name]
	inprocRegistry.Unlock()
	if !ok {
		return nil, ErrConnectionRefused
	}

	client, server := net.Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-l.done:
	case <-ctx.Done():
	}
	_ = client.Close()
	_ = server.Close()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, ErrConnectionRefused
}
