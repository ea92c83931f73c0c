package console

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Driver 以固定间隔调用 Server.Update 的驱动循环
//
// Stop 在驱动 goroutine 退出后才关闭服务器，保证 Update 与 Shutdown
// 不会并发执行。
type Driver struct {
	srv      *Server
	interval time.Duration
	clock    clock.Clock

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewDriver 创建驱动循环
func NewDriver(srv *Server, interval time.Duration, clk clock.Clock) *Driver {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Driver{srv: srv, interval: interval, clock: clk}
}

// Start 启动驱动 goroutine，重复调用无效
func (d *Driver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return
	}
	d.stop = make(chan struct{})
	d.stopped = make(chan struct{})
	go d.run(d.stop, d.stopped)
}

func (d *Driver) run(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := d.clock.Ticker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.srv.Update()
		}
	}
}

// Stop 停止驱动并关闭服务器，可重复调用
func (d *Driver) Stop() error {
	d.mu.Lock()
	stop, stopped := d.stop, d.stopped
	d.stop = nil
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-stopped
	}
	return d.srv.Shutdown()
}
