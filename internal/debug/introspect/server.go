package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-ctlplane/internal/buildinfo"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
	"github.com/dep2p/go-ctlplane/internal/util/logger"
)

var log = logger.Logger("debug/introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:6060"

// ============================================================================
//                              配置
// ============================================================================

// SessionCounter 报告当前控制台会话数
type SessionCounter interface {
	Sessions() int
}

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:6060"
	Addr string

	// Gatherer /metrics 的指标来源，为 nil 时不注册 /metrics
	Gatherer prometheus.Gatherer

	// Health 可选的健康注册表
	Health *health.Registry

	// Accumulator 可选的统计累加器
	Accumulator *stats.Accumulator

	// Console 可选的控制台会话计数
	Console SessionCounter

	// 可选的各服务器指标
	ConsoleStats *stats.ConsoleStats
	ControlStats *stats.ControlStats
	AuthStats    *stats.AuthStats

	// CustomHandlers 自定义处理器
	CustomHandlers map[string]http.HandlerFunc
}

// ============================================================================
//                              Server
// ============================================================================

// Server 本地诊断 HTTP 服务
type Server struct {
	config Config

	// HTTP 服务器
	server   *http.Server
	listener net.Listener

	// 状态
	running   bool
	startTime time.Time

	mu sync.Mutex
}

// New 创建诊断服务
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	return &Server{
		config: cfg,
	}
}

// Start 启动服务，重复调用无效
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/debug/introspect", s.handleIntrospect)
	mux.HandleFunc("/debug/introspect/stats", s.handleStats)
	mux.HandleFunc("/debug/introspect/runtime", s.handleRuntime)

	// pprof 端点
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/health", s.handleHealth)

	if s.config.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{
			ErrorLog: promErrorLog{},
		}))
	}

	for path, handler := range s.config.CustomHandlers {
		mux.HandleFunc(path, handler)
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("诊断服务异常退出", "error", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()
	log.Info("诊断服务已启动", "addr", listener.Addr().String(), "metrics", s.config.Gatherer != nil)
	return nil
}

// Stop 停止服务，重复调用无效
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error("关闭诊断服务失败", "error", err)
		return err
	}

	s.running = false
	log.Info("诊断服务已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// promErrorLog 把 promhttp 错误写入日志
type promErrorLog struct{}

func (promErrorLog) Println(v ...interface{}) {
	log.Warn("指标导出失败", "error", v)
}

// ============================================================================
//                              响应结构
// ============================================================================

// IntrospectResponse 完整诊断响应
type IntrospectResponse struct {
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	Health    map[string]int         `json:"health,omitempty"`
	Console   *ConsoleInfo           `json:"console,omitempty"`
	Control   *stats.ControlSnapshot `json:"control,omitempty"`
	Auth      *stats.AuthSnapshot    `json:"auth,omitempty"`
	Runtime   *RuntimeInfo           `json:"runtime,omitempty"`
}

// ConsoleInfo 控制台信息
type ConsoleInfo struct {
	Sessions int                    `json:"sessions"`
	Stats    *stats.ConsoleSnapshot `json:"stats,omitempty"`
}

// RuntimeInfo 运行时信息
type RuntimeInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc"`
	MemSys       uint64 `json:"mem_sys"`
	NumGC        uint32 `json:"num_gc"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Uptime    string         `json:"uptime,omitempty"`
	Flags     map[string]int `json:"flags,omitempty"`
}

// ============================================================================
//                              HTTP 处理器
// ============================================================================

// handleIntrospect 处理完整诊断请求
func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := IntrospectResponse{
		Timestamp: time.Now(),
		Uptime:    s.uptime(),
		Version:   buildinfo.String(),
		Console:   s.collectConsoleInfo(),
		Runtime:   s.collectRuntimeInfo(),
	}
	if s.config.Health != nil {
		response.Health = s.config.Health.Snapshot()
	}
	if s.config.ControlStats != nil {
		snap := s.config.ControlStats.Snapshot()
		response.Control = &snap
	}
	if s.config.AuthStats != nil {
		snap := s.config.AuthStats.Snapshot()
		response.Auth = &snap
	}

	s.writeJSON(w, response)
}

// handleStats 处理累加器快照请求
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.config.Accumulator == nil {
		http.Error(w, "Stats not available", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, s.config.Accumulator.Snapshot())
}

// handleRuntime 处理运行时信息请求
func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.collectRuntimeInfo())
}

// handleHealth 处理健康检查请求
//
// 读取并重置健康标志：两次探测之间没有 Beat 的循环报告 0，
// 此时状态为 degraded。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    s.uptime(),
	}

	if s.config.Health == nil {
		resp.Status = "degraded"
	} else {
		resp.Flags = s.config.Health.Collect()
		for _, alive := range resp.Flags {
			if alive == 0 {
				resp.Status = "degraded"
				break
			}
		}
	}

	s.writeJSON(w, resp)
}

// ============================================================================
//                              数据收集
// ============================================================================

func (s *Server) collectConsoleInfo() *ConsoleInfo {
	if s.config.Console == nil && s.config.ConsoleStats == nil {
		return nil
	}

	info := &ConsoleInfo{}
	if s.config.Console != nil {
		info.Sessions = s.config.Console.Sessions()
	}
	if s.config.ConsoleStats != nil {
		snap := s.config.ConsoleStats.Snapshot()
		info.Stats = &snap
	}
	return info
}

// collectRuntimeInfo 收集运行时信息
func (s *Server) collectRuntimeInfo() *RuntimeInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &RuntimeInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

// ============================================================================
//                              辅助方法
// ============================================================================

func (s *Server) uptime() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startTime).String()
}

// writeJSON 写入 JSON 响应
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		log.Error("JSON 编码失败", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
