package stats

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ============================================================================
//                              ServerStats
// ============================================================================

// ServerStats 服务器通用指标：命令结果与处理耗时
type ServerStats struct {
	subsystem string

	commands   *StatusTracker
	processing *MeanVar
	summary    prometheus.Summary
}

// ServerSnapshot ServerStats 快照
type ServerSnapshot struct {
	Commands   StatusSnapshot  `json:"commands"`
	Processing MeanVarSnapshot `json:"processing_ns"`
}

// NewServerStats 创建服务器通用指标
func NewServerStats(acc *Accumulator, subsystem string) *ServerStats {
	return &ServerStats{
		subsystem:  subsystem,
		commands:   acc.Status(subsystem + "_commands"),
		processing: acc.MeanVar(subsystem + "_processing_time"),
		summary: registerSummary(acc.Registerer(), acc.Namespace(),
			subsystem+"_processing_time_summary", "Command processing performance in nanoseconds"),
	}
}

// CommandStarted 标记一个命令开始处理
func (s *ServerStats) CommandStarted() {
	s.commands.Start()
}

// CommandFinished 记录命令结果与耗时
//
// 非正耗时只计入结果，不进入耗时统计。
func (s *ServerStats) CommandFinished(ok bool, elapsed time.Duration) {
	s.commands.Record(ok)
	if elapsed > 0 {
		ns := float64(elapsed.Nanoseconds())
		s.processing.Observe(ns)
		s.summary.Observe(ns)
	}
}

// Commands 返回命令结果计数器
func (s *ServerStats) Commands() *StatusTracker {
	return s.commands
}

// Snapshot 返回快照
func (s *ServerStats) Snapshot() ServerSnapshot {
	return ServerSnapshot{
		Commands:   s.commands.Snapshot(),
		Processing: s.processing.Snapshot(),
	}
}

// ============================================================================
//                              ConsoleStats
// ============================================================================

// ConsoleStats 文本控制台指标
type ConsoleStats struct {
	*ServerStats

	activeConns   atomic.Int64
	refusedConns  atomic.Uint64
	receivedConns atomic.Uint64
	uploaded      atomic.Uint64
	downloaded    atomic.Uint64

	activeG      prometheus.Gauge
	refusedCtr   prometheus.Counter
	receivedCtr  prometheus.Counter
	uploadCtr    prometheus.Counter
	downloadCtr  prometheus.Counter
	sessionSum   prometheus.Summary
	sessionTimes *MeanVar
}

// ConsoleSnapshot ConsoleStats 快照
type ConsoleSnapshot struct {
	ServerSnapshot
	ActiveConnections   int64           `json:"active_connections"`
	RefusedConnections  uint64          `json:"refused_connections"`
	ReceivedConnections uint64          `json:"received_connections"`
	UploadedBytes       uint64          `json:"uploaded_bytes"`
	DownloadedBytes     uint64          `json:"downloaded_bytes"`
	SessionDuration     MeanVarSnapshot `json:"session_duration_s"`
}

// NewConsoleStats 创建控制台指标
func NewConsoleStats(acc *Accumulator) *ConsoleStats {
	reg, ns := acc.Registerer(), acc.Namespace()
	return &ConsoleStats{
		ServerStats:  NewServerStats(acc, "console"),
		activeG:      registerGauge(reg, ns, "console_active_connections", "Number of active connections"),
		refusedCtr:   registerCounter(reg, ns, "console_refused_connections", "Number of refused connections"),
		receivedCtr:  registerCounter(reg, ns, "console_received_connections", "Number of received connections"),
		uploadCtr:    registerCounter(reg, ns, "console_uploaded_bytes", "Total uploaded bytes"),
		downloadCtr:  registerCounter(reg, ns, "console_downloaded_bytes", "Total downloaded bytes"),
		sessionSum:   registerSummary(reg, ns, "console_session_duration", "Duration of sessions in seconds"),
		sessionTimes: acc.MeanVar("console_session_duration_seconds"),
	}
}

// ConnectionAccepted 记录一个被接受的连接
func (s *ConsoleStats) ConnectionAccepted() {
	s.receivedConns.Add(1)
	s.receivedCtr.Inc()
	s.activeG.Set(float64(s.activeConns.Add(1)))
}

// ConnectionRefused 记录一个因超限被拒绝的连接
func (s *ConsoleStats) ConnectionRefused() {
	s.receivedConns.Add(1)
	s.receivedCtr.Inc()
	s.refusedConns.Add(1)
	s.refusedCtr.Inc()
}

// ConnectionClosed 记录会话关闭及其持续时间
func (s *ConsoleStats) ConnectionClosed(duration time.Duration) {
	if n := s.activeConns.Add(-1); n >= 0 {
		s.activeG.Set(float64(n))
	} else {
		s.activeConns.Store(0)
		s.activeG.Set(0)
	}
	secs := duration.Seconds()
	s.sessionSum.Observe(secs)
	s.sessionTimes.Observe(secs)
}

// AddBytes 累加上下行字节数
func (s *ConsoleStats) AddBytes(uploaded, downloaded int) {
	if uploaded > 0 {
		s.uploaded.Add(uint64(uploaded))
		s.uploadCtr.Add(float64(uploaded))
	}
	if downloaded > 0 {
		s.downloaded.Add(uint64(downloaded))
		s.downloadCtr.Add(float64(downloaded))
	}
}

// Snapshot 返回快照
func (s *ConsoleStats) Snapshot() ConsoleSnapshot {
	return ConsoleSnapshot{
		ServerSnapshot:      s.ServerStats.Snapshot(),
		ActiveConnections:   s.activeConns.Load(),
		RefusedConnections:  s.refusedConns.Load(),
		ReceivedConnections: s.receivedConns.Load(),
		UploadedBytes:       s.uploaded.Load(),
		DownloadedBytes:     s.downloaded.Load(),
		SessionDuration:     s.sessionTimes.Snapshot(),
	}
}

// ============================================================================
//                              ControlStats
// ============================================================================

// ControlStats 控制 RPC 指标
type ControlStats struct {
	*ServerStats

	uploaded    atomic.Uint64
	downloaded  atomic.Uint64
	okParts     atomic.Uint64
	failedParts atomic.Uint64

	uploadCtr     prometheus.Counter
	downloadCtr   prometheus.Counter
	okPartsCtr    prometheus.Counter
	failedPartCtr prometheus.Counter
}

// ControlSnapshot ControlStats 快照
type ControlSnapshot struct {
	ServerSnapshot
	UploadedBytes   uint64 `json:"uploaded_bytes"`
	DownloadedBytes uint64 `json:"downloaded_bytes"`
	SucceededParts  uint64 `json:"succeeded_command_parts"`
	FailedParts     uint64 `json:"failed_command_parts"`
}

// NewControlStats 创建控制 RPC 指标
func NewControlStats(acc *Accumulator) *ControlStats {
	reg, ns := acc.Registerer(), acc.Namespace()
	return &ControlStats{
		ServerStats:   NewServerStats(acc, "control"),
		uploadCtr:     registerCounter(reg, ns, "control_uploaded_bytes", "Total uploaded bytes"),
		downloadCtr:   registerCounter(reg, ns, "control_downloaded_bytes", "Total downloaded bytes"),
		okPartsCtr:    registerCounter(reg, ns, "control_succeeded_command_parts", "Number of parts of succeeded commands"),
		failedPartCtr: registerCounter(reg, ns, "control_failed_command_parts", "Number of parts of failed commands"),
	}
}

// MessageExchanged 记录一次请求/回复的分片与字节数
//
// download 为收到的请求，upload 为发出的回复。
func (s *ControlStats) MessageExchanged(ok bool, request, reply [][]byte) {
	var down, up int
	for _, p := range request {
		down += len(p)
	}
	for _, p := range reply {
		up += len(p)
	}

	s.downloaded.Add(uint64(down))
	s.downloadCtr.Add(float64(down))
	s.uploaded.Add(uint64(up))
	s.uploadCtr.Add(float64(up))

	if ok {
		s.okParts.Add(uint64(len(request)))
		s.okPartsCtr.Add(float64(len(request)))
	} else {
		s.failedParts.Add(uint64(len(request)))
		s.failedPartCtr.Add(float64(len(request)))
	}
}

// Snapshot 返回快照
func (s *ControlStats) Snapshot() ControlSnapshot {
	return ControlSnapshot{
		ServerSnapshot:  s.ServerStats.Snapshot(),
		UploadedBytes:   s.uploaded.Load(),
		DownloadedBytes: s.downloaded.Load(),
		SucceededParts:  s.okParts.Load(),
		FailedParts:     s.failedParts.Load(),
	}
}

// ============================================================================
//                              AuthStats
// ============================================================================

// AuthStats 认证网关指标
type AuthStats struct {
	*ServerStats

	byStatus *prometheus.CounterVec
}

// AuthSnapshot AuthStats 快照
type AuthSnapshot struct {
	ServerSnapshot
}

// NewAuthStats 创建认证网关指标
func NewAuthStats(acc *Accumulator) *AuthStats {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: acc.Namespace(),
		Name:      "auth_handshake_status",
		Help:      "Handshake replies by status code",
	}, []string{"status"})
	if existing, ok := register(acc.Registerer(), vec).(*prometheus.CounterVec); ok {
		vec = existing
	}

	return &AuthStats{
		ServerStats: NewServerStats(acc, "auth"),
		byStatus:    vec,
	}
}

// HandshakeFinished 记录一次握手结论
func (s *AuthStats) HandshakeFinished(status string, elapsed time.Duration) {
	s.byStatus.WithLabelValues(status).Inc()
	s.CommandFinished(status == "200", elapsed)
}

// StatusCount 返回指定状态码的累计次数
func (s *AuthStats) StatusCount(status string) prometheus.Counter {
	return s.byStatus.WithLabelValues(status)
}

// Snapshot 返回快照
func (s *AuthStats) Snapshot() AuthSnapshot {
	return AuthSnapshot{ServerSnapshot: s.ServerStats.Snapshot()}
}
