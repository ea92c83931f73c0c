package addrutil

import (
	"net"
)

// ============================================================================
//                              对端地址
// ============================================================================

// PeerAddress 返回认证使用的对端地址
//
//   - tcp：对端 IP（不含端口）
//   - ipc：固定为 "ipc"
//   - inproc：固定为 "inproc"
func PeerAddress(transport string, remote net.Addr) string {
	switch transport {
	case TransportIPC:
		return TransportIPC
	case TransportInproc:
		return TransportInproc
	}
	if remote == nil {
		return ""
	}
	if tcp, ok := remote.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		return remote.String()
	}
	return host
}

// IsLoopbackAddr 判断地址是否是回环地址
//
// 支持纯 IP、host:port，以及本机传输（ipc、inproc）。
func IsLoopbackAddr(addr string) bool {
	if addr == TransportIPC || addr == TransportInproc {
		return true
	}
	ip := ExtractIP(addr)
	return ip != nil && ip.IsLoopback()
}

// IsPrivateAddr 判断地址是否是私网地址
//
// 私网地址范围：
//   - 10.0.0.0/8
//   - 172.16.0.0/12
//   - 192.168.0.0/16
//   - fc00::/7 (IPv6 ULA)
//   - fe80::/10 (IPv6 链路本地)
func IsPrivateAddr(addr string) bool {
	ip := ExtractIP(addr)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// ExtractIP 从地址字符串中提取 IP 地址
//
// 支持格式：
//   - host:port: 1.2.3.4:4001
//   - [ipv6]:port: [::1]:4001
//   - 纯 IP: 1.2.3.4 / ::1
func ExtractIP(addr string) net.IP {
	if addr == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.ParseIP(addr)
	}
	return net.ParseIP(host)
}

// AddrType 返回地址类型描述
//
// 返回值：
//   - "local" - 本机传输（ipc、inproc）
//   - "loopback" - 回环地址
//   - "private" - 私网地址
//   - "public" - 公网地址
//   - "unknown" - 未知类型
func AddrType(addr string) string {
	switch {
	case addr == TransportIPC || addr == TransportInproc:
		return "local"
	case ExtractIP(addr) == nil:
		return "unknown"
	case IsLoopbackAddr(addr):
		return "loopback"
	case IsPrivateAddr(addr):
		return "private"
	default:
		return "public"
	}
}
