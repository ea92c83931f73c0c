package console

import "bytes"

// ============================================================================
//                              协议常量
// ============================================================================

const (
	// iac 协商序列引导字节，其后固定跟随两个字节
	iac byte = 0xFF

	optWill byte = 0xFB
	optDont byte = 0xFE

	optEcho byte = 0x01
	optSGA  byte = 0x03

	keyBackspace byte = 0x08
	keyDelete    byte = 0x7F
	keyTab       byte = '\t'
	keyEscape    byte = 0x1B
)

var (
	// negotiation 连接建立时发送：will-echo、dont-echo、will-suppress-go-ahead
	negotiation = []byte{
		iac, optWill, optEcho,
		iac, optDont, optEcho,
		iac, optWill, optSGA,
	}

	arrowUp    = []byte{keyEscape, '[', 'A'}
	arrowDown  = []byte{keyEscape, '[', 'B'}
	arrowRight = []byte{keyEscape, '[', 'C'}
	arrowLeft  = []byte{keyEscape, '[', 'D'}

	eraseLine = []byte("\x1b[2K\x1b[80D")
	crlf      = []byte("\r\n")
)

// arrowKey 方向键
type arrowKey byte

const (
	keyUp    arrowKey = 'A'
	keyDown  arrowKey = 'B'
	keyRight arrowKey = 'C'
	keyLeft  arrowKey = 'D'
)

// ============================================================================
//                              编辑步骤
// ============================================================================

// translateNUL 将 NUL 转换为换行
func translateNUL(chunk []byte) []byte {
	if bytes.IndexByte(chunk, 0) < 0 {
		return chunk
	}
	out := make([]byte, len(chunk))
	for i, b := range chunk {
		if b == 0 {
			b = '\n'
		}
		out[i] = b
	}
	return out
}

// stripNegotiation 以 3 字节为单位移除协商序列
//
// 不完整的序列保留在缓冲区末尾，等待下一次读取补齐。
func stripNegotiation(buf []byte) []byte {
	if bytes.IndexByte(buf, iac) < 0 {
		return buf
	}
	out := make([]byte, 0, len(buf))
	for i := 0; i < len(buf); {
		if buf[i] != iac {
			out = append(out, buf[i])
			i++
			continue
		}
		if i+2 >= len(buf) {
			out = append(out, buf[i:]...)
			break
		}
		i += 3
	}
	return out
}

// pendingNegotiation 返回 stripNegotiation 之后末尾未补齐序列的字节数（0 至 2）
func pendingNegotiation(buf []byte) int {
	n := len(buf)
	switch {
	case n >= 2 && buf[n-2] == iac:
		return 2
	case n >= 1 && buf[n-1] == iac:
		return 1
	}
	return 0
}

// arrowKeys 按出现顺序返回缓冲区中的方向键
func arrowKeys(buf []byte) []arrowKey {
	var keys []arrowKey
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] != keyEscape || buf[i+1] != '[' {
			continue
		}
		switch k := arrowKey(buf[i+2]); k {
		case keyUp, keyDown, keyRight, keyLeft:
			keys = append(keys, k)
			i += 2
		}
	}
	return keys
}

// stripArrows 移除所有方向键序列
func stripArrows(buf []byte) []byte {
	for _, seq := range [][]byte{arrowUp, arrowDown, arrowRight, arrowLeft} {
		if bytes.Contains(buf, seq) {
			buf = bytes.ReplaceAll(buf, seq, nil)
		}
	}
	return buf
}

// applyBackspace 每个退格字节删除自身及其前一个字符
//
// 前面没有字符时退格被丢弃。返回缓冲区是否改变。
func applyBackspace(buf []byte) ([]byte, bool) {
	if bytes.IndexByte(buf, keyDelete) < 0 && bytes.IndexByte(buf, keyBackspace) < 0 {
		return buf, false
	}
	out := make([]byte, 0, len(buf))
	for _, b := range buf {
		if b == keyDelete || b == keyBackspace {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, b)
	}
	return out, true
}

// applyTab 处理 Tab：移除 Tab，并用 complete 的非空结果替换其前缀
//
// complete 为 nil 时只移除 Tab。返回缓冲区是否改变。
func applyTab(buf []byte, complete func(prefix string) string) ([]byte, bool) {
	changed := false
	for {
		idx := bytes.IndexByte(buf, keyTab)
		if idx < 0 {
			return buf, changed
		}
		changed = true

		prefix := buf[:idx]
		rest := buf[idx+1:]
		next := make([]byte, 0, len(buf))
		if complete != nil {
			if match := complete(string(prefix)); match != "" {
				prefix = []byte(match)
			}
		}
		next = append(next, prefix...)
		next = append(next, rest...)
		buf = next
	}
}

// extractLines 取出所有以 \r\n 结尾的完整行，返回剩余缓冲区
func extractLines(buf []byte) ([]string, []byte) {
	var lines []string
	for {
		idx := bytes.Index(buf, crlf)
		if idx < 0 {
			break
		}
		lines = append(lines, string(buf[:idx]))
		buf = buf[idx+len(crlf):]
	}
	if len(lines) > 0 {
		buf = append([]byte(nil), buf...)
	}
	return lines, buf
}

// ============================================================================
//                              命令历史
// ============================================================================

// history 有界命令历史
//
// cursor 取值 [0, len]，len 表示没有正在回看的条目。
type history struct {
	entries []string
	cursor  int
	limit   int
}

func newHistory(limit int) *history {
	if limit <= 0 {
		limit = 50
	}
	return &history{limit: limit}
}

// push 追加一条命令，跳过空行与重复的上一条
func (h *history) push(line string) {
	if line != "" && (len(h.entries) == 0 || h.entries[len(h.entries)-1] != line) {
		h.entries = append(h.entries, line)
		if over := len(h.entries) - h.limit; over > 0 {
			h.entries = append(h.entries[:0:0], h.entries[over:]...)
		}
	}
	h.cursor = len(h.entries)
}

// up 后退一条，最早一条处停止
func (h *history) up() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.cursor > 0 {
		h.cursor--
	}
	return h.entries[h.cursor], true
}

// down 前进一条，越过最新一条时返回空行
func (h *history) down() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.cursor < len(h.entries) {
		h.cursor++
	}
	if h.cursor == len(h.entries) {
		return "", true
	}
	return h.entries[h.cursor], true
}

func (h *history) len() int {
	return len(h.entries)
}
