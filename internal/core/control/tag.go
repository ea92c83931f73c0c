package control

import (
	"encoding/binary"
	"fmt"
)

// Tag 4 字节小端打包的命令标签或状态标签
type Tag uint32

// TagSize 标签字节数
const TagSize = 4

// 内置命令标签
const (
	// TagLogLevel 切换日志详细程度，第二帧为 v / vv / vvv
	TagLogLevel Tag = 'L' | 'O'<<8 | 'G'<<16 | 'L'<<24
	// TagVersion 查询版本
	TagVersion Tag = 'V' | 'E'<<8 | 'R'<<16 | 'I'<<24
	// TagPing 存活探测，应答 PONG
	TagPing Tag = 'P' | 'I'<<8 | 'N'<<16 | 'G'<<24
	// TagStatus 健康标志 JSON
	TagStatus Tag = 'S' | 'T'<<8 | 'A'<<16 | 'T'<<24
)

// 应答状态标签
const (
	StatusSucceeded Tag = 0x1000
	StatusFailed    Tag = 0x0800
)

// MakeTag 将最多 4 个字符按小端打包为标签，不足部分补零
func MakeTag(s string) Tag {
	var b [TagSize]byte
	copy(b[:], s)
	return Tag(binary.LittleEndian.Uint32(b[:]))
}

// ParseTag 读取帧的前 4 字节
func ParseTag(part []byte) (Tag, bool) {
	if len(part) < TagSize {
		return 0, false
	}
	return Tag(binary.LittleEndian.Uint32(part[:TagSize])), true
}

// Bytes 返回 4 字节小端编码
func (t Tag) Bytes() []byte {
	b := make([]byte, TagSize)
	binary.LittleEndian.PutUint32(b, uint32(t))
	return b
}

// String 可打印时返回字符形式，否则返回十六进制
func (t Tag) String() string {
	b := t.Bytes()
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%04x", uint32(t))
		}
	}
	return string(b)
}

// Reply 构造两帧应答
func Reply(status Tag, body string) [][]byte {
	return [][]byte{status.Bytes(), []byte(body)}
}

// Success 成功应答
func Success(body string) [][]byte {
	return Reply(StatusSucceeded, body)
}

// Failure 失败应答
func Failure(body string) [][]byte {
	return Reply(StatusFailed, body)
}
