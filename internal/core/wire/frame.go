package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// 默认帧限制
const (
	DefaultMaxParts    = 16
	DefaultMaxPartSize = 1 << 20
)

// Limits 单条消息的帧数与帧大小上限
type Limits struct {
	MaxParts    int
	MaxPartSize int
}

func (l Limits) withDefaults() Limits {
	if l.MaxParts <= 0 {
		l.MaxParts = DefaultMaxParts
	}
	if l.MaxPartSize <= 0 {
		l.MaxPartSize = DefaultMaxPartSize
	}
	return l
}

// WriteMessage 写出一条多帧消息
//
// 格式：uvarint(帧数)，然后每帧 uvarint(长度) + 内容。整条消息一次写出。
func WriteMessage(w io.Writer, parts [][]byte) error {
	size := varint.UvarintSize(uint64(len(parts)))
	for _, p := range parts {
		size += varint.UvarintSize(uint64(len(p))) + len(p)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, varint.ToUvarint(uint64(len(parts)))...)
	for _, p := range parts {
		buf = append(buf, varint.ToUvarint(uint64(len(p)))...)
		buf = append(buf, p...)
	}
	_, err := w.Write(buf)
	return err
}

// ReadMessage 读取一条多帧消息
//
// 超出 limits 返回 ErrTooManyParts 或 ErrPartTooLarge，此后连接不可再用。
func ReadMessage(r *bufio.Reader, limits Limits) ([][]byte, error) {
	limits = limits.withDefaults()

	count, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, varintErr(err)
	}
	if count > uint64(limits.MaxParts) {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyParts, count, limits.MaxParts)
	}

	parts := make([][]byte, count)
	for i := range parts {
		n, err := varint.ReadUvarint(r)
		if err != nil {
			return nil, unexpectedEOF(varintErr(err))
		}
		if n > uint64(limits.MaxPartSize) {
			return nil, fmt.Errorf("%w: %d > %d", ErrPartTooLarge, n, limits.MaxPartSize)
		}
		part := make([]byte, n)
		if _, err := io.ReadFull(r, part); err != nil {
			return nil, unexpectedEOF(err)
		}
		parts[i] = part
	}
	return parts, nil
}

// varintErr 将非法变长整数转换为协议错误
func varintErr(err error) error {
	if errors.Is(err, varint.ErrOverflow) || errors.Is(err, varint.ErrNotMinimal) {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return err
}

// unexpectedEOF 消息中途结束
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Parts 将字符串转换为消息帧
func Parts(s ...string) [][]byte {
	out := make([][]byte, len(s))
	for i, v := range s {
		out[i] = []byte(v)
	}
	return out
}

// MessageSize 返回所有帧的字节数之和
func MessageSize(parts [][]byte) int {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	return n
}
