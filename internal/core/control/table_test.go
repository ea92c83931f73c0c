package control

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/util/logger"
)

func req(tag Tag, body ...string) [][]byte {
	out := [][]byte{tag.Bytes()}
	for _, b := range body {
		out = append(out, []byte(b))
	}
	return out
}

func status(t *testing.T, reply [][]byte) Tag {
	t.Helper()
	require.Len(t, reply, 2)
	tag, ok := ParseTag(reply[0])
	require.True(t, ok)
	return tag
}

// TestTag 测试标签打包
func TestTag(t *testing.T) {
	assert.Equal(t, TagLogLevel, MakeTag("LOGL"))
	assert.Equal(t, TagVersion, MakeTag("VERI"))
	assert.Equal(t, []byte("PING"), TagPing.Bytes())
	assert.Equal(t, "STAT", TagStatus.String())
	assert.Equal(t, "0x1000", StatusSucceeded.String())
	assert.Equal(t, []byte{0x00, 0x10, 0x00, 0x00}, StatusSucceeded.Bytes())
	assert.Equal(t, []byte{0x00, 0x08, 0x00, 0x00}, StatusFailed.Bytes())

	tag, ok := ParseTag([]byte("VERIextra"))
	assert.True(t, ok)
	assert.Equal(t, TagVersion, tag)

	_, ok = ParseTag([]byte("VER"))
	assert.False(t, ok)

	// 不足 4 字符补零
	assert.Equal(t, Tag('A'|'B'<<8), MakeTag("AB"))
}

// TestCommandTable_Version 测试版本查询
func TestCommandTable_Version(t *testing.T) {
	table := NewCommandTable()
	reply, ok := table.Dispatch(req(TagVersion))
	assert.True(t, ok)
	assert.Equal(t, StatusSucceeded, status(t, reply))
	assert.NotEmpty(t, reply[1])

	table = NewCommandTable(WithVersion("ctlplane test"))
	reply, _ = table.Dispatch(req(TagVersion))
	assert.Equal(t, "ctlplane test", string(reply[1]))
}

// TestCommandTable_Failures 测试各类失败应答的形状
func TestCommandTable_Failures(t *testing.T) {
	table := NewCommandTable()

	cases := map[string][][]byte{
		"Unknown":      req(MakeTag("XXXX")),
		"ShortTag":     {[]byte("VE")},
		"Empty":        {},
		"VersionExtra": req(TagVersion, "extra"),
		"LogLevelBare": req(TagLogLevel),
		"PingExtra":    req(TagPing, "a", "b"),
	}
	for name, request := range cases {
		t.Run(name, func(t *testing.T) {
			reply, ok := table.Dispatch(request)
			assert.False(t, ok)
			assert.Equal(t, StatusFailed, status(t, reply))
		})
	}

	reply, _ := table.Dispatch(req(MakeTag("XXXX")))
	assert.Equal(t, "unknown command XXXX", string(reply[1]))
}

// TestCommandTable_LogLevel 测试日志详细程度切换
func TestCommandTable_LogLevel(t *testing.T) {
	t.Cleanup(func() { _ = logger.SetVerbosity("") })
	table := NewCommandTable()

	for _, v := range []string{"v", "vv", "vvv"} {
		reply, ok := table.Dispatch(req(TagLogLevel, v))
		assert.True(t, ok, v)
		assert.Equal(t, StatusSucceeded, status(t, reply))
		assert.Equal(t, v, logger.Verbosity())
	}

	reply, ok := table.Dispatch(req(TagLogLevel, "vvvv"))
	assert.False(t, ok)
	assert.Equal(t, StatusFailed, status(t, reply))
	assert.Equal(t, "vvv", logger.Verbosity())

	_, ok = table.Dispatch(req(TagLogLevel, ""))
	assert.False(t, ok)
}

// TestCommandTable_Ping 测试存活探测
func TestCommandTable_Ping(t *testing.T) {
	reply, ok := NewCommandTable().Dispatch(req(TagPing))
	assert.True(t, ok)
	assert.Equal(t, "PONG", string(reply[1]))
}

// TestCommandTable_Status 测试健康标志 JSON
func TestCommandTable_Status(t *testing.T) {
	reg := health.NewRegistry()
	alive, err := reg.Register("console")
	require.NoError(t, err)
	_, err = reg.Register("auth")
	require.NoError(t, err)
	alive.Beat()

	reply, ok := NewCommandTable(WithHealth(reg)).Dispatch(req(TagStatus))
	require.True(t, ok)

	var flags map[string]int
	require.NoError(t, json.Unmarshal(reply[1], &flags))
	assert.Equal(t, map[string]int{"console": 1, "auth": 0}, flags)

	// 没有健康视图时返回空对象
	reply, ok = NewCommandTable().Dispatch(req(TagStatus))
	assert.True(t, ok)
	assert.Equal(t, "{}", string(reply[1]))
}

// TestCommandTable_Custom 测试自定义命令
func TestCommandTable_Custom(t *testing.T) {
	echo := MakeTag("ECHO")
	table := NewCommandTable(WithCommand(Command{
		Tag:   echo,
		Parts: 2,
		Run: func(request [][]byte) (string, bool) {
			return string(request[1]), true
		},
	}))

	reply, ok := table.Dispatch(req(echo, "hello"))
	assert.True(t, ok)
	assert.Equal(t, "hello", string(reply[1]))

	tags := table.Tags()
	assert.ElementsMatch(t, []Tag{TagLogLevel, TagPing, TagStatus, TagVersion, echo}, tags)
	assert.True(t, sort.SliceIsSorted(tags, func(i, j int) bool { return tags[i] < tags[j] }))
}
