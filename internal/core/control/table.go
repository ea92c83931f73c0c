package control

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dep2p/go-ctlplane/internal/buildinfo"
	"github.com/dep2p/go-ctlplane/internal/util/logger"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// HandlerFunc 命令执行函数，返回应答内容与是否成功
type HandlerFunc func(request [][]byte) (body string, ok bool)

// Command 标签命令
type Command struct {
	// Tag 命令标签
	Tag Tag
	// Parts 请求必须包含的帧数
	Parts int
	// Description 说明
	Description string
	// Run 执行函数
	Run HandlerFunc
}

// CommandTable 按标签分发的命令表
//
// 构造后只读，可以被工作 goroutine 无锁访问。
type CommandTable struct {
	commands map[Tag]Command
	health   interfaces.HealthReporter
	version  string
}

var _ interfaces.Dispatcher = (*CommandTable)(nil)

// TableOption 命令表选项
type TableOption func(*CommandTable)

// WithHealth 设置 STAT 使用的健康视图
func WithHealth(h interfaces.HealthReporter) TableOption {
	return func(t *CommandTable) {
		t.health = h
	}
}

// WithVersion 设置 VERI 的应答
func WithVersion(v string) TableOption {
	return func(t *CommandTable) {
		t.version = v
	}
}

// WithCommand 添加或替换命令
func WithCommand(c Command) TableOption {
	return func(t *CommandTable) {
		if c.Parts <= 0 {
			c.Parts = 1
		}
		t.commands[c.Tag] = c
	}
}

// NewCommandTable 创建包含内置命令的命令表
func NewCommandTable(opts ...TableOption) *CommandTable {
	t := &CommandTable{
		commands: make(map[Tag]Command),
		version:  buildinfo.String(),
	}
	builtins := []Command{
		{Tag: TagLogLevel, Parts: 2, Description: "Set log verbosity (v, vv, vvv)", Run: t.logLevel},
		{Tag: TagVersion, Parts: 1, Description: "Version information", Run: t.showVersion},
		{Tag: TagPing, Parts: 1, Description: "Liveness probe", Run: ping},
		{Tag: TagStatus, Parts: 1, Description: "Health flags as JSON", Run: t.status},
	}
	for _, c := range builtins {
		t.commands[c.Tag] = c
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tags 返回已注册的标签，按数值排序
func (t *CommandTable) Tags() []Tag {
	tags := make([]Tag, 0, len(t.commands))
	for tag := range t.commands {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Dispatch 实现 interfaces.Dispatcher
//
// 应答总是两帧。未知标签、首帧不足 4 字节、帧数不符都返回失败应答。
func (t *CommandTable) Dispatch(request [][]byte) ([][]byte, bool) {
	if len(request) == 0 {
		return Failure("empty request"), false
	}
	tag, ok := ParseTag(request[0])
	if !ok {
		log.Warn("控制请求标签过短", "len", len(request[0]))
		return Failure("malformed command tag"), false
	}

	cmd, ok := t.commands[tag]
	if !ok {
		log.Warn("未知控制命令", "tag", tag.String())
		return Failure(fmt.Sprintf("unknown command %s", tag)), false
	}
	if len(request) != cmd.Parts {
		log.Warn("控制命令帧数不符", "tag", tag.String(), "parts", len(request), "want", cmd.Parts)
		return Failure(fmt.Sprintf("%s expects %d parts, got %d", tag, cmd.Parts, len(request))), false
	}

	body, ok := cmd.Run(request)
	if !ok {
		return Failure(body), false
	}
	return Success(body), true
}

// ============================================================================
//                              内置命令
// ============================================================================

func (t *CommandTable) logLevel(request [][]byte) (string, bool) {
	v := string(request[1])
	if v == "" {
		return "empty verbosity", false
	}
	if err := logger.SetVerbosity(v); err != nil {
		return err.Error(), false
	}
	log.Warn("日志详细程度已切换", "verbosity", v)
	return "", true
}

func (t *CommandTable) showVersion(_ [][]byte) (string, bool) {
	return t.version, true
}

func ping(_ [][]byte) (string, bool) {
	return "PONG", true
}

func (t *CommandTable) status(_ [][]byte) (string, bool) {
	flags := map[string]int{}
	if t.health != nil {
		flags = t.health.Snapshot()
	}
	data, err := json.Marshal(flags)
	if err != nil {
		return err.Error(), false
	}
	return string(data), true
}
