// Package commands 实现控制台内置命令
//
// 内置命令：help、enable log v|vv|vvv、disable log、status、version、quit。
// Handler 实现 interfaces.SessionHandler，由控制台服务器在构造时注入。
package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dep2p/go-ctlplane/internal/buildinfo"
	"github.com/dep2p/go-ctlplane/internal/util/logger"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

var log = logger.Logger("core/commands")

// 命令回复文本
const (
	msgUnknown     = "Unknown command received"
	msgDefaultLog  = "Default log mode enabled"
	msgClosing     = "Closing connection"
	msgGoodbye     = "Goodbye!"
	msgEnableUsage = "Usage: enable log v|vv|vvv"
)

// verbosityReplies 各详细程度对应的回复
var verbosityReplies = map[string]string{
	"v":   "Info log mode enabled",
	"vv":  "Debug log mode enabled",
	"vvv": "Trace log mode enabled",
}

// RunFunc 命令执行函数，args 为命令名之后的参数
type RunFunc func(s interfaces.Session, args []string) bool

// Command 控制台命令
type Command struct {
	// Name 命令名，可以包含空格（如 "enable log"）
	Name string
	// Usage 帮助中显示的用法
	Usage string
	// Description 帮助说明
	Description string
	// Run 执行函数
	Run RunFunc
	// Args 是否接受参数；为 false 时命令名之后有多余内容的行视为未知命令
	Args bool

	words []string
}

// Handler 控制台内置命令处理器
type Handler struct {
	banner   string
	health   interfaces.HealthReporter
	version  string
	commands []*Command
}

var _ interfaces.SessionHandler = (*Handler)(nil)

// Option 处理器选项
type Option func(*Handler)

// WithHealth 设置 status 命令使用的健康视图
func WithHealth(h interfaces.HealthReporter) Option {
	return func(hd *Handler) {
		hd.health = h
	}
}

// WithBanner 设置连接时输出的欢迎语
func WithBanner(banner string) Option {
	return func(hd *Handler) {
		hd.banner = banner
	}
}

// WithVersion 设置 version 命令的输出
func WithVersion(v string) Option {
	return func(hd *Handler) {
		hd.version = v
	}
}

// WithCommand 追加自定义命令
func WithCommand(c Command) Option {
	return func(hd *Handler) {
		hd.add(c)
	}
}

// NewHandler 创建内置命令处理器
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		banner:  "ctlplane control console",
		version: buildinfo.String(),
	}
	h.add(Command{Name: "help", Usage: "help", Description: "Show this list of commands", Run: h.help})
	h.add(Command{Name: "enable log", Usage: "enable log v|vv|vvv", Description: "Set log verbosity (info, debug, trace)", Run: h.enableLog, Args: true})
	h.add(Command{Name: "disable log", Usage: "disable log", Description: "Restore the default log level", Run: h.disableLog})
	h.add(Command{Name: "status", Usage: "status", Description: "Show health flags as JSON", Run: h.status})
	h.add(Command{Name: "version", Usage: "version", Description: "Show version information", Run: h.showVersion})
	h.add(Command{Name: "quit", Usage: "quit", Description: "Close this session", Run: h.quit})

	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) add(c Command) {
	c.words = strings.Fields(c.Name)
	if c.Usage == "" {
		c.Usage = c.Name
	}
	for i, existing := range h.commands {
		if existing.Name == c.Name {
			h.commands[i] = &c
			return
		}
	}
	h.commands = append(h.commands, &c)
}

// Commands 返回命令名列表
func (h *Handler) Commands() []string {
	names := make([]string, 0, len(h.commands))
	for _, c := range h.commands {
		names = append(names, c.Name)
	}
	return names
}

// ============================================================================
//                              SessionHandler
// ============================================================================

// OnConnect 输出欢迎语与命令列表
func (h *Handler) OnConnect(s interfaces.Session) {
	_ = s.SendLine(h.banner)
	h.help(s, nil)
}

// OnLine 执行一行命令
//
// 空行视为成功且不输出；未知命令输出提示并记为失败。
func (h *Handler) OnLine(s interfaces.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	cmd := h.match(fields)
	if cmd == nil {
		_ = s.SendLine(msgUnknown)
		log.Debug("未知控制台命令", "session", s.ID(), "line", line)
		return false
	}
	return cmd.Run(s, fields[len(cmd.words):])
}

// Complete 返回唯一匹配的命令名；多个匹配时输出候选并返回空字符串
func (h *Handler) Complete(s interfaces.Session, prefix string) string {
	var matches []string
	for _, c := range h.commands {
		if strings.HasPrefix(c.Name, prefix) {
			matches = append(matches, c.Name)
		}
	}
	switch len(matches) {
	case 0:
		return ""
	case 1:
		return matches[0]
	default:
		sort.Strings(matches)
		_ = s.SendLine(strings.Join(matches, "  "))
		return ""
	}
}

// match 返回词数最多的匹配命令
//
// 不接受参数的命令必须与整行完全一致。
func (h *Handler) match(fields []string) *Command {
	var best *Command
	for _, c := range h.commands {
		if len(c.words) > len(fields) || (!c.Args && len(c.words) != len(fields)) {
			continue
		}
		ok := true
		for i, w := range c.words {
			if fields[i] != w {
				ok = false
				break
			}
		}
		if ok && (best == nil || len(c.words) > len(best.words)) {
			best = c
		}
	}
	return best
}

// ============================================================================
//                              内置命令
// ============================================================================

func (h *Handler) help(s interfaces.Session, _ []string) bool {
	_ = s.SendLine("Available commands:")
	for _, c := range h.commands {
		_ = s.SendLine(fmt.Sprintf("%-25s : %s", c.Usage, c.Description))
	}
	return true
}

func (h *Handler) enableLog(s interfaces.Session, args []string) bool {
	if len(args) != 1 {
		_ = s.SendLine(msgEnableUsage)
		return false
	}
	reply, ok := verbosityReplies[args[0]]
	if !ok {
		_ = s.SendLine(msgEnableUsage)
		return false
	}
	if err := logger.SetVerbosity(args[0]); err != nil {
		_ = s.SendLine(err.Error())
		return false
	}
	log.Info("日志详细程度已切换", "verbosity", args[0], "session", s.ID())
	_ = s.SendLine(reply)
	return true
}

func (h *Handler) disableLog(s interfaces.Session, _ []string) bool {
	if err := logger.SetVerbosity(""); err != nil {
		_ = s.SendLine(err.Error())
		return false
	}
	_ = s.SendLine(msgDefaultLog)
	return true
}

func (h *Handler) status(s interfaces.Session, _ []string) bool {
	flags := map[string]int{}
	if h.health != nil {
		flags = h.health.Snapshot()
	}
	data, err := json.Marshal(flags)
	if err != nil {
		_ = s.SendLine(err.Error())
		return false
	}
	_ = s.SendLine(string(data))
	return true
}

func (h *Handler) showVersion(s interfaces.Session, _ []string) bool {
	_ = s.SendLine(h.version)
	return true
}

func (h *Handler) quit(s interfaces.Session, _ []string) bool {
	_ = s.SendLine(msgClosing)
	_ = s.SendLine(msgGoodbye)
	s.Quit()
	return true
}
