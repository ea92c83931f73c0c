package auth

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/dep2p/go-ctlplane/config"
)

// PermissionList 许可列表
//
// 列出的条目总是允许；未列出的条目是否允许由 allowUnknown 决定。
// 可以在网关运行期间修改。
type PermissionList struct {
	mu           sync.RWMutex
	entries      map[string]struct{}
	allowUnknown bool
}

// NewPermissionList 创建许可列表
func NewPermissionList(allowUnknown bool, entries ...string) *PermissionList {
	l := &PermissionList{
		entries:      make(map[string]struct{}, len(entries)),
		allowUnknown: allowUnknown,
	}
	l.AddAll(entries)
	return l
}

// PermissionListFromConfig 按配置创建列表，配置了文件时一并加载
func PermissionListFromConfig(cfg config.PermissionListConfig) (*PermissionList, error) {
	l := NewPermissionList(cfg.AllowUnknown, cfg.Entries...)
	if cfg.File != "" {
		if _, err := l.LoadFile(cfg.File); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Add 添加条目
func (l *PermissionList) Add(entry string) {
	l.mu.Lock()
	l.entries[entry] = struct{}{}
	l.mu.Unlock()
}

// AddAll 批量添加
func (l *PermissionList) AddAll(entries []string) {
	l.mu.Lock()
	for _, e := range entries {
		l.entries[e] = struct{}{}
	}
	l.mu.Unlock()
}

// Remove 删除条目
func (l *PermissionList) Remove(entry string) {
	l.mu.Lock()
	delete(l.entries, entry)
	l.mu.Unlock()
}

// RemoveAll 批量删除
func (l *PermissionList) RemoveAll(entries []string) {
	l.mu.Lock()
	for _, e := range entries {
		delete(l.entries, e)
	}
	l.mu.Unlock()
}

// Allowed 判断条目是否允许
func (l *PermissionList) Allowed(entry string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.allowUnknown {
		return true
	}
	_, ok := l.entries[entry]
	return ok
}

// Contains 判断条目是否列出
func (l *PermissionList) Contains(entry string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[entry]
	return ok
}

// AllowUnknown 返回是否放行未列出的条目
func (l *PermissionList) AllowUnknown() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowUnknown
}

// SetAllowUnknown 设置是否放行未列出的条目
func (l *PermissionList) SetAllowUnknown(allow bool) {
	l.mu.Lock()
	l.allowUnknown = allow
	l.mu.Unlock()
}

// Entries 返回排序后的条目
func (l *PermissionList) Entries() []string {
	l.mu.RLock()
	out := make([]string, 0, len(l.entries))
	for e := range l.entries {
		out = append(out, e)
	}
	l.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len 返回条目数
func (l *PermissionList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// LoadFile 从行分隔文件追加条目，返回读取的条目数
//
// 空行和以 # 开头的行被忽略，行首尾空白被去除。
func (l *PermissionList) LoadFile(path string) (int, error) {
	entries, err := readLines(path)
	if err != nil {
		return 0, err
	}
	l.AddAll(entries)
	return len(entries), nil
}

// DumpFile 把条目写入文件，每行一个
func (l *PermissionList) DumpFile(path string) error {
	return writeLines(path, l.Entries())
}

// ============================================================================
//                              文件读写
// ============================================================================

// readLines 读取非空、非注释行
func readLines(path string) ([]string, error) {
	file, err := os.Open(path) //nolint:gosec // G304: 配置指定的列表文件
	if err != nil {
		return nil, fmt.Errorf("open list file: %w", err)
	}
	defer file.Close()

	var out []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan list file: %w", err)
	}
	return out, nil
}

// writeLines 先写临时文件再重命名
func writeLines(path string, lines []string) error {
	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	w := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			_ = file.Close()
			_ = os.Remove(tmpPath)
			return fmt.Errorf("write list file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write list file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close list file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename list file: %w", err)
	}
	return nil
}
