// Package health 实现健康标志注册表
//
// 每个工作循环在构造时注册一个属于自己的命名标志，并在每轮迭代中
// 调用 Beat()。看门狗或诊断接口通过 Snapshot / Collect 读取，
// 标志只有其所有者可以写入。
package health

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrDuplicateFlag 同名标志已注册
var ErrDuplicateFlag = errors.New("health: flag already registered")

// Flag 单个命名健康标志
type Flag struct {
	name  string
	alive atomic.Bool
}

// Name 返回标志名
func (f *Flag) Name() string {
	return f.name
}

// Beat 标记一次存活
func (f *Flag) Beat() {
	if f == nil {
		return
	}
	f.alive.Store(true)
}

// Alive 返回自上次 Collect 以来是否存活
func (f *Flag) Alive() bool {
	return f.alive.Load()
}

// Registry 健康标志注册表
type Registry struct {
	mu    sync.RWMutex
	flags map[string]*Flag
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{flags: make(map[string]*Flag)}
}

// Register 注册一个命名标志
func (r *Registry) Register(name string) (*Flag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flags[name]; ok {
		return nil, ErrDuplicateFlag
	}
	f := &Flag{name: name}
	r.flags[name] = f
	return f, nil
}

// Unregister 移除标志
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, name)
}

// Snapshot 返回 名称 -> 0/1 映射，不重置标志
func (r *Registry) Snapshot() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.flags))
	for name, f := range r.flags {
		out[name] = boolToInt(f.alive.Load())
	}
	return out
}

// Collect 读取并重置所有标志
//
// 看门狗周期性调用：两次 Collect 之间没有 Beat 的循环报告 0。
func (r *Registry) Collect() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.flags))
	for name, f := range r.flags {
		out[name] = boolToInt(f.alive.Swap(false))
	}
	return out
}

// Healthy 所有标志均存活时返回 true
func (r *Registry) Healthy() bool {
	for _, v := range r.Snapshot() {
		if v == 0 {
			return false
		}
	}
	return true
}

// Names 返回已注册的标志名（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.flags))
	for name := range r.flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON 以 {"name": 0|1} 形式输出
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
