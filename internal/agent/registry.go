package agent

import (
	"sort"
	"sync"

	"GraphMind/internal/models"
)

// Registry 持有响应者的静态描述与对应的执行实现。
// 描述符可以被配置更新整体替换，规划器与状态广播器总是读取实时内容；
// 替换对读者而言是原子的（RWMutex 保护下整体换引用）。
type Registry struct {
	mutex       sync.RWMutex
	descriptors map[string]models.AgentDescriptor
	responders  map[string]Responder
}

// NewRegistry 创建一个空的注册表。
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]models.AgentDescriptor),
		responders:  make(map[string]Responder),
	}
}

// RegisterResponder 注册一个响应者实现。实现与描述符分离：
// 描述符可以被外部配置反复替换，实现只在启动时装配一次。
func (r *Registry) RegisterResponder(responder Responder) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.responders[responder.ID()] = responder
}

// Responder 按ID查找响应者实现。
func (r *Registry) Responder(id string) (Responder, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	resp, ok := r.responders[id]
	return resp, ok
}

// ReplaceDescriptors 用给定列表整体替换描述符。
func (r *Registry) ReplaceDescriptors(descriptors []models.AgentDescriptor) {
	next := make(map[string]models.AgentDescriptor, len(descriptors))
	for _, d := range descriptors {
		next[d.ID] = d
	}
	r.mutex.Lock()
	r.descriptors = next
	r.mutex.Unlock()
}

// ReplaceDescriptorMap 用已按ID组织好的映射整体替换描述符。
func (r *Registry) ReplaceDescriptorMap(descriptors map[string]models.AgentDescriptor) {
	next := make(map[string]models.AgentDescriptor, len(descriptors))
	for id, d := range descriptors {
		next[id] = d
	}
	r.mutex.Lock()
	r.descriptors = next
	r.mutex.Unlock()
}

// Descriptor 按ID查找描述符。
func (r *Registry) Descriptor(id string) (models.AgentDescriptor, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	d, ok := r.descriptors[id]
	return d, ok
}

// Descriptors 返回全部描述符的快照。
func (r *Registry) Descriptors() []models.AgentDescriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]models.AgentDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sortDescriptors(out)
	return out
}

// EnabledDescriptors 返回所有启用的描述符。
// 结果按优先级降序、同优先级按ID排序，保证规划提示词的确定性。
func (r *Registry) EnabledDescriptors() []models.AgentDescriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]models.AgentDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if d.Enabled {
			out = append(out, d)
		}
	}
	sortDescriptors(out)
	return out
}

func sortDescriptors(ds []models.AgentDescriptor) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Priority != ds[j].Priority {
			return ds[i].Priority > ds[j].Priority
		}
		return ds[i].ID < ds[j].ID
	})
}
