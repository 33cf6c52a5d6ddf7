package services

import (
	"context"
	"sort"
	"sync"
)

// ServiceRegistry 注册服务注册表接口
// 所有查询方法在目标不存在时返回 (nil, nil)，error 只表示 I/O 故障
type ServiceRegistry interface {
	// Save 保存服务，ID 为 0 时分配新 ID；返回保存后的快照
	Save(ctx context.Context, svc *RegisteredService) (*RegisteredService, error)
	// Delete 删除服务，重复删除返回 false
	Delete(ctx context.Context, id int64) (bool, error)
	// Load 返回全部服务的快照
	Load(ctx context.Context) ([]*RegisteredService, error)
	// FindServiceByID 按数字 ID 查找
	FindServiceByID(ctx context.Context, id int64) (*RegisteredService, error)
	// FindServiceByExactServiceID 按服务标识精确匹配（非模式匹配）
	FindServiceByExactServiceID(ctx context.Context, serviceID string) (*RegisteredService, error)
	// FindServiceByName 按名称查找
	FindServiceByName(ctx context.Context, name string) (*RegisteredService, error)
	// FindServiceBy 按匹配模式查找：候选按 evaluationOrder 升序逐个尝试，
	// 返回第一个命中的服务（同序号按服务 ID 升序决出先后）
	FindServiceBy(ctx context.Context, serviceID string) (*RegisteredService, error)
	// Size 服务数量
	Size(ctx context.Context) (int, error)
	// Name 注册表名称
	Name() string
}

// ImmutableRegistry 标记只读注册表
// 链式注册表的 Size/Name 聚合只统计可写成员
type ImmutableRegistry interface {
	Immutable() bool
}

// SortCandidates 按 (evaluationOrder, ID) 升序排序候选服务
// 低序号优先；同序号以服务数字 ID 升序作为确定性决胜
func SortCandidates(candidates []*RegisteredService) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].EvaluationOrder != candidates[j].EvaluationOrder {
			return candidates[i].EvaluationOrder < candidates[j].EvaluationOrder
		}
		return candidates[i].ID < candidates[j].ID
	})
}

// matchOrdered 在有序候选中返回第一个命中者
func matchOrdered(candidates []*RegisteredService, serviceID string) *RegisteredService {
	SortCandidates(candidates)
	for _, svc := range candidates {
		if svc.Matches(serviceID) {
			return svc
		}
	}
	return nil
}

// InMemoryServiceRegistry 进程内服务注册表
// 并发读写安全；存取均为值快照，外部修改不会穿透注册表
type InMemoryServiceRegistry struct {
	mu       sync.RWMutex
	services map[int64]*RegisteredService
	nextID   int64
	name     string
}

// NewInMemoryServiceRegistry 创建进程内服务注册表
func NewInMemoryServiceRegistry(name string) *InMemoryServiceRegistry {
	if name == "" {
		name = "in-memory"
	}
	return &InMemoryServiceRegistry{
		services: make(map[int64]*RegisteredService),
		nextID:   1,
		name:     name,
	}
}

// Save 保存服务
func (r *InMemoryServiceRegistry) Save(ctx context.Context, svc *RegisteredService) (*RegisteredService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := svc.Copy()
	if clone.ID == 0 {
		clone.ID = r.nextID
	}
	if clone.ID >= r.nextID {
		r.nextID = clone.ID + 1
	}
	r.services[clone.ID] = clone
	return clone.Copy(), nil
}

// Delete 删除服务
func (r *InMemoryServiceRegistry) Delete(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[id]; !ok {
		return false, nil
	}
	delete(r.services, id)
	return true, nil
}

// Load 返回全部服务的快照，按 (evaluationOrder, ID) 升序
func (r *InMemoryServiceRegistry) Load(ctx context.Context) ([]*RegisteredService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*RegisteredService, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, svc.Copy())
	}
	SortCandidates(out)
	return out, nil
}

// FindServiceByID 按数字 ID 查找
func (r *InMemoryServiceRegistry) FindServiceByID(ctx context.Context, id int64) (*RegisteredService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services[id].Copy(), nil
}

// FindServiceByExactServiceID 按服务标识精确匹配
func (r *InMemoryServiceRegistry) FindServiceByExactServiceID(ctx context.Context, serviceID string) (*RegisteredService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, svc := range r.services {
		if svc.ServiceID == serviceID {
			return svc.Copy(), nil
		}
	}
	return nil, nil
}

// FindServiceByName 按名称查找
func (r *InMemoryServiceRegistry) FindServiceByName(ctx context.Context, name string) (*RegisteredService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, svc := range r.services {
		if svc.Name == name {
			return svc.Copy(), nil
		}
	}
	return nil, nil
}

// FindServiceBy 按匹配模式查找，低序号服务优先命中
func (r *InMemoryServiceRegistry) FindServiceBy(ctx context.Context, serviceID string) (*RegisteredService, error) {
	candidates, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return matchOrdered(candidates, serviceID), nil
}

// Size 服务数量
func (r *InMemoryServiceRegistry) Size(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services), nil
}

// Name 注册表名称
func (r *InMemoryServiceRegistry) Name() string { return r.name }
