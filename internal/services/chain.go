package services

import (
	"context"
	"strings"
)

// ChainingServiceRegistry 链式服务注册表
// 聚合多个后端注册表：写操作扇出到所有可写成员，
// 查询按配置顺序逐个尝试返回首个非空结果，
// Load 直接串接各成员结果（跨后端去重由复制策略负责）
type ChainingServiceRegistry struct {
	registries []ServiceRegistry
}

// NewChainingServiceRegistry 创建链式服务注册表
func NewChainingServiceRegistry(registries ...ServiceRegistry) *ChainingServiceRegistry {
	return &ChainingServiceRegistry{registries: registries}
}

// AddRegistry 追加成员注册表
func (c *ChainingServiceRegistry) AddRegistry(r ServiceRegistry) {
	c.registries = append(c.registries, r)
}

// isImmutable 成员是否为只读注册表
func isImmutable(r ServiceRegistry) bool {
	im, ok := r.(ImmutableRegistry)
	return ok && im.Immutable()
}

// Save 扇出保存到所有可写成员
// 首个成员分配的 ID 向后传递，保证各成员存储同一 ID
func (c *ChainingServiceRegistry) Save(ctx context.Context, svc *RegisteredService) (*RegisteredService, error) {
	saved := svc.Copy()
	for _, r := range c.registries {
		if isImmutable(r) {
			continue
		}
		out, err := r.Save(ctx, saved)
		if err != nil {
			return nil, err
		}
		saved = out
	}
	return saved, nil
}

// Delete 扇出删除到所有可写成员
func (c *ChainingServiceRegistry) Delete(ctx context.Context, id int64) (bool, error) {
	deleted := false
	for _, r := range c.registries {
		if isImmutable(r) {
			continue
		}
		ok, err := r.Delete(ctx, id)
		if err != nil {
			return deleted, err
		}
		deleted = deleted || ok
	}
	return deleted, nil
}

// Load 串接所有成员的结果，不做去重
func (c *ChainingServiceRegistry) Load(ctx context.Context) ([]*RegisteredService, error) {
	var out []*RegisteredService
	for _, r := range c.registries {
		part, err := r.Load(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}

// FindServiceByID 按成员顺序查找，返回首个非空结果
func (c *ChainingServiceRegistry) FindServiceByID(ctx context.Context, id int64) (*RegisteredService, error) {
	for _, r := range c.registries {
		svc, err := r.FindServiceByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if svc != nil {
			return svc, nil
		}
	}
	return nil, nil
}

// FindServiceByExactServiceID 按成员顺序查找，返回首个非空结果
func (c *ChainingServiceRegistry) FindServiceByExactServiceID(ctx context.Context, serviceID string) (*RegisteredService, error) {
	for _, r := range c.registries {
		svc, err := r.FindServiceByExactServiceID(ctx, serviceID)
		if err != nil {
			return nil, err
		}
		if svc != nil {
			return svc, nil
		}
	}
	return nil, nil
}

// FindServiceByName 按成员顺序查找，返回首个非空结果
func (c *ChainingServiceRegistry) FindServiceByName(ctx context.Context, name string) (*RegisteredService, error) {
	for _, r := range c.registries {
		svc, err := r.FindServiceByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if svc != nil {
			return svc, nil
		}
	}
	return nil, nil
}

// FindServiceBy 按成员顺序做模式匹配，返回首个非空结果
func (c *ChainingServiceRegistry) FindServiceBy(ctx context.Context, serviceID string) (*RegisteredService, error) {
	for _, r := range c.registries {
		svc, err := r.FindServiceBy(ctx, serviceID)
		if err != nil {
			return nil, err
		}
		if svc != nil {
			return svc, nil
		}
	}
	return nil, nil
}

// Size 聚合所有可写成员的服务数量
func (c *ChainingServiceRegistry) Size(ctx context.Context) (int, error) {
	total := 0
	for _, r := range c.registries {
		if isImmutable(r) {
			continue
		}
		n, err := r.Size(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Name 聚合所有可写成员的名称
func (c *ChainingServiceRegistry) Name() string {
	var names []string
	for _, r := range c.registries {
		if isImmutable(r) {
			continue
		}
		names = append(names, r.Name())
	}
	return strings.Join(names, ",")
}

// ImmutableServiceRegistry 只读注册表包装
// 写操作静默忽略，用于挂载基线配置等不可变来源
type ImmutableServiceRegistry struct {
	ServiceRegistry
}

// NewImmutableServiceRegistry 包装为只读注册表
func NewImmutableServiceRegistry(r ServiceRegistry) *ImmutableServiceRegistry {
	return &ImmutableServiceRegistry{ServiceRegistry: r}
}

// Immutable 标记为只读
func (r *ImmutableServiceRegistry) Immutable() bool { return true }

// Save 只读注册表忽略写入，返回原快照
func (r *ImmutableServiceRegistry) Save(ctx context.Context, svc *RegisteredService) (*RegisteredService, error) {
	return svc.Copy(), nil
}

// Delete 只读注册表忽略删除
func (r *ImmutableServiceRegistry) Delete(ctx context.Context, id int64) (bool, error) {
	return false, nil
}
