package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReplicationMode 复制模式
type ReplicationMode string

const (
	// ReplicationActiveActive 双活收敛：缓存副本对本地存储有权威性
	ReplicationActiveActive ReplicationMode = "active-active"
	// ReplicationActivePassive 主备单向推送：只向缓存推送，本地不被覆盖
	ReplicationActivePassive ReplicationMode = "active-passive"
)

// ReplicationStrategy 复制策略
// 以共享分布式缓存为中介调和本地注册表副本；
// 逐条记录乐观收敛（最后写入者胜出），不取分布式锁，
// 收敛冲突按确定性规则化解，从不升级为用户可见错误
type ReplicationStrategy struct {
	cache DistributedCacheManager
	mode  ReplicationMode
	log   *zap.Logger
}

// NewReplicationStrategy 创建复制策略
func NewReplicationStrategy(cache DistributedCacheManager, mode ReplicationMode, log *zap.Logger) *ReplicationStrategy {
	if mode == "" {
		mode = ReplicationActivePassive
	}
	return &ReplicationStrategy{cache: cache, mode: mode, log: log}
}

// Mode 当前复制模式
func (s *ReplicationStrategy) Mode() ReplicationMode { return s.mode }

// NotifySaved 本地保存后向缓存推送新副本
func (s *ReplicationStrategy) NotifySaved(ctx context.Context, svc *RegisteredService) {
	if err := s.cache.Set(ctx, ServiceCacheKey(svc.ID), NewCacheObject(svc)); err != nil {
		s.log.Warn("推送服务副本到缓存失败", zap.Int64("service_id", svc.ID), zap.Error(err))
	}
}

// NotifyDeleted 本地删除后写入墓碑，阻止陈旧副本复活
func (s *ReplicationStrategy) NotifyDeleted(ctx context.Context, id int64) {
	if err := s.cache.Set(ctx, ServiceCacheKey(id), NewTombstone(id)); err != nil {
		s.log.Warn("写入删除墓碑失败", zap.Int64("service_id", id), zap.Error(err))
	}
}

// Reconcile 调和单个服务的本地副本与缓存副本
// local 为本地注册表，svc 为本地当前副本（可为 nil），id 为服务标识。
// 规则：
//  1. 缓存中存在墓碑 → 删除本地副本，墓碑胜出；
//  2. 缓存为空且本地存在 → 将本地副本推入缓存；
//  3. 两者都存在且值不等 → 双活模式下缓存副本覆盖本地，
//     否则以本地更新缓存、本地保持不变；
//  4. 缓存存在而本地不存在 → 双活模式下落地缓存副本。
//
// 返回调和后的权威副本（已删除时为 nil）
func (s *ReplicationStrategy) Reconcile(ctx context.Context, local ServiceRegistry, id int64, svc *RegisteredService) (*RegisteredService, error) {
	cached, err := s.cache.Find(ctx, ServiceCacheKey(id))
	if err != nil {
		// 缓存故障不升级为用户可见错误，维持本地副本可用
		s.log.Warn("读取服务缓存失败，保留本地副本", zap.Int64("service_id", id), zap.Error(err))
		return svc, nil
	}

	if cached.IsTombstone() {
		if svc != nil {
			if _, err := local.Delete(ctx, id); err != nil {
				return nil, err
			}
			s.log.Info("按缓存墓碑删除本地服务副本", zap.Int64("service_id", id))
		}
		return nil, nil
	}

	if cached == nil {
		if svc != nil {
			s.NotifySaved(ctx, svc)
		}
		return svc, nil
	}

	if svc == nil {
		if s.mode == ReplicationActiveActive {
			saved, err := local.Save(ctx, cached.Value)
			if err != nil {
				return nil, err
			}
			s.log.Info("从缓存落地服务副本", zap.Int64("service_id", id))
			return saved, nil
		}
		return nil, nil
	}

	if cached.Value.Equals(svc) {
		return svc, nil
	}

	if s.mode == ReplicationActiveActive {
		saved, err := local.Save(ctx, cached.Value)
		if err != nil {
			return nil, err
		}
		s.log.Info("缓存副本覆盖本地服务副本", zap.Int64("service_id", id))
		return saved, nil
	}

	// 主备模式：以本地更新缓存，本地不被覆盖
	s.NotifySaved(ctx, svc)
	return svc, nil
}

// ReconcileAll 对本地与缓存中出现过的全部服务做一轮调和
func (s *ReplicationStrategy) ReconcileAll(ctx context.Context, local ServiceRegistry) error {
	seen := make(map[int64]bool)

	locals, err := local.Load(ctx)
	if err != nil {
		return err
	}
	for _, svc := range locals {
		seen[svc.ID] = true
		if _, err := s.Reconcile(ctx, local, svc.ID, svc); err != nil {
			return err
		}
	}

	cachedAll, err := s.cache.GetAll(ctx)
	if err != nil {
		s.log.Warn("枚举服务缓存失败", zap.Error(err))
		return nil
	}
	for _, obj := range cachedAll {
		if obj.Value == nil || seen[obj.Value.ID] {
			continue
		}
		if _, err := s.Reconcile(ctx, local, obj.Value.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

// ReplicatedServiceRegistry 带复制策略的服务注册表
// 写路径同步通知缓存，读路径按模式调和分歧
type ReplicatedServiceRegistry struct {
	local    ServiceRegistry
	strategy *ReplicationStrategy
}

// NewReplicatedServiceRegistry 包装本地注册表接入复制策略
func NewReplicatedServiceRegistry(local ServiceRegistry, strategy *ReplicationStrategy) *ReplicatedServiceRegistry {
	return &ReplicatedServiceRegistry{local: local, strategy: strategy}
}

// Save 本地保存并推送缓存
func (r *ReplicatedServiceRegistry) Save(ctx context.Context, svc *RegisteredService) (*RegisteredService, error) {
	saved, err := r.local.Save(ctx, svc)
	if err != nil {
		return nil, err
	}
	r.strategy.NotifySaved(ctx, saved)
	return saved, nil
}

// Delete 本地删除并写入墓碑
func (r *ReplicatedServiceRegistry) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := r.local.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		r.strategy.NotifyDeleted(ctx, id)
	}
	return deleted, nil
}

// Load 返回本地全部服务
func (r *ReplicatedServiceRegistry) Load(ctx context.Context) ([]*RegisteredService, error) {
	return r.local.Load(ctx)
}

// FindServiceByID 查找并调和
func (r *ReplicatedServiceRegistry) FindServiceByID(ctx context.Context, id int64) (*RegisteredService, error) {
	svc, err := r.local.FindServiceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.strategy.Reconcile(ctx, r.local, id, svc)
}

// FindServiceByExactServiceID 查找并调和
func (r *ReplicatedServiceRegistry) FindServiceByExactServiceID(ctx context.Context, serviceID string) (*RegisteredService, error) {
	svc, err := r.local.FindServiceByExactServiceID(ctx, serviceID)
	if err != nil || svc == nil {
		return svc, err
	}
	return r.strategy.Reconcile(ctx, r.local, svc.ID, svc)
}

// FindServiceByName 查找并调和
func (r *ReplicatedServiceRegistry) FindServiceByName(ctx context.Context, name string) (*RegisteredService, error) {
	svc, err := r.local.FindServiceByName(ctx, name)
	if err != nil || svc == nil {
		return svc, err
	}
	return r.strategy.Reconcile(ctx, r.local, svc.ID, svc)
}

// FindServiceBy 模式匹配查找并调和命中的服务
func (r *ReplicatedServiceRegistry) FindServiceBy(ctx context.Context, serviceID string) (*RegisteredService, error) {
	svc, err := r.local.FindServiceBy(ctx, serviceID)
	if err != nil || svc == nil {
		return svc, err
	}
	return r.strategy.Reconcile(ctx, r.local, svc.ID, svc)
}

// Size 本地服务数量
func (r *ReplicatedServiceRegistry) Size(ctx context.Context) (int, error) {
	return r.local.Size(ctx)
}

// Name 注册表名称
func (r *ReplicatedServiceRegistry) Name() string {
	return r.local.Name() + "+replicated"
}

// Resyncer 周期性全量调和器
// 主备模式下本地允许继续服务陈旧数据，该调和器按配置的周期
// 强制一轮全量调和使其最终收敛；间隔为 0 时不启用。
// 显式 Start/Stop，由进程生命周期持有
type Resyncer struct {
	strategy *ReplicationStrategy
	local    ServiceRegistry
	interval time.Duration
	log      *zap.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewResyncer 创建周期性调和器
func NewResyncer(strategy *ReplicationStrategy, local ServiceRegistry, interval time.Duration, log *zap.Logger) *Resyncer {
	return &Resyncer{
		strategy: strategy,
		local:    local,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Start 启动调和循环，间隔为 0 时直接返回
func (r *Resyncer) Start() {
	if r.interval <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), r.interval)
				if err := r.strategy.ReconcileAll(ctx, r.local); err != nil {
					r.log.Warn("周期性服务调和失败", zap.Error(err))
				}
				cancel()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop 停止调和循环
func (r *Resyncer) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}
