package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventDeleted 删除事件标记（墓碑）
// 缓存中带该标记的条目表示记录已删除，本地的陈旧副本不得使其复活
const EventDeleted = "deleted"

// cacheEventKey 事件属性键
const cacheEventKey = "event"

// CacheObject 分布式缓存包装对象
// 值外附带时间戳与自由属性袋，属性袋承载墓碑等旁路信号；
// 相等性基于所包装的值
type CacheObject struct {
	Value      *RegisteredService `json:"value,omitempty"`
	Timestamp  int64              `json:"timestamp"`
	Properties map[string]string  `json:"properties,omitempty"`
}

// NewCacheObject 包装服务快照为缓存对象
func NewCacheObject(svc *RegisteredService) *CacheObject {
	return &CacheObject{
		Value:     svc.Copy(),
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewTombstone 创建删除墓碑
func NewTombstone(id int64) *CacheObject {
	return &CacheObject{
		Value:      &RegisteredService{ID: id},
		Timestamp:  time.Now().UnixMilli(),
		Properties: map[string]string{cacheEventKey: EventDeleted},
	}
}

// IsTombstone 是否为删除墓碑
func (o *CacheObject) IsTombstone() bool {
	return o != nil && o.Properties[cacheEventKey] == EventDeleted
}

// Equals 相等性基于所包装的值
func (o *CacheObject) Equals(other *CacheObject) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.Value.Equals(other.Value)
}

// DistributedCacheManager 分布式缓存抽象
// 复制策略的收敛算法只依赖该接口，与具体后端无关
type DistributedCacheManager interface {
	// Find 查找缓存对象，不存在返回 (nil, nil)
	Find(ctx context.Context, key string) (*CacheObject, error)
	// Set 写入缓存对象
	Set(ctx context.Context, key string, obj *CacheObject) error
	// Remove 移除缓存对象
	Remove(ctx context.Context, key string) error
	// GetAll 返回全部缓存对象
	GetAll(ctx context.Context) ([]*CacheObject, error)
	// Close 释放资源
	Close() error
}

// ServiceCacheKey 服务在分布式缓存中的键
func ServiceCacheKey(id int64) string {
	return fmt.Sprintf("%d", id)
}

// MemoryCacheManager 进程内缓存实现（测试与单机部署）
type MemoryCacheManager struct {
	mu      sync.RWMutex
	entries map[string]*CacheObject
}

// NewMemoryCacheManager 创建进程内缓存
func NewMemoryCacheManager() *MemoryCacheManager {
	return &MemoryCacheManager{entries: make(map[string]*CacheObject)}
}

// Find 查找缓存对象
func (m *MemoryCacheManager) Find(ctx context.Context, key string) (*CacheObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[key], nil
}

// Set 写入缓存对象
func (m *MemoryCacheManager) Set(ctx context.Context, key string, obj *CacheObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = obj
	return nil
}

// Remove 移除缓存对象
func (m *MemoryCacheManager) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// GetAll 返回全部缓存对象，按键升序
func (m *MemoryCacheManager) GetAll(ctx context.Context) ([]*CacheObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]*CacheObject, 0, len(keys))
	for _, key := range keys {
		out = append(out, m.entries[key])
	}
	return out, nil
}

// Close 进程内缓存无需释放
func (m *MemoryCacheManager) Close() error { return nil }

// redisCachePrefix 共享缓存的键前缀
const redisCachePrefix = "svc_cache:"

// RedisCacheManager 网络后端缓存实现（跨节点共享）
// 读写为乐观的最后写入者胜出，不加分布式锁
type RedisCacheManager struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisCacheManager 创建网络后端缓存
func NewRedisCacheManager(client *redis.Client, timeout time.Duration) *RedisCacheManager {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RedisCacheManager{client: client, timeout: timeout}
}

// Find 查找缓存对象
func (m *RedisCacheManager) Find(ctx context.Context, key string) (*CacheObject, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	data, err := m.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("读取服务缓存失败: %w", err)
	}

	var obj CacheObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("解析服务缓存失败: %w", err)
	}
	if obj.Value != nil {
		obj.Value.normalize()
	}
	return &obj, nil
}

// Set 写入缓存对象
func (m *RedisCacheManager) Set(ctx context.Context, key string, obj *CacheObject) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("序列化服务缓存失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.client.Set(ctx, redisCachePrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("写入服务缓存失败: %w", err)
	}
	return nil
}

// Remove 移除缓存对象
func (m *RedisCacheManager) Remove(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.client.Del(ctx, redisCachePrefix+key).Err(); err != nil {
		return fmt.Errorf("移除服务缓存失败: %w", err)
	}
	return nil
}

// GetAll 返回全部缓存对象
func (m *RedisCacheManager) GetAll(ctx context.Context) ([]*CacheObject, error) {
	var out []*CacheObject
	iter := m.client.Scan(ctx, 0, redisCachePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		data, err := m.client.Get(callCtx, iter.Val()).Bytes()
		cancel()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("读取服务缓存失败: %w", err)
		}
		var obj CacheObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("解析服务缓存失败: %w", err)
		}
		if obj.Value != nil {
			obj.Value.normalize()
		}
		out = append(out, &obj)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("扫描服务缓存失败: %w", err)
	}
	return out, nil
}

// Close 关闭由调用方持有的连接，这里无需重复释放
func (m *RedisCacheManager) Close() error { return nil }
