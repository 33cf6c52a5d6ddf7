package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pu-ac-cn/sso-center/internal/cipher"
	"github.com/pu-ac-cn/sso-center/internal/ticket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 存储哈希的字段名
// 索引字段明文存储供后端检索与过期清扫，完整载荷经加密执行器编码
const (
	fieldPrefix       = "prefix"
	fieldCreationTime = "creation_time"
	fieldCountOfUses  = "count_of_uses"
	fieldTimeToLive   = "time_to_live"
	fieldTimeToIdle   = "time_to_idle"
	fieldEncoded      = "encoded"
)

// DefaultCallTimeout 单次后端调用的默认超时
const DefaultCallTimeout = 3 * time.Second

// incrementUsesScript 存在性检查与计数递增的原子脚本
// 两步之间不允许插入删除，否则会把已删除的键复活成残缺哈希
var incrementUsesScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
`)

// addDescendantScript 存在性检查与子票据登记的原子脚本
// 子票据集合随票据哈希的物理 TTL 一并回收
var addDescendantScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("SADD", KEYS[2], ARGV[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
	redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`)

// RedisTicketRegistry 网络后端票据注册表
// 按票据目录为每种票据类型划分独立的键命名空间（一类一"表"），
// 每次写入整体重序列化票据；每次调用受独立超时约束，
// 超时视为调用失败而非"不存在"，由调用方自行退避重试
type RedisTicketRegistry struct {
	client  *redis.Client
	catalog *ticket.Catalog
	cipher  cipher.Executor
	timeout time.Duration
	log     *zap.Logger
}

// NewRedisTicketRegistry 创建网络后端票据注册表
func NewRedisTicketRegistry(client *redis.Client, catalog *ticket.Catalog, executor cipher.Executor, timeout time.Duration, log *zap.Logger) *RedisTicketRegistry {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if executor == nil {
		executor = cipher.NoOpExecutor{}
	}
	return &RedisTicketRegistry{
		client:  client,
		catalog: catalog,
		cipher:  executor,
		timeout: timeout,
		log:     log,
	}
}

// ttlSeconds 存活时长转秒数索引值，无上限记为 -1
func ttlSeconds(ttl time.Duration) int64 {
	if ttl >= ticket.MaxTimeToLive {
		return -1
	}
	return int64(ttl / time.Second)
}

// key 计算票据的存储键：ticket:<存储名>:<票据 ID>
func (r *RedisTicketRegistry) key(id string) (string, error) {
	def, err := r.catalog.FindByID(id)
	if err != nil {
		return "", err
	}
	return "ticket:" + def.StorageName + ":" + id, nil
}

// descKey 计算 TGT 子票据集合的存储键
// 与票据哈希分离存放，避免命名空间扫描误读非哈希类型
func descKey(id string) string {
	return "ticket_descendants:" + id
}

// AddTicket 写入票据
// 策略存在有限 TTL 时同步设置键过期，仅作为物理回收优化
func (r *RedisTicketRegistry) AddTicket(ctx context.Context, t ticket.Ticket) error {
	key, err := r.key(t.GetID())
	if err != nil {
		return err
	}

	data, err := ticket.Serialize(t)
	if err != nil {
		return err
	}
	encoded, err := r.cipher.Encode(data)
	if err != nil {
		return fmt.Errorf("加密票据载荷失败: %w", err)
	}

	policy := t.GetExpirationPolicy()
	fields := map[string]interface{}{
		fieldPrefix:       t.GetPrefix(),
		fieldCreationTime: t.GetCreationTime().UTC().Format(time.RFC3339Nano),
		fieldCountOfUses:  t.GetCountOfUses(),
		fieldTimeToLive:   ttlSeconds(policy.TimeToLive()),
		fieldTimeToIdle:   int64(policy.TimeToIdle() / time.Second),
		fieldEncoded:      encoded,
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("存储票据失败: %w", err)
	}
	if ttl := policy.TimeToLive(); ttl < ticket.MaxTimeToLive {
		r.client.Expire(ctx, key, ttl)
	}
	return nil
}

// GetTicket 读取票据
// 过期票据视同不存在并就地回收；解密失败按数据损坏上报，不伪装成不存在
func (r *RedisTicketRegistry) GetTicket(ctx context.Context, id string) (ticket.Ticket, error) {
	key, err := r.key(id)
	if err != nil {
		return nil, ErrTicketNotFound
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	fields, err := r.client.HGetAll(callCtx, key).Result()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("读取票据失败: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrTicketNotFound
	}

	t, err := r.decode(fields)
	if err != nil {
		r.log.Error("票据载荷损坏", zap.String("id", id), zap.Error(err))
		return nil, ErrTicketCorrupted
	}

	switch v := t.(type) {
	case *ticket.ServiceTicket:
		gone, err := r.parentExpired(ctx, v)
		if err != nil {
			return nil, err
		}
		if gone {
			v.SetGrantingTicketExpired()
		}
	case *ticket.TicketGrantingTicket:
		if err := r.attachDescendants(ctx, v); err != nil {
			return nil, err
		}
	}

	if t.IsExpired() {
		_, _ = r.DeleteTicket(ctx, id)
		return nil, ErrTicketNotFound
	}
	return t, nil
}

// attachDescendants 把注册表侧的子票据集合合并进 TGT 快照
// 集合是级联名单的权威来源，载荷里的名单可能是过期快照
func (r *RedisTicketRegistry) attachDescendants(ctx context.Context, tgt *ticket.TicketGrantingTicket) error {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	members, err := r.client.SMembers(callCtx, descKey(tgt.ID)).Result()
	cancel()
	if err != nil {
		return fmt.Errorf("读取子票据集合失败: %w", err)
	}
	sort.Strings(members)
	tgt.DescendantTickets = unionIDs(tgt.DescendantTickets, members)
	return nil
}

// parentExpired 判定 ST 的父 TGT 是否不存在或已过期
// 父票据损坏视同过期，子票据不得基于不可信的父会话放行
func (r *RedisTicketRegistry) parentExpired(ctx context.Context, st *ticket.ServiceTicket) (bool, error) {
	if st.TicketGrantingTicketID == "" {
		return false, nil
	}
	key, err := r.key(st.TicketGrantingTicketID)
	if err != nil {
		return true, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	fields, err := r.client.HGetAll(callCtx, key).Result()
	cancel()
	if err != nil {
		return false, fmt.Errorf("读取父票据失败: %w", err)
	}
	if len(fields) == 0 {
		return true, nil
	}
	parent, err := r.decode(fields)
	if err != nil {
		return true, nil
	}
	return parent.IsExpired(), nil
}

// decode 解码存储哈希为票据
// 使用计数以明文索引字段为准（原子递增的权威来源）
func (r *RedisTicketRegistry) decode(fields map[string]string) (ticket.Ticket, error) {
	data, err := r.cipher.Decode([]byte(fields[fieldEncoded]))
	if err != nil {
		return nil, err
	}
	t, err := ticket.Deserialize(data)
	if err != nil {
		return nil, err
	}

	if raw, ok := fields[fieldCountOfUses]; ok {
		count, err := strconv.Atoi(raw)
		if err == nil {
			switch v := t.(type) {
			case *ticket.TicketGrantingTicket:
				v.CountOfUses = count
			case *ticket.ServiceTicket:
				v.CountOfUses = count
			}
		}
	}
	return t, nil
}

// UpdateTicket 更新票据（整体重序列化）
func (r *RedisTicketRegistry) UpdateTicket(ctx context.Context, t ticket.Ticket) error {
	key, err := r.key(t.GetID())
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	exists, err := r.client.Exists(callCtx, key).Result()
	cancel()
	if err != nil {
		return fmt.Errorf("检查票据失败: %w", err)
	}
	if exists == 0 {
		return ErrTicketNotFound
	}
	return r.AddTicket(ctx, t)
}

// DeleteTicket 删除票据，TGT 级联删除子孙票据
func (r *RedisTicketRegistry) DeleteTicket(ctx context.Context, id string) (int, error) {
	key, err := r.key(id)
	if err != nil {
		return 0, nil
	}

	// 先读取原始记录以获取级联名单，过期票据同样参与级联
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	fields, err := r.client.HGetAll(callCtx, key).Result()
	cancel()
	if err != nil {
		return 0, fmt.Errorf("读取票据失败: %w", err)
	}
	if len(fields) == 0 {
		return 0, nil
	}

	// 级联名单取载荷快照与注册表侧集合的并集
	var descendants []string
	if t, err := r.decode(fields); err == nil {
		if tgt, ok := t.(*ticket.TicketGrantingTicket); ok {
			descendants = tgt.DescendantTickets
		}
	}
	callCtx, cancel = context.WithTimeout(ctx, r.timeout)
	members, err := r.client.SMembers(callCtx, descKey(id)).Result()
	cancel()
	if err != nil {
		return 0, fmt.Errorf("读取子票据集合失败: %w", err)
	}
	sort.Strings(members)
	descendants = unionIDs(descendants, members)

	callCtx, cancel = context.WithTimeout(ctx, r.timeout)
	deleted, err := r.client.Del(callCtx, key, descKey(id)).Result()
	cancel()
	if err != nil {
		return 0, fmt.Errorf("删除票据失败: %w", err)
	}
	if deleted > 1 {
		// 子票据集合不计入删除数量
		deleted = 1
	}

	count := int(deleted)
	for _, child := range descendants {
		n, err := r.DeleteTicket(ctx, child)
		if err != nil {
			return count, err
		}
		count += n
	}
	return count, nil
}

// GetTickets 扫描全部命名空间，返回未过期票据的快照
func (r *RedisTicketRegistry) GetTickets(ctx context.Context) ([]ticket.Ticket, error) {
	var out []ticket.Ticket
	err := r.scan(ctx, func(fields map[string]string) error {
		t, err := r.decode(fields)
		if err != nil {
			// 损坏记录记录日志后跳过，不让单条坏数据拖垮全量查询
			r.log.Error("跳过损坏的票据记录", zap.Error(err))
			return nil
		}
		switch v := t.(type) {
		case *ticket.ServiceTicket:
			gone, err := r.parentExpired(ctx, v)
			if err != nil {
				return err
			}
			if gone {
				v.SetGrantingTicketExpired()
			}
		case *ticket.TicketGrantingTicket:
			if err := r.attachDescendants(ctx, v); err != nil {
				return err
			}
		}
		if !t.IsExpired() {
			out = append(out, t)
		}
		return nil
	})
	return out, err
}

// AddDescendant 原子登记子票据 ID（Lua 脚本内检查存在性并写入集合）
func (r *RedisTicketRegistry) AddDescendant(ctx context.Context, tgtID, descendantID string) error {
	key, err := r.key(tgtID)
	if err != nil {
		return ErrTicketNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	added, err := addDescendantScript.Run(ctx, r.client, []string{key, descKey(tgtID)}, descendantID).Int()
	if err != nil {
		return fmt.Errorf("登记子票据失败: %w", err)
	}
	if added == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// IncrementUses 原子递增使用计数
// 存在性检查与 HINCRBY 在同一脚本内执行，避免与删除交错后复活键
func (r *RedisTicketRegistry) IncrementUses(ctx context.Context, id string) (int, error) {
	key, err := r.key(id)
	if err != nil {
		return 0, ErrTicketNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	count, err := incrementUsesScript.Run(ctx, r.client, []string{key}, fieldCountOfUses).Int()
	if err != nil {
		return 0, fmt.Errorf("递增使用计数失败: %w", err)
	}
	if count < 0 {
		return 0, ErrTicketNotFound
	}
	return count, nil
}

// DeleteExpired 物理回收逻辑上已过期的票据
func (r *RedisTicketRegistry) DeleteExpired(ctx context.Context) (int, error) {
	count := 0
	var expired []string
	err := r.scan(ctx, func(fields map[string]string) error {
		t, err := r.decode(fields)
		if err != nil {
			return nil
		}
		if t.IsExpired() {
			expired = append(expired, t.GetID())
			return nil
		}
		// 父 TGT 已不在的 ST 同样参与回收
		if st, ok := t.(*ticket.ServiceTicket); ok {
			if gone, err := r.parentExpired(ctx, st); err == nil && gone {
				expired = append(expired, t.GetID())
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, id := range expired {
		n, err := r.DeleteTicket(ctx, id)
		if err != nil && !errors.Is(err, ErrTicketNotFound) {
			return count, err
		}
		count += n
	}
	return count, nil
}

// DropAll 删除全部票据数据
// 破坏性操作，仅供测试与引导工具调用，绝不在常规路径上运行
func (r *RedisTicketRegistry) DropAll(ctx context.Context) error {
	patterns := []string{descKey("*")}
	for _, def := range r.catalog.Definitions() {
		patterns = append(patterns, "ticket:"+def.StorageName+":*")
	}
	for _, pattern := range patterns {
		iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("清空票据存储失败: %w", err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("扫描票据存储失败: %w", err)
		}
	}
	return nil
}

// scan 遍历全部票据命名空间
func (r *RedisTicketRegistry) scan(ctx context.Context, fn func(fields map[string]string) error) error {
	for _, def := range r.catalog.Definitions() {
		pattern := "ticket:" + def.StorageName + ":*"
		iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			fields, err := r.client.HGetAll(callCtx, iter.Val()).Result()
			cancel()
			if err != nil {
				return fmt.Errorf("读取票据失败: %w", err)
			}
			if len(fields) == 0 {
				continue
			}
			if err := fn(fields); err != nil {
				return err
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("扫描票据存储失败: %w", err)
		}
	}
	return nil
}
