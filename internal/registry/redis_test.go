package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pu-ac-cn/sso-center/internal/cipher"
	"github.com/pu-ac-cn/sso-center/internal/ticket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// 创建测试用的 Redis 客户端
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr, func() {
		client.Close()
		mr.Close()
	}
}

// testCatalog 测试用票据目录
func testCatalog() *ticket.Catalog {
	return ticket.NewDefaultCatalog(ticket.DefaultCatalogConfig{
		TGTPolicy: func() ticket.ExpirationPolicy { return ticket.NeverExpiresPolicy{} },
		STPolicy:  func() ticket.ExpirationPolicy { return ticket.NeverExpiresPolicy{} },
		PTPolicy:  func() ticket.ExpirationPolicy { return ticket.NeverExpiresPolicy{} },
	})
}

func newRedisRegistry(t *testing.T, client *redis.Client, executor cipher.Executor) *RedisTicketRegistry {
	t.Helper()
	return NewRedisTicketRegistry(client, testCatalog(), executor, time.Second, zap.NewNop())
}

func TestRedisRegistry_AddAndGet(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)
	ctx := context.Background()

	tgt := newTGT(ticket.NeverExpiresPolicy{})
	tgt.AddDescendant("ST-1-abc")
	require.NoError(t, r.AddTicket(ctx, tgt))

	got, err := GetTicketGrantingTicket(ctx, r, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, tgt.ID, got.ID)
	assert.Equal(t, "alice", got.Authentication.Principal.ID)
	assert.Equal(t, []string{"ST-1-abc"}, got.DescendantTickets)
}

func TestRedisRegistry_NotFound(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)

	_, err := r.GetTicket(context.Background(), "TGT-1-missing")
	assert.ErrorIs(t, err, ErrTicketNotFound)

	// 目录中未注册的前缀同样按不存在处理
	_, err = r.GetTicket(context.Background(), "XX-1-abc")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestRedisRegistry_ExpiredEqualsAbsent(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)
	ctx := context.Background()

	tgt := newTGT(ticket.HardTimeoutExpirationPolicy{TTL: 10 * time.Millisecond})
	tgt.CreationTime = time.Now().Add(-time.Second)
	require.NoError(t, r.AddTicket(ctx, tgt))

	_, err := r.GetTicket(ctx, tgt.ID)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestRedisRegistry_EncryptedRoundTrip(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	key, err := cipher.GenerateKey()
	require.NoError(t, err)
	executor, err := cipher.NewSecretboxExecutor(key)
	require.NoError(t, err)

	r := newRedisRegistry(t, client, executor)
	ctx := context.Background()

	tgt := newTGT(ticket.NeverExpiresPolicy{})
	require.NoError(t, r.AddTicket(ctx, tgt))

	got, err := GetTicketGrantingTicket(ctx, r, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Authentication.Principal.ID)
}

func TestRedisRegistry_CorruptedPayload(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	key, err := cipher.GenerateKey()
	require.NoError(t, err)
	executor, err := cipher.NewSecretboxExecutor(key)
	require.NoError(t, err)

	r := newRedisRegistry(t, client, executor)
	ctx := context.Background()

	tgt := newTGT(ticket.NeverExpiresPolicy{})
	require.NoError(t, r.AddTicket(ctx, tgt))

	// 后端数据被篡改时按损坏上报，不伪装成不存在
	mr.HSet("ticket:ticket_granting_tickets:"+tgt.ID, "encoded", "garbage")

	_, err = r.GetTicket(ctx, tgt.ID)
	assert.ErrorIs(t, err, ErrTicketCorrupted)
}

func TestRedisRegistry_Update(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)
	ctx := context.Background()

	tgt := newTGT(ticket.NeverExpiresPolicy{})
	require.NoError(t, r.AddTicket(ctx, tgt))

	tgt.AddDescendant("ST-9-xyz")
	require.NoError(t, r.UpdateTicket(ctx, tgt))

	got, err := GetTicketGrantingTicket(ctx, r, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ST-9-xyz"}, got.DescendantTickets)

	// 不存在的票据不允许更新
	missing := newTGT(ticket.NeverExpiresPolicy{})
	assert.ErrorIs(t, r.UpdateTicket(ctx, missing), ErrTicketNotFound)
}

func TestRedisRegistry_CascadeDelete(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)
	ctx := context.Background()

	tgt := newTGT(ticket.NeverExpiresPolicy{})
	st1 := newST(tgt.ID, ticket.NeverExpiresPolicy{})
	st2 := newST(tgt.ID, ticket.NeverExpiresPolicy{})
	tgt.AddDescendant(st1.ID)
	tgt.AddDescendant(st2.ID)

	require.NoError(t, r.AddTicket(ctx, tgt))
	require.NoError(t, r.AddTicket(ctx, st1))
	require.NoError(t, r.AddTicket(ctx, st2))

	count, err := r.DeleteTicket(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = r.GetTicket(ctx, st1.ID)
	assert.ErrorIs(t, err, ErrTicketNotFound)

	count, err = r.DeleteTicket(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRedisRegistry_IncrementUses(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)
	ctx := context.Background()

	tgt := newTGT(ticket.NeverExpiresPolicy{})
	require.NoError(t, r.AddTicket(ctx, tgt))

	st := newST(tgt.ID, ticket.NeverExpiresPolicy{})
	st.Reusable = true
	require.NoError(t, r.AddTicket(ctx, st))

	// 原子计数是单次使用语义的权威来源
	count, err := r.IncrementUses(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = r.IncrementUses(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// 计数回读以索引字段为准
	got, err := GetServiceTicket(ctx, r, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CountOfUses)

	_, err = r.IncrementUses(ctx, "ST-1-missing")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestRedisRegistry_ParentExpiredInvalidatesST(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)
	ctx := context.Background()

	// TGT 逻辑过期但物理记录尚在，挂在其下的 ST 自身计时器未到期
	tgt := newTGT(ticket.HardTimeoutExpirationPolicy{TTL: 10 * time.Millisecond})
	tgt.CreationTime = time.Now().Add(-time.Second)
	require.NoError(t, r.AddTicket(ctx, tgt))

	st := newST(tgt.ID, ticket.NeverExpiresPolicy{})
	require.NoError(t, r.AddTicket(ctx, st))

	_, err := r.GetTicket(ctx, st.ID)
	assert.ErrorIs(t, err, ErrTicketNotFound)

	all, err := r.GetTickets(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRedisRegistry_AddDescendant(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)
	ctx := context.Background()

	tgt := newTGT(ticket.NeverExpiresPolicy{})
	require.NoError(t, r.AddTicket(ctx, tgt))

	require.NoError(t, r.AddDescendant(ctx, tgt.ID, "ST-1-abc"))
	require.NoError(t, r.AddDescendant(ctx, tgt.ID, "ST-2-def"))
	require.NoError(t, r.AddDescendant(ctx, tgt.ID, "ST-1-abc"))

	got, err := GetTicketGrantingTicket(ctx, r, tgt.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ST-1-abc", "ST-2-def"}, got.DescendantTickets)

	assert.ErrorIs(t, r.AddDescendant(ctx, "TGT-1-missing", "ST-3-ghi"), ErrTicketNotFound)
}

func TestRedisRegistry_UpdateKeepsRegisteredDescendants(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)
	ctx := context.Background()

	tgt := newTGT(ticket.NeverExpiresPolicy{})
	require.NoError(t, r.AddTicket(ctx, tgt))
	require.NoError(t, r.AddDescendant(ctx, tgt.ID, "ST-1-abc"))

	// 过期快照整体重写不得丢掉注册表侧已登记的子票据
	stale := newTGT(ticket.NeverExpiresPolicy{})
	stale.ID = tgt.ID
	stale.Authentication = tgt.Authentication
	stale.MarkUsed()
	require.NoError(t, r.UpdateTicket(ctx, stale))

	got, err := GetTicketGrantingTicket(ctx, r, tgt.ID)
	require.NoError(t, err)
	assert.Contains(t, got.DescendantTickets, "ST-1-abc")
}

func TestRedisRegistry_CascadeCoversRegisteredDescendants(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)
	ctx := context.Background()

	tgt := newTGT(ticket.NeverExpiresPolicy{})
	require.NoError(t, r.AddTicket(ctx, tgt))

	// 仅经注册表登记、未写回载荷名单的子票据同样被级联销毁
	st := newST(tgt.ID, ticket.NeverExpiresPolicy{})
	require.NoError(t, r.AddTicket(ctx, st))
	require.NoError(t, r.AddDescendant(ctx, tgt.ID, st.ID))

	count, err := r.DeleteTicket(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = r.GetTicket(ctx, st.ID)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestRedisRegistry_IncrementAfterDelete(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)
	ctx := context.Background()

	tgt := newTGT(ticket.NeverExpiresPolicy{})
	require.NoError(t, r.AddTicket(ctx, tgt))
	st := newST(tgt.ID, ticket.NeverExpiresPolicy{})
	require.NoError(t, r.AddTicket(ctx, st))

	_, err := r.DeleteTicket(ctx, st.ID)
	require.NoError(t, err)

	// 删除后的递增不得把键复活成残缺哈希
	_, err = r.IncrementUses(ctx, st.ID)
	assert.ErrorIs(t, err, ErrTicketNotFound)

	exists, err := client.Exists(ctx, "ticket:service_tickets:"+st.ID).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisRegistry_GetTicketsAndDeleteExpired(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)
	ctx := context.Background()

	live := newTGT(ticket.NeverExpiresPolicy{})
	expired := newTGT(ticket.HardTimeoutExpirationPolicy{TTL: 10 * time.Millisecond})
	expired.CreationTime = time.Now().Add(-time.Second)

	require.NoError(t, r.AddTicket(ctx, live))
	require.NoError(t, r.AddTicket(ctx, expired))

	all, err := r.GetTickets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, live.ID, all[0].GetID())

	count, err := r.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRedisRegistry_DropAll(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	r := newRedisRegistry(t, client, nil)
	ctx := context.Background()

	require.NoError(t, r.AddTicket(ctx, newTGT(ticket.NeverExpiresPolicy{})))
	require.NoError(t, r.AddTicket(ctx, newST("TGT-1-abc", ticket.NeverExpiresPolicy{})))

	require.NoError(t, r.DropAll(ctx))

	all, err := r.GetTickets(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
