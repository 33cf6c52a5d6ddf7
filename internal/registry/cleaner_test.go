package registry

import (
	"context"
	"testing"
	"time"

	"github.com/pu-ac-cn/sso-center/internal/ticket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCleaner_SweepsExpired(t *testing.T) {
	r := NewMemoryTicketRegistry(zap.NewNop())
	ctx := context.Background()

	expired := newTGT(ticket.HardTimeoutExpirationPolicy{TTL: time.Millisecond})
	expired.CreationTime = time.Now().Add(-time.Second)
	live := newTGT(ticket.NeverExpiresPolicy{})

	require.NoError(t, r.AddTicket(ctx, expired))
	require.NoError(t, r.AddTicket(ctx, live))

	cleaner := NewCleaner(r, 10*time.Millisecond, zap.NewNop())
	cleaner.Start()
	defer cleaner.Stop()

	// 等待至少一轮清扫
	assert.Eventually(t, func() bool {
		all, err := r.GetTickets(context.Background())
		if err != nil {
			return false
		}
		return len(all) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCleaner_StopIdempotent(t *testing.T) {
	r := NewMemoryTicketRegistry(zap.NewNop())

	cleaner := NewCleaner(r, time.Hour, zap.NewNop())
	cleaner.Start()

	cleaner.Stop()
	cleaner.Stop()
}

func TestCleaner_CorrectnessWithoutSweep(t *testing.T) {
	// 物理回收只是优化：不启动清扫器，逻辑过期判定依旧生效
	r := NewMemoryTicketRegistry(zap.NewNop())
	ctx := context.Background()

	expired := newTGT(ticket.HardTimeoutExpirationPolicy{TTL: time.Millisecond})
	expired.CreationTime = time.Now().Add(-time.Second)
	require.NoError(t, r.AddTicket(ctx, expired))

	_, err := r.GetTicket(ctx, expired.ID)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}
