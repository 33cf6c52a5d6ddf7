package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/pu-ac-cn/sso-center/internal/ticket"
	"go.uber.org/zap"
)

// MemoryTicketRegistry 进程内票据注册表
// 读写锁保护的有序集合，快照遍历按 ID 升序；
// 存取均经序列化往返复制，调用方持有的实例与注册表内部状态隔离
type MemoryTicketRegistry struct {
	mu      sync.RWMutex
	tickets map[string]ticket.Ticket
	log     *zap.Logger
}

// NewMemoryTicketRegistry 创建进程内票据注册表
func NewMemoryTicketRegistry(log *zap.Logger) *MemoryTicketRegistry {
	return &MemoryTicketRegistry{
		tickets: make(map[string]ticket.Ticket),
		log:     log,
	}
}

// AddTicket 写入票据
func (r *MemoryTicketRegistry) AddTicket(ctx context.Context, t ticket.Ticket) error {
	clone, err := ticket.Clone(t)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[t.GetID()] = clone
	return nil
}

// GetTicket 读取票据，过期视同不存在并就地回收
// ST 读取前解析父 TGT，父票据不存在或已过期则子票据一并判废
func (r *MemoryTicketRegistry) GetTicket(ctx context.Context, id string) (ticket.Ticket, error) {
	r.mu.RLock()
	stored, ok := r.tickets[id]
	parentGone := ok && r.parentExpiredLocked(stored)
	r.mu.RUnlock()
	if !ok {
		return nil, ErrTicketNotFound
	}

	if parentGone || stored.IsExpired() {
		r.mu.Lock()
		if st, ok := stored.(*ticket.ServiceTicket); ok && parentGone {
			st.SetGrantingTicketExpired()
		}
		delete(r.tickets, id)
		r.mu.Unlock()
		return nil, ErrTicketNotFound
	}

	return ticket.Clone(stored)
}

// parentExpiredLocked 判定 ST 的父 TGT 是否不存在或已过期（须持锁调用）
func (r *MemoryTicketRegistry) parentExpiredLocked(stored ticket.Ticket) bool {
	st, ok := stored.(*ticket.ServiceTicket)
	if !ok || st.TicketGrantingTicketID == "" {
		return false
	}
	parent, ok := r.tickets[st.TicketGrantingTicketID]
	return !ok || parent.IsExpired()
}

// UpdateTicket 更新票据
// TGT 的子票据名单以注册表侧为准，过期快照重写不丢失并发登记的子票据
func (r *MemoryTicketRegistry) UpdateTicket(ctx context.Context, t ticket.Ticket) error {
	clone, err := ticket.Clone(t)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[t.GetID()]
	if !ok {
		return ErrTicketNotFound
	}
	if tgt, ok := clone.(*ticket.TicketGrantingTicket); ok {
		if prev, ok := stored.(*ticket.TicketGrantingTicket); ok {
			tgt.DescendantTickets = unionIDs(prev.DescendantTickets, tgt.DescendantTickets)
		}
	}
	r.tickets[t.GetID()] = clone
	return nil
}

// AddDescendant 原子登记子票据 ID
func (r *MemoryTicketRegistry) AddDescendant(ctx context.Context, tgtID, descendantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[tgtID]
	if !ok || stored.IsExpired() {
		return ErrTicketNotFound
	}
	tgt, ok := stored.(*ticket.TicketGrantingTicket)
	if !ok {
		return ErrTicketTypeMismatch
	}
	tgt.DescendantTickets = unionIDs(tgt.DescendantTickets, []string{descendantID})
	return nil
}

// unionIDs 合并两组 ID，保持先见顺序并去重
func unionIDs(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, ids := range [][]string{a, b} {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// DeleteTicket 删除票据，TGT 级联删除子孙票据
func (r *MemoryTicketRegistry) DeleteTicket(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(id), nil
}

// deleteLocked 持锁递归删除
func (r *MemoryTicketRegistry) deleteLocked(id string) int {
	stored, ok := r.tickets[id]
	if !ok {
		return 0
	}
	delete(r.tickets, id)

	count := 1
	if tgt, ok := stored.(*ticket.TicketGrantingTicket); ok {
		for _, child := range tgt.DescendantTickets {
			count += r.deleteLocked(child)
		}
	}
	return count
}

// GetTickets 返回未过期票据的快照，按 ID 升序
func (r *MemoryTicketRegistry) GetTickets(ctx context.Context) ([]ticket.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tickets))
	for id := range r.tickets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []ticket.Ticket
	for _, id := range ids {
		stored := r.tickets[id]
		if stored.IsExpired() || r.parentExpiredLocked(stored) {
			continue
		}
		clone, err := ticket.Clone(stored)
		if err != nil {
			return nil, err
		}
		out = append(out, clone)
	}
	return out, nil
}

// IncrementUses 原子递增使用计数
func (r *MemoryTicketRegistry) IncrementUses(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return 0, ErrTicketNotFound
	}
	stored.MarkUsed()
	return stored.GetCountOfUses(), nil
}

// DeleteExpired 物理回收逻辑上已过期的票据
func (r *MemoryTicketRegistry) DeleteExpired(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, stored := range r.tickets {
		if stored.IsExpired() || r.parentExpiredLocked(stored) {
			delete(r.tickets, id)
			count++
		}
	}
	if count > 0 && r.log != nil {
		r.log.Debug("回收过期票据", zap.Int("count", count))
	}
	return count, nil
}

// DropAll 清空注册表（仅供测试与引导工具使用）
func (r *MemoryTicketRegistry) DropAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets = make(map[string]ticket.Ticket)
	return nil
}
