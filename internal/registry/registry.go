// Package registry 票据注册表：存储、查询与生命周期管理
package registry

import (
	"context"
	"errors"

	"github.com/pu-ac-cn/sso-center/internal/ticket"
)

var (
	// ErrTicketNotFound 票据不存在或已过期
	// 对外不区分"从未存在"与"已过期"，避免泄露会话生命周期信息
	ErrTicketNotFound = errors.New("票据无效")
	// ErrTicketCorrupted 票据载荷损坏（解密或解析失败）
	ErrTicketCorrupted = errors.New("票据数据损坏")
	// ErrTicketTypeMismatch 票据类型与预期不符
	ErrTicketTypeMismatch = errors.New("票据类型不匹配")
)

// TicketRegistry 票据注册表接口
// 任何读取都先判定过期，过期票据视同不存在；读取 ST 时一并解析父 TGT，
// 父票据不存在或已过期则子票据同样视同不存在；
// 物理回收由后台清理器负责，仅是性能优化，正确性不依赖它
type TicketRegistry interface {
	// AddTicket 写入票据
	AddTicket(ctx context.Context, t ticket.Ticket) error
	// GetTicket 读取票据；不存在或已过期返回 ErrTicketNotFound，
	// 载荷损坏返回 ErrTicketCorrupted
	GetTicket(ctx context.Context, id string) (ticket.Ticket, error)
	// UpdateTicket 更新票据（完整重写）
	// TGT 的子票据名单由注册表维护，不被重写覆盖
	UpdateTicket(ctx context.Context, t ticket.Ticket) error
	// AddDescendant 原子登记 TGT 的子票据 ID
	// 级联销毁名单的唯一写入口，并发授票不得相互覆盖
	AddDescendant(ctx context.Context, tgtID, descendantID string) error
	// DeleteTicket 删除票据，TGT 级联删除全部子孙票据；
	// 返回实际删除的票据数量，重复删除返回 0
	DeleteTicket(ctx context.Context, id string) (int, error)
	// GetTickets 返回未过期票据的快照，无顺序保证
	GetTickets(ctx context.Context) ([]ticket.Ticket, error)
	// IncrementUses 原子递增使用计数并返回新值
	// 单次使用票据的并发校验语义依赖该原子性
	IncrementUses(ctx context.Context, id string) (int, error)
	// DeleteExpired 物理回收逻辑上已过期的票据，返回回收数量
	// 幂等，可与正常流量并发运行
	DeleteExpired(ctx context.Context) (int, error)
}

// GetTicketGrantingTicket 读取并断言为 TGT
func GetTicketGrantingTicket(ctx context.Context, r TicketRegistry, id string) (*ticket.TicketGrantingTicket, error) {
	t, err := r.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	tgt, ok := t.(*ticket.TicketGrantingTicket)
	if !ok {
		return nil, ErrTicketTypeMismatch
	}
	return tgt, nil
}

// GetServiceTicket 读取并断言为 ST
func GetServiceTicket(ctx context.Context, r TicketRegistry, id string) (*ticket.ServiceTicket, error) {
	t, err := r.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	st, ok := t.(*ticket.ServiceTicket)
	if !ok {
		return nil, ErrTicketTypeMismatch
	}
	return st, nil
}
