package ticket

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pu-ac-cn/sso-center/internal/authn"
)

// 会话类型常量（组合策略判别键）
const (
	SessionTypeDefault   = "default"
	SessionTypeSurrogate = "surrogate"
)

// Ticket 票据通用接口
type Ticket interface {
	TicketState
	// GetID 票据 ID
	GetID() string
	// GetPrefix 票据类型前缀
	GetPrefix() string
	// GetExpirationPolicy 过期策略
	GetExpirationPolicy() ExpirationPolicy
	// IsExpired 判断票据是否过期；一旦为 true 不可逆转
	IsExpired() bool
	// MarkUsed 记录一次使用
	MarkUsed()
}

// TicketGrantingTicket 票据授予票据（TGT），代表一次成功登录的根会话
type TicketGrantingTicket struct {
	ID                string                `json:"id"`
	Authentication    *authn.Authentication `json:"authentication"`
	ParentID          string                `json:"parent_id,omitempty"` // 代理链中上级 TGT 的 ID，根 TGT 为空
	SessionType       string                `json:"session_type,omitempty"`
	DescendantTickets []string              `json:"descendant_tickets,omitempty"`
	CountOfUses       int                   `json:"count_of_uses"`
	Revoked           bool                  `json:"revoked"`
	CreationTime      time.Time             `json:"creation_time"`
	LastTimeUsed      time.Time             `json:"last_time_used,omitempty"`

	Policy ExpirationPolicy `json:"-"`
}

// NewTicketGrantingTicket 创建 TGT
func NewTicketGrantingTicket(id string, auth *authn.Authentication, policy ExpirationPolicy) *TicketGrantingTicket {
	return &TicketGrantingTicket{
		ID:             id,
		Authentication: auth,
		SessionType:    SessionTypeDefault,
		CreationTime:   time.Now().UTC(),
		Policy:         policy,
	}
}

// GetID 票据 ID
func (t *TicketGrantingTicket) GetID() string { return t.ID }

// GetPrefix 票据类型前缀
func (t *TicketGrantingTicket) GetPrefix() string { return PrefixTGT }

// GetCreationTime 创建时间
func (t *TicketGrantingTicket) GetCreationTime() time.Time { return t.CreationTime }

// GetLastTimeUsed 最近一次使用时间
func (t *TicketGrantingTicket) GetLastTimeUsed() time.Time { return t.LastTimeUsed }

// GetCountOfUses 使用次数
func (t *TicketGrantingTicket) GetCountOfUses() int { return t.CountOfUses }

// GetSessionType 会话类型
func (t *TicketGrantingTicket) GetSessionType() string { return t.SessionType }

// GetExpirationPolicy 过期策略
func (t *TicketGrantingTicket) GetExpirationPolicy() ExpirationPolicy { return t.Policy }

// IsRoot 是否为根 TGT（非代理授予）
func (t *TicketGrantingTicket) IsRoot() bool { return t.ParentID == "" }

// IsExpired 判断 TGT 是否过期
func (t *TicketGrantingTicket) IsExpired() bool {
	if t.Revoked {
		return true
	}
	return t.Policy.IsExpired(t)
}

// MarkUsed 记录一次使用
func (t *TicketGrantingTicket) MarkUsed() {
	t.CountOfUses++
	t.LastTimeUsed = time.Now().UTC()
}

// AddDescendant 登记子票据 ID，供级联销毁使用
func (t *TicketGrantingTicket) AddDescendant(id string) {
	t.DescendantTickets = append(t.DescendantTickets, id)
}

// ServiceTicket 服务票据（ST），绑定单个服务，默认一次性使用
type ServiceTicket struct {
	ID                     string    `json:"id"`
	TicketGrantingTicketID string    `json:"tgt_id"` // 弱引用，不拥有父票据
	Service                string    `json:"service"`
	Reusable               bool      `json:"reusable"`
	Proxy                  bool      `json:"proxy"`
	CountOfUses            int       `json:"count_of_uses"`
	Revoked                bool      `json:"revoked"`
	CreationTime           time.Time `json:"creation_time"`
	LastTimeUsed           time.Time `json:"last_time_used,omitempty"`

	Policy ExpirationPolicy `json:"-"`

	// 父 TGT 已过期的标记，由读取方在校验前回填；不参与序列化
	grantingTicketExpired bool
}

// NewServiceTicket 创建 ST
func NewServiceTicket(id, tgtID, service string, policy ExpirationPolicy) *ServiceTicket {
	return &ServiceTicket{
		ID:                     id,
		TicketGrantingTicketID: tgtID,
		Service:                service,
		CreationTime:           time.Now().UTC(),
		Policy:                 policy,
	}
}

// GetID 票据 ID
func (st *ServiceTicket) GetID() string { return st.ID }

// GetPrefix 票据类型前缀
func (st *ServiceTicket) GetPrefix() string {
	if st.Proxy {
		return PrefixPT
	}
	return PrefixST
}

// GetCreationTime 创建时间
func (st *ServiceTicket) GetCreationTime() time.Time { return st.CreationTime }

// GetLastTimeUsed 最近一次使用时间
func (st *ServiceTicket) GetLastTimeUsed() time.Time { return st.LastTimeUsed }

// GetCountOfUses 使用次数
func (st *ServiceTicket) GetCountOfUses() int { return st.CountOfUses }

// GetSessionType 会话类型（ST 不区分会话类型）
func (st *ServiceTicket) GetSessionType() string { return SessionTypeDefault }

// GetExpirationPolicy 过期策略
func (st *ServiceTicket) GetExpirationPolicy() ExpirationPolicy { return st.Policy }

// SetGrantingTicketExpired 标记父 TGT 已过期
// 子票据的有效性从属于父 TGT，父票据过期则子票据一并过期
func (st *ServiceTicket) SetGrantingTicketExpired() { st.grantingTicketExpired = true }

// IsExpired 判断 ST 是否过期
// 判定顺序：显式撤销、单次使用已消耗、自身策略、父 TGT 过期
func (st *ServiceTicket) IsExpired() bool {
	if st.Revoked || st.grantingTicketExpired {
		return true
	}
	if !st.Reusable && st.CountOfUses > 0 {
		return true
	}
	return st.Policy.IsExpired(st)
}

// MarkUsed 记录一次使用
func (st *ServiceTicket) MarkUsed() {
	st.CountOfUses++
	st.LastTimeUsed = time.Now().UTC()
}

// 进程内票据序号，保证同一进程生成的 ID 单调递增
var ticketSequence atomic.Int64

// GenerateID 生成票据 ID
// 格式：<前缀>-<序号>-<随机段>[-<后缀>]，ASCII，不含任何机密信息
func GenerateID(prefix, suffix string) string {
	random := strings.ReplaceAll(uuid.New().String(), "-", "")
	id := fmt.Sprintf("%s-%d-%s", prefix, ticketSequence.Add(1), random)
	if suffix != "" {
		id += "-" + suffix
	}
	return id
}
