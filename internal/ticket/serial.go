package ticket

import (
	"encoding/json"
	"fmt"
)

// 票据序列化信封的 kind 值
const (
	ticketKindTGT = "tgt"
	ticketKindST  = "st"
)

// ticketEnvelope 票据序列化信封
// 票据本体与过期策略分别编码，kind 字段决定解码分支，
// 反序列化后重新应用创建时的同一策略变体
type ticketEnvelope struct {
	Kind    string          `json:"kind"`
	Policy  json.RawMessage `json:"policy"`
	Payload json.RawMessage `json:"payload"`
}

// Serialize 序列化票据（含策略的带标签编码）
func Serialize(t Ticket) ([]byte, error) {
	policy, err := MarshalPolicy(t.GetExpirationPolicy())
	if err != nil {
		return nil, err
	}

	var kind string
	switch t.(type) {
	case *TicketGrantingTicket:
		kind = ticketKindTGT
	case *ServiceTicket:
		kind = ticketKindST
	default:
		return nil, fmt.Errorf("不支持序列化的票据类型: %T", t)
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("序列化票据失败: %w", err)
	}

	return json.Marshal(ticketEnvelope{Kind: kind, Policy: policy, Payload: payload})
}

// Deserialize 反序列化票据，还原具体类型与策略变体
func Deserialize(data []byte) (Ticket, error) {
	var env ticketEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("解析票据信封失败: %w", err)
	}

	policy, err := UnmarshalPolicy(env.Policy)
	if err != nil {
		return nil, err
	}

	switch env.Kind {
	case ticketKindTGT:
		var t TicketGrantingTicket
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			return nil, fmt.Errorf("解析 TGT 失败: %w", err)
		}
		t.Policy = policy
		return &t, nil
	case ticketKindST:
		var st ServiceTicket
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			return nil, fmt.Errorf("解析 ST 失败: %w", err)
		}
		st.Policy = policy
		return &st, nil
	default:
		return nil, fmt.Errorf("未知的票据类型: %s", env.Kind)
	}
}

// Clone 通过序列化往返复制票据，返回与原件完全独立的快照
func Clone(t Ticket) (Ticket, error) {
	data, err := Serialize(t)
	if err != nil {
		return nil, err
	}
	return Deserialize(data)
}
