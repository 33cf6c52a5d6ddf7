// Package ticket 票据数据模型与过期策略
package ticket

import (
	"encoding/json"
	"fmt"
	"time"
)

// 策略类型标识，序列化时作为 kind 字段持久化
const (
	PolicyKindNever        = "never"
	PolicyKindIdleTimeout  = "idle_timeout"
	PolicyKindHardTimeout  = "hard_timeout"
	PolicyKindThrottledUse = "throttled_use"
	PolicyKindComposite    = "composite"
)

// MaxTimeToLive 表示无硬性过期上限
const MaxTimeToLive = time.Duration(1<<63 - 1)

// TicketState 过期策略评估所需的票据状态视图
// 过期判定只依赖该视图，不依赖策略之外的任何副作用
type TicketState interface {
	// GetCreationTime 创建时间
	GetCreationTime() time.Time
	// GetLastTimeUsed 最近一次使用时间
	GetLastTimeUsed() time.Time
	// GetCountOfUses 使用次数
	GetCountOfUses() int
	// GetSessionType 会话类型（组合策略的判别键，可为空）
	GetSessionType() string
}

// ExpirationPolicy 过期策略接口
// 状态机为 ACTIVE -> EXPIRED 单向迁移，不存在回退
type ExpirationPolicy interface {
	// IsExpired 判断给定状态下票据是否过期
	IsExpired(state TicketState) bool
	// TimeToLive 硬性存活时长，无上限时返回 MaxTimeToLive
	TimeToLive() time.Duration
	// TimeToIdle 空闲超时时长，未配置时返回 0
	TimeToIdle() time.Duration
	// Kind 策略类型标识
	Kind() string
}

// NeverExpiresPolicy 永不过期策略
type NeverExpiresPolicy struct{}

// IsExpired 永不过期
func (NeverExpiresPolicy) IsExpired(state TicketState) bool { return false }

// TimeToLive 无上限
func (NeverExpiresPolicy) TimeToLive() time.Duration { return MaxTimeToLive }

// TimeToIdle 未配置
func (NeverExpiresPolicy) TimeToIdle() time.Duration { return 0 }

// Kind 策略类型
func (NeverExpiresPolicy) Kind() string { return PolicyKindNever }

// HardTimeoutExpirationPolicy 硬超时策略
// 从创建时间起经过 TTL 后过期，与使用情况无关
type HardTimeoutExpirationPolicy struct {
	TTL time.Duration `json:"ttl"`
}

// IsExpired 判断是否超过硬超时
func (p HardTimeoutExpirationPolicy) IsExpired(state TicketState) bool {
	return time.Since(state.GetCreationTime()) > p.TTL
}

// TimeToLive 硬性存活时长
func (p HardTimeoutExpirationPolicy) TimeToLive() time.Duration { return p.TTL }

// TimeToIdle 未配置
func (p HardTimeoutExpirationPolicy) TimeToIdle() time.Duration { return 0 }

// Kind 策略类型
func (p HardTimeoutExpirationPolicy) Kind() string { return PolicyKindHardTimeout }

// TimeoutExpirationPolicy 空闲超时策略
// 自最近一次使用起超过 TimeToKill 未再使用即过期；
// 从未使用过的票据以创建时间为基准
type TimeoutExpirationPolicy struct {
	TimeToKill time.Duration `json:"time_to_kill"`
}

// IsExpired 判断是否空闲超时
func (p TimeoutExpirationPolicy) IsExpired(state TicketState) bool {
	last := state.GetLastTimeUsed()
	if last.IsZero() {
		last = state.GetCreationTime()
	}
	return time.Since(last) > p.TimeToKill
}

// TimeToLive 无硬性上限
func (p TimeoutExpirationPolicy) TimeToLive() time.Duration { return MaxTimeToLive }

// TimeToIdle 空闲超时时长
func (p TimeoutExpirationPolicy) TimeToIdle() time.Duration { return p.TimeToKill }

// Kind 策略类型
func (p TimeoutExpirationPolicy) Kind() string { return PolicyKindIdleTimeout }

// ThrottledUseExpirationPolicy 限频使用策略
// 两次使用之间必须间隔至少 ThrottleInterval，同时受空闲超时约束。
// 限频分支的判定结果随时间推移可由真变假，单向迁移由注册表保证：
// 读到过期票据即回收，窗口过后不会再放行同一张票据
type ThrottledUseExpirationPolicy struct {
	TimeToKill       time.Duration `json:"time_to_kill"`
	ThrottleInterval time.Duration `json:"throttle_interval"`
}

// IsExpired 判断是否限频或空闲超时
func (p ThrottledUseExpirationPolicy) IsExpired(state TicketState) bool {
	last := state.GetLastTimeUsed()
	if state.GetCountOfUses() > 0 && !last.IsZero() && time.Since(last) < p.ThrottleInterval {
		return true
	}
	if last.IsZero() {
		last = state.GetCreationTime()
	}
	return time.Since(last) > p.TimeToKill
}

// TimeToLive 无硬性上限
func (p ThrottledUseExpirationPolicy) TimeToLive() time.Duration { return MaxTimeToLive }

// TimeToIdle 空闲超时时长
func (p ThrottledUseExpirationPolicy) TimeToIdle() time.Duration { return p.TimeToKill }

// Kind 策略类型
func (p ThrottledUseExpirationPolicy) Kind() string { return PolicyKindThrottledUse }

// CompositeExpirationPolicy 组合策略
// 按票据的会话类型选择命名子策略；判别键缺失或未注册时
// 取最保守判定：任一子策略判定过期即过期
type CompositeExpirationPolicy struct {
	Policies map[string]ExpirationPolicy
}

// IsExpired 按判别键分发到子策略
func (p CompositeExpirationPolicy) IsExpired(state TicketState) bool {
	if sub, ok := p.Policies[state.GetSessionType()]; ok {
		return sub.IsExpired(state)
	}
	for _, sub := range p.Policies {
		if sub.IsExpired(state) {
			return true
		}
	}
	return false
}

// TimeToLive 取所有子策略中最小的硬性存活时长
func (p CompositeExpirationPolicy) TimeToLive() time.Duration {
	ttl := MaxTimeToLive
	for _, sub := range p.Policies {
		if sub.TimeToLive() < ttl {
			ttl = sub.TimeToLive()
		}
	}
	return ttl
}

// TimeToIdle 取所有子策略中最小的非零空闲超时
func (p CompositeExpirationPolicy) TimeToIdle() time.Duration {
	var idle time.Duration
	for _, sub := range p.Policies {
		if t := sub.TimeToIdle(); t > 0 && (idle == 0 || t < idle) {
			idle = t
		}
	}
	return idle
}

// Kind 策略类型
func (p CompositeExpirationPolicy) Kind() string { return PolicyKindComposite }

// policyEnvelope 策略序列化信封，kind 字段决定解码分支
type policyEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// compositePayload 组合策略序列化载荷
type compositePayload struct {
	Policies map[string]json.RawMessage `json:"policies"`
}

// MarshalPolicy 序列化过期策略（带 kind 标签）
func MarshalPolicy(p ExpirationPolicy) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("过期策略不能为空")
	}

	var payload []byte
	var err error
	switch v := p.(type) {
	case CompositeExpirationPolicy:
		sub := compositePayload{Policies: make(map[string]json.RawMessage, len(v.Policies))}
		for key, inner := range v.Policies {
			data, merr := MarshalPolicy(inner)
			if merr != nil {
				return nil, merr
			}
			sub.Policies[key] = data
		}
		payload, err = json.Marshal(sub)
	default:
		payload, err = json.Marshal(p)
	}
	if err != nil {
		return nil, fmt.Errorf("序列化过期策略失败: %w", err)
	}

	return json.Marshal(policyEnvelope{Kind: p.Kind(), Payload: payload})
}

// UnmarshalPolicy 反序列化过期策略，按 kind 字段还原具体变体
func UnmarshalPolicy(data []byte) (ExpirationPolicy, error) {
	var env policyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("解析策略信封失败: %w", err)
	}

	switch env.Kind {
	case PolicyKindNever:
		return NeverExpiresPolicy{}, nil
	case PolicyKindIdleTimeout:
		var p TimeoutExpirationPolicy
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("解析空闲超时策略失败: %w", err)
		}
		return p, nil
	case PolicyKindHardTimeout:
		var p HardTimeoutExpirationPolicy
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("解析硬超时策略失败: %w", err)
		}
		return p, nil
	case PolicyKindThrottledUse:
		var p ThrottledUseExpirationPolicy
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("解析限频策略失败: %w", err)
		}
		return p, nil
	case PolicyKindComposite:
		var sub compositePayload
		if err := json.Unmarshal(env.Payload, &sub); err != nil {
			return nil, fmt.Errorf("解析组合策略失败: %w", err)
		}
		p := CompositeExpirationPolicy{Policies: make(map[string]ExpirationPolicy, len(sub.Policies))}
		for key, raw := range sub.Policies {
			inner, err := UnmarshalPolicy(raw)
			if err != nil {
				return nil, err
			}
			p.Policies[key] = inner
		}
		return p, nil
	default:
		return nil, fmt.Errorf("未知的过期策略类型: %s", env.Kind)
	}
}
