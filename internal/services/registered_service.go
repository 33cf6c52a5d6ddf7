// Package services 注册服务：元数据、注册表、链式聚合与跨节点复制
package services

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
)

// AccessStrategy 服务访问策略
type AccessStrategy struct {
	// Enabled 服务是否启用
	Enabled bool `json:"enabled"`
	// SSOEnabled 是否参与单点登录
	SSOEnabled bool `json:"sso_enabled"`
	// RequiredAttributes 访问所需的主体属性（键 → 允许值集合，
	// 每个键至少命中一个允许值才放行）
	RequiredAttributes map[string][]string `json:"required_attributes,omitempty"`
}

// Authorized 判断主体属性是否满足访问要求
func (s AccessStrategy) Authorized(attributes map[string][]string) bool {
	if !s.Enabled {
		return false
	}
	for key, allowed := range s.RequiredAttributes {
		values, ok := attributes[key]
		if !ok {
			return false
		}
		matched := false
		for _, v := range values {
			for _, a := range allowed {
				if v == a {
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// AttributeReleasePolicy 属性释放策略
type AttributeReleasePolicy struct {
	// ReleaseAll 释放全部属性
	ReleaseAll bool `json:"release_all"`
	// AllowedAttributes 允许释放的属性键名单
	AllowedAttributes []string `json:"allowed_attributes,omitempty"`
}

// Release 按策略过滤可释放给服务的属性
func (p AttributeReleasePolicy) Release(attributes map[string][]string) map[string][]string {
	out := make(map[string][]string)
	if p.ReleaseAll {
		for key, values := range attributes {
			out[key] = append([]string(nil), values...)
		}
		return out
	}
	for _, key := range p.AllowedAttributes {
		if values, ok := attributes[key]; ok {
			out[key] = append([]string(nil), values...)
		}
	}
	return out
}

// ProxyPolicy 代理策略
type ProxyPolicy struct {
	// AllowProxy 是否允许代理认证
	AllowProxy bool `json:"allow_proxy"`
	// CallbackPattern 允许的代理回调地址模式（正则）
	CallbackPattern string `json:"callback_pattern,omitempty"`
}

// RegisteredService 注册服务元数据
// 注册表返回的实例是不可变的值快照，修改后必须显式 Save 才会生效
type RegisteredService struct {
	ID                     int64                  `json:"id"`
	Name                   string                 `json:"name"`
	Description            string                 `json:"description,omitempty"`
	ServiceID              string                 `json:"service_id"` // 服务匹配模式（锚定正则）
	EvaluationOrder        int                    `json:"evaluation_order"`
	AccessStrategy         AccessStrategy         `json:"access_strategy"`
	AttributeReleasePolicy AttributeReleasePolicy `json:"attribute_release_policy"`
	ProxyPolicy            ProxyPolicy            `json:"proxy_policy"`
}

// Matches 判断服务标识是否命中匹配模式
func (s *RegisteredService) Matches(serviceID string) bool {
	if s.ServiceID == "" || serviceID == "" {
		return false
	}
	matched, err := regexp.MatchString("^(?:"+s.ServiceID+")$", serviceID)
	if err != nil {
		return false
	}
	return matched
}

// Equals 完整值相等比较
// 复制收敛的"是否分歧"判定基于值相等而非实例同一，
// 避免两个节点各自加载同一份配置时引发无谓的缓存抖动
func (s *RegisteredService) Equals(other *RegisteredService) bool {
	if s == nil || other == nil {
		return s == other
	}
	return reflect.DeepEqual(*s, *other)
}

// Copy 返回完全独立的值快照
func (s *RegisteredService) Copy() *RegisteredService {
	if s == nil {
		return nil
	}
	clone := *s
	if s.AccessStrategy.RequiredAttributes != nil {
		clone.AccessStrategy.RequiredAttributes = make(map[string][]string, len(s.AccessStrategy.RequiredAttributes))
		for key, values := range s.AccessStrategy.RequiredAttributes {
			clone.AccessStrategy.RequiredAttributes[key] = append([]string(nil), values...)
		}
	}
	clone.AttributeReleasePolicy.AllowedAttributes = append([]string(nil), s.AttributeReleasePolicy.AllowedAttributes...)
	clone.normalize()
	return &clone
}

// normalize 规范化空切片，保证 Copy 与反序列化结果可比
func (s *RegisteredService) normalize() {
	if len(s.AttributeReleasePolicy.AllowedAttributes) == 0 {
		s.AttributeReleasePolicy.AllowedAttributes = nil
	}
}

// Encode 序列化为 JSON 快照
func (s *RegisteredService) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("序列化注册服务失败: %w", err)
	}
	return data, nil
}

// DecodeRegisteredService 从 JSON 快照还原注册服务
func DecodeRegisteredService(data []byte) (*RegisteredService, error) {
	var s RegisteredService
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("解析注册服务失败: %w", err)
	}
	s.normalize()
	return &s, nil
}
