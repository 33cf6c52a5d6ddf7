package authn

import (
	"errors"
	"fmt"
)

// MergeRule 属性合并规则
type MergeRule string

const (
	// MergeRuleReplace 同名属性后写者覆盖
	MergeRuleReplace MergeRule = "REPLACE"
	// MergeRuleAdd 同名属性先写者保留，后续值丢弃
	MergeRuleAdd MergeRule = "ADD"
	// MergeRuleMerge 同名属性取值并集，形成多值属性
	MergeRuleMerge MergeRule = "MERGE"
)

// ErrNoSuccessfulResult 没有可供选举的成功结果
var ErrNoSuccessfulResult = errors.New("没有成功的认证结果可供主体选举")

// PrincipalElectionStrategy 主体选举策略
// 从多个成功的处理器结果中选出唯一权威主体并合并属性；
// 第二个返回值为属性来源映射（属性键 → 贡献该属性的处理器名）
type PrincipalElectionStrategy interface {
	Elect(results []*HandlerResult) (*Principal, map[string]string, error)
}

// DefaultPrincipalElection 默认主体选举策略
// 主体 ID 取首个成功处理器返回的主体（确定性规则），
// 属性按配置的合并规则汇入
type DefaultPrincipalElection struct {
	Rule MergeRule
}

// NewDefaultPrincipalElection 创建默认主体选举策略
func NewDefaultPrincipalElection(rule MergeRule) *DefaultPrincipalElection {
	if rule == "" {
		rule = MergeRuleMerge
	}
	return &DefaultPrincipalElection{Rule: rule}
}

// Elect 执行主体选举
func (s *DefaultPrincipalElection) Elect(results []*HandlerResult) (*Principal, map[string]string, error) {
	if len(results) == 0 {
		return nil, nil, ErrNoSuccessfulResult
	}
	for _, res := range results {
		if res.Principal == nil {
			return nil, nil, fmt.Errorf("处理器 %s 的结果缺少主体", res.HandlerName)
		}
	}

	elected := &Principal{
		ID:         results[0].Principal.ID,
		Attributes: make(map[string][]string),
	}
	sources := make(map[string]string)

	for _, res := range results {
		for key, values := range res.Principal.Attributes {
			switch s.Rule {
			case MergeRuleReplace:
				elected.Attributes[key] = copyValues(values)
				sources[key] = res.HandlerName
			case MergeRuleAdd:
				if _, exists := elected.Attributes[key]; !exists {
					elected.Attributes[key] = copyValues(values)
					sources[key] = res.HandlerName
				}
			case MergeRuleMerge:
				merged := elected.Attributes[key]
				for _, v := range values {
					if !containsValue(merged, v) {
						merged = append(merged, v)
					}
				}
				elected.Attributes[key] = merged
				if _, exists := sources[key]; !exists {
					sources[key] = res.HandlerName
				}
			default:
				return nil, nil, fmt.Errorf("未知的属性合并规则: %s", s.Rule)
			}
		}
	}

	return elected, sources, nil
}

// copyValues 复制属性值切片，避免与处理器结果共享底层数组
func copyValues(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// containsValue 值是否已存在
func containsValue(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
