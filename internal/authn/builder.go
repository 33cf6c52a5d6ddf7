package authn

import (
	"context"
	"time"
)

// ResultBuilder 认证结果构建器
// 汇集一个或多个事务结果，最终经主体选举产出 Authentication
type ResultBuilder struct {
	results []*TransactionResult
}

// NewResultBuilder 创建认证结果构建器
func NewResultBuilder() *ResultBuilder {
	return &ResultBuilder{}
}

// Collect 汇入一次事务结果
func (b *ResultBuilder) Collect(result *TransactionResult) *ResultBuilder {
	if result != nil {
		b.results = append(b.results, result)
	}
	return b
}

// Build 执行主体选举并产出最终认证结果
func (b *ResultBuilder) Build(strategy PrincipalElectionStrategy) (*Authentication, error) {
	var successes []*HandlerResult
	failures := make(map[string]string)
	var metadata []CredentialMetadata

	for _, res := range b.results {
		successes = append(successes, res.Successes...)
		for name, err := range res.Failures {
			failures[name] = err.Error()
		}
		metadata = append(metadata, res.CredentialMetadata...)
	}

	principal, sources, err := strategy.Elect(successes)
	if err != nil {
		return nil, err
	}

	return &Authentication{
		Principal:          principal,
		AuthenticatedAt:    time.Now().UTC(),
		Results:            successes,
		Failures:           failures,
		CredentialMetadata: metadata,
		AttributeSources:   sources,
	}, nil
}

// SystemSupport 认证系统门面
// 将事务管理器与主体选举策略编排为一次完整认证
type SystemSupport struct {
	manager   *TransactionManager
	strategy  PrincipalElectionStrategy
	resolvers []AttributeResolver
}

// NewSystemSupport 创建认证系统门面
func NewSystemSupport(manager *TransactionManager, strategy PrincipalElectionStrategy) *SystemSupport {
	return &SystemSupport{manager: manager, strategy: strategy}
}

// WithAttributeResolver 挂接外部属性解析器
func (s *SystemSupport) WithAttributeResolver(r AttributeResolver) *SystemSupport {
	s.resolvers = append(s.resolvers, r)
	return s
}

// FinalizeAuthentication 执行完整认证流程
// service 可为空（不绑定服务的认证）
func (s *SystemSupport) FinalizeAuthentication(ctx context.Context, service string, credentials ...Credential) (*Authentication, error) {
	result, err := s.manager.Authenticate(ctx, &Transaction{Service: service, Credentials: credentials})
	if err != nil {
		return nil, err
	}
	auth, err := NewResultBuilder().Collect(result).Build(s.strategy)
	if err != nil {
		return nil, err
	}
	s.resolveAttributes(ctx, auth)
	return auth, nil
}

// resolveAttributes 用外部解析器补充主体属性
// 只补充处理器未给出的键，解析失败记为具名失败后继续
func (s *SystemSupport) resolveAttributes(ctx context.Context, auth *Authentication) {
	for _, r := range s.resolvers {
		attrs, err := r.Resolve(ctx, auth.Principal.ID)
		if err != nil {
			if auth.Failures == nil {
				auth.Failures = make(map[string]string)
			}
			auth.Failures[r.Name()] = err.Error()
			continue
		}
		for key, values := range attrs {
			if _, ok := auth.Principal.Attributes[key]; ok {
				continue
			}
			if auth.Principal.Attributes == nil {
				auth.Principal.Attributes = make(map[string][]string)
			}
			auth.Principal.Attributes[key] = append([]string(nil), values...)
			if auth.AttributeSources == nil {
				auth.AttributeSources = make(map[string]string)
			}
			auth.AttributeSources[key] = r.Name()
		}
	}
}
