package authn

import (
	"context"
)

// Handler 认证处理器
// 每种凭据来源一个实现（口令、令牌等）
type Handler interface {
	// Name 处理器名称，用于审计与失败原因归属
	Name() string
	// Supports 是否支持处理该凭据
	Supports(credential Credential) bool
	// Authenticate 执行认证，失败时返回具名原因
	Authenticate(ctx context.Context, credential Credential) (*HandlerResult, error)
}

// HandlerResolver 处理器解析器
// 在 Supports 的基础上进一步收窄候选处理器集合
type HandlerResolver func(credential Credential, handlers []Handler) []Handler

// ByCredentialTypeResolver 按凭据声明的类型收窄处理器
// typeHandlers 为凭据类型到允许的处理器名称的映射；
// 未登记的类型不做收窄
func ByCredentialTypeResolver(typeHandlers map[string][]string) HandlerResolver {
	return func(credential Credential, handlers []Handler) []Handler {
		allowed, ok := typeHandlers[credential.CredentialType()]
		if !ok {
			return handlers
		}
		var out []Handler
		for _, h := range handlers {
			for _, name := range allowed {
				if h.Name() == name {
					out = append(out, h)
					break
				}
			}
		}
		return out
	}
}

// filterByNames 按允许名单过滤处理器，空名单表示不限制
func filterByNames(handlers []Handler, names []string) []Handler {
	if len(names) == 0 {
		return handlers
	}
	var out []Handler
	for _, h := range handlers {
		for _, name := range names {
			if h.Name() == name {
				out = append(out, h)
				break
			}
		}
	}
	return out
}
