package authn

import "context"

// AttributeResolver 外部属性解析协作方
// 根据主体 ID 返回补充属性（LDAP、数据库等来源）；
// 解析失败不中断认证，按具名失败记录在最终结果里
type AttributeResolver interface {
	// Name 解析器名称，用于属性来源与失败归属
	Name() string
	// Resolve 返回主体的补充属性
	Resolve(ctx context.Context, principalID string) (map[string][]string, error)
}
