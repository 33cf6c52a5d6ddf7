// Package authn 认证事务引擎：多凭据认证、主体选举与结果聚合
package authn

import (
	"time"
)

// 凭据类型常量
const (
	CredentialTypePassword = "password"
	CredentialTypeToken    = "token"
)

// Credential 认证凭据
type Credential interface {
	// CredentialID 凭据标识（用户名、令牌指纹等，不含机密）
	CredentialID() string
	// CredentialType 凭据类型
	CredentialType() string
	// Metadata 脱敏后的凭据元数据，可安全持久化
	Metadata() CredentialMetadata
}

// CredentialMetadata 脱敏凭据元数据
// 只保留标识与类型，原始口令等机密不进入持久化路径
type CredentialMetadata struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// UsernamePasswordCredential 用户名口令凭据
type UsernamePasswordCredential struct {
	Username string
	Password string
}

// CredentialID 凭据标识
func (c *UsernamePasswordCredential) CredentialID() string { return c.Username }

// CredentialType 凭据类型
func (c *UsernamePasswordCredential) CredentialType() string { return CredentialTypePassword }

// Metadata 脱敏元数据
func (c *UsernamePasswordCredential) Metadata() CredentialMetadata {
	return CredentialMetadata{ID: c.Username, Type: CredentialTypePassword}
}

// TokenCredential 静态令牌凭据
type TokenCredential struct {
	Subject string
	Token   string
}

// CredentialID 凭据标识
func (c *TokenCredential) CredentialID() string { return c.Subject }

// CredentialType 凭据类型
func (c *TokenCredential) CredentialType() string { return CredentialTypeToken }

// Metadata 脱敏元数据
func (c *TokenCredential) Metadata() CredentialMetadata {
	return CredentialMetadata{ID: c.Subject, Type: CredentialTypeToken}
}

// Principal 认证主体：主体 ID 与属性集合
type Principal struct {
	ID         string              `json:"id"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// HandlerResult 单个认证处理器的执行结果
type HandlerResult struct {
	HandlerName string     `json:"handler_name"`
	Principal   *Principal `json:"principal"`
	Warnings    []string   `json:"warnings,omitempty"`
}

// Authentication 最终认证结果
// 绑定选举后的主体、有序的处理器结果、认证时刻与脱敏凭据元数据；
// AttributeSources 记录每个属性由哪个处理器贡献，供审计追溯
type Authentication struct {
	Principal          *Principal           `json:"principal"`
	AuthenticatedAt    time.Time            `json:"authenticated_at"`
	Results            []*HandlerResult     `json:"results"`
	Failures           map[string]string    `json:"failures,omitempty"`
	CredentialMetadata []CredentialMetadata `json:"credential_metadata,omitempty"`
	AttributeSources   map[string]string    `json:"attribute_sources,omitempty"`
}
