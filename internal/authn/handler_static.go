package authn

import (
	"context"
)

// StaticTokenHandlerName 静态令牌处理器名称
const StaticTokenHandlerName = "static-token"

// StaticTokenHandler 静态令牌认证处理器
// 令牌表在配置中声明（主体 → 令牌），用于服务间凭据与引导场景
type StaticTokenHandler struct {
	tokens map[string]string
}

// NewStaticTokenHandler 创建静态令牌处理器
func NewStaticTokenHandler(tokens map[string]string) *StaticTokenHandler {
	return &StaticTokenHandler{tokens: tokens}
}

// Name 处理器名称
func (h *StaticTokenHandler) Name() string { return StaticTokenHandlerName }

// Supports 仅支持令牌凭据
func (h *StaticTokenHandler) Supports(credential Credential) bool {
	_, ok := credential.(*TokenCredential)
	return ok
}

// Authenticate 比对静态令牌
func (h *StaticTokenHandler) Authenticate(ctx context.Context, credential Credential) (*HandlerResult, error) {
	cred, ok := credential.(*TokenCredential)
	if !ok {
		return nil, ErrInvalidCredentials
	}

	expected, exists := h.tokens[cred.Subject]
	if !exists {
		return nil, ErrUserNotFound
	}
	if expected != cred.Token {
		return nil, ErrInvalidCredentials
	}

	return &HandlerResult{
		HandlerName: h.Name(),
		Principal: &Principal{
			ID: cred.Subject,
			Attributes: map[string][]string{
				"auth_method": {StaticTokenHandlerName},
			},
		},
	}, nil
}
