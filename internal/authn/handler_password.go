package authn

import (
	"context"
	"errors"
	"strconv"

	"github.com/pu-ac-cn/sso-center/internal/repository"
)

// PasswordHandlerName 口令处理器名称
const PasswordHandlerName = "password"

// PasswordHandler 基于用户仓储的口令认证处理器
// 失败原因按具体程度上报：账户禁用 > 账户锁定 > 账户过期 > 用户不存在 > 口令错误
type PasswordHandler struct {
	users repository.UserRepository
}

// NewPasswordHandler 创建口令认证处理器
func NewPasswordHandler(users repository.UserRepository) *PasswordHandler {
	return &PasswordHandler{users: users}
}

// Name 处理器名称
func (h *PasswordHandler) Name() string { return PasswordHandlerName }

// Supports 仅支持用户名口令凭据
func (h *PasswordHandler) Supports(credential Credential) bool {
	_, ok := credential.(*UsernamePasswordCredential)
	return ok
}

// Authenticate 验证用户名口令
func (h *PasswordHandler) Authenticate(ctx context.Context, credential Credential) (*HandlerResult, error) {
	cred, ok := credential.(*UsernamePasswordCredential)
	if !ok {
		return nil, ErrInvalidCredentials
	}

	user, err := h.users.GetByUsername(ctx, cred.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	// 账户状态检查先于口令校验，保证呈现最具体的失败原因
	if !user.IsActive() {
		return nil, ErrAccountDisabled
	}
	if user.IsLocked() {
		return nil, ErrAccountLocked
	}
	if user.IsExpired() {
		return nil, ErrAccountExpired
	}

	if !user.VerifyPassword(cred.Password) {
		user.IncrementFailedLogin()
		_ = h.users.Update(ctx, user)
		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginCount > 0 {
		user.ResetFailedLogin()
		_ = h.users.Update(ctx, user)
	}

	return &HandlerResult{
		HandlerName: h.Name(),
		Principal: &Principal{
			ID: user.Username,
			Attributes: map[string][]string{
				"username":       {user.Username},
				"email":          {user.Email},
				"display_name":   {user.DisplayName},
				"email_verified": {strconv.FormatBool(user.EmailVerified)},
			},
		},
	}, nil
}
