package authn

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// 认证失败原因，按具体程度由高到低参与聚合错误的首要原因判定
var (
	ErrAccountDisabled    = errors.New("账户已禁用")
	ErrAccountLocked      = errors.New("账户已锁定，请稍后再试")
	ErrAccountExpired     = errors.New("账户已过期")
	ErrUserNotFound       = errors.New("用户不存在")
	ErrInvalidCredentials = errors.New("用户名或密码错误")
)

// 失败原因优先级：账户状态类错误比口令错误更具体，优先对外呈现
var failurePriority = []error{
	ErrAccountDisabled,
	ErrAccountLocked,
	ErrAccountExpired,
	ErrUserNotFound,
	ErrInvalidCredentials,
}

// Error 认证聚合错误
// 收集每个处理器的具名失败原因，整个事务失败时一次性抛出，
// 调用方可据此区分口令错误、账户锁定、账户禁用等情况
type Error struct {
	Failures map[string]error
}

// NewError 创建认证聚合错误
func NewError(failures map[string]error) *Error {
	return &Error{Failures: failures}
}

// Error 错误描述：首要原因在前，随后列出各处理器的失败明细
func (e *Error) Error() string {
	primary := e.Primary()
	if len(e.Failures) == 0 {
		return "认证失败"
	}

	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failures[name]))
	}
	return fmt.Sprintf("认证失败（%v）[%s]", primary, strings.Join(parts, "; "))
}

// Primary 返回最具体的失败原因
// 账户禁用优先于账户锁定，口令错误兜底
func (e *Error) Primary() error {
	for _, candidate := range failurePriority {
		for _, err := range e.Failures {
			if errors.Is(err, candidate) {
				return candidate
			}
		}
	}
	for _, err := range e.Failures {
		return err
	}
	return ErrInvalidCredentials
}

// Is 支持 errors.Is 匹配首要失败原因
func (e *Error) Is(target error) bool {
	for _, err := range e.Failures {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
