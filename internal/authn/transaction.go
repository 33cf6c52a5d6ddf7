package authn

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// FailureMode 必需处理器失败时的全局处置模式
// 按部署配置而非按调用配置，同一事务内不允许混用
type FailureMode string

const (
	// FailureModeClosed 失败关闭：必需处理器失败即中止整个登录
	FailureModeClosed FailureMode = "closed"
	// FailureModeOpen 失败开放：跳过失败处理器的贡献继续认证
	FailureModeOpen FailureMode = "open"
)

// ErrNoSupportedHandler 没有处理器支持给定凭据
var ErrNoSupportedHandler = errors.New("没有支持该凭据的认证处理器")

// Transaction 一次认证事务：目标服务（可为空）与一个或多个凭据
type Transaction struct {
	Service     string
	Credentials []Credential
}

// TransactionResult 事务执行结果
// Successes 保持处理器执行顺序；Failures 记录每个处理器的具名失败
type TransactionResult struct {
	Successes          []*HandlerResult
	Failures           map[string]error
	CredentialMetadata []CredentialMetadata
}

// TransactionManagerConfig 事务管理器配置
type TransactionManagerConfig struct {
	Handlers    []Handler
	Resolver    HandlerResolver
	FailureMode FailureMode
	// RequiredHandlers 按服务返回必需处理器允许名单，nil 表示不限制
	RequiredHandlers func(service string) []string
}

// TransactionManager 认证事务管理器
// 对每个凭据依次调用全部支持的处理器（全员尝试，而非首个成功即停），
// 收集每个处理器的成功结果与具名失败
type TransactionManager struct {
	handlers    []Handler
	resolver    HandlerResolver
	failureMode FailureMode
	required    func(service string) []string
	log         *zap.Logger
}

// NewTransactionManager 创建认证事务管理器
func NewTransactionManager(cfg TransactionManagerConfig, log *zap.Logger) *TransactionManager {
	mode := cfg.FailureMode
	if mode == "" {
		mode = FailureModeClosed
	}
	return &TransactionManager{
		handlers:    cfg.Handlers,
		resolver:    cfg.Resolver,
		failureMode: mode,
		required:    cfg.RequiredHandlers,
		log:         log,
	}
}

// Authenticate 执行认证事务
// 所有凭据处理完毕后：零成功则返回携带全部失败原因的聚合错误；
// 存在至少一个成功则返回结果（其中可能仍含部分失败，供审计）
func (m *TransactionManager) Authenticate(ctx context.Context, txn *Transaction) (*TransactionResult, error) {
	result := &TransactionResult{Failures: make(map[string]error)}

	var required []string
	if m.required != nil {
		required = m.required(txn.Service)
	}

	for _, credential := range txn.Credentials {
		result.CredentialMetadata = append(result.CredentialMetadata, credential.Metadata())

		candidates := m.resolveHandlers(credential, required)
		if len(candidates) == 0 {
			result.Failures[credential.CredentialType()] = ErrNoSupportedHandler
			continue
		}

		for _, handler := range candidates {
			res, err := handler.Authenticate(ctx, credential)
			if err != nil {
				result.Failures[handler.Name()] = err
				m.log.Warn("认证处理器执行失败",
					zap.String("handler", handler.Name()),
					zap.String("credential", credential.CredentialID()),
					zap.Error(err),
				)

				// 失败关闭模式下，必需处理器失败即中止整个事务
				if m.failureMode == FailureModeClosed && contains(required, handler.Name()) {
					return nil, fmt.Errorf("必需的认证处理器 %s 失败: %w", handler.Name(), NewError(result.Failures))
				}
				continue
			}
			result.Successes = append(result.Successes, res)
		}
	}

	if len(result.Successes) == 0 {
		return nil, NewError(result.Failures)
	}
	return result, nil
}

// resolveHandlers 定位支持该凭据的处理器并按配置收窄
func (m *TransactionManager) resolveHandlers(credential Credential, required []string) []Handler {
	var supported []Handler
	for _, h := range m.handlers {
		if h.Supports(credential) {
			supported = append(supported, h)
		}
	}
	if m.resolver != nil {
		supported = m.resolver(credential, supported)
	}
	return filterByNames(supported, required)
}

// contains 名单是否包含指定名称
func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
