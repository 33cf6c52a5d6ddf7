package authn

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubHandler 测试用认证处理器
type stubHandler struct {
	name    string
	credTyp string
	result  *HandlerResult
	err     error
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) Supports(credential Credential) bool {
	return credential.CredentialType() == h.credTyp
}

func (h *stubHandler) Authenticate(ctx context.Context, credential Credential) (*HandlerResult, error) {
	if h.err != nil {
		return nil, h.err
	}
	return h.result, nil
}

func okHandler(name, credTyp, principal string, attrs map[string][]string) *stubHandler {
	return &stubHandler{
		name:    name,
		credTyp: credTyp,
		result: &HandlerResult{
			HandlerName: name,
			Principal:   &Principal{ID: principal, Attributes: attrs},
		},
	}
}

func failHandler(name, credTyp string, err error) *stubHandler {
	return &stubHandler{name: name, credTyp: credTyp, err: err}
}

func TestTransactionManager_AllHandlersAttempted(t *testing.T) {
	// 同一凭据的全部支持处理器都要执行，而非首个成功即停
	first := okHandler("first", CredentialTypePassword, "alice", nil)
	second := okHandler("second", CredentialTypePassword, "alice", nil)

	m := NewTransactionManager(TransactionManagerConfig{
		Handlers: []Handler{first, second},
	}, zap.NewNop())

	result, err := m.Authenticate(context.Background(), &Transaction{
		Credentials: []Credential{&UsernamePasswordCredential{Username: "alice", Password: "secret"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Successes, 2)
	assert.Equal(t, "first", result.Successes[0].HandlerName)
	assert.Equal(t, "second", result.Successes[1].HandlerName)
}

func TestTransactionManager_MixedCredentials(t *testing.T) {
	// 两种凭据：口令失败、令牌成功，事务整体成功且保留失败明细
	password := failHandler("password", CredentialTypePassword, ErrInvalidCredentials)
	token := okHandler("static-token", CredentialTypeToken, "svc-batch", nil)

	m := NewTransactionManager(TransactionManagerConfig{
		Handlers: []Handler{password, token},
	}, zap.NewNop())

	result, err := m.Authenticate(context.Background(), &Transaction{
		Credentials: []Credential{
			&UsernamePasswordCredential{Username: "alice", Password: "wrong"},
			&TokenCredential{Subject: "svc-batch", Token: "tok"},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Successes, 1)
	assert.Equal(t, "svc-batch", result.Successes[0].Principal.ID)
	assert.ErrorIs(t, result.Failures["password"], ErrInvalidCredentials)
	assert.Len(t, result.CredentialMetadata, 2)
}

func TestTransactionManager_AllFail(t *testing.T) {
	m := NewTransactionManager(TransactionManagerConfig{
		Handlers: []Handler{
			failHandler("password", CredentialTypePassword, ErrInvalidCredentials),
			failHandler("ldap", CredentialTypePassword, ErrAccountLocked),
		},
	}, zap.NewNop())

	_, err := m.Authenticate(context.Background(), &Transaction{
		Credentials: []Credential{&UsernamePasswordCredential{Username: "alice", Password: "wrong"}},
	})
	require.Error(t, err)

	var aggErr *Error
	require.ErrorAs(t, err, &aggErr)
	assert.Len(t, aggErr.Failures, 2)
	// 账户锁定比口令错误更具体，作为首要原因呈现
	assert.ErrorIs(t, aggErr.Primary(), ErrAccountLocked)
	assert.ErrorIs(t, err, ErrAccountLocked)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTransactionManager_NoSupportedHandler(t *testing.T) {
	m := NewTransactionManager(TransactionManagerConfig{
		Handlers: []Handler{okHandler("password", CredentialTypePassword, "alice", nil)},
	}, zap.NewNop())

	_, err := m.Authenticate(context.Background(), &Transaction{
		Credentials: []Credential{&TokenCredential{Subject: "svc", Token: "tok"}},
	})
	require.Error(t, err)

	var aggErr *Error
	require.ErrorAs(t, err, &aggErr)
	assert.ErrorIs(t, aggErr.Failures[CredentialTypeToken], ErrNoSupportedHandler)
}

func TestTransactionManager_FailureModeClosed(t *testing.T) {
	// 失败关闭：必需处理器失败即中止整个事务，即使其它处理器能成功
	m := NewTransactionManager(TransactionManagerConfig{
		Handlers: []Handler{
			failHandler("password", CredentialTypePassword, ErrInvalidCredentials),
			okHandler("static-token", CredentialTypeToken, "svc", nil),
		},
		FailureMode: FailureModeClosed,
		RequiredHandlers: func(service string) []string {
			return []string{"password", "static-token"}
		},
	}, zap.NewNop())

	_, err := m.Authenticate(context.Background(), &Transaction{
		Service: "https://app.example.com",
		Credentials: []Credential{
			&UsernamePasswordCredential{Username: "alice", Password: "wrong"},
			&TokenCredential{Subject: "svc", Token: "tok"},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTransactionManager_FailureModeOpen(t *testing.T) {
	// 失败开放：跳过失败的必需处理器，事务仍可成功
	m := NewTransactionManager(TransactionManagerConfig{
		Handlers: []Handler{
			failHandler("password", CredentialTypePassword, ErrInvalidCredentials),
			okHandler("static-token", CredentialTypeToken, "svc", nil),
		},
		FailureMode: FailureModeOpen,
		RequiredHandlers: func(service string) []string {
			return []string{"password", "static-token"}
		},
	}, zap.NewNop())

	result, err := m.Authenticate(context.Background(), &Transaction{
		Service: "https://app.example.com",
		Credentials: []Credential{
			&UsernamePasswordCredential{Username: "alice", Password: "wrong"},
			&TokenCredential{Subject: "svc", Token: "tok"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, result.Successes, 1)
}

func TestTransactionManager_RequiredHandlerNarrowing(t *testing.T) {
	// 服务的必需处理器名单收窄候选集合，名单外的处理器不参与
	other := okHandler("other", CredentialTypePassword, "bob", nil)
	allowed := okHandler("password", CredentialTypePassword, "alice", nil)

	m := NewTransactionManager(TransactionManagerConfig{
		Handlers: []Handler{other, allowed},
		RequiredHandlers: func(service string) []string {
			if service == "https://strict.example.com" {
				return []string{"password"}
			}
			return nil
		},
	}, zap.NewNop())

	result, err := m.Authenticate(context.Background(), &Transaction{
		Service:     "https://strict.example.com",
		Credentials: []Credential{&UsernamePasswordCredential{Username: "alice", Password: "secret"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Successes, 1)
	assert.Equal(t, "password", result.Successes[0].HandlerName)
}

func TestByCredentialTypeResolver(t *testing.T) {
	password := okHandler("password", CredentialTypePassword, "alice", nil)
	ldap := okHandler("ldap", CredentialTypePassword, "alice", nil)

	resolver := ByCredentialTypeResolver(map[string][]string{
		CredentialTypePassword: {"ldap"},
	})

	cred := &UsernamePasswordCredential{Username: "alice"}
	out := resolver(cred, []Handler{password, ldap})
	require.Len(t, out, 1)
	assert.Equal(t, "ldap", out[0].Name())

	// 未登记的类型不做收窄
	tokenCred := &TokenCredential{Subject: "svc"}
	out = resolver(tokenCred, []Handler{password, ldap})
	assert.Len(t, out, 2)
}

func TestError_PrimaryPriority(t *testing.T) {
	e := NewError(map[string]error{
		"a": ErrInvalidCredentials,
		"b": ErrAccountDisabled,
		"c": ErrUserNotFound,
	})
	assert.ErrorIs(t, e.Primary(), ErrAccountDisabled)

	e = NewError(map[string]error{
		"a": ErrInvalidCredentials,
		"b": errors.New("其它错误"),
	})
	assert.ErrorIs(t, e.Primary(), ErrInvalidCredentials)
}

func TestSystemSupport_FinalizeAuthentication(t *testing.T) {
	m := NewTransactionManager(TransactionManagerConfig{
		Handlers: []Handler{
			okHandler("password", CredentialTypePassword, "alice", map[string][]string{"email": {"alice@example.com"}}),
		},
	}, zap.NewNop())
	support := NewSystemSupport(m, NewDefaultPrincipalElection(MergeRuleMerge))

	auth, err := support.FinalizeAuthentication(context.Background(), "",
		&UsernamePasswordCredential{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "alice", auth.Principal.ID)
	assert.Equal(t, []string{"alice@example.com"}, auth.Principal.Attributes["email"])
	assert.Equal(t, "password", auth.AttributeSources["email"])
	assert.False(t, auth.AuthenticatedAt.IsZero())
	require.Len(t, auth.CredentialMetadata, 1)
	assert.Equal(t, "alice", auth.CredentialMetadata[0].ID)
}

// stubResolver 固定返回值的属性解析器
type stubResolver struct {
	name  string
	attrs map[string][]string
	err   error
}

func (r *stubResolver) Name() string { return r.name }

func (r *stubResolver) Resolve(ctx context.Context, principalID string) (map[string][]string, error) {
	return r.attrs, r.err
}

func TestSystemSupport_AttributeResolver(t *testing.T) {
	m := NewTransactionManager(TransactionManagerConfig{
		Handlers: []Handler{
			okHandler("password", CredentialTypePassword, "alice", map[string][]string{"email": {"alice@example.com"}}),
		},
	}, zap.NewNop())
	support := NewSystemSupport(m, NewDefaultPrincipalElection(MergeRuleMerge)).
		WithAttributeResolver(&stubResolver{
			name: "ldap",
			attrs: map[string][]string{
				"dept":  {"engineering"},
				"email": {"conflict@example.com"},
			},
		})

	auth, err := support.FinalizeAuthentication(context.Background(), "",
		&UsernamePasswordCredential{Username: "alice", Password: "secret"})
	require.NoError(t, err)

	// 解析器只补充处理器未给出的键
	assert.Equal(t, []string{"engineering"}, auth.Principal.Attributes["dept"])
	assert.Equal(t, "ldap", auth.AttributeSources["dept"])
	assert.Equal(t, []string{"alice@example.com"}, auth.Principal.Attributes["email"])
	assert.Equal(t, "password", auth.AttributeSources["email"])
}

func TestSystemSupport_AttributeResolverFailure(t *testing.T) {
	m := NewTransactionManager(TransactionManagerConfig{
		Handlers: []Handler{
			okHandler("password", CredentialTypePassword, "alice", nil),
		},
	}, zap.NewNop())
	support := NewSystemSupport(m, NewDefaultPrincipalElection(MergeRuleMerge)).
		WithAttributeResolver(&stubResolver{name: "ldap", err: errors.New("目录服务不可达")})

	// 解析失败不中断认证，按具名失败记录
	auth, err := support.FinalizeAuthentication(context.Background(), "",
		&UsernamePasswordCredential{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "alice", auth.Principal.ID)
	assert.Contains(t, auth.Failures["ldap"], "目录服务不可达")
}
