package authn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func electionResults() []*HandlerResult {
	return []*HandlerResult{
		{
			HandlerName: "password",
			Principal: &Principal{
				ID: "alice",
				Attributes: map[string][]string{
					"email": {"alice@example.com"},
					"role":  {"member"},
				},
			},
		},
		{
			HandlerName: "ldap",
			Principal: &Principal{
				ID: "alice@corp",
				Attributes: map[string][]string{
					"role": {"admin", "member"},
					"dept": {"engineering"},
				},
			},
		},
	}
}

func TestDefaultPrincipalElection_FirstPrincipalWins(t *testing.T) {
	s := NewDefaultPrincipalElection(MergeRuleMerge)

	principal, _, err := s.Elect(electionResults())
	require.NoError(t, err)
	// 主体 ID 取首个成功处理器的主体，确定性规则
	assert.Equal(t, "alice", principal.ID)
}

func TestDefaultPrincipalElection_MergeRule(t *testing.T) {
	s := NewDefaultPrincipalElection(MergeRuleMerge)

	principal, sources, err := s.Elect(electionResults())
	require.NoError(t, err)

	// 同名属性取值并集，去重
	assert.ElementsMatch(t, []string{"member", "admin"}, principal.Attributes["role"])
	assert.Equal(t, []string{"engineering"}, principal.Attributes["dept"])

	// 来源记录首个贡献者
	assert.Equal(t, "password", sources["role"])
	assert.Equal(t, "ldap", sources["dept"])
}

func TestDefaultPrincipalElection_ReplaceRule(t *testing.T) {
	s := NewDefaultPrincipalElection(MergeRuleReplace)

	principal, sources, err := s.Elect(electionResults())
	require.NoError(t, err)

	// 后写者覆盖
	assert.Equal(t, []string{"admin", "member"}, principal.Attributes["role"])
	assert.Equal(t, "ldap", sources["role"])
}

func TestDefaultPrincipalElection_AddRule(t *testing.T) {
	s := NewDefaultPrincipalElection(MergeRuleAdd)

	principal, sources, err := s.Elect(electionResults())
	require.NoError(t, err)

	// 先写者保留
	assert.Equal(t, []string{"member"}, principal.Attributes["role"])
	assert.Equal(t, "password", sources["role"])
	assert.Equal(t, []string{"engineering"}, principal.Attributes["dept"])
}

func TestDefaultPrincipalElection_NoResults(t *testing.T) {
	s := NewDefaultPrincipalElection(MergeRuleMerge)

	_, _, err := s.Elect(nil)
	assert.ErrorIs(t, err, ErrNoSuccessfulResult)
}

func TestDefaultPrincipalElection_MissingPrincipal(t *testing.T) {
	s := NewDefaultPrincipalElection(MergeRuleMerge)

	// 首个结果缺少主体同样以错误上报，而不是崩溃
	results := []*HandlerResult{
		{HandlerName: "broken"},
		{HandlerName: "ok", Principal: &Principal{ID: "alice"}},
	}
	_, _, err := s.Elect(results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestDefaultPrincipalElection_DefaultsToMerge(t *testing.T) {
	s := NewDefaultPrincipalElection("")
	assert.Equal(t, MergeRuleMerge, s.Rule)
}

func TestDefaultPrincipalElection_IsolatedFromResults(t *testing.T) {
	s := NewDefaultPrincipalElection(MergeRuleReplace)
	results := electionResults()

	principal, _, err := s.Elect(results)
	require.NoError(t, err)

	// 选举结果与处理器结果不共享底层数组
	results[1].Principal.Attributes["role"][0] = "mutated"
	assert.Equal(t, "admin", principal.Attributes["role"][0])
}
