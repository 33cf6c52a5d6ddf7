package ticket

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pu-ac-cn/sso-center/internal/authn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAuthentication 测试用认证结果
func testAuthentication(principal string) *authn.Authentication {
	return &authn.Authentication{
		Principal: &authn.Principal{
			ID:         principal,
			Attributes: map[string][]string{"role": {"member"}},
		},
		AuthenticatedAt: time.Now().UTC(),
	}
}

func TestGenerateID_Format(t *testing.T) {
	id := GenerateID(PrefixTGT, "")
	parts := strings.Split(id, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, PrefixTGT, parts[0])

	_, err := strconv.ParseInt(parts[1], 10, 64)
	assert.NoError(t, err)
	assert.Len(t, parts[2], 32)
}

func TestGenerateID_Suffix(t *testing.T) {
	id := GenerateID(PrefixST, "node1")
	assert.True(t, strings.HasPrefix(id, "ST-"))
	assert.True(t, strings.HasSuffix(id, "-node1"))
}

func TestGenerateID_MonotonicAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	prev := int64(-1)
	for i := 0; i < 1000; i++ {
		id := GenerateID(PrefixTGT, "")
		assert.False(t, seen[id], "票据 ID 不允许重复: %s", id)
		seen[id] = true

		seq, err := strconv.ParseInt(strings.Split(id, "-")[1], 10, 64)
		require.NoError(t, err)
		assert.Greater(t, seq, prev)
		prev = seq
	}
}

func TestTicketGrantingTicket_Lifecycle(t *testing.T) {
	tgt := NewTicketGrantingTicket(GenerateID(PrefixTGT, ""), testAuthentication("alice"), NeverExpiresPolicy{})

	assert.True(t, tgt.IsRoot())
	assert.False(t, tgt.IsExpired())
	assert.Equal(t, PrefixTGT, tgt.GetPrefix())
	assert.Equal(t, SessionTypeDefault, tgt.GetSessionType())
	assert.Zero(t, tgt.GetCountOfUses())

	tgt.MarkUsed()
	assert.Equal(t, 1, tgt.GetCountOfUses())
	assert.False(t, tgt.GetLastTimeUsed().IsZero())

	tgt.AddDescendant("ST-1-abc")
	tgt.AddDescendant("ST-2-def")
	assert.Equal(t, []string{"ST-1-abc", "ST-2-def"}, tgt.DescendantTickets)
}

func TestTicketGrantingTicket_Revoked(t *testing.T) {
	tgt := NewTicketGrantingTicket(GenerateID(PrefixTGT, ""), testAuthentication("alice"), NeverExpiresPolicy{})
	assert.False(t, tgt.IsExpired())

	tgt.Revoked = true
	assert.True(t, tgt.IsExpired())
}

func TestServiceTicket_SingleUse(t *testing.T) {
	st := NewServiceTicket(GenerateID(PrefixST, ""), "TGT-1-abc", "https://app.example.com", NeverExpiresPolicy{})

	assert.False(t, st.IsExpired())

	// 单次使用票据消耗后即过期
	st.MarkUsed()
	assert.True(t, st.IsExpired())
}

func TestServiceTicket_Reusable(t *testing.T) {
	st := NewServiceTicket(GenerateID(PrefixST, ""), "TGT-1-abc", "https://app.example.com", NeverExpiresPolicy{})
	st.Reusable = true

	st.MarkUsed()
	st.MarkUsed()
	assert.False(t, st.IsExpired())
	assert.Equal(t, 2, st.GetCountOfUses())
}

func TestServiceTicket_GrantingTicketExpired(t *testing.T) {
	st := NewServiceTicket(GenerateID(PrefixST, ""), "TGT-1-abc", "https://app.example.com", NeverExpiresPolicy{})
	assert.False(t, st.IsExpired())

	// 父 TGT 过期则子票据一并过期，且不可逆转
	st.SetGrantingTicketExpired()
	assert.True(t, st.IsExpired())
}

func TestServiceTicket_ProxyPrefix(t *testing.T) {
	st := NewServiceTicket(GenerateID(PrefixPT, ""), "TGT-1-abc", "https://app.example.com", NeverExpiresPolicy{})
	assert.Equal(t, PrefixST, st.GetPrefix())

	st.Proxy = true
	assert.Equal(t, PrefixPT, st.GetPrefix())
}

func TestServiceTicket_PolicyExpiry(t *testing.T) {
	st := NewServiceTicket(GenerateID(PrefixST, ""), "TGT-1-abc", "https://app.example.com",
		HardTimeoutExpirationPolicy{TTL: time.Millisecond})
	st.CreationTime = time.Now().Add(-time.Second)
	assert.True(t, st.IsExpired())
}

func TestCatalog_FindByID(t *testing.T) {
	catalog := NewDefaultCatalog(DefaultCatalogConfig{
		TGTPolicy: func() ExpirationPolicy { return NeverExpiresPolicy{} },
		STPolicy:  func() ExpirationPolicy { return NeverExpiresPolicy{} },
		PTPolicy:  func() ExpirationPolicy { return NeverExpiresPolicy{} },
	})

	def, err := catalog.FindByID("TGT-12-abcdef")
	require.NoError(t, err)
	assert.Equal(t, "ticket_granting_tickets", def.StorageName)

	def, err = catalog.FindByID("ST-13-abcdef")
	require.NoError(t, err)
	assert.Equal(t, "service_tickets", def.StorageName)

	_, err = catalog.FindByID("XX-1-abc")
	assert.Error(t, err)

	_, err = catalog.FindByID("noprefix")
	assert.Error(t, err)
}
