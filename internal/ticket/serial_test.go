package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialize_TGTRoundTrip(t *testing.T) {
	tgt := NewTicketGrantingTicket(GenerateID(PrefixTGT, "node1"), testAuthentication("alice"),
		CompositeExpirationPolicy{
			Policies: map[string]ExpirationPolicy{
				"hard": HardTimeoutExpirationPolicy{TTL: 8 * time.Hour},
				"idle": TimeoutExpirationPolicy{TimeToKill: 2 * time.Hour},
			},
		})
	tgt.AddDescendant("ST-1-abc")
	tgt.MarkUsed()

	data, err := Serialize(tgt)
	require.NoError(t, err)

	restored, err := Deserialize(data)
	require.NoError(t, err)

	out, ok := restored.(*TicketGrantingTicket)
	require.True(t, ok)
	assert.Equal(t, tgt.ID, out.ID)
	assert.Equal(t, tgt.DescendantTickets, out.DescendantTickets)
	assert.Equal(t, tgt.CountOfUses, out.CountOfUses)
	assert.Equal(t, "alice", out.Authentication.Principal.ID)
	assert.Equal(t, PolicyKindComposite, out.Policy.Kind())
}

func TestSerialize_STRoundTrip(t *testing.T) {
	st := NewServiceTicket(GenerateID(PrefixST, ""), "TGT-1-abc", "https://app.example.com",
		HardTimeoutExpirationPolicy{TTL: 5 * time.Minute})

	data, err := Serialize(st)
	require.NoError(t, err)

	restored, err := Deserialize(data)
	require.NoError(t, err)

	out, ok := restored.(*ServiceTicket)
	require.True(t, ok)
	assert.Equal(t, st.ID, out.ID)
	assert.Equal(t, st.TicketGrantingTicketID, out.TicketGrantingTicketID)
	assert.Equal(t, st.Service, out.Service)
	assert.Equal(t, PolicyKindHardTimeout, out.Policy.Kind())
}

func TestClone_Independent(t *testing.T) {
	tgt := NewTicketGrantingTicket(GenerateID(PrefixTGT, ""), testAuthentication("alice"), NeverExpiresPolicy{})
	tgt.AddDescendant("ST-1-abc")

	clone, err := Clone(tgt)
	require.NoError(t, err)

	cloned, ok := clone.(*TicketGrantingTicket)
	require.True(t, ok)

	// 修改原件不影响克隆
	tgt.AddDescendant("ST-2-def")
	tgt.MarkUsed()

	assert.Equal(t, []string{"ST-1-abc"}, cloned.DescendantTickets)
	assert.Zero(t, cloned.CountOfUses)
}

func TestDeserialize_Invalid(t *testing.T) {
	_, err := Deserialize([]byte("not json"))
	assert.Error(t, err)

	_, err = Deserialize([]byte(`{"kind":"bogus","policy":{"kind":"never"},"payload":{}}`))
	assert.Error(t, err)
}
