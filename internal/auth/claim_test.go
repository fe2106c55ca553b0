// ABOUTME: Tests for recording claimed agents after ownership verification
// ABOUTME: Covers the verified, unverified, wrong-owner, and idempotent paths

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hol-org/registry-cli/internal/broker"
	"github.com/hol-org/registry-cli/internal/identity"
)

type fakeOwnership struct {
	status *broker.VerificationStatus
	err    error
	calls  int
}

func (f *fakeOwnership) GetVerificationStatus(ctx context.Context, uaid string) (*broker.VerificationStatus, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

func TestClaim_RecordsVerifiedAgent(t *testing.T) {
	id := &identity.Identity{Address: "0xAbCd0000000000000000000000000000DeadBeef"}
	store := &memStore{id: id}
	api := &fakeOwnership{status: &broker.VerificationStatus{
		UAID:      "uaid:aid:alpha",
		Verified:  true,
		OwnerType: "ledger",
		OwnerID:   "0xabcd0000000000000000000000000000deadbeef",
	}}

	err := Claim(context.Background(), api, store, id, "uaid:aid:alpha")
	require.NoError(t, err)

	assert.True(t, id.HasClaimed("uaid:aid:alpha"))
	require.NotNil(t, store.id)
	assert.True(t, store.id.HasClaimed("uaid:aid:alpha"), "claim must be persisted")
}

func TestClaim_Idempotent(t *testing.T) {
	id := &identity.Identity{
		Address:       "0xAbCd0000000000000000000000000000DeadBeef",
		ClaimedAgents: []string{"uaid:aid:alpha"},
	}
	api := &fakeOwnership{}

	err := Claim(context.Background(), api, &memStore{id: id}, id, "uaid:aid:alpha")
	require.NoError(t, err)

	assert.Zero(t, api.calls, "an already-claimed agent skips the broker")
	assert.Len(t, id.ClaimedAgents, 1)
}

func TestClaim_RejectsUnverifiedAgent(t *testing.T) {
	id := &identity.Identity{Address: "0xAbCd0000000000000000000000000000DeadBeef"}
	api := &fakeOwnership{status: &broker.VerificationStatus{UAID: "uaid:aid:alpha", Verified: false}}

	err := Claim(context.Background(), api, &memStore{}, id, "uaid:aid:alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not verified")
	assert.False(t, id.HasClaimed("uaid:aid:alpha"))
}

func TestClaim_RejectsForeignOwner(t *testing.T) {
	id := &identity.Identity{Address: "0xAbCd0000000000000000000000000000DeadBeef"}
	api := &fakeOwnership{status: &broker.VerificationStatus{
		UAID:     "uaid:aid:alpha",
		Verified: true,
		OwnerID:  "0x1111111111111111111111111111111111111111",
	}}

	err := Claim(context.Background(), api, &memStore{}, id, "uaid:aid:alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different owner")
	assert.False(t, id.HasClaimed("uaid:aid:alpha"))
}

func TestClaim_RequiresUAID(t *testing.T) {
	api := &fakeOwnership{}
	err := Claim(context.Background(), api, &memStore{}, &identity.Identity{}, "")
	require.Error(t, err)
	assert.Zero(t, api.calls)
}
