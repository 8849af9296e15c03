package registry

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/agentfund/types"
)

func (f *fixture) dispute(t *testing.T, id types.ID, initiator solana.PublicKey) *types.Dispute {
	t.Helper()
	d, _, err := InitiateDispute(f.view, now+10, types.NewSignerSet(initiator), InitiateDisputeParams{
		Initiator: initiator,
		RequestID: id,
	})
	require.NoError(t, err)
	return d
}

func TestInitiateDispute(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x61}, 10_000)

	d := f.dispute(t, types.ID{0x61}, f.requester)
	assert.Equal(t, f.requester, d.Initiator)
	assert.Equal(t, types.ResolutionUnresolved, d.Resolution.Kind)
	assert.False(t, d.Resolved())
	assert.Equal(t, types.DisputeWindowSeconds, d.WindowSeconds)

	req, _, err := f.view.Request(types.ID{0x61})
	require.NoError(t, err)
	assert.Equal(t, types.RequestDisputed, req.Status)
	assert.Equal(t, uint64(10_000), f.escrowBalance(t, types.ID{0x61}), "escrow untouched while disputed")
}

func TestInitiateDisputeByProvider(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x62}, 10_000)

	d := f.dispute(t, types.ID{0x62}, f.provider)
	assert.Equal(t, f.provider, d.Initiator)
}

func TestInitiateDisputeNotParty(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x63}, 10_000)
	stranger := solana.NewWallet().PublicKey()

	_, _, err := InitiateDispute(f.view, now+10, types.NewSignerSet(stranger), InitiateDisputeParams{
		Initiator: stranger, RequestID: types.ID{0x63},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrNotParty)))
}

func TestInitiateDisputeWindowExpired(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x64}, 10_000)

	_, _, err := InitiateDispute(f.view, now+types.DisputeWindowSeconds+1, types.NewSignerSet(f.requester), InitiateDisputeParams{
		Initiator: f.requester, RequestID: types.ID{0x64},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrWindowExpired)))

	req, _, err := f.view.Request(types.ID{0x64})
	require.NoError(t, err)
	assert.Equal(t, types.RequestPending, req.Status, "request unchanged")
}

func TestInitiateDisputeAtWindowEdge(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x65}, 10_000)

	_, _, err := InitiateDispute(f.view, now+types.DisputeWindowSeconds, types.NewSignerSet(f.requester), InitiateDisputeParams{
		Initiator: f.requester, RequestID: types.ID{0x65},
	})
	assert.NoError(t, err, "window is inclusive")
}

func TestInitiateDisputeTwice(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x66}, 10_000)
	f.dispute(t, types.ID{0x66}, f.requester)

	_, _, err := InitiateDispute(f.view, now+20, types.NewSignerSet(f.provider), InitiateDisputeParams{
		Initiator: f.provider, RequestID: types.ID{0x66},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrAlreadyDisputed)))
}

func TestDisputeCompletedRequest(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x67}, 10_000)
	_, _, err := Complete(f.view, now+1, types.NewSignerSet(f.provider), CompleteParams{
		Provider: f.provider, RequestID: types.ID{0x67},
	})
	require.NoError(t, err)

	_, _, err = InitiateDispute(f.view, now+2, types.NewSignerSet(f.requester), InitiateDisputeParams{
		Initiator: f.requester, RequestID: types.ID{0x67},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrAlreadyTerminal)))
}

func TestResolveRefundRequester(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x71}, 10_000)
	f.dispute(t, types.ID{0x71}, f.requester)
	beforeResolve := f.view.Tx.Balance(f.requester)

	d, _, err := ResolveDispute(f.view, now+20, types.NewSignerSet(f.requester), ResolveDisputeParams{
		Resolver:   f.requester,
		RequestID:  types.ID{0x71},
		Resolution: types.Resolution{Kind: types.ResolutionRefundRequester},
	})
	require.NoError(t, err)
	assert.True(t, d.Resolved())
	require.NotNil(t, d.ResolvedAt)

	req, _, err := f.view.Request(types.ID{0x71})
	require.NoError(t, err)
	assert.Equal(t, types.RequestRefunded, req.Status)
	assert.Zero(t, f.escrowBalance(t, types.ID{0x71}))

	// The full escrowed amount came back.
	assert.Equal(t, beforeResolve+10_000, f.view.Tx.Balance(f.requester))

	treas, _, err := f.view.Treasury(f.provider)
	require.NoError(t, err)
	assert.Zero(t, treas.TotalReceived, "provider counters unchanged")
	profile, _, err := f.view.Agent(f.provider)
	require.NoError(t, err)
	assert.Zero(t, profile.TotalRequests)
	assert.Zero(t, profile.TotalEarnings)
}

func TestResolvePayProvider(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x72}, 10_000)
	f.dispute(t, types.ID{0x72}, f.requester)
	providerBefore := f.view.Tx.Balance(f.provider)

	_, _, err := ResolveDispute(f.view, now+20, types.NewSignerSet(f.provider), ResolveDisputeParams{
		Resolver:   f.provider,
		RequestID:  types.ID{0x72},
		Resolution: types.Resolution{Kind: types.ResolutionPayProvider},
	})
	require.NoError(t, err)

	req, _, err := f.view.Request(types.ID{0x72})
	require.NoError(t, err)
	assert.Equal(t, types.RequestCompleted, req.Status)
	assert.Equal(t, providerBefore+10_000, f.view.Tx.Balance(f.provider))

	treas, _, err := f.view.Treasury(f.provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), treas.TotalReceived)
	profile, _, err := f.view.Agent(f.provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), profile.TotalRequests)
	assert.Equal(t, uint64(10_000), profile.TotalEarnings)
}

func TestResolveSplitExact(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x73}, 10_001)
	f.dispute(t, types.ID{0x73}, f.provider)

	arbiterless := types.Resolution{Kind: types.ResolutionSplit, Numerator: 1, Denominator: 2}
	providerBefore := f.view.Tx.Balance(f.provider)
	requesterBefore := f.view.Tx.Balance(f.requester)

	_, _, err := ResolveDispute(f.view, now+20, types.NewSignerSet(f.provider), ResolveDisputeParams{
		Resolver:   f.provider,
		RequestID:  types.ID{0x73},
		Resolution: arbiterless,
	})
	require.NoError(t, err)

	// floor(10_001/2) = 5_000 to the provider, 5_001 back to the requester.
	assert.Equal(t, providerBefore+5_000, f.view.Tx.Balance(f.provider))
	assert.Equal(t, requesterBefore+5_001, f.view.Tx.Balance(f.requester))
	assert.Zero(t, f.escrowBalance(t, types.ID{0x73}))

	treas, _, err := f.view.Treasury(f.provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), treas.TotalReceived)
}

func TestResolveAuthorityWithoutArbiter(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x74}, 10_000)
	f.dispute(t, types.ID{0x74}, f.requester)

	// The requester cannot award the provider's payout direction to itself
	// reversed: refund is requester-only, payout is provider-only.
	_, _, err := ResolveDispute(f.view, now+20, types.NewSignerSet(f.provider), ResolveDisputeParams{
		Resolver:   f.provider,
		RequestID:  types.ID{0x74},
		Resolution: types.Resolution{Kind: types.ResolutionRefundRequester},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrNotArbiter)))

	_, _, err = ResolveDispute(f.view, now+20, types.NewSignerSet(f.requester), ResolveDisputeParams{
		Resolver:   f.requester,
		RequestID:  types.ID{0x74},
		Resolution: types.Resolution{Kind: types.ResolutionPayProvider},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrNotArbiter)))
}

func TestResolveWithDesignatedArbiter(t *testing.T) {
	f := setup(t)
	arbiter := solana.NewWallet().PublicKey()

	_, _, err := Request(f.view, now, types.NewSignerSet(f.requester), RequestParams{
		Requester:  f.requester,
		RequestID:  types.ID{0x75},
		Provider:   f.provider,
		Capability: "sentiment",
		Amount:     10_000,
		Arbiter:    &arbiter,
	})
	require.NoError(t, err)
	f.dispute(t, types.ID{0x75}, f.requester)

	// Parties cannot resolve when an arbiter is designated.
	_, _, err = ResolveDispute(f.view, now+20, types.NewSignerSet(f.requester), ResolveDisputeParams{
		Resolver:   f.requester,
		RequestID:  types.ID{0x75},
		Resolution: types.Resolution{Kind: types.ResolutionRefundRequester},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrNotArbiter)))

	_, _, err = ResolveDispute(f.view, now+20, types.NewSignerSet(arbiter), ResolveDisputeParams{
		Resolver:   arbiter,
		RequestID:  types.ID{0x75},
		Resolution: types.Resolution{Kind: types.ResolutionSplit, Numerator: 3, Denominator: 4},
	})
	require.NoError(t, err)

	req, _, err := f.view.Request(types.ID{0x75})
	require.NoError(t, err)
	assert.Equal(t, types.RequestCompleted, req.Status)
}

func TestResolveTwice(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x76}, 10_000)
	f.dispute(t, types.ID{0x76}, f.requester)

	_, _, err := ResolveDispute(f.view, now+20, types.NewSignerSet(f.requester), ResolveDisputeParams{
		Resolver:   f.requester,
		RequestID:  types.ID{0x76},
		Resolution: types.Resolution{Kind: types.ResolutionRefundRequester},
	})
	require.NoError(t, err)

	_, _, err = ResolveDispute(f.view, now+21, types.NewSignerSet(f.requester), ResolveDisputeParams{
		Resolver:   f.requester,
		RequestID:  types.ID{0x76},
		Resolution: types.Resolution{Kind: types.ResolutionRefundRequester},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrNotDisputed)))
}

func TestResolveUndisputedRequest(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x77}, 10_000)

	_, _, err := ResolveDispute(f.view, now+20, types.NewSignerSet(f.requester), ResolveDisputeParams{
		Resolver:   f.requester,
		RequestID:  types.ID{0x77},
		Resolution: types.Resolution{Kind: types.ResolutionRefundRequester},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrNotDisputed)))
}

func TestResolveBadSplitRatio(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x78}, 10_000)
	f.dispute(t, types.ID{0x78}, f.requester)

	_, _, err := ResolveDispute(f.view, now+20, types.NewSignerSet(f.provider), ResolveDisputeParams{
		Resolver:   f.provider,
		RequestID:  types.ID{0x78},
		Resolution: types.Resolution{Kind: types.ResolutionSplit, Numerator: 5, Denominator: 4},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrBadResolution)))
}
