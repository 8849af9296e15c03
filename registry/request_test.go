package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/agentfund/types"
)

func (f *fixture) escrowBalance(t *testing.T, id types.ID) uint64 {
	t.Helper()
	addr, _, err := f.view.Derive.RequestEscrow(id)
	require.NoError(t, err)
	return f.view.Tx.Balance(addr)
}

func (f *fixture) request(t *testing.T, id types.ID, amount uint64) *types.ServiceRequest {
	t.Helper()
	req, _, err := Request(f.view, now, types.NewSignerSet(f.requester), RequestParams{
		Requester:  f.requester,
		RequestID:  id,
		Provider:   f.provider,
		Capability: "sentiment",
		Amount:     amount,
	})
	require.NoError(t, err)
	return req
}

func TestRequestEscrowsAmount(t *testing.T) {
	f := setup(t)
	before := f.view.Tx.Balance(f.requester)

	req := f.request(t, types.ID{0x51}, 10_000)
	assert.Equal(t, types.RequestPending, req.Status)
	assert.Equal(t, int64(now), req.CreatedAt)
	assert.Nil(t, req.CompletedAt)
	assert.Nil(t, req.ResultHash)

	assert.Equal(t, uint64(10_000), f.escrowBalance(t, types.ID{0x51}), "escrow holds exactly the request amount")
	spent := before - f.view.Tx.Balance(f.requester)
	assert.Greater(t, spent, uint64(10_000), "amount plus record rent")
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*RequestParams)
		wantCode string
	}{
		{"unknown capability", func(p *RequestParams) { p.Capability = "translation" }, types.ErrUnknownCapability},
		{"below base price", func(p *RequestParams) { p.Amount = 9_999 }, types.ErrPriceBelowMinimum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			params := RequestParams{
				Requester:  f.requester,
				RequestID:  types.ID{0x52},
				Provider:   f.provider,
				Capability: "sentiment",
				Amount:     10_000,
			}
			tt.mutate(&params)
			_, _, err := Request(f.view, now, types.NewSignerSet(f.requester), params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.Err(tt.wantCode)), "got %v", err)
		})
	}
}

func TestRequestInactiveProvider(t *testing.T) {
	f := setup(t)
	inactive := false
	_, _, err := Update(f.view, now, types.NewSignerSet(f.provider), UpdateParams{Owner: f.provider, IsActive: &inactive})
	require.NoError(t, err)

	_, _, err = Request(f.view, now, types.NewSignerSet(f.requester), RequestParams{
		Requester: f.requester, RequestID: types.ID{0x53}, Provider: f.provider,
		Capability: "sentiment", Amount: 10_000,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrProviderInactive)))
}

func TestStartThenComplete(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x54}, 10_000)

	req, _, err := Start(f.view, now+1, types.NewSignerSet(f.provider), StartParams{Provider: f.provider, RequestID: types.ID{0x54}})
	require.NoError(t, err)
	assert.Equal(t, types.RequestInProgress, req.Status)

	// Starting twice is rejected.
	_, _, err = Start(f.view, now+2, types.NewSignerSet(f.provider), StartParams{Provider: f.provider, RequestID: types.ID{0x54}})
	assert.True(t, errors.Is(err, types.Err(types.ErrNotPending)))

	hash := [32]byte{0xAA}
	req, _, err = Complete(f.view, now+3, types.NewSignerSet(f.provider), CompleteParams{
		Provider: f.provider, RequestID: types.ID{0x54}, ResultHash: hash,
	})
	require.NoError(t, err)
	assert.Equal(t, types.RequestCompleted, req.Status)
}

func TestCompleteReleasesEscrow(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x55}, 10_000)
	providerBefore := f.view.Tx.Balance(f.provider)

	hash := [32]byte{0xCC}
	req, _, err := Complete(f.view, now+5, types.NewSignerSet(f.provider), CompleteParams{
		Provider: f.provider, RequestID: types.ID{0x55}, ResultHash: hash,
	})
	require.NoError(t, err)
	assert.Equal(t, types.RequestCompleted, req.Status)
	require.NotNil(t, req.CompletedAt)
	assert.Equal(t, int64(now+5), *req.CompletedAt)
	require.NotNil(t, req.ResultHash)
	assert.Equal(t, hash, *req.ResultHash)

	assert.Zero(t, f.escrowBalance(t, types.ID{0x55}), "escrow drained")
	assert.Equal(t, providerBefore+10_000, f.view.Tx.Balance(f.provider))

	treas, _, err := f.view.Treasury(f.provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), treas.TotalReceived)

	profile, _, err := f.view.Agent(f.provider)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), profile.TotalRequests)
	assert.Equal(t, uint64(10_000), profile.TotalEarnings)
	assert.Equal(t, int64(now+5), profile.LastActiveAt)
}

func TestCompleteByNonProvider(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x56}, 10_000)

	_, _, err := Complete(f.view, now, types.NewSignerSet(f.requester), CompleteParams{
		Provider: f.requester, RequestID: types.ID{0x56},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrNotParty)))
}

func TestCompleteTwice(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x57}, 10_000)
	signers := types.NewSignerSet(f.provider)

	_, _, err := Complete(f.view, now+1, signers, CompleteParams{Provider: f.provider, RequestID: types.ID{0x57}})
	require.NoError(t, err)

	_, _, err = Complete(f.view, now+2, signers, CompleteParams{Provider: f.provider, RequestID: types.ID{0x57}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrAlreadyTerminal)))
}

func TestRequestDuplicateID(t *testing.T) {
	f := setup(t)
	f.request(t, types.ID{0x58}, 10_000)

	_, _, err := Request(f.view, now, types.NewSignerSet(f.requester), RequestParams{
		Requester: f.requester, RequestID: types.ID{0x58}, Provider: f.provider,
		Capability: "sentiment", Amount: 10_000,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrAlreadyExists)))
}
