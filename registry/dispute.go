package registry

import (
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/events"
	"github.com/vitwit/agentfund/state"
	"github.com/vitwit/agentfund/types"
)

// InitiateDisputeParams carries the payload of InitiateDispute. Initiator
// signs and funds the dispute record's rent.
type InitiateDisputeParams struct {
	Initiator solana.PublicKey
	RequestID types.ID
}

// InitiateDispute opens a dispute over a live request. Only the requester or
// the provider may dispute, only within the window measured from the
// request's creation, and only while the request is Pending or InProgress.
func InitiateDispute(v *state.View, now int64, signers types.SignerSet, p InitiateDisputeParams) (*types.Dispute, []events.Event, error) {
	if err := signers.Require(p.Initiator); err != nil {
		return nil, nil, err
	}

	req, reqAddr, err := v.Request(p.RequestID)
	if err != nil {
		return nil, nil, err
	}
	if p.Initiator != req.Requester && p.Initiator != req.Provider {
		return nil, nil, types.Errf(types.ErrNotParty, "signer is neither requester nor provider")
	}
	switch req.Status {
	case types.RequestDisputed:
		return nil, nil, types.Errf(types.ErrAlreadyDisputed, "request is already disputed")
	case types.RequestCompleted, types.RequestRefunded:
		return nil, nil, types.Errf(types.ErrAlreadyTerminal, "request is %s", req.Status)
	}
	if now-req.CreatedAt > types.DisputeWindowSeconds {
		return nil, nil, types.Errf(types.ErrWindowExpired, "dispute window closed %d seconds after creation", types.DisputeWindowSeconds)
	}

	addr, _, err := v.Derive.Dispute(p.RequestID)
	if err != nil {
		return nil, nil, err
	}
	d := &types.Dispute{
		RequestID:     p.RequestID,
		Initiator:     p.Initiator,
		OpenedAt:      now,
		Resolution:    types.Resolution{Kind: types.ResolutionUnresolved},
		WindowSeconds: types.DisputeWindowSeconds,
	}
	data, err := d.Marshal()
	if err != nil {
		return nil, nil, types.Errf(types.ErrBadSerialization, "encoding dispute: %v", err)
	}
	if _, err := v.Tx.Create(addr, len(data), v.Derive.ProgramID(), p.Initiator); err != nil {
		return nil, nil, err
	}
	if err := v.Tx.Write(addr, data); err != nil {
		return nil, nil, err
	}

	req.Status = types.RequestDisputed
	if err := v.SaveRequest(reqAddr, req); err != nil {
		return nil, nil, err
	}

	ev := events.DisputeInitiated{RequestID: p.RequestID, Initiator: p.Initiator}
	return d, []events.Event{ev}, nil
}

// ResolveDisputeParams carries the payload of ResolveDispute. Resolver
// signs.
type ResolveDisputeParams struct {
	Resolver   solana.PublicKey
	RequestID  types.ID
	Resolution types.Resolution
}

// requireResolveAuthority enforces the designated-arbiter policy: a request
// with an arbiter is resolved by that arbiter alone; without one, the
// provider may resolve PayProvider or Split and the requester may resolve
// RefundRequester.
func requireResolveAuthority(req *types.ServiceRequest, resolver solana.PublicKey, kind types.ResolutionKind) error {
	if req.Arbiter != nil {
		if resolver != *req.Arbiter {
			return types.Errf(types.ErrNotArbiter, "request names a designated arbiter")
		}
		return nil
	}
	switch kind {
	case types.ResolutionRefundRequester:
		if resolver != req.Requester {
			return types.Errf(types.ErrNotArbiter, "only the requester may resolve a refund")
		}
	case types.ResolutionPayProvider, types.ResolutionSplit:
		if resolver != req.Provider {
			return types.Errf(types.ErrNotArbiter, "only the provider may resolve a payout")
		}
	}
	return nil
}

// ResolveDispute applies a resolution to a disputed request and drains its
// escrow. Refund sends the full amount back to the requester; PayProvider
// pays the provider with the same treasury and profile credit as a normal
// completion; Split divides the amount with truncation in the requester's
// favour so the payouts sum exactly.
func ResolveDispute(v *state.View, now int64, signers types.SignerSet, p ResolveDisputeParams) (*types.Dispute, []events.Event, error) {
	if err := signers.Require(p.Resolver); err != nil {
		return nil, nil, err
	}
	if err := p.Resolution.Validate(); err != nil {
		return nil, nil, err
	}

	req, reqAddr, err := v.Request(p.RequestID)
	if err != nil {
		return nil, nil, err
	}
	if req.Status != types.RequestDisputed {
		return nil, nil, types.Errf(types.ErrNotDisputed, "request is %s", req.Status)
	}
	if err := requireResolveAuthority(req, p.Resolver, p.Resolution.Kind); err != nil {
		return nil, nil, err
	}

	d, dAddr, err := v.Dispute(p.RequestID)
	if err != nil {
		return nil, nil, err
	}

	escrowAddr, _, err := v.Derive.RequestEscrow(p.RequestID)
	if err != nil {
		return nil, nil, err
	}

	var providerPayout, requesterPayout uint64
	switch p.Resolution.Kind {
	case types.ResolutionRefundRequester:
		requesterPayout = req.Amount
		if err := v.Tx.Transfer(escrowAddr, req.Requester, requesterPayout); err != nil {
			return nil, nil, err
		}
		if err := v.Tx.Close(escrowAddr, req.Requester); err != nil {
			return nil, nil, err
		}
		req.Status = types.RequestRefunded

	case types.ResolutionPayProvider:
		providerPayout = req.Amount
		if err := drainEscrowToProvider(v, now, req, providerPayout); err != nil {
			return nil, nil, err
		}
		completedAt := now
		req.Status = types.RequestCompleted
		req.CompletedAt = &completedAt

	case types.ResolutionSplit:
		providerPayout, requesterPayout = types.SplitPayouts(req.Amount, p.Resolution)
		if requesterPayout > 0 {
			if err := v.Tx.Transfer(escrowAddr, req.Requester, requesterPayout); err != nil {
				return nil, nil, err
			}
		}
		if err := drainEscrowToProvider(v, now, req, providerPayout); err != nil {
			return nil, nil, err
		}
		completedAt := now
		req.Status = types.RequestCompleted
		req.CompletedAt = &completedAt
	}

	if err := v.SaveRequest(reqAddr, req); err != nil {
		return nil, nil, err
	}

	resolvedAt := now
	d.Resolution = p.Resolution
	d.ResolvedAt = &resolvedAt
	if err := v.SaveDispute(dAddr, d); err != nil {
		return nil, nil, err
	}

	ev := events.DisputeResolved{
		RequestID:       p.RequestID,
		Resolution:      p.Resolution.Kind,
		ProviderPayout:  providerPayout,
		RequesterPayout: requesterPayout,
	}
	return d, []events.Event{ev}, nil
}
