package registry

import (
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/events"
	"github.com/vitwit/agentfund/state"
	"github.com/vitwit/agentfund/types"
)

// RequestParams carries the payload of RequestService. Requester signs,
// funds the request record's rent and escrows the payment. Arbiter, when
// set, becomes the only principal allowed to resolve a dispute over this
// request.
type RequestParams struct {
	Requester  solana.PublicKey
	RequestID  types.ID
	Provider   solana.PublicKey
	Capability string
	Amount     uint64
	Arbiter    *solana.PublicKey
}

// Request creates a Pending service request and moves the payment into the
// sibling escrow. The provider must be active, advertise the capability and
// the amount must cover the provider's base price.
func Request(v *state.View, now int64, signers types.SignerSet, p RequestParams) (*types.ServiceRequest, []events.Event, error) {
	if err := signers.Require(p.Requester); err != nil {
		return nil, nil, err
	}

	profile, _, err := v.Agent(p.Provider)
	if err != nil {
		return nil, nil, err
	}
	if !profile.IsActive {
		return nil, nil, types.Errf(types.ErrProviderInactive, "provider %s is not active", p.Provider)
	}
	if !profile.HasCapability(p.Capability) {
		return nil, nil, types.Errf(types.ErrUnknownCapability, "provider does not offer %q", p.Capability)
	}
	if p.Amount < profile.BasePrice {
		return nil, nil, types.Errf(types.ErrPriceBelowMinimum, "amount %d below base price %d", p.Amount, profile.BasePrice)
	}

	addr, _, err := v.Derive.Request(p.RequestID)
	if err != nil {
		return nil, nil, err
	}
	req := &types.ServiceRequest{
		ID:         p.RequestID,
		Requester:  p.Requester,
		Provider:   p.Provider,
		Capability: p.Capability,
		Amount:     p.Amount,
		Status:     types.RequestPending,
		CreatedAt:  now,
		Arbiter:    p.Arbiter,
	}
	data, err := req.Marshal()
	if err != nil {
		return nil, nil, types.Errf(types.ErrBadSerialization, "encoding request: %v", err)
	}
	if _, err := v.Tx.Create(addr, len(data), v.Derive.ProgramID(), p.Requester); err != nil {
		return nil, nil, err
	}
	if err := v.Tx.Write(addr, data); err != nil {
		return nil, nil, err
	}

	// The escrow is a bare value account: it holds exactly the request
	// amount, nothing else, so the T4 invariant is checkable by balance.
	escrowAddr, _, err := v.Derive.RequestEscrow(p.RequestID)
	if err != nil {
		return nil, nil, err
	}
	if err := v.Tx.Transfer(p.Requester, escrowAddr, p.Amount); err != nil {
		return nil, nil, err
	}

	ev := events.ServiceRequested{
		RequestID:  p.RequestID,
		Requester:  p.Requester,
		Provider:   p.Provider,
		Capability: p.Capability,
		Amount:     p.Amount,
	}
	return req, []events.Event{ev}, nil
}

// StartParams carries the payload of StartService. Provider signs.
type StartParams struct {
	Provider  solana.PublicKey
	RequestID types.ID
}

// Start moves a Pending request to InProgress. Only the provider may start
// work; completion and disputes accept both states.
func Start(v *state.View, now int64, signers types.SignerSet, p StartParams) (*types.ServiceRequest, []events.Event, error) {
	if err := signers.Require(p.Provider); err != nil {
		return nil, nil, err
	}

	req, addr, err := v.Request(p.RequestID)
	if err != nil {
		return nil, nil, err
	}
	if req.Provider != p.Provider {
		return nil, nil, types.Errf(types.ErrNotParty, "signer is not the request's provider")
	}
	if req.Status != types.RequestPending {
		return nil, nil, types.Errf(types.ErrNotPending, "request is %s", req.Status)
	}

	req.Status = types.RequestInProgress
	if err := v.SaveRequest(addr, req); err != nil {
		return nil, nil, err
	}

	return req, []events.Event{events.ServiceStarted{RequestID: p.RequestID, Provider: p.Provider}}, nil
}

// CompleteParams carries the payload of CompleteService. Provider signs.
type CompleteParams struct {
	Provider   solana.PublicKey
	RequestID  types.ID
	ResultHash [32]byte
}

// Complete marks the request delivered, drains the escrow to the provider
// principal and credits the provider's treasury and profile counters.
func Complete(v *state.View, now int64, signers types.SignerSet, p CompleteParams) (*types.ServiceRequest, []events.Event, error) {
	if err := signers.Require(p.Provider); err != nil {
		return nil, nil, err
	}

	req, addr, err := v.Request(p.RequestID)
	if err != nil {
		return nil, nil, err
	}
	if req.Provider != p.Provider {
		return nil, nil, types.Errf(types.ErrNotParty, "signer is not the request's provider")
	}
	if req.Status != types.RequestPending && req.Status != types.RequestInProgress {
		return nil, nil, types.Errf(types.ErrAlreadyTerminal, "request is %s", req.Status)
	}

	completedAt := now
	hash := p.ResultHash
	req.Status = types.RequestCompleted
	req.CompletedAt = &completedAt
	req.ResultHash = &hash
	if err := v.SaveRequest(addr, req); err != nil {
		return nil, nil, err
	}

	if err := drainEscrowToProvider(v, now, req, req.Amount); err != nil {
		return nil, nil, err
	}

	ev := events.ServiceCompleted{RequestID: req.ID, Provider: p.Provider, Amount: req.Amount}
	return req, []events.Event{ev}, nil
}

// drainEscrowToProvider pays share base units of the request escrow to the
// provider and applies the treasury/profile credit that goes with delivered
// work. Callers settle any remainder before closing the escrow.
func drainEscrowToProvider(v *state.View, now int64, req *types.ServiceRequest, share uint64) error {
	escrowAddr, _, err := v.Derive.RequestEscrow(req.ID)
	if err != nil {
		return err
	}
	if share > 0 {
		if err := v.Tx.Transfer(escrowAddr, req.Provider, share); err != nil {
			return err
		}
	}

	treas, treasAddr, err := v.Treasury(req.Provider)
	if err != nil {
		return err
	}
	treas.TotalReceived += share
	if err := v.SaveTreasury(treasAddr, treas); err != nil {
		return err
	}

	profile, profileAddr, err := v.Agent(req.Provider)
	if err != nil {
		return err
	}
	profile.TotalRequests++
	profile.TotalEarnings += share
	profile.LastActiveAt = now
	if err := v.SaveAgent(profileAddr, profile); err != nil {
		return err
	}

	if v.Tx.Balance(escrowAddr) == 0 {
		return v.Tx.Close(escrowAddr, req.Requester)
	}
	return nil
}
