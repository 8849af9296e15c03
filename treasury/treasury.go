// Package treasury implements the per-principal accounting record that every
// other subsystem reads and mutates.
package treasury

import (
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/events"
	"github.com/vitwit/agentfund/state"
	"github.com/vitwit/agentfund/types"
)

// InitializeParams carries the single signer of InitializeTreasury.
type InitializeParams struct {
	Owner solana.PublicKey
}

// Initialize creates the treasury record for the owner. The owner must have
// signed; a second initialization for the same owner fails AlreadyExists.
func Initialize(v *state.View, now int64, signers types.SignerSet, p InitializeParams) (*types.Treasury, []events.Event, error) {
	if err := signers.Require(p.Owner); err != nil {
		return nil, nil, err
	}

	addr, bump, err := v.Derive.Treasury(p.Owner)
	if err != nil {
		return nil, nil, err
	}

	t := &types.Treasury{
		Owner:     p.Owner,
		Bump:      bump,
		CreatedAt: now,
	}
	data, err := t.Marshal()
	if err != nil {
		return nil, nil, types.Errf(types.ErrBadSerialization, "encoding treasury: %v", err)
	}
	if _, err := v.Tx.Create(addr, len(data), v.Derive.ProgramID(), p.Owner); err != nil {
		return nil, nil, err
	}
	if err := v.Tx.Write(addr, data); err != nil {
		return nil, nil, err
	}

	return t, []events.Event{events.TreasuryInitialized{Owner: p.Owner}}, nil
}
