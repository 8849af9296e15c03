// Package state provides the typed load/save view subsystems use on top of a
// store transaction: derive the expected address, load the raw account,
// decode it against the expected class, and write records back.
package state

import (
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/address"
	"github.com/vitwit/agentfund/store"
	"github.com/vitwit/agentfund/types"
)

// View couples one transaction with the deriver for the running program.
type View struct {
	Tx     *store.Tx
	Derive *address.Deriver
}

// NewView wraps tx with typed accessors.
func NewView(tx *store.Tx, d *address.Deriver) *View {
	return &View{Tx: tx, Derive: d}
}

func (v *View) load(addr solana.PublicKey) ([]byte, error) {
	acc, err := v.Tx.Load(addr)
	if err != nil {
		return nil, err
	}
	return acc.Data, nil
}

// Treasury loads the treasury record for owner. A missing treasury is
// reported as NoTreasury: every invoice, batch and registry operation
// requires the relevant treasury to exist.
func (v *View) Treasury(owner solana.PublicKey) (*types.Treasury, solana.PublicKey, error) {
	addr, _, err := v.Derive.Treasury(owner)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	data, err := v.load(addr)
	if err != nil {
		return nil, addr, types.Errf(types.ErrNoTreasury, "no treasury initialized for %s", owner)
	}
	t, err := types.DecodeTreasury(data)
	if err != nil {
		return nil, addr, err
	}
	return t, addr, nil
}

// SaveTreasury writes the treasury record back.
func (v *View) SaveTreasury(addr solana.PublicKey, t *types.Treasury) error {
	data, err := t.Marshal()
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "encoding treasury: %v", err)
	}
	return v.Tx.Write(addr, data)
}

// Invoice loads the invoice record for id.
func (v *View) Invoice(id types.ID) (*types.Invoice, solana.PublicKey, error) {
	addr, _, err := v.Derive.Invoice(id)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	data, err := v.load(addr)
	if err != nil {
		return nil, addr, err
	}
	inv, err := types.DecodeInvoice(data)
	if err != nil {
		return nil, addr, err
	}
	return inv, addr, nil
}

// SaveInvoice writes the invoice record back.
func (v *View) SaveInvoice(addr solana.PublicKey, inv *types.Invoice) error {
	data, err := inv.Marshal()
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "encoding invoice: %v", err)
	}
	return v.Tx.Write(addr, data)
}

// Batch loads the batch settlement record for id.
func (v *View) Batch(id types.ID) (*types.BatchSettlement, solana.PublicKey, error) {
	addr, _, err := v.Derive.Batch(id)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	data, err := v.load(addr)
	if err != nil {
		return nil, addr, err
	}
	b, err := types.DecodeBatchSettlement(data)
	if err != nil {
		return nil, addr, err
	}
	return b, addr, nil
}

// SaveBatch writes the batch settlement record back.
func (v *View) SaveBatch(addr solana.PublicKey, b *types.BatchSettlement) error {
	data, err := b.Marshal()
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "encoding batch: %v", err)
	}
	return v.Tx.Write(addr, data)
}

// Agent loads the agent profile record for owner.
func (v *View) Agent(owner solana.PublicKey) (*types.AgentProfile, solana.PublicKey, error) {
	addr, _, err := v.Derive.Agent(owner)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	data, err := v.load(addr)
	if err != nil {
		return nil, addr, err
	}
	p, err := types.DecodeAgentProfile(data)
	if err != nil {
		return nil, addr, err
	}
	return p, addr, nil
}

// SaveAgent writes the agent profile record back.
func (v *View) SaveAgent(addr solana.PublicKey, p *types.AgentProfile) error {
	data, err := p.Marshal()
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "encoding agent profile: %v", err)
	}
	return v.Tx.Write(addr, data)
}

// Request loads the service request record for id.
func (v *View) Request(id types.ID) (*types.ServiceRequest, solana.PublicKey, error) {
	addr, _, err := v.Derive.Request(id)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	data, err := v.load(addr)
	if err != nil {
		return nil, addr, err
	}
	r, err := types.DecodeServiceRequest(data)
	if err != nil {
		return nil, addr, err
	}
	return r, addr, nil
}

// SaveRequest writes the service request record back.
func (v *View) SaveRequest(addr solana.PublicKey, r *types.ServiceRequest) error {
	data, err := r.Marshal()
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "encoding request: %v", err)
	}
	return v.Tx.Write(addr, data)
}

// Dispute loads the dispute record for request id.
func (v *View) Dispute(id types.ID) (*types.Dispute, solana.PublicKey, error) {
	addr, _, err := v.Derive.Dispute(id)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	data, err := v.load(addr)
	if err != nil {
		return nil, addr, err
	}
	d, err := types.DecodeDispute(data)
	if err != nil {
		return nil, addr, err
	}
	return d, addr, nil
}

// SaveDispute writes the dispute record back.
func (v *View) SaveDispute(addr solana.PublicKey, d *types.Dispute) error {
	data, err := d.Marshal()
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "encoding dispute: %v", err)
	}
	return v.Tx.Write(addr, data)
}

// Stream loads the payment stream record for id.
func (v *View) Stream(id types.ID) (*types.PaymentStream, solana.PublicKey, error) {
	addr, _, err := v.Derive.Stream(id)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	data, err := v.load(addr)
	if err != nil {
		return nil, addr, err
	}
	s, err := types.DecodePaymentStream(data)
	if err != nil {
		return nil, addr, err
	}
	return s, addr, nil
}

// SaveStream writes the payment stream record back.
func (v *View) SaveStream(addr solana.PublicKey, s *types.PaymentStream) error {
	data, err := s.Marshal()
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "encoding stream: %v", err)
	}
	return v.Tx.Write(addr, data)
}
