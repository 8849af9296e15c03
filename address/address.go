// Package address implements deterministic off-curve address derivation for
// every persistent record class. A derived address is a program-derived
// address in the Solana sense: no principal holds a key for it, and
// recomputing the derivation with the same tag and seeds always yields the
// same (address, bump) pair.
package address

import (
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/types"
)

// Seed tags, one per record class.
const (
	TagTreasury      = "treasury"
	TagInvoice       = "invoice"
	TagBatch         = "batch"
	TagAgent         = "agent"
	TagRequest       = "request"
	TagRequestEscrow = "request_escrow"
	TagDispute       = "dispute"
	TagStream        = "stream"
	TagStreamEscrow  = "stream_escrow"
)

// Deriver computes record addresses under a fixed program identity.
type Deriver struct {
	programID solana.PublicKey
}

// New returns a deriver bound to programID.
func New(programID solana.PublicKey) *Deriver {
	return &Deriver{programID: programID}
}

// ProgramID returns the program identity addresses are derived under.
func (d *Deriver) ProgramID() solana.PublicKey { return d.programID }

// Derive maps (tag, seeds...) to an off-curve address and its bump.
func (d *Deriver) Derive(tag string, seeds ...[]byte) (solana.PublicKey, uint8, error) {
	all := make([][]byte, 0, len(seeds)+1)
	all = append(all, []byte(tag))
	all = append(all, seeds...)
	addr, bump, err := solana.FindProgramAddress(all, d.programID)
	if err != nil {
		return solana.PublicKey{}, 0, types.Errf(types.ErrAddressMismatch, "deriving %q address: %v", tag, err)
	}
	return addr, bump, nil
}

// Treasury returns the treasury address for owner.
func (d *Deriver) Treasury(owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return d.Derive(TagTreasury, owner.Bytes())
}

// Invoice returns the invoice address for id.
func (d *Deriver) Invoice(id types.ID) (solana.PublicKey, uint8, error) {
	return d.Derive(TagInvoice, id.Bytes())
}

// Batch returns the batch settlement address for id.
func (d *Deriver) Batch(id types.ID) (solana.PublicKey, uint8, error) {
	return d.Derive(TagBatch, id.Bytes())
}

// Agent returns the agent profile address for owner.
func (d *Deriver) Agent(owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return d.Derive(TagAgent, owner.Bytes())
}

// Request returns the service request address for id.
func (d *Deriver) Request(id types.ID) (solana.PublicKey, uint8, error) {
	return d.Derive(TagRequest, id.Bytes())
}

// RequestEscrow returns the escrow address bound to request id.
func (d *Deriver) RequestEscrow(id types.ID) (solana.PublicKey, uint8, error) {
	return d.Derive(TagRequestEscrow, id.Bytes())
}

// Dispute returns the dispute address for request id.
func (d *Deriver) Dispute(id types.ID) (solana.PublicKey, uint8, error) {
	return d.Derive(TagDispute, id.Bytes())
}

// Stream returns the payment stream address for id.
func (d *Deriver) Stream(id types.ID) (solana.PublicKey, uint8, error) {
	return d.Derive(TagStream, id.Bytes())
}

// StreamEscrow returns the escrow address bound to stream id.
func (d *Deriver) StreamEscrow(id types.ID) (solana.PublicKey, uint8, error) {
	return d.Derive(TagStreamEscrow, id.Bytes())
}
