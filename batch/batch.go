// Package batch implements atomic settlement records: a batch states that a
// set of previously-paid invoices to one recipient are reconciled, and
// advances the recipient treasury's settled cursor. Value moved when each
// invoice was paid; batches never transfer.
package batch

import (
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/events"
	"github.com/vitwit/agentfund/state"
	"github.com/vitwit/agentfund/types"
)

// SettleParams carries the payload of SettleBatch. Settler signs and funds
// the batch record's rent.
type SettleParams struct {
	Settler      solana.PublicKey
	BatchID      types.ID
	Recipient    solana.PublicKey
	InvoiceIDs   []types.ID
	ClaimedTotal uint64
}

// Settle validates every referenced invoice, checks the claimed total
// against the recomputed sum, creates the immutable batch record and bumps
// the recipient treasury's total_settled. Any failing invoice aborts the
// whole batch.
func Settle(v *state.View, now int64, signers types.SignerSet, p SettleParams) (*types.BatchSettlement, []events.Event, error) {
	if err := signers.Require(p.Settler); err != nil {
		return nil, nil, err
	}
	if len(p.InvoiceIDs) == 0 {
		return nil, nil, types.Errf(types.ErrEmptyBatch, "batch has no invoices")
	}
	if len(p.InvoiceIDs) > types.MaxBatchSize {
		return nil, nil, types.Errf(types.ErrBatchTooLarge, "batch has %d invoices, max %d", len(p.InvoiceIDs), types.MaxBatchSize)
	}

	addr, _, err := v.Derive.Batch(p.BatchID)
	if err != nil {
		return nil, nil, err
	}
	if v.Tx.Exists(addr) {
		return nil, nil, types.Errf(types.ErrAlreadyExists, "batch %s already exists", addr)
	}

	var sum uint64
	for _, id := range p.InvoiceIDs {
		inv, _, err := v.Invoice(id)
		if err != nil {
			return nil, nil, err
		}
		if inv.Status != types.InvoicePaid {
			return nil, nil, types.Errf(types.ErrInvoiceNotPaid, "invoice %s is %s", solana.PublicKeyFromBytes(id[:]), inv.Status)
		}
		if inv.Recipient != p.Recipient {
			return nil, nil, types.Errf(types.ErrWrongRecipient, "invoice recipient %s is not %s", inv.Recipient, p.Recipient)
		}
		sum += inv.Amount
	}
	if sum != p.ClaimedTotal {
		return nil, nil, types.Errf(types.ErrSumMismatch, "invoices sum to %d, claimed %d", sum, p.ClaimedTotal)
	}

	treas, treasAddr, err := v.Treasury(p.Recipient)
	if err != nil {
		return nil, nil, err
	}
	// total_settled may never overtake total_received, so an invoice cannot
	// be reconciled twice under distinct batch ids.
	if treas.TotalSettled+p.ClaimedTotal > treas.TotalReceived {
		return nil, nil, types.Errf(types.ErrSumMismatch, "settling %d would exceed total received %d", p.ClaimedTotal, treas.TotalReceived)
	}

	b := &types.BatchSettlement{
		ID:          p.BatchID,
		Settler:     p.Settler,
		Recipient:   p.Recipient,
		InvoiceIDs:  append([]types.ID(nil), p.InvoiceIDs...),
		TotalAmount: p.ClaimedTotal,
		SettledAt:   now,
	}
	data, err := b.Marshal()
	if err != nil {
		return nil, nil, types.Errf(types.ErrBadSerialization, "encoding batch: %v", err)
	}
	if _, err := v.Tx.Create(addr, len(data), v.Derive.ProgramID(), p.Settler); err != nil {
		return nil, nil, err
	}
	if err := v.Tx.Write(addr, data); err != nil {
		return nil, nil, err
	}

	treas.TotalSettled += p.ClaimedTotal
	if err := v.SaveTreasury(treasAddr, treas); err != nil {
		return nil, nil, err
	}

	ev := events.BatchSettled{
		BatchID:      p.BatchID,
		Recipient:    p.Recipient,
		InvoiceCount: uint32(len(p.InvoiceIDs)),
		TotalAmount:  p.ClaimedTotal,
	}
	return b, []events.Event{ev}, nil
}
