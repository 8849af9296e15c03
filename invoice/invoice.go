// Package invoice implements the single-obligation lifecycle:
// Pending → Paid on a successful pay, Pending → Cancelled by the recipient,
// and Pending → Expired once the expiry is observed. Terminal states are
// sticky; no operation mutates a non-Pending invoice.
package invoice

import (
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/events"
	"github.com/vitwit/agentfund/state"
	"github.com/vitwit/agentfund/types"
)

// CreateParams carries the payload of CreateInvoice. Recipient signs and
// funds the record's rent.
type CreateParams struct {
	Recipient solana.PublicKey
	ID        types.ID
	Amount    uint64
	Memo      string
	ExpiresAt int64
}

// Create creates a Pending invoice and bumps the recipient treasury's
// pending count. The recipient's treasury must already exist.
func Create(v *state.View, now int64, signers types.SignerSet, p CreateParams) (*types.Invoice, []events.Event, error) {
	if err := signers.Require(p.Recipient); err != nil {
		return nil, nil, err
	}
	if p.Amount == 0 {
		return nil, nil, types.Errf(types.ErrBadAmount, "invoice amount must be positive")
	}
	if len(p.Memo) > types.MaxMemoLength {
		return nil, nil, types.Errf(types.ErrMemoTooLong, "memo is %d bytes, max %d", len(p.Memo), types.MaxMemoLength)
	}
	if p.ExpiresAt <= now {
		return nil, nil, types.Errf(types.ErrExpiryInPast, "expires_at %d is not after now %d", p.ExpiresAt, now)
	}

	treas, treasAddr, err := v.Treasury(p.Recipient)
	if err != nil {
		return nil, nil, err
	}

	addr, _, err := v.Derive.Invoice(p.ID)
	if err != nil {
		return nil, nil, err
	}
	inv := &types.Invoice{
		ID:        p.ID,
		Recipient: p.Recipient,
		Amount:    p.Amount,
		Memo:      p.Memo,
		Status:    types.InvoicePending,
		CreatedAt: now,
		ExpiresAt: p.ExpiresAt,
	}
	data, err := inv.Marshal()
	if err != nil {
		return nil, nil, types.Errf(types.ErrBadSerialization, "encoding invoice: %v", err)
	}
	if _, err := v.Tx.Create(addr, len(data), v.Derive.ProgramID(), p.Recipient); err != nil {
		return nil, nil, err
	}
	if err := v.Tx.Write(addr, data); err != nil {
		return nil, nil, err
	}

	treas.PendingInvoices++
	if err := v.SaveTreasury(treasAddr, treas); err != nil {
		return nil, nil, err
	}

	ev := events.InvoiceCreated{
		InvoiceID: p.ID,
		Recipient: p.Recipient,
		Amount:    p.Amount,
		ExpiresAt: p.ExpiresAt,
	}
	return inv, []events.Event{ev}, nil
}

// PayParams carries the payload of PayInvoice. Payer signs.
type PayParams struct {
	Payer solana.PublicKey
	ID    types.ID
}

// Pay transfers the invoice amount from the payer to the recipient principal
// and marks the invoice Paid. The treasury is an accounting record, not the
// funds vault: value lands on the recipient's own account.
func Pay(v *state.View, now int64, signers types.SignerSet, p PayParams) (*types.Invoice, []events.Event, error) {
	if err := signers.Require(p.Payer); err != nil {
		return nil, nil, err
	}

	inv, invAddr, err := v.Invoice(p.ID)
	if err != nil {
		return nil, nil, err
	}
	if inv.Status != types.InvoicePending {
		return nil, nil, types.Errf(types.ErrNotPending, "invoice is %s", inv.Status)
	}
	if now >= inv.ExpiresAt {
		return nil, nil, types.Errf(types.ErrExpired, "invoice expired at %d", inv.ExpiresAt)
	}

	treas, treasAddr, err := v.Treasury(inv.Recipient)
	if err != nil {
		return nil, nil, err
	}

	if err := v.Tx.Transfer(p.Payer, inv.Recipient, inv.Amount); err != nil {
		return nil, nil, err
	}

	paidAt := now
	payer := p.Payer
	inv.Status = types.InvoicePaid
	inv.PaidAt = &paidAt
	inv.Payer = &payer
	if err := v.SaveInvoice(invAddr, inv); err != nil {
		return nil, nil, err
	}

	treas.TotalReceived += inv.Amount
	treas.PendingInvoices--
	if err := v.SaveTreasury(treasAddr, treas); err != nil {
		return nil, nil, err
	}

	ev := events.InvoicePaid{InvoiceID: inv.ID, Payer: p.Payer, Amount: inv.Amount}
	return inv, []events.Event{ev}, nil
}

// CancelParams carries the payload of CancelInvoice. Recipient signs.
type CancelParams struct {
	Recipient solana.PublicKey
	ID        types.ID
}

// Cancel marks a Pending invoice Cancelled. Only the recipient may cancel.
func Cancel(v *state.View, now int64, signers types.SignerSet, p CancelParams) (*types.Invoice, []events.Event, error) {
	if err := signers.Require(p.Recipient); err != nil {
		return nil, nil, err
	}

	inv, invAddr, err := v.Invoice(p.ID)
	if err != nil {
		return nil, nil, err
	}
	if inv.Recipient != p.Recipient {
		return nil, nil, types.Errf(types.ErrWrongRecipient, "invoice belongs to %s", inv.Recipient)
	}
	if inv.Status != types.InvoicePending {
		return nil, nil, types.Errf(types.ErrNotPending, "invoice is %s", inv.Status)
	}

	treas, treasAddr, err := v.Treasury(inv.Recipient)
	if err != nil {
		return nil, nil, err
	}

	inv.Status = types.InvoiceCancelled
	if err := v.SaveInvoice(invAddr, inv); err != nil {
		return nil, nil, err
	}
	treas.PendingInvoices--
	if err := v.SaveTreasury(treasAddr, treas); err != nil {
		return nil, nil, err
	}

	return inv, []events.Event{events.InvoiceCancelled{InvoiceID: inv.ID}}, nil
}

// ExpireParams names the invoice to expire. Permissionless.
type ExpireParams struct {
	ID types.ID
}

// Expire persists the Pending → Expired transition for an invoice whose
// expiry has passed. Reads report the effective status without this; Expire
// exists so the transition can be made durable by anyone.
func Expire(v *state.View, now int64, _ types.SignerSet, p ExpireParams) (*types.Invoice, []events.Event, error) {
	inv, invAddr, err := v.Invoice(p.ID)
	if err != nil {
		return nil, nil, err
	}
	if inv.Status != types.InvoicePending {
		return nil, nil, types.Errf(types.ErrNotPending, "invoice is %s", inv.Status)
	}
	if now <= inv.ExpiresAt {
		return nil, nil, types.Errf(types.ErrNotExpired, "invoice does not expire until %d", inv.ExpiresAt)
	}

	treas, treasAddr, err := v.Treasury(inv.Recipient)
	if err != nil {
		return nil, nil, err
	}

	inv.Status = types.InvoiceExpired
	if err := v.SaveInvoice(invAddr, inv); err != nil {
		return nil, nil, err
	}
	treas.PendingInvoices--
	if err := v.SaveTreasury(treasAddr, treas); err != nil {
		return nil, nil, err
	}

	return inv, []events.Event{events.InvoiceExpired{InvoiceID: inv.ID}}, nil
}
