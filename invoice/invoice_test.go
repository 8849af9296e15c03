package invoice

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/agentfund/address"
	"github.com/vitwit/agentfund/state"
	"github.com/vitwit/agentfund/store"
	"github.com/vitwit/agentfund/treasury"
	"github.com/vitwit/agentfund/types"
)

var programID = solana.PublicKeyFromBytes(bytes.Repeat([]byte{6}, 32))

const now = int64(1_700_000_000)

type fixture struct {
	view      *state.View
	recipient solana.PublicKey
}

func setup(t *testing.T, fund map[solana.PublicKey]uint64) *fixture {
	t.Helper()
	recipient := solana.NewWallet().PublicKey()
	st := store.New()
	st.Credit(recipient, 100_000_000)
	for addr, amount := range fund {
		st.Credit(addr, amount)
	}
	tx := st.Begin()
	t.Cleanup(tx.Abort)
	v := state.NewView(tx, address.New(programID))

	_, _, err := treasury.Initialize(v, now, types.NewSignerSet(recipient), treasury.InitializeParams{Owner: recipient})
	require.NoError(t, err)
	return &fixture{view: v, recipient: recipient}
}

func (f *fixture) create(t *testing.T, id types.ID, amount uint64, expiresAt int64) *types.Invoice {
	t.Helper()
	inv, _, err := Create(f.view, now, types.NewSignerSet(f.recipient), CreateParams{
		Recipient: f.recipient,
		ID:        id,
		Amount:    amount,
		Memo:      "api usage",
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)
	return inv
}

func TestCreatePendingCountsInTreasury(t *testing.T) {
	f := setup(t, nil)

	inv := f.create(t, types.ID{0x11}, 1_000_000, now+3600)
	assert.Equal(t, types.InvoicePending, inv.Status)
	assert.Equal(t, int64(now), inv.CreatedAt)
	assert.Nil(t, inv.PaidAt)
	assert.Nil(t, inv.Payer)

	treas, _, err := f.view.Treasury(f.recipient)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), treas.PendingInvoices)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*CreateParams)
		wantCode string
	}{
		{"zero amount", func(p *CreateParams) { p.Amount = 0 }, types.ErrBadAmount},
		{"memo too long", func(p *CreateParams) { p.Memo = strings.Repeat("x", 257) }, types.ErrMemoTooLong},
		{"expiry at now", func(p *CreateParams) { p.ExpiresAt = now }, types.ErrExpiryInPast},
		{"expiry in past", func(p *CreateParams) { p.ExpiresAt = now - 1 }, types.ErrExpiryInPast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, nil)
			params := CreateParams{
				Recipient: f.recipient,
				ID:        types.ID{0x22},
				Amount:    100,
				Memo:      "m",
				ExpiresAt: now + 60,
			}
			tt.mutate(&params)
			_, _, err := Create(f.view, now, types.NewSignerSet(f.recipient), params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.Err(tt.wantCode)), "got %v", err)
		})
	}
}

func TestCreateMemoAtLimit(t *testing.T) {
	f := setup(t, nil)
	_, _, err := Create(f.view, now, types.NewSignerSet(f.recipient), CreateParams{
		Recipient: f.recipient,
		ID:        types.ID{0x23},
		Amount:    100,
		Memo:      strings.Repeat("x", 256),
		ExpiresAt: now + 60,
	})
	assert.NoError(t, err)
}

func TestCreateWithoutTreasury(t *testing.T) {
	st := store.New()
	stranger := solana.NewWallet().PublicKey()
	st.Credit(stranger, 100_000_000)
	tx := st.Begin()
	t.Cleanup(tx.Abort)
	v := state.NewView(tx, address.New(programID))

	_, _, err := Create(v, now, types.NewSignerSet(stranger), CreateParams{
		Recipient: stranger,
		ID:        types.ID{0x31},
		Amount:    100,
		ExpiresAt: now + 60,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrNoTreasury)))
}

func TestCreateDuplicateID(t *testing.T) {
	f := setup(t, nil)
	f.create(t, types.ID{0x41}, 100, now+60)

	_, _, err := Create(f.view, now, types.NewSignerSet(f.recipient), CreateParams{
		Recipient: f.recipient,
		ID:        types.ID{0x41},
		Amount:    200,
		ExpiresAt: now + 60,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrAlreadyExists)))
}

func TestPayHappyPath(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	f := setup(t, map[solana.PublicKey]uint64{payer: 5_000_000})
	f.create(t, types.ID{0x11}, 1_000_000, now+3600)

	recipientBefore := f.view.Tx.Balance(f.recipient)

	inv, _, err := Pay(f.view, now+10, types.NewSignerSet(payer), PayParams{Payer: payer, ID: types.ID{0x11}})
	require.NoError(t, err)
	assert.Equal(t, types.InvoicePaid, inv.Status)
	require.NotNil(t, inv.PaidAt)
	require.NotNil(t, inv.Payer)
	assert.Equal(t, int64(now+10), *inv.PaidAt)
	assert.Equal(t, payer, *inv.Payer)

	assert.Equal(t, uint64(4_000_000), f.view.Tx.Balance(payer))
	assert.Equal(t, recipientBefore+1_000_000, f.view.Tx.Balance(f.recipient))

	treas, _, err := f.view.Treasury(f.recipient)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), treas.TotalReceived)
	assert.Zero(t, treas.PendingInvoices)
}

func TestPayAfterExpiry(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	f := setup(t, map[solana.PublicKey]uint64{payer: 5_000_000})
	f.create(t, types.ID{0x11}, 1_000_000, now+3600)

	_, _, err := Pay(f.view, now+3601, types.NewSignerSet(payer), PayParams{Payer: payer, ID: types.ID{0x11}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrExpired)))

	// No value moved, treasury untouched.
	assert.Equal(t, uint64(5_000_000), f.view.Tx.Balance(payer))
	treas, _, err := f.view.Treasury(f.recipient)
	require.NoError(t, err)
	assert.Zero(t, treas.TotalReceived)
	assert.Equal(t, uint64(1), treas.PendingInvoices)
}

func TestPayAtExactExpiry(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	f := setup(t, map[solana.PublicKey]uint64{payer: 5_000_000})
	f.create(t, types.ID{0x11}, 100, now+3600)

	_, _, err := Pay(f.view, now+3600, types.NewSignerSet(payer), PayParams{Payer: payer, ID: types.ID{0x11}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrExpired)))
}

func TestPayTwice(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	f := setup(t, map[solana.PublicKey]uint64{payer: 5_000_000})
	f.create(t, types.ID{0x11}, 100, now+3600)

	_, _, err := Pay(f.view, now+1, types.NewSignerSet(payer), PayParams{Payer: payer, ID: types.ID{0x11}})
	require.NoError(t, err)

	_, _, err = Pay(f.view, now+2, types.NewSignerSet(payer), PayParams{Payer: payer, ID: types.ID{0x11}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrNotPending)))
	assert.Equal(t, uint64(4_999_900), f.view.Tx.Balance(payer), "second attempt debits nothing")
}

func TestPayInsufficientFunds(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	f := setup(t, map[solana.PublicKey]uint64{payer: 50})
	f.create(t, types.ID{0x11}, 100, now+3600)

	_, _, err := Pay(f.view, now+1, types.NewSignerSet(payer), PayParams{Payer: payer, ID: types.ID{0x11}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrInsufficient)))
}

func TestPayUnknownInvoice(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	f := setup(t, map[solana.PublicKey]uint64{payer: 500})

	_, _, err := Pay(f.view, now, types.NewSignerSet(payer), PayParams{Payer: payer, ID: types.ID{0xFF}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrNotFound)))
}

func TestCancel(t *testing.T) {
	f := setup(t, nil)
	f.create(t, types.ID{0x11}, 100, now+3600)

	inv, _, err := Cancel(f.view, now+1, types.NewSignerSet(f.recipient), CancelParams{Recipient: f.recipient, ID: types.ID{0x11}})
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceCancelled, inv.Status)

	treas, _, err := f.view.Treasury(f.recipient)
	require.NoError(t, err)
	assert.Zero(t, treas.PendingInvoices)

	// Terminal: cannot cancel again, cannot pay.
	_, _, err = Cancel(f.view, now+2, types.NewSignerSet(f.recipient), CancelParams{Recipient: f.recipient, ID: types.ID{0x11}})
	assert.True(t, errors.Is(err, types.Err(types.ErrNotPending)))
	_, _, err = Pay(f.view, now+2, types.NewSignerSet(f.recipient), PayParams{Payer: f.recipient, ID: types.ID{0x11}})
	assert.True(t, errors.Is(err, types.Err(types.ErrNotPending)))
}

func TestCancelByStranger(t *testing.T) {
	f := setup(t, nil)
	f.create(t, types.ID{0x11}, 100, now+3600)
	stranger := solana.NewWallet().PublicKey()

	_, _, err := Cancel(f.view, now+1, types.NewSignerSet(stranger), CancelParams{Recipient: stranger, ID: types.ID{0x11}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrWrongRecipient)))
}

func TestExpirePersists(t *testing.T) {
	f := setup(t, nil)
	f.create(t, types.ID{0x11}, 100, now+3600)

	// Not yet expired.
	_, _, err := Expire(f.view, now+3600, types.SignerSet{}, ExpireParams{ID: types.ID{0x11}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrNotExpired)))

	inv, _, err := Expire(f.view, now+3601, types.SignerSet{}, ExpireParams{ID: types.ID{0x11}})
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceExpired, inv.Status)

	treas, _, err := f.view.Treasury(f.recipient)
	require.NoError(t, err)
	assert.Zero(t, treas.PendingInvoices)

	_, _, err = Expire(f.view, now+3602, types.SignerSet{}, ExpireParams{ID: types.ID{0x11}})
	assert.True(t, errors.Is(err, types.Err(types.ErrNotPending)))
}
