package agentfund_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentfund "github.com/vitwit/agentfund"
	"github.com/vitwit/agentfund/batch"
	"github.com/vitwit/agentfund/events"
	"github.com/vitwit/agentfund/invoice"
	"github.com/vitwit/agentfund/registry"
	"github.com/vitwit/agentfund/stream"
	"github.com/vitwit/agentfund/treasury"
	"github.com/vitwit/agentfund/types"
)

const epoch = int64(1_700_000_000)

type harness struct {
	program *agentfund.Program
	sink    *events.MemorySink
	now     int64
	alice   solana.PublicKey
	bob     solana.PublicKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sink:  events.NewMemorySink(),
		now:   epoch,
		alice: solana.NewWallet().PublicKey(),
		bob:   solana.NewWallet().PublicKey(),
	}
	h.program = agentfund.New(
		agentfund.WithSink(h.sink),
		agentfund.WithClock(func() int64 { return h.now }),
	)
	h.program.Credit(h.alice, 100_000_000_000)
	h.program.Credit(h.bob, 100_000_000_000)
	return h
}

func signed(keys ...solana.PublicKey) types.SignerSet {
	return types.NewSignerSet(keys...)
}

func TestScenarioHappyPathInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.program.InitializeTreasury(ctx, signed(h.alice), treasury.InitializeParams{Owner: h.alice})
	require.NoError(t, err)

	id := types.ID{0x11}
	_, err = h.program.CreateInvoice(ctx, signed(h.alice), invoice.CreateParams{
		Recipient: h.alice,
		ID:        id,
		Amount:    1_000_000,
		Memo:      "inference batch 42",
		ExpiresAt: h.now + 3600,
	})
	require.NoError(t, err)

	bobBefore := h.program.Balance(h.bob)
	_, err = h.program.PayInvoice(ctx, signed(h.bob), invoice.PayParams{Payer: h.bob, ID: id})
	require.NoError(t, err)

	inv, err := h.program.GetInvoice(id)
	require.NoError(t, err)
	assert.Equal(t, types.InvoicePaid, inv.Status)
	require.NotNil(t, inv.Payer)
	assert.Equal(t, h.bob, *inv.Payer)

	treas, err := h.program.GetTreasury(h.alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), treas.TotalReceived)
	assert.Zero(t, treas.PendingInvoices)
	assert.Equal(t, bobBefore-1_000_000, h.program.Balance(h.bob))

	names := eventNames(h.sink)
	assert.Contains(t, names, "treasury_initialized")
	assert.Contains(t, names, "invoice_created")
	assert.Contains(t, names, "invoice_paid")
}

func TestScenarioExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.program.InitializeTreasury(ctx, signed(h.alice), treasury.InitializeParams{Owner: h.alice})
	require.NoError(t, err)

	id := types.ID{0x12}
	_, err = h.program.CreateInvoice(ctx, signed(h.alice), invoice.CreateParams{
		Recipient: h.alice, ID: id, Amount: 1_000_000, ExpiresAt: h.now + 3600,
	})
	require.NoError(t, err)

	bobBefore := h.program.Balance(h.bob)
	h.now = epoch + 3601

	_, err = h.program.PayInvoice(ctx, signed(h.bob), invoice.PayParams{Payer: h.bob, ID: id})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrExpired)))

	treas, err := h.program.GetTreasury(h.alice)
	require.NoError(t, err)
	assert.Zero(t, treas.TotalReceived, "treasury unchanged")
	assert.Equal(t, bobBefore, h.program.Balance(h.bob), "payer balance unchanged")

	// The read surface reports the effective status without persisting it.
	inv, err := h.program.GetInvoice(id)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceExpired, inv.Status)

	for _, ev := range h.sink.Events() {
		assert.NotEqual(t, "invoice_paid", ev.Name(), "failed pay emits nothing")
	}
}

func TestScenarioBatchOfThree(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.program.InitializeTreasury(ctx, signed(h.alice), treasury.InitializeParams{Owner: h.alice})
	require.NoError(t, err)

	ids := []types.ID{{1}, {2}, {3}}
	for i, amount := range []uint64{100, 200, 300} {
		_, err = h.program.CreateInvoice(ctx, signed(h.alice), invoice.CreateParams{
			Recipient: h.alice, ID: ids[i], Amount: amount, ExpiresAt: h.now + 3600,
		})
		require.NoError(t, err)
		_, err = h.program.PayInvoice(ctx, signed(h.bob), invoice.PayParams{Payer: h.bob, ID: ids[i]})
		require.NoError(t, err)
	}

	batchID := types.ID{0xB1}
	_, err = h.program.SettleBatch(ctx, signed(h.alice), batch.SettleParams{
		Settler: h.alice, BatchID: batchID, Recipient: h.alice,
		InvoiceIDs: ids, ClaimedTotal: 600,
	})
	require.NoError(t, err)

	treas, err := h.program.GetTreasury(h.alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), treas.TotalSettled)

	// Same batch id again: AlreadyExists, settled cursor unchanged.
	_, err = h.program.SettleBatch(ctx, signed(h.alice), batch.SettleParams{
		Settler: h.alice, BatchID: batchID, Recipient: h.alice,
		InvoiceIDs: ids[:1], ClaimedTotal: 100,
	})
	assert.True(t, errors.Is(err, types.Err(types.ErrAlreadyExists)))

	// Fresh batch with a wrong total: SumMismatch.
	_, err = h.program.SettleBatch(ctx, signed(h.alice), batch.SettleParams{
		Settler: h.alice, BatchID: types.ID{0xB2}, Recipient: h.alice,
		InvoiceIDs: ids, ClaimedTotal: 599,
	})
	assert.True(t, errors.Is(err, types.Err(types.ErrSumMismatch)))

	treas, err = h.program.GetTreasury(h.alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), treas.TotalSettled, "failed settlements change nothing")
}

func (h *harness) registerProvider(t *testing.T, ctx context.Context) {
	t.Helper()
	_, err := h.program.InitializeTreasury(ctx, signed(h.alice), treasury.InitializeParams{Owner: h.alice})
	require.NoError(t, err)
	_, err = h.program.RegisterAgent(ctx, signed(h.alice), registry.RegisterParams{
		Owner:        h.alice,
		Name:         "sentiment-oracle",
		Description:  "scores text sentiment",
		Capabilities: []string{"sentiment"},
		BasePrice:    10_000,
	})
	require.NoError(t, err)
}

func TestScenarioServiceHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.registerProvider(t, ctx)

	reqID := types.ID{0x41}
	_, err := h.program.RequestService(ctx, signed(h.bob), registry.RequestParams{
		Requester: h.bob, RequestID: reqID, Provider: h.alice,
		Capability: "sentiment", Amount: 10_000,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), h.program.RequestEscrowBalance(reqID))

	hash := [32]byte{0xDD}
	_, err = h.program.CompleteService(ctx, signed(h.alice), registry.CompleteParams{
		Provider: h.alice, RequestID: reqID, ResultHash: hash,
	})
	require.NoError(t, err)

	req, err := h.program.GetRequest(reqID)
	require.NoError(t, err)
	assert.Equal(t, types.RequestCompleted, req.Status)
	assert.Zero(t, h.program.RequestEscrowBalance(reqID))

	treas, err := h.program.GetTreasury(h.alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), treas.TotalReceived)

	profile, err := h.program.GetAgent(h.alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), profile.TotalRequests)
	assert.Equal(t, uint64(10_000), profile.TotalEarnings)
}

func TestScenarioDisputeRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.registerProvider(t, ctx)

	bobStart := h.program.Balance(h.bob)
	reqID := types.ID{0x42}
	_, err := h.program.RequestService(ctx, signed(h.bob), registry.RequestParams{
		Requester: h.bob, RequestID: reqID, Provider: h.alice,
		Capability: "sentiment", Amount: 10_000,
	})
	require.NoError(t, err)

	h.now = epoch + 100
	_, err = h.program.InitiateDispute(ctx, signed(h.bob), registry.InitiateDisputeParams{
		Initiator: h.bob, RequestID: reqID,
	})
	require.NoError(t, err)

	bobBeforeResolve := h.program.Balance(h.bob)
	_, err = h.program.ResolveDispute(ctx, signed(h.bob), registry.ResolveDisputeParams{
		Resolver: h.bob, RequestID: reqID,
		Resolution: types.Resolution{Kind: types.ResolutionRefundRequester},
	})
	require.NoError(t, err)

	req, err := h.program.GetRequest(reqID)
	require.NoError(t, err)
	assert.Equal(t, types.RequestRefunded, req.Status)
	assert.Zero(t, h.program.RequestEscrowBalance(reqID))

	// Bob is whole except the rent of the request and dispute records.
	assert.Equal(t, bobBeforeResolve+10_000, h.program.Balance(h.bob), "escrowed amount came back")
	rentSpent := bobStart - h.program.Balance(h.bob)
	assert.Less(t, rentSpent, uint64(10_000_000), "only record rent was spent")

	profile, err := h.program.GetAgent(h.alice)
	require.NoError(t, err)
	assert.Zero(t, profile.TotalRequests, "provider counters unchanged")
	assert.Zero(t, profile.TotalEarnings)
}

func TestScenarioDisputeWindowExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.registerProvider(t, ctx)

	reqID := types.ID{0x43}
	_, err := h.program.RequestService(ctx, signed(h.bob), registry.RequestParams{
		Requester: h.bob, RequestID: reqID, Provider: h.alice,
		Capability: "sentiment", Amount: 10_000,
	})
	require.NoError(t, err)

	h.now = epoch + types.DisputeWindowSeconds + 1
	_, err = h.program.InitiateDispute(ctx, signed(h.bob), registry.InitiateDisputeParams{
		Initiator: h.bob, RequestID: reqID,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrWindowExpired)))

	req, err := h.program.GetRequest(reqID)
	require.NoError(t, err)
	assert.Equal(t, types.RequestPending, req.Status)
}

func TestRetrySafety(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.program.InitializeTreasury(ctx, signed(h.alice), treasury.InitializeParams{Owner: h.alice})
	require.NoError(t, err)
	_, err = h.program.InitializeTreasury(ctx, signed(h.alice), treasury.InitializeParams{Owner: h.alice})
	assert.True(t, errors.Is(err, types.Err(types.ErrAlreadyExists)))

	id := types.ID{0x13}
	_, err = h.program.CreateInvoice(ctx, signed(h.alice), invoice.CreateParams{
		Recipient: h.alice, ID: id, Amount: 500, ExpiresAt: h.now + 60,
	})
	require.NoError(t, err)

	bobBefore := h.program.Balance(h.bob)
	_, err = h.program.PayInvoice(ctx, signed(h.bob), invoice.PayParams{Payer: h.bob, ID: id})
	require.NoError(t, err)

	// A second identical pay observes NotPending and debits nothing, so the
	// total debit is the amount exactly once.
	_, err = h.program.PayInvoice(ctx, signed(h.bob), invoice.PayParams{Payer: h.bob, ID: id})
	assert.True(t, errors.Is(err, types.Err(types.ErrNotPending)))
	assert.Equal(t, bobBefore-500, h.program.Balance(h.bob))
}

func TestMissingSigner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.program.InitializeTreasury(ctx, signed(h.bob), treasury.InitializeParams{Owner: h.alice})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.Err(types.ErrMissingSigner)))
}

func TestStreamLifecycleEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := types.ID{0x91}
	_, err := h.program.CreateStream(ctx, signed(h.alice), stream.CreateParams{
		Sender: h.alice, StreamID: id, Recipient: h.bob,
		Total: 1_000, StartTime: h.now, EndTime: h.now + 100,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), h.program.StreamEscrowBalance(id))

	h.now = epoch + 50
	_, err = h.program.WithdrawStream(ctx, signed(h.bob), stream.WithdrawParams{Recipient: h.bob, StreamID: id})
	require.NoError(t, err)

	h.now = epoch + 60
	_, err = h.program.CancelStream(ctx, signed(h.alice), stream.CancelParams{Sender: h.alice, StreamID: id})
	require.NoError(t, err)

	s, err := h.program.GetStream(id)
	require.NoError(t, err)
	assert.Equal(t, types.StreamCancelled, s.Status)
	assert.Equal(t, uint64(100), h.program.StreamEscrowBalance(id), "vested residue claimable")

	h.now = epoch + 70
	_, err = h.program.WithdrawStream(ctx, signed(h.bob), stream.WithdrawParams{Recipient: h.bob, StreamID: id})
	require.NoError(t, err)
	assert.Zero(t, h.program.StreamEscrowBalance(id))

	names := eventNames(h.sink)
	assert.Contains(t, names, "stream_created")
	assert.Contains(t, names, "stream_withdrawn")
	assert.Contains(t, names, "stream_cancelled")
}

func eventNames(sink *events.MemorySink) []string {
	evs := sink.Events()
	names := make([]string, 0, len(evs))
	for _, ev := range evs {
		names = append(names, ev.Name())
	}
	return names
}
