// Package agentfund implements the core state machine of the agentfund
// payment protocol: per-principal treasuries, time-bound invoices, batch
// settlements, an agent capability registry with escrowed service requests
// and dispute resolution, and linear-rate payment streams.
//
// Every entry point is deterministic and atomic: it reads the clock once,
// validates signers, derives the records it touches, and either commits all
// of its writes or none of them.
package agentfund

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/address"
	"github.com/vitwit/agentfund/batch"
	"github.com/vitwit/agentfund/events"
	"github.com/vitwit/agentfund/invoice"
	"github.com/vitwit/agentfund/logger"
	"github.com/vitwit/agentfund/metrics"
	"github.com/vitwit/agentfund/registry"
	"github.com/vitwit/agentfund/state"
	"github.com/vitwit/agentfund/store"
	"github.com/vitwit/agentfund/stream"
	"github.com/vitwit/agentfund/treasury"
	"github.com/vitwit/agentfund/types"
)

// DefaultProgramID is the deployed identity of the protocol; all record
// addresses derive from it unless WithProgramID overrides it.
var DefaultProgramID = solana.MustPublicKeyFromBase58("5LqS68L9kfrB5h2D3NjJ9d8jEJz7egkyXUWEySGNZUeg")

// Program is the protocol core bound to one account store.
type Program struct {
	programID solana.PublicKey
	store     *store.Store
	derive    *address.Deriver
	log       logger.Logger
	metrics   metrics.Recorder
	sink      events.Sink
	clock     func() int64
}

// New creates a program over a fresh account store.
func New(opts ...Option) *Program {
	p := &Program{
		programID: DefaultProgramID,
		store:     store.New(),
		log:       logger.NoopLogger{},
		metrics:   metrics.NoopRecorder{},
		sink:      events.NoopSink{},
		clock:     func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(p)
	}
	p.derive = address.New(p.programID)
	return p
}

// ProgramID returns the identity record addresses are derived under.
func (p *Program) ProgramID() solana.PublicKey { return p.programID }

// Deriver exposes the program's address deriver.
func (p *Program) Deriver() *address.Deriver { return p.derive }

// Credit deposits base units onto an account. This is the host's funding
// surface (genesis allocations, faucets); no entry point can reach it.
func (p *Program) Credit(addr solana.PublicKey, amount uint64) {
	p.store.Credit(addr, amount)
}

// Balance returns the committed balance of an account.
func (p *Program) Balance(addr solana.PublicKey) uint64 {
	return p.store.Balance(addr)
}

// AccountData returns a copy of the record bytes at addr, failing NotFound
// if the account does not exist.
func (p *Program) AccountData(addr solana.PublicKey) ([]byte, error) {
	var out []byte
	err := p.view(func(v *state.View, _ int64) error {
		acc, err := v.Tx.Load(addr)
		if err != nil {
			return err
		}
		out = append([]byte(nil), acc.Data...)
		return nil
	})
	return out, err
}

// run executes one entry point: single clock reading, staged writes, commit
// on success, rollback and no events on any error.
func (p *Program) run(ctx context.Context, op string, fn func(v *state.View, now int64) ([]events.Event, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	now := p.clock()

	tx := p.store.Begin()
	v := state.NewView(tx, p.derive)
	evs, err := fn(v, now)
	if err != nil {
		tx.Abort()
		p.metrics.IncCounter(op, map[string]string{"outcome": "rejected"})
		p.log.Warn("entry point rejected", map[string]any{"op": op, "error": err.Error()})
		return err
	}
	tx.Commit()

	p.sink.Publish(evs)
	p.metrics.IncCounter(op, map[string]string{"outcome": "ok"})
	p.metrics.ObserveLatency(op, time.Since(start), nil)
	p.log.Info("entry point committed", map[string]any{"op": op})
	return nil
}

// view runs fn against a read-only snapshot.
func (p *Program) view(fn func(v *state.View, now int64) error) error {
	tx := p.store.Begin()
	defer tx.Abort()
	return fn(state.NewView(tx, p.derive), p.clock())
}

// InitializeTreasury creates the signer's treasury record.
func (p *Program) InitializeTreasury(ctx context.Context, signers types.SignerSet, params treasury.InitializeParams) (*types.Treasury, error) {
	var out *types.Treasury
	err := p.run(ctx, "initialize_treasury", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = treasury.Initialize(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// CreateInvoice creates a Pending invoice for the signing recipient.
func (p *Program) CreateInvoice(ctx context.Context, signers types.SignerSet, params invoice.CreateParams) (*types.Invoice, error) {
	var out *types.Invoice
	err := p.run(ctx, "create_invoice", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = invoice.Create(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// PayInvoice pays a Pending, unexpired invoice from the signing payer.
func (p *Program) PayInvoice(ctx context.Context, signers types.SignerSet, params invoice.PayParams) (*types.Invoice, error) {
	var out *types.Invoice
	err := p.run(ctx, "pay_invoice", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = invoice.Pay(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// CancelInvoice cancels a Pending invoice; recipient only.
func (p *Program) CancelInvoice(ctx context.Context, signers types.SignerSet, params invoice.CancelParams) (*types.Invoice, error) {
	var out *types.Invoice
	err := p.run(ctx, "cancel_invoice", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = invoice.Cancel(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// ExpireInvoice persists the expiry of a Pending invoice whose deadline has
// passed. Permissionless.
func (p *Program) ExpireInvoice(ctx context.Context, signers types.SignerSet, params invoice.ExpireParams) (*types.Invoice, error) {
	var out *types.Invoice
	err := p.run(ctx, "expire_invoice", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = invoice.Expire(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// SettleBatch reconciles a set of paid invoices into one settlement record.
func (p *Program) SettleBatch(ctx context.Context, signers types.SignerSet, params batch.SettleParams) (*types.BatchSettlement, error) {
	var out *types.BatchSettlement
	err := p.run(ctx, "settle_batch", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = batch.Settle(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// RegisterAgent creates the signer's agent profile.
func (p *Program) RegisterAgent(ctx context.Context, signers types.SignerSet, params registry.RegisterParams) (*types.AgentProfile, error) {
	var out *types.AgentProfile
	err := p.run(ctx, "register_agent", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = registry.Register(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// UpdateAgentProfile mutates the updatable fields of the signer's profile.
func (p *Program) UpdateAgentProfile(ctx context.Context, signers types.SignerSet, params registry.UpdateParams) (*types.AgentProfile, error) {
	var out *types.AgentProfile
	err := p.run(ctx, "update_agent_profile", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = registry.Update(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// RequestService opens an escrowed service request against a provider.
func (p *Program) RequestService(ctx context.Context, signers types.SignerSet, params registry.RequestParams) (*types.ServiceRequest, error) {
	var out *types.ServiceRequest
	err := p.run(ctx, "request_service", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = registry.Request(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// StartService moves a Pending request to InProgress; provider only.
func (p *Program) StartService(ctx context.Context, signers types.SignerSet, params registry.StartParams) (*types.ServiceRequest, error) {
	var out *types.ServiceRequest
	err := p.run(ctx, "start_service", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = registry.Start(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// CompleteService delivers a request and releases the escrow to the
// provider.
func (p *Program) CompleteService(ctx context.Context, signers types.SignerSet, params registry.CompleteParams) (*types.ServiceRequest, error) {
	var out *types.ServiceRequest
	err := p.run(ctx, "complete_service", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = registry.Complete(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// InitiateDispute opens a dispute over a live request; parties only, within
// the window.
func (p *Program) InitiateDispute(ctx context.Context, signers types.SignerSet, params registry.InitiateDisputeParams) (*types.Dispute, error) {
	var out *types.Dispute
	err := p.run(ctx, "initiate_dispute", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = registry.InitiateDispute(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// ResolveDispute applies a resolution to a disputed request and drains its
// escrow.
func (p *Program) ResolveDispute(ctx context.Context, signers types.SignerSet, params registry.ResolveDisputeParams) (*types.Dispute, error) {
	var out *types.Dispute
	err := p.run(ctx, "resolve_dispute", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = registry.ResolveDispute(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// CreateStream opens an escrowed linear payment stream.
func (p *Program) CreateStream(ctx context.Context, signers types.SignerSet, params stream.CreateParams) (*types.PaymentStream, error) {
	var out *types.PaymentStream
	err := p.run(ctx, "create_stream", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = stream.Create(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// WithdrawStream pays the recipient everything currently withdrawable.
func (p *Program) WithdrawStream(ctx context.Context, signers types.SignerSet, params stream.WithdrawParams) (*types.PaymentStream, error) {
	var out *types.PaymentStream
	err := p.run(ctx, "withdraw_stream", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = stream.Withdraw(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// PauseStream suspends vesting; sender only.
func (p *Program) PauseStream(ctx context.Context, signers types.SignerSet, params stream.PauseParams) (*types.PaymentStream, error) {
	var out *types.PaymentStream
	err := p.run(ctx, "pause_stream", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = stream.Pause(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// ResumeStream lifts a pause and shifts the schedule; sender only.
func (p *Program) ResumeStream(ctx context.Context, signers types.SignerSet, params stream.ResumeParams) (*types.PaymentStream, error) {
	var out *types.PaymentStream
	err := p.run(ctx, "resume_stream", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = stream.Resume(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// CancelStream stops a stream and refunds the unvested remainder; sender
// only.
func (p *Program) CancelStream(ctx context.Context, signers types.SignerSet, params stream.CancelParams) (*types.PaymentStream, error) {
	var out *types.PaymentStream
	err := p.run(ctx, "cancel_stream", func(v *state.View, now int64) ([]events.Event, error) {
		var evs []events.Event
		var err error
		out, evs, err = stream.Cancel(v, now, signers, params)
		return evs, err
	})
	return out, err
}

// GetTreasury reads a treasury record.
func (p *Program) GetTreasury(owner solana.PublicKey) (*types.Treasury, error) {
	var out *types.Treasury
	err := p.view(func(v *state.View, _ int64) error {
		var err error
		out, _, err = v.Treasury(owner)
		return err
	})
	return out, err
}

// GetInvoice reads an invoice record. The returned status is the effective
// one: a Pending invoice past its expiry reads as Expired even when the
// transition was never persisted.
func (p *Program) GetInvoice(id types.ID) (*types.Invoice, error) {
	var out *types.Invoice
	err := p.view(func(v *state.View, now int64) error {
		inv, _, err := v.Invoice(id)
		if err != nil {
			return err
		}
		inv.Status = inv.StatusAt(now)
		out = inv
		return nil
	})
	return out, err
}

// GetBatch reads a batch settlement record.
func (p *Program) GetBatch(id types.ID) (*types.BatchSettlement, error) {
	var out *types.BatchSettlement
	err := p.view(func(v *state.View, _ int64) error {
		var err error
		out, _, err = v.Batch(id)
		return err
	})
	return out, err
}

// GetAgent reads an agent profile record.
func (p *Program) GetAgent(owner solana.PublicKey) (*types.AgentProfile, error) {
	var out *types.AgentProfile
	err := p.view(func(v *state.View, _ int64) error {
		var err error
		out, _, err = v.Agent(owner)
		return err
	})
	return out, err
}

// GetRequest reads a service request record.
func (p *Program) GetRequest(id types.ID) (*types.ServiceRequest, error) {
	var out *types.ServiceRequest
	err := p.view(func(v *state.View, _ int64) error {
		var err error
		out, _, err = v.Request(id)
		return err
	})
	return out, err
}

// GetDispute reads a dispute record.
func (p *Program) GetDispute(requestID types.ID) (*types.Dispute, error) {
	var out *types.Dispute
	err := p.view(func(v *state.View, _ int64) error {
		var err error
		out, _, err = v.Dispute(requestID)
		return err
	})
	return out, err
}

// GetStream reads a payment stream record.
func (p *Program) GetStream(id types.ID) (*types.PaymentStream, error) {
	var out *types.PaymentStream
	err := p.view(func(v *state.View, _ int64) error {
		var err error
		out, _, err = v.Stream(id)
		return err
	})
	return out, err
}

// RequestEscrowBalance returns the balance held for a service request.
func (p *Program) RequestEscrowBalance(requestID types.ID) uint64 {
	addr, _, err := p.derive.RequestEscrow(requestID)
	if err != nil {
		return 0
	}
	return p.store.Balance(addr)
}

// StreamEscrowBalance returns the balance held for a payment stream.
func (p *Program) StreamEscrowBalance(streamID types.ID) uint64 {
	addr, _, err := p.derive.StreamEscrow(streamID)
	if err != nil {
		return 0
	}
	return p.store.Balance(addr)
}
