// Package events defines the typed events appended by state-changing
// operations and the sink subscribers receive them through. Events are for
// subscribers only: the absence of a sink never affects state, and a failed
// entry point emits nothing.
package events

import (
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/types"
)

// Event is one entry in a transaction's log stream.
type Event interface {
	// Name returns the stable operation name of the event.
	Name() string
}

// Sink receives the event log of each committed transaction, in order.
type Sink interface {
	Publish(events []Event)
}

// NoopSink discards everything.
type NoopSink struct{}

func (NoopSink) Publish([]Event) {}

// MemorySink buffers published events for inspection, mainly in tests and
// embedded clients.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Publish(evs []Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evs...)
}

// Events returns a snapshot of everything published so far.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

type TreasuryInitialized struct {
	Owner solana.PublicKey
}

func (TreasuryInitialized) Name() string { return "treasury_initialized" }

type InvoiceCreated struct {
	InvoiceID types.ID
	Recipient solana.PublicKey
	Amount    uint64
	ExpiresAt int64
}

func (InvoiceCreated) Name() string { return "invoice_created" }

type InvoicePaid struct {
	InvoiceID types.ID
	Payer     solana.PublicKey
	Amount    uint64
}

func (InvoicePaid) Name() string { return "invoice_paid" }

type InvoiceCancelled struct {
	InvoiceID types.ID
}

func (InvoiceCancelled) Name() string { return "invoice_cancelled" }

type InvoiceExpired struct {
	InvoiceID types.ID
}

func (InvoiceExpired) Name() string { return "invoice_expired" }

type BatchSettled struct {
	BatchID      types.ID
	Recipient    solana.PublicKey
	InvoiceCount uint32
	TotalAmount  uint64
}

func (BatchSettled) Name() string { return "batch_settled" }

type AgentRegistered struct {
	Agent        solana.PublicKey
	DisplayName  string
	Capabilities []string
	BasePrice    uint64
}

func (AgentRegistered) Name() string { return "agent_registered" }

type AgentUpdated struct {
	Agent    solana.PublicKey
	IsActive bool
}

func (AgentUpdated) Name() string { return "agent_updated" }

type ServiceRequested struct {
	RequestID  types.ID
	Requester  solana.PublicKey
	Provider   solana.PublicKey
	Capability string
	Amount     uint64
}

func (ServiceRequested) Name() string { return "service_requested" }

type ServiceStarted struct {
	RequestID types.ID
	Provider  solana.PublicKey
}

func (ServiceStarted) Name() string { return "service_started" }

type ServiceCompleted struct {
	RequestID types.ID
	Provider  solana.PublicKey
	Amount    uint64
}

func (ServiceCompleted) Name() string { return "service_completed" }

type DisputeInitiated struct {
	RequestID types.ID
	Initiator solana.PublicKey
}

func (DisputeInitiated) Name() string { return "dispute_initiated" }

type DisputeResolved struct {
	RequestID       types.ID
	Resolution      types.ResolutionKind
	ProviderPayout  uint64
	RequesterPayout uint64
}

func (DisputeResolved) Name() string { return "dispute_resolved" }

type StreamCreated struct {
	StreamID  types.ID
	Sender    solana.PublicKey
	Recipient solana.PublicKey
	Total     uint64
	StartTime int64
	EndTime   int64
}

func (StreamCreated) Name() string { return "stream_created" }

type StreamWithdrawn struct {
	StreamID types.ID
	Amount   uint64
}

func (StreamWithdrawn) Name() string { return "stream_withdrawn" }

type StreamPaused struct {
	StreamID types.ID
}

func (StreamPaused) Name() string { return "stream_paused" }

type StreamResumed struct {
	StreamID types.ID
	EndTime  int64
}

func (StreamResumed) Name() string { return "stream_resumed" }

type StreamCancelled struct {
	StreamID types.ID
	Refunded uint64
}

func (StreamCancelled) Name() string { return "stream_cancelled" }

type StreamCompleted struct {
	StreamID types.ID
}

func (StreamCompleted) Name() string { return "stream_completed" }
