// Package types defines the persistent records, status machines, protocol
// constants and error codes of the agentfund core, together with their
// canonical binary layout.
package types

import (
	"math/bits"

	"github.com/gagliardetto/solana-go"
)

// Protocol limits. Amounts everywhere are non-negative integers in base
// units of the native asset; 1e9 base units = 1 unit.
const (
	// MaxBatchSize caps the number of invoices in one batch settlement.
	MaxBatchSize = 50

	// MaxMemoLength caps invoice memos, in bytes.
	MaxMemoLength = 256

	// MaxNameLength caps agent display names, in bytes.
	MaxNameLength = 32

	// MaxDescriptionLength caps agent descriptions, in bytes.
	MaxDescriptionLength = 256

	// MaxCapabilities caps the capability list of an agent profile.
	MaxCapabilities = 10

	// MaxCapabilityLength caps a single capability tag, in bytes.
	MaxCapabilityLength = 32

	// DisputeWindowSeconds is the interval from request creation within
	// which a dispute may be opened.
	DisputeWindowSeconds int64 = 86_400

	// BaseUnitsPerToken is the nano-scale of the native asset.
	BaseUnitsPerToken uint64 = 1_000_000_000
)

// ID is a client-chosen 32-byte identifier for invoices, batches, requests
// and streams.
type ID [32]byte

// Bytes returns the identifier as a slice, for use as a derivation seed.
func (id ID) Bytes() []byte { return id[:] }

// Treasury is the per-principal accounting record. It is not a funds vault:
// value paid to a principal lands on the principal's own account, the
// treasury only tracks cumulative totals and the pending-invoice count.
type Treasury struct {
	Owner           solana.PublicKey
	Bump            uint8
	TotalReceived   uint64
	TotalSettled    uint64
	PendingInvoices uint64
	CreatedAt       int64
}

// Invoice is a single obligation from a future payer to Recipient, valid
// until ExpiresAt. PaidAt and Payer are set exactly when Status is Paid.
type Invoice struct {
	ID        ID
	Recipient solana.PublicKey
	Amount    uint64
	Memo      string
	Status    InvoiceStatus
	CreatedAt int64
	ExpiresAt int64
	PaidAt    *int64
	Payer     *solana.PublicKey
}

// StatusAt reports the effective status at time now: a Pending invoice past
// its expiry reads as Expired whether or not the transition was persisted.
func (inv *Invoice) StatusAt(now int64) InvoiceStatus {
	if inv.Status == InvoicePending && now > inv.ExpiresAt {
		return InvoiceExpired
	}
	return inv.Status
}

// BatchSettlement is the immutable statement that a set of previously-paid
// invoices to Recipient are reconciled. Batches never move value.
type BatchSettlement struct {
	ID          ID
	Settler     solana.PublicKey
	Recipient   solana.PublicKey
	InvoiceIDs  []ID
	TotalAmount uint64
	SettledAt   int64
}

// AgentProfile is the registry record of a service agent.
type AgentProfile struct {
	Owner         solana.PublicKey
	Treasury      solana.PublicKey
	Bump          uint8
	Name          string
	Description   string
	Capabilities  []string
	BasePrice     uint64
	IsActive      bool
	TotalRequests uint64
	TotalEarnings uint64
	RegisteredAt  int64
	LastActiveAt  int64
}

// HasCapability reports whether tag is in the profile's capability set.
func (p *AgentProfile) HasCapability(tag string) bool {
	for _, c := range p.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// ServiceRequest is the escrowed request/deliver/dispute record between a
// requester and a provider. Arbiter, when set at creation, is the only
// principal allowed to resolve a dispute over this request.
type ServiceRequest struct {
	ID          ID
	Requester   solana.PublicKey
	Provider    solana.PublicKey
	Capability  string
	Amount      uint64
	Status      RequestStatus
	CreatedAt   int64
	CompletedAt *int64
	ResultHash  *[32]byte
	Arbiter     *solana.PublicKey
}

// Dispute records a contested service request and, once resolved, the
// outcome applied to its escrow.
type Dispute struct {
	RequestID     ID
	Initiator     solana.PublicKey
	OpenedAt      int64
	Resolution    Resolution
	ResolvedAt    *int64
	WindowSeconds int64
}

// Resolved reports whether the dispute has been closed.
func (d *Dispute) Resolved() bool {
	return d.Resolution.Kind != ResolutionUnresolved
}

// SplitPayouts computes the provider and requester shares of amount under a
// Split resolution. Truncation favours the requester: the provider receives
// floor(amount * num / den) and the requester the exact remainder, so the
// two shares always sum to amount.
func SplitPayouts(amount uint64, r Resolution) (provider, requester uint64) {
	hi, lo := bits.Mul64(amount, r.Numerator)
	q, _ := bits.Div64(hi, lo, r.Denominator)
	return q, amount - q
}

// PaymentStream releases TotalAmount linearly from Sender to Recipient
// between StartTime and EndTime. The release rate uses integer division;
// once the schedule completes the full total becomes withdrawable, so the
// final withdrawal absorbs the division remainder.
type PaymentStream struct {
	ID              ID
	Sender          solana.PublicKey
	Recipient       solana.PublicKey
	TotalAmount     uint64
	StartTime       int64
	EndTime         int64
	WithdrawnAmount uint64
	IsPaused        bool
	PausedAt        int64
	Status          StreamStatus
}

// Rate returns the per-second release rate, truncated.
func (s *PaymentStream) Rate() uint64 {
	dur := s.EndTime - s.StartTime
	if dur <= 0 {
		return 0
	}
	return s.TotalAmount / uint64(dur)
}

// AvailableAt returns the amount the recipient could withdraw at time t. A
// paused or non-active stream reports zero; claimability of the residue left
// in escrow after Cancel is handled by the withdraw path, not here.
func (s *PaymentStream) AvailableAt(t int64) uint64 {
	if s.IsPaused || s.Status != StreamActive {
		return 0
	}
	if t < s.StartTime {
		return 0
	}
	var earned uint64
	if t >= s.EndTime {
		earned = s.TotalAmount
	} else {
		earned = s.Rate() * uint64(t-s.StartTime)
	}
	if earned <= s.WithdrawnAmount {
		return 0
	}
	return earned - s.WithdrawnAmount
}
