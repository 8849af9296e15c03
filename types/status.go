package types

// InvoiceStatus tracks the lifecycle of a single invoice. Pending is the only
// non-terminal state.
type InvoiceStatus uint8

const (
	InvoicePending InvoiceStatus = iota
	InvoicePaid
	InvoiceExpired
	InvoiceCancelled
)

func (s InvoiceStatus) String() string {
	switch s {
	case InvoicePending:
		return "pending"
	case InvoicePaid:
		return "paid"
	case InvoiceExpired:
		return "expired"
	case InvoiceCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s InvoiceStatus) Terminal() bool {
	return s != InvoicePending
}

// RequestStatus tracks the lifecycle of a service request.
type RequestStatus uint8

const (
	RequestPending RequestStatus = iota
	RequestInProgress
	RequestCompleted
	RequestDisputed
	RequestRefunded
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestInProgress:
		return "in_progress"
	case RequestCompleted:
		return "completed"
	case RequestDisputed:
		return "disputed"
	case RequestRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Disputable reports whether a dispute may still be opened against the
// request. Completed, Disputed and Refunded requests cannot be (re-)disputed.
func (s RequestStatus) Disputable() bool {
	return s == RequestPending || s == RequestInProgress
}

// ResolutionKind discriminates the outcome of a resolved dispute.
type ResolutionKind uint8

const (
	ResolutionUnresolved ResolutionKind = iota
	ResolutionRefundRequester
	ResolutionPayProvider
	ResolutionSplit
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionUnresolved:
		return "unresolved"
	case ResolutionRefundRequester:
		return "refund_requester"
	case ResolutionPayProvider:
		return "pay_provider"
	case ResolutionSplit:
		return "split"
	default:
		return "unknown"
	}
}

// Resolution is the outcome applied to a disputed request. For Split, the
// provider receives floor(amount * Numerator / Denominator) and the requester
// the remainder, so truncation always favours the requester.
type Resolution struct {
	Kind        ResolutionKind
	Numerator   uint64
	Denominator uint64
}

// Validate checks the resolution is one of the accepted outcomes; Split
// ratios must lie strictly inside (0, 1).
func (r Resolution) Validate() error {
	switch r.Kind {
	case ResolutionRefundRequester, ResolutionPayProvider:
		return nil
	case ResolutionSplit:
		if r.Denominator == 0 || r.Numerator == 0 || r.Numerator >= r.Denominator {
			return Errf(ErrBadResolution, "split ratio %d/%d outside (0,1)", r.Numerator, r.Denominator)
		}
		return nil
	default:
		return Errf(ErrBadResolution, "unknown resolution kind %d", r.Kind)
	}
}

// StreamStatus tracks the lifecycle of a payment stream.
type StreamStatus uint8

const (
	StreamActive StreamStatus = iota
	StreamCompleted
	StreamCancelled
)

func (s StreamStatus) String() string {
	switch s {
	case StreamActive:
		return "active"
	case StreamCompleted:
		return "completed"
	case StreamCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
