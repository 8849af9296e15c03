// Package stream implements linear-rate payment streams with pause, resume,
// cancel and pull-based withdrawal. The streamed total sits in a sibling
// escrow; the stream record only carries the schedule and the withdrawn
// cursor.
package stream

import (
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/events"
	"github.com/vitwit/agentfund/state"
	"github.com/vitwit/agentfund/types"
)

// CreateParams carries the payload of CreateStream. Sender signs, funds the
// record's rent and escrows the full total up front.
type CreateParams struct {
	Sender    solana.PublicKey
	StreamID  types.ID
	Recipient solana.PublicKey
	Total     uint64
	StartTime int64
	EndTime   int64
}

// Create opens an Active stream and escrows the total.
func Create(v *state.View, now int64, signers types.SignerSet, p CreateParams) (*types.PaymentStream, []events.Event, error) {
	if err := signers.Require(p.Sender); err != nil {
		return nil, nil, err
	}
	if p.Total == 0 {
		return nil, nil, types.Errf(types.ErrBadAmount, "stream total must be positive")
	}
	if p.EndTime <= p.StartTime {
		return nil, nil, types.Errf(types.ErrBadSchedule, "end_time %d is not after start_time %d", p.EndTime, p.StartTime)
	}
	if p.EndTime <= now {
		return nil, nil, types.Errf(types.ErrBadSchedule, "end_time %d is not in the future", p.EndTime)
	}

	addr, _, err := v.Derive.Stream(p.StreamID)
	if err != nil {
		return nil, nil, err
	}
	s := &types.PaymentStream{
		ID:          p.StreamID,
		Sender:      p.Sender,
		Recipient:   p.Recipient,
		TotalAmount: p.Total,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		Status:      types.StreamActive,
	}
	data, err := s.Marshal()
	if err != nil {
		return nil, nil, types.Errf(types.ErrBadSerialization, "encoding stream: %v", err)
	}
	if _, err := v.Tx.Create(addr, len(data), v.Derive.ProgramID(), p.Sender); err != nil {
		return nil, nil, err
	}
	if err := v.Tx.Write(addr, data); err != nil {
		return nil, nil, err
	}

	escrowAddr, _, err := v.Derive.StreamEscrow(p.StreamID)
	if err != nil {
		return nil, nil, err
	}
	if err := v.Tx.Transfer(p.Sender, escrowAddr, p.Total); err != nil {
		return nil, nil, err
	}

	ev := events.StreamCreated{
		StreamID:  p.StreamID,
		Sender:    p.Sender,
		Recipient: p.Recipient,
		Total:     p.Total,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
	}
	return s, []events.Event{ev}, nil
}

// WithdrawParams carries the payload of WithdrawStream. Recipient signs.
type WithdrawParams struct {
	Recipient solana.PublicKey
	StreamID  types.ID
}

// Withdraw pays the recipient everything currently withdrawable: the vested
// balance of an Active stream, or the residue left claimable in escrow after
// a Cancel. Draining the full total completes the stream.
func Withdraw(v *state.View, now int64, signers types.SignerSet, p WithdrawParams) (*types.PaymentStream, []events.Event, error) {
	if err := signers.Require(p.Recipient); err != nil {
		return nil, nil, err
	}

	s, addr, err := v.Stream(p.StreamID)
	if err != nil {
		return nil, nil, err
	}
	if s.Recipient != p.Recipient {
		return nil, nil, types.Errf(types.ErrNotParty, "signer is not the stream recipient")
	}

	escrowAddr, _, err := v.Derive.StreamEscrow(p.StreamID)
	if err != nil {
		return nil, nil, err
	}

	var amount uint64
	switch s.Status {
	case types.StreamActive:
		amount = s.AvailableAt(now)
		// The schedule's integer rate strands a remainder; once the stream
		// has run its course the whole escrow is withdrawable.
		if !s.IsPaused && now >= s.EndTime {
			amount = v.Tx.Balance(escrowAddr)
		}
	case types.StreamCancelled:
		amount = v.Tx.Balance(escrowAddr)
	default:
		return nil, nil, types.Errf(types.ErrStreamNotActive, "stream is %s", s.Status)
	}
	if amount == 0 {
		return nil, nil, types.Errf(types.ErrInsufficient, "nothing withdrawable")
	}

	if err := v.Tx.Transfer(escrowAddr, p.Recipient, amount); err != nil {
		return nil, nil, err
	}
	s.WithdrawnAmount += amount

	evs := []events.Event{events.StreamWithdrawn{StreamID: p.StreamID, Amount: amount}}
	if v.Tx.Balance(escrowAddr) == 0 {
		if err := v.Tx.Close(escrowAddr, s.Sender); err != nil {
			return nil, nil, err
		}
		if s.Status == types.StreamActive {
			s.Status = types.StreamCompleted
			evs = append(evs, events.StreamCompleted{StreamID: p.StreamID})
		}
	}
	if err := v.SaveStream(addr, s); err != nil {
		return nil, nil, err
	}

	return s, evs, nil
}

// PauseParams carries the payload of PauseStream. Sender signs.
type PauseParams struct {
	Sender   solana.PublicKey
	StreamID types.ID
}

// Pause suspends vesting. A paused stream reports zero available balance
// until resumed.
func Pause(v *state.View, now int64, signers types.SignerSet, p PauseParams) (*types.PaymentStream, []events.Event, error) {
	if err := signers.Require(p.Sender); err != nil {
		return nil, nil, err
	}

	s, addr, err := v.Stream(p.StreamID)
	if err != nil {
		return nil, nil, err
	}
	if s.Sender != p.Sender {
		return nil, nil, types.Errf(types.ErrNotParty, "signer is not the stream sender")
	}
	if s.Status != types.StreamActive {
		return nil, nil, types.Errf(types.ErrStreamNotActive, "stream is %s", s.Status)
	}
	if s.IsPaused {
		return nil, nil, types.Errf(types.ErrAlreadyPaused, "stream is already paused")
	}

	s.IsPaused = true
	s.PausedAt = now
	if err := v.SaveStream(addr, s); err != nil {
		return nil, nil, err
	}

	return s, []events.Event{events.StreamPaused{StreamID: p.StreamID}}, nil
}

// ResumeParams carries the payload of ResumeStream. Sender signs.
type ResumeParams struct {
	Sender   solana.PublicKey
	StreamID types.ID
}

// Resume lifts a pause and shifts end_time by the pause duration. Vesting is
// still measured from start_time at the rate of the lengthened schedule, so
// the paused interval is not excluded from the elapsed time.
func Resume(v *state.View, now int64, signers types.SignerSet, p ResumeParams) (*types.PaymentStream, []events.Event, error) {
	if err := signers.Require(p.Sender); err != nil {
		return nil, nil, err
	}

	s, addr, err := v.Stream(p.StreamID)
	if err != nil {
		return nil, nil, err
	}
	if s.Sender != p.Sender {
		return nil, nil, types.Errf(types.ErrNotParty, "signer is not the stream sender")
	}
	if s.Status != types.StreamActive {
		return nil, nil, types.Errf(types.ErrStreamNotActive, "stream is %s", s.Status)
	}
	if !s.IsPaused {
		return nil, nil, types.Errf(types.ErrNotPaused, "stream is not paused")
	}

	s.EndTime += now - s.PausedAt
	s.IsPaused = false
	s.PausedAt = 0
	if err := v.SaveStream(addr, s); err != nil {
		return nil, nil, err
	}

	return s, []events.Event{events.StreamResumed{StreamID: p.StreamID, EndTime: s.EndTime}}, nil
}

// CancelParams carries the payload of CancelStream. Sender signs.
type CancelParams struct {
	Sender   solana.PublicKey
	StreamID types.ID
}

// Cancel stops the stream and refunds to the sender everything that is
// neither withdrawn nor available at the moment of cancellation. The
// available amount stays in escrow, claimable by the recipient through a
// follow-up Withdraw. A paused stream has nothing available, so cancelling it
// refunds everything not yet withdrawn.
func Cancel(v *state.View, now int64, signers types.SignerSet, p CancelParams) (*types.PaymentStream, []events.Event, error) {
	if err := signers.Require(p.Sender); err != nil {
		return nil, nil, err
	}

	s, addr, err := v.Stream(p.StreamID)
	if err != nil {
		return nil, nil, err
	}
	if s.Sender != p.Sender {
		return nil, nil, types.Errf(types.ErrNotParty, "signer is not the stream sender")
	}
	if s.Status != types.StreamActive {
		return nil, nil, types.Errf(types.ErrStreamNotActive, "stream is %s", s.Status)
	}

	available := s.AvailableAt(now)
	refund := s.TotalAmount - s.WithdrawnAmount - available

	escrowAddr, _, err := v.Derive.StreamEscrow(p.StreamID)
	if err != nil {
		return nil, nil, err
	}
	if refund > 0 {
		if err := v.Tx.Transfer(escrowAddr, s.Sender, refund); err != nil {
			return nil, nil, err
		}
	}

	s.Status = types.StreamCancelled
	s.IsPaused = false
	s.PausedAt = 0
	if v.Tx.Balance(escrowAddr) == 0 {
		if err := v.Tx.Close(escrowAddr, s.Sender); err != nil {
			return nil, nil, err
		}
	}
	if err := v.SaveStream(addr, s); err != nil {
		return nil, nil, err
	}

	return s, []events.Event{events.StreamCancelled{StreamID: p.StreamID, Refunded: refund}}, nil
}
