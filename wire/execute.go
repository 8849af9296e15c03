package wire

import (
	"context"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"

	agentfund "github.com/vitwit/agentfund"
	"github.com/vitwit/agentfund/batch"
	"github.com/vitwit/agentfund/invoice"
	"github.com/vitwit/agentfund/registry"
	"github.com/vitwit/agentfund/stream"
	"github.com/vitwit/agentfund/treasury"
	"github.com/vitwit/agentfund/types"
)

var validate = validator.New()

func checkShape(payload any) error {
	if err := validate.Struct(payload); err != nil {
		return types.Errf(types.ErrBadSerialization, "payload shape: %v", err)
	}
	return nil
}

func signerSetOf(metas []AccountMeta) types.SignerSet {
	s := make(types.SignerSet)
	for _, m := range metas {
		if m.IsSigner {
			s[m.Pubkey] = struct{}{}
		}
	}
	return s
}

func requireAccounts(ins Instruction, n int) error {
	if len(ins.Accounts) != n {
		return types.Errf(types.ErrBadSerialization, "expected %d account handles, got %d", n, len(ins.Accounts))
	}
	return nil
}

func requireSigner(m AccountMeta) error {
	if !m.IsSigner {
		return types.Errf(types.ErrMissingSigner, "handle %s must be a signer", m.Pubkey)
	}
	return nil
}

func requireMatch(m AccountMeta, want solana.PublicKey, handle string) error {
	if m.Pubkey != want {
		return types.Errf(types.ErrAddressMismatch, "%s handle is %s, derived %s", handle, m.Pubkey, want)
	}
	return nil
}

// invoiceAt recovers the invoice record behind an account handle, so ops
// whose payload carries no identifier can resolve the id from the handle.
func invoiceAt(p *agentfund.Program, addr solana.PublicKey) (*types.Invoice, error) {
	data, err := p.AccountData(addr)
	if err != nil {
		return nil, err
	}
	return types.DecodeInvoice(data)
}

func requestAt(p *agentfund.Program, addr solana.PublicKey) (*types.ServiceRequest, error) {
	data, err := p.AccountData(addr)
	if err != nil {
		return nil, err
	}
	return types.DecodeServiceRequest(data)
}

func profileAt(p *agentfund.Program, addr solana.PublicKey) (*types.AgentProfile, error) {
	data, err := p.AccountData(addr)
	if err != nil {
		return nil, err
	}
	return types.DecodeAgentProfile(data)
}

func streamAt(p *agentfund.Program, addr solana.PublicKey) (*types.PaymentStream, error) {
	data, err := p.AccountData(addr)
	if err != nil {
		return nil, err
	}
	return types.DecodePaymentStream(data)
}

// Execute decodes one instruction and routes it to the program. The handle
// lists and payload layouts are normative; any deviation fails with a shape
// error before any state is touched.
func Execute(ctx context.Context, p *agentfund.Program, ins Instruction) error {
	if ins.ProgramID != p.ProgramID() {
		return types.Errf(types.ErrAddressMismatch, "instruction targets program %s", ins.ProgramID)
	}
	if len(ins.Data) < 8 {
		return types.Errf(types.ErrBadSerialization, "instruction data shorter than opcode")
	}
	var op Opcode
	copy(op[:], ins.Data[:8])
	dec := bin.NewBinDecoder(ins.Data[8:])
	signers := signerSetOf(ins.Accounts)

	switch op {
	case OpInitializeTreasury:
		return execInitializeTreasury(ctx, p, ins, dec, signers)
	case OpCreateInvoice:
		return execCreateInvoice(ctx, p, ins, dec, signers)
	case OpPayInvoice:
		return execPayInvoice(ctx, p, ins, signers)
	case OpCancelInvoice:
		return execCancelInvoice(ctx, p, ins, signers)
	case OpExpireInvoice:
		return execExpireInvoice(ctx, p, ins, signers)
	case OpSettleBatch:
		return execSettleBatch(ctx, p, ins, dec, signers)
	case OpRegisterAgent:
		return execRegisterAgent(ctx, p, ins, dec, signers)
	case OpUpdateAgentProfile:
		return execUpdateAgentProfile(ctx, p, ins, dec, signers)
	case OpRequestService:
		return execRequestService(ctx, p, ins, dec, signers)
	case OpStartService:
		return execStartService(ctx, p, ins, signers)
	case OpCompleteService:
		return execCompleteService(ctx, p, ins, dec, signers)
	case OpInitiateDispute:
		return execInitiateDispute(ctx, p, ins, signers)
	case OpResolveDispute:
		return execResolveDispute(ctx, p, ins, dec, signers)
	case OpCreateStream:
		return execCreateStream(ctx, p, ins, dec, signers)
	case OpWithdrawStream:
		return execWithdrawStream(ctx, p, ins, signers)
	case OpPauseStream:
		return execPauseStream(ctx, p, ins, signers)
	case OpResumeStream:
		return execResumeStream(ctx, p, ins, signers)
	case OpCancelStream:
		return execCancelStream(ctx, p, ins, signers)
	default:
		return types.Errf(types.ErrBadSerialization, "unknown opcode")
	}
}

func execInitializeTreasury(ctx context.Context, p *agentfund.Program, ins Instruction, dec *bin.Decoder, signers types.SignerSet) error {
	bump, err := dec.ReadUint8()
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "payload: %v", err)
	}
	if err := requireAccounts(ins, 2); err != nil {
		return err
	}
	owner := ins.Accounts[1]
	if err := requireSigner(owner); err != nil {
		return err
	}
	addr, derivedBump, err := p.Deriver().Treasury(owner.Pubkey)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[0], addr, "treasury"); err != nil {
		return err
	}
	if bump != derivedBump {
		return types.Errf(types.ErrAddressMismatch, "bump %d does not match derivation %d", bump, derivedBump)
	}
	_, err = p.InitializeTreasury(ctx, signers, treasury.InitializeParams{Owner: owner.Pubkey})
	return err
}

func execCreateInvoice(ctx context.Context, p *agentfund.Program, ins Instruction, dec *bin.Decoder, signers types.SignerSet) error {
	payload, err := decodeCreateInvoicePayload(dec)
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "payload: %v", err)
	}
	if err := requireAccounts(ins, 3); err != nil {
		return err
	}
	recipient := ins.Accounts[2]
	if err := requireSigner(recipient); err != nil {
		return err
	}
	invAddr, _, err := p.Deriver().Invoice(payload.ID)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[0], invAddr, "invoice"); err != nil {
		return err
	}
	treasAddr, _, err := p.Deriver().Treasury(recipient.Pubkey)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[1], treasAddr, "treasury"); err != nil {
		return err
	}
	_, err = p.CreateInvoice(ctx, signers, invoice.CreateParams{
		Recipient: recipient.Pubkey,
		ID:        payload.ID,
		Amount:    payload.Amount,
		Memo:      payload.Memo,
		ExpiresAt: payload.ExpiresAt,
	})
	return err
}

func execPayInvoice(ctx context.Context, p *agentfund.Program, ins Instruction, signers types.SignerSet) error {
	if err := requireAccounts(ins, 4); err != nil {
		return err
	}
	payer := ins.Accounts[2]
	if err := requireSigner(payer); err != nil {
		return err
	}
	inv, err := invoiceAt(p, ins.Accounts[0].Pubkey)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[3], inv.Recipient, "recipient"); err != nil {
		return err
	}
	treasAddr, _, err := p.Deriver().Treasury(inv.Recipient)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[1], treasAddr, "treasury"); err != nil {
		return err
	}
	_, err = p.PayInvoice(ctx, signers, invoice.PayParams{Payer: payer.Pubkey, ID: inv.ID})
	return err
}

func execCancelInvoice(ctx context.Context, p *agentfund.Program, ins Instruction, signers types.SignerSet) error {
	if err := requireAccounts(ins, 3); err != nil {
		return err
	}
	recipient := ins.Accounts[2]
	if err := requireSigner(recipient); err != nil {
		return err
	}
	inv, err := invoiceAt(p, ins.Accounts[0].Pubkey)
	if err != nil {
		return err
	}
	treasAddr, _, err := p.Deriver().Treasury(inv.Recipient)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[1], treasAddr, "treasury"); err != nil {
		return err
	}
	_, err = p.CancelInvoice(ctx, signers, invoice.CancelParams{Recipient: recipient.Pubkey, ID: inv.ID})
	return err
}

func execExpireInvoice(ctx context.Context, p *agentfund.Program, ins Instruction, signers types.SignerSet) error {
	if err := requireAccounts(ins, 2); err != nil {
		return err
	}
	inv, err := invoiceAt(p, ins.Accounts[0].Pubkey)
	if err != nil {
		return err
	}
	treasAddr, _, err := p.Deriver().Treasury(inv.Recipient)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[1], treasAddr, "treasury"); err != nil {
		return err
	}
	_, err = p.ExpireInvoice(ctx, signers, invoice.ExpireParams{ID: inv.ID})
	return err
}

func execSettleBatch(ctx context.Context, p *agentfund.Program, ins Instruction, dec *bin.Decoder, signers types.SignerSet) error {
	payload, err := decodeSettleBatchPayload(dec)
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "payload: %v", err)
	}
	if err := requireAccounts(ins, 4); err != nil {
		return err
	}
	settler := ins.Accounts[2]
	if err := requireSigner(settler); err != nil {
		return err
	}
	recipient := ins.Accounts[3]
	batchAddr, _, err := p.Deriver().Batch(payload.BatchID)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[0], batchAddr, "batch"); err != nil {
		return err
	}
	treasAddr, _, err := p.Deriver().Treasury(recipient.Pubkey)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[1], treasAddr, "treasury"); err != nil {
		return err
	}
	_, err = p.SettleBatch(ctx, signers, batch.SettleParams{
		Settler:      settler.Pubkey,
		BatchID:      payload.BatchID,
		Recipient:    recipient.Pubkey,
		InvoiceIDs:   payload.InvoiceIDs,
		ClaimedTotal: payload.Total,
	})
	return err
}

func execRegisterAgent(ctx context.Context, p *agentfund.Program, ins Instruction, dec *bin.Decoder, signers types.SignerSet) error {
	payload, err := decodeRegisterAgentPayload(dec)
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "payload: %v", err)
	}
	if err := requireAccounts(ins, 3); err != nil {
		return err
	}
	owner := ins.Accounts[2]
	if err := requireSigner(owner); err != nil {
		return err
	}
	profileAddr, _, err := p.Deriver().Agent(owner.Pubkey)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[0], profileAddr, "profile"); err != nil {
		return err
	}
	treasAddr, _, err := p.Deriver().Treasury(owner.Pubkey)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[1], treasAddr, "treasury"); err != nil {
		return err
	}
	_, err = p.RegisterAgent(ctx, signers, registry.RegisterParams{
		Owner:        owner.Pubkey,
		Name:         payload.Name,
		Description:  payload.Description,
		Capabilities: payload.Capabilities,
		BasePrice:    payload.BasePrice,
	})
	return err
}

func execUpdateAgentProfile(ctx context.Context, p *agentfund.Program, ins Instruction, dec *bin.Decoder, signers types.SignerSet) error {
	payload, err := decodeUpdateAgentProfilePayload(dec)
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "payload: %v", err)
	}
	if err := requireAccounts(ins, 2); err != nil {
		return err
	}
	owner := ins.Accounts[1]
	if err := requireSigner(owner); err != nil {
		return err
	}
	profileAddr, _, err := p.Deriver().Agent(owner.Pubkey)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[0], profileAddr, "profile"); err != nil {
		return err
	}
	_, err = p.UpdateAgentProfile(ctx, signers, registry.UpdateParams{
		Owner:        owner.Pubkey,
		Name:         payload.Name,
		Description:  payload.Description,
		Capabilities: payload.Capabilities,
		BasePrice:    payload.BasePrice,
		IsActive:     payload.IsActive,
	})
	return err
}

func execRequestService(ctx context.Context, p *agentfund.Program, ins Instruction, dec *bin.Decoder, signers types.SignerSet) error {
	payload, err := decodeRequestServicePayload(dec)
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "payload: %v", err)
	}
	if err := checkShape(payload); err != nil {
		return err
	}
	if err := requireAccounts(ins, 4); err != nil {
		return err
	}
	requester := ins.Accounts[3]
	if err := requireSigner(requester); err != nil {
		return err
	}
	reqAddr, _, err := p.Deriver().Request(payload.RequestID)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[0], reqAddr, "request"); err != nil {
		return err
	}
	escrowAddr, _, err := p.Deriver().RequestEscrow(payload.RequestID)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[1], escrowAddr, "escrow"); err != nil {
		return err
	}
	profile, err := profileAt(p, ins.Accounts[2].Pubkey)
	if err != nil {
		return err
	}
	profileAddr, _, err := p.Deriver().Agent(profile.Owner)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[2], profileAddr, "provider_profile"); err != nil {
		return err
	}
	_, err = p.RequestService(ctx, signers, registry.RequestParams{
		Requester:  requester.Pubkey,
		RequestID:  payload.RequestID,
		Provider:   profile.Owner,
		Capability: payload.Capability,
		Amount:     payload.Amount,
		Arbiter:    payload.Arbiter,
	})
	return err
}

func execStartService(ctx context.Context, p *agentfund.Program, ins Instruction, signers types.SignerSet) error {
	if err := requireAccounts(ins, 2); err != nil {
		return err
	}
	provider := ins.Accounts[1]
	if err := requireSigner(provider); err != nil {
		return err
	}
	req, err := requestAt(p, ins.Accounts[0].Pubkey)
	if err != nil {
		return err
	}
	_, err = p.StartService(ctx, signers, registry.StartParams{Provider: provider.Pubkey, RequestID: req.ID})
	return err
}

func execCompleteService(ctx context.Context, p *agentfund.Program, ins Instruction, dec *bin.Decoder, signers types.SignerSet) error {
	hashBytes, err := dec.ReadNBytes(32)
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "payload: %v", err)
	}
	var hash [32]byte
	copy(hash[:], hashBytes)
	if err := requireAccounts(ins, 5); err != nil {
		return err
	}
	provider := ins.Accounts[4]
	if err := requireSigner(provider); err != nil {
		return err
	}
	req, err := requestAt(p, ins.Accounts[0].Pubkey)
	if err != nil {
		return err
	}
	escrowAddr, _, err := p.Deriver().RequestEscrow(req.ID)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[1], escrowAddr, "escrow"); err != nil {
		return err
	}
	profileAddr, _, err := p.Deriver().Agent(provider.Pubkey)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[2], profileAddr, "provider_profile"); err != nil {
		return err
	}
	treasAddr, _, err := p.Deriver().Treasury(provider.Pubkey)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[3], treasAddr, "provider_treasury"); err != nil {
		return err
	}
	_, err = p.CompleteService(ctx, signers, registry.CompleteParams{
		Provider:   provider.Pubkey,
		RequestID:  req.ID,
		ResultHash: hash,
	})
	return err
}

func execInitiateDispute(ctx context.Context, p *agentfund.Program, ins Instruction, signers types.SignerSet) error {
	if err := requireAccounts(ins, 3); err != nil {
		return err
	}
	initiator := ins.Accounts[2]
	if err := requireSigner(initiator); err != nil {
		return err
	}
	req, err := requestAt(p, ins.Accounts[1].Pubkey)
	if err != nil {
		return err
	}
	disputeAddr, _, err := p.Deriver().Dispute(req.ID)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[0], disputeAddr, "dispute"); err != nil {
		return err
	}
	_, err = p.InitiateDispute(ctx, signers, registry.InitiateDisputeParams{
		Initiator: initiator.Pubkey,
		RequestID: req.ID,
	})
	return err
}

func execResolveDispute(ctx context.Context, p *agentfund.Program, ins Instruction, dec *bin.Decoder, signers types.SignerSet) error {
	payload, err := decodeResolveDisputePayload(dec)
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "payload: %v", err)
	}
	if err := requireAccounts(ins, 8); err != nil {
		return err
	}
	arbiter := ins.Accounts[7]
	if err := requireSigner(arbiter); err != nil {
		return err
	}
	req, err := requestAt(p, ins.Accounts[1].Pubkey)
	if err != nil {
		return err
	}
	disputeAddr, _, err := p.Deriver().Dispute(req.ID)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[0], disputeAddr, "dispute"); err != nil {
		return err
	}
	escrowAddr, _, err := p.Deriver().RequestEscrow(req.ID)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[2], escrowAddr, "escrow"); err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[3], req.Requester, "requester"); err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[4], req.Provider, "provider"); err != nil {
		return err
	}
	profileAddr, _, err := p.Deriver().Agent(req.Provider)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[5], profileAddr, "provider_profile"); err != nil {
		return err
	}
	treasAddr, _, err := p.Deriver().Treasury(req.Provider)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[6], treasAddr, "provider_treasury"); err != nil {
		return err
	}
	_, err = p.ResolveDispute(ctx, signers, registry.ResolveDisputeParams{
		Resolver:   arbiter.Pubkey,
		RequestID:  req.ID,
		Resolution: payload.Resolution,
	})
	return err
}

func execCreateStream(ctx context.Context, p *agentfund.Program, ins Instruction, dec *bin.Decoder, signers types.SignerSet) error {
	payload, err := decodeCreateStreamPayload(dec)
	if err != nil {
		return types.Errf(types.ErrBadSerialization, "payload: %v", err)
	}
	if err := requireAccounts(ins, 3); err != nil {
		return err
	}
	sender := ins.Accounts[2]
	if err := requireSigner(sender); err != nil {
		return err
	}
	streamAddr, _, err := p.Deriver().Stream(payload.StreamID)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[0], streamAddr, "stream"); err != nil {
		return err
	}
	escrowAddr, _, err := p.Deriver().StreamEscrow(payload.StreamID)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[1], escrowAddr, "escrow"); err != nil {
		return err
	}
	_, err = p.CreateStream(ctx, signers, stream.CreateParams{
		Sender:    sender.Pubkey,
		StreamID:  payload.StreamID,
		Recipient: payload.Recipient,
		Total:     payload.Total,
		StartTime: payload.StartTime,
		EndTime:   payload.EndTime,
	})
	return err
}

func execWithdrawStream(ctx context.Context, p *agentfund.Program, ins Instruction, signers types.SignerSet) error {
	if err := requireAccounts(ins, 3); err != nil {
		return err
	}
	recipient := ins.Accounts[2]
	if err := requireSigner(recipient); err != nil {
		return err
	}
	s, err := streamAt(p, ins.Accounts[0].Pubkey)
	if err != nil {
		return err
	}
	escrowAddr, _, err := p.Deriver().StreamEscrow(s.ID)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[1], escrowAddr, "escrow"); err != nil {
		return err
	}
	_, err = p.WithdrawStream(ctx, signers, stream.WithdrawParams{Recipient: recipient.Pubkey, StreamID: s.ID})
	return err
}

func execPauseStream(ctx context.Context, p *agentfund.Program, ins Instruction, signers types.SignerSet) error {
	if err := requireAccounts(ins, 2); err != nil {
		return err
	}
	sender := ins.Accounts[1]
	if err := requireSigner(sender); err != nil {
		return err
	}
	s, err := streamAt(p, ins.Accounts[0].Pubkey)
	if err != nil {
		return err
	}
	_, err = p.PauseStream(ctx, signers, stream.PauseParams{Sender: sender.Pubkey, StreamID: s.ID})
	return err
}

func execResumeStream(ctx context.Context, p *agentfund.Program, ins Instruction, signers types.SignerSet) error {
	if err := requireAccounts(ins, 2); err != nil {
		return err
	}
	sender := ins.Accounts[1]
	if err := requireSigner(sender); err != nil {
		return err
	}
	s, err := streamAt(p, ins.Accounts[0].Pubkey)
	if err != nil {
		return err
	}
	_, err = p.ResumeStream(ctx, signers, stream.ResumeParams{Sender: sender.Pubkey, StreamID: s.ID})
	return err
}

func execCancelStream(ctx context.Context, p *agentfund.Program, ins Instruction, signers types.SignerSet) error {
	if err := requireAccounts(ins, 4); err != nil {
		return err
	}
	sender := ins.Accounts[2]
	if err := requireSigner(sender); err != nil {
		return err
	}
	s, err := streamAt(p, ins.Accounts[0].Pubkey)
	if err != nil {
		return err
	}
	escrowAddr, _, err := p.Deriver().StreamEscrow(s.ID)
	if err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[1], escrowAddr, "escrow"); err != nil {
		return err
	}
	if err := requireMatch(ins.Accounts[3], s.Recipient, "recipient"); err != nil {
		return err
	}
	_, err = p.CancelStream(ctx, signers, stream.CancelParams{Sender: sender.Pubkey, StreamID: s.ID})
	return err
}
