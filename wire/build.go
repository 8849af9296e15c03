package wire

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/address"
	"github.com/vitwit/agentfund/types"
)

// Builders assemble instructions with the normative handle order for each
// operation. They derive every record address themselves, so a well-formed
// client can never produce an AddressMismatch.

func meta(pk solana.PublicKey, signer, writable bool) AccountMeta {
	return AccountMeta{Pubkey: pk, IsSigner: signer, IsWritable: writable}
}

// NewInitializeTreasuryInstruction builds OpInitializeTreasury for owner.
func NewInitializeTreasuryInstruction(d *address.Deriver, owner solana.PublicKey) (Instruction, error) {
	treasAddr, bump, err := d.Treasury(owner)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpInitializeTreasury, func(enc *bin.Encoder) error {
		return enc.WriteUint8(bump)
	})
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(treasAddr, false, true),
			meta(owner, true, true),
		},
		Data: data,
	}, nil
}

// NewCreateInvoiceInstruction builds OpCreateInvoice for the recipient.
func NewCreateInvoiceInstruction(d *address.Deriver, recipient solana.PublicKey, payload CreateInvoicePayload) (Instruction, error) {
	invAddr, _, err := d.Invoice(payload.ID)
	if err != nil {
		return Instruction{}, err
	}
	treasAddr, _, err := d.Treasury(recipient)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpCreateInvoice, payload.marshal)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(invAddr, false, true),
			meta(treasAddr, false, true),
			meta(recipient, true, true),
		},
		Data: data,
	}, nil
}

// NewPayInvoiceInstruction builds OpPayInvoice. The recipient is named so
// the host can mark the account writable for the credit.
func NewPayInvoiceInstruction(d *address.Deriver, payer, recipient solana.PublicKey, invoiceID types.ID) (Instruction, error) {
	invAddr, _, err := d.Invoice(invoiceID)
	if err != nil {
		return Instruction{}, err
	}
	treasAddr, _, err := d.Treasury(recipient)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpPayInvoice, nil)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(invAddr, false, true),
			meta(treasAddr, false, true),
			meta(payer, true, true),
			meta(recipient, false, true),
		},
		Data: data,
	}, nil
}

// NewCancelInvoiceInstruction builds OpCancelInvoice for the recipient.
func NewCancelInvoiceInstruction(d *address.Deriver, recipient solana.PublicKey, invoiceID types.ID) (Instruction, error) {
	invAddr, _, err := d.Invoice(invoiceID)
	if err != nil {
		return Instruction{}, err
	}
	treasAddr, _, err := d.Treasury(recipient)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpCancelInvoice, nil)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(invAddr, false, true),
			meta(treasAddr, false, true),
			meta(recipient, true, false),
		},
		Data: data,
	}, nil
}

// NewExpireInvoiceInstruction builds the permissionless OpExpireInvoice.
func NewExpireInvoiceInstruction(d *address.Deriver, recipient solana.PublicKey, invoiceID types.ID) (Instruction, error) {
	invAddr, _, err := d.Invoice(invoiceID)
	if err != nil {
		return Instruction{}, err
	}
	treasAddr, _, err := d.Treasury(recipient)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpExpireInvoice, nil)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(invAddr, false, true),
			meta(treasAddr, false, true),
		},
		Data: data,
	}, nil
}

// NewSettleBatchInstruction builds OpSettleBatch for the settler.
func NewSettleBatchInstruction(d *address.Deriver, settler, recipient solana.PublicKey, payload SettleBatchPayload) (Instruction, error) {
	batchAddr, _, err := d.Batch(payload.BatchID)
	if err != nil {
		return Instruction{}, err
	}
	treasAddr, _, err := d.Treasury(recipient)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpSettleBatch, payload.marshal)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(batchAddr, false, true),
			meta(treasAddr, false, true),
			meta(settler, true, true),
			meta(recipient, false, true),
		},
		Data: data,
	}, nil
}

// NewRegisterAgentInstruction builds OpRegisterAgent for the owner.
func NewRegisterAgentInstruction(d *address.Deriver, owner solana.PublicKey, payload RegisterAgentPayload) (Instruction, error) {
	profileAddr, _, err := d.Agent(owner)
	if err != nil {
		return Instruction{}, err
	}
	treasAddr, _, err := d.Treasury(owner)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpRegisterAgent, payload.marshal)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(profileAddr, false, true),
			meta(treasAddr, false, false),
			meta(owner, true, true),
		},
		Data: data,
	}, nil
}

// NewUpdateAgentProfileInstruction builds OpUpdateAgentProfile.
func NewUpdateAgentProfileInstruction(d *address.Deriver, owner solana.PublicKey, payload UpdateAgentProfilePayload) (Instruction, error) {
	profileAddr, _, err := d.Agent(owner)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpUpdateAgentProfile, payload.marshal)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(profileAddr, false, true),
			meta(owner, true, false),
		},
		Data: data,
	}, nil
}

// NewRequestServiceInstruction builds OpRequestService against a provider.
func NewRequestServiceInstruction(d *address.Deriver, requester, provider solana.PublicKey, payload RequestServicePayload) (Instruction, error) {
	reqAddr, _, err := d.Request(payload.RequestID)
	if err != nil {
		return Instruction{}, err
	}
	escrowAddr, _, err := d.RequestEscrow(payload.RequestID)
	if err != nil {
		return Instruction{}, err
	}
	profileAddr, _, err := d.Agent(provider)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpRequestService, payload.marshal)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(reqAddr, false, true),
			meta(escrowAddr, false, true),
			meta(profileAddr, false, false),
			meta(requester, true, true),
		},
		Data: data,
	}, nil
}

// NewStartServiceInstruction builds OpStartService for the provider.
func NewStartServiceInstruction(d *address.Deriver, provider solana.PublicKey, requestID types.ID) (Instruction, error) {
	reqAddr, _, err := d.Request(requestID)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpStartService, nil)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(reqAddr, false, true),
			meta(provider, true, false),
		},
		Data: data,
	}, nil
}

// NewCompleteServiceInstruction builds OpCompleteService for the provider.
func NewCompleteServiceInstruction(d *address.Deriver, provider solana.PublicKey, requestID types.ID, resultHash [32]byte) (Instruction, error) {
	reqAddr, _, err := d.Request(requestID)
	if err != nil {
		return Instruction{}, err
	}
	escrowAddr, _, err := d.RequestEscrow(requestID)
	if err != nil {
		return Instruction{}, err
	}
	profileAddr, _, err := d.Agent(provider)
	if err != nil {
		return Instruction{}, err
	}
	treasAddr, _, err := d.Treasury(provider)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpCompleteService, func(enc *bin.Encoder) error {
		return enc.WriteBytes(resultHash[:], false)
	})
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(reqAddr, false, true),
			meta(escrowAddr, false, true),
			meta(profileAddr, false, true),
			meta(treasAddr, false, true),
			meta(provider, true, false),
		},
		Data: data,
	}, nil
}

// NewInitiateDisputeInstruction builds OpInitiateDispute for a party.
func NewInitiateDisputeInstruction(d *address.Deriver, initiator solana.PublicKey, requestID types.ID) (Instruction, error) {
	disputeAddr, _, err := d.Dispute(requestID)
	if err != nil {
		return Instruction{}, err
	}
	reqAddr, _, err := d.Request(requestID)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpInitiateDispute, nil)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(disputeAddr, false, true),
			meta(reqAddr, false, true),
			meta(initiator, true, true),
		},
		Data: data,
	}, nil
}

// NewResolveDisputeInstruction builds OpResolveDispute. The requester and
// provider handles receive the payouts.
func NewResolveDisputeInstruction(d *address.Deriver, arbiter, requester, provider solana.PublicKey, requestID types.ID, resolution types.Resolution) (Instruction, error) {
	disputeAddr, _, err := d.Dispute(requestID)
	if err != nil {
		return Instruction{}, err
	}
	reqAddr, _, err := d.Request(requestID)
	if err != nil {
		return Instruction{}, err
	}
	escrowAddr, _, err := d.RequestEscrow(requestID)
	if err != nil {
		return Instruction{}, err
	}
	profileAddr, _, err := d.Agent(provider)
	if err != nil {
		return Instruction{}, err
	}
	treasAddr, _, err := d.Treasury(provider)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpResolveDispute, ResolveDisputePayload{Resolution: resolution}.marshal)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(disputeAddr, false, true),
			meta(reqAddr, false, true),
			meta(escrowAddr, false, true),
			meta(requester, false, true),
			meta(provider, false, true),
			meta(profileAddr, false, true),
			meta(treasAddr, false, true),
			meta(arbiter, true, false),
		},
		Data: data,
	}, nil
}

// NewCreateStreamInstruction builds OpCreateStream for the sender.
func NewCreateStreamInstruction(d *address.Deriver, sender solana.PublicKey, payload CreateStreamPayload) (Instruction, error) {
	streamAddr, _, err := d.Stream(payload.StreamID)
	if err != nil {
		return Instruction{}, err
	}
	escrowAddr, _, err := d.StreamEscrow(payload.StreamID)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpCreateStream, payload.marshal)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(streamAddr, false, true),
			meta(escrowAddr, false, true),
			meta(sender, true, true),
		},
		Data: data,
	}, nil
}

// NewWithdrawStreamInstruction builds OpWithdrawStream for the recipient.
func NewWithdrawStreamInstruction(d *address.Deriver, recipient solana.PublicKey, streamID types.ID) (Instruction, error) {
	streamAddr, _, err := d.Stream(streamID)
	if err != nil {
		return Instruction{}, err
	}
	escrowAddr, _, err := d.StreamEscrow(streamID)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpWithdrawStream, nil)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(streamAddr, false, true),
			meta(escrowAddr, false, true),
			meta(recipient, true, true),
		},
		Data: data,
	}, nil
}

// NewPauseStreamInstruction builds OpPauseStream for the sender.
func NewPauseStreamInstruction(d *address.Deriver, sender solana.PublicKey, streamID types.ID) (Instruction, error) {
	streamAddr, _, err := d.Stream(streamID)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpPauseStream, nil)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(streamAddr, false, true),
			meta(sender, true, false),
		},
		Data: data,
	}, nil
}

// NewResumeStreamInstruction builds OpResumeStream for the sender.
func NewResumeStreamInstruction(d *address.Deriver, sender solana.PublicKey, streamID types.ID) (Instruction, error) {
	streamAddr, _, err := d.Stream(streamID)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpResumeStream, nil)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(streamAddr, false, true),
			meta(sender, true, false),
		},
		Data: data,
	}, nil
}

// NewCancelStreamInstruction builds OpCancelStream for the sender.
func NewCancelStreamInstruction(d *address.Deriver, sender, recipient solana.PublicKey, streamID types.ID) (Instruction, error) {
	streamAddr, _, err := d.Stream(streamID)
	if err != nil {
		return Instruction{}, err
	}
	escrowAddr, _, err := d.StreamEscrow(streamID)
	if err != nil {
		return Instruction{}, err
	}
	data, err := payloadOf(OpCancelStream, nil)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: d.ProgramID(),
		Accounts: []AccountMeta{
			meta(streamAddr, false, true),
			meta(escrowAddr, false, true),
			meta(sender, true, true),
			meta(recipient, false, true),
		},
		Data: data,
	}, nil
}
