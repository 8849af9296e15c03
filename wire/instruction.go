// Package wire implements the protocol's instruction encoding: every entry
// point is an 8-byte opcode discriminator, an ordered list of account
// handles tagged writable/signer, and a little-endian payload. Execute
// decodes an instruction, checks handles against the deriver and routes to
// the program.
package wire

import (
	"bytes"
	"crypto/sha256"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/types"
)

// AccountMeta is one account handle of an instruction.
type AccountMeta struct {
	Pubkey     solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is one serialized entry-point invocation.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// Opcode is the stable 8-byte discriminator of an operation.
type Opcode [8]byte

func opcode(name string) Opcode {
	var o Opcode
	sum := sha256.Sum256([]byte("global:" + name))
	copy(o[:], sum[:8])
	return o
}

var (
	OpInitializeTreasury = opcode("initialize_treasury")
	OpCreateInvoice      = opcode("create_invoice")
	OpPayInvoice         = opcode("pay_invoice")
	OpCancelInvoice      = opcode("cancel_invoice")
	OpExpireInvoice      = opcode("expire_invoice")
	OpSettleBatch        = opcode("settle_batch")
	OpRegisterAgent      = opcode("register_agent")
	OpUpdateAgentProfile = opcode("update_agent_profile")
	OpRequestService     = opcode("request_service")
	OpStartService       = opcode("start_service")
	OpCompleteService    = opcode("complete_service")
	OpInitiateDispute    = opcode("initiate_dispute")
	OpResolveDispute     = opcode("resolve_dispute")
	OpCreateStream       = opcode("create_stream")
	OpWithdrawStream     = opcode("withdraw_stream")
	OpPauseStream        = opcode("pause_stream")
	OpResumeStream       = opcode("resume_stream")
	OpCancelStream       = opcode("cancel_stream")
)

func payloadOf(op Opcode, body func(enc *bin.Encoder) error) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteBytes(op[:], false); err != nil {
		return nil, err
	}
	if body != nil {
		if err := body(enc); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), bin.LE); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

func readString(dec *bin.Decoder) (string, error) {
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return "", err
	}
	b, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readID(dec *bin.Decoder) (types.ID, error) {
	var id types.ID
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

// CreateInvoicePayload is the payload of OpCreateInvoice. Amount, memo and
// expiry semantics are enforced by the invoice subsystem so the rejection
// carries the precise error code.
type CreateInvoicePayload struct {
	ID        types.ID
	Amount    uint64
	Memo      string
	ExpiresAt int64
}

func (p CreateInvoicePayload) marshal(enc *bin.Encoder) error {
	if err := enc.WriteBytes(p.ID[:], false); err != nil {
		return err
	}
	if err := enc.WriteUint64(p.Amount, bin.LE); err != nil {
		return err
	}
	if err := writeString(enc, p.Memo); err != nil {
		return err
	}
	return enc.WriteInt64(p.ExpiresAt, bin.LE)
}

func decodeCreateInvoicePayload(dec *bin.Decoder) (CreateInvoicePayload, error) {
	var p CreateInvoicePayload
	var err error
	if p.ID, err = readID(dec); err != nil {
		return p, err
	}
	if p.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return p, err
	}
	if p.Memo, err = readString(dec); err != nil {
		return p, err
	}
	p.ExpiresAt, err = dec.ReadInt64(bin.LE)
	return p, err
}

// SettleBatchPayload is the payload of OpSettleBatch.
type SettleBatchPayload struct {
	BatchID    types.ID
	InvoiceIDs []types.ID
	Total      uint64
}

func (p SettleBatchPayload) marshal(enc *bin.Encoder) error {
	if err := enc.WriteBytes(p.BatchID[:], false); err != nil {
		return err
	}
	if err := enc.WriteUint32(uint32(len(p.InvoiceIDs)), bin.LE); err != nil {
		return err
	}
	for _, id := range p.InvoiceIDs {
		if err := enc.WriteBytes(id[:], false); err != nil {
			return err
		}
	}
	return enc.WriteUint64(p.Total, bin.LE)
}

func decodeSettleBatchPayload(dec *bin.Decoder) (SettleBatchPayload, error) {
	var p SettleBatchPayload
	var err error
	if p.BatchID, err = readID(dec); err != nil {
		return p, err
	}
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return p, err
	}
	p.InvoiceIDs = make([]types.ID, n)
	for i := range p.InvoiceIDs {
		if p.InvoiceIDs[i], err = readID(dec); err != nil {
			return p, err
		}
	}
	p.Total, err = dec.ReadUint64(bin.LE)
	return p, err
}

// RegisterAgentPayload is the payload of OpRegisterAgent. Length limits are
// enforced by the registry subsystem.
type RegisterAgentPayload struct {
	Name         string
	Description  string
	Capabilities []string
	BasePrice    uint64
}

func (p RegisterAgentPayload) marshal(enc *bin.Encoder) error {
	if err := writeString(enc, p.Name); err != nil {
		return err
	}
	if err := writeString(enc, p.Description); err != nil {
		return err
	}
	if err := enc.WriteUint32(uint32(len(p.Capabilities)), bin.LE); err != nil {
		return err
	}
	for _, c := range p.Capabilities {
		if err := writeString(enc, c); err != nil {
			return err
		}
	}
	return enc.WriteUint64(p.BasePrice, bin.LE)
}

func decodeRegisterAgentPayload(dec *bin.Decoder) (RegisterAgentPayload, error) {
	var p RegisterAgentPayload
	var err error
	if p.Name, err = readString(dec); err != nil {
		return p, err
	}
	if p.Description, err = readString(dec); err != nil {
		return p, err
	}
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return p, err
	}
	p.Capabilities = make([]string, n)
	for i := range p.Capabilities {
		if p.Capabilities[i], err = readString(dec); err != nil {
			return p, err
		}
	}
	p.BasePrice, err = dec.ReadUint64(bin.LE)
	return p, err
}

// UpdateAgentProfilePayload is the payload of OpUpdateAgentProfile. Each
// optional field is preceded by a presence flag.
type UpdateAgentProfilePayload struct {
	Name         *string
	Description  *string
	Capabilities *[]string
	BasePrice    *uint64
	IsActive     *bool
}

func (p UpdateAgentProfilePayload) marshal(enc *bin.Encoder) error {
	if err := enc.WriteBool(p.Name != nil); err != nil {
		return err
	}
	if p.Name != nil {
		if err := writeString(enc, *p.Name); err != nil {
			return err
		}
	}
	if err := enc.WriteBool(p.Description != nil); err != nil {
		return err
	}
	if p.Description != nil {
		if err := writeString(enc, *p.Description); err != nil {
			return err
		}
	}
	if err := enc.WriteBool(p.Capabilities != nil); err != nil {
		return err
	}
	if p.Capabilities != nil {
		if err := enc.WriteUint32(uint32(len(*p.Capabilities)), bin.LE); err != nil {
			return err
		}
		for _, c := range *p.Capabilities {
			if err := writeString(enc, c); err != nil {
				return err
			}
		}
	}
	if err := enc.WriteBool(p.BasePrice != nil); err != nil {
		return err
	}
	if p.BasePrice != nil {
		if err := enc.WriteUint64(*p.BasePrice, bin.LE); err != nil {
			return err
		}
	}
	if err := enc.WriteBool(p.IsActive != nil); err != nil {
		return err
	}
	if p.IsActive != nil {
		if err := enc.WriteBool(*p.IsActive); err != nil {
			return err
		}
	}
	return nil
}

func decodeUpdateAgentProfilePayload(dec *bin.Decoder) (UpdateAgentProfilePayload, error) {
	var p UpdateAgentProfilePayload
	ok, err := dec.ReadBool()
	if err != nil {
		return p, err
	}
	if ok {
		s, err := readString(dec)
		if err != nil {
			return p, err
		}
		p.Name = &s
	}
	if ok, err = dec.ReadBool(); err != nil {
		return p, err
	}
	if ok {
		s, err := readString(dec)
		if err != nil {
			return p, err
		}
		p.Description = &s
	}
	if ok, err = dec.ReadBool(); err != nil {
		return p, err
	}
	if ok {
		n, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return p, err
		}
		caps := make([]string, n)
		for i := range caps {
			if caps[i], err = readString(dec); err != nil {
				return p, err
			}
		}
		p.Capabilities = &caps
	}
	if ok, err = dec.ReadBool(); err != nil {
		return p, err
	}
	if ok {
		v, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return p, err
		}
		p.BasePrice = &v
	}
	if ok, err = dec.ReadBool(); err != nil {
		return p, err
	}
	if ok {
		v, err := dec.ReadBool()
		if err != nil {
			return p, err
		}
		p.IsActive = &v
	}
	return p, nil
}

// RequestServicePayload is the payload of OpRequestService. Arbiter is an
// optional trailing field behind a presence flag.
type RequestServicePayload struct {
	RequestID  types.ID
	Capability string `validate:"min=1,max=32"`
	Amount     uint64
	Arbiter    *solana.PublicKey
}

func (p RequestServicePayload) marshal(enc *bin.Encoder) error {
	if err := enc.WriteBytes(p.RequestID[:], false); err != nil {
		return err
	}
	if err := writeString(enc, p.Capability); err != nil {
		return err
	}
	if err := enc.WriteUint64(p.Amount, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteBool(p.Arbiter != nil); err != nil {
		return err
	}
	if p.Arbiter != nil {
		return enc.WriteBytes(p.Arbiter.Bytes(), false)
	}
	return nil
}

func decodeRequestServicePayload(dec *bin.Decoder) (RequestServicePayload, error) {
	var p RequestServicePayload
	var err error
	if p.RequestID, err = readID(dec); err != nil {
		return p, err
	}
	if p.Capability, err = readString(dec); err != nil {
		return p, err
	}
	if p.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return p, err
	}
	ok, err := dec.ReadBool()
	if err != nil {
		return p, err
	}
	if ok {
		b, err := dec.ReadNBytes(32)
		if err != nil {
			return p, err
		}
		pk := solana.PublicKeyFromBytes(b)
		p.Arbiter = &pk
	}
	return p, nil
}

// ResolveDisputePayload is the payload of OpResolveDispute: a resolution tag
// plus the split ratio, present only for Split.
type ResolveDisputePayload struct {
	Resolution types.Resolution
}

func (p ResolveDisputePayload) marshal(enc *bin.Encoder) error {
	if err := enc.WriteUint8(uint8(p.Resolution.Kind)); err != nil {
		return err
	}
	if p.Resolution.Kind != types.ResolutionSplit {
		return nil
	}
	if err := enc.WriteUint64(p.Resolution.Numerator, bin.LE); err != nil {
		return err
	}
	return enc.WriteUint64(p.Resolution.Denominator, bin.LE)
}

func decodeResolveDisputePayload(dec *bin.Decoder) (ResolveDisputePayload, error) {
	var p ResolveDisputePayload
	kind, err := dec.ReadUint8()
	if err != nil {
		return p, err
	}
	p.Resolution.Kind = types.ResolutionKind(kind)
	if p.Resolution.Kind != types.ResolutionSplit {
		return p, nil
	}
	if p.Resolution.Numerator, err = dec.ReadUint64(bin.LE); err != nil {
		return p, err
	}
	p.Resolution.Denominator, err = dec.ReadUint64(bin.LE)
	return p, err
}

// CreateStreamPayload is the payload of OpCreateStream. The total and
// schedule are enforced by the stream subsystem so the rejection carries the
// precise error code.
type CreateStreamPayload struct {
	StreamID  types.ID
	Recipient solana.PublicKey
	Total     uint64
	StartTime int64
	EndTime   int64
}

func (p CreateStreamPayload) marshal(enc *bin.Encoder) error {
	if err := enc.WriteBytes(p.StreamID[:], false); err != nil {
		return err
	}
	if err := enc.WriteBytes(p.Recipient.Bytes(), false); err != nil {
		return err
	}
	if err := enc.WriteUint64(p.Total, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteInt64(p.StartTime, bin.LE); err != nil {
		return err
	}
	return enc.WriteInt64(p.EndTime, bin.LE)
}

func decodeCreateStreamPayload(dec *bin.Decoder) (CreateStreamPayload, error) {
	var p CreateStreamPayload
	var err error
	if p.StreamID, err = readID(dec); err != nil {
		return p, err
	}
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return p, err
	}
	p.Recipient = solana.PublicKeyFromBytes(b)
	if p.Total, err = dec.ReadUint64(bin.LE); err != nil {
		return p, err
	}
	if p.StartTime, err = dec.ReadInt64(bin.LE); err != nil {
		return p, err
	}
	p.EndTime, err = dec.ReadInt64(bin.LE)
	return p, err
}
