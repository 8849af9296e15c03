package types

import (
	"bytes"
	"crypto/sha256"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Every record is stored with an 8-byte class discriminator at offset 0,
// derived Anchor-style from the record name. All integers are little-endian;
// strings and vectors carry a u32 length prefix; optional fields carry a
// presence byte. The layout is normative and field order must not change.

// Discriminator identifies a record class on the wire.
type Discriminator [8]byte

func discriminator(name string) Discriminator {
	var d Discriminator
	sum := sha256.Sum256([]byte("account:" + name))
	copy(d[:], sum[:8])
	return d
}

var (
	TreasuryDiscriminator        = discriminator("Treasury")
	InvoiceDiscriminator         = discriminator("Invoice")
	BatchSettlementDiscriminator = discriminator("BatchSettlement")
	AgentProfileDiscriminator    = discriminator("AgentProfile")
	ServiceRequestDiscriminator  = discriminator("ServiceRequest")
	DisputeDiscriminator         = discriminator("Dispute")
	PaymentStreamDiscriminator   = discriminator("PaymentStream")
)

func writePubkey(enc *bin.Encoder, pk solana.PublicKey) error {
	return enc.WriteBytes(pk.Bytes(), false)
}

func readPubkey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
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

func writeOptionInt64(enc *bin.Encoder, v *int64) error {
	if v == nil {
		return enc.WriteBool(false)
	}
	if err := enc.WriteBool(true); err != nil {
		return err
	}
	return enc.WriteInt64(*v, bin.LE)
}

func readOptionInt64(dec *bin.Decoder) (*int64, error) {
	ok, err := dec.ReadBool()
	if err != nil || !ok {
		return nil, err
	}
	v, err := dec.ReadInt64(bin.LE)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func writeOptionPubkey(enc *bin.Encoder, pk *solana.PublicKey) error {
	if pk == nil {
		return enc.WriteBool(false)
	}
	if err := enc.WriteBool(true); err != nil {
		return err
	}
	return writePubkey(enc, *pk)
}

func readOptionPubkey(dec *bin.Decoder) (*solana.PublicKey, error) {
	ok, err := dec.ReadBool()
	if err != nil || !ok {
		return nil, err
	}
	pk, err := readPubkey(dec)
	if err != nil {
		return nil, err
	}
	return &pk, nil
}

// encode runs body against a fresh encoder seeded with the class
// discriminator.
func encode(disc Discriminator, body func(enc *bin.Encoder) error) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteBytes(disc[:], false); err != nil {
		return nil, err
	}
	if err := body(enc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode checks the class discriminator and hands the remainder to body.
func decode(data []byte, disc Discriminator, name string, body func(dec *bin.Decoder) error) error {
	if len(data) < 8 {
		return Errf(ErrBadSerialization, "record shorter than discriminator")
	}
	if !bytes.Equal(data[:8], disc[:]) {
		return Errf(ErrWrongClass, "record is not a %s", name)
	}
	if err := body(bin.NewBinDecoder(data[8:])); err != nil {
		return Errf(ErrBadSerialization, "decoding %s: %v", name, err)
	}
	return nil
}

// Marshal encodes the treasury record with its class discriminator.
func (t *Treasury) Marshal() ([]byte, error) {
	return encode(TreasuryDiscriminator, func(enc *bin.Encoder) error {
		if err := writePubkey(enc, t.Owner); err != nil {
			return err
		}
		if err := enc.WriteUint8(t.Bump); err != nil {
			return err
		}
		if err := enc.WriteUint64(t.TotalReceived, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteUint64(t.TotalSettled, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteUint64(t.PendingInvoices, bin.LE); err != nil {
			return err
		}
		return enc.WriteInt64(t.CreatedAt, bin.LE)
	})
}

// DecodeTreasury decodes a treasury record, failing WrongClass on a
// discriminator mismatch.
func DecodeTreasury(data []byte) (*Treasury, error) {
	t := new(Treasury)
	err := decode(data, TreasuryDiscriminator, "Treasury", func(dec *bin.Decoder) error {
		var err error
		if t.Owner, err = readPubkey(dec); err != nil {
			return err
		}
		if t.Bump, err = dec.ReadUint8(); err != nil {
			return err
		}
		if t.TotalReceived, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		if t.TotalSettled, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		if t.PendingInvoices, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		t.CreatedAt, err = dec.ReadInt64(bin.LE)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Marshal encodes the invoice record with its class discriminator.
func (inv *Invoice) Marshal() ([]byte, error) {
	return encode(InvoiceDiscriminator, func(enc *bin.Encoder) error {
		if err := enc.WriteBytes(inv.ID[:], false); err != nil {
			return err
		}
		if err := writePubkey(enc, inv.Recipient); err != nil {
			return err
		}
		if err := enc.WriteUint64(inv.Amount, bin.LE); err != nil {
			return err
		}
		if err := writeString(enc, inv.Memo); err != nil {
			return err
		}
		if err := enc.WriteUint8(uint8(inv.Status)); err != nil {
			return err
		}
		if err := enc.WriteInt64(inv.CreatedAt, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteInt64(inv.ExpiresAt, bin.LE); err != nil {
			return err
		}
		if err := writeOptionInt64(enc, inv.PaidAt); err != nil {
			return err
		}
		return writeOptionPubkey(enc, inv.Payer)
	})
}

// DecodeInvoice decodes an invoice record.
func DecodeInvoice(data []byte) (*Invoice, error) {
	inv := new(Invoice)
	err := decode(data, InvoiceDiscriminator, "Invoice", func(dec *bin.Decoder) error {
		b, err := dec.ReadNBytes(32)
		if err != nil {
			return err
		}
		copy(inv.ID[:], b)
		if inv.Recipient, err = readPubkey(dec); err != nil {
			return err
		}
		if inv.Amount, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		if inv.Memo, err = readString(dec); err != nil {
			return err
		}
		status, err := dec.ReadUint8()
		if err != nil {
			return err
		}
		inv.Status = InvoiceStatus(status)
		if inv.CreatedAt, err = dec.ReadInt64(bin.LE); err != nil {
			return err
		}
		if inv.ExpiresAt, err = dec.ReadInt64(bin.LE); err != nil {
			return err
		}
		if inv.PaidAt, err = readOptionInt64(dec); err != nil {
			return err
		}
		inv.Payer, err = readOptionPubkey(dec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Marshal encodes the batch settlement record with its class discriminator.
func (b *BatchSettlement) Marshal() ([]byte, error) {
	return encode(BatchSettlementDiscriminator, func(enc *bin.Encoder) error {
		if err := enc.WriteBytes(b.ID[:], false); err != nil {
			return err
		}
		if err := writePubkey(enc, b.Settler); err != nil {
			return err
		}
		if err := writePubkey(enc, b.Recipient); err != nil {
			return err
		}
		if err := enc.WriteUint32(uint32(len(b.InvoiceIDs)), bin.LE); err != nil {
			return err
		}
		for _, id := range b.InvoiceIDs {
			if err := enc.WriteBytes(id[:], false); err != nil {
				return err
			}
		}
		if err := enc.WriteUint64(b.TotalAmount, bin.LE); err != nil {
			return err
		}
		return enc.WriteInt64(b.SettledAt, bin.LE)
	})
}

// DecodeBatchSettlement decodes a batch settlement record.
func DecodeBatchSettlement(data []byte) (*BatchSettlement, error) {
	b := new(BatchSettlement)
	err := decode(data, BatchSettlementDiscriminator, "BatchSettlement", func(dec *bin.Decoder) error {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return err
		}
		copy(b.ID[:], raw)
		if b.Settler, err = readPubkey(dec); err != nil {
			return err
		}
		if b.Recipient, err = readPubkey(dec); err != nil {
			return err
		}
		n, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return err
		}
		b.InvoiceIDs = make([]ID, n)
		for i := range b.InvoiceIDs {
			raw, err := dec.ReadNBytes(32)
			if err != nil {
				return err
			}
			copy(b.InvoiceIDs[i][:], raw)
		}
		if b.TotalAmount, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		b.SettledAt, err = dec.ReadInt64(bin.LE)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Marshal encodes the agent profile record with its class discriminator.
func (p *AgentProfile) Marshal() ([]byte, error) {
	return encode(AgentProfileDiscriminator, func(enc *bin.Encoder) error {
		if err := writePubkey(enc, p.Owner); err != nil {
			return err
		}
		if err := writePubkey(enc, p.Treasury); err != nil {
			return err
		}
		if err := enc.WriteUint8(p.Bump); err != nil {
			return err
		}
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
		if err := enc.WriteUint64(p.BasePrice, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteBool(p.IsActive); err != nil {
			return err
		}
		if err := enc.WriteUint64(p.TotalRequests, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteUint64(p.TotalEarnings, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteInt64(p.RegisteredAt, bin.LE); err != nil {
			return err
		}
		return enc.WriteInt64(p.LastActiveAt, bin.LE)
	})
}

// DecodeAgentProfile decodes an agent profile record.
func DecodeAgentProfile(data []byte) (*AgentProfile, error) {
	p := new(AgentProfile)
	err := decode(data, AgentProfileDiscriminator, "AgentProfile", func(dec *bin.Decoder) error {
		var err error
		if p.Owner, err = readPubkey(dec); err != nil {
			return err
		}
		if p.Treasury, err = readPubkey(dec); err != nil {
			return err
		}
		if p.Bump, err = dec.ReadUint8(); err != nil {
			return err
		}
		if p.Name, err = readString(dec); err != nil {
			return err
		}
		if p.Description, err = readString(dec); err != nil {
			return err
		}
		n, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return err
		}
		p.Capabilities = make([]string, n)
		for i := range p.Capabilities {
			if p.Capabilities[i], err = readString(dec); err != nil {
				return err
			}
		}
		if p.BasePrice, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		if p.IsActive, err = dec.ReadBool(); err != nil {
			return err
		}
		if p.TotalRequests, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		if p.TotalEarnings, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		if p.RegisteredAt, err = dec.ReadInt64(bin.LE); err != nil {
			return err
		}
		p.LastActiveAt, err = dec.ReadInt64(bin.LE)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Marshal encodes the service request record with its class discriminator.
func (r *ServiceRequest) Marshal() ([]byte, error) {
	return encode(ServiceRequestDiscriminator, func(enc *bin.Encoder) error {
		if err := enc.WriteBytes(r.ID[:], false); err != nil {
			return err
		}
		if err := writePubkey(enc, r.Requester); err != nil {
			return err
		}
		if err := writePubkey(enc, r.Provider); err != nil {
			return err
		}
		if err := writeString(enc, r.Capability); err != nil {
			return err
		}
		if err := enc.WriteUint64(r.Amount, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteUint8(uint8(r.Status)); err != nil {
			return err
		}
		if err := enc.WriteInt64(r.CreatedAt, bin.LE); err != nil {
			return err
		}
		if err := writeOptionInt64(enc, r.CompletedAt); err != nil {
			return err
		}
		if r.ResultHash == nil {
			if err := enc.WriteBool(false); err != nil {
				return err
			}
		} else {
			if err := enc.WriteBool(true); err != nil {
				return err
			}
			if err := enc.WriteBytes(r.ResultHash[:], false); err != nil {
				return err
			}
		}
		return writeOptionPubkey(enc, r.Arbiter)
	})
}

// DecodeServiceRequest decodes a service request record.
func DecodeServiceRequest(data []byte) (*ServiceRequest, error) {
	r := new(ServiceRequest)
	err := decode(data, ServiceRequestDiscriminator, "ServiceRequest", func(dec *bin.Decoder) error {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return err
		}
		copy(r.ID[:], raw)
		if r.Requester, err = readPubkey(dec); err != nil {
			return err
		}
		if r.Provider, err = readPubkey(dec); err != nil {
			return err
		}
		if r.Capability, err = readString(dec); err != nil {
			return err
		}
		if r.Amount, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		status, err := dec.ReadUint8()
		if err != nil {
			return err
		}
		r.Status = RequestStatus(status)
		if r.CreatedAt, err = dec.ReadInt64(bin.LE); err != nil {
			return err
		}
		if r.CompletedAt, err = readOptionInt64(dec); err != nil {
			return err
		}
		ok, err := dec.ReadBool()
		if err != nil {
			return err
		}
		if ok {
			raw, err := dec.ReadNBytes(32)
			if err != nil {
				return err
			}
			var h [32]byte
			copy(h[:], raw)
			r.ResultHash = &h
		}
		r.Arbiter, err = readOptionPubkey(dec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Marshal encodes the dispute record with its class discriminator.
func (d *Dispute) Marshal() ([]byte, error) {
	return encode(DisputeDiscriminator, func(enc *bin.Encoder) error {
		if err := enc.WriteBytes(d.RequestID[:], false); err != nil {
			return err
		}
		if err := writePubkey(enc, d.Initiator); err != nil {
			return err
		}
		if err := enc.WriteInt64(d.OpenedAt, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteUint8(uint8(d.Resolution.Kind)); err != nil {
			return err
		}
		if err := enc.WriteUint64(d.Resolution.Numerator, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteUint64(d.Resolution.Denominator, bin.LE); err != nil {
			return err
		}
		if err := writeOptionInt64(enc, d.ResolvedAt); err != nil {
			return err
		}
		return enc.WriteInt64(d.WindowSeconds, bin.LE)
	})
}

// DecodeDispute decodes a dispute record.
func DecodeDispute(data []byte) (*Dispute, error) {
	d := new(Dispute)
	err := decode(data, DisputeDiscriminator, "Dispute", func(dec *bin.Decoder) error {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return err
		}
		copy(d.RequestID[:], raw)
		if d.Initiator, err = readPubkey(dec); err != nil {
			return err
		}
		if d.OpenedAt, err = dec.ReadInt64(bin.LE); err != nil {
			return err
		}
		kind, err := dec.ReadUint8()
		if err != nil {
			return err
		}
		d.Resolution.Kind = ResolutionKind(kind)
		if d.Resolution.Numerator, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		if d.Resolution.Denominator, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		if d.ResolvedAt, err = readOptionInt64(dec); err != nil {
			return err
		}
		d.WindowSeconds, err = dec.ReadInt64(bin.LE)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Marshal encodes the payment stream record with its class discriminator.
func (s *PaymentStream) Marshal() ([]byte, error) {
	return encode(PaymentStreamDiscriminator, func(enc *bin.Encoder) error {
		if err := enc.WriteBytes(s.ID[:], false); err != nil {
			return err
		}
		if err := writePubkey(enc, s.Sender); err != nil {
			return err
		}
		if err := writePubkey(enc, s.Recipient); err != nil {
			return err
		}
		if err := enc.WriteUint64(s.TotalAmount, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteInt64(s.StartTime, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteInt64(s.EndTime, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteUint64(s.WithdrawnAmount, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteBool(s.IsPaused); err != nil {
			return err
		}
		if err := enc.WriteInt64(s.PausedAt, bin.LE); err != nil {
			return err
		}
		return enc.WriteUint8(uint8(s.Status))
	})
}

// DecodePaymentStream decodes a payment stream record.
func DecodePaymentStream(data []byte) (*PaymentStream, error) {
	s := new(PaymentStream)
	err := decode(data, PaymentStreamDiscriminator, "PaymentStream", func(dec *bin.Decoder) error {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return err
		}
		copy(s.ID[:], raw)
		if s.Sender, err = readPubkey(dec); err != nil {
			return err
		}
		if s.Recipient, err = readPubkey(dec); err != nil {
			return err
		}
		if s.TotalAmount, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		if s.StartTime, err = dec.ReadInt64(bin.LE); err != nil {
			return err
		}
		if s.EndTime, err = dec.ReadInt64(bin.LE); err != nil {
			return err
		}
		if s.WithdrawnAmount, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		if s.IsPaused, err = dec.ReadBool(); err != nil {
			return err
		}
		if s.PausedAt, err = dec.ReadInt64(bin.LE); err != nil {
			return err
		}
		status, err := dec.ReadUint8()
		if err != nil {
			return err
		}
		s.Status = StreamStatus(status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
