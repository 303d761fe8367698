package solana

import (
	"bytes"
	"crypto/ed25519"
	"io"

	"github.com/pkg/errors"

	"github.com/code-payments/tokadapt-server/pkg/solana/shortvec"
)

// versionPrefixMask marks the first message byte of a versioned message.
const versionPrefixMask = 0x80

type encoder struct {
	bytes.Buffer
}

func (e *encoder) vec(n int) {
	_, _ = shortvec.EncodeLen(&e.Buffer, n)
}

func (e *encoder) bytesVec(b []byte) {
	e.vec(len(b))
	_, _ = e.Write(b)
}

// decoder reads a wire encoded transaction. Errors are annotated with the
// field being read.
type decoder struct {
	r *bytes.Reader
}

func newDecoder(b []byte) *decoder {
	return &decoder{r: bytes.NewReader(b)}
}

func (d *decoder) readByte(field string) (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s", field)
	}
	return b, nil
}

func (d *decoder) readLen(field string) (int, error) {
	n, err := shortvec.DecodeLen(d.r)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s length", field)
	}
	if n > d.r.Len() {
		return 0, errors.Errorf("%s length %d exceeds remaining %d bytes", field, n, d.r.Len())
	}
	return n, nil
}

func (d *decoder) readFull(field string, dst []byte) error {
	if _, err := io.ReadFull(d.r, dst); err != nil {
		return errors.Wrapf(err, "failed to read %s", field)
	}
	return nil
}

func (d *decoder) readBytes(field string) ([]byte, error) {
	n, err := d.readLen(field)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	return b, d.readFull(field, b)
}

func (t Transaction) Marshal() []byte {
	var e encoder

	e.vec(len(t.Signatures))
	for _, s := range t.Signatures {
		_, _ = e.Write(s[:])
	}
	_, _ = e.Write(t.Message.Marshal())

	return e.Bytes()
}

func (t *Transaction) Unmarshal(b []byte) error {
	d := newDecoder(b)

	n, err := d.readLen("signature")
	if err != nil {
		return err
	}
	t.Signatures = make([]Signature, n)
	for i := range t.Signatures {
		if err := d.readFull("signature", t.Signatures[i][:]); err != nil {
			return errors.Wrapf(err, "signature %d", i)
		}
	}

	return t.Message.Unmarshal(b[len(b)-d.r.Len():])
}

func (m Message) Marshal() []byte {
	var e encoder

	_, _ = e.Write([]byte{m.Header.NumSignatures, m.Header.NumReadonlySigned, m.Header.NumReadOnly})

	e.vec(len(m.Accounts))
	for _, a := range m.Accounts {
		_, _ = e.Write(a)
	}

	_, _ = e.Write(m.RecentBlockhash[:])

	e.vec(len(m.Instructions))
	for _, ix := range m.Instructions {
		_ = e.WriteByte(ix.ProgramIndex)
		e.bytesVec(ix.Accounts)
		e.bytesVec(ix.Data)
	}

	return e.Bytes()
}

// Unmarshal decodes a legacy message. Versioned messages, out of range
// indices and trailing bytes are rejected.
func (m *Message) Unmarshal(b []byte) error {
	if len(b) == 0 {
		return errors.New("empty message")
	}
	if b[0]&versionPrefixMask != 0 {
		return errors.New("versioned messages not supported")
	}

	d := newDecoder(b)

	var err error
	for _, h := range []struct {
		field string
		dst   *byte
	}{
		{"num signatures", &m.Header.NumSignatures},
		{"num readonly signed", &m.Header.NumReadonlySigned},
		{"num readonly", &m.Header.NumReadOnly},
	} {
		if *h.dst, err = d.readByte(h.field); err != nil {
			return err
		}
	}

	numAccounts, err := d.readLen("account")
	if err != nil {
		return err
	}
	m.Accounts = make([]ed25519.PublicKey, numAccounts)
	for i := range m.Accounts {
		m.Accounts[i] = make(ed25519.PublicKey, ed25519.PublicKeySize)
		if err := d.readFull("account", m.Accounts[i]); err != nil {
			return errors.Wrapf(err, "account %d", i)
		}
	}

	if err := d.readFull("recent blockhash", m.RecentBlockhash[:]); err != nil {
		return err
	}

	numInstructions, err := d.readLen("instruction")
	if err != nil {
		return err
	}
	m.Instructions = make([]CompiledInstruction, numInstructions)
	for i := range m.Instructions {
		ix, err := m.decodeInstruction(d)
		if err != nil {
			return errors.Wrapf(err, "instruction %d", i)
		}
		m.Instructions[i] = ix
	}

	if d.r.Len() > 0 {
		return errors.Errorf("%d trailing bytes after message", d.r.Len())
	}
	return nil
}

func (m *Message) decodeInstruction(d *decoder) (ix CompiledInstruction, err error) {
	if ix.ProgramIndex, err = d.readByte("program index"); err != nil {
		return ix, err
	}
	if int(ix.ProgramIndex) >= len(m.Accounts) {
		return ix, errors.Errorf("program index out of range: %d", ix.ProgramIndex)
	}

	if ix.Accounts, err = d.readBytes("account indices"); err != nil {
		return ix, err
	}
	for _, index := range ix.Accounts {
		if int(index) >= len(m.Accounts) {
			return ix, errors.Errorf("account index out of range: %d", index)
		}
	}

	ix.Data, err = d.readBytes("data")
	return ix, err
}
