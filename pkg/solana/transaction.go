package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

const (
	// MaxTransactionSize taken from: https://github.com/solana-labs/solana/blob/39b3ac6a8d29e14faa1de73d8b46d390ad41797b/sdk/src/packet.rs#L9-L13
	MaxTransactionSize = 1232
)

var (
	ErrSignatureFailure    = errors.New("signature verification failed")
	ErrMissingSignature    = errors.New("transaction has no signatures")
	ErrInvalidAccountIndex = errors.New("invalid account index")
)

type Signature [ed25519.SignatureSize]byte
type Blockhash [sha256.Size]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

// Message is a legacy transaction message. Accounts are ordered as
// writable signers, readonly signers, writable non-signers and then
// readonly non-signers, with the header describing the boundaries.
type Message struct {
	Header          Header
	Accounts        []ed25519.PublicKey
	RecentBlockhash Blockhash
	Instructions    []CompiledInstruction
}

type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewTransaction compiles instructions into an unsigned legacy transaction
// paid for by payer. Accounts referenced more than once are merged with the
// union of their permissions.
func NewTransaction(payer ed25519.PublicKey, instructions ...Instruction) Transaction {
	metas := []AccountMeta{{PublicKey: payer, IsSigner: true, IsWritable: true, isPayer: true}}
	for _, ix := range instructions {
		metas = append(metas, AccountMeta{PublicKey: ix.Program, isProgram: true})
		metas = append(metas, ix.Accounts...)
	}
	metas = compileAccountMetas(metas)

	var m Message
	positions := make(map[string]byte, len(metas))
	for i, meta := range metas {
		key := meta.PublicKey
		if len(key) == 0 {
			key = make(ed25519.PublicKey, ed25519.PublicKeySize)
		}
		m.Accounts = append(m.Accounts, key)
		positions[string(meta.PublicKey)] = byte(i)

		switch {
		case meta.IsSigner && !meta.IsWritable:
			m.Header.NumReadonlySigned++
			fallthrough
		case meta.IsSigner:
			m.Header.NumSignatures++
		case !meta.IsWritable:
			m.Header.NumReadOnly++
		}
	}

	for _, ix := range instructions {
		compiled := CompiledInstruction{
			ProgramIndex: positions[string(ix.Program)],
			Data:         ix.Data,
		}
		for _, account := range ix.Accounts {
			compiled.Accounts = append(compiled.Accounts, positions[string(account.PublicKey)])
		}
		m.Instructions = append(m.Instructions, compiled)
	}

	return Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}
}

// Signature returns the fee payer signature, which identifies the transaction.
func (t *Transaction) Signature() []byte {
	return t.Signatures[0][:]
}

func (t *Transaction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "signatures=%d header=%+v\n", len(t.Signatures), t.Message.Header)
	for i, s := range t.Signatures {
		fmt.Fprintf(&sb, "  sig[%d] %s\n", i, s)
	}
	for i, a := range t.Message.Accounts {
		fmt.Fprintf(&sb, "  account[%d] %s\n", i, base58.Encode(a))
	}
	for i, ix := range t.Message.Instructions {
		fmt.Fprintf(&sb, "  instruction[%d] program=%d accounts=%v data=%x\n", i, ix.ProgramIndex, ix.Accounts, ix.Data)
	}
	return sb.String()
}

func (t *Transaction) SetBlockhash(bh Blockhash) {
	t.Message.RecentBlockhash = bh
}

func (t *Transaction) Sign(signers ...ed25519.PrivateKey) error {
	messageBytes := t.Message.Marshal()

	for _, s := range signers {
		pub := s.Public().(ed25519.PublicKey)
		index := indexOf(t.Message.Accounts, pub)
		if index < 0 {
			return errors.Errorf("signing account %s is not in the account list", base58.Encode(pub))
		}
		if index >= len(t.Signatures) {
			return errors.Errorf("signing account %s is not in the list of signers", base58.Encode(pub))
		}

		copy(t.Signatures[index][:], ed25519.Sign(s, messageBytes))
	}

	return nil
}

// Sanitize validates the structural consistency of the transaction: the
// signature count matches the header, every account appears once and every
// index referenced by an instruction is in range.
func (t *Transaction) Sanitize() error {
	m := t.Message

	if len(t.Signatures) == 0 || m.Header.NumSignatures == 0 {
		return ErrMissingSignature
	}
	if len(t.Signatures) != int(m.Header.NumSignatures) {
		return errors.Errorf("signature count mismatch: %d != %d", len(t.Signatures), m.Header.NumSignatures)
	}
	if int(m.Header.NumSignatures) > len(m.Accounts) {
		return errors.Errorf("header declares %d signers for %d accounts", m.Header.NumSignatures, len(m.Accounts))
	}
	if m.Header.NumReadonlySigned >= m.Header.NumSignatures {
		return errors.New("fee payer must be a writable signer")
	}
	if int(m.Header.NumSignatures)+int(m.Header.NumReadOnly) > len(m.Accounts) {
		return errors.New("header readonly count exceeds account count")
	}

	for i := range m.Accounts {
		if len(m.Accounts[i]) != ed25519.PublicKeySize {
			return errors.Wrapf(ErrInvalidAccountIndex, "account %d has invalid size", i)
		}
		for j := 0; j < i; j++ {
			if bytes.Equal(m.Accounts[i], m.Accounts[j]) {
				return errors.Errorf("account %s loaded twice", base58.Encode(m.Accounts[i]))
			}
		}
	}

	for i, instruction := range m.Instructions {
		if int(instruction.ProgramIndex) >= len(m.Accounts) || instruction.ProgramIndex == 0 {
			return errors.Wrapf(ErrInvalidAccountIndex, "instruction %d program index %d", i, instruction.ProgramIndex)
		}
		for _, index := range instruction.Accounts {
			if int(index) >= len(m.Accounts) {
				return errors.Wrapf(ErrInvalidAccountIndex, "instruction %d account index %d", i, index)
			}
		}
	}

	return nil
}

// VerifySignatures checks every required signature against the serialized
// message.
func (t *Transaction) VerifySignatures() error {
	if err := t.Sanitize(); err != nil {
		return err
	}

	messageBytes := t.Message.Marshal()
	for i := range t.Signatures {
		if !ed25519.Verify(t.Message.Accounts[i], messageBytes, t.Signatures[i][:]) {
			return errors.Wrapf(ErrSignatureFailure, "signer %s", base58.Encode(t.Message.Accounts[i]))
		}
	}

	return nil
}

// IsSigner returns whether the account at the index signed the message.
func (m Message) IsSigner(index int) bool {
	return index >= 0 && index < int(m.Header.NumSignatures)
}

// IsWritable returns whether the account at the index may be written by the
// message.
func (m Message) IsWritable(index int) bool {
	if index < 0 || index >= len(m.Accounts) {
		return false
	}

	if index < int(m.Header.NumSignatures) {
		return index < int(m.Header.NumSignatures-m.Header.NumReadonlySigned)
	}

	return index < len(m.Accounts)-int(m.Header.NumReadOnly)
}

// FeePayer returns the first signer of the message.
func (m Message) FeePayer() ed25519.PublicKey {
	if len(m.Accounts) == 0 {
		return nil
	}
	return m.Accounts[0]
}

// ProgramKey returns the program invoked by the instruction at the index.
func (m Message) ProgramKey(index int) (ed25519.PublicKey, error) {
	if index < 0 || index >= len(m.Instructions) {
		return nil, errors.Errorf("instruction doesn't exist at %d", index)
	}

	programIndex := int(m.Instructions[index].ProgramIndex)
	if programIndex >= len(m.Accounts) {
		return nil, ErrInvalidAccountIndex
	}
	return m.Accounts[programIndex], nil
}

// DecompileInstruction rebuilds the instruction at the index, including the
// signer and writable permissions granted by the message.
func (m Message) DecompileInstruction(index int) (Instruction, error) {
	program, err := m.ProgramKey(index)
	if err != nil {
		return Instruction{}, err
	}

	compiled := m.Instructions[index]
	instruction := Instruction{
		Program: program,
		Data:    compiled.Data,
	}
	for _, accountIndex := range compiled.Accounts {
		if int(accountIndex) >= len(m.Accounts) {
			return Instruction{}, ErrInvalidAccountIndex
		}

		instruction.Accounts = append(instruction.Accounts, AccountMeta{
			PublicKey:  m.Accounts[accountIndex],
			IsSigner:   m.IsSigner(int(accountIndex)),
			IsWritable: m.IsWritable(int(accountIndex)),
		})
	}
	return instruction, nil
}

func indexOf(slice []ed25519.PublicKey, item ed25519.PublicKey) int {
	for i, val := range slice {
		if bytes.Equal(val, item) {
			return i
		}
	}

	return -1
}
