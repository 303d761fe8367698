package bank

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/tokadapt-server/pkg/solana"
)

// Invocation describes the privileges a single instruction executes with: the
// program being run, the accounts that signed, and the accounts that may be
// written. Privileges are only ever granted by the executor or, for program
// derived addresses, by the program the address is derived from.
type Invocation struct {
	program  ed25519.PublicKey
	signers  map[string]struct{}
	writable map[string]struct{}
	depth    int
}

// MaxInvocationDepth bounds nested program invocations.
const MaxInvocationDepth = 4

// NewInvocation builds the invocation for the instruction at the index of a
// verified message.
func NewInvocation(m solana.Message, index int) (*Invocation, error) {
	instruction, err := m.DecompileInstruction(index)
	if err != nil {
		return nil, err
	}

	inv := &Invocation{
		program:  instruction.Program,
		signers:  make(map[string]struct{}),
		writable: make(map[string]struct{}),
	}
	for _, account := range instruction.Accounts {
		if account.IsSigner {
			inv.signers[string(account.PublicKey)] = struct{}{}
		}
		if account.IsWritable {
			inv.writable[string(account.PublicKey)] = struct{}{}
		}
	}
	return inv, nil
}

// Program returns the program executing under this invocation.
func (i *Invocation) Program() ed25519.PublicKey {
	return append(ed25519.PublicKey{}, i.program...)
}

// IsSigner returns whether the account signed for this invocation.
func (i *Invocation) IsSigner(account ed25519.PublicKey) bool {
	_, ok := i.signers[string(account)]
	return ok
}

// IsWritable returns whether the account may be modified by this invocation.
func (i *Invocation) IsWritable(account ed25519.PublicKey) bool {
	_, ok := i.writable[string(account)]
	return ok
}

// RequireSigner fails with MissingRequiredSignature when the account did not
// sign.
func (i *Invocation) RequireSigner(account ed25519.PublicKey) error {
	if !i.IsSigner(account) {
		return errors.Wrapf(solana.InstructionErrorMissingRequiredSignature, "%s", base58.Encode(account))
	}
	return nil
}

// RequireWritable fails with ReadonlyDataModified when the account is not
// writable.
func (i *Invocation) RequireWritable(account ed25519.PublicKey) error {
	if !i.IsWritable(account) {
		return errors.Wrapf(solana.InstructionErrorReadonlyDataModified, "%s", base58.Encode(account))
	}
	return nil
}

// Invoke returns an invocation of another program that carries over the
// current signer and writable privileges.
func (i *Invocation) Invoke(program ed25519.PublicKey) (*Invocation, error) {
	return i.InvokeSigned(program)
}

// InvokeSigned is like Invoke, but additionally grants signing privileges to
// the addresses derived from the calling program with each provided seed set.
// A program can only ever sign for its own derived addresses.
func (i *Invocation) InvokeSigned(program ed25519.PublicKey, seeds ...[][]byte) (*Invocation, error) {
	if i.depth+1 >= MaxInvocationDepth {
		return nil, solana.InstructionErrorCallDepth
	}

	child := &Invocation{
		program:  append(ed25519.PublicKey{}, program...),
		signers:  make(map[string]struct{}, len(i.signers)+len(seeds)),
		writable: make(map[string]struct{}, len(i.writable)),
		depth:    i.depth + 1,
	}
	for k := range i.signers {
		child.signers[k] = struct{}{}
	}
	for k := range i.writable {
		child.writable[k] = struct{}{}
	}

	for _, seedSet := range seeds {
		derived, err := solana.CreateProgramAddress(i.program, seedSet...)
		if err != nil {
			return nil, errors.Wrap(solana.InstructionErrorInvalidSeeds, err.Error())
		}
		child.signers[string(derived)] = struct{}{}
	}

	return child, nil
}
