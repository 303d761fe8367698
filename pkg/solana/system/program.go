package system

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/binary"
)

// ProgramKey is the all zero system program address.
var ProgramKey [32]byte

// Command is the little endian u32 that prefixes system instruction data.
type Command uint32

const (
	CommandCreateAccount Command = iota
	CommandAssign
	CommandTransfer
	CommandCreateAccountWithSeed
	CommandAdvanceNonceAccount
	CommandWithdrawNonceAccount
	CommandInitializeNonceAccount
	CommandAuthorizeNonceAccount
	CommandAllocate
	CommandAllocateWithSeed
	CommandAssignWithSeed
	CommandTransferWithSeed
)

const (
	commandSize       = 4
	createAccountSize = commandSize + 8 + 8 + ed25519.PublicKeySize
	transferSize      = commandSize + 8
)

// GetCommand returns the system command of the instruction at the index.
func GetCommand(m solana.Message, index int) (Command, error) {
	ix, err := programInstruction(m, index)
	if err != nil {
		return 0, err
	}
	if len(ix.Data) < commandSize {
		return 0, solana.ErrIncorrectInstruction
	}

	var command uint32
	var offset int
	binary.GetUint32(ix.Data, &command, &offset)
	return Command(command), nil
}

type DecompiledCreateAccount struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

// CreateAccount allocates size bytes at address, funded with lamports from
// funder, and assigns it to owner. Both funder and address must sign.
func CreateAccount(funder, address, owner ed25519.PublicKey, lamports, size uint64) solana.Instruction {
	data := make([]byte, createAccountSize)
	var offset int
	binary.PutUint32(data, uint32(CommandCreateAccount), &offset)
	binary.PutUint64(data, lamports, &offset)
	binary.PutUint64(data, size, &offset)
	binary.PutKey32(data, owner, &offset)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

func DecompileCreateAccount(m solana.Message, index int) (*DecompiledCreateAccount, error) {
	ix, accounts, err := decompile(m, index, CommandCreateAccount, createAccountSize)
	if err != nil {
		return nil, err
	}

	v := &DecompiledCreateAccount{
		Funder:  accounts[0],
		Address: accounts[1],
	}
	offset := commandSize
	binary.GetUint64(ix.Data, &v.Lamports, &offset)
	binary.GetUint64(ix.Data, &v.Size, &offset)
	binary.GetKey32(ix.Data, &v.Owner, &offset)
	return v, nil
}

type DecompiledTransfer struct {
	From     ed25519.PublicKey
	To       ed25519.PublicKey
	Lamports uint64
}

// Transfer moves lamports from a signing funder to any account.
func Transfer(from, to ed25519.PublicKey, lamports uint64) solana.Instruction {
	data := make([]byte, transferSize)
	var offset int
	binary.PutUint32(data, uint32(CommandTransfer), &offset)
	binary.PutUint64(data, lamports, &offset)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(from, true),
		solana.NewAccountMeta(to, false),
	)
}

func DecompileTransfer(m solana.Message, index int) (*DecompiledTransfer, error) {
	ix, accounts, err := decompile(m, index, CommandTransfer, transferSize)
	if err != nil {
		return nil, err
	}

	v := &DecompiledTransfer{
		From: accounts[0],
		To:   accounts[1],
	}
	offset := commandSize
	binary.GetUint64(ix.Data, &v.Lamports, &offset)
	return v, nil
}

// decompile validates a two account system instruction with a fixed data
// size and resolves its accounts.
func decompile(m solana.Message, index int, command Command, dataSize int) (solana.CompiledInstruction, [2]ed25519.PublicKey, error) {
	var accounts [2]ed25519.PublicKey

	ix, err := programInstruction(m, index)
	if err != nil {
		return ix, accounts, err
	}
	actual, err := GetCommand(m, index)
	if err != nil {
		return ix, accounts, err
	}
	if actual != command {
		return ix, accounts, solana.ErrIncorrectInstruction
	}

	if len(ix.Accounts) != len(accounts) {
		return ix, accounts, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) != dataSize {
		return ix, accounts, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}

	for i := range accounts {
		accounts[i] = m.Accounts[ix.Accounts[i]]
	}
	return ix, accounts, nil
}

func programInstruction(m solana.Message, index int) (solana.CompiledInstruction, error) {
	if index < 0 || index >= len(m.Instructions) {
		return solana.CompiledInstruction{}, errors.Errorf("instruction doesn't exist at %d", index)
	}

	ix := m.Instructions[index]
	if !bytes.Equal(m.Accounts[ix.ProgramIndex], ProgramKey[:]) {
		return solana.CompiledInstruction{}, solana.ErrIncorrectProgram
	}
	return ix, nil
}
