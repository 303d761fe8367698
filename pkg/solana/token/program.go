package token

import (
	"bytes"
	"crypto/ed25519"
	"math"

	"github.com/pkg/errors"

	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/binary"
	"github.com/code-payments/tokadapt-server/pkg/solana/system"
)

// ProgramKey is the SPL token program, TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA.
var ProgramKey = ed25519.PublicKey{6, 221, 246, 225, 215, 101, 161, 147, 217, 203, 225, 70, 206, 235, 121, 172, 28, 180, 133, 237, 95, 91, 55, 145, 58, 140, 245, 133, 126, 255, 0, 169}

// Command is the leading instruction data byte.
type Command byte

const (
	CommandInitializeMint Command = iota
	CommandInitializeAccount
	CommandInitializeMultisig
	CommandTransfer
	CommandApprove
	CommandRevoke
	CommandSetAuthority
	CommandMintTo
	CommandBurn
	CommandCloseAccount
	CommandFreezeAccount
	CommandThawAccount
	CommandTransfer2
	CommandApprove2
	CommandMintTo2
	CommandBurn2

	CommandUnknown = Command(math.MaxUint8)
)

// Custom error codes, in the order the token program defines them.
const (
	ErrorNotRentExempt solana.CustomError = iota
	ErrorInsufficientFunds
	ErrorInvalidMint
	ErrorMintMismatch
	ErrorOwnerMismatch
	ErrorFixedSupply
	ErrorAlreadyInUse
	ErrorInvalidNumberOfProvidedSigners
	ErrorInvalidNumberOfRequiredSigners
	ErrorUninitializedState
	ErrorNativeNotSupported
	ErrorNonNativeHasBalance
	ErrorInvalidInstruction
	ErrorInvalidState
	ErrorOverflow
	ErrorAuthorityTypeNotSupported
	ErrorMintCannotFreeze
	ErrorAccountFrozen
	ErrorMintDecimalsMismatch
)

type AuthorityType byte

const (
	AuthorityTypeMintTokens AuthorityType = iota
	AuthorityTypeFreezeAccount
	AuthorityTypeAccountHolder
	AuthorityTypeCloseAccount
)

const amountDataSize = 1 + 8

// GetCommand returns the command of the token instruction at index.
func GetCommand(m solana.Message, index int) (Command, error) {
	ix, err := programInstruction(m, index)
	if err != nil {
		return CommandUnknown, err
	}
	if len(ix.Data) == 0 {
		return CommandUnknown, errors.New("token instruction missing data")
	}
	return Command(ix.Data[0]), nil
}

type DecompiledInitializeMint struct {
	Mint            ed25519.PublicKey
	Decimals        byte
	MintAuthority   ed25519.PublicKey
	FreezeAuthority ed25519.PublicKey
}

// InitializeMint creates a mint with the given authorities. A nil freeze
// authority creates a mint that cannot freeze accounts.
//
// Accounts: [writable] mint, [] rent sysvar.
func InitializeMint(mint, mintAuthority, freezeAuthority ed25519.PublicKey, decimals byte) solana.Instruction {
	data := []byte{byte(CommandInitializeMint), decimals}
	data = append(data, mintAuthority...)
	data = appendOptionalKey(data, freezeAuthority)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)
}

func DecompileInitializeMint(m solana.Message, index int) (*DecompiledInitializeMint, error) {
	ix, err := commandInstruction(m, index, CommandInitializeMint)
	if err != nil {
		return nil, err
	}
	if len(ix.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}

	const fixedSize = 2 + ed25519.PublicKeySize
	if len(ix.Data) <= fixedSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}
	freezeAuthority, err := readOptionalKey(ix.Data[fixedSize:])
	if err != nil {
		return nil, errors.Wrap(err, "invalid freeze authority")
	}

	return &DecompiledInitializeMint{
		Mint:            m.Accounts[ix.Accounts[0]],
		Decimals:        ix.Data[1],
		MintAuthority:   ix.Data[2:fixedSize],
		FreezeAuthority: freezeAuthority,
	}, nil
}

type DecompiledInitializeAccount struct {
	Account ed25519.PublicKey
	Mint    ed25519.PublicKey
	Owner   ed25519.PublicKey
}

// InitializeAccount binds account to mint with the given owner.
//
// Accounts: [writable] account, [] mint, [] owner, [] rent sysvar.
func InitializeAccount(account, mint, owner ed25519.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandInitializeAccount)},
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(owner, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)
}

func DecompileInitializeAccount(m solana.Message, index int) (*DecompiledInitializeAccount, error) {
	ix, err := commandInstruction(m, index, CommandInitializeAccount)
	if err != nil {
		return nil, err
	}
	if len(ix.Data) != 1 {
		return nil, solana.ErrIncorrectInstruction
	}
	if len(ix.Accounts) != 4 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}

	accounts := resolveAccounts(m, ix)
	if !bytes.Equal(system.RentSysVar, accounts[3]) {
		return nil, errors.New("invalid rent program")
	}

	return &DecompiledInitializeAccount{
		Account: accounts[0],
		Mint:    accounts[1],
		Owner:   accounts[2],
	}, nil
}

type DecompiledTransfer struct {
	Source      ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
	Amount      uint64
}

// Transfer moves amount from source to dest.
//
// Accounts: [writable] source, [writable] destination, [signer] owner or delegate.
func Transfer(source, dest, owner ed25519.PublicKey, amount uint64) solana.Instruction {
	return newAmountInstruction(CommandTransfer, amount, source, dest, owner)
}

func DecompileTransfer(m solana.Message, index int) (*DecompiledTransfer, error) {
	accounts, amount, err := decompileAmountInstruction(m, index, CommandTransfer)
	if err != nil {
		return nil, err
	}

	return &DecompiledTransfer{
		Source:      accounts[0],
		Destination: accounts[1],
		Owner:       accounts[2],
		Amount:      amount,
	}, nil
}

type DecompiledApprove struct {
	Source   ed25519.PublicKey
	Delegate ed25519.PublicKey
	Owner    ed25519.PublicKey
	Amount   uint64
}

// Approve lets delegate transfer up to amount out of source.
//
// Accounts: [writable] source, [] delegate, [signer] owner.
func Approve(source, delegate, owner ed25519.PublicKey, amount uint64) solana.Instruction {
	instruction := newAmountInstruction(CommandApprove, amount, source, delegate, owner)
	instruction.Accounts[1].IsWritable = false
	return instruction
}

func DecompileApprove(m solana.Message, index int) (*DecompiledApprove, error) {
	accounts, amount, err := decompileAmountInstruction(m, index, CommandApprove)
	if err != nil {
		return nil, err
	}

	return &DecompiledApprove{
		Source:   accounts[0],
		Delegate: accounts[1],
		Owner:    accounts[2],
		Amount:   amount,
	}, nil
}

type DecompiledSetAuthority struct {
	Account          ed25519.PublicKey
	CurrentAuthority ed25519.PublicKey
	NewAuthority     ed25519.PublicKey
	Type             AuthorityType
}

// SetAuthority replaces an authority of a mint or account. A nil
// newAuthority clears it.
//
// Accounts: [writable] mint or account, [signer] current authority.
func SetAuthority(account, currentAuthority, newAuthority ed25519.PublicKey, authorityType AuthorityType) solana.Instruction {
	data := appendOptionalKey([]byte{byte(CommandSetAuthority), byte(authorityType)}, newAuthority)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(currentAuthority, true),
	)
}

func DecompileSetAuthority(m solana.Message, index int) (*DecompiledSetAuthority, error) {
	ix, err := commandInstruction(m, index, CommandSetAuthority)
	if err != nil {
		return nil, err
	}
	if len(ix.Accounts) < 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) < 3 {
		return nil, errors.Errorf("invalid data size: %d (expect at least 3)", len(ix.Data))
	}

	newAuthority, err := readOptionalKey(ix.Data[2:])
	if err != nil {
		return nil, errors.Wrapf(err, "invalid data size: %d", len(ix.Data))
	}

	accounts := resolveAccounts(m, ix)
	return &DecompiledSetAuthority{
		Account:          accounts[0],
		CurrentAuthority: accounts[1],
		NewAuthority:     newAuthority,
		Type:             AuthorityType(ix.Data[1]),
	}, nil
}

type DecompiledMintTo struct {
	Mint          ed25519.PublicKey
	Destination   ed25519.PublicKey
	MintAuthority ed25519.PublicKey
	Amount        uint64
}

// MintTo issues amount new tokens into dest.
//
// Accounts: [writable] mint, [writable] destination, [signer] mint authority.
func MintTo(mint, dest, mintAuthority ed25519.PublicKey, amount uint64) solana.Instruction {
	return newAmountInstruction(CommandMintTo, amount, mint, dest, mintAuthority)
}

func DecompileMintTo(m solana.Message, index int) (*DecompiledMintTo, error) {
	accounts, amount, err := decompileAmountInstruction(m, index, CommandMintTo)
	if err != nil {
		return nil, err
	}

	return &DecompiledMintTo{
		Mint:          accounts[0],
		Destination:   accounts[1],
		MintAuthority: accounts[2],
		Amount:        amount,
	}, nil
}

type DecompiledBurn struct {
	Account ed25519.PublicKey
	Mint    ed25519.PublicKey
	Owner   ed25519.PublicKey
	Amount  uint64
}

// Burn destroys amount tokens held by account.
//
// Accounts: [writable] account, [writable] mint, [signer] owner or delegate.
func Burn(account, mint, owner ed25519.PublicKey, amount uint64) solana.Instruction {
	return newAmountInstruction(CommandBurn, amount, account, mint, owner)
}

func DecompileBurn(m solana.Message, index int) (*DecompiledBurn, error) {
	accounts, amount, err := decompileAmountInstruction(m, index, CommandBurn)
	if err != nil {
		return nil, err
	}

	return &DecompiledBurn{
		Account: accounts[0],
		Mint:    accounts[1],
		Owner:   accounts[2],
		Amount:  amount,
	}, nil
}

type DecompiledCloseAccount struct {
	Account     ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
}

// CloseAccount deletes an empty account and moves its lamports to dest.
//
// Accounts: [writable] account, [writable] destination, [signer] owner.
func CloseAccount(account, dest, owner ed25519.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandCloseAccount)},
		solana.NewAccountMeta(account, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

func DecompileCloseAccount(m solana.Message, index int) (*DecompiledCloseAccount, error) {
	ix, err := commandInstruction(m, index, CommandCloseAccount)
	if err != nil {
		return nil, err
	}
	if len(ix.Data) != 1 {
		return nil, solana.ErrIncorrectInstruction
	}
	if len(ix.Accounts) < 3 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}

	accounts := resolveAccounts(m, ix)
	return &DecompiledCloseAccount{
		Account:     accounts[0],
		Destination: accounts[1],
		Owner:       accounts[2],
	}, nil
}

func newAmountInstruction(command Command, amount uint64, first, second, authority ed25519.PublicKey) solana.Instruction {
	data := make([]byte, amountDataSize)
	var offset int
	binary.PutUint8(data, uint8(command), &offset)
	binary.PutUint64(data, amount, &offset)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(first, false),
		solana.NewAccountMeta(second, false),
		solana.NewReadonlyAccountMeta(authority, true),
	)
}

// decompileAmountInstruction accepts more than three accounts so multisig
// signers can follow the authority.
func decompileAmountInstruction(m solana.Message, index int, command Command) (accounts []ed25519.PublicKey, amount uint64, err error) {
	ix, err := commandInstruction(m, index, command)
	if err != nil {
		return nil, 0, err
	}
	if len(ix.Accounts) < 3 {
		return nil, 0, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) != amountDataSize {
		return nil, 0, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}

	offset := 1
	binary.GetUint64(ix.Data, &amount, &offset)
	return resolveAccounts(m, ix), amount, nil
}

// appendOptionalKey writes a one byte presence tag followed by the key
// when it is set.
func appendOptionalKey(data []byte, key ed25519.PublicKey) []byte {
	if len(key) == 0 {
		return append(data, 0)
	}
	return append(append(data, 1), key...)
}

func readOptionalKey(data []byte) (ed25519.PublicKey, error) {
	switch {
	case len(data) == 1 && data[0] == 0:
		return nil, nil
	case len(data) == 1+ed25519.PublicKeySize && data[0] == 1:
		return data[1:], nil
	default:
		return nil, errors.Errorf("malformed optional key (tag %d, %d bytes)", data[0], len(data))
	}
}

func programInstruction(m solana.Message, index int) (solana.CompiledInstruction, error) {
	if index < 0 || index >= len(m.Instructions) {
		return solana.CompiledInstruction{}, errors.Errorf("instruction doesn't exist at %d", index)
	}

	ix := m.Instructions[index]
	if !bytes.Equal(m.Accounts[ix.ProgramIndex], ProgramKey) {
		return solana.CompiledInstruction{}, solana.ErrIncorrectProgram
	}
	return ix, nil
}

func commandInstruction(m solana.Message, index int, command Command) (solana.CompiledInstruction, error) {
	ix, err := programInstruction(m, index)
	if err != nil {
		return ix, err
	}
	if len(ix.Data) == 0 || Command(ix.Data[0]) != command {
		return solana.CompiledInstruction{}, solana.ErrIncorrectInstruction
	}
	return ix, nil
}

func resolveAccounts(m solana.Message, ix solana.CompiledInstruction) []ed25519.PublicKey {
	accounts := make([]ed25519.PublicKey, len(ix.Accounts))
	for i, index := range ix.Accounts {
		accounts[i] = m.Accounts[index]
	}
	return accounts
}
