package tokadapt

import (
	"crypto/ed25519"

	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/binary"
)

var initializeInstructionDiscriminator = []byte{
	175, 175, 109, 31, 13, 152, 155, 237,
}

const (
	InitializeInstructionArgsSize = (32 + // admin
		32) // input_mint

	InitializeInstructionAccountsSize = 2
)

type InitializeInstructionArgs struct {
	Admin     ed25519.PublicKey
	InputMint ed25519.PublicKey
}

type InitializeInstructionAccounts struct {
	State         ed25519.PublicKey
	OutputStorage ed25519.PublicKey
}

func NewInitializeInstruction(
	accounts *InitializeInstructionAccounts,
	args *InitializeInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(initializeInstructionDiscriminator)+
			InitializeInstructionArgsSize)

	binary.PutDiscriminator(data, initializeInstructionDiscriminator, &offset)
	binary.PutKey32(data, args.Admin, &offset)
	binary.PutKey32(data, args.InputMint, &offset)

	return solana.NewInstruction(
		ProgramID(),
		data,
		solana.NewAccountMeta(accounts.State, false),
		solana.NewReadonlyAccountMeta(accounts.OutputStorage, false),
	)
}

func InitializeInstructionFromLegacyInstruction(m solana.Message, idx int) (*InitializeInstructionArgs, *InitializeInstructionAccounts, error) {
	data, keys, err := decompileInstruction(m, idx, initializeInstructionDiscriminator, InitializeInstructionArgsSize, InitializeInstructionAccountsSize)
	if err != nil {
		return nil, nil, err
	}

	offset := len(initializeInstructionDiscriminator)

	var args InitializeInstructionArgs
	binary.GetKey32(data, &args.Admin, &offset)
	binary.GetKey32(data, &args.InputMint, &offset)

	return &args, &InitializeInstructionAccounts{
		State:         keys[0],
		OutputStorage: keys[1],
	}, nil
}
