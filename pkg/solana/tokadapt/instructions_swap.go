package tokadapt

import (
	"crypto/ed25519"

	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/binary"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
)

var swapInstructionDiscriminator = []byte{
	248, 198, 158, 145, 225, 117, 135, 200,
}

const (
	SwapInstructionArgsSize = 8 // amount

	SwapInstructionAccountsSize = 8
)

type SwapInstructionArgs struct {
	Amount uint64
}

type SwapInstructionAccounts struct {
	State                  ed25519.PublicKey
	Input                  ed25519.PublicKey
	InputAuthority         ed25519.PublicKey
	InputMint              ed25519.PublicKey
	OutputStorage          ed25519.PublicKey
	OutputStorageAuthority ed25519.PublicKey
	Target                 ed25519.PublicKey
	TokenProgram           ed25519.PublicKey
}

func NewSwapInstruction(
	accounts *SwapInstructionAccounts,
	args *SwapInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(swapInstructionDiscriminator)+
			SwapInstructionArgsSize)

	binary.PutDiscriminator(data, swapInstructionDiscriminator, &offset)
	binary.PutUint64(data, args.Amount, &offset)

	tokenProgram := accounts.TokenProgram
	if tokenProgram == nil {
		tokenProgram = token.ProgramKey
	}

	return solana.NewInstruction(
		ProgramID(),
		data,
		solana.NewReadonlyAccountMeta(accounts.State, false),
		solana.NewAccountMeta(accounts.Input, false),
		solana.NewReadonlyAccountMeta(accounts.InputAuthority, true),
		solana.NewAccountMeta(accounts.InputMint, false),
		solana.NewAccountMeta(accounts.OutputStorage, false),
		solana.NewReadonlyAccountMeta(accounts.OutputStorageAuthority, false),
		solana.NewAccountMeta(accounts.Target, false),
		solana.NewReadonlyAccountMeta(tokenProgram, false),
	)
}

func SwapInstructionFromLegacyInstruction(m solana.Message, idx int) (*SwapInstructionArgs, *SwapInstructionAccounts, error) {
	data, keys, err := decompileInstruction(m, idx, swapInstructionDiscriminator, SwapInstructionArgsSize, SwapInstructionAccountsSize)
	if err != nil {
		return nil, nil, err
	}

	offset := len(swapInstructionDiscriminator)

	var args SwapInstructionArgs
	binary.GetUint64(data, &args.Amount, &offset)

	return &args, &SwapInstructionAccounts{
		State:                  keys[0],
		Input:                  keys[1],
		InputAuthority:         keys[2],
		InputMint:              keys[3],
		OutputStorage:          keys[4],
		OutputStorageAuthority: keys[5],
		Target:                 keys[6],
		TokenProgram:           keys[7],
	}, nil
}
