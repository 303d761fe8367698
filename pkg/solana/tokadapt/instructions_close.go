package tokadapt

import (
	"crypto/ed25519"

	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/binary"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
)

var closeInstructionDiscriminator = []byte{
	98, 165, 201, 177, 108, 65, 206, 96,
}

const (
	CloseInstructionArgsSize = 0

	CloseInstructionAccountsSize = 7
)

type CloseInstructionAccounts struct {
	State                  ed25519.PublicKey
	AdminAuthority         ed25519.PublicKey
	OutputStorage          ed25519.PublicKey
	OutputStorageAuthority ed25519.PublicKey
	TokenTarget            ed25519.PublicKey
	RentCollector          ed25519.PublicKey
	TokenProgram           ed25519.PublicKey
}

func NewCloseInstruction(
	accounts *CloseInstructionAccounts,
) solana.Instruction {
	var offset int

	data := make([]byte, len(closeInstructionDiscriminator))
	binary.PutDiscriminator(data, closeInstructionDiscriminator, &offset)

	tokenProgram := accounts.TokenProgram
	if tokenProgram == nil {
		tokenProgram = token.ProgramKey
	}

	return solana.NewInstruction(
		ProgramID(),
		data,
		solana.NewAccountMeta(accounts.State, false),
		solana.NewReadonlyAccountMeta(accounts.AdminAuthority, true),
		solana.NewAccountMeta(accounts.OutputStorage, false),
		solana.NewReadonlyAccountMeta(accounts.OutputStorageAuthority, false),
		solana.NewAccountMeta(accounts.TokenTarget, false),
		solana.NewAccountMeta(accounts.RentCollector, false),
		solana.NewReadonlyAccountMeta(tokenProgram, false),
	)
}

func CloseInstructionFromLegacyInstruction(m solana.Message, idx int) (*CloseInstructionAccounts, error) {
	_, keys, err := decompileInstruction(m, idx, closeInstructionDiscriminator, CloseInstructionArgsSize, CloseInstructionAccountsSize)
	if err != nil {
		return nil, err
	}

	return &CloseInstructionAccounts{
		State:                  keys[0],
		AdminAuthority:         keys[1],
		OutputStorage:          keys[2],
		OutputStorageAuthority: keys[3],
		TokenTarget:            keys[4],
		RentCollector:          keys[5],
		TokenProgram:           keys[6],
	}, nil
}
