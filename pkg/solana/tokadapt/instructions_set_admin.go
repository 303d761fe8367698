package tokadapt

import (
	"crypto/ed25519"

	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/binary"
)

var setAdminInstructionDiscriminator = []byte{
	251, 163, 0, 52, 91, 194, 187, 92,
}

const (
	SetAdminInstructionArgsSize = 32 // new_admin

	SetAdminInstructionAccountsSize = 2
)

type SetAdminInstructionArgs struct {
	NewAdmin ed25519.PublicKey
}

type SetAdminInstructionAccounts struct {
	State          ed25519.PublicKey
	AdminAuthority ed25519.PublicKey
}

func NewSetAdminInstruction(
	accounts *SetAdminInstructionAccounts,
	args *SetAdminInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(setAdminInstructionDiscriminator)+
			SetAdminInstructionArgsSize)

	binary.PutDiscriminator(data, setAdminInstructionDiscriminator, &offset)
	binary.PutKey32(data, args.NewAdmin, &offset)

	return solana.NewInstruction(
		ProgramID(),
		data,
		solana.NewAccountMeta(accounts.State, false),
		solana.NewReadonlyAccountMeta(accounts.AdminAuthority, true),
	)
}

func SetAdminInstructionFromLegacyInstruction(m solana.Message, idx int) (*SetAdminInstructionArgs, *SetAdminInstructionAccounts, error) {
	data, keys, err := decompileInstruction(m, idx, setAdminInstructionDiscriminator, SetAdminInstructionArgsSize, SetAdminInstructionAccountsSize)
	if err != nil {
		return nil, nil, err
	}

	offset := len(setAdminInstructionDiscriminator)

	var args SetAdminInstructionArgs
	binary.GetKey32(data, &args.NewAdmin, &offset)

	return &args, &SetAdminInstructionAccounts{
		State:          keys[0],
		AdminAuthority: keys[1],
	}, nil
}
