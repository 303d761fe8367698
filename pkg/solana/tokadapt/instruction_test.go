package tokadapt

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
)

func TestInstructionDiscriminators(t *testing.T) {
	for name, discriminator := range map[string][]byte{
		"initialize": initializeInstructionDiscriminator,
		"swap":       swapInstructionDiscriminator,
		"set_admin":  setAdminInstructionDiscriminator,
		"close":      closeInstructionDiscriminator,
	} {
		h := sha256.Sum256([]byte("global:" + name))
		assert.Equal(t, h[:8], discriminator, name)
	}
}

func TestInitializeInstruction(t *testing.T) {
	payer := generateKey(t)
	accounts := &InitializeInstructionAccounts{
		State:         generateKey(t),
		OutputStorage: generateKey(t),
	}
	args := &InitializeInstructionArgs{
		Admin:     generateKey(t),
		InputMint: generateKey(t),
	}

	instruction := NewInitializeInstruction(accounts, args)
	assert.Equal(t, ProgramID(), instruction.Program)
	assert.Len(t, instruction.Data, 8+InitializeInstructionArgsSize)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.False(t, instruction.Accounts[1].IsWritable)

	m := solana.NewTransaction(payer, instruction).Message

	instructionType, err := GetInstructionType(m, 0)
	require.NoError(t, err)
	assert.Equal(t, InstructionTypeInitialize, instructionType)

	actualArgs, actualAccounts, err := InitializeInstructionFromLegacyInstruction(m, 0)
	require.NoError(t, err)
	assert.Equal(t, args, actualArgs)
	assert.Equal(t, accounts, actualAccounts)

	_, _, err = SwapInstructionFromLegacyInstruction(m, 0)
	assert.Equal(t, ErrUnknownInstruction, err)
}

func TestSwapInstruction(t *testing.T) {
	payer := generateKey(t)
	accounts := &SwapInstructionAccounts{
		State:                  generateKey(t),
		Input:                  generateKey(t),
		InputAuthority:         generateKey(t),
		InputMint:              generateKey(t),
		OutputStorage:          generateKey(t),
		OutputStorageAuthority: generateKey(t),
		Target:                 generateKey(t),
	}
	args := &SwapInstructionArgs{
		Amount: MaxAmount,
	}

	instruction := NewSwapInstruction(accounts, args)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, instruction.Data[8:])
	assert.True(t, instruction.Accounts[2].IsSigner)
	assert.Equal(t, token.ProgramKey, instruction.Accounts[7].PublicKey)

	m := solana.NewTransaction(payer, instruction).Message

	instructionType, err := GetInstructionType(m, 0)
	require.NoError(t, err)
	assert.Equal(t, InstructionTypeSwap, instructionType)

	actualArgs, actualAccounts, err := SwapInstructionFromLegacyInstruction(m, 0)
	require.NoError(t, err)
	assert.Equal(t, args, actualArgs)

	accounts.TokenProgram = token.ProgramKey
	assert.Equal(t, accounts, actualAccounts)

	// Truncated account list
	instruction.Accounts = instruction.Accounts[:7]
	_, _, err = SwapInstructionFromLegacyInstruction(solana.NewTransaction(payer, instruction).Message, 0)
	assert.Equal(t, ErrNotEnoughAccountKeys, err)

	// Truncated data
	instruction.Data = instruction.Data[:10]
	_, _, err = SwapInstructionFromLegacyInstruction(solana.NewTransaction(payer, instruction).Message, 0)
	assert.Equal(t, ErrInvalidInstructionData, err)
}

func TestSetAdminInstruction(t *testing.T) {
	payer := generateKey(t)
	accounts := &SetAdminInstructionAccounts{
		State:          generateKey(t),
		AdminAuthority: generateKey(t),
	}
	args := &SetAdminInstructionArgs{
		NewAdmin: generateKey(t),
	}

	m := solana.NewTransaction(payer, NewSetAdminInstruction(accounts, args)).Message

	instructionType, err := GetInstructionType(m, 0)
	require.NoError(t, err)
	assert.Equal(t, InstructionTypeSetAdmin, instructionType)

	actualArgs, actualAccounts, err := SetAdminInstructionFromLegacyInstruction(m, 0)
	require.NoError(t, err)
	assert.Equal(t, args, actualArgs)
	assert.Equal(t, accounts, actualAccounts)
	assert.True(t, m.IsSigner(indexOf(m, accounts.AdminAuthority)))
}

func TestCloseInstruction(t *testing.T) {
	payer := generateKey(t)
	accounts := &CloseInstructionAccounts{
		State:                  generateKey(t),
		AdminAuthority:         generateKey(t),
		OutputStorage:          generateKey(t),
		OutputStorageAuthority: generateKey(t),
		TokenTarget:            generateKey(t),
		RentCollector:          generateKey(t),
	}

	m := solana.NewTransaction(payer, NewCloseInstruction(accounts)).Message

	instructionType, err := GetInstructionType(m, 0)
	require.NoError(t, err)
	assert.Equal(t, InstructionTypeClose, instructionType)

	actualAccounts, err := CloseInstructionFromLegacyInstruction(m, 0)
	require.NoError(t, err)

	accounts.TokenProgram = token.ProgramKey
	assert.Equal(t, accounts, actualAccounts)
	assert.True(t, m.IsWritable(indexOf(m, accounts.RentCollector)))
	assert.False(t, m.IsWritable(indexOf(m, accounts.OutputStorageAuthority)))
}

func TestGetInstructionType_Invalid(t *testing.T) {
	payer := generateKey(t)

	_, err := GetInstructionType(solana.NewTransaction(payer, token.Transfer(generateKey(t), generateKey(t), payer, 1)).Message, 0)
	assert.Equal(t, ErrInvalidProgram, err)

	_, err = GetInstructionType(solana.NewTransaction(payer, solana.NewInstruction(ProgramID(), []byte{1, 2, 3})).Message, 0)
	assert.Equal(t, ErrUnknownInstruction, err)

	_, err = GetInstructionType(solana.NewTransaction(payer, solana.NewInstruction(ProgramID(), make([]byte, 8))).Message, 0)
	assert.Equal(t, ErrUnknownInstruction, err)

	_, err = GetInstructionType(solana.NewTransaction(payer, solana.NewInstruction(ProgramID(), make([]byte, 8))).Message, 1)
	assert.Error(t, err)
}

func indexOf(m solana.Message, key []byte) int {
	for i, account := range m.Accounts {
		if string(account) == string(key) {
			return i
		}
	}
	return -1
}
