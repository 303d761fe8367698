package memo

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokadapt-server/pkg/solana"
)

func TestInstruction(t *testing.T) {
	i := Instruction("swap:123")
	assert.Equal(t, ProgramKey, i.Program)
	assert.Empty(t, i.Accounts)
	assert.Equal(t, "swap:123", string(i.Data))

	signer, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	i = Instruction("swap:123", signer)
	require.Len(t, i.Accounts, 1)
	assert.EqualValues(t, signer, i.Accounts[0].PublicKey)
	assert.True(t, i.Accounts[0].IsSigner)
	assert.False(t, i.Accounts[0].IsWritable)
}

func TestDecompile(t *testing.T) {
	payer, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	tx := solana.NewTransaction(
		payer,
		Instruction("hello, world", payer),
	)

	i, err := DecompileMemo(tx.Message, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(i.Data))
	require.Len(t, i.Signers, 1)
	assert.EqualValues(t, payer, i.Signers[0])

	_, err = DecompileMemo(tx.Message, 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "instruction doesn't exist")

	tx.Message.Instructions[0].Data = []byte{0xff, 0xfe}
	_, err = DecompileMemo(tx.Message, 0)
	assert.Equal(t, ErrInvalidMemo, err)

	other, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	tx.Message.Accounts[tx.Message.Instructions[0].ProgramIndex] = other
	_, err = DecompileMemo(tx.Message, 0)
	assert.Equal(t, solana.ErrIncorrectProgram, err)
}
