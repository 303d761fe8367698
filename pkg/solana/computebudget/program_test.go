package computebudget

import (
	"crypto/ed25519"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokadapt-server/pkg/solana"
)

func TestInstructions(t *testing.T) {
	payer, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	tx := solana.NewTransaction(
		payer,
		SetComputeUnitLimit(200_000),
		SetComputeUnitPrice(1_000),
	)

	limit, err := DecompileInstruction(tx.Message, 0)
	require.NoError(t, err)
	assert.Equal(t, CommandSetComputeUnitLimit, limit.Command)
	assert.EqualValues(t, 200_000, limit.ComputeUnitLimit)

	price, err := DecompileInstruction(tx.Message, 1)
	require.NoError(t, err)
	assert.Equal(t, CommandSetComputeUnitPrice, price.Command)
	assert.EqualValues(t, 1_000, price.ComputeUnitPrice)

	_, err = DecompileInstruction(tx.Message, 2)
	assert.Error(t, err)
}

func TestParseInstructionData_Invalid(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		{byte(CommandRequestUnits), 0, 0, 0, 0, 0, 0, 0, 0},
		{byte(CommandSetComputeUnitLimit), 1, 2},
		{byte(CommandSetComputeUnitPrice), 1, 2, 3, 4},
		{byte(CommandRequestHeapFrame)},
		{42},
	} {
		_, err := ParseInstructionData(data)
		assert.True(t, errors.Is(err, ErrInvalidInstruction), "data: %v", data)
	}

	heap, err := ParseInstructionData([]byte{byte(CommandRequestHeapFrame), 0, 0, 4, 0})
	require.NoError(t, err)
	assert.EqualValues(t, 256*1024, heap.HeapFrameBytes)
}
