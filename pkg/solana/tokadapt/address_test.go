package tokadapt

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokadapt-server/pkg/solana"
)

func TestGetOutputStorageAuthorityAddress(t *testing.T) {
	for i := 0; i < 32; i++ {
		state, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)

		address, bump, err := GetOutputStorageAuthorityAddress(&GetOutputStorageAuthorityAddressArgs{
			State: state,
		})
		require.NoError(t, err)

		expected, err := solana.CreateProgramAddress(ProgramID(), []byte("storage"), state, []byte{bump})
		require.NoError(t, err)
		assert.Equal(t, expected, address)

		derived, err := DeriveOutputStorageAuthorityAddress(state, bump)
		require.NoError(t, err)
		assert.Equal(t, address, derived)

		// Any other bump either produces a different address or an on-curve
		// point that cannot be used as a program address.
		derived, err = DeriveOutputStorageAuthorityAddress(state, bump-1)
		if err == nil {
			assert.NotEqual(t, address, derived)
		} else {
			assert.Equal(t, solana.ErrInvalidPublicKey, err)
		}
	}
}

func TestProgramID(t *testing.T) {
	assert.Equal(t, mustBase58Decode(DefaultProgramAddress), []byte(ProgramID()))

	// Once read, the identity cannot be changed
	require.NoError(t, InitProgramID(ProgramID()))

	other, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	assert.Equal(t, ErrProgramIDAlreadySet, InitProgramID(other))
	assert.Equal(t, ErrInvalidProgram, InitProgramID(other[:8]))

	// Callers cannot mutate the shared value
	id := ProgramID()
	id[0] ^= 0xff
	assert.NotEqual(t, id, ProgramID())
}
