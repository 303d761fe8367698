package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokadapt-server/pkg/solana"
)

func GenerateSolanaKeypair(t *testing.T) ed25519.PrivateKey {
	_, p, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return p
}

func GenerateSolanaKeys(t *testing.T, n int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, n)
	for i := 0; i < n; i++ {
		p, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = p
	}
	return keys
}

// PublicKey returns the public key of a keypair.
func PublicKey(key ed25519.PrivateKey) ed25519.PublicKey {
	return key.Public().(ed25519.PublicKey)
}

// SignedTransaction builds a transaction paid for by the first signer, and
// signs it with all of the provided keys. Each transaction gets a random
// blockhash, so that identical instructions still yield distinct signatures.
func SignedTransaction(t *testing.T, instructions []solana.Instruction, signers ...ed25519.PrivateKey) solana.Transaction {
	require.NotEmpty(t, signers)

	var blockhash solana.Blockhash
	_, err := rand.Read(blockhash[:])
	require.NoError(t, err)

	txn := solana.NewTransaction(PublicKey(signers[0]), instructions...)
	txn.SetBlockhash(blockhash)
	require.NoError(t, txn.Sign(signers...))
	return txn
}
