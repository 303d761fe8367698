package tokadapt

import (
	"crypto/ed25519"

	"github.com/code-payments/tokadapt-server/pkg/solana"
)

var (
	OutputStorageAuthorityPrefix = []byte("storage")
)

type GetOutputStorageAuthorityAddressArgs struct {
	State ed25519.PublicKey
}

// GetOutputStorageAuthorityAddress finds the authority that must own a
// state's output storage, along with the canonical bump.
func GetOutputStorageAuthorityAddress(args *GetOutputStorageAuthorityAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		ProgramID(),
		OutputStorageAuthorityPrefix,
		args.State,
	)
}

// DeriveOutputStorageAuthorityAddress recomputes the authority from a
// previously recorded bump.
func DeriveOutputStorageAuthorityAddress(state ed25519.PublicKey, bump uint8) (ed25519.PublicKey, error) {
	return solana.CreateProgramAddress(
		ProgramID(),
		OutputStorageAuthorityPrefix,
		state,
		[]byte{bump},
	)
}
