package adapter

import (
	"crypto/ed25519"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
	"github.com/code-payments/tokadapt-server/pkg/solana/tokadapt"
)

// storageSigner is the permission to sign as a state's output storage
// authority. It can only be obtained from preflight, after the state was
// loaded and the authority re-derived from its recorded bump, and it never
// leaves this package.
type storageSigner struct {
	state     ed25519.PublicKey
	authority ed25519.PublicKey
	bump      uint8
}

func newStorageSigner(state ed25519.PublicKey, record *tokadapt.StateAccount) (storageSigner, error) {
	authority, err := tokadapt.DeriveOutputStorageAuthorityAddress(state, record.OutputStorageAuthorityBump)
	if err != nil {
		return storageSigner{}, err
	}

	return storageSigner{
		state:     state,
		authority: authority,
		bump:      record.OutputStorageAuthorityBump,
	}, nil
}

// invokeTokenProgram returns an invocation of the token program in which the
// output storage authority has signed.
func (s storageSigner) invokeTokenProgram(inv *bank.Invocation) (*bank.Invocation, error) {
	return inv.InvokeSigned(token.ProgramKey, s.seeds())
}

func (s storageSigner) seeds() [][]byte {
	return [][]byte{
		tokadapt.OutputStorageAuthorityPrefix,
		s.state,
		{s.bump},
	}
}
