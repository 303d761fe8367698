package testutil

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
)

// SetupFundedAccount creates a system account holding the provided lamports
// and returns its keypair.
func SetupFundedAccount(t *testing.T, store bank.Store, lamports uint64) ed25519.PrivateKey {
	key := GenerateSolanaKeypair(t)

	account := bank.NewSystemAccount(PublicKey(key))
	account.Lamports = lamports
	require.NoError(t, store.Save(context.Background(), account))

	return key
}

// SetupMint creates an initialized, rent exempt mint with the provided
// authority and returns its address.
func SetupMint(t *testing.T, store bank.Store, authority ed25519.PublicKey, decimals byte) ed25519.PublicKey {
	address := GenerateSolanaKeys(t, 1)[0]

	state := &token.Mint{
		MintAuthority: authority,
		Decimals:      decimals,
		IsInitialized: true,
	}
	require.NoError(t, store.Save(context.Background(), &bank.Account{
		Address:  address,
		Owner:    token.ProgramKey,
		Lamports: bank.RentExemptMinimum(token.MintSize),
		Data:     state.Marshal(),
	}))

	return address
}

type TokenAccountOption func(*token.Account)

// WithDelegate sets a spending delegate and its allowance.
func WithDelegate(delegate ed25519.PublicKey, amount uint64) TokenAccountOption {
	return func(a *token.Account) {
		a.Delegate = delegate
		a.DelegatedAmount = amount
	}
}

// WithCloseAuthority sets a close authority.
func WithCloseAuthority(authority ed25519.PublicKey) TokenAccountOption {
	return func(a *token.Account) {
		a.CloseAuthority = authority
	}
}

// SetupTokenAccount creates a token account for the mint holding amount, and
// adds amount to the mint's supply.
func SetupTokenAccount(t *testing.T, store bank.Store, address, mint, owner ed25519.PublicKey, amount uint64, opts ...TokenAccountOption) ed25519.PublicKey {
	ctx := context.Background()

	if address == nil {
		address = GenerateSolanaKeys(t, 1)[0]
	}

	state := &token.Account{
		Mint:   mint,
		Owner:  owner,
		Amount: amount,
		State:  token.AccountStateInitialized,
	}
	for _, opt := range opts {
		opt(state)
	}

	require.NoError(t, store.Save(ctx, &bank.Account{
		Address:  address,
		Owner:    token.ProgramKey,
		Lamports: bank.RentExemptMinimum(token.AccountSize),
		Data:     state.Marshal(),
	}))

	rawMint, err := store.Get(ctx, mint)
	require.NoError(t, err)

	var mintState token.Mint
	require.True(t, mintState.Unmarshal(rawMint.Data))
	mintState.Supply += amount
	rawMint.Data = mintState.Marshal()
	require.NoError(t, store.Save(ctx, rawMint))

	return address
}

// GetTokenAccount loads a token account's state.
func GetTokenAccount(t *testing.T, store bank.Store, address ed25519.PublicKey) *token.Account {
	raw, err := store.Get(context.Background(), address)
	require.NoError(t, err)

	var state token.Account
	require.True(t, state.Unmarshal(raw.Data))
	return &state
}

// GetMint loads a mint's state.
func GetMint(t *testing.T, store bank.Store, address ed25519.PublicKey) *token.Mint {
	raw, err := store.Get(context.Background(), address)
	require.NoError(t, err)

	var state token.Mint
	require.True(t, state.Unmarshal(raw.Data))
	return &state
}

// GetLamports returns an address's lamports, which is zero for a missing
// account.
func GetLamports(t *testing.T, store bank.Store, address ed25519.PublicKey) uint64 {
	account, err := bank.GetOrEmpty(context.Background(), store, address)
	require.NoError(t, err)
	return account.Lamports
}
