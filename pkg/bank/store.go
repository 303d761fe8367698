package bank

import (
	"context"
	"crypto/ed25519"
	"errors"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrStaleAccount        = errors.New("account was modified concurrently")
	ErrSignatureProcessed  = errors.New("signature already processed")
	ErrAlreadyInTx         = errors.New("already executing in existing store tx")
	ErrInvalidAccountState = errors.New("account state is invalid")
)

type Store interface {
	// ExecuteInTx runs fn within a single all-or-nothing transaction. Every
	// store call made with the provided context observes the writes made so
	// far, and none of them are visible outside until fn returns without
	// error. Nested transactions are not supported.
	ExecuteInTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Get gets an account by address. ErrAccountNotFound is returned when no
	// account exists.
	Get(ctx context.Context, address ed25519.PublicKey) (*Account, error)

	// Save creates or updates an account. Saving an empty account deletes it.
	// On success, the account's Version and LastUpdatedAt are updated.
	Save(ctx context.Context, account *Account) error

	// Delete removes an account. Deleting a missing account is a no-op.
	Delete(ctx context.Context, address ed25519.PublicKey) error

	// MarkSignatureProcessed records a transaction signature, returning
	// ErrSignatureProcessed if it was previously recorded.
	MarkSignatureProcessed(ctx context.Context, signature string) error
}

// GetOrEmpty is like Store.Get, but returns an empty system account when the
// address has no account.
func GetOrEmpty(ctx context.Context, store Store, address ed25519.PublicKey) (*Account, error) {
	account, err := store.Get(ctx, address)
	if err == ErrAccountNotFound {
		return NewSystemAccount(address), nil
	} else if err != nil {
		return nil, err
	}
	return account, nil
}
