package bank

import (
	"bytes"
	"crypto/ed25519"
	"math"
	"time"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/tokadapt-server/pkg/solana/system"
)

// MaxAccountDataSize bounds the data any single account may hold.
const MaxAccountDataSize = 10 * 1024 * 1024

// Account is the durable state of a single address. An address without an
// account behaves like an empty, system owned account with zero lamports.
type Account struct {
	Address  ed25519.PublicKey
	Owner    ed25519.PublicKey
	Lamports uint64
	Data     []byte

	// Version is incremented by the store on every save and is used to detect
	// concurrent modification.
	Version uint64

	LastUpdatedAt time.Time
}

// NewSystemAccount returns an unsaved, empty system owned account.
func NewSystemAccount(address ed25519.PublicKey) *Account {
	return &Account{
		Address: append(ed25519.PublicKey{}, address...),
		Owner:   append(ed25519.PublicKey{}, system.ProgramKey[:]...),
	}
}

func (a *Account) Validate() error {
	if len(a.Address) != ed25519.PublicKeySize {
		return errors.New("address is invalid")
	}
	if len(a.Owner) != ed25519.PublicKeySize {
		return errors.New("owner is invalid")
	}
	if a.Lamports > math.MaxInt64 {
		return errors.New("lamports exceeds max supported value")
	}
	if len(a.Data) > MaxAccountDataSize {
		return errors.New("data exceeds max account size")
	}
	return nil
}

// IsSystemOwned returns whether the account is owned by the system program.
func (a *Account) IsSystemOwned() bool {
	return bytes.Equal(a.Owner, system.ProgramKey[:])
}

// IsOwnedBy returns whether the account is owned by the provided program.
func (a *Account) IsOwnedBy(program ed25519.PublicKey) bool {
	return bytes.Equal(a.Owner, program)
}

// IsEmpty returns whether the account holds nothing, in which case the store
// treats it as deleted.
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

func (a *Account) Clone() *Account {
	return &Account{
		Address:       append(ed25519.PublicKey{}, a.Address...),
		Owner:         append(ed25519.PublicKey{}, a.Owner...),
		Lamports:      a.Lamports,
		Data:          append([]byte{}, a.Data...),
		Version:       a.Version,
		LastUpdatedAt: a.LastUpdatedAt,
	}
}

func (a *Account) CopyTo(dst *Account) {
	dst.Address = append(ed25519.PublicKey{}, a.Address...)
	dst.Owner = append(ed25519.PublicKey{}, a.Owner...)
	dst.Lamports = a.Lamports
	dst.Data = append([]byte{}, a.Data...)
	dst.Version = a.Version
	dst.LastUpdatedAt = a.LastUpdatedAt
}

func (a *Account) String() string {
	return "Account{address=" + base58.Encode(a.Address) + ", owner=" + base58.Encode(a.Owner) + "}"
}
