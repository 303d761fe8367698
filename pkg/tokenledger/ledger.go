package tokenledger

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
)

var (
	ErrNotTokenAccount = errors.New("account is not an initialized token account")
	ErrNotMint         = errors.New("account is not an initialized mint")
)

// Ledger is the token program: it owns every token account and mint, and is
// the only component that modifies their balances.
type Ledger struct {
	log   *logrus.Entry
	store bank.Store
}

func New(store bank.Store) *Ledger {
	return &Ledger{
		log:   logrus.StandardLogger().WithField("type", "tokenledger/ledger"),
		store: store,
	}
}

// GetAccount returns the token account state at the address.
func (l *Ledger) GetAccount(ctx context.Context, address ed25519.PublicKey) (*token.Account, error) {
	raw, err := l.store.Get(ctx, address)
	if err != nil {
		return nil, err
	}

	var state token.Account
	if !raw.IsOwnedBy(token.ProgramKey) || !state.Unmarshal(raw.Data) || state.State == token.AccountStateUninitialized {
		return nil, ErrNotTokenAccount
	}
	return &state, nil
}

// GetMint returns the mint state at the address.
func (l *Ledger) GetMint(ctx context.Context, address ed25519.PublicKey) (*token.Mint, error) {
	raw, err := l.store.Get(ctx, address)
	if err != nil {
		return nil, err
	}

	var state token.Mint
	if !raw.IsOwnedBy(token.ProgramKey) || !state.Unmarshal(raw.Data) || !state.IsInitialized {
		return nil, ErrNotMint
	}
	return &state, nil
}

// InitializeMint initializes a rent exempt, token program owned allocation as
// a mint.
func (l *Ledger) InitializeMint(ctx context.Context, inv *bank.Invocation, mint, mintAuthority, freezeAuthority ed25519.PublicKey, decimals byte) error {
	if err := requireTokenProgram(inv); err != nil {
		return err
	}
	if err := inv.RequireWritable(mint); err != nil {
		return err
	}

	raw, err := l.loadOwned(ctx, mint, token.MintSize)
	if err != nil {
		return err
	}

	var state token.Mint
	state.Unmarshal(raw.Data)
	if state.IsInitialized {
		return token.ErrorAlreadyInUse
	}
	if !bank.IsRentExempt(raw) {
		return token.ErrorNotRentExempt
	}

	state = token.Mint{
		MintAuthority:   cloneKey(mintAuthority),
		Decimals:        decimals,
		IsInitialized:   true,
		FreezeAuthority: cloneKey(freezeAuthority),
	}
	raw.Data = state.Marshal()
	return l.store.Save(ctx, raw)
}

// InitializeAccount initializes a rent exempt, token program owned allocation
// as a token account for the mint.
func (l *Ledger) InitializeAccount(ctx context.Context, inv *bank.Invocation, account, mint, owner ed25519.PublicKey) error {
	if err := requireTokenProgram(inv); err != nil {
		return err
	}
	if err := inv.RequireWritable(account); err != nil {
		return err
	}

	raw, err := l.loadOwned(ctx, account, token.AccountSize)
	if err != nil {
		return err
	}

	var state token.Account
	state.Unmarshal(raw.Data)
	if state.State != token.AccountStateUninitialized {
		return token.ErrorAlreadyInUse
	}
	if !bank.IsRentExempt(raw) {
		return token.ErrorNotRentExempt
	}

	if _, _, err := l.loadMint(ctx, mint); err != nil {
		return token.ErrorInvalidMint
	}

	state = token.Account{
		Mint:  cloneKey(mint),
		Owner: cloneKey(owner),
		State: token.AccountStateInitialized,
	}
	raw.Data = state.Marshal()
	return l.store.Save(ctx, raw)
}

// MintTo creates new tokens in the destination account.
func (l *Ledger) MintTo(ctx context.Context, inv *bank.Invocation, mint, destination, mintAuthority ed25519.PublicKey, amount uint64) error {
	if err := requireTokenProgram(inv); err != nil {
		return err
	}
	if err := requireWritable(inv, mint, destination); err != nil {
		return err
	}

	rawDest, dest, err := l.loadAccount(ctx, destination)
	if err != nil {
		return err
	}
	if dest.State == token.AccountStateFrozen {
		return token.ErrorAccountFrozen
	}
	if !bytes.Equal(dest.Mint, mint) {
		return token.ErrorMintMismatch
	}

	rawMint, mintState, err := l.loadMint(ctx, mint)
	if err != nil {
		return err
	}
	if len(mintState.MintAuthority) == 0 {
		return token.ErrorFixedSupply
	}
	if err := validateAuthority(inv, mintState.MintAuthority, mintAuthority); err != nil {
		return err
	}

	if mintState.Supply+amount < mintState.Supply || dest.Amount+amount < dest.Amount {
		return token.ErrorOverflow
	}
	mintState.Supply += amount
	dest.Amount += amount

	if err := l.saveMint(ctx, rawMint, mintState); err != nil {
		return err
	}
	return l.saveAccount(ctx, rawDest, dest)
}

// Transfer moves tokens between two accounts of the same mint. The authority
// is either the source owner or its delegate, in which case the transfer is
// bounded by and deducted from the delegated allowance.
func (l *Ledger) Transfer(ctx context.Context, inv *bank.Invocation, source, destination, authority ed25519.PublicKey, amount uint64) error {
	if err := requireTokenProgram(inv); err != nil {
		return err
	}
	if err := requireWritable(inv, source, destination); err != nil {
		return err
	}

	rawSource, sourceState, err := l.loadAccount(ctx, source)
	if err != nil {
		return err
	}
	rawDest, destState, err := l.loadAccount(ctx, destination)
	if err != nil {
		return err
	}

	if sourceState.State == token.AccountStateFrozen || destState.State == token.AccountStateFrozen {
		return token.ErrorAccountFrozen
	}
	if sourceState.Amount < amount {
		return solana.InstructionErrorInsufficientFunds
	}
	if !bytes.Equal(sourceState.Mint, destState.Mint) {
		return token.ErrorMintMismatch
	}

	if err := spend(inv, sourceState, authority, amount); err != nil {
		return err
	}

	if bytes.Equal(source, destination) {
		return l.saveAccount(ctx, rawSource, sourceState)
	}

	if destState.Amount+amount < destState.Amount {
		return token.ErrorOverflow
	}
	sourceState.Amount -= amount
	destState.Amount += amount

	if err := l.saveAccount(ctx, rawSource, sourceState); err != nil {
		return err
	}
	return l.saveAccount(ctx, rawDest, destState)
}

// Burn destroys tokens from an account, reducing the mint's supply. The
// authority rules match Transfer.
func (l *Ledger) Burn(ctx context.Context, inv *bank.Invocation, account, mint, authority ed25519.PublicKey, amount uint64) error {
	if err := requireTokenProgram(inv); err != nil {
		return err
	}
	if err := requireWritable(inv, account, mint); err != nil {
		return err
	}

	rawAccount, accountState, err := l.loadAccount(ctx, account)
	if err != nil {
		return err
	}
	if accountState.State == token.AccountStateFrozen {
		return token.ErrorAccountFrozen
	}
	if !bytes.Equal(accountState.Mint, mint) {
		return token.ErrorMintMismatch
	}
	if accountState.Amount < amount {
		return solana.InstructionErrorInsufficientFunds
	}

	rawMint, mintState, err := l.loadMint(ctx, mint)
	if err != nil {
		return err
	}

	if err := spend(inv, accountState, authority, amount); err != nil {
		return err
	}

	accountState.Amount -= amount
	mintState.Supply -= amount

	if err := l.saveAccount(ctx, rawAccount, accountState); err != nil {
		return err
	}
	return l.saveMint(ctx, rawMint, mintState)
}

// Approve grants a delegate the right to spend up to amount from the source.
func (l *Ledger) Approve(ctx context.Context, inv *bank.Invocation, source, delegate, owner ed25519.PublicKey, amount uint64) error {
	if err := requireTokenProgram(inv); err != nil {
		return err
	}
	if err := inv.RequireWritable(source); err != nil {
		return err
	}

	raw, state, err := l.loadAccount(ctx, source)
	if err != nil {
		return err
	}
	if state.State == token.AccountStateFrozen {
		return token.ErrorAccountFrozen
	}
	if err := validateAuthority(inv, state.Owner, owner); err != nil {
		return err
	}

	state.Delegate = cloneKey(delegate)
	state.DelegatedAmount = amount
	return l.saveAccount(ctx, raw, state)
}

// SetAuthority changes an authority of a mint or token account. A nil
// authority clears it, where permitted.
func (l *Ledger) SetAuthority(ctx context.Context, inv *bank.Invocation, address, currentAuthority, newAuthority ed25519.PublicKey, authorityType token.AuthorityType) error {
	if err := requireTokenProgram(inv); err != nil {
		return err
	}
	if err := inv.RequireWritable(address); err != nil {
		return err
	}

	raw, err := l.store.Get(ctx, address)
	if err == bank.ErrAccountNotFound {
		return solana.InstructionErrorIncorrectProgramID
	} else if err != nil {
		return err
	}
	if !raw.IsOwnedBy(token.ProgramKey) {
		return solana.InstructionErrorIncorrectProgramID
	}

	switch len(raw.Data) {
	case token.AccountSize:
		_, state, err := l.loadAccount(ctx, address)
		if err != nil {
			return err
		}
		if state.State == token.AccountStateFrozen {
			return token.ErrorAccountFrozen
		}

		switch authorityType {
		case token.AuthorityTypeAccountHolder:
			if err := validateAuthority(inv, state.Owner, currentAuthority); err != nil {
				return err
			}
			if len(newAuthority) == 0 {
				return token.ErrorInvalidInstruction
			}
			state.Owner = cloneKey(newAuthority)
			state.Delegate = nil
			state.DelegatedAmount = 0
		case token.AuthorityTypeCloseAccount:
			expected := state.CloseAuthority
			if len(expected) == 0 {
				expected = state.Owner
			}
			if err := validateAuthority(inv, expected, currentAuthority); err != nil {
				return err
			}
			state.CloseAuthority = cloneKey(newAuthority)
		default:
			return token.ErrorAuthorityTypeNotSupported
		}
		return l.saveAccount(ctx, raw, state)
	case token.MintSize:
		_, state, err := l.loadMint(ctx, address)
		if err != nil {
			return err
		}

		switch authorityType {
		case token.AuthorityTypeMintTokens:
			if len(state.MintAuthority) == 0 {
				return token.ErrorFixedSupply
			}
			if err := validateAuthority(inv, state.MintAuthority, currentAuthority); err != nil {
				return err
			}
			state.MintAuthority = cloneKey(newAuthority)
		case token.AuthorityTypeFreezeAccount:
			if len(state.FreezeAuthority) == 0 {
				return token.ErrorMintCannotFreeze
			}
			if err := validateAuthority(inv, state.FreezeAuthority, currentAuthority); err != nil {
				return err
			}
			state.FreezeAuthority = cloneKey(newAuthority)
		default:
			return token.ErrorAuthorityTypeNotSupported
		}
		return l.saveMint(ctx, raw, state)
	default:
		return solana.InstructionErrorInvalidAccountData
	}
}

// CloseAccount deletes an empty token account, moving its lamports to the
// destination. The authority is the close authority if one is set, and the
// owner otherwise.
func (l *Ledger) CloseAccount(ctx context.Context, inv *bank.Invocation, account, destination, authority ed25519.PublicKey) error {
	if err := requireTokenProgram(inv); err != nil {
		return err
	}
	if err := requireWritable(inv, account, destination); err != nil {
		return err
	}
	if bytes.Equal(account, destination) {
		return solana.InstructionErrorInvalidAccountData
	}

	raw, state, err := l.loadAccount(ctx, account)
	if err != nil {
		return err
	}
	if state.IsNative != nil {
		return token.ErrorNativeNotSupported
	}
	if state.Amount != 0 {
		return token.ErrorNonNativeHasBalance
	}

	expected := state.CloseAuthority
	if len(expected) == 0 {
		expected = state.Owner
	}
	if err := validateAuthority(inv, expected, authority); err != nil {
		return err
	}

	dest, err := bank.GetOrEmpty(ctx, l.store, destination)
	if err != nil {
		return err
	}
	if dest.Lamports+raw.Lamports < dest.Lamports {
		return token.ErrorOverflow
	}
	dest.Lamports += raw.Lamports

	l.log.WithFields(logrus.Fields{
		"method":      "CloseAccount",
		"account":     base58.Encode(account),
		"destination": base58.Encode(destination),
		"lamports":    raw.Lamports,
	}).Debug("closing token account")

	if err := l.store.Delete(ctx, account); err != nil {
		return err
	}
	return l.store.Save(ctx, dest)
}

// spend validates that the authority may move amount out of the account,
// consuming delegated allowance when the authority is the delegate.
func spend(inv *bank.Invocation, account *token.Account, authority ed25519.PublicKey, amount uint64) error {
	if len(account.Delegate) > 0 && bytes.Equal(account.Delegate, authority) {
		if err := inv.RequireSigner(authority); err != nil {
			return err
		}
		if account.DelegatedAmount < amount {
			return solana.InstructionErrorInsufficientFunds
		}

		account.DelegatedAmount -= amount
		if account.DelegatedAmount == 0 {
			account.Delegate = nil
		}
		return nil
	}

	return validateAuthority(inv, account.Owner, authority)
}

func validateAuthority(inv *bank.Invocation, expected, actual ed25519.PublicKey) error {
	if !bytes.Equal(expected, actual) {
		return token.ErrorOwnerMismatch
	}
	return inv.RequireSigner(actual)
}

func requireTokenProgram(inv *bank.Invocation) error {
	if !bytes.Equal(inv.Program(), token.ProgramKey) {
		return solana.InstructionErrorIncorrectProgramID
	}
	return nil
}

func requireWritable(inv *bank.Invocation, accounts ...ed25519.PublicKey) error {
	for _, account := range accounts {
		if err := inv.RequireWritable(account); err != nil {
			return err
		}
	}
	return nil
}

// loadOwned loads an allocation that must already be owned by the token
// program with exactly the expected size.
func (l *Ledger) loadOwned(ctx context.Context, address ed25519.PublicKey, size int) (*bank.Account, error) {
	raw, err := bank.GetOrEmpty(ctx, l.store, address)
	if err != nil {
		return nil, err
	}
	if !raw.IsOwnedBy(token.ProgramKey) {
		return nil, solana.InstructionErrorIncorrectProgramID
	}
	if len(raw.Data) != size {
		return nil, solana.InstructionErrorInvalidAccountData
	}
	return raw, nil
}

func (l *Ledger) loadAccount(ctx context.Context, address ed25519.PublicKey) (*bank.Account, *token.Account, error) {
	raw, err := l.loadOwned(ctx, address, token.AccountSize)
	if err != nil {
		return nil, nil, err
	}

	var state token.Account
	state.Unmarshal(raw.Data)
	if state.State == token.AccountStateUninitialized {
		return nil, nil, token.ErrorUninitializedState
	}
	if state.IsNative != nil {
		return nil, nil, token.ErrorNativeNotSupported
	}
	return raw, &state, nil
}

func (l *Ledger) loadMint(ctx context.Context, address ed25519.PublicKey) (*bank.Account, *token.Mint, error) {
	raw, err := l.loadOwned(ctx, address, token.MintSize)
	if err != nil {
		return nil, nil, err
	}

	var state token.Mint
	state.Unmarshal(raw.Data)
	if !state.IsInitialized {
		return nil, nil, token.ErrorUninitializedState
	}
	return raw, &state, nil
}

func (l *Ledger) saveAccount(ctx context.Context, raw *bank.Account, state *token.Account) error {
	raw.Data = state.Marshal()
	return l.store.Save(ctx, raw)
}

func (l *Ledger) saveMint(ctx context.Context, raw *bank.Account, state *token.Mint) error {
	raw.Data = state.Marshal()
	return l.store.Save(ctx, raw)
}

func cloneKey(key ed25519.PublicKey) ed25519.PublicKey {
	if len(key) == 0 {
		return nil
	}
	return append(ed25519.PublicKey{}, key...)
}
