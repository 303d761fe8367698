package adapter

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
	"github.com/code-payments/tokadapt-server/pkg/solana/tokadapt"
	"github.com/code-payments/tokadapt-server/pkg/tokenledger"
)

// Every operation first runs a preflight over the accounts it was given. The
// preflight reads but never writes, and produces one of the request types
// below. Operations only mutate state from a request.

type initializeRequest struct {
	state  *bank.Account
	record *tokadapt.StateAccount
}

type exchangeRequest struct {
	signer storageSigner

	input          ed25519.PublicKey
	inputAuthority ed25519.PublicKey
	inputMint      ed25519.PublicKey
	outputStorage  ed25519.PublicKey
	target         ed25519.PublicKey

	// amount is resolved from the sentinel maximum, and is covered by both
	// the input's spendable balance and the output storage balance.
	amount uint64
	// delegated is set when the input authority spends as the delegate.
	delegated bool
}

type setAdminRequest struct {
	state  *bank.Account
	record *tokadapt.StateAccount
}

type closeRequest struct {
	signer storageSigner

	state         ed25519.PublicKey
	outputStorage ed25519.PublicKey
	tokenTarget   ed25519.PublicKey
	rentCollector ed25519.PublicKey

	balance uint64
}

func (p *Processor) preflightInitialize(
	ctx context.Context,
	inv *bank.Invocation,
	accounts *tokadapt.InitializeInstructionAccounts,
	args *tokadapt.InitializeInstructionArgs,
) (*initializeRequest, error) {
	if err := requireMut(inv, "state", accounts.State); err != nil {
		return nil, err
	}

	state, err := p.store.Get(ctx, accounts.State)
	if err == bank.ErrAccountNotFound {
		return nil, newConstraintError(tokadapt.ErrorAccountNotInitialized, "state", accounts.State)
	} else if err != nil {
		return nil, err
	}
	if !state.IsOwnedBy(tokadapt.ProgramID()) {
		return nil, newConstraintError(tokadapt.ErrorAccountOwnedByWrongProgram, "state", accounts.State)
	}
	if len(state.Data) < tokadapt.StateAccountSize {
		return nil, newConstraintError(tokadapt.ErrorAccountDidNotDeserialize, "state", accounts.State)
	}
	for _, b := range state.Data[:8] {
		if b != 0 {
			return nil, newConstraintError(tokadapt.ErrorConstraintZero, "state", accounts.State)
		}
	}
	if !bank.IsRentExempt(state) {
		return nil, newConstraintError(tokadapt.ErrorConstraintRentExempt, "state", accounts.State)
	}

	outputStorage, err := p.loadTokenAccount(ctx, "output_storage", accounts.OutputStorage)
	if err != nil {
		return nil, err
	}

	authority, bump, err := tokadapt.GetOutputStorageAuthorityAddress(&tokadapt.GetOutputStorageAuthorityAddressArgs{
		State: accounts.State,
	})
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(outputStorage.Owner, authority) {
		return nil, withAccount(ErrAuthorityMismatch, "output_storage", accounts.OutputStorage)
	}
	if len(outputStorage.CloseAuthority) > 0 {
		return nil, withAccount(ErrMustNotBeCloseable, "output_storage", accounts.OutputStorage)
	}
	if len(outputStorage.Delegate) > 0 {
		return nil, withAccount(ErrMustNotBeDelegated, "output_storage", accounts.OutputStorage)
	}

	return &initializeRequest{
		state: state,
		record: &tokadapt.StateAccount{
			AdminAuthority:             args.Admin,
			InputMint:                  args.InputMint,
			OutputStorage:              accounts.OutputStorage,
			OutputStorageAuthorityBump: bump,
		},
	}, nil
}

func (p *Processor) preflightExchange(
	ctx context.Context,
	inv *bank.Invocation,
	accounts *tokadapt.SwapInstructionAccounts,
	args *tokadapt.SwapInstructionArgs,
) (*exchangeRequest, error) {
	_, record, err := p.loadState(ctx, accounts.State)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(record.InputMint, accounts.InputMint) {
		return nil, newConstraintError(tokadapt.ErrorConstraintHasOne, "input_mint", accounts.InputMint)
	}
	if !bytes.Equal(record.OutputStorage, accounts.OutputStorage) {
		return nil, newConstraintError(tokadapt.ErrorConstraintHasOne, "output_storage", accounts.OutputStorage)
	}

	if err := requireMut(inv, "input", accounts.Input); err != nil {
		return nil, err
	}
	input, err := p.loadTokenAccount(ctx, "input", accounts.Input)
	if err != nil {
		return nil, err
	}

	if err := requireSigner(inv, "input_authority", accounts.InputAuthority); err != nil {
		return nil, err
	}

	if err := requireMut(inv, "input_mint", accounts.InputMint); err != nil {
		return nil, err
	}
	if err := p.requireMint(ctx, "input_mint", accounts.InputMint); err != nil {
		return nil, err
	}

	if err := requireMut(inv, "output_storage", accounts.OutputStorage); err != nil {
		return nil, err
	}
	outputStorage, err := p.loadTokenAccount(ctx, "output_storage", accounts.OutputStorage)
	if err != nil {
		return nil, err
	}

	signer, err := verifyStorageAuthority(accounts.State, record, accounts.OutputStorageAuthority)
	if err != nil {
		return nil, err
	}

	if err := requireMut(inv, "target", accounts.Target); err != nil {
		return nil, err
	}
	if _, err := p.loadTokenAccount(ctx, "target", accounts.Target); err != nil {
		return nil, err
	}

	if err := requireTokenProgram(accounts.TokenProgram); err != nil {
		return nil, err
	}

	if !bytes.Equal(input.Mint, record.InputMint) {
		return nil, withAccount(ErrInvalidInputMint, "input", accounts.Input)
	}

	req := &exchangeRequest{
		signer:         signer,
		input:          accounts.Input,
		inputAuthority: accounts.InputAuthority,
		inputMint:      accounts.InputMint,
		outputStorage:  accounts.OutputStorage,
		target:         accounts.Target,
		amount:         args.Amount,
	}

	switch {
	case bytes.Equal(input.Owner, accounts.InputAuthority):
		if req.amount == tokadapt.MaxAmount {
			req.amount = input.Amount
		}
	case len(input.Delegate) > 0 && bytes.Equal(input.Delegate, accounts.InputAuthority):
		if req.amount == tokadapt.MaxAmount {
			req.amount = input.DelegatedAmount
		}
		req.delegated = true
	default:
		return nil, withAccount(ErrInvalidInputAuthority, "input_authority", accounts.InputAuthority)
	}

	if req.amount > outputStorage.Amount {
		return nil, withAccount(ErrInsufficientFunds, "output_storage", accounts.OutputStorage)
	}

	return req, nil
}

func (p *Processor) preflightSetAdmin(
	ctx context.Context,
	inv *bank.Invocation,
	accounts *tokadapt.SetAdminInstructionAccounts,
	args *tokadapt.SetAdminInstructionArgs,
) (*setAdminRequest, error) {
	if err := requireMut(inv, "state", accounts.State); err != nil {
		return nil, err
	}
	state, record, err := p.loadState(ctx, accounts.State)
	if err != nil {
		return nil, err
	}

	if err := requireAdmin(inv, record, accounts.AdminAuthority); err != nil {
		return nil, err
	}

	updated := record.Clone()
	updated.AdminAuthority = append(ed25519.PublicKey{}, args.NewAdmin...)

	return &setAdminRequest{
		state:  state,
		record: updated,
	}, nil
}

func (p *Processor) preflightClose(
	ctx context.Context,
	inv *bank.Invocation,
	accounts *tokadapt.CloseInstructionAccounts,
) (*closeRequest, error) {
	if err := requireMut(inv, "state", accounts.State); err != nil {
		return nil, err
	}
	_, record, err := p.loadState(ctx, accounts.State)
	if err != nil {
		return nil, err
	}

	if err := requireAdmin(inv, record, accounts.AdminAuthority); err != nil {
		return nil, err
	}
	if !bytes.Equal(record.OutputStorage, accounts.OutputStorage) {
		return nil, newConstraintError(tokadapt.ErrorConstraintHasOne, "output_storage", accounts.OutputStorage)
	}

	if err := requireMut(inv, "output_storage", accounts.OutputStorage); err != nil {
		return nil, err
	}
	outputStorage, err := p.loadTokenAccount(ctx, "output_storage", accounts.OutputStorage)
	if err != nil {
		return nil, err
	}

	signer, err := verifyStorageAuthority(accounts.State, record, accounts.OutputStorageAuthority)
	if err != nil {
		return nil, err
	}

	if err := requireMut(inv, "token_target", accounts.TokenTarget); err != nil {
		return nil, err
	}
	if _, err := p.loadTokenAccount(ctx, "token_target", accounts.TokenTarget); err != nil {
		return nil, err
	}

	if err := requireMut(inv, "rent_collector", accounts.RentCollector); err != nil {
		return nil, err
	}
	rentCollector, err := bank.GetOrEmpty(ctx, p.store, accounts.RentCollector)
	if err != nil {
		return nil, err
	}
	if !rentCollector.IsSystemOwned() {
		return nil, newConstraintError(tokadapt.ErrorAccountNotSystemOwned, "rent_collector", accounts.RentCollector)
	}

	if err := requireTokenProgram(accounts.TokenProgram); err != nil {
		return nil, err
	}

	if bytes.Equal(accounts.TokenTarget, record.OutputStorage) {
		return nil, withAccount(ErrInvalidCloseTarget, "token_target", accounts.TokenTarget)
	}

	return &closeRequest{
		signer:        signer,
		state:         accounts.State,
		outputStorage: accounts.OutputStorage,
		tokenTarget:   accounts.TokenTarget,
		rentCollector: accounts.RentCollector,
		balance:       outputStorage.Amount,
	}, nil
}

// loadState loads a live state account owned by the program.
func (p *Processor) loadState(ctx context.Context, address ed25519.PublicKey) (*bank.Account, *tokadapt.StateAccount, error) {
	raw, err := p.store.Get(ctx, address)
	if err == bank.ErrAccountNotFound {
		return nil, nil, newConstraintError(tokadapt.ErrorAccountNotInitialized, "state", address)
	} else if err != nil {
		return nil, nil, err
	}

	if !raw.IsOwnedBy(tokadapt.ProgramID()) {
		return nil, nil, newConstraintError(tokadapt.ErrorAccountOwnedByWrongProgram, "state", address)
	}
	if len(raw.Data) < 8 {
		return nil, nil, newConstraintError(tokadapt.ErrorAccountDiscriminatorNotFound, "state", address)
	}
	if !tokadapt.HasStateDiscriminator(raw.Data) {
		return nil, nil, newConstraintError(tokadapt.ErrorAccountDiscriminatorMismatch, "state", address)
	}

	var record tokadapt.StateAccount
	if err := record.Unmarshal(raw.Data); err != nil {
		return nil, nil, newConstraintError(tokadapt.ErrorAccountDidNotDeserialize, "state", address)
	}
	return raw, &record, nil
}

func (p *Processor) loadTokenAccount(ctx context.Context, name string, address ed25519.PublicKey) (*token.Account, error) {
	if err := p.requireTokenOwned(ctx, name, address); err != nil {
		return nil, err
	}

	account, err := p.ledger.GetAccount(ctx, address)
	if err == tokenledger.ErrNotTokenAccount {
		return nil, newConstraintError(tokadapt.ErrorAccountDidNotDeserialize, name, address)
	} else if err != nil {
		return nil, err
	}
	return account, nil
}

func (p *Processor) requireMint(ctx context.Context, name string, address ed25519.PublicKey) error {
	if err := p.requireTokenOwned(ctx, name, address); err != nil {
		return err
	}

	_, err := p.ledger.GetMint(ctx, address)
	if err == tokenledger.ErrNotMint {
		return newConstraintError(tokadapt.ErrorAccountDidNotDeserialize, name, address)
	}
	return err
}

func (p *Processor) requireTokenOwned(ctx context.Context, name string, address ed25519.PublicKey) error {
	raw, err := p.store.Get(ctx, address)
	if err == bank.ErrAccountNotFound {
		return newConstraintError(tokadapt.ErrorAccountNotInitialized, name, address)
	} else if err != nil {
		return err
	}

	if !raw.IsOwnedBy(token.ProgramKey) {
		return newConstraintError(tokadapt.ErrorAccountOwnedByWrongProgram, name, address)
	}
	return nil
}

// verifyStorageAuthority checks the provided authority against the one derived
// from the state's recorded bump, and returns the capability to sign as it.
func verifyStorageAuthority(state ed25519.PublicKey, record *tokadapt.StateAccount, provided ed25519.PublicKey) (storageSigner, error) {
	signer, err := newStorageSigner(state, record)
	if err != nil || !bytes.Equal(signer.authority, provided) {
		return storageSigner{}, newConstraintError(tokadapt.ErrorConstraintSeeds, "output_storage_authority", provided)
	}
	return signer, nil
}

func requireAdmin(inv *bank.Invocation, record *tokadapt.StateAccount, admin ed25519.PublicKey) error {
	if !bytes.Equal(record.AdminAuthority, admin) {
		return withAccount(ErrUnauthorized, "admin_authority", admin)
	}
	if !inv.IsSigner(admin) {
		return &ProgramError{
			Kind:    KindUnauthorized,
			Code:    tokadapt.ErrorAccountNotSigner,
			Message: constraintMessages[tokadapt.ErrorAccountNotSigner],
		}
	}
	return nil
}

func requireMut(inv *bank.Invocation, name string, address ed25519.PublicKey) error {
	if !inv.IsWritable(address) {
		return newConstraintError(tokadapt.ErrorConstraintMut, name, address)
	}
	return nil
}

func requireSigner(inv *bank.Invocation, name string, address ed25519.PublicKey) error {
	if !inv.IsSigner(address) {
		return newConstraintError(tokadapt.ErrorAccountNotSigner, name, address)
	}
	return nil
}

func requireTokenProgram(address ed25519.PublicKey) error {
	if !bytes.Equal(address, token.ProgramKey) {
		return newConstraintError(tokadapt.ErrorInvalidProgramID, "token_program", address)
	}
	return nil
}
