package tokenledger

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/system"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
)

// CreateAssociatedAccount creates and initializes the associated token
// account of the owner for the mint, funded by the payer. When idempotent is
// set, an existing associated account with the same owner and mint is
// accepted as is.
func (l *Ledger) CreateAssociatedAccount(ctx context.Context, inv *bank.Invocation, payer, address, owner, mint ed25519.PublicKey, idempotent bool) error {
	if !bytes.Equal(inv.Program(), token.AssociatedTokenAccountProgramKey) {
		return solana.InstructionErrorIncorrectProgramID
	}

	expected, bump, err := solana.FindProgramAddressAndBump(
		token.AssociatedTokenAccountProgramKey,
		owner,
		token.ProgramKey,
		mint,
	)
	if err != nil {
		return errors.Wrap(solana.InstructionErrorInvalidSeeds, err.Error())
	}
	if !bytes.Equal(expected, address) {
		return solana.InstructionErrorInvalidSeeds
	}

	if idempotent {
		existing, err := l.GetAccount(ctx, address)
		if err == nil {
			if !bytes.Equal(existing.Owner, owner) || !bytes.Equal(existing.Mint, mint) {
				return solana.InstructionErrorIllegalOwner
			}
			return nil
		} else if err != bank.ErrAccountNotFound && err != ErrNotTokenAccount {
			return err
		}
	}

	systemInv, err := inv.InvokeSigned(system.ProgramKey[:], [][]byte{owner, token.ProgramKey, mint, {bump}})
	if err != nil {
		return err
	}
	err = bank.CreateAccount(
		ctx,
		l.store,
		systemInv,
		payer,
		address,
		token.ProgramKey,
		bank.RentExemptMinimum(token.AccountSize),
		token.AccountSize,
	)
	if err != nil {
		return err
	}

	tokenInv, err := inv.Invoke(token.ProgramKey)
	if err != nil {
		return err
	}
	return l.InitializeAccount(ctx, tokenInv, address, mint, owner)
}
