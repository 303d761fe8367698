package bank

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/system"
)

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/system_instruction.rs#L19
const (
	SystemErrorAccountAlreadyInUse solana.CustomError = iota
	SystemErrorResultWithNegativeLamports
	SystemErrorInvalidProgramId
	SystemErrorInvalidAccountDataLength
)

// CreateAccount funds and allocates a new account owned by the provided
// program. Both the funder and the new account must sign.
func CreateAccount(ctx context.Context, store Store, inv *Invocation, funder, address, owner ed25519.PublicKey, lamports, size uint64) error {
	if err := inv.RequireSigner(funder); err != nil {
		return err
	}
	if err := inv.RequireSigner(address); err != nil {
		return err
	}
	if err := inv.RequireWritable(funder); err != nil {
		return err
	}
	if err := inv.RequireWritable(address); err != nil {
		return err
	}
	if size > MaxAccountDataSize {
		return SystemErrorInvalidAccountDataLength
	}
	if bytes.Equal(funder, address) {
		return solana.InstructionErrorInvalidArgument
	}

	created, err := GetOrEmpty(ctx, store, address)
	if err != nil {
		return err
	}
	if !created.IsEmpty() || !created.IsSystemOwned() {
		return SystemErrorAccountAlreadyInUse
	}

	source, err := debitableSystemAccount(ctx, store, funder)
	if err != nil {
		return err
	}
	if source.Lamports < lamports {
		return SystemErrorResultWithNegativeLamports
	}

	source.Lamports -= lamports
	created.Lamports = lamports
	created.Owner = append(ed25519.PublicKey{}, owner...)
	created.Data = make([]byte, size)

	if err := store.Save(ctx, source); err != nil {
		return err
	}
	return store.Save(ctx, created)
}

// TransferLamports moves lamports out of a system owned account.
func TransferLamports(ctx context.Context, store Store, inv *Invocation, from, to ed25519.PublicKey, lamports uint64) error {
	if err := inv.RequireSigner(from); err != nil {
		return err
	}
	if err := inv.RequireWritable(from); err != nil {
		return err
	}
	if err := inv.RequireWritable(to); err != nil {
		return err
	}

	source, err := debitableSystemAccount(ctx, store, from)
	if err != nil {
		return err
	}
	if source.Lamports < lamports {
		return SystemErrorResultWithNegativeLamports
	}
	if bytes.Equal(from, to) {
		return nil
	}

	destination, err := GetOrEmpty(ctx, store, to)
	if err != nil {
		return err
	}
	if destination.Lamports+lamports < destination.Lamports {
		return solana.InstructionErrorArithmeticOverflow
	}

	source.Lamports -= lamports
	destination.Lamports += lamports

	if err := store.Save(ctx, source); err != nil {
		return err
	}
	return store.Save(ctx, destination)
}

// ProcessSystemInstruction executes the system program instruction at the
// index.
func ProcessSystemInstruction(ctx context.Context, store Store, inv *Invocation, m solana.Message, index int) error {
	command, err := system.GetCommand(m, index)
	if err != nil {
		return solana.InstructionErrorInvalidInstructionData
	}

	switch command {
	case system.CommandCreateAccount:
		decompiled, err := system.DecompileCreateAccount(m, index)
		if err != nil {
			return errors.Wrap(solana.InstructionErrorInvalidInstructionData, err.Error())
		}
		return CreateAccount(ctx, store, inv, decompiled.Funder, decompiled.Address, decompiled.Owner, decompiled.Lamports, decompiled.Size)
	case system.CommandTransfer:
		decompiled, err := system.DecompileTransfer(m, index)
		if err != nil {
			return errors.Wrap(solana.InstructionErrorInvalidInstructionData, err.Error())
		}
		return TransferLamports(ctx, store, inv, decompiled.From, decompiled.To, decompiled.Lamports)
	default:
		return solana.InstructionErrorInvalidInstructionData
	}
}

// debitableSystemAccount loads an account that lamports may be withdrawn from
// by the system program.
func debitableSystemAccount(ctx context.Context, store Store, address ed25519.PublicKey) (*Account, error) {
	account, err := GetOrEmpty(ctx, store, address)
	if err != nil {
		return nil, err
	}
	if !account.IsSystemOwned() {
		return nil, errors.Wrap(solana.InstructionErrorExternalAccountLamportSpend, "from account is not system owned")
	}
	if len(account.Data) > 0 {
		return nil, errors.Wrap(solana.InstructionErrorInvalidArgument, "from account must not carry data")
	}
	return account, nil
}
