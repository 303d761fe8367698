package tokenledger

import (
	"context"

	"github.com/pkg/errors"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
)

// ProcessInstruction executes the token program instruction at the index.
func (l *Ledger) ProcessInstruction(ctx context.Context, inv *bank.Invocation, m solana.Message, index int) error {
	command, err := token.GetCommand(m, index)
	if err != nil {
		return token.ErrorInvalidInstruction
	}

	switch command {
	case token.CommandInitializeMint:
		decompiled, err := token.DecompileInitializeMint(m, index)
		if err != nil {
			return invalidInstruction(err)
		}
		return l.InitializeMint(ctx, inv, decompiled.Mint, decompiled.MintAuthority, decompiled.FreezeAuthority, decompiled.Decimals)
	case token.CommandInitializeAccount:
		decompiled, err := token.DecompileInitializeAccount(m, index)
		if err != nil {
			return invalidInstruction(err)
		}
		return l.InitializeAccount(ctx, inv, decompiled.Account, decompiled.Mint, decompiled.Owner)
	case token.CommandTransfer:
		decompiled, err := token.DecompileTransfer(m, index)
		if err != nil {
			return invalidInstruction(err)
		}
		return l.Transfer(ctx, inv, decompiled.Source, decompiled.Destination, decompiled.Owner, decompiled.Amount)
	case token.CommandApprove:
		decompiled, err := token.DecompileApprove(m, index)
		if err != nil {
			return invalidInstruction(err)
		}
		return l.Approve(ctx, inv, decompiled.Source, decompiled.Delegate, decompiled.Owner, decompiled.Amount)
	case token.CommandSetAuthority:
		decompiled, err := token.DecompileSetAuthority(m, index)
		if err != nil {
			return invalidInstruction(err)
		}
		return l.SetAuthority(ctx, inv, decompiled.Account, decompiled.CurrentAuthority, decompiled.NewAuthority, decompiled.Type)
	case token.CommandMintTo:
		decompiled, err := token.DecompileMintTo(m, index)
		if err != nil {
			return invalidInstruction(err)
		}
		return l.MintTo(ctx, inv, decompiled.Mint, decompiled.Destination, decompiled.MintAuthority, decompiled.Amount)
	case token.CommandBurn:
		decompiled, err := token.DecompileBurn(m, index)
		if err != nil {
			return invalidInstruction(err)
		}
		return l.Burn(ctx, inv, decompiled.Account, decompiled.Mint, decompiled.Owner, decompiled.Amount)
	case token.CommandCloseAccount:
		decompiled, err := token.DecompileCloseAccount(m, index)
		if err != nil {
			return invalidInstruction(err)
		}
		return l.CloseAccount(ctx, inv, decompiled.Account, decompiled.Destination, decompiled.Owner)
	default:
		return token.ErrorInvalidInstruction
	}
}

// ProcessAssociatedInstruction executes the associated token account program
// instruction at the index.
func (l *Ledger) ProcessAssociatedInstruction(ctx context.Context, inv *bank.Invocation, m solana.Message, index int) error {
	decompiled, err := token.DecompileCreateAssociatedAccount(m, index)
	if err != nil {
		return errors.Wrap(solana.InstructionErrorInvalidInstructionData, err.Error())
	}

	return l.CreateAssociatedAccount(
		ctx,
		inv,
		decompiled.Subsidizer,
		decompiled.Address,
		decompiled.Owner,
		decompiled.Mint,
		decompiled.Idempotent,
	)
}

func invalidInstruction(err error) error {
	return errors.Wrap(token.ErrorInvalidInstruction, err.Error())
}
