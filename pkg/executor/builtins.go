package executor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/computebudget"
	"github.com/code-payments/tokadapt-server/pkg/solana/memo"
)

// processMemo accepts any UTF-8 memo, provided every account attached to it
// signed the transaction.
func processMemo(_ context.Context, inv *bank.Invocation, m solana.Message, index int) error {
	decompiled, err := memo.DecompileMemo(m, index)
	if err != nil {
		return errors.Wrap(solana.InstructionErrorInvalidInstructionData, err.Error())
	}

	for _, signer := range decompiled.Signers {
		if err := inv.RequireSigner(signer); err != nil {
			return err
		}
	}
	return nil
}

// processComputeBudget validates compute budget requests. Execution here is
// not metered, so a well formed request has no effect.
func processComputeBudget(_ context.Context, _ *bank.Invocation, m solana.Message, index int) error {
	if _, err := computebudget.DecompileInstruction(m, index); err != nil {
		return errors.Wrap(solana.InstructionErrorInvalidInstructionData, err.Error())
	}
	return nil
}
