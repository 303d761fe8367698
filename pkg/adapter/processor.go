package adapter

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/metrics"
	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
	"github.com/code-payments/tokadapt-server/pkg/solana/tokadapt"
	"github.com/code-payments/tokadapt-server/pkg/tokenledger"
)

// Processor is the adapter program. It binds a state record to an output
// storage account owned by the state's derived authority, and exchanges burnt
// input tokens for tokens released from that storage.
//
// Every operation assumes it runs within a bank.Store transaction that is
// rolled back when it fails.
type Processor struct {
	log    *logrus.Entry
	store  bank.Store
	ledger *tokenledger.Ledger
}

func NewProcessor(store bank.Store, ledger *tokenledger.Ledger) *Processor {
	return &Processor{
		log:    logrus.StandardLogger().WithField("type", "adapter/processor"),
		store:  store,
		ledger: ledger,
	}
}

// GetState returns the live state record at the address.
func (p *Processor) GetState(ctx context.Context, address ed25519.PublicKey) (*tokadapt.StateAccount, error) {
	_, record, err := p.loadState(ctx, address)
	return record, err
}

// Initialize writes a new state record into a zeroed allocation, binding it
// to an output storage account that is exclusively controlled by the state's
// derived authority.
func (p *Processor) Initialize(
	ctx context.Context,
	inv *bank.Invocation,
	accounts *tokadapt.InitializeInstructionAccounts,
	args *tokadapt.InitializeInstructionArgs,
) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Initialize")
	defer tracer.End()

	log := p.log.WithFields(logrus.Fields{
		"method":         "Initialize",
		"state":          base58.Encode(accounts.State),
		"output_storage": base58.Encode(accounts.OutputStorage),
		"admin":          base58.Encode(args.Admin),
		"input_mint":     base58.Encode(args.InputMint),
	})

	err := func() error {
		if err := requireProgram(inv); err != nil {
			return err
		}

		req, err := p.preflightInitialize(ctx, inv, accounts, args)
		if err != nil {
			return err
		}

		req.record.MarshalInto(req.state.Data)
		return p.store.Save(ctx, req.state)
	}()
	if err != nil {
		observeFailure(log, tracer, err)
		return err
	}

	log.Debug("state initialized")
	return nil
}

// Exchange burns amount input tokens, and releases the same amount from the
// output storage to the target. The sentinel tokadapt.MaxAmount resolves to
// everything the input authority may spend.
func (p *Processor) Exchange(
	ctx context.Context,
	inv *bank.Invocation,
	accounts *tokadapt.SwapInstructionAccounts,
	args *tokadapt.SwapInstructionArgs,
) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Exchange")
	defer tracer.End()

	log := p.log.WithFields(logrus.Fields{
		"method":          "Exchange",
		"state":           base58.Encode(accounts.State),
		"input":           base58.Encode(accounts.Input),
		"input_authority": base58.Encode(accounts.InputAuthority),
		"target":          base58.Encode(accounts.Target),
		"amount":          args.Amount,
	})

	req, err := func() (*exchangeRequest, error) {
		if err := requireProgram(inv); err != nil {
			return nil, err
		}

		req, err := p.preflightExchange(ctx, inv, accounts, args)
		if err != nil {
			return nil, err
		}

		tokenInv, err := inv.Invoke(token.ProgramKey)
		if err != nil {
			return nil, err
		}
		err = p.ledger.Burn(ctx, tokenInv, req.input, req.inputMint, req.inputAuthority, req.amount)
		if err != nil {
			return nil, err
		}

		signedInv, err := req.signer.invokeTokenProgram(inv)
		if err != nil {
			return nil, err
		}
		err = p.ledger.Transfer(ctx, signedInv, req.outputStorage, req.target, req.signer.authority, req.amount)
		if err != nil {
			return nil, err
		}

		return req, nil
	}()
	if err != nil {
		observeFailure(log, tracer, err)
		return err
	}

	tracer.AddAttributes(map[string]interface{}{
		"state":     base58.Encode(accounts.State),
		"amount":    req.amount,
		"delegated": req.delegated,
	})
	log.WithFields(logrus.Fields{
		"resolved_amount": req.amount,
		"delegated":       req.delegated,
	}).Debug("exchange completed")
	recordExchangeEvent(ctx, accounts.State, req.amount, req.delegated)
	return nil
}

// SetAdmin replaces the admin authority of a state record.
func (p *Processor) SetAdmin(
	ctx context.Context,
	inv *bank.Invocation,
	accounts *tokadapt.SetAdminInstructionAccounts,
	args *tokadapt.SetAdminInstructionArgs,
) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "SetAdmin")
	defer tracer.End()

	log := p.log.WithFields(logrus.Fields{
		"method":    "SetAdmin",
		"state":     base58.Encode(accounts.State),
		"admin":     base58.Encode(accounts.AdminAuthority),
		"new_admin": base58.Encode(args.NewAdmin),
	})

	err := func() error {
		if err := requireProgram(inv); err != nil {
			return err
		}

		req, err := p.preflightSetAdmin(ctx, inv, accounts, args)
		if err != nil {
			return err
		}

		req.record.MarshalInto(req.state.Data)
		return p.store.Save(ctx, req.state)
	}()
	if err != nil {
		observeFailure(log, tracer, err)
		return err
	}

	log.Debug("admin rotated")
	return nil
}

// Close sweeps the output storage balance to the token target, closes the
// output storage, and deletes the state record. Both rent deposits go to the
// rent collector.
func (p *Processor) Close(
	ctx context.Context,
	inv *bank.Invocation,
	accounts *tokadapt.CloseInstructionAccounts,
) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Close")
	defer tracer.End()

	log := p.log.WithFields(logrus.Fields{
		"method":         "Close",
		"state":          base58.Encode(accounts.State),
		"token_target":   base58.Encode(accounts.TokenTarget),
		"rent_collector": base58.Encode(accounts.RentCollector),
	})

	req, err := func() (*closeRequest, error) {
		if err := requireProgram(inv); err != nil {
			return nil, err
		}

		req, err := p.preflightClose(ctx, inv, accounts)
		if err != nil {
			return nil, err
		}

		// The storage authority signs both the sweep and the close, so this
		// must happen while the state record still exists.
		signedInv, err := req.signer.invokeTokenProgram(inv)
		if err != nil {
			return nil, err
		}
		err = p.ledger.Transfer(ctx, signedInv, req.outputStorage, req.tokenTarget, req.signer.authority, req.balance)
		if err != nil {
			return nil, err
		}
		err = p.ledger.CloseAccount(ctx, signedInv, req.outputStorage, req.rentCollector, req.signer.authority)
		if err != nil {
			return nil, err
		}

		return req, p.reclaimState(ctx, req.state, req.rentCollector)
	}()
	if err != nil {
		observeFailure(log, tracer, err)
		return err
	}

	log.WithField("swept", req.balance).Debug("state closed")
	recordDecommissionEvent(ctx, accounts.State, req.balance)
	return nil
}

// reclaimState moves all of the state's lamports to the rent collector and
// deletes the state record.
func (p *Processor) reclaimState(ctx context.Context, state, rentCollector ed25519.PublicKey) error {
	raw, err := p.store.Get(ctx, state)
	if err != nil {
		return err
	}
	collector, err := bank.GetOrEmpty(ctx, p.store, rentCollector)
	if err != nil {
		return err
	}

	if collector.Lamports+raw.Lamports < collector.Lamports {
		return solana.InstructionErrorArithmeticOverflow
	}
	collector.Lamports += raw.Lamports

	if err := p.store.Save(ctx, collector); err != nil {
		return err
	}
	return p.store.Delete(ctx, state)
}

// Process executes the adapter instruction at the index.
func (p *Processor) Process(ctx context.Context, inv *bank.Invocation, m solana.Message, index int) error {
	if err := requireProgram(inv); err != nil {
		return err
	}

	instructionType, err := tokadapt.GetInstructionType(m, index)
	if err != nil {
		return toInstructionError(err)
	}

	switch instructionType {
	case tokadapt.InstructionTypeInitialize:
		args, accounts, err := tokadapt.InitializeInstructionFromLegacyInstruction(m, index)
		if err != nil {
			return toInstructionError(err)
		}
		return p.Initialize(ctx, inv, accounts, args)
	case tokadapt.InstructionTypeSwap:
		args, accounts, err := tokadapt.SwapInstructionFromLegacyInstruction(m, index)
		if err != nil {
			return toInstructionError(err)
		}
		return p.Exchange(ctx, inv, accounts, args)
	case tokadapt.InstructionTypeSetAdmin:
		args, accounts, err := tokadapt.SetAdminInstructionFromLegacyInstruction(m, index)
		if err != nil {
			return toInstructionError(err)
		}
		return p.SetAdmin(ctx, inv, accounts, args)
	case tokadapt.InstructionTypeClose:
		accounts, err := tokadapt.CloseInstructionFromLegacyInstruction(m, index)
		if err != nil {
			return toInstructionError(err)
		}
		return p.Close(ctx, inv, accounts)
	default:
		return newInvalidInstructionError(tokadapt.ErrorInstructionFallbackNotFound)
	}
}

func requireProgram(inv *bank.Invocation) error {
	if !bytes.Equal(inv.Program(), tokadapt.ProgramID()) {
		return solana.InstructionErrorIncorrectProgramID
	}
	return nil
}

func toInstructionError(err error) error {
	switch err {
	case tokadapt.ErrUnknownInstruction:
		return newInvalidInstructionError(tokadapt.ErrorInstructionFallbackNotFound)
	case tokadapt.ErrInvalidInstructionData:
		return newInvalidInstructionError(tokadapt.ErrorInstructionDidNotDeserialize)
	case tokadapt.ErrNotEnoughAccountKeys:
		return newInvalidInstructionError(tokadapt.ErrorAccountNotEnoughKeys)
	case tokadapt.ErrInvalidProgram:
		return solana.InstructionErrorIncorrectProgramID
	}
	return errors.Wrap(solana.InstructionErrorInvalidInstructionData, err.Error())
}

// observeFailure separates rejected instructions, which are the caller's
// fault, from failures of the processor itself.
func observeFailure(log *logrus.Entry, tracer *metrics.MethodTracer, err error) {
	var programErr *ProgramError
	var customErr solana.CustomError
	var instructionErr solana.InstructionErrorKey
	switch {
	case errors.As(err, &programErr):
		log.WithField("kind", programErr.Kind).Debug(programErr.Message)
		tracer.OnRejection(string(programErr.Kind))
	case errors.As(err, &customErr), errors.As(err, &instructionErr):
		log.WithError(err).Debug("token program rejected instruction")
		tracer.OnRejection(err.Error())
	default:
		log.WithError(err).Warn("failure processing instruction")
		tracer.OnError(err)
	}
}
