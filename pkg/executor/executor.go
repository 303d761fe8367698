package executor

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/tokadapt-server/pkg/adapter"
	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/metrics"
	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/computebudget"
	"github.com/code-payments/tokadapt-server/pkg/solana/memo"
	"github.com/code-payments/tokadapt-server/pkg/solana/system"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
	"github.com/code-payments/tokadapt-server/pkg/solana/tokadapt"
	"github.com/code-payments/tokadapt-server/pkg/sync"
	"github.com/code-payments/tokadapt-server/pkg/tokenledger"
)

const (
	DefaultLockStripes = 1024
)

var errSimulationRollback = errors.New("simulation rolled back")

// Program executes the instructions addressed to it.
type Program interface {
	Process(ctx context.Context, inv *bank.Invocation, m solana.Message, index int) error
}

// ProgramFunc adapts a function to a Program.
type ProgramFunc func(ctx context.Context, inv *bank.Invocation, m solana.Message, index int) error

func (f ProgramFunc) Process(ctx context.Context, inv *bank.Invocation, m solana.Message, index int) error {
	return f(ctx, inv, m, index)
}

// Executor runs signed transactions against the bank. All instructions of a
// transaction either take effect together or not at all, and transactions
// touching the same writable accounts are serialized.
type Executor struct {
	log      *logrus.Entry
	store    bank.Store
	locks    *sync.StripedLock
	programs map[string]Program
}

// New returns an executor that can run the system, token, associated token
// account and adapter programs, along with memo and compute budget
// instructions.
func New(store bank.Store, ledger *tokenledger.Ledger, processor *adapter.Processor, lockStripes uint) *Executor {
	if lockStripes == 0 {
		lockStripes = DefaultLockStripes
	}

	e := &Executor{
		log:      logrus.StandardLogger().WithField("type", "executor"),
		store:    store,
		locks:    sync.NewStripedLock(lockStripes),
		programs: make(map[string]Program),
	}

	e.register(system.ProgramKey[:], ProgramFunc(func(ctx context.Context, inv *bank.Invocation, m solana.Message, index int) error {
		return bank.ProcessSystemInstruction(ctx, store, inv, m, index)
	}))
	e.register(token.ProgramKey, ProgramFunc(ledger.ProcessInstruction))
	e.register(token.AssociatedTokenAccountProgramKey, ProgramFunc(ledger.ProcessAssociatedInstruction))
	e.register(tokadapt.ProgramID(), processor)
	e.register(memo.ProgramKey, ProgramFunc(processMemo))
	e.register(computebudget.ProgramKey, ProgramFunc(processComputeBudget))

	return e
}

func (e *Executor) register(program ed25519.PublicKey, p Program) {
	e.programs[string(program)] = p
}

// Submit executes a transaction and commits its effects. Each transaction
// signature can only ever be executed once.
//
// Rejections are returned as a *solana.TransactionError. Any other error is a
// failure of the executor itself.
func (e *Executor) Submit(ctx context.Context, txn *solana.Transaction) (solana.Signature, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Submit")
	defer tracer.End()

	err := e.execute(ctx, txn, false)
	if err != nil {
		observeFailure(tracer, err)
		return solana.Signature{}, err
	}
	return txn.Signatures[0], nil
}

// Simulate executes a transaction and reports how it would have failed, if at
// all, without committing any of its effects.
func (e *Executor) Simulate(ctx context.Context, txn *solana.Transaction) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Simulate")
	defer tracer.End()

	err := e.execute(ctx, txn, true)
	if err != nil {
		observeFailure(tracer, err)
	}
	return err
}

func (e *Executor) execute(ctx context.Context, txn *solana.Transaction, simulate bool) error {
	log := e.log.WithFields(logrus.Fields{
		"method":   "execute",
		"simulate": simulate,
	})

	if err := txn.VerifySignatures(); err != nil {
		log.WithError(err).Debug("transaction failed verification")
		key := solana.TransactionErrorSignatureFailure
		if !errors.Is(err, solana.ErrSignatureFailure) {
			key = solana.TransactionErrorSanitizeFailure
		}
		recordRejectionEvent(ctx, key, simulate)
		return solana.NewTransactionError(key)
	}

	signature := txn.Signatures[0].String()
	log = log.WithFields(logrus.Fields{
		"signature": signature,
		"fee_payer": base58.Encode(txn.Message.FeePayer()),
	})

	m := txn.Message
	for i := range m.Instructions {
		program, _ := m.ProgramKey(i)
		if _, ok := e.programs[string(program)]; !ok {
			log.WithField("program", base58.Encode(program)).Debug("unknown program")
			recordRejectionEvent(ctx, solana.TransactionErrorProgramAccountNotFound, simulate)
			return solana.NewTransactionError(solana.TransactionErrorProgramAccountNotFound)
		}
	}

	var readKeys, writeKeys [][]byte
	for i, account := range m.Accounts {
		if m.IsWritable(i) {
			writeKeys = append(writeKeys, account)
		} else {
			readKeys = append(readKeys, account)
		}
	}
	unlock := e.locks.LockMany(readKeys, writeKeys)
	defer unlock()

	start := time.Now()

	err := e.store.ExecuteInTx(ctx, func(ctx context.Context) error {
		feePayer, err := e.store.Get(ctx, m.FeePayer())
		if err == bank.ErrAccountNotFound {
			return solana.NewTransactionError(solana.TransactionErrorAccountNotFound)
		} else if err != nil {
			return err
		}
		if !feePayer.IsSystemOwned() {
			return solana.NewTransactionError(solana.TransactionErrorInvalidAccountForFee)
		}

		if !simulate {
			err := e.store.MarkSignatureProcessed(ctx, signature)
			if err == bank.ErrSignatureProcessed {
				return solana.NewTransactionError(solana.TransactionErrorDuplicateSignature)
			} else if err != nil {
				return err
			}
		}

		for i := range m.Instructions {
			if err := e.executeInstruction(ctx, m, i); err != nil {
				return solana.TransactionErrorFromInstructionError(solana.NewInstructionError(i, err))
			}
		}

		if simulate {
			return errSimulationRollback
		}
		return nil
	})
	if errors.Is(err, errSimulationRollback) {
		log.Debug("simulation succeeded")
		return nil
	}

	var txErr *solana.TransactionError
	if errors.As(err, &txErr) {
		log.WithError(err).Debug("transaction rejected")
		recordRejectionEvent(ctx, txErr.ErrorKey(), simulate)
		return txErr
	} else if err != nil {
		log.WithError(err).Warn("failure executing transaction")
		return errors.Wrap(err, "error executing transaction")
	}

	recordCommit(ctx, len(m.Instructions), time.Since(start))
	log.Debug("transaction committed")
	return nil
}

func (e *Executor) executeInstruction(ctx context.Context, m solana.Message, index int) error {
	inv, err := bank.NewInvocation(m, index)
	if err != nil {
		return err
	}

	program, err := m.ProgramKey(index)
	if err != nil {
		return err
	}

	return e.programs[string(program)].Process(ctx, inv, m, index)
}
