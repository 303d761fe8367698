package executor_test

import (
	"context"
	"crypto/ed25519"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokadapt-server/pkg/adapter"
	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/bank/memory"
	"github.com/code-payments/tokadapt-server/pkg/executor"
	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/computebudget"
	"github.com/code-payments/tokadapt-server/pkg/solana/memo"
	"github.com/code-payments/tokadapt-server/pkg/solana/system"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
	"github.com/code-payments/tokadapt-server/pkg/testutil"
	"github.com/code-payments/tokadapt-server/pkg/tokenledger"
)

type testEnv struct {
	ctx      context.Context
	store    bank.Store
	executor *executor.Executor
	payer    ed25519.PrivateKey
}

func setup(t *testing.T) *testEnv {
	store := memory.New()
	ledger := tokenledger.New(store)

	return &testEnv{
		ctx:      context.Background(),
		store:    store,
		executor: executor.New(store, ledger, adapter.NewProcessor(store, ledger), 0),
		payer:    testutil.SetupFundedAccount(t, store, 1_000_000_000),
	}
}

func assertTransactionError(t *testing.T, err error, key solana.TransactionErrorKey) {
	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr), "expected a transaction error, got: %v", err)
	assert.Equal(t, key, txErr.ErrorKey())
}

func TestSubmit_HappyPath(t *testing.T) {
	env := setup(t)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]

	txn := testutil.SignedTransaction(t, []solana.Instruction{
		system.Transfer(testutil.PublicKey(env.payer), receiver, 1000),
	}, env.payer)

	sig, err := env.executor.Submit(env.ctx, &txn)
	require.NoError(t, err)
	assert.Equal(t, txn.Signatures[0], sig)

	assert.EqualValues(t, 1000, testutil.GetLamports(t, env.store, receiver))
	assert.EqualValues(t, 1_000_000_000-1000, testutil.GetLamports(t, env.store, testutil.PublicKey(env.payer)))
}

func TestSubmit_DuplicateSignature(t *testing.T) {
	env := setup(t)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]

	txn := testutil.SignedTransaction(t, []solana.Instruction{
		system.Transfer(testutil.PublicKey(env.payer), receiver, 1000),
	}, env.payer)

	_, err := env.executor.Submit(env.ctx, &txn)
	require.NoError(t, err)

	_, err = env.executor.Submit(env.ctx, &txn)
	assertTransactionError(t, err, solana.TransactionErrorDuplicateSignature)
	assert.EqualValues(t, 1000, testutil.GetLamports(t, env.store, receiver))
}

func TestSubmit_FailedTransactionCanBeRetried(t *testing.T) {
	env := setup(t)

	owner := testutil.GenerateSolanaKeypair(t)
	mint := testutil.SetupMint(t, env.store, testutil.PublicKey(owner), 0)
	source := testutil.SetupTokenAccount(t, env.store, nil, mint, testutil.PublicKey(owner), 0)
	dest := testutil.SetupTokenAccount(t, env.store, nil, mint, testutil.PublicKey(owner), 0)

	txn := testutil.SignedTransaction(t, []solana.Instruction{
		token.Transfer(source, dest, testutil.PublicKey(owner), 10),
	}, env.payer, owner)

	_, err := env.executor.Submit(env.ctx, &txn)
	testutil.AssertInstructionError(t, err, 0, solana.InstructionErrorInsufficientFunds)
	assertTransactionError(t, err, solana.TransactionErrorInstructionError)

	// The signature of a rejected transaction is not consumed
	mintTxn := testutil.SignedTransaction(t, []solana.Instruction{
		token.MintTo(mint, source, testutil.PublicKey(owner), 10),
	}, env.payer, owner)
	_, err = env.executor.Submit(env.ctx, &mintTxn)
	require.NoError(t, err)

	_, err = env.executor.Submit(env.ctx, &txn)
	require.NoError(t, err)
	assert.EqualValues(t, 10, testutil.GetTokenAccount(t, env.store, dest).Amount)
}

func TestSubmit_SignatureFailure(t *testing.T) {
	env := setup(t)

	txn := testutil.SignedTransaction(t, []solana.Instruction{
		system.Transfer(testutil.PublicKey(env.payer), testutil.GenerateSolanaKeys(t, 1)[0], 1000),
	}, env.payer)
	txn.Signatures[0][0] ^= 0xff

	_, err := env.executor.Submit(env.ctx, &txn)
	assertTransactionError(t, err, solana.TransactionErrorSignatureFailure)

	txn.Signatures = nil
	_, err = env.executor.Submit(env.ctx, &txn)
	assertTransactionError(t, err, solana.TransactionErrorSanitizeFailure)
}

func TestSubmit_MissingSigner(t *testing.T) {
	env := setup(t)

	// The source is listed as a signer, but never signs
	source := testutil.SetupFundedAccount(t, env.store, 1000)
	txn := solana.NewTransaction(testutil.PublicKey(env.payer), system.Transfer(testutil.PublicKey(source), testutil.PublicKey(env.payer), 1000))
	require.NoError(t, txn.Sign(env.payer))

	_, err := env.executor.Submit(env.ctx, &txn)
	assertTransactionError(t, err, solana.TransactionErrorSignatureFailure)
	assert.EqualValues(t, 1000, testutil.GetLamports(t, env.store, testutil.PublicKey(source)))
}

func TestSubmit_UnknownProgram(t *testing.T) {
	env := setup(t)

	txn := testutil.SignedTransaction(t, []solana.Instruction{
		solana.NewInstruction(testutil.GenerateSolanaKeys(t, 1)[0], nil),
	}, env.payer)

	_, err := env.executor.Submit(env.ctx, &txn)
	assertTransactionError(t, err, solana.TransactionErrorProgramAccountNotFound)
}

func TestSubmit_MemoAndComputeBudget(t *testing.T) {
	env := setup(t)
	payer := testutil.PublicKey(env.payer)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]

	txn := testutil.SignedTransaction(t, []solana.Instruction{
		computebudget.SetComputeUnitLimit(200_000),
		computebudget.SetComputeUnitPrice(10),
		memo.Instruction("transfer", payer),
		system.Transfer(payer, receiver, 1000),
	}, env.payer)

	_, err := env.executor.Submit(env.ctx, &txn)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, testutil.GetLamports(t, env.store, receiver))

	invalidMemo := memo.Instruction("")
	invalidMemo.Data = []byte{0xff}
	txn = testutil.SignedTransaction(t, []solana.Instruction{
		system.Transfer(payer, receiver, 1000),
		invalidMemo,
	}, env.payer)

	err = env.executor.Simulate(env.ctx, &txn)
	testutil.AssertInstructionError(t, err, 1, solana.InstructionErrorInvalidInstructionData)

	txn = testutil.SignedTransaction(t, []solana.Instruction{
		solana.NewInstruction(computebudget.ProgramKey, []byte{byte(computebudget.CommandSetComputeUnitPrice)}),
	}, env.payer)

	err = env.executor.Simulate(env.ctx, &txn)
	testutil.AssertInstructionError(t, err, 0, solana.InstructionErrorInvalidInstructionData)
	assert.EqualValues(t, 1000, testutil.GetLamports(t, env.store, receiver))
}

func TestSubmit_FeePayer(t *testing.T) {
	env := setup(t)

	unfunded := testutil.GenerateSolanaKeypair(t)
	txn := testutil.SignedTransaction(t, []solana.Instruction{
		system.Transfer(testutil.PublicKey(unfunded), testutil.PublicKey(env.payer), 0),
	}, unfunded)

	_, err := env.executor.Submit(env.ctx, &txn)
	assertTransactionError(t, err, solana.TransactionErrorAccountNotFound)

	mintAuthority := testutil.GenerateSolanaKeys(t, 1)[0]
	mint := testutil.SetupMint(t, env.store, mintAuthority, 0)
	tokenOwned := testutil.GenerateSolanaKeypair(t)
	testutil.SetupTokenAccount(t, env.store, testutil.PublicKey(tokenOwned), mint, mintAuthority, 0)

	txn = testutil.SignedTransaction(t, []solana.Instruction{
		system.Transfer(testutil.PublicKey(env.payer), testutil.PublicKey(env.payer), 0),
	}, tokenOwned, env.payer)

	_, err = env.executor.Submit(env.ctx, &txn)
	assertTransactionError(t, err, solana.TransactionErrorInvalidAccountForFee)
}

func TestSimulate(t *testing.T) {
	env := setup(t)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]

	txn := testutil.SignedTransaction(t, []solana.Instruction{
		system.Transfer(testutil.PublicKey(env.payer), receiver, 1000),
	}, env.payer)

	// Simulations never commit, and may be repeated
	require.NoError(t, env.executor.Simulate(env.ctx, &txn))
	require.NoError(t, env.executor.Simulate(env.ctx, &txn))
	assert.EqualValues(t, 0, testutil.GetLamports(t, env.store, receiver))

	// The simulated signature was not consumed
	_, err := env.executor.Submit(env.ctx, &txn)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, testutil.GetLamports(t, env.store, receiver))

	failing := testutil.SignedTransaction(t, []solana.Instruction{
		system.Transfer(testutil.PublicKey(env.payer), receiver, 1000),
		system.Transfer(testutil.PublicKey(env.payer), receiver, 10_000_000_000),
	}, env.payer)
	err = env.executor.Simulate(env.ctx, &failing)
	testutil.AssertInstructionError(t, err, 1, bank.SystemErrorResultWithNegativeLamports)
	assert.EqualValues(t, 1000, testutil.GetLamports(t, env.store, receiver))
}

func TestSubmit_ConcurrentTransfers(t *testing.T) {
	env := setup(t)

	accountCount := 8
	transfersPerWorker := 50

	mintAuthority := testutil.GenerateSolanaKeys(t, 1)[0]
	mint := testutil.SetupMint(t, env.store, mintAuthority, 0)

	owners := make([]ed25519.PrivateKey, accountCount)
	accounts := make([]ed25519.PublicKey, accountCount)
	for i := range accounts {
		owners[i] = testutil.GenerateSolanaKeypair(t)
		accounts[i] = testutil.SetupTokenAccount(t, env.store, nil, mint, testutil.PublicKey(owners[i]), 1000)
	}

	var wg sync.WaitGroup
	for i := 0; i < accountCount; i++ {
		wg.Add(1)

		go func(from int) {
			defer wg.Done()

			for j := 0; j < transfersPerWorker; j++ {
				to := (from + j + 1) % accountCount
				if to == from {
					continue
				}

				txn := testutil.SignedTransaction(t, []solana.Instruction{
					token.Transfer(accounts[from], accounts[to], testutil.PublicKey(owners[from]), 1),
				}, env.payer, owners[from])

				_, err := env.executor.Submit(env.ctx, &txn)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	var total uint64
	for _, account := range accounts {
		total += testutil.GetTokenAccount(t, env.store, account).Amount
	}
	assert.EqualValues(t, 1000*accountCount, total)
}
