package bank_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/bank/memory"
	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/system"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
)

func TestRentExemptMinimum(t *testing.T) {
	assert.EqualValues(t, 890880, bank.RentExemptMinimum(0))
	assert.EqualValues(t, 2039280, bank.RentExemptMinimum(token.AccountSize))
	assert.EqualValues(t, 1461600, bank.RentExemptMinimum(token.MintSize))

	account := &bank.Account{Lamports: 2039280, Data: make([]byte, token.AccountSize)}
	assert.True(t, bank.IsRentExempt(account))
	account.Lamports--
	assert.False(t, bank.IsRentExempt(account))
}

func TestProcessSystemInstruction_CreateAccount(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	funder := fundedAccount(t, store, 10_000_000)
	address := generateKey(t)
	owner := generateKey(t)

	txn := solana.NewTransaction(funder, system.CreateAccount(funder, address, owner, 2_000_000, 100))
	require.NoError(t, execute(ctx, store, txn.Message, 0))

	created, err := store.Get(ctx, address)
	require.NoError(t, err)
	assert.EqualValues(t, owner, created.Owner)
	assert.EqualValues(t, 2_000_000, created.Lamports)
	assert.Len(t, created.Data, 100)

	funded, err := store.Get(ctx, funder)
	require.NoError(t, err)
	assert.EqualValues(t, 8_000_000, funded.Lamports)

	// The address is now in use
	err = execute(ctx, store, txn.Message, 0)
	assert.Equal(t, bank.SystemErrorAccountAlreadyInUse, err)

	// Insufficient lamports
	txn = solana.NewTransaction(funder, system.CreateAccount(funder, generateKey(t), owner, 9_000_000, 0))
	assert.Equal(t, bank.SystemErrorResultWithNegativeLamports, execute(ctx, store, txn.Message, 0))
}

func TestProcessSystemInstruction_CreateAccountRequiresSignature(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	funder := fundedAccount(t, store, 10_000_000)
	address := generateKey(t)

	instruction := system.CreateAccount(funder, address, generateKey(t), 1, 0)
	instruction.Accounts[1].IsSigner = false

	txn := solana.NewTransaction(funder, instruction)
	err := execute(ctx, store, txn.Message, 0)
	assert.True(t, errors.Is(err, solana.InstructionErrorMissingRequiredSignature))
}

func TestProcessSystemInstruction_Transfer(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	from := fundedAccount(t, store, 1000)
	to := generateKey(t)

	txn := solana.NewTransaction(from, system.Transfer(from, to, 400))
	require.NoError(t, execute(ctx, store, txn.Message, 0))

	source, err := store.Get(ctx, from)
	require.NoError(t, err)
	assert.EqualValues(t, 600, source.Lamports)

	dest, err := store.Get(ctx, to)
	require.NoError(t, err)
	assert.EqualValues(t, 400, dest.Lamports)
	assert.True(t, dest.IsSystemOwned())

	txn = solana.NewTransaction(from, system.Transfer(from, to, 601))
	assert.Equal(t, bank.SystemErrorResultWithNegativeLamports, execute(ctx, store, txn.Message, 0))

	// Lamports can't be debited from accounts owned by other programs
	programOwned := &bank.Account{Address: generateKey(t), Owner: token.ProgramKey, Lamports: 1000}
	require.NoError(t, store.Save(ctx, programOwned))

	txn = solana.NewTransaction(programOwned.Address, system.Transfer(programOwned.Address, to, 1))
	err = execute(ctx, store, txn.Message, 0)
	assert.True(t, errors.Is(err, solana.InstructionErrorExternalAccountLamportSpend))
}

func execute(ctx context.Context, store bank.Store, m solana.Message, index int) error {
	inv, err := bank.NewInvocation(m, index)
	if err != nil {
		return err
	}
	return store.ExecuteInTx(ctx, func(ctx context.Context) error {
		return bank.ProcessSystemInstruction(ctx, store, inv, m, index)
	})
}

func fundedAccount(t *testing.T, store bank.Store, lamports uint64) []byte {
	account := bank.NewSystemAccount(generateKey(t))
	account.Lamports = lamports
	require.NoError(t, store.Save(context.Background(), account))
	return account.Address
}
