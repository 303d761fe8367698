package tokenledger_test

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/bank/memory"
	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/system"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
	"github.com/code-payments/tokadapt-server/pkg/testutil"
	"github.com/code-payments/tokadapt-server/pkg/tokenledger"
)

type testEnv struct {
	ctx    context.Context
	store  bank.Store
	ledger *tokenledger.Ledger

	payer         ed25519.PrivateKey
	mintAuthority ed25519.PrivateKey
	mint          ed25519.PublicKey
}

func setup(t *testing.T) *testEnv {
	store := memory.New()
	mintAuthority := testutil.GenerateSolanaKeypair(t)

	return &testEnv{
		ctx:           context.Background(),
		store:         store,
		ledger:        tokenledger.New(store),
		payer:         testutil.SetupFundedAccount(t, store, 1_000_000_000),
		mintAuthority: mintAuthority,
		mint:          testutil.SetupMint(t, store, testutil.PublicKey(mintAuthority), 6),
	}
}

// process runs every instruction of the message in one store transaction,
// dispatching to the program that owns it.
func (e *testEnv) process(t *testing.T, instructions []solana.Instruction, signers ...ed25519.PrivateKey) error {
	txn := testutil.SignedTransaction(t, instructions, append([]ed25519.PrivateKey{e.payer}, signers...)...)
	require.NoError(t, txn.VerifySignatures())

	return e.store.ExecuteInTx(e.ctx, func(ctx context.Context) error {
		for i := range txn.Message.Instructions {
			inv, err := bank.NewInvocation(txn.Message, i)
			if err != nil {
				return err
			}

			program, _ := txn.Message.ProgramKey(i)
			switch {
			case program.Equal(token.ProgramKey):
				err = e.ledger.ProcessInstruction(ctx, inv, txn.Message, i)
			case program.Equal(token.AssociatedTokenAccountProgramKey):
				err = e.ledger.ProcessAssociatedInstruction(ctx, inv, txn.Message, i)
			case program.Equal(ed25519.PublicKey(system.ProgramKey[:])):
				err = bank.ProcessSystemInstruction(ctx, e.store, inv, txn.Message, i)
			default:
				err = solana.InstructionErrorIncorrectProgramID
			}
			if err != nil {
				return solana.NewInstructionError(i, err)
			}
		}
		return nil
	})
}

func TestGetAccountAndMint(t *testing.T) {
	env := setup(t)

	owner := testutil.GenerateSolanaKeys(t, 1)[0]
	account := testutil.SetupTokenAccount(t, env.store, nil, env.mint, owner, 100)

	state, err := env.ledger.GetAccount(env.ctx, account)
	require.NoError(t, err)
	assert.EqualValues(t, owner, state.Owner)
	assert.EqualValues(t, env.mint, state.Mint)
	assert.EqualValues(t, 100, state.Amount)

	mint, err := env.ledger.GetMint(env.ctx, env.mint)
	require.NoError(t, err)
	assert.EqualValues(t, 100, mint.Supply)
	assert.EqualValues(t, 6, mint.Decimals)

	_, err = env.ledger.GetAccount(env.ctx, env.mint)
	assert.Equal(t, tokenledger.ErrNotTokenAccount, err)

	_, err = env.ledger.GetMint(env.ctx, account)
	assert.Equal(t, tokenledger.ErrNotMint, err)

	_, err = env.ledger.GetAccount(env.ctx, testutil.GenerateSolanaKeys(t, 1)[0])
	assert.Equal(t, bank.ErrAccountNotFound, err)

	_, err = env.ledger.GetAccount(env.ctx, testutil.PublicKey(env.payer))
	assert.Equal(t, tokenledger.ErrNotTokenAccount, err)
}

func TestCreateMintAndAccount(t *testing.T) {
	env := setup(t)
	payer := testutil.PublicKey(env.payer)

	mint := testutil.GenerateSolanaKeypair(t)
	account := testutil.GenerateSolanaKeypair(t)
	owner := testutil.GenerateSolanaKeys(t, 1)[0]

	err := env.process(t, []solana.Instruction{
		system.CreateAccount(payer, testutil.PublicKey(mint), token.ProgramKey, bank.RentExemptMinimum(token.MintSize), token.MintSize),
		token.InitializeMint(testutil.PublicKey(mint), payer, nil, 2),
		system.CreateAccount(payer, testutil.PublicKey(account), token.ProgramKey, bank.RentExemptMinimum(token.AccountSize), token.AccountSize),
		token.InitializeAccount(testutil.PublicKey(account), testutil.PublicKey(mint), owner),
		token.MintTo(testutil.PublicKey(mint), testutil.PublicKey(account), payer, 500),
	}, mint, account)
	require.NoError(t, err)

	state := testutil.GetTokenAccount(t, env.store, testutil.PublicKey(account))
	assert.EqualValues(t, owner, state.Owner)
	assert.EqualValues(t, 500, state.Amount)
	assert.EqualValues(t, 500, testutil.GetMint(t, env.store, testutil.PublicKey(mint)).Supply)

	// Re-initialization is rejected
	err = env.process(t, []solana.Instruction{
		token.InitializeAccount(testutil.PublicKey(account), testutil.PublicKey(mint), payer),
	})
	testutil.AssertInstructionError(t, err, 0, token.ErrorAlreadyInUse)
}

func TestInitializeAccount_NotRentExempt(t *testing.T) {
	env := setup(t)
	payer := testutil.PublicKey(env.payer)
	account := testutil.GenerateSolanaKeypair(t)

	err := env.process(t, []solana.Instruction{
		system.CreateAccount(payer, testutil.PublicKey(account), token.ProgramKey, 1, token.AccountSize),
		token.InitializeAccount(testutil.PublicKey(account), env.mint, payer),
	}, account)
	testutil.AssertInstructionError(t, err, 1, token.ErrorNotRentExempt)

	// Nothing from the failed transaction is persisted
	assert.EqualValues(t, 0, testutil.GetLamports(t, env.store, testutil.PublicKey(account)))
}

func TestTransfer(t *testing.T) {
	env := setup(t)

	owner := testutil.GenerateSolanaKeypair(t)
	source := testutil.SetupTokenAccount(t, env.store, nil, env.mint, testutil.PublicKey(owner), 100)
	dest := testutil.SetupTokenAccount(t, env.store, nil, env.mint, testutil.GenerateSolanaKeys(t, 1)[0], 0)

	require.NoError(t, env.process(t, []solana.Instruction{
		token.Transfer(source, dest, testutil.PublicKey(owner), 40),
	}, owner))
	assert.EqualValues(t, 60, testutil.GetTokenAccount(t, env.store, source).Amount)
	assert.EqualValues(t, 40, testutil.GetTokenAccount(t, env.store, dest).Amount)

	err := env.process(t, []solana.Instruction{
		token.Transfer(source, dest, testutil.PublicKey(owner), 61),
	}, owner)
	testutil.AssertInstructionError(t, err, 0, solana.InstructionErrorInsufficientFunds)

	// Wrong authority
	other := testutil.GenerateSolanaKeypair(t)
	err = env.process(t, []solana.Instruction{
		token.Transfer(source, dest, testutil.PublicKey(other), 1),
	}, other)
	testutil.AssertInstructionError(t, err, 0, token.ErrorOwnerMismatch)

	// Mint mismatch
	otherMint := testutil.SetupMint(t, env.store, testutil.PublicKey(env.mintAuthority), 6)
	otherDest := testutil.SetupTokenAccount(t, env.store, nil, otherMint, testutil.PublicKey(owner), 0)
	err = env.process(t, []solana.Instruction{
		token.Transfer(source, otherDest, testutil.PublicKey(owner), 1),
	}, owner)
	testutil.AssertInstructionError(t, err, 0, token.ErrorMintMismatch)
}

func TestTransfer_MissingSignature(t *testing.T) {
	env := setup(t)

	owner := testutil.GenerateSolanaKeys(t, 1)[0]
	source := testutil.SetupTokenAccount(t, env.store, nil, env.mint, owner, 100)
	dest := testutil.SetupTokenAccount(t, env.store, nil, env.mint, owner, 0)

	instruction := token.Transfer(source, dest, owner, 1)
	instruction.Accounts[2].IsSigner = false

	err := env.process(t, []solana.Instruction{instruction})
	testutil.AssertInstructionError(t, err, 0, solana.InstructionErrorMissingRequiredSignature)
}

func TestDelegatedSpend(t *testing.T) {
	env := setup(t)

	owner := testutil.GenerateSolanaKeypair(t)
	delegate := testutil.GenerateSolanaKeypair(t)
	source := testutil.SetupTokenAccount(t, env.store, nil, env.mint, testutil.PublicKey(owner), 100)
	dest := testutil.SetupTokenAccount(t, env.store, nil, env.mint, testutil.PublicKey(owner), 0)

	require.NoError(t, env.process(t, []solana.Instruction{
		token.Approve(source, testutil.PublicKey(delegate), testutil.PublicKey(owner), 30),
	}, owner))

	state := testutil.GetTokenAccount(t, env.store, source)
	assert.EqualValues(t, testutil.PublicKey(delegate), state.Delegate)
	assert.EqualValues(t, 30, state.DelegatedAmount)

	err := env.process(t, []solana.Instruction{
		token.Burn(source, env.mint, testutil.PublicKey(delegate), 31),
	}, delegate)
	testutil.AssertInstructionError(t, err, 0, solana.InstructionErrorInsufficientFunds)

	require.NoError(t, env.process(t, []solana.Instruction{
		token.Burn(source, env.mint, testutil.PublicKey(delegate), 10),
		token.Transfer(source, dest, testutil.PublicKey(delegate), 20),
	}, delegate))

	state = testutil.GetTokenAccount(t, env.store, source)
	assert.EqualValues(t, 70, state.Amount)
	assert.EqualValues(t, 0, state.DelegatedAmount)
	assert.Nil(t, state.Delegate)
	assert.EqualValues(t, 20, testutil.GetTokenAccount(t, env.store, dest).Amount)
	assert.EqualValues(t, 90, testutil.GetMint(t, env.store, env.mint).Supply)

	// The allowance is exhausted
	err = env.process(t, []solana.Instruction{
		token.Burn(source, env.mint, testutil.PublicKey(delegate), 1),
	}, delegate)
	testutil.AssertInstructionError(t, err, 0, token.ErrorOwnerMismatch)
}

func TestBurn(t *testing.T) {
	env := setup(t)

	owner := testutil.GenerateSolanaKeypair(t)
	account := testutil.SetupTokenAccount(t, env.store, nil, env.mint, testutil.PublicKey(owner), 100)

	require.NoError(t, env.process(t, []solana.Instruction{
		token.Burn(account, env.mint, testutil.PublicKey(owner), 100),
	}, owner))
	assert.EqualValues(t, 0, testutil.GetTokenAccount(t, env.store, account).Amount)
	assert.EqualValues(t, 0, testutil.GetMint(t, env.store, env.mint).Supply)

	err := env.process(t, []solana.Instruction{
		token.Burn(account, env.mint, testutil.PublicKey(owner), 1),
	}, owner)
	testutil.AssertInstructionError(t, err, 0, solana.InstructionErrorInsufficientFunds)
}

func TestSetAuthority(t *testing.T) {
	env := setup(t)

	owner := testutil.GenerateSolanaKeypair(t)
	newOwner := testutil.GenerateSolanaKeypair(t)
	delegate := testutil.GenerateSolanaKeys(t, 1)[0]
	closer := testutil.GenerateSolanaKeys(t, 1)[0]
	account := testutil.SetupTokenAccount(t, env.store, nil, env.mint, testutil.PublicKey(owner), 100, testutil.WithDelegate(delegate, 10))

	require.NoError(t, env.process(t, []solana.Instruction{
		token.SetAuthority(account, testutil.PublicKey(owner), closer, token.AuthorityTypeCloseAccount),
		token.SetAuthority(account, testutil.PublicKey(owner), testutil.PublicKey(newOwner), token.AuthorityTypeAccountHolder),
	}, owner))

	state := testutil.GetTokenAccount(t, env.store, account)
	assert.EqualValues(t, testutil.PublicKey(newOwner), state.Owner)
	assert.EqualValues(t, closer, state.CloseAuthority)
	assert.Nil(t, state.Delegate)
	assert.EqualValues(t, 0, state.DelegatedAmount)

	err := env.process(t, []solana.Instruction{
		token.SetAuthority(account, testutil.PublicKey(owner), testutil.PublicKey(owner), token.AuthorityTypeAccountHolder),
	}, owner)
	testutil.AssertInstructionError(t, err, 0, token.ErrorOwnerMismatch)

	// Mint authorities can be cleared
	require.NoError(t, env.process(t, []solana.Instruction{
		token.SetAuthority(env.mint, testutil.PublicKey(env.mintAuthority), nil, token.AuthorityTypeMintTokens),
	}, env.mintAuthority))
	assert.Nil(t, testutil.GetMint(t, env.store, env.mint).MintAuthority)

	err = env.process(t, []solana.Instruction{
		token.MintTo(env.mint, account, testutil.PublicKey(env.mintAuthority), 1),
	}, env.mintAuthority)
	testutil.AssertInstructionError(t, err, 0, token.ErrorFixedSupply)
}

func TestCloseAccount(t *testing.T) {
	env := setup(t)

	owner := testutil.GenerateSolanaKeypair(t)
	account := testutil.SetupTokenAccount(t, env.store, nil, env.mint, testutil.PublicKey(owner), 1)
	collector := testutil.GenerateSolanaKeys(t, 1)[0]

	err := env.process(t, []solana.Instruction{
		token.CloseAccount(account, collector, testutil.PublicKey(owner)),
	}, owner)
	testutil.AssertInstructionError(t, err, 0, token.ErrorNonNativeHasBalance)

	require.NoError(t, env.process(t, []solana.Instruction{
		token.Burn(account, env.mint, testutil.PublicKey(owner), 1),
		token.CloseAccount(account, collector, testutil.PublicKey(owner)),
	}, owner))

	_, err = env.store.Get(env.ctx, account)
	assert.Equal(t, bank.ErrAccountNotFound, err)
	assert.Equal(t, bank.RentExemptMinimum(token.AccountSize), testutil.GetLamports(t, env.store, collector))
}

func TestCloseAccount_CloseAuthority(t *testing.T) {
	env := setup(t)

	owner := testutil.GenerateSolanaKeypair(t)
	closer := testutil.GenerateSolanaKeypair(t)
	account := testutil.SetupTokenAccount(t, env.store, nil, env.mint, testutil.PublicKey(owner), 0, testutil.WithCloseAuthority(testutil.PublicKey(closer)))
	collector := testutil.GenerateSolanaKeys(t, 1)[0]

	// The owner can no longer close the account
	err := env.process(t, []solana.Instruction{
		token.CloseAccount(account, collector, testutil.PublicKey(owner)),
	}, owner)
	testutil.AssertInstructionError(t, err, 0, token.ErrorOwnerMismatch)

	require.NoError(t, env.process(t, []solana.Instruction{
		token.CloseAccount(account, collector, testutil.PublicKey(closer)),
	}, closer))
}

func TestCreateAssociatedAccount(t *testing.T) {
	env := setup(t)
	payer := testutil.PublicKey(env.payer)
	owner := testutil.GenerateSolanaKeys(t, 1)[0]

	create, address, err := token.CreateAssociatedTokenAccount(payer, owner, env.mint)
	require.NoError(t, err)
	require.NoError(t, env.process(t, []solana.Instruction{create}))

	state, err := env.ledger.GetAccount(env.ctx, address)
	require.NoError(t, err)
	assert.EqualValues(t, owner, state.Owner)
	assert.EqualValues(t, env.mint, state.Mint)
	assert.Equal(t, bank.RentExemptMinimum(token.AccountSize), testutil.GetLamports(t, env.store, address))

	// Non-idempotent creation fails once the account exists
	err = env.process(t, []solana.Instruction{create})
	testutil.AssertInstructionError(t, err, 0, bank.SystemErrorAccountAlreadyInUse)

	createIdempotent, _, err := token.CreateAssociatedTokenAccountIdempotent(payer, owner, env.mint)
	require.NoError(t, err)
	require.NoError(t, env.process(t, []solana.Instruction{createIdempotent}))

	// The address must be the canonical associated account
	create.Accounts[1].PublicKey = testutil.GenerateSolanaKeys(t, 1)[0]
	err = env.process(t, []solana.Instruction{create})
	testutil.AssertInstructionError(t, err, 0, solana.InstructionErrorInvalidSeeds)
}

func TestLedger_RejectsWrongProgram(t *testing.T) {
	env := setup(t)

	owner := testutil.GenerateSolanaKeypair(t)
	source := testutil.SetupTokenAccount(t, env.store, nil, env.mint, testutil.PublicKey(owner), 10)

	// An invocation for another program cannot drive the ledger directly
	other := testutil.GenerateSolanaKeys(t, 1)[0]
	txn := testutil.SignedTransaction(t, []solana.Instruction{
		solana.NewInstruction(other, nil, solana.NewAccountMeta(source, false), solana.NewAccountMeta(testutil.PublicKey(owner), true)),
	}, env.payer, owner)
	inv, err := bank.NewInvocation(txn.Message, 0)
	require.NoError(t, err)

	err = env.ledger.Burn(env.ctx, inv, source, env.mint, testutil.PublicKey(owner), 1)
	assert.True(t, errors.Is(err, solana.InstructionErrorIncorrectProgramID))
}
