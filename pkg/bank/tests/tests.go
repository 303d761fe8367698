package tests

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/solana/system"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
)

func RunTests(t *testing.T, s bank.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s bank.Store){
		testHappyPath,
		testEmptyAccountIsDeleted,
		testTxVisibility,
		testTxRollback,
		testNestedTx,
		testSignatures,
	} {
		tf(t, s)
		teardown()
	}
}

func testHappyPath(t *testing.T, s bank.Store) {
	t.Run("testHappyPath", func(t *testing.T) {
		start := time.Now()
		ctx := context.Background()

		expected := &bank.Account{
			Address:  generateKey(t),
			Owner:    token.ProgramKey,
			Lamports: bank.RentExemptMinimum(token.AccountSize),
			Data:     make([]byte, token.AccountSize),
		}
		expected.Data[0] = 1

		_, err := s.Get(ctx, expected.Address)
		assert.Equal(t, bank.ErrAccountNotFound, err)

		require.NoError(t, s.Save(ctx, expected))
		assert.EqualValues(t, 1, expected.Version)
		assert.True(t, expected.LastUpdatedAt.After(start))

		actual, err := s.Get(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentAccounts(t, expected, actual)

		expected.Lamports += 10
		expected.Data[1] = 2
		require.NoError(t, s.Save(ctx, expected))
		assert.EqualValues(t, 2, expected.Version)

		actual, err = s.Get(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentAccounts(t, expected, actual)

		// Returned values are copies
		actual.Data[2] = 3
		actual, err = s.Get(ctx, expected.Address)
		require.NoError(t, err)
		assert.EqualValues(t, 0, actual.Data[2])

		require.NoError(t, s.Delete(ctx, expected.Address))
		_, err = s.Get(ctx, expected.Address)
		assert.Equal(t, bank.ErrAccountNotFound, err)

		// Deleting again is a no-op
		require.NoError(t, s.Delete(ctx, expected.Address))
	})
}

func testEmptyAccountIsDeleted(t *testing.T, s bank.Store) {
	t.Run("testEmptyAccountIsDeleted", func(t *testing.T) {
		ctx := context.Background()

		account := bank.NewSystemAccount(generateKey(t))
		account.Lamports = 100
		require.NoError(t, s.Save(ctx, account))

		account.Lamports = 0
		require.NoError(t, s.Save(ctx, account))

		_, err := s.Get(ctx, account.Address)
		assert.Equal(t, bank.ErrAccountNotFound, err)

		empty, err := bank.GetOrEmpty(ctx, s, account.Address)
		require.NoError(t, err)
		assert.True(t, empty.IsEmpty())
		assert.True(t, empty.IsSystemOwned())
		assert.EqualValues(t, system.ProgramKey[:], empty.Owner)
	})
}

func testTxVisibility(t *testing.T, s bank.Store) {
	t.Run("testTxVisibility", func(t *testing.T) {
		ctx := context.Background()

		existing := bank.NewSystemAccount(generateKey(t))
		existing.Lamports = 1000
		require.NoError(t, s.Save(ctx, existing))

		created := bank.NewSystemAccount(generateKey(t))
		created.Lamports = 10

		err := s.ExecuteInTx(ctx, func(ctx context.Context) error {
			account, err := s.Get(ctx, existing.Address)
			require.NoError(t, err)

			account.Lamports -= created.Lamports
			require.NoError(t, s.Save(ctx, account))
			require.NoError(t, s.Save(ctx, created))

			// Writes are visible within the transaction
			account, err = s.Get(ctx, existing.Address)
			require.NoError(t, err)
			assert.EqualValues(t, 990, account.Lamports)

			_, err = s.Get(ctx, created.Address)
			require.NoError(t, err)

			return nil
		})
		require.NoError(t, err)

		account, err := s.Get(ctx, existing.Address)
		require.NoError(t, err)
		assert.EqualValues(t, 990, account.Lamports)
		assert.EqualValues(t, 2, account.Version)

		account, err = s.Get(ctx, created.Address)
		require.NoError(t, err)
		assert.EqualValues(t, 10, account.Lamports)
	})
}

func testTxRollback(t *testing.T, s bank.Store) {
	t.Run("testTxRollback", func(t *testing.T) {
		ctx := context.Background()
		rollback := errors.New("rollback")

		existing := bank.NewSystemAccount(generateKey(t))
		existing.Lamports = 1000
		require.NoError(t, s.Save(ctx, existing))

		created := bank.NewSystemAccount(generateKey(t))
		created.Lamports = 10

		err := s.ExecuteInTx(ctx, func(ctx context.Context) error {
			require.NoError(t, s.Save(ctx, created))
			require.NoError(t, s.Delete(ctx, existing.Address))
			require.NoError(t, s.MarkSignatureProcessed(ctx, "rolled-back"))

			_, err := s.Get(ctx, existing.Address)
			assert.Equal(t, bank.ErrAccountNotFound, err)

			return rollback
		})
		assert.Equal(t, rollback, err)

		account, err := s.Get(ctx, existing.Address)
		require.NoError(t, err)
		assertEquivalentAccounts(t, existing, account)

		_, err = s.Get(ctx, created.Address)
		assert.Equal(t, bank.ErrAccountNotFound, err)

		require.NoError(t, s.MarkSignatureProcessed(ctx, "rolled-back"))
	})
}

func testNestedTx(t *testing.T, s bank.Store) {
	t.Run("testNestedTx", func(t *testing.T) {
		ctx := context.Background()

		err := s.ExecuteInTx(ctx, func(ctx context.Context) error {
			return s.ExecuteInTx(ctx, func(ctx context.Context) error {
				return nil
			})
		})
		assert.Equal(t, bank.ErrAlreadyInTx, err)
	})
}

func testSignatures(t *testing.T, s bank.Store) {
	t.Run("testSignatures", func(t *testing.T) {
		ctx := context.Background()

		require.NoError(t, s.MarkSignatureProcessed(ctx, "sig1"))
		assert.Equal(t, bank.ErrSignatureProcessed, s.MarkSignatureProcessed(ctx, "sig1"))

		err := s.ExecuteInTx(ctx, func(ctx context.Context) error {
			require.NoError(t, s.MarkSignatureProcessed(ctx, "sig2"))
			assert.Equal(t, bank.ErrSignatureProcessed, s.MarkSignatureProcessed(ctx, "sig2"))
			return s.MarkSignatureProcessed(ctx, "sig1")
		})
		assert.Equal(t, bank.ErrSignatureProcessed, err)

		require.NoError(t, s.MarkSignatureProcessed(ctx, "sig2"))
	})
}

func assertEquivalentAccounts(t *testing.T, obj1, obj2 *bank.Account) {
	assert.EqualValues(t, obj1.Address, obj2.Address)
	assert.EqualValues(t, obj1.Owner, obj2.Owner)
	assert.Equal(t, obj1.Lamports, obj2.Lamports)
	// Stores may hand back empty data as either nil or an empty slice
	assert.Equal(t, len(obj1.Data), len(obj2.Data))
	assert.True(t, bytes.Equal(obj1.Data, obj2.Data))
	assert.Equal(t, obj1.Version, obj2.Version)
}

func generateKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub
}
