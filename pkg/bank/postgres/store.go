package postgres

import (
	"context"
	"crypto/ed25519"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	pgutil "github.com/code-payments/tokadapt-server/pkg/database/postgres"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres-backed bank.Store
func New(db *sql.DB) bank.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// ExecuteInTx implements bank.Store.ExecuteInTx
//
// Transactions run at the serializable isolation level and are retried when
// Postgres aborts them due to a conflict, so fn may be called more than once.
func (s *store) ExecuteInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if pgutil.IsInTx(ctx) {
		return bank.ErrAlreadyInTx
	}

	return pgutil.ExecuteRetryable(func() error {
		return pgutil.ExecuteTxWithinCtx(ctx, s.db, sql.LevelSerializable, fn)
	})
}

// Get implements bank.Store.Get
func (s *store) Get(ctx context.Context, address ed25519.PublicKey) (*bank.Account, error) {
	model, err := dbGet(ctx, s.db, address)
	if err != nil {
		return nil, err
	}
	return fromModel(model)
}

// Save implements bank.Store.Save
func (s *store) Save(ctx context.Context, account *bank.Account) error {
	if account.IsEmpty() {
		if err := account.Validate(); err != nil {
			return err
		}
		return s.Delete(ctx, account.Address)
	}

	model, err := toModel(account)
	if err != nil {
		return err
	}

	if err := model.dbSave(ctx, s.db); err != nil {
		return err
	}

	res, err := fromModel(model)
	if err != nil {
		return err
	}
	res.CopyTo(account)

	return nil
}

// Delete implements bank.Store.Delete
func (s *store) Delete(ctx context.Context, address ed25519.PublicKey) error {
	return dbDelete(ctx, s.db, address)
}

// MarkSignatureProcessed implements bank.Store.MarkSignatureProcessed
func (s *store) MarkSignatureProcessed(ctx context.Context, signature string) error {
	return dbMarkSignatureProcessed(ctx, s.db, signature)
}
