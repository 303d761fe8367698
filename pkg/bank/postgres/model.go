package postgres

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mr-tron/base58/base58"

	"github.com/code-payments/tokadapt-server/pkg/bank"
	pgutil "github.com/code-payments/tokadapt-server/pkg/database/postgres"
)

const (
	accountTableName   = "tokadapt__core_account"
	signatureTableName = "tokadapt__core_processedsignature"
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	Address  string `db:"address"`
	Owner    string `db:"owner"`
	Lamports int64  `db:"lamports"`
	Data     []byte `db:"data"`
	Version  int64  `db:"version"`

	LastUpdatedAt time.Time `db:"last_updated_at"`
}

func toModel(obj *bank.Account) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	return &model{
		Address:  base58.Encode(obj.Address),
		Owner:    base58.Encode(obj.Owner),
		Lamports: int64(obj.Lamports),
		Data:     append([]byte{}, obj.Data...),
		Version:  int64(obj.Version),
	}, nil
}

func fromModel(obj *model) (*bank.Account, error) {
	address, err := base58.Decode(obj.Address)
	if err != nil {
		return nil, err
	}
	owner, err := base58.Decode(obj.Owner)
	if err != nil {
		return nil, err
	}

	data := obj.Data
	if data == nil {
		data = []byte{}
	}

	return &bank.Account{
		Address:       address,
		Owner:         owner,
		Lamports:      uint64(obj.Lamports),
		Data:          data,
		Version:       uint64(obj.Version),
		LastUpdatedAt: obj.LastUpdatedAt,
	}, nil
}

func (m *model) dbSave(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + accountTableName + `
			(address, owner, lamports, data, version, last_updated_at)
			VALUES ($1, $2, $3, $4, 1, $5)

			ON CONFLICT (address)
			DO UPDATE
				SET owner = $2, lamports = $3, data = $4, version = ` + accountTableName + `.version + 1, last_updated_at = $5
				WHERE ` + accountTableName + `.address = $1

			RETURNING
				id, address, owner, lamports, data, version, last_updated_at`

		m.LastUpdatedAt = time.Now()

		return tx.QueryRowxContext(
			ctx,
			query,
			m.Address,
			m.Owner,
			m.Lamports,
			m.Data,
			m.LastUpdatedAt.UTC(),
		).StructScan(m)
	})
}

func dbGet(ctx context.Context, db *sqlx.DB, address ed25519.PublicKey) (*model, error) {
	res := &model{}

	// Row locks are only meaningful, and only taken, within a transaction
	query := `SELECT
		id, address, owner, lamports, data, version, last_updated_at
		FROM ` + accountTableName + `
		WHERE address = $1
		LIMIT 1`

	var err error
	if pgutil.IsInTx(ctx) {
		err = pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
			return tx.GetContext(ctx, res, query+` FOR UPDATE`, base58.Encode(address))
		})
	} else {
		err = db.GetContext(ctx, res, query, base58.Encode(address))
	}
	if err != nil {
		return nil, pgutil.CheckNoRows(err, bank.ErrAccountNotFound)
	}
	return res, nil
}

func dbDelete(ctx context.Context, db *sqlx.DB, address ed25519.PublicKey) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `DELETE FROM ` + accountTableName + `
			WHERE address = $1`

		_, err := tx.ExecContext(ctx, query, base58.Encode(address))
		return err
	})
}

func dbMarkSignatureProcessed(ctx context.Context, db *sqlx.DB, signature string) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + signatureTableName + `
			(signature, created_at)
			VALUES ($1, $2)`

		_, err := tx.ExecContext(ctx, query, signature, time.Now().UTC())
		return pgutil.CheckUniqueViolation(err, bank.ErrSignatureProcessed)
	})
}
