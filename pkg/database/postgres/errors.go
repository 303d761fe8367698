package pg

import (
	"database/sql"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
)

// CheckNoRows replaces a missing row error with outErr.
func CheckNoRows(inErr, outErr error) error {
	return replaceIf(inErr, outErr, IsNoRows)
}

// CheckUniqueViolation replaces a unique constraint violation with outErr.
func CheckUniqueViolation(inErr, outErr error) error {
	return replaceIf(inErr, outErr, IsUniqueViolation)
}

func IsNoRows(err error) bool {
	return err != nil && errors.Is(err, sql.ErrNoRows)
}

func IsUniqueViolation(err error) bool {
	return sqlState(err) == pgerrcode.UniqueViolation
}

// IsSerializationFailure matches aborts that leave nothing behind, so the
// whole transaction may be run again.
func IsSerializationFailure(err error) bool {
	switch sqlState(err) {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return true
	default:
		return false
	}
}

func replaceIf(inErr, outErr error, match func(error) bool) error {
	if match(inErr) {
		return outErr
	}
	return inErr
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if err != nil && errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
