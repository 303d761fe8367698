package pg

import (
	"database/sql"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	errOut := errors.New("translated")
	unique := errors.Wrap(&pgconn.PgError{Code: pgerrcode.UniqueViolation}, "insert")
	serialization := errors.Wrap(&pgconn.PgError{Code: pgerrcode.SerializationFailure}, "commit")
	deadlock := &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
	noRows := errors.Wrap(sql.ErrNoRows, "select")
	other := errors.New("other")

	assert.Equal(t, errOut, CheckNoRows(noRows, errOut))
	assert.Equal(t, other, CheckNoRows(other, errOut))
	assert.NoError(t, CheckNoRows(nil, errOut))

	assert.Equal(t, errOut, CheckUniqueViolation(unique, errOut))
	assert.Equal(t, serialization, CheckUniqueViolation(serialization, errOut))
	assert.NoError(t, CheckUniqueViolation(nil, errOut))

	assert.True(t, IsSerializationFailure(serialization))
	assert.True(t, IsSerializationFailure(deadlock))
	assert.False(t, IsSerializationFailure(unique))
	assert.False(t, IsSerializationFailure(nil))
}
