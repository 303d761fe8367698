package testutil

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/code-payments/tokadapt-server/pkg/solana"
)

// AssertStatusErrorWithCode verifies that the provided error is a gRPC status
// error of the provided status code.
func AssertStatusErrorWithCode(t *testing.T, err error, code codes.Code) {
	require.Error(t, err)
	status, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, code, status.Code())
}

// AssertInstructionError verifies that the provided error failed the
// instruction at the index with the expected cause.
func AssertInstructionError(t *testing.T, err error, index int, expected error) {
	require.Error(t, err)

	var instructionErr *solana.InstructionError
	require.True(t, errors.As(err, &instructionErr), "expected an instruction error, got: %v", err)
	assert.Equal(t, index, instructionErr.Index)
	assert.True(t, errors.Is(instructionErr, expected), "expected %v, got: %v", expected, instructionErr.Err)
}
