package solana

import (
	"fmt"

	"github.com/pkg/errors"
)

// TransactionErrorKey names a transaction level failure. Keys match the
// variants reported by Solana RPC nodes so clients can share error handling.
type TransactionErrorKey string

const (
	TransactionErrorAccountNotFound        TransactionErrorKey = "AccountNotFound"
	TransactionErrorProgramAccountNotFound TransactionErrorKey = "ProgramAccountNotFound"
	TransactionErrorInvalidAccountForFee   TransactionErrorKey = "InvalidAccountForFee"
	TransactionErrorDuplicateSignature     TransactionErrorKey = "DuplicateSignature"
	TransactionErrorInstructionError       TransactionErrorKey = "InstructionError"
	TransactionErrorMissingSignatureForFee TransactionErrorKey = "MissingSignatureForFee"
	TransactionErrorSignatureFailure       TransactionErrorKey = "SignatureFailure"
	TransactionErrorSanitizeFailure        TransactionErrorKey = "SanitizeFailure"
)

// InstructionErrorKey names a builtin instruction failure. Program
// processors may return keys directly as errors.
type InstructionErrorKey string

const (
	InstructionErrorGenericError                InstructionErrorKey = "GenericError"
	InstructionErrorInvalidArgument             InstructionErrorKey = "InvalidArgument"
	InstructionErrorInvalidInstructionData      InstructionErrorKey = "InvalidInstructionData"
	InstructionErrorInvalidAccountData          InstructionErrorKey = "InvalidAccountData"
	InstructionErrorInsufficientFunds           InstructionErrorKey = "InsufficientFunds"
	InstructionErrorIncorrectProgramID          InstructionErrorKey = "IncorrectProgramId"
	InstructionErrorMissingRequiredSignature    InstructionErrorKey = "MissingRequiredSignature"
	InstructionErrorExternalAccountLamportSpend InstructionErrorKey = "ExternalAccountLamportSpend"
	InstructionErrorReadonlyDataModified        InstructionErrorKey = "ReadonlyDataModified"
	InstructionErrorCustom                      InstructionErrorKey = "Custom"
	InstructionErrorCallDepth                   InstructionErrorKey = "CallDepth"
	InstructionErrorInvalidSeeds                InstructionErrorKey = "InvalidSeeds"
	InstructionErrorArithmeticOverflow          InstructionErrorKey = "ArithmeticOverflow"
	InstructionErrorIllegalOwner                InstructionErrorKey = "IllegalOwner"
)

func (k InstructionErrorKey) Error() string {
	return string(k)
}

// CustomError is the numerical error returned by a non-builtin program.
type CustomError int

func (c CustomError) Error() string {
	return fmt.Sprintf("custom program error: %#x", int(c))
}

// InstructionError attributes a failure to the instruction at Index.
type InstructionError struct {
	Index int
	Err   error
}

func NewInstructionError(index int, err error) *InstructionError {
	return &InstructionError{Index: index, Err: err}
}

func (i InstructionError) Error() string {
	return fmt.Sprintf("Error processing Instruction %d: %v", i.Index, i.Err)
}

func (i InstructionError) Unwrap() error {
	return i.Err
}

// ErrorKey classifies the wrapped error. Anything that is neither a custom
// error nor a builtin key is reported as GenericError.
func (i InstructionError) ErrorKey() InstructionErrorKey {
	var key InstructionErrorKey
	switch {
	case i.Err == nil:
		return ""
	case i.CustomError() != nil:
		return InstructionErrorCustom
	case errors.As(i.Err, &key):
		return key
	default:
		return InstructionErrorGenericError
	}
}

func (i InstructionError) CustomError() *CustomError {
	var ce CustomError
	if !errors.As(i.Err, &ce) {
		return nil
	}
	return &ce
}

// TransactionError is a failure that rejects an entire transaction.
type TransactionError struct {
	key         TransactionErrorKey
	instruction *InstructionError
}

func NewTransactionError(key TransactionErrorKey) *TransactionError {
	return &TransactionError{key: key}
}

func TransactionErrorFromInstructionError(err *InstructionError) *TransactionError {
	return &TransactionError{key: TransactionErrorInstructionError, instruction: err}
}

func (t TransactionError) Error() string {
	if t.instruction != nil {
		return t.instruction.Error()
	}
	return string(t.key)
}

func (t TransactionError) Unwrap() error {
	if t.instruction == nil {
		return nil
	}
	return t.instruction
}

func (t TransactionError) ErrorKey() TransactionErrorKey {
	return t.key
}

func (t TransactionError) InstructionError() *InstructionError {
	return t.instruction
}
