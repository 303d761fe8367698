package adapter

import (
	"fmt"

	"github.com/mr-tron/base58/base58"

	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/tokadapt"
)

// ErrorKind classifies why an adapter operation was rejected.
type ErrorKind string

const (
	KindAuthorityMismatch     ErrorKind = "AuthorityMismatch"
	KindMustNotBeCloseable    ErrorKind = "MustNotBeCloseable"
	KindMustNotBeDelegated    ErrorKind = "MustNotBeDelegated"
	KindInvalidInputMint      ErrorKind = "InvalidInputMint"
	KindInvalidInputAuthority ErrorKind = "InvalidInputAuthority"
	KindInsufficientFunds     ErrorKind = "InsufficientFunds"
	KindInvalidCloseTarget    ErrorKind = "InvalidCloseTarget"
	KindUnauthorized          ErrorKind = "Unauthorized"

	// Account or instruction failed validation before reaching any of the
	// checks above.
	KindConstraintViolation ErrorKind = "ConstraintViolation"
	KindInvalidInstruction  ErrorKind = "InvalidInstruction"
)

// ProgramError is a terminal rejection of an adapter instruction. It unwraps
// to the program's custom error code, so it can be matched against either the
// sentinels below or the tokadapt code table.
type ProgramError struct {
	Kind    ErrorKind
	Code    solana.CustomError
	Message string

	// cause replaces Code when unwrapping, for kinds that map onto a builtin
	// instruction error.
	cause error
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProgramError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return e.Code
}

// Is matches other program errors of the same kind and code, so annotated
// copies of the sentinels still compare equal to them.
func (e *ProgramError) Is(target error) bool {
	other, ok := target.(*ProgramError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind && e.Code == other.Code
}

var (
	ErrAuthorityMismatch = &ProgramError{
		Kind:    KindAuthorityMismatch,
		Code:    tokadapt.ErrorAuthorityMismatch,
		Message: "Treasury token authority does not match",
	}
	ErrMustNotBeCloseable = &ProgramError{
		Kind:    KindMustNotBeCloseable,
		Code:    tokadapt.ErrorMustNotBeCloseable,
		Message: "Treasury token account must not be closeable",
	}
	ErrMustNotBeDelegated = &ProgramError{
		Kind:    KindMustNotBeDelegated,
		Code:    tokadapt.ErrorMustNotBeDelegated,
		Message: "Treasury token account must not be delegated",
	}
	ErrInvalidInputMint = &ProgramError{
		Kind:    KindInvalidInputMint,
		Code:    tokadapt.ErrorInvalidInputMint,
		Message: "Invalid input mint",
	}
	ErrInvalidInputAuthority = &ProgramError{
		Kind:    KindInvalidInputAuthority,
		Code:    tokadapt.ErrorInvalidInputAuthority,
		Message: "Invalid input authority",
	}
	ErrInvalidCloseTarget = &ProgramError{
		Kind:    KindInvalidCloseTarget,
		Code:    tokadapt.ErrorInvalidCloseTarget,
		Message: "Close token target must differ from storage",
	}
	ErrInsufficientFunds = &ProgramError{
		Kind:    KindInsufficientFunds,
		Message: "Output storage holds less than the requested amount",
		cause:   solana.InstructionErrorInsufficientFunds,
	}
	ErrUnauthorized = &ProgramError{
		Kind:    KindUnauthorized,
		Code:    tokadapt.ErrorConstraintHasOne,
		Message: "Signer is not the admin authority",
	}
)

var constraintMessages = map[solana.CustomError]string{
	tokadapt.ErrorInstructionMissing:           "8 byte instruction identifier not provided",
	tokadapt.ErrorInstructionFallbackNotFound:  "Fallback functions are not supported",
	tokadapt.ErrorInstructionDidNotDeserialize: "The program could not deserialize the given instruction",
	tokadapt.ErrorConstraintMut:                "A mut constraint was violated",
	tokadapt.ErrorConstraintHasOne:             "A has one constraint was violated",
	tokadapt.ErrorConstraintSigner:             "A signer constraint was violated",
	tokadapt.ErrorConstraintOwner:              "An owner constraint was violated",
	tokadapt.ErrorConstraintRentExempt:         "A rent exemption constraint was violated",
	tokadapt.ErrorConstraintSeeds:              "A seeds constraint was violated",
	tokadapt.ErrorConstraintZero:               "Expected zero account discriminant",
	tokadapt.ErrorAccountDiscriminatorNotFound: "No 8 byte discriminator was found on the account",
	tokadapt.ErrorAccountDiscriminatorMismatch: "8 byte discriminator did not match what was expected",
	tokadapt.ErrorAccountDidNotDeserialize:     "Failed to deserialize the account",
	tokadapt.ErrorAccountNotEnoughKeys:         "Not enough account keys given to the instruction",
	tokadapt.ErrorAccountNotMutable:            "The given account is not mutable",
	tokadapt.ErrorAccountOwnedByWrongProgram:   "The given account is owned by a different program than expected",
	tokadapt.ErrorInvalidProgramID:             "Program ID was not as expected",
	tokadapt.ErrorAccountNotSigner:             "The given account did not sign",
	tokadapt.ErrorAccountNotSystemOwned:        "The given account is not owned by the system program",
	tokadapt.ErrorAccountNotInitialized:        "The program expected this account to be already initialized",
}

// newConstraintError rejects an account that failed validation. The account
// name and address are included in the message.
func newConstraintError(code solana.CustomError, name string, address []byte) *ProgramError {
	return &ProgramError{
		Kind:    KindConstraintViolation,
		Code:    code,
		Message: fmt.Sprintf("%s (account %s: %s)", constraintMessages[code], name, base58.Encode(address)),
	}
}

func newInvalidInstructionError(code solana.CustomError) *ProgramError {
	return &ProgramError{
		Kind:    KindInvalidInstruction,
		Code:    code,
		Message: constraintMessages[code],
	}
}

// withAccount annotates a sentinel with the offending account while keeping
// its kind and code.
func withAccount(err *ProgramError, name string, address []byte) *ProgramError {
	return &ProgramError{
		Kind:    err.Kind,
		Code:    err.Code,
		Message: fmt.Sprintf("%s (account %s: %s)", err.Message, name, base58.Encode(address)),
		cause:   err.cause,
	}
}
