package tokadapt

import (
	"github.com/code-payments/tokadapt-server/pkg/solana"
)

// Program error codes, as returned in a Custom instruction error.
const (
	// Treasury token authority does not match
	ErrorAuthorityMismatch solana.CustomError = iota + 0x1770

	// Treasury token account must not be closeable
	ErrorMustNotBeCloseable

	// Treasury token account must not be delegated
	ErrorMustNotBeDelegated

	// Invalid input mint
	ErrorInvalidInputMint

	// Invalid input authority
	ErrorInvalidInputAuthority

	// Close token target must differ from storage
	ErrorInvalidCloseTarget
)

// Account validation error codes. These follow the numbering used by the
// framework the on-chain program is built with, so clients can decode both
// kinds of failures from the same table.
const (
	ErrorInstructionMissing           solana.CustomError = 100
	ErrorInstructionFallbackNotFound  solana.CustomError = 101
	ErrorInstructionDidNotDeserialize solana.CustomError = 102

	ErrorConstraintMut        solana.CustomError = 2000
	ErrorConstraintHasOne     solana.CustomError = 2001
	ErrorConstraintSigner     solana.CustomError = 2002
	ErrorConstraintOwner      solana.CustomError = 2004
	ErrorConstraintRentExempt solana.CustomError = 2005
	ErrorConstraintSeeds      solana.CustomError = 2006
	ErrorConstraintZero       solana.CustomError = 2013

	ErrorAccountDiscriminatorNotFound solana.CustomError = 3001
	ErrorAccountDiscriminatorMismatch solana.CustomError = 3002
	ErrorAccountDidNotDeserialize     solana.CustomError = 3003
	ErrorAccountNotEnoughKeys         solana.CustomError = 3005
	ErrorAccountNotMutable            solana.CustomError = 3006
	ErrorAccountOwnedByWrongProgram   solana.CustomError = 3007
	ErrorInvalidProgramID             solana.CustomError = 3008
	ErrorAccountNotSigner             solana.CustomError = 3010
	ErrorAccountNotSystemOwned        solana.CustomError = 3011
	ErrorAccountNotInitialized        solana.CustomError = 3012
)
