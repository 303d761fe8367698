package tokadapt

import (
	"bytes"
	"crypto/ed25519"
	"math"
	"sync"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

var (
	ErrInvalidProgram         = errors.New("invalid program id")
	ErrInvalidAccountData     = errors.New("unexpected account data")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
	ErrUnknownInstruction     = errors.New("unknown instruction")
	ErrNotEnoughAccountKeys   = errors.New("not enough account keys")
	ErrProgramIDAlreadySet    = errors.New("program id already set")
)

const (
	DefaultProgramAddress = "tokdh9ZbWPxkFzqsKqeAwLDk6J6a8NBZtQanVuuENxa"

	// MaxAmount is the sentinel swap amount that resolves to the full balance
	// of the input account, or to the remaining delegated allowance when the
	// input authority is a delegate. Token supplies are u64 and the ledger
	// rejects any mint that would overflow, so no balance or allowance can
	// ever be requested literally at this value.
	MaxAmount uint64 = math.MaxUint64
)

var (
	programIDMu     sync.Mutex
	programID       = mustBase58Decode(DefaultProgramAddress)
	programIDLocked bool
)

// InitProgramID sets the process-wide program identity. It may only be called
// before the identity is first read; setting the same value again is a no-op.
func InitProgramID(id ed25519.PublicKey) error {
	if len(id) != ed25519.PublicKeySize {
		return ErrInvalidProgram
	}

	programIDMu.Lock()
	defer programIDMu.Unlock()

	if bytes.Equal(programID, id) {
		programIDLocked = true
		return nil
	}
	if programIDLocked {
		return ErrProgramIDAlreadySet
	}

	programID = append(ed25519.PublicKey{}, id...)
	programIDLocked = true
	return nil
}

// ProgramID returns the process-wide program identity. Reading it locks the
// value in place.
func ProgramID() ed25519.PublicKey {
	programIDMu.Lock()
	defer programIDMu.Unlock()

	programIDLocked = true
	return append(ed25519.PublicKey{}, programID...)
}

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
