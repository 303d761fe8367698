package tokadapt

import (
	"bytes"
	"crypto/ed25519"

	"github.com/code-payments/tokadapt-server/pkg/solana"
)

type InstructionType uint8

const (
	InstructionTypeUnknown InstructionType = iota
	InstructionTypeInitialize
	InstructionTypeSwap
	InstructionTypeSetAdmin
	InstructionTypeClose
)

func (t InstructionType) String() string {
	switch t {
	case InstructionTypeInitialize:
		return "initialize"
	case InstructionTypeSwap:
		return "swap"
	case InstructionTypeSetAdmin:
		return "set_admin"
	case InstructionTypeClose:
		return "close"
	}
	return "unknown"
}

// GetInstructionType returns the type of the adapter instruction at the
// index.
func GetInstructionType(m solana.Message, idx int) (InstructionType, error) {
	instruction, err := getProgramInstruction(m, idx)
	if err != nil {
		return InstructionTypeUnknown, err
	}

	if len(instruction.Data) < 8 {
		return InstructionTypeUnknown, ErrUnknownInstruction
	}

	discriminator := instruction.Data[:8]
	switch {
	case bytes.Equal(discriminator, initializeInstructionDiscriminator):
		return InstructionTypeInitialize, nil
	case bytes.Equal(discriminator, swapInstructionDiscriminator):
		return InstructionTypeSwap, nil
	case bytes.Equal(discriminator, setAdminInstructionDiscriminator):
		return InstructionTypeSetAdmin, nil
	case bytes.Equal(discriminator, closeInstructionDiscriminator):
		return InstructionTypeClose, nil
	}
	return InstructionTypeUnknown, ErrUnknownInstruction
}

func getProgramInstruction(m solana.Message, idx int) (solana.CompiledInstruction, error) {
	program, err := m.ProgramKey(idx)
	if err != nil {
		return solana.CompiledInstruction{}, err
	}
	if !bytes.Equal(program, ProgramID()) {
		return solana.CompiledInstruction{}, ErrInvalidProgram
	}
	return m.Instructions[idx], nil
}

// decompileInstruction validates the discriminator, data size and account
// count of an adapter instruction, returning the instruction data following
// the discriminator along with the referenced account keys.
func decompileInstruction(m solana.Message, idx int, discriminator []byte, argsSize, accountsSize int) ([]byte, []ed25519.PublicKey, error) {
	instruction, err := getProgramInstruction(m, idx)
	if err != nil {
		return nil, nil, err
	}

	if len(instruction.Data) < len(discriminator) || !bytes.Equal(instruction.Data[:len(discriminator)], discriminator) {
		return nil, nil, ErrUnknownInstruction
	}
	if len(instruction.Data) < len(discriminator)+argsSize {
		return nil, nil, ErrInvalidInstructionData
	}
	if len(instruction.Accounts) < accountsSize {
		return nil, nil, ErrNotEnoughAccountKeys
	}

	accounts := make([]ed25519.PublicKey, len(instruction.Accounts))
	for i, index := range instruction.Accounts {
		if int(index) >= len(m.Accounts) {
			return nil, nil, solana.ErrInvalidAccountIndex
		}
		accounts[i] = m.Accounts[index]
	}

	return instruction.Data, accounts, nil
}
