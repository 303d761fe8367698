package computebudget

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/code-payments/tokadapt-server/pkg/solana"
)

// ComputeBudget111111111111111111111111111111
var ProgramKey = ed25519.PublicKey{3, 6, 70, 111, 229, 33, 23, 50, 255, 236, 173, 186, 114, 195, 155, 231, 188, 140, 229, 187, 197, 247, 18, 107, 44, 67, 155, 58, 64, 0, 0, 0}

// Command identifies a compute budget instruction.
type Command uint8

const (
	CommandRequestUnits Command = iota
	CommandRequestHeapFrame
	CommandSetComputeUnitLimit
	CommandSetComputeUnitPrice
	CommandSetLoadedAccountsDataSizeLimit
)

var ErrInvalidInstruction = errors.New("invalid compute budget instruction")

func SetComputeUnitLimit(computeUnitLimit uint32) solana.Instruction {
	data := make([]byte, 1+4)
	data[0] = byte(CommandSetComputeUnitLimit)
	binary.LittleEndian.PutUint32(data[1:], computeUnitLimit)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
	)
}

func SetComputeUnitPrice(computeUnitPrice uint64) solana.Instruction {
	data := make([]byte, 1+8)
	data[0] = byte(CommandSetComputeUnitPrice)
	binary.LittleEndian.PutUint64(data[1:], computeUnitPrice)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
	)
}

// DecompiledInstruction is a parsed compute budget instruction. Only the
// field matching Command is set.
type DecompiledInstruction struct {
	Command          Command
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
	HeapFrameBytes   uint32
	DataSizeLimit    uint32
}

func DecompileInstruction(m solana.Message, index int) (*DecompiledInstruction, error) {
	if index >= len(m.Instructions) {
		return nil, errors.Errorf("instruction doesn't exist at %d", index)
	}

	i := m.Instructions[index]
	if !bytes.Equal(m.Accounts[i.ProgramIndex], ProgramKey) {
		return nil, solana.ErrIncorrectProgram
	}
	if len(i.Accounts) != 0 {
		return nil, errors.Wrap(ErrInvalidInstruction, "no accounts expected")
	}

	return ParseInstructionData(i.Data)
}

func ParseInstructionData(data []byte) (*DecompiledInstruction, error) {
	if len(data) == 0 {
		return nil, ErrInvalidInstruction
	}

	decompiled := &DecompiledInstruction{Command: Command(data[0])}
	switch decompiled.Command {
	case CommandSetComputeUnitLimit:
		if len(data) != 5 {
			return nil, errors.Wrap(ErrInvalidInstruction, "invalid length")
		}
		decompiled.ComputeUnitLimit = binary.LittleEndian.Uint32(data[1:])
	case CommandSetComputeUnitPrice:
		if len(data) != 9 {
			return nil, errors.Wrap(ErrInvalidInstruction, "invalid length")
		}
		decompiled.ComputeUnitPrice = binary.LittleEndian.Uint64(data[1:])
	case CommandRequestHeapFrame:
		if len(data) != 5 {
			return nil, errors.Wrap(ErrInvalidInstruction, "invalid length")
		}
		decompiled.HeapFrameBytes = binary.LittleEndian.Uint32(data[1:])
	case CommandSetLoadedAccountsDataSizeLimit:
		if len(data) != 5 {
			return nil, errors.Wrap(ErrInvalidInstruction, "invalid length")
		}
		decompiled.DataSizeLimit = binary.LittleEndian.Uint32(data[1:])
	default:
		// RequestUnits is deprecated
		return nil, errors.Wrapf(ErrInvalidInstruction, "unsupported command %d", decompiled.Command)
	}
	return decompiled, nil
}
