package tokadapt

import (
	"bytes"
	"crypto/ed25519"
	"strconv"

	"github.com/mr-tron/base58/base58"

	"github.com/code-payments/tokadapt-server/pkg/solana/binary"
)

// StateAccountAllocationSize is the number of bytes clients allocate for a
// state account. Only the first StateAccountSize bytes are used.
const StateAccountAllocationSize = 150

const StateAccountSize = (8 + // discriminator
	32 + // admin_authority
	32 + // input_mint
	32 + // output_storage
	1) // output_storage_authority_bump

var stateAccountDiscriminator = []byte{216, 146, 107, 94, 104, 75, 182, 177}

type StateAccount struct {
	AdminAuthority             ed25519.PublicKey
	InputMint                  ed25519.PublicKey
	OutputStorage              ed25519.PublicKey
	OutputStorageAuthorityBump uint8
}

func (obj *StateAccount) Clone() *StateAccount {
	return &StateAccount{
		AdminAuthority:             append(ed25519.PublicKey{}, obj.AdminAuthority...),
		InputMint:                  append(ed25519.PublicKey{}, obj.InputMint...),
		OutputStorage:              append(ed25519.PublicKey{}, obj.OutputStorage...),
		OutputStorageAuthorityBump: obj.OutputStorageAuthorityBump,
	}
}

func (obj *StateAccount) String() string {
	return "StateAccount {" +
		"  admin_authority='" + base58.Encode(obj.AdminAuthority) + "'" +
		", input_mint='" + base58.Encode(obj.InputMint) + "'" +
		", output_storage='" + base58.Encode(obj.OutputStorage) + "'" +
		", output_storage_authority_bump='" + strconv.Itoa(int(obj.OutputStorageAuthorityBump)) + "'" +
		"}"
}

// Marshal serializes the account into a StateAccountAllocationSize buffer,
// leaving the unused tail zeroed.
func (obj *StateAccount) Marshal() []byte {
	data := make([]byte, StateAccountAllocationSize)
	obj.MarshalInto(data)
	return data
}

// MarshalInto serializes the account into an existing allocation, which must
// be at least StateAccountSize bytes.
func (obj *StateAccount) MarshalInto(data []byte) {
	var offset int

	binary.PutDiscriminator(data, stateAccountDiscriminator, &offset)
	binary.PutKey32(data, obj.AdminAuthority, &offset)
	binary.PutKey32(data, obj.InputMint, &offset)
	binary.PutKey32(data, obj.OutputStorage, &offset)
	binary.PutUint8(data, obj.OutputStorageAuthorityBump, &offset)
}

func (obj *StateAccount) Unmarshal(data []byte) error {
	if len(data) < StateAccountSize {
		return ErrInvalidAccountData
	}

	var offset int
	var discriminator []byte

	binary.GetDiscriminator(data, &discriminator, &offset)
	if !bytes.Equal(discriminator, stateAccountDiscriminator) {
		return ErrInvalidAccountData
	}

	binary.GetKey32(data, &obj.AdminAuthority, &offset)
	binary.GetKey32(data, &obj.InputMint, &offset)
	binary.GetKey32(data, &obj.OutputStorage, &offset)
	binary.GetUint8(data, &obj.OutputStorageAuthorityBump, &offset)

	return nil
}

// HasStateDiscriminator returns whether the data is tagged as a state account.
func HasStateDiscriminator(data []byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:8], stateAccountDiscriminator)
}
