package system

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
)

// RentSysVar is the address of the Rent sysvar. Token account initialization
// passes it along, and rent exemption is evaluated against its parameters.
//
// Source: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/sysvar/rent.rs#L11
var RentSysVar = mustDecodeAddress("SysvarRent111111111111111111111111111111111")

func mustDecodeAddress(encoded string) ed25519.PublicKey {
	decoded, err := base58.Decode(encoded)
	if err != nil || len(decoded) != ed25519.PublicKeySize {
		panic("invalid address: " + encoded)
	}
	return decoded
}
