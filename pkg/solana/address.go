package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32

	programDerivedAddressMarker = "ProgramDerivedAddress"
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrNoViableBumpSeed      = errors.New("unable to find a viable program address bump seed")

	ErrInvalidPublicKey = errors.New("invalid public key")
)

var programHashCtor = sha256.New

// IsOnCurve returns whether the key is a valid compressed ed25519 point, and
// therefore may have a private key.
//
// golang.org/x/crypto keeps its point decoding internal, so the check relies
// on the edwards25519 port that ed25519.Verify() is built on.
func IsOnCurve(pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}

	var b [32]byte
	copy(b[:], pub)

	var A edwards25519.ExtendedGroupElement
	return A.FromBytes(&b)
}

// CreateProgramAddress derives the address sha256(seeds || program ||
// "ProgramDerivedAddress"). Program addresses must not lie on the ed25519
// curve, so that nobody holds a private key for them. ErrInvalidPublicKey is
// returned when the hash happens to be a valid point.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L158
func CreateProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	if err := validateSeeds(seeds); err != nil {
		return nil, err
	}

	h := programHashCtor()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(program)
	h.Write([]byte(programDerivedAddressMarker))

	pub := ed25519.PublicKey(h.Sum(nil)[:ed25519.PublicKeySize])
	if IsOnCurve(pub) {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

// FindProgramAddressAndBump searches bump seeds from 255 downwards, returning
// the first program address that is off the curve along with its bump.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L234
func FindProgramAddressAndBump(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, uint8, error) {
	// The bump is appended as an extra seed
	if len(seeds)+1 > MaxSeeds {
		return nil, 0, ErrTooManySeeds
	}
	if err := validateSeeds(seeds); err != nil {
		return nil, 0, err
	}

	bumpSeed := []byte{math.MaxUint8}
	for ; bumpSeed[0] > 0; bumpSeed[0]-- {
		pub, err := CreateProgramAddress(program, append(seeds, bumpSeed)...)
		if err == nil {
			return pub, bumpSeed[0], nil
		} else if !errors.Is(err, ErrInvalidPublicKey) {
			return nil, 0, err
		}
	}
	return nil, 0, ErrNoViableBumpSeed
}

// FindProgramAddress is FindProgramAddressAndBump without the bump
func FindProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	pub, _, err := FindProgramAddressAndBump(program, seeds...)
	return pub, err
}

func validateSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return ErrTooManySeeds
	}
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return ErrMaxSeedLengthExceeded
		}
	}
	return nil
}
