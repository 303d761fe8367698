// Package shortvec implements the compact-u16 length prefix used throughout
// Solana's wire format.
//
// Reference: https://github.com/solana-labs/solana/blob/master/sdk/program/src/short_vec.rs
package shortvec

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

const maxEncodingLength = 3

var (
	ErrLengthOverflow  = errors.Errorf("length exceeds %d", math.MaxUint16)
	ErrAliasedEncoding = errors.New("length is not minimally encoded")
)

// EncodeLen writes len as a compact-u16, returning the number of bytes written
func EncodeLen(w io.ByteWriter, len int) (n int, err error) {
	if len < 0 || len > math.MaxUint16 {
		return 0, ErrLengthOverflow
	}

	for {
		b := byte(len & 0x7f)
		len >>= 7
		if len != 0 {
			b |= 0x80
		}

		if err := w.WriteByte(b); err != nil {
			return n, err
		}
		n++

		if len == 0 {
			return n, nil
		}
	}
}

// DecodeLen reads a compact-u16. Only the minimal encoding of a value is
// accepted, so every length has exactly one representation.
func DecodeLen(r io.ByteReader) (int, error) {
	var val int
	for i := 0; i < maxEncodingLength; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}

		// A zero continuation byte adds nothing to the value
		if i > 0 && b == 0 {
			return 0, ErrAliasedEncoding
		}

		val |= int(b&0x7f) << (i * 7)
		if b&0x80 == 0 {
			if val > math.MaxUint16 {
				return 0, ErrLengthOverflow
			}
			return val, nil
		}
	}
	return 0, ErrLengthOverflow
}
