package token

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal(t *testing.T) {
	data, err := hex.DecodeString("118a08c9d4cc46c576282e0daf050bbdb04f03313e35e5db3f3def69fa1eeec42b15a9cd4bef2cd809e464570d2a6cbd9bcc64e32ea4ebbcf748757bbb3dd5bd000084e2506ce67c000000000000000000000000000000000000000000000000000000000000000000000000010000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)

	mint, err := base58.Decode("2BU1Xgyzqixhjaq9Pa5cNsaa1gSejLeNtDaDRv29qoZm")
	require.NoError(t, err)

	var a Account
	require.True(t, a.Unmarshal(data))
	assert.Equal(t, mint, []byte(a.Mint))
	assert.Equal(t, uint64(9e13*1e5), a.Amount)
	assert.Empty(t, a.Delegate)
	assert.Empty(t, a.CloseAuthority)

	var rtt Account
	rtt.Unmarshal(a.Marshal())
	assert.Equal(t, a, rtt)
}

func TestAccountRoundTrip(t *testing.T) {
	isNative := uint64(2)
	for _, expected := range []Account{
		{
			Mint:   filledKey(1),
			Owner:  filledKey(2),
			Amount: 10,
			State:  AccountStateInitialized,
		},
		{
			Mint:            filledKey(1),
			Owner:           filledKey(2),
			Amount:          10,
			Delegate:        filledKey(3),
			State:           AccountStateFrozen,
			IsNative:        &isNative,
			DelegatedAmount: 4,
			CloseAuthority:  filledKey(2),
		},
	} {
		b := expected.Marshal()
		require.Len(t, b, AccountSize)

		var actual Account
		require.True(t, actual.Unmarshal(b))
		assert.Equal(t, expected, actual)
	}
}

func TestMintRoundTrip(t *testing.T) {
	authority := filledKey(4)
	expected := Mint{
		MintAuthority: authority,
		Supply:        1_000_000,
		Decimals:      6,
		IsInitialized: true,
	}

	b := expected.Marshal()
	require.Len(t, b, MintSize)
	assert.EqualValues(t, 1, b[0])
	assert.EqualValues(t, 6, b[44])
	assert.EqualValues(t, 1, b[45])

	var actual Mint
	require.True(t, actual.Unmarshal(b))
	assert.Equal(t, expected, actual)

	assert.False(t, actual.Unmarshal(b[:MintSize-1]))
}

func filledKey(v byte) ed25519.PublicKey {
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	for i := range key {
		key[i] = v
	}
	return key
}
