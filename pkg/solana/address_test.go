package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"hash"
	"testing"

	"github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProgramAddress(t *testing.T) {
	// The typo comes from the Solana test case the expected outputs were
	// taken from.
	publicKey, err := base58.Decode("SeedPubey1111111111111111111111111111111111")
	require.NoError(t, err)
	programID, err := base58.Decode("BPFLoader1111111111111111111111111111111111")
	require.NoError(t, err)

	for _, tc := range []struct {
		expected string
		seeds    [][]byte
	}{
		{"3gF2KMe9KiC6FNVBmfg9i267aMPvK37FewCip4eGBFcT", [][]byte{{}, {1}}},
		{"7ytmC1nT1xY4RfxCV2ZgyA7UakC93do5ZdyhdF3EtPj7", [][]byte{[]byte("☉")}},
		{"HwRVBufQ4haG5XSgpspwKtNd3PC9GM9m1196uJW36vds", [][]byte{[]byte("Talking"), []byte("Squirrels")}},
		{"GUs5qLUfsEHkcMB9T38vjr18ypEhRuNWiePW2LoK4E3K", [][]byte{publicKey}},
	} {
		key, err := CreateProgramAddress(programID, tc.seeds...)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, base58.Encode(key))
		assert.False(t, IsOnCurve(key))
	}
}

func TestCreateProgramAddress_SeedValidation(t *testing.T) {
	programID, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	_, err = CreateProgramAddress(programID, make([]byte, MaxSeedLength))
	assert.NoError(t, err)

	_, err = CreateProgramAddress(programID, []byte("short seed"), make([]byte, MaxSeedLength+1))
	assert.Equal(t, ErrMaxSeedLengthExceeded, err)

	_, err = CreateProgramAddress(programID, make([][]byte, MaxSeeds+1)...)
	assert.Equal(t, ErrTooManySeeds, err)

	// The bump seed counts towards the limit
	_, _, err = FindProgramAddressAndBump(programID, make([][]byte, MaxSeeds)...)
	assert.Equal(t, ErrTooManySeeds, err)
}

type fixedHash struct {
	sum []byte
}

func (h *fixedHash) Write(p []byte) (int, error) { return len(p), nil }
func (h *fixedHash) Sum(b []byte) []byte         { return append(b, h.sum...) }
func (h *fixedHash) Reset()                      {}
func (h *fixedHash) Size() int                   { return sha256.Size }
func (h *fixedHash) BlockSize() int              { return sha256.BlockSize }

func TestCreateProgramAddress_OnCurve(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.True(t, IsOnCurve(pub))

	programHashCtor = func() hash.Hash {
		return &fixedHash{sum: pub}
	}
	defer func() {
		programHashCtor = sha256.New
	}()

	programID, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	_, err = CreateProgramAddress(programID, []byte("state"))
	assert.Equal(t, ErrInvalidPublicKey, err)

	_, _, err = FindProgramAddressAndBump(programID, []byte("state"))
	assert.Equal(t, ErrNoViableBumpSeed, err)
}

func TestFindProgramAddress(t *testing.T) {
	for i := 0; i < 100; i++ {
		programID, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)

		address, bump, err := FindProgramAddressAndBump(programID, []byte("storage"), programID)
		require.NoError(t, err)

		derived, err := CreateProgramAddress(programID, []byte("storage"), programID, []byte{bump})
		require.NoError(t, err)
		assert.Equal(t, address, derived)
	}
}

func TestFindProgramAddress_Ref(t *testing.T) {
	for _, r := range []struct {
		programID string
		expected  string
	}{
		{"4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM", "Bn9pAWUXWc5Kd849xTkQcHqiCbHUEizLFn4r5Cf8XYnd"},
		{"8opHzTAnfzRpPEx21XtnrVTX28YQuCpAjcn1PczScKh", "oDvUHiiGdMo31xYzjefAzUekWH8EbCKrxgs2FkyTs1S"},
		{"CiDwVBFgWV9E5MvXWoLgnEgn2hK7rJikbvfWavzAQz3", "B2vBn2bmF9GuaGkebrm8oUqDC34pE6m4bagjNcVE6msv"},
		{"GcdayuLaLyrdmUu324nahyv33G5poQdLUEZ1nEytDeP", "2mN5Nfq9v1EwTV9FPTHPESZ3XiZce9wi5PQoULFuxvev"},
		{"LX3EUdRUBUa3TbsYXLEUdj9J3prXkWXvLYSWyYyc2Jj", "9CqF6oTZtW5zSeoLnZRoQmj3s2tXGPqifM1W8Z8LVE1z"},
		{"QRSsyMWN1yHT9ir42bgNZUNZ4PdEhcSWCrL2AryKpy5", "FwBDYafabYZLDC8FwaDCsLxWkKnaQxKuQv3afDAGiXJ8"},
	} {
		programID, err := base58.Decode(r.programID)
		require.NoError(t, err)

		actual, err := FindProgramAddress(programID, []byte("Lil'"), []byte("Bits"))
		require.NoError(t, err)
		assert.Equal(t, r.expected, base58.Encode(actual))
	}
}

func TestIsOnCurve(t *testing.T) {
	assert.False(t, IsOnCurve(nil))
	assert.False(t, IsOnCurve(make([]byte, 31)))

	// The system program address is the identity point
	assert.True(t, IsOnCurve(make([]byte, 32)))
}
