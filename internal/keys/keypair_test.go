package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDistinct(t *testing.T) {
	a, b := Generate(), Generate()
	assert.False(t, a.IsZero())
	assert.NotEqual(t, a.PublicAddress(), b.PublicAddress())
}

func TestExportHexLength(t *testing.T) {
	k := Generate()
	assert.Len(t, Export(k, Hex), 128)
}

func TestHexRoundTrip(t *testing.T) {
	for i := 0; i < 20; i++ {
		s := Export(Generate(), Hex)
		k, err := Import(s, Hex)
		require.NoError(t, err)
		assert.Equal(t, s, Export(k, Hex))
	}
}

func TestBase58RoundTripKeepsAddress(t *testing.T) {
	for i := 0; i < 20; i++ {
		k := Generate()
		back, err := Import(Export(k, Base58), Base58)
		require.NoError(t, err)
		assert.Equal(t, k.PublicAddress(), back.PublicAddress())
		assert.Equal(t, Export(k, Hex), Export(back, Hex))
	}
}

func TestConvertBetweenEncodings(t *testing.T) {
	k := Generate()
	b58, got, err := Convert(Export(k, Hex), Hex, Base58)
	require.NoError(t, err)
	assert.Equal(t, k.PublicAddress(), got.PublicAddress())

	hx, _, err := Convert(b58, Base58, Hex)
	require.NoError(t, err)
	assert.Equal(t, Export(k, Hex), hx)
}

func TestImportSeed(t *testing.T) {
	seed := make([]byte, SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	k, err := Import(hex.EncodeToString(seed), Hex)
	require.NoError(t, err)

	want := ed25519.NewKeyFromSeed(seed)
	assert.Equal(t, hex.EncodeToString(want), Export(k, Hex))
	assert.Equal(t, []byte(want[32:]), k.PublicAddress().Bytes())
}

func TestImportErrors(t *testing.T) {
	_, err := Import("", Hex)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Import("   ", Base58)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Import("zz", Hex)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Import("0OIl", Base58)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Import(strings.Repeat("ab", 16), Hex)
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)

	_, err = Import(base58.Encode(make([]byte, 48)), Base58)
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)

	// 64 bytes whose public half is not derived from the seed
	bad := make([]byte, SecretSize)
	bad[40] = 1
	_, err = Import(hex.EncodeToString(bad), Hex)
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}

func TestPrivateKeyIsCopy(t *testing.T) {
	k := Generate()
	pk := k.PrivateKey()
	pk[0] ^= 0xff
	assert.NotEqual(t, pk[0], k.PrivateKey()[0])
}

func TestParseEncoding(t *testing.T) {
	e, err := ParseEncoding("HEX")
	require.NoError(t, err)
	assert.Equal(t, Hex, e)
	e, err = ParseEncoding("b58")
	require.NoError(t, err)
	assert.Equal(t, Base58, e)
	_, err = ParseEncoding("pem")
	assert.Error(t, err)
}

func TestWalletFileRoundTrip(t *testing.T) {
	k := Generate()
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, SaveWallet(path, k))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	back, err := LoadWallet(path)
	require.NoError(t, err)
	assert.Equal(t, k.PublicAddress(), back.PublicAddress())
}

func TestParseLegacyWallets(t *testing.T) {
	k := Generate()
	addr := k.PublicAddress().String()
	variants := []string{
		`{"pubkey":"` + addr + `","private_key":"` + Export(k, Base58) + `"}`,
		`{"pubkey":"` + addr + `","private_key":"` + Export(k, Hex) + `"}`,
		`{"wallet_address":"` + addr + `","private_key_hex":"` + Export(k, Hex) + `","private_key_base58":"` + Export(k, Base58) + `"}`,
		`{"wallet_address":"` + addr + `","base58_key":"` + Export(k, Base58) + `"}`,
		`{"address":"` + addr + `","secret_hex":"` + Export(k, Hex) + `"}`,
	}
	for _, v := range variants {
		got, err := ParseWallet([]byte(v))
		require.NoError(t, err, v)
		assert.Equal(t, k.PublicAddress(), got.PublicAddress(), v)
	}
}

func TestParseWalletMismatch(t *testing.T) {
	k, other := Generate(), Generate()
	_, err := ParseWallet([]byte(`{"address":"` + other.String() + `","secret_hex":"` + Export(k, Hex) + `"}`))
	assert.ErrorIs(t, err, ErrAddressMismatch)

	_, err = ParseWallet([]byte(`{"address":"x"}`))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = ParseWallet([]byte(`not json`))
	assert.ErrorIs(t, err, ErrDecode)
}
