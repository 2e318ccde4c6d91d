package wallet

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat account #0.
const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestLoad(t *testing.T) {
	for _, in := range []string{testKey, "0x" + testKey, "  0x" + testKey + "\n"} {
		w, err := Load(in)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(testAddress), w.Address())
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRIVATE_KEY")

	_, err = Load("0xnothex")
	require.Error(t, err)
}

func TestSignMessage_RoundTrip(t *testing.T) {
	w, err := Load(testKey)
	require.NoError(t, err)

	msg := []byte("Sign to retrieve your encryption key")
	sig, err := w.SignMessage(msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	addr, err := RecoverAddress(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), addr)

	// V in {0,1} is accepted as well.
	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	addr, err = RecoverAddress(msg, raw)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), addr)
}

func TestRecoverAddress_WrongMessage(t *testing.T) {
	w, err := Load(testKey)
	require.NoError(t, err)

	sig, err := w.SignMessage([]byte("a"))
	require.NoError(t, err)

	addr, err := RecoverAddress([]byte("b"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, w.Address(), addr)
}

func TestRecoverAddress_Malformed(t *testing.T) {
	_, err := RecoverAddress([]byte("x"), make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	bad := make([]byte, 65)
	bad[64] = 9
	_, err = RecoverAddress([]byte("x"), bad)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestEncryptionPassword_Deterministic(t *testing.T) {
	w, err := Load(testKey)
	require.NoError(t, err)

	p1, err := w.EncryptionPassword("seed", PasswordHex0x)
	require.NoError(t, err)
	p2, err := w.EncryptionPassword("seed", PasswordHex0x)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.True(t, strings.HasPrefix(p1, "0x"))
	raw, err := hexutil.Decode(p1)
	require.NoError(t, err)
	assert.Len(t, raw, 65)

	other, err := w.EncryptionPassword("other seed", "")
	require.NoError(t, err)
	assert.NotEqual(t, p1, other)

	_, err = w.EncryptionPassword("", PasswordHex0x)
	assert.Error(t, err)
}

func TestEncryptionPassword_RawFormat(t *testing.T) {
	w, err := Load(testKey)
	require.NoError(t, err)

	prefixed, err := w.EncryptionPassword("seed", PasswordHex0x)
	require.NoError(t, err)
	raw, err := w.EncryptionPassword("seed", PasswordHexRaw)
	require.NoError(t, err)

	assert.Equal(t, prefixed[2:], raw)
	assert.Len(t, raw, 130)
	assert.False(t, strings.HasPrefix(raw, "0x"))

	_, err = w.EncryptionPassword("seed", "base64")
	assert.Error(t, err)
}

func TestParsePasswordFormat(t *testing.T) {
	for in, want := range map[string]PasswordFormat{"": PasswordHex0x, "0x": PasswordHex0x, " RAW ": PasswordHexRaw} {
		got, err := ParsePasswordFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePasswordFormat("hex")
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a.Address(), b.Address())
}
