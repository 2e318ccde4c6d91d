package sealing

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	plain := []byte("teaching is the best way to learn")

	blob, err := Encrypt(plain, "0xpassword")
	require.NoError(t, err)
	assert.Len(t, blob, SaltSize+NonceSize+len(plain)+16)
	assert.False(t, bytes.Contains(blob, plain))

	got, err := Decrypt(blob, "0xpassword")
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestEncrypt_RandomizedOutput(t *testing.T) {
	a, err := Encrypt([]byte("same"), "pw")
	require.NoError(t, err)
	b, err := Encrypt([]byte("same"), "pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecrypt_Errors(t *testing.T) {
	_, err := Decrypt(make([]byte, 10), "pw")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	blob, err := Encrypt([]byte("secret"), "right")
	require.NoError(t, err)
	_, err = Decrypt(blob, "wrong")
	assert.Error(t, err)

	blob[len(blob)-1] ^= 0xff
	_, err = Decrypt(blob, "right")
	assert.Error(t, err)
}

func TestEncrypt_EmptyPassword(t *testing.T) {
	_, err := Encrypt([]byte("x"), "")
	assert.Error(t, err)
}

func TestEncryptDecrypt_EmptyPlaintext(t *testing.T) {
	blob, err := Encrypt(nil, "pw")
	require.NoError(t, err)
	got, err := Decrypt(blob, "pw")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestWrapUnwrap_PKCS1(t *testing.T) {
	key := testRSAKey(t)
	pemText := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	}))

	wrapped, err := WrapKey("0xdeadbeef", "\n  "+pemText+"  \n")
	require.NoError(t, err)
	assert.Regexp(t, "^[0-9a-f]+$", wrapped)

	got, err := UnwrapKey(wrapped, key)
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", got)
}

func TestWrapUnwrap_PKIX(t *testing.T) {
	key := testRSAKey(t)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemText := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	wrapped, err := WrapKey("pw", pemText)
	require.NoError(t, err)

	got, err := UnwrapKey("0x"+wrapped, key)
	require.NoError(t, err)
	assert.Equal(t, "pw", got)
}

func TestParsePublicKey_Errors(t *testing.T) {
	_, err := ParsePublicKey("not pem")
	assert.Error(t, err)

	_, err = ParsePublicKey(string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}})))
	assert.Error(t, err)
}
