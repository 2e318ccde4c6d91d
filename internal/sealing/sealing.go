// Package sealing encrypts contributed data before it leaves the machine
// and wraps the data password for a verified computing node.
//
// Blob layout: salt(16) || nonce(12) || AES-256-GCM ciphertext with tag.
package sealing

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize   = 16
	NonceSize  = 12
	KeySize    = 32
	Iterations = 100_000
	tagSize    = 16
)

// ErrCiphertextTooShort is returned when a blob cannot hold salt, nonce and tag.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
}

// Encrypt seals plaintext under a key derived from password.
func Encrypt(plaintext []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("password is empty")
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}

	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, SaltSize+NonceSize+len(plaintext)+tagSize)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt.
func Decrypt(blob []byte, password string) ([]byte, error) {
	if len(blob) < SaltSize+NonceSize+tagSize {
		return nil, ErrCiphertextTooShort
	}
	salt := blob[:SaltSize]
	nonce := blob[SaltSize : SaltSize+NonceSize]

	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}

	plain, err := gcm.Open(nil, nonce, blob[SaltSize+NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt (wrong password or corrupted data): %w", err)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// ParsePublicKey reads an RSA public key in PKCS#1 ("RSA PUBLIC KEY") or
// PKIX ("PUBLIC KEY") PEM form.
func ParsePublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemText)))
	if block == nil {
		return nil, fmt.Errorf("node public key is not PEM encoded")
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#1 public key: %w", err)
		}
		return key, nil
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKIX public key: %w", err)
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("node public key is %T, want RSA", parsed)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}

// WrapKey encrypts password for the node holding publicKeyPEM and returns
// lowercase hex.
func WrapKey(password, publicKeyPEM string) (string, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", err
	}
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(password))
	if err != nil {
		return "", fmt.Errorf("failed to wrap key: %w", err)
	}
	return hex.EncodeToString(ct), nil
}

// UnwrapKey reverses WrapKey with the node's private key.
func UnwrapKey(hexCipher string, priv *rsa.PrivateKey) (string, error) {
	ct, err := hex.DecodeString(strings.TrimPrefix(hexCipher, "0x"))
	if err != nil {
		return "", fmt.Errorf("wrapped key is not hex: %w", err)
	}
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, priv, ct)
	if err != nil {
		return "", fmt.Errorf("failed to unwrap key: %w", err)
	}
	return string(plain), nil
}
