// Package wallet loads the user's secp256k1 key and produces the
// Ethereum-style signatures the LazAI contracts and nodes expect.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"lazkit/internal/logging"
)

// ErrInvalidSignature is returned when a signature is not 65 bytes or has a bad V value.
var ErrInvalidSignature = errors.New("invalid signature")

// Wallet holds a private key and its derived address.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// Load parses a hex private key, with or without the 0x prefix.
func Load(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, fmt.Errorf("private key is empty (set PRIVATE_KEY)")
	}
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return FromKey(key), nil
}

// FromKey wraps an existing key.
func FromKey(key *ecdsa.PrivateKey) *Wallet {
	w := &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
	logging.Wallet("Loaded wallet %s", w.address.Hex())
	return w
}

// Generate creates a wallet with a fresh random key.
func Generate() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return FromKey(key), nil
}

// Address returns the wallet address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// PrivateKey returns the underlying key for transaction signing.
func (w *Wallet) PrivateKey() *ecdsa.PrivateKey {
	return w.key
}

// SignMessage produces an EIP-191 personal_sign signature over msg.
// The result is R || S || V with V in {27, 28}.
func (w *Wallet) SignMessage(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	logging.WalletDebug("Signed %d-byte message", len(msg))
	return sig, nil
}

// SignText signs a UTF-8 message and returns the 0x-prefixed hex signature.
func (w *Wallet) SignText(text string) (string, error) {
	sig, err := w.SignMessage([]byte(text))
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// PasswordFormat selects how EncryptionPassword renders the signature.
type PasswordFormat string

const (
	// PasswordHex0x is 0x-prefixed hex. The zero value means the same.
	PasswordHex0x PasswordFormat = "0x"
	// PasswordHexRaw is bare hex, as hexbytes 1.x renders a signature. Files
	// sealed by tools built on it need this format to open.
	PasswordHexRaw PasswordFormat = "raw"
)

// ParsePasswordFormat accepts "", "0x" or "raw".
func ParsePasswordFormat(s string) (PasswordFormat, error) {
	switch f := PasswordFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", PasswordHex0x:
		return PasswordHex0x, nil
	case PasswordHexRaw:
		return f, nil
	default:
		return "", fmt.Errorf("unknown password format %q (valid: 0x, raw)", s)
	}
}

// EncryptionPassword derives the file encryption password from a seed
// message. Signing is deterministic (RFC 6979), so the same wallet and
// seed always yield the same password.
func (w *Wallet) EncryptionPassword(seed string, format PasswordFormat) (string, error) {
	if seed == "" {
		return "", fmt.Errorf("encryption seed is empty")
	}
	f, err := ParsePasswordFormat(string(format))
	if err != nil {
		return "", err
	}
	sig, err := w.SignText(seed)
	if err != nil {
		return "", err
	}
	if f == PasswordHexRaw {
		return strings.TrimPrefix(sig, "0x"), nil
	}
	return sig, nil
}

// RecoverAddress returns the signer of an EIP-191 signature over msg.
// V may be either 0/1 or 27/28.
func RecoverAddress(msg, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	switch v := normalized[crypto.RecoveryIDOffset]; v {
	case 0, 1:
	case 27, 28:
		normalized[crypto.RecoveryIDOffset] = v - 27
	default:
		return common.Address{}, fmt.Errorf("%w: v=%d", ErrInvalidSignature, v)
	}

	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
