// Package settlement builds and checks the signed request headers LazAI
// inference and query nodes use to bill a user's deposit.
package settlement

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"lazkit/internal/logging"
	"lazkit/internal/metrics"
	"lazkit/internal/wallet"
)

const (
	HeaderUser      = "X-LazAI-User"
	HeaderNonce     = "X-LazAI-Nonce"
	HeaderSignature = "X-LazAI-Signature"
	HeaderTokenID   = "X-LazAI-Token-ID"
)

var (
	// ErrMissingHeader is returned when a required settlement header is absent.
	ErrMissingHeader = errors.New("missing settlement header")
	// ErrBadSignature is returned when the signature does not recover to the claimed user.
	ErrBadSignature = errors.New("settlement signature does not match user")
)

// nonces stay below 2^63 so JSON readers on the node side keep full precision.
var maxNonce = new(big.Int).Lsh(big.NewInt(1), 63)

// Options tunes RequestHeaders.
type Options struct {
	// FileID adds X-LazAI-Token-ID when set.
	FileID *big.Int
	// Nonce is drawn at random when nil.
	Nonce *big.Int
	// Kind labels the header set in metrics (inference, query).
	Kind string
}

// Claims are the values carried by a verified header set.
type Claims struct {
	User   common.Address
	Node   common.Address
	Nonce  *big.Int
	FileID *big.Int
}

// Message returns keccak256(abi.encodePacked(uint256 nonce, address user, address node)).
func Message(nonce *big.Int, user, node common.Address) []byte {
	return crypto.Keccak256(
		math.U256Bytes(new(big.Int).Set(nonce)),
		user.Bytes(),
		node.Bytes(),
	)
}

// RandomNonce returns a uniformly random nonce in [0, 2^63).
func RandomNonce() (*big.Int, error) {
	n, err := rand.Int(rand.Reader, maxNonce)
	if err != nil {
		return nil, fmt.Errorf("failed to draw nonce: %w", err)
	}
	return n, nil
}

// RequestHeaders signs a settlement header set for requests to node.
func RequestHeaders(w *wallet.Wallet, node common.Address, opts Options) (http.Header, error) {
	nonce := opts.Nonce
	if nonce == nil {
		var err error
		if nonce, err = RandomNonce(); err != nil {
			return nil, err
		}
	}
	if nonce.Sign() < 0 {
		return nil, fmt.Errorf("nonce must be non-negative, got %s", nonce)
	}

	user := w.Address()
	sig, err := w.SignMessage(Message(nonce, user, node))
	if err != nil {
		return nil, fmt.Errorf("failed to sign settlement message: %w", err)
	}

	h := make(http.Header)
	h.Set(HeaderUser, user.Hex())
	h.Set(HeaderNonce, nonce.String())
	h.Set(HeaderSignature, hexutil.Encode(sig))
	if opts.FileID != nil {
		h.Set(HeaderTokenID, opts.FileID.String())
	}

	kind := opts.Kind
	if kind == "" {
		kind = "unspecified"
	}
	metrics.SettlementHeaders.WithLabelValues(kind).Inc()
	logging.SettlementDebug("Signed %s headers for node %s (user %s, nonce %s)", kind, node.Hex(), user.Hex(), nonce)
	logging.Audit().HeadersSigned(kind, user.Hex(), node.Hex(), nonce.String())
	return h, nil
}

// Verify checks that h was signed by the user it names for requests to node.
func Verify(h http.Header, node common.Address) (*Claims, error) {
	userHex := strings.TrimSpace(h.Get(HeaderUser))
	nonceStr := strings.TrimSpace(h.Get(HeaderNonce))
	sigHex := strings.TrimSpace(h.Get(HeaderSignature))
	for _, req := range [][2]string{{HeaderUser, userHex}, {HeaderNonce, nonceStr}, {HeaderSignature, sigHex}} {
		if req[1] == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingHeader, req[0])
		}
	}

	if !common.IsHexAddress(userHex) {
		return nil, fmt.Errorf("invalid %s %q", HeaderUser, userHex)
	}
	user := common.HexToAddress(userHex)

	nonce, ok := new(big.Int).SetString(nonceStr, 10)
	if !ok || nonce.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q", HeaderNonce, nonceStr)
	}

	if !strings.HasPrefix(sigHex, "0x") && !strings.HasPrefix(sigHex, "0X") {
		sigHex = "0x" + sigHex
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", HeaderSignature, err)
	}

	signer, err := wallet.RecoverAddress(Message(nonce, user, node), sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer != user {
		logging.SettlementWarn("Signature for %s recovered to %s", user.Hex(), signer.Hex())
		return nil, fmt.Errorf("%w: recovered %s", ErrBadSignature, signer.Hex())
	}

	claims := &Claims{User: user, Node: node, Nonce: nonce}
	if tid := strings.TrimSpace(h.Get(HeaderTokenID)); tid != "" {
		fileID, ok := new(big.Int).SetString(tid, 10)
		if !ok {
			return nil, fmt.Errorf("invalid %s %q", HeaderTokenID, tid)
		}
		claims.FileID = fileID
	}
	return claims, nil
}

// FromMap builds an http.Header from a flat name/value map, as printed by
// `lazkit headers`.
func FromMap(m map[string]string) http.Header {
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

// ToMap flattens h to single values.
func ToMap(h http.Header) map[string]string {
	m := make(map[string]string, len(h))
	for k := range h {
		m[k] = h.Get(k)
	}
	return m
}
