package settlement

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lazkit/internal/wallet"
)

var testNode = common.HexToAddress("0xc3e98E8A9aACFc9ff7578C2F3BA48CA4477Ecf49")

func testWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.Load("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	return w
}

func TestMessageIsPackedKeccak(t *testing.T) {
	user := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	nonce := big.NewInt(258)

	packed := make([]byte, 0, 72)
	word := make([]byte, 32)
	word[30], word[31] = 0x01, 0x02
	packed = append(packed, word...)
	packed = append(packed, user.Bytes()...)
	packed = append(packed, testNode.Bytes()...)

	assert.Equal(t, crypto.Keccak256(packed), Message(nonce, user, testNode))
	assert.EqualValues(t, 258, nonce.Int64(), "Message must not mutate its nonce")
}

func TestRequestHeaders_RoundTrip(t *testing.T) {
	w := testWallet(t)

	h, err := RequestHeaders(w, testNode, Options{FileID: big.NewInt(12), Nonce: big.NewInt(99), Kind: "inference"})
	require.NoError(t, err)
	assert.Equal(t, w.Address().Hex(), h.Get(HeaderUser))
	assert.Equal(t, "99", h.Get(HeaderNonce))
	assert.Equal(t, "12", h.Get(HeaderTokenID))

	sig, err := hexutil.Decode(h.Get(HeaderSignature))
	require.NoError(t, err)
	assert.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	claims, err := Verify(h, testNode)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), claims.User)
	assert.EqualValues(t, 99, claims.Nonce.Int64())
	assert.EqualValues(t, 12, claims.FileID.Int64())
}

func TestRequestHeaders_NoFileID(t *testing.T) {
	h, err := RequestHeaders(testWallet(t), testNode, Options{Kind: "query"})
	require.NoError(t, err)
	assert.Empty(t, h.Get(HeaderTokenID))

	nonce, ok := new(big.Int).SetString(h.Get(HeaderNonce), 10)
	require.True(t, ok)
	assert.True(t, nonce.Cmp(maxNonce) < 0)

	claims, err := Verify(h, testNode)
	require.NoError(t, err)
	assert.Nil(t, claims.FileID)
}

func TestRandomNonceRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		n, err := RandomNonce()
		require.NoError(t, err)
		assert.True(t, n.Sign() >= 0)
		assert.True(t, n.BitLen() <= 63)
	}
}

func TestVerify_WrongNode(t *testing.T) {
	h, err := RequestHeaders(testWallet(t), testNode, Options{Nonce: big.NewInt(1)})
	require.NoError(t, err)

	_, err = Verify(h, common.HexToAddress("0x0000000000000000000000000000000000000001"))
	assert.True(t, errors.Is(err, ErrBadSignature))
}

func TestVerify_TamperedNonce(t *testing.T) {
	h, err := RequestHeaders(testWallet(t), testNode, Options{Nonce: big.NewInt(1)})
	require.NoError(t, err)
	h.Set(HeaderNonce, "2")

	_, err = Verify(h, testNode)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerify_MissingHeaders(t *testing.T) {
	h, err := RequestHeaders(testWallet(t), testNode, Options{})
	require.NoError(t, err)

	for _, name := range []string{HeaderUser, HeaderNonce, HeaderSignature} {
		clone := h.Clone()
		clone.Del(name)
		_, err := Verify(clone, testNode)
		assert.ErrorIs(t, err, ErrMissingHeader, name)
		assert.Contains(t, err.Error(), name)
	}
}

func TestMapConversion(t *testing.T) {
	h, err := RequestHeaders(testWallet(t), testNode, Options{FileID: big.NewInt(3)})
	require.NoError(t, err)

	m := ToMap(h)
	assert.Len(t, m, 4)
	_, err = Verify(FromMap(m), testNode)
	assert.NoError(t, err)
}
