package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lazkit/internal/chain"
	"lazkit/internal/sealing"
	"lazkit/internal/wallet"
)

func TestReveal_ByFileID(t *testing.T) {
	env, _ := newContributeEnv(t)
	ctx := context.Background()
	data := []byte("secret diary")

	res, err := env.c.Contribute(ctx, Contribution{Name: "diary.txt", Data: data, WithHash: true})
	require.NoError(t, err)

	r := &Revealer{Wallet: env.c.Wallet, Chain: env.chain, Storage: env.store, Seed: seed}
	out, err := r.Reveal(ctx, RevealRequest{FileID: res.FileID})
	require.NoError(t, err)
	assert.Equal(t, data, out.Data)
	assert.True(t, out.Verified)

	out, err = r.Reveal(ctx, RevealRequest{URL: res.URL})
	require.NoError(t, err)
	assert.False(t, out.Verified)
}

func TestReveal_HashMismatch(t *testing.T) {
	env, _ := newContributeEnv(t)
	ctx := context.Background()
	res, err := env.c.Contribute(ctx, Contribution{Name: "a", Data: []byte("a"), WithHash: true})
	require.NoError(t, err)
	env.chain.files[res.FileID.String()].Hash = hex.EncodeToString(make([]byte, 32))

	_, err = (&Revealer{Wallet: env.c.Wallet, Chain: env.chain, Storage: env.store, Seed: seed}).
		Reveal(ctx, RevealRequest{FileID: res.FileID})
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestReveal_Errors(t *testing.T) {
	env, _ := newContributeEnv(t)
	r := &Revealer{Wallet: env.c.Wallet, Chain: env.chain, Storage: env.store, Seed: seed}

	_, err := r.Reveal(context.Background(), RevealRequest{})
	assert.Error(t, err)

	_, err = r.Reveal(context.Background(), RevealRequest{FileID: big.NewInt(999)})
	assert.ErrorIs(t, err, chain.ErrFileNotFound)

	_, err = r.Reveal(context.Background(), RevealRequest{URL: "https://gateway.test/ipfs/other"})
	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StepDownload, se.Step)
}

func TestVerifyHash(t *testing.T) {
	data := []byte("hello")
	sum := sha256.Sum256(data)
	hexSum := hex.EncodeToString(sum[:])

	assert.NoError(t, VerifyHash(hexSum, data))
	assert.NoError(t, VerifyHash("sha256:"+hexSum, data))
	assert.NoError(t, VerifyHash(" "+hexSum+" ", data))
	assert.ErrorIs(t, VerifyHash(hexSum, []byte("other")), ErrHashMismatch)
	assert.Error(t, VerifyHash("zz", data))
}

func TestReveal_RawPasswordFormat(t *testing.T) {
	env, _ := newContributeEnv(t)
	ctx := context.Background()
	env.c.PasswordFormat = wallet.PasswordHexRaw

	res, err := env.c.Contribute(ctx, Contribution{Name: "notes.txt", Data: []byte("raw sealed")})
	require.NoError(t, err)

	raw, err := env.c.Wallet.EncryptionPassword(seed, wallet.PasswordHexRaw)
	require.NoError(t, err)
	plain, err := sealing.Decrypt(env.store.blobs[memCID], raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw sealed"), plain)

	_, err = (&Revealer{Wallet: env.c.Wallet, Chain: env.chain, Storage: env.store, Seed: seed}).
		Reveal(ctx, RevealRequest{FileID: res.FileID})
	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StepDecrypt, se.Step)

	out, err := (&Revealer{Wallet: env.c.Wallet, Chain: env.chain, Storage: env.store, Seed: seed, PasswordFormat: wallet.PasswordHexRaw}).
		Reveal(ctx, RevealRequest{FileID: res.FileID})
	require.NoError(t, err)
	assert.Equal(t, []byte("raw sealed"), out.Data)
}
