package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/opencontainers/go-digest"

	"lazkit/internal/logging"
	"lazkit/internal/sealing"
	"lazkit/internal/storage"
	"lazkit/internal/wallet"
)

// ErrHashMismatch is returned when decrypted data does not match the
// registered content hash.
var ErrHashMismatch = errors.New("decrypted data does not match registered hash")

// RevealRequest selects a sealed file by registry id or by URL.
type RevealRequest struct {
	FileID *big.Int
	URL    string
}

// Revealed is a decrypted file.
type Revealed struct {
	URL  string `json:"url"`
	Data []byte `json:"-"`
	// Verified is true when the registry held a hash and it matched.
	Verified bool `json:"verified"`
}

// Revealer downloads and decrypts the wallet's own contributions.
type Revealer struct {
	Wallet  *wallet.Wallet
	Chain   Chain
	Storage storage.Provider
	Seed    string
	// PasswordFormat must match the one the file was sealed with.
	PasswordFormat wallet.PasswordFormat
}

// Reveal fetches and decrypts a file sealed by this wallet.
func (r *Revealer) Reveal(ctx context.Context, req RevealRequest) (*Revealed, error) {
	url := req.URL
	var hash string
	if req.FileID != nil {
		f, err := r.Chain.GetFile(ctx, req.FileID)
		if err != nil {
			return nil, stepErr(StepResolveFile, err)
		}
		url = f.URL
		hash = f.Hash
	}
	if url == "" {
		return nil, errors.New("a file id or url is required")
	}

	sealed, err := r.Storage.Download(ctx, url)
	if err != nil {
		return nil, stepErr(StepDownload, err)
	}
	password, err := r.Wallet.EncryptionPassword(r.Seed, r.PasswordFormat)
	if err != nil {
		return nil, stepErr(StepSign, err)
	}
	plain, err := sealing.Decrypt(sealed, password)
	if err != nil {
		return nil, stepErr(StepDecrypt, err)
	}

	out := &Revealed{URL: url, Data: plain}
	if hash != "" {
		if err := VerifyHash(hash, plain); err != nil {
			return nil, stepErr(StepVerify, err)
		}
		out.Verified = true
	}
	logging.Workflow("Revealed %d bytes from %s (verified=%v)", len(plain), url, out.Verified)
	return out, nil
}

// VerifyHash checks data against a registry hash, given either as bare
// sha256 hex or as an algorithm-prefixed digest.
func VerifyHash(hash string, data []byte) error {
	d := digest.Digest(strings.TrimSpace(hash))
	if !strings.Contains(string(d), ":") {
		d = digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(string(d)))
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid registry hash %q: %w", hash, err)
	}
	v := d.Verifier()
	if _, err := v.Write(data); err != nil {
		return err
	}
	if !v.Verified() {
		return ErrHashMismatch
	}
	return nil
}
