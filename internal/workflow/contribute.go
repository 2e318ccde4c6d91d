package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/opencontainers/go-digest"

	"lazkit/internal/chain"
	"lazkit/internal/ledger"
	"lazkit/internal/logging"
	"lazkit/internal/metrics"
	"lazkit/internal/proof"
	"lazkit/internal/sealing"
	"lazkit/internal/storage"
	"lazkit/internal/wallet"
)

// Contribution is a private file to seal and register.
type Contribution struct {
	Name string
	Data []byte
	// WithHash anchors the plaintext sha256 alongside the URL.
	WithHash bool
}

// Result records what each completed step produced.
type Result struct {
	LedgerID string   `json:"ledger_id,omitempty"`
	CID      string   `json:"cid"`
	URL      string   `json:"url"`
	Hash     string   `json:"hash"`
	FileID   *big.Int `json:"file_id"`
	// Reused is set when the URL was already registered and no anchor tx was sent.
	Reused   bool     `json:"reused"`
	AnchorTx string   `json:"anchor_tx,omitempty"`
	ProofTx  string   `json:"proof_tx,omitempty"`
	JobID    *big.Int `json:"job_id,omitempty"`
	NodeURL  string   `json:"node_url,omitempty"`
	RewardTx string   `json:"reward_tx,omitempty"`
}

// Contributor runs sign, encrypt, upload, anchor, prove and reward in order.
type Contributor struct {
	Wallet    *wallet.Wallet
	Chain     Chain
	Storage   storage.Provider
	Proofs    ProofSubmitter
	Ledger    ContributionRecorder
	Seed      string
	IPFSToken string
	// PasswordFormat renders the password derived from Seed.
	PasswordFormat wallet.PasswordFormat
	// Bid is the wei value sent with requestProof.
	Bid        *big.Int
	ProofIndex *big.Int
}

// Contribute runs the pipeline. On failure the returned error is a
// *StepError and the Result holds whatever earlier steps produced.
func (c *Contributor) Contribute(ctx context.Context, in Contribution) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryWorkflow, "Contribute")
	defer timer.Stop()

	if in.Name == "" {
		return nil, errors.New("contribution name is required")
	}
	bid := c.Bid
	if bid == nil {
		bid = big.NewInt(100)
	}
	proofIndex := c.ProofIndex
	if proofIndex == nil {
		proofIndex = big.NewInt(1)
	}

	res := &Result{Hash: digest.FromBytes(in.Data).Encoded()}
	rec := &ledger.Contribution{Name: in.Name, FileHash: res.Hash}
	if c.Ledger != nil {
		if err := c.Ledger.CreateContribution(ctx, rec); err != nil {
			logging.WorkflowWarn("Ledger unavailable, continuing without it: %v", err)
		} else {
			res.LedgerID = rec.ID
		}
	}

	var password string
	var sealed []byte
	steps := []struct {
		name   string
		status string
		run    func() error
	}{
		{StepSign, "", func() (err error) {
			password, err = c.Wallet.EncryptionPassword(c.Seed, c.PasswordFormat)
			return err
		}},
		{StepEncrypt, "", func() (err error) {
			sealed, err = sealing.Encrypt(in.Data, password)
			return err
		}},
		{StepUpload, ledger.StatusUploaded, func() error {
			return c.upload(ctx, in.Name, sealed, res)
		}},
		{StepAnchor, ledger.StatusAnchored, func() error {
			return c.anchor(ctx, in.WithHash, res)
		}},
		{StepProve, ledger.StatusProved, func() error {
			return c.prove(ctx, password, bid, res)
		}},
		{StepReward, ledger.StatusRewarded, func() error {
			r, err := c.Chain.RequestReward(ctx, res.FileID, proofIndex)
			if err != nil {
				return err
			}
			res.RewardTx = r.TxHash
			return nil
		}},
	}

	audit := logging.AuditForWallet(c.Wallet.Address().Hex())
	for _, step := range steps {
		start := time.Now()
		if err := step.run(); err != nil {
			metrics.RecordStep(step.name, "error", time.Since(start))
			audit.Step(step.name, time.Since(start).Milliseconds(), err)
			logging.WorkflowError("Contribution %q failed at %s: %v", in.Name, step.name, err)
			rec.Status = ledger.StatusFailed
			rec.Error = fmt.Sprintf("%s: %v", step.name, err)
			c.record(ctx, rec, res)
			return res, stepErr(step.name, err)
		}
		metrics.RecordStep(step.name, "ok", time.Since(start))
		audit.Step(step.name, time.Since(start).Milliseconds(), nil)
		logging.Workflow("Contribution %q: %s done in %v", in.Name, step.name, time.Since(start))
		if step.status != "" {
			rec.Status = step.status
			c.record(ctx, rec, res)
		}
	}
	return res, nil
}

func (c *Contributor) upload(ctx context.Context, name string, sealed []byte, res *Result) error {
	meta, err := c.Storage.Upload(ctx, storage.UploadOptions{Name: name, Data: sealed, Token: c.IPFSToken})
	if err != nil {
		return err
	}
	url, err := c.Storage.ShareLink(ctx, storage.ShareLinkOptions{Token: c.IPFSToken, ID: meta.ID})
	if err != nil {
		return err
	}
	res.CID = meta.ID
	res.URL = url
	return nil
}

func (c *Contributor) anchor(ctx context.Context, withHash bool, res *Result) error {
	id, err := c.Chain.GetFileIDByURL(ctx, res.URL)
	if err != nil {
		return err
	}
	if id.Sign() != 0 {
		logging.Workflow("URL already registered as file %s", id)
		res.FileID = id
		res.Reused = true
		return nil
	}

	var r *chain.Receipt
	if withHash {
		r, err = c.Chain.AddFileWithHash(ctx, res.URL, res.Hash)
	} else {
		r, err = c.Chain.AddFile(ctx, res.URL)
	}
	if err != nil {
		return err
	}
	res.AnchorTx = r.TxHash

	id, err = c.Chain.GetFileIDByURL(ctx, res.URL)
	if err != nil {
		return err
	}
	if id.Sign() == 0 {
		return fmt.Errorf("file id still zero after tx %s", res.AnchorTx)
	}
	res.FileID = id
	return nil
}

func (c *Contributor) prove(ctx context.Context, password string, bid *big.Int, res *Result) error {
	r, err := c.Chain.RequestProof(ctx, res.FileID, bid)
	if err != nil {
		return err
	}
	res.ProofTx = r.TxHash

	jobID, err := c.Chain.LatestJobID(ctx, res.FileID)
	if err != nil {
		return err
	}
	res.JobID = jobID

	job, err := c.Chain.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	node, err := c.Chain.GetNode(ctx, job.Node)
	if err != nil {
		return err
	}
	res.NodeURL = node.URL

	key, err := sealing.WrapKey(password, node.PublicKey)
	if err != nil {
		return err
	}
	return c.Proofs.Submit(ctx, node.URL, proof.Request{
		JobID:          jobID,
		FileID:         res.FileID,
		FileURL:        res.URL,
		EncryptionKey:  key,
		EncryptionSeed: c.Seed,
	})
}

func (c *Contributor) record(ctx context.Context, rec *ledger.Contribution, res *Result) {
	if c.Ledger == nil || rec.ID == "" {
		return
	}
	rec.CID = res.CID
	rec.URL = res.URL
	rec.AnchorTx = res.AnchorTx
	rec.ProofTx = res.ProofTx
	rec.RewardTx = res.RewardTx
	rec.NodeURL = res.NodeURL
	if res.FileID != nil {
		rec.FileID = res.FileID.String()
	}
	if res.JobID != nil {
		rec.JobID = res.JobID.String()
	}
	if err := c.Ledger.UpdateContribution(ctx, rec); err != nil {
		logging.WorkflowWarn("Failed to update ledger entry %s: %v", rec.ID, err)
	}
}
