package workflow

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lazkit/internal/chain"
	"lazkit/internal/proof"
	"lazkit/internal/storage"
	"lazkit/internal/wallet"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	proofNode = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	idaoNode  = common.HexToAddress("0xD878Fa6c04d99654Fb38d1245Fc6Ec2acE8913f0")
)

func testWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.Load(testKey)
	require.NoError(t, err)
	return w
}

func testRSAKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)}
	return key, "\n" + string(pem.EncodeToMemory(block)) + "  "
}

// fakeChain is an in-memory registry. Methods named in failOn return an error.
type fakeChain struct {
	mu sync.Mutex

	files   map[string]*chain.File
	nextID  int64
	jobs    map[string][]*big.Int
	users   map[common.Address]*chain.User
	nodeKey string
	nodeURL string
	account *chain.Account
	qacct   *chain.Account

	failOn map[string]error
	calls  []string
	txs    int
}

func newFakeChain(pubKeyPEM string) *fakeChain {
	return &fakeChain{
		files:   make(map[string]*chain.File),
		nextID:  100,
		jobs:    make(map[string][]*big.Int),
		users:   make(map[common.Address]*chain.User),
		nodeKey: pubKeyPEM,
		nodeURL: "http://proof-node:8000",
		failOn:  make(map[string]error),
	}
}

func (f *fakeChain) enter(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.failOn[name]
}

func (f *fakeChain) receipt() *chain.Receipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs++
	return &chain.Receipt{TxHash: fmt.Sprintf("0x%064x", f.txs), BlockNumber: uint64(f.txs)}
}

func (f *fakeChain) GetFileIDByURL(_ context.Context, url string) (*big.Int, error) {
	if err := f.enter("GetFileIDByURL"); err != nil {
		return nil, err
	}
	for _, file := range f.files {
		if file.URL == url {
			return new(big.Int).Set(file.ID), nil
		}
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) GetFile(_ context.Context, id *big.Int) (*chain.File, error) {
	if err := f.enter("GetFile"); err != nil {
		return nil, err
	}
	file, ok := f.files[id.String()]
	if !ok {
		return nil, chain.ErrFileNotFound
	}
	return file, nil
}

func (f *fakeChain) addFile(url, hash string) *chain.Receipt {
	f.mu.Lock()
	f.nextID++
	id := big.NewInt(f.nextID)
	f.files[id.String()] = &chain.File{ID: id, URL: url, Hash: hash, ProofIndex: big.NewInt(0), RewardAmount: big.NewInt(0)}
	f.mu.Unlock()
	return f.receipt()
}

func (f *fakeChain) AddFile(_ context.Context, url string) (*chain.Receipt, error) {
	if err := f.enter("AddFile"); err != nil {
		return nil, err
	}
	return f.addFile(url, ""), nil
}

func (f *fakeChain) AddFileWithHash(_ context.Context, url, hash string) (*chain.Receipt, error) {
	if err := f.enter("AddFileWithHash"); err != nil {
		return nil, err
	}
	return f.addFile(url, hash), nil
}

func (f *fakeChain) RequestProof(_ context.Context, fileID, bid *big.Int) (*chain.Receipt, error) {
	if err := f.enter("RequestProof"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	jobs := f.jobs[fileID.String()]
	f.jobs[fileID.String()] = append(jobs, big.NewInt(int64(len(jobs)+1)))
	f.mu.Unlock()
	return f.receipt(), nil
}

func (f *fakeChain) LatestJobID(_ context.Context, fileID *big.Int) (*big.Int, error) {
	if err := f.enter("LatestJobID"); err != nil {
		return nil, err
	}
	jobs := f.jobs[fileID.String()]
	if len(jobs) == 0 {
		return nil, chain.ErrNoJobs
	}
	return jobs[len(jobs)-1], nil
}

func (f *fakeChain) GetJob(_ context.Context, jobID *big.Int) (*chain.Job, error) {
	if err := f.enter("GetJob"); err != nil {
		return nil, err
	}
	return &chain.Job{Node: proofNode, Status: 1}, nil
}

func (f *fakeChain) GetNode(_ context.Context, node common.Address) (*chain.Node, error) {
	if err := f.enter("GetNode"); err != nil {
		return nil, err
	}
	return &chain.Node{Address: node, URL: f.nodeURL, PublicKey: f.nodeKey}, nil
}

func (f *fakeChain) RequestReward(_ context.Context, fileID, proofIndex *big.Int) (*chain.Receipt, error) {
	if err := f.enter("RequestReward"); err != nil {
		return nil, err
	}
	return f.receipt(), nil
}

func (f *fakeChain) GetUser(_ context.Context, addr common.Address) (*chain.User, error) {
	if err := f.enter("GetUser"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[addr]
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr.Hex(), chain.ErrUserNotFound)
	}
	return u, nil
}

func (f *fakeChain) AddUser(ctx context.Context, amount *big.Int) (*chain.Receipt, error) {
	if err := f.enter("AddUser"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	addr := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	f.users[addr] = &chain.User{Address: addr, AvailableBalance: amount, TotalBalance: amount}
	f.mu.Unlock()
	return f.receipt(), nil
}

func (f *fakeChain) Deposit(_ context.Context, amount *big.Int) (*chain.Receipt, error) {
	if err := f.enter("Deposit"); err != nil {
		return nil, err
	}
	return f.receipt(), nil
}

func (f *fakeChain) DepositInference(_ context.Context, node common.Address, amount *big.Int) (*chain.Receipt, error) {
	if err := f.enter("DepositInference"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.account = &chain.Account{
		User:    common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		Node:    node,
		Nonce:   big.NewInt(0),
		Balance: amount,
	}
	f.mu.Unlock()
	return f.receipt(), nil
}

func (f *fakeChain) GetInferenceNode(_ context.Context, node common.Address) (*chain.Node, error) {
	if err := f.enter("GetInferenceNode"); err != nil {
		return nil, err
	}
	return &chain.Node{Address: node, URL: f.nodeURL}, nil
}

func (f *fakeChain) GetQueryNode(_ context.Context, node common.Address) (*chain.Node, error) {
	if err := f.enter("GetQueryNode"); err != nil {
		return nil, err
	}
	return &chain.Node{Address: node, URL: f.nodeURL}, nil
}

func (f *fakeChain) GetInferenceAccount(_ context.Context, user, node common.Address) (*chain.Account, error) {
	if err := f.enter("GetInferenceAccount"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.account == nil {
		return &chain.Account{Nonce: big.NewInt(0), Balance: big.NewInt(0)}, nil
	}
	return f.account, nil
}

func (f *fakeChain) DepositQuery(_ context.Context, node common.Address, amount *big.Int) (*chain.Receipt, error) {
	if err := f.enter("DepositQuery"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.qacct = &chain.Account{
		User:    common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		Node:    node,
		Nonce:   big.NewInt(0),
		Balance: amount,
	}
	f.mu.Unlock()
	return f.receipt(), nil
}

func (f *fakeChain) GetQueryAccount(_ context.Context, user, node common.Address) (*chain.Account, error) {
	if err := f.enter("GetQueryAccount"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.qacct == nil {
		return &chain.Account{Nonce: big.NewInt(0), Balance: big.NewInt(0)}, nil
	}
	return f.qacct, nil
}

// memStorage pins into a map keyed by a fixed-format CID.
type memStorage struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	failErr error
	uploads int
}

func newMemStorage() *memStorage {
	return &memStorage{blobs: make(map[string][]byte)}
}

const memCID = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

func (m *memStorage) Upload(_ context.Context, opts storage.UploadOptions) (*storage.FileMetadata, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	if opts.Token == "" {
		return nil, &storage.StorageError{Op: "upload", Message: "no token"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	m.blobs[memCID] = append([]byte(nil), opts.Data...)
	return &storage.FileMetadata{ID: memCID, Name: opts.Name, Size: int64(len(opts.Data))}, nil
}

func (m *memStorage) ShareLink(_ context.Context, opts storage.ShareLinkOptions) (string, error) {
	return "https://gateway.test/ipfs/" + opts.ID, nil
}

func (m *memStorage) Download(_ context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if url != "https://gateway.test/ipfs/"+memCID {
		return nil, &storage.StorageError{Op: "download", StatusCode: 404, Message: "not found"}
	}
	return m.blobs[memCID], nil
}

func (m *memStorage) Close() error { return nil }

type recordingProofs struct {
	mu   sync.Mutex
	reqs []proof.Request
	urls []string
	err  error
}

func (r *recordingProofs) Submit(_ context.Context, nodeURL string, req proof.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	r.urls = append(r.urls, nodeURL)
	return r.err
}

var errBoom = errors.New("boom")
