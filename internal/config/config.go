package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultStateDir is where lazkit keeps its config, ledger and logs.
const DefaultStateDir = ".lazkit"

// DefaultConfigPath returns the default path to the YAML config.
func DefaultConfigPath() string {
	return filepath.Join(DefaultStateDir, "config.yaml")
}

// Config holds all lazkit configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Chain      ChainConfig      `yaml:"chain"`
	Contracts  ContractsConfig  `yaml:"contracts"`
	Wallet     WalletConfig     `yaml:"wallet"`
	IPFS       IPFSConfig       `yaml:"ipfs"`
	Inference  InferenceConfig  `yaml:"inference"`
	Query      QueryConfig      `yaml:"query"`
	Proof      ProofConfig      `yaml:"proof"`
	Onboarding OnboardingConfig `yaml:"onboarding"`
	Hub        HubConfig        `yaml:"hub"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ChainConfig configures the RPC connection.
type ChainConfig struct {
	RPCURL          string `yaml:"rpc_url"`
	ChainID         int64  `yaml:"chain_id"`
	Timeout         string `yaml:"timeout"`
	ReceiptTimeout  string `yaml:"receipt_timeout"`
	ReceiptInterval string `yaml:"receipt_interval"`
}

// ContractsConfig holds the registry contract addresses.
type ContractsConfig struct {
	DataRegistry      string `yaml:"data_registry"`
	VerifiedComputing string `yaml:"verified_computing"`
	Settlement        string `yaml:"settlement"`
	InferenceProcess  string `yaml:"inference_process"`
	QueryProcess      string `yaml:"query_process"`
}

// WalletConfig configures the signing key.
type WalletConfig struct {
	PrivateKey     string `yaml:"private_key"`
	EncryptionSeed string `yaml:"encryption_seed"`
	// PasswordFormat renders the derived password: "0x" (prefixed hex) or
	// "raw" (bare hex, for files sealed by hexbytes 1.x based tools).
	PasswordFormat string `yaml:"password_format"`
}

// IPFSConfig configures the pinning provider.
type IPFSConfig struct {
	Provider   string `yaml:"provider"` // pinata
	JWT        string `yaml:"jwt"`
	UploadURL  string `yaml:"upload_url"`
	GatewayURL string `yaml:"gateway_url"`
	Timeout    string `yaml:"timeout"`
}

// InferenceConfig configures inference node access.
type InferenceConfig struct {
	Node        string  `yaml:"node"` // iDAO / node address
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"` // bypasses on-chain node lookup when set
	APIKey      string  `yaml:"api_key"`
	Timeout     string  `yaml:"timeout"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// QueryConfig configures query node access.
type QueryConfig struct {
	Node    string `yaml:"node"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
	Limit   int    `yaml:"limit"`
}

// ProofConfig configures verified computing requests.
type ProofConfig struct {
	Bid        int64  `yaml:"bid"`
	ProofIndex int64  `yaml:"proof_index"`
	Timeout    string `yaml:"timeout"`
}

// OnboardingConfig holds the deposit amounts used when joining an iDAO.
type OnboardingConfig struct {
	UserDeposit      int64 `yaml:"user_deposit"`
	Deposit          int64 `yaml:"deposit"`
	InferenceDeposit int64 `yaml:"inference_deposit"`
	// QueryDeposit funds a query node account when onboard --query-node is set.
	QueryDeposit int64 `yaml:"query_deposit"`
}

// HubConfig configures the hub HTTP service.
type HubConfig struct {
	Listen          string   `yaml:"listen"`
	CORSOrigins     []string `yaml:"cors_origins"`
	RateLimitRPS    float64  `yaml:"rate_limit_rps"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	ReadTimeout     string   `yaml:"read_timeout"`
	WriteTimeout    string   `yaml:"write_timeout"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	// DocsDir holds documents served as /query/local collections.
	DocsDir string `yaml:"docs_dir,omitempty"`
}

// StoreConfig configures the local ledger.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "lazkit",
		Version: "0.3.0",

		Chain: ChainConfig{
			RPCURL:          "https://testnet.lazai.network",
			ChainID:         133718,
			Timeout:         "30s",
			ReceiptTimeout:  "2m",
			ReceiptInterval: "2s",
		},

		Wallet: WalletConfig{
			EncryptionSeed: "Sign to retrieve your encryption key",
			PasswordFormat: "0x",
		},

		IPFS: IPFSConfig{
			Provider:   "pinata",
			UploadURL:  "https://uploads.pinata.cloud/v3/files",
			GatewayURL: "https://gateway.pinata.cloud",
			Timeout:    "60s",
		},

		Inference: InferenceConfig{
			Model:       "llama-3.3-70b-versatile",
			Timeout:     "120s",
			MaxTokens:   2048,
			Temperature: 0.7,
		},

		Query: QueryConfig{
			Timeout: "60s",
			Limit:   3,
		},

		Proof: ProofConfig{
			Bid:        100,
			ProofIndex: 1,
			Timeout:    "60s",
		},

		Onboarding: OnboardingConfig{
			UserDeposit:      1000,
			Deposit:          2000,
			InferenceDeposit: 1000,
			QueryDeposit:     1000,
		},

		Hub: HubConfig{
			Listen:          "127.0.0.1:8000",
			CORSOrigins:     []string{"*"},
			RateLimitRPS:    5,
			RateLimitBurst:  10,
			ReadTimeout:     "15s",
			WriteTimeout:    "180s",
			ShutdownTimeout: "10s",
		},

		Store: StoreConfig{
			DatabasePath: filepath.Join(DefaultStateDir, "lazkit.db"),
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file.
// A .env file in the working directory is read first so PRIVATE_KEY and
// IPFS_JWT can live next to the project.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("PRIVATE_KEY"); key != "" {
		c.Wallet.PrivateKey = key
	}
	if jwt := os.Getenv("IPFS_JWT"); jwt != "" {
		c.IPFS.JWT = jwt
	}
	if url := os.Getenv("LAZAI_RPC_URL"); url != "" {
		c.Chain.RPCURL = url
	}
	if id := os.Getenv("LAZAI_CHAIN_ID"); id != "" {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			c.Chain.ChainID = n
		}
	}
	if node := os.Getenv("LAZAI_IDAO_ADDRESS"); node != "" {
		c.Inference.Node = node
		if c.Query.Node == "" {
			c.Query.Node = node
		}
	}
	if node := os.Getenv("LAZAI_QUERY_NODE"); node != "" {
		c.Query.Node = node
	}

	// Direct provider keys, used by the digital twin when no node is involved.
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.Inference.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Inference.APIKey = key
	}

	if path := os.Getenv("LAZKIT_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetChainTimeout returns the per-call RPC timeout.
func (c *Config) GetChainTimeout() time.Duration {
	return parseDuration(c.Chain.Timeout, 30*time.Second)
}

// GetReceiptTimeout returns how long to wait for a transaction receipt.
func (c *Config) GetReceiptTimeout() time.Duration {
	return parseDuration(c.Chain.ReceiptTimeout, 2*time.Minute)
}

// GetReceiptInterval returns the receipt polling interval.
func (c *Config) GetReceiptInterval() time.Duration {
	return parseDuration(c.Chain.ReceiptInterval, 2*time.Second)
}

// GetIPFSTimeout returns the pinning provider timeout.
func (c *Config) GetIPFSTimeout() time.Duration {
	return parseDuration(c.IPFS.Timeout, 60*time.Second)
}

// GetInferenceTimeout returns the inference request timeout.
func (c *Config) GetInferenceTimeout() time.Duration {
	return parseDuration(c.Inference.Timeout, 120*time.Second)
}

// GetQueryTimeout returns the query node timeout.
func (c *Config) GetQueryTimeout() time.Duration {
	return parseDuration(c.Query.Timeout, 60*time.Second)
}

// GetProofTimeout returns the proof node timeout.
func (c *Config) GetProofTimeout() time.Duration {
	return parseDuration(c.Proof.Timeout, 60*time.Second)
}

// GetHubReadTimeout returns the hub read timeout.
func (c *Config) GetHubReadTimeout() time.Duration {
	return parseDuration(c.Hub.ReadTimeout, 15*time.Second)
}

// GetHubWriteTimeout returns the hub write timeout.
func (c *Config) GetHubWriteTimeout() time.Duration {
	return parseDuration(c.Hub.WriteTimeout, 180*time.Second)
}

// GetHubShutdownTimeout returns the hub graceful shutdown timeout.
func (c *Config) GetHubShutdownTimeout() time.Duration {
	return parseDuration(c.Hub.ShutdownTimeout, 10*time.Second)
}

// StateDir returns the directory holding the ledger database.
func (c *Config) StateDir() string {
	dir := filepath.Dir(c.Store.DatabasePath)
	if dir == "" || dir == "." {
		return DefaultStateDir
	}
	return dir
}

// ValidIPFSProviders lists supported pinning providers.
var ValidIPFSProviders = []string{"pinata"}

// Validate validates the configuration shared by every chain-touching command.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet private key not configured (set PRIVATE_KEY)")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("chain.chain_id must be positive, got %d", c.Chain.ChainID)
	}

	addrs := map[string]string{
		"contracts.data_registry":      c.Contracts.DataRegistry,
		"contracts.verified_computing": c.Contracts.VerifiedComputing,
		"contracts.settlement":         c.Contracts.Settlement,
		"contracts.inference_process":  c.Contracts.InferenceProcess,
		"contracts.query_process":      c.Contracts.QueryProcess,
	}
	for name, addr := range addrs {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address: %q", name, addr)
		}
	}
	for name, addr := range map[string]string{"inference.node": c.Inference.Node, "query.node": c.Query.Node} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address: %q", name, addr)
		}
	}

	switch c.Wallet.PasswordFormat {
	case "", "0x", "raw":
	default:
		return fmt.Errorf("wallet.password_format must be 0x or raw, got %q", c.Wallet.PasswordFormat)
	}

	validProvider := false
	for _, p := range ValidIPFSProviders {
		if c.IPFS.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid ipfs provider: %s (valid: %v)", c.IPFS.Provider, ValidIPFSProviders)
	}

	if c.Proof.Bid < 0 {
		return fmt.Errorf("proof.bid must not be negative")
	}

	return nil
}

// RequireContract returns an error when the named contract address is unset.
func (c *Config) RequireContract(name, addr string) error {
	if addr == "" {
		return fmt.Errorf("contracts.%s is not configured", name)
	}
	return nil
}
