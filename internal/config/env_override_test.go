package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	idaoAddr  = "0xD878Fa6c04d99654Fb38d1245Fc6Ec2acE8913f0"
	queryAddr = "0x0000000000000000000000000000000000000042"
)

func TestEnvOverrides_Nodes(t *testing.T) {
	t.Run("iDAO address sets both nodes", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LAZAI_IDAO_ADDRESS", idaoAddr)

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, idaoAddr, cfg.Inference.Node)
		assert.Equal(t, idaoAddr, cfg.Query.Node)
	})

	t.Run("iDAO address keeps an explicit query node", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LAZAI_IDAO_ADDRESS", idaoAddr)

		cfg := &Config{Query: QueryConfig{Node: queryAddr}}
		cfg.applyEnvOverrides()

		assert.Equal(t, idaoAddr, cfg.Inference.Node)
		assert.Equal(t, queryAddr, cfg.Query.Node)
	})

	t.Run("LAZAI_QUERY_NODE wins over iDAO address", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LAZAI_IDAO_ADDRESS", idaoAddr)
		t.Setenv("LAZAI_QUERY_NODE", queryAddr)

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, idaoAddr, cfg.Inference.Node)
		assert.Equal(t, queryAddr, cfg.Query.Node)
	})
}

func TestEnvOverrides_APIKeys(t *testing.T) {
	t.Run("GROQ_API_KEY alone", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GROQ_API_KEY", "gsk")

		cfg := &Config{}
		cfg.applyEnvOverrides()
		assert.Equal(t, "gsk", cfg.Inference.APIKey)
	})

	t.Run("Precedence: OPENAI overrides GROQ", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GROQ_API_KEY", "gsk")
		t.Setenv("OPENAI_API_KEY", "oa")

		cfg := &Config{}
		cfg.applyEnvOverrides()
		assert.Equal(t, "oa", cfg.Inference.APIKey)
	})

	t.Run("Unset keys keep the file value", func(t *testing.T) {
		clearEnv(t)

		cfg := &Config{Inference: InferenceConfig{APIKey: "from-file"}}
		cfg.applyEnvOverrides()
		assert.Equal(t, "from-file", cfg.Inference.APIKey)
	})
}

func TestEnvOverrides_RPC(t *testing.T) {
	clearEnv(t)
	t.Setenv("LAZAI_RPC_URL", "http://localhost:8545")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	assert.Equal(t, "http://localhost:8545", cfg.Chain.RPCURL)
	assert.EqualValues(t, 133718, cfg.Chain.ChainID)
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	off := LoggingConfig{Categories: map[string]bool{"chain": true}}
	assert.False(t, off.IsCategoryEnabled("chain"), "debug_mode off disables everything")

	on := LoggingConfig{DebugMode: true}
	assert.True(t, on.IsCategoryEnabled("hub"))

	on.Categories = map[string]bool{"hub": false}
	assert.False(t, on.IsCategoryEnabled("hub"))
	assert.True(t, on.IsCategoryEnabled("chain"))
}
