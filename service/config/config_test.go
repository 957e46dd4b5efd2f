package config

import (
	"os"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "devnet", cfg.SolanaNetwork)
	assert.Empty(t, cfg.SolanaRPCURLs)
	assert.Equal(t, rpc.CommitmentConfirmed, cfg.SolanaCommitment)
	assert.Equal(t, 10.0, cfg.RPCRateLimitRPS)
	assert.Equal(t, 20, cfg.RPCRateLimitBurst)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "solwallet.agent", cfg.AgentSubjectPrefix)
	assert.Equal(t, 2*time.Second, cfg.AgentPresenceTimeout)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, 2*time.Minute, cfg.SignTimeout)
	assert.Equal(t, 90*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, time.Second, cfg.ConfirmPollInterval)

	endpoint, err := cfg.RPCEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "https://api.devnet.solana.com", endpoint)
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("SOLANA_NETWORK", "mainnet-beta")
	os.Setenv("SOLANA_RPC_URL", "https://rpc-a.example.com, https://rpc-b.example.com")
	os.Setenv("SOLANA_COMMITMENT", "finalized")
	os.Setenv("RPC_RATE_LIMIT_RPS", "2.5")
	os.Setenv("RPC_RATE_LIMIT_BURST", "5")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("AGENT_SUBJECT_PREFIX", "alice.agent")
	os.Setenv("SIGN_TIMEOUT", "0s")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mainnet-beta", cfg.SolanaNetwork)
	assert.Equal(t, []string{"https://rpc-a.example.com", "https://rpc-b.example.com"}, cfg.SolanaRPCURLs)
	assert.Equal(t, rpc.CommitmentFinalized, cfg.SolanaCommitment)
	assert.Equal(t, 2.5, cfg.RPCRateLimitRPS)
	assert.Equal(t, 5, cfg.RPCRateLimitBurst)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "alice.agent", cfg.AgentSubjectPrefix)
	assert.Zero(t, cfg.SignTimeout, "zero disables the deadline")

	endpoint, err := cfg.RPCEndpoint()
	require.NoError(t, err)
	assert.Contains(t, cfg.SolanaRPCURLs, endpoint)
}

func TestLoad_InvalidValues(t *testing.T) {
	os.Setenv("CALL_TIMEOUT", "soon")
	os.Setenv("RPC_RATE_LIMIT_BURST", "many")
	os.Setenv("RPC_RATE_LIMIT_RPS", "fast")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "CALL_TIMEOUT: invalid duration")
	assert.Contains(t, err.Error(), "RPC_RATE_LIMIT_BURST: invalid integer")
	assert.Contains(t, err.Error(), "RPC_RATE_LIMIT_RPS: invalid number")
}

func TestLoad_UnknownNetwork(t *testing.T) {
	os.Setenv("SOLANA_NETWORK", "moonnet")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown solana network")
}

func TestLoad_UnknownNetworkWithExplicitURL(t *testing.T) {
	// A custom RPC URL makes the network name a label only
	os.Setenv("SOLANA_NETWORK", "my-validator")
	os.Setenv("SOLANA_RPC_URL", "http://10.0.0.5:8899")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	endpoint, err := cfg.RPCEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8899", endpoint)
}

func validConfig() *Config {
	return &Config{
		ServerAddr:           ":8080",
		SolanaNetwork:        "devnet",
		SolanaCommitment:     rpc.CommitmentConfirmed,
		RPCRateLimitRPS:      10,
		RPCRateLimitBurst:    20,
		AgentSubjectPrefix:   "solwallet.agent",
		AgentPresenceTimeout: 2 * time.Second,
		CallTimeout:          30 * time.Second,
		SignTimeout:          2 * time.Minute,
		ConfirmTimeout:       90 * time.Second,
		ConfirmPollInterval:  time.Second,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad commitment", func(c *Config) { c.SolanaCommitment = "recent" }, "SOLANA_COMMITMENT must be"},
		{"non http url", func(c *Config) { c.SolanaRPCURLs = []string{"ws://x"} }, "must be an http(s) URL"},
		{"negative rps", func(c *Config) { c.RPCRateLimitRPS = -1 }, "RPC_RATE_LIMIT_RPS cannot be negative"},
		{"zero burst", func(c *Config) { c.RPCRateLimitBurst = 0 }, "RPC_RATE_LIMIT_BURST must be at least 1"},
		{"no prefix", func(c *Config) { c.AgentSubjectPrefix = "" }, "AGENT_SUBJECT_PREFIX is required"},
		{"zero presence", func(c *Config) { c.AgentPresenceTimeout = 0 }, "AGENT_PRESENCE_TIMEOUT must be positive"},
		{"negative confirm", func(c *Config) { c.ConfirmTimeout = -time.Second }, "CONFIRM_TIMEOUT cannot be negative"},
		{"fast poll", func(c *Config) { c.ConfirmPollInterval = time.Millisecond }, "CONFIRM_POLL_INTERVAL must be at least 100ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_RateLimitDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.RPCRateLimitRPS = 0
	cfg.RPCRateLimitBurst = 0
	assert.NoError(t, cfg.Validate())
}

func TestMustLoad_Panics(t *testing.T) {
	os.Setenv("SOLANA_COMMITMENT", "eventually")
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	defer cleanupEnv()

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	for _, key := range []string{
		"SERVER_ADDR", "LOG_LEVEL",
		"SOLANA_NETWORK", "SOLANA_RPC_URL", "SOLANA_COMMITMENT",
		"RPC_RATE_LIMIT_RPS", "RPC_RATE_LIMIT_BURST",
		"NATS_URL", "AGENT_SUBJECT_PREFIX", "AGENT_PRESENCE_TIMEOUT",
		"CALL_TIMEOUT", "SIGN_TIMEOUT", "CONFIRM_TIMEOUT", "CONFIRM_POLL_INTERVAL",
	} {
		os.Unsetenv(key)
	}
}
