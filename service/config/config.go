package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	solanapkg "github.com/brojonat/solwallet/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
)

// Config holds all application configuration loaded from environment variables.
// All fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Solana configuration
	SolanaNetwork     string
	SolanaRPCURLs     []string // empty means the network's public endpoint
	SolanaCommitment  rpc.CommitmentType
	RPCRateLimitRPS   float64
	RPCRateLimitBurst int

	// Signing agent configuration
	NATSURL              string
	AgentSubjectPrefix   string
	AgentPresenceTimeout time.Duration

	// Deadlines; zero waits indefinitely
	CallTimeout         time.Duration
	SignTimeout         time.Duration
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
}

// Load reads configuration from environment variables and validates it.
// Returns an error listing every invalid setting.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Solana configuration
	cfg.SolanaNetwork = getEnvOrDefault("SOLANA_NETWORK", solanapkg.NetworkDevnet)
	if urls := os.Getenv("SOLANA_RPC_URL"); urls != "" {
		for _, u := range strings.Split(urls, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.SolanaRPCURLs = append(cfg.SolanaRPCURLs, u)
			}
		}
	}
	cfg.SolanaCommitment = rpc.CommitmentType(getEnvOrDefault("SOLANA_COMMITMENT", string(rpc.CommitmentConfirmed)))

	rps, err := parseFloat("RPC_RATE_LIMIT_RPS", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCRateLimitRPS = rps
	}

	burst, err := parseInt("RPC_RATE_LIMIT_BURST", 20)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCRateLimitBurst = burst
	}

	// Signing agent configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")
	cfg.AgentSubjectPrefix = getEnvOrDefault("AGENT_SUBJECT_PREFIX", "solwallet.agent")

	durations := []struct {
		key   string
		def   string
		field *time.Duration
	}{
		{"AGENT_PRESENCE_TIMEOUT", "2s", &cfg.AgentPresenceTimeout},
		{"CALL_TIMEOUT", "30s", &cfg.CallTimeout},
		{"SIGN_TIMEOUT", "2m", &cfg.SignTimeout},
		{"CONFIRM_TIMEOUT", "90s", &cfg.ConfirmTimeout},
		{"CONFIRM_POLL_INTERVAL", "1s", &cfg.ConfirmPollInterval},
	}
	for _, d := range durations {
		v, err := parseDuration(d.key, d.def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*d.field = v
	}

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	return nil, fmt.Errorf("configuration validation failed: %v", errs)
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("SERVER_ADDR is required"))
	}

	if len(c.SolanaRPCURLs) == 0 {
		if _, err := solanapkg.EndpointForNetwork(c.SolanaNetwork); err != nil {
			errs = append(errs, fmt.Errorf("SOLANA_NETWORK: %w", err))
		}
	}
	for _, u := range c.SolanaRPCURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			errs = append(errs, fmt.Errorf("SOLANA_RPC_URL: %q must be an http(s) URL", u))
		}
	}

	switch c.SolanaCommitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		errs = append(errs, fmt.Errorf("SOLANA_COMMITMENT must be processed, confirmed or finalized, got %q", c.SolanaCommitment))
	}

	if c.RPCRateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RPC_RATE_LIMIT_RPS cannot be negative"))
	}
	if c.RPCRateLimitRPS > 0 && c.RPCRateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RPC_RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled"))
	}

	if c.AgentSubjectPrefix == "" {
		errs = append(errs, fmt.Errorf("AGENT_SUBJECT_PREFIX is required"))
	}
	if c.AgentPresenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("AGENT_PRESENCE_TIMEOUT must be positive"))
	}

	for name, d := range map[string]time.Duration{
		"CALL_TIMEOUT":    c.CallTimeout,
		"SIGN_TIMEOUT":    c.SignTimeout,
		"CONFIRM_TIMEOUT": c.ConfirmTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s cannot be negative", name))
		}
	}

	if c.ConfirmPollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("CONFIRM_POLL_INTERVAL must be at least 100ms"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// RPCEndpoint returns the RPC URL to use: one of the configured URLs picked
// at random, or the network's public endpoint.
func (c *Config) RPCEndpoint() (string, error) {
	if len(c.SolanaRPCURLs) > 0 {
		return solanapkg.SelectRandomEndpoint(c.SolanaRPCURLs)
	}
	return solanapkg.EndpointForNetwork(c.SolanaNetwork)
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
