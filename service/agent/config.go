package agent

import (
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"
)

// Approval modes.
const (
	ApprovalPrompt = "prompt"
	ApprovalAuto   = "auto"
)

// Config is the agent's YAML configuration file.
//
//	keypair: ~/.config/solana/id.json   # or mnemonic_env
//	mnemonic_env: SOLWALLET_MNEMONIC
//	passphrase_env: SOLWALLET_PASSPHRASE
//	trusted: true
//	approval: prompt
//	nats_url: nats://localhost:4222
//	subject_prefix: solwallet.agent
type Config struct {
	Keypair       string `yaml:"keypair"`
	MnemonicEnv   string `yaml:"mnemonic_env"`
	PassphraseEnv string `yaml:"passphrase_env"`

	// Trusted makes silent connects succeed from the start.
	Trusted  bool   `yaml:"trusted"`
	Approval string `yaml:"approval"`

	NATSURL        string        `yaml:"nats_url"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LogLevel       string        `yaml:"log_level"`
}

// LoadConfig reads and validates the config at path. Unset fields take
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfig on raw YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse agent config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Approval == "" {
		c.Approval = ApprovalPrompt
	}
	if c.NATSURL == "" {
		c.NATSURL = "nats://localhost:4222"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "solwallet.agent"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 2 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.Keypair == "" && c.MnemonicEnv == "":
		errs = append(errs, fmt.Errorf("one of keypair or mnemonic_env is required"))
	case c.Keypair != "" && c.MnemonicEnv != "":
		errs = append(errs, fmt.Errorf("keypair and mnemonic_env are mutually exclusive"))
	}

	if c.Approval != ApprovalPrompt && c.Approval != ApprovalAuto {
		errs = append(errs, fmt.Errorf("approval must be %q or %q, got %q", ApprovalPrompt, ApprovalAuto, c.Approval))
	}

	if c.SubjectPrefix == "" {
		errs = append(errs, fmt.Errorf("subject_prefix is required"))
	}

	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request_timeout must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("agent configuration validation failed: %v", errs)
	}
	return nil
}

// LoadKey loads the private key named by the configuration.
func (c *Config) LoadKey() (solana.PrivateKey, error) {
	if c.Keypair != "" {
		return LoadKeypairFile(expandHome(c.Keypair))
	}

	mnemonic := os.Getenv(c.MnemonicEnv)
	if mnemonic == "" {
		return nil, fmt.Errorf("%s is not set", c.MnemonicEnv)
	}
	var passphrase string
	if c.PassphraseEnv != "" {
		passphrase = os.Getenv(c.PassphraseEnv)
	}
	return KeyFromMnemonic(mnemonic, passphrase)
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
