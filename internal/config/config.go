// Package config provides configuration management for agrosync.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/agrosync/internal/fileutil"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Home      string          `yaml:"home"`
	Network   NetworkConfig   `yaml:"network"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Contracts ContractsConfig `yaml:"contracts"`
	Bindings  BindingsConfig  `yaml:"bindings"`
	Cache     CacheConfig     `yaml:"cache"`
	Content   ContentConfig   `yaml:"content"`
	Pinning   PinningConfig   `yaml:"pinning"`
	Mutation  MutationConfig  `yaml:"mutation"`
	Agent     AgentConfig     `yaml:"agent"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// NetworkConfig describes the network the application expects to run on.
// It doubles as the parameters handed to the signing agent when the network
// has to be added.
type NetworkConfig struct {
	ChainID        uint64   `yaml:"chain_id"`
	Name           string   `yaml:"name"`
	RPC            string   `yaml:"rpc"`
	FallbackRPCs   []string `yaml:"fallback_rpcs,omitempty"`
	CurrencyName   string   `yaml:"currency_name"`
	CurrencySymbol string   `yaml:"currency_symbol"`
	Decimals       int      `yaml:"decimals"`
	Explorer       string   `yaml:"explorer"`
}

// RateLimitConfig caps request rates per RPC or gateway host.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ContractsConfig holds the deployed contract addresses.
type ContractsConfig struct {
	ProjectFactory    string `yaml:"project_factory"`
	InvestmentManager string `yaml:"investment_manager"`
	StableToken       string `yaml:"stable_token"`
	TokenDecimals     int    `yaml:"token_decimals"`
}

// BindingsConfig controls contract binding construction.
type BindingsConfig struct {
	// SettleDelay is the grace period between building bindings and marking
	// them ready. Zero marks them ready immediately.
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// CacheConfig defines ledger read cache lifetimes.
type CacheConfig struct {
	CollectionTTL time.Duration `yaml:"collection_ttl"`
	ProjectTTL    time.Duration `yaml:"project_ttl"`
	AccountTTL    time.Duration `yaml:"account_ttl"`
}

// ContentConfig defines content gateway settings.
type ContentConfig struct {
	JSONGateways  []string          `yaml:"json_gateways"`
	ImageGateways []string          `yaml:"image_gateways"`
	FetchTimeout  time.Duration     `yaml:"fetch_timeout"`
	ProbeTimeout  time.Duration     `yaml:"probe_timeout"`
	CacheSize     int               `yaml:"cache_size"`
	Fallbacks     map[string]string `yaml:"fallbacks,omitempty"`
	DefaultImage  string            `yaml:"default_image"`
}

// PinningConfig defines the pinning service endpoint and credentials.
type PinningConfig struct {
	FileURL   string        `yaml:"file_url"`
	JSONURL   string        `yaml:"json_url"`
	JWT       string        `yaml:"jwt,omitempty"`
	APIKey    string        `yaml:"api_key,omitempty"`
	SecretKey string        `yaml:"secret_key,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
}

// MutationConfig defines write pipeline behaviour.
type MutationConfig struct {
	TrackApprovals bool `yaml:"track_approvals"`

	// ReadTimeout bounds the reads made before a write is sent.
	// Confirmation waits have no deadline.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// PollInterval is how often a pending transaction's receipt is polled.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// AgentConfig selects where the signing agent loads key material from.
type AgentConfig struct {
	// Source is one of "mnemonic", "keystore", or "agefile".
	Source       string `yaml:"source"`
	MnemonicFile string `yaml:"mnemonic_file,omitempty"`
	KeystoreFile string `yaml:"keystore_file,omitempty"`
	AgeKeyFile   string `yaml:"age_key_file,omitempty"`
	Account      int    `yaml:"account"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, agroerr.WithCause(agroerr.ErrConfigInvalid, err)
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Validate checks settings that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.Network.ChainID == 0 {
		return agroerr.WithDetails(agroerr.ErrConfigInvalid, map[string]string{"field": "network.chain_id"})
	}
	if strings.TrimSpace(c.Network.RPC) == "" {
		return agroerr.WithDetails(agroerr.ErrConfigInvalid, map[string]string{"field": "network.rpc"})
	}
	for field, addr := range map[string]string{
		"contracts.project_factory":    c.Contracts.ProjectFactory,
		"contracts.investment_manager": c.Contracts.InvestmentManager,
		"contracts.stable_token":       c.Contracts.StableToken,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return agroerr.WithDetails(agroerr.ErrConfigInvalid, map[string]string{"field": field, "value": addr})
		}
	}
	if c.Contracts.TokenDecimals < 0 || c.Contracts.TokenDecimals > 36 {
		return agroerr.WithDetails(agroerr.ErrConfigInvalid, map[string]string{"field": "contracts.token_decimals"})
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return agroerr.WithDetails(agroerr.ErrConfigInvalid, map[string]string{"field": "rate_limit"})
	}
	if c.Mutation.ReadTimeout < 0 {
		return agroerr.WithDetails(agroerr.ErrConfigInvalid, map[string]string{"field": "mutation.read_timeout"})
	}
	if c.Mutation.PollInterval < 0 {
		return agroerr.WithDetails(agroerr.ErrConfigInvalid, map[string]string{"field": "mutation.poll_interval"})
	}
	if c.Bindings.SettleDelay < 0 {
		return agroerr.WithDetails(agroerr.ErrConfigInvalid, map[string]string{"field": "bindings.settle_delay"})
	}
	if len(c.Content.JSONGateways) == 0 || len(c.Content.ImageGateways) == 0 {
		return agroerr.WithDetails(agroerr.ErrConfigInvalid, map[string]string{"field": "content.gateways"})
	}
	return nil
}

// ChainIDHex returns the expected chain ID in the 0x-prefixed form agents use.
func (c *Config) ChainIDHex() string {
	return FormatChainID(c.Network.ChainID)
}

// PinningReady reports whether pinning credentials are configured.
func (c *Config) PinningReady() bool {
	return c.Pinning.JWT != "" || (c.Pinning.APIKey != "" && c.Pinning.SecretKey != "")
}

// GetHome returns the agrosync home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// DefaultHome returns the default agrosync home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agrosync"
	}
	return filepath.Join(home, ".agrosync")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}
