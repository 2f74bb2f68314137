package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names.
const (
	EnvHome              = "AGROSYNC_HOME"
	EnvRPC               = "AGROSYNC_RPC"
	EnvChainID           = "AGROSYNC_CHAIN_ID"
	EnvProjectFactory    = "AGROSYNC_PROJECT_FACTORY"
	EnvInvestmentManager = "AGROSYNC_INVESTMENT_MANAGER"
	EnvStableToken       = "AGROSYNC_STABLE_TOKEN"
	EnvPinataJWT         = "AGROSYNC_PINATA_JWT"         // #nosec G101 -- env var name, not a credential
	EnvPinataAPIKey      = "AGROSYNC_PINATA_API_KEY"     // #nosec G101 -- env var name, not a credential
	EnvPinataSecretKey   = "AGROSYNC_PINATA_SECRET_KEY"  // #nosec G101 -- env var name, not a credential
	EnvSettleDelay       = "AGROSYNC_SETTLE_DELAY"
	EnvOutputFormat      = "AGROSYNC_OUTPUT_FORMAT"
	EnvVerbose           = "AGROSYNC_VERBOSE"
	EnvLogLevel          = "AGROSYNC_LOG_LEVEL"
	EnvAgentPassphrase   = "AGROSYNC_AGENT_PASSPHRASE" // #nosec G101 -- env var name, not a credential
	EnvNoColor           = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvRPC); v != "" {
		cfg.Network.RPC = SanitizeURL(v)
	}

	if v := os.Getenv(EnvChainID); v != "" {
		if id, err := ParseChainID(v); err == nil && id > 0 {
			cfg.Network.ChainID = id
		}
	}

	if v := os.Getenv(EnvProjectFactory); v != "" {
		cfg.Contracts.ProjectFactory = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvInvestmentManager); v != "" {
		cfg.Contracts.InvestmentManager = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvStableToken); v != "" {
		cfg.Contracts.StableToken = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvPinataJWT); v != "" {
		cfg.Pinning.JWT = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvPinataAPIKey); v != "" {
		cfg.Pinning.APIKey = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvPinataSecretKey); v != "" {
		cfg.Pinning.SecretKey = strings.TrimSpace(v)
	}

	// AGROSYNC_SETTLE_DELAY accepts a Go duration ("250ms") or milliseconds ("250")
	if v := os.Getenv(EnvSettleDelay); v != "" {
		if d, ok := parseDuration(v); ok {
			cfg.Bindings.SettleDelay = d
		}
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

func parseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.Atoi(s); err == nil {
		if ms < 0 {
			return 0, false
		}
		return time.Duration(ms) * time.Millisecond, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

// SanitizeURL trims copy-paste artifacts from a user-provided URL.
// Returns an empty string when the value does not parse as an absolute URL.
func SanitizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "\"'")
	raw = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == ' ' {
			return -1
		}
		return r
	}, raw)

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.String()
}
