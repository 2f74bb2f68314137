package config

import (
	"strconv"
	"strings"
	"time"
)

// DefaultChainID is Polygon Amoy (0x13882).
const DefaultChainID = 80002

// DefaultRPCURL is the default Polygon Amoy RPC endpoint.
const DefaultRPCURL = "https://rpc-amoy.polygon.technology"

// DefaultTokenDecimals is the fixed-point precision of the stable token (USDC).
const DefaultTokenDecimals = 6

// Default per-host request rate for RPC endpoints and gateways.
const (
	DefaultRequestsPerSecond = 5
	DefaultBurst             = 10
)

// DefaultSettleDelay is the grace period before freshly built bindings are used.
const DefaultSettleDelay = 100 * time.Millisecond

// Write pipeline timings.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// Cache lifetimes.
const (
	DefaultCollectionTTL = 30 * time.Second
	DefaultProjectTTL    = 60 * time.Second
	DefaultAccountTTL    = 60 * time.Second
)

// Gateway timeouts.
const (
	DefaultFetchTimeout = 5 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// DefaultJSONGateways are tried in order when resolving off-chain JSON.
//
//nolint:gochecknoglobals // Configuration default, same pattern as DefaultRPCURL
var DefaultJSONGateways = []string{
	"https://gateway.pinata.cloud/ipfs/",
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://dweb.link/ipfs/",
}

// DefaultImageGateways are probed in order, most reliable first.
//
//nolint:gochecknoglobals // Configuration default, same pattern as DefaultRPCURL
var DefaultImageGateways = []string{
	"https://ipfs.io/ipfs/",
	"https://gateway.ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://dweb.link/ipfs/",
	"https://cf-ipfs.com/ipfs/",
	"https://ipfs.infura.io/ipfs/",
}

// DefaultImage is served when neither a category fallback nor a gateway works.
const DefaultImage = "https://images.unsplash.com/photo-1596422846543-75c6fc197f06?auto=format&fit=crop&w=800&q=80"

// DefaultFallbacks maps project categories to placeholder images.
//
//nolint:gochecknoglobals // Configuration default, same pattern as DefaultRPCURL
var DefaultFallbacks = map[string]string{
	"Rice Cultivation":      "https://images.unsplash.com/photo-1596422846543-75c6fc197f06?auto=format&fit=crop&w=800&q=80",
	"Fruit Cultivation":     "https://images.unsplash.com/photo-1550258987-190a2d41a8ba?auto=format&fit=crop&w=800&q=80",
	"Vegetable Cultivation": "https://images.unsplash.com/photo-1596124579925-2beb6db8621b?auto=format&fit=crop&w=800&q=80",
	"Livestock":             "https://images.unsplash.com/photo-1534337621606-e3dcc5fdc4b4?auto=format&fit=crop&w=800&q=80",
	"Fisheries":             "https://images.unsplash.com/photo-1544943910-4c1dc44aab44?auto=format&fit=crop&w=800&q=80",
	"Agroforestry":          "https://images.unsplash.com/photo-1441974231531-c6227db76b6e?auto=format&fit=crop&w=800&q=80",
	"Poultry":               "https://images.unsplash.com/photo-1548550023-2bdb3c5beed7?auto=format&fit=crop&w=800&q=80",
	"Dairy Farming":         "https://images.unsplash.com/photo-1560493676-04071c5f467b?auto=format&fit=crop&w=800&q=80",
}

// Pinning endpoints.
const (
	DefaultPinFileURL = "https://api.pinata.cloud/pinning/pinFileToIPFS"
	DefaultPinJSONURL = "https://api.pinata.cloud/pinning/pinJSONToIPFS"
	DefaultPinTimeout = 60 * time.Second
)

// Defaults returns the default configuration.
func Defaults() *Config {
	fallbacks := make(map[string]string, len(DefaultFallbacks))
	for k, v := range DefaultFallbacks {
		fallbacks[k] = v
	}

	return &Config{
		Version: 1,
		Home:    "~/.agrosync",
		Network: NetworkConfig{
			ChainID:        DefaultChainID,
			Name:           "Polygon Amoy Testnet",
			RPC:            DefaultRPCURL,
			CurrencyName:   "MATIC",
			CurrencySymbol: "MATIC",
			Decimals:       18,
			Explorer:       "https://amoy.polygonscan.com/",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultBurst,
		},
		Contracts: ContractsConfig{
			TokenDecimals: DefaultTokenDecimals,
		},
		Bindings: BindingsConfig{
			SettleDelay: DefaultSettleDelay,
		},
		Mutation: MutationConfig{
			ReadTimeout:  DefaultReadTimeout,
			PollInterval: DefaultPollInterval,
		},
		Cache: CacheConfig{
			CollectionTTL: DefaultCollectionTTL,
			ProjectTTL:    DefaultProjectTTL,
			AccountTTL:    DefaultAccountTTL,
		},
		Content: ContentConfig{
			JSONGateways:  append([]string(nil), DefaultJSONGateways...),
			ImageGateways: append([]string(nil), DefaultImageGateways...),
			FetchTimeout:  DefaultFetchTimeout,
			ProbeTimeout:  DefaultProbeTimeout,
			CacheSize:     512,
			Fallbacks:     fallbacks,
			DefaultImage:  DefaultImage,
		},
		Pinning: PinningConfig{
			FileURL: DefaultPinFileURL,
			JSONURL: DefaultPinJSONURL,
			Timeout: DefaultPinTimeout,
		},
		Agent: AgentConfig{
			Source:       "mnemonic",
			MnemonicFile: "~/.agrosync/mnemonic.txt",
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.agrosync/agrosync.log",
		},
	}
}

// FormatChainID renders a chain ID the way signing agents report it ("0x13882").
func FormatChainID(id uint64) string {
	return "0x" + strconv.FormatUint(id, 16)
}

// ParseChainID accepts either hex ("0x13882") or decimal ("80002") chain IDs.
func ParseChainID(s string) (uint64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.HasPrefix(s, "0x") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
