package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/mrz1836/agrosync/internal/config"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and modify agrosync configuration settings.

Settings live in config.yaml under the agrosync home directory. Environment
variables prefixed with AGROSYNC_ override the file.`,
	GroupID: groupConfig,
}

// configInitCmd initializes the configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.agrosync/config.yaml.

If a configuration file already exists, this command will not overwrite it
unless --force is specified.`,
	Example: `  agrosync config init
  agrosync config init --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd shows the current configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration settings, including environment
overrides. Pinning credentials are masked.`,
	Example: `  agrosync config show
  agrosync config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// configGetCmd gets a specific configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long: `Get a specific configuration value by its path.

The path uses dot notation to navigate the configuration tree.`,
	Example: `  agrosync config get network.rpc
  agrosync config get contracts.project_factory
  agrosync config get logging.level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configSetCmd sets a configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value by its path.

The path uses dot notation to navigate the configuration tree.
The configuration file will be updated immediately.`,
	Example: `  agrosync config set network.rpc https://rpc-amoy.polygon.technology
  agrosync config set contracts.stable_token 0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582
  agrosync config set bindings.settle_delay 250ms`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

// configKey is one addressable configuration value.
type configKey struct {
	path   string
	secret bool
	get    func(c *config.Config) string
	set    func(c *config.Config, value string) error
}

// configKeys lists every value reachable through config get and set.
//
//nolint:gochecknoglobals // Static key registry
var configKeys = []configKey{
	{path: "home", get: func(c *config.Config) string { return c.Home }, set: setString(func(c *config.Config) *string { return &c.Home })},

	{path: "network.chain_id", get: func(c *config.Config) string { return strconv.FormatUint(c.Network.ChainID, 10) }, set: setChainID},
	{path: "network.name", get: func(c *config.Config) string { return c.Network.Name }, set: setString(func(c *config.Config) *string { return &c.Network.Name })},
	{path: "network.rpc", get: func(c *config.Config) string { return c.Network.RPC }, set: setString(func(c *config.Config) *string { return &c.Network.RPC })},
	{path: "network.explorer", get: func(c *config.Config) string { return c.Network.Explorer }, set: setString(func(c *config.Config) *string { return &c.Network.Explorer })},

	{path: "rate_limit.requests_per_second", get: func(c *config.Config) string { return strconv.FormatFloat(c.RateLimit.RequestsPerSecond, 'g', -1, 64) }, set: setRate},
	{path: "rate_limit.burst", get: func(c *config.Config) string { return strconv.Itoa(c.RateLimit.Burst) }, set: setInt(func(c *config.Config) *int { return &c.RateLimit.Burst }, 1, 1000)},

	{path: "contracts.project_factory", get: func(c *config.Config) string { return c.Contracts.ProjectFactory }, set: setAddress(func(c *config.Config) *string { return &c.Contracts.ProjectFactory })},
	{path: "contracts.investment_manager", get: func(c *config.Config) string { return c.Contracts.InvestmentManager }, set: setAddress(func(c *config.Config) *string { return &c.Contracts.InvestmentManager })},
	{path: "contracts.stable_token", get: func(c *config.Config) string { return c.Contracts.StableToken }, set: setAddress(func(c *config.Config) *string { return &c.Contracts.StableToken })},
	{path: "contracts.token_decimals", get: func(c *config.Config) string { return strconv.Itoa(c.Contracts.TokenDecimals) }, set: setInt(func(c *config.Config) *int { return &c.Contracts.TokenDecimals }, 0, 36)},

	{path: "bindings.settle_delay", get: func(c *config.Config) string { return c.Bindings.SettleDelay.String() }, set: setDuration(func(c *config.Config) *time.Duration { return &c.Bindings.SettleDelay })},

	{path: "cache.collection_ttl", get: func(c *config.Config) string { return c.Cache.CollectionTTL.String() }, set: setDuration(func(c *config.Config) *time.Duration { return &c.Cache.CollectionTTL })},
	{path: "cache.project_ttl", get: func(c *config.Config) string { return c.Cache.ProjectTTL.String() }, set: setDuration(func(c *config.Config) *time.Duration { return &c.Cache.ProjectTTL })},
	{path: "cache.account_ttl", get: func(c *config.Config) string { return c.Cache.AccountTTL.String() }, set: setDuration(func(c *config.Config) *time.Duration { return &c.Cache.AccountTTL })},

	{path: "content.json_gateways", get: func(c *config.Config) string { return strings.Join(c.Content.JSONGateways, ",") }, set: setList(func(c *config.Config) *[]string { return &c.Content.JSONGateways })},
	{path: "content.image_gateways", get: func(c *config.Config) string { return strings.Join(c.Content.ImageGateways, ",") }, set: setList(func(c *config.Config) *[]string { return &c.Content.ImageGateways })},
	{path: "content.fetch_timeout", get: func(c *config.Config) string { return c.Content.FetchTimeout.String() }, set: setDuration(func(c *config.Config) *time.Duration { return &c.Content.FetchTimeout })},
	{path: "content.probe_timeout", get: func(c *config.Config) string { return c.Content.ProbeTimeout.String() }, set: setDuration(func(c *config.Config) *time.Duration { return &c.Content.ProbeTimeout })},
	{path: "content.cache_size", get: func(c *config.Config) string { return strconv.Itoa(c.Content.CacheSize) }, set: setInt(func(c *config.Config) *int { return &c.Content.CacheSize }, 1, 1<<20)},
	{path: "content.default_image", get: func(c *config.Config) string { return c.Content.DefaultImage }, set: setString(func(c *config.Config) *string { return &c.Content.DefaultImage })},

	{path: "pinning.file_url", get: func(c *config.Config) string { return c.Pinning.FileURL }, set: setString(func(c *config.Config) *string { return &c.Pinning.FileURL })},
	{path: "pinning.json_url", get: func(c *config.Config) string { return c.Pinning.JSONURL }, set: setString(func(c *config.Config) *string { return &c.Pinning.JSONURL })},
	{path: "pinning.jwt", secret: true, get: func(c *config.Config) string { return c.Pinning.JWT }, set: setString(func(c *config.Config) *string { return &c.Pinning.JWT })},
	{path: "pinning.api_key", secret: true, get: func(c *config.Config) string { return c.Pinning.APIKey }, set: setString(func(c *config.Config) *string { return &c.Pinning.APIKey })},
	{path: "pinning.secret_key", secret: true, get: func(c *config.Config) string { return c.Pinning.SecretKey }, set: setString(func(c *config.Config) *string { return &c.Pinning.SecretKey })},
	{path: "pinning.timeout", get: func(c *config.Config) string { return c.Pinning.Timeout.String() }, set: setDuration(func(c *config.Config) *time.Duration { return &c.Pinning.Timeout })},

	{path: "mutation.track_approvals", get: func(c *config.Config) string { return strconv.FormatBool(c.Mutation.TrackApprovals) }, set: setBool(func(c *config.Config) *bool { return &c.Mutation.TrackApprovals })},
	{path: "mutation.read_timeout", get: func(c *config.Config) string { return c.Mutation.ReadTimeout.String() }, set: setDuration(func(c *config.Config) *time.Duration { return &c.Mutation.ReadTimeout })},
	{path: "mutation.poll_interval", get: func(c *config.Config) string { return c.Mutation.PollInterval.String() }, set: setDuration(func(c *config.Config) *time.Duration { return &c.Mutation.PollInterval })},

	{path: "agent.source", get: func(c *config.Config) string { return c.Agent.Source }, set: setOneOf(func(c *config.Config) *string { return &c.Agent.Source }, "mnemonic", "keystore", "agefile")},
	{path: "agent.mnemonic_file", get: func(c *config.Config) string { return c.Agent.MnemonicFile }, set: setString(func(c *config.Config) *string { return &c.Agent.MnemonicFile })},
	{path: "agent.keystore_file", get: func(c *config.Config) string { return c.Agent.KeystoreFile }, set: setString(func(c *config.Config) *string { return &c.Agent.KeystoreFile })},
	{path: "agent.age_key_file", get: func(c *config.Config) string { return c.Agent.AgeKeyFile }, set: setString(func(c *config.Config) *string { return &c.Agent.AgeKeyFile })},
	{path: "agent.account", get: func(c *config.Config) string { return strconv.Itoa(c.Agent.Account) }, set: setInt(func(c *config.Config) *int { return &c.Agent.Account }, 0, 1<<31-1)},

	{path: "output.default_format", get: func(c *config.Config) string { return c.Output.DefaultFormat }, set: setOneOf(func(c *config.Config) *string { return &c.Output.DefaultFormat }, "text", "json", "auto")},
	{path: "output.color", get: func(c *config.Config) string { return c.Output.Color }, set: setOneOf(func(c *config.Config) *string { return &c.Output.Color }, "auto", "always", "never")},
	{path: "output.verbose", get: func(c *config.Config) string { return strconv.FormatBool(c.Output.Verbose) }, set: setBool(func(c *config.Config) *bool { return &c.Output.Verbose })},

	{path: "logging.level", get: func(c *config.Config) string { return c.Logging.Level }, set: setOneOf(func(c *config.Config) *string { return &c.Logging.Level }, "off", "error", "info", "debug")},
	{path: "logging.file", get: func(c *config.Config) string { return c.Logging.File }, set: setString(func(c *config.Config) *string { return &c.Logging.File })},
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	configPath := config.Path(cc.Cfg.Home)

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil && !configForce {
		return agroerr.WithSuggestion(
			agroerr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", configPath),
		)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaultCfg := config.Defaults()
	defaultCfg.Home = cc.Cfg.Home

	if err := config.Save(defaultCfg, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - contracts.*: Deployed project factory, investment manager, and stable token")
	outln(w, "  - network.rpc: Your RPC endpoint for "+defaultCfg.Network.Name)
	outln(w, "  - agent.source: Where the signing key is loaded from")
	outln(w, "  - pinning.jwt: Pinning service token for uploads (optional)")
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	values := make(map[string]string, len(configKeys))
	for _, k := range configKeys {
		values[k.path] = k.display(cc.Cfg)
	}
	return cc.printer(cmd).Result(values, func(w io.Writer) error {
		return displayConfigText(w, cc.Cfg)
	})
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	k, err := lookupConfigKey(args[0])
	if err != nil {
		return err
	}
	outln(cmd.OutOrStdout(), k.get(cc.Cfg))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	path, value := args[0], args[1]
	k, err := lookupConfigKey(path)
	if err != nil {
		return err
	}

	// Load current config from file so environment overrides are not persisted
	configPath := config.Path(cc.Cfg.Home)
	currentCfg, err := config.Load(configPath)
	if err != nil {
		currentCfg = config.Defaults()
		currentCfg.Home = cc.Cfg.Home
	}

	if err := k.set(currentCfg, value); err != nil {
		return err
	}
	if err := currentCfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := config.Save(currentCfg, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	out(cmd.OutOrStdout(), "Set %s = %s\n", path, k.display(currentCfg))
	return nil
}

// lookupConfigKey finds the key for path, suggesting the closest known key
// when there is none.
func lookupConfigKey(path string) (configKey, error) {
	best, bestDist := "", -1
	for _, k := range configKeys {
		if k.path == path {
			return k, nil
		}
		if d := levenshtein.ComputeDistance(path, k.path); bestDist < 0 || d < bestDist {
			best, bestDist = k.path, d
		}
	}
	err := agroerr.WithDetails(
		agroerr.WithMessage(agroerr.ErrNotFound, fmt.Sprintf("configuration path '%s' not found", path)),
		map[string]string{"path": path},
	)
	if bestDist >= 0 && bestDist <= len(path)/2 {
		return configKey{}, agroerr.WithSuggestion(err, "did you mean "+best+"?")
	}
	return configKey{}, err
}

// display returns the value for humans, masking secrets.
func (k configKey) display(c *config.Config) string {
	v := k.get(c)
	if !k.secret {
		return v
	}
	return maskSecret(v)
}

func maskSecret(v string) string {
	switch {
	case v == "":
		return "(not configured)"
	case len(v) >= 8:
		return v[:4] + "..."
	default:
		return "***..."
	}
}

// displayConfigText shows the config grouped by section.
func displayConfigText(w io.Writer, c *config.Config) error {
	outln(w, "Configuration:")
	section := ""
	for _, k := range configKeys {
		head, key, found := strings.Cut(k.path, ".")
		if !found {
			out(w, "\n  %s: %s\n", head, k.display(c))
			continue
		}
		if head != section {
			section = head
			out(w, "\n  %s:\n", head)
		}
		v := k.display(c)
		if v == "" {
			v = "(not configured)"
		}
		out(w, "    %s: %s\n", key, v)
	}
	return nil
}

func invalidValue(value, valid string) error {
	return agroerr.WithDetails(agroerr.ErrInvalidInput, map[string]string{"value": value, "valid": valid})
}

func setString(field func(*config.Config) *string) func(*config.Config, string) error {
	return func(c *config.Config, v string) error {
		*field(c) = v
		return nil
	}
}

func setOneOf(field func(*config.Config) *string, allowed ...string) func(*config.Config, string) error {
	return func(c *config.Config, v string) error {
		for _, a := range allowed {
			if strings.EqualFold(v, a) {
				*field(c) = a
				return nil
			}
		}
		return invalidValue(v, strings.Join(allowed, ", "))
	}
}

func setAddress(field func(*config.Config) *string) func(*config.Config, string) error {
	return func(c *config.Config, v string) error {
		if v != "" && !common.IsHexAddress(v) {
			return agroerr.WithDetails(agroerr.ErrInvalidAddress, map[string]string{"address": v})
		}
		if v != "" {
			v = common.HexToAddress(v).Hex()
		}
		*field(c) = v
		return nil
	}
}

func setInt(field func(*config.Config) *int, lo, hi int) func(*config.Config, string) error {
	return func(c *config.Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < lo || n > hi {
			return invalidValue(v, fmt.Sprintf("integer from %d to %d", lo, hi))
		}
		*field(c) = n
		return nil
	}
}

func setRate(c *config.Config, v string) error {
	r, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || r <= 0 {
		return invalidValue(v, "positive number of requests per second")
	}
	c.RateLimit.RequestsPerSecond = r
	return nil
}

func setBool(field func(*config.Config) *bool) func(*config.Config, string) error {
	return func(c *config.Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return invalidValue(v, "true or false")
		}
		*field(c) = b
		return nil
	}
}

func setDuration(field func(*config.Config) *time.Duration) func(*config.Config, string) error {
	return func(c *config.Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || d < 0 {
			return invalidValue(v, "duration such as 250ms or 30s")
		}
		*field(c) = d
		return nil
	}
}

func setList(field func(*config.Config) *[]string) func(*config.Config, string) error {
	return func(c *config.Config, v string) error {
		var list []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
		if len(list) == 0 {
			return invalidValue(v, "comma separated URLs")
		}
		*field(c) = list
		return nil
	}
}

func setChainID(c *config.Config, v string) error {
	id, err := config.ParseChainID(v)
	if err != nil || id == 0 {
		return invalidValue(v, "decimal or 0x-prefixed chain ID")
	}
	c.Network.ChainID = id
	return nil
}
