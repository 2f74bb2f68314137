// Package cli implements the agrosync command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/metrics"
	"github.com/mrz1836/agrosync/internal/output"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// Command group IDs.
const (
	groupLedger  = "ledger"
	groupContent = "content"
	groupAccount = "account"
	groupConfig  = "config"
)

// BuildInfo identifies the binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool
	showMetrics  bool

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	cmdCtx    *CommandContext

	buildInfo  BuildInfo
	enrichOnce sync.Once
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "agrosync",
	Short: "Agricultural crowdfunding ledger client",
	Long: `agrosync connects a signing agent to the agricultural crowdfunding ledger.

It lists and creates farming projects, registers farmers and investors,
invests stable tokens with the approval step handled for you, and resolves
or pins project content on IPFS gateways.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		if showMetrics {
			printMetrics(cmd)
		}
		cleanup()
	},
}

// versionCmd prints build information.
var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version information",
	Long:    `Show the agrosync version, commit, and build date.`,
	Example: `  agrosync version`,
	GroupID: groupConfig,
	RunE: func(cmd *cobra.Command, _ []string) error {
		outln(cmd.OutOrStdout(), "agrosync "+formatVersion(buildInfo))
		return nil
	},
}

// SetBuildInfo records build information for the version command.
func SetBuildInfo(info BuildInfo) {
	buildInfo = info
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context, which ends any wait for a confirmation.
func Execute() error {
	enrichOnce.Do(func() {
		for _, cmd := range rootCmd.Commands() {
			visitCommands(cmd, listSubcommands)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		formatErr(err)
		return err
	}
	return nil
}

// visitCommands calls fn for cmd and every command below it, parents first.
func visitCommands(cmd *cobra.Command, fn func(*cobra.Command)) {
	stack := []*cobra.Command{cmd}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(c)
		subs := c.Commands()
		for i := len(subs) - 1; i >= 0; i-- {
			stack = append(stack, subs[i])
		}
	}
}

// listSubcommands appends the available subcommands of a parent to its Long
// text. Leaves and parents with only hidden children are left alone.
func listSubcommands(cmd *cobra.Command) {
	table := output.NewTable()
	table.SetNoHeader(true)
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			table.AddRow("  "+sub.Name(), sub.Short)
		}
	}
	if table.Len() == 0 {
		return
	}
	cmd.Long = strings.TrimRight(cmd.Long, "\n") + "\n\nSubcommands:\n" + table.String()
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return agroerr.ExitCode(err)
}

func formatErr(err error) {
	if formatter != nil {
		_ = output.FormatError(os.Stderr, err, formatter.Format())
		return
	}
	_ = output.FormatError(os.Stderr, err, output.FormatText)
}

func formatVersion(info BuildInfo) string {
	version, commit, date := info.Version, info.Commit, info.Date
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// initGlobals initializes global configuration, logger, formatter, and the
// command context.
func initGlobals(cmd *cobra.Command) error {
	// Determine home directory
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	// Load or create config
	var err error
	cfg, err = config.Load(config.Path(home))
	if err != nil {
		// Use defaults if config doesn't exist
		cfg = config.Defaults()
	}
	cfg.Home = home

	// Apply environment variable overrides
	config.ApplyEnvironment(cfg)

	// Override with command-line flags
	if homeDir != "" {
		cfg.Home = homeDir
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != "auto" {
		cfg.Output.DefaultFormat = outputFormat
	}

	// Initialize logger
	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.Logging.File)
	if err != nil {
		// Use null logger if we can't create the file
		logger = config.NullLogger()
	}

	// Initialize formatter
	explicitFormat := output.ParseFormat(cfg.Output.DefaultFormat)
	formatter = output.NewFormatter(output.DetectFormat(os.Stdout, explicitFormat), os.Stdout)

	cmdCtx = NewCommandContext(cfg, logger, formatter)
	SetCmdContext(cmd, cmdCtx)
	return nil
}

// cleanup releases resources.
func cleanup() {
	if logger != nil {
		_ = logger.Close()
	}
}

// printMetrics writes the process counters to stderr.
func printMetrics(cmd *cobra.Command) {
	snap := metrics.Global.Snapshot()
	w := cmd.ErrOrStderr()
	if formatter != nil && formatter.IsJSON() {
		_ = output.NewFormatter(output.FormatJSON, w).Print(snap)
		return
	}
	f := output.NewFormatter(output.FormatText, w)
	_ = f.Fields(
		"Ledger calls", fmt.Sprintf("%d (%d failed, avg %.1fms)", snap.LedgerCallsTotal, snap.LedgerErrorsTotal, metrics.Global.LedgerLatencyAvgMs()),
		"Transactions", fmt.Sprintf("%d sent, %d confirmed, %d failed", snap.TxSubmitted, snap.TxConfirmed, snap.TxFailed),
		"Cache", fmt.Sprintf("%d hits, %d misses (%.0f%%), %d stale", snap.CacheHits, snap.CacheMisses, metrics.Global.CacheHitRate(), snap.StaleServed),
		"Gateways", fmt.Sprintf("%d probes, %d failed, %d exhausted", snap.GatewayProbes, snap.GatewayFailures, snap.GatewayExhausted),
		"Shared reads", fmt.Sprintf("%d", snap.SharedInFlight),
	)
}

// Config returns the global configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the global logger.
func Logger() *config.Logger {
	return logger
}

// Formatter returns the global output formatter.
func Formatter() *output.Formatter {
	return formatter
}

// Context returns the global command context.
func Context() *CommandContext {
	return cmdCtx
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupLedger, Title: "Ledger Operations:"},
		&cobra.Group{ID: groupAccount, Title: "Account & Agent:"},
		&cobra.Group{ID: groupContent, Title: "Content:"},
		&cobra.Group{ID: groupConfig, Title: "Configuration:"},
	)
	rootCmd.SetHelpCommandGroupID(groupConfig)
	rootCmd.SetCompletionCommandGroupID(groupConfig)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "agrosync data directory (default: ~/.agrosync)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "print ledger, cache, and gateway counters to stderr")
}
