package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/agrosync/internal/agent"
	"github.com/mrz1836/agrosync/internal/app"
	"github.com/mrz1836/agrosync/internal/binding"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/output"
)

// FormatProvider provides output format information.
type FormatProvider interface {
	// Format returns the current output format.
	Format() output.Format
}

// AgentFactory opens the signing agent for a command. The returned release
// function is called once the command is done with the agent.
type AgentFactory func(cc *CommandContext) (agent.Agent, func(), error)

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg   *config.Config
	Log   *config.Logger
	Fmt   FormatProvider
	Agent AgentFactory

	// HTTPClient and Probe are passed to the client; nil uses the defaults.
	HTTPClient *http.Client
	Probe      binding.ProbeFunc
}

type cmdContextKey struct{}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(cfg *config.Config, logger *config.Logger, formatter FormatProvider) *CommandContext {
	return &CommandContext{
		Cfg:   cfg,
		Log:   logger,
		Fmt:   formatter,
		Agent: defaultAgent,
	}
}

// SetCmdContext attaches the command context to cmd.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the command context attached to cmd, or nil.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cc, _ := ctx.Value(cmdContextKey{}).(*CommandContext)
	return cc
}

// commandCtx returns the command context, which an interrupt cancels.
// Writes run on it directly so a confirmation is waited for as long as it takes.
func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// contextWithTimeout returns a timeout context rooted in the command context.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(commandCtx(cmd), d)
}

// conn is a client together with the agent it was built on.
type conn struct {
	*app.Client

	release func()
}

// Close stops the client and releases the agent.
func (c *conn) Close() {
	c.Client.Close()
	if c.release != nil {
		c.release()
	}
}

// open builds a client without a signing agent. Content commands use it.
func (cc *CommandContext) open() (*conn, error) {
	client, err := app.New(app.Options{
		Config:     cc.Cfg,
		HTTPClient: cc.HTTPClient,
		Probe:      cc.Probe,
		Logger:     cc.logger(),
	})
	if err != nil {
		return nil, err
	}
	return &conn{Client: client}, nil
}

// connect opens the agent, connects the session, and waits for the
// contract bindings to become ready.
func (cc *CommandContext) connect(ctx context.Context) (*conn, error) {
	factory := cc.Agent
	if factory == nil {
		factory = defaultAgent
	}
	a, release, err := factory(cc)
	if err != nil {
		return nil, err
	}

	client, err := app.New(app.Options{
		Config:     cc.Cfg,
		Agent:      a,
		HTTPClient: cc.HTTPClient,
		Probe:      cc.Probe,
		Logger:     cc.logger(),
	})
	if err != nil {
		if release != nil {
			release()
		}
		return nil, err
	}
	c := &conn{Client: client, release: release}

	if err := c.Connect(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.Bindings.WaitReady(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (cc *CommandContext) logger() *config.Logger {
	if cc.Log == nil {
		return config.NullLogger()
	}
	return cc.Log
}

func (cc *CommandContext) isJSON() bool {
	return cc.Fmt != nil && cc.Fmt.Format() == output.FormatJSON
}

// defaultAgent loads the configured key source into a local agent. Invoking
// a command counts as approving the requests it makes.
func defaultAgent(cc *CommandContext) (agent.Agent, func(), error) {
	passphrase, err := agentPassphrase(cc)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.NewAgent(cc.Cfg, passphrase, nil, cc.logger())
	if err != nil {
		return nil, nil, err
	}
	return a, a.Close, nil
}

// printer returns a formatter in the command's output format writing to cmd's stdout.
func (cc *CommandContext) printer(cmd *cobra.Command) *output.Formatter {
	format := output.FormatText
	if cc.Fmt != nil {
		format = cc.Fmt.Format()
	}
	return output.NewFormatter(format, cmd.OutOrStdout())
}

func (cc *CommandContext) tokenDecimals() int {
	if cc.Cfg == nil || cc.Cfg.Contracts.TokenDecimals == 0 {
		return config.DefaultTokenDecimals
	}
	return cc.Cfg.Contracts.TokenDecimals
}
