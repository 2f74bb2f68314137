// Package app wires the session, bindings, caches, resolver, and mutation
// pipeline into one client and keeps them consistent as the signing agent
// changes identity.
package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/mrz1836/agrosync/internal/agent"
	"github.com/mrz1836/agrosync/internal/binding"
	"github.com/mrz1836/agrosync/internal/chain"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/content"
	"github.com/mrz1836/agrosync/internal/ledger"
	"github.com/mrz1836/agrosync/internal/mutation"
	"github.com/mrz1836/agrosync/internal/query"
	"github.com/mrz1836/agrosync/internal/registration"
	"github.com/mrz1836/agrosync/internal/session"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// sessionEventBuffer is the capacity of the channel fed by the session.
const sessionEventBuffer = 16

// Options configures a Client.
type Options struct {
	Config *config.Config

	// Agent is the signing agent. Nil is allowed; connecting then fails
	// with ErrAgentMissing.
	Agent agent.Agent

	// HTTPClient is used for gateway and pinning requests.
	HTTPClient *http.Client

	// Probe overrides the binding readiness probe. Defaults to a code probe
	// on the project registry.
	Probe binding.ProbeFunc

	Logger *config.Logger
}

// Client is the application's view of the ledger and content network.
type Client struct {
	Session      *session.Session
	Bindings     *binding.Manager
	Ledger       *ledger.Client
	Resolver     *content.Resolver
	Registration *registration.Cache
	Query        *query.Cache
	Mutations    *mutation.Pipeline
	Pinning      *content.PinningClient

	cfg    *config.Config
	agent  agent.Agent
	logger *config.Logger

	events  chan session.Event
	barrier chan chan chan struct{}
	sub     event.Subscription
	ctx     context.Context //nolint:containedctx // Lifetime of the event loop
	cancel  context.CancelFunc
	done    chan struct{}

	mu         sync.Mutex
	account    common.Address
	followStop context.CancelFunc
	followDone chan struct{}
	closed     bool
}

// Status is a point-in-time view of the client.
type Status struct {
	Session      session.Snapshot          `json:"session"`
	Bindings     string                    `json:"bindings"`
	BindingError string                    `json:"binding_error,omitempty"`
	Registered   bool                      `json:"registered"`
	Checking     bool                      `json:"checking"`
	Profile      *registration.UserProfile `json:"profile,omitempty"`
}

// New builds a client and starts consuming session events.
func New(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	logger := opts.Logger
	if logger == nil {
		logger = config.NullLogger()
	}
	decimals := cfg.Contracts.TokenDecimals
	if decimals == 0 {
		decimals = config.DefaultTokenDecimals
	}

	limiter := chain.DefaultRateLimiter()
	if rl := cfg.RateLimit; rl.RequestsPerSecond > 0 {
		limiter = chain.NewRateLimiter(rl.RequestsPerSecond, max(rl.Burst, 1))
	}

	resolverOpts := content.ResolverOptionsFromConfig(cfg.Content)
	resolverOpts.HTTPClient = opts.HTTPClient
	resolverOpts.Limiter = limiter
	resolverOpts.Logger = logger
	resolver, err := content.NewResolver(resolverOpts)
	if err != nil {
		return nil, agroerr.Wrap(err, "creating content resolver")
	}

	gateway := config.DefaultJSONGateways[0]
	if len(cfg.Content.JSONGateways) > 0 {
		gateway = cfg.Content.JSONGateways[0]
	}
	pinOpts := content.PinOptionsFromConfig(cfg.Pinning, gateway)
	pinOpts.HTTPClient = opts.HTTPClient
	pinOpts.Logger = logger

	probe := opts.Probe
	if probe == nil {
		probe = binding.CodeProbe(config.DefaultProbeTimeout)
	}
	bindings := binding.NewManager(binding.Options{
		Addresses:   binding.AddressesFromConfig(cfg.Contracts),
		SettleDelay: cfg.Bindings.SettleDelay,
		Probe:       probe,
		Logger:      logger,
	})

	ledgerClient := ledger.NewClient(bindings, ledger.Options{
		Limiter:      limiter,
		Endpoint:     cfg.Network.RPC,
		PollInterval: cfg.Mutation.PollInterval,
		Logger:       logger,
	})

	sess := session.New(opts.Agent, session.Options{Expected: cfg.Network, Logger: logger})
	reg := registration.New(registration.Options{Resolver: resolver, TokenDecimals: decimals, Logger: logger})

	queryOpts := query.OptionsFromConfig(cfg.Cache, decimals)
	queryOpts.Logger = logger
	cache := query.New(ledgerClient, queryOpts)

	pipeline := mutation.New(mutation.Options{
		Session:        sess,
		Bindings:       bindings,
		Ledger:         ledgerClient,
		Registration:   reg,
		Cache:          cache,
		Categories:     resolver.Categories(),
		TokenDecimals:  decimals,
		ReadTimeout:    cfg.Mutation.ReadTimeout,
		TrackApprovals: cfg.Mutation.TrackApprovals,
		Logger:         logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		Session:      sess,
		Bindings:     bindings,
		Ledger:       ledgerClient,
		Resolver:     resolver,
		Registration: reg,
		Query:        cache,
		Mutations:    pipeline,
		Pinning:      content.NewPinningClient(pinOpts),
		cfg:          cfg,
		agent:        opts.Agent,
		logger:       logger,
		events:       make(chan session.Event, sessionEventBuffer),
		barrier:      make(chan chan chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	c.sub = sess.Subscribe(c.events)
	go c.loop()
	return c, nil
}

// Connect prompts the agent for an account and waits until the bindings
// and registration state for it are settled.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.Session.Connect(ctx); err != nil {
		return err
	}
	return c.Settled(ctx)
}

// Restore reconnects without prompting when the agent already exposes an
// account, and waits for the follow-up work when it does.
func (c *Client) Restore(ctx context.Context) (bool, error) {
	ok, err := c.Session.Restore(ctx)
	if err != nil || !ok {
		return ok, err
	}
	return true, c.Settled(ctx)
}

// Settled blocks until the events already published by the session have
// been applied and the follow-up work they started has finished.
func (c *Client) Settled(ctx context.Context) error {
	reply := make(chan chan struct{}, 1)
	select {
	case c.barrier <- reply:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return agroerr.ErrClosed
	}

	var done chan struct{}
	select {
	case done = <-reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current view of the client.
func (c *Client) Status() Status {
	registered, profile, checking := c.Registration.Snapshot()
	st := Status{
		Session:    c.Session.Snapshot(),
		Bindings:   c.Bindings.State().String(),
		Registered: registered,
		Checking:   checking,
		Profile:    profile,
	}
	if err := c.Bindings.Err(); err != nil {
		st.BindingError = err.Error()
	}
	return st
}

// Config returns the configuration the client was built with.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Close stops the event loop and releases every component. Work still in
// flight is abandoned and its results are dropped.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.sub.Unsubscribe()
	c.cancel()
	<-c.done
	c.stopFollowUp()

	c.Session.Close()
	c.Bindings.Close()
	c.Resolver.Close()
	c.Registration.Close()
	c.Query.Close()
	c.logger.Debug("app: closed")
}

func (c *Client) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case err := <-c.sub.Err():
			if err != nil {
				c.logger.Error("app: session subscription ended: %v", err)
			}
			return
		case ev := <-c.events:
			c.handle(ev)
		case reply := <-c.barrier:
			c.drain()
			c.mu.Lock()
			reply <- c.followDone
			c.mu.Unlock()
		}
	}
}

// drain applies every queued event.
func (c *Client) drain() {
	for {
		select {
		case ev := <-c.events:
			c.handle(ev)
		default:
			return
		}
	}
}

// handle applies one identity change. State tied to the old identity is
// dropped before anything is fetched for the new one.
func (c *Client) handle(ev session.Event) {
	c.logger.Debug("app: %s account=%s chain=%s", ev.Kind, ev.Account.Hex(), config.FormatChainID(ev.ChainID))
	c.stopFollowUp()

	switch ev.Kind {
	case session.EventConnected:
		c.setAccount(ev.Account)
		c.rebind(ev.Account)

	case session.EventAccountChanged:
		c.Registration.Reset()
		c.Query.InvalidateAccount(ev.Previous)
		c.setAccount(ev.Account)
		c.rebind(ev.Account)

	case session.EventChainChanged:
		c.Registration.Reset()
		c.Query.Clear()
		if ev.WrongNetwork {
			c.logger.Error("app: writes disabled until the agent is back on %s", c.cfg.Network.Name)
			c.Bindings.Update(nil, nil)
			return
		}
		c.rebind(ev.Account)

	case session.EventDisconnected:
		c.Registration.Reset()
		if prev := c.setAccount(common.Address{}); prev != (common.Address{}) {
			c.Query.InvalidateAccount(prev)
		}
		c.Bindings.Update(nil, nil)
	}
}

// rebind hands the agent's current provider and signer to the binding
// manager, then checks registration once the bindings are ready.
func (c *Client) rebind(account common.Address) {
	if c.agent == nil {
		return
	}
	c.Bindings.Update(c.agent.Provider(), c.agent.Signer())

	ctx, cancel := context.WithCancel(c.ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.followStop, c.followDone = cancel, done
	c.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		if err := c.Bindings.WaitReady(ctx); err != nil {
			c.logger.Debug("app: bindings for %s not ready: %v", account.Hex(), err)
			return
		}
		if err := c.Registration.Check(ctx, account, c.Ledger); err != nil {
			c.logger.Debug("app: registration check for %s: %v", account.Hex(), err)
		}
	}()
}

// stopFollowUp cancels the work started for the previous identity and
// waits for it to return.
func (c *Client) stopFollowUp() {
	c.mu.Lock()
	stop, done := c.followStop, c.followDone
	c.followStop = nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
}

func (c *Client) setAccount(a common.Address) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.account
	c.account = a
	return prev
}
