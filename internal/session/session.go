// Package session owns the connection between the application and its signing
// agent. It is a small state machine over Disconnected, Connecting, Connected
// and Error, and it republishes agent events as identity changes that the
// rest of the application reacts to.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/mrz1836/agrosync/internal/agent"
	"github.com/mrz1836/agrosync/internal/config"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// ErrConnectInProgress is returned when Connect is called while connecting.
var ErrConnectInProgress = &agroerr.AgroError{
	Code:     "CONNECT_IN_PROGRESS",
	Message:  "a connection attempt is already in progress",
	ExitCode: agroerr.ExitGeneral,
}

// agentEventBuffer is the capacity of the channel fed by the agent.
const agentEventBuffer = 16

// Options configures a Session.
type Options struct {
	// Expected is the network the application runs on.
	Expected config.NetworkConfig

	// OnTransition observes every state change. It runs with the session
	// lock held and must not call back into the session.
	OnTransition func(from, to State)

	Logger *config.Logger
}

// Session is the wallet session. It is safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	agent    agent.Agent
	expected config.NetworkConfig
	state    State
	account  common.Address
	chainID  uint64
	lastErr  error
	watch    *watcher
	closed   bool

	feed         event.FeedOf[Event]
	onTransition func(from, to State)
	logger       *config.Logger
}

// watcher is the single live agent subscription and the goroutine draining it.
type watcher struct {
	sub  event.Subscription
	raw  chan agent.Event
	stop chan struct{}
	done chan struct{}
}

// New creates a disconnected session. A nil agent is allowed; connecting
// then fails with ErrAgentMissing.
func New(a agent.Agent, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = config.NullLogger()
	}
	return &Session{
		agent:        a,
		expected:     opts.Expected,
		state:        Disconnected,
		onTransition: opts.OnTransition,
		logger:       logger,
	}
}

// Subscribe delivers session events to ch.
func (s *Session) Subscribe(ch chan<- Event) event.Subscription {
	return s.feed.Subscribe(ch)
}

// Connect requests accounts from the agent, repairs the network if needed,
// and moves the session to Connected.
func (s *Session) Connect(ctx context.Context) error {
	return s.connect(ctx, true)
}

// Restore reconnects silently when the agent already exposes an account.
// It reports whether a connection was restored and never prompts.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	if s.agent == nil {
		return false, nil
	}
	accts, err := s.agent.Accounts(ctx)
	if err != nil {
		s.logger.Debug("session: restore skipped: %v", err)
		return false, nil
	}
	if len(accts) == 0 {
		return false, nil
	}
	if err := s.connect(ctx, false); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) connect(ctx context.Context, prompt bool) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return agroerr.ErrClosed
	case s.state == Connecting:
		s.mu.Unlock()
		return ErrConnectInProgress
	case s.state == Connected:
		s.mu.Unlock()
		return nil
	}
	if s.agent == nil {
		s.mu.Unlock()
		return agroerr.ErrAgentMissing
	}
	s.transition(Connecting)
	s.mu.Unlock()

	account, chainID, err := s.handshake(ctx, prompt)

	s.mu.Lock()
	if s.closed {
		s.transition(Disconnected)
		s.mu.Unlock()
		return agroerr.ErrClosed
	}
	if err != nil {
		s.lastErr = err
		s.transition(Error)
		s.transition(Disconnected)
		s.mu.Unlock()
		s.logger.Error("session: connect failed: %v", err)
		return err
	}

	s.lastErr = nil
	s.account = account
	s.chainID = chainID
	s.transition(Connected)
	s.watch = s.startWatcher()
	s.mu.Unlock()

	s.logger.Info("session: connected %s on %s", account.Hex(), config.FormatChainID(chainID))
	s.feed.Send(Event{Kind: EventConnected, Account: account, ChainID: chainID})
	return nil
}

func (s *Session) handshake(ctx context.Context, prompt bool) (common.Address, uint64, error) {
	var (
		accts []common.Address
		err   error
	)
	if prompt {
		accts, err = s.agent.RequestAccounts(ctx)
	} else {
		accts, err = s.agent.Accounts(ctx)
	}
	if err != nil {
		return common.Address{}, 0, connectionError(err)
	}
	if len(accts) == 0 {
		return common.Address{}, 0, agroerr.ErrNoAccounts
	}

	chainID, err := s.agent.ChainID(ctx)
	if err != nil {
		return common.Address{}, 0, agroerr.WithCause(agroerr.ErrConnection, err)
	}

	if s.expected.ChainID != 0 && chainID != s.expected.ChainID {
		s.logger.Info("session: agent on %s, expected %s",
			config.FormatChainID(chainID), config.FormatChainID(s.expected.ChainID))
		if err := s.repairNetwork(ctx); err != nil {
			return common.Address{}, 0, err
		}
		chainID = s.expected.ChainID
	}

	return accts[0], chainID, nil
}

// repairNetwork switches the agent to the expected chain, adding it first
// when the agent does not know it.
func (s *Session) repairNetwork(ctx context.Context) error {
	err := s.agent.SwitchChain(ctx, s.expected.ChainID)
	if errorCode(err) == agent.CodeUnknownChain {
		s.logger.Debug("session: adding network %s", s.expected.Name)
		if addErr := s.agent.AddChain(ctx, s.expected); addErr != nil {
			return agroerr.WithSuggestion(
				agroerr.WithCause(agroerr.ErrNetworkMismatch, addErr),
				"add "+s.expected.Name+" to the signing agent manually")
		}
		err = s.agent.SwitchChain(ctx, s.expected.ChainID)
	}
	if err != nil {
		if errorCode(err) == agent.CodeUserRejected {
			return agroerr.WithCause(agroerr.ErrUserRejected, err)
		}
		return agroerr.WithCause(agroerr.ErrNetworkMismatch, err)
	}
	return nil
}

// Disconnect forces the session to Disconnected and publishes the reset.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return
	}
	w := s.detach()
	s.mu.Unlock()

	w.shutdown()
	s.logger.Info("session: disconnected")
	s.feed.Send(Event{Kind: EventDisconnected})
}

// Close tears the session down. Later Connect calls fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var w *watcher
	if s.state == Connected {
		w = s.detach()
	}
	s.mu.Unlock()

	w.shutdown()
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:   s.state,
		Status:  s.state.String(),
		Account: s.account,
		ChainID: s.chainID,
		Err:     s.lastErr,
	}
}

// State returns the connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the session is connected.
func (s *Session) Connected() bool {
	return s.State() == Connected
}

// Account returns the connected account, or the zero address.
func (s *Session) Account() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// OnExpectedNetwork reports whether the active chain is the expected one.
func (s *Session) OnExpectedNetwork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Connected && (s.expected.ChainID == 0 || s.chainID == s.expected.ChainID)
}

// SignMessage signs msg with the connected account.
func (s *Session) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if !s.Connected() {
		return nil, agroerr.ErrNotConnected
	}
	sig, err := s.agent.SignMessage(ctx, msg)
	if err != nil {
		if errorCode(err) == agent.CodeUserRejected {
			return nil, agroerr.WithMessage(agroerr.ErrUserRejected, "message signing rejected by user")
		}
		return nil, agroerr.Wrap(err, "signing message")
	}
	return sig, nil
}

// Agent returns the signing agent.
func (s *Session) Agent() agent.Agent {
	return s.agent
}

// transition moves to next. Callers hold s.mu.
func (s *Session) transition(next State) {
	prev := s.state
	if !CanTransition(prev, next) {
		s.logger.Error("session: illegal transition %s -> %s", prev, next)
		return
	}
	s.state = next
	if next != Connected {
		s.account = common.Address{}
		s.chainID = 0
	}
	if s.onTransition != nil {
		s.onTransition(prev, next)
	}
}

// detach moves to Disconnected and hands back the live watcher.
// Callers hold s.mu and shut the watcher down after unlocking.
func (s *Session) detach() *watcher {
	w := s.watch
	s.watch = nil
	s.transition(Disconnected)
	return w
}

func (s *Session) startWatcher() *watcher {
	w := &watcher{
		raw:  make(chan agent.Event, agentEventBuffer),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	w.sub = s.agent.SubscribeEvents(w.raw)
	go s.watchLoop(w)
	return w
}

// shutdown unsubscribes and waits for the loop. A nil watcher is a no-op.
func (w *watcher) shutdown() {
	if w == nil {
		return
	}
	w.sub.Unsubscribe()
	close(w.stop)
	<-w.done
}

func (s *Session) watchLoop(w *watcher) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-w.sub.Err():
			return
		case ev := <-w.raw:
			if !s.handleAgentEvent(w, ev) {
				return
			}
		}
	}
}

// handleAgentEvent applies one agent event. It returns false once the
// watcher is no longer the live one.
func (s *Session) handleAgentEvent(w *watcher, ev agent.Event) bool {
	s.mu.Lock()
	if s.watch != w {
		s.mu.Unlock()
		return false
	}

	switch ev.Kind {
	case agent.EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			s.disconnectFromLoop(w)
			return false
		}
		prev := s.account
		next := ev.Accounts[0]
		if next == prev {
			s.mu.Unlock()
			return true
		}
		s.account = next
		s.transition(Connected)
		chainID := s.chainID
		s.mu.Unlock()

		s.logger.Info("session: account changed %s -> %s", prev.Hex(), next.Hex())
		s.feed.Send(Event{Kind: EventAccountChanged, Account: next, Previous: prev, ChainID: chainID})

	case agent.EventChainChanged:
		s.chainID = ev.ChainID
		account := s.account
		wrong := s.expected.ChainID != 0 && ev.ChainID != s.expected.ChainID
		s.mu.Unlock()

		if wrong {
			s.logger.Error("session: agent switched to %s, please switch back to %s",
				config.FormatChainID(ev.ChainID), s.expected.Name)
		}
		s.feed.Send(Event{Kind: EventChainChanged, Account: account, ChainID: ev.ChainID, WrongNetwork: wrong})

	case agent.EventDisconnect:
		s.disconnectFromLoop(w)
		return false

	default:
		s.mu.Unlock()
	}
	return true
}

// disconnectFromLoop is Disconnect for the watcher's own goroutine, which
// cannot wait on itself. Callers hold s.mu; it is released here.
func (s *Session) disconnectFromLoop(w *watcher) {
	s.watch = nil
	s.transition(Disconnected)
	s.mu.Unlock()

	w.sub.Unsubscribe()
	s.logger.Info("session: agent disconnected")
	s.feed.Send(Event{Kind: EventDisconnected})
}

// connectionError maps agent failures onto the connection error taxonomy.
func connectionError(err error) error {
	switch errorCode(err) {
	case agent.CodeUserRejected:
		return agroerr.WithCause(agroerr.ErrUserRejected, err)
	case agent.CodeRequestPending:
		return agroerr.WithCause(agroerr.ErrRequestPending, err)
	default:
		return agroerr.WithCause(agroerr.ErrConnection, err)
	}
}

func errorCode(err error) int {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode()
	}
	return 0
}
