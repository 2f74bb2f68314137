package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/agrosync/internal/agent"
	"github.com/mrz1836/agrosync/internal/config"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

var (
	addrA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	addrB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func amoy() config.NetworkConfig {
	return config.NetworkConfig{ChainID: 80002, Name: "Polygon Amoy Testnet", RPC: "http://127.0.0.1:2"}
}

// fakeAgent scripts agent responses and records calls.
type fakeAgent struct {
	mu         sync.Mutex
	accounts   []common.Address
	chainID    uint64
	known      map[uint64]bool
	requestErr error
	addErr     error
	calls      []string
	block      chan struct{}
	feed       event.FeedOf[agent.Event]
	subs       int
}

func newFakeAgent(chainID uint64) *fakeAgent {
	return &fakeAgent{
		accounts: []common.Address{addrA},
		chainID:  chainID,
		known:    map[uint64]bool{chainID: true},
	}
}

func (f *fakeAgent) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAgent) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAgent) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	f.record("eth_requestAccounts")
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return f.accounts, nil
}

func (f *fakeAgent) Accounts(context.Context) ([]common.Address, error) {
	f.record("eth_accounts")
	return f.accounts, nil
}

func (f *fakeAgent) ChainID(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chainID, nil
}

func (f *fakeAgent) SwitchChain(_ context.Context, id uint64) error {
	f.record("wallet_switchEthereumChain")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[id] {
		return &agent.RPCError{Code: agent.CodeUnknownChain, Message: "unknown chain"}
	}
	f.chainID = id
	return nil
}

func (f *fakeAgent) AddChain(_ context.Context, n config.NetworkConfig) error {
	f.record("wallet_addEthereumChain")
	if f.addErr != nil {
		return f.addErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known[n.ChainID] = true
	return nil
}

func (f *fakeAgent) SubscribeEvents(ch chan<- agent.Event) event.Subscription {
	f.mu.Lock()
	f.subs++
	f.mu.Unlock()
	return f.feed.Subscribe(ch)
}

func (f *fakeAgent) Provider() agent.Backend    { return nil }
func (f *fakeAgent) Signer() *bind.TransactOpts { return nil }

func (f *fakeAgent) SignMessage(context.Context, []byte) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeAgent) emit(ev agent.Event) int { return f.feed.Send(ev) }

func subscribe(t *testing.T, s *Session) <-chan Event {
	t.Helper()
	ch := make(chan Event, 8)
	sub := s.Subscribe(ch)
	t.Cleanup(sub.Unsubscribe)
	return ch
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return Event{}
	}
}

func TestSession_Connect(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(80002)
	s := New(fa, Options{Expected: amoy()})
	defer s.Close()
	events := subscribe(t, s)

	require.NoError(t, s.Connect(context.Background()))

	ev := next(t, events)
	assert.Equal(t, EventConnected, ev.Kind)
	assert.Equal(t, addrA, ev.Account)

	snap := s.Snapshot()
	assert.Equal(t, Connected, snap.State)
	assert.Equal(t, "connected", snap.Status)
	assert.Equal(t, addrA, snap.Account)
	assert.Equal(t, uint64(80002), snap.ChainID)
	assert.True(t, s.OnExpectedNetwork())

	require.NoError(t, s.Connect(context.Background()), "connecting twice is a no-op")
	assert.Equal(t, []string{"eth_requestAccounts"}, fa.Calls())
}

func TestSession_ConnectRepairsNetwork(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(1)
	s := New(fa, Options{Expected: amoy()})
	defer s.Close()

	require.NoError(t, s.Connect(context.Background()))

	assert.Equal(t, []string{
		"eth_requestAccounts",
		"wallet_switchEthereumChain",
		"wallet_addEthereumChain",
		"wallet_switchEthereumChain",
	}, fa.Calls())
	assert.Equal(t, uint64(80002), s.Snapshot().ChainID)
}

func TestSession_ConnectRepairFailure(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(1)
	fa.addErr = &agent.RPCError{Code: agent.CodeUserRejected, Message: "no"}

	var seen []State
	s := New(fa, Options{
		Expected:     amoy(),
		OnTransition: func(_, to State) { seen = append(seen, to) },
	})
	defer s.Close()

	err := s.Connect(context.Background())
	require.ErrorIs(t, err, agroerr.ErrNetworkMismatch)
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, []State{Connecting, Error, Disconnected}, seen)
	assert.ErrorIs(t, s.Snapshot().Err, agroerr.ErrNetworkMismatch)
}

func TestSession_ConnectErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		err     error
		want    *agroerr.AgroError
		accts   []common.Address
		useNone bool
	}{
		{name: "rejected", err: &agent.RPCError{Code: agent.CodeUserRejected}, want: agroerr.ErrUserRejected},
		{name: "pending", err: &agent.RPCError{Code: agent.CodeRequestPending}, want: agroerr.ErrRequestPending},
		{name: "other", err: &agent.RPCError{Code: -32603}, want: agroerr.ErrConnection},
		{name: "no accounts", accts: []common.Address{}, useNone: true, want: agroerr.ErrNoAccounts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fa := newFakeAgent(80002)
			fa.requestErr = tt.err
			if tt.useNone {
				fa.accounts = tt.accts
			}

			var seen []State
			s := New(fa, Options{Expected: amoy(), OnTransition: func(_, to State) { seen = append(seen, to) }})
			defer s.Close()

			err := s.Connect(context.Background())
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, Disconnected, s.State())
			assert.Equal(t, []State{Connecting, Error, Disconnected}, seen)
		})
	}
}

func TestSession_ConnectWithoutAgent(t *testing.T) {
	t.Parallel()
	s := New(nil, Options{Expected: amoy()})
	require.ErrorIs(t, s.Connect(context.Background()), agroerr.ErrAgentMissing)
	assert.Equal(t, Disconnected, s.State())

	ok, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_ConnectWhileConnecting(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(80002)
	fa.block = make(chan struct{})
	s := New(fa, Options{Expected: amoy()})
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.Connect(context.Background()) }()

	require.Eventually(t, func() bool { return s.State() == Connecting }, time.Second, time.Millisecond)
	require.ErrorIs(t, s.Connect(context.Background()), ErrConnectInProgress)
	assert.Equal(t, Connecting, s.State(), "second attempt leaves state untouched")

	close(fa.block)
	require.NoError(t, <-done)
	assert.Equal(t, Connected, s.State())
}

func TestSession_Restore(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(80002)
	s := New(fa, Options{Expected: amoy()})
	defer s.Close()

	ok, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Connected, s.State())
	assert.NotContains(t, fa.Calls(), "eth_requestAccounts", "restore never prompts")

	locked := newFakeAgent(80002)
	locked.accounts = nil
	s2 := New(locked, Options{Expected: amoy()})
	ok, err = s2.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Disconnected, s2.State())
}

func TestSession_AccountChanged(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(80002)
	s := New(fa, Options{Expected: amoy()})
	defer s.Close()
	events := subscribe(t, s)

	require.NoError(t, s.Connect(context.Background()))
	next(t, events)

	fa.emit(agent.Event{Kind: agent.EventAccountsChanged, Accounts: []common.Address{addrA}})
	fa.emit(agent.Event{Kind: agent.EventAccountsChanged, Accounts: []common.Address{addrB}})

	ev := next(t, events)
	assert.Equal(t, EventAccountChanged, ev.Kind, "same-account notification is ignored")
	assert.Equal(t, addrA, ev.Previous)
	assert.Equal(t, addrB, ev.Account)
	assert.Equal(t, addrB, s.Account())
	assert.Equal(t, Connected, s.State())
}

func TestSession_EmptyAccountsDisconnects(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(80002)
	s := New(fa, Options{Expected: amoy()})
	defer s.Close()
	events := subscribe(t, s)

	require.NoError(t, s.Connect(context.Background()))
	next(t, events)

	fa.emit(agent.Event{Kind: agent.EventAccountsChanged})
	assert.Equal(t, EventDisconnected, next(t, events).Kind)
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, common.Address{}, s.Account())
}

func TestSession_ChainChangedWarnsOnly(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(80002)
	s := New(fa, Options{Expected: amoy()})
	defer s.Close()
	events := subscribe(t, s)

	require.NoError(t, s.Connect(context.Background()))
	next(t, events)

	fa.emit(agent.Event{Kind: agent.EventChainChanged, ChainID: 1})
	ev := next(t, events)
	assert.Equal(t, EventChainChanged, ev.Kind)
	assert.True(t, ev.WrongNetwork)
	assert.Equal(t, Connected, s.State())
	assert.False(t, s.OnExpectedNetwork())
	assert.NotContains(t, fa.Calls(), "wallet_switchEthereumChain", "no automatic repair after connect")
}

func TestSession_AgentDisconnect(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(80002)
	s := New(fa, Options{Expected: amoy()})
	defer s.Close()
	events := subscribe(t, s)

	require.NoError(t, s.Connect(context.Background()))
	next(t, events)

	fa.emit(agent.Event{Kind: agent.EventDisconnect})
	assert.Equal(t, EventDisconnected, next(t, events).Kind)
	assert.Equal(t, Disconnected, s.State())

	require.Eventually(t, func() bool { return fa.emit(agent.Event{Kind: agent.EventDisconnect}) == 0 },
		time.Second, time.Millisecond, "subscription is released")
}

func TestSession_OneSubscriptionPerCycle(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(80002)
	s := New(fa, Options{Expected: amoy()})
	defer s.Close()

	for range 3 {
		require.NoError(t, s.Connect(context.Background()))
		s.Disconnect()
	}
	require.NoError(t, s.Connect(context.Background()))

	assert.Equal(t, 4, fa.subs)
	assert.Equal(t, 1, fa.emit(agent.Event{Kind: agent.EventChainChanged, ChainID: 80002}),
		"exactly one live subscription")
}

func TestSession_DisconnectEmitsReset(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(80002)
	s := New(fa, Options{Expected: amoy()})
	defer s.Close()
	events := subscribe(t, s)

	s.Disconnect()
	assert.Empty(t, events, "disconnect while disconnected does nothing")

	require.NoError(t, s.Connect(context.Background()))
	next(t, events)
	s.Disconnect()
	assert.Equal(t, EventDisconnected, next(t, events).Kind)
}

func TestSession_Close(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(80002)
	s := New(fa, Options{Expected: amoy()})

	require.NoError(t, s.Connect(context.Background()))
	s.Close()
	s.Close()

	assert.Equal(t, Disconnected, s.State())
	require.ErrorIs(t, s.Connect(context.Background()), agroerr.ErrClosed)
	assert.Equal(t, 0, fa.emit(agent.Event{Kind: agent.EventDisconnect}))
}

func TestSession_SignMessage(t *testing.T) {
	t.Parallel()
	fa := newFakeAgent(80002)
	s := New(fa, Options{Expected: amoy()})
	defer s.Close()

	_, err := s.SignMessage(context.Background(), []byte("hi"))
	require.ErrorIs(t, err, agroerr.ErrNotConnected)

	require.NoError(t, s.Connect(context.Background()))
	sig, err := s.SignMessage(context.Background(), []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, sig)
}

func TestSession_WithKeyAgent(t *testing.T) {
	t.Parallel()
	src, err := agent.NewMnemonicSource(
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about", "")
	require.NoError(t, err)

	ka, err := agent.NewKeyAgent(src, agent.Options{
		Networks: []config.NetworkConfig{{ChainID: 1, Name: "Ethereum", RPC: "http://127.0.0.1:1"}},
	})
	require.NoError(t, err)
	defer ka.Close()

	s := New(ka, Options{Expected: amoy()})
	defer s.Close()
	events := subscribe(t, s)

	require.NoError(t, s.Connect(context.Background()))
	next(t, events)
	assert.Equal(t, uint64(80002), s.Snapshot().ChainID)

	require.NoError(t, ka.SelectAccount(1))
	ev := next(t, events)
	assert.Equal(t, EventAccountChanged, ev.Kind)
	assert.Equal(t, ka.Address(), ev.Account)

	ka.Lock()
	assert.Equal(t, EventDisconnected, next(t, events).Kind)
}

func TestState_Transitions(t *testing.T) {
	t.Parallel()
	assert.True(t, CanTransition(Disconnected, Connecting))
	assert.True(t, CanTransition(Connecting, Error))
	assert.True(t, CanTransition(Error, Disconnected))
	assert.True(t, CanTransition(Connected, Connected))
	assert.False(t, CanTransition(Disconnected, Connected))
	assert.False(t, CanTransition(Error, Connected))
	assert.Equal(t, "unknown", State(42).String())
	assert.Equal(t, "account_changed", EventAccountChanged.String())
}
