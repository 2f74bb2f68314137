package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/agrosync/internal/config"
)

func testNetworks() []config.NetworkConfig {
	return []config.NetworkConfig{
		{ChainID: 1, Name: "Ethereum", RPC: "http://127.0.0.1:1"},
	}
}

func amoy() config.NetworkConfig {
	return config.NetworkConfig{ChainID: 80002, Name: "Polygon Amoy Testnet", RPC: "http://127.0.0.1:2"}
}

func newTestAgent(t *testing.T, approve ApproveFunc) *KeyAgent {
	t.Helper()
	src, err := NewMnemonicSource(testMnemonic, "")
	require.NoError(t, err)

	a, err := NewKeyAgent(src, Options{Networks: testNetworks(), Approve: approve})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for agent event")
		return Event{}
	}
}

func rpcCode(t *testing.T, err error) int {
	t.Helper()
	var rpcErr rpc.Error
	require.True(t, errors.As(err, &rpcErr), "expected rpc.Error, got %v", err)
	return rpcErr.ErrorCode()
}

func TestKeyAgent_RequestAccounts(t *testing.T) {
	t.Parallel()
	a := newTestAgent(t, nil)
	ctx := context.Background()

	accts, err := a.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accts, "locked agent exposes nothing")
	assert.Nil(t, a.Provider())
	assert.Nil(t, a.Signer())

	accts, err = a.RequestAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", accts[0].Hex())

	accts, err = a.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accts, 1)
}

func TestKeyAgent_RequestAccountsRejected(t *testing.T) {
	t.Parallel()
	a := newTestAgent(t, func(context.Context, string) bool { return false })

	_, err := a.RequestAccounts(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeUserRejected, rpcCode(t, err))
}

func TestKeyAgent_RequestAccountsPending(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{})
	release := make(chan struct{})
	a := newTestAgent(t, func(context.Context, string) bool {
		close(entered)
		<-release
		return true
	})

	done := make(chan error, 1)
	go func() {
		_, err := a.RequestAccounts(context.Background())
		done <- err
	}()
	<-entered

	_, err := a.RequestAccounts(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeRequestPending, rpcCode(t, err))

	close(release)
	require.NoError(t, <-done)
}

func TestKeyAgent_SwitchUnknownThenAdd(t *testing.T) {
	t.Parallel()
	a := newTestAgent(t, nil)
	ctx := context.Background()
	_, err := a.RequestAccounts(ctx)
	require.NoError(t, err)

	ch := make(chan Event, 4)
	sub := a.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	before := a.Provider()
	require.NotNil(t, before)

	err = a.SwitchChain(ctx, 80002)
	require.Error(t, err)
	assert.Equal(t, CodeUnknownChain, rpcCode(t, err))

	require.NoError(t, a.AddChain(ctx, amoy()))
	require.NoError(t, a.SwitchChain(ctx, 80002))

	ev := recvEvent(t, ch)
	assert.Equal(t, EventChainChanged, ev.Kind)
	assert.Equal(t, uint64(80002), ev.ChainID)

	id, err := a.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(80002), id)
	assert.NotSame(t, before, a.Provider(), "provider is rebuilt for the new chain")
	assert.Len(t, a.Networks(), 2)
}

func TestKeyAgent_AddChainInvalid(t *testing.T) {
	t.Parallel()
	a := newTestAgent(t, nil)

	err := a.AddChain(context.Background(), config.NetworkConfig{Name: "broken"})
	require.Error(t, err)
	assert.Equal(t, CodeInvalidParams, rpcCode(t, err))
}

func TestKeyAgent_SwitchSameChainIsQuiet(t *testing.T) {
	t.Parallel()
	a := newTestAgent(t, nil)
	ch := make(chan Event, 1)
	sub := a.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	require.NoError(t, a.SwitchChain(context.Background(), 1))
	assert.Empty(t, ch)
}

func TestKeyAgent_SignerIdentity(t *testing.T) {
	t.Parallel()
	a := newTestAgent(t, nil)
	_, err := a.RequestAccounts(context.Background())
	require.NoError(t, err)

	ch := make(chan Event, 1)
	sub := a.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	first := a.Signer()
	require.NotNil(t, first)
	assert.Same(t, first, a.Signer(), "signer keeps identity while nothing changes")
	provider := a.Provider()
	assert.Same(t, provider, a.Provider())

	require.NoError(t, a.SelectAccount(1))
	ev := recvEvent(t, ch)
	assert.Equal(t, EventAccountsChanged, ev.Kind)
	require.Len(t, ev.Accounts, 1)
	assert.Equal(t, a.Address(), ev.Accounts[0])

	second := a.Signer()
	assert.NotSame(t, first, second)
	assert.Equal(t, a.Address(), second.From)
	assert.Same(t, provider, a.Provider(), "account switch keeps the provider")
}

func TestKeyAgent_Lock(t *testing.T) {
	t.Parallel()
	a := newTestAgent(t, nil)
	_, err := a.RequestAccounts(context.Background())
	require.NoError(t, err)

	ch := make(chan Event, 1)
	sub := a.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	a.Lock()
	assert.Equal(t, EventDisconnect, recvEvent(t, ch).Kind)

	accts, err := a.Accounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accts)
	assert.Nil(t, a.Signer())

	a.Lock()
	assert.Empty(t, ch, "locking twice emits once")
}

func TestKeyAgent_SignMessage(t *testing.T) {
	t.Parallel()
	a := newTestAgent(t, nil)
	msg := []byte("agrosync login")

	_, err := a.SignMessage(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, CodeUnauthorized, rpcCode(t, err))

	_, err = a.RequestAccounts(context.Background())
	require.NoError(t, err)

	sig, err := a.SignMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)

	sig[crypto.RecoveryIDOffset] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), crypto.PubkeyToAddress(*pub))
}

func TestEventKind_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "accountsChanged", EventAccountsChanged.String())
	assert.Equal(t, "chainChanged", EventChainChanged.String())
	assert.Equal(t, "disconnect", EventDisconnect.String())
	assert.Equal(t, "unknown", EventKind(0).String())
}
