package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/agrosync/internal/agent"
	"github.com/mrz1836/agrosync/internal/app"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/ledger/ledgertest"
	"github.com/mrz1836/agrosync/internal/session"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const waitFor = 2 * time.Second

type harness struct {
	client *app.Client
	agent  *agent.KeyAgent
	chain  *ledgertest.FakeChain
	first  common.Address
	second common.Address
}

func expected() config.NetworkConfig {
	return config.NetworkConfig{ChainID: ledgertest.ChainID, Name: "Polygon Amoy Testnet", RPC: "http://ledger.test"}
}

func newHarness(t *testing.T, extra ...config.NetworkConfig) *harness {
	t.Helper()
	fc := ledgertest.NewFakeChain()

	src, err := agent.NewMnemonicSource(testMnemonic, "")
	require.NoError(t, err)
	k0, err := src.Key(0)
	require.NoError(t, err)
	k1, err := src.Key(1)
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Network = expected()
	addrs := fc.Addresses()
	cfg.Contracts.ProjectFactory = addrs.ProjectFactory.Hex()
	cfg.Contracts.InvestmentManager = addrs.InvestmentManager.Hex()
	cfg.Contracts.StableToken = addrs.StableToken.Hex()
	cfg.Bindings.SettleDelay = 0

	a, err := agent.NewKeyAgent(src, agent.Options{
		Networks: append([]config.NetworkConfig{cfg.Network}, extra...),
		ChainID:  ledgertest.ChainID,
		Dial: func(context.Context, string) (agent.Backend, error) {
			return fc, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	c, err := app.New(app.Options{Config: cfg, Agent: a})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return &harness{
		client: c,
		agent:  a,
		chain:  fc,
		first:  crypto.PubkeyToAddress(k0.PublicKey),
		second: crypto.PubkeyToAddress(k1.PublicKey),
	}
}

func TestClient_ConnectChecksRegistration(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.chain.AddUser(h.first, "Alice", "")

	require.NoError(t, h.client.Connect(context.Background()))

	st := h.client.Status()
	assert.Equal(t, session.Connected, st.Session.State)
	assert.Equal(t, h.first, st.Session.Account)
	assert.Equal(t, "ready", st.Bindings)
	assert.True(t, st.Registered)
	assert.False(t, st.Checking)
	require.NotNil(t, st.Profile)
	assert.Equal(t, "Alice", st.Profile.Name)
	assert.Equal(t, 1, h.chain.Calls("isUserRegistered"))
}

func TestClient_RestoreWithoutExposedAccount(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ok, err := h.client.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "unbound", h.client.Status().Bindings)
}

func TestClient_WritesGatedUntilConnected(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.Mutations.Register(ctx, "Alice", "")
	require.ErrorIs(t, err, agroerr.ErrNotConnected)

	require.NoError(t, h.client.Connect(ctx))
	assert.False(t, h.client.Status().Registered)

	res, err := h.client.Mutations.Register(ctx, "Alice", "")
	require.NoError(t, err)
	assert.Equal(t, h.first, res.Account)
	assert.Equal(t, 1, h.chain.Sent("registerUser"))

	st := h.client.Status()
	assert.True(t, st.Registered)
	require.NotNil(t, st.Profile)
	assert.Equal(t, "Alice", st.Profile.Name)
}

func TestClient_AccountChangeDropsPreviousIdentity(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.chain.AddUser(h.first, "Alice", "")

	require.NoError(t, h.client.Connect(ctx))
	require.True(t, h.client.Status().Registered)

	require.NotNil(t, h.client.Query.InvestorData(ctx, h.first))
	require.NotNil(t, h.client.Query.InvestorData(ctx, h.first))
	require.Equal(t, 1, h.chain.Calls("getInvestorData"))

	require.NoError(t, h.agent.SelectAccount(1))

	require.Eventually(t, func() bool {
		registered, profile, checking := h.client.Registration.Snapshot()
		return h.chain.Calls("isUserRegistered") == 2 && !registered && profile == nil && !checking
	}, waitFor, 5*time.Millisecond)
	require.NoError(t, h.client.Settled(ctx))

	st := h.client.Status()
	assert.Equal(t, h.second, st.Session.Account)
	assert.Equal(t, "ready", st.Bindings)

	require.NotNil(t, h.client.Query.InvestorData(ctx, h.first))
	assert.Equal(t, 2, h.chain.Calls("getInvestorData"))
}

func TestClient_DisconnectUnbinds(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.chain.AddUser(h.first, "Alice", "")
	require.NoError(t, h.client.Connect(ctx))

	h.agent.Lock()

	require.Eventually(t, func() bool {
		st := h.client.Status()
		return st.Session.State == session.Disconnected && st.Bindings == "unbound" && !st.Registered
	}, waitFor, 5*time.Millisecond)

	_, err := h.client.Mutations.Invest(ctx, common.Big1, "1")
	require.ErrorIs(t, err, agroerr.ErrNotConnected)
}

func TestClient_WrongNetworkUnbindsUntilBack(t *testing.T) {
	t.Parallel()
	other := config.NetworkConfig{ChainID: 1, Name: "Ethereum", RPC: "http://other.test"}
	h := newHarness(t, other)
	ctx := context.Background()
	require.NoError(t, h.client.Connect(ctx))

	require.NoError(t, h.agent.SwitchChain(ctx, 1))
	require.Eventually(t, func() bool {
		st := h.client.Status()
		return st.Session.ChainID == 1 && st.Bindings == "unbound"
	}, waitFor, 5*time.Millisecond)
	assert.False(t, h.client.Session.OnExpectedNetwork())

	require.NoError(t, h.agent.SwitchChain(ctx, ledgertest.ChainID))
	require.Eventually(t, func() bool {
		return h.client.Status().Bindings == "ready"
	}, waitFor, 5*time.Millisecond)
}

func TestClient_Close(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.client.Connect(ctx))

	h.client.Close()
	h.client.Close()

	require.ErrorIs(t, h.client.Session.Connect(ctx), agroerr.ErrClosed)
	require.ErrorIs(t, h.client.Settled(ctx), agroerr.ErrClosed)
	assert.Equal(t, "unbound", h.client.Status().Bindings)
}

func TestClient_SettledHonoursContext(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.client.Settled(ctx)
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestClient_WithoutAgent(t *testing.T) {
	t.Parallel()
	c, err := app.New(app.Options{})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.ErrorIs(t, c.Connect(context.Background()), agroerr.ErrAgentMissing)
	assert.Equal(t, config.DefaultChainID, int(c.Config().Network.ChainID))
}
