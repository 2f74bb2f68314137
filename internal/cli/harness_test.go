package cli

import (
	"bytes"
	"context"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/agrosync/internal/agent"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/ledger/ledgertest"
	"github.com/mrz1836/agrosync/internal/output"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// testAccount is account 0 of testMnemonic.
var testAccount = common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94") //nolint:gochecknoglobals // Test fixture

// newTestContext returns a command context over default configuration in a
// temporary home with no signing agent.
func newTestContext(t *testing.T, format output.Format) *CommandContext {
	t.Helper()
	c := config.Defaults()
	c.Home = t.TempDir()
	c.Logging.File = ""
	cc := NewCommandContext(c, config.NullLogger(), output.NewFormatter(format, io.Discard))
	cc.Agent = func(*CommandContext) (agent.Agent, func(), error) {
		t.Fatal("unexpected agent use")
		return nil, nil, nil
	}
	return cc
}

// newLedgerContext returns a command context whose agent signs for
// testMnemonic against an in-memory chain.
func newLedgerContext(t *testing.T, format output.Format) (*CommandContext, *ledgertest.FakeChain) {
	t.Helper()
	fc := ledgertest.NewFakeChain()
	cc := newTestContext(t, format)

	cc.Cfg.Network = config.NetworkConfig{ChainID: ledgertest.ChainID, Name: "Polygon Amoy Testnet", RPC: "http://ledger.test"}
	addrs := fc.Addresses()
	cc.Cfg.Contracts.ProjectFactory = addrs.ProjectFactory.Hex()
	cc.Cfg.Contracts.InvestmentManager = addrs.InvestmentManager.Hex()
	cc.Cfg.Contracts.StableToken = addrs.StableToken.Hex()
	cc.Cfg.Bindings.SettleDelay = 0
	cc.Cfg.Mutation.PollInterval = 5 * time.Millisecond

	cc.Agent = func(cc *CommandContext) (agent.Agent, func(), error) {
		src, err := agent.NewMnemonicSource(testMnemonic, "")
		if err != nil {
			return nil, nil, err
		}
		a, err := agent.NewKeyAgent(src, agent.Options{
			Networks: []config.NetworkConfig{cc.Cfg.Network},
			ChainID:  cc.Cfg.Network.ChainID,
			Dial: func(context.Context, string) (agent.Backend, error) {
				return fc, nil
			},
		})
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	}
	return cc, fc
}

// withGateway points every gateway and pinning endpoint at handler.
func withGateway(t *testing.T, cc *CommandContext, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cc.HTTPClient = srv.Client()
	cc.Cfg.Content.JSONGateways = []string{srv.URL + "/ipfs/"}
	cc.Cfg.Content.ImageGateways = []string{srv.URL + "/ipfs/"}
	cc.Cfg.Pinning.FileURL = srv.URL + "/pinning/pinFileToIPFS"
	cc.Cfg.Pinning.JSONURL = srv.URL + "/pinning/pinJSONToIPFS"
	return srv
}

// newTestCmd returns a bare command carrying cc with stdout captured.
func newTestCmd(t *testing.T, cc *CommandContext) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	SetCmdContext(cmd, cc)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	return cmd, buf
}

// fund gives account amount whole tokens.
func fund(fc *ledgertest.FakeChain, account common.Address, amount int64) {
	fc.SetBalance(account, new(big.Int).Mul(big.NewInt(amount), big.NewInt(1_000_000)))
}

func mustKey(t *testing.T) (string, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return common.Bytes2Hex(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey)
}

// stubPrompts replaces the prompt hooks for the duration of a test.
func stubPrompts(t *testing.T, secrets []string, confirm bool) {
	t.Helper()
	origSecret, origConfirm, origTerminal := promptSecretFn, promptConfirmFn, isTerminalFn
	t.Cleanup(func() {
		promptSecretFn, promptConfirmFn, isTerminalFn = origSecret, origConfirm, origTerminal
	})

	next := 0
	promptSecretFn = func(string) ([]byte, error) {
		require.Less(t, next, len(secrets), "unexpected secret prompt")
		s := secrets[next]
		next++
		return []byte(s), nil
	}
	promptConfirmFn = func(string) bool { return confirm }
	isTerminalFn = func() bool { return len(secrets) > 0 }
}
