package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"

	"github.com/mrz1836/agrosync/internal/agent"
	"github.com/mrz1836/agrosync/internal/app"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/output"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

func resetAgentFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		agentCount = 1
		agentForce = false
	})
}

func writeMnemonic(t *testing.T, cc *CommandContext) {
	t.Helper()
	path := filepath.Join(cc.Cfg.Home, "mnemonic.txt")
	require.NoError(t, os.WriteFile(path, []byte(testMnemonic+"\n"), 0o600))
	cc.Cfg.Agent.Source = app.SourceMnemonic
	cc.Cfg.Agent.MnemonicFile = path
}

func TestRunAgentAddress(t *testing.T) {
	resetAgentFlags(t)
	cc := newTestContext(t, output.FormatJSON)
	writeMnemonic(t, cc)
	agentCount = 3

	cmd, buf := newTestCmd(t, cc)
	require.NoError(t, runAgentAddress(cmd, nil))

	var got []agentAccount
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, testAccount.Hex(), got[0].Address)
	assert.Equal(t, 2, got[2].Index)
	assert.NotEqual(t, got[1].Address, got[2].Address)
}

func TestRunAgentAddress_MarksConfiguredAccount(t *testing.T) {
	resetAgentFlags(t)
	cc := newTestContext(t, output.FormatText)
	writeMnemonic(t, cc)
	cc.Cfg.Agent.Account = 1
	agentCount = 2

	cmd, buf := newTestCmd(t, cc)
	require.NoError(t, runAgentAddress(cmd, nil))
	out := buf.String()
	assert.Contains(t, out, testAccount.Hex())
	assert.Contains(t, out, "1*")
	assert.NotContains(t, out, "0*")
}

func TestRunAgentAddress_Errors(t *testing.T) {
	resetAgentFlags(t)
	cc := newTestContext(t, output.FormatText)

	agentCount = 0
	cmd, _ := newTestCmd(t, cc)
	require.ErrorIs(t, runAgentAddress(cmd, nil), agroerr.ErrInvalidInput)

	agentCount = 1
	cc.Cfg.Agent.Source = app.SourceMnemonic
	cc.Cfg.Agent.MnemonicFile = filepath.Join(cc.Cfg.Home, "missing.txt")
	cmd, _ = newTestCmd(t, cc)
	require.ErrorIs(t, runAgentAddress(cmd, nil), agroerr.ErrKeyUnavailable)
}

func TestRunAgentNew(t *testing.T) {
	resetAgentFlags(t)
	cc := newTestContext(t, output.FormatJSON)
	path := filepath.Join(cc.Cfg.Home, "keys", "mnemonic.txt")
	cc.Cfg.Agent.MnemonicFile = path

	cmd, buf := newTestCmd(t, cc)
	require.NoError(t, runAgentNew(cmd, nil))

	var got map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, path, got["path"])
	assert.True(t, bip39.IsMnemonicValid(got["mnemonic"]))
	assert.Len(t, strings.Fields(got["mnemonic"]), 12)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	src, err := agent.LoadMnemonicFile(path, "")
	require.NoError(t, err)
	key, err := src.Key(0)
	require.NoError(t, err)
	assert.Equal(t, got["address"], crypto.PubkeyToAddress(key.PublicKey).Hex())

	// An existing phrase is kept unless forced
	cmd, _ = newTestCmd(t, cc)
	require.ErrorIs(t, runAgentNew(cmd, nil), agroerr.ErrInvalidInput)
	data, err := os.ReadFile(path) //nolint:gosec // test file
	require.NoError(t, err)
	assert.Equal(t, got["mnemonic"]+"\n", string(data))

	agentForce = true
	cmd, _ = newTestCmd(t, cc)
	require.NoError(t, runAgentNew(cmd, nil))
	data, err = os.ReadFile(path) //nolint:gosec // test file
	require.NoError(t, err)
	assert.NotEqual(t, got["mnemonic"]+"\n", string(data))
}

func TestRunAgentSeal(t *testing.T) {
	cc := newTestContext(t, output.FormatText)
	hexKey, addr := mustKey(t)
	path := filepath.Join(cc.Cfg.Home, "key.age")

	stubPrompts(t, []string{"0x" + hexKey, "correct horse", "correct horse"}, true)
	cmd, buf := newTestCmd(t, cc)
	require.NoError(t, runAgentSeal(cmd, []string{path}))
	assert.Contains(t, buf.String(), addr.Hex())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	src, err := agent.LoadAgeKeyFile(path, "correct horse")
	require.NoError(t, err)
	key, err := src.Key(0)
	require.NoError(t, err)
	assert.Equal(t, addr, crypto.PubkeyToAddress(key.PublicKey))

	_, err = agent.LoadAgeKeyFile(path, "wrong horse")
	require.Error(t, err)
}

func TestRunAgentSeal_Rejects(t *testing.T) {
	hexKey, _ := mustKey(t)
	tests := []struct {
		name    string
		secrets []string
	}{
		{"bad key", []string{"not-hex"}},
		{"short passphrase", []string{hexKey, "short"}},
		{"mismatch", []string{hexKey, "correct horse", "battery staple"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := newTestContext(t, output.FormatText)
			path := filepath.Join(cc.Cfg.Home, "key.age")

			stubPrompts(t, tt.secrets, true)
			cmd, _ := newTestCmd(t, cc)
			require.ErrorIs(t, runAgentSeal(cmd, []string{path}), agroerr.ErrInvalidInput)
			_, err := os.Stat(path)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestAgentPassphrase(t *testing.T) {
	cc := newTestContext(t, output.FormatText)

	cc.Cfg.Agent.Source = app.SourceMnemonic
	stubPrompts(t, []string{"unused"}, true)
	p, err := agentPassphrase(cc)
	require.NoError(t, err)
	assert.Empty(t, p, "mnemonic sources are not prompted for")

	cc.Cfg.Agent.Source = app.SourceKeystore
	p, err = agentPassphrase(cc)
	require.NoError(t, err)
	assert.Equal(t, "unused", p)

	t.Setenv(config.EnvAgentPassphrase, "from-env")
	p, err = agentPassphrase(cc)
	require.NoError(t, err)
	assert.Equal(t, "from-env", p)
}

func TestAgentPassphrase_NoTerminal(t *testing.T) {
	cc := newTestContext(t, output.FormatText)
	cc.Cfg.Agent.Source = app.SourceAgeFile
	stubPrompts(t, nil, true)

	p, err := agentPassphrase(cc)
	require.NoError(t, err)
	assert.Empty(t, p)
}
