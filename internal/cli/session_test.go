package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/agrosync/internal/agent"
	"github.com/mrz1836/agrosync/internal/output"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

func TestRunStatus_JSON(t *testing.T) {
	t.Parallel()
	cc, fc := newLedgerContext(t, output.FormatJSON)
	fc.AddUser(testAccount, "Alice", "")
	fund(fc, testAccount, 12)

	cmd, buf := newTestCmd(t, cc)
	require.NoError(t, runStatus(cmd, nil))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "ready", got["bindings"])
	assert.Equal(t, true, got["registered"])
	assert.Equal(t, "12.0", got["balance"])
	assert.Equal(t, "Polygon Amoy Testnet", got["network"])

	session, ok := got["session"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, strings.ToLower(testAccount.Hex()), strings.ToLower(session["account"].(string)))
}

func TestRunStatus_Text(t *testing.T) {
	t.Parallel()
	cc, _ := newLedgerContext(t, output.FormatText)

	cmd, buf := newTestCmd(t, cc)
	require.NoError(t, runStatus(cmd, nil))
	out := buf.String()
	assert.Contains(t, out, testAccount.Hex())
	assert.Contains(t, out, "Polygon Amoy Testnet (0x13882)")
	assert.Contains(t, out, "ready")
}

func TestRunStatus_AgentUnavailable(t *testing.T) {
	t.Parallel()
	cc := newTestContext(t, output.FormatText)
	cc.Agent = func(*CommandContext) (agent.Agent, func(), error) {
		return nil, nil, agroerr.ErrAgentMissing
	}

	cmd, _ := newTestCmd(t, cc)
	require.ErrorIs(t, runStatus(cmd, nil), agroerr.ErrAgentMissing)
}

func TestRunSign(t *testing.T) {
	t.Parallel()
	cc, _ := newLedgerContext(t, output.FormatText)

	cmd, buf := newTestCmd(t, cc)
	require.NoError(t, runSign(cmd, []string{"I own this farm"}))

	sig, err := hexutil.Decode(strings.TrimSpace(buf.String()))
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)

	// Recover the signer from the personal-message hash
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte("I own this farm")), sig)
	require.NoError(t, err)
	assert.Equal(t, testAccount, crypto.PubkeyToAddress(*pub))
}

func TestRunSign_EmptyMessage(t *testing.T) {
	t.Parallel()
	cc := newTestContext(t, output.FormatText)
	cmd, _ := newTestCmd(t, cc)
	require.ErrorIs(t, runSign(cmd, []string{""}), agroerr.ErrInvalidInput)
}
