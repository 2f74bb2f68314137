package cli

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/agrosync/internal/ledger"
	"github.com/mrz1836/agrosync/internal/ledger/ledgertest"
	"github.com/mrz1836/agrosync/internal/output"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

func investFixture(t *testing.T, format output.Format) (*CommandContext, *ledgertest.FakeChain) {
	t.Helper()
	t.Cleanup(func() { investYes = false })
	cc, fc := newLedgerContext(t, format)
	fc.AddProject(ledger.RawProject{
		Farmer:           otherFarmer,
		Title:            "Organic rice",
		Category:         "Rice Cultivation",
		TargetAmountUSDC: tokens(1000),
		DurationDays:     big.NewInt(60),
	})
	fund(fc, testAccount, 500)
	return cc, fc
}

func TestRunInvest_ApprovesThenInvests(t *testing.T) {
	cc, fc := investFixture(t, output.FormatJSON)
	investYes = true

	cmd, buf := newTestCmd(t, cc)
	require.NoError(t, runInvest(cmd, []string{"1", "250"}))

	var got investView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "1", got.ProjectID)
	assert.Equal(t, "250.0", got.Amount)
	assert.NotEmpty(t, got.ApprovalTx)
	assert.NotEmpty(t, got.TxHash)
	assert.NotEqual(t, got.ApprovalTx, got.TxHash)

	assert.Equal(t, 1, fc.Sent("approve"))
	assert.Equal(t, 1, fc.Sent("investInProject"))
	assert.Equal(t, 0, fc.Balance(testAccount).Cmp(tokens(250)))
	assert.Equal(t, 0, fc.Project(1).CurrentAmountUSDC.Cmp(tokens(250)))
}

func TestRunInvest_ExistingAllowance(t *testing.T) {
	cc, fc := investFixture(t, output.FormatText)
	fc.SetAllowance(testAccount, fc.Addresses().InvestmentManager, tokens(100))
	investYes = true

	cmd, buf := newTestCmd(t, cc)
	require.NoError(t, runInvest(cmd, []string{"1", "100"}))
	assert.Contains(t, buf.String(), "Invested 100.0 in project 1")
	assert.NotContains(t, buf.String(), "Approval:")
	assert.Zero(t, fc.Sent("approve"))
}

func TestRunInvest_Confirmation(t *testing.T) {
	cc, fc := investFixture(t, output.FormatText)

	stubPrompts(t, nil, false)
	cmd, _ := newTestCmd(t, cc)
	require.ErrorIs(t, runInvest(cmd, []string{"1", "50"}), agroerr.ErrUserRejected)
	assert.Zero(t, fc.Sent("approve"))
	assert.Zero(t, fc.Sent("investInProject"))

	stubPrompts(t, nil, true)
	cmd, _ = newTestCmd(t, cc)
	require.NoError(t, runInvest(cmd, []string{"1", "50"}))
	assert.Equal(t, 1, fc.Sent("investInProject"))
}

func TestRunInvest_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"bad id", []string{"first", "10"}, agroerr.ErrInvalidInput},
		{"bad amount", []string{"1", "ten"}, agroerr.ErrInvalidAmount},
		{"zero amount", []string{"1", "0"}, agroerr.ErrInvalidAmount},
		{"over balance", []string{"1", "900"}, agroerr.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc, fc := investFixture(t, output.FormatText)
			investYes = true

			cmd, _ := newTestCmd(t, cc)
			require.ErrorIs(t, runInvest(cmd, tt.args), tt.want)
			assert.Zero(t, fc.Sent("approve"))
			assert.Zero(t, fc.Sent("investInProject"))
		})
	}
}

func TestRunInvest_WaitsForSlowConfirmation(t *testing.T) {
	cc, fc := investFixture(t, output.FormatJSON)
	cc.Cfg.Mutation.ReadTimeout = 50 * time.Millisecond
	fc.SetAllowance(testAccount, fc.Addresses().InvestmentManager, tokens(100))
	fc.HoldReceipts()
	investYes = true

	cmd, buf := newTestCmd(t, cc)
	done := make(chan error, 1)
	go func() { done <- runInvest(cmd, []string{"1", "100"}) }()

	require.Eventually(t, func() bool { return fc.Pending() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return len(done) > 0 }, 200*time.Millisecond, 10*time.Millisecond,
		"command gave up while the investment was pending")

	fc.ReleaseReceipts()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("command did not finish after the receipt arrived")
	}

	var got investView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.NotEmpty(t, got.TxHash)
	assert.Equal(t, 0, fc.Project(1).CurrentAmountUSDC.Cmp(tokens(100)))
}

func TestRunInvest_InterruptWhilePending(t *testing.T) {
	cc, fc := investFixture(t, output.FormatJSON)
	fc.SetAllowance(testAccount, fc.Addresses().InvestmentManager, tokens(100))
	fc.HoldReceipts()
	investYes = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd, _ := newTestCmd(t, cc)
	cmd.SetContext(ctx)
	SetCmdContext(cmd, cc)

	done := make(chan error, 1)
	go func() { done <- runInvest(cmd, []string{"1", "100"}) }()

	require.Eventually(t, func() bool { return fc.Pending() == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("command ignored cancellation")
	}
	require.ErrorIs(t, err, agroerr.ErrTransactionFailed)
	require.ErrorIs(t, err, context.Canceled)

	var ae *agroerr.AgroError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "invest", ae.Details["step"])
	assert.NotEmpty(t, ae.Details["tx"])
	assert.Equal(t, 1, fc.Pending())
}
