package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/agrosync/internal/chain"
	"github.com/mrz1836/agrosync/internal/output"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// investCmd funds a project.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var investCmd = &cobra.Command{
	Use:   "invest <project-id> <amount>",
	Short: "Invest stable tokens in a project",
	Long: `Invest an amount of stable tokens in an active project.

The token balance is checked first. When the current allowance does not cover
the amount, an approval for exactly the amount is sent and confirmed before
the investment itself. Both transactions are signed by the connected account.`,
	Example: `  agrosync invest 3 250
  agrosync invest 3 12.5 --yes -o json`,
	GroupID: groupLedger,
	Args:    cobra.ExactArgs(2),
	RunE:    runInvest,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var investYes bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(investCmd)
	investCmd.Flags().BoolVarP(&investYes, "yes", "y", false, "skip the confirmation prompt")
}

type investView struct {
	OperationID string `json:"operation_id"`
	ProjectID   string `json:"project_id"`
	Amount      string `json:"amount"`
	ApprovalTx  string `json:"approval_tx,omitempty"`
	TxHash      string `json:"tx_hash"`
}

func runInvest(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	id, err := parseProjectID(args[0])
	if err != nil {
		return err
	}
	amount := args[1]

	readCtx, cancel := contextWithTimeout(cmd, connectTimeout)
	defer cancel()
	c, err := cc.connect(readCtx)
	if err != nil {
		return err
	}
	defer c.Close()

	if !investYes {
		title := "project " + id.String()
		if p := c.Query.Project(readCtx, id); p != nil {
			title = fmt.Sprintf("%q (project %s)", p.Title, p.ID)
		}
		if !promptConfirmFn(fmt.Sprintf("Invest %s in %s from %s?", amount, title, c.Session.Account().Hex())) {
			return agroerr.WithMessage(agroerr.ErrUserRejected, "investment cancelled")
		}
	}

	res, err := c.Mutations.Invest(commandCtx(cmd), id, amount)
	if err != nil {
		return err
	}

	view := investView{
		OperationID: res.OperationID,
		ProjectID:   res.ProjectID.String(),
		Amount:      chain.FormatDecimalAmount(res.Amount, cc.tokenDecimals()),
		TxHash:      res.Receipt.TxHash.Hex(),
	}
	if res.Approval != nil {
		view.ApprovalTx = res.Approval.TxHash.Hex()
	}
	return cc.printer(cmd).Result(view, func(w io.Writer) error {
		output.Success(w, "Invested %s in project %s", view.Amount, view.ProjectID)
		if view.ApprovalTx != "" {
			outln(w, "  Approval:    "+view.ApprovalTx)
		}
		outln(w, "  Transaction: "+view.TxHash)
		return nil
	})
}
