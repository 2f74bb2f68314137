package cli

import (
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/mrz1836/agrosync/internal/app"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/output"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// connectTimeout bounds the agent handshake plus the binding probe.
const connectTimeout = 30 * time.Second

// statusCmd connects and reports the session state.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Connect the signing agent and show session state",
	Long: `Connect the configured signing agent, bind the ledger contracts, and report
the connected account, network, binding readiness, and registration.

The stable token balance of the account is included when the bindings are ready.`,
	Example: `  agrosync status
  agrosync status -o json`,
	GroupID: groupAccount,
	Args:    cobra.NoArgs,
	RunE:    runStatus,
}

// signCmd signs a message with the connected account.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var signCmd = &cobra.Command{
	Use:   "sign <message>",
	Short: "Sign a message with the connected account",
	Long: `Sign a message with the personal-message scheme of the signing agent.

The signature is printed as 0x-prefixed hex.`,
	Example: `  agrosync sign "I own this farm"`,
	GroupID: groupAccount,
	Args:    cobra.ExactArgs(1),
	RunE:    runSign,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(signCmd)
}

type statusView struct {
	app.Status

	Network string `json:"network"`
	Balance string `json:"balance,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, connectTimeout)
	defer cancel()

	c, err := cc.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	st := c.Status()
	view := statusView{
		Status:  st,
		Network: cc.Cfg.Network.Name,
		Balance: c.Query.TokenBalance(ctx, st.Session.Account),
	}
	return cc.printer(cmd).Result(view, func(w io.Writer) error {
		return displayStatusText(w, view)
	})
}

func displayStatusText(w io.Writer, v statusView) error {
	f := output.NewFormatter(output.FormatText, w)
	pairs := []string{
		"Account", v.Session.Account.Hex(),
		"Session", v.Session.Status,
		"Network", v.Network + " (" + config.FormatChainID(v.Session.ChainID) + ")",
		"Bindings", v.Bindings,
		"Balance", v.Balance,
	}
	if v.BindingError != "" {
		pairs = append(pairs, "Binding error", v.BindingError)
	}
	if v.Registered && v.Profile != nil {
		pairs = append(pairs, "Registered", "yes", "Name", v.Profile.Name, "Role", v.Profile.Role)
	} else {
		pairs = append(pairs, "Registered", "no")
	}
	return f.Fields(pairs...)
}

func runSign(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	if args[0] == "" {
		return agroerr.WithMessage(agroerr.ErrInvalidInput, "message is empty")
	}
	ctx, cancel := contextWithTimeout(cmd, connectTimeout)
	defer cancel()

	c, err := cc.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	sig, err := c.Session.SignMessage(ctx, []byte(args[0]))
	if err != nil {
		return err
	}

	result := map[string]string{
		"account":   c.Session.Account().Hex(),
		"message":   args[0],
		"signature": hexutil.Encode(sig),
	}
	return cc.printer(cmd).Result(result, func(w io.Writer) error {
		outln(w, result["signature"])
		return nil
	})
}
