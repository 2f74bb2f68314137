package cli

import (
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/agrosync/internal/content"
	"github.com/mrz1836/agrosync/internal/output"
	"github.com/mrz1836/agrosync/internal/query"
	"github.com/mrz1836/agrosync/internal/registration"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// User roles recorded in profile documents.
const (
	roleFarmer   = "farmer"
	roleInvestor = "investor"
)

// registerCmd registers the connected account.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the connected account as a farmer or investor",
	Long: `Register the connected account on the ledger.

The profile (role, bio, location, experience) is pinned as a JSON document and
its content identifier is stored with the registration. Without pinning
credentials, or with --no-pin, only the name is registered unless
--profile-ref names an already pinned document.`,
	Example: `  agrosync register --name "Alice" --role farmer --location "Mekong Delta"
  agrosync register --name "Bob" --role investor --no-pin`,
	GroupID: groupAccount,
	Args:    cobra.NoArgs,
	RunE:    runRegister,
}

// profileCmd shows the connected account's profile and investments.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the connected account's profile and investments",
	Long: `Show the registration profile of the connected account merged with its
off-chain profile document, its investment summary, and its token balance.`,
	Example: `  agrosync profile
  agrosync profile -o json`,
	GroupID: groupAccount,
	Args:    cobra.NoArgs,
	RunE:    runProfile,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	registerName       string
	registerRole       string
	registerBio        string
	registerLocation   string
	registerExperience string
	registerProfileRef string
	registerNoPin      bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(profileCmd)

	registerCmd.Flags().StringVar(&registerName, "name", "", "display name (required)")
	registerCmd.Flags().StringVar(&registerRole, "role", roleInvestor, "account role: farmer or investor")
	registerCmd.Flags().StringVar(&registerBio, "bio", "", "short biography")
	registerCmd.Flags().StringVar(&registerLocation, "location", "", "where the account holder is based")
	registerCmd.Flags().StringVar(&registerExperience, "experience", "", "farming or investing experience")
	registerCmd.Flags().StringVar(&registerProfileRef, "profile-ref", "", "content identifier of an already pinned profile")
	registerCmd.Flags().BoolVar(&registerNoPin, "no-pin", false, "do not pin a profile document")
	registerCmd.MarkFlagsMutuallyExclusive("profile-ref", "no-pin")
	_ = registerCmd.MarkFlagRequired("name")
}

type registerView struct {
	OperationID string `json:"operation_id"`
	Account     string `json:"account"`
	ProfileRef  string `json:"profile_ref,omitempty"`
	TxHash      string `json:"tx_hash"`
}

func runRegister(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	role := strings.ToLower(strings.TrimSpace(registerRole))
	if role != roleFarmer && role != roleInvestor {
		return agroerr.WithSuggestion(
			agroerr.WithDetails(agroerr.ErrInvalidInput, map[string]string{"role": registerRole}),
			"use --role farmer or --role investor")
	}

	connCtx, cancel := contextWithTimeout(cmd, connectTimeout)
	defer cancel()
	c, err := cc.connect(connCtx)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := commandCtx(cmd)
	if c.Registration.Registered() {
		return agroerr.WithMessage(agroerr.ErrInvalidInput, "account is already registered")
	}

	ref := registerProfileRef
	if ref == "" && !registerNoPin {
		if c.Pinning.Ready() {
			pinned, perr := c.Pinning.PinProfile(ctx, content.ProfileDocument{
				Name:             strings.TrimSpace(registerName),
				Role:             role,
				Bio:              registerBio,
				Location:         registerLocation,
				Experience:       registerExperience,
				RegistrationDate: time.Now().UTC().Format(time.RFC3339),
			})
			if perr != nil {
				return perr
			}
			ref = pinned.CID
		} else if !cc.isJSON() {
			output.Warn(cmd.ErrOrStderr(), "pinning is not configured; registering without a profile document")
		}
	}

	res, err := c.Mutations.Register(ctx, registerName, ref)
	if err != nil {
		return err
	}

	view := registerView{
		OperationID: res.OperationID,
		Account:     res.Account.Hex(),
		ProfileRef:  ref,
		TxHash:      res.Receipt.TxHash.Hex(),
	}
	return cc.printer(cmd).Result(view, func(w io.Writer) error {
		output.Success(w, "Registered %s as %s", view.Account, role)
		if view.ProfileRef != "" {
			outln(w, "  Profile:     "+view.ProfileRef)
		}
		outln(w, "  Transaction: "+view.TxHash)
		return nil
	})
}

type profileView struct {
	Account     string                    `json:"account"`
	Registered  bool                      `json:"registered"`
	Profile     *registration.UserProfile `json:"profile,omitempty"`
	Investments *query.InvestorSummary    `json:"investments,omitempty"`
	Balance     string                    `json:"balance"`
}

func runProfile(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, connectTimeout)
	defer cancel()
	c, err := cc.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	account := c.Session.Account()
	registered, profile, _ := c.Registration.Snapshot()
	view := profileView{
		Account:     account.Hex(),
		Registered:  registered,
		Profile:     profile,
		Investments: c.Query.InvestorData(ctx, account),
		Balance:     c.Query.TokenBalance(ctx, account),
	}
	return cc.printer(cmd).Result(view, func(w io.Writer) error {
		return displayProfileText(w, view)
	})
}

func displayProfileText(w io.Writer, v profileView) error {
	pairs := []string{"Account", v.Account, "Balance", v.Balance}
	if !v.Registered || v.Profile == nil {
		pairs = append(pairs, "Registered", "no")
	} else {
		p := v.Profile
		pairs = append(pairs,
			"Registered", "yes",
			"Name", p.Name,
			"Role", p.Role,
			"Location", p.Location,
			"Projects", p.ProjectCount,
			"Raised", p.TotalRaised,
		)
		if p.Bio != "" {
			pairs = append(pairs, "Bio", p.Bio)
		}
	}
	if inv := v.Investments; inv != nil {
		pairs = append(pairs,
			"Invested", inv.TotalInvested,
			"Active", inv.ActiveInvestments,
			"Returns", inv.ClaimedReturns,
			"Pending", inv.PendingAmount,
			"Backed", strings.Join(inv.ProjectIDs, ", "),
		)
	}
	return output.NewFormatter(output.FormatText, w).Fields(pairs...)
}
