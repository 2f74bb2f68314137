package cli

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/mrz1836/agrosync/internal/mutation"
	"github.com/mrz1836/agrosync/internal/output"
	"github.com/mrz1836/agrosync/internal/query"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// projectsCmd is the parent command for project operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List, inspect, and create farming projects",
	Long: `List, inspect, and create the farming projects recorded on the ledger.

Reads are cached for the lifetime of the command and degrade to empty
results when the ledger cannot be reached.`,
	GroupID: groupLedger,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Long: `List projects on the ledger in creation order.

Filter by farmer with --farmer, by the connected account with --mine, or show
the projects the connected account has invested in with --invested.`,
	Example: `  agrosync projects list
  agrosync projects list --status active --category Livestock
  agrosync projects list --farmer 0x9858EfFD232B4033E47d90003D41EC34EcaEda94
  agrosync projects list --invested -o json`,
	Args: cobra.NoArgs,
	RunE: runProjectsList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var projectsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one project",
	Long: `Show every field of a project, including its resolved image URL.

Project IDs start at 1.`,
	Example: `  agrosync projects show 3
  agrosync projects show 3 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectsShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var projectsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project as the connected farmer",
	Long: `Create a crowdfunding project owned by the connected account.

The image and documents may be given as existing content identifiers with
--image and --documents, or as local files with --image-file and
--documents-file, which are pinned before the project is created. Pinning
requires pinning credentials in the configuration.

The category must be one of the known project categories.`,
	Example: `  agrosync projects create --title "Organic rice" --target 2500 --duration 90 \
    --category "Rice Cultivation" --location "Mekong Delta" --image-file field.jpg`,
	Args: cobra.NoArgs,
	RunE: runProjectsCreate,
}

// statsCmd shows platform totals.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show platform totals",
	Long: `Show the number of projects, users, and investments on the platform and the
total stable token funding raised.`,
	Example: `  agrosync stats
  agrosync stats -o json`,
	GroupID: groupLedger,
	Args:    cobra.NoArgs,
	RunE:    runStats,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	listFarmer   string
	listMine     bool
	listInvested bool
	listStatus   string
	listCategory string

	createTitle         string
	createDescription   string
	createImage         string
	createImageFile     string
	createDocuments     string
	createDocumentsFile string
	createTarget        string
	createDuration      int
	createLocation      string
	createCategory      string
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(statsCmd)
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsShowCmd)
	projectsCmd.AddCommand(projectsCreateCmd)

	projectsListCmd.Flags().StringVar(&listFarmer, "farmer", "", "only projects created by this address")
	projectsListCmd.Flags().BoolVar(&listMine, "mine", false, "only projects created by the connected account")
	projectsListCmd.Flags().BoolVar(&listInvested, "invested", false, "only projects the connected account invested in")
	projectsListCmd.Flags().StringVar(&listStatus, "status", "", "only projects in this state: active, completed, cancelled")
	projectsListCmd.Flags().StringVar(&listCategory, "category", "", "only projects in this category")
	projectsListCmd.MarkFlagsMutuallyExclusive("farmer", "mine", "invested")

	projectsCreateCmd.Flags().StringVar(&createTitle, "title", "", "project title (required)")
	projectsCreateCmd.Flags().StringVar(&createDescription, "description", "", "project description")
	projectsCreateCmd.Flags().StringVar(&createImage, "image", "", "content identifier of the project image")
	projectsCreateCmd.Flags().StringVar(&createImageFile, "image-file", "", "local image to pin as the project image")
	projectsCreateCmd.Flags().StringVar(&createDocuments, "documents", "", "content identifier of the project documents")
	projectsCreateCmd.Flags().StringVar(&createDocumentsFile, "documents-file", "", "local document to pin with the project")
	projectsCreateCmd.Flags().StringVar(&createTarget, "target", "", "funding target in stable tokens (required)")
	projectsCreateCmd.Flags().IntVar(&createDuration, "duration", 0, "funding period in days (required)")
	projectsCreateCmd.Flags().StringVar(&createLocation, "location", "", "farm location")
	projectsCreateCmd.Flags().StringVar(&createCategory, "category", "", "project category")
	projectsCreateCmd.MarkFlagsMutuallyExclusive("image", "image-file")
	projectsCreateCmd.MarkFlagsMutuallyExclusive("documents", "documents-file")
	_ = projectsCreateCmd.MarkFlagRequired("title")
	_ = projectsCreateCmd.MarkFlagRequired("target")
	_ = projectsCreateCmd.MarkFlagRequired("duration")
}

func runProjectsList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	var status query.Status
	if listStatus != "" {
		s, ok := query.ParseStatus(listStatus)
		if !ok {
			return agroerr.WithSuggestion(
				agroerr.WithDetails(agroerr.ErrInvalidInput, map[string]string{"status": listStatus}),
				"use active, completed, or cancelled")
		}
		status = s
	}
	var farmer common.Address
	if listFarmer != "" {
		a, err := parseAddress(listFarmer)
		if err != nil {
			return err
		}
		farmer = a
	}

	ctx, cancel := contextWithTimeout(cmd, connectTimeout)
	defer cancel()
	c, err := cc.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var projects []query.Project
	switch {
	case listMine:
		projects = c.Query.ProjectsByFarmer(ctx, c.Session.Account())
	case listInvested:
		projects = c.Query.InvestedProjects(ctx, c.Session.Account())
	case listFarmer != "":
		projects = c.Query.ProjectsByFarmer(ctx, farmer)
	default:
		projects = c.Query.Projects(ctx)
	}
	projects = filterProjects(projects, listStatus != "", status, listCategory)

	return cc.printer(cmd).Result(projects, func(w io.Writer) error {
		return displayProjectsText(w, projects)
	})
}

// filterProjects keeps the projects matching status (when set) and category.
func filterProjects(in []query.Project, byStatus bool, status query.Status, category string) []query.Project {
	out := make([]query.Project, 0, len(in))
	for _, p := range in {
		if byStatus && p.Status != status {
			continue
		}
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// titleWidth caps the TITLE column of the project table.
const titleWidth = 32

func displayProjectsText(w io.Writer, projects []query.Project) error {
	if len(projects) == 0 {
		outln(w, "No projects found.")
		return nil
	}
	table := output.NewTable("ID", "TITLE", "CATEGORY", "RAISED", "TARGET", "PROGRESS", "STATUS", "DEADLINE")
	table.AlignRight(0, 3, 4, 5)
	table.SetMaxWidth(1, titleWidth)
	for _, p := range projects {
		table.AddRow(p.ID, p.Title, p.Category, p.CurrentAmount, p.TargetAmount,
			strconv.Itoa(p.Progress)+"%", p.Status.String(), formatUnixDate(p.Deadline))
	}
	return table.Render(w)
}

type projectView struct {
	query.Project

	ImageURL string `json:"image_url"`
}

func runProjectsShow(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	id, err := parseProjectID(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, connectTimeout)
	defer cancel()
	c, err := cc.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	p := c.Query.Project(ctx, id)
	if p == nil {
		return agroerr.WithDetails(
			agroerr.WithMessage(agroerr.ErrNotFound, "project not found"),
			map[string]string{"id": args[0]})
	}
	view := projectView{Project: *p, ImageURL: c.Resolver.ResolveImage(ctx, p.ImageRef, p.Category)}

	return cc.printer(cmd).Result(view, func(w io.Writer) error {
		f := output.NewFormatter(output.FormatText, w)
		return f.Fields(
			"ID", view.ID,
			"Title", view.Title,
			"Farmer", view.Farmer,
			"Category", view.Category,
			"Location", view.Location,
			"Status", view.Status.String(),
			"Raised", fmt.Sprintf("%s of %s (%d%%)", view.CurrentAmount, view.TargetAmount, view.Progress),
			"Investors", view.InvestorCount,
			"Created", formatUnixDate(view.CreatedAt),
			"Deadline", formatUnixDate(view.Deadline),
			"Duration", view.DurationDays+" days",
			"Released", strconv.FormatBool(view.FundsReleased),
			"Image", view.ImageURL,
			"Documents", view.DocumentsRef,
			"Description", view.Description,
		)
	})
}

type createView struct {
	OperationID string `json:"operation_id"`
	ProjectID   string `json:"project_id"`
	TxHash      string `json:"tx_hash"`
	ImageRef    string `json:"image_ref,omitempty"`
	DocumentRef string `json:"documents_ref,omitempty"`
}

func runProjectsCreate(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	connCtx, cancel := contextWithTimeout(cmd, connectTimeout)
	defer cancel()

	c, err := cc.connect(connCtx)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := commandCtx(cmd)
	in := mutation.ProjectInput{
		Title:        createTitle,
		Description:  createDescription,
		ImageRef:     createImage,
		DocumentsRef: createDocuments,
		TargetAmount: createTarget,
		DurationDays: createDuration,
		Location:     createLocation,
		Category:     createCategory,
	}

	if createImageFile != "" {
		data, err := readUpload(createImageFile)
		if err != nil {
			return err
		}
		pinned, err := c.Pinning.PinImage(ctx, filepath.Base(createImageFile), data)
		if err != nil {
			return err
		}
		in.ImageRef = pinned.CID
	}
	if createDocumentsFile != "" {
		data, err := readUpload(createDocumentsFile)
		if err != nil {
			return err
		}
		pinned, err := c.Pinning.PinDocument(ctx, filepath.Base(createDocumentsFile), data)
		if err != nil {
			return err
		}
		in.DocumentsRef = pinned.CID
	}

	res, err := c.Mutations.CreateProject(ctx, in)
	if err != nil {
		return err
	}

	view := createView{
		OperationID: res.OperationID,
		TxHash:      res.Receipt.TxHash.Hex(),
		ImageRef:    in.ImageRef,
		DocumentRef: in.DocumentsRef,
	}
	if res.ProjectID != nil {
		view.ProjectID = res.ProjectID.String()
	}
	return cc.printer(cmd).Result(view, func(w io.Writer) error {
		if view.ProjectID != "" {
			output.Success(w, "Project %s created", view.ProjectID)
		} else {
			output.Success(w, "Project created")
		}
		outln(w, "  Transaction: "+view.TxHash)
		return nil
	})
}

func runStats(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, connectTimeout)
	defer cancel()

	c, err := cc.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	stats := c.Query.PlatformStats(ctx)
	if stats == nil {
		return agroerr.WithMessage(agroerr.ErrFetchFailed, "platform statistics are unavailable")
	}
	return cc.printer(cmd).Result(stats, func(w io.Writer) error {
		f := output.NewFormatter(output.FormatText, w)
		return f.Fields(
			"Projects", stats.TotalProjects,
			"Users", stats.TotalUsers,
			"Investments", stats.TotalInvestments,
			"Funding", stats.TotalFunding,
		)
	})
}

// parseProjectID parses a positive base-10 project ID.
func parseProjectID(s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || id.Sign() <= 0 {
		return nil, agroerr.WithDetails(
			agroerr.WithMessage(agroerr.ErrInvalidInput, "project ID must be a positive integer"),
			map[string]string{"id": s})
	}
	return id, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, agroerr.WithDetails(agroerr.ErrInvalidAddress, map[string]string{"address": s})
	}
	return common.HexToAddress(s), nil
}

// formatUnixDate renders a base-10 unix timestamp as a UTC date.
func formatUnixDate(s string) string {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return "-"
	}
	return time.Unix(sec, 0).UTC().Format("2006-01-02")
}

func readUpload(path string) ([]byte, error) {
	// #nosec G304 -- path is the user's own upload
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, agroerr.WithCause(agroerr.ErrNotFound, err)
	}
	return data, nil
}
