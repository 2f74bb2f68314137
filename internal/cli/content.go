package cli

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/agrosync/internal/content"
	"github.com/mrz1836/agrosync/internal/output"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// contentTimeout bounds gateway probing and pin uploads.
const contentTimeout = 2 * time.Minute

// Pin kinds.
const (
	pinKindImage    = "image"
	pinKindDocument = "document"
	pinKindJSON     = "json"
)

// contentCmd is the parent command for content gateway operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Resolve and pin content on IPFS gateways",
	Long: `Resolve project images and JSON documents through the configured IPFS
gateways, and pin local files with the configured pinning service.

Content commands do not need a signing agent.`,
	GroupID: groupContent,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var contentImageCmd = &cobra.Command{
	Use:   "image <ref>",
	Short: "Resolve an image reference to a working URL",
	Long: `Resolve an image content identifier to the first gateway URL that answers.

When the reference is not a content identifier or no gateway answers, the
placeholder image of the category is returned.`,
	Example: `  agrosync content image bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi
  agrosync content image QmXoypizjW3WknFiJnKLwHCnL72vedxjQkDDP1mXWo6uco --category Livestock`,
	Args: cobra.ExactArgs(1),
	RunE: runContentImage,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var contentGetCmd = &cobra.Command{
	Use:   "get <ref>",
	Short: "Fetch a JSON document by reference",
	Long: `Fetch a JSON document through the configured gateways, trying each in order.

The document is printed as indented JSON.`,
	Example: `  agrosync content get bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku`,
	Args:    cobra.ExactArgs(1),
	RunE:    runContentGet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var contentPinCmd = &cobra.Command{
	Use:   "pin <file>",
	Short: "Pin a local file with the pinning service",
	Long: `Upload a local file to the configured pinning service and print its content
identifier.

Images must be JPEG, PNG, WebP, or GIF between 1KB and 10MB. Documents may be
PDF, Word, or plain text up to 5MB. JSON files are pinned as documents.`,
	Example: `  agrosync content pin field.jpg
  agrosync content pin plan.pdf --kind document
  agrosync content pin profile.json --kind json`,
	Args: cobra.ExactArgs(1),
	RunE: runContentPin,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var contentCategoriesCmd = &cobra.Command{
	Use:     "categories",
	Short:   "List known project categories",
	Long:    `List the project categories and the placeholder image used for each.`,
	Example: `  agrosync content categories`,
	Args:    cobra.NoArgs,
	RunE:    runContentCategories,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	imageCategory string
	pinKind       string
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(contentCmd)
	contentCmd.AddCommand(contentImageCmd)
	contentCmd.AddCommand(contentGetCmd)
	contentCmd.AddCommand(contentPinCmd)
	contentCmd.AddCommand(contentCategoriesCmd)

	contentImageCmd.Flags().StringVar(&imageCategory, "category", "", "project category used for the placeholder image")
	contentPinCmd.Flags().StringVar(&pinKind, "kind", pinKindImage, "file kind: image, document, json")
}

func runContentImage(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, contentTimeout)
	defer cancel()

	c, err := cc.open()
	if err != nil {
		return err
	}
	defer c.Close()

	url := c.Resolver.ResolveImage(ctx, args[0], imageCategory)
	result := map[string]string{"ref": args[0], "url": url}
	return cc.printer(cmd).Result(result, func(w io.Writer) error {
		outln(w, url)
		return nil
	})
}

func runContentGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	if !content.ValidRef(args[0]) {
		return agroerr.WithDetails(
			agroerr.WithMessage(agroerr.ErrInvalidInput, "not a content reference"),
			map[string]string{"ref": args[0]})
	}
	ctx, cancel := contextWithTimeout(cmd, contentTimeout)
	defer cancel()

	c, err := cc.open()
	if err != nil {
		return err
	}
	defer c.Close()

	doc, ok := c.Resolver.ResolveJSON(ctx, args[0])
	if !ok {
		return agroerr.WithDetails(
			agroerr.WithMessage(agroerr.ErrFetchFailed, "no gateway returned the document"),
			map[string]string{"ref": args[0]})
	}
	// Documents are always printed as JSON.
	return output.NewFormatter(output.FormatJSON, cmd.OutOrStdout()).Print(doc)
}

func runContentPin(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	kind := strings.ToLower(strings.TrimSpace(pinKind))
	if kind != pinKindImage && kind != pinKindDocument && kind != pinKindJSON {
		return agroerr.WithSuggestion(
			agroerr.WithDetails(agroerr.ErrInvalidInput, map[string]string{"kind": pinKind}),
			"use --kind image, document, or json")
	}

	data, err := readUpload(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, contentTimeout)
	defer cancel()
	c, err := cc.open()
	if err != nil {
		return err
	}
	defer c.Close()

	if !c.Pinning.Ready() {
		return agroerr.WithSuggestion(content.ErrPinningNotConfigured,
			"set pinning.jwt or pinning.api_key and pinning.secret_key, or export "+
				"AGROSYNC_PINATA_JWT")
	}

	name := filepath.Base(args[0])
	var pinned *content.PinResult
	switch kind {
	case pinKindImage:
		pinned, err = c.Pinning.PinImage(ctx, name, data)
	case pinKindDocument:
		pinned, err = c.Pinning.PinDocument(ctx, name, data)
	case pinKindJSON:
		var doc any
		if jerr := json.Unmarshal(data, &doc); jerr != nil {
			return agroerr.WithCause(agroerr.ErrInvalidInput, jerr)
		}
		pinned, err = c.Pinning.PinJSON(ctx, name, doc)
	}
	if err != nil {
		return err
	}

	return cc.printer(cmd).Result(pinned, func(w io.Writer) error {
		output.Success(w, "Pinned %s", pinned.Name)
		outln(w, "  CID: "+pinned.CID)
		outln(w, "  URL: "+pinned.URL)
		return nil
	})
}

func runContentCategories(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	c, err := cc.open()
	if err != nil {
		return err
	}
	defer c.Close()

	categories := c.Resolver.Categories()
	if cc.isJSON() {
		result := make(map[string]string, len(categories))
		for _, name := range categories {
			result[name] = c.Resolver.FallbackImage(name)
		}
		return cc.printer(cmd).Print(result)
	}
	w := cmd.OutOrStdout()
	for _, name := range categories {
		outln(w, name)
	}
	return nil
}
