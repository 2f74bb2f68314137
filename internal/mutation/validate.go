package mutation

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/mrz1836/agrosync/internal/chain"
	"github.com/mrz1836/agrosync/internal/content"
	"github.com/mrz1836/agrosync/internal/ledger"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// Project field limits.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 2000
	MinDurationDays      = 1
	MaxDurationDays      = 365
)

// MaxCategoryTypoDistance is the largest edit distance for which an unknown
// category gets a suggestion.
const MaxCategoryTypoDistance = 3

// ParseAmount parses a positive decimal token amount.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	v, err := chain.ParseDecimalAmount(amount, decimals, agroerr.ErrInvalidAmount)
	if err != nil {
		return nil, agroerr.WithDetails(agroerr.ErrInvalidAmount, map[string]string{"amount": amount})
	}
	if v.Sign() <= 0 {
		return nil, agroerr.WithDetails(
			agroerr.WithMessage(agroerr.ErrInvalidAmount, "amount must be greater than zero"),
			map[string]string{"amount": amount},
		)
	}
	return v, nil
}

// validateProject checks a creation request and converts it to ledger arguments.
//
//nolint:gocyclo // Field-by-field validation
func validateProject(in ProjectInput, categories []string, decimals int) (ledger.NewProject, error) {
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return ledger.NewProject{}, invalid("title", "project title is required")
	case len(title) > MaxTitleLength:
		return ledger.NewProject{}, invalid("title", fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
	}
	if len(in.Description) > MaxDescriptionLength {
		return ledger.NewProject{}, invalid("description", fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength))
	}

	target, err := ParseAmount(in.TargetAmount, decimals)
	if err != nil {
		return ledger.NewProject{}, err
	}

	if in.DurationDays < MinDurationDays || in.DurationDays > MaxDurationDays {
		return ledger.NewProject{}, invalid("duration",
			fmt.Sprintf("duration must be between %d and %d days", MinDurationDays, MaxDurationDays))
	}

	image := strings.TrimSpace(in.ImageRef)
	if !content.ValidRef(image) {
		return ledger.NewProject{}, invalid("image", "project image must be a valid content address")
	}
	docs := strings.TrimSpace(in.DocumentsRef)
	if docs != "" && !content.ValidRef(docs) {
		return ledger.NewProject{}, invalid("documents", "documents must be a valid content address")
	}

	category, err := matchCategory(in.Category, categories)
	if err != nil {
		return ledger.NewProject{}, err
	}

	return ledger.NewProject{
		Title:        title,
		Description:  in.Description,
		ImageRef:     image,
		DocumentsRef: docs,
		TargetAmount: target,
		DurationDays: uint64(in.DurationDays), //nolint:gosec // G115: bounded above
		Location:     strings.TrimSpace(in.Location),
		Category:     category,
	}, nil
}

// matchCategory returns the canonical spelling of category. An empty known
// list accepts any non-empty category.
func matchCategory(category string, known []string) (string, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return "", invalid("category", "please select a category")
	}
	if len(known) == 0 {
		return category, nil
	}
	for _, k := range known {
		if strings.EqualFold(k, category) {
			return k, nil
		}
	}

	err := invalid("category", fmt.Sprintf("unknown category: %s", category))
	if s := SuggestCategory(category, known); s != "" {
		return "", agroerr.WithSuggestion(err, fmt.Sprintf("did you mean %q?", s))
	}
	return "", agroerr.WithSuggestion(err, "valid categories: "+strings.Join(known, ", "))
}

// SuggestCategory returns the closest known category within
// MaxCategoryTypoDistance, or "".
func SuggestCategory(input string, known []string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return ""
	}

	minDist := math.MaxInt
	var suggestion string
	for _, k := range known {
		dist := levenshtein.ComputeDistance(input, strings.ToLower(k))
		if dist < minDist {
			minDist = dist
			suggestion = k
		}
		if dist == 0 {
			return k
		}
	}

	if minDist <= MaxCategoryTypoDistance {
		return suggestion
	}
	return ""
}

func invalid(field, msg string) error {
	return agroerr.WithDetails(agroerr.WithMessage(agroerr.ErrInvalidInput, msg), map[string]string{"field": field})
}
