package query

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/agrosync/internal/chain"
	"github.com/mrz1836/agrosync/internal/ledger"
)

// Status is the lifecycle state of a project.
type Status int

// Project states.
const (
	StatusActive Status = iota
	StatusCompleted
	StatusCancelled
	StatusUnknown
)

// String returns the display name of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(name string) (Status, bool) {
	for s := StatusActive; s < StatusUnknown; s++ {
		if strings.EqualFold(s.String(), strings.TrimSpace(name)) {
			return s, true
		}
	}
	return StatusUnknown, false
}

func statusFromLedger(v uint8) Status {
	switch v {
	case ledger.StatusActive:
		return StatusActive
	case ledger.StatusCompleted:
		return StatusCompleted
	case ledger.StatusCancelled:
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// Project is a normalized project record. Amounts are decimal strings in
// token units; counts and timestamps are base-10 strings.
type Project struct {
	ID            string `json:"id"`
	Farmer        string `json:"farmer"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	ImageRef      string `json:"image_ref"`
	DocumentsRef  string `json:"documents_ref,omitempty"`
	TargetAmount  string `json:"target_amount"`
	CurrentAmount string `json:"current_amount"`
	Progress      int    `json:"progress"`
	DurationDays  string `json:"duration_days"`
	CreatedAt     string `json:"created_at"`
	Deadline      string `json:"deadline"`
	Status        Status `json:"status"`
	Location      string `json:"location"`
	Category      string `json:"category"`
	InvestorCount string `json:"investor_count"`
	FundsReleased bool   `json:"funds_released"`
}

// InvestorSummary is the normalized investment record of one account.
type InvestorSummary struct {
	Account           string   `json:"account"`
	TotalInvested     string   `json:"total_invested"`
	ActiveInvestments string   `json:"active_investments"`
	ClaimedReturns    string   `json:"claimed_returns"`
	PendingAmount     string   `json:"pending_amount"`
	ProjectIDs        []string `json:"project_ids"`
}

// Stats are the normalized platform totals.
type Stats struct {
	TotalProjects    string `json:"total_projects"`
	TotalUsers       string `json:"total_users"`
	TotalInvestments string `json:"total_investments"`
	TotalFunding     string `json:"total_funding"`
}

// NormalizeProject converts a ledger record.
func NormalizeProject(raw *ledger.RawProject, decimals int) Project {
	return Project{
		ID:            chain.FormatInt(raw.Id),
		Farmer:        raw.Farmer.Hex(),
		Title:         raw.Title,
		Description:   raw.Description,
		ImageRef:      raw.ImageIPFSHash,
		DocumentsRef:  raw.DocumentsIPFSHash,
		TargetAmount:  chain.FormatDecimalAmount(raw.TargetAmountUSDC, decimals),
		CurrentAmount: chain.FormatDecimalAmount(raw.CurrentAmountUSDC, decimals),
		Progress:      progress(raw.CurrentAmountUSDC, raw.TargetAmountUSDC),
		DurationDays:  chain.FormatInt(raw.DurationDays),
		CreatedAt:     chain.FormatInt(raw.CreatedAt),
		Deadline:      chain.FormatInt(raw.Deadline),
		Status:        statusFromLedger(raw.Status),
		Location:      raw.Location,
		Category:      raw.Category,
		InvestorCount: chain.FormatInt(raw.InvestorCount),
		FundsReleased: raw.FundsReleased,
	}
}

// NormalizeInvestor converts a ledger investor record.
func NormalizeInvestor(account common.Address, raw *ledger.InvestorData, decimals int) InvestorSummary {
	ids := make([]string, 0, len(raw.ProjectIDs))
	for _, id := range raw.ProjectIDs {
		ids = append(ids, chain.FormatInt(id))
	}
	return InvestorSummary{
		Account:           account.Hex(),
		TotalInvested:     chain.FormatDecimalAmount(raw.TotalInvested, decimals),
		ActiveInvestments: chain.FormatInt(raw.ActiveInvestments),
		ClaimedReturns:    chain.FormatDecimalAmount(raw.ClaimedReturns, decimals),
		PendingAmount:     chain.FormatDecimalAmount(raw.PendingAmount, decimals),
		ProjectIDs:        ids,
	}
}

// progress is the funded share of the target as a whole percentage, capped at 100.
func progress(current, target *big.Int) int {
	if current == nil || target == nil || target.Sign() <= 0 {
		return 0
	}
	pct := new(big.Int).Mul(current, big.NewInt(100))
	pct.Quo(pct, target)
	if pct.Cmp(big.NewInt(100)) > 0 {
		return 100
	}
	return int(pct.Int64())
}
