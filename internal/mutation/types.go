package mutation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/agrosync/internal/ledger"
)

// ProjectInput is a project creation request as entered by the user.
type ProjectInput struct {
	Title        string
	Description  string
	ImageRef     string
	DocumentsRef string
	TargetAmount string // Decimal token amount, e.g. "2500" or "12.5"
	DurationDays int
	Location     string
	Category     string
}

// RegisterResult is the outcome of a confirmed registration.
type RegisterResult struct {
	OperationID string
	Account     common.Address
	Receipt     *ledger.Receipt
}

// CreateResult is the outcome of a confirmed project creation.
type CreateResult struct {
	OperationID string
	ProjectID   *big.Int
	Receipt     *ledger.Receipt
}

// InvestResult is the outcome of a confirmed investment.
type InvestResult struct {
	OperationID string
	ProjectID   *big.Int
	Amount      *big.Int

	// Approval is nil when the existing allowance already covered Amount.
	Approval *ledger.Receipt
	Receipt  *ledger.Receipt
}
