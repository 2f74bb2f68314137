// Package ledger is the typed surface over the project registry, the
// investment manager, and the stable token. Reads are retried and rate
// limited; writes are submitted once and return a pending transaction that
// callers wait on until it is confirmed or reverted.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Project status values as stored on the ledger.
const (
	StatusActive    uint8 = 0
	StatusCompleted uint8 = 1
	StatusCancelled uint8 = 2
)

// RawProfile is the on-chain user record. Field order and names follow the
// contract tuple so the ABI decoder can fill it directly.
type RawProfile struct {
	IsRegistered    bool
	Name            string
	ProfileIPFSHash string
	RegisteredAt    *big.Int
	ProjectCount    *big.Int
	TotalInvested   *big.Int
	TotalRaised     *big.Int
}

// RawProject is the on-chain project record.
//
//nolint:revive // Field names must match the contract tuple
type RawProject struct {
	Id                *big.Int
	Farmer            common.Address
	Title             string
	Description       string
	ImageIPFSHash     string
	DocumentsIPFSHash string
	TargetAmountUSDC  *big.Int
	CurrentAmountUSDC *big.Int
	DurationDays      *big.Int
	CreatedAt         *big.Int
	Deadline          *big.Int
	Status            uint8
	Location          string
	Category          string
	InvestorCount     *big.Int
	FundsReleased     bool
}

// PlatformStats are the registry-wide totals.
type PlatformStats struct {
	TotalProjects    *big.Int
	TotalUsers       *big.Int
	TotalInvestments *big.Int
	TotalFunding     *big.Int
}

// InvestorData is the investment manager's record for one account.
type InvestorData struct {
	TotalInvested     *big.Int
	ActiveInvestments *big.Int
	ClaimedReturns    *big.Int
	PendingAmount     *big.Int
	ProjectIDs        []*big.Int
}

// NewProject holds the arguments of a project creation.
type NewProject struct {
	Title        string
	Description  string
	ImageRef     string
	DocumentsRef string
	TargetAmount *big.Int
	DurationDays uint64
	Location     string
	Category     string
}

// Receipt is a confirmed transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64

	// ProjectID is set when the transaction created a project.
	ProjectID *big.Int

	Raw *types.Receipt
}

// PendingTx is a submitted transaction.
type PendingTx interface {
	// Hash returns the transaction hash.
	Hash() common.Hash

	// Wait blocks until the transaction is confirmed or reverted. There is no
	// built-in timeout; only ctx ends the wait.
	Wait(ctx context.Context) (*Receipt, error)
}

// Reader is the read half of the ledger.
type Reader interface {
	IsRegistered(ctx context.Context, account common.Address) (bool, error)
	GetProfile(ctx context.Context, account common.Address) (*RawProfile, error)
	GetProject(ctx context.Context, id *big.Int) (*RawProject, error)
	GetAllProjects(ctx context.Context) ([]RawProject, error)
	GetPlatformStats(ctx context.Context) (*PlatformStats, error)
	GetInvestorData(ctx context.Context, account common.Address) (*InvestorData, error)
	TokenBalance(ctx context.Context, account common.Address) (*big.Int, error)
	TokenAllowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
}

// Writer is the write half of the ledger.
type Writer interface {
	Register(ctx context.Context, name, profileRef string) (PendingTx, error)
	CreateProject(ctx context.Context, p NewProject) (PendingTx, error)
	Approve(ctx context.Context, spender common.Address, amount *big.Int) (PendingTx, error)
	Invest(ctx context.Context, projectID, amount *big.Int) (PendingTx, error)
}

// Ledger is the full ledger surface.
type Ledger interface {
	Reader
	Writer

	// Spender is the address investments are paid to, which needs the token allowance.
	Spender() (common.Address, error)
}
