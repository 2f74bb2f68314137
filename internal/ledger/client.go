package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/mrz1836/agrosync/internal/binding"
	"github.com/mrz1836/agrosync/internal/chain"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/metrics"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// DefaultPollInterval is how often pending transactions poll for a receipt.
const DefaultPollInterval = 2 * time.Second

// BindingSource hands out the current bindings. *binding.Manager satisfies it.
type BindingSource interface {
	Bindings() (*binding.Bindings, error)
}

// Options configures a Client.
type Options struct {
	Retry        chain.RetryConfig
	Limiter      *chain.RateLimiter
	Endpoint     string
	PollInterval time.Duration
	Logger       *config.Logger
}

// Client implements Ledger over contract bindings. Every call fetches the
// current bindings, so a rebind is picked up without recreating the client.
type Client struct {
	src      BindingSource
	retry    chain.RetryConfig
	limiter  *chain.RateLimiter
	endpoint string
	poll     time.Duration
	logger   *config.Logger
}

// NewClient creates a ledger client.
func NewClient(src BindingSource, opts Options) *Client {
	c := &Client{
		src:      src,
		retry:    opts.Retry,
		limiter:  opts.Limiter,
		endpoint: opts.Endpoint,
		poll:     opts.PollInterval,
		logger:   opts.Logger,
	}
	if c.retry.MaxAttempts == 0 {
		c.retry = chain.DefaultRetryConfig()
	}
	if c.endpoint == "" {
		c.endpoint = "ledger"
	}
	if c.poll <= 0 {
		c.poll = DefaultPollInterval
	}
	if c.logger == nil {
		c.logger = config.NullLogger()
	}
	return c
}

func factory(b *binding.Bindings) *binding.Contract    { return b.Factory }
func investment(b *binding.Bindings) *binding.Contract { return b.Investment }
func token(b *binding.Bindings) *binding.Contract      { return b.Token }

// IsRegistered reports whether the account has registered.
func (c *Client) IsRegistered(ctx context.Context, account common.Address) (bool, error) {
	out, err := c.call(ctx, factory, "isUserRegistered", account)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// GetProfile returns the on-chain profile record.
func (c *Client) GetProfile(ctx context.Context, account common.Address) (*RawProfile, error) {
	out, err := c.call(ctx, factory, "getUserProfile", account)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(RawProfile)).(*RawProfile), nil
}

// GetProject returns a project record. Unknown IDs come back with a zero ID.
func (c *Client) GetProject(ctx context.Context, id *big.Int) (*RawProject, error) {
	out, err := c.call(ctx, factory, "getProject", id)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(RawProject)).(*RawProject), nil
}

// GetAllProjects returns every project record.
func (c *Client) GetAllProjects(ctx context.Context) ([]RawProject, error) {
	out, err := c.call(ctx, factory, "getAllProjects")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]RawProject)).(*[]RawProject), nil
}

// GetPlatformStats returns registry-wide totals.
func (c *Client) GetPlatformStats(ctx context.Context) (*PlatformStats, error) {
	out, err := c.call(ctx, factory, "getPlatformStats")
	if err != nil {
		return nil, err
	}
	return &PlatformStats{
		TotalProjects:    bigOut(out, 0),
		TotalUsers:       bigOut(out, 1),
		TotalInvestments: bigOut(out, 2),
		TotalFunding:     bigOut(out, 3),
	}, nil
}

// GetInvestorData returns the investment record for an account.
func (c *Client) GetInvestorData(ctx context.Context, account common.Address) (*InvestorData, error) {
	out, err := c.call(ctx, investment, "getInvestorData", account)
	if err != nil {
		return nil, err
	}
	data := &InvestorData{
		TotalInvested:     bigOut(out, 0),
		ActiveInvestments: bigOut(out, 1),
		ClaimedReturns:    bigOut(out, 2),
		PendingAmount:     bigOut(out, 3),
	}
	if len(out) > 4 {
		data.ProjectIDs = *abi.ConvertType(out[4], new([]*big.Int)).(*[]*big.Int)
	}
	return data, nil
}

// TokenBalance returns the stable token balance of an account.
func (c *Client) TokenBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return bigOut(out, 0), nil
}

// TokenAllowance returns how much spender may draw from owner.
func (c *Client) TokenAllowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return bigOut(out, 0), nil
}

// Spender returns the investment manager address.
func (c *Client) Spender() (common.Address, error) {
	b, err := c.src.Bindings()
	if err != nil {
		return common.Address{}, err
	}
	if b.Investment == nil {
		return common.Address{}, notConfigured("investment manager")
	}
	return b.Investment.Address, nil
}

// Register submits a user registration.
func (c *Client) Register(ctx context.Context, name, profileRef string) (PendingTx, error) {
	return c.transact(ctx, factory, "registerUser", nil, name, profileRef)
}

// CreateProject submits a new project. The confirmed receipt carries the project ID.
func (c *Client) CreateProject(ctx context.Context, p NewProject) (PendingTx, error) {
	return c.transact(ctx, factory, "createProject", projectCreatedDecoder,
		p.Title,
		p.Description,
		p.ImageRef,
		p.DocumentsRef,
		p.TargetAmount,
		new(big.Int).SetUint64(p.DurationDays),
		p.Location,
		p.Category,
	)
}

// Approve lets spender draw amount of the stable token.
func (c *Client) Approve(ctx context.Context, spender common.Address, amount *big.Int) (PendingTx, error) {
	return c.transact(ctx, token, "approve", nil, spender, amount)
}

// Invest submits an investment into a project.
func (c *Client) Invest(ctx context.Context, projectID, amount *big.Int) (PendingTx, error) {
	return c.transact(ctx, investment, "investInProject", nil, projectID, amount)
}

func (c *Client) call(ctx context.Context, pick func(*binding.Bindings) *binding.Contract, method string, args ...any) ([]any, error) {
	b, err := c.src.Bindings()
	if err != nil {
		return nil, err
	}
	contract := pick(b)
	if contract == nil {
		return nil, notConfigured(method)
	}

	start := time.Now()
	out, err := chain.RetryWithConfig(ctx, c.retry, func() ([]any, error) {
		if err := c.limiter.Wait(ctx, c.endpoint); err != nil {
			return nil, err
		}
		var out []any
		err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
		return out, classify(err)
	})
	metrics.Global.RecordLedgerCall(time.Since(start), err)

	if err != nil {
		c.logger.Debug("ledger: %s failed: %v", method, err)
		return nil, agroerr.Wrap(err, "calling %s", method)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("calling %s: empty result", method)
	}
	return out, nil
}

func (c *Client) transact(ctx context.Context, pick func(*binding.Bindings) *binding.Contract, method string, decode receiptDecoder, args ...any) (PendingTx, error) {
	b, err := c.src.Bindings()
	if err != nil {
		return nil, err
	}
	contract := pick(b)
	if contract == nil {
		return nil, notConfigured(method)
	}

	opts := *b.Signer
	opts.Context = ctx

	tx, err := contract.Transact(&opts, method, args...)
	if err != nil {
		metrics.Global.RecordTxResult(err)
		c.logger.Error("ledger: %s rejected: %v", method, err)
		return nil, TxError(method, err)
	}
	metrics.Global.RecordTxSubmitted()
	c.logger.Info("ledger: %s submitted %s", method, tx.Hash().Hex())

	return &pendingTx{
		tx:       tx,
		method:   method,
		from:     opts.From,
		backend:  b.Backend,
		contract: contract,
		decode:   decode,
		poll:     c.poll,
		logger:   c.logger,
	}, nil
}

// classify marks transient transport failures as retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return fmt.Errorf("%w: %w", chain.ErrRateLimited, err)
		case httpErr.StatusCode >= 500:
			return chain.WrapRetryable(err)
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return chain.WrapRetryable(err)
	}
	return err
}

func bigOut(out []any, i int) *big.Int {
	if i >= len(out) {
		return new(big.Int)
	}
	v, ok := out[i].(*big.Int)
	if !ok || v == nil {
		return new(big.Int)
	}
	return v
}

func notConfigured(what string) error {
	return agroerr.WithMessage(agroerr.ErrNotConfigured, fmt.Sprintf("contract for %s is not configured", what))
}
