// Package mutation runs the ledger writes: registration, project creation,
// and investment. Every write is awaited to a terminal state before the next
// step starts, and confirmed writes evict the cached reads they changed.
// Nothing here retries a write; retrying is the caller's decision.
package mutation

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/mrz1836/agrosync/internal/chain"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/ledger"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// Options holds the collaborators of a Pipeline.
type Options struct {
	Session      SessionState
	Bindings     BindingGate
	Ledger       ledger.Ledger
	Registration RegistrationRefresher
	Cache        CacheInvalidator

	// Categories are the accepted project categories. Empty accepts any.
	Categories []string

	TokenDecimals int

	// ReadTimeout bounds the balance and allowance reads made before an
	// investment is sent. Zero leaves them bound only by ctx. Confirmation
	// waits are never bounded here.
	ReadTimeout time.Duration

	// TrackApprovals remembers confirmed approvals per account and project
	// so a retried investment can report that it reused one. The allowance
	// read still decides whether to approve.
	TrackApprovals bool

	// NewOperationID overrides the operation ID source.
	NewOperationID func() string

	Logger *config.Logger
}

type approvalKey struct {
	account common.Address
	project string
}

// Pipeline executes mutations one at a time.
type Pipeline struct {
	session      SessionState
	bindings     BindingGate
	ledger       ledger.Ledger
	registration RegistrationRefresher
	cache        CacheInvalidator
	categories   []string
	decimals     int
	readTimeout  time.Duration
	track        bool
	newID        func() string
	logger       *config.Logger

	// run serializes mutations so nonces are never raced.
	run sync.Mutex

	mu        sync.Mutex
	approvals map[approvalKey]*big.Int
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		session:      opts.Session,
		bindings:     opts.Bindings,
		ledger:       opts.Ledger,
		registration: opts.Registration,
		cache:        opts.Cache,
		categories:   opts.Categories,
		decimals:     opts.TokenDecimals,
		readTimeout:  opts.ReadTimeout,
		track:        opts.TrackApprovals,
		newID:        opts.NewOperationID,
		logger:       opts.Logger,
		approvals:    make(map[approvalKey]*big.Int),
	}
	if p.decimals == 0 {
		p.decimals = config.DefaultTokenDecimals
	}
	if p.newID == nil {
		p.newID = uuid.NewString
	}
	if p.logger == nil {
		p.logger = config.NullLogger()
	}
	return p
}

// Register writes the caller's registration and refreshes registration state.
func (p *Pipeline) Register(ctx context.Context, name, profileRef string) (*RegisterResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "name is required")
	}

	p.run.Lock()
	defer p.run.Unlock()

	account, err := p.gate()
	if err != nil {
		return nil, err
	}
	op := p.newID()
	p.logger.Info("mutation %s: register account=%s", op, account.Hex())

	receipt, err := p.await(ctx, op, "register", func() (ledger.PendingTx, error) {
		return p.ledger.Register(ctx, name, profileRef)
	})
	if err != nil {
		return nil, err
	}

	if p.registration != nil {
		if rerr := p.registration.Refresh(ctx, account, p.ledger); rerr != nil {
			p.logger.Error("mutation %s: refreshing registration: %v", op, rerr)
		}
	}
	return &RegisterResult{OperationID: op, Account: account, Receipt: receipt}, nil
}

// CreateProject validates in, writes the project, and returns its ID from the
// confirmed creation event.
func (p *Pipeline) CreateProject(ctx context.Context, in ProjectInput) (*CreateResult, error) {
	args, err := validateProject(in, p.categories, p.decimals)
	if err != nil {
		return nil, err
	}

	p.run.Lock()
	defer p.run.Unlock()

	account, err := p.gate()
	if err != nil {
		return nil, err
	}
	op := p.newID()
	p.logger.Info("mutation %s: create project account=%s title=%q target=%s", op, account.Hex(), args.Title, args.TargetAmount)

	receipt, err := p.await(ctx, op, "create project", func() (ledger.PendingTx, error) {
		return p.ledger.CreateProject(ctx, args)
	})
	if err != nil {
		return nil, err
	}

	p.invalidate(func(c CacheInvalidator) { c.InvalidateCollection() })
	if receipt.ProjectID == nil {
		p.logger.Error("mutation %s: creation event not found in tx %s", op, receipt.TxHash.Hex())
	}
	return &CreateResult{OperationID: op, ProjectID: receipt.ProjectID, Receipt: receipt}, nil
}

// Invest funds project id with amount (a decimal token amount). The balance
// is checked before anything is sent. When the allowance does not cover the
// amount an approval for exactly the amount is confirmed first.
//
//nolint:gocognit,gocyclo // Sequenced approve-then-invest flow
func (p *Pipeline) Invest(ctx context.Context, id *big.Int, amount string) (*InvestResult, error) {
	if id == nil || id.Sign() <= 0 {
		return nil, invalid("project", "a valid project id is required")
	}
	value, err := ParseAmount(amount, p.decimals)
	if err != nil {
		return nil, err
	}

	p.run.Lock()
	defer p.run.Unlock()

	account, err := p.gate()
	if err != nil {
		return nil, err
	}
	op := p.newID()
	p.logger.Info("mutation %s: invest account=%s project=%s amount=%s", op, account.Hex(), id, value)

	spender, allowance, err := p.preflight(ctx, op, account, value)
	if err != nil {
		return nil, err
	}

	key := approvalKey{account: account, project: id.String()}
	result := &InvestResult{OperationID: op, ProjectID: new(big.Int).Set(id), Amount: value}

	if allowance.Cmp(value) < 0 {
		p.logger.Debug("mutation %s: allowance %s below %s, approving", op, allowance, value)
		approval, aerr := p.await(ctx, op, "approve", func() (ledger.PendingTx, error) {
			return p.ledger.Approve(ctx, spender, value)
		})
		if aerr != nil {
			return nil, approvalError(aerr)
		}
		result.Approval = approval
		if p.track {
			p.mu.Lock()
			p.approvals[key] = new(big.Int).Set(value)
			p.mu.Unlock()
		}
	} else if p.track {
		p.mu.Lock()
		prior, ok := p.approvals[key]
		p.mu.Unlock()
		if ok {
			p.logger.Info("mutation %s: reusing confirmed approval of %s", op, prior)
		}
	}

	receipt, err := p.await(ctx, op, "invest", func() (ledger.PendingTx, error) {
		return p.ledger.Invest(ctx, id, value)
	})
	if err != nil {
		return nil, err
	}
	result.Receipt = receipt

	if p.track {
		p.mu.Lock()
		delete(p.approvals, key)
		p.mu.Unlock()
	}
	p.invalidate(func(c CacheInvalidator) {
		c.InvalidateProject(id)
		c.InvalidateCollection()
		c.InvalidateAccount(account)
	})
	return result, nil
}

// TrackedApproval returns the confirmed approval recorded for account and
// project, if any.
func (p *Pipeline) TrackedApproval(account common.Address, id *big.Int) (*big.Int, bool) {
	if id == nil {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.approvals[approvalKey{account: account, project: id.String()}]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v), true
}

// preflight checks the balance covers value and returns the spender and its
// current allowance. The reads share one deadline of readTimeout.
func (p *Pipeline) preflight(ctx context.Context, op string, account common.Address, value *big.Int) (common.Address, *big.Int, error) {
	if p.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.readTimeout)
		defer cancel()
	}

	balance, err := p.ledger.TokenBalance(ctx, account)
	if err != nil {
		return common.Address{}, nil, agroerr.Wrap(err, "reading token balance")
	}
	if balance.Cmp(value) < 0 {
		p.logger.Debug("mutation %s: balance %s below %s", op, balance, value)
		return common.Address{}, nil, agroerr.WithDetails(agroerr.ErrInsufficientBalance, map[string]string{
			"balance":  chain.FormatDecimalAmount(balance, p.decimals),
			"required": chain.FormatDecimalAmount(value, p.decimals),
		})
	}

	spender, err := p.ledger.Spender()
	if err != nil {
		return common.Address{}, nil, err
	}
	allowance, err := p.ledger.TokenAllowance(ctx, account, spender)
	if err != nil {
		return common.Address{}, nil, agroerr.Wrap(err, "reading token allowance")
	}
	return spender, allowance, nil
}

// gate returns the active account when a write may proceed.
func (p *Pipeline) gate() (common.Address, error) {
	if p.session == nil || !p.session.Connected() {
		return common.Address{}, agroerr.ErrNotConnected
	}
	if p.bindings == nil || !p.bindings.Ready() {
		if p.bindings != nil && p.bindings.Err() != nil {
			return common.Address{}, agroerr.WithCause(agroerr.ErrBindingNotReady, p.bindings.Err())
		}
		return common.Address{}, agroerr.ErrBindingNotReady
	}
	if p.ledger == nil {
		return common.Address{}, agroerr.ErrBindingNotReady
	}
	return p.session.Account(), nil
}

// await submits one write and blocks until it is confirmed or reverted.
func (p *Pipeline) await(ctx context.Context, op, step string, submit func() (ledger.PendingTx, error)) (*ledger.Receipt, error) {
	tx, err := submit()
	if err != nil {
		p.logger.Error("mutation %s: %s rejected: %v", op, step, err)
		return nil, err
	}
	p.logger.Debug("mutation %s: %s submitted tx=%s", op, step, tx.Hash().Hex())

	receipt, err := tx.Wait(ctx)
	if err != nil {
		hash := tx.Hash().Hex()
		p.logger.Error("mutation %s: %s failed tx=%s: %v", op, step, hash, err)
		if agroerr.Is(err, agroerr.ErrTransactionFailed) {
			return nil, err
		}
		return nil, unconfirmed(step, hash, err)
	}
	p.logger.Debug("mutation %s: %s confirmed block=%d", op, step, receipt.BlockNumber)
	return receipt, nil
}

func (p *Pipeline) invalidate(fn func(CacheInvalidator)) {
	if p.cache != nil {
		fn(p.cache)
	}
}

// unconfirmed reports a submitted write whose wait ended before a receipt
// arrived. The transaction may still confirm.
func unconfirmed(step, hash string, cause error) error {
	return &agroerr.AgroError{
		Code:       agroerr.ErrTransactionFailed.Code,
		Message:    step + " submitted but not confirmed",
		Details:    map[string]string{"tx": hash, "step": step},
		Suggestion: "look up " + hash + " on the block explorer before retrying; it may still confirm",
		Cause:      cause,
		ExitCode:   agroerr.ErrTransactionFailed.ExitCode,
	}
}

// approvalError surfaces a failed approval as an allowance error. The
// ledger's reason stays in the chain. A rejection by the signer and an
// approval left unconfirmed pass through.
func approvalError(err error) error {
	if agroerr.Is(err, agroerr.ErrUserRejected) || isUnconfirmed(err) {
		return err
	}
	return agroerr.WithCause(agroerr.ErrInsufficientAllowance, err)
}

func isUnconfirmed(err error) bool {
	var ae *agroerr.AgroError
	if !errors.As(err, &ae) {
		return false
	}
	_, ok := ae.Details["tx"]
	return ok && ae.Code == agroerr.ErrTransactionFailed.Code
}
