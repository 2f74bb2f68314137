// Package binding builds the contract bindings used by every ledger call and
// gates access to them. Bindings are keyed on the identity of the (provider,
// signer) pair handed out by the signing agent: a new pair rebuilds them, the
// same pair is a no-op. Fresh bindings are not usable until they have settled.
package binding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/agrosync/internal/agent"
	"github.com/mrz1836/agrosync/internal/config"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// State is the readiness of the bindings.
type State int

// Binding states.
const (
	Unbound State = iota
	Settling
	Ready
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Settling:
		return "settling"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Addresses are the deployed contract addresses.
type Addresses struct {
	ProjectFactory    common.Address
	InvestmentManager common.Address
	StableToken       common.Address
}

// AddressesFromConfig converts configured hex addresses. Empty values stay zero.
func AddressesFromConfig(c config.ContractsConfig) Addresses {
	var a Addresses
	if c.ProjectFactory != "" {
		a.ProjectFactory = common.HexToAddress(c.ProjectFactory)
	}
	if c.InvestmentManager != "" {
		a.InvestmentManager = common.HexToAddress(c.InvestmentManager)
	}
	if c.StableToken != "" {
		a.StableToken = common.HexToAddress(c.StableToken)
	}
	return a
}

// Contract is one bound contract with its parsed interface.
type Contract struct {
	*bind.BoundContract

	Address common.Address
	ABI     abi.ABI
}

// Bindings is a consistent set of bound contracts for one (provider, signer) pair.
// Investment and Token are nil when their address is not configured.
type Bindings struct {
	Backend    agent.Backend
	Signer     *bind.TransactOpts
	Factory    *Contract
	Investment *Contract
	Token      *Contract
}

// ProbeFunc checks that freshly built bindings can serve calls.
type ProbeFunc func(ctx context.Context, b *Bindings) error

// Options configures a Manager.
type Options struct {
	Addresses Addresses

	// SettleDelay is the grace period before bindings are marked ready.
	// The RPC client gives no signal that the signer is attached, so this is
	// an empirical wait. Zero marks bindings ready as soon as they are built.
	SettleDelay time.Duration

	// Probe, when set, runs after the settle delay and must pass before the
	// bindings become ready.
	Probe ProbeFunc

	Logger *config.Logger
}

// Manager owns the bindings and their readiness gate.
type Manager struct {
	mu       sync.Mutex
	addrs    Addresses
	settle   time.Duration
	probe    ProbeFunc
	provider agent.Backend
	signer   *bind.TransactOpts
	bindings *Bindings
	state    State
	err      error
	gen      uint64
	cancel   context.CancelFunc
	changed  chan struct{}
	closed   bool
	logger   *config.Logger
}

// NewManager creates an unbound manager.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = config.NullLogger()
	}
	return &Manager{
		addrs:   opts.Addresses,
		settle:  opts.SettleDelay,
		probe:   opts.Probe,
		changed: make(chan struct{}),
		logger:  logger,
	}
}

// Update hands the manager the current provider and signer. Bindings are
// rebuilt only when either differs by identity from the previous call.
func (m *Manager) Update(provider agent.Backend, signer *bind.TransactOpts) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if provider == m.provider && signer == m.signer {
		return
	}
	m.provider = provider
	m.signer = signer
	m.rebuild()
}

// Retry rebuilds the bindings for the current identity after a failure.
func (m *Manager) Retry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.state != Failed {
		return
	}
	m.logger.Debug("bindings: retrying construction")
	m.rebuild()
}

// rebuild constructs bindings for the current identity. Callers hold m.mu.
func (m *Manager) rebuild() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	if m.provider == nil || m.signer == nil || m.addrs.ProjectFactory == (common.Address{}) {
		m.bindings = nil
		m.setState(Unbound, nil)
		return
	}

	b, err := build(m.addrs, m.provider, m.signer)
	if err != nil {
		m.bindings = nil
		m.logger.Error("bindings: construction failed: %v", err)
		m.setState(Failed, err)
		return
	}
	m.bindings = b

	if m.settle <= 0 && m.probe == nil {
		m.setState(Ready, nil)
		m.logger.Debug("bindings: ready")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.setState(Settling, nil)
	go m.settleAndProbe(ctx, m.gen, b)
}

func (m *Manager) settleAndProbe(ctx context.Context, gen uint64, b *Bindings) {
	if m.settle > 0 {
		timer := time.NewTimer(m.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	var err error
	if m.probe != nil {
		err = m.probe(ctx, b)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || gen != m.gen {
		// identity changed while settling; the newer generation owns the state
		return
	}
	m.cancel = nil
	if err != nil {
		m.bindings = nil
		m.logger.Error("bindings: readiness probe failed: %v", err)
		m.setState(Failed, err)
		return
	}
	m.setState(Ready, nil)
	m.logger.Debug("bindings: ready")
}

// setState records the state and wakes waiters. Callers hold m.mu.
func (m *Manager) setState(s State, err error) {
	m.state = s
	m.err = err
	close(m.changed)
	m.changed = make(chan struct{})
}

// Bindings returns the bindings when ready.
func (m *Manager) Bindings() (*Bindings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Ready:
		return m.bindings, nil
	case Failed:
		return nil, agroerr.WithCause(agroerr.ErrBindingNotReady, m.err)
	default:
		return nil, agroerr.ErrBindingNotReady
	}
}

// Ready reports whether the bindings are usable.
func (m *Manager) Ready() bool {
	return m.State() == Ready
}

// State returns the readiness state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the last construction or probe failure.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// WaitReady blocks until the bindings are ready, fail, or the context ends.
// Unbound managers return ErrBindingNotReady at once.
func (m *Manager) WaitReady(ctx context.Context) error {
	for {
		m.mu.Lock()
		state, err, changed, closed := m.state, m.err, m.changed, m.closed
		m.mu.Unlock()

		switch {
		case closed:
			return agroerr.ErrClosed
		case state == Ready:
			return nil
		case state == Failed:
			return agroerr.WithCause(agroerr.ErrBindingFailed, err)
		case state == Unbound:
			return agroerr.ErrBindingNotReady
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Close drops the bindings and stops any pending settle.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.bindings = nil
	m.provider = nil
	m.signer = nil
	m.setState(Unbound, nil)
}

func build(addrs Addresses, backend agent.Backend, signer *bind.TransactOpts) (*Bindings, error) {
	factory, err := bindContract(addrs.ProjectFactory, ProjectFactoryABI, backend)
	if err != nil {
		return nil, fmt.Errorf("project factory: %w", err)
	}
	b := &Bindings{Backend: backend, Signer: signer, Factory: factory}

	if addrs.InvestmentManager != (common.Address{}) {
		if b.Investment, err = bindContract(addrs.InvestmentManager, InvestmentManagerABI, backend); err != nil {
			return nil, fmt.Errorf("investment manager: %w", err)
		}
	}
	if addrs.StableToken != (common.Address{}) {
		if b.Token, err = bindContract(addrs.StableToken, StableTokenABI, backend); err != nil {
			return nil, fmt.Errorf("stable token: %w", err)
		}
	}
	return b, nil
}

func bindContract(addr common.Address, abiJSON string, backend agent.Backend) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}
	return &Contract{
		BoundContract: bind.NewBoundContract(addr, parsed, backend, backend, backend),
		Address:       addr,
		ABI:           parsed,
	}, nil
}

// CodeProbe is a ProbeFunc that checks the factory has code deployed.
func CodeProbe(timeout time.Duration) ProbeFunc {
	return func(ctx context.Context, b *Bindings) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		code, err := b.Backend.CodeAt(ctx, b.Factory.Address, nil)
		if err != nil {
			return fmt.Errorf("reading factory code: %w", err)
		}
		if len(code) == 0 {
			return fmt.Errorf("no contract deployed at %s", b.Factory.Address.Hex())
		}
		return nil
	}
}
