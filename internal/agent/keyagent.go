package agent

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"

	"github.com/mrz1836/agrosync/internal/config"
)

// Agent methods passed to the approval hook.
const (
	MethodRequestAccounts = "eth_requestAccounts"
	MethodSwitchChain     = "wallet_switchEthereumChain"
	MethodAddChain        = "wallet_addEthereumChain"
	MethodPersonalSign    = "personal_sign"
)

// ApproveFunc decides whether the user approves an agent request.
type ApproveFunc func(ctx context.Context, method string) bool

// DialFunc creates an RPC client for a URL.
type DialFunc func(ctx context.Context, rawURL string) (Backend, error)

// Options configures a KeyAgent.
type Options struct {
	// Networks are the chains the agent knows about at startup.
	Networks []config.NetworkConfig

	// ChainID is the initially active chain. Defaults to the first network.
	ChainID uint64

	// Account is the initially selected account index.
	Account int

	// Approve is consulted before prompting requests. Nil approves everything.
	Approve ApproveFunc

	// Dial creates RPC clients. Defaults to ethclient.DialContext.
	Dial DialFunc

	Logger *config.Logger
}

// KeyAgent is a local signing agent holding key material in memory.
type KeyAgent struct {
	mu       sync.Mutex
	source   KeySource
	index    int
	key      *ecdsa.PrivateKey
	address  common.Address
	networks map[uint64]config.NetworkConfig
	chainID  uint64
	unlocked bool
	provider Backend
	signer   *bind.TransactOpts

	pending atomic.Bool
	approve ApproveFunc
	dial    DialFunc
	feed    event.FeedOf[Event]
	logger  *config.Logger
}

// NewKeyAgent creates an agent over the key source.
func NewKeyAgent(src KeySource, opts Options) (*KeyAgent, error) {
	key, err := src.Key(opts.Account)
	if err != nil {
		return nil, err
	}

	a := &KeyAgent{
		source:   src,
		index:    opts.Account,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		networks: make(map[uint64]config.NetworkConfig, len(opts.Networks)),
		chainID:  opts.ChainID,
		approve:  opts.Approve,
		dial:     opts.Dial,
		logger:   opts.Logger,
	}
	for _, n := range opts.Networks {
		a.networks[n.ChainID] = n
	}
	if a.chainID == 0 && len(opts.Networks) > 0 {
		a.chainID = opts.Networks[0].ChainID
	}
	if a.dial == nil {
		a.dial = func(ctx context.Context, rawURL string) (Backend, error) {
			return ethclient.DialContext(ctx, rawURL)
		}
	}
	if a.logger == nil {
		a.logger = config.NullLogger()
	}
	return a, nil
}

// Address returns the selected account without exposing it to callers of Accounts.
func (a *KeyAgent) Address() common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.address
}

// RequestAccounts unlocks the agent after approval.
// Concurrent requests fail with CodeRequestPending.
func (a *KeyAgent) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if !a.pending.CompareAndSwap(false, true) {
		return nil, &RPCError{Code: CodeRequestPending, Message: "request already pending"}
	}
	defer a.pending.Store(false)

	if !a.approved(ctx, MethodRequestAccounts) {
		return nil, &RPCError{Code: CodeUserRejected, Message: "user rejected the request"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.unlocked = true
	a.logger.Debug("agent: accounts exposed: %s", a.address.Hex())
	return []common.Address{a.address}, nil
}

// Accounts returns the exposed accounts, empty while locked.
func (a *KeyAgent) Accounts(_ context.Context) ([]common.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.unlocked {
		return []common.Address{}, nil
	}
	return []common.Address{a.address}, nil
}

// ChainID returns the active chain.
func (a *KeyAgent) ChainID(_ context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chainID, nil
}

// SwitchChain activates a registered chain.
func (a *KeyAgent) SwitchChain(ctx context.Context, chainID uint64) error {
	a.mu.Lock()
	if _, ok := a.networks[chainID]; !ok {
		a.mu.Unlock()
		return &RPCError{
			Code:    CodeUnknownChain,
			Message: fmt.Sprintf("unrecognized chain ID %s", config.FormatChainID(chainID)),
		}
	}
	if a.chainID == chainID {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if !a.approved(ctx, MethodSwitchChain) {
		return &RPCError{Code: CodeUserRejected, Message: "user rejected the request"}
	}

	a.mu.Lock()
	a.chainID = chainID
	a.provider = nil
	a.signer = nil
	a.mu.Unlock()

	a.logger.Debug("agent: switched to chain %s", config.FormatChainID(chainID))
	a.feed.Send(Event{Kind: EventChainChanged, ChainID: chainID})
	return nil
}

// AddChain registers a network.
func (a *KeyAgent) AddChain(ctx context.Context, network config.NetworkConfig) error {
	if network.ChainID == 0 || network.RPC == "" {
		return &RPCError{Code: CodeInvalidParams, Message: "network requires a chain ID and an RPC URL"}
	}
	if !a.approved(ctx, MethodAddChain) {
		return &RPCError{Code: CodeUserRejected, Message: "user rejected the request"}
	}

	a.mu.Lock()
	a.networks[network.ChainID] = network
	a.mu.Unlock()

	a.logger.Debug("agent: added network %s (%s)", network.Name, config.FormatChainID(network.ChainID))
	return nil
}

// Networks returns the registered networks.
func (a *KeyAgent) Networks() []config.NetworkConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]config.NetworkConfig, 0, len(a.networks))
	for _, n := range a.networks {
		out = append(out, n)
	}
	return out
}

// SubscribeEvents delivers agent events to ch.
func (a *KeyAgent) SubscribeEvents(ch chan<- Event) event.Subscription {
	return a.feed.Subscribe(ch)
}

// Provider returns the RPC client for the active chain, or nil while locked.
func (a *KeyAgent) Provider() Backend {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.unlocked {
		return nil
	}
	if a.provider != nil {
		return a.provider
	}

	network, ok := a.networks[a.chainID]
	if !ok {
		return nil
	}
	client, err := a.dial(context.Background(), network.RPC)
	if err != nil {
		a.logger.Error("agent: dialing %s: %v", config.SanitizeURL(network.RPC), err)
		return nil
	}
	a.provider = client
	return a.provider
}

// Signer returns transaction options for the active account and chain, or nil while locked.
func (a *KeyAgent) Signer() *bind.TransactOpts {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.unlocked {
		return nil
	}
	if a.signer != nil {
		return a.signer
	}

	opts, err := bind.NewKeyedTransactorWithChainID(a.key, new(big.Int).SetUint64(a.chainID))
	if err != nil {
		a.logger.Error("agent: creating transactor: %v", err)
		return nil
	}
	a.signer = opts
	return a.signer
}

// SignMessage signs msg as an EIP-191 personal message.
func (a *KeyAgent) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	a.mu.Lock()
	unlocked, key := a.unlocked, a.key
	a.mu.Unlock()

	if !unlocked {
		return nil, &RPCError{Code: CodeUnauthorized, Message: "agent is locked"}
	}
	if !a.approved(ctx, MethodPersonalSign) {
		return nil, &RPCError{Code: CodeUserRejected, Message: "user rejected the request"}
	}

	sig, err := crypto.Sign(accounts.TextHash(msg), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SelectAccount switches the active account and notifies subscribers.
func (a *KeyAgent) SelectAccount(index int) error {
	key, err := a.source.Key(index)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.index = index
	a.key = key
	a.address = crypto.PubkeyToAddress(key.PublicKey)
	a.signer = nil
	unlocked, addr := a.unlocked, a.address
	a.mu.Unlock()

	if unlocked {
		a.feed.Send(Event{Kind: EventAccountsChanged, Accounts: []common.Address{addr}})
	}
	return nil
}

// Lock hides the accounts and notifies subscribers of the disconnect.
func (a *KeyAgent) Lock() {
	a.mu.Lock()
	wasUnlocked := a.unlocked
	a.unlocked = false
	a.provider = nil
	a.signer = nil
	a.mu.Unlock()

	if wasUnlocked {
		a.feed.Send(Event{Kind: EventDisconnect})
	}
}

// Close releases the RPC client.
func (a *KeyAgent) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.provider.(interface{ Close() }); ok {
		c.Close()
	}
	a.provider = nil
	a.signer = nil
	a.unlocked = false
}

func (a *KeyAgent) approved(ctx context.Context, method string) bool {
	if a.approve == nil {
		return true
	}
	return a.approve(ctx, method)
}
