// Package agent provides the signing agent the wallet session talks to.
// The Agent interface follows the shape of an EIP-1193 provider: accounts are
// requested, the active chain can be switched or added, and changes are
// pushed to subscribers as events. KeyAgent is the local implementation
// backed by a mnemonic, a keystore file, or an age-encrypted key file.
package agent

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/mrz1836/agrosync/internal/config"
)

// EIP-1193 and JSON-RPC error codes reported by agents.
const (
	CodeUserRejected   = 4001
	CodeUnauthorized   = 4100
	CodeDisconnected   = 4900
	CodeUnknownChain   = 4902
	CodeRequestPending = -32002
	CodeInvalidParams  = -32602
)

// RPCError is an error carrying an EIP-1193 code.
// It satisfies go-ethereum's rpc.Error interface.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("agent error %d: %s", e.Code, e.Message)
}

// ErrorCode returns the EIP-1193 code.
func (e *RPCError) ErrorCode() int {
	return e.Code
}

// EventKind identifies an agent event.
type EventKind int

// Agent event kinds.
const (
	EventAccountsChanged EventKind = iota + 1
	EventChainChanged
	EventDisconnect
)

// String returns the event name as an EIP-1193 provider would emit it.
func (k EventKind) String() string {
	switch k {
	case EventAccountsChanged:
		return "accountsChanged"
	case EventChainChanged:
		return "chainChanged"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is a change notification pushed by the agent.
type Event struct {
	Kind     EventKind
	Accounts []common.Address
	ChainID  uint64
}

// Backend is the RPC client the agent hands out.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Agent is a signing agent.
type Agent interface {
	// RequestAccounts asks the agent to expose its accounts. It may prompt.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// Accounts returns the accounts already exposed, without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)

	// ChainID returns the active chain.
	ChainID(ctx context.Context) (uint64, error)

	// SwitchChain activates a known chain. Unknown chains fail with CodeUnknownChain.
	SwitchChain(ctx context.Context, chainID uint64) error

	// AddChain registers a network with the agent.
	AddChain(ctx context.Context, network config.NetworkConfig) error

	// SubscribeEvents delivers agent events to ch until unsubscribed.
	SubscribeEvents(ch chan<- Event) event.Subscription

	// Provider returns the RPC client for the active chain. The returned value
	// keeps its identity until the chain changes.
	Provider() Backend

	// Signer returns transaction options for the active account and chain.
	// The returned value keeps its identity until the account or chain changes.
	Signer() *bind.TransactOpts

	// SignMessage signs an EIP-191 personal message with the active account.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}
