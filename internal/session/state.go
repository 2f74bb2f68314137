package session

import (
	"github.com/ethereum/go-ethereum/common"
)

// State is the wallet connection state.
type State int

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// transitions lists the legal moves out of each state.
//
//nolint:gochecknoglobals // Static transition table
var transitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Error, Disconnected},
	Connected:    {Connected, Disconnected},
	Error:        {Disconnected},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EventKind identifies a session event.
type EventKind int

// Session event kinds.
const (
	EventConnected EventKind = iota + 1
	EventAccountChanged
	EventChainChanged
	EventDisconnected
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventAccountChanged:
		return "account_changed"
	case EventChainChanged:
		return "chain_changed"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is an identity change published to session subscribers.
type Event struct {
	Kind     EventKind
	Account  common.Address
	Previous common.Address
	ChainID  uint64

	// WrongNetwork is set on chain changes away from the expected network.
	WrongNetwork bool
}

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	State   State          `json:"-"`
	Status  string         `json:"status"`
	Account common.Address `json:"account"`
	ChainID uint64         `json:"chain_id"`
	Err     error          `json:"-"`
}
