package mutation

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/agrosync/internal/registration"
)

// SessionState reports whether a wallet is connected and which account is active.
type SessionState interface {
	Connected() bool
	Account() common.Address
}

// BindingGate reports whether contract bindings can be used.
type BindingGate interface {
	Ready() bool
	Err() error
}

// RegistrationRefresher re-reads registration state after a registration write.
type RegistrationRefresher interface {
	Refresh(ctx context.Context, account common.Address, r registration.Reader) error
}

// CacheInvalidator evicts cached reads made stale by a confirmed write.
type CacheInvalidator interface {
	InvalidateCollection()
	InvalidateProject(id *big.Int)
	InvalidateAccount(account common.Address)
}
