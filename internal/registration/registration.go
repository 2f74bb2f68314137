// Package registration tracks whether the connected account is registered
// on the ledger and assembles its profile from the on-chain record and the
// off-chain profile document the record points to.
package registration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/mrz1836/agrosync/internal/chain"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/content"
	"github.com/mrz1836/agrosync/internal/ledger"
	"github.com/mrz1836/agrosync/internal/metrics"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// DefaultRole is assigned when no profile document could be resolved.
const DefaultRole = "investor"

// Reader is the part of the ledger the cache reads.
type Reader interface {
	IsRegistered(ctx context.Context, account common.Address) (bool, error)
	GetProfile(ctx context.Context, account common.Address) (*ledger.RawProfile, error)
}

// ProfileResolver fetches off-chain profile documents.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, ref string) (*content.ProfileDocument, bool)
}

// UserProfile merges the on-chain record with the off-chain document.
type UserProfile struct {
	Address          string `json:"address"`
	Name             string `json:"name"`
	Role             string `json:"role"`
	Bio              string `json:"bio,omitempty"`
	Location         string `json:"location,omitempty"`
	Experience       string `json:"experience,omitempty"`
	RegistrationDate string `json:"registration_date,omitempty"`
	ProfileRef       string `json:"profile_ref,omitempty"`
	RegisteredAt     string `json:"registered_at"`
	ProjectCount     string `json:"project_count"`
	TotalInvested    string `json:"total_invested"`
	TotalRaised      string `json:"total_raised"`
}

// Options configures a Cache.
type Options struct {
	Resolver      ProfileResolver
	TokenDecimals int
	Logger        *config.Logger
}

// Cache holds the registration state of the current account. Checks for
// the same account share one ledger round trip, and a check for the
// account that was last resolved is a no-op until Refresh or Reset.
type Cache struct {
	resolver ProfileResolver
	decimals int
	logger   *config.Logger

	group    singleflight.Group
	checking atomic.Int32

	mu         sync.Mutex
	gen        uint64
	closed     bool
	last       common.Address
	hasLast    bool
	lastRef    string
	lastDoc    *content.ProfileDocument
	registered bool
	profile    *UserProfile
}

// New creates an empty cache.
func New(opts Options) *Cache {
	c := &Cache{
		resolver: opts.Resolver,
		decimals: opts.TokenDecimals,
		logger:   opts.Logger,
	}
	if c.decimals == 0 {
		c.decimals = config.DefaultTokenDecimals
	}
	if c.logger == nil {
		c.logger = config.NullLogger()
	}
	return c
}

// Check resolves the registration state of account. It returns without
// touching the ledger when account was the last one resolved, and joins
// the in-flight check when one is already running for it.
func (c *Cache) Check(ctx context.Context, account common.Address, r Reader) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return agroerr.ErrClosed
	}
	if c.hasLast && c.last == account {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	c.mu.Unlock()

	key := flightKey(gen, account)
	ch := c.group.DoChan(key, func() (any, error) {
		c.checking.Add(1)
		defer c.checking.Add(-1)
		return nil, c.run(context.WithoutCancel(ctx), gen, account, r)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.Global.RecordShared()
		}
		return res.Err
	}
}

// Refresh forgets the last resolved account and checks again. Used after
// a registration confirms.
func (c *Cache) Refresh(ctx context.Context, account common.Address, r Reader) error {
	c.mu.Lock()
	c.hasLast = false
	gen := c.gen
	c.mu.Unlock()

	c.group.Forget(flightKey(gen, account))
	return c.Check(ctx, account, r)
}

// Reset clears all state. Checks started before the reset are discarded
// when they complete.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.clear()
}

// Close resets the cache and rejects further checks.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.gen++
	c.clear()
}

// Snapshot returns the registration state, a copy of the profile, and
// whether a check is running.
func (c *Cache) Snapshot() (bool, *UserProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var p *UserProfile
	if c.profile != nil {
		cp := *c.profile
		p = &cp
	}
	return c.registered, p, c.checking.Load() > 0
}

// Registered reports whether the last resolved account is registered.
func (c *Cache) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

func (c *Cache) run(ctx context.Context, gen uint64, account common.Address, r Reader) error {
	registered, err := r.IsRegistered(ctx, account)
	if err != nil {
		return c.fail(gen, account, err)
	}
	if !registered {
		c.apply(gen, func() {
			c.registered = false
			c.profile = nil
			c.last, c.hasLast = account, true
		})
		c.logger.Debug("registration: %s is not registered", account.Hex())
		return nil
	}

	raw, err := r.GetProfile(ctx, account)
	if err != nil {
		return c.fail(gen, account, err)
	}

	ref := raw.ProfileIPFSHash
	c.mu.Lock()
	doc := c.lastDoc
	reuse := doc != nil && ref != "" && ref == c.lastRef
	c.mu.Unlock()

	if !reuse {
		doc = nil
		if c.resolver != nil && ref != "" {
			if d, ok := c.resolver.ResolveProfile(ctx, ref); ok {
				doc = d
			}
		}
	}

	profile := merge(account, raw, doc, c.decimals)
	c.apply(gen, func() {
		c.registered = true
		c.profile = profile
		c.last, c.hasLast = account, true
		if doc != nil {
			c.lastRef, c.lastDoc = ref, doc
		}
	})
	c.logger.Debug("registration: %s registered as %s", account.Hex(), profile.Role)
	return nil
}

func (c *Cache) fail(gen uint64, account common.Address, err error) error {
	c.apply(gen, c.clear)
	c.logger.Error("registration: check for %s failed: %v", account.Hex(), err)
	return fmt.Errorf("checking registration: %w", err)
}

// apply runs fn under the lock unless the cache was reset or closed after gen.
func (c *Cache) apply(gen uint64, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		return
	}
	fn()
}

// clear drops all state. Callers hold c.mu.
func (c *Cache) clear() {
	c.registered = false
	c.profile = nil
	c.hasLast = false
	c.last = common.Address{}
	c.lastRef = ""
	c.lastDoc = nil
}

func merge(account common.Address, raw *ledger.RawProfile, doc *content.ProfileDocument, decimals int) *UserProfile {
	p := &UserProfile{
		Address:       account.Hex(),
		Name:          raw.Name,
		Role:          DefaultRole,
		ProfileRef:    raw.ProfileIPFSHash,
		RegisteredAt:  chain.FormatInt(raw.RegisteredAt),
		ProjectCount:  chain.FormatInt(raw.ProjectCount),
		TotalInvested: chain.FormatDecimalAmount(raw.TotalInvested, decimals),
		TotalRaised:   chain.FormatDecimalAmount(raw.TotalRaised, decimals),
	}
	if doc == nil {
		return p
	}
	if role := doc.EffectiveRole(); role != "" {
		p.Role = role
	}
	if p.Name == "" {
		p.Name = doc.Name
	}
	p.Bio = doc.Bio
	p.Location = doc.Location
	p.Experience = doc.Experience
	p.RegistrationDate = doc.RegistrationDate
	return p
}

func flightKey(gen uint64, account common.Address) string {
	return fmt.Sprintf("%d:%s", gen, account.Hex())
}
