// Package query is the read-through cache in front of the ledger. The
// project collection, individual projects, and per-account investor records
// each have their own lifetime. A failed refresh serves the last known value
// when there is one. Writes invalidate the entries they change; expiry is
// never relied on to reflect a known mutation.
package query

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/mrz1836/agrosync/internal/chain"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/ledger"
	"github.com/mrz1836/agrosync/internal/metrics"
)

const collectionKey = "projects"

// Options configures a Cache.
type Options struct {
	CollectionTTL time.Duration
	ProjectTTL    time.Duration
	AccountTTL    time.Duration
	TokenDecimals int
	Now           func() time.Time
	Logger        *config.Logger
}

// OptionsFromConfig builds cache options from configuration.
func OptionsFromConfig(c config.CacheConfig, decimals int) Options {
	return Options{
		CollectionTTL: c.CollectionTTL,
		ProjectTTL:    c.ProjectTTL,
		AccountTTL:    c.AccountTTL,
		TokenDecimals: decimals,
	}
}

type slot struct {
	val   any
	at    time.Time
	has   bool
	epoch uint64
}

// Cache caches normalized ledger reads.
type Cache struct {
	reader        ledger.Reader
	collectionTTL time.Duration
	projectTTL    time.Duration
	accountTTL    time.Duration
	decimals      int
	now           func() time.Time
	logger        *config.Logger

	group singleflight.Group

	mu     sync.Mutex
	slots  map[string]*slot
	gen    uint64
	closed bool
}

// New creates a cache reading from r.
func New(r ledger.Reader, opts Options) *Cache {
	c := &Cache{
		reader:        r,
		collectionTTL: opts.CollectionTTL,
		projectTTL:    opts.ProjectTTL,
		accountTTL:    opts.AccountTTL,
		decimals:      opts.TokenDecimals,
		now:           opts.Now,
		logger:        opts.Logger,
		slots:         make(map[string]*slot),
	}
	if c.collectionTTL <= 0 {
		c.collectionTTL = config.DefaultCollectionTTL
	}
	if c.projectTTL <= 0 {
		c.projectTTL = config.DefaultProjectTTL
	}
	if c.accountTTL <= 0 {
		c.accountTTL = config.DefaultAccountTTL
	}
	if c.decimals == 0 {
		c.decimals = config.DefaultTokenDecimals
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = config.NullLogger()
	}
	return c
}

// Projects returns every project. On failure without a cached value the
// result is empty.
func (c *Cache) Projects(ctx context.Context) []Project {
	v, ok := read(ctx, c, collectionKey, c.collectionTTL, func(ctx context.Context) ([]Project, error) {
		raw, err := c.reader.GetAllProjects(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Project, 0, len(raw))
		for i := range raw {
			out = append(out, NormalizeProject(&raw[i], c.decimals))
		}
		return out, nil
	}, cloneProjects)
	if !ok {
		return []Project{}
	}
	return v
}

// ProjectsByFarmer returns the projects created by farmer.
func (c *Cache) ProjectsByFarmer(ctx context.Context, farmer common.Address) []Project {
	var out []Project
	for _, p := range c.Projects(ctx) {
		if strings.EqualFold(p.Farmer, farmer.Hex()) {
			out = append(out, p)
		}
	}
	return out
}

// Project returns one project, or nil when it does not exist or cannot be read.
func (c *Cache) Project(ctx context.Context, id *big.Int) *Project {
	if id == nil || id.Sign() <= 0 {
		return nil
	}
	v, ok := read(ctx, c, projectKey(id), c.projectTTL, func(ctx context.Context) (*Project, error) {
		raw, err := c.reader.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		if raw.Id == nil || raw.Id.Sign() == 0 {
			return nil, errNotFound
		}
		p := NormalizeProject(raw, c.decimals)
		return &p, nil
	}, cloneProject)
	if !ok {
		return nil
	}
	return v
}

// InvestorData returns the investment record of account, or nil.
func (c *Cache) InvestorData(ctx context.Context, account common.Address) *InvestorSummary {
	v, ok := read(ctx, c, accountKey(account), c.accountTTL, func(ctx context.Context) (*InvestorSummary, error) {
		raw, err := c.reader.GetInvestorData(ctx, account)
		if err != nil {
			return nil, err
		}
		s := NormalizeInvestor(account, raw, c.decimals)
		return &s, nil
	}, cloneInvestor)
	if !ok {
		return nil
	}
	return v
}

// InvestedProjects returns the projects account has invested in.
func (c *Cache) InvestedProjects(ctx context.Context, account common.Address) []Project {
	data := c.InvestorData(ctx, account)
	if data == nil {
		return nil
	}
	out := make([]Project, 0, len(data.ProjectIDs))
	for _, id := range data.ProjectIDs {
		n, ok := new(big.Int).SetString(id, 10)
		if !ok {
			continue
		}
		if p := c.Project(ctx, n); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// PlatformStats reads the platform totals uncached. Nil on failure.
func (c *Cache) PlatformStats(ctx context.Context) *Stats {
	raw, err := c.reader.GetPlatformStats(ctx)
	if err != nil {
		c.logger.Error("query: reading platform stats: %v", err)
		return nil
	}
	return &Stats{
		TotalProjects:    chain.FormatInt(raw.TotalProjects),
		TotalUsers:       chain.FormatInt(raw.TotalUsers),
		TotalInvestments: chain.FormatInt(raw.TotalInvestments),
		TotalFunding:     chain.FormatDecimalAmount(raw.TotalFunding, c.decimals),
	}
}

// TokenBalance reads the stable token balance uncached. "0" on failure.
func (c *Cache) TokenBalance(ctx context.Context, account common.Address) string {
	v, err := c.reader.TokenBalance(ctx, account)
	if err != nil {
		c.logger.Error("query: reading token balance: %v", err)
		return "0"
	}
	return chain.FormatDecimalAmount(v, c.decimals)
}

// InvalidateCollection evicts the project collection.
func (c *Cache) InvalidateCollection() {
	c.invalidate(collectionKey)
}

// InvalidateProject evicts one project.
func (c *Cache) InvalidateProject(id *big.Int) {
	if id != nil {
		c.invalidate(projectKey(id))
	}
}

// InvalidateAccount evicts the entries scoped to account.
func (c *Cache) InvalidateAccount(account common.Address) {
	c.invalidate(accountKey(account))
}

// Clear evicts everything. Reads in flight are not stored.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.slots = make(map[string]*slot)
}

// Close clears the cache. Later reads return empty results.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.gen++
	c.slots = make(map[string]*slot)
}

func (c *Cache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		return
	}
	s.has = false
	s.val = nil
	s.epoch++
	metrics.Global.RecordInvalidation()
	c.logger.Debug("query: invalidated %s", key)
}

// slotLocked returns the slot for key, creating it. Callers hold c.mu.
func (c *Cache) slotLocked(key string) *slot {
	s, ok := c.slots[key]
	if !ok {
		s = &slot{}
		c.slots[key] = s
	}
	return s
}

var errNotFound = errors.New("project not found")

// read serves key from cache when fresh, otherwise fetches it once for all
// concurrent callers. A fetch started before an invalidation is not stored.
func read[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error), clone func(T) T) (T, bool) {
	var zero T

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, false
	}
	s := c.slotLocked(key)
	if s.has && c.now().Sub(s.at) <= ttl {
		v := s.val.(T)
		c.mu.Unlock()
		metrics.Global.RecordCacheHit()
		return clone(v), true
	}
	gen, epoch := c.gen, s.epoch
	c.mu.Unlock()
	metrics.Global.RecordCacheMiss()

	flight := fmt.Sprintf("%s#%d.%d", key, gen, epoch)
	ch := c.group.DoChan(flight, func() (any, error) {
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.slots[key]; ok && !c.closed && c.gen == gen && cur.epoch == epoch {
			cur.val, cur.at, cur.has = v, c.now(), true
		}
		return v, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	case res = <-ch:
	}
	if res.Shared {
		metrics.Global.RecordShared()
	}
	if res.Err == nil {
		return clone(res.Val.(T)), true
	}

	if errors.Is(res.Err, errNotFound) {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.slots[key]; ok && cur.has && !c.closed {
		metrics.Global.RecordStaleServed()
		c.logger.Error("query: serving stale %s after fetch failure: %v", key, res.Err)
		return clone(cur.val.(T)), true
	}
	c.logger.Error("query: fetching %s: %v", key, res.Err)
	return zero, false
}

func projectKey(id *big.Int) string {
	return "project:" + id.String()
}

func accountKey(account common.Address) string {
	return "investor:" + account.Hex()
}

func cloneProjects(p []Project) []Project {
	return slices.Clone(p)
}

func cloneProject(p *Project) *Project {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func cloneInvestor(s *InvestorSummary) *InvestorSummary {
	if s == nil {
		return nil
	}
	cp := *s
	cp.ProjectIDs = slices.Clone(s.ProjectIDs)
	return &cp
}
