package content

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/mrz1836/agrosync/internal/chain"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/metrics"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

const (
	// maxJSONBody caps how much of a JSON document is read (1 MB).
	maxJSONBody = 1 << 20

	defaultCacheSize = 512
)

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	JSONGateways  []string
	ImageGateways []string
	FetchTimeout  time.Duration
	ProbeTimeout  time.Duration
	CacheSize     int
	Fallbacks     Fallbacks
	HTTPClient    *http.Client
	Limiter       *chain.RateLimiter
	Logger        *config.Logger
}

// ResolverOptionsFromConfig builds resolver options from the content section.
func ResolverOptionsFromConfig(c config.ContentConfig) ResolverOptions {
	return ResolverOptions{
		JSONGateways:  c.JSONGateways,
		ImageGateways: c.ImageGateways,
		FetchTimeout:  c.FetchTimeout,
		ProbeTimeout:  c.ProbeTimeout,
		CacheSize:     c.CacheSize,
		Fallbacks:     NewFallbacks(c.Fallbacks, c.DefaultImage),
	}
}

// Resolver turns content addresses into image URLs and JSON documents.
// Concurrent requests for the same key share one gateway walk, and results
// are cached by content address since content never changes once pinned.
type Resolver struct {
	jsonGateways  []string
	imageGateways []string
	fetchTimeout  time.Duration
	probeTimeout  time.Duration
	fallbacks     Fallbacks
	httpClient    *http.Client
	limiter       *chain.RateLimiter
	logger        *config.Logger

	images *lru.Cache[string, string]
	docs   *lru.Cache[string, map[string]any]
	group  singleflight.Group

	mu     sync.RWMutex
	closed bool
}

// NewResolver creates a resolver.
func NewResolver(opts ResolverOptions) (*Resolver, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	images, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating image cache: %w", err)
	}
	docs, err := lru.New[string, map[string]any](size)
	if err != nil {
		return nil, fmt.Errorf("creating document cache: %w", err)
	}

	r := &Resolver{
		jsonGateways:  opts.JSONGateways,
		imageGateways: opts.ImageGateways,
		fetchTimeout:  opts.FetchTimeout,
		probeTimeout:  opts.ProbeTimeout,
		fallbacks:     opts.Fallbacks,
		httpClient:    opts.HTTPClient,
		limiter:       opts.Limiter,
		logger:        opts.Logger,
		images:        images,
		docs:          docs,
	}
	if r.fetchTimeout <= 0 {
		r.fetchTimeout = config.DefaultFetchTimeout
	}
	if r.probeTimeout <= 0 {
		r.probeTimeout = config.DefaultProbeTimeout
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		}
	}
	if r.logger == nil {
		r.logger = config.NullLogger()
	}
	return r, nil
}

// FallbackImage returns the placeholder image for a category.
func (r *Resolver) FallbackImage(category string) string {
	return r.fallbacks.For(category)
}

// Categories returns the categories with a dedicated fallback image.
func (r *Resolver) Categories() []string {
	return r.fallbacks.Categories()
}

// OptimisticURL returns an image URL without touching the network: a
// previously verified URL, the most reliable gateway, or the fallback.
func (r *Resolver) OptimisticURL(ref, category string) string {
	if !ValidRef(ref) || len(r.imageGateways) == 0 {
		return r.FallbackImage(category)
	}
	if url, ok := r.images.Get(ref); ok {
		return url
	}
	return GatewayURL(r.imageGateways[0], ref)
}

// ResolveImage probes the image gateways in order and returns the first URL
// that serves the content. Invalid refs and exhausted gateways return the
// category fallback.
func (r *Resolver) ResolveImage(ctx context.Context, ref, category string) string {
	fallback := r.FallbackImage(category)
	if !ValidRef(ref) {
		return fallback
	}
	if url, ok := r.images.Get(ref); ok {
		metrics.Global.RecordCacheHit()
		return url
	}
	metrics.Global.RecordCacheMiss()

	v, err := r.share(ctx, "image\x00"+ref+"\x00"+category, func(ctx context.Context) (any, error) {
		for _, gw := range r.imageGateways {
			url := GatewayURL(gw, ref)
			ok := r.probe(ctx, url)
			metrics.Global.RecordGatewayProbe(ok)
			if ok {
				r.logger.Debug("content: image %s served by %s", short(ref), gw)
				r.store(func() { r.images.Add(ref, url) })
				return url, nil
			}
		}
		metrics.Global.RecordGatewayExhausted()
		r.logger.Error("content: all image gateways failed for %s", short(ref))
		return "", agroerr.ErrFetchFailed
	})
	if err != nil {
		return fallback
	}
	return v.(string)
}

// ResolveJSON fetches and parses a JSON document. The second result is false
// when the ref is invalid or every gateway failed.
func (r *Resolver) ResolveJSON(ctx context.Context, ref string) (map[string]any, bool) {
	if !ValidRef(ref) {
		return nil, false
	}
	if doc, ok := r.docs.Get(ref); ok {
		metrics.Global.RecordCacheHit()
		return cloneDoc(doc), true
	}
	metrics.Global.RecordCacheMiss()

	v, err := r.share(ctx, "json\x00"+ref, func(ctx context.Context) (any, error) {
		for _, gw := range r.jsonGateways {
			doc, err := r.fetchJSON(ctx, GatewayURL(gw, ref))
			metrics.Global.RecordGatewayProbe(err == nil)
			if err == nil {
				r.store(func() { r.docs.Add(ref, doc) })
				return doc, nil
			}
			r.logger.Debug("content: gateway %s failed for %s: %v", gw, short(ref), err)
		}
		metrics.Global.RecordGatewayExhausted()
		r.logger.Error("content: %v: %s", agroerr.ErrFetchFailed, short(ref))
		return nil, agroerr.ErrFetchFailed
	})
	if err != nil {
		return nil, false
	}
	return cloneDoc(v.(map[string]any)), true
}

// cloneDoc copies a decoded JSON document down to its leaves so callers
// cannot reach the cached value through nested objects or arrays.
func cloneDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDoc(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// ResolveProfile fetches a profile document.
func (r *Resolver) ResolveProfile(ctx context.Context, ref string) (*ProfileDocument, bool) {
	raw, ok := r.ResolveJSON(ctx, ref)
	if !ok {
		return nil, false
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var doc ProfileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		doc = profileFromMap(raw)
	}
	return &doc, true
}

// Clear drops every cached result.
func (r *Resolver) Clear() {
	r.images.Purge()
	r.docs.Purge()
}

// Close clears the caches. Walks still in flight finish but their results
// are no longer cached.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.Clear()
}

// share runs fn once per key. fn runs detached from the first caller's
// cancellation so one caller giving up does not fail the others; each caller
// still stops waiting when its own context ends.
func (r *Resolver) share(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := r.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.Global.RecordShared()
		}
		return res.Val, res.Err
	}
}

func (r *Resolver) store(add func()) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.closed {
		add()
	}
}

// probe reports whether url serves content within the probe timeout.
func (r *Resolver) probe(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	if err := r.limiter.Wait(ctx, url); err != nil {
		return false
	}

	status, err := r.do(ctx, http.MethodHead, url)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = r.do(ctx, http.MethodGet, url)
	}
	return err == nil && status >= 200 && status < 300
}

func (r *Resolver) do(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := r.httpClient.Do(req) //nolint:gosec // G704: URL is built from configured gateways
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func (r *Resolver) fetchJSON(ctx context.Context, url string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	if err := r.limiter.Wait(ctx, url); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req) //nolint:gosec // G704: URL is built from configured gateways
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var doc map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("empty document")
	}
	return doc, nil
}

func profileFromMap(m map[string]any) ProfileDocument {
	str := func(k string) string {
		if s, ok := m[k].(string); ok {
			return s
		}
		if v, ok := m[k]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}
	return ProfileDocument{
		Name:             str("name"),
		Role:             str("role"),
		UserType:         str("userType"),
		Bio:              str("bio"),
		Location:         str("location"),
		Experience:       str("experience"),
		RegistrationDate: str("registrationDate"),
	}
}

func short(ref string) string {
	if len(ref) <= 10 {
		return ref
	}
	return ref[:10]
}
