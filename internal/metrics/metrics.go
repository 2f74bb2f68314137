// Package metrics provides application-level metrics collection.
// This is a lightweight metrics foundation using atomic counters.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds application metrics using atomic counters for thread safety.
type Metrics struct {
	// Ledger RPC metrics
	ledgerCallsTotal   atomic.Int64
	ledgerErrorsTotal  atomic.Int64
	ledgerLatencyNanos atomic.Int64

	// Transaction metrics
	txSubmitted atomic.Int64
	txConfirmed atomic.Int64
	txFailed    atomic.Int64

	// Cache metrics
	cacheHits        atomic.Int64
	cacheMisses      atomic.Int64
	staleServed      atomic.Int64
	invalidations    atomic.Int64
	sharedInFlight   atomic.Int64
	gatewayProbes    atomic.Int64
	gatewayFailures  atomic.Int64
	gatewayExhausted atomic.Int64
}

// Global is the global metrics instance.
// Use this for recording metrics throughout the application.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordLedgerCall records a ledger read with its duration and success status.
func (m *Metrics) RecordLedgerCall(duration time.Duration, err error) {
	m.ledgerCallsTotal.Add(1)
	m.ledgerLatencyNanos.Add(duration.Nanoseconds())

	if err != nil {
		m.ledgerErrorsTotal.Add(1)
	}
}

// RecordTxSubmitted records a transaction handed to the ledger.
func (m *Metrics) RecordTxSubmitted() {
	m.txSubmitted.Add(1)
}

// RecordTxResult records the terminal state of a transaction.
func (m *Metrics) RecordTxResult(err error) {
	if err != nil {
		m.txFailed.Add(1)
		return
	}
	m.txConfirmed.Add(1)
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// RecordStaleServed records a stale cache entry returned after a failed refresh.
func (m *Metrics) RecordStaleServed() {
	m.staleServed.Add(1)
}

// RecordInvalidation records an explicit cache eviction.
func (m *Metrics) RecordInvalidation() {
	m.invalidations.Add(1)
}

// RecordShared records a caller that attached to an already in-flight request.
func (m *Metrics) RecordShared() {
	m.sharedInFlight.Add(1)
}

// RecordGatewayProbe records one gateway attempt.
func (m *Metrics) RecordGatewayProbe(ok bool) {
	m.gatewayProbes.Add(1)
	if !ok {
		m.gatewayFailures.Add(1)
	}
}

// RecordGatewayExhausted records a resolution where every gateway failed.
func (m *Metrics) RecordGatewayExhausted() {
	m.gatewayExhausted.Add(1)
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	LedgerCallsTotal   int64 `json:"ledger_calls_total"`
	LedgerErrorsTotal  int64 `json:"ledger_errors_total"`
	LedgerLatencyNanos int64 `json:"ledger_latency_nanos"`
	TxSubmitted        int64 `json:"tx_submitted"`
	TxConfirmed        int64 `json:"tx_confirmed"`
	TxFailed           int64 `json:"tx_failed"`
	CacheHits          int64 `json:"cache_hits"`
	CacheMisses        int64 `json:"cache_misses"`
	StaleServed        int64 `json:"stale_served"`
	Invalidations      int64 `json:"invalidations"`
	SharedInFlight     int64 `json:"shared_in_flight"`
	GatewayProbes      int64 `json:"gateway_probes"`
	GatewayFailures    int64 `json:"gateway_failures"`
	GatewayExhausted   int64 `json:"gateway_exhausted"`
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		LedgerCallsTotal:   m.ledgerCallsTotal.Load(),
		LedgerErrorsTotal:  m.ledgerErrorsTotal.Load(),
		LedgerLatencyNanos: m.ledgerLatencyNanos.Load(),
		TxSubmitted:        m.txSubmitted.Load(),
		TxConfirmed:        m.txConfirmed.Load(),
		TxFailed:           m.txFailed.Load(),
		CacheHits:          m.cacheHits.Load(),
		CacheMisses:        m.cacheMisses.Load(),
		StaleServed:        m.staleServed.Load(),
		Invalidations:      m.invalidations.Load(),
		SharedInFlight:     m.sharedInFlight.Load(),
		GatewayProbes:      m.gatewayProbes.Load(),
		GatewayFailures:    m.gatewayFailures.Load(),
		GatewayExhausted:   m.gatewayExhausted.Load(),
	}
}

// LedgerLatencyAvgMs returns the average ledger call latency in milliseconds.
// Returns 0 if no calls have been made.
func (m *Metrics) LedgerLatencyAvgMs() float64 {
	calls := m.ledgerCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	return float64(m.ledgerLatencyNanos.Load()) / float64(calls) / 1e6
}

// CacheHitRate returns the cache hit rate as a percentage (0-100).
// Returns 0 if no cache operations have occurred.
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	misses := m.cacheMisses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Reset resets all metrics to zero.
// Useful for testing.
func (m *Metrics) Reset() {
	m.ledgerCallsTotal.Store(0)
	m.ledgerErrorsTotal.Store(0)
	m.ledgerLatencyNanos.Store(0)
	m.txSubmitted.Store(0)
	m.txConfirmed.Store(0)
	m.txFailed.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.staleServed.Store(0)
	m.invalidations.Store(0)
	m.sharedInFlight.Store(0)
	m.gatewayProbes.Store(0)
	m.gatewayFailures.Store(0)
	m.gatewayExhausted.Store(0)
}
