package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TenantConcurrencyConfig defines concurrency limits for tenants
type TenantConcurrencyConfig struct {
	MaxConcurrentBatches int           // Max concurrent batches per tenant
	MaxConcurrentPerConn int           // Max concurrent batches per connection
	BatchTimeout         time.Duration // Max duration for a single batch
	QueueTimeout         time.Duration // Max time to wait in queue
}

// DefaultConcurrencyConfig returns production-ready defaults
func DefaultConcurrencyConfig() *TenantConcurrencyConfig {
	return &TenantConcurrencyConfig{
		MaxConcurrentBatches: 3,
		MaxConcurrentPerConn: 1,
		BatchTimeout:         30 * time.Minute,
		QueueTimeout:         5 * time.Minute,
	}
}

// TenantSemaphore manages per-tenant concurrency limits
type TenantSemaphore struct {
	mu                sync.RWMutex
	tenantSems        map[string]chan struct{}
	connectionSems    map[string]chan struct{}
	config            *TenantConcurrencyConfig
	activeBatches     map[string]int // Track active batches per tenant
	activeConnBatches map[string]int // Track active batches per connection
}

// NewTenantSemaphore creates a new tenant semaphore manager
func NewTenantSemaphore(config *TenantConcurrencyConfig) *TenantSemaphore {
	if config == nil {
		config = DefaultConcurrencyConfig()
	}
	return &TenantSemaphore{
		tenantSems:        make(map[string]chan struct{}),
		connectionSems:    make(map[string]chan struct{}),
		config:            config,
		activeBatches:     make(map[string]int),
		activeConnBatches: make(map[string]int),
	}
}

// getOrCreateTenantSem gets or creates a semaphore for a tenant
func (ts *TenantSemaphore) getOrCreateTenantSem(tenantID string) chan struct{} {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if sem, exists := ts.tenantSems[tenantID]; exists {
		return sem
	}

	sem := make(chan struct{}, ts.config.MaxConcurrentBatches)
	ts.tenantSems[tenantID] = sem
	return sem
}

// getOrCreateConnectionSem gets or creates a semaphore for a connection
func (ts *TenantSemaphore) getOrCreateConnectionSem(connectionID string) chan struct{} {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if sem, exists := ts.connectionSems[connectionID]; exists {
		return sem
	}

	sem := make(chan struct{}, ts.config.MaxConcurrentPerConn)
	ts.connectionSems[connectionID] = sem
	return sem
}

// AcquireResult contains the result of an acquire attempt
type AcquireResult struct {
	Acquired     bool
	TenantSlot   bool
	ConnSlot     bool
	WaitDuration time.Duration
}

// Acquire attempts to acquire slots for both tenant and connection
// Returns a release function that must be called when done
func (ts *TenantSemaphore) Acquire(ctx context.Context, tenantID, connectionID string) (*AcquireResult, func(), error) {
	startTime := time.Now()
	result := &AcquireResult{}

	queueCtx, cancel := context.WithTimeout(ctx, ts.config.QueueTimeout)
	defer cancel()

	// Acquire tenant slot first
	tenantSem := ts.getOrCreateTenantSem(tenantID)
	select {
	case tenantSem <- struct{}{}:
		result.TenantSlot = true
	case <-queueCtx.Done():
		return result, nil, fmt.Errorf("timeout waiting for tenant concurrency slot: tenant=%s", tenantID)
	}

	// Acquire connection slot
	connSem := ts.getOrCreateConnectionSem(connectionID)
	select {
	case connSem <- struct{}{}:
		result.ConnSlot = true
	case <-queueCtx.Done():
		// Release tenant slot if connection slot failed
		<-tenantSem
		result.TenantSlot = false
		return result, nil, fmt.Errorf("timeout waiting for connection concurrency slot: connection=%s", connectionID)
	}

	ts.mu.Lock()
	ts.activeBatches[tenantID]++
	ts.activeConnBatches[connectionID]++
	ts.mu.Unlock()

	result.Acquired = true
	result.WaitDuration = time.Since(startTime)

	releaseFunc := func() {
		ts.mu.Lock()
		ts.activeBatches[tenantID]--
		ts.activeConnBatches[connectionID]--
		ts.mu.Unlock()

		<-connSem
		<-tenantSem
	}

	return result, releaseFunc, nil
}

// TryAcquire attempts to acquire slots without blocking
func (ts *TenantSemaphore) TryAcquire(tenantID, connectionID string) (*AcquireResult, func(), bool) {
	result := &AcquireResult{}

	tenantSem := ts.getOrCreateTenantSem(tenantID)
	select {
	case tenantSem <- struct{}{}:
		result.TenantSlot = true
	default:
		return result, nil, false
	}

	connSem := ts.getOrCreateConnectionSem(connectionID)
	select {
	case connSem <- struct{}{}:
		result.ConnSlot = true
	default:
		<-tenantSem
		result.TenantSlot = false
		return result, nil, false
	}

	ts.mu.Lock()
	ts.activeBatches[tenantID]++
	ts.activeConnBatches[connectionID]++
	ts.mu.Unlock()

	result.Acquired = true

	releaseFunc := func() {
		ts.mu.Lock()
		ts.activeBatches[tenantID]--
		ts.activeConnBatches[connectionID]--
		ts.mu.Unlock()

		<-connSem
		<-tenantSem
	}

	return result, releaseFunc, true
}

// GetActiveBatchCount returns the number of active batches for a tenant
func (ts *TenantSemaphore) GetActiveBatchCount(tenantID string) int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.activeBatches[tenantID]
}

// GetActiveConnectionBatchCount returns the number of active batches for a connection
func (ts *TenantSemaphore) GetActiveConnectionBatchCount(connectionID string) int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.activeConnBatches[connectionID]
}

// CanAcceptBatch checks if a new batch can be accepted without blocking
func (ts *TenantSemaphore) CanAcceptBatch(tenantID, connectionID string) bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	tenantActive := ts.activeBatches[tenantID]
	connActive := ts.activeConnBatches[connectionID]

	return tenantActive < ts.config.MaxConcurrentBatches &&
		connActive < ts.config.MaxConcurrentPerConn
}

// GetStats returns concurrency statistics
func (ts *TenantSemaphore) GetStats() map[string]interface{} {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	tenantStats := make(map[string]int)
	for k, v := range ts.activeBatches {
		tenantStats[k] = v
	}

	connStats := make(map[string]int)
	for k, v := range ts.activeConnBatches {
		connStats[k] = v
	}

	return map[string]interface{}{
		"config": map[string]interface{}{
			"maxConcurrentBatches": ts.config.MaxConcurrentBatches,
			"maxConcurrentPerConn": ts.config.MaxConcurrentPerConn,
			"batchTimeout":         ts.config.BatchTimeout.String(),
			"queueTimeout":         ts.config.QueueTimeout.String(),
		},
		"activeBatchesByTenant":     tenantStats,
		"activeBatchesByConnection": connStats,
		"totalTenants":              len(ts.tenantSems),
		"totalConnections":          len(ts.connectionSems),
	}
}

// Cleanup removes semaphores for tenants with no active batches
func (ts *TenantSemaphore) Cleanup() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for tenantID, count := range ts.activeBatches {
		if count == 0 {
			if sem, exists := ts.tenantSems[tenantID]; exists {
				close(sem)
				delete(ts.tenantSems, tenantID)
			}
			delete(ts.activeBatches, tenantID)
		}
	}

	for connID, count := range ts.activeConnBatches {
		if count == 0 {
			if sem, exists := ts.connectionSems[connID]; exists {
				close(sem)
				delete(ts.connectionSems, connID)
			}
			delete(ts.activeConnBatches, connID)
		}
	}
}
