package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConcurrencyConfig() *TenantConcurrencyConfig {
	return &TenantConcurrencyConfig{
		MaxConcurrentBatches: 2,
		MaxConcurrentPerConn: 1,
		BatchTimeout:         time.Minute,
		QueueTimeout:         50 * time.Millisecond,
	}
}

func TestTenantSemaphore_TryAcquire(t *testing.T) {
	sem := NewTenantSemaphore(testConcurrencyConfig())

	result, release1, ok := sem.TryAcquire("tenant-1", "conn-a")
	require.True(t, ok)
	assert.True(t, result.Acquired)
	assert.Equal(t, 1, sem.GetActiveBatchCount("tenant-1"))
	assert.Equal(t, 1, sem.GetActiveConnectionBatchCount("conn-a"))

	// Same connection is exhausted, other connections of the tenant are not
	_, _, ok = sem.TryAcquire("tenant-1", "conn-a")
	assert.False(t, ok)
	assert.False(t, sem.CanAcceptBatch("tenant-1", "conn-a"))
	assert.True(t, sem.CanAcceptBatch("tenant-1", "conn-b"))

	_, release2, ok := sem.TryAcquire("tenant-1", "conn-b")
	require.True(t, ok)

	// Tenant limit reached
	_, _, ok = sem.TryAcquire("tenant-1", "conn-c")
	assert.False(t, ok)
	assert.False(t, sem.CanAcceptBatch("tenant-1", "conn-c"))

	// Other tenants are unaffected
	_, release3, ok := sem.TryAcquire("tenant-2", "conn-z")
	require.True(t, ok)

	release1()
	release2()
	release3()
	assert.Zero(t, sem.GetActiveBatchCount("tenant-1"))
	assert.True(t, sem.CanAcceptBatch("tenant-1", "conn-a"))
}

func TestTenantSemaphore_AcquireTimesOutInQueue(t *testing.T) {
	sem := NewTenantSemaphore(testConcurrencyConfig())

	_, release, ok := sem.TryAcquire("tenant-1", "conn-a")
	require.True(t, ok)

	start := time.Now()
	_, _, err := sem.Acquire(context.Background(), "tenant-1", "conn-a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// The failed acquire rolled back its tenant slot
	assert.Equal(t, 1, sem.GetActiveBatchCount("tenant-1"))

	release()
	_, release2, err := sem.Acquire(context.Background(), "tenant-1", "conn-a")
	require.NoError(t, err)
	release2()
	assert.Zero(t, sem.GetActiveBatchCount("tenant-1"))
}

func TestTenantSemaphore_Cleanup(t *testing.T) {
	sem := NewTenantSemaphore(testConcurrencyConfig())

	_, release, ok := sem.TryAcquire("tenant-1", "conn-a")
	require.True(t, ok)
	release()

	stats := sem.GetStats()
	assert.Equal(t, 1, stats["totalTenants"])

	sem.Cleanup()
	stats = sem.GetStats()
	assert.Equal(t, 0, stats["totalTenants"])
	assert.Equal(t, 0, stats["totalConnections"])

	// The semaphore keeps working after cleanup
	_, release, ok = sem.TryAcquire("tenant-1", "conn-a")
	require.True(t, ok)
	release()
}
