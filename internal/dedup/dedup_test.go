package dedup

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pumpfunds/copytrader/pkg/logger"
)

func TestMain(m *testing.M) {
	cfg := &logger.Config{Name: "test", Level: "error", Discard: true, DisableSentry: true, SentryLevel: "error"}
	l := cfg.Build()
	logger.SetDefault(l)
	logger.SetDefaultL1(l)
	os.Exit(m.Run())
}

func TestTryAcquireAtMostOnce(t *testing.T) {
	gate := NewGate(DefaultTTL)

	assert.True(t, gate.TryAcquire("user1", "fund1", "sig1"))
	assert.False(t, gate.TryAcquire("user1", "fund1", "sig1"))
	assert.Equal(t, 1, gate.Size())
}

func TestTryAcquireDistinctKeys(t *testing.T) {
	gate := NewGate(DefaultTTL)

	// 用户、基金、签名任一不同都是独立的去重键
	assert.True(t, gate.TryAcquire("user1", "fund1", "sig1"))
	assert.True(t, gate.TryAcquire("user2", "fund1", "sig1"))
	assert.True(t, gate.TryAcquire("user1", "fund2", "sig1"))
	assert.True(t, gate.TryAcquire("user1", "fund1", "sig2"))
	assert.Equal(t, 4, gate.Size())
}

func TestTryAcquireAfterExpiry(t *testing.T) {
	gate := NewGate(30 * time.Millisecond)

	assert.True(t, gate.TryAcquire("user1", "fund1", "sig1"))
	time.Sleep(50 * time.Millisecond)
	assert.True(t, gate.TryAcquire("user1", "fund1", "sig1"))
}

func TestTryAcquireConcurrent(t *testing.T) {
	gate := NewGate(DefaultTTL)

	var acquired int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gate.TryAcquire("user1", "fund1", "sig1") {
				atomic.AddInt64(&acquired, 1)
			}
		}()
	}
	wg.Wait()

	// 双通道同时送达同一笔交易时只能有一个协程拿到执行权
	assert.Equal(t, int64(1), acquired)
}

func TestCleanupExpired(t *testing.T) {
	gate := NewGate(30 * time.Millisecond)

	gate.TryAcquire("user1", "fund1", "sig1")
	gate.TryAcquire("user2", "fund1", "sig1")
	time.Sleep(50 * time.Millisecond)
	gate.TryAcquire("user3", "fund1", "sig2")

	removed := gate.cleanupExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, gate.Size())
}
