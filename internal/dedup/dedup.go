package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pumpfunds/copytrader/pkg/logger"
)

const (
	// DefaultTTL 去重窗口时长
	DefaultTTL = 5 * time.Minute
)

// Gate 跟单去重闸门，同一(用户,基金,源签名)在TTL窗口内只放行一次。
// 推送与轮询双通道可能同时送达同一笔交易，检查与标记必须在同一临界区完成。
type Gate struct {
	mutex sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewGate(ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		seen:   make(map[string]time.Time),
		ttl:    ttl,
		ctx:    ctx,
		cancel: cancel,
	}
}

// TryAcquire 原子地检查并标记，首次见到返回true
func (g *Gate) TryAcquire(userID, fundID, signature string) bool {
	key := fmt.Sprintf("%s_%s_%s", userID, fundID, signature)

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if firstSeen, exists := g.seen[key]; exists {
		if time.Since(firstSeen) < g.ttl {
			return false
		}
	}
	g.seen[key] = time.Now()
	return true
}

// Size 当前缓存的去重条目数
func (g *Gate) Size() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.seen)
}

// Start 启动过期条目清理任务
func (g *Gate) Start() {
	go g.startCleanupTask()
}

func (g *Gate) Stop() {
	g.cancel()
}

func (g *Gate) startCleanupTask() {
	ticker := time.NewTicker(g.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			removed := g.cleanupExpired()
			if removed > 0 {
				logger.Debug("🧹 清理过期去重条目",
					logger.Int("removed", removed),
					logger.Int("remaining", g.Size()))
			}
		}
	}
}

func (g *Gate) cleanupExpired() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	now := time.Now()
	removed := 0
	for key, firstSeen := range g.seen {
		if now.Sub(firstSeen) >= g.ttl {
			delete(g.seen, key)
			removed++
		}
	}
	return removed
}
