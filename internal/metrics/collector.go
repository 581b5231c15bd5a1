package metrics

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Collector 指标收集器
// 定期采集数据库连接数、打开的会话数和 WebSocket 订阅者数
type Collector struct {
	db       *gorm.DB
	sessions func() int
	clients  func() int
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	started  bool
	mu       sync.Mutex
}

// NewCollector 创建指标收集器,sessions 和 clients 可以为 nil
func NewCollector(db *gorm.DB, sessions, clients func() int, interval time.Duration) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		db:       db,
		sessions: sessions,
		clients:  clients,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	c.once.Do(func() {
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()
		go c.collect()
	})
}

// Stop 停止指标收集器
// 未启动时直接返回
func (c *Collector) Stop() {
	c.cancel()
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.done
	}
}

// collect 定期收集指标
func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.db != nil {
				_ = UpdateDatabaseConnections(c.db)
			}
			if c.sessions != nil {
				SetActiveSessions(c.sessions())
			}
			if c.clients != nil {
				SetWebSocketClients(c.clients())
			}
		}
	}
}
