package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cleaner 过期票据后台清理器
// 独立周期调度，与请求线程完全解耦；清扫只移除逻辑上已过期的记录，
// 幂等且可与正常流量并发运行。显式 Start/Stop 由进程生命周期持有
type Cleaner struct {
	registry TicketRegistry
	interval time.Duration
	log      *zap.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewCleaner 创建过期票据清理器
func NewCleaner(registry TicketRegistry, interval time.Duration, log *zap.Logger) *Cleaner {
	return &Cleaner{
		registry: registry,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Start 启动清理循环
func (c *Cleaner) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop 停止清理循环并等待当前清扫结束
func (c *Cleaner) Stop() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}

// sweep 执行一轮清扫
func (c *Cleaner) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	count, err := c.registry.DeleteExpired(ctx)
	if err != nil {
		c.log.Warn("过期票据清扫失败", zap.Error(err))
		return
	}
	if count > 0 {
		c.log.Info("过期票据清扫完成", zap.Int("count", count))
	}
}
