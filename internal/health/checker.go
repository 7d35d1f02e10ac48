package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/visnetotest/mesh-gateway/internal/config"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
	"github.com/visnetotest/mesh-gateway/internal/registry"
)

// Checker 周期性探测全部注册实例并更新其健康状态
type Checker struct {
	registry registry.ServiceRegistry
	prober   Prober
	interval time.Duration
	logger   config.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewChecker 创建一个新的健康检查器
func NewChecker(reg registry.ServiceRegistry, prober Prober, interval time.Duration, logger config.Logger) *Checker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Checker{
		registry: reg,
		prober:   prober,
		interval: interval,
		logger:   logger,
	}
}

// Start 启动健康检查循环，立即执行第一轮检查
func (c *Checker) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.logger.Info("健康检查器已启动", zap.Duration("interval", c.interval))

		c.CheckAll(ctx)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.logger.Info("健康检查器已停止")
				return
			case <-ticker.C:
				c.CheckAll(ctx)
			}
		}
	}()
}

// Stop 停止健康检查循环并等待进行中的检查完成
func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// CheckAll 对全部注册实例执行一轮健康检查
// 单个实例的探测失败或panic不影响其他实例
func (c *Checker) CheckAll(ctx context.Context) {
	instances, err := c.registry.ListInstances(ctx)
	if err != nil {
		c.logger.Error("获取服务实例列表失败", zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	for _, inst := range instances {
		wg.Add(1)
		go func(inst *model.ServiceInstance) {
			defer wg.Done()
			c.checkInstance(ctx, inst)
		}(inst)
	}
	wg.Wait()
}

// checkInstance 探测单个实例并记录结果
func (c *Checker) checkInstance(ctx context.Context, inst *model.ServiceInstance) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("健康检查发生panic",
				zap.String("instance_id", inst.ID),
				zap.Any("panic", r))
			inst.RecordHealthCheck(model.InstanceStatusError, inst.ResponseTime(), time.Now())
		}
	}()

	latency, err := c.prober.Probe(ctx, inst)
	latencyMs := latency.Milliseconds()
	now := time.Now()

	if err != nil {
		inst.RecordHealthCheck(model.InstanceStatusError, latencyMs, now)
		c.logger.Warn("实例健康检查失败",
			zap.String("instance_id", inst.ID),
			zap.String("service", inst.Name),
			zap.Error(err))
		return
	}

	inst.RecordHealthCheck(model.InstanceStatusActive, latencyMs, now)
	c.logger.Debug("实例健康检查成功",
		zap.String("instance_id", inst.ID),
		zap.String("service", inst.Name),
		zap.Int64("latency_ms", latencyMs))
}
