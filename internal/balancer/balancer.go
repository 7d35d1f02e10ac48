package balancer

import (
	"sync"
	"sync/atomic"

	"github.com/visnetotest/mesh-gateway/internal/core/apperr"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// LoadBalancer 维护一组命名策略和当前策略，并累计路由指标。
// 所有状态都属于均衡器实例本身，同一进程内可以创建多个互不干扰的均衡器。
type LoadBalancer struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	names      []string // 固定的策略名顺序
	current    Strategy

	totalRequests     int64
	totalErrors       int64
	totalResponseTime int64
	activeConnections int64
}

// NewLoadBalancer 创建一个新的负载均衡器并注册全部内置策略
func NewLoadBalancer(defaultStrategy string) (*LoadBalancer, error) {
	lb := &LoadBalancer{
		strategies: make(map[string]Strategy),
	}
	for _, s := range []Strategy{
		newRoundRobinStrategy(),
		newLeastConnectionsStrategy(),
		newWeightedRoundRobinStrategy(),
		newResponseTimeStrategy(),
		newHealthScoreStrategy(),
	} {
		lb.strategies[s.Name()] = s
		lb.names = append(lb.names, s.Name())
	}

	current, ok := lb.strategies[defaultStrategy]
	if !ok {
		return nil, apperr.NewInvalidArgument("未知的负载均衡策略: %s", defaultStrategy)
	}
	lb.current = current
	return lb, nil
}

// Select 使用当前策略从实例列表中选择一个active实例，没有可用实例时返回nil
func (lb *LoadBalancer) Select(instances []*model.ServiceInstance) *model.ServiceInstance {
	lb.mu.RLock()
	current := lb.current
	lb.mu.RUnlock()

	return current.Select(instances)
}

// SetStrategy 切换当前策略，未注册的策略名返回false且不改变当前策略
func (lb *LoadBalancer) SetStrategy(name string) bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	strategy, ok := lb.strategies[name]
	if !ok {
		return false
	}
	lb.current = strategy
	return true
}

// CurrentStrategy 返回当前策略名称
func (lb *LoadBalancer) CurrentStrategy() string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	return lb.current.Name()
}

// StrategyNames 返回全部可用策略名称
func (lb *LoadBalancer) StrategyNames() []string {
	names := make([]string, len(lb.names))
	copy(names, lb.names)
	return names
}

// UpdateMetrics 记录一次路由结果。
// instanceID保留用于将来的按实例指标，目前聚合指标中未使用。
func (lb *LoadBalancer) UpdateMetrics(instanceID string, responseTimeMs int64, isError bool) {
	atomic.AddInt64(&lb.totalRequests, 1)
	atomic.AddInt64(&lb.totalResponseTime, responseTimeMs)
	if isError {
		atomic.AddInt64(&lb.totalErrors, 1)
	}
}

// IncActiveConnections 转发开始时累加在途请求数
func (lb *LoadBalancer) IncActiveConnections() {
	atomic.AddInt64(&lb.activeConnections, 1)
}

// DecActiveConnections 转发结束时扣减在途请求数
func (lb *LoadBalancer) DecActiveConnections() {
	atomic.AddInt64(&lb.activeConnections, -1)
}

// Metrics 返回当前路由指标快照
func (lb *LoadBalancer) Metrics() *model.RoutingMetrics {
	total := atomic.LoadInt64(&lb.totalRequests)
	totalTime := atomic.LoadInt64(&lb.totalResponseTime)

	var avg float64
	if total > 0 {
		avg = float64(totalTime) / float64(total)
	}

	return &model.RoutingMetrics{
		TotalRequests:       total,
		TotalErrors:         atomic.LoadInt64(&lb.totalErrors),
		AverageResponseTime: avg,
		ActiveConnections:   atomic.LoadInt64(&lb.activeConnections),
	}
}
