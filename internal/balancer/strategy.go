package balancer

import (
	"math/rand"
	"sync/atomic"

	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// 内置负载均衡策略名称
const (
	StrategyRoundRobin         = "round-robin"
	StrategyLeastConnections   = "least-connections"
	StrategyWeightedRoundRobin = "weighted-round-robin"
	StrategyResponseTime       = "response-time"
	StrategyHealthScore        = "health-score"
)

// Strategy 定义实例选择策略。
// Select只在active状态的实例中选择，没有active实例时返回nil。
type Strategy interface {
	Name() string
	Select(instances []*model.ServiceInstance) *model.ServiceInstance
}

// filterActive 过滤出active状态的实例
func filterActive(instances []*model.ServiceInstance) []*model.ServiceInstance {
	var active []*model.ServiceInstance
	for _, inst := range instances {
		if inst.Status() == model.InstanceStatusActive {
			active = append(active, inst)
		}
	}
	return active
}

// roundRobinStrategy 轮询策略。
// 计数器在该策略实例的所有调用间共享且单调递增，不按服务区分，不会重置。
type roundRobinStrategy struct {
	counter uint64
}

func newRoundRobinStrategy() *roundRobinStrategy {
	return &roundRobinStrategy{}
}

func (s *roundRobinStrategy) Name() string {
	return StrategyRoundRobin
}

func (s *roundRobinStrategy) Select(instances []*model.ServiceInstance) *model.ServiceInstance {
	active := filterActive(instances)
	if len(active) == 0 {
		return nil
	}

	idx := atomic.AddUint64(&s.counter, 1) - 1
	return active[idx%uint64(len(active))]
}

// leastConnectionsStrategy 最小请求数策略。
// 使用累计请求数而不是当前连接数，计数相同时返回先注册的实例。
type leastConnectionsStrategy struct{}

func newLeastConnectionsStrategy() *leastConnectionsStrategy {
	return &leastConnectionsStrategy{}
}

func (s *leastConnectionsStrategy) Name() string {
	return StrategyLeastConnections
}

func (s *leastConnectionsStrategy) Select(instances []*model.ServiceInstance) *model.ServiceInstance {
	active := filterActive(instances)
	if len(active) == 0 {
		return nil
	}

	selected := active[0]
	minCount := selected.RequestCount()
	for _, inst := range active[1:] {
		if count := inst.RequestCount(); count < minCount {
			selected = inst
			minCount = count
		}
	}
	return selected
}

// weightedRoundRobinStrategy 加权随机策略。
// 在[0,总权重)内取随机值，沿实例列表逐个减去权重确定落点，
// 权重越大的实例被选中的概率越高。
type weightedRoundRobinStrategy struct{}

func newWeightedRoundRobinStrategy() *weightedRoundRobinStrategy {
	return &weightedRoundRobinStrategy{}
}

func (s *weightedRoundRobinStrategy) Name() string {
	return StrategyWeightedRoundRobin
}

func (s *weightedRoundRobinStrategy) Select(instances []*model.ServiceInstance) *model.ServiceInstance {
	active := filterActive(instances)
	if len(active) == 0 {
		return nil
	}

	var totalWeight int64
	for _, inst := range active {
		if inst.Weight > 0 {
			totalWeight += int64(inst.Weight)
		}
	}
	if totalWeight <= 0 {
		return active[0]
	}

	remainder := rand.Int63n(totalWeight)
	for _, inst := range active {
		if inst.Weight <= 0 {
			continue
		}
		remainder -= int64(inst.Weight)
		if remainder < 0 {
			return inst
		}
	}
	return active[len(active)-1]
}

// responseTimeStrategy 最短响应时间策略，耗时相同时返回先注册的实例
type responseTimeStrategy struct{}

func newResponseTimeStrategy() *responseTimeStrategy {
	return &responseTimeStrategy{}
}

func (s *responseTimeStrategy) Name() string {
	return StrategyResponseTime
}

func (s *responseTimeStrategy) Select(instances []*model.ServiceInstance) *model.ServiceInstance {
	active := filterActive(instances)
	if len(active) == 0 {
		return nil
	}

	selected := active[0]
	minTime := selected.ResponseTime()
	for _, inst := range active[1:] {
		if rt := inst.ResponseTime(); rt < minTime {
			selected = inst
			minTime = rt
		}
	}
	return selected
}

// healthScoreStrategy 健康评分策略。
// 评分 = 0.6*响应时间得分 + 0.4*错误率得分，得分相同时返回先注册的实例。
type healthScoreStrategy struct{}

func newHealthScoreStrategy() *healthScoreStrategy {
	return &healthScoreStrategy{}
}

func (s *healthScoreStrategy) Name() string {
	return StrategyHealthScore
}

func (s *healthScoreStrategy) Select(instances []*model.ServiceInstance) *model.ServiceInstance {
	active := filterActive(instances)
	if len(active) == 0 {
		return nil
	}

	selected := active[0]
	maxScore := healthScore(selected)
	for _, inst := range active[1:] {
		if score := healthScore(inst); score > maxScore {
			selected = inst
			maxScore = score
		}
	}
	return selected
}

// healthScore 计算实例健康评分，响应时间以1秒为满分上限，错误率取自累计计数
func healthScore(inst *model.ServiceInstance) float64 {
	responseScore := 1.0 - float64(inst.ResponseTime())/1000.0
	if responseScore < 0 {
		responseScore = 0
	}

	var errorRate float64
	if requests := inst.RequestCount(); requests > 0 {
		errorRate = float64(inst.ErrorCount()) / float64(requests)
	}
	errorScore := 1.0 - errorRate
	if errorScore < 0 {
		errorScore = 0
	}

	return 0.6*responseScore + 0.4*errorScore
}
