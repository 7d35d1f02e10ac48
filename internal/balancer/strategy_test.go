package balancer

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

func newBalancerInstance(id string, weight int) *model.ServiceInstance {
	return model.NewServiceInstance(&model.RegisterInstanceRequest{
		ID:      id,
		Name:    "user-service",
		BaseURL: "http://10.0.0.1:8080",
		Weight:  weight,
	})
}

// withResponseTime 设置实例响应时间并保持active状态
func withResponseTime(inst *model.ServiceInstance, ms int64) *model.ServiceInstance {
	inst.RecordHealthCheck(model.InstanceStatusActive, ms, time.Now())
	return inst
}

// withCounts 累加实例的请求数和错误数
func withCounts(inst *model.ServiceInstance, requests, errors int) *model.ServiceInstance {
	for i := 0; i < requests; i++ {
		inst.IncRequestCount()
	}
	for i := 0; i < errors; i++ {
		inst.IncErrorCount()
	}
	return inst
}

func allStrategies() []Strategy {
	return []Strategy{
		newRoundRobinStrategy(),
		newLeastConnectionsStrategy(),
		newWeightedRoundRobinStrategy(),
		newResponseTimeStrategy(),
		newHealthScoreStrategy(),
	}
}

func TestStrategies_EmptyAndInactiveSets(t *testing.T) {
	inactive := newBalancerInstance("down-1", 1)
	inactive.SetStatus(model.InstanceStatusInactive)
	errored := newBalancerInstance("down-2", 1)
	errored.SetStatus(model.InstanceStatusError)

	for _, s := range allStrategies() {
		t.Run(s.Name(), func(t *testing.T) {
			// 空列表返回nil
			assert.Nil(t, s.Select(nil))
			assert.Nil(t, s.Select([]*model.ServiceInstance{}))

			// 没有active实例时返回nil
			assert.Nil(t, s.Select([]*model.ServiceInstance{inactive, errored}))
		})
	}
}

func TestStrategies_OnlySelectActive(t *testing.T) {
	active := newBalancerInstance("up-1", 1)
	inactive := newBalancerInstance("down-1", 1)
	inactive.SetStatus(model.InstanceStatusInactive)
	instances := []*model.ServiceInstance{inactive, active}

	for _, s := range allStrategies() {
		t.Run(s.Name(), func(t *testing.T) {
			// 多次选择都只会命中active实例
			for i := 0; i < 10; i++ {
				selected := s.Select(instances)
				require.NotNil(t, selected)
				assert.Equal(t, "up-1", selected.ID)
			}
		})
	}
}

func TestRoundRobin_CyclicOrder(t *testing.T) {
	s := newRoundRobinStrategy()
	a := newBalancerInstance("a", 1)
	b := newBalancerInstance("b", 1)
	instances := []*model.ServiceInstance{a, b}

	// 从计数器0开始，连续三次选择依次为 a, b, a
	assert.Equal(t, "a", s.Select(instances).ID)
	assert.Equal(t, "b", s.Select(instances).ID)
	assert.Equal(t, "a", s.Select(instances).ID)
}

func TestRoundRobin_EvenDistribution(t *testing.T) {
	s := newRoundRobinStrategy()
	instances := []*model.ServiceInstance{
		newBalancerInstance("a", 1),
		newBalancerInstance("b", 1),
		newBalancerInstance("c", 1),
	}

	counts := make(map[string]int)
	const rounds = 99
	for i := 0; i < rounds; i++ {
		counts[s.Select(instances).ID]++
	}

	// 99次选择在3个实例间均匀分布
	for id, count := range counts {
		assert.Equal(t, 33, count, "实例%s的选择次数应为33", id)
	}
}

func TestRoundRobin_CounterSharedAcrossServices(t *testing.T) {
	s := newRoundRobinStrategy()
	userInstances := []*model.ServiceInstance{
		newBalancerInstance("u-a", 1),
		newBalancerInstance("u-b", 1),
	}
	orderInstances := []*model.ServiceInstance{
		newBalancerInstance("o-a", 1),
		newBalancerInstance("o-b", 1),
	}

	// 计数器跨服务共享，交替调用时两个服务各自推进同一个计数器
	assert.Equal(t, "u-a", s.Select(userInstances).ID) // counter=0
	assert.Equal(t, "o-b", s.Select(orderInstances).ID) // counter=1
	assert.Equal(t, "u-a", s.Select(userInstances).ID) // counter=2
}

func TestLeastConnections_PicksMinimum(t *testing.T) {
	s := newLeastConnectionsStrategy()
	a := withCounts(newBalancerInstance("a", 1), 5, 0)
	b := withCounts(newBalancerInstance("b", 1), 2, 0)
	c := withCounts(newBalancerInstance("c", 1), 9, 0)

	selected := s.Select([]*model.ServiceInstance{a, b, c})
	require.NotNil(t, selected)
	assert.Equal(t, "b", selected.ID)
}

func TestLeastConnections_FirstEncounteredTieBreak(t *testing.T) {
	s := newLeastConnectionsStrategy()
	a := withCounts(newBalancerInstance("a", 1), 3, 0)
	b := withCounts(newBalancerInstance("b", 1), 3, 0)

	// 计数相同取列表中靠前的实例
	selected := s.Select([]*model.ServiceInstance{a, b})
	require.NotNil(t, selected)
	assert.Equal(t, "a", selected.ID)
}

func TestWeightedRoundRobin_StatisticalRatio(t *testing.T) {
	s := newWeightedRoundRobinStrategy()
	light := newBalancerInstance("light", 1)
	heavy := newBalancerInstance("heavy", 3)
	instances := []*model.ServiceInstance{light, heavy}

	counts := make(map[string]int)
	const trials = 20000
	for i := 0; i < trials; i++ {
		counts[s.Select(instances).ID]++
	}

	// 权重1:3时选择频率比应收敛到约1:3
	ratio := float64(counts["heavy"]) / float64(counts["light"])
	assert.InDelta(t, 3.0, ratio, 0.3, "权重1:3的选择频率比应接近3，实际为%.2f", ratio)
}

func TestResponseTime_PicksFastest(t *testing.T) {
	s := newResponseTimeStrategy()
	a := withResponseTime(newBalancerInstance("a", 1), 120)
	b := withResponseTime(newBalancerInstance("b", 1), 30)
	c := withResponseTime(newBalancerInstance("c", 1), 80)

	selected := s.Select([]*model.ServiceInstance{a, b, c})
	require.NotNil(t, selected)
	assert.Equal(t, "b", selected.ID)
}

func TestHealthScore_PerfectInstanceWins(t *testing.T) {
	s := newHealthScoreStrategy()

	// 响应时间0、无错误的实例得分不低于任何退化实例
	perfect := newBalancerInstance("perfect", 1)
	slow := withResponseTime(newBalancerInstance("slow", 1), 500)
	flaky := withCounts(newBalancerInstance("flaky", 1), 10, 5)

	selected := s.Select([]*model.ServiceInstance{slow, perfect, flaky})
	require.NotNil(t, selected)
	assert.Equal(t, "perfect", selected.ID)
}

func TestHealthScore_Formula(t *testing.T) {
	// 响应时间200ms、请求10次错误2次：0.6*0.8 + 0.4*0.8 = 0.80
	inst := withCounts(withResponseTime(newBalancerInstance("a", 1), 200), 10, 2)
	assert.InDelta(t, 0.80, healthScore(inst), 1e-9)

	// 无请求时错误率按0计算
	fresh := withResponseTime(newBalancerInstance("b", 1), 0)
	assert.InDelta(t, 1.0, healthScore(fresh), 1e-9)

	// 响应时间超过1秒时响应得分归零
	verySlow := withResponseTime(newBalancerInstance("c", 1), 5000)
	assert.InDelta(t, 0.4, healthScore(verySlow), 1e-9)
}

func TestHealthScore_ErrorRateDegradesScore(t *testing.T) {
	s := newHealthScoreStrategy()
	reliable := withCounts(withResponseTime(newBalancerInstance("reliable", 1), 100), 100, 0)
	flaky := withCounts(withResponseTime(newBalancerInstance("flaky", 1), 100), 100, 50)

	selected := s.Select([]*model.ServiceInstance{flaky, reliable})
	require.NotNil(t, selected)
	assert.Equal(t, "reliable", selected.ID)
}

func TestFilterActive(t *testing.T) {
	instances := make([]*model.ServiceInstance, 0, 6)
	for i := 0; i < 6; i++ {
		inst := newBalancerInstance(fmt.Sprintf("inst-%d", i), 1)
		if i%2 == 1 {
			inst.SetStatus(model.InstanceStatusError)
		}
		instances = append(instances, inst)
	}

	active := filterActive(instances)
	require.Len(t, active, 3)
	for _, inst := range active {
		assert.Equal(t, model.InstanceStatusActive, inst.Status())
	}
}
