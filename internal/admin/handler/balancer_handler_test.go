package handler

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visnetotest/mesh-gateway/internal/balancer"
)

// newBalancerEcho 构建带负载均衡管理路由的echo实例
func newBalancerEcho(t *testing.T) (*echo.Echo, *balancer.LoadBalancer) {
	t.Helper()
	lb, err := balancer.NewLoadBalancer(balancer.StrategyRoundRobin)
	require.NoError(t, err)

	e := echo.New()
	NewBalancerHandler(lb).RegisterRoutes(e)
	return e, lb
}

func TestBalancerHandler_GetStrategy(t *testing.T) {
	e, _ := newBalancerEcho(t)

	rec := doRequest(e, http.MethodGet, "/api/v1/balancer/strategy", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := parseResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, balancer.StrategyRoundRobin, data["strategy"])
}

func TestBalancerHandler_SetStrategy(t *testing.T) {
	e, lb := newBalancerEcho(t)

	// 切换到合法策略
	rec := doRequest(e, http.MethodPut, "/api/v1/balancer/strategy",
		`{"strategy":"least-connections"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, balancer.StrategyLeastConnections, lb.CurrentStrategy())

	// 未知策略名显式返回400，当前策略保持不变
	rec = doRequest(e, http.MethodPut, "/api/v1/balancer/strategy",
		`{"strategy":"no-such-strategy"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := parseResponse(t, rec)
	assert.Contains(t, resp.Message, "未知的负载均衡策略")
	assert.Equal(t, balancer.StrategyLeastConnections, lb.CurrentStrategy())

	// 策略名不能为空
	rec = doRequest(e, http.MethodPut, "/api/v1/balancer/strategy", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalancerHandler_ListStrategies(t *testing.T) {
	e, _ := newBalancerEcho(t)

	rec := doRequest(e, http.MethodGet, "/api/v1/balancer/strategies", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := parseResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, balancer.StrategyRoundRobin, data["current"])

	strategies := data["strategies"].([]interface{})
	assert.Len(t, strategies, 5)
	assert.Contains(t, strategies, balancer.StrategyWeightedRoundRobin)
}

func TestBalancerHandler_GetMetrics(t *testing.T) {
	e, lb := newBalancerEcho(t)
	lb.UpdateMetrics("inst-1", 100, false)
	lb.UpdateMetrics("inst-1", 300, true)

	rec := doRequest(e, http.MethodGet, "/api/v1/balancer/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := parseResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["total_requests"])
	assert.Equal(t, float64(1), data["total_errors"])
	assert.Equal(t, float64(200), data["average_response_time"])
	assert.Equal(t, float64(0), data["active_connections"])
}
