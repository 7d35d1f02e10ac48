package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/visnetotest/mesh-gateway/internal/balancer"
)

// BalancerHandler 处理负载均衡器管理相关的HTTP请求
type BalancerHandler struct {
	balancer *balancer.LoadBalancer
}

// NewBalancerHandler 创建一个新的负载均衡管理处理器
func NewBalancerHandler(lb *balancer.LoadBalancer) *BalancerHandler {
	return &BalancerHandler{
		balancer: lb,
	}
}

// RegisterRoutes 注册API路由
func (h *BalancerHandler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api/v1/balancer")

	// 查询当前策略
	api.GET("/strategy", h.getStrategy)

	// 切换策略
	api.PUT("/strategy", h.setStrategy)

	// 查询可用策略列表
	api.GET("/strategies", h.listStrategies)

	// 查询路由指标
	api.GET("/metrics", h.getMetrics)
}

// getStrategy 处理查询当前策略请求
func (h *BalancerHandler) getStrategy(c echo.Context) error {
	data := map[string]interface{}{
		"strategy": h.balancer.CurrentStrategy(),
	}
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", data))
}

// setStrategyRequest 策略切换请求
type setStrategyRequest struct {
	Strategy string `json:"strategy"`
}

// setStrategy 处理切换策略请求，未知策略名返回400
func (h *BalancerHandler) setStrategy(c echo.Context) error {
	req := new(setStrategyRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "无效的请求参数: "+err.Error()))
	}
	if req.Strategy == "" {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "策略名称不能为空"))
	}

	// 未知策略名显式拒绝，不做静默回退
	if !h.balancer.SetStrategy(req.Strategy) {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "未知的负载均衡策略: "+req.Strategy))
	}

	data := map[string]interface{}{
		"strategy": h.balancer.CurrentStrategy(),
	}
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "策略切换成功", data))
}

// listStrategies 处理查询可用策略列表请求
func (h *BalancerHandler) listStrategies(c echo.Context) error {
	data := map[string]interface{}{
		"strategies": h.balancer.StrategyNames(),
		"current":    h.balancer.CurrentStrategy(),
	}
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", data))
}

// getMetrics 处理查询路由指标请求
func (h *BalancerHandler) getMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", h.balancer.Metrics()))
}
