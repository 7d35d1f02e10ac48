package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/visnetotest/mesh-gateway/internal/registry"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthHandler 管理服务自身的健康检查处理器
type HealthHandler struct {
	registry registry.ServiceRegistry
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(registry registry.ServiceRegistry) *HealthHandler {
	return &HealthHandler{
		registry: registry,
	}
}

// RegisterRoutes 注册API路由
func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.healthCheck)
}

// 应用启动时间
var startTime = time.Now()

// healthCheck 健康检查处理函数
func (h *HealthHandler) healthCheck(c echo.Context) error {
	// 带超时的上下文确保健康检查及时响应
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	// 检查注册中心存储是否可用
	if _, err := h.registry.ListInstances(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now(),
			Details: map[string]interface{}{
				"component": "registry",
				"error":     err.Error(),
				"uptime":    time.Since(startTime).String(),
			},
		})
	}

	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"uptime":     time.Since(startTime).String(),
			"goroutines": runtime.NumGoroutine(),
		},
	})
}
