package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/visnetotest/mesh-gateway/internal/core/apperr"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
	"github.com/visnetotest/mesh-gateway/internal/registry"
)

// ServiceHandler 处理服务实例管理相关的HTTP请求
type ServiceHandler struct {
	registry registry.ServiceRegistry
}

// NewServiceHandler 创建一个新的服务管理处理器
func NewServiceHandler(registry registry.ServiceRegistry) *ServiceHandler {
	return &ServiceHandler{
		registry: registry,
	}
}

// RegisterRoutes 注册API路由
func (h *ServiceHandler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api/v1")

	// 服务实例注册
	api.POST("/services", h.registerInstance)

	// 服务实例注销
	api.DELETE("/services/:instanceId", h.deregisterInstance)

	// 查询服务列表
	api.GET("/services", h.listServices)

	// 查询服务下的实例列表
	api.GET("/services/:name/instances", h.listInstances)

	// 手动设置服务健康状态
	api.PUT("/services/:name/health", h.updateHealth)
}

// 返回成功响应
func successResponse(code int, message string, data interface{}) *model.ApiResponse {
	return &model.ApiResponse{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// 返回错误响应
func errorResponse(code int, message string) *model.ApiResponse {
	return &model.ApiResponse{
		Code:    code,
		Message: message,
	}
}

// errorJSON 按错误分类返回统一的错误响应
func errorJSON(c echo.Context, message string, err error) error {
	status := apperr.HTTPStatus(err)
	return c.JSON(status, errorResponse(status, message+": "+err.Error()))
}

// registerInstance 处理服务实例注册请求
func (h *ServiceHandler) registerInstance(c echo.Context) error {
	// 解析请求参数
	req := new(model.RegisterInstanceRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "无效的请求参数: "+err.Error()))
	}

	// 调用注册中心注册实例
	resp, err := h.registry.Register(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, "注册服务实例失败", err)
	}

	// 返回成功响应
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "服务实例注册成功", resp))
}

// deregisterInstance 处理服务实例注销请求
func (h *ServiceHandler) deregisterInstance(c echo.Context) error {
	// 获取实例ID
	instanceID := c.Param("instanceId")
	if instanceID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "实例ID不能为空"))
	}

	// 调用注册中心注销实例
	if err := h.registry.Deregister(c.Request().Context(), instanceID); err != nil {
		return errorJSON(c, "注销服务实例失败", err)
	}

	// 返回成功响应
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "服务实例注销成功", nil))
}

// listServices 处理查询服务列表请求
func (h *ServiceHandler) listServices(c echo.Context) error {
	// 调用注册中心查询服务汇总
	services, err := h.registry.ListServices(c.Request().Context())
	if err != nil {
		return errorJSON(c, "查询服务列表失败", err)
	}

	// 构造响应数据
	data := map[string]interface{}{
		"services": services,
		"total":    len(services),
	}

	// 返回成功响应
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", data))
}

// listInstances 处理查询服务实例列表请求
func (h *ServiceHandler) listInstances(c echo.Context) error {
	// 获取服务名称
	name := c.Param("name")
	if name == "" {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "服务名称不能为空"))
	}

	// 调用注册中心查询实例列表
	instances, err := h.registry.Discover(c.Request().Context(), name)
	if err != nil {
		return errorJSON(c, "查询服务实例失败", err)
	}

	// 转换为快照形式返回运行时状态
	snapshots := make([]*model.InstanceSnapshot, 0, len(instances))
	for _, inst := range instances {
		snapshots = append(snapshots, inst.Snapshot())
	}

	data := map[string]interface{}{
		"service":   name,
		"instances": snapshots,
		"total":     len(snapshots),
	}

	// 返回成功响应
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", data))
}

// updateHealthRequest 手动健康状态设置请求
type updateHealthRequest struct {
	Healthy bool `json:"healthy"`
}

// updateHealth 处理手动设置服务健康状态请求
func (h *ServiceHandler) updateHealth(c echo.Context) error {
	// 获取服务名称
	name := c.Param("name")
	if name == "" {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "服务名称不能为空"))
	}

	// 解析请求参数
	req := new(updateHealthRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "无效的请求参数: "+err.Error()))
	}

	// 调用注册中心更新健康状态
	updated, err := h.registry.UpdateHealth(c.Request().Context(), name, req.Healthy)
	if err != nil {
		return errorJSON(c, "更新服务健康状态失败", err)
	}

	data := map[string]interface{}{
		"service": name,
		"healthy": req.Healthy,
		"updated": updated,
	}

	// 返回成功响应
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "健康状态更新成功", data))
}
