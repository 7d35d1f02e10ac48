package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/visnetotest/mesh-gateway/internal/core/model"
	"github.com/visnetotest/mesh-gateway/internal/workflow"
)

// ExecutionHandler 处理工作流执行记录查询相关的HTTP请求
type ExecutionHandler struct {
	tracker workflow.ExecutionTracker
}

// NewExecutionHandler 创建一个新的执行记录查询处理器
func NewExecutionHandler(tracker workflow.ExecutionTracker) *ExecutionHandler {
	return &ExecutionHandler{
		tracker: tracker,
	}
}

// RegisterRoutes 注册API路由
func (h *ExecutionHandler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api/v1/executions")

	// 查询执行记录列表
	api.GET("", h.listExecutions)

	// 组合条件搜索
	api.GET("/search", h.searchExecutions)

	// 查询执行指标
	api.GET("/metrics", h.getMetrics)

	// 查询仪表盘统计
	api.GET("/stats", h.getStats)

	// 查询失败的执行记录
	api.GET("/errors", h.listErrors)

	// 查询按天聚合的执行数量
	api.GET("/timeseries", h.getTimeSeries)

	// 查询执行详情
	api.GET("/:id", h.getExecution)
}

// executionStatuses 合法的执行状态集合
var executionStatuses = map[model.ExecutionStatus]bool{
	model.ExecutionStatusPending:   true,
	model.ExecutionStatusRunning:   true,
	model.ExecutionStatusCompleted: true,
	model.ExecutionStatusFailed:    true,
	model.ExecutionStatusCancelled: true,
	model.ExecutionStatusPaused:    true,
}

// getExecution 处理查询执行详情请求
func (h *ExecutionHandler) getExecution(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "执行ID不能为空"))
	}

	exec, err := h.tracker.Get(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, "查询执行记录失败", err)
	}

	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", exec))
}

// listExecutions 处理查询执行记录列表请求，
// 支持workflowId/status/tenantId/active过滤条件
func (h *ExecutionHandler) listExecutions(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.QueryParam("workflowId")
	tenantID := c.QueryParam("tenantId")
	status := model.ExecutionStatus(c.QueryParam("status"))

	if status != "" && !executionStatuses[status] {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "未知的执行状态: "+string(status)))
	}

	var (
		executions []*model.WorkflowExecution
		err        error
	)
	switch {
	case c.QueryParam("active") == "true":
		executions, err = h.tracker.ListActive(ctx)
	case workflowID != "" && status == "" && tenantID == "":
		executions, err = h.tracker.ListByWorkflow(ctx, workflowID)
	case status != "" && workflowID == "" && tenantID == "":
		executions, err = h.tracker.ListByStatus(ctx, status)
	case tenantID != "" && workflowID == "" && status == "":
		executions, err = h.tracker.ListByTenant(ctx, tenantID)
	default:
		executions, err = h.tracker.Search(ctx, &model.ExecutionQuery{
			WorkflowID: workflowID,
			TenantID:   tenantID,
			Status:     status,
		})
	}
	if err != nil {
		return errorJSON(c, "查询执行记录列表失败", err)
	}

	data := map[string]interface{}{
		"executions": executions,
		"total":      len(executions),
	}
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", data))
}

// searchExecutions 处理组合条件搜索请求
func (h *ExecutionHandler) searchExecutions(c echo.Context) error {
	status := model.ExecutionStatus(c.QueryParam("status"))
	if status != "" && !executionStatuses[status] {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "未知的执行状态: "+string(status)))
	}

	query := &model.ExecutionQuery{
		WorkflowID: c.QueryParam("workflowId"),
		TenantID:   c.QueryParam("tenantId"),
		Status:     status,
		UserID:     c.QueryParam("userId"),
		Text:       c.QueryParam("text"),
	}

	executions, err := h.tracker.Search(c.Request().Context(), query)
	if err != nil {
		return errorJSON(c, "搜索执行记录失败", err)
	}

	data := map[string]interface{}{
		"executions": executions,
		"total":      len(executions),
	}
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", data))
}

// getMetrics 处理查询执行指标请求
func (h *ExecutionHandler) getMetrics(c echo.Context) error {
	metrics, err := h.tracker.GetExecutionMetrics(c.Request().Context(), c.QueryParam("workflowId"))
	if err != nil {
		return errorJSON(c, "查询执行指标失败", err)
	}
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", metrics))
}

// getStats 处理查询仪表盘统计请求
func (h *ExecutionHandler) getStats(c echo.Context) error {
	stats, err := h.tracker.GetDashboardStats(c.Request().Context(), c.QueryParam("tenantId"))
	if err != nil {
		return errorJSON(c, "查询仪表盘统计失败", err)
	}
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", stats))
}

// listErrors 处理查询失败执行记录请求
func (h *ExecutionHandler) listErrors(c echo.Context) error {
	executions, err := h.tracker.ListErrors(c.Request().Context(), c.QueryParam("workflowId"))
	if err != nil {
		return errorJSON(c, "查询失败执行记录失败", err)
	}

	data := map[string]interface{}{
		"executions": executions,
		"total":      len(executions),
	}
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", data))
}

// getTimeSeries 处理查询按天聚合执行数量请求，days默认为7
func (h *ExecutionHandler) getTimeSeries(c echo.Context) error {
	days := 7
	if raw := c.QueryParam("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "days参数无效: "+raw))
		}
		days = parsed
	}

	points, err := h.tracker.GetTimeSeries(c.Request().Context(), days)
	if err != nil {
		return errorJSON(c, "查询执行趋势失败", err)
	}

	data := map[string]interface{}{
		"days":   days,
		"points": points,
	}
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", data))
}
