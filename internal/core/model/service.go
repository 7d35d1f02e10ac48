package model

import (
	"sync"
	"sync/atomic"
	"time"
)

// InstanceStatus 表示服务实例的健康状态
type InstanceStatus string

const (
	// InstanceStatusActive 实例健康，可参与路由
	InstanceStatusActive InstanceStatus = "active"
	// InstanceStatusInactive 实例被管理操作下线，不参与路由
	InstanceStatusInactive InstanceStatus = "inactive"
	// InstanceStatusError 健康检查失败，不参与路由
	InstanceStatusError InstanceStatus = "error"
)

// ServiceInstance 表示网关代理的一个服务实例。
// 状态字段由健康检查器和管理API修改，请求计数由网关在每次路由时累加，
// 多个goroutine并发读写，因此通过方法访问而不是直接读写字段。
type ServiceInstance struct {
	ID             string
	Name           string
	BaseURL        string
	HealthEndpoint string
	Weight         int
	Zone           string
	Region         string
	RegisteredAt   time.Time

	mu              sync.RWMutex
	status          InstanceStatus
	responseTimeMs  int64
	lastHealthCheck time.Time

	requestCount int64
	errorCount   int64
}

// NewServiceInstance 根据注册请求创建服务实例，初始状态为active
func NewServiceInstance(req *RegisterInstanceRequest) *ServiceInstance {
	weight := req.Weight
	if weight <= 0 {
		weight = 1
	}
	healthEndpoint := req.HealthEndpoint
	if healthEndpoint == "" {
		healthEndpoint = "/health"
	}
	return &ServiceInstance{
		ID:             req.ID,
		Name:           req.Name,
		BaseURL:        req.BaseURL,
		HealthEndpoint: healthEndpoint,
		Weight:         weight,
		Zone:           req.Zone,
		Region:         req.Region,
		RegisteredAt:   time.Now(),
		status:         InstanceStatusActive,
	}
}

// Status 返回实例当前状态
func (s *ServiceInstance) Status() InstanceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus 设置实例状态（管理API使用）
func (s *ServiceInstance) SetStatus(status InstanceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// RecordHealthCheck 记录一次健康检查结果（健康检查器使用）
func (s *ServiceInstance) RecordHealthCheck(status InstanceStatus, responseTimeMs int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.responseTimeMs = responseTimeMs
	s.lastHealthCheck = at
}

// ResponseTime 返回最近一次观测到的延迟（毫秒）
func (s *ServiceInstance) ResponseTime() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responseTimeMs
}

// LastHealthCheck 返回最近一次健康检查时间
func (s *ServiceInstance) LastHealthCheck() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHealthCheck
}

// IncRequestCount 累加请求计数，网关在转发前调用
func (s *ServiceInstance) IncRequestCount() int64 {
	return atomic.AddInt64(&s.requestCount, 1)
}

// IncErrorCount 累加错误计数，网关在转发失败后调用。
// 只在请求已计数之后调用，保证errorCount不超过requestCount。
func (s *ServiceInstance) IncErrorCount() int64 {
	return atomic.AddInt64(&s.errorCount, 1)
}

// RequestCount 返回累计请求数
func (s *ServiceInstance) RequestCount() int64 {
	return atomic.LoadInt64(&s.requestCount)
}

// ErrorCount 返回累计错误数
func (s *ServiceInstance) ErrorCount() int64 {
	return atomic.LoadInt64(&s.errorCount)
}

// Snapshot 返回实例当前状态的只读快照，供API响应和存储序列化使用
func (s *ServiceInstance) Snapshot() *InstanceSnapshot {
	s.mu.RLock()
	status := s.status
	responseTime := s.responseTimeMs
	lastCheck := s.lastHealthCheck
	s.mu.RUnlock()

	return &InstanceSnapshot{
		ID:              s.ID,
		Name:            s.Name,
		BaseURL:         s.BaseURL,
		HealthEndpoint:  s.HealthEndpoint,
		Status:          status,
		ResponseTime:    responseTime,
		RequestCount:    atomic.LoadInt64(&s.requestCount),
		ErrorCount:      atomic.LoadInt64(&s.errorCount),
		LastHealthCheck: lastCheck,
		Weight:          s.Weight,
		Zone:            s.Zone,
		Region:          s.Region,
		RegisteredAt:    s.RegisteredAt,
	}
}

// FromSnapshot 从快照恢复服务实例（etcd存储反序列化使用）
func FromSnapshot(snap *InstanceSnapshot) *ServiceInstance {
	weight := snap.Weight
	if weight <= 0 {
		weight = 1
	}
	return &ServiceInstance{
		ID:              snap.ID,
		Name:            snap.Name,
		BaseURL:         snap.BaseURL,
		HealthEndpoint:  snap.HealthEndpoint,
		Weight:          weight,
		Zone:            snap.Zone,
		Region:          snap.Region,
		RegisteredAt:    snap.RegisteredAt,
		status:          snap.Status,
		responseTimeMs:  snap.ResponseTime,
		lastHealthCheck: snap.LastHealthCheck,
		requestCount:    snap.RequestCount,
		errorCount:      snap.ErrorCount,
	}
}

// InstanceSnapshot 表示实例某一时刻的状态，用于API响应和持久化
type InstanceSnapshot struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	BaseURL         string         `json:"base_url"`
	HealthEndpoint  string         `json:"health_endpoint"`
	Status          InstanceStatus `json:"status"`
	ResponseTime    int64          `json:"response_time"`
	RequestCount    int64          `json:"request_count"`
	ErrorCount      int64          `json:"error_count"`
	LastHealthCheck time.Time      `json:"last_health_check"`
	Weight          int            `json:"weight"`
	Zone            string         `json:"zone,omitempty"`
	Region          string         `json:"region,omitempty"`
	RegisteredAt    time.Time      `json:"registered_at"`
}

// RegisterInstanceRequest 表示服务实例注册请求
type RegisterInstanceRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	BaseURL        string `json:"base_url"`
	HealthEndpoint string `json:"health_endpoint,omitempty"`
	Weight         int    `json:"weight,omitempty"`
	Zone           string `json:"zone,omitempty"`
	Region         string `json:"region,omitempty"`
}

// RegisterInstanceResponse 表示服务实例注册响应
type RegisterInstanceResponse struct {
	InstanceID   string    `json:"instance_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ServiceSummary 表示一个服务名下实例集合的聚合信息
type ServiceSummary struct {
	Name          string `json:"name"`
	InstanceCount int    `json:"instance_count"`
	ActiveCount   int    `json:"active_count"`
	InactiveCount int    `json:"inactive_count"`
	ErrorCount    int    `json:"error_count"`
	TotalRequests int64  `json:"total_requests"`
	TotalErrors   int64  `json:"total_errors"`
}

// RoutingMetrics 表示负载均衡器的聚合路由指标
type RoutingMetrics struct {
	TotalRequests       int64   `json:"total_requests"`
	TotalErrors         int64   `json:"total_errors"`
	AverageResponseTime float64 `json:"average_response_time"`
	ActiveConnections   int64   `json:"active_connections"`
}

// ApiResponse 表示通用API响应
type ApiResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
