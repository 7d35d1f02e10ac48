package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/visnetotest/mesh-gateway/internal/balancer"
	"github.com/visnetotest/mesh-gateway/internal/config"
	"github.com/visnetotest/mesh-gateway/internal/core/apperr"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
	"github.com/visnetotest/mesh-gateway/internal/registry"
)

// Server 表示网关代理服务，把/api/:service/*的请求路由到注册的服务实例
type Server struct {
	e         *echo.Echo
	host      string
	port      int
	registry  registry.ServiceRegistry
	balancer  *balancer.LoadBalancer
	forwarder Forwarder
	logger    config.Logger
}

// NewServer 创建一个新的网关代理服务
func NewServer(
	reg registry.ServiceRegistry,
	lb *balancer.LoadBalancer,
	forwarder Forwarder,
	cfg *config.Config,
	logger config.Logger,
) *Server {
	// 创建Echo实例
	e := echo.New()
	e.HideBanner = true

	// 添加中间件
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		e:         e,
		host:      cfg.Gateway.ListenAddress,
		port:      cfg.Gateway.Port,
		registry:  reg,
		balancer:  lb,
		forwarder: forwarder,
		logger:    logger,
	}

	// 注册代理路由
	e.Any("/api/:service", server.handleProxy)
	e.Any("/api/:service/*", server.handleProxy)

	return server
}

// Start 以非阻塞方式启动网关服务
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.logger.Info("网关代理服务启动", zap.String("addr", addr))

	go func() {
		if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("网关代理服务启动失败", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown 关闭网关服务
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// handleProxy 处理一次代理请求：服务发现、实例选择、转发、指标记录
func (s *Server) handleProxy(c echo.Context) error {
	serviceName := c.Param("service")
	if serviceName == "" {
		return s.errorJSON(c, apperr.NewNotFound("服务名称不能为空"))
	}

	instances, err := s.registry.Discover(c.Request().Context(), serviceName)
	if err != nil {
		s.logger.Error("服务发现失败", zap.String("service", serviceName), zap.Error(err))
		return s.errorJSON(c, apperr.NewInternal("服务发现失败", err))
	}
	if len(instances) == 0 {
		return s.errorJSON(c, apperr.NewNotFound("服务不存在: %s", serviceName))
	}

	inst := s.balancer.Select(instances)
	if inst == nil {
		return s.errorJSON(c, apperr.NewUnavailable("服务暂无健康实例: %s", serviceName))
	}

	// 转发前先累加请求数，失败的转发同样计入负载
	inst.IncRequestCount()
	s.balancer.IncActiveConnections()
	defer s.balancer.DecActiveConnections()

	path := "/" + c.Param("*")
	start := time.Now()
	err = s.forwarder.Forward(c, inst, path)
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		inst.IncErrorCount()
		s.balancer.UpdateMetrics(inst.ID, latencyMs, true)
		s.logger.Warn("请求转发失败",
			zap.String("service", serviceName),
			zap.String("instance_id", inst.ID),
			zap.Error(err))
		return s.errorJSON(c, err)
	}

	s.balancer.UpdateMetrics(inst.ID, latencyMs, false)
	return nil
}

// errorJSON 按错误分类返回统一的错误响应
func (s *Server) errorJSON(c echo.Context, err error) error {
	if c.Response().Committed {
		return err
	}
	status := apperr.HTTPStatus(err)
	return c.JSON(status, &model.ApiResponse{
		Code:    status,
		Message: err.Error(),
	})
}
