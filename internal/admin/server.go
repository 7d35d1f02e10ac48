package admin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/visnetotest/mesh-gateway/internal/admin/handler"
	"github.com/visnetotest/mesh-gateway/internal/balancer"
	"github.com/visnetotest/mesh-gateway/internal/config"
	"github.com/visnetotest/mesh-gateway/internal/registry"
	"github.com/visnetotest/mesh-gateway/internal/workflow"
)

// Server 表示管理API服务，提供注册中心、负载均衡器
// 和执行记录的运维接口
type Server struct {
	e      *echo.Echo
	host   string
	port   int
	logger config.Logger
}

// NewServer 创建一个新的管理API服务
func NewServer(
	reg registry.ServiceRegistry,
	lb *balancer.LoadBalancer,
	tracker workflow.ExecutionTracker,
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

	// 注册路由
	handler.NewServiceHandler(reg).RegisterRoutes(e)
	handler.NewBalancerHandler(lb).RegisterRoutes(e)
	handler.NewExecutionHandler(tracker).RegisterRoutes(e)
	handler.NewHealthHandler(reg).RegisterRoutes(e)

	return &Server{
		e:      e,
		host:   cfg.Admin.ListenAddress,
		port:   cfg.Admin.Port,
		logger: logger,
	}
}

// Start 以非阻塞方式启动管理API服务
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.logger.Info("管理API服务启动", zap.String("addr", addr))

	go func() {
		if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("管理API服务启动失败", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown 关闭管理API服务
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
