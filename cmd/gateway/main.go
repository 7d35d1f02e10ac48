package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/visnetotest/mesh-gateway/internal/admin"
	"github.com/visnetotest/mesh-gateway/internal/balancer"
	"github.com/visnetotest/mesh-gateway/internal/config"
	"github.com/visnetotest/mesh-gateway/internal/dnsserver"
	"github.com/visnetotest/mesh-gateway/internal/gateway"
	"github.com/visnetotest/mesh-gateway/internal/health"
	"github.com/visnetotest/mesh-gateway/internal/registry"
	"github.com/visnetotest/mesh-gateway/internal/store/etcd"
	executionStore "github.com/visnetotest/mesh-gateway/internal/store/execution"
	instanceStore "github.com/visnetotest/mesh-gateway/internal/store/instance"
	"github.com/visnetotest/mesh-gateway/internal/workflow"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "", "配置文件路径")
}

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Mesh Gateway Starting...",
		zap.Int("gateway_port", cfg.Gateway.Port),
		zap.Int("admin_port", cfg.Admin.Port),
		zap.Bool("etcd_enabled", cfg.Etcd.Enabled),
		zap.Bool("dns_enabled", cfg.DNS.Enabled),
		zap.String("balancer_strategy", cfg.Balancer.DefaultStrategy))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 选择实例存储：启用etcd时使用带持久化的分层存储
	store, etcdClient, err := buildInstanceStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("初始化实例存储失败", zap.Error(err))
	}
	if etcdClient != nil {
		defer etcdClient.Close()
	}

	// 注册中心
	reg := registry.NewServiceRegistry(store)

	// 负载均衡器
	lb, err := balancer.NewLoadBalancer(cfg.Balancer.DefaultStrategy)
	if err != nil {
		logger.Fatal("初始化负载均衡器失败", zap.Error(err))
	}

	// 健康检查器
	checker := health.NewChecker(reg, health.NewHTTPProber(cfg.Health.ProbeTimeout), cfg.Health.Interval, logger)
	checker.Start(ctx)

	// 执行跟踪器，管理API提供只读查询
	tracker := workflow.NewExecutionTracker(executionStore.NewMemoryStore(), logger)
	go runExecutionCleanup(ctx, tracker, cfg, logger)

	// 网关代理服务
	gatewayServer := gateway.NewServer(reg, lb, gateway.NewProxyForwarder(cfg.Gateway.ForwardTimeout), cfg, logger)
	if err := gatewayServer.Start(); err != nil {
		logger.Fatal("启动网关代理服务失败", zap.Error(err))
	}

	// 管理API服务
	adminServer := admin.NewServer(reg, lb, tracker, cfg, logger)
	if err := adminServer.Start(); err != nil {
		logger.Fatal("启动管理API服务失败", zap.Error(err))
	}

	// DNS发现服务
	var dnsServer dnsserver.Server
	if cfg.DNS.Enabled {
		dnsServer = dnsserver.NewDNSServer(reg, cfg, logger)
		if err := dnsServer.Start(); err != nil {
			logger.Fatal("启动DNS发现服务失败", zap.Error(err))
		}
	}

	logger.Info("全部服务已启动")

	// 等待终止信号
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signalChan
	logger.Info("接收到关闭信号，正在优雅关闭...", zap.String("signal", sig.String()))

	// 停止后台任务
	cancel()
	checker.Stop()

	// 限时关闭各服务
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	var wg sync.WaitGroup
	shutdown := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(shutdownCtx); err != nil {
				logger.Error("关闭服务失败", zap.String("server", name), zap.Error(err))
			}
		}()
	}

	shutdown("gateway", gatewayServer.Shutdown)
	shutdown("admin", adminServer.Shutdown)
	if dnsServer != nil {
		shutdown("dns", dnsServer.Shutdown)
	}
	wg.Wait()

	logger.Info("服务已关闭")
}

// buildInstanceStore 根据配置构建实例存储，
// 返回的etcd客户端由调用方负责关闭
func buildInstanceStore(ctx context.Context, cfg *config.Config, logger config.Logger) (instanceStore.InstanceStore, *etcd.Client, error) {
	if !cfg.Etcd.Enabled {
		return instanceStore.NewMemoryStore(), nil, nil
	}

	client, err := etcd.NewClient(etcd.Options{
		Endpoints:      cfg.Etcd.Endpoints,
		Username:       cfg.Etcd.Username,
		Password:       cfg.Etcd.Password,
		DialTimeout:    cfg.Etcd.DialTimeout,
		RequestTimeout: cfg.Etcd.RequestTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("初始化etcd客户端失败: %w", err)
	}

	// 检查etcd连接状态
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, cfg.Etcd.Endpoints[0]); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("etcd健康检查失败: %w", err)
	}

	store := instanceStore.NewLayeredStore(instanceStore.NewEtcdStore(client))
	loaded, err := store.Hydrate(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("加载持久化实例失败: %w", err)
	}
	logger.Info("etcd连接成功", zap.Int("loaded_instances", loaded))

	// 订阅其他网关副本的注册变更
	if err := store.Sync(ctx, logger); err != nil {
		logger.Warn("启动etcd变更同步失败，本地注册视图不受影响", zap.Error(err))
	}

	return store, client, nil
}

// runExecutionCleanup 周期清理过期的已结束执行记录
func runExecutionCleanup(ctx context.Context, tracker workflow.ExecutionTracker, cfg *config.Config, logger config.Logger) {
	interval := cfg.Workflow.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	retentionDays := cfg.Workflow.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := tracker.CleanupOldExecutions(ctx, retentionDays)
			if err != nil {
				logger.Error("清理过期执行记录失败", zap.Error(err))
				continue
			}
			if deleted > 0 {
				logger.Info("清理过期执行记录",
					zap.Int("deleted", deleted),
					zap.Int("retention_days", retentionDays))
			}
		}
	}
}
