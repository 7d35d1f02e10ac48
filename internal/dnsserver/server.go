package dnsserver

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/visnetotest/mesh-gateway/internal/config"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
	"github.com/visnetotest/mesh-gateway/internal/registry"
)

// Server 定义DNS发现服务接口
type Server interface {
	// Start 启动DNS服务器
	Start() error

	// Shutdown 优雅关闭DNS服务器
	Shutdown(ctx context.Context) error
}

// DNSServer 把注册中心的活跃实例以DNS记录形式暴露出去。
// <service>.<domain>的A查询返回每个活跃实例的地址，
// SRV查询额外携带实例端口和权重。只读投影，不做实例选择。
type DNSServer struct {
	udpServer *dns.Server
	tcpServer *dns.Server
	registry  registry.ServiceRegistry
	host      string
	port      int
	protocol  string
	domain    string
	ttl       uint32
	logger    config.Logger
}

// NewDNSServer 创建一个新的DNS发现服务
func NewDNSServer(reg registry.ServiceRegistry, cfg *config.Config, logger config.Logger) Server {
	return &DNSServer{
		registry: reg,
		host:     cfg.DNS.ListenAddress,
		port:     cfg.DNS.Port,
		protocol: cfg.DNS.Protocol,
		domain:   strings.TrimSuffix(strings.ToLower(cfg.DNS.Domain), "."),
		ttl:      cfg.DNS.TTL,
		logger:   logger,
	}
}

// Start 启动DNS服务器
func (s *DNSServer) Start() error {
	s.logger.Info("启动DNS发现服务",
		zap.String("address", s.host),
		zap.Int("port", s.port),
		zap.String("protocol", s.protocol),
		zap.String("domain", s.domain))

	// 创建DNS处理器
	handler := dns.NewServeMux()
	handler.HandleFunc(".", s.handleDNSRequest)

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))

	// 根据配置启动对应协议的服务器
	switch s.protocol {
	case "udp":
		return s.startServer(&s.udpServer, addr, "udp", handler)
	case "tcp":
		return s.startServer(&s.tcpServer, addr, "tcp", handler)
	case "both":
		if err := s.startServer(&s.udpServer, addr, "udp", handler); err != nil {
			return err
		}
		return s.startServer(&s.tcpServer, addr, "tcp", handler)
	default:
		return fmt.Errorf("不支持的DNS协议: %s", s.protocol)
	}
}

// startServer 在后台启动单个协议的DNS服务器
func (s *DNSServer) startServer(server **dns.Server, addr, network string, handler dns.Handler) error {
	*server = &dns.Server{
		Addr:    addr,
		Net:     network,
		Handler: handler,
	}

	srv := *server
	go func() {
		// miekg/dns没有ErrServerClosed，关闭时的错误只记录日志
		if err := srv.ListenAndServe(); err != nil {
			s.logger.Error("DNS服务器错误",
				zap.String("network", network),
				zap.Error(err))
		}
	}()

	return nil
}

// Shutdown 优雅关闭DNS服务器
func (s *DNSServer) Shutdown(ctx context.Context) error {
	s.logger.Info("正在关闭DNS发现服务...")

	if s.udpServer != nil {
		if err := s.udpServer.ShutdownContext(ctx); err != nil {
			return fmt.Errorf("关闭UDP DNS服务器失败: %w", err)
		}
	}
	if s.tcpServer != nil {
		if err := s.tcpServer.ShutdownContext(ctx); err != nil {
			return fmt.Errorf("关闭TCP DNS服务器失败: %w", err)
		}
	}
	return nil
}

// handleDNSRequest 处理DNS请求
func (s *DNSServer) handleDNSRequest(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true

	for _, q := range r.Question {
		s.logger.Debug("收到DNS查询",
			zap.String("name", q.Name),
			zap.String("type", dns.TypeToString[q.Qtype]),
			zap.String("client", w.RemoteAddr().String()))

		// 没有答案时返回NXDOMAIN
		if !s.handleQuery(q, m) {
			m.SetRcode(r, dns.RcodeNameError)
		}
	}

	if err := w.WriteMsg(m); err != nil {
		s.logger.Error("发送DNS响应失败", zap.Error(err))
	}
}

// handleQuery 处理单个DNS查询问题，
// 只响应<service>.<domain>形式的名称
func (s *DNSServer) handleQuery(q dns.Question, m *dns.Msg) bool {
	name := strings.TrimSuffix(strings.ToLower(q.Name), ".")

	// 域名后缀不匹配时不是本服务负责的区域
	suffix := "." + s.domain
	if !strings.HasSuffix(name, suffix) {
		return false
	}
	serviceName := strings.TrimSuffix(name, suffix)
	if serviceName == "" || strings.Contains(serviceName, ".") {
		return false
	}

	instances, err := s.registry.Discover(context.Background(), serviceName)
	if err != nil {
		s.logger.Error("DNS服务发现失败",
			zap.String("service", serviceName),
			zap.Error(err))
		return false
	}

	// 只返回活跃实例，不健康的实例不出现在答案里
	answered := false
	for _, inst := range instances {
		if inst.Status() != model.InstanceStatusActive {
			continue
		}
		host, port, ok := instanceHostPort(inst)
		if !ok {
			continue
		}

		switch q.Qtype {
		case dns.TypeA:
			ip := net.ParseIP(host)
			if ip == nil || ip.To4() == nil {
				continue
			}
			rr, err := dns.NewRR(fmt.Sprintf("%s %d IN A %s", q.Name, s.ttl, host))
			if err != nil {
				s.logger.Error("创建A记录失败", zap.Error(err))
				continue
			}
			m.Answer = append(m.Answer, rr)
			answered = true

		case dns.TypeSRV:
			rr, err := dns.NewRR(fmt.Sprintf("%s %d IN SRV 0 %d %d %s.",
				q.Name, s.ttl, inst.Weight, port, host))
			if err != nil {
				s.logger.Error("创建SRV记录失败", zap.Error(err))
				continue
			}
			m.Answer = append(m.Answer, rr)
			answered = true
		}
	}
	return answered
}

// instanceHostPort 从实例地址中解析主机和端口
func instanceHostPort(inst *model.ServiceInstance) (string, int, bool) {
	u, err := url.Parse(inst.BaseURL)
	if err != nil || u.Hostname() == "" {
		return "", 0, false
	}

	host := u.Hostname()
	if raw := u.Port(); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return "", 0, false
		}
		return host, port, true
	}

	// 未显式指定端口时按协议默认值
	if u.Scheme == "https" {
		return host, 443, true
	}
	return host, 80, true
}
