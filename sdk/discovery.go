package sdk

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultDNSServer = "127.0.0.1:8053"
	defaultDomain    = "svc.mesh.local"
	defaultCacheTTL  = 30 * time.Second
)

// Resolver 通过网关内置DNS服务器做服务发现，带本地结果缓存。
// 服务名会被拼接为 <service>.<domain> 后发起查询。
type Resolver struct {
	dnsServer string
	domain    string
	cacheTTL  time.Duration

	mu        sync.RWMutex
	hostCache map[string]hostCacheEntry
	srvCache  map[string]srvCacheEntry
}

type hostCacheEntry struct {
	addrs      []string
	expiration time.Time
}

type srvCacheEntry struct {
	targets    []*net.SRV
	expiration time.Time
}

// NewResolver 创建DNS服务发现客户端
func NewResolver(dnsServer, domain string, cacheTTL time.Duration) *Resolver {
	if dnsServer == "" {
		dnsServer = defaultDNSServer
	}
	if domain == "" {
		domain = defaultDomain
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}

	return &Resolver{
		dnsServer: dnsServer,
		domain:    strings.TrimSuffix(strings.ToLower(domain), "."),
		cacheTTL:  cacheTTL,
		hostCache: make(map[string]hostCacheEntry),
		srvCache:  make(map[string]srvCacheEntry),
	}
}

// 构建要查询的完整域名
func (r *Resolver) queryName(service string) string {
	return dns.Fqdn(strings.ToLower(service) + "." + r.domain)
}

// 发起一次DNS查询并校验响应码
func (r *Resolver) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)

	c := new(dns.Client)
	c.Timeout = 5 * time.Second

	resp, _, err := c.ExchangeContext(ctx, m, r.dnsServer)
	if err != nil {
		return nil, fmt.Errorf("DNS查询[%s]失败: %w", name, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("未找到[%s]的记录", name)
	}
	return resp, nil
}

// ResolveHosts 解析服务的全部IPv4地址
func (r *Resolver) ResolveHosts(ctx context.Context, service string) ([]string, error) {
	// 检查缓存
	if addrs := r.hostsFromCache(service); addrs != nil {
		return addrs, nil
	}

	name := r.queryName(service)
	resp, err := r.exchange(ctx, name, dns.TypeA)
	if err != nil {
		return nil, err
	}

	var addrs []string
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			addrs = append(addrs, a.A.String())
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("未找到服务[%s]的地址", service)
	}

	r.updateHostCache(service, addrs)
	return addrs, nil
}

// ResolveHost 解析服务的一个IPv4地址，多个地址时随机返回一个
func (r *Resolver) ResolveHost(ctx context.Context, service string) (string, error) {
	addrs, err := r.ResolveHosts(ctx, service)
	if err != nil {
		return "", err
	}
	return addrs[rand.Intn(len(addrs))], nil
}

// ResolveSRV 解析服务的SRV记录，按权重选择一条返回
func (r *Resolver) ResolveSRV(ctx context.Context, service string) (*net.SRV, error) {
	// 检查缓存
	if srv := r.srvFromCache(service); srv != nil {
		return srv, nil
	}

	name := r.queryName(service)
	resp, err := r.exchange(ctx, name, dns.TypeSRV)
	if err != nil {
		return nil, err
	}

	var targets []*net.SRV
	for _, rr := range resp.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			targets = append(targets, &net.SRV{
				Target:   srv.Target,
				Port:     srv.Port,
				Priority: srv.Priority,
				Weight:   srv.Weight,
			})
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("未找到服务[%s]的SRV记录", service)
	}

	r.updateSRVCache(service, targets)
	return selectByWeight(targets), nil
}

// ResolveService 解析服务地址，优先使用SRV记录返回host:port，
// 没有SRV记录时退回A记录只返回主机地址
func (r *Resolver) ResolveService(ctx context.Context, service string) (string, error) {
	if srv, err := r.ResolveSRV(ctx, service); err == nil {
		return fmt.Sprintf("%s:%d", strings.TrimSuffix(srv.Target, "."), srv.Port), nil
	}

	return r.ResolveHost(ctx, service)
}

// 从缓存读取主机地址列表
func (r *Resolver) hostsFromCache(service string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.hostCache[service]; ok && time.Now().Before(entry.expiration) {
		return entry.addrs
	}
	return nil
}

// 更新主机地址缓存
func (r *Resolver) updateHostCache(service string, addrs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hostCache[service] = hostCacheEntry{
		addrs:      addrs,
		expiration: time.Now().Add(r.cacheTTL),
	}
}

// 从缓存读取SRV记录，按权重选择一条
func (r *Resolver) srvFromCache(service string) *net.SRV {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.srvCache[service]; ok && time.Now().Before(entry.expiration) {
		return selectByWeight(entry.targets)
	}
	return nil
}

// 更新SRV记录缓存
func (r *Resolver) updateSRVCache(service string, targets []*net.SRV) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.srvCache[service] = srvCacheEntry{
		targets:    targets,
		expiration: time.Now().Add(r.cacheTTL),
	}
}

// 按权重随机选择一条SRV记录，权重全为0时等概率选择
func selectByWeight(targets []*net.SRV) *net.SRV {
	if len(targets) == 0 {
		return nil
	}
	if len(targets) == 1 {
		return targets[0]
	}

	totalWeight := 0
	for _, srv := range targets {
		totalWeight += int(srv.Weight)
	}
	if totalWeight == 0 {
		return targets[rand.Intn(len(targets))]
	}

	n := rand.Intn(totalWeight)
	for _, srv := range targets {
		n -= int(srv.Weight)
		if n < 0 {
			return srv
		}
	}
	return targets[0]
}
