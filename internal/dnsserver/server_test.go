package dnsserver

import (
	"context"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visnetotest/mesh-gateway/internal/config"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
	"github.com/visnetotest/mesh-gateway/internal/registry"
	instanceStore "github.com/visnetotest/mesh-gateway/internal/store/instance"
)

// newTestServer 构建直接测试handleQuery用的DNS服务器
func newTestServer(t *testing.T) (*DNSServer, registry.ServiceRegistry) {
	t.Helper()
	reg := registry.NewServiceRegistry(instanceStore.NewMemoryStore())
	server := &DNSServer{
		registry: reg,
		domain:   "mesh.local",
		ttl:      30,
		logger:   config.NewNopLogger(),
	}
	return server, reg
}

func register(t *testing.T, reg registry.ServiceRegistry, id, name, baseURL string, weight int) *model.ServiceInstance {
	t.Helper()
	_, err := reg.Register(context.Background(), &model.RegisterInstanceRequest{
		ID:      id,
		Name:    name,
		BaseURL: baseURL,
		Weight:  weight,
	})
	require.NoError(t, err)

	inst, err := reg.GetInstance(context.Background(), id)
	require.NoError(t, err)
	return inst
}

func TestDNSServer_HandleQueryA(t *testing.T) {
	server, reg := newTestServer(t)
	register(t, reg, "order-1", "order", "http://10.0.0.1:9001", 1)
	register(t, reg, "order-2", "order", "http://10.0.0.2:9002", 1)

	// 探测失败的实例不出现在答案里
	bad := register(t, reg, "order-3", "order", "http://10.0.0.3:9003", 1)
	bad.SetStatus(model.InstanceStatusError)

	m := new(dns.Msg)
	q := dns.Question{Name: "order.mesh.local.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	found := server.handleQuery(q, m)

	require.True(t, found)
	require.Len(t, m.Answer, 2)

	ips := make([]string, 0, 2)
	for _, rr := range m.Answer {
		a, ok := rr.(*dns.A)
		require.True(t, ok)
		assert.Equal(t, uint32(30), a.Hdr.Ttl)
		ips = append(ips, a.A.String())
	}
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, ips)
}

func TestDNSServer_HandleQuerySRV(t *testing.T) {
	server, reg := newTestServer(t)
	register(t, reg, "order-1", "order", "http://10.0.0.1:9001", 3)

	m := new(dns.Msg)
	q := dns.Question{Name: "order.mesh.local.", Qtype: dns.TypeSRV, Qclass: dns.ClassINET}
	found := server.handleQuery(q, m)

	require.True(t, found)
	require.Len(t, m.Answer, 1)

	srv, ok := m.Answer[0].(*dns.SRV)
	require.True(t, ok)

	// SRV记录携带实例端口和权重
	assert.Equal(t, uint16(9001), srv.Port)
	assert.Equal(t, uint16(3), srv.Weight)
	assert.Equal(t, "10.0.0.1.", srv.Target)
}

func TestDNSServer_HandleQueryMisses(t *testing.T) {
	server, reg := newTestServer(t)
	register(t, reg, "order-1", "order", "http://10.0.0.1:9001", 1)

	tests := []struct {
		name  string
		qname string
		qtype uint16
	}{
		{"未注册的服务", "unknown.mesh.local.", dns.TypeA},
		{"域名后缀不匹配", "order.other.local.", dns.TypeA},
		{"多级名称不处理", "a.order.mesh.local.", dns.TypeA},
		{"不支持的记录类型", "order.mesh.local.", dns.TypeTXT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(dns.Msg)
			q := dns.Question{Name: tt.qname, Qtype: tt.qtype, Qclass: dns.ClassINET}
			assert.False(t, server.handleQuery(q, m))
			assert.Empty(t, m.Answer)
		})
	}
}

func TestDNSServer_HandleQueryHostname(t *testing.T) {
	server, reg := newTestServer(t)

	// 主机名不是IP时无法合成A记录，但SRV仍然可用
	register(t, reg, "order-1", "order", "http://order-backend:9001", 1)

	m := new(dns.Msg)
	q := dns.Question{Name: "order.mesh.local.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	assert.False(t, server.handleQuery(q, m))

	m = new(dns.Msg)
	q.Qtype = dns.TypeSRV
	require.True(t, server.handleQuery(q, m))
	srv := m.Answer[0].(*dns.SRV)
	assert.Equal(t, "order-backend.", srv.Target)
}

func TestDNSServer_StartAndQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过网络测试")
	}

	reg := registry.NewServiceRegistry(instanceStore.NewMemoryStore())
	register(t, reg, "order-1", "order", "http://10.0.0.1:9001", 1)

	cfg := &config.Config{}
	cfg.DNS.ListenAddress = "127.0.0.1"
	cfg.DNS.Port = 15353 // 使用非标准端口避免冲突
	cfg.DNS.Protocol = "udp"
	cfg.DNS.Domain = "mesh.local"
	cfg.DNS.TTL = 30

	server := NewDNSServer(reg, cfg, config.NewNopLogger())
	require.NoError(t, server.Start())

	// 等待服务器启动
	time.Sleep(100 * time.Millisecond)

	c := new(dns.Client)
	m := new(dns.Msg)
	m.SetQuestion("order.mesh.local.", dns.TypeA)

	r, _, err := c.Exchange(m, "127.0.0.1:15353")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, dns.RcodeSuccess, r.Rcode)
	require.Len(t, r.Answer, 1)

	a, ok := r.Answer[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", a.A.String())

	// 未知服务返回NXDOMAIN
	m = new(dns.Msg)
	m.SetQuestion("unknown.mesh.local.", dns.TypeA)
	r, _, err = c.Exchange(m, "127.0.0.1:15353")
	require.NoError(t, err)
	assert.Equal(t, dns.RcodeNameError, r.Rcode)
	assert.Empty(t, r.Answer)

	// 关闭服务器
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))
}
