package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visnetotest/mesh-gateway/internal/config"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
	"github.com/visnetotest/mesh-gateway/internal/registry"
	instanceStore "github.com/visnetotest/mesh-gateway/internal/store/instance"
)

// fakeProber 按实例ID返回预设的探测结果
type fakeProber struct {
	results map[string]error
	latency time.Duration
}

func (p *fakeProber) Probe(ctx context.Context, inst *model.ServiceInstance) (time.Duration, error) {
	if err, ok := p.results[inst.ID]; ok {
		return p.latency, err
	}
	return p.latency, nil
}

// panicProber 探测时panic，用于验证检查循环的隔离性
type panicProber struct{}

func (p *panicProber) Probe(ctx context.Context, inst *model.ServiceInstance) (time.Duration, error) {
	if inst.ID == "bad" {
		panic("探测器异常")
	}
	return 3 * time.Millisecond, nil
}

func newCheckerRegistry(t *testing.T, ids ...string) registry.ServiceRegistry {
	t.Helper()
	reg := registry.NewServiceRegistry(instanceStore.NewMemoryStore())
	for _, id := range ids {
		_, err := reg.Register(context.Background(), &model.RegisterInstanceRequest{
			ID:      id,
			Name:    "user-service",
			BaseURL: "http://10.0.0.1:8080",
		})
		require.NoError(t, err)
	}
	return reg
}

func TestChecker_CheckAll(t *testing.T) {
	reg := newCheckerRegistry(t, "ok-1", "bad-1")
	prober := &fakeProber{
		results: map[string]error{"bad-1": errors.New("连接被拒绝")},
		latency: 7 * time.Millisecond,
	}
	checker := NewChecker(reg, prober, time.Minute, config.NewNopLogger())

	checker.CheckAll(context.Background())

	// 探测成功的实例为active并记录延迟
	ok, err := reg.GetInstance(context.Background(), "ok-1")
	require.NoError(t, err)
	assert.Equal(t, model.InstanceStatusActive, ok.Status())
	assert.Equal(t, int64(7), ok.ResponseTime())
	assert.False(t, ok.LastHealthCheck().IsZero())

	// 探测失败的实例为error
	bad, err := reg.GetInstance(context.Background(), "bad-1")
	require.NoError(t, err)
	assert.Equal(t, model.InstanceStatusError, bad.Status())
}

func TestChecker_CheckAllRecoversInstance(t *testing.T) {
	reg := newCheckerRegistry(t, "inst-1")

	// 先标记为错误状态
	inst, err := reg.GetInstance(context.Background(), "inst-1")
	require.NoError(t, err)
	inst.SetStatus(model.InstanceStatusError)

	// 探测成功后恢复为active
	checker := NewChecker(reg, &fakeProber{latency: time.Millisecond}, time.Minute, config.NewNopLogger())
	checker.CheckAll(context.Background())

	assert.Equal(t, model.InstanceStatusActive, inst.Status())
}

func TestChecker_ProbePanicDoesNotStopOthers(t *testing.T) {
	reg := newCheckerRegistry(t, "bad", "good")
	checker := NewChecker(reg, &panicProber{}, time.Minute, config.NewNopLogger())

	// panic不应导致检查崩溃
	require.NotPanics(t, func() {
		checker.CheckAll(context.Background())
	})

	// panic的实例标记为error，其他实例正常检查
	bad, err := reg.GetInstance(context.Background(), "bad")
	require.NoError(t, err)
	assert.Equal(t, model.InstanceStatusError, bad.Status())

	good, err := reg.GetInstance(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, model.InstanceStatusActive, good.Status())
	assert.False(t, good.LastHealthCheck().IsZero())
}

func TestChecker_StartAndStop(t *testing.T) {
	reg := newCheckerRegistry(t, "inst-1")
	checker := NewChecker(reg, &fakeProber{latency: time.Millisecond}, 10*time.Millisecond, config.NewNopLogger())

	checker.Start(context.Background())

	// 等待至少一轮检查完成
	require.Eventually(t, func() bool {
		inst, err := reg.GetInstance(context.Background(), "inst-1")
		if err != nil {
			return false
		}
		return !inst.LastHealthCheck().IsZero()
	}, time.Second, 5*time.Millisecond)

	checker.Stop()
}

func TestHTTPProber_Probe(t *testing.T) {
	// 健康的后端
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	// 返回500的后端
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	prober := NewHTTPProber(2 * time.Second)
	ctx := context.Background()

	// 2xx视为健康
	latency, err := prober.Probe(ctx, model.NewServiceInstance(&model.RegisterInstanceRequest{
		ID:      "h1",
		Name:    "svc",
		BaseURL: healthy.URL,
	}))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latency, time.Duration(0))

	// 5xx视为不健康
	_, err = prober.Probe(ctx, model.NewServiceInstance(&model.RegisterInstanceRequest{
		ID:      "b1",
		Name:    "svc",
		BaseURL: broken.URL,
	}))
	assert.Error(t, err)

	// 连接失败视为不健康
	_, err = prober.Probe(ctx, model.NewServiceInstance(&model.RegisterInstanceRequest{
		ID:      "c1",
		Name:    "svc",
		BaseURL: "http://127.0.0.1:1",
	}))
	assert.Error(t, err)
}
