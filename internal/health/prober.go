package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// Prober 定义实例健康探测接口，返回本次探测的耗时
// err为nil表示实例健康
type Prober interface {
	Probe(ctx context.Context, inst *model.ServiceInstance) (latency time.Duration, err error)
}

// HTTPProber 通过HTTP GET探测实例健康端点
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber 创建一个新的HTTP健康探测器
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{
		client: &http.Client{Timeout: timeout},
	}
}

// Probe 请求实例的健康端点，2xx状态码视为健康
func (p *HTTPProber) Probe(ctx context.Context, inst *model.ServiceInstance) (time.Duration, error) {
	url := inst.BaseURL + inst.HealthEndpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("构建健康检查请求失败 [%s]: %w", url, err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, fmt.Errorf("健康检查请求失败 [%s]: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return latency, fmt.Errorf("健康检查返回异常状态码 [%s]: %d", url, resp.StatusCode)
	}

	return latency, nil
}
