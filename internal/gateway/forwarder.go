package gateway

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/visnetotest/mesh-gateway/internal/core/apperr"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// Forwarder 定义请求转发接口，把当前请求转发到选中的实例
type Forwarder interface {
	Forward(c echo.Context, inst *model.ServiceInstance, path string) error
}

// ProxyForwarder 基于httputil.ReverseProxy的转发实现
type ProxyForwarder struct {
	transport http.RoundTripper
	timeout   time.Duration
}

// NewProxyForwarder 创建一个新的反向代理转发器
func NewProxyForwarder(timeout time.Duration) *ProxyForwarder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ProxyForwarder{
		transport: http.DefaultTransport,
		timeout:   timeout,
	}
}

// Forward 把请求转发到实例的baseUrl并拼接下游路径，转发失败返回Upstream错误
func (f *ProxyForwarder) Forward(c echo.Context, inst *model.ServiceInstance, path string) error {
	target, err := url.Parse(inst.BaseURL)
	if err != nil {
		return apperr.NewUpstream("解析实例地址失败", err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), f.timeout)
	defer cancel()

	req := c.Request().Clone(ctx)
	req.URL.Path = path
	req.URL.RawPath = ""

	var forwardErr error
	proxy := &httputil.ReverseProxy{
		Transport: f.transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		// 转发失败由网关统一返回错误响应，这里只记录错误
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			forwardErr = err
		},
	}

	proxy.ServeHTTP(c.Response(), req)

	if forwardErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return apperr.NewTimeout("转发请求超时 [%s]", inst.ID)
		}
		return apperr.NewUpstream("转发请求失败 ["+inst.ID+"]", forwardErr)
	}
	return nil
}
