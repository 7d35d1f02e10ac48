package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/visnetotest/mesh-gateway/internal/core/apperr"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// IntegrationRequest 表示一次外部系统调用
type IntegrationRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Payload interface{}
}

// IntegrationClient 定义外部系统调用接口，便于在测试中替换
type IntegrationClient interface {
	Call(ctx context.Context, req *IntegrationRequest) (map[string]interface{}, error)
}

// HTTPIntegrationClient 基于HTTP的集成调用实现
type HTTPIntegrationClient struct {
	client *http.Client
}

// NewHTTPIntegrationClient 创建一个新的HTTP集成调用客户端
func NewHTTPIntegrationClient(timeout time.Duration) *HTTPIntegrationClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPIntegrationClient{
		client: &http.Client{Timeout: timeout},
	}
}

// Call 执行HTTP调用，payload非空时以JSON发送，响应按JSON解析
func (c *HTTPIntegrationClient) Call(ctx context.Context, req *IntegrationRequest) (map[string]interface{}, error) {
	var body io.Reader
	if req.Payload != nil {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("序列化请求数据失败: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("构建集成请求失败: %w", err)
	}
	if req.Payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apperr.NewUpstream("集成调用失败 ["+req.URL+"]", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.NewUpstream("读取集成响应失败 ["+req.URL+"]", err)
	}

	if resp.StatusCode >= 400 {
		return nil, apperr.NewUpstream(
			fmt.Sprintf("集成调用返回异常状态码 [%s]: %d", req.URL, resp.StatusCode), nil)
	}

	if len(respBody) == 0 {
		return map[string]interface{}{}, nil
	}

	var data map[string]interface{}
	if err := json.Unmarshal(respBody, &data); err != nil {
		// 非JSON响应按原始文本保存
		return map[string]interface{}{"body": string(respBody)}, nil
	}
	return data, nil
}

// 集成步骤支持的HTTP方法
var integrationMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// integrationHandler 集成步骤：调用外部系统并保存响应数据
type integrationHandler struct {
	client IntegrationClient
}

// NewIntegrationHandler 创建集成步骤处理器
func NewIntegrationHandler(client IntegrationClient) StepHandler {
	return &integrationHandler{client: client}
}

func (h *integrationHandler) Type() string {
	return StepTypeIntegration
}

func (h *integrationHandler) DefaultOutputKey() string {
	return "integration_result"
}

func (h *integrationHandler) ValidateConfig(cfg map[string]interface{}) error {
	if configString(cfg, "url") == "" {
		return apperr.NewInvalidArgument("集成步骤缺少url配置")
	}
	if method := configString(cfg, "method"); method != "" {
		if !integrationMethods[strings.ToUpper(method)] {
			return apperr.NewInvalidArgument("不支持的HTTP方法: %s", method)
		}
	}
	return nil
}

func (h *integrationHandler) Execute(ctx context.Context, step *model.WorkflowStep, exec *model.WorkflowExecution) (*HandlerOutcome, error) {
	method := strings.ToUpper(configString(step.Config, "method"))
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string)
	for k, v := range configMap(step.Config, "headers") {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}

	data, err := h.client.Call(ctx, &IntegrationRequest{
		Method:  method,
		URL:     configString(step.Config, "url"),
		Headers: headers,
		Payload: step.Config["payload"],
	})
	if err != nil {
		return nil, err
	}

	return &HandlerOutcome{
		Output: map[string]interface{}{
			"success":   true,
			"data":      data,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}, nil
}
