package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config SDK客户端配置
type Config struct {
	// 管理API地址，格式为host:port
	ServerAddr string `json:"server_addr"`
	// 操作超时时间，默认5秒
	Timeout time.Duration `json:"timeout"`
	// 是否使用HTTPS
	Secure bool `json:"secure"`
}

// Client 网关管理API的SDK客户端
type Client struct {
	config     *Config
	httpClient *http.Client
}

// apiResponse 管理API的统一响应信封
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RegisterRequest 服务实例注册请求
type RegisterRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	BaseURL        string `json:"base_url"`
	HealthEndpoint string `json:"health_endpoint,omitempty"`
	Weight         int    `json:"weight,omitempty"`
	Zone           string `json:"zone,omitempty"`
	Region         string `json:"region,omitempty"`
}

// RegisterResult 服务实例注册结果
type RegisterResult struct {
	InstanceID   string    `json:"instance_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Instance 服务实例的状态快照
type Instance struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	BaseURL         string    `json:"base_url"`
	HealthEndpoint  string    `json:"health_endpoint"`
	Status          string    `json:"status"`
	ResponseTime    int64     `json:"response_time"`
	RequestCount    int64     `json:"request_count"`
	ErrorCount      int64     `json:"error_count"`
	LastHealthCheck time.Time `json:"last_health_check"`
	Weight          int       `json:"weight"`
	Zone            string    `json:"zone,omitempty"`
	Region          string    `json:"region,omitempty"`
	RegisteredAt    time.Time `json:"registered_at"`
}

// ServiceSummary 服务名下实例集合的聚合信息
type ServiceSummary struct {
	Name          string `json:"name"`
	InstanceCount int    `json:"instance_count"`
	ActiveCount   int    `json:"active_count"`
	InactiveCount int    `json:"inactive_count"`
	ErrorCount    int    `json:"error_count"`
	TotalRequests int64  `json:"total_requests"`
	TotalErrors   int64  `json:"total_errors"`
}

// NewClient 创建SDK客户端
func NewClient(config *Config) (*Client, error) {
	if config == nil || config.ServerAddr == "" {
		return nil, fmt.Errorf("服务器地址不能为空")
	}

	// 设置默认值
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// 构建API地址
func (c *Client) buildURL(path string) string {
	protocol := "http"
	if c.config.Secure {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s%s", protocol, c.config.ServerAddr, path)
}

// 发送HTTP请求并解析统一响应信封
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*apiResponse, error) {
	// 准备请求体
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	// 创建请求
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// 发送请求
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	// 读取响应体
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	// 解析响应信封
	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w, 响应内容: %s", err, string(respBody))
	}

	// 检查HTTP状态码
	if resp.StatusCode != http.StatusOK {
		return &apiResp, fmt.Errorf("API请求失败: %s (状态码: %d)", apiResp.Message, resp.StatusCode)
	}

	return &apiResp, nil
}

// 解析响应信封中的数据字段
func decodeData(resp *apiResponse, v interface{}) error {
	if len(resp.Data) == 0 {
		return fmt.Errorf("响应中缺少数据字段")
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		return fmt.Errorf("解析响应数据失败: %w", err)
	}
	return nil
}

// Register 注册服务实例
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error) {
	if req == nil || req.ID == "" || req.Name == "" || req.BaseURL == "" {
		return nil, fmt.Errorf("缺少必要参数：实例ID、服务名和基础地址都是必需的")
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/services", req)
	if err != nil {
		return nil, fmt.Errorf("注册服务实例失败: %w", err)
	}

	var result RegisterResult
	if err := decodeData(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Deregister 注销服务实例
func (c *Client) Deregister(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return fmt.Errorf("实例ID不能为空")
	}

	path := "/api/v1/services/" + url.PathEscape(instanceID)
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("注销服务实例失败: %w", err)
	}
	return nil
}

// Services 查询全部服务的聚合信息
func (c *Client) Services(ctx context.Context) ([]ServiceSummary, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/v1/services", nil)
	if err != nil {
		return nil, fmt.Errorf("查询服务列表失败: %w", err)
	}

	var data struct {
		Services []ServiceSummary `json:"services"`
		Total    int              `json:"total"`
	}
	if err := decodeData(resp, &data); err != nil {
		return nil, err
	}
	return data.Services, nil
}

// Instances 查询某个服务下的实例列表
func (c *Client) Instances(ctx context.Context, service string) ([]Instance, error) {
	if service == "" {
		return nil, fmt.Errorf("服务名不能为空")
	}

	path := fmt.Sprintf("/api/v1/services/%s/instances", url.PathEscape(service))
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("查询服务实例失败: %w", err)
	}

	var data struct {
		Service   string     `json:"service"`
		Instances []Instance `json:"instances"`
		Total     int        `json:"total"`
	}
	if err := decodeData(resp, &data); err != nil {
		return nil, err
	}
	return data.Instances, nil
}

// SetHealth 手动设置某个服务全部实例的健康状态，返回受影响的实例数
func (c *Client) SetHealth(ctx context.Context, service string, healthy bool) (int, error) {
	if service == "" {
		return 0, fmt.Errorf("服务名不能为空")
	}

	path := fmt.Sprintf("/api/v1/services/%s/health", url.PathEscape(service))
	resp, err := c.doRequest(ctx, http.MethodPut, path, map[string]bool{"healthy": healthy})
	if err != nil {
		return 0, fmt.Errorf("设置健康状态失败: %w", err)
	}

	var data struct {
		Service string `json:"service"`
		Healthy bool   `json:"healthy"`
		Updated int    `json:"updated"`
	}
	if err := decodeData(resp, &data); err != nil {
		return 0, err
	}
	return data.Updated, nil
}
