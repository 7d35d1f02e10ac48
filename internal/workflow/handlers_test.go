package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visnetotest/mesh-gateway/internal/core/apperr"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

func newStep(stepType string, config map[string]interface{}) *model.WorkflowStep {
	return &model.WorkflowStep{ID: "step-1", Name: "测试步骤", Type: stepType, Config: config}
}

func TestDataEntryHandler_ValidateConfig(t *testing.T) {
	handler := NewDataEntryHandler()

	tests := []struct {
		name    string
		config  map[string]interface{}
		wantErr bool
	}{
		{
			name:    "缺少fields配置",
			config:  map[string]interface{}{},
			wantErr: true,
		},
		{
			name: "字段定义不是对象",
			config: map[string]interface{}{
				"fields": []interface{}{"not-an-object"},
			},
			wantErr: true,
		},
		{
			name: "字段缺少名称",
			config: map[string]interface{}{
				"fields": []interface{}{map[string]interface{}{"type": "text"}},
			},
			wantErr: true,
		},
		{
			name: "不支持的字段类型",
			config: map[string]interface{}{
				"fields": []interface{}{map[string]interface{}{"name": "age", "type": "decimal"}},
			},
			wantErr: true,
		},
		{
			name: "select字段缺少options",
			config: map[string]interface{}{
				"fields": []interface{}{map[string]interface{}{"name": "city", "type": "select"}},
			},
			wantErr: true,
		},
		{
			name: "合法配置",
			config: map[string]interface{}{
				"fields": []interface{}{
					map[string]interface{}{"name": "name", "type": "text", "required": true},
					map[string]interface{}{"name": "city", "type": "select", "options": []interface{}{"北京", "上海"}},
				},
			},
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.ValidateConfig(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsInvalidArgument(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDataEntryHandler_Execute(t *testing.T) {
	handler := NewDataEntryHandler()
	ctx := context.Background()
	exec := newRunningExecution("exec-1")

	step := newStep(StepTypeDataEntry, map[string]interface{}{
		"fields": []interface{}{
			map[string]interface{}{"name": "name", "type": "text", "required": true},
			map[string]interface{}{"name": "age", "type": "number"},
			map[string]interface{}{"name": "email", "type": "email"},
			map[string]interface{}{"name": "birthday", "type": "date"},
			map[string]interface{}{"name": "city", "type": "select", "options": []interface{}{"北京", "上海"}},
			map[string]interface{}{"name": "agree", "type": "checkbox"},
			map[string]interface{}{"name": "nickname", "type": "text"},
		},
		"values": map[string]interface{}{
			"name":     "张三",
			"age":      "30", // 数字字符串可以被接受
			"email":    "zhangsan@example.com",
			"birthday": "1995-06-01",
			"city":     "上海",
			"agree":    true,
		},
	})

	outcome, err := handler.Execute(ctx, step, exec)
	require.NoError(t, err)
	assert.Equal(t, "张三", outcome.Output["name"])
	assert.Equal(t, "30", outcome.Output["age"])
	assert.Equal(t, "上海", outcome.Output["city"])
	assert.Equal(t, true, outcome.Output["agree"])

	// 可选字段未填时不出现在输出里
	assert.NotContains(t, outcome.Output, "nickname")
}

func TestDataEntryHandler_ExecuteValidation(t *testing.T) {
	handler := NewDataEntryHandler()
	ctx := context.Background()
	exec := newRunningExecution("exec-1")

	tests := []struct {
		name   string
		field  map[string]interface{}
		values map[string]interface{}
	}{
		{
			name:   "缺少必填字段",
			field:  map[string]interface{}{"name": "name", "type": "text", "required": true},
			values: map[string]interface{}{},
		},
		{
			name:   "必填字段为空串",
			field:  map[string]interface{}{"name": "name", "type": "text", "required": true},
			values: map[string]interface{}{"name": ""},
		},
		{
			name:   "数字字段无法转换",
			field:  map[string]interface{}{"name": "age", "type": "number"},
			values: map[string]interface{}{"age": "三十"},
		},
		{
			name:   "邮箱格式无效",
			field:  map[string]interface{}{"name": "email", "type": "email"},
			values: map[string]interface{}{"email": "not-an-email"},
		},
		{
			name:   "日期格式无效",
			field:  map[string]interface{}{"name": "birthday", "type": "date"},
			values: map[string]interface{}{"birthday": "06/01/1995"},
		},
		{
			name:   "select值不在可选范围内",
			field:  map[string]interface{}{"name": "city", "type": "select", "options": []interface{}{"北京"}},
			values: map[string]interface{}{"city": "上海"},
		},
		{
			name:   "checkbox必须是布尔值",
			field:  map[string]interface{}{"name": "agree", "type": "checkbox"},
			values: map[string]interface{}{"agree": "yes"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := newStep(StepTypeDataEntry, map[string]interface{}{
				"fields": []interface{}{tt.field},
				"values": tt.values,
			})
			_, err := handler.Execute(ctx, step, exec)
			require.Error(t, err)
			assert.True(t, apperr.IsInvalidArgument(err))
		})
	}
}

func TestDocumentGenHandler_Execute(t *testing.T) {
	handler := NewDocumentGenHandler()
	ctx := context.Background()
	exec := newRunningExecution("exec-1")

	// 缺少模板配置
	err := handler.ValidateConfig(map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, apperr.IsInvalidArgument(err))

	step := newStep(StepTypeDocumentGen, map[string]interface{}{"template": "contract"})
	outcome, err := handler.Execute(ctx, step, exec)
	require.NoError(t, err)

	// 文档描述符包含url/name/format/created_at
	assert.Contains(t, outcome.Output["url"], "/documents/")
	assert.Equal(t, "contract-exec-1.pdf", outcome.Output["name"])
	assert.Equal(t, "pdf", outcome.Output["format"])
	assert.Equal(t, "contract", outcome.Output["template"])
	assert.NotEmpty(t, outcome.Output["created_at"])

	// 指定格式和名称时不使用默认值
	step = newStep(StepTypeDocumentGen, map[string]interface{}{
		"template": "contract",
		"format":   "docx",
		"name":     "合同.docx",
	})
	outcome, err = handler.Execute(ctx, step, exec)
	require.NoError(t, err)
	assert.Equal(t, "合同.docx", outcome.Output["name"])
	assert.Equal(t, "docx", outcome.Output["format"])
}

func TestDecisionHandler_ValidateConfig(t *testing.T) {
	handler := NewDecisionHandler()

	tests := []struct {
		name    string
		config  map[string]interface{}
		wantErr bool
	}{
		{
			name:    "缺少conditions配置",
			config:  map[string]interface{}{},
			wantErr: true,
		},
		{
			name: "条件缺少field",
			config: map[string]interface{}{
				"conditions": []interface{}{map[string]interface{}{"operator": "eq", "value": 1}},
			},
			wantErr: true,
		},
		{
			name: "不支持的比较操作符",
			config: map[string]interface{}{
				"conditions": []interface{}{map[string]interface{}{"field": "age", "operator": "like", "value": 1}},
			},
			wantErr: true,
		},
		{
			name: "不支持的逻辑操作符",
			config: map[string]interface{}{
				"conditions": []interface{}{
					map[string]interface{}{"field": "age", "operator": "eq", "value": 1, "logicalOperator": "XOR"},
				},
			},
			wantErr: true,
		},
		{
			name: "合法配置",
			config: map[string]interface{}{
				"conditions": []interface{}{
					map[string]interface{}{"field": "age", "operator": "gt", "value": 18},
					map[string]interface{}{"field": "vip", "operator": "eq", "value": true, "logicalOperator": "OR"},
				},
			},
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.ValidateConfig(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsInvalidArgument(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func decide(t *testing.T, conditions []interface{}, data map[string]interface{}) bool {
	t.Helper()
	handler := NewDecisionHandler()
	exec := newRunningExecution("exec-1")
	exec.Data = data

	step := newStep(StepTypeDecision, map[string]interface{}{"conditions": conditions})
	outcome, err := handler.Execute(context.Background(), step, exec)
	require.NoError(t, err)

	result, ok := outcome.Output["result"].(bool)
	require.True(t, ok)
	return result
}

func TestDecisionHandler_Execute(t *testing.T) {
	// (15>18)=false OR (true==true)=true 整体为true
	result := decide(t,
		[]interface{}{
			map[string]interface{}{"field": "age", "operator": "gt", "value": 18},
			map[string]interface{}{"field": "vip", "operator": "eq", "value": true, "logicalOperator": "OR"},
		},
		map[string]interface{}{"age": 15, "vip": true},
	)
	assert.True(t, result)
}

func TestDecisionHandler_SequentialFold(t *testing.T) {
	// 没有操作符优先级：((true OR true) AND false) = false，
	// 若按AND优先求值结果会是true
	result := decide(t,
		[]interface{}{
			map[string]interface{}{"field": "a", "operator": "eq", "value": 1},
			map[string]interface{}{"field": "b", "operator": "eq", "value": 1, "logicalOperator": "OR"},
			map[string]interface{}{"field": "c", "operator": "eq", "value": 1, "logicalOperator": "AND"},
		},
		map[string]interface{}{"a": 1, "b": 1, "c": 0},
	)
	assert.False(t, result)

	// logicalOperator缺省按AND处理，大小写不敏感
	result = decide(t,
		[]interface{}{
			map[string]interface{}{"field": "a", "operator": "eq", "value": 1},
			map[string]interface{}{"field": "b", "operator": "eq", "value": 1, "logicalOperator": "or"},
		},
		map[string]interface{}{"a": 0, "b": 1},
	)
	assert.True(t, result)
}

func TestDecisionHandler_Operators(t *testing.T) {
	data := map[string]interface{}{
		"age":    20,
		"name":   "张三",
		"tags":   []interface{}{"vip", "beta"},
		"status": "active",
	}

	tests := []struct {
		name string
		cond map[string]interface{}
		want bool
	}{
		{"数字字符串参与比较", map[string]interface{}{"field": "age", "operator": "gt", "value": "18"}, true},
		{"gte等值", map[string]interface{}{"field": "age", "operator": "gte", "value": 20}, true},
		{"lt不成立", map[string]interface{}{"field": "age", "operator": "lt", "value": 20}, false},
		{"lte成立", map[string]interface{}{"field": "age", "operator": "lte", "value": 20}, true},
		{"ne成立", map[string]interface{}{"field": "status", "operator": "ne", "value": "closed"}, true},
		{"字符串contains子串", map[string]interface{}{"field": "name", "operator": "contains", "value": "张"}, true},
		{"列表contains成员", map[string]interface{}{"field": "tags", "operator": "contains", "value": "vip"}, true},
		{"列表contains不含", map[string]interface{}{"field": "tags", "operator": "contains", "value": "admin"}, false},
		{"in命中", map[string]interface{}{"field": "status", "operator": "in", "value": []interface{}{"active", "paused"}}, true},
		{"not_in命中", map[string]interface{}{"field": "status", "operator": "not_in", "value": []interface{}{"closed"}}, true},
		{"无法转换为数字时判为false", map[string]interface{}{"field": "name", "operator": "gt", "value": 18}, false},
		{"字段不存在时eq不成立", map[string]interface{}{"field": "missing", "operator": "eq", "value": 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decide(t, []interface{}{tt.cond}, data)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecisionHandler_FieldLookup(t *testing.T) {
	handler := NewDecisionHandler()
	exec := newRunningExecution("exec-1")
	exec.Data = map[string]interface{}{"level": 1}
	exec.Variables = map[string]interface{}{"level": 2, "region": "cn"}

	// 执行数据优先于执行变量
	step := newStep(StepTypeDecision, map[string]interface{}{
		"conditions": []interface{}{
			map[string]interface{}{"field": "level", "operator": "eq", "value": 1},
		},
	})
	outcome, err := handler.Execute(context.Background(), step, exec)
	require.NoError(t, err)
	assert.Equal(t, true, outcome.Output["result"])

	// 数据中不存在时回退到变量
	step = newStep(StepTypeDecision, map[string]interface{}{
		"conditions": []interface{}{
			map[string]interface{}{"field": "region", "operator": "eq", "value": "cn"},
		},
	})
	outcome, err = handler.Execute(context.Background(), step, exec)
	require.NoError(t, err)
	assert.Equal(t, true, outcome.Output["result"])
}

// fakeIntegrationClient 记录请求并返回预设响应
type fakeIntegrationClient struct {
	lastReq *IntegrationRequest
	data    map[string]interface{}
	err     error
}

func (c *fakeIntegrationClient) Call(ctx context.Context, req *IntegrationRequest) (map[string]interface{}, error) {
	c.lastReq = req
	if c.err != nil {
		return nil, c.err
	}
	return c.data, nil
}

func TestIntegrationHandler_ValidateConfig(t *testing.T) {
	handler := NewIntegrationHandler(&fakeIntegrationClient{})

	// 缺少url配置
	err := handler.ValidateConfig(map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, apperr.IsInvalidArgument(err))

	// 不支持的HTTP方法
	err = handler.ValidateConfig(map[string]interface{}{"url": "http://svc/api", "method": "TRACE"})
	require.Error(t, err)

	// 方法大小写不敏感
	require.NoError(t, handler.ValidateConfig(map[string]interface{}{"url": "http://svc/api", "method": "post"}))
}

func TestIntegrationHandler_Execute(t *testing.T) {
	client := &fakeIntegrationClient{data: map[string]interface{}{"order_id": "o-1"}}
	handler := NewIntegrationHandler(client)
	exec := newRunningExecution("exec-1")

	step := newStep(StepTypeIntegration, map[string]interface{}{
		"url":     "http://orders/api/create",
		"method":  "post",
		"headers": map[string]interface{}{"X-Token": "secret"},
		"payload": map[string]interface{}{"amount": 100},
	})

	outcome, err := handler.Execute(context.Background(), step, exec)
	require.NoError(t, err)

	// 请求按配置构建，方法统一为大写
	require.NotNil(t, client.lastReq)
	assert.Equal(t, http.MethodPost, client.lastReq.Method)
	assert.Equal(t, "http://orders/api/create", client.lastReq.URL)
	assert.Equal(t, "secret", client.lastReq.Headers["X-Token"])

	// 输出为success/data/timestamp信封
	assert.Equal(t, true, outcome.Output["success"])
	data, ok := outcome.Output["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "o-1", data["order_id"])
	assert.NotEmpty(t, outcome.Output["timestamp"])
}

func TestIntegrationHandler_ExecuteError(t *testing.T) {
	client := &fakeIntegrationClient{err: apperr.NewUpstream("集成调用失败", errors.New("connection refused"))}
	handler := NewIntegrationHandler(client)
	exec := newRunningExecution("exec-1")

	step := newStep(StepTypeIntegration, map[string]interface{}{"url": "http://orders/api/create"})
	outcome, err := handler.Execute(context.Background(), step, exec)
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, apperr.CodeUpstream, apperr.CodeOf(err))

	// 未指定方法时默认GET
	assert.Equal(t, http.MethodGet, client.lastReq.Method)
}

func TestHTTPIntegrationClient_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"status":"created"}`)
		case "/text":
			fmt.Fprint(w, "plain response")
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewHTTPIntegrationClient(0)
	ctx := context.Background()

	// JSON响应解析为map
	data, err := client.Call(ctx, &IntegrationRequest{
		Method:  http.MethodPost,
		URL:     srv.URL + "/ok",
		Payload: map[string]interface{}{"amount": 100},
	})
	require.NoError(t, err)
	assert.Equal(t, "created", data["status"])

	// 非JSON响应按原始文本保存
	data, err = client.Call(ctx, &IntegrationRequest{Method: http.MethodGet, URL: srv.URL + "/text"})
	require.NoError(t, err)
	assert.Equal(t, "plain response", data["body"])

	// 空响应返回空map
	data, err = client.Call(ctx, &IntegrationRequest{Method: http.MethodGet, URL: srv.URL + "/empty"})
	require.NoError(t, err)
	assert.Empty(t, data)

	// 4xx/5xx状态码视为上游错误
	_, err = client.Call(ctx, &IntegrationRequest{Method: http.MethodGet, URL: srv.URL + "/boom"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUpstream, apperr.CodeOf(err))

	// 连接失败同样是上游错误
	_, err = client.Call(ctx, &IntegrationRequest{Method: http.MethodGet, URL: "http://127.0.0.1:1/unreachable"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUpstream, apperr.CodeOf(err))
}

func TestApprovalHandler_Execute(t *testing.T) {
	handler := NewApprovalHandler()
	exec := newRunningExecution("exec-1")

	// 缺少approvers配置
	err := handler.ValidateConfig(map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, apperr.IsInvalidArgument(err))

	step := newStep(StepTypeApproval, map[string]interface{}{
		"approvers": []interface{}{"manager", "director"},
	})
	outcome, err := handler.Execute(context.Background(), step, exec)
	require.NoError(t, err)

	// 每个审批人一条待审批记录
	require.Len(t, outcome.Approvals, 2)
	for _, record := range outcome.Approvals {
		assert.NotEmpty(t, record.ID)
		assert.Equal(t, "step-1", record.StepID)
		assert.Equal(t, model.ApprovalStatusPending, record.Status)
	}
	assert.Equal(t, "manager", outcome.Approvals[0].UserID)
	assert.Equal(t, "director", outcome.Approvals[1].UserID)

	// 步骤不阻塞，立即返回pending状态的输出
	assert.Equal(t, string(model.ApprovalStatusPending), outcome.Output["status"])
	assert.Equal(t, []string{"manager", "director"}, outcome.Output["approvers"])
}

// fakeNotifier 记录发送的通知
type fakeNotifier struct {
	sent []*Notification
	err  error
}

func (n *fakeNotifier) Send(ctx context.Context, notification *Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func TestNotificationHandler_Execute(t *testing.T) {
	notifier := &fakeNotifier{}
	handler := NewNotificationHandler(notifier)
	exec := newRunningExecution("exec-1")

	// recipients和channels都是必填
	err := handler.ValidateConfig(map[string]interface{}{"channels": []interface{}{"email"}})
	require.Error(t, err)
	assert.True(t, apperr.IsInvalidArgument(err))
	err = handler.ValidateConfig(map[string]interface{}{"recipients": []interface{}{"ops@example.com"}})
	require.Error(t, err)

	step := newStep(StepTypeNotification, map[string]interface{}{
		"channels":   []interface{}{"email", "sms"},
		"recipients": []interface{}{"ops@example.com"},
		"subject":    "执行完成",
		"message":    "订单工作流已完成",
	})
	outcome, err := handler.Execute(context.Background(), step, exec)
	require.NoError(t, err)

	// 通知已交给通知器发送
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, []string{"email", "sms"}, notifier.sent[0].Channels)
	assert.Equal(t, "执行完成", notifier.sent[0].Subject)

	// 输出为sent/channels/recipients/timestamp信封
	assert.Equal(t, true, outcome.Output["sent"])
	assert.Equal(t, []string{"email", "sms"}, outcome.Output["channels"])
	assert.Equal(t, []string{"ops@example.com"}, outcome.Output["recipients"])
	assert.NotEmpty(t, outcome.Output["timestamp"])
}

func TestNotificationHandler_ExecuteError(t *testing.T) {
	handler := NewNotificationHandler(&fakeNotifier{err: errors.New("短信网关不可用")})
	exec := newRunningExecution("exec-1")

	step := newStep(StepTypeNotification, map[string]interface{}{
		"channels":   []interface{}{"sms"},
		"recipients": []interface{}{"13800000000"},
	})
	_, err := handler.Execute(context.Background(), step, exec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "发送通知失败")
}
