package workflow

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/visnetotest/mesh-gateway/internal/config"
	"github.com/visnetotest/mesh-gateway/internal/core/apperr"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// 内置步骤类型
const (
	StepTypeDataEntry    = "data-entry"
	StepTypeDocumentGen  = "document-gen"
	StepTypeDecision     = "decision"
	StepTypeIntegration  = "integration"
	StepTypeApproval     = "approval"
	StepTypeNotification = "notification"
)

// NewDefaultExecutor 创建注册了全部内置处理器的步骤执行器，
// client和notifier为nil时使用HTTP客户端和日志通知器
func NewDefaultExecutor(defaultTimeout time.Duration, client IntegrationClient, notifier Notifier, logger config.Logger) *StepExecutor {
	if client == nil {
		client = NewHTTPIntegrationClient(0)
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	e := NewStepExecutor(defaultTimeout, logger)
	e.RegisterHandler(NewDataEntryHandler())
	e.RegisterHandler(NewDocumentGenHandler())
	e.RegisterHandler(NewDecisionHandler())
	e.RegisterHandler(NewIntegrationHandler(client))
	e.RegisterHandler(NewApprovalHandler())
	e.RegisterHandler(NewNotificationHandler(notifier))
	return e
}

// configString 从配置中读取字符串值，缺失或类型不符时返回空串
func configString(cfg map[string]interface{}, key string) string {
	if cfg == nil {
		return ""
	}
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

// configList 从配置中读取列表值
func configList(cfg map[string]interface{}, key string) []interface{} {
	if cfg == nil {
		return nil
	}
	if v, ok := cfg[key].([]interface{}); ok {
		return v
	}
	return nil
}

// configStringList 从配置中读取字符串列表，兼容[]string和[]interface{}两种形态
func configStringList(cfg map[string]interface{}, key string) []string {
	if cfg == nil {
		return nil
	}
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// configMap 从配置中读取嵌套map
func configMap(cfg map[string]interface{}, key string) map[string]interface{} {
	if cfg == nil {
		return nil
	}
	if v, ok := cfg[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

// dataEntryHandler 数据录入步骤：按字段定义校验输入值并写入执行数据
type dataEntryHandler struct{}

// NewDataEntryHandler 创建数据录入步骤处理器
func NewDataEntryHandler() StepHandler {
	return &dataEntryHandler{}
}

func (h *dataEntryHandler) Type() string {
	return StepTypeDataEntry
}

func (h *dataEntryHandler) DefaultOutputKey() string {
	return "form_data"
}

// 支持的字段类型
var dataEntryFieldTypes = map[string]bool{
	"text":     true,
	"number":   true,
	"email":    true,
	"date":     true,
	"select":   true,
	"checkbox": true,
}

func (h *dataEntryHandler) ValidateConfig(cfg map[string]interface{}) error {
	fields := configList(cfg, "fields")
	if len(fields) == 0 {
		return apperr.NewInvalidArgument("数据录入步骤缺少fields配置")
	}

	for i, item := range fields {
		field, ok := item.(map[string]interface{})
		if !ok {
			return apperr.NewInvalidArgument("字段定义必须是对象: fields[%d]", i)
		}
		name := configString(field, "name")
		if name == "" {
			return apperr.NewInvalidArgument("字段名称不能为空: fields[%d]", i)
		}
		fieldType := configString(field, "type")
		if fieldType != "" && !dataEntryFieldTypes[fieldType] {
			return apperr.NewInvalidArgument("不支持的字段类型 [%s]: %s", name, fieldType)
		}
		if fieldType == "select" && len(configList(field, "options")) == 0 {
			return apperr.NewInvalidArgument("select字段缺少options配置: %s", name)
		}
	}
	return nil
}

func (h *dataEntryHandler) Execute(ctx context.Context, step *model.WorkflowStep, exec *model.WorkflowExecution) (*HandlerOutcome, error) {
	values := configMap(step.Config, "values")
	output := make(map[string]interface{})

	for _, item := range configList(step.Config, "fields") {
		field, _ := item.(map[string]interface{})
		name := configString(field, "name")
		fieldType := configString(field, "type")
		if fieldType == "" {
			fieldType = "text"
		}
		required, _ := field["required"].(bool)

		value, present := values[name]
		if !present || value == nil || value == "" {
			if required {
				return nil, apperr.NewInvalidArgument("缺少必填字段: %s", name)
			}
			continue
		}

		if err := validateFieldValue(fieldType, name, value, configList(field, "options")); err != nil {
			return nil, err
		}
		output[name] = value
	}

	return &HandlerOutcome{Output: output}, nil
}

// validateFieldValue 按字段类型校验单个输入值
func validateFieldValue(fieldType, name string, value interface{}, options []interface{}) error {
	switch fieldType {
	case "text":
		if _, ok := value.(string); !ok {
			return apperr.NewInvalidArgument("字段 %s 必须是文本: %v", name, value)
		}
	case "number":
		if _, ok := toNumber(value); !ok {
			return apperr.NewInvalidArgument("字段 %s 必须是数字: %v", name, value)
		}
	case "email":
		s, ok := value.(string)
		if !ok {
			return apperr.NewInvalidArgument("字段 %s 必须是邮箱地址: %v", name, value)
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return apperr.NewInvalidArgument("字段 %s 的邮箱格式无效: %s", name, s)
		}
	case "date":
		s, ok := value.(string)
		if !ok {
			return apperr.NewInvalidArgument("字段 %s 必须是日期: %v", name, value)
		}
		if !isValidDate(s) {
			return apperr.NewInvalidArgument("字段 %s 的日期格式无效: %s", name, s)
		}
	case "select":
		for _, option := range options {
			if valuesEqual(value, option) {
				return nil
			}
		}
		return apperr.NewInvalidArgument("字段 %s 的值不在可选范围内: %v", name, value)
	case "checkbox":
		if _, ok := value.(bool); !ok {
			return apperr.NewInvalidArgument("字段 %s 必须是布尔值: %v", name, value)
		}
	}
	return nil
}

// isValidDate 接受2006-01-02和RFC3339两种日期格式
func isValidDate(s string) bool {
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return true
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return true
	}
	return false
}

// documentGenHandler 文档生成步骤：根据模板产出文档描述符
type documentGenHandler struct{}

// NewDocumentGenHandler 创建文档生成步骤处理器
func NewDocumentGenHandler() StepHandler {
	return &documentGenHandler{}
}

func (h *documentGenHandler) Type() string {
	return StepTypeDocumentGen
}

func (h *documentGenHandler) DefaultOutputKey() string {
	return "document"
}

func (h *documentGenHandler) ValidateConfig(cfg map[string]interface{}) error {
	if configString(cfg, "template") == "" {
		return apperr.NewInvalidArgument("文档生成步骤缺少template配置")
	}
	return nil
}

func (h *documentGenHandler) Execute(ctx context.Context, step *model.WorkflowStep, exec *model.WorkflowExecution) (*HandlerOutcome, error) {
	template := configString(step.Config, "template")
	format := configString(step.Config, "format")
	if format == "" {
		format = "pdf"
	}
	name := configString(step.Config, "name")
	if name == "" {
		name = fmt.Sprintf("%s-%s.%s", template, exec.ID, format)
	}

	documentID := uuid.New().String()
	return &HandlerOutcome{
		Output: map[string]interface{}{
			"url":        fmt.Sprintf("/documents/%s.%s", documentID, format),
			"name":       name,
			"format":     format,
			"template":   template,
			"created_at": time.Now().Format(time.RFC3339),
		},
	}, nil
}

// approvalHandler 审批步骤：为每个审批人追加一条待审批记录。
// 步骤本身不阻塞等待审批结果，编排器通过轮询审批记录推进流程。
type approvalHandler struct{}

// NewApprovalHandler 创建审批步骤处理器
func NewApprovalHandler() StepHandler {
	return &approvalHandler{}
}

func (h *approvalHandler) Type() string {
	return StepTypeApproval
}

func (h *approvalHandler) DefaultOutputKey() string {
	return "approval"
}

func (h *approvalHandler) ValidateConfig(cfg map[string]interface{}) error {
	if len(configStringList(cfg, "approvers")) == 0 {
		return apperr.NewInvalidArgument("审批步骤缺少approvers配置")
	}
	return nil
}

func (h *approvalHandler) Execute(ctx context.Context, step *model.WorkflowStep, exec *model.WorkflowExecution) (*HandlerOutcome, error) {
	approvers := configStringList(step.Config, "approvers")
	now := time.Now()

	records := make([]model.ApprovalRecord, 0, len(approvers))
	for _, approver := range approvers {
		records = append(records, model.ApprovalRecord{
			ID:        uuid.New().String(),
			StepID:    step.ID,
			UserID:    approver,
			Status:    model.ApprovalStatusPending,
			Timestamp: now,
		})
	}

	return &HandlerOutcome{
		Output: map[string]interface{}{
			"status":       string(model.ApprovalStatusPending),
			"approvers":    approvers,
			"requested_at": now.Format(time.RFC3339),
		},
		Approvals: records,
	}, nil
}
