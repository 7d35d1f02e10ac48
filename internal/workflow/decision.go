package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/visnetotest/mesh-gateway/internal/core/apperr"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// 决策条件支持的比较操作符
var decisionOperators = map[string]bool{
	"eq":       true,
	"ne":       true,
	"gt":       true,
	"gte":      true,
	"lt":       true,
	"lte":      true,
	"contains": true,
	"in":       true,
	"not_in":   true,
}

// decisionHandler 决策步骤：按顺序对条件列表做严格的从左到右折叠求值。
// 每个条件自带logicalOperator（AND/OR）决定它与之前累计结果的组合方式，
// 没有操作符优先级和括号分组。
type decisionHandler struct{}

// NewDecisionHandler 创建决策步骤处理器
func NewDecisionHandler() StepHandler {
	return &decisionHandler{}
}

func (h *decisionHandler) Type() string {
	return StepTypeDecision
}

func (h *decisionHandler) DefaultOutputKey() string {
	return "decision"
}

func (h *decisionHandler) ValidateConfig(cfg map[string]interface{}) error {
	conditions := configList(cfg, "conditions")
	if len(conditions) == 0 {
		return apperr.NewInvalidArgument("决策步骤缺少conditions配置")
	}

	for i, item := range conditions {
		cond, ok := item.(map[string]interface{})
		if !ok {
			return apperr.NewInvalidArgument("条件必须是对象: conditions[%d]", i)
		}
		if configString(cond, "field") == "" {
			return apperr.NewInvalidArgument("条件缺少field: conditions[%d]", i)
		}
		operator := configString(cond, "operator")
		if !decisionOperators[operator] {
			return apperr.NewInvalidArgument("不支持的比较操作符: %s", operator)
		}
		if logical := configString(cond, "logicalOperator"); logical != "" {
			if !strings.EqualFold(logical, "AND") && !strings.EqualFold(logical, "OR") {
				return apperr.NewInvalidArgument("不支持的逻辑操作符: %s", logical)
			}
		}
	}
	return nil
}

func (h *decisionHandler) Execute(ctx context.Context, step *model.WorkflowStep, exec *model.WorkflowExecution) (*HandlerOutcome, error) {
	conditions := configList(step.Config, "conditions")

	var result bool
	for i, item := range conditions {
		cond, _ := item.(map[string]interface{})
		value := evaluateCondition(cond, exec)

		if i == 0 {
			result = value
			continue
		}
		if strings.EqualFold(configString(cond, "logicalOperator"), "OR") {
			result = result || value
		} else {
			result = result && value
		}
	}

	return &HandlerOutcome{
		Output: map[string]interface{}{
			"result":       result,
			"evaluated_at": time.Now().Format(time.RFC3339),
		},
	}, nil
}

// evaluateCondition 对单个条件求值，字段值取自执行数据，其次是执行变量
func evaluateCondition(cond map[string]interface{}, exec *model.WorkflowExecution) bool {
	field := configString(cond, "field")
	expected := cond["value"]
	actual := lookupField(exec, field)

	switch configString(cond, "operator") {
	case "eq":
		return valuesEqual(actual, expected)
	case "ne":
		return !valuesEqual(actual, expected)
	case "gt":
		return compareNumbers(actual, expected, func(a, b float64) bool { return a > b })
	case "gte":
		return compareNumbers(actual, expected, func(a, b float64) bool { return a >= b })
	case "lt":
		return compareNumbers(actual, expected, func(a, b float64) bool { return a < b })
	case "lte":
		return compareNumbers(actual, expected, func(a, b float64) bool { return a <= b })
	case "contains":
		return containsValue(actual, expected)
	case "in":
		return inList(actual, expected)
	case "not_in":
		return !inList(actual, expected)
	}
	return false
}

// lookupField 查找字段值，执行数据优先于执行变量
func lookupField(exec *model.WorkflowExecution, field string) interface{} {
	if exec.Data != nil {
		if v, ok := exec.Data[field]; ok {
			return v
		}
	}
	if exec.Variables != nil {
		if v, ok := exec.Variables[field]; ok {
			return v
		}
	}
	return nil
}

// valuesEqual 先尝试数字比较，两侧都可转为数字时按数值相等判断，
// 否则按字符串形式比较
func valuesEqual(a, b interface{}) bool {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		return an == bn
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareNumbers 把两侧都转换为数字后比较，任一侧无法转换时判为false
func compareNumbers(a, b interface{}, cmp func(a, b float64) bool) bool {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if !aok || !bok {
		return false
	}
	return cmp(an, bn)
}

// toNumber 数字类型转换，支持JSON解码产生的各种数值类型和数字字符串
func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		return parsed, err == nil
	}
	return 0, false
}

// containsValue 字段值为列表时判断成员归属，为字符串时判断子串
func containsValue(actual, expected interface{}) bool {
	switch v := actual.(type) {
	case []interface{}:
		for _, item := range v {
			if valuesEqual(item, expected) {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(v, fmt.Sprint(expected))
	}
	return false
}

// inList 判断字段值是否属于条件值列表
func inList(actual, expected interface{}) bool {
	list, ok := expected.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if valuesEqual(actual, item) {
			return true
		}
	}
	return false
}
