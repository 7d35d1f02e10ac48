package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/visnetotest/mesh-gateway/internal/config"
	"github.com/visnetotest/mesh-gateway/internal/core/apperr"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// HandlerOutcome 表示处理器执行成功产出的结果。
// 处理器不直接修改执行记录，由执行器在成功后统一写入，
// 超时被放弃的处理器因此不会留下部分写入。
type HandlerOutcome struct {
	// Output 写入execution.data的输出数据
	Output map[string]interface{}

	// Approvals 需要追加到execution.metadata的审批记录
	Approvals []model.ApprovalRecord
}

// StepHandler 定义类型化步骤处理器
type StepHandler interface {
	// Type 处理器对应的步骤类型
	Type() string

	// DefaultOutputKey 输出数据在execution.data中的默认键
	DefaultOutputKey() string

	// ValidateConfig 校验步骤配置，在处理器产生任何副作用之前调用
	ValidateConfig(cfg map[string]interface{}) error

	// Execute 执行步骤，ctx超时后应尽快放弃工作
	Execute(ctx context.Context, step *model.WorkflowStep, exec *model.WorkflowExecution) (*HandlerOutcome, error)
}

// StepExecutor 把步骤分发给类型对应的处理器执行，
// 统一负责配置校验、超时控制和结果写入
type StepExecutor struct {
	handlers       map[string]StepHandler
	defaultTimeout time.Duration
	logger         config.Logger
}

// NewStepExecutor 创建一个新的步骤执行器，处理器需要单独注册
func NewStepExecutor(defaultTimeout time.Duration, logger config.Logger) *StepExecutor {
	if defaultTimeout <= 0 {
		defaultTimeout = 300 * time.Second
	}
	return &StepExecutor{
		handlers:       make(map[string]StepHandler),
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// RegisterHandler 注册步骤处理器，同类型的处理器会被覆盖
func (e *StepExecutor) RegisterHandler(h StepHandler) {
	e.handlers[h.Type()] = h
}

// HandlerTypes 返回已注册的步骤类型
func (e *StepExecutor) HandlerTypes() []string {
	types := make([]string, 0, len(e.handlers))
	for t := range e.handlers {
		types = append(types, t)
	}
	return types
}

// handlerResult 处理器goroutine的返回值
type handlerResult struct {
	outcome *HandlerOutcome
	err     error
}

// ExecuteStep 执行单个步骤：校验、分发、超时控制、结果写入。
// 成功时把输出写入execution.data并返回步骤结果，
// 超时返回Timeout错误，与处理器自身的错误区分开。
func (e *StepExecutor) ExecuteStep(ctx context.Context, step *model.WorkflowStep, exec *model.WorkflowExecution) (*model.StepResult, error) {
	if step == nil {
		return nil, apperr.NewInvalidArgument("步骤定义不能为空")
	}
	if step.ID == "" {
		return nil, apperr.NewInvalidArgument("步骤ID不能为空")
	}
	if step.Name == "" {
		return nil, apperr.NewInvalidArgument("步骤名称不能为空: %s", step.ID)
	}
	if step.Type == "" {
		return nil, apperr.NewInvalidArgument("步骤类型不能为空: %s", step.ID)
	}
	if exec == nil {
		return nil, apperr.NewInvalidArgument("执行记录不能为空")
	}

	handler, ok := e.handlers[step.Type]
	if !ok {
		return nil, apperr.NewInvalidArgument("未知的步骤类型 [%s]: %s", step.ID, step.Type)
	}

	// 配置校验先于一切副作用
	if err := handler.ValidateConfig(step.Config); err != nil {
		return nil, fmt.Errorf("步骤配置校验失败 [%s]: %w", step.ID, err)
	}

	timeout := e.defaultTimeout
	if step.Timeout > 0 {
		timeout = time.Duration(step.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.logger.Debug("开始执行步骤",
		zap.String("execution_id", exec.ID),
		zap.String("step_id", step.ID),
		zap.String("step_type", step.Type))

	start := time.Now()
	resultCh := make(chan handlerResult, 1)
	go func() {
		outcome, err := handler.Execute(ctx, step, exec)
		resultCh <- handlerResult{outcome: outcome, err: err}
	}()

	var res handlerResult
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			e.logger.Warn("步骤执行超时",
				zap.String("execution_id", exec.ID),
				zap.String("step_id", step.ID),
				zap.Duration("timeout", timeout))
			return nil, apperr.NewTimeout("步骤执行超时 [%s]: %s", step.ID, timeout)
		}
		return nil, fmt.Errorf("步骤执行被取消 [%s]: %w", step.ID, ctx.Err())
	case res = <-resultCh:
	}

	durationMs := time.Since(start).Milliseconds()
	if res.err != nil {
		e.logger.Warn("步骤执行失败",
			zap.String("execution_id", exec.ID),
			zap.String("step_id", step.ID),
			zap.Error(res.err))
		return nil, fmt.Errorf("步骤执行失败 [%s]: %w", step.ID, res.err)
	}

	if res.outcome == nil {
		res.outcome = &HandlerOutcome{}
	}

	outputKey := configString(step.Config, "output_key")
	if outputKey == "" {
		outputKey = handler.DefaultOutputKey()
	}

	if exec.Data == nil {
		exec.Data = make(map[string]interface{})
	}
	exec.Data[outputKey] = res.outcome.Output

	if len(res.outcome.Approvals) > 0 {
		exec.Metadata.Approvals = append(exec.Metadata.Approvals, res.outcome.Approvals...)
		exec.Metadata.ApprovalRequired = true
	}

	e.logger.Info("步骤执行完成",
		zap.String("execution_id", exec.ID),
		zap.String("step_id", step.ID),
		zap.String("output_key", outputKey),
		zap.Int64("duration_ms", durationMs))

	return &model.StepResult{
		StepID:    step.ID,
		OutputKey: outputKey,
		Output:    res.outcome.Output,
		Duration:  durationMs,
	}, nil
}
