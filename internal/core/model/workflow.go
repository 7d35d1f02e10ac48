package model

import (
	"time"
)

// ExecutionStatus 表示工作流执行状态
type ExecutionStatus string

const (
	// ExecutionStatusPending 已创建，尚未开始执行
	ExecutionStatusPending ExecutionStatus = "pending"
	// ExecutionStatusRunning 正在执行
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusCompleted 执行成功结束
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusFailed 执行失败结束
	ExecutionStatusFailed ExecutionStatus = "failed"
	// ExecutionStatusCancelled 执行被取消
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	// ExecutionStatusPaused 执行暂停，可恢复为running
	ExecutionStatusPaused ExecutionStatus = "paused"
)

// ApprovalStatus 表示审批记录状态
type ApprovalStatus string

const (
	// ApprovalStatusPending 等待审批
	ApprovalStatusPending ApprovalStatus = "pending"
	// ApprovalStatusApproved 已批准
	ApprovalStatusApproved ApprovalStatus = "approved"
	// ApprovalStatusRejected 已拒绝
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// WorkflowExecution 表示工作流定义的一次执行实例。
// 状态转换由外部编排器驱动，跟踪器只负责存储一致性。
type WorkflowExecution struct {
	ID              string                 `json:"id"`
	WorkflowID      string                 `json:"workflow_id"`
	WorkflowVersion int                    `json:"workflow_version"`
	TenantID        string                 `json:"tenant_id"`
	Status          ExecutionStatus        `json:"status"`
	CurrentStep     string                 `json:"current_step,omitempty"`
	CompletedSteps  []string               `json:"completed_steps"`
	Data            map[string]interface{} `json:"data"`
	Variables       map[string]interface{} `json:"variables"`
	Context         ExecutionContext       `json:"context"`
	StartTime       time.Time              `json:"start_time"`
	EndTime         *time.Time             `json:"end_time,omitempty"`
	Duration        int64                  `json:"duration,omitempty"`
	Error           *ExecutionError        `json:"error,omitempty"`
	Metadata        ExecutionMetadata      `json:"metadata"`
}

// ExecutionContext 表示执行的调用上下文
type ExecutionContext struct {
	UserID            string `json:"user_id"`
	Role              string `json:"role,omitempty"`
	IP                string `json:"ip,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
	RequestID         string `json:"request_id,omitempty"`
	ParentExecutionID string `json:"parent_execution_id,omitempty"`
	RootExecutionID   string `json:"root_execution_id,omitempty"`
}

// ExecutionError 表示执行失败的错误信息
type ExecutionError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	StepID    string    `json:"step_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionMetadata 表示执行的元数据
type ExecutionMetadata struct {
	AttemptNumber    int              `json:"attempt_number"`
	RetryCount       int              `json:"retry_count"`
	ParallelGroup    string           `json:"parallel_group,omitempty"`
	LoopIteration    int              `json:"loop_iteration,omitempty"`
	SubWorkflowID    string           `json:"sub_workflow_id,omitempty"`
	ApprovalRequired bool             `json:"approval_required"`
	Approvals        []ApprovalRecord `json:"approvals,omitempty"`
}

// ApprovalRecord 表示一条审批记录，由审批步骤追加，只增不删
type ApprovalRecord struct {
	ID        string         `json:"id"`
	StepID    string         `json:"step_id"`
	UserID    string         `json:"user_id"`
	Status    ApprovalStatus `json:"status"`
	Comment   string         `json:"comment,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// IsTerminal 判断执行是否已结束
func (e *WorkflowExecution) IsTerminal() bool {
	switch e.Status {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive 判断执行是否处于活跃状态（running或paused）
func (e *WorkflowExecution) IsActive() bool {
	return e.Status == ExecutionStatusRunning || e.Status == ExecutionStatusPaused
}

// EffectiveTime 返回用于过期清理的有效时间：优先结束时间，否则开始时间
func (e *WorkflowExecution) EffectiveTime() time.Time {
	if e.EndTime != nil {
		return *e.EndTime
	}
	return e.StartTime
}

// Clone 返回执行记录的深拷贝，查询接口返回拷贝以避免调用方持有可变引用
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	clone := *e

	if e.CompletedSteps != nil {
		clone.CompletedSteps = make([]string, len(e.CompletedSteps))
		copy(clone.CompletedSteps, e.CompletedSteps)
	}
	clone.Data = cloneMap(e.Data)
	clone.Variables = cloneMap(e.Variables)

	if e.EndTime != nil {
		endTime := *e.EndTime
		clone.EndTime = &endTime
	}
	if e.Error != nil {
		errCopy := *e.Error
		clone.Error = &errCopy
	}
	if e.Metadata.Approvals != nil {
		clone.Metadata.Approvals = make([]ApprovalRecord, len(e.Metadata.Approvals))
		copy(clone.Metadata.Approvals, e.Metadata.Approvals)
	}
	return &clone
}

// cloneMap 浅拷贝map，值为调用方提供的任意数据，按约定不在存储后修改
func cloneMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// WorkflowStep 表示工作流中的一个步骤定义，由外部编排器提供
type WorkflowStep struct {
	ID      string                 `json:"id"`
	Name    string                 `json:"name"`
	Type    string                 `json:"type"`
	Config  map[string]interface{} `json:"config"`
	Timeout int                    `json:"timeout,omitempty"`
}

// StepResult 表示一个步骤执行成功后的结果
type StepResult struct {
	StepID    string                 `json:"step_id"`
	OutputKey string                 `json:"output_key"`
	Output    map[string]interface{} `json:"output"`
	Duration  int64                  `json:"duration"`
}

// ExecutionMetrics 表示某个工作流（或全部工作流）的执行统计
type ExecutionMetrics struct {
	Total           int     `json:"total"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	Running         int     `json:"running"`
	Paused          int     `json:"paused"`
	Cancelled       int     `json:"cancelled"`
	AverageDuration float64 `json:"average_duration"`
}

// DashboardStats 表示仪表盘聚合统计
type DashboardStats struct {
	Total           int                     `json:"total"`
	ByStatus        map[ExecutionStatus]int `json:"by_status"`
	SuccessRate     float64                 `json:"success_rate"`
	Today           int                     `json:"today"`
	ThisWeek        int                     `json:"this_week"`
	ThisMonth       int                     `json:"this_month"`
	AverageDuration float64                 `json:"average_duration"`
}

// ExecutionTimePoint 表示时间序列中一天的执行计数
type ExecutionTimePoint struct {
	Date      string `json:"date"`
	Started   int    `json:"started"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// ExecutionQuery 表示多字段组合查询条件，零值字段不参与过滤
type ExecutionQuery struct {
	WorkflowID string          `json:"workflow_id,omitempty"`
	TenantID   string          `json:"tenant_id,omitempty"`
	Status     ExecutionStatus `json:"status,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	Text       string          `json:"text,omitempty"`
}
