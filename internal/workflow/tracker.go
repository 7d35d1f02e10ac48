package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/visnetotest/mesh-gateway/internal/config"
	"github.com/visnetotest/mesh-gateway/internal/core/apperr"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
	executionStore "github.com/visnetotest/mesh-gateway/internal/store/execution"
)

// 执行生命周期事件名称
const (
	EventExecutionCreated = "created"
	EventExecutionUpdated = "updated"
	EventExecutionDeleted = "deleted"
)

// ExecutionEvent 表示一次执行生命周期事件，携带执行记录的拷贝
type ExecutionEvent struct {
	Type      string
	Execution *model.WorkflowExecution
}

// EventListener 执行事件回调
type EventListener func(event ExecutionEvent)

// ExecutionTracker 负责工作流执行记录的存储和查询。
// 状态转换由外部编排器决定，跟踪器只校验存储层一致性，
// 所有查询接口返回执行记录的拷贝。
type ExecutionTracker interface {
	// Create 保存新的执行记录，ID已存在时返回AlreadyExists
	Create(ctx context.Context, exec *model.WorkflowExecution) error

	// Update 整体替换执行记录，ID不存在时返回NotFound，绝不隐式创建
	Update(ctx context.Context, exec *model.WorkflowExecution) error

	// Get 根据执行ID获取执行记录
	Get(ctx context.Context, id string) (*model.WorkflowExecution, error)

	// ListByWorkflow 获取指定工作流的全部执行记录
	ListByWorkflow(ctx context.Context, workflowID string) ([]*model.WorkflowExecution, error)

	// ListByStatus 获取指定状态的全部执行记录
	ListByStatus(ctx context.Context, status model.ExecutionStatus) ([]*model.WorkflowExecution, error)

	// ListActive 获取running和paused状态的执行记录
	ListActive(ctx context.Context) ([]*model.WorkflowExecution, error)

	// ListByTenant 获取指定租户的全部执行记录
	ListByTenant(ctx context.Context, tenantID string) ([]*model.WorkflowExecution, error)

	// ListErrors 获取失败或带错误信息的执行记录，workflowID为空时不过滤
	ListErrors(ctx context.Context, workflowID string) ([]*model.WorkflowExecution, error)

	// Search 多字段组合查询，条件之间为AND关系
	Search(ctx context.Context, query *model.ExecutionQuery) ([]*model.WorkflowExecution, error)

	// GetExecutionMetrics 统计执行指标，workflowID为空时统计全部
	GetExecutionMetrics(ctx context.Context, workflowID string) (*model.ExecutionMetrics, error)

	// GetDashboardStats 统计仪表盘数据，tenantID为空时统计全部
	GetDashboardStats(ctx context.Context, tenantID string) (*model.DashboardStats, error)

	// GetTimeSeries 按天统计最近days天的执行数量，按日期升序排列
	GetTimeSeries(ctx context.Context, days int) ([]model.ExecutionTimePoint, error)

	// CleanupOldExecutions 删除有效时间早于olderThanDays天前且已结束的执行记录，
	// 返回删除数量，running和paused状态的记录无论多旧都不会删除
	CleanupOldExecutions(ctx context.Context, olderThanDays int) (int, error)

	// AddEventListener 注册事件监听器，返回用于注销的句柄
	AddEventListener(event string, listener EventListener) (string, error)

	// RemoveEventListener 注销事件监听器，句柄不存在时返回false
	RemoveEventListener(event string, handle string) bool
}

// listenerEntry 一个已注册的监听器及其句柄
type listenerEntry struct {
	handle   string
	listener EventListener
}

// executionTracker 实现 ExecutionTracker 接口
type executionTracker struct {
	store  executionStore.ExecutionStore
	logger config.Logger

	// writeMu 串行化create/update/cleanup的检查和写入
	writeMu sync.Mutex

	listenerMu sync.RWMutex
	listeners  map[string][]listenerEntry
}

// NewExecutionTracker 创建一个新的执行跟踪器
func NewExecutionTracker(store executionStore.ExecutionStore, logger config.Logger) ExecutionTracker {
	return &executionTracker{
		store:     store,
		logger:    logger,
		listeners: make(map[string][]listenerEntry),
	}
}

// Create 保存新的执行记录，ID已存在时返回AlreadyExists
func (t *executionTracker) Create(ctx context.Context, exec *model.WorkflowExecution) error {
	if exec == nil || exec.ID == "" {
		return apperr.NewInvalidArgument("执行ID不能为空")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	existing, err := t.store.Get(ctx, exec.ID)
	if err != nil {
		return fmt.Errorf("查询执行记录失败: %w", err)
	}
	if existing != nil {
		return apperr.NewAlreadyExists("执行记录已存在: %s", exec.ID)
	}

	if err := t.store.Put(ctx, exec.Clone()); err != nil {
		return fmt.Errorf("保存执行记录失败: %w", err)
	}

	t.emit(EventExecutionCreated, exec)
	return nil
}

// Update 整体替换执行记录，ID不存在时返回NotFound，绝不隐式创建
func (t *executionTracker) Update(ctx context.Context, exec *model.WorkflowExecution) error {
	if exec == nil || exec.ID == "" {
		return apperr.NewInvalidArgument("执行ID不能为空")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	existing, err := t.store.Get(ctx, exec.ID)
	if err != nil {
		return fmt.Errorf("查询执行记录失败: %w", err)
	}
	if existing == nil {
		return apperr.NewNotFound("执行记录不存在: %s", exec.ID)
	}

	if existing.Status != exec.Status {
		t.logger.Info("执行状态变更",
			zap.String("execution_id", exec.ID),
			zap.String("from", string(existing.Status)),
			zap.String("to", string(exec.Status)))
	}

	if err := t.store.Put(ctx, exec.Clone()); err != nil {
		return fmt.Errorf("保存执行记录失败: %w", err)
	}

	t.emit(EventExecutionUpdated, exec)
	return nil
}

// Get 根据执行ID获取执行记录
func (t *executionTracker) Get(ctx context.Context, id string) (*model.WorkflowExecution, error) {
	exec, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("查询执行记录失败: %w", err)
	}
	if exec == nil {
		return nil, apperr.NewNotFound("执行记录不存在: %s", id)
	}
	return exec.Clone(), nil
}

// ListByWorkflow 获取指定工作流的全部执行记录
func (t *executionTracker) ListByWorkflow(ctx context.Context, workflowID string) ([]*model.WorkflowExecution, error) {
	return t.filter(ctx, func(exec *model.WorkflowExecution) bool {
		return exec.WorkflowID == workflowID
	})
}

// ListByStatus 获取指定状态的全部执行记录
func (t *executionTracker) ListByStatus(ctx context.Context, status model.ExecutionStatus) ([]*model.WorkflowExecution, error) {
	return t.filter(ctx, func(exec *model.WorkflowExecution) bool {
		return exec.Status == status
	})
}

// ListActive 获取running和paused状态的执行记录
func (t *executionTracker) ListActive(ctx context.Context) ([]*model.WorkflowExecution, error) {
	return t.filter(ctx, func(exec *model.WorkflowExecution) bool {
		return exec.IsActive()
	})
}

// ListByTenant 获取指定租户的全部执行记录
func (t *executionTracker) ListByTenant(ctx context.Context, tenantID string) ([]*model.WorkflowExecution, error) {
	return t.filter(ctx, func(exec *model.WorkflowExecution) bool {
		return exec.TenantID == tenantID
	})
}

// ListErrors 获取失败或带错误信息的执行记录，workflowID为空时不过滤
func (t *executionTracker) ListErrors(ctx context.Context, workflowID string) ([]*model.WorkflowExecution, error) {
	return t.filter(ctx, func(exec *model.WorkflowExecution) bool {
		if workflowID != "" && exec.WorkflowID != workflowID {
			return false
		}
		return exec.Status == model.ExecutionStatusFailed || exec.Error != nil
	})
}

// Search 多字段组合查询，条件之间为AND关系
func (t *executionTracker) Search(ctx context.Context, query *model.ExecutionQuery) ([]*model.WorkflowExecution, error) {
	if query == nil {
		query = &model.ExecutionQuery{}
	}
	text := strings.ToLower(query.Text)

	return t.filter(ctx, func(exec *model.WorkflowExecution) bool {
		if query.WorkflowID != "" && exec.WorkflowID != query.WorkflowID {
			return false
		}
		if query.TenantID != "" && exec.TenantID != query.TenantID {
			return false
		}
		if query.Status != "" && exec.Status != query.Status {
			return false
		}
		if query.UserID != "" && exec.Context.UserID != query.UserID {
			return false
		}
		if text != "" && !matchText(exec, text) {
			return false
		}
		return true
	})
}

// matchText 在执行记录的标识字段中做大小写不敏感的子串匹配
func matchText(exec *model.WorkflowExecution, text string) bool {
	for _, field := range []string{
		exec.ID,
		exec.WorkflowID,
		exec.TenantID,
		exec.CurrentStep,
		exec.Context.UserID,
	} {
		if strings.Contains(strings.ToLower(field), text) {
			return true
		}
	}
	return false
}

// filter 遍历存储中的执行记录，返回满足条件的拷贝，按开始时间倒序排列
func (t *executionTracker) filter(ctx context.Context, keep func(*model.WorkflowExecution) bool) ([]*model.WorkflowExecution, error) {
	all, err := t.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询执行记录列表失败: %w", err)
	}

	result := make([]*model.WorkflowExecution, 0)
	for _, exec := range all {
		if keep(exec) {
			result = append(result, exec.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].StartTime.After(result[j].StartTime)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetExecutionMetrics 统计执行指标，workflowID为空时统计全部
func (t *executionTracker) GetExecutionMetrics(ctx context.Context, workflowID string) (*model.ExecutionMetrics, error) {
	all, err := t.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询执行记录列表失败: %w", err)
	}

	metrics := &model.ExecutionMetrics{}
	var completedDuration int64
	for _, exec := range all {
		if workflowID != "" && exec.WorkflowID != workflowID {
			continue
		}
		metrics.Total++
		switch exec.Status {
		case model.ExecutionStatusCompleted:
			metrics.Completed++
			completedDuration += exec.Duration
		case model.ExecutionStatusFailed:
			metrics.Failed++
		case model.ExecutionStatusRunning:
			metrics.Running++
		case model.ExecutionStatusPaused:
			metrics.Paused++
		case model.ExecutionStatusCancelled:
			metrics.Cancelled++
		}
	}

	// 平均耗时只统计已完成的执行
	if metrics.Completed > 0 {
		metrics.AverageDuration = float64(completedDuration) / float64(metrics.Completed)
	}
	return metrics, nil
}

// GetDashboardStats 统计仪表盘数据，tenantID为空时统计全部
func (t *executionTracker) GetDashboardStats(ctx context.Context, tenantID string) (*model.DashboardStats, error) {
	all, err := t.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询执行记录列表失败: %w", err)
	}

	now := time.Now()
	year, month, day := now.Date()
	startOfDay := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7 // 周一作为一周的开始
	}
	startOfWeek := startOfDay.AddDate(0, 0, -(weekday - 1))
	startOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())

	stats := &model.DashboardStats{
		ByStatus: map[model.ExecutionStatus]int{
			model.ExecutionStatusPending:   0,
			model.ExecutionStatusRunning:   0,
			model.ExecutionStatusCompleted: 0,
			model.ExecutionStatusFailed:    0,
			model.ExecutionStatusCancelled: 0,
			model.ExecutionStatusPaused:    0,
		},
	}

	var completedDuration int64
	for _, exec := range all {
		if tenantID != "" && exec.TenantID != tenantID {
			continue
		}
		stats.Total++
		stats.ByStatus[exec.Status]++
		if exec.Status == model.ExecutionStatusCompleted {
			completedDuration += exec.Duration
		}

		if !exec.StartTime.Before(startOfDay) {
			stats.Today++
		}
		if !exec.StartTime.Before(startOfWeek) {
			stats.ThisWeek++
		}
		if !exec.StartTime.Before(startOfMonth) {
			stats.ThisMonth++
		}
	}

	completed := stats.ByStatus[model.ExecutionStatusCompleted]
	finished := completed +
		stats.ByStatus[model.ExecutionStatusFailed] +
		stats.ByStatus[model.ExecutionStatusCancelled]
	if finished > 0 {
		stats.SuccessRate = float64(completed) / float64(finished) * 100
	}
	if completed > 0 {
		stats.AverageDuration = float64(completedDuration) / float64(completed)
	}
	return stats, nil
}

// GetTimeSeries 按天统计最近days天的执行数量，按日期升序排列
func (t *executionTracker) GetTimeSeries(ctx context.Context, days int) ([]model.ExecutionTimePoint, error) {
	if days <= 0 {
		return nil, apperr.NewInvalidArgument("统计天数必须大于0: %d", days)
	}

	all, err := t.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询执行记录列表失败: %w", err)
	}

	now := time.Now()
	year, month, day := now.Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, now.Location())

	points := make([]model.ExecutionTimePoint, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -(days - 1 - i))
		key := date.Format("2006-01-02")
		points[i] = model.ExecutionTimePoint{Date: key}
		index[key] = i
	}

	for _, exec := range all {
		if i, ok := index[exec.StartTime.Format("2006-01-02")]; ok {
			points[i].Started++
		}
		if exec.EndTime != nil {
			if i, ok := index[exec.EndTime.Format("2006-01-02")]; ok {
				switch exec.Status {
				case model.ExecutionStatusCompleted:
					points[i].Completed++
				case model.ExecutionStatusFailed:
					points[i].Failed++
				}
			}
		}
	}
	return points, nil
}

// CleanupOldExecutions 删除有效时间早于olderThanDays天前且已结束的执行记录
func (t *executionTracker) CleanupOldExecutions(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		return 0, apperr.NewInvalidArgument("保留天数必须大于0: %d", olderThanDays)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	all, err := t.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("查询执行记录列表失败: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	deleted := 0
	for _, exec := range all {
		if !exec.IsTerminal() {
			continue // 未结束的执行无论多旧都不删除
		}
		if !exec.EffectiveTime().Before(cutoff) {
			continue
		}
		if _, err := t.store.Delete(ctx, exec.ID); err != nil {
			return deleted, fmt.Errorf("删除执行记录失败 [%s]: %w", exec.ID, err)
		}
		deleted++
		t.emit(EventExecutionDeleted, exec)
	}

	if deleted > 0 {
		t.logger.Info("清理过期执行记录完成",
			zap.Int("deleted", deleted),
			zap.Int("older_than_days", olderThanDays))
	}
	return deleted, nil
}

// AddEventListener 注册事件监听器，返回用于注销的句柄
func (t *executionTracker) AddEventListener(event string, listener EventListener) (string, error) {
	switch event {
	case EventExecutionCreated, EventExecutionUpdated, EventExecutionDeleted:
	default:
		return "", apperr.NewInvalidArgument("未知的事件类型: %s", event)
	}
	if listener == nil {
		return "", apperr.NewInvalidArgument("监听器不能为空")
	}

	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()

	handle := uuid.New().String()
	t.listeners[event] = append(t.listeners[event], listenerEntry{
		handle:   handle,
		listener: listener,
	})
	return handle, nil
}

// RemoveEventListener 注销事件监听器，句柄不存在时返回false
func (t *executionTracker) RemoveEventListener(event string, handle string) bool {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()

	entries := t.listeners[event]
	for i, entry := range entries {
		if entry.handle == handle {
			t.listeners[event] = append(entries[:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// emit 按注册顺序同步通知监听器，单个监听器panic不影响后续监听器
func (t *executionTracker) emit(event string, exec *model.WorkflowExecution) {
	t.listenerMu.RLock()
	entries := make([]listenerEntry, len(t.listeners[event]))
	copy(entries, t.listeners[event])
	t.listenerMu.RUnlock()

	if len(entries) == 0 {
		return
	}

	payload := ExecutionEvent{Type: event, Execution: exec.Clone()}
	for _, entry := range entries {
		t.notify(entry, payload)
	}
}

// notify 调用单个监听器并隔离panic
func (t *executionTracker) notify(entry listenerEntry, event ExecutionEvent) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("事件监听器发生panic",
				zap.String("event", event.Type),
				zap.String("execution_id", event.Execution.ID),
				zap.Any("panic", r))
		}
	}()
	entry.listener(event)
}
