package execution

import (
	"context"

	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// ExecutionStore 定义工作流执行记录存储接口
// 实现返回的是内部对象，防御性拷贝由上层追踪器负责
type ExecutionStore interface {
	// Put 保存执行记录，同ID记录会被覆盖
	Put(ctx context.Context, exec *model.WorkflowExecution) error

	// Get 根据执行ID获取执行记录，不存在时返回nil
	Get(ctx context.Context, id string) (*model.WorkflowExecution, error)

	// Delete 删除执行记录，返回记录是否存在
	Delete(ctx context.Context, id string) (bool, error)

	// ListAll 获取全部执行记录
	ListAll(ctx context.Context) ([]*model.WorkflowExecution, error)

	// Count 返回执行记录总数
	Count(ctx context.Context) (int, error)

	// Close 释放存储资源
	Close() error
}
