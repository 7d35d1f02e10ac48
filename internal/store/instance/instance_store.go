package instance

import (
	"context"

	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// InstanceStore 定义服务实例存储接口
// 实现必须保证ListByName返回的实例顺序与首次注册顺序一致
type InstanceStore interface {
	// Put 保存服务实例，同ID实例会被覆盖
	Put(ctx context.Context, inst *model.ServiceInstance) error

	// Get 根据实例ID获取服务实例，不存在时返回nil
	Get(ctx context.Context, id string) (*model.ServiceInstance, error)

	// Delete 删除服务实例，返回实例是否存在
	Delete(ctx context.Context, id string) (bool, error)

	// ListByName 获取指定服务名的所有实例，按注册顺序排列
	ListByName(ctx context.Context, name string) ([]*model.ServiceInstance, error)

	// ListAll 获取全部服务实例，按注册顺序排列
	ListAll(ctx context.Context) ([]*model.ServiceInstance, error)

	// Close 释放存储资源
	Close() error
}
