package registry

import (
	"context"
	"fmt"

	"github.com/visnetotest/mesh-gateway/internal/core/apperr"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
	instanceStore "github.com/visnetotest/mesh-gateway/internal/store/instance"
)

// ServiceRegistry 提供服务实例注册与发现的业务逻辑
type ServiceRegistry interface {
	// Register 注册服务实例，同ID实例会被覆盖但保留首次注册时间
	Register(ctx context.Context, req *model.RegisterInstanceRequest) (*model.RegisterInstanceResponse, error)

	// Deregister 注销服务实例
	Deregister(ctx context.Context, instanceID string) error

	// Discover 获取指定服务的全部实例，按注册顺序排列，未注册的服务返回空列表
	Discover(ctx context.Context, serviceName string) ([]*model.ServiceInstance, error)

	// GetInstance 根据实例ID获取服务实例
	GetInstance(ctx context.Context, instanceID string) (*model.ServiceInstance, error)

	// ListInstances 获取全部服务实例
	ListInstances(ctx context.Context) ([]*model.ServiceInstance, error)

	// ListServices 按服务名汇总实例数量和请求量
	ListServices(ctx context.Context) ([]*model.ServiceSummary, error)

	// UpdateHealth 手动设置服务全部实例的健康状态，返回受影响的实例数
	UpdateHealth(ctx context.Context, serviceName string, healthy bool) (int, error)
}

// serviceRegistry 实现 ServiceRegistry 接口
type serviceRegistry struct {
	store instanceStore.InstanceStore
}

// NewServiceRegistry 创建一个新的服务注册中心
func NewServiceRegistry(store instanceStore.InstanceStore) ServiceRegistry {
	return &serviceRegistry{store: store}
}

// Register 注册服务实例，同ID实例会被覆盖但保留首次注册时间
func (r *serviceRegistry) Register(ctx context.Context, req *model.RegisterInstanceRequest) (*model.RegisterInstanceResponse, error) {
	if req.ID == "" {
		return nil, apperr.NewInvalidArgument("实例ID不能为空")
	}
	if req.Name == "" {
		return nil, apperr.NewInvalidArgument("服务名称不能为空")
	}
	if req.BaseURL == "" {
		return nil, apperr.NewInvalidArgument("服务地址不能为空")
	}

	inst := model.NewServiceInstance(req)

	// 覆盖注册时保留首次注册时间
	existing, err := r.store.Get(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("查询服务实例失败: %w", err)
	}
	if existing != nil {
		inst.RegisteredAt = existing.RegisteredAt
	}

	if err := r.store.Put(ctx, inst); err != nil {
		return nil, fmt.Errorf("注册服务实例失败: %w", err)
	}

	return &model.RegisterInstanceResponse{
		InstanceID:   inst.ID,
		RegisteredAt: inst.RegisteredAt,
	}, nil
}

// Deregister 注销服务实例
func (r *serviceRegistry) Deregister(ctx context.Context, instanceID string) error {
	existed, err := r.store.Delete(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("注销服务实例失败: %w", err)
	}
	if !existed {
		return apperr.NewNotFound("服务实例不存在: %s", instanceID)
	}
	return nil
}

// Discover 获取指定服务的全部实例，按注册顺序排列，未注册的服务返回空列表
func (r *serviceRegistry) Discover(ctx context.Context, serviceName string) ([]*model.ServiceInstance, error) {
	instances, err := r.store.ListByName(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("查询服务实例失败: %w", err)
	}
	return instances, nil
}

// GetInstance 根据实例ID获取服务实例
func (r *serviceRegistry) GetInstance(ctx context.Context, instanceID string) (*model.ServiceInstance, error) {
	inst, err := r.store.Get(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("查询服务实例失败: %w", err)
	}
	if inst == nil {
		return nil, apperr.NewNotFound("服务实例不存在: %s", instanceID)
	}
	return inst, nil
}

// ListInstances 获取全部服务实例
func (r *serviceRegistry) ListInstances(ctx context.Context) ([]*model.ServiceInstance, error) {
	instances, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询服务实例列表失败: %w", err)
	}
	return instances, nil
}

// ListServices 按服务名汇总实例数量和请求量
func (r *serviceRegistry) ListServices(ctx context.Context) ([]*model.ServiceSummary, error) {
	instances, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询服务实例列表失败: %w", err)
	}

	summaries := make(map[string]*model.ServiceSummary)
	var order []string
	for _, inst := range instances {
		summary, exists := summaries[inst.Name]
		if !exists {
			summary = &model.ServiceSummary{Name: inst.Name}
			summaries[inst.Name] = summary
			order = append(order, inst.Name)
		}
		summary.InstanceCount++
		summary.TotalRequests += inst.RequestCount()
		switch inst.Status() {
		case model.InstanceStatusActive:
			summary.ActiveCount++
		case model.InstanceStatusInactive:
			summary.InactiveCount++
		case model.InstanceStatusError:
			summary.ErrorCount++
		}
	}

	result := make([]*model.ServiceSummary, 0, len(order))
	for _, name := range order {
		result = append(result, summaries[name])
	}
	return result, nil
}

// UpdateHealth 手动设置服务全部实例的健康状态，返回受影响的实例数
func (r *serviceRegistry) UpdateHealth(ctx context.Context, serviceName string, healthy bool) (int, error) {
	instances, err := r.store.ListByName(ctx, serviceName)
	if err != nil {
		return 0, fmt.Errorf("查询服务实例失败: %w", err)
	}
	if len(instances) == 0 {
		return 0, apperr.NewNotFound("服务不存在: %s", serviceName)
	}

	status := model.InstanceStatusActive
	if !healthy {
		status = model.InstanceStatusInactive
	}
	for _, inst := range instances {
		inst.SetStatus(status)
		if err := r.store.Put(ctx, inst); err != nil {
			return 0, fmt.Errorf("更新服务实例状态失败: %w", err)
		}
	}
	return len(instances), nil
}
