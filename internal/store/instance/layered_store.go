package instance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/visnetotest/mesh-gateway/internal/config"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// LayeredStore 内存为主、etcd为备份的双写存储。
// 读操作全部走内存，保证健康检查器和网关共享同一实例对象，
// 写操作先写内存再写etcd，重启后可通过Hydrate恢复注册信息。
type LayeredStore struct {
	memory  *MemoryStore
	backend *EtcdStore
}

// NewLayeredStore 创建一个新的双写存储
func NewLayeredStore(backend *EtcdStore) *LayeredStore {
	return &LayeredStore{
		memory:  NewMemoryStore(),
		backend: backend,
	}
}

// Hydrate 从etcd加载全部实例到内存，服务启动时调用一次
func (s *LayeredStore) Hydrate(ctx context.Context) (int, error) {
	instances, err := s.backend.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("从etcd恢复服务实例失败: %w", err)
	}
	for _, inst := range instances {
		if err := s.memory.Put(ctx, inst); err != nil {
			return 0, err
		}
	}
	return len(instances), nil
}

// Sync 订阅etcd变更并应用到内存层，使多个网关副本共享同一注册视图。
// Hydrate之后调用一次，上下文取消后停止。
// 运行状态（健康状态、请求计数）由各副本本地维护，只同步注册数据
func (s *LayeredStore) Sync(ctx context.Context, logger config.Logger) error {
	return s.backend.Watch(ctx, func(event WatchEvent) {
		switch event.Type {
		case WatchEventPut:
			current, err := s.memory.Get(ctx, event.ID)
			if err == nil && current != nil && sameRegistration(current, event.Instance) {
				return // 本地写入的回显，保留正在使用的实例对象
			}
			if err := s.memory.Put(ctx, event.Instance); err != nil {
				logger.Error("同步实例注册失败", zap.String("instance_id", event.ID), zap.Error(err))
				return
			}
			logger.Info("同步远端实例注册", zap.String("instance_id", event.ID), zap.String("service", event.Instance.Name))
		case WatchEventDelete:
			existed, err := s.memory.Delete(ctx, event.ID)
			if err != nil {
				logger.Error("同步实例注销失败", zap.String("instance_id", event.ID), zap.Error(err))
				return
			}
			if existed {
				logger.Info("同步远端实例注销", zap.String("instance_id", event.ID))
			}
		}
	})
}

// sameRegistration 判断两个实例的注册数据是否一致，
// 一致时视为本地写入的回显，不替换内存中的实例对象
func sameRegistration(a, b *model.ServiceInstance) bool {
	return a.Name == b.Name &&
		a.BaseURL == b.BaseURL &&
		a.HealthEndpoint == b.HealthEndpoint &&
		a.Weight == b.Weight &&
		a.Zone == b.Zone &&
		a.Region == b.Region &&
		a.RegisteredAt.Equal(b.RegisteredAt)
}

// Put 保存服务实例，同ID实例会被覆盖
func (s *LayeredStore) Put(ctx context.Context, inst *model.ServiceInstance) error {
	if err := s.memory.Put(ctx, inst); err != nil {
		return err
	}
	return s.backend.Put(ctx, inst)
}

// Get 根据实例ID获取服务实例，不存在时返回nil
func (s *LayeredStore) Get(ctx context.Context, id string) (*model.ServiceInstance, error) {
	return s.memory.Get(ctx, id)
}

// Delete 删除服务实例，返回实例是否存在
func (s *LayeredStore) Delete(ctx context.Context, id string) (bool, error) {
	existed, err := s.memory.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if _, err := s.backend.Delete(ctx, id); err != nil {
		return existed, err
	}
	return existed, nil
}

// ListByName 获取指定服务名的所有实例，按注册顺序排列
func (s *LayeredStore) ListByName(ctx context.Context, name string) ([]*model.ServiceInstance, error) {
	return s.memory.ListByName(ctx, name)
}

// ListAll 获取全部服务实例，按注册顺序排列
func (s *LayeredStore) ListAll(ctx context.Context) ([]*model.ServiceInstance, error) {
	return s.memory.ListAll(ctx)
}

// Close 释放存储资源
func (s *LayeredStore) Close() error {
	if err := s.memory.Close(); err != nil {
		return err
	}
	return s.backend.Close()
}
