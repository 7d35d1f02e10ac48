package instance

import (
	"context"
	"sync"

	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// MemoryStore 基于内存的服务实例存储实现
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*model.ServiceInstance
	order     []string // 实例ID的注册顺序，覆盖注册不改变位置
}

// NewMemoryStore 创建一个新的内存服务实例存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*model.ServiceInstance),
	}
}

// Put 保存服务实例，同ID实例会被覆盖
func (s *MemoryStore) Put(ctx context.Context, inst *model.ServiceInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[inst.ID]; !exists {
		s.order = append(s.order, inst.ID)
	}
	s.instances[inst.ID] = inst
	return nil
}

// Get 根据实例ID获取服务实例，不存在时返回nil
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.ServiceInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.instances[id], nil
}

// Delete 删除服务实例，返回实例是否存在
func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[id]; !exists {
		return false, nil
	}

	delete(s.instances, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// ListByName 获取指定服务名的所有实例，按注册顺序排列
func (s *MemoryStore) ListByName(ctx context.Context, name string) ([]*model.ServiceInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.ServiceInstance
	for _, id := range s.order {
		inst := s.instances[id]
		if inst != nil && inst.Name == name {
			result = append(result, inst)
		}
	}
	return result, nil
}

// ListAll 获取全部服务实例，按注册顺序排列
func (s *MemoryStore) ListAll(ctx context.Context) ([]*model.ServiceInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.ServiceInstance, 0, len(s.order))
	for _, id := range s.order {
		if inst := s.instances[id]; inst != nil {
			result = append(result, inst)
		}
	}
	return result, nil
}

// Close 释放存储资源
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances = make(map[string]*model.ServiceInstance)
	s.order = nil
	return nil
}
