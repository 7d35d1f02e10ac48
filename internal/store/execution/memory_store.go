package execution

import (
	"context"
	"sync"

	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// MemoryStore 基于内存的执行记录存储实现
type MemoryStore struct {
	mu         sync.RWMutex
	executions map[string]*model.WorkflowExecution
}

// NewMemoryStore 创建一个新的内存执行记录存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]*model.WorkflowExecution),
	}
}

// Put 保存执行记录，同ID记录会被覆盖
func (s *MemoryStore) Put(ctx context.Context, exec *model.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions[exec.ID] = exec
	return nil
}

// Get 根据执行ID获取执行记录，不存在时返回nil
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.executions[id], nil
}

// Delete 删除执行记录，返回记录是否存在
func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[id]; !exists {
		return false, nil
	}
	delete(s.executions, id)
	return true, nil
}

// ListAll 获取全部执行记录
func (s *MemoryStore) ListAll(ctx context.Context) ([]*model.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.WorkflowExecution, 0, len(s.executions))
	for _, exec := range s.executions {
		result = append(result, exec)
	}
	return result, nil
}

// Count 返回执行记录总数
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.executions), nil
}

// Close 释放存储资源
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions = make(map[string]*model.WorkflowExecution)
	return nil
}
