package instance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/visnetotest/mesh-gateway/internal/core/model"
	"github.com/visnetotest/mesh-gateway/internal/store/etcd"
)

const instancePrefix = "/mesh-gateway/instances/"

// EtcdStore 基于etcd的服务实例存储实现
// 实例以快照JSON形式保存，重启后可恢复注册信息
type EtcdStore struct {
	client *etcd.Client
}

// NewEtcdStore 创建一个新的etcd服务实例存储
func NewEtcdStore(client *etcd.Client) *EtcdStore {
	return &EtcdStore{client: client}
}

func instanceKey(id string) string {
	return instancePrefix + id
}

// Put 保存服务实例，同ID实例会被覆盖
func (s *EtcdStore) Put(ctx context.Context, inst *model.ServiceInstance) error {
	data, err := json.Marshal(inst.Snapshot())
	if err != nil {
		return fmt.Errorf("序列化服务实例失败 [%s]: %w", inst.ID, err)
	}

	if err := s.client.Put(ctx, instanceKey(inst.ID), data); err != nil {
		return fmt.Errorf("保存服务实例失败 [%s]: %w", inst.ID, err)
	}
	return nil
}

// Get 根据实例ID获取服务实例，不存在时返回nil
func (s *EtcdStore) Get(ctx context.Context, id string) (*model.ServiceInstance, error) {
	data, err := s.client.Get(ctx, instanceKey(id))
	if err != nil {
		return nil, fmt.Errorf("获取服务实例失败 [%s]: %w", id, err)
	}
	if data == nil {
		return nil, nil
	}

	var snap model.InstanceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("反序列化服务实例失败 [%s]: %w", id, err)
	}
	return model.FromSnapshot(&snap), nil
}

// Delete 删除服务实例，返回实例是否存在
func (s *EtcdStore) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.client.Delete(ctx, instanceKey(id))
	if err != nil {
		return false, fmt.Errorf("删除服务实例失败 [%s]: %w", id, err)
	}
	return deleted > 0, nil
}

// ListByName 获取指定服务名的所有实例，按注册顺序排列
func (s *EtcdStore) ListByName(ctx context.Context, name string) ([]*model.ServiceInstance, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var result []*model.ServiceInstance
	for _, inst := range all {
		if inst.Name == name {
			result = append(result, inst)
		}
	}
	return result, nil
}

// ListAll 获取全部服务实例，按注册顺序排列
// etcd不保留写入顺序，这里按注册时间和实例ID排序保证稳定
func (s *EtcdStore) ListAll(ctx context.Context) ([]*model.ServiceInstance, error) {
	kvs, err := s.client.GetWithPrefix(ctx, instancePrefix)
	if err != nil {
		return nil, fmt.Errorf("获取服务实例列表失败: %w", err)
	}

	result := make([]*model.ServiceInstance, 0, len(kvs))
	for key, data := range kvs {
		var snap model.InstanceSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("反序列化服务实例失败 [%s]: %w", key, err)
		}
		result = append(result, model.FromSnapshot(&snap))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].RegisteredAt.Equal(result[j].RegisteredAt) {
			return result[i].RegisteredAt.Before(result[j].RegisteredAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// WatchEventType 表示实例数据的变更事件类型
type WatchEventType string

const (
	// WatchEventPut 实例被注册或更新
	WatchEventPut WatchEventType = "put"
	// WatchEventDelete 实例被注销
	WatchEventDelete WatchEventType = "delete"
)

// WatchEvent 表示etcd中一次实例数据变更
type WatchEvent struct {
	Type     WatchEventType
	ID       string
	Instance *model.ServiceInstance // delete事件为nil
}

// WatchCallback 处理实例变更事件的回调函数
type WatchCallback func(event WatchEvent)

// Watch 监听etcd中实例数据的变更，事件在后台协程中回调。
// 从当前修订版本之后开始监听，上下文取消后停止
func (s *EtcdStore) Watch(ctx context.Context, callback WatchCallback) error {
	rev, err := s.client.Revision(ctx, instancePrefix)
	if err != nil {
		return fmt.Errorf("获取监听起点失败: %w", err)
	}

	watchChan := s.client.Watch(ctx, instancePrefix, rev+1)

	go func() {
		for resp := range watchChan {
			if resp.Canceled {
				return
			}
			for _, event := range resp.Events {
				s.dispatchEvent(event, callback)
			}
		}
	}()

	return nil
}

// dispatchEvent 把etcd原始事件转换为实例变更事件
func (s *EtcdStore) dispatchEvent(event *clientv3.Event, callback WatchCallback) {
	id := strings.TrimPrefix(string(event.Kv.Key), instancePrefix)

	switch event.Type {
	case clientv3.EventTypePut:
		var snap model.InstanceSnapshot
		if err := json.Unmarshal(event.Kv.Value, &snap); err != nil {
			return // 损坏的数据不传播
		}
		callback(WatchEvent{Type: WatchEventPut, ID: id, Instance: model.FromSnapshot(&snap)})
	case clientv3.EventTypeDelete:
		callback(WatchEvent{Type: WatchEventDelete, ID: id})
	}
}

// Close 释放存储资源
func (s *EtcdStore) Close() error {
	return s.client.Close()
}
