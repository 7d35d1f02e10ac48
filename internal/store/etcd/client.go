package etcd

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Options 表示etcd客户端连接选项
type Options struct {
	Endpoints      []string
	Username       string
	Password       string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// Client 封装了etcd客户端，提供存储层需要的键值操作
type Client struct {
	client         *clientv3.Client
	requestTimeout time.Duration
}

// NewClient 创建一个新的etcd客户端
func NewClient(opts Options) (*Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		Username:    opts.Username,
		Password:    opts.Password,
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("创建etcd客户端失败: %w", err)
	}

	return &Client{
		client:         client,
		requestTimeout: opts.RequestTimeout,
	}, nil
}

// Close 关闭etcd客户端连接
func (c *Client) Close() error {
	return c.client.Close()
}

// Ping 检查etcd集群是否可达
func (c *Client) Ping(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	if _, err := c.client.Status(ctx, endpoint); err != nil {
		return fmt.Errorf("etcd健康检查失败: %w", err)
	}
	return nil
}

// Get 获取键值，键不存在时返回nil
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.client.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("etcd获取键值失败 [%s]: %w", key, err)
	}

	if len(resp.Kvs) == 0 {
		return nil, nil // 键不存在
	}

	return resp.Kvs[0].Value, nil
}

// GetWithPrefix 获取指定前缀的所有键值
func (c *Client) GetWithPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd获取前缀键值失败 [%s]: %w", prefix, err)
	}

	result := make(map[string][]byte, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		result[string(kv.Key)] = kv.Value
	}

	return result, nil
}

// Put 设置键值
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	if _, err := c.client.Put(ctx, key, string(value)); err != nil {
		return fmt.Errorf("etcd设置键值失败 [%s]: %w", key, err)
	}

	return nil
}

// Revision 返回指定前缀当前的修订版本号，供监听起点使用
func (c *Client) Revision(ctx context.Context, prefix string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly(), clientv3.WithLimit(1))
	if err != nil {
		return 0, fmt.Errorf("etcd获取修订版本失败 [%s]: %w", prefix, err)
	}

	return resp.Header.Revision, nil
}

// Watch 从指定修订版本开始监听前缀的键值变化，
// fromRevision为0时从当前版本开始。通道在上下文取消后关闭
func (c *Client) Watch(ctx context.Context, prefix string, fromRevision int64) clientv3.WatchChan {
	opts := []clientv3.OpOption{clientv3.WithPrefix(), clientv3.WithPrevKV()}
	if fromRevision > 0 {
		opts = append(opts, clientv3.WithRev(fromRevision))
	}
	return c.client.Watch(ctx, prefix, opts...)
}

// Delete 删除键值，返回删除的键数量
func (c *Client) Delete(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.client.Delete(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("etcd删除键值失败 [%s]: %w", key, err)
	}

	return resp.Deleted, nil
}

// DeleteWithPrefix 删除指定前缀的所有键值
func (c *Client) DeleteWithPrefix(ctx context.Context, prefix string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.client.Delete(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return 0, fmt.Errorf("etcd删除前缀键值失败 [%s]: %w", prefix, err)
	}

	return resp.Deleted, nil
}
