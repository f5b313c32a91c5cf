package xkv

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const revokeTimeout = time.Second

// etcdClient 是 Etcd 用到的 clientv3 子集，*clientv3.Client 满足该接口。
type etcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
}

var _ etcdClient = (*clientv3.Client)(nil)

// Etcd 基于 etcd v3 的 Store。
type Etcd struct {
	client etcdClient
}

// NewEtcd 使用已有的 etcd 客户端创建 Store，Store 不负责关闭客户端。
func NewEtcd(client *clientv3.Client) (*Etcd, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &Etcd{client: client}, nil
}

func newEtcd(client etcdClient) *Etcd {
	return &Etcd{client: client}
}

// Get 读取 key，不存在时返回 ErrNotFound。
func (e *Etcd) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	resp, err := e.client.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("xkv: etcd get %q: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

// Put 写入 key。ttl 向上取整到秒，key 不会早于调用方期望过期。
//
// 带 ttl 的写入每次使用新租约，旧值绑定的租约在写入成功后撤销。
func (e *Etcd) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := checkPut(key, ttl); err != nil {
		return err
	}
	if ttl == 0 {
		resp, err := e.client.Put(ctx, key, string(value), clientv3.WithPrevKV())
		if err != nil {
			return fmt.Errorf("xkv: etcd put %q: %w", key, err)
		}
		e.revokePrev(ctx, resp.PrevKv, 0)
		return nil
	}

	seconds := max(int64(math.Ceil(ttl.Seconds())), 1)
	lease, err := e.client.Grant(ctx, seconds)
	if err != nil {
		return fmt.Errorf("xkv: etcd grant lease: %w", err)
	}
	resp, err := e.client.Put(ctx, key, string(value), clientv3.WithLease(lease.ID), clientv3.WithPrevKV())
	if err != nil {
		e.revoke(ctx, lease.ID)
		return fmt.Errorf("xkv: etcd put %q: %w", key, err)
	}
	e.revokePrev(ctx, resp.PrevKv, lease.ID)
	return nil
}

// Delete 删除 key 并撤销其租约，key 不存在不是错误。
func (e *Etcd) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	resp, err := e.client.Delete(ctx, key, clientv3.WithPrevKV())
	if err != nil {
		return fmt.Errorf("xkv: etcd delete %q: %w", key, err)
	}
	for _, kv := range resp.PrevKvs {
		e.revokePrev(ctx, kv, 0)
	}
	return nil
}

// revokePrev 撤销旧值的租约。撤销失败时租约到期自行回收。
func (e *Etcd) revokePrev(ctx context.Context, prev *mvccpb.KeyValue, current clientv3.LeaseID) {
	if prev == nil || prev.Lease == 0 || clientv3.LeaseID(prev.Lease) == current {
		return
	}
	e.revoke(ctx, clientv3.LeaseID(prev.Lease))
}

// revoke 使用独立超时，原 ctx 可能已取消。
func (e *Etcd) revoke(ctx context.Context, id clientv3.LeaseID) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revokeTimeout)
	defer cancel()
	_, _ = e.client.Revoke(rctx, id)
}

// List 返回以 prefix 开头的 key，空前缀表示全部。
func (e *Etcd) List(ctx context.Context, prefix string) ([]string, error) {
	// 空前缀配合 WithPrefix 表示整个 keyspace
	resp, err := e.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("xkv: etcd list %q: %w", prefix, err)
	}
	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, string(kv.Key))
	}
	return keys, nil
}

var _ Store = (*Etcd)(nil)
