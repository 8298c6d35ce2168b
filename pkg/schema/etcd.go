package schema

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/lk2023060901/zeus-marshal/pkg/log"
	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
	"github.com/lk2023060901/zeus-marshal/pkg/util/retry"
)

// EtcdScheme 为 etcd 中 schema 的来源前缀，如 etcd://schemas/user.yaml。
const EtcdScheme = "etcd://"

var etcdRetryOpts = []retry.Option{
	retry.Attempts(5),
	retry.Sleep(100 * time.Millisecond),
	retry.MaxSleepTime(time.Second),
}

// IsEtcdSource 判断 schema 来源是否位于 etcd。
func IsEtcdSource(source string) bool {
	return strings.HasPrefix(source, EtcdScheme)
}

// EtcdKey 返回 etcd 来源对应的 key。
func EtcdKey(source string) string {
	return strings.TrimPrefix(source, EtcdScheme)
}

// formatOf 按 key 的扩展名判断内容格式，缺省为 yaml。
func formatOf(key string) string {
	if strings.EqualFold(filepath.Ext(key), ".json") {
		return "json"
	}
	return "yaml"
}

// LoadFromEtcd 读取 etcd 中 key 对应的 schema，读取失败时按退避重试。
func LoadFromEtcd(ctx context.Context, kv clientv3.KV, key string) (*Schema, error) {
	var data []byte
	err := retry.Do(ctx, func() error {
		resp, err := kv.Get(ctx, key)
		if err != nil {
			return err
		}
		if len(resp.Kvs) == 0 {
			return retry.Unrecoverable(merr.WrapErrSchemaNotFound(EtcdScheme + key))
		}
		data = resp.Kvs[0].Value
		return nil
	}, etcdRetryOpts...)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug("schema loaded from etcd", zap.String("key", key), zap.Int("bytes", len(data)))
	return Parse(data, formatOf(key))
}

// PushToEtcd 校验 data 可以构建为 FieldSpec 后写入 etcd。
func PushToEtcd(ctx context.Context, kv clientv3.KV, key string, data []byte) (*Schema, error) {
	sch, err := Parse(data, formatOf(key))
	if err != nil {
		return nil, err
	}
	if _, err := sch.Build(nil); err != nil {
		return nil, err
	}
	err = retry.Do(ctx, func() error {
		_, err := kv.Put(ctx, key, string(data))
		return err
	}, etcdRetryOpts...)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info("schema pushed to etcd", zap.String("key", key), zap.String("schema", sch.Name))
	return sch, nil
}
