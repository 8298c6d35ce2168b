package schema

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

// memKV 是只实现 Get/Put 的内存 KV，前 failures 次调用返回错误。
type memKV struct {
	clientv3.KV
	data     map[string]string
	failures int
	calls    int
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}}
}

func (kv *memKV) fail() error {
	kv.calls++
	if kv.calls <= kv.failures {
		return errors.New("etcdserver: leader changed")
	}
	return nil
}

func (kv *memKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	if err := kv.fail(); err != nil {
		return nil, err
	}
	resp := &clientv3.GetResponse{}
	if v, ok := kv.data[key]; ok {
		resp.Kvs = []*mvccpb.KeyValue{{Key: []byte(key), Value: []byte(v)}}
		resp.Count = 1
	}
	return resp, nil
}

func (kv *memKV) Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	if err := kv.fail(); err != nil {
		return nil, err
	}
	kv.data[key] = val
	return &clientv3.PutResponse{}, nil
}

type EtcdSourceSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *EtcdSourceSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *EtcdSourceSuite) TestSource() {
	s.True(IsEtcdSource("etcd://schemas/user.yaml"))
	s.False(IsEtcdSource("schemas/user.yaml"))
	s.Equal("schemas/user.yaml", EtcdKey("etcd://schemas/user.yaml"))
	s.Equal("json", formatOf("schemas/point.JSON"))
	s.Equal("yaml", formatOf("schemas/user"))
}

func (s *EtcdSourceSuite) TestPushThenLoad() {
	kv := newMemKV()
	pushed, err := PushToEtcd(s.ctx, kv, "schemas/user.yaml", []byte(userYAML))
	s.Require().NoError(err)
	s.Equal("user", pushed.Name)

	sch, err := LoadFromEtcd(s.ctx, kv, "schemas/user.yaml")
	s.Require().NoError(err)
	s.Equal("user", sch.Name)
	s.Len(sch.Fields, 8)
}

func (s *EtcdSourceSuite) TestLoadJSON() {
	kv := newMemKV()
	kv.data["schemas/point.json"] = pointJSON
	sch, err := LoadFromEtcd(s.ctx, kv, "schemas/point.json")
	s.Require().NoError(err)
	s.Equal("point", sch.Name)
}

func (s *EtcdSourceSuite) TestLoadRetriesTransientFailures() {
	kv := newMemKV()
	kv.data["schemas/point.json"] = pointJSON
	kv.failures = 2
	_, err := LoadFromEtcd(s.ctx, kv, "schemas/point.json")
	s.Require().NoError(err)
	s.Equal(3, kv.calls)
}

func (s *EtcdSourceSuite) TestLoadNotFound() {
	kv := newMemKV()
	_, err := LoadFromEtcd(s.ctx, kv, "schemas/absent.yaml")
	s.ErrorIs(err, merr.ErrSchemaNotFound)
	s.Equal(1, kv.calls)
}

func (s *EtcdSourceSuite) TestPushRejectsInvalidSchema() {
	kv := newMemKV()
	_, err := PushToEtcd(s.ctx, kv, "schemas/bad.yaml", []byte("name: bad\nfields: []\n"))
	s.ErrorIs(err, merr.ErrSchemaInvalid)

	_, err = PushToEtcd(s.ctx, kv, "schemas/bad.yaml", []byte("name: bad\nfields:\n  - name: a\n    type: decimal\n"))
	s.ErrorIs(err, merr.ErrSchemaUnknownType)
	s.Equal(0, kv.calls)
}

func TestEtcdSource(t *testing.T) {
	suite.Run(t, new(EtcdSourceSuite))
}
