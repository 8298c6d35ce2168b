package etcd

import (
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/lk2023060901/zeus-marshal/pkg/log"
	"github.com/lk2023060901/zeus-marshal/pkg/util/logutil"
	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

const defaultDialTimeout = 5 * time.Second

// Config 对应配置文件中的 etcd 段。
type Config struct {
	// Endpoints 为远端 etcd 地址。
	Endpoints []string `mapstructure:"endpoints" json:"endpoints"`
	// DialTimeout 为建立连接的超时时间，如 "5s"。
	DialTimeout time.Duration `mapstructure:"dial-timeout" json:"dial-timeout"`
	// UseEmbed 为 true 时在进程内启动嵌入式 etcd，忽略 Endpoints。
	UseEmbed bool `mapstructure:"use-embed" json:"use-embed"`
	// ConfigPath 为嵌入式 etcd 的配置文件，可选。
	ConfigPath string `mapstructure:"config-path" json:"config-path"`
	// DataDir 为嵌入式 etcd 的数据目录。
	DataDir string `mapstructure:"data-dir" json:"data-dir"`
	// LogPath 为嵌入式 etcd 的日志输出，为空时使用 etcd 自身的缺省值。
	LogPath string `mapstructure:"log-path" json:"log-path"`
	// LogLevel 为嵌入式 etcd 的日志级别。
	LogLevel string `mapstructure:"log-level" json:"log-level"`
	// ClientURL 与 PeerURL 为嵌入式 etcd 的监听地址，为空时随机选择本地端口。
	ClientURL string `mapstructure:"client-url" json:"client-url"`
	PeerURL   string `mapstructure:"peer-url" json:"peer-url"`
}

// NewClient 按配置创建 etcd v3 客户端。
// 远端客户端挂载 logutil 中的 gRPC 拦截器，调用日志带上 traceID。
func NewClient(cfg *Config) (*clientv3.Client, error) {
	if cfg.UseEmbed {
		if err := InitEtcdServer(cfg); err != nil {
			return nil, err
		}
		return GetEmbedEtcdClient()
	}
	if len(cfg.Endpoints) == 0 {
		return nil, merr.WrapErrParameterInvalidMsg("etcd endpoints are empty")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	log.Debug("connecting to etcd", zap.Strings("endpoints", cfg.Endpoints), zap.Duration("dialTimeout", dialTimeout))
	return clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
		DialOptions: logutil.DialOptions(),
		Logger:      log.L().WithOptions(zap.IncreaseLevel(zap.WarnLevel)).Named("etcd-client"),
	})
}
