package application

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lk2023060901/zeus-marshal/pkg/config"
	zlog "github.com/lk2023060901/zeus-marshal/pkg/log"
	"github.com/lk2023060901/zeus-marshal/pkg/marshal"
	"github.com/lk2023060901/zeus-marshal/pkg/metrics"
	"github.com/lk2023060901/zeus-marshal/pkg/schema"
	"github.com/lk2023060901/zeus-marshal/pkg/util/etcd"
)

const (
	// DefaultConfigPath 为未指定配置文件时尝试读取的路径。
	DefaultConfigPath = "./config.yaml"
	// ConfigPathEnv 为指定配置文件路径的环境变量。
	ConfigPathEnv = "ZEUS_CONFIG_FILE_PATH"

	// LoggerMarshal 为绑定到 Marshaller 的模块 Logger 名。
	LoggerMarshal = "marshal"
)

// Application 是 zeus-marshal 的运行时容器，持有配置与公共依赖。
type Application struct {
	cfg      *config.Config
	loggers  map[string]*zlog.MLogger
	registry prometheus.Registerer
}

// New 创建 Application。registry 为 nil 时使用 prometheus.DefaultRegisterer。
func New(registry prometheus.Registerer) *Application {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &Application{registry: registry}
}

// Run 加载配置并初始化日志与指标。配置文件路径的优先级：
//  1. 参数 configPath
//  2. 环境变量 ZEUS_CONFIG_FILE_PATH
//  3. ./config.yaml（存在时）
//
// 都没有时只使用缺省值与环境变量。
func (a *Application) Run(configPath string) error {
	cfg, err := config.Load(ResolveConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return a.RunWithConfig(cfg)
}

// RunWithConfig 使用已经构造好的配置初始化 Application。
func (a *Application) RunWithConfig(cfg *config.Config) error {
	a.cfg = cfg
	if err := a.initLogging(); err != nil {
		return err
	}
	metrics.Register(a.registry)
	zlog.Debug("application initialized",
		zap.String("schema", cfg.Schema),
		zap.String("format", cfg.Output.Format),
		zap.Int("loggers", len(a.loggers)))
	return nil
}

// Config 返回已加载的配置。
func (a *Application) Config() *config.Config {
	return a.cfg
}

// Logger 返回配置中定义的模块 Logger，未定义时退回全局 Logger。
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldModule(name))
}

// Marshaller 按 marshal 配置创建 Marshaller，并绑定 "marshal" 模块 Logger。
func (a *Application) Marshaller() *marshal.Marshaller {
	m := marshal.New(a.cfg.Marshal.Options()...)
	m.SetLogger(a.Logger(LoggerMarshal))
	return m
}

// Unmarshaller 按 marshal 配置创建 Unmarshaller，与 Marshaller 共用 "marshal" 模块 Logger。
func (a *Application) Unmarshaller() *marshal.Unmarshaller {
	u := marshal.NewUnmarshaller(a.cfg.Marshal.Options()...)
	u.SetLogger(a.Logger(LoggerMarshal))
	return u
}

// FieldSpec 加载配置中的 schema 并使用 m 构建 FieldSpec。
// schema 以 etcd:// 开头时从 etcd 读取，否则作为本地文件读取。
func (a *Application) FieldSpec(ctx context.Context, m *marshal.Marshaller) (*marshal.FieldSpec, error) {
	sch, err := a.loadSchema(ctx)
	if err != nil {
		return nil, err
	}
	return sch.Build(m)
}

func (a *Application) loadSchema(ctx context.Context) (*schema.Schema, error) {
	source := a.cfg.Schema
	if source == "" {
		return nil, fmt.Errorf("no schema file configured")
	}
	if !schema.IsEtcdSource(source) {
		return schema.Load(source)
	}
	cli, err := etcd.NewClient(&a.cfg.Etcd)
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	defer cli.Close()
	return schema.LoadFromEtcd(ctx, cli, schema.EtcdKey(source))
}

// PushSchema 校验 data 后写入 etcd 中的 key。
func (a *Application) PushSchema(ctx context.Context, key string, data []byte) (*schema.Schema, error) {
	cli, err := etcd.NewClient(&a.cfg.Etcd)
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	defer cli.Close()
	return schema.PushToEtcd(ctx, cli, schema.EtcdKey(key), data)
}

// Close 刷新日志。嵌入式 etcd 跟随进程生命周期，由 etcd.StopEtcdServer 关闭。
func (a *Application) Close() {
	_ = zlog.Sync()
}

// ResolveConfigPath 按 Run 的优先级解析配置文件路径，没有可用的配置文件时返回空串。
func ResolveConfigPath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := strings.TrimSpace(os.Getenv(ConfigPathEnv)); envPath != "" {
		return envPath
	}
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return DefaultConfigPath
	}
	return ""
}

// initLogging 初始化全局 Logger 以及 logging 段中定义的模块 Logger。
//
// 示例：
//
//	logging:
//	  marshal:
//	    level: debug
//	    stderr: true
func (a *Application) initLogging() error {
	logger, props, err := zlog.InitLogger(&a.cfg.Log)
	if err != nil {
		return fmt.Errorf("init global logger: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	zlog.ConfigureRateLimiter(&a.cfg.Log.Rate)

	if len(a.cfg.Logging) == 0 {
		return nil
	}
	a.loggers = make(map[string]*zlog.MLogger, len(a.cfg.Logging))
	for name, lc := range a.cfg.Logging {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}
	return nil
}
