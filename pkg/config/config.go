package config

import (
	"time"

	"github.com/lk2023060901/zeus-marshal/pkg/log"
	"github.com/lk2023060901/zeus-marshal/pkg/marshal"
	"github.com/lk2023060901/zeus-marshal/pkg/util/etcd"
	"github.com/lk2023060901/zeus-marshal/pkg/util/hardware"
	zviper "github.com/lk2023060901/zeus-marshal/pkg/util/viper"
)

// MarshalConfig 对应配置文件中的 marshal 段。
type MarshalConfig struct {
	// Prefix 为输出 key 与错误 key 的前缀。
	Prefix string `mapstructure:"prefix" json:"prefix"`
	// SkipMissing 跳过值为空的输出字段。
	SkipMissing bool `mapstructure:"skip-missing" json:"skip-missing"`
	// Strict 在存在校验错误时返回错误。
	Strict bool `mapstructure:"strict" json:"strict"`
	// IndexErrors 控制批量模式下错误是否按下标分组。
	IndexErrors bool `mapstructure:"index-errors" json:"index-errors"`
	// Parallelism 为批量模式并发度：0/1 串行，负数表示使用全部可用 CPU。
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`
	// Only 与 Exclude 用于过滤字段。
	Only    []string `mapstructure:"only" json:"only"`
	Exclude []string `mapstructure:"exclude" json:"exclude"`
}

// Options 将配置转换为 marshal.Option。
func (c *MarshalConfig) Options() []marshal.Option {
	parallelism := c.Parallelism
	if parallelism < 0 {
		parallelism = hardware.GetUsableCPUNum()
	}
	opts := []marshal.Option{
		marshal.WithPrefix(c.Prefix),
		marshal.WithSkipMissing(c.SkipMissing),
		marshal.WithStrict(c.Strict),
		marshal.WithIndexErrors(c.IndexErrors),
		marshal.WithParallelism(parallelism),
	}
	if len(c.Only) > 0 {
		opts = append(opts, marshal.WithOnly(c.Only...))
	}
	if len(c.Exclude) > 0 {
		opts = append(opts, marshal.WithExclude(c.Exclude...))
	}
	return opts
}

// OutputConfig 对应配置文件中的 output 段。
type OutputConfig struct {
	// Format 为输出格式：json、jsoniter 或 proto。
	Format string `mapstructure:"format" json:"format"`
	// Compression 为输出压缩算法：none 或 zstd。
	Compression string `mapstructure:"compression" json:"compression"`
	// Path 为输出文件，为空时写到标准输出。
	Path string `mapstructure:"path" json:"path"`
}

// Config 为 zeus-marshal 的完整配置。
type Config struct {
	Log     log.Config            `mapstructure:"log" json:"log"`
	Logging map[string]log.Config `mapstructure:"logging" json:"logging"`
	Marshal MarshalConfig         `mapstructure:"marshal" json:"marshal"`
	Output  OutputConfig          `mapstructure:"output" json:"output"`
	Etcd    etcd.Config           `mapstructure:"etcd" json:"etcd"`
	// Schema 为字段定义文件路径，etcd:// 前缀表示从 etcd 读取。
	Schema string `mapstructure:"schema" json:"schema"`
}

// 缺省值同时让对应的 ZEUS_* 环境变量生效。
var defaults = map[string]any{
	"log.level":            "info",
	"log.format":           log.FormatJSON,
	"log.stdout":           false,
	"marshal.prefix":       "",
	"marshal.skip-missing": false,
	"marshal.strict":       false,
	"marshal.index-errors": true,
	"marshal.parallelism":  1,
	"output.format":        "json",
	"output.compression":   "none",
	"output.path":          "",
	"schema":               "",
	"etcd.endpoints":       []string{"127.0.0.1:2379"},
	"etcd.dial-timeout":    "5s",
	"etcd.use-embed":       false,
	"etcd.data-dir":        "default.etcd",
	"etcd.log-level":       "warn",

	"log.rate.enable":            false,
	"log.rate.credit-per-second": 1.0,
	"log.rate.max-balance":       60.0,
}

// Load 读取配置文件，path 为空时只使用缺省值与环境变量。
func Load(path string) (*Config, error) {
	v := zviper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if path != "" {
		if err := v.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.initialize()
	return cfg, nil
}

// Default 返回只包含缺省值的配置。
func Default() *Config {
	cfg := &Config{
		Marshal: MarshalConfig{IndexErrors: true, Parallelism: 1},
		Output:  OutputConfig{Format: "json", Compression: "none"},
		Etcd: etcd.Config{
			Endpoints:   []string{"127.0.0.1:2379"},
			DialTimeout: 5 * time.Second,
			DataDir:     "default.etcd",
			LogLevel:    "warn",
		},
	}
	cfg.initialize()
	return cfg
}

func (c *Config) initialize() {
	c.Log.Initialize()
	for name, lc := range c.Logging {
		lc.Initialize()
		c.Logging[name] = lc
	}
	if c.Output.Format == "" {
		c.Output.Format = "json"
	}
	if c.Output.Compression == "" {
		c.Output.Compression = "none"
	}
}
