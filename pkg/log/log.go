// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.


package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"gopkg.in/natefinch/lumberjack.v2"
)

var _globalL, _globalP, _globalR atomic.Value

// _globalLevelLogger 按级别缓存基于 debug Logger 派生的 Logger，供 Ctx 使用。
var _globalLevelLogger sync.Map

// RateLimiter 为 Rated* 日志使用的限流器。
type RateLimiter interface {
	CheckCredit(delta float64) bool
}

type nopRateLimiter struct{}

func (nopRateLimiter) CheckCredit(delta float64) bool { return true }

// rateHolder 保证 _globalR 中存放的具体类型始终一致。
type rateHolder struct {
	RateLimiter
}

func init() {
	l, p := newStdLogger()
	replaceLeveledLoggers(l)
	_globalL.Store(l)
	_globalP.Store(p)
	_globalR.Store(rateHolder{nopRateLimiter{}})
}

// InitLogger 按配置创建 Logger。
// 底层 Logger 以 debug 级别创建，实际级别由返回的 ZapProperties.Level 控制，
// 这样 Ctx 派生的分级 Logger 可以随 SetLevel 调整。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	output, err := openOutputs(cfg)
	if err != nil {
		return nil, nil, err
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	debugCfg := *cfg
	debugCfg.Level = zapcore.DebugLevel.String()
	debugL, props, err := InitLoggerWithWriteSyncer(&debugCfg, output, opts...)
	if err != nil {
		return nil, nil, err
	}
	replaceLeveledLoggers(debugL)
	props.Level.SetLevel(level)
	return debugL.WithOptions(zap.AddCallerSkip(1)), props, nil
}

// InitTestLogger 创建输出到 t.Logf 的 Logger，zap 内部错误会让测试失败。
func InitTestLogger(t zaptest.TestingT, cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	opts = append([]zap.Option{zap.ErrorOutput(testingWriter{t: t, failOnWrite: true})}, opts...)
	return InitLoggerWithWriteSyncer(cfg, testingWriter{t: t}, opts...)
}

// InitLoggerWithWriteSyncer 创建写入 output 的 Logger。
func InitLoggerWithWriteSyncer(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	parsed, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	level := zap.NewAtomicLevelAt(parsed)
	core := zapcore.NewCore(newZapEncoder(cfg), output, level)
	opts = append(cfg.buildOptions(output), opts...)
	return zap.New(core, opts...), &ZapProperties{
		Core:   core,
		Syncer: output,
		Level:  level,
	}, nil
}

// openOutputs 打开文件、标准输出与标准错误中被启用的输出。
func openOutputs(cfg *Config) (zapcore.WriteSyncer, error) {
	var outputs []zapcore.WriteSyncer
	if len(cfg.File.Filename) > 0 {
		lg, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lg))
	}
	var paths []string
	if cfg.Stdout {
		paths = append(paths, "stdout")
	}
	if cfg.Stderr {
		paths = append(paths, "stderr")
	}
	if len(paths) > 0 {
		std, _, err := zap.Open(paths...)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, std)
	}
	return zap.CombineWriteSyncers(outputs...), nil
}

// parseLevel 解析日志级别，trace 视为 debug。
func parseLevel(text string) (zapcore.Level, error) {
	if strings.EqualFold(text, "trace") {
		return zapcore.DebugLevel, nil
	}
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(text)); err != nil {
		return level, err
	}
	return level, nil
}

// initFileLog 创建按大小滚动的文件输出。
func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	logPath := filepath.Join(cfg.RootPath, cfg.Filename)
	if st, err := os.Stat(logPath); err == nil && st.IsDir() {
		return nil, errors.New("can't use directory as log file name")
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultLogMaxSize
	}
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

func newStdLogger() (*zap.Logger, *ZapProperties) {
	conf := &Config{Level: "info", Format: FormatJSON, Stdout: true}
	lg, r, _ := InitLogger(conf, zap.OnFatal(zapcore.WriteThenPanic))
	return lg, r
}

// L 返回全局 Logger，可通过 ReplaceGlobals 替换，并发安全。
func L() *zap.Logger {
	return _globalL.Load().(*zap.Logger)
}

// R 返回 Rated* 日志使用的全局限流器。
func R() RateLimiter {
	return _globalR.Load().(rateHolder).RateLimiter
}

// ConfigureRateLimiter 按配置替换全局限流器。
func ConfigureRateLimiter(cfg *RateConfig) {
	if cfg == nil || !cfg.Enable {
		_globalR.Store(rateHolder{nopRateLimiter{}})
		return
	}
	_globalR.Store(rateHolder{utils.NewRateLimiter(cfg.CreditPerSecond, cfg.MaxBalance)})
}

func ctxL() *zap.Logger {
	return leveledL(_globalP.Load().(*ZapProperties).Level.Level())
}

func leveledL(level zapcore.Level) *zap.Logger {
	v, ok := _globalLevelLogger.Load(level)
	if !ok {
		return L()
	}
	return v.(*zap.Logger)
}

// ReplaceGlobals 替换全局 Logger，并发安全。
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	_globalL.Store(logger)
	_globalP.Store(props)
}

func replaceLeveledLoggers(debugLogger *zap.Logger) {
	for level := zapcore.DebugLevel; level <= zapcore.FatalLevel; level++ {
		_globalLevelLogger.Store(level, debugLogger.WithOptions(zap.IncreaseLevel(level)))
	}
}

// Sync 刷新全局 Logger 与分级 Logger 中缓冲的日志。
func Sync() error {
	reterr := L().Sync()
	_globalLevelLogger.Range(func(_, val any) bool {
		if err := val.(*zap.Logger).Sync(); err != nil && reterr == nil {
			reterr = err
		}
		return true
	})
	return reterr
}

// Level 返回全局日志级别。
func Level() zap.AtomicLevel {
	return _globalP.Load().(*ZapProperties).Level
}
