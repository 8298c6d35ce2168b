package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigInitialize(t *testing.T) {
	cfg := &Config{}
	cfg.Initialize()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.True(t, cfg.Stdout)

	cfg = &Config{Level: "debug", Format: FormatConsole, File: FileLogConfig{Filename: "a.log"}}
	cfg.Initialize()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, FormatConsole, cfg.Format)
	assert.False(t, cfg.Stdout)

	cfg = &Config{Stderr: true}
	cfg.Initialize()
	assert.False(t, cfg.Stdout)
}

func TestInitLoggerStderr(t *testing.T) {
	lg, props, err := InitLogger(&Config{Level: "warn", Format: FormatJSON, Stderr: true})
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, props.Level.Level())
	lg.Info("suppressed by level")
}

func TestInitTestLogger(t *testing.T) {
	lg, props, err := InitTestLogger(t, &Config{Level: "debug", Format: FormatConsole})
	require.NoError(t, err)
	require.NotNil(t, props)
	assert.Equal(t, zapcore.DebugLevel, props.Level.Level())
	lg.Debug("test logger works", FieldModule("log"))

	_, _, err = InitTestLogger(t, &Config{Level: "not-a-level"})
	assert.Error(t, err)
}

func TestInitLoggerRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	_, _, err := InitLogger(&Config{Level: "info", File: FileLogConfig{RootPath: dir, Filename: "."}})
	assert.Error(t, err)
}

func TestCtxLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := context.WithValue(context.Background(), CtxLogKey, &MLogger{Logger: zap.New(core)})

	ctx = WithModule(ctx, "marshal")
	Ctx(ctx).Info("hello", FieldField("name"), FieldIndex(3))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "marshal", fields[FieldNameModule])
	assert.Equal(t, "name", fields[FieldNameField])
	assert.EqualValues(t, 3, fields[FieldNameIndex])

	assert.NotNil(t, Ctx(nil))
	assert.NotNil(t, Ctx(context.Background()))
}

func TestMLoggerWith(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := &MLogger{Logger: zap.New(core)}

	child := base.With(FieldComponent("resolver"))
	child.Info("child")
	base.Info("parent")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "resolver", entries[0].ContextMap()[FieldNameComponent])
	_, ok := entries[1].ContextMap()[FieldNameComponent]
	assert.False(t, ok)
}

func TestRatedLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := (&MLogger{Logger: zap.New(core)}).WithRateGroup("log_test", 0.0001, 1)

	assert.True(t, l.RatedWarn(1, "first"))
	assert.False(t, l.RatedWarn(1, "second"))
	assert.Equal(t, 1, logs.Len())
}

func TestBinder(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	core, logs := observer.New(zapcore.DebugLevel)
	b.SetLogger(&MLogger{Logger: zap.New(core)})
	b.Logger().Info("bound")
	assert.Equal(t, 1, logs.Len())

	ctxCore, ctxLogs := observer.New(zapcore.DebugLevel)
	ctx := context.WithValue(context.Background(), CtxLogKey, &MLogger{Logger: zap.New(ctxCore)})
	b.CtxLogger(ctx).Info("from ctx")
	b.CtxLogger(context.Background()).Info("fallback")
	assert.Equal(t, 1, ctxLogs.Len())
	assert.Equal(t, 2, logs.Len())
}

func TestNewIntentContext(t *testing.T) {
	ctx, span := NewIntentContext(context.Background(), "marshal", "dump")
	defer span.End()
	assert.NotNil(t, Ctx(ctx))
}

func TestConfigureRateLimiter(t *testing.T) {
	defer ConfigureRateLimiter(nil)

	ConfigureRateLimiter(&RateConfig{Enable: true, CreditPerSecond: 0.0001, MaxBalance: 1})
	assert.True(t, R().CheckCredit(1))
	assert.False(t, R().CheckCredit(1))

	ConfigureRateLimiter(&RateConfig{Enable: false})
	assert.True(t, R().CheckCredit(100))
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("TRACE")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	level, err = parseLevel("error")
	require.NoError(t, err)
	assert.Equal(t, zapcore.ErrorLevel, level)

	_, err = parseLevel("loud")
	assert.Error(t, err)
}

func TestWithLevel(t *testing.T) {
	ctx := WithLevel(context.Background(), zapcore.ErrorLevel)
	assert.False(t, Ctx(ctx).Core().Enabled(zapcore.WarnLevel))
	assert.True(t, Ctx(ctx).Core().Enabled(zapcore.ErrorLevel))
}

func TestRateDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Initialize()
	assert.Equal(t, defaultRateCredit, cfg.Rate.CreditPerSecond)
	assert.Equal(t, defaultRateMaxBalance, cfg.Rate.MaxBalance)
	assert.False(t, cfg.Rate.Enable)
}

func TestLazyWithLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	lazy := NewLazyWith(core, []zapcore.Field{FieldModule("schema")})
	assert.Equal(t, zapcore.WarnLevel, zapcore.LevelOf(lazy))
	assert.Equal(t, 0, logs.Len())
}
