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
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxLogKeyType struct{}

// CtxLogKey 为 ctx 中 *MLogger 的 key。
var CtxLogKey = ctxLogKeyType{}

// Debug 使用全局 Logger 输出，没有 ctx 的启动阶段使用。
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// With 创建一个携带额外字段的子 Logger，字段在第一次输出时才编码。
func With(fields ...zap.Field) *MLogger {
	return &MLogger{
		Logger: L().WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return NewLazyWith(core, fields)
		})).WithOptions(zap.AddCallerSkip(-1)),
	}
}

// SetLevel 设置全局日志级别，Ctx 派生的 Logger 同时生效。
func SetLevel(l zapcore.Level) {
	Level().SetLevel(l)
}

func GetLevel() zapcore.Level {
	return Level().Level()
}

// WithTraceID 为 ctx 中的 Logger 添加 traceID 字段。
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return WithFields(ctx, zap.String("traceID", traceID))
}

// WithModule 为 ctx 中的 Logger 添加模块名字段。
func WithModule(ctx context.Context, module string) context.Context {
	return WithFields(ctx, FieldModule(module))
}

// WithFields 返回一个附加了指定字段的上下文。
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	base := ctxL()
	if ctxLogger, ok := ctx.Value(CtxLogKey).(*MLogger); ok {
		base = ctxLogger.Logger
	}
	return context.WithValue(ctx, CtxLogKey, &MLogger{Logger: base.With(fields...)})
}

// NewIntentContext 基于 parent 开启名为 intent 的 span，并在 ctx 的 Logger 上附加 traceID。
// parent 为 nil 时使用 context.Background()。
func NewIntentContext(parent context.Context, name string, intent string) (context.Context, trace.Span) {
	if parent == nil {
		parent = context.Background()
	}
	intentCtx, span := otel.Tracer(name).Start(parent, intent)
	intentCtx = WithFields(intentCtx,
		zap.String("role", name),
		zap.String("intent", intent),
		zap.String("traceID", span.SpanContext().TraceID().String()))
	return intentCtx, span
}

// Ctx 返回 ctx 中的 Logger，没有时返回跟随全局级别的 Logger。
func Ctx(ctx context.Context) *MLogger {
	if ctx != nil {
		if ctxLogger, ok := ctx.Value(CtxLogKey).(*MLogger); ok {
			return ctxLogger
		}
	}
	return &MLogger{Logger: ctxL()}
}

// WithLevel 返回携带固定级别 Logger 的上下文，会覆盖 ctx 上已有的 Logger。
func WithLevel(ctx context.Context, level zapcore.Level) context.Context {
	return context.WithValue(ctx, CtxLogKey, &MLogger{Logger: leveledL(level)})
}
