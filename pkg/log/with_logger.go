package log

import (
	"context"

	"go.uber.org/atomic"
)

// Binder 可嵌入到组件（例如 Marshaller）中，统一管理组件私有的 Logger。
// 零值可直接使用，此时输出到全局 Logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

// SetLogger 绑定组件私有 Logger，传入 nil 表示恢复使用全局 Logger。
func (w *Binder) SetLogger(logger *MLogger) {
	w.logger.Store(logger)
}

// Logger 返回绑定的 Logger，尚未绑定时退回全局 Logger。
func (w *Binder) Logger() *MLogger {
	if l := w.logger.Load(); l != nil {
		return l
	}
	return With()
}

// CtxLogger 优先使用 ctx 中由 WithFields 或 NewIntentContext 放入的 Logger，
// 这样调用方的 traceID 等字段可以跟随输出；否则返回 Logger()。
func (w *Binder) CtxLogger(ctx context.Context) *MLogger {
	if ctx != nil {
		if l, ok := ctx.Value(CtxLogKey).(*MLogger); ok {
			return l
		}
	}
	return w.Logger()
}

// Inherit 绑定 parent 当前绑定的 Logger，parent 未绑定时继续使用全局 Logger。
func (w *Binder) Inherit(parent *Binder) {
	if parent == nil {
		return
	}
	w.logger.Store(parent.logger.Load())
}
