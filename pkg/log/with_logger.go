package log

import (
	"context"

	"go.uber.org/atomic"
)

// LoggerBinder 由可以注入模块日志的组件实现。
type LoggerBinder interface {
	SetLogger(logger *MLogger)
}

var _ LoggerBinder = &Binder{}

// Binder 嵌入到组件中，保存通过配置创建的模块 Logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

// SetLogger 绑定模块 Logger，传入 nil 表示恢复使用全局 Logger。
func (w *Binder) SetLogger(logger *MLogger) {
	w.logger.Store(logger)
}

// Logger 返回已绑定的 Logger，未绑定时退回到全局 Logger。
func (w *Binder) Logger() *MLogger {
	if l := w.logger.Load(); l != nil {
		return l
	}
	return &MLogger{Logger: L()}
}

// Ctx 优先返回 ctx 上携带的 Logger，否则返回已绑定的 Logger。
func (w *Binder) Ctx(ctx context.Context) *MLogger {
	if ctx != nil {
		if l, ok := ctx.Value(CtxLogKey).(*MLogger); ok {
			return l
		}
	}
	return w.Logger()
}
