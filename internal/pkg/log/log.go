package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"battle-tracker/internal/pkg/ctxkey"
	"battle-tracker/internal/pkg/xerrors"
)

// Logger 由使用方依赖的日志接口
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, err error, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, err error, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

// StructuredLogger 基于 slog 的实现
type StructuredLogger struct {
	logger *slog.Logger
}

var globalLogger Logger

// Init 服务进程写 stdout
func Init(level slog.Level, environment string) {
	InitWithWriter(os.Stdout, level, environment)
}

// InitWithWriter production 输出 JSON, 其余环境输出带源码位置的文本
func InitWithWriter(w io.Writer, level slog.Level, environment string) {
	var handler slog.Handler
	if environment == "production" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, AddSource: true})
	}

	logger := slog.New(NewContextHandler(handler))
	globalLogger = &StructuredLogger{logger: logger}
	slog.SetDefault(logger)
}

// ParseLevel 无法识别时回退到 info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogger 未 Init 时按 development/info 初始化
func GetLogger() Logger {
	if globalLogger == nil {
		Init(slog.LevelInfo, "development")
	}
	return globalLogger
}

func NewLogger(handler slog.Handler) Logger {
	return &StructuredLogger{logger: slog.New(NewContextHandler(handler))}
}

// NewNopLogger 测试用
func NewNopLogger() Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

func withErr(args []any, err error) []any {
	if err == nil {
		return args
	}
	return append(args, slog.Any("error", err))
}

func (l *StructuredLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *StructuredLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }
func (l *StructuredLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

func (l *StructuredLogger) Error(msg string, err error, args ...any) {
	l.logger.Error(msg, withErr(args, err)...)
}

func (l *StructuredLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

func (l *StructuredLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

func (l *StructuredLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

func (l *StructuredLogger) ErrorContext(ctx context.Context, msg string, err error, args ...any) {
	l.logger.ErrorContext(ctx, msg, withErr(args, err)...)
}

func (l *StructuredLogger) With(args ...any) Logger {
	return &StructuredLogger{logger: l.logger.With(args...)}
}

func (l *StructuredLogger) WithGroup(name string) Logger {
	return &StructuredLogger{logger: l.logger.WithGroup(name)}
}

// ContextHandler 从 context 取 trace_id 与 battle_id 附加到每条记录
type ContextHandler struct {
	next slog.Handler
}

func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		for _, key := range []ctxkey.ContextKey{ctxkey.TraceID, ctxkey.BattleID} {
			if v := ctxkey.GetString(ctx, key); v != "" {
				r.AddAttrs(slog.String(string(key), v))
			}
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}

// Info 使用全局 logger
func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

// LogAppError 按 AppError 的级别选择日志级别, 只有 error 及以上带错误链
func LogAppError(ctx context.Context, logger Logger, msg string, appErr *xerrors.AppError) {
	switch appErr.Level {
	case xerrors.LevelCritical, xerrors.LevelError:
		logger.ErrorContext(ctx, msg, appErr)
	case xerrors.LevelWarn:
		logger.WarnContext(ctx, msg, slog.Any("app_error", appErr))
	default:
		logger.InfoContext(ctx, msg, slog.Any("app_error", appErr))
	}
}

func String(key, value string) slog.Attr { return slog.String(key, value) }
func Int(key string, value int) slog.Attr { return slog.Int(key, value) }
func Int64(key string, value int64) slog.Attr { return slog.Int64(key, value) }
func Float64(key string, value float64) slog.Attr { return slog.Float64(key, value) }
func Bool(key string, value bool) slog.Attr { return slog.Bool(key, value) }
func Any(key string, value any) slog.Attr { return slog.Any(key, value) }

// Duration 毫秒, 键名追加 _ms
func Duration(key string, ms int64) slog.Attr {
	return slog.Int64(key+"_ms", ms)
}
