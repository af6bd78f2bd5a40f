package xerrors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// ErrorLevel 决定响应层的日志级别
type ErrorLevel int

const (
	LevelInfo ErrorLevel = iota
	LevelWarn
	LevelError
	LevelCritical
)

var levelNames = [...]string{"INFO", "WARN", "ERROR", "CRITICAL"}

func (l ErrorLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// AppError 对外返回的业务错误。Metadata 会原样出现在响应的 data 字段
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`

	Level     ErrorLevel `json:"level,omitempty"`
	Category  string     `json:"category,omitempty"`
	Retryable bool       `json:"retryable,omitempty"`

	TraceID   string         `json:"trace_id,omitempty"`
	Service   string         `json:"service,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Caller 包装点, 形如 pkg.Func file:line
	Caller    string    `json:"caller,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// LogValue 实现 slog.LogValuer
func (e *AppError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("code", int(e.Code)),
		slog.String("message", e.Message),
		slog.String("level", e.Level.String()),
		slog.String("category", e.Category),
	}
	for _, kv := range [][2]string{{"trace_id", e.TraceID}, {"service", e.Service}, {"operation", e.Operation}, {"caller", e.Caller}} {
		if kv[1] != "" {
			attrs = append(attrs, slog.String(kv[0], kv[1]))
		}
	}
	for k, v := range e.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("underlying_error", e.Err))
	}
	return slog.GroupValue(attrs...)
}

func (e *AppError) WithTraceID(traceID string) *AppError {
	e.TraceID = traceID
	return e
}

// WithService operation 通常是服务方法名, 例如 ingest.Submit
func (e *AppError) WithService(service, operation string) *AppError {
	e.Service = service
	e.Operation = operation
	return e
}

func (e *AppError) WithMetadata(key string, value any) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// IsRetryable 数据库与队列类错误客户端可以重试
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Level:     getLevelByCode(code),
		Category:  getCategoryByCode(code),
		Retryable: isRetryableByCode(code),
		Timestamp: time.Now(),
	}
}

// NewWithError 记录调用 NewWithError 的上一层位置
func NewWithError(code ErrorCode, message string, err error) *AppError {
	appErr := New(code, message)
	appErr.Err = err
	if pc, file, line, ok := runtime.Caller(2); ok {
		name := "?"
		if fn := runtime.FuncForPC(pc); fn != nil {
			name = fn.Name()
		}
		appErr.Caller = fmt.Sprintf("%s %s:%d", name, file, line)
	}
	return appErr
}

// FromCode 使用错误码的默认消息
func FromCode(code ErrorCode) *AppError {
	return New(code, code.Message())
}

func NewValidationError(field, message string) *AppError {
	return FromCode(CodeInvalidParams).
		WithMetadata("field", field).
		WithMetadata("validation_message", message)
}

func NewNotFoundError(resource, identifier string) *AppError {
	return FromCode(CodeResourceNotFound).
		WithMetadata("resource", resource).
		WithMetadata("identifier", identifier)
}

func NewDatabaseError(operation, table string, err error) *AppError {
	appErr := FromCode(CodeDatabaseError).
		WithMetadata("db_operation", operation).
		WithMetadata("table", table)
	appErr.Err = err
	return appErr
}

func NewBattleNotFoundError(battleID string) *AppError {
	return FromCode(CodeBattleNotFound).WithMetadata("battle_id", battleID)
}

// NewTurnEvictedError 客户端据 oldest_index 重新定位
func NewTurnEvictedError(index, oldest int64) *AppError {
	return FromCode(CodeTurnEvicted).
		WithMetadata("index", index).
		WithMetadata("oldest_index", oldest)
}

// NewFollowWaitTimeoutError 长轮询超时, next_index 为下一个将出现的回合
func NewFollowWaitTimeoutError(nextIndex int64) *AppError {
	return FromCode(CodeFollowWaitTimeout).WithMetadata("next_index", nextIndex)
}

func NewIngestQueueFullError(capacity int) *AppError {
	return FromCode(CodeIngestQueueFull).WithMetadata("capacity", capacity)
}

func NewReportCorruptedError(battleID, reportType string, err error) *AppError {
	appErr := FromCode(CodeReportCorrupted).
		WithMetadata("battle_id", battleID).
		WithMetadata("report_type", reportType)
	appErr.Err = err
	return appErr
}

// Wrap 错误链中已有 AppError 时原样返回
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	return NewWithError(code, message, err)
}

func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode 比较错误链中第一个 AppError 的错误码
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}
