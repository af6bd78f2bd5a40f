package response

import (
	"context"
	"encoding/json"
	"net/http"

	"battle-tracker/internal/pkg/i18n"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/metrics"
	"battle-tracker/internal/pkg/trace"
	"battle-tracker/internal/pkg/xerrors"
)

// Writer 统一的响应写入接口
type Writer interface {
	WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) error
	WriteError(ctx context.Context, w http.ResponseWriter, err error) error
	WriteJSON(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error
}

// ResponseHandler 默认实现: 信封格式 + trace_id + 本地化错误消息
type ResponseHandler struct {
	logger      log.Logger
	httpMetrics *metrics.HTTPMetrics
	service     string
	// 生产环境不向客户端暴露底层错误
	exposeErrors bool
}

// NewResponseHandler 创建响应处理器
func NewResponseHandler(logger log.Logger, environment, service string) *ResponseHandler {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &ResponseHandler{
		logger:       logger.With("component", "response"),
		httpMetrics:  metrics.DefaultHTTPMetrics,
		service:      service,
		exposeErrors: environment != "production",
	}
}

// DefaultResponseHandler 使用全局 logger 的开发环境处理器
func DefaultResponseHandler() *ResponseHandler {
	return NewResponseHandler(nil, "development", "")
}

// WithMetrics 替换 HTTP 指标收集器（测试使用）
func (h *ResponseHandler) WithMetrics(m *metrics.HTTPMetrics) *ResponseHandler {
	h.httpMetrics = m
	return h
}

func (h *ResponseHandler) WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) error {
	resp := Success(&data)
	resp.TraceId = trace.GetTraceID(ctx)
	resp.Message = i18n.GetErrorMessage(xerrors.CodeSuccess, i18n.GetLanguage(ctx))
	return writeJSON(w, http.StatusOK, resp)
}

func (h *ResponseHandler) WriteError(ctx context.Context, w http.ResponseWriter, err error) error {
	appErr, ok := xerrors.As(err)
	if !ok {
		appErr = xerrors.NewWithError(xerrors.CodeInternalError, "内部服务错误", err)
	}

	status := xerrors.GetHTTPStatus(appErr.Code)
	if status >= http.StatusInternalServerError {
		log.LogAppError(ctx, h.logger, "请求处理失败", appErr)
	} else {
		h.logger.DebugContext(ctx, "请求返回业务错误", log.Any("app_error", appErr))
	}
	if h.httpMetrics != nil {
		h.httpMetrics.RecordError(h.service, int(appErr.Code), appErr.Category)
	}

	detail := ""
	if h.exposeErrors && appErr.Err != nil {
		detail = appErr.Err.Error()
	}
	resp := Error[any](int(appErr.Code), i18n.GetErrorMessage(appErr.Code, i18n.GetLanguage(ctx)), detail)
	resp.TraceId = trace.GetTraceID(ctx)
	if len(appErr.Metadata) > 0 {
		var meta any = appErr.Metadata
		resp.Data = &meta
	}
	return writeJSON(w, status, resp)
}

func (h *ResponseHandler) WriteJSON(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error {
	return writeJSON(w, statusCode, data)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(v)
}
