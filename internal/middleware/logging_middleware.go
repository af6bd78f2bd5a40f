package middleware

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"battle-tracker/internal/pkg/ctxkey"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/trace"
)

const redacted = "***REDACTED***"

// LoggingConfig 访问日志配置
type LoggingConfig struct {
	SkipPaths []string // 前缀匹配

	// DetailedLog 开发环境打开, 附带查询串、请求头与上传预览
	DetailedLog bool

	// PreviewLines 上传日志预览的行数, 0 表示不预览
	PreviewLines int
	// PreviewBytes 预览最多读取的字节数
	PreviewBytes int64

	SensitiveHeaders []string
}

// DefaultLoggingConfig 默认配置
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		SkipPaths:        []string{"/health", "/metrics", "/favicon.ico"},
		PreviewLines:     3,
		PreviewBytes:     4 * 1024,
		SensitiveHeaders: []string{"Authorization", "Cookie", "X-Ingest-Token"},
	}
}

// LoggingMiddleware 使用默认配置
func LoggingMiddleware(logger log.Logger) echo.MiddlewareFunc {
	return LoggingMiddlewareWithConfig(logger, DefaultLoggingConfig())
}

// LoggingMiddlewareWithConfig 请求开始与结束各记一条, 结束日志带 battle_id
func LoggingMiddlewareWithConfig(logger log.Logger, config *LoggingConfig) echo.MiddlewareFunc {
	if config == nil {
		config = DefaultLoggingConfig()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if hasAnyPrefix(req.URL.Path, config.SkipPaths) {
				return next(c)
			}

			start := time.Now()
			ctx := req.Context()
			traceID := trace.GetTraceID(ctx)

			fields := []any{
				log.String("method", req.Method),
				log.String("path", req.URL.Path),
				log.String("client_ip", c.RealIP()),
				log.String("trace_id", traceID),
			}
			if config.DetailedLog {
				fields = append(fields, detailFields(c, config)...)
			}
			logger.InfoContext(ctx, "请求开始", fields...)

			err := next(c)

			status := c.Response().Status
			done := []any{
				log.String("method", req.Method),
				log.String("path", req.URL.Path),
				log.Int("status_code", status),
				log.Duration("duration", time.Since(start).Milliseconds()),
				log.Int64("response_size", c.Response().Size),
				log.String("trace_id", traceID),
			}
			if battleID := ctxkey.GetString(c.Request().Context(), ctxkey.BattleID); battleID != "" {
				done = append(done, log.String("battle_id", battleID))
			}

			switch {
			case err != nil:
				logger.ErrorContext(ctx, "请求处理出错", err, done...)
			case status >= http.StatusInternalServerError:
				logger.ErrorContext(ctx, "请求完成（服务器错误）", nil, done...)
			case status >= http.StatusBadRequest:
				logger.WarnContext(ctx, "请求完成（客户端错误）", done...)
			default:
				logger.InfoContext(ctx, "请求完成", done...)
			}
			return err
		}
	}
}

func detailFields(c echo.Context, config *LoggingConfig) []any {
	req := c.Request()
	var fields []any
	if req.URL.RawQuery != "" {
		fields = append(fields, log.String("query", req.URL.RawQuery))
	}
	fields = append(fields, log.String("user_agent", req.UserAgent()))
	if headers := sanitizeHeaders(req.Header, config.SensitiveHeaders); len(headers) > 0 {
		fields = append(fields, log.Any("headers", headers))
	}
	if req.Method == http.MethodPost && config.PreviewLines > 0 {
		if preview := previewBody(req, config.PreviewLines, config.PreviewBytes); len(preview) > 0 {
			fields = append(fields, log.Any("body_preview", preview))
		}
	}
	return fields
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func sanitizeHeaders(headers http.Header, sensitive []string) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) == 0 {
			continue
		}
		result[k] = v[0]
		for _, s := range sensitive {
			if strings.EqualFold(k, s) {
				result[k] = redacted
				break
			}
		}
	}
	return result
}

// previewBody 读取上传内容的前几行, 已读部分拼回 Body, 后续处理器仍能读到完整内容
func previewBody(req *http.Request, maxLines int, maxBytes int64) []string {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}

	head, err := io.ReadAll(io.LimitReader(req.Body, maxBytes))
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), req.Body), req.Body}
	if err != nil {
		return nil
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(head))
	for scanner.Scan() && len(lines) < maxLines {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
