// File: internal/pkg/trace/middleware.go
package trace

import (
	"github.com/labstack/echo/v4"
)

// HeaderTraceID 响应头中回写的 trace ID
const HeaderTraceID = "X-Trace-Id"

// Middleware Echo 中间件 - 提取或生成 TraceID 并存储到 context
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			traceID := ExtractFromHeader(c.Request().Header)

			ctx := WithTraceID(c.Request().Context(), traceID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(HeaderTraceID, traceID)

			return next(c)
		}
	}
}
