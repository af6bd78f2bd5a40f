package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/response"
	"battle-tracker/internal/pkg/xerrors"
)

// RecoveryMiddleware 恢复中间件
// 报告器收到其他战斗的回合会 panic, 在这里兜底并以错误级别记录
func RecoveryMiddleware(respWriter response.Writer, logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				ctx := c.Request().Context()

				panicErr := fmt.Errorf("panic: %v", r)
				logger.ErrorContext(ctx, "应用程序 panic", panicErr,
					log.String("path", c.Request().URL.Path),
					log.String("method", c.Request().Method),
					log.String("stack", string(debug.Stack())),
				)

				appErr := xerrors.NewWithError(xerrors.CodeInternalError, "系统内部错误", panicErr).
					WithService("echo-middleware", "recovery")
				if c.Response().Committed {
					return
				}
				err = respWriter.WriteError(ctx, c.Response().Writer, appErr)
			}()

			return next(c)
		}
	}
}
