package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/response"
	"battle-tracker/internal/pkg/xerrors"
)

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware(respWriter response.Writer, logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			return writeError(c, err, respWriter, logger)
		}
	}
}

// HTTPErrorHandler 兜底处理直接交给 c.Error 的错误, 例如限流中间件的拒绝
func HTTPErrorHandler(respWriter response.Writer, logger log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if err := writeError(c, err, respWriter, logger); err != nil {
			logger.ErrorContext(c.Request().Context(), "写出错误响应失败", err)
		}
	}
}

func writeError(c echo.Context, err error, respWriter response.Writer, logger log.Logger) error {
	// WebSocket 已劫持连接, 或响应已写出
	if c.Response().Committed {
		return nil
	}

	ctx := c.Request().Context()

	var (
		appErr  *xerrors.AppError
		echoErr *echo.HTTPError
	)
	switch {
	case errors.As(err, &appErr):
		return respWriter.WriteError(ctx, c.Response(), appErr)

	case errors.As(err, &echoErr):
		// 路由不存在、方法不允许等
		return respWriter.WriteError(ctx, c.Response(), convertEchoError(echoErr))

	default:
		logger.ErrorContext(ctx, "未处理的错误", err,
			log.String("error_type", fmt.Sprintf("%T", err)),
		)
		wrapped := xerrors.NewWithError(xerrors.CodeInternalError, "系统内部错误", err).
			WithService("echo-middleware", "error_handler")
		return respWriter.WriteError(ctx, c.Response(), wrapped)
	}
}

// convertEchoError 将 Echo 错误转换为业务错误
func convertEchoError(echoErr *echo.HTTPError) *xerrors.AppError {
	var code xerrors.ErrorCode
	switch echoErr.Code {
	case http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		code = xerrors.CodeInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		code = xerrors.CodeAuthenticationFailed
	case http.StatusNotFound:
		code = xerrors.CodeResourceNotFound
	case http.StatusTooManyRequests:
		code = xerrors.CodeRateLimitExceeded
	default:
		return xerrors.FromCode(xerrors.CodeInternalError).
			WithMetadata("echo_code", fmt.Sprintf("%d", echoErr.Code)).
			WithMetadata("echo_message", fmt.Sprintf("%v", echoErr.Message))
	}
	return xerrors.FromCode(code).
		WithMetadata("echo_message", fmt.Sprintf("%v", echoErr.Message))
}
