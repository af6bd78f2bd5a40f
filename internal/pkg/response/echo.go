// File: internal/pkg/response/echo.go
package response

import (
	"github.com/labstack/echo/v4"

	"battle-tracker/internal/pkg/xerrors"
)

// Echo 框架适配器

// EchoOK Echo 成功响应
func EchoOK[T any](c echo.Context, h Writer, data T) error {
	return h.WriteSuccess(c.Request().Context(), c.Response(), data)
}

// EchoError Echo 错误响应
func EchoError(c echo.Context, h Writer, err error) error {
	return h.WriteError(c.Request().Context(), c.Response(), err)
}

// EchoBadRequest Echo 400 错误响应
func EchoBadRequest(c echo.Context, h Writer, message string) error {
	return EchoError(c, h, xerrors.NewValidationError("request", message))
}

// EchoNotFound Echo 404 错误响应
func EchoNotFound(c echo.Context, h Writer, resource, identifier string) error {
	return EchoError(c, h, xerrors.NewNotFoundError(resource, identifier))
}

// EchoJSON 直接返回 JSON（跳过信封包装）
func EchoJSON(c echo.Context, h Writer, data any, statusCode int) error {
	return h.WriteJSON(c.Request().Context(), c.Response(), data, statusCode)
}
