// File: internal/pkg/i18n/middleware.go
package i18n

import (
	"github.com/labstack/echo/v4"
)

// Middleware Echo 中间件 - 优先 ?lang=, 其次 Accept-Language
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lang := DefaultLanguage
			if langCode := c.QueryParam("lang"); langCode != "" {
				lang = ParseLanguageCode(langCode)
			} else {
				lang = ParseAcceptLanguage(c.Request().Header.Get("Accept-Language"))
			}

			ctx := WithLanguage(c.Request().Context(), lang)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
