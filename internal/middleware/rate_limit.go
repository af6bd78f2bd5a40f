package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"battle-tracker/internal/pkg/xerrors"
)

// RateLimitMiddleware 限流中间件, 按客户端 IP 计数; perSecond <= 0 时使用 100
func RateLimitMiddleware(perSecond float64) echo.MiddlewareFunc {
	if perSecond <= 0 {
		perSecond = 100
	}
	config := middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(perSecond)),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			// 使用客户端 IP 作为标识符
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return xerrors.FromCode(xerrors.CodeInternalError).
				WithService("echo-middleware", "rate_limiter")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return xerrors.FromCode(xerrors.CodeRateLimitExceeded).
				WithService("echo-middleware", "rate_limiter").
				WithMetadata("client_ip", identifier)
		},
	}

	return middleware.RateLimiterWithConfig(config)
}
