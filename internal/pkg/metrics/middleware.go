// File: internal/pkg/metrics/middleware.go
package metrics

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxTrackedRoutes 未匹配路由兜底时的标签上限
const maxTrackedRoutes = 200

// Middleware Echo 中间件 - 记录请求数、延迟与进行中请求
func Middleware(m *HTTPMetrics, service string) echo.MiddlewareFunc {
	if m == nil {
		m = DefaultHTTPMetrics
	}
	tracker := NewPathLimitTracker(maxTrackedRoutes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if IsHealthCheckEndpoint(path) {
				return next(c)
			}

			m.IncInProgress(service)
			defer m.DecInProgress(service)

			start := time.Now()
			err := next(c)

			// 路由模板优先, 未匹配时使用受限的原始路径
			route := c.Path()
			if route == "" {
				route = tracker.TrackPath(path)
			}

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}
			m.RecordRequest(service, route, c.Request().Method, status, time.Since(start))
			return err
		}
	}
}

// EchoHandler /metrics 处理器, 注册表同时实现 Gatherer 时只暴露该注册表
func EchoHandler() echo.HandlerFunc {
	var h http.Handler
	if g, ok := GetRegisterer().(prometheus.Gatherer); ok {
		h = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	} else {
		h = promhttp.Handler()
	}
	return func(c echo.Context) error {
		h.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	}
}
