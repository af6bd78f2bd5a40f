package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerMetrics_RecordSubmission(t *testing.T) {
	tests := []struct {
		name         string
		success      bool
		parsed       int
		rejected     int
		turns        int
		wantParsed   float64
		wantRejected float64
	}{
		{name: "成功提交", success: true, parsed: 10, rejected: 2, turns: 3, wantParsed: 10, wantRejected: 2},
		{name: "失败提交不计行数", success: false, parsed: 10, rejected: 2, turns: 3, wantParsed: 0, wantRejected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			m := NewTrackerMetricsWithRegistry("test", reg)

			m.RecordSubmission(tt.success, tt.parsed, tt.rejected, tt.turns, 20*time.Millisecond, "svc")

			assert.Equal(t, tt.wantParsed, testutil.ToFloat64(m.LinesTotal.WithLabelValues("parsed", "svc")))
			assert.Equal(t, tt.wantRejected, testutil.ToFloat64(m.LinesTotal.WithLabelValues("rejected", "svc")))
			result := "success"
			if !tt.success {
				result = "error"
			}
			assert.Equal(t, float64(1), testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues(result, "svc")))
		})
	}
}

func TestTrackerMetrics_Followers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTrackerMetricsWithRegistry("test", reg)

	m.IncFollowersWaiting("svc")
	m.IncFollowersWaiting("svc")
	m.DecFollowersWaiting("svc")
	m.RecordFollowRequest("evicted", "svc")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FollowersWaiting.WithLabelValues("svc")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FollowRequestsTotal.WithLabelValues("evicted", "svc")))
}

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegistry("test", reg)

	e := echo.New()
	e.Use(Middleware(m, "svc"))
	e.GET("/api/v1/reports/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, path := range []string{"/api/v1/reports/a", "/api/v1/reports/b", "/health"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("svc", "/api/v1/reports/:id", "GET", "204")))
	require.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
}

func TestPathLimitTracker(t *testing.T) {
	tracker := NewPathLimitTracker(2)
	assert.Equal(t, "/a", tracker.TrackPath("/a"))
	assert.Equal(t, "/b", tracker.TrackPath("/b"))
	assert.Equal(t, "other", tracker.TrackPath("/c"))
	assert.Equal(t, "/a", tracker.TrackPath("/a"))
	assert.Equal(t, 2, tracker.GetTrackedCount())
}

func TestResourceMetrics_DBPoolStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewResourceMetricsWithRegistry("test", reg)

	m.RecordDBPoolStats("svc", "sqlite", 3, 1, 2, 4, 0, 0)
	m.RecordDBPoolStats("svc", "sqlite", 3, 2, 1, 4, 5, 2*time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.DBPool.WithLabelValues("svc", "sqlite", "in_use")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.DBPool.WithLabelValues("svc", "sqlite", "max")))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.DBWaits.WithLabelValues("svc", "sqlite")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DBWaitDuration.WithLabelValues("svc", "sqlite")))
}

func TestResourceMetrics_RedisPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewResourceMetricsWithRegistry("test", reg)

	m.RecordRedisPoolStats(10, 4, 1, "svc")
	m.RecordRedisOperation("GET", false, time.Millisecond, "svc")

	assert.Equal(t, float64(6), testutil.ToFloat64(m.RedisPool.WithLabelValues("active", "svc")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RedisOps.WithLabelValues("GET", "error", "svc")))
}

func TestEchoHandler_ServesInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	restore := SetRegisterer(reg)
	defer restore()

	m := NewTrackerMetrics("injected")
	m.SetQueueDepth(3, "svc")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, EchoHandler()(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "injected_")
	assert.NotContains(t, rec.Body.String(), "go_goroutines")
}

func TestServiceName(t *testing.T) {
	defer SetServiceName("")

	assert.Equal(t, DefaultServiceName, GetServiceName())
	SetServiceName("tracker-replay")
	assert.Equal(t, "tracker-replay", GetServiceName())
	assert.Equal(t, "tracker-replay", normalizeServiceName(""))
	assert.Equal(t, "explicit", normalizeServiceName("explicit"))

	SetServiceName("")
	assert.Equal(t, DefaultServiceName, GetServiceName())
}
