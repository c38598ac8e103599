package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusCreated))
	assert.Equal(t, "4xx", statusClass(http.StatusConflict))
	assert.Equal(t, "5xx", statusClass(http.StatusServiceUnavailable))
}

func TestTaskOutcome(t *testing.T) {
	assert.Equal(t, "ok", taskOutcome(nil))
	assert.Equal(t, "retry", taskOutcome(errors.New("boom")))
	assert.Equal(t, "dropped", taskOutcome(fmt.Errorf("bad payload: %w", asynq.SkipRetry)))
}

func TestGinMiddlewareLabelsUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/api/jobs/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	before := testutil.CollectAndCount(httpLatency)
	for _, path := range []string{"/api/jobs/1", "/api/jobs/2", "/wp-login.php"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	// Two jobs requests share one series; the unknown path gets the unmatched one.
	assert.Equal(t, before+2, testutil.CollectAndCount(httpLatency))
	assert.Equal(t, float64(0), testutil.ToFloat64(httpInFlight))
}

func TestAsynqMiddlewarePassesErrorThrough(t *testing.T) {
	want := fmt.Errorf("decode: %w", asynq.SkipRetry)
	handler := AsynqMetricsMiddleware()(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return want
	}))

	err := handler.ProcessTask(context.Background(), asynq.NewTask("test:metrics", nil))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, float64(0), testutil.ToFloat64(tasksRunning.WithLabelValues("test:metrics")))
}

func TestGinMiddlewareObservesPanickingHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery(), GinMiddleware())
	router.GET("/panics", func(c *gin.Context) { panic("boom") })

	before := testutil.CollectAndCount(httpLatency)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panics", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, float64(0), testutil.ToFloat64(httpInFlight))
	assert.Equal(t, before+1, testutil.CollectAndCount(httpLatency))
}
