package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("stream_token", "ABC"),
		attribute.String("event_type", "stream_start"),
		attribute.String("outcome", "ok"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("event_type"), attrs[0].Key)
	assert.Equal(t, attribute.Key("outcome"), attrs[1].Key)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPaymentEvent(ctx, "checkout.session.completed")
	m.RecordProvisioning(ctx, "dns", "error")
	m.RecordStreamSession(ctx, "issued")
	m.RecordWebhookCall(ctx, "stream_end", "ok")
	m.RecordRateLimitDenied(ctx, "/stream-key")

	var nilMetrics *Metrics
	nilMetrics.RecordPaymentEvent(ctx, "x")
}

func TestJobMetricsCountsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newJobMetrics(reg, Config{ServiceName: "test"})

	m.IncSubmitted("setup_streaming_instance")
	m.ObserveRun("setup_streaming_instance", JobOutcomeSuccess, 2*time.Second)
	m.ObserveRun("invoke_webhook", JobOutcomeError, time.Millisecond)
	m.IncError("invoke_webhook", context.DeadlineExceeded)
	m.IncError("invoke_webhook", fmt.Errorf("boom"))
	m.AddRedelivered(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.submitted.WithLabelValues("setup_streaming_instance")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("invoke_webhook", JobOutcomeError)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues("invoke_webhook", JobErrorReasonDeadlineExceeded)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues("invoke_webhook", JobErrorReasonUnknown)))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.redelivered))
}

type reasonErr struct{}

func (reasonErr) Error() string  { return "dns failed" }
func (reasonErr) Reason() string { return "provider" }

func TestClassifyJobError(t *testing.T) {
	assert.Equal(t, "", ClassifyJobError(nil))
	assert.Equal(t, JobErrorReasonCanceled, ClassifyJobError(context.Canceled))
	assert.Equal(t, "provider", ClassifyJobError(fmt.Errorf("wrap: %w", reasonErr{})))
}

func TestHTTPMiddlewareObservesRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := newHTTPMetrics(reg, Config{})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))
}
