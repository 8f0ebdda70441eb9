package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
	"github.com/xzc516/fit5032-youthwell-project/internal/risk"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveContent("sanitize", true, contentguard.Scan("<script>eval(1)</script>"))
	m.ObserveContent("sanitize", false, nil)
	m.ObserveAssessment(risk.TierHigh)
	m.ObserveAssessment(risk.TierHigh)
	m.ObserveRateLimited("http")
	m.ObserveChatReply("crisis")
	m.ObserveEventDropped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.contentChecks.WithLabelValues("sanitize", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.contentChecks.WithLabelValues("sanitize", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signatureHits.WithLabelValues("markup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signatureHits.WithLabelValues("call")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.riskAssessments.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("http")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chatReplies.WithLabelValues("crisis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDropped))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRequest("/v1/risk/assess", "200", 3*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "youthwell_guard_http_request_duration_seconds"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveContent("validate", true, nil)
	m.ObserveAssessment(risk.TierLow)
	m.ObserveRequest("/", "200", time.Millisecond)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
