package tracking

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/outbound-request-tracker/internal/observability"
	"github.com/upb/outbound-request-tracker/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockPublisher is a mock implementation of Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, record *models.OutboundRequestLog) (string, error) {
	args := m.Called(ctx, record)
	return args.String(0), args.Error(1)
}

func okExecutor(body string) Executor {
	return func(req *http.Request, _ []byte) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

func TestInterceptor_Intercept(t *testing.T) {
	pub := new(MockPublisher)
	var published *models.OutboundRequestLog
	pub.On("Publish", mock.Anything, mock.Anything).Return("msg-1", nil).Run(func(args mock.Arguments) {
		published = args.Get(1).(*models.OutboundRequestLog)
	})

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	ticks := []time.Time{start, start.Add(150 * time.Millisecond)}
	clock := func() time.Time {
		now := ticks[0]
		ticks = ticks[1:]
		return now
	}

	interceptor := NewInterceptor(pub, zap.NewNop(), WithClock(clock))

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/x", nil)
	req.Header.Set("Accept", "application/json")

	resp, err := interceptor.Intercept(req, nil, okExecutor(`{"ok":true}`))
	require.NoError(t, err)

	logID := resp.Header.Get("acs-log-id")
	assert.NotEmpty(t, logID)

	require.NotNil(t, published)
	assert.Equal(t, logID, published.ID())
	assert.Equal(t, "2024-03-01T10:00:00+01:00", published.StartTime)
	assert.Equal(t, "2024-03-01T10:00:00.15+01:00", published.EndTime)
	assert.Equal(t, []models.NameValues{{Name: "Accept", Values: []string{"application/json"}}}, published.RequestHeaders)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestInterceptor_UpstreamError(t *testing.T) {
	pub := new(MockPublisher)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	interceptor := NewInterceptor(pub, zap.NewNop(), WithMetrics(metrics))

	upstreamErr := errors.New("dial tcp 10.0.0.1:443: i/o timeout")
	next := func(*http.Request, []byte) (*http.Response, error) {
		return nil, upstreamErr
	}

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/x", nil)
	resp, err := interceptor.Intercept(req, nil, next)

	assert.Nil(t, resp)
	assert.Same(t, upstreamErr, err)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)

	count, gatherErr := testutil.GatherAndCount(metrics.Registry(), "outbound_tracker_requests_total")
	require.NoError(t, gatherErr)
	assert.Equal(t, 1, count)
}

func TestInterceptor_CaptureFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	pub := new(MockPublisher)
	interceptor := NewInterceptor(pub, zap.New(core))

	raw := string([]byte{0xff, 0xfe, 0xfd})
	req := httptest.NewRequest(http.MethodGet, "https://cdn.example.com/blob", nil)

	resp, err := interceptor.Intercept(req, nil, okExecutor(raw))
	require.NoError(t, err)

	assert.Empty(t, resp.Header.Get("acs-log-id"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, raw, string(data))

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	entries := logs.FilterMessage("failed to capture outbound request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "capture", entries[0].ContextMap()["error_type"])
}

func TestInterceptor_PublishFailureIsSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return("", errors.New("queue unavailable"))

	interceptor := NewInterceptor(pub, zap.New(core))

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/x", nil)
	resp, err := interceptor.Intercept(req, nil, okExecutor(`{"ok":true}`))
	require.NoError(t, err)
	require.NotNil(t, resp)

	logID := resp.Header.Get("acs-log-id")
	assert.NotEmpty(t, logID)

	entries := logs.FilterMessage("failed to publish log record").All()
	require.Len(t, entries, 1)
	assert.Equal(t, logID, entries[0].ContextMap()["log_id"])
}

func TestInterceptor_CustomHeader(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return("msg", nil)

	interceptor := NewInterceptor(pub, zap.NewNop(), WithLogIDHeader("X-Log-Id"), WithLogIDHeader(""))
	assert.Equal(t, "X-Log-Id", interceptor.LogIDHeader())

	next := func(*http.Request, []byte) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Status: "200 OK", Body: http.NoBody}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/x", nil)
	resp, err := interceptor.Intercept(req, nil, next)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Header.Get("X-Log-Id"))
	assert.Empty(t, resp.Header.Get("acs-log-id"))
}

func TestInterceptor_PassesBodyToNext(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(r *models.OutboundRequestLog) bool {
		return r.RequestBody == `{"name":"x"}`
	})).Return("msg", nil)

	interceptor := NewInterceptor(pub, zap.NewNop())

	var seen []byte
	next := func(req *http.Request, body []byte) (*http.Response, error) {
		seen = body
		return okExecutor(`{}`)(req, body)
	}

	req := httptest.NewRequest(http.MethodPost, "https://api.example.com/x", nil)
	_, err := interceptor.Intercept(req, []byte(`{"name":"x"}`), next)
	require.NoError(t, err)

	assert.Equal(t, `{"name":"x"}`, string(seen))
	pub.AssertExpectations(t)
}

func TestOutcome_Tracked(t *testing.T) {
	assert.True(t, Outcome{LogID: "a"}.Tracked())
	assert.False(t, Outcome{Stage: StagePublish, Err: errors.New("x")}.Tracked())
}
