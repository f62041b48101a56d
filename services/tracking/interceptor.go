package tracking

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/outbound-request-tracker/config"
	"github.com/upb/outbound-request-tracker/internal/observability"
	"github.com/upb/outbound-request-tracker/models"
	"github.com/upb/outbound-request-tracker/services"
	"go.uber.org/zap"
)

// Publisher accepts a captured record for delivery
type Publisher interface {
	Publish(ctx context.Context, record *models.OutboundRequestLog) (string, error)
}

// Executor performs the actual outbound call
type Executor func(req *http.Request, body []byte) (*http.Response, error)

// Stage names the tracking step that failed
type Stage string

const (
	StageCapture Stage = "capture"
	StagePublish Stage = "publish"
)

// Outcome is the result of tracking one exchange. Intercept logs it and
// drops it; it never reaches the caller.
type Outcome struct {
	LogID     string
	MessageID string
	Stage     Stage
	Err       error
}

// Tracked reports whether the record was captured and handed off
func (o Outcome) Tracked() bool {
	return o.Err == nil
}

// Interceptor records outbound exchanges without changing their result
type Interceptor struct {
	publisher Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics
	header    string
	now       func() time.Time
}

// Option configures an Interceptor
type Option func(*Interceptor)

// WithLogIDHeader sets the response header that carries the record id
func WithLogIDHeader(name string) Option {
	return func(i *Interceptor) {
		if name != "" {
			i.header = name
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(i *Interceptor) {
		i.now = now
	}
}

// WithMetrics records tracking outcomes
func WithMetrics(m *observability.Metrics) Option {
	return func(i *Interceptor) {
		i.metrics = m
	}
}

// NewInterceptor creates an Interceptor that hands records to publisher
func NewInterceptor(publisher Publisher, logger *zap.Logger, opts ...Option) *Interceptor {
	i := &Interceptor{
		publisher: publisher,
		logger:    logger,
		header:    config.DefaultLogIDHeader,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// LogIDHeader returns the name of the correlation header
func (i *Interceptor) LogIDHeader() string {
	return i.header
}

// Intercept runs next and tracks the exchange. Whatever next returns is
// returned unchanged; tracking failures are logged and never surfaced.
func (i *Interceptor) Intercept(req *http.Request, body []byte, next Executor) (*http.Response, error) {
	start := i.now()
	resp, err := next(req, body)
	if err != nil {
		i.metrics.RecordRequest(observability.OutcomeUpstreamError)
		return resp, err
	}
	end := i.now()

	outcome := i.track(req, body, resp, start, end)
	i.report(req, outcome)

	return resp, nil
}

func (i *Interceptor) track(req *http.Request, body []byte, resp *http.Response, start, end time.Time) Outcome {
	record, err := Capture(req, body, resp)
	if err != nil {
		return Outcome{Stage: StageCapture, Err: err}
	}
	record.WithTiming(start, end)

	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(i.header, record.ID())

	messageID, err := i.publisher.Publish(req.Context(), record)
	if err != nil {
		return Outcome{LogID: record.ID(), Stage: StagePublish, Err: err}
	}

	return Outcome{LogID: record.ID(), MessageID: messageID}
}

func (i *Interceptor) report(req *http.Request, o Outcome) {
	if o.Tracked() {
		i.metrics.RecordRequest(observability.OutcomeTracked)
		i.logger.Debug("outbound request tracked",
			zap.String("log_id", o.LogID),
			zap.String("message_id", o.MessageID))
		return
	}

	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("uri", req.URL.String()),
		zap.String("error_type", string(services.GetErrorType(o.Err))),
		zap.Error(o.Err),
	}

	if o.Stage == StageCapture {
		i.metrics.RecordRequest(observability.OutcomeCaptureFailed)
		i.logger.Warn("failed to capture outbound request", fields...)
		return
	}

	i.metrics.RecordRequest(observability.OutcomePublishFailed)
	i.logger.Error("failed to publish log record", append(fields, zap.String("log_id", o.LogID))...)
}
