package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/outbound-request-tracker/internal/observability"
	"github.com/upb/outbound-request-tracker/models"
	"github.com/upb/outbound-request-tracker/services"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// MockPublisher is a mock implementation of Publisher
type MockPublisher struct {
	mock.Mock
	mu        sync.Mutex
	published []*models.OutboundRequestLog
}

func (m *MockPublisher) Publish(ctx context.Context, record *models.OutboundRequestLog) (string, error) {
	args := m.Called(ctx, record)

	m.mu.Lock()
	defer m.mu.Unlock()
	if args.Error(1) == nil {
		m.published = append(m.published, record)
	}
	return args.String(0), args.Error(1)
}

func (m *MockPublisher) GetPublished() []*models.OutboundRequestLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.OutboundRequestLog(nil), m.published...)
}

func TestService_StartStop(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	pub := new(MockPublisher)

	service := NewService(pub, logger, nil, Config{BufferSize: 10, WorkerCount: 2, PublishTimeout: time.Second})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	// Cannot start again
	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Started)

	// Cannot stop twice
	assert.Error(t, service.Stop(time.Second))
}

func TestService_DefaultsApplied(t *testing.T) {
	service := NewService(new(MockPublisher), zap.NewNop(), nil, Config{})

	stats := service.GetStats()
	assert.Equal(t, DefaultConfig().BufferSize, stats.BufferSize)
	assert.Equal(t, DefaultConfig().WorkerCount, stats.WorkerCount)
	assert.Equal(t, DefaultConfig().PublishTimeout, service.publishTimeout)
}

func TestService_PublishNotStarted(t *testing.T) {
	service := NewService(new(MockPublisher), zap.NewNop(), nil, DefaultConfig())

	_, err := service.Publish(context.Background(), models.NewOutboundRequestLog())
	assert.ErrorIs(t, err, services.ErrDispatcherNotStarted)
}

func TestService_Publish(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return("msg-1", nil)

	service := NewService(pub, logger, nil, Config{BufferSize: 100, WorkerCount: 2, PublishTimeout: time.Second})
	require.NoError(t, service.Start())

	record := models.NewOutboundRequestLog()
	id, err := service.Publish(context.Background(), record)
	require.NoError(t, err)
	assert.Empty(t, id, "message id is not known until the worker publishes")

	require.NoError(t, service.Stop(5*time.Second))

	published := pub.GetPublished()
	require.Len(t, published, 1)
	assert.Equal(t, record.ID(), published[0].ID())
	assert.Equal(t, int64(1), service.GetStats().Published)
}

func TestService_PublishAppliesTimeout(t *testing.T) {
	pub := new(MockPublisher)

	deadlineSet := make(chan bool, 1)
	pub.On("Publish", mock.Anything, mock.Anything).Return("msg", nil).Run(func(args mock.Arguments) {
		_, ok := args.Get(0).(context.Context).Deadline()
		deadlineSet <- ok
	})

	service := NewService(pub, zap.NewNop(), nil, Config{BufferSize: 1, WorkerCount: 1, PublishTimeout: 50 * time.Millisecond})
	require.NoError(t, service.Start())
	defer service.Stop(time.Second)

	_, err := service.Publish(context.Background(), models.NewOutboundRequestLog())
	require.NoError(t, err)

	select {
	case ok := <-deadlineSet:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("record was not published")
	}
}

func TestService_PublishAfterStop(t *testing.T) {
	pub := new(MockPublisher)
	service := NewService(pub, zap.NewNop(), nil, Config{BufferSize: 10, WorkerCount: 1, PublishTimeout: time.Second})
	require.NoError(t, service.Start())
	require.NoError(t, service.Stop(time.Second))

	_, err := service.Publish(context.Background(), models.NewOutboundRequestLog())
	assert.ErrorIs(t, err, services.ErrDispatcherNotStarted)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestService_MultipleRecords(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return("msg", nil)

	service := NewService(pub, zap.NewNop(), nil, Config{BufferSize: 100, WorkerCount: 3, PublishTimeout: time.Second})
	require.NoError(t, service.Start())

	recordCount := 50
	for i := 0; i < recordCount; i++ {
		_, err := service.Publish(context.Background(), models.NewOutboundRequestLog())
		require.NoError(t, err)
	}

	// Stop drains everything already buffered
	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, pub.GetPublished(), recordCount)
}

func TestService_ConcurrentPublishing(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return("msg", nil)

	service := NewService(pub, zap.NewNop(), nil, Config{BufferSize: 1000, WorkerCount: 5, PublishTimeout: time.Second})
	require.NoError(t, service.Start())

	goroutineCount := 10
	recordsPerGoroutine := 10
	var wg sync.WaitGroup

	for i := 0; i < goroutineCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				_, _ = service.Publish(context.Background(), models.NewOutboundRequestLog())
			}
		}()
	}
	wg.Wait()

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, pub.GetPublished(), goroutineCount*recordsPerGoroutine)
}

func TestService_BufferFull(t *testing.T) {
	release := make(chan struct{})
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return("msg", nil).Run(func(mock.Arguments) {
		<-release
	})

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	service := NewService(pub, zap.NewNop(), metrics, Config{BufferSize: 5, WorkerCount: 1, PublishTimeout: 5 * time.Second})
	require.NoError(t, service.Start())

	successCount := 0
	droppedCount := 0
	for i := 0; i < 20; i++ {
		_, err := service.Publish(context.Background(), models.NewOutboundRequestLog())
		if err == nil {
			successCount++
			continue
		}
		assert.ErrorIs(t, err, services.ErrDispatchBufferFull)
		droppedCount++
	}

	// at most the buffer plus the record held by the worker
	assert.LessOrEqual(t, successCount, 6)
	assert.Greater(t, droppedCount, 0)
	assert.Equal(t, int64(droppedCount), service.GetStats().Dropped)

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, pub.GetPublished(), successCount)
}

func TestService_FailuresAreLoggedOnly(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return("", errors.New("queue unavailable"))

	service := NewService(pub, zap.New(core), nil, Config{BufferSize: 10, WorkerCount: 1, PublishTimeout: time.Second})
	require.NoError(t, service.Start())

	record := models.NewOutboundRequestLog()
	_, err := service.Publish(context.Background(), record)
	require.NoError(t, err)

	require.NoError(t, service.Stop(5*time.Second))

	assert.Equal(t, int64(1), service.GetStats().Failed)
	entries := logs.FilterMessage("failed to publish log record").All()
	require.Len(t, entries, 1)
	assert.Equal(t, record.ID(), entries[0].ContextMap()["log_id"])
}
