package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upb/outbound-request-tracker/internal/observability"
	"github.com/upb/outbound-request-tracker/models"
	"github.com/upb/outbound-request-tracker/services"
	"go.uber.org/zap"
)

// Publisher sends one log record to the queue
type Publisher interface {
	Publish(ctx context.Context, record *models.OutboundRequestLog) (string, error)
}

// Service publishes log records on background workers so queue latency is
// not added to the tracked call. Failures on the background path are only logged.
type Service struct {
	publisher      Publisher
	logger         *zap.Logger
	metrics        *observability.Metrics
	records        chan *models.OutboundRequestLog
	workerCount    int
	bufferSize     int
	publishTimeout time.Duration
	wg             sync.WaitGroup

	// mu guards started/stopped and closing records
	mu      sync.RWMutex
	started bool
	stopped bool

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// Config holds configuration for the Service
type Config struct {
	BufferSize     int           // Size of the record buffer channel
	WorkerCount    int           // Number of concurrent workers
	PublishTimeout time.Duration // Timeout applied to each publish
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:     1000,
		WorkerCount:    2,
		PublishTimeout: 5 * time.Second,
	}
}

// NewService creates a new dispatch Service
func NewService(publisher Publisher, logger *zap.Logger, metrics *observability.Metrics, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}

	return &Service{
		publisher:      publisher,
		logger:         logger,
		metrics:        metrics,
		records:        make(chan *models.OutboundRequestLog, cfg.BufferSize),
		workerCount:    cfg.WorkerCount,
		bufferSize:     cfg.BufferSize,
		publishTimeout: cfg.PublishTimeout,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("dispatch service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started dispatch service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting records and waits up to timeout for the workers to
// publish what is already buffered.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("dispatch service not running")
	}
	s.stopped = true
	pending := len(s.records)
	close(s.records)
	s.mu.Unlock()

	s.logger.Info("stopping dispatch service", zap.Int("pending_records", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("dispatch service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("dispatch service stop timeout after %v", timeout)
	}
}

// Publish enqueues record without blocking and returns an empty message id.
// A full buffer drops the record with ErrDispatchBufferFull.
func (s *Service) Publish(_ context.Context, record *models.OutboundRequestLog) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return "", services.ErrDispatcherNotStarted
	}

	select {
	case s.records <- record:
		return "", nil
	default:
		s.dropped.Add(1)
		s.metrics.RecordDispatchDropped()
		s.logger.Warn("dispatch buffer full, dropping log record",
			zap.String("log_id", record.ID()))
		return "", services.ErrDispatchBufferFull
	}
}

// worker publishes records from the channel
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("dispatch worker started", zap.Int("worker_id", id))

	for record := range s.records {
		if err := s.publish(record); err != nil {
			s.failed.Add(1)
			s.logger.Error("failed to publish log record",
				zap.Int("worker_id", id),
				zap.String("log_id", record.ID()),
				zap.Error(err))
			continue
		}
		s.published.Add(1)
	}

	s.logger.Debug("dispatch worker stopped", zap.Int("worker_id", id))
}

func (s *Service) publish(record *models.OutboundRequestLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
	defer cancel()

	_, err := s.publisher.Publish(ctx, record)
	return err
}

// GetStats returns statistics about the dispatch service
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:     s.bufferSize,
		PendingRecords: len(s.records),
		WorkerCount:    s.workerCount,
		Started:        s.started && !s.stopped,
		Published:      s.published.Load(),
		Failed:         s.failed.Load(),
		Dropped:        s.dropped.Load(),
	}
}

// Stats represents dispatch service statistics
type Stats struct {
	BufferSize     int   `json:"buffer_size"`
	PendingRecords int   `json:"pending_records"`
	WorkerCount    int   `json:"worker_count"`
	Started        bool  `json:"started"`
	Published      int64 `json:"published"`
	Failed         int64 `json:"failed"`
	Dropped        int64 `json:"dropped"`
}
