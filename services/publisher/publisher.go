package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upb/outbound-request-tracker/config"
	"github.com/upb/outbound-request-tracker/internal/observability"
	"github.com/upb/outbound-request-tracker/models"
	"github.com/upb/outbound-request-tracker/repositories"
	"github.com/upb/outbound-request-tracker/services"
	"go.uber.org/zap"
)

// State is the provisioning state of a Publisher
type State int32

const (
	StateUninitialized State = iota
	StateProvisioning
	StateReady
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateProvisioning:
		return "provisioning"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// QueueHandle is the resolved publish target
type QueueHandle struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Publisher delivers log records to a single named queue.
//
// The queue is provisioned at most once per Publisher. Ready and Failed are
// terminal: a Ready publisher reuses its handle for every publish, a Failed one
// returns the provisioning failure from every call.
type Publisher struct {
	queue    repositories.QueueRepository
	resolver *config.Resolver
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	state   atomic.Int32
	handle  atomic.Pointer[QueueHandle]
	failure error
}

// New creates a Publisher. Nothing is provisioned until Provision or Publish is called.
func New(queue repositories.QueueRepository, resolver *config.Resolver, logger *zap.Logger, metrics *observability.Metrics) *Publisher {
	if resolver == nil {
		resolver = config.NewResolver(nil)
	}
	return &Publisher{
		queue:    queue,
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
	}
}

// State returns the current provisioning state
func (p *Publisher) State() State {
	return State(p.state.Load())
}

// Handle returns the provisioned queue handle, or nil before Ready
func (p *Publisher) Handle() *QueueHandle {
	return p.handle.Load()
}

// Provision creates and resolves the queue if that has not happened yet.
//
// A queue that already exists counts as created. Any other creation or
// resolution failure moves the Publisher to Failed. If provisioning stops only
// because ctx was cancelled or expired, the Publisher goes back to
// Uninitialized and the next call tries again.
func (p *Publisher) Provision(ctx context.Context) (*QueueHandle, error) {
	if h := p.handle.Load(); h != nil {
		return h, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if h := p.handle.Load(); h != nil {
		return h, nil
	}
	if p.failure != nil {
		return nil, p.failure
	}

	p.state.Store(int32(StateProvisioning))

	h, created, err := p.provision(ctx)
	if err != nil {
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			p.state.Store(int32(StateUninitialized))
			return nil, services.Wrap(services.ErrProvisioningInterrupted, err)
		}

		p.failure = services.Wrap(services.ErrPublisherFailed, err)
		p.state.Store(int32(StateFailed))
		p.metrics.RecordProvisioning(observability.ResultFailure)
		return nil, p.failure
	}

	if created {
		p.metrics.RecordProvisioning(observability.ResultSuccess)
	} else {
		p.metrics.RecordProvisioning(observability.ResultExists)
	}

	p.handle.Store(h)
	p.state.Store(int32(StateReady))
	p.logger.Info("publisher ready",
		zap.String("queue", h.Name),
		zap.String("address", h.Address))

	return h, nil
}

// provision creates and resolves the queue. created is false when the queue
// already existed.
func (p *Publisher) provision(ctx context.Context) (h *QueueHandle, created bool, err error) {
	name := p.resolver.QueueName()

	_, err = p.queue.CreateQueue(ctx, name)
	switch {
	case err == nil:
		created = true
		p.logger.Debug("connected to queue", zap.String("queue", name))
	case errors.Is(err, repositories.ErrQueueAlreadyExists):
		p.logger.Debug("queue already exists", zap.String("queue", name))
	default:
		p.logger.Error("failed to create queue", zap.String("queue", name), zap.Error(err))
		return nil, false, services.Wrap(services.ErrQueueCreateFailed, err).WithDetail("queue", name)
	}

	address, err := p.queue.ResolveAddress(ctx, name)
	if err != nil {
		p.logger.Error("failed to resolve queue address", zap.String("queue", name), zap.Error(err))
		return nil, false, services.Wrap(services.ErrQueueResolveFailed, err).WithDetail("queue", name)
	}

	return &QueueHandle{Name: name, Address: address}, created, nil
}

// Publish stamps the current client id on record, serializes it and sends it
// to the queue. It returns the queue's message id.
func (p *Publisher) Publish(ctx context.Context, record *models.OutboundRequestLog) (string, error) {
	if record == nil {
		return "", services.Wrap(services.ErrNilRecord, nil)
	}

	h, err := p.Provision(ctx)
	if err != nil {
		return "", err
	}

	clientID, _ := p.resolver.ClientID()
	record.SetClientID(clientID)

	payload, err := json.Marshal(record)
	if err != nil {
		return "", services.Wrap(services.ErrSerializationFailed, err).WithDetail("log_id", record.ID())
	}

	start := time.Now()
	messageID, err := p.queue.Send(ctx, h.Address, payload)
	if err != nil {
		p.metrics.RecordPublish(observability.ResultFailure, time.Since(start))
		return "", services.Wrap(services.ErrSendFailed, err).
			WithDetail("log_id", record.ID()).
			WithDetail("queue", h.Name)
	}
	p.metrics.RecordPublish(observability.ResultSuccess, time.Since(start))

	p.logger.Debug("message sent successfully",
		zap.String("log_id", record.ID()),
		zap.String("message_id", messageID))

	return messageID, nil
}
