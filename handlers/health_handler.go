package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/outbound-request-tracker/services/dispatch"
	"github.com/upb/outbound-request-tracker/services/publisher"
	"github.com/upb/outbound-request-tracker/utils"
	"go.uber.org/zap"
)

// PublisherStatus exposes the provisioning state of the publisher
type PublisherStatus interface {
	State() publisher.State
	Handle() *publisher.QueueHandle
}

// DatabaseChecker reports whether the database answers queries
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// DispatchStatus exposes background dispatch statistics
type DispatchStatus interface {
	GetStats() dispatch.Stats
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatsResponse represents the tracker statistics response
type StatsResponse struct {
	PublishMode    string                 `json:"publish_mode"`
	PublisherState string                 `json:"publisher_state"`
	Queue          *publisher.QueueHandle `json:"queue,omitempty"`
	Dispatcher     *dispatch.Stats        `json:"dispatcher,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db          DatabaseChecker
	publisher   PublisherStatus
	dispatcher  DispatchStatus
	publishMode string
	logger      *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and dispatcher may be nil.
func NewHealthHandler(db DatabaseChecker, pub PublisherStatus, dispatcher DispatchStatus, publishMode string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:          db,
		publisher:   pub,
		dispatcher:  dispatcher,
		publishMode: publishMode,
		logger:      logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Ready once the publisher has a queue and the database (if any) answers
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	state := publisher.StateUninitialized
	if h.publisher != nil {
		state = h.publisher.State()
	}
	checks["publisher"] = state.String()
	if state != publisher.StateReady {
		allHealthy = false
	}

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			h.logger.Warn("database health check failed", zap.Error(err))
			checks["database"] = "unhealthy"
			allHealthy = false
		} else {
			checks["database"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleStats handles GET /stats
func (h *HealthHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	response := StatsResponse{
		PublishMode:    h.publishMode,
		PublisherState: publisher.StateUninitialized.String(),
	}

	if h.publisher != nil {
		response.PublisherState = h.publisher.State().String()
		response.Queue = h.publisher.Handle()
	}
	if h.dispatcher != nil {
		stats := h.dispatcher.GetStats()
		response.Dispatcher = &stats
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write stats response", zap.Error(err))
	}
}
