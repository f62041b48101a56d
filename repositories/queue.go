package repositories

import (
	"context"
	"errors"
)

// ErrQueueAlreadyExists is wrapped by CreateQueue when the queue is already
// there. Callers treat it as a successful, idempotent create.
var ErrQueueAlreadyExists = errors.New("queue already exists")

// QueueRepository is the durable queue service that log records are delivered to
type QueueRepository interface {
	// CreateQueue creates the named queue and returns its address.
	// Returns an error wrapping ErrQueueAlreadyExists if it already exists.
	CreateQueue(ctx context.Context, name string) (string, error)

	// ResolveAddress returns the address of an existing queue
	ResolveAddress(ctx context.Context, name string) (string, error)

	// Send delivers one message to the queue at address and returns its message id
	Send(ctx context.Context, address string, payload []byte) (string, error)
}
