package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/outbound-request-tracker/repositories"
	"go.uber.org/zap"
)

// Postgres error codes returned when a CREATE TABLE races an existing table.
// 23505 shows up when two sessions create the same table concurrently and
// collide on pg_type.
const (
	pqDuplicateTable  = "42P07"
	pqUniqueViolation = "23505"
)

var queueNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// QueueRepository implements repositories.QueueRepository with one table per
// queue. The queue address is the table name.
type QueueRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewQueueRepository creates a new table-backed queue repository
func NewQueueRepository(db *DB, logger *zap.Logger) *QueueRepository {
	return &QueueRepository{
		db:     db,
		logger: logger,
	}
}

// CreateQueue creates the queue table
func (r *QueueRepository) CreateQueue(ctx context.Context, name string) (string, error) {
	if err := validateQueueName(name); err != nil {
		return "", err
	}

	query := fmt.Sprintf(`
		CREATE TABLE %s (
			id UUID PRIMARY KEY,
			payload JSONB NOT NULL,
			enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, pq.QuoteIdentifier(name))

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && (pqErr.Code == pqDuplicateTable || pqErr.Code == pqUniqueViolation) {
			return "", fmt.Errorf("%w: %s", repositories.ErrQueueAlreadyExists, name)
		}
		return "", fmt.Errorf("failed to create queue table %s: %w", name, err)
	}

	r.logger.Debug("queue table created", zap.String("queue", name))
	return name, nil
}

// ResolveAddress confirms the queue table exists and returns its name
func (r *QueueRepository) ResolveAddress(ctx context.Context, name string) (string, error) {
	if err := validateQueueName(name); err != nil {
		return "", err
	}

	var resolved sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, pq.QuoteIdentifier(name)).Scan(&resolved)
	if err != nil {
		return "", fmt.Errorf("failed to resolve queue table %s: %w", name, err)
	}
	if !resolved.Valid {
		return "", fmt.Errorf("queue table %s does not exist", name)
	}

	return name, nil
}

// Send inserts payload as a new message row
func (r *QueueRepository) Send(ctx context.Context, address string, payload []byte) (string, error) {
	if err := validateQueueName(address); err != nil {
		return "", err
	}

	id := uuid.New()
	query := fmt.Sprintf(`INSERT INTO %s (id, payload) VALUES ($1, $2)`, pq.QuoteIdentifier(address))

	if _, err := r.db.ExecContext(ctx, query, id, payload); err != nil {
		return "", fmt.Errorf("failed to enqueue message on %s: %w", address, err)
	}

	return id.String(), nil
}

func validateQueueName(name string) error {
	if !queueNamePattern.MatchString(name) {
		return fmt.Errorf("invalid queue name %q", name)
	}
	return nil
}
