package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeIdempotencyCleanup purges expired idempotency keys.
	TaskTypeIdempotencyCleanup = "idempotency:cleanup"

	idempotencyRetention = 48 * time.Hour
)

// IdempotencyCleanupPayload carries scheduling metadata.
type IdempotencyCleanupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// KeyCleaner removes idempotency records older than the retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleaner wires the cleanup task.
type IdempotencyCleaner struct {
	store  KeyCleaner
	logger *slog.Logger
}

// NewIdempotencyCleaner constructs the cleaner.
func NewIdempotencyCleaner(store KeyCleaner, logger *slog.Logger) *IdempotencyCleaner {
	return &IdempotencyCleaner{store: store, logger: logger}
}

// HandleCleanup processes TaskTypeIdempotencyCleanup tasks.
func (c *IdempotencyCleaner) HandleCleanup(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := c.store.Cleanup(ctx, idempotencyRetention); err != nil {
		return err
	}
	c.logger.Info("idempotency keys cleaned",
		slog.String("retention", idempotencyRetention.String()))
	return nil
}
