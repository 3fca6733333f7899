package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"astroshare/equipment-service/internal/constants"
)

// Job is a typed descriptor consumed by the worker fleet. Workers deliver
// at least once; handlers must treat re-delivery as a no-op (removing an
// already-removed item reference does nothing).
type Job struct {
	Name       string    `json:"name"`
	ItemID     uint64    `json:"item_id"`
	Klass      string    `json:"klass"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Dispatcher enqueues jobs for out-of-band processing
type Dispatcher interface {
	Enqueue(ctx context.Context, job Job) error
}

type redisDispatcher struct {
	client *redis.Client
}

// NewRedisDispatcher creates a dispatcher backed by a Redis list
func NewRedisDispatcher(client *redis.Client) Dispatcher {
	return &redisDispatcher{client: client}
}

func (d *redisDispatcher) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.Name, err)
	}

	if err := d.client.RPush(ctx, constants.JobQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.Name, err)
	}
	return nil
}
