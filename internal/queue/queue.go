// Package queue carries collection jobs over a Redis stream consumed by a
// consumer group.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"skylog/internal/metrics"
)

const (
	KindDaily      = "daily"
	KindHistorical = "historical"

	dataField = "data"
)

// Job asks a worker to collect one location and date.
type Job struct {
	ID         string    `json:"id"`
	LocationID int64     `json:"location_id"`
	Date       string    `json:"date"`
	Force      bool      `json:"force"`
	Kind       string    `json:"kind"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob builds a job with a fresh ID.
func NewJob(locationID int64, date time.Time, force bool, kind string) Job {
	if kind == "" {
		kind = KindDaily
	}
	return Job{
		ID:         uuid.NewString(),
		LocationID: locationID,
		Date:       date.Format(time.DateOnly),
		Force:      force,
		Kind:       kind,
	}
}

// Handler processes a single job. Returned errors are logged; the entry is
// acknowledged either way.
type Handler func(ctx context.Context, job Job) error

type Options struct {
	Stream   string
	Group    string
	Consumer string
	// Count is the maximum number of entries read per batch.
	Count int64
	// Block is how long a read waits for new entries. Negative means do not
	// block.
	Block time.Duration
}

type Queue struct {
	client redis.Cmdable
	opts   Options
	logger *slog.Logger
}

func New(client redis.Cmdable, opts Options, logger *slog.Logger) *Queue {
	if opts.Count <= 0 {
		opts.Count = 10
	}
	if opts.Block == 0 {
		opts.Block = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{client: client, opts: opts, logger: logger}
}

// Enqueue appends job to the stream and returns the entry ID.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.opts.Stream,
		Values: map[string]interface{}{dataField: string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	metrics.QueueJobsTotal.WithLabelValues("enqueued").Inc()
	q.logger.Debug("enqueued job", "job_id", job.ID, "entry_id", id, "location_id", job.LocationID, "date", job.Date)
	return id, nil
}

// EnsureGroup creates the consumer group, and the stream if needed. An
// existing group is not an error.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.opts.Stream, q.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// ProcessBatch reads up to Count new entries for this consumer and handles
// them in order. It returns the number of entries acknowledged.
func (q *Queue) ProcessBatch(ctx context.Context, h Handler) (int, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.opts.Group,
		Consumer: q.opts.Consumer,
		Streams:  []string{q.opts.Stream, ">"},
		Count:    q.opts.Count,
		Block:    q.opts.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream: %w", err)
	}

	acked := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if ctx.Err() != nil {
				return acked, ctx.Err()
			}
			q.handle(ctx, msg, h)

			// Acknowledge with a fresh context so shutdown does not leave
			// handled entries pending.
			if err := q.client.XAck(context.Background(), q.opts.Stream, q.opts.Group, msg.ID).Err(); err != nil {
				q.logger.Error("failed to acknowledge entry", "entry_id", msg.ID, "error", err)
				continue
			}
			acked++
		}
	}
	return acked, nil
}

func (q *Queue) handle(ctx context.Context, msg redis.XMessage, h Handler) {
	job, err := decode(msg)
	if err != nil {
		metrics.QueueJobsTotal.WithLabelValues("malformed").Inc()
		q.logger.Error("dropping malformed entry", "entry_id", msg.ID, "error", err)
		return
	}

	log := q.logger.With("job_id", job.ID, "location_id", job.LocationID, "date", job.Date, "kind", job.Kind)
	if err := h(ctx, job); err != nil {
		metrics.QueueJobsTotal.WithLabelValues("failed").Inc()
		log.Error("job failed", "error", err)
		return
	}
	metrics.QueueJobsTotal.WithLabelValues("processed").Inc()
	log.Info("job processed")
}

func decode(msg redis.XMessage) (Job, error) {
	var job Job
	raw, ok := msg.Values[dataField].(string)
	if !ok {
		return job, fmt.Errorf("missing %q field", dataField)
	}
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return job, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.LocationID <= 0 {
		return job, fmt.Errorf("invalid location id %d", job.LocationID)
	}
	return job, nil
}

// Run processes batches until ctx is cancelled.
func (q *Queue) Run(ctx context.Context, h Handler) error {
	if err := q.EnsureGroup(ctx); err != nil {
		return err
	}

	q.logger.Info("consuming stream", "stream", q.opts.Stream, "group", q.opts.Group, "consumer", q.opts.Consumer)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := q.ProcessBatch(ctx, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Error("error reading from redis", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}
