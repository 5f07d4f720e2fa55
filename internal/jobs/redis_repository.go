package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "fragrance:job:"
	jobIndexKey  = "fragrance:jobs"
)

// RedisClient is the subset of *redis.Client the job store needs.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// RedisRepository keeps job snapshots as JSON strings with a TTL. Ids are
// tracked in an index set so List does not need SCAN.
type RedisRepository struct {
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisRepository(client RedisClient, ttl time.Duration, logger *slog.Logger) *RedisRepository {
	return &RedisRepository{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "job_store"),
	}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func (r *RedisRepository) Save(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := r.client.Set(ctx, jobKey(job.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}

	if err := r.client.SAdd(ctx, jobIndexKey, job.ID).Err(); err != nil {
		return fmt.Errorf("failed to index job: %w", err)
	}

	return nil
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, jobKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

// List returns every live job ordered by creation. Index entries whose
// snapshot has expired are pruned.
func (r *RedisRepository) List(ctx context.Context) ([]*Job, error) {
	ids, err := r.client.SMembers(ctx, jobIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := r.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			if err := r.client.SRem(ctx, jobIndexKey, id).Err(); err != nil {
				r.logger.Warn("failed to prune expired job", "job_id", id, "error", err)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	sortByCreation(jobs)
	return jobs, nil
}
