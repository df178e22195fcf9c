package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipsniper/api/internal/model"
)

const redisKeyPrefix = "clip:job:"

// RedisStore keeps each record under clip:job:<id> with a TTL
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, ttl: ttl}
}

func redisKey(jobID string) string {
	return fmt.Sprintf("%s%s", redisKeyPrefix, jobID)
}

func (s *RedisStore) Put(ctx context.Context, job *model.Job) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, redisKey(job.ID), data, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, redisKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeJob(data)
}

func (s *RedisStore) Delete(ctx context.Context, jobID string) error {
	return s.redis.Del(ctx, redisKey(jobID)).Err()
}

func (s *RedisStore) List(ctx context.Context) ([]*model.Job, error) {
	var jobs []*model.Job
	iter := s.redis.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.redis.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		if job, err := decodeJob(data); err == nil {
			jobs = append(jobs, job)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}
