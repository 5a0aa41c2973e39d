package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"terrana/internal/config"
	"terrana/internal/metrics"
	"terrana/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisAvailabilityStore shares the availability cache across processes.
// Lookups never fail: any Redis error reports a miss and the caller falls
// through to the backend.
type RedisAvailabilityStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a Redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisAvailabilityStore(client *redis.Client, ttl time.Duration) *RedisAvailabilityStore {
	if ttl <= 0 {
		ttl = models.AvailabilityTTLSeconds * time.Second
	}
	return &RedisAvailabilityStore{client: client, ttl: ttl}
}

func availabilityKey(facilityID int64) string {
	return fmt.Sprintf("availability:%d", facilityID)
}

func (s *RedisAvailabilityStore) Get(ctx context.Context, facilityID int64) ([]models.ReservationRecord, bool) {
	if s.client == nil {
		return nil, false
	}

	val, err := s.client.Get(ctx, availabilityKey(facilityID)).Result()
	if err != nil {
		metrics.IncCache("miss")
		return nil, false
	}

	var records []models.ReservationRecord
	if err := json.Unmarshal([]byte(val), &records); err != nil {
		metrics.IncCache("miss")
		return nil, false
	}

	metrics.IncCache("hit")
	return records, true
}

func (s *RedisAvailabilityStore) Put(ctx context.Context, facilityID int64, records []models.ReservationRecord) {
	if s.client == nil {
		return
	}

	data, err := json.Marshal(records)
	if err != nil {
		return
	}
	_ = s.client.Set(ctx, availabilityKey(facilityID), data, s.ttl).Err()
}

func (s *RedisAvailabilityStore) Invalidate(ctx context.Context, facilityID int64) {
	if s.client == nil {
		return
	}
	_ = s.client.Del(ctx, availabilityKey(facilityID)).Err()
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
