package storage

import (
	"context"
)

// Storage bundles the two backing stores of the matching service: Postgres for
// match records and Redis for the notification bus and asynq broker. In-flight
// matching state never touches either; it lives in the engine's memory.
type Storage struct {
	DB    *PostgresDB
	Redis *RedisClient
}

// NewStorage connects both stores, tearing down Postgres if Redis fails so a
// half-open storage layer is never returned.
func NewStorage(ctx context.Context, databaseURL, redisURL string) (*Storage, error) {
	db, err := NewPostgresDB(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	redisClient, err := NewRedisClient(ctx, redisURL)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{
		DB:    db,
		Redis: redisClient,
	}, nil
}

func (s *Storage) Close() error {
	s.DB.Close()
	return s.Redis.Close()
}
