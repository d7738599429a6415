package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(ctx context.Context, redisURL string) (*RedisClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisClient{client: client}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func userChannel(userID string) string {
	return fmt.Sprintf("user:%s:matching", userID)
}

// PublishUserEvent publishes a match lifecycle event on the user's channel.
// Connected WebSocket clients receive it in real time; everyone else learns
// the same state from check_state polling.
func (r *RedisClient) PublishUserEvent(ctx context.Context, userID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, userChannel(userID), data).Err()
}

type RedisSubscriber struct {
	*redis.PubSub
}

func (rs *RedisSubscriber) ReceiveMessage(ctx context.Context) (*redis.Message, error) {
	return rs.PubSub.ReceiveMessage(ctx)
}

func (r *RedisClient) SubscribeToUserEvents(ctx context.Context, userID string) *RedisSubscriber {
	pubsub := r.client.Subscribe(ctx, userChannel(userID))
	return &RedisSubscriber{PubSub: pubsub}
}
