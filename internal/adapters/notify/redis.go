package notify

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

const ChangeChannel = "access:changes"

// RedisNotifier fans change events out to every accessgate node over Redis pub/sub.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(addr string, password string, db int) *RedisNotifier {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisNotifier{client: rdb}
}

func (r *RedisNotifier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Publish announces that subjectID changed.
func (r *RedisNotifier) Publish(ctx context.Context, subjectID string) error {
	return r.client.Publish(ctx, ChangeChannel, subjectID).Err()
}

// Subscribe returns a channel of changed subject ids. The subscription is
// confirmed before returning so no event published afterwards is missed.
func (r *RedisNotifier) Subscribe(ctx context.Context) (<-chan string, func(), error) {
	pubsub := r.client.Subscribe(ctx, ChangeChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan string, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
