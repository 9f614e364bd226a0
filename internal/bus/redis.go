package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisTransport is a Transport over Redis Pub/Sub. One PubSub connection
// carries every topic this process subscribes to.
type RedisTransport struct {
	rdb *redis.Client
	log *slog.Logger

	mu   sync.Mutex
	ps   *redis.PubSub
	out  chan Message
	done chan struct{}
	once sync.Once
}

func NewRedisTransport(rdb *redis.Client, logger *slog.Logger) *RedisTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisTransport{
		rdb:  rdb,
		log:  logger,
		out:  make(chan Message, 256),
		done: make(chan struct{}),
	}
}

func (t *RedisTransport) Subscribe(ctx context.Context, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	started := t.ps != nil
	if !started {
		t.ps = t.rdb.Subscribe(ctx)
	}
	if err := t.ps.Subscribe(ctx, topic); err != nil {
		return err
	}
	if !started {
		go t.pump(t.ps.Channel())
	}
	return nil
}

func (t *RedisTransport) Unsubscribe(ctx context.Context, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ps == nil {
		return nil
	}
	return t.ps.Unsubscribe(ctx, topic)
}

func (t *RedisTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	return t.rdb.Publish(ctx, topic, payload).Err()
}

func (t *RedisTransport) Messages() <-chan Message { return t.out }

func (t *RedisTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.ps != nil {
			err = t.ps.Close()
		}
	})
	return err
}

func (t *RedisTransport) pump(in <-chan *redis.Message) {
	defer close(t.out)
	for {
		select {
		case <-t.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case t.out <- Message{Topic: m.Channel, Payload: []byte(m.Payload)}:
			case <-t.done:
				return
			}
		}
	}
}
