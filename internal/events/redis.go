package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"

	"ditatrack/internal/progress"
)

// DefaultChannel is the Pub/Sub channel the worker publishes to.
const DefaultChannel = "conversion.events"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Logger   *slog.Logger
}

// Redis is a Channel and Publisher backed by Redis Pub/Sub. All jobs share
// one channel; subscriptions filter by session id.
type Redis struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger

	mu     sync.Mutex
	subs   []*redis.PubSub
	closed bool
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, channel: cfg.Channel, logger: cfg.Logger}, nil
}

// Open returns a Redis channel, or Absent when Addr is empty or the server
// cannot be reached.
func Open(ctx context.Context, cfg RedisConfig) Channel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		logger.Debug("push channel not configured; polling only")
		return Absent{}
	}
	r, err := NewRedis(ctx, cfg)
	if err != nil {
		logger.Warn("push channel unreachable; polling only", "addr", cfg.Addr, "error", err)
		return Absent{}
	}
	return r
}

func (r *Redis) Subscribe(ctx context.Context, jobID string) (<-chan progress.Update, error) {
	if jobID == "" {
		return nil, errors.New("events: empty job id")
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrUnavailable
	}
	sub := r.client.Subscribe(ctx, r.channel)
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	if _, err := sub.Receive(ctx); err != nil {
		r.removeSub(sub)
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	out := make(chan progress.Update, 16)
	go func() {
		defer close(out)
		defer r.removeSub(sub)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				u, err := Normalize([]byte(msg.Payload))
				if err != nil {
					r.logger.Debug("dropping push message", "channel", msg.Channel, "error", err)
					continue
				}
				if u.JobID != jobID {
					r.logger.Debug("dropping push message for other job", "job_id", u.JobID)
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// removeSub forgets a subscription whose reader has finished.
func (r *Redis) removeSub(sub *redis.PubSub) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = slices.DeleteFunc(r.subs, func(s *redis.PubSub) bool { return s == sub })
}

func (r *Redis) activeSubs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Close ends every subscription and the connection pool. Safe to call more
// than once.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return r.client.Close()
}
