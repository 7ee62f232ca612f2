package destination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"aeroport/internal/payload"
)

const defaultStream = "aeroport:payloads"

type streamClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Redis appends payloads to a Redis stream with fields "kind" and "payload".
type Redis struct {
	name   string
	opts   *redis.Options
	stream string
	maxLen int64
	dial   func(*redis.Options) streamClient
	client streamClient
}

func newRedisFromSettings(name string, settings map[string]string, _ Deps) (Destination, error) {
	opts, err := redis.ParseURL(setting(settings, "url", "redis://localhost:6379/0"))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	maxLen, err := intSetting(settings, "max_len", 0)
	if err != nil {
		return nil, err
	}
	return &Redis{
		name:   name,
		opts:   opts,
		stream: setting(settings, "stream", defaultStream),
		maxLen: int64(maxLen),
		dial:   func(o *redis.Options) streamClient { return redis.NewClient(o) },
	}, nil
}

func (r *Redis) Name() string { return r.name }

func (r *Redis) Prepare(ctx context.Context) error {
	client := r.dial(r.opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}
	r.client = client
	return nil
}

func (r *Redis) Release(context.Context) error {
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *Redis) ProcessPayload(ctx context.Context, p *payload.Payload) error {
	if r.client == nil {
		return errors.New("redis destination not prepared")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{"kind": p.Kind(), "payload": string(data)},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}
