package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Deliver(ctx context.Context, e Event) error {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "event", "type", e.Type, "key", e.Key, "data", e.Data)
	return nil
}

// EventLog is the persistence a StoreSink appends to.
type EventLog interface {
	AppendEventLog(ctx context.Context, typ, key string, data []byte, at time.Time) error
}

// StoreSink appends events to the database event log.
type StoreSink struct {
	Log EventLog
}

func (s *StoreSink) Deliver(ctx context.Context, e Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	return s.Log.AppendEventLog(ctx, e.Type, e.Key, data, e.At)
}

// Channel is the redis pub/sub channel events are published on.
const Channel = "evalhub:events"

// Publisher is the subset of a redis client used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink publishes events as JSON on a redis channel.
type RedisSink struct {
	Client  Publisher
	Channel string
}

// NewRedisSink connects to the redis server at url, e.g.
// redis://localhost:6379/0.
func NewRedisSink(url string) (*RedisSink, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return &RedisSink{Client: client, Channel: Channel}, client, nil
}

func (s *RedisSink) Deliver(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ch := s.Channel
	if ch == "" {
		ch = Channel
	}
	return s.Client.Publish(ctx, ch, payload).Err()
}
