// Package tracebus fans execution traces out over Redis Streams so external
// miners and dashboards can observe an agent's reasoning as it happens.
package tracebus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/execution"
	"github.com/nidhogg/engram/internal/memory"
)

// Bus publishes and consumes trace events via Redis Streams. Each agent gets
// its own stream keyed by agent id.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(redisURL string, logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, logger: logger}, nil
}

// TraceEvent is one executed graph walk with its outcome, as published on
// the stream.
type TraceEvent struct {
	AgentID   string             `json:"agent_id"`
	Trace     *execution.Trace   `json:"trace"`
	Outcome   memory.OutcomeType `json:"outcome"`
	Published time.Time          `json:"published"`
}

const streamPrefix = "engram:traces:"

// Publish appends a trace event to the agent's stream.
func (b *Bus) Publish(ctx context.Context, event *TraceEvent) error {
	if event.Published.IsZero() {
		event.Published = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	stream := streamPrefix + event.AgentID
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("trace published",
		zap.String("agent_id", event.AgentID),
		zap.String("trace_id", event.Trace.ID.String()),
		zap.String("outcome", string(event.Outcome)))
	return nil
}

// Subscribe listens for trace events on an agent's stream. Returns a channel
// that emits events; cancel the context to stop.
func (b *Bus) Subscribe(ctx context.Context, agentID string) <-chan *TraceEvent {
	ch := make(chan *TraceEvent, 16)
	stream := streamPrefix + agentID

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var event TraceEvent
					if json.Unmarshal([]byte(data), &event) == nil {
						ch <- &event
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
