// Package events provides Redis pub/sub of expanded job requests.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/galaxyproject/galaxy-params/internal/config"
)

// DefaultChannel carries job requests when no channel is configured.
const DefaultChannel = "job_requests"

// JobRequestType is the type of a JobRequestEvent.
const JobRequestType = "job_request"

// JobRequestEvent announces one expanded run of a tool.
type JobRequestEvent struct {
	Type        string            `json:"type"`
	JobID       string            `json:"job_id"`
	BatchID     string            `json:"batch_id"`
	ToolID      string            `json:"tool_id"`
	ToolVersion string            `json:"tool_version,omitempty"`
	User        string            `json:"user,omitempty"`
	Params      map[string]string `json:"params"`
	Timestamp   int64             `json:"time"`
}

// Handler handles incoming job requests.
type Handler interface {
	HandleJobRequest(ctx context.Context, event JobRequestEvent) error
}

// Subscriber subscribes to the job request channel and dispatches events.
type Subscriber struct {
	redis    *redis.Client
	channel  string
	logger   *slog.Logger
	handlers []Handler
	cancel   context.CancelFunc
}

// NewSubscriber creates a new event subscriber.
func NewSubscriber(redisClient *redis.Client, channel string, logger *slog.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		redis:   redisClient,
		channel: channel,
		logger:  logger,
	}
}

// AddHandler adds an event handler.
func (s *Subscriber) AddHandler(handler Handler) {
	s.handlers = append(s.handlers, handler)
}

// Start listens for events until ctx is cancelled or Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	pubsub := s.redis.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	s.logger.Info("subscribed", "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.processMessage(ctx, msg.Payload); err != nil {
				s.logger.Error("failed to process message", "error", err)
			}
		}
	}
}

// Stop stops the subscriber.
func (s *Subscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Subscriber) processMessage(ctx context.Context, payload string) error {
	var event JobRequestEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.Type != JobRequestType {
		s.logger.Debug("ignoring event", "type", event.Type)
		return nil
	}
	for _, handler := range s.handlers {
		if err := handler.HandleJobRequest(ctx, event); err != nil {
			s.logger.Error("handler failed", "job_id", event.JobID, "error", err)
		}
	}
	return nil
}

// Publisher publishes job requests to Redis.
type Publisher struct {
	redis   *redis.Client
	channel string
}

// NewPublisher creates a new event publisher.
func NewPublisher(redisClient *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{redis: redisClient, channel: channel}
}

// PublishJobRequest publishes a job request event.
func (p *Publisher) PublishJobRequest(ctx context.Context, event JobRequestEvent) error {
	data, err := encodeJobRequest(event)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, p.channel, data).Err()
}

func encodeJobRequest(event JobRequestEvent) (string, error) {
	event.Type = JobRequestType
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ConnectRedis creates a Redis client from config.
func ConnectRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
