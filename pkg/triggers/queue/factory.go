package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Config describes the Redis list the consumer reads trigger requests from.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
	// DeadLetter receives messages that could not be decoded or were rejected
	// by the engine. Empty disables dead-lettering.
	DeadLetter  string
	PollTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}

	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}

	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Queue == "" {
		return errors.New("queue name is required")
	}

	if c.DeadLetter != "" && c.DeadLetter == c.Queue {
		return errors.New("dead letter queue must differ from the queue")
	}

	return nil
}

// Connect builds a consumer with its own Redis client and checks the connection.
func Connect(ctx context.Context, cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	cfg = cfg.withDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", cfg.Addr, "db", cfg.DB)

	consumer, err := NewConsumer(client, cfg, handler, logger)
	if err != nil {
		_ = client.Close()

		return nil, err
	}

	consumer.ownsClient = true

	return consumer, nil
}
