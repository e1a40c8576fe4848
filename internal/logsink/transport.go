package logsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// HTTPTransport posts each event as JSON to a collector endpoint.
type HTTPTransport struct {
	url     string
	token   string
	timeout time.Duration
}

func NewHTTPTransport(url, token string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{url: url, token: token, timeout: timeout}
}

func (t *HTTPTransport) Deliver(ctx context.Context, ev Event) error {
	timeout := t.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	agent := fiber.Post(t.url).JSON(ev).Timeout(timeout)
	if t.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+t.token)
	}

	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("failed to post event: %w", errs[0])
	}
	if code >= fiber.StatusMultipleChoices {
		return fmt.Errorf("collector responded with status %d", code)
	}
	return nil
}

func (t *HTTPTransport) Close() error { return nil }

// RedisTransport appends each event as JSON to a Redis list.
type RedisTransport struct {
	client *redis.Client
	key    string
}

func NewRedisTransport(url, key string) (*RedisTransport, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if key == "" {
		key = "flashgate:events"
	}
	return &RedisTransport{client: redis.NewClient(opts), key: key}, nil
}

func (t *RedisTransport) Deliver(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return t.client.RPush(ctx, t.key, data).Err()
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}
