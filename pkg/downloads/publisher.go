package downloads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis keys the API tier reads instead of hitting registry_metadata.
const (
	totalDownloadsKey = "registry:downloads:total"
	lastRunKey        = "registry:downloads:last_run"
)

// Publisher pushes aggregation results into Redis so the read path can
// serve the registry-wide total without a database round trip. Publishing
// is best-effort: the database remains the source of truth.
type Publisher struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPublisher creates a publisher with the given cache TTL.
func NewPublisher(client *redis.Client, ttl time.Duration) *Publisher {
	return &Publisher{client: client, ttl: ttl}
}

// PublishTotal caches the registry-wide download total.
func (p *Publisher) PublishTotal(ctx context.Context, total int64) error {
	if err := p.client.Set(ctx, totalDownloadsKey, total, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to publish total downloads: %w", err)
	}
	return nil
}

// PublishRun caches a summary of the latest completed run.
func (p *Publisher) PublishRun(ctx context.Context, stats RunStats) error {
	payload, err := json.Marshal(map[string]interface{}{
		"pages":       stats.Pages,
		"rows":        stats.Rows,
		"downloads":   stats.Downloads,
		"frozen":      stats.Frozen,
		"duration_ms": stats.Duration.Milliseconds(),
		"finished_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}
	if err := p.client.Set(ctx, lastRunKey, payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to publish run stats: %w", err)
	}
	return nil
}

// Total returns the cached registry-wide total, with ok=false on a cache
// miss.
func (p *Publisher) Total(ctx context.Context) (int64, bool, error) {
	val, err := p.client.Get(ctx, totalDownloadsKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cached total downloads: %w", err)
	}
	total, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cached total downloads is not a number: %w", err)
	}
	return total, true, nil
}
