package ytapi

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RateLimiter smooths outbound request bursts below the provider's
// short-term limits. With a Redis URL it uses a fixed one-minute window
// shared across processes; without one it falls back to an in-process
// token bucket.
type RateLimiter struct {
	client  *redis.Client
	local   *rate.Limiter
	limit   int
	window  time.Duration
	baseKey string
}

// NewRateLimiter creates a limiter allowing perMinute requests. An empty
// redisURL selects the local token bucket.
func NewRateLimiter(redisURL string, perMinute int, baseKey string) (*RateLimiter, error) {
	if perMinute <= 0 {
		perMinute = 60
	}

	if redisURL == "" {
		return &RateLimiter{
			local:  rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute/6+1),
			limit:  perMinute,
			window: time.Minute,
		}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RateLimiter{
		client:  client,
		limit:   perMinute,
		window:  time.Minute,
		baseKey: baseKey,
	}, nil
}

// SetLimit updates the per-minute limit dynamically.
func (r *RateLimiter) SetLimit(perMinute int) {
	r.limit = perMinute
	if r.local != nil {
		r.local.SetLimit(rate.Limit(float64(perMinute) / 60.0))
	}
}

// Wait blocks until a request is allowed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.client == nil {
		return r.local.Wait(ctx)
	}

	now := time.Now()
	minuteKey := fmt.Sprintf("%s:%d", r.baseKey, now.Unix()/60)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		count, err := r.client.Incr(ctx, minuteKey).Result()
		if err != nil {
			log.Error().Err(err).Msg("RateLimiter: Redis error")
			// Sleep and retry rather than hammering a broken Redis.
			timer := time.NewTimer(1 * time.Second)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		// Set expiry on first increment
		if count == 1 {
			r.client.Expire(ctx, minuteKey, 2*time.Minute)
		}

		if count <= int64(r.limit) {
			return nil
		}

		log.Warn().Int64("count", count).Int("limit", r.limit).Msg("Rate limit window full, waiting...")

		nextMinute := now.Truncate(time.Minute).Add(time.Minute).Add(100 * time.Millisecond)
		waitDuration := time.Until(nextMinute)
		if waitDuration < 0 {
			waitDuration = 1 * time.Second
		}

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			now = time.Now()
			minuteKey = fmt.Sprintf("%s:%d", r.baseKey, now.Unix()/60)
		}
	}
}

// Close closes the Redis client when one is in use.
func (r *RateLimiter) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
