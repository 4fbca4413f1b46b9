package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Headers carrying the server-side quota.
const (
	HeaderLimit     = "RateLimit-Limit"
	HeaderRemaining = "RateLimit-Remaining"
	HeaderReset     = "RateLimit-Reset"
)

var (
	quotaRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "klaviyo_quota_remaining",
		Help: "Requests remaining in the current server-reported quota window",
	}, []string{"account"})

	quotaLowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "klaviyo_quota_low_total",
		Help: "Total number of responses reporting quota below the healthy threshold",
	})
)

// QuotaTracker records server-reported quota in Redis so that every process
// sharing a credential can observe it. It is advisory and never gates requests.
type QuotaTracker struct {
	redis     *redis.Client
	namespace string
	logger    zerolog.Logger
}

// NewQuotaTracker creates a tracker whose keys are scoped by namespace,
// normally a credential fingerprint.
func NewQuotaTracker(redisClient *redis.Client, namespace string, logger zerolog.Logger) *QuotaTracker {
	return &QuotaTracker{
		redis:     redisClient,
		namespace: namespace,
		logger:    logger,
	}
}

func (t *QuotaTracker) key(suffix string) string {
	return redisKeyPrefix + t.namespace + ":" + suffix
}

// State retrieves the current quota state. A default healthy state is returned
// when nothing has been recorded yet.
func (t *QuotaTracker) State(ctx context.Context) (*QuotaState, error) {
	values, err := t.redis.MGet(ctx,
		t.key(redisSuffixLimit),
		t.key(redisSuffixRemaining),
		t.key(redisSuffixResetAt),
		t.key(redisSuffixLastUpdate),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("get quota state: %w", err)
	}

	if values[1] == nil {
		t.logger.Debug().Msg("No quota state in Redis, returning default healthy state")
		return &QuotaState{
			LastUpdate: time.Now(),
			IsHealthy:  true,
		}, nil
	}

	limit, err := redisInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("parse quota limit: %w", err)
	}
	remaining, err := redisInt(values[1])
	if err != nil {
		return nil, fmt.Errorf("parse quota remaining: %w", err)
	}
	resetAt, err := redisInt(values[2])
	if err != nil {
		return nil, fmt.Errorf("parse quota reset: %w", err)
	}
	lastUpdate, err := redisInt(values[3])
	if err != nil {
		return nil, fmt.Errorf("parse quota last update: %w", err)
	}

	state := &QuotaState{
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    time.Unix(int64(resetAt), 0),
		LastUpdate: time.UnixMilli(int64(lastUpdate)),
	}
	state.UpdateHealth()

	return state, nil
}

// UpdateFromHeaders parses RateLimit-* headers and stores them. Responses
// without quota headers are ignored.
func (t *QuotaTracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remaining, err := parseQuotaHeader(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	var limit int
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		if limit, err = parseQuotaHeader(limitStr); err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	var resetSeconds int
	if resetStr := headers.Get(HeaderReset); resetStr != "" {
		if resetSeconds, err = parseQuotaHeader(resetStr); err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderReset, err)
		}
	}

	now := time.Now()
	state := &QuotaState{
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, t.key(redisSuffixLimit), limit, defaultQuotaStateExpiry)
	pipe.Set(ctx, t.key(redisSuffixRemaining), remaining, defaultQuotaStateExpiry)
	pipe.Set(ctx, t.key(redisSuffixResetAt), state.ResetAt.Unix(), defaultQuotaStateExpiry)
	pipe.Set(ctx, t.key(redisSuffixLastUpdate), now.UnixMilli(), defaultQuotaStateExpiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store quota state in redis: %w", err)
	}

	quotaRemaining.WithLabelValues(t.namespace).Set(float64(remaining))

	if !state.IsHealthy {
		quotaLowTotal.Inc()
		t.logger.Warn().
			Int("limit", limit).
			Int("remaining", remaining).
			Time("reset_at", state.ResetAt).
			Msg("Klaviyo quota running low")
		return nil
	}

	t.logger.Debug().
		Int("limit", limit).
		Int("remaining", remaining).
		Time("reset_at", state.ResetAt).
		Msg("Klaviyo quota state updated")

	return nil
}

// parseQuotaHeader reads the first integer of a header value such as
// "150, 10;w=1, 150;w=60".
func parseQuotaHeader(value string) (int, error) {
	first := value
	if idx := strings.IndexAny(first, ",;"); idx >= 0 {
		first = first[:idx]
	}
	return strconv.Atoi(strings.TrimSpace(first))
}

func redisInt(value any) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.Atoi(v)
	case int64:
		return int(v), nil
	default:
		return 0, errors.New("unexpected redis value type")
	}
}
