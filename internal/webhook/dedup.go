package webhook

import (
	"context"
	"time"

	"atende_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "webhook:dedup:"

// RecentEventChecker is the SQL fallback for the dedup window.
type RecentEventChecker interface {
	ExistsRecent(ctx context.Context, provider, eventType, payloadHash string, since time.Time) (bool, error)
}

// WindowGuard rejects payloads without a provider event id whose
// (eventType, payloadHash) was already seen inside the window. Redis is the
// primary store; when it is missing or failing, the event table is queried.
type WindowGuard struct {
	redis    *redis.Client
	fallback RecentEventChecker
	window   time.Duration
	now      func() time.Time
	log      *logger.Logger
}

// NewWindowGuard creates a guard. rdb may be nil.
func NewWindowGuard(rdb *redis.Client, fallback RecentEventChecker, window time.Duration, log *logger.Logger) *WindowGuard {
	if window <= 0 {
		window = 2 * time.Minute
	}
	return &WindowGuard{
		redis:    rdb,
		fallback: fallback,
		window:   window,
		now:      time.Now,
		log:      log,
	}
}

// Claim reports whether this is the first sighting inside the window.
func (g *WindowGuard) Claim(ctx context.Context, provider, eventType, payloadHash string) (bool, error) {
	if g.redis != nil {
		ok, err := g.redis.SetNX(ctx, dedupKey(provider, eventType, payloadHash), g.now().UTC().Format(time.RFC3339Nano), g.window).Result()
		if err == nil {
			return ok, nil
		}
		g.log.Warn("webhook: redis dedup unavailable, using database window", "error", err)
	}

	if g.fallback == nil {
		return true, nil
	}
	seen, err := g.fallback.ExistsRecent(ctx, provider, eventType, payloadHash, g.now().Add(-g.window))
	if err != nil {
		return false, err
	}
	return !seen, nil
}

// Release drops a claim whose record never reached the event table, so a
// redelivery of the same content is processed. The database window needs no
// release since it only sees persisted records.
func (g *WindowGuard) Release(ctx context.Context, provider, eventType, payloadHash string) error {
	if g.redis == nil {
		return nil
	}
	return g.redis.Del(ctx, dedupKey(provider, eventType, payloadHash)).Err()
}

func dedupKey(provider, eventType, payloadHash string) string {
	return dedupKeyPrefix + provider + ":" + eventType + ":" + payloadHash
}
