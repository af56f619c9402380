package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"atende_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeRecentChecker struct {
	seen  bool
	err   error
	calls int
	since time.Time
}

func (f *fakeRecentChecker) ExistsRecent(_ context.Context, _, _, _ string, since time.Time) (bool, error) {
	f.calls++
	f.since = since
	return f.seen, f.err
}

func TestWindowGuardRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fallback := &fakeRecentChecker{}
	guard := NewWindowGuard(rdb, fallback, 2*time.Minute, logger.Nop())
	ctx := context.Background()

	first, err := guard.Claim(ctx, "evolution", "messages.upsert", "hash-1")
	if err != nil || !first {
		t.Fatalf("expected first claim to succeed, got %v %v", first, err)
	}
	second, err := guard.Claim(ctx, "evolution", "messages.upsert", "hash-1")
	if err != nil || second {
		t.Fatalf("expected repeat inside window to be rejected, got %v %v", second, err)
	}
	other, _ := guard.Claim(ctx, "evolution", "messages.update", "hash-1")
	if !other {
		t.Fatal("expected a different event type to be independent")
	}

	mr.FastForward(2*time.Minute + time.Second)

	again, err := guard.Claim(ctx, "evolution", "messages.upsert", "hash-1")
	if err != nil || !again {
		t.Fatalf("expected claim after window to succeed, got %v %v", again, err)
	}
	if fallback.calls != 0 {
		t.Fatalf("expected database fallback unused, got %d calls", fallback.calls)
	}
}

func TestWindowGuardReleaseReopensWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	guard := NewWindowGuard(rdb, nil, 2*time.Minute, logger.Nop())
	ctx := context.Background()

	if first, _ := guard.Claim(ctx, "evolution", "messages.upsert", "hash-1"); !first {
		t.Fatal("expected first claim to succeed")
	}
	if err := guard.Release(ctx, "evolution", "messages.upsert", "hash-1"); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
	if mr.Exists(dedupKey("evolution", "messages.upsert", "hash-1")) {
		t.Fatal("expected window key deleted")
	}
	if again, _ := guard.Claim(ctx, "evolution", "messages.upsert", "hash-1"); !again {
		t.Fatal("expected claim after release to succeed")
	}

	if err := NewWindowGuard(nil, nil, 0, logger.Nop()).Release(ctx, "p", "t", "h"); err != nil {
		t.Fatalf("expected release without redis to be a no-op, got %v", err)
	}
}

func TestWindowGuardFallsBackToDatabase(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fallback := &fakeRecentChecker{seen: true}
	guard := NewWindowGuard(rdb, fallback, 2*time.Minute, logger.Nop())
	guard.now = func() time.Time { return now }

	first, err := guard.Claim(context.Background(), "evolution", "messages.upsert", "hash-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first {
		t.Fatal("expected database hit to reject the claim")
	}
	if fallback.calls != 1 || !fallback.since.Equal(now.Add(-2*time.Minute)) {
		t.Fatalf("unexpected fallback query calls=%d since=%v", fallback.calls, fallback.since)
	}
}

func TestWindowGuardWithoutRedis(t *testing.T) {
	fallback := &fakeRecentChecker{err: errors.New("db down")}
	guard := NewWindowGuard(nil, fallback, 0, logger.Nop())

	if guard.window != 2*time.Minute {
		t.Fatalf("expected default window, got %v", guard.window)
	}
	if _, err := guard.Claim(context.Background(), "p", "t", "h"); err == nil {
		t.Fatal("expected fallback error to surface")
	}
}
