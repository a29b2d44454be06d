package usage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTracker(rdb, time.Hour, zerolog.Nop()), mr
}

func TestIncrementAndSnapshot(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tr.Increment(ctx, "user-1", 120, 2, 0); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := tr.Increment(ctx, "user-1", 80, 0, 1); err != nil {
		t.Fatalf("increment: %v", err)
	}

	snap, err := tr.Snapshot(ctx, "user-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Tokens != 200 || snap.PDFs != 2 || snap.Images != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	other, err := tr.Snapshot(ctx, "user-2")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if other.Tokens != 0 || other.PDFs != 0 || other.Images != 0 {
		t.Fatalf("other user snapshot = %+v", other)
	}
}

func TestCountersExpire(t *testing.T) {
	tr, mr := newTestTracker(t)
	ctx := context.Background()

	if err := tr.Increment(ctx, "user-1", 10, 0, 0); err != nil {
		t.Fatalf("increment: %v", err)
	}
	key := counterKey("user-1", dayKey(time.Now()), "tokens")
	ttl := mr.TTL(key)
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	snap, err := tr.Snapshot(ctx, "user-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Tokens != 0 {
		t.Fatalf("tokens after expiry = %d", snap.Tokens)
	}
}

func TestAllowAgainstPlanLimits(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	ok, err := tr.Allow(ctx, "user-1", "free")
	if err != nil || !ok {
		t.Fatalf("fresh user allow = %v, %v", ok, err)
	}

	if err := tr.Increment(ctx, "user-1", PlanFor("free").TokenLimit, 0, 0); err != nil {
		t.Fatalf("increment: %v", err)
	}
	ok, err = tr.Allow(ctx, "user-1", "free")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatal("user at token limit should not be allowed on free")
	}

	ok, err = tr.Allow(ctx, "user-1", "pro")
	if err != nil || !ok {
		t.Fatalf("pro allow = %v, %v", ok, err)
	}
}

func TestPlanForUnknownFallsBackToFree(t *testing.T) {
	if got := PlanFor("enterprise"); got.Name != "free" {
		t.Fatalf("plan = %+v", got)
	}
}
