package util

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestDeduper(t *testing.T) (*Deduper, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return NewDeduper(rdb, time.Hour, zap.NewNop()), s
}

func TestAcquireOnce(t *testing.T) {
	d, _ := setupTestDeduper(t)
	ctx := context.Background()

	if !d.AcquireOnce(ctx, "payment.released", "42") {
		t.Fatal("first acquire must succeed")
	}
	if d.AcquireOnce(ctx, "payment.released", "42") {
		t.Fatal("duplicate acquire must fail")
	}
	if !d.AcquireOnce(ctx, "milestone.completed", "42") {
		t.Fatal("different handler must be independent")
	}
	if !d.AcquireOnce(ctx, "payment.released", "43") {
		t.Fatal("different key must be independent")
	}
}

func TestAcquireOnceTTLExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	d := NewDeduper(rdb, time.Minute, zap.NewNop())
	ctx := context.Background()

	if !d.AcquireOnce(ctx, "h", "1") {
		t.Fatal("first acquire must succeed")
	}
	s.FastForward(2 * time.Minute)
	if !d.AcquireOnce(ctx, "h", "1") {
		t.Fatal("acquire after TTL expiry must succeed")
	}
}

func TestAcquireOnceFailsOpen(t *testing.T) {
	d, s := setupTestDeduper(t)
	s.Close()

	if !d.AcquireOnce(context.Background(), "h", "1") {
		t.Fatal("deduper must fail open when redis is down")
	}
}
