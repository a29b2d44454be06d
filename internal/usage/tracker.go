// Package usage records per-user daily consumption counters in Redis and
// exposes plan limits for the subscription endpoint.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"studyhub/internal/metrics"
)

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCRBY", KEYS[1], ARGV[1])
if c == tonumber(ARGV[1]) then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return c
`)

type Plan struct {
	Name       string `json:"name"`
	TokenLimit int64  `json:"token_limit"`
	PDFLimit   int64  `json:"pdf_limit"`
	ImageLimit int64  `json:"image_limit"`
}

var plans = map[string]Plan{
	"free":  {Name: "free", TokenLimit: 50_000, PDFLimit: 5, ImageLimit: 10},
	"basic": {Name: "basic", TokenLimit: 500_000, PDFLimit: 50, ImageLimit: 100},
	"pro":   {Name: "pro", TokenLimit: 5_000_000, PDFLimit: 500, ImageLimit: 1000},
}

// PlanFor resolves a plan by name, falling back to free.
func PlanFor(name string) Plan {
	if p, ok := plans[name]; ok {
		return p
	}
	return plans["free"]
}

type Snapshot struct {
	Day    string `json:"day"`
	Tokens int64  `json:"tokens"`
	PDFs   int64  `json:"pdfs"`
	Images int64  `json:"images"`
}

type Tracker struct {
	redis *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

func NewTracker(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Tracker {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Tracker{redis: rdb, ttl: ttl, log: log}
}

func dayKey(now time.Time) string {
	return now.UTC().Format("20060102")
}

func counterKey(userID, day, kind string) string {
	return fmt.Sprintf("usage:%s:%s:%s", userID, day, kind)
}

// Increment bumps today's counters for a user. Callers treat this as
// best-effort and never fail a chat turn on it.
func (t *Tracker) Increment(ctx context.Context, userID string, tokens, pdfs, images int64) error {
	day := dayKey(time.Now())
	ttl := int64(t.ttl.Seconds())

	for kind, n := range map[string]int64{"tokens": tokens, "pdfs": pdfs, "images": images} {
		if n <= 0 {
			continue
		}
		key := counterKey(userID, day, kind)
		if _, err := incrWithTTLScript.Run(ctx, t.redis, []string{key}, n, ttl).Int64(); err != nil {
			return fmt.Errorf("usage incr %s: %w", kind, err)
		}
	}
	if tokens > 0 {
		metrics.Global().TokensUsed.Add(float64(tokens))
	}
	return nil
}

// Snapshot returns today's counters for a user. Missing keys read as zero.
func (t *Tracker) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	day := dayKey(time.Now())
	out := Snapshot{Day: day}

	for kind, dst := range map[string]*int64{"tokens": &out.Tokens, "pdfs": &out.PDFs, "images": &out.Images} {
		v, err := t.redis.Get(ctx, counterKey(userID, day, kind)).Int64()
		if err != nil && err != redis.Nil {
			return Snapshot{}, fmt.Errorf("usage get %s: %w", kind, err)
		}
		*dst = v
	}
	return out, nil
}

// Allow reports whether the user is under every limit of the given plan.
// The chat path does not enforce this today; it exists for the subscription
// surface and future gating.
func (t *Tracker) Allow(ctx context.Context, userID, planName string) (bool, error) {
	snap, err := t.Snapshot(ctx, userID)
	if err != nil {
		return false, err
	}
	plan := PlanFor(planName)
	return snap.Tokens < plan.TokenLimit && snap.PDFs < plan.PDFLimit && snap.Images < plan.ImageLimit, nil
}
