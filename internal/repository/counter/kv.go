package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/heritage-labs/usagemeter/internal/domain/category"
	"github.com/heritage-labs/usagemeter/internal/domain/period"
)

// kvStore is the consumer interface for counter operations (ISP).
type kvStore interface {
	MGetInt64(ctx context.Context, keys []string) ([]int64, error)
	IncrByWithTTL(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}

// KVRepo keeps one integer key per (user, category, period) in Redis or Valkey.
type KVRepo struct {
	store     kvStore
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewKV creates a counter repository on top of a key-value store.
// retention is how long a counter is kept after its period ends; 0 keeps it forever.
func NewKV(s kvStore, prefix string, retention time.Duration) *KVRepo {
	return &KVRepo{
		store:     s,
		prefix:    prefix,
		retention: retention,
		now:       time.Now,
	}
}

// Key builds the storage key: {prefix}usage:{user}:{category}:{periodStart}.
func (r *KVRepo) Key(userID string, cat category.Category, p period.Period) string {
	return fmt.Sprintf("%susage:%s:%s:%s", r.prefix, userID, cat, p.Key())
}

// Increment atomically adds one to the counter and returns the new value.
func (r *KVRepo) Increment(ctx context.Context, userID string, cat category.Category, p period.Period) (int64, error) {
	key := r.Key(userID, cat, p)
	n, err := r.store.IncrByWithTTL(ctx, key, 1, r.ttl(p))
	if err != nil {
		return 0, fmt.Errorf("counter INCRBY %s: %w", key, err)
	}
	return n, nil
}

// Read returns the counter value, 0 when it does not exist yet.
func (r *KVRepo) Read(ctx context.Context, userID string, cat category.Category, p period.Period) (int64, error) {
	vals, err := r.ReadMany(ctx, userID, []category.Category{cat}, p)
	if err != nil {
		return 0, err
	}
	return vals[cat], nil
}

// ReadMany reads several categories of one period in a single MGET.
func (r *KVRepo) ReadMany(
	ctx context.Context, userID string, cats []category.Category, p period.Period,
) (map[category.Category]int64, error) {
	out := make(map[category.Category]int64, len(cats))
	if len(cats) == 0 {
		return out, nil
	}

	keys := make([]string, len(cats))
	for i, c := range cats {
		keys[i] = r.Key(userID, c, p)
	}

	vals, err := r.store.MGetInt64(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("counter MGET %s: %w", userID, err)
	}
	for i, c := range cats {
		out[c] = vals[i]
	}
	return out, nil
}

// ttl covers the rest of the period plus retention. Zero disables expiry.
func (r *KVRepo) ttl(p period.Period) time.Duration {
	if r.retention <= 0 {
		return 0
	}
	remaining := p.End.Sub(r.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining + r.retention
}
