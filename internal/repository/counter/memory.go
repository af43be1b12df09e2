package counter

import (
	"context"
	"sync"

	"github.com/heritage-labs/usagemeter/internal/domain/category"
	"github.com/heritage-labs/usagemeter/internal/domain/period"
)

type memKey struct {
	user   string
	cat    category.Category
	period string
}

// MemoryRepo is an in-process counter store for local runs and tests.
// Counters are lost on restart and are not shared between processes.
type MemoryRepo struct {
	mu     sync.Mutex
	counts map[memKey]int64
}

// NewMemory creates an empty in-process counter store.
func NewMemory() *MemoryRepo {
	return &MemoryRepo{counts: make(map[memKey]int64)}
}

// Increment adds one and returns the new value.
func (r *MemoryRepo) Increment(ctx context.Context, userID string, cat category.Category, p period.Period) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := memKey{user: userID, cat: cat, period: p.Key()}
	r.counts[k]++
	return r.counts[k], nil
}

// Read returns the counter value, 0 when absent.
func (r *MemoryRepo) Read(ctx context.Context, userID string, cat category.Category, p period.Period) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[memKey{user: userID, cat: cat, period: p.Key()}], nil
}

// ReadMany reads several categories of one period.
func (r *MemoryRepo) ReadMany(
	ctx context.Context, userID string, cats []category.Category, p period.Period,
) (map[category.Category]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[category.Category]int64, len(cats))
	for _, c := range cats {
		out[c] = r.counts[memKey{user: userID, cat: c, period: p.Key()}]
	}
	return out, nil
}

// Ping always succeeds unless ctx is done.
func (r *MemoryRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}
