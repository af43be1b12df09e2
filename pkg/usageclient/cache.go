package usageclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultInterval     = 30 * time.Second
	defaultFetchTimeout = 10 * time.Second
	refreshKey          = "snapshot"
	maxRefreshPasses    = 8
)

// State is the cache lifecycle state.
type State string

const (
	// StateStale means no snapshot yet, or the shown one was invalidated.
	StateStale State = "stale"
	// StateLoading means a fetch is in flight and nothing trustworthy is shown.
	StateLoading State = "loading"
	// StateFresh means the shown snapshot came from the last fetch.
	StateFresh State = "fresh"
	// StateStaleOnError means the last fetch failed; the previous snapshot, if any, is still shown.
	StateStaleOnError State = "stale_on_error"
)

// View is a point-in-time copy of the cache for rendering.
type View struct {
	State       State
	Snapshot    Snapshot
	HasSnapshot bool
	Err         error
	UpdatedAt   time.Time
}

// Degraded reports whether the shown numbers may be out of date because of a failure.
func (v View) Degraded() bool { return v.State == StateStaleOnError }

// Cache keeps the display copy of a usage snapshot.
type Cache struct {
	fetcher      Fetcher
	interval     time.Duration
	fetchTimeout time.Duration
	onUpdate     func(View)
	obs          *observer

	sf  singleflight.Group
	gen atomic.Uint64

	notifyMu  sync.Mutex
	mu        sync.RWMutex
	state     State
	snap      *Snapshot
	lastErr   error
	updatedAt time.Time
}

// NewCache creates a cache in StateStale. Call Run to start periodic refreshes.
func NewCache(f Fetcher, opts ...Option) (*Cache, error) {
	cfg := &cacheConfig{
		interval:     defaultInterval,
		fetchTimeout: defaultFetchTimeout,
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.interval <= 0 {
		cfg.interval = defaultInterval
	}
	if cfg.fetchTimeout <= 0 {
		cfg.fetchTimeout = defaultFetchTimeout
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Cache{
		fetcher:      f,
		interval:     cfg.interval,
		fetchTimeout: cfg.fetchTimeout,
		onUpdate:     cfg.onUpdate,
		obs:          obs,
		state:        StateStale,
	}, nil
}

// Current returns a copy of the cache state.
func (c *Cache) Current() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewLocked()
}

// Run refreshes immediately and then on every interval until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	_, _ = c.Refresh(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.Refresh(ctx)
		}
	}
}

// Invalidate marks the snapshot stale and starts a refresh without blocking.
// A refresh already in flight fetches again once it finishes, so the latest
// recorded use is picked up.
func (c *Cache) Invalidate() {
	c.update(func() bool {
		c.gen.Add(1)
		return c.staleLocked()
	})

	go func() {
		_, _ = c.Refresh(context.Background())
	}()
}

// Refresh fetches and reconciles a snapshot. Concurrent callers share one fetch.
// The returned error is the fetch error, if any; the cache keeps its last snapshot.
func (c *Cache) Refresh(ctx context.Context) (View, error) {
	for attempt := 0; ; attempt++ {
		ch := c.sf.DoChan(refreshKey, func() (any, error) {
			return c.refresh(context.WithoutCancel(ctx))
		})

		select {
		case res := <-ch:
			// Joining a flight as it finishes can miss an Invalidate made just before joining.
			if res.Err == nil && attempt == 0 && res.Val.(uint64) != c.gen.Load() {
				continue
			}
			return c.Current(), res.Err
		case <-ctx.Done():
			return c.Current(), ctx.Err()
		}
	}
}

// refresh fetches until no Invalidate arrived during the last pass and returns
// the generation the shown snapshot covers.
func (c *Cache) refresh(ctx context.Context) (uint64, error) {
	var gen uint64
	for range maxRefreshPasses {
		gen = c.gen.Load()
		c.beginLoading()

		start := time.Now()
		fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		snap, err := c.fetcher.Fetch(fetchCtx)
		cancel()
		if err != nil {
			c.fail(err)
			c.obs.refreshed(start, false, err)
			return 0, err
		}

		accepted := c.apply(snap)
		c.obs.refreshed(start, accepted, nil)

		if c.gen.Load() == gen {
			return gen, nil
		}
	}
	// Still invalidated after the last pass: leave it to the next trigger.
	c.markStale()
	return gen, nil
}

func (c *Cache) markStale() {
	c.update(c.staleLocked)
}

func (c *Cache) staleLocked() bool {
	if c.state != StateFresh {
		return false
	}
	c.state = StateStale
	return true
}

func (c *Cache) beginLoading() {
	c.update(func() bool {
		if c.state != StateStale && c.state != StateStaleOnError {
			return false
		}
		c.state = StateLoading
		return true
	})
}

func (c *Cache) fail(err error) {
	c.update(func() bool {
		c.state = StateStaleOnError
		c.lastErr = err
		return true
	})
}

func (c *Cache) apply(fetched Snapshot) bool {
	var accepted bool
	c.update(func() bool {
		var merged Snapshot
		merged, accepted = Reconcile(c.snap, fetched)
		c.snap = &merged
		c.state = StateFresh
		c.lastErr = nil
		c.updatedAt = time.Now()
		return true
	})
	return accepted
}

// update changes state under mu and delivers the new view when fn reports a change.
// notifyMu keeps callbacks serialized and in the order the changes were made.
func (c *Cache) update(fn func() bool) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	changed := fn()
	v := c.viewLocked()
	c.mu.Unlock()

	if changed {
		c.notify(v)
	}
}

func (c *Cache) viewLocked() View {
	v := View{State: c.state, Err: c.lastErr, UpdatedAt: c.updatedAt}
	if c.snap != nil {
		v.Snapshot = c.snap.clone()
		v.HasSnapshot = true
	}
	return v
}

func (c *Cache) notify(v View) {
	if c.onUpdate != nil {
		c.onUpdate(v)
	}
}
