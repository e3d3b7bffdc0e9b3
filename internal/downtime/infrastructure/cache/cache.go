package cache

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"plant-downtime/internal/downtime/domain"
	"plant-downtime/internal/observability/metrics"
)

const (
	defaultMaxAge          = 15 * time.Minute
	defaultRefreshInterval = 5 * time.Minute
)

// Source loads the downtime worksheet.
type Source interface {
	LoadDowntimes(ctx context.Context) (headers []string, rows [][]string, err error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// ActiveDowntime is a downtime currently in progress on one line.
type ActiveDowntime struct {
	Reason     string
	StartedAt  time.Time
	ReportedBy string
}

type state struct {
	headers     []string
	rows        [][]string
	err         string
	refreshedAt time.Time
}

// Cache holds the latest worksheet snapshot and the live downtime map.
// Snapshots are swapped whole, so a reader keeps a consistent view.
type Cache struct {
	source    Source
	maxAge    time.Duration
	clock     Clock
	logger    *log.Logger
	current   atomic.Pointer[state]
	refreshMu sync.Mutex

	mu     sync.RWMutex
	active map[domain.LineKey]ActiveDowntime
}

// Option configures the cache.
type Option func(*Cache)

// WithMaxAge sets the age after which the snapshot is reported stale.
func WithMaxAge(maxAge time.Duration) Option {
	return func(c *Cache) {
		if maxAge > 0 {
			c.maxAge = maxAge
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New constructs a cache over source.
func New(source Source, opts ...Option) (*Cache, error) {
	if source == nil {
		return nil, errors.New("downtime cache: nil source")
	}
	c := &Cache{
		source: source,
		maxAge: defaultMaxAge,
		clock:  systemClock{},
		active: make(map[domain.LineKey]ActiveDowntime),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Refresh reloads the worksheet. On failure the previous rows are kept and
// the error is exposed through the snapshot.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := c.clock.Now()
	headers, rows, err := c.source.LoadDowntimes(ctx)
	if err != nil {
		next := &state{err: err.Error()}
		if prev := c.current.Load(); prev != nil {
			next.headers = prev.headers
			next.rows = prev.rows
			next.refreshedAt = prev.refreshedAt
		}
		c.current.Store(next)
		metrics.ObserveCacheRefresh(metrics.ResultError, 0, c.clock.Now().Sub(start))
		if c.logger != nil {
			c.logger.Printf("downtime cache: refresh failed: %v", err)
		}
		return err
	}
	if rows == nil {
		rows = [][]string{}
	}
	c.current.Store(&state{
		headers:     headers,
		rows:        rows,
		refreshedAt: c.clock.Now(),
	})
	metrics.ObserveCacheRefresh(metrics.ResultSuccess, len(rows), c.clock.Now().Sub(start))
	return nil
}

// Start refreshes on every interval tick until ctx is done.
func (c *Cache) Start(ctx context.Context, interval time.Duration) {
	if c == nil {
		return
	}
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}

// Snapshot returns the current point-in-time view.
func (c *Cache) Snapshot() domain.Snapshot {
	st := c.current.Load()
	if st == nil {
		return domain.Snapshot{Stale: true}
	}
	return domain.Snapshot{
		Headers:     st.headers,
		Rows:        st.rows,
		Error:       st.err,
		Stale:       c.staleAt(st, c.clock.Now()),
		RefreshedAt: st.refreshedAt,
	}
}

// IsStale reports whether the last successful refresh is older than max age.
func (c *Cache) IsStale() bool {
	return c.staleAt(c.current.Load(), c.clock.Now())
}

func (c *Cache) staleAt(st *state, now time.Time) bool {
	if st == nil || st.refreshedAt.IsZero() {
		return true
	}
	return now.Sub(st.refreshedAt) > c.maxAge
}

// BeginDowntime marks a line as down. It reports false when the line is
// already down.
func (c *Cache) BeginDowntime(key domain.LineKey, downtime ActiveDowntime) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[key]; ok {
		return false
	}
	if downtime.StartedAt.IsZero() {
		downtime.StartedAt = c.clock.Now()
	}
	c.active[key] = downtime
	metrics.SetActiveDowntimes(len(c.active))
	return true
}

// EndDowntime clears a line and returns the downtime that was in progress.
func (c *Cache) EndDowntime(key domain.LineKey) (ActiveDowntime, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	downtime, ok := c.active[key]
	if ok {
		delete(c.active, key)
		metrics.SetActiveDowntimes(len(c.active))
	}
	return downtime, ok
}

// ActiveDowntime returns the downtime in progress on a line.
func (c *Cache) ActiveDowntime(key domain.LineKey) (ActiveDowntime, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	downtime, ok := c.active[key]
	return downtime, ok
}

// ActiveDowntimes returns a copy of the line -> reason map.
func (c *Cache) ActiveDowntimes() map[domain.LineKey]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[domain.LineKey]string, len(c.active))
	for key, downtime := range c.active {
		out[key] = downtime.Reason
	}
	return out
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
