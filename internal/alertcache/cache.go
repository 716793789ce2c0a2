// Package alertcache memoizes per-scope alert computation keyed by the
// content of the input notes, not wall-clock time alone: any change to the
// underlying note data forces recomputation even if no time has elapsed.
package alertcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/caresync/caresync/internal/metrics"
	"github.com/caresync/caresync/internal/model"
)

// ScopeAll is the cohort-wide cache key sentinel.
const ScopeAll = "__all__"

// Status reports whether a lookup was served from cache.
type Status string

const (
	StatusHit  Status = "HIT"
	StatusMiss Status = "MISS"
)

// ComputeFunc produces the alert payload on a cache miss.
type ComputeFunc func(ctx context.Context) ([]model.Alert, error)

type entry struct {
	alerts      []model.Alert
	fingerprint string
	computedAt  time.Time
}

// Cache is process-wide shared state with no persistence across restarts.
// Concurrent lookups for the same key share a single recomputation;
// different keys proceed in parallel.
type Cache struct {
	entries *gocache.Cache
	group   singleflight.Group
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates an empty cache. Entries are garbage-collected well past any
// reasonable max age; freshness is decided per lookup against the
// caller-supplied max age and the note fingerprint.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: gocache.New(24*time.Hour, 10*time.Minute),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fingerprint hashes the content of the notes. Notes are hashed in
// note-id order so the fingerprint is stable under reordering of the
// same underlying data.
func Fingerprint(notes []model.Note) string {
	ids := make([]int, len(notes))
	for i := range ids {
		ids[i] = i
	}
	sort.Slice(ids, func(a, b int) bool {
		return notes[ids[a]].NoteID < notes[ids[b]].NoteID
	})

	h := sha256.New()
	for _, i := range ids {
		n := notes[i]
		for _, field := range []string{n.NoteID, n.PatientID, n.AuthorRole, n.Timestamp, n.NoteText} {
			h.Write([]byte(field))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetOrCompute returns the cached payload when an entry exists for key,
// its fingerprint matches the current notes, and its age is below maxAge.
// Otherwise it invokes compute, stores the result, and returns it.
// Concurrent callers for the same key do not trigger duplicate
// recomputation: they share one in-flight compute.
func (c *Cache) GetOrCompute(ctx context.Context, key string, notes []model.Note, maxAge time.Duration, compute ComputeFunc) ([]model.Alert, Status, error) {
	fp := Fingerprint(notes)

	if alerts, ok := c.lookup(key, fp, maxAge); ok {
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return alerts, StatusHit, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A concurrent flight may have stored a fresh entry already.
		if alerts, ok := c.lookup(key, fp, maxAge); ok {
			return alerts, nil
		}
		alerts, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, fp, alerts)
		return alerts, nil
	})
	if err != nil {
		return nil, StatusMiss, err
	}

	metrics.CacheRequests.WithLabelValues("miss").Inc()
	return v.([]model.Alert), StatusMiss, nil
}

// GetOrRefresh behaves like GetOrCompute but never blocks a hit on
// recomputation: when a hit is older than half of maxAge it is served
// immediately and a background refresh keeps the entry warm. The
// background recomputation is invisible to the caller that received the
// hit; its failure is logged and leaves the existing entry untouched.
func (c *Cache) GetOrRefresh(ctx context.Context, key string, notes []model.Note, maxAge time.Duration, compute ComputeFunc) ([]model.Alert, Status, error) {
	fp := Fingerprint(notes)

	if alerts, ok := c.lookup(key, fp, maxAge); ok {
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		if _, fresh := c.lookup(key, fp, maxAge/2); !fresh {
			c.Refresh(key, notes, compute)
		}
		return alerts, StatusHit, nil
	}

	return c.GetOrCompute(ctx, key, notes, maxAge, compute)
}

// Refresh recomputes the entry for key in the background, fire and
// forget. Only a successful recomputation replaces the existing entry.
// Concurrent refreshes for the same key collapse into one.
func (c *Cache) Refresh(key string, notes []model.Note, compute ComputeFunc) {
	fp := Fingerprint(notes)

	go func() {
		_, err, _ := c.group.Do(key, func() (interface{}, error) {
			alerts, err := compute(context.Background())
			if err != nil {
				return nil, err
			}
			c.store(key, fp, alerts)
			return alerts, nil
		})
		if err != nil {
			c.logger.Warn("background refresh failed",
				slog.String("key", key), slog.String("error", err.Error()))
		}
	}()
}

func (c *Cache) lookup(key, fingerprint string, maxAge time.Duration) ([]model.Alert, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(entry)
	if e.fingerprint != fingerprint {
		return nil, false
	}
	if c.now().Sub(e.computedAt) >= maxAge {
		return nil, false
	}
	return e.alerts, true
}

func (c *Cache) store(key, fingerprint string, alerts []model.Alert) {
	c.entries.Set(key, entry{
		alerts:      alerts,
		fingerprint: fingerprint,
		computedAt:  c.now(),
	}, gocache.DefaultExpiration)
}
