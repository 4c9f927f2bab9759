package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"marketbrief/backend-go/internal/metrics"
	"marketbrief/backend-go/internal/models"
)

type Origin string

const (
	OriginCache    Origin = "cache"
	OriginLive     Origin = "live"
	OriginFallback Origin = "fallback"
)

// RefreshPolicy bounds live fetches. FailLimit consecutive failures open a
// source's breaker for Cooldown. FetchTimeout caps one source call; zero
// leaves only the HTTP client timeout.
type RefreshPolicy struct {
	FailLimit    int
	Cooldown     time.Duration
	FetchTimeout time.Duration
}

// Board serves category rows through the cache, refreshing from live sources
// when an entry is missing or older than its TTL and substituting the static
// table when every source fails. Fallback rows are never cached.
type Board struct {
	cache      Cache
	categories []Category
	index      map[string]int
	metrics    *metrics.Metrics
	log        zerolog.Logger
	policy     RefreshPolicy
	now        func() time.Time

	sf       singleflight.Group
	mu       sync.Mutex
	breakers map[string]*circuitBreaker
}

func NewBoard(cache Cache, categories []Category, m *metrics.Metrics, log zerolog.Logger, policy RefreshPolicy) *Board {
	index := make(map[string]int, len(categories))
	for i, c := range categories {
		index[c.Key] = i
	}
	return &Board{
		cache:      cache,
		categories: categories,
		index:      index,
		metrics:    m,
		log:        log,
		policy:     policy,
		now:        time.Now,
		breakers:   make(map[string]*circuitBreaker),
	}
}

// Now is the board's clock.
func (b *Board) Now() time.Time { return b.now() }

func (b *Board) Categories() []Category {
	return b.categories
}

func (b *Board) category(key string) (Category, error) {
	i, ok := b.index[key]
	if !ok {
		return Category{}, fmt.Errorf("%w: %s", ErrUnknownCategory, key)
	}
	return b.categories[i], nil
}

func cacheKey(category string) string {
	return "board:v1:" + category
}

// Get returns the rows of one category and where they came from. The only
// error is ErrUnknownCategory.
func (b *Board) Get(ctx context.Context, key string) ([]models.Row, Origin, error) {
	cat, err := b.category(key)
	if err != nil {
		return nil, "", err
	}

	if rows, ok := b.lookup(ctx, cat); ok {
		b.observeLookup(cat.Key, "hit")
		return rows, OriginCache, nil
	}
	b.observeLookup(cat.Key, "miss")

	rows, source, err := b.refreshShared(ctx, cat)
	if err != nil {
		ev := b.log.Warn()
		if errors.Is(err, ErrNoSources) || ctx.Err() != nil {
			ev = b.log.Debug()
		}
		ev.Err(err).Str("category", cat.Key).Msg("serving fallback table")
		if b.metrics != nil {
			b.metrics.FallbackServed.WithLabelValues(cat.Key).Inc()
		}
		return cloneRows(cat.Fallback), OriginFallback, nil
	}
	b.log.Debug().Str("category", cat.Key).Str("source", source).Msg("refreshed")
	return rows, OriginLive, nil
}

// Refresh fetches a category from its live sources regardless of the cache
// and stores the result. It does not substitute the fallback table.
func (b *Board) Refresh(ctx context.Context, key string) ([]models.Row, string, error) {
	cat, err := b.category(key)
	if err != nil {
		return nil, "", err
	}
	return b.refreshShared(ctx, cat)
}

// Cards resolves every category in order.
func (b *Board) Cards(ctx context.Context) []models.Card {
	cards := make([]models.Card, 0, len(b.categories))
	for _, cat := range b.categories {
		rows, _, _ := b.Get(ctx, cat.Key)
		cards = append(cards, models.Card{
			Key:         cat.Key,
			Title:       cat.Title,
			Rows:        rows,
			ButtonLabel: cat.ButtonLabel,
			ButtonURL:   cat.ButtonURL,
		})
	}
	return cards
}

func (b *Board) lookup(ctx context.Context, cat Category) ([]models.Row, bool) {
	if b.cache == nil {
		return nil, false
	}
	raw, ok := b.cache.Get(ctx, cacheKey(cat.Key))
	if !ok {
		return nil, false
	}
	var entry models.CacheEntry
	if err := UnmarshalCache(raw, &entry); err != nil {
		return nil, false
	}
	if len(entry.Rows) != cat.Expected {
		return nil, false
	}
	age := b.now().Sub(time.UnixMilli(entry.FetchedAt))
	if age >= time.Duration(entry.TTLMillis)*time.Millisecond {
		return nil, false
	}
	return entry.Rows, true
}

type refreshResult struct {
	rows   []models.Row
	source string
}

// refreshShared collapses concurrent refreshes of one category into one. The
// refresh runs on a context detached from its callers; ctx only bounds how
// long this caller waits for it.
func (b *Board) refreshShared(ctx context.Context, cat Category) ([]models.Row, string, error) {
	detached := context.WithoutCancel(ctx)
	ch := b.sf.DoChan(cat.Key, func() (any, error) {
		rows, source, err := b.refresh(detached, cat)
		if err != nil {
			return nil, err
		}
		return refreshResult{rows: rows, source: source}, nil
	})

	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, "", res.Err
		}
		r := res.Val.(refreshResult)
		return cloneRows(r.rows), r.source, nil
	}
}

func (b *Board) refresh(ctx context.Context, cat Category) ([]models.Row, string, error) {
	if len(cat.Sources) == 0 {
		return nil, "", ErrNoSources
	}

	var errs []error
	for _, src := range cat.Sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		cb := b.breaker(cat.Key + "/" + src.Name())
		if !cb.allow() {
			b.observeFetch(src.Name(), "skipped", 0)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), ErrCircuitOpen))
			continue
		}

		start := time.Now()
		rows, err := b.fetch(ctx, src)
		if err == nil {
			err = validateRows(rows, cat.Expected)
		}
		if err != nil {
			// Parent cancellation is not an upstream failure.
			if ctx.Err() == nil {
				cb.fail()
			}
			b.observeFetch(src.Name(), "error", time.Since(start))
			b.log.Debug().Err(err).Str("category", cat.Key).Str("source", src.Name()).Msg("source failed")
			errs = append(errs, err)
			continue
		}

		cb.success()
		b.observeFetch(src.Name(), "ok", time.Since(start))
		b.store(ctx, cat, rows, src.Name())
		return rows, src.Name(), nil
	}
	return nil, "", errors.Join(errs...)
}

func (b *Board) fetch(ctx context.Context, src Source) ([]models.Row, error) {
	if b.policy.FetchTimeout <= 0 {
		return src.Fetch(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, b.policy.FetchTimeout)
	defer cancel()
	return src.Fetch(ctx)
}

func (b *Board) store(ctx context.Context, cat Category, rows []models.Row, source string) {
	if b.cache == nil {
		return
	}
	entry := models.CacheEntry{
		Category:  cat.Key,
		Rows:      rows,
		FetchedAt: b.now().UnixMilli(),
		TTLMillis: cat.TTL.Milliseconds(),
		Source:    source,
	}
	raw, err := MarshalCache(entry)
	if err != nil {
		return
	}
	if err := b.cache.Set(ctx, cacheKey(cat.Key), raw, cat.TTL); err != nil {
		b.log.Warn().Err(err).Str("category", cat.Key).Msg("cache write failed")
	}
}

func (b *Board) breaker(name string) *circuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[name]
	if !ok {
		cb = newCircuitBreaker(b.policy.FailLimit, b.policy.Cooldown, func() time.Time { return b.now() })
		b.breakers[name] = cb
	}
	return cb
}

func (b *Board) observeLookup(category, result string) {
	if b.metrics != nil {
		b.metrics.CacheLookups.WithLabelValues(category, result).Inc()
	}
}

func (b *Board) observeFetch(source, outcome string, d time.Duration) {
	if b.metrics == nil {
		return
	}
	b.metrics.UpstreamFetches.WithLabelValues(source, outcome).Inc()
	if outcome != "skipped" {
		b.metrics.UpstreamDuration.WithLabelValues(source).Observe(d.Seconds())
	}
}
