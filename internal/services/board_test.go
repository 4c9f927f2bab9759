package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketbrief/backend-go/internal/metrics"
	"marketbrief/backend-go/internal/models"
)

type fakeSource struct {
	name  string
	rows  []models.Row
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context) ([]models.Row, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return cloneRows(f.rows), nil
}

func liveRows(n int) []models.Row {
	rows := make([]models.Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, models.Row{Label: fmt.Sprintf("live %d", i), Value: "100", Change: "+1", Percent: "+1.00%"})
	}
	return rows
}

func staticRows() []models.Row {
	rows := make([]models.Row, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, models.Row{Label: fmt.Sprintf("static %d", i), Value: "-", Change: "0", Percent: "0%"})
	}
	return rows
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBoard(t *testing.T, bc RefreshPolicy, cats ...Category) (*Board, *metrics.Metrics, *testClock) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	b := NewBoard(NewMemoryCache(), cats, m, zerolog.Nop(), bc)
	clock := &testClock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	b.now = clock.Now
	return b, m, clock
}

func fxCategory(sources ...Source) Category {
	return Category{
		Key:      "exchange",
		Title:    "주요 환율",
		TTL:      time.Minute,
		Expected: 5,
		Sources:  sources,
		Fallback: staticRows(),
	}
}

func TestBoardCacheHitWithinTTL(t *testing.T) {
	src := &fakeSource{name: "fake", rows: liveRows(5)}
	b, m, clock := newTestBoard(t, RefreshPolicy{}, fxCategory(src))
	ctx := context.Background()

	rows, origin, err := b.Get(ctx, "exchange")
	require.NoError(t, err)
	assert.Equal(t, OriginLive, origin)
	assert.Equal(t, liveRows(5), rows)

	clock.Advance(30 * time.Second)
	rows, origin, err = b.Get(ctx, "exchange")
	require.NoError(t, err)
	assert.Equal(t, OriginCache, origin)
	assert.Equal(t, liveRows(5), rows)

	assert.EqualValues(t, 1, src.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("exchange", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamFetches.WithLabelValues("fake", "ok")))
}

func TestBoardRefreshesOnceAfterTTL(t *testing.T) {
	src := &fakeSource{name: "fake", rows: liveRows(5)}
	b, _, clock := newTestBoard(t, RefreshPolicy{}, fxCategory(src))
	ctx := context.Background()

	_, _, err := b.Get(ctx, "exchange")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, origin, err := b.Get(ctx, "exchange")
	require.NoError(t, err)
	assert.Equal(t, OriginLive, origin)
	assert.EqualValues(t, 2, src.calls.Load())

	_, origin, err = b.Get(ctx, "exchange")
	require.NoError(t, err)
	assert.Equal(t, OriginCache, origin)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestBoardShortParseServesFallbackVerbatim(t *testing.T) {
	src := &fakeSource{name: "fake", rows: liveRows(3)}
	cat := fxCategory(src)
	b, m, _ := newTestBoard(t, RefreshPolicy{}, cat)

	rows, origin, err := b.Get(context.Background(), "exchange")
	require.NoError(t, err)
	assert.Equal(t, OriginFallback, origin)
	assert.Equal(t, cat.Fallback, rows)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackServed.WithLabelValues("exchange")))
}

func TestBoardDoesNotCacheFallback(t *testing.T) {
	src := &fakeSource{name: "fake", err: errors.New("boom")}
	b, _, _ := newTestBoard(t, RefreshPolicy{}, fxCategory(src))
	ctx := context.Background()

	_, origin, _ := b.Get(ctx, "exchange")
	assert.Equal(t, OriginFallback, origin)

	src.err = nil
	src.rows = liveRows(5)
	rows, origin, _ := b.Get(ctx, "exchange")
	assert.Equal(t, OriginLive, origin)
	assert.Equal(t, liveRows(5), rows)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestBoardFallsThroughSourceChain(t *testing.T) {
	first := &fakeSource{name: "first", err: &UpstreamError{Source: "first", Status: 503}}
	second := &fakeSource{name: "second", rows: liveRows(4)}
	third := &fakeSource{name: "third", rows: liveRows(5)}
	b, _, _ := newTestBoard(t, RefreshPolicy{}, fxCategory(first, second, third))

	rows, origin, err := b.Get(context.Background(), "exchange")
	require.NoError(t, err)
	assert.Equal(t, OriginLive, origin)
	assert.Len(t, rows, 5)
	assert.EqualValues(t, 1, first.calls.Load())
	assert.EqualValues(t, 1, second.calls.Load())
	assert.EqualValues(t, 1, third.calls.Load())
}

func TestBoardRefreshJoinsSourceErrors(t *testing.T) {
	first := &fakeSource{name: "first", err: &UpstreamError{Source: "first", Status: 502}}
	second := &fakeSource{name: "second", rows: liveRows(2)}
	b, _, _ := newTestBoard(t, RefreshPolicy{}, fxCategory(first, second))

	_, _, err := b.Refresh(context.Background(), "exchange")
	require.Error(t, err)
	var upErr *UpstreamError
	assert.True(t, errors.As(err, &upErr))
	assert.Equal(t, 502, upErr.Status)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestBoardCircuitBreakerSkipsSource(t *testing.T) {
	src := &fakeSource{name: "fake", err: errors.New("down")}
	b, m, clock := newTestBoard(t, RefreshPolicy{FailLimit: 2, Cooldown: 30 * time.Second}, fxCategory(src))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, origin, _ := b.Get(ctx, "exchange")
		assert.Equal(t, OriginFallback, origin)
	}
	assert.EqualValues(t, 2, src.calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpstreamFetches.WithLabelValues("fake", "skipped")))

	clock.Advance(31 * time.Second)
	src.err = nil
	src.rows = liveRows(5)
	_, origin, _ := b.Get(ctx, "exchange")
	assert.Equal(t, OriginLive, origin)
	assert.EqualValues(t, 3, src.calls.Load())
}

func TestBoardNoSourcesUsesFallback(t *testing.T) {
	cat := Category{Key: "kospi_up", Title: "코스피 상승률 TOP5", TTL: time.Minute, Expected: 5, Fallback: staticRows()}
	b, _, _ := newTestBoard(t, RefreshPolicy{}, cat)

	rows, origin, err := b.Get(context.Background(), "kospi_up")
	require.NoError(t, err)
	assert.Equal(t, OriginFallback, origin)
	assert.Equal(t, staticRows(), rows)

	_, _, err = b.Refresh(context.Background(), "kospi_up")
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestBoardUnknownCategory(t *testing.T) {
	b, _, _ := newTestBoard(t, RefreshPolicy{}, fxCategory())
	_, _, err := b.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestBoardCollapsesConcurrentMisses(t *testing.T) {
	src := &fakeSource{name: "fake", rows: liveRows(5), delay: 50 * time.Millisecond}
	b, _, _ := newTestBoard(t, RefreshPolicy{}, fxCategory(src))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, _, err := b.Get(context.Background(), "exchange")
			assert.NoError(t, err)
			assert.Len(t, rows, 5)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestBoardCardsKeepsOrderAndButtons(t *testing.T) {
	fx := fxCategory(&fakeSource{name: "fake", rows: liveRows(5)})
	fx.ButtonLabel = "매일경제 마켓"
	fx.ButtonURL = "https://stock.mk.co.kr/"
	rank := Category{Key: "mcap_top", Title: "시가총액 TOP5", TTL: time.Minute, Expected: 5, Fallback: staticRows()}
	b, _, _ := newTestBoard(t, RefreshPolicy{}, fx, rank)

	cards := b.Cards(context.Background())
	require.Len(t, cards, 2)
	assert.Equal(t, "exchange", cards[0].Key)
	assert.Equal(t, "매일경제 마켓", cards[0].ButtonLabel)
	assert.Equal(t, "mcap_top", cards[1].Key)
	assert.Equal(t, staticRows(), cards[1].Rows)
	for _, c := range cards {
		assert.NotEmpty(t, BasicCard(c).Description)
	}
}

// slowSource answers after delay unless its context ends first.
type slowSource struct {
	name  string
	rows  []models.Row
	delay time.Duration
	calls atomic.Int32
}

func (s *slowSource) Name() string { return s.name }

func (s *slowSource) Fetch(ctx context.Context) ([]models.Row, error) {
	s.calls.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
		return cloneRows(s.rows), nil
	}
}

func TestBoardCancelledCallersDoNotOpenBreaker(t *testing.T) {
	src := &slowSource{name: "slow", rows: liveRows(5), delay: 20 * time.Millisecond}
	b, m, _ := newTestBoard(t, RefreshPolicy{FailLimit: 3, Cooldown: time.Minute}, fxCategory(src))

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rows, _, err := b.Get(ctx, "exchange")
		require.NoError(t, err)
		assert.Len(t, rows, 5)
	}

	rows, origin, err := b.Get(context.Background(), "exchange")
	require.NoError(t, err)
	assert.NotEqual(t, OriginFallback, origin)
	assert.Equal(t, liveRows(5), rows)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.UpstreamFetches.WithLabelValues("slow", "skipped")))
}

func TestBoardJoinedCallerSurvivesFirstCallerCancel(t *testing.T) {
	src := &slowSource{name: "slow", rows: liveRows(5), delay: 100 * time.Millisecond}
	b, _, _ := newTestBoard(t, RefreshPolicy{FailLimit: 1, Cooldown: time.Minute}, fxCategory(src))

	type result struct {
		rows   []models.Row
		origin Origin
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		rows, origin, _ := b.Get(ctx, "exchange")
		first <- result{rows, origin}
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	go func() {
		rows, origin, _ := b.Get(context.Background(), "exchange")
		second <- result{rows, origin}
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	a := <-first
	assert.Equal(t, OriginFallback, a.origin)

	got := <-second
	assert.Equal(t, OriginLive, got.origin)
	assert.Equal(t, liveRows(5), got.rows)
	assert.EqualValues(t, 1, src.calls.Load())
	assert.True(t, b.breaker("exchange/slow").allow())
}

func TestBoardRefreshParentCancelKeepsBreakerClosed(t *testing.T) {
	src := &slowSource{name: "slow", rows: liveRows(5), delay: time.Second}
	cat := fxCategory(src)
	b, _, _ := newTestBoard(t, RefreshPolicy{FailLimit: 1, Cooldown: time.Minute}, cat)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := b.refresh(ctx, cat)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.True(t, b.breaker("exchange/slow").allow())
}

func TestBoardFetchTimeoutCountsAsFailure(t *testing.T) {
	src := &slowSource{name: "slow", rows: liveRows(5), delay: time.Second}
	b, m, _ := newTestBoard(t, RefreshPolicy{FailLimit: 1, Cooldown: time.Minute, FetchTimeout: 10 * time.Millisecond}, fxCategory(src))
	ctx := context.Background()

	_, origin, err := b.Get(ctx, "exchange")
	require.NoError(t, err)
	assert.Equal(t, OriginFallback, origin)

	_, origin, _ = b.Get(ctx, "exchange")
	assert.Equal(t, OriginFallback, origin)
	assert.EqualValues(t, 1, src.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamFetches.WithLabelValues("slow", "skipped")))
}
