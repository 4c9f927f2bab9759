package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const warmConcurrency = 4

// Warmer periodically refreshes every category that has live sources so
// requests find a warm cache.
type Warmer struct {
	board    *Board
	interval time.Duration
	log      zerolog.Logger
}

func NewWarmer(board *Board, interval time.Duration, log zerolog.Logger) *Warmer {
	return &Warmer{board: board, interval: interval, log: log}
}

// Run warms once immediately, then on every tick until ctx is done.
func (w *Warmer) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	w.WarmOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.WarmOnce(ctx)
		}
	}
}

// WarmOnce refreshes all live categories and returns how many succeeded.
func (w *Warmer) WarmOnce(ctx context.Context) int {
	var (
		g  errgroup.Group
		ok = make(chan struct{}, len(w.board.Categories()))
	)
	g.SetLimit(warmConcurrency)

	for _, cat := range w.board.Categories() {
		if len(cat.Sources) == 0 {
			continue
		}
		key := cat.Key
		g.Go(func() error {
			if _, source, err := w.board.Refresh(ctx, key); err != nil {
				w.log.Warn().Err(err).Str("category", key).Msg("warm refresh failed")
			} else {
				w.log.Debug().Str("category", key).Str("source", source).Msg("warmed")
				ok <- struct{}{}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(ok)
	return len(ok)
}
