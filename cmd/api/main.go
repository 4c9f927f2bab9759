package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"marketbrief/backend-go/internal/config"
	"marketbrief/backend-go/internal/handlers"
	internalhttp "marketbrief/backend-go/internal/http"
	"marketbrief/backend-go/internal/metrics"
	"marketbrief/backend-go/internal/services"
)

func main() {
	_ = godotenv.Load(
		".env",
		".env.local",
		"backend-go/.env",
		"backend-go/.env.local",
	)

	root := &cobra.Command{
		Use:           "marketbrief",
		Short:         "Market brief skill backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the skill webhook server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context())
			},
		},
		newRefreshFallbackCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg     config.Config
	log     zerolog.Logger
	cache   services.Cache
	board   *services.Board
	metrics *metrics.Metrics
}

// bootstrap builds the pieces shared by both commands.
func bootstrap(reg prometheus.Registerer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	tables, err := services.LoadFallbackTables()
	if err != nil {
		return nil, err
	}
	cache := services.NewCache(cfg, log)
	cats, err := services.BuildCategories(cfg, cache, tables)
	if err != nil {
		return nil, err
	}
	m := metrics.New(reg)
	board := services.NewBoard(cache, cats, m, log, services.RefreshPolicy{
		FailLimit:    cfg.CircuitFailLimit,
		Cooldown:     cfg.CircuitCooldown(),
		FetchTimeout: cfg.RequestTimeout(),
	})
	return &app{cfg: cfg, log: log, cache: cache, board: board, metrics: m}, nil
}

func serve(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := bootstrap(reg)
	if err != nil {
		return err
	}
	cfg, log := a.cfg, a.log
	api := handlers.New(cfg, a.board, a.cache, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           internalhttp.NewRouter(cfg, api, a.metrics, reg, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if interval := cfg.WarmInterval(); interval > 0 {
		go services.NewWarmer(a.board, interval, log).Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("cache", a.cache.Backend()).Msg("marketbrief listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	log.Info().Msg("shutting down")
	err = srv.Shutdown(shutdownCtx)
	if c, ok := a.cache.(io.Closer); ok {
		_ = c.Close()
	}
	return err
}
