package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/monitoring"
	"github.com/michelcools-creator/gem-radar-bot/internal/pipeline"
	"github.com/michelcools-creator/gem-radar-bot/internal/store"
)

var servePort int

const maxTriggerBody = 1 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger server, scheduler and health checker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		g, gctx := errgroup.WithContext(ctx)

		s := newServer(gctx, env.Pipeline, env.Store, env.Registry, cfg.Server)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", resolvePort(servePort, cfg.Server.Port)),
			Handler:           s.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error { return startServer(gctx, srv) })

		if interval := time.Duration(cfg.Scheduler.IntervalMins) * time.Minute; interval > 0 {
			g.Go(func() error { return s.schedule(gctx, interval) })
		}

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Store, env.Metrics, env.CircuitOpen),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})

		return g.Wait()
	},
}

// runner is the pipeline surface the server drives.
type runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*model.RunResult, error)
}

// coinReader is the store surface behind the dashboard routes.
type coinReader interface {
	GetCoin(ctx context.Context, id string) (*model.Coin, error)
	ListCoins(ctx context.Context, filter store.CoinFilter) ([]model.Coin, error)
	LatestScore(ctx context.Context, coinID string) (*model.Score, error)
	LatestDeepAnalysis(ctx context.Context, coinID string) (*model.DeepAnalysis, error)
}

// server owns the HTTP routes and serializes pipeline runs. Runs derive
// from base, not from the request, so a dropped client does not abort one.
type server struct {
	base       context.Context
	runner     runner
	coins      coinReader
	gatherer   prometheus.Gatherer
	origins    []string
	runTimeout time.Duration
	sem        *semaphore.Weighted
}

func newServer(base context.Context, r runner, coins coinReader, g prometheus.Gatherer, sc config.ServerConfig) *server {
	timeout := time.Duration(sc.RunTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	origins := sc.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &server{
		base:       base,
		runner:     r,
		coins:      coins,
		gatherer:   g,
		origins:    origins,
		runTimeout: timeout,
		sem:        semaphore.NewWeighted(1),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/trigger", s.handleTrigger)
	r.Get("/coins", s.handleListCoins)
	r.Get("/coins/{id}", s.handleGetCoin)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTriggerBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var opts pipeline.Options
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &opts); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := s.runOnce(r.Context(), opts)
	if err != nil {
		zap.L().Error("trigger: run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "run": result})
}

// runOnce waits for the run slot, bounded by wait, and executes one run.
func (s *server) runOnce(wait context.Context, opts pipeline.Options) (*model.RunResult, error) {
	if s.runner == nil {
		return nil, eris.New("pipeline not configured")
	}
	if err := s.sem.Acquire(wait, 1); err != nil {
		return nil, eris.Wrap(err, "wait for run slot")
	}
	defer s.sem.Release(1)

	ctx, cancel := context.WithTimeout(s.base, s.runTimeout)
	defer cancel()
	return s.runner.Run(ctx, opts)
}

// schedule starts a standard run every interval until ctx ends. A run that
// is still going when the tick fires makes the tick wait for the slot.
func (s *server) schedule(ctx context.Context, interval time.Duration) error {
	log := zap.L().With(zap.String("component", "scheduler"))
	log.Info("scheduler started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			result, err := s.runOnce(ctx, pipeline.Options{})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error("scheduled run failed", zap.Error(err))
				continue
			}
			log.Info("scheduled run complete",
				zap.String("run_id", result.RunID),
				zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
			)
		}
	}
}

func (s *server) handleListCoins(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CoinFilter{Order: store.OrderCreatedDesc}

	if v := q.Get("status"); v != "" {
		status := model.CoinStatus(v)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(v))
			return
		}
		filter.Status = status
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid "+key)
			return
		}
		*dst = n
	}

	coins, err := s.coins.ListCoins(r.Context(), filter)
	if err != nil {
		zap.L().Error("coins: list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list coins failed")
		return
	}
	if coins == nil {
		coins = []model.Coin{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"coins": coins})
}

// coinDetail is the dashboard view of one coin.
type coinDetail struct {
	Coin     *model.Coin         `json:"coin"`
	Score    *model.Score        `json:"score"`
	Analysis *model.DeepAnalysis `json:"analysis"`
}

func (s *server) handleGetCoin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	coin, err := s.coins.GetCoin(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "coin not found")
		return
	}
	if err != nil {
		zap.L().Error("coins: get failed", zap.String("coin_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get coin failed")
		return
	}

	out := coinDetail{Coin: coin}
	if out.Score, err = s.coins.LatestScore(ctx, id); err != nil {
		zap.L().Warn("coins: latest score", zap.String("coin_id", id), zap.Error(err))
	}
	if out.Analysis, err = s.coins.LatestDeepAnalysis(ctx, id); err != nil {
		zap.L().Warn("coins: latest analysis", zap.String("coin_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, out)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	if cfgPort != 0 {
		return cfgPort
	}
	return 8080
}

// startServer serves until ctx ends, then shuts down gracefully.
func startServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "server listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
