// Package main запускает сервис аналитики технического обслуживания:
// - прием телеметрии, событий обслуживания и складских операций
// - z-score детекцию аномалий по тегам
// - профиль надежности и индекс риска оборудования
// - прогноз складской потребности и точки перезаказа
// - хранение событий в Redis и экспорт метрик в Prometheus
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"ppms-analytics/internal/config"
	"ppms-analytics/internal/handlers"
	"ppms-analytics/internal/logging"
	"ppms-analytics/internal/metrics"
	"ppms-analytics/internal/store"
)

const redisConnectAttempts = 5

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "ppms-analytics",
		Short:         "Maintenance and inventory analytics service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "path to config file")
	cmd.Flags().String("addr", "", "HTTP listen address")
	_ = v.BindPFlag("server_addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting ppms-analytics",
		zap.String("go_version", runtime.Version()),
		zap.Int("num_cpu", runtime.NumCPU()),
		zap.Int("workers", cfg.WorkerCount))

	loc, err := cfg.TrendLocation()
	if err != nil {
		return fmt.Errorf("trend timezone: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventStore, err := connectStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := eventStore.Close(); err != nil {
			logger.Warn("store close error", zap.Error(err))
		}
	}()

	handler := handlers.NewHandler(eventStore, handlers.Options{
		Anomaly:        cfg.AnomalyOptions(),
		Reliability:    cfg.ReliabilityOptions(),
		Forecast:       cfg.ForecastOptions(),
		TrendWeeks:     cfg.Reliability.TrendWeeks,
		TrendLocation:  loc,
		Workers:        cfg.WorkerCount,
		RequestTimeout: cfg.RequestTimeout,
		SnapshotTTL:    cfg.SnapshotTTL,
	}, logger)

	router := mux.NewRouter()
	handler.Register(router)

	// Prometheus метрики
	router.Handle("/prometheus", promhttp.Handler())

	// pprof для профилирования
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	router.Use(loggingMiddleware(logger))
	router.Use(metricsMiddleware)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go updateMetricsLoop(ctx)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}

// connectStore подключается к Redis с повторами; при неудаче переходит на память,
// если Redis не обязателен
func connectStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.EventStore, error) {
	var err error
	for i := 0; i < redisConnectAttempts; i++ {
		var rs *store.RedisStore
		rs, err = store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
			return rs, nil
		}
		logger.Warn("redis connection attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		if i < redisConnectAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i+1) * time.Second):
			}
		}
	}

	if cfg.RedisRequired {
		return nil, fmt.Errorf("redis unavailable at %s: %w", cfg.RedisAddr, err)
	}
	logger.Warn("running with in-memory event store", zap.Error(err))
	return store.NewMemoryStore(), nil
}

// loggingMiddleware логирует HTTP запросы
func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware учитывает обрабатываемые запросы
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.InFlightRequests.Inc()
		defer metrics.InFlightRequests.Dec()
		next.ServeHTTP(w, r)
	})
}

// updateMetricsLoop периодически обновляет метрики Prometheus
func updateMetricsLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))
		}
	}
}
