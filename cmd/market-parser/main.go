package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/surpriset/market-parser/internal/api"
	"github.com/surpriset/market-parser/internal/browser"
	"github.com/surpriset/market-parser/internal/config"
	"github.com/surpriset/market-parser/internal/events"
	"github.com/surpriset/market-parser/internal/observability"
	"github.com/surpriset/market-parser/internal/parser"
	"github.com/surpriset/market-parser/internal/ratelimit"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observability.Register()

	// Browser setup
	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		SettleDelay:    cfg.Parser.SettleDelay,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
		ProxyServer:    cfg.Browser.ProxyServer,
		UserAgent:      browser.DefaultOptions().UserAgent,
		ExtraHeaders:   browser.DefaultOptions().ExtraHeaders,
	})
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	// Outcome publishing is optional; without Redis the publisher drops
	// everything.
	var publisher *events.Publisher
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		publisher = events.NewPublisher(redisClient, cfg.Redis.Stream, logger)
		defer publisher.Close()
	}

	var limiter ratelimit.Limiter
	if cfg.Parser.NavDelayMin > 0 {
		limiter = ratelimit.NewPerSite(cfg.Parser.NavDelayMin, cfg.Parser.NavDelayMax)
	}

	engine := parser.NewEngine(b, publisher, logger, &parser.Options{
		SettleDelay: cfg.Parser.SettleDelay,
		Limiter:     limiter,
	})

	handlers := api.NewHandlers(engine, logger, api.Options{
		ConcurrentLimit: cfg.Parser.ConcurrentLimit,
		RequestTimeout:  cfg.Parser.RequestTimeout,
		SlowParseWarn:   cfg.Parser.SlowParseWarn,
	})

	// Setup Chi router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", handlers.Index)
	r.Get("/api/health", handlers.Health)
	r.Get("/api/parse", handlers.ParseProduct)
	r.Handle("/metrics", observability.Handler())

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
