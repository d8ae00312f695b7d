package main

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamplex/internal/dashboard"
	"streamplex/internal/engine"
	"streamplex/internal/offline"
	"streamplex/internal/platform/config"
	"streamplex/internal/platform/logger"
	"streamplex/internal/platform/metrics"
	"streamplex/internal/streaming"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	shutdownTimeout = 10 * time.Second
	installTimeout  = 15 * time.Second
)

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	upstreamOrigin := config.GetEnv("UPSTREAM_ORIGIN", "")

	defaults := streaming.DefaultSessionConfig()
	sessionCfg := streaming.SessionConfig{
		ChunkSize:       config.GetEnvFloat("CHUNK_SIZE", defaults.ChunkSize),
		BufferLength:    config.GetEnvFloat("BUFFER_LENGTH", defaults.BufferLength),
		MaxBufferLength: config.GetEnvFloat("MAX_BUFFER_LENGTH", defaults.MaxBufferLength),
		EnableAdaptive:  config.GetEnvBool("ENABLE_ADAPTIVE", defaults.EnableAdaptive),
		QualityLevels:   config.GetEnvList("QUALITY_LEVELS", defaults.QualityLevels),
	}
	statsInterval := config.GetEnvDuration("STATS_INTERVAL", streaming.DefaultStatsInterval)

	log := logger.New(logLevel, logFormat)
	met := metrics.New()

	cache := offline.New(nil, nil, offline.Options{
		AppCache:   config.GetEnv("CACHE_VERSION", offline.DefaultAppCache),
		VideoCache: config.GetEnv("VIDEO_CACHE_VERSION", offline.DefaultVideoCache),
		Logger:     log,
		Observer:   met,
	})

	var upstream *url.URL
	if upstreamOrigin != "" {
		u, err := url.Parse(upstreamOrigin)
		if err != nil {
			log.Error("invalid UPSTREAM_ORIGIN", "value", upstreamOrigin, "error", err)
			os.Exit(1)
		}
		upstream = u

		ctx, cancel := context.WithTimeout(context.Background(), installTimeout)
		precache := config.GetEnvList("PRECACHE_URLS", offline.DefaultPrecache)
		if err := cache.Install(ctx, upstreamOrigin, precache); err != nil {
			log.Warn("offline precache skipped", "error", err)
		}
		cancel()
	}
	cache.Activate()

	factory := engine.NewFactory(&http.Client{Transport: cache}, log)
	svc := dashboard.NewService(dashboard.NewRegistry(), factory, log, dashboard.Options{
		Config:        sessionCfg,
		StatsInterval: statsInterval,
		Recorder:      met,
	})
	h := dashboard.NewHandler(svc, log, upstream, cache)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActivePlayers(svc.ActivePlayerCount()) }).ServeHTTP(w, r)
	})
	h.Register(r)

	// Cancelled at shutdown so event streams end.
	baseCtx, stopStreams := context.WithCancel(context.Background())
	defer stopStreams()

	addr := ":" + port
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"log_level", logLevel,
		"upstream_origin", upstreamOrigin,
		"chunk_size", sessionCfg.ChunkSize,
		"enable_adaptive", sessionCfg.EnableAdaptive,
		"stats_interval", statsInterval.String(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")
	stopStreams()
	svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
