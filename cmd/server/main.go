package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/curve-engine/internal/bondingcurve"
	"github.com/atmx/curve-engine/internal/config"
	"github.com/atmx/curve-engine/internal/events"
	"github.com/atmx/curve-engine/internal/limits"
	"github.com/atmx/curve-engine/internal/logger"
	"github.com/atmx/curve-engine/internal/metrics"
	"github.com/atmx/curve-engine/internal/store"
	"github.com/atmx/curve-engine/internal/trade"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to load .env")
	}
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.LogFormat)
	log := logger.GetForComponent("server")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Redis (cache and event bus) ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis unreachable")
		}
	}

	// --- Initialize store ---
	var st store.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer pool.Close()

		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("schema migration failed")
		}
		st = pg
		log.Info().Msg("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			log.Info().Dur("ttl", cfg.CacheTTL).Msg("Redis cache enabled")
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Events ---
	// With Redis, events go through pub/sub and every instance's hub is fed
	// from its subscription, so clients see trades executed anywhere.
	eventsLog := logger.GetForComponent("events")
	hub := events.NewHub(logger.GetForComponent("ws"))
	var redisPub *events.RedisPublisher
	var publisher events.Publisher = events.NewFanout(eventsLog, hub)
	if rdb != nil {
		redisPub = events.NewRedisPublisher(rdb)
		publisher = events.NewFanout(eventsLog, redisPub)
	}

	// --- Trade service ---
	curve, err := bondingcurve.NewCurve(cfg.Curve)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid curve parameters")
	}
	tradeSvc := trade.NewService(st, curve, limits.NewHoldingLimiter(cfg.MaxWalletBps), publisher,
		trade.WithLogger(logger.GetForComponent("trade")),
		trade.WithRetry(trade.RetryPolicy{
			MaxAttempts: cfg.TradeMaxAttempts,
			Initial:     cfg.TradeRetryInitial,
			Max:         cfg.TradeRetryMaxBackoff,
		}),
	)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"curve-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for live trades; no request timeout.
		r.Get("/ws", hub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			tradeSvc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	if redisPub != nil {
		g.Go(func() error {
			return redisPub.Subscribe(gctx, events.Relay(gctx, hub, eventsLog), events.RelayChannels()...)
		})
	}
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("curve-engine listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down curve-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("curve-engine stopped")
}
