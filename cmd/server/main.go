package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/metrics"
	"github.com/energydesk/trade-engine/internal/model"
	"github.com/energydesk/trade-engine/internal/store"
	"github.com/energydesk/trade-engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		mem := store.NewMemoryStore()
		seedDevTraders(mem)
		st = mem
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Trade service ---
	tradeSvc := trade.NewService(st, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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
		w.Write([]byte(`{"status":"ok","service":"trade-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time trade and leaderboard events.
		r.Get("/ws", wsHub.HandleWS)

		r.Get("/status", tradeSvc.GetStatus)
		r.Post("/margin/preview", tradeSvc.PreviewMargin)

		// Leaderboard and public feed.
		r.Get("/leaderboard", tradeSvc.GetLeaderboard)
		r.Get("/feed", tradeSvc.GetFeed)
		r.Post("/snapshots", tradeSvc.RecordSnapshotsHandler)

		// Per-trader ledger operations.
		r.Route("/traders/{trader}", func(r chi.Router) {
			r.Get("/trades", tradeSvc.ListTrades)
			r.Post("/trades", tradeSvc.SubmitTrade)
			r.Post("/trades/{tradeID}/close", tradeSvc.CloseTrade)
			r.Delete("/trades/{tradeID}", tradeSvc.DeleteTrade)

			r.Get("/otc-status", tradeSvc.GetOTCStatus)
			r.Post("/otc-status", tradeSvc.SetOTCStatus)
			r.Get("/counterparties", tradeSvc.ListCounterparties)
			r.Post("/otc", tradeSvc.SubmitOTC)
			r.Post("/otc/{tradeID}/close", tradeSvc.CloseOTC)

			r.Get("/snapshots", tradeSvc.GetSnapshots)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("trade-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down trade-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("trade-engine stopped")
}

// seedDevTraders populates the in-memory store so local runs have accounts
// to trade with.
func seedDevTraders(mem *store.MemoryStore) {
	capital := decimal.NewFromInt(1_000_000)
	for _, t := range []*model.Trader{
		{Handle: "alice", DisplayName: "Alice", Status: model.TraderActive, StartingCapital: capital, TeamID: "alpha", OTCAvailable: true},
		{Handle: "bob", DisplayName: "Bob", Status: model.TraderActive, StartingCapital: capital, TeamID: "bravo", OTCAvailable: true},
		{Handle: "carol", DisplayName: "Carol", Status: model.TraderActive, StartingCapital: capital, TeamID: "alpha"},
	} {
		mem.PutTrader(t)
	}
	slog.Info("seeded dev traders", "count", 3)
}
