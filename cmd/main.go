// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/event-booking/internal/audit"
	"github.com/Shivanand-hulikatti/event-booking/internal/clock"
	"github.com/Shivanand-hulikatti/event-booking/internal/config"
	"github.com/Shivanand-hulikatti/event-booking/internal/database"
	"github.com/Shivanand-hulikatti/event-booking/internal/handler"
	"github.com/Shivanand-hulikatti/event-booking/internal/repository"
	"github.com/Shivanand-hulikatti/event-booking/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("config: JWT_SECRET is required")
	}

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	log.Println("[db] connected to PostgreSQL")

	if cfg.MigrateOnStart {
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Println("[db] migrations applied")
	}

	// ── 2. Audit sinks ───────────────────────────────────────────────────
	sinks := audit.Multi{audit.NewLogSink(nil)}
	if cfg.AMQPURL != "" {
		amqpSink, err := audit.NewAMQPSink(cfg.AMQPURL, cfg.AuditQueue)
		if err != nil {
			log.Printf("[audit] warning: rabbitmq unavailable, logging only: %v", err)
		} else {
			defer func() {
				if err := amqpSink.Close(); err != nil {
					log.Printf("[audit] warning: %v", err)
				}
			}()
			sinks = append(sinks, amqpSink)
			log.Printf("[audit] publishing to queue %q", cfg.AuditQueue)
		}
	}

	// ── 3. Rate limiter ──────────────────────────────────────────────────
	var limiter redis.Scripter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("[ratelimit] warning: redis ping failed, limiter fails open: %v", err)
		}
		limiter = rdb
	}

	// ── 4. Wire up layers ────────────────────────────────────────────────
	clk := clock.NewSystem()
	txm := repository.NewTxManager(pool, repository.Timeouts{
		Lock:      cfg.DB.LockTimeout,
		Statement: cfg.DB.StatementTimeout,
	})
	eventRepo := repository.NewEventRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)

	bookingSvc := service.NewBookingService(txm, eventRepo, bookingRepo, sinks, clk,
		service.WithMaxPerUser(cfg.MaxPerUser),
	)
	eventSvc := service.NewEventService(txm, eventRepo, bookingRepo, sinks, clk)

	router := handler.NewRouter(handler.RouterConfig{
		Events:    handler.NewEventHandler(eventSvc, bookingSvc),
		Bookings:  handler.NewBookingHandler(bookingSvc),
		JWTSecret: []byte(cfg.JWTSecret),
		Health:    pool,
		RateLimit: handler.RateLimit(cfg.RateLimit, limiter),
	})

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[http] listening on :%s (max %d tickets per user per event)", cfg.Port, bookingSvc.MaxPerUser())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("[http] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("server error: %v", err)
		os.Exit(1)
	}
	log.Println("[http] server stopped")
}
