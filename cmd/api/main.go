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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/geocoder89/garagehub/internal/cache"
	"github.com/geocoder89/garagehub/internal/config"
	"github.com/geocoder89/garagehub/internal/db"
	httpx "github.com/geocoder89/garagehub/internal/http"
	"github.com/geocoder89/garagehub/internal/observability"
	"github.com/geocoder89/garagehub/internal/payments"
	"github.com/geocoder89/garagehub/internal/uploads"
)

const listingCacheTTL = 30 * time.Second

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	// tracing is optional; without an endpoint spans stay local no-ops
	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(context.Background(), "garagehub", cfg.OTLPEndpoint)

		if err != nil {
			log.Error("tracer init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := config.WithTimeout(5 * time.Second)
				defer cancel()
				_ = shutdownTracer(ctx)
			}()
		}
	}

	// document store
	client, database, err := db.Connect(cfg.MongoURI, cfg.MongoDB)

	if err != nil {
		log.Error("mongo connect failed", "err", err)
		os.Exit(1)
	}

	defer func() {
		ctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}()

	// bootstrap admin account from env
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		ctx, cancel := config.WithTimeout(5 * time.Second)

		err = db.EnsureAdminUser(ctx, database, cfg)
		cancel()

		if err != nil {
			log.Error("admin seed failed", "err", err)
			os.Exit(1)
		}
	}

	// public-read cache: redis when configured, in-process otherwise
	var cacheStore cache.Store

	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, listingCacheTTL)

		ctx, cancel := config.WithTimeout(2 * time.Second)

		err = redisCache.Ping(ctx)
		cancel()

		if err != nil {
			log.Error("redis ping failed", "err", err)
			os.Exit(1)
		}

		defer redisCache.Close()

		cacheStore = redisCache
	} else {
		cacheStore = cache.NewMemory(listingCacheTTL)
	}

	// payment provider: real API only when a secret is configured
	var provider payments.Provider = payments.NewFakeProvider()

	if cfg.PaymentSecretKey != "" {
		provider = payments.NewHTTPProvider(cfg.PaymentAPIBase, cfg.PaymentSecretKey)
	} else {
		log.Warn("no payment secret configured, using fake provider")
	}

	uploader, err := uploads.NewDiskUploader(cfg.UploadDir, cfg.UploadBaseURL)

	if err != nil {
		log.Error("upload dir init failed", "err", err)
		os.Exit(1)
	}

	// set up router with the wired collaborators
	router := httpx.NewRouter(httpx.Deps{
		Cfg:      cfg,
		Log:      log,
		Mongo:    database,
		Client:   client,
		Cache:    cacheStore,
		Provider: provider,
		Uploader: uploader,
		Registry: prometheus.NewRegistry(),
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// start server using a concurrent go-routine driven anonymous function.

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)

		defer cancel()

		err := srv.Shutdown(ctx)

		if err != nil {
			log.Error("graceful shutdown failed", "err", err)

			return
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
