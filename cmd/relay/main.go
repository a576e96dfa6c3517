package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumacast/relay/internal/audit"
	"github.com/lumacast/relay/internal/config"
	"github.com/lumacast/relay/internal/httpapi"
	"github.com/lumacast/relay/internal/metrics"
	"github.com/lumacast/relay/internal/noncestore"
	"github.com/lumacast/relay/internal/relay"
	"github.com/lumacast/relay/internal/sidstore"
	"github.com/lumacast/relay/internal/signing"
	"github.com/lumacast/relay/internal/wsconn"
)

func main() {
	cfg := config.Load(getEnvOrDefault("RELAY_CONFIG_PATH", "config.yaml"))

	var nonces noncestore.Store
	var sids sidstore.Store
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			slog.Warn("redis connection failed, falling back to in-memory stores", "addr", cfg.Redis.Addr, "error", err)
			nonces = noncestore.NewMemoryStore(cfg.NonceTTL())
			sids = sidstore.NewMemoryStore()
		} else {
			slog.Info("redis connected, using shared nonce/sid stores", "addr", cfg.Redis.Addr)
			nonces = noncestore.NewRedisStore(client, "relay:nonce:", cfg.NonceTTL())
			sids = sidstore.NewRedisStore(client, "relay:sid:")
		}
	} else {
		slog.Info("redis disabled, using in-memory nonce/sid stores")
		nonces = noncestore.NewMemoryStore(cfg.NonceTTL())
		sids = sidstore.NewMemoryStore()
	}

	verifier := signing.NewVerifier(cfg.Relay.HMACSecret, cfg.Relay.MaxClockSkewSec, nonces, func() int64 {
		return time.Now().Unix()
	})

	m := metrics.New()
	var relayMetrics relay.Metrics = m

	auditLogger, err := audit.New(cfg.PG.DSN)
	if err != nil {
		slog.Warn("audit logging disabled, failed to initialize", "error", err)
		auditLogger = nil
	}
	defer auditLogger.Close()

	registry := relay.NewRegistry(verifier, sids, relayMetrics, slog.Default())
	upgrader := wsconn.NewUpgrader(cfg.Server.CORSAllowOrigins, slog.Default())

	router := httpapi.NewRouter(httpapi.Deps{
		Registry: registry,
		Verifier: verifier,
		Metrics:  m,
		Audit:    auditLogger,
	}, cfg.Server.CORSAllowOrigins, upgrader, cfg.Metrics.Enabled, slog.Default())

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal, shutting down gracefully")

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("relay starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed to start: %v", err)
	}
	slog.Info("server stopped")
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
