package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Atharva0506/farmer-ai-gateway/internal/api"
	"github.com/Atharva0506/farmer-ai-gateway/internal/cache"
	"github.com/Atharva0506/farmer-ai-gateway/internal/config"
	"github.com/Atharva0506/farmer-ai-gateway/internal/crypto"
	"github.com/Atharva0506/farmer-ai-gateway/internal/keypool"
	"github.com/Atharva0506/farmer-ai-gateway/internal/notifications"
	"github.com/Atharva0506/farmer-ai-gateway/internal/orchestrator"
	"github.com/Atharva0506/farmer-ai-gateway/internal/provider/gemini"
	"github.com/Atharva0506/farmer-ai-gateway/internal/ratelimit"
	"github.com/Atharva0506/farmer-ai-gateway/internal/repository"
	"github.com/Atharva0506/farmer-ai-gateway/internal/secrets"
	"github.com/Atharva0506/farmer-ai-gateway/internal/telegram"
	"github.com/Atharva0506/farmer-ai-gateway/internal/telemetry"
	"github.com/Atharva0506/farmer-ai-gateway/internal/tools"
	"github.com/Atharva0506/farmer-ai-gateway/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting farm gateway", "addr", cfg.Addr, "version", "0.3.0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, "farmgateway", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}

	pool, err := buildKeyPool(ctx, cfg)
	if err != nil {
		slog.Error("no usable Gemini credentials", "error", err)
		os.Exit(1)
	}
	slog.Info("credential pool ready", "keys", pool.Size())

	notifier, err := notifications.New(ctx, cfg.AWSRegion, cfg.SNSTopicARN)
	if err != nil {
		slog.Warn("notifier unavailable, alerts disabled", "error", err)
	}
	pool.OnDegraded(func(keyPrefix string) {
		notifier.Alert(context.Background(), notifications.Alert{
			Type:    notifications.AlertKeyPoolDegraded,
			Message: "all credentials in cooldown, forced reuse",
			Details: map[string]string{"key_prefix": keyPrefix},
		})
	})

	store, db := buildCache(ctx, cfg)

	var (
		history  orchestrator.HistorySink
		sink     tools.ReportSink
		records  api.HistoryStore
		checkers []api.HealthChecker
	)
	if db != nil {
		var enc *crypto.Encryptor
		if cfg.EncryptionKey != "" {
			enc = crypto.NewEncryptor(cfg.EncryptionKey)
		}
		repo := repository.NewStore(db, enc)
		if err := repo.EnsureSchema(ctx); err != nil {
			slog.Error("schema bootstrap failed", "error", err)
			os.Exit(1)
		}
		history = repo
		sink = repo
		records = repo
		checkers = append(checkers, api.NewPostgresChecker(db))
	}

	provider := gemini.New(cfg.GeminiBaseURL, cfg.GeminiModel, pool)
	provider.OnUnavailable(func() {
		notifier.Alert(context.Background(), notifications.Alert{
			Type:    notifications.AlertProviderDown,
			Message: "generation failed with every credential throttled",
		})
	})

	forecaster := weather.New(cfg.WeatherBaseURL)
	forecaster.OnOutage(func() {
		notifier.Alert(context.Background(), notifications.Alert{
			Type:    notifications.AlertWeatherAPIDown,
			Message: "weather circuit opened after repeated failures",
		})
	})
	service := tools.NewService(provider, store, forecaster, sink)
	orch := orchestrator.New(provider, history)
	orch.SetMaxToolRounds(cfg.MaxToolRounds)

	var webhook http.HandlerFunc
	if cfg.TelegramBotToken != "" {
		bot := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramAPIBase)
		webhook = telegram.New(bot, provider, service).Webhook
		slog.Info("telegram gateway enabled")
	}

	handler := api.NewHandler(api.HandlerConfig{
		Orchestrator:    orch,
		Tools:           service,
		Pool:            pool,
		Limiter:         ratelimit.New(),
		ChatLimit:       ratelimit.Limit{MaxRequests: cfg.ChatRateLimit, Window: cfg.ChatRateWindow},
		ReportLimit:     ratelimit.Limit{MaxRequests: cfg.ReportRateLimit, Window: cfg.ReportRateWindow},
		History:         records,
		Weather:         forecaster,
		TelegramWebhook: webhook,
		Checkers:        checkers,
	})

	go sweepCache(ctx, store, cfg.CacheSweepInterval)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown failed", "error", err)
	}
	if db != nil {
		db.Close()
	}

	slog.Info("server stopped")
}

// buildKeyPool resolves credentials from Secrets Manager when configured,
// falling back to environment variables.
func buildKeyPool(ctx context.Context, cfg *config.Config) (*keypool.Pool, error) {
	if cfg.GeminiKeysSecret != "" {
		manager, err := secrets.New(ctx, cfg.AWSRegion)
		if err != nil {
			slog.Warn("secrets manager unavailable, using env keys", "error", err)
		} else if keys, err := manager.GeminiKeys(ctx, cfg.GeminiKeysSecret); err != nil {
			slog.Warn("secret fetch failed, using env keys", "error", err)
		} else if pool, err := keypool.New(keys); err == nil {
			slog.Info("credentials loaded from secrets manager")
			return pool, nil
		}
	}

	return keypool.FromEnv(cfg.GeminiAPIKey, config.FallbackKeyVars())
}

// buildCache picks the most durable configured backend: Postgres, then
// Redis, then in-memory. The returned db is nil unless Postgres connected.
func buildCache(ctx context.Context, cfg *config.Config) (cache.Store, *sql.DB) {
	if cfg.DatabaseURL != "" {
		db, err := repository.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Warn("postgres unavailable", "error", err)
		} else {
			store := cache.NewPostgres(db)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Error("cache schema bootstrap failed", "error", err)
				os.Exit(1)
			}
			slog.Info("using postgres cache")
			return store, db
		}
	}

	if cfg.RedisURL != "" {
		store, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable", "error", err)
		} else {
			slog.Info("using redis cache")
			return store, nil
		}
	}

	slog.Info("using in-memory cache")
	return cache.NewInMemory(), nil
}

// sweepCache periodically removes expired rows from durable backends.
func sweepCache(ctx context.Context, store cache.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := store.CleanExpired(ctx)
			if err != nil {
				slog.Warn("cache sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("cache sweep", "removed", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
