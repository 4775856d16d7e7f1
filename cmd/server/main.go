package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tagpos/backend/internal/cache"
	"tagpos/backend/internal/config"
	"tagpos/backend/internal/domain"
	"tagpos/backend/internal/httpapi"
	"tagpos/backend/internal/logging"
	"tagpos/backend/internal/metrics"
	"tagpos/backend/internal/payment"
	"tagpos/backend/internal/receipt"
	"tagpos/backend/internal/service"
	"tagpos/backend/internal/settings"
	"tagpos/backend/internal/store"
	"tagpos/backend/internal/store/memory"
	pgstore "tagpos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if cfg.RunMigrations {
			if err := pgstore.Migrate(pg.DB(), logger); err != nil {
				logger.Fatal("migrations failed", zap.Error(err))
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(logger)
		logger.Info("repository: in-memory")
	}

	cacheStore := cache.InventoryCache(cache.NoopInventoryCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisInventoryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop cache", zap.Error(err))
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("cache: noop")
	}

	settingsStore, err := settings.Open(cfg.SettingsPath, settingsDefaults(cfg), logger.Named("settings"))
	if err != nil {
		logger.Fatal("settings unavailable", zap.String("path", cfg.SettingsPath), zap.Error(err))
	}

	m := metrics.New()
	svc := service.New(repo, buildGateway(cfg, settingsStore), settingsStore,
		service.WithLogger(logger.Named("service")),
		service.WithRecorder(m),
		service.WithInventoryCache(cacheStore, time.Duration(cfg.InventoryCacheTTLSeconds)*time.Second),
		service.WithCurrency(cfg.Currency),
		service.WithGatewayKeyID(cfg.GatewayKeyID),
	)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, m, logger.Named("http"))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS backend listening", zap.String("addr", cfg.Address()), zap.String("gateway", cfg.PaymentGateway))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.Config) *zap.Logger {
	if cfg.LogFormat == "" {
		return logging.NewForEnvironment(cfg.Env, cfg.LogLevel)
	}
	lc := logging.DefaultConfig()
	if strings.EqualFold(cfg.Env, "production") {
		lc = logging.ProductionConfig()
	}
	lc.Format = cfg.LogFormat
	if cfg.LogLevel != "" {
		lc.Level = cfg.LogLevel
	}
	return logging.New(lc)
}

// buildGateway picks the gateway. The HTTP gateway reads the key pair saved in
// the admin settings on every order and falls back to the env pair.
func buildGateway(cfg config.Config, settingsStore *settings.Store) payment.Gateway {
	if cfg.PaymentGateway == config.GatewayHTTP {
		client := &http.Client{Timeout: 15 * time.Second}
		return payment.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, client).
			WithCredentials(func() payment.Credentials {
				keys := settingsStore.Get().Payment
				return payment.Credentials{KeyID: keys.KeyID, KeySecret: keys.KeySecret}
			})
	}
	return payment.NewFakeGateway()
}

// settingsDefaults seeds a settings file that does not exist yet.
func settingsDefaults(cfg config.Config) domain.Settings {
	return domain.Settings{
		Store: domain.StoreDetails{Currency: cfg.Currency},
		Payment: domain.PaymentKeys{
			KeyID:     cfg.GatewayKeyID,
			KeySecret: cfg.GatewayKeySecret,
		},
		Messaging: domain.MessagingSettings{EnabledChannels: []string{receipt.ChannelWhatsAppLink}},
	}
}
