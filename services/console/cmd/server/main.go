package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"librarydesk/internal/util"
	"librarydesk/pkg/storage"
	"librarydesk/services/console/internal/app"
	"librarydesk/services/console/internal/config"
	"librarydesk/services/console/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	apiTimeout, err := cfg.UpstreamTimeout()
	if err != nil {
		log.Fatalf("failed to parse api timeout: %v", err)
	}
	sessionTTL, err := cfg.SessionLifetime()
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("failed to load report timezone: %v", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	logger := util.InitLogger("console", cfg.LogLevel)

	appCore, err := app.New(app.Config{
		APIBaseURL:    cfg.APIBaseURL,
		APITimeout:    apiTimeout,
		SessionStore:  cfg.SessionStore,
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    sessionTTL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		Minio: storage.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicBaseURL,
		},
		MaxCoverBytes: cfg.MaxCoverBytes,
		Location:      loc,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		CookieName:                 cfg.CookieName,
		CookieSecure:               cfg.CookieSecure,
		SessionTTL:                 sessionTTL,
		TrustedProxies:             trusted,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		MaxCoverBytes:              cfg.MaxCoverBytes,
		FlashSecret:                []byte(cfg.FlashSecret),
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr, "api", cfg.APIBaseURL, "session_store", cfg.SessionStore)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
