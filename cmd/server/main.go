package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"memoireai/internal/app"
	"memoireai/internal/config"
	"memoireai/internal/ratelimit"
	"memoireai/internal/server"
	"memoireai/internal/usertoken"
	"memoireai/internal/util"
	"memoireai/pkg/ai"
	"memoireai/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		fatal(logger, "failed to parse session ttl", err)
	}
	tokens, err := usertoken.NewManager(cfg.JWTSecret, sessionTTL)
	if err != nil {
		fatal(logger, "failed to init token manager", err)
	}

	var generatorOptions []ai.Option
	if cfg.GroqBaseURL != "" {
		generatorOptions = append(generatorOptions, ai.WithBaseURL(cfg.GroqBaseURL))
	}
	generator, err := ai.NewOpenAICompatGenerator(cfg.GroqAPIKey, cfg.GenerationModel, generatorOptions...)
	if err != nil {
		fatal(logger, "failed to init text generator", err)
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			fatal(logger, "failed to init object storage", err)
		}
		objects = minioStore
	} else {
		logger.Warn("object storage not configured, original files will not be kept")
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:       cfg.DatabaseURL,
		Generator:         generator,
		Objects:           objects,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		AllowedExtensions: cfg.AllowedExtensions,
	})
	if err != nil {
		fatal(logger, "failed to init app", err)
	}

	httpServer := server.New(server.Config{
		App:             appCore,
		Tokens:          tokens,
		AllowedOrigins:  cfg.AllowedOrigins,
		SecureCookies:   os.Getenv("ENV") == "production",
		RegisterLimiter: limiter(logger, cfg, "register", cfg.RegisterRateLimitPerMinute),
		LoginLimiter:    limiter(logger, cfg, "login", cfg.LoginRateLimitPerMinute),
		ChatLimiter:     limiter(logger, cfg, "chat", cfg.ChatRateLimitPerMinute),
		DraftLimiter:    limiter(logger, cfg, "draft", cfg.DraftRateLimitPerMinute),
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

// limiter builds one Redis-backed rate limiter. A zero limit disables it.
func limiter(logger *slog.Logger, cfg config.FileConfig, name string, perMinute int) server.Limiter {
	if perMinute <= 0 {
		return nil
	}
	l, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "memoire:ratelimit:"+name, perMinute, time.Minute)
	if err != nil {
		fatal(logger, "failed to init rate limiter", err)
	}
	return l
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
