package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	supabase "github.com/supabase-community/supabase-go"

	"studyhub/internal/catalog"
	"studyhub/internal/chat"
	"studyhub/internal/config"
	"studyhub/internal/docstore"
	"studyhub/internal/httpapi"
	"studyhub/internal/identity"
	"studyhub/internal/knowledge"
	"studyhub/internal/openai"
	"studyhub/internal/storage"
	"studyhub/internal/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().Str("addr", cfg.HTTP.ListenAddr).Str("db_driver", cfg.DB.Driver).Msg("starting studyhub")

	prompts, err := config.LoadPrompts(chat.TargetNames())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load agent prompts")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate, cfg.DB.MigrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	sb, err := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create supabase client")
	}

	provider := openai.New(openai.Config{
		BaseURL:          cfg.OpenAI.BaseURL,
		APIKey:           cfg.OpenAI.APIKey,
		HTTPClient:       &http.Client{Timeout: cfg.OpenAI.ClientTimeout},
		MaxRetries:       cfg.OpenAI.MaxRetries,
		BackoffBase:      cfg.OpenAI.BackoffBase,
		PollInterval:     cfg.OpenAI.PollInterval,
		MaxResponseBytes: cfg.OpenAI.MaxResponseBytes,
	})

	docs := docstore.New(docstore.Config{
		Supabase:      sb,
		BaseURL:       cfg.Supabase.URL,
		ServiceKey:    cfg.Supabase.ServiceRoleKey,
		StorageBucket: cfg.Supabase.StorageBucket,
		Logger:        log.Logger,
	})

	binder := knowledge.New(knowledge.Config{
		Provider:        provider,
		Files:           docs,
		AssistantModel:  cfg.OpenAI.AssistantModel,
		IndexTimeout:    cfg.OpenAI.IndexTimeout,
		FileWaitTimeout: cfg.OpenAI.FileWaitTimeout,
		Logger:          log.Logger,
	})

	generator := chat.NewGenerator(chat.GeneratorConfig{
		Provider:      provider,
		ChatModel:     cfg.OpenAI.ChatModel,
		FallbackModel: cfg.OpenAI.FallbackModel,
		RunTimeout:    cfg.OpenAI.RunTimeout,
		Logger:        log.Logger,
	})

	tracker := usage.NewTracker(rdb, cfg.Redis.UsageTTL, log.Logger)

	service := chat.NewService(chat.ServiceConfig{
		Store:     store,
		Binder:    binder,
		Files:     docs,
		Courses:   catalog.New(sb),
		Usage:     tracker,
		Generator: generator,
		Prompts:   prompts,
		Logger:    log.Logger,
	})

	verifier := identity.New(identity.Config{
		BaseURL: cfg.Supabase.URL,
		AnonKey: cfg.Supabase.AnonKey,
		Logger:  log.Logger,
	})

	api := httpapi.New(httpapi.Config{
		Chat:        service,
		Sessions:    store,
		Usage:       tracker,
		Verifier:    verifier,
		HealthPath:  cfg.HTTP.HealthPath,
		MetricsPath: cfg.HTTP.MetricsPath,
		Logger:      log.Logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
