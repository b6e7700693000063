package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"quillbird.app/bot/common/id"
	"quillbird.app/bot/common/logger"
	"quillbird.app/bot/common/otel"
	"quillbird.app/bot/core/config"
	"quillbird.app/bot/core/db"
	"quillbird.app/bot/internal/answer"
	"quillbird.app/bot/internal/bot"
	"quillbird.app/bot/internal/model"
	"quillbird.app/bot/internal/store"
	"quillbird.app/bot/internal/twitter"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "quillbird starting",
		"env", cfg.Env,
		"username", cfg.Bot.Username,
		"dry_run", cfg.Bot.DryRun)

	if cfg.IsProduction() && cfg.OTel.Enabled() {
		telemetry, err := otel.Setup(ctx, cfg.Env, cfg.OTel)
		if err != nil {
			slog.ErrorContext(ctx, "failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := telemetry.Shutdown(shutdownCtx); err != nil {
				slog.ErrorContext(ctx, "telemetry shutdown failed", "error", err)
			}
		}()
		// Re-setup so the otelslog bridge picks up the live provider.
		logger.Setup(cfg)
	}

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected")

	twitterClient := twitter.NewClient(cfg.Twitter)

	// Identity is the one thing the bot cannot run without.
	identity, err := resolveIdentity(ctx, cfg, twitterClient)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve bot identity", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "bot identity resolved",
		"user_id", identity.ID,
		"username", identity.Username)

	engine, err := answer.New(cfg.Answer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create answer engine", "error", err)
		os.Exit(1)
	}

	stores := store.NewStores(database)
	cursorStore := store.NewRedisCursorStore(redisClient)
	mentionCache := store.NewRedisMentionCache(redisClient, cfg.Redis.MentionCacheTTL)

	fetcher := bot.NewFetcher(
		twitterClient, stores, mentionCache,
		cfg.Bot.NoCache, cfg.Bot.ResolveAllMentions)
	resolver := bot.NewThreadResolver(stores.Messages, stores.Tweets, twitterClient, identity.ID)
	processor := bot.NewProcessor(
		cfg.Bot, identity, twitterClient, stores.Messages, stores.Users,
		fetcher, resolver, engine, nil)
	loop := bot.NewLoop(cfg, identity.ID, processor, cursorStore, stores.BatchRuns, twitterClient, nil)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.Run(runCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.InfoContext(ctx, "shutdown signal received", "signal", sig.String())
		cancel()
		select {
		case <-errCh:
		case <-time.After(30 * time.Second):
			slog.WarnContext(ctx, "shutdown timed out, exiting")
		}
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "bot loop exited with error", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "bot loop completed")
	}

	slog.InfoContext(ctx, "quillbird stopped")
}

// resolveIdentity prefers configured identity and falls back to the API.
// Configured identity keeps startup working while the platform is flaky;
// the API path keeps config minimal.
func resolveIdentity(ctx context.Context, cfg config.Config, client twitter.Client) (*model.TwitterUser, error) {
	if cfg.Bot.UserID != "" && cfg.Bot.Username != "" {
		return &model.TwitterUser{ID: cfg.Bot.UserID, Username: cfg.Bot.Username}, nil
	}
	return client.Me(ctx)
}
