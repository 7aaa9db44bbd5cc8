package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pauljones0/zdm-deals-bot/internal/config"
	"github.com/pauljones0/zdm-deals-bot/internal/extractor"
	"github.com/pauljones0/zdm-deals-bot/internal/fetcher"
	"github.com/pauljones0/zdm-deals-bot/internal/notifier"
	"github.com/pauljones0/zdm-deals-bot/internal/pipeline"
	"github.com/pauljones0/zdm-deals-bot/internal/processor"
	"github.com/pauljones0/zdm-deals-bot/internal/session"
	"github.com/pauljones0/zdm-deals-bot/internal/store"
)

// runTimeout bounds one full push cycle, browser refresh included.
const runTimeout = 5 * time.Minute

func main() {
	slog.Info("Starting zdm deals bot...")
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)
	cfg.LogSummary()

	db := store.New(cfg.DBPath)
	defer db.Close()

	tokens := session.New(cfg.SessionCacheFile, extractor.FeedOrigin)
	feed := fetcher.New(tokens)

	var channels []notifier.Notifier
	if cfg.UseEmail && cfg.Email.Complete() {
		channels = append(channels, notifier.NewEmail(cfg.Email))
	}
	if cfg.UseWechat && cfg.WxPusher.Complete() {
		channels = append(channels, notifier.NewWxPusher(cfg.WxPusher))
	}
	dispatcher := notifier.NewDispatcher(channels...)
	slog.Info("Notification channels ready", "count", dispatcher.Channels())

	pl := pipeline.New()
	pl.SetThresholds(&cfg.MinVoteThreshold, &cfg.MinCommentThrsh)

	p := processor.New(db, feed, tokens, dispatcher, pl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if err := p.Run(ctx); err != nil {
		slog.Error("Push cycle failed", "error", err)
		db.Close()
		os.Exit(1)
	}
	slog.Info("Push cycle completed.")
}

// setupLogging reinstalls the default slog handler at the configured
// level. Unknown levels fall back to info.
func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
