// Package main contains the entrypoint for the community content bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/localsonly/localsbot/internal/bot"
	"github.com/localsonly/localsbot/internal/bot/handlers"
	"github.com/localsonly/localsbot/internal/bot/tasks"
	"github.com/localsonly/localsbot/internal/config"
	"github.com/localsonly/localsbot/internal/database"
	"github.com/localsonly/localsbot/internal/extract"
	"github.com/localsonly/localsbot/internal/ingest"
	"github.com/localsonly/localsbot/internal/logger"
	"github.com/localsonly/localsbot/internal/media"
	"github.com/localsonly/localsbot/internal/notify"
	"github.com/localsonly/localsbot/internal/router"
	"github.com/localsonly/localsbot/internal/schema"
	"github.com/localsonly/localsbot/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components and blocks until shutdown, returning the
// process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	registry, err := schema.NewRegistry()
	if err != nil {
		log.Error("Invalid content schema", "error", err)
		return 1
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	extractor, err := extract.NewClient(ctx, cfg.Extract, registry, log)
	if err != nil {
		log.Error("Failed to initialize extraction client", "error", err)
		return 1
	}

	objects, err := media.NewGCSStore(ctx, cfg.Storage.Bucket)
	if err != nil {
		log.Error("Failed to initialize object storage", "bucket", cfg.Storage.Bucket, "error", err)
		return 1
	}

	// The pipeline sends through the bot and the bot's default handler runs
	// the pipeline, so the handler is bound after both exist.
	var onMessage tgbot.HandlerFunc
	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if onMessage != nil {
				onMessage(ctx, b, update)
			}
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	correlator := media.NewCorrelator(store, objects, tg, cfg.Telegram.Token, log)
	notifier := notify.New(store, tg, cfg.Notify, cfg.Telegram.WebAppLink, log)
	ingestor := ingest.New(store, registry, extractor, correlator, notifier, tg, log)

	hDeps := handlers.HandlerDeps{
		Logger:     log,
		Config:     cfg,
		Store:      store,
		Router:     router.New(store, log),
		Ingestor:   ingestor,
		Correlator: correlator,
	}
	onMessage = handlers.NewMessageHandler(hDeps)

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	tDeps := tasks.TaskDeps{
		Logger:  log,
		Store:   store,
		Objects: objects,
		Config:  cfg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, db, store, tg, sched)

	log.Info("Starting bot")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully")
	time.Sleep(time.Second)
	return 0
}
