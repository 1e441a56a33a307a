package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ad/script-agent-bot/internal/bot"
	"github.com/ad/script-agent-bot/internal/config"
	"github.com/ad/script-agent-bot/internal/console"
	"github.com/ad/script-agent-bot/internal/domain"
	"github.com/ad/script-agent-bot/internal/locale"
	"github.com/ad/script-agent-bot/internal/logger"
	"github.com/ad/script-agent-bot/internal/session"
	"github.com/ad/script-agent-bot/internal/storage"
	"github.com/ad/script-agent-bot/internal/verify"

	tgbot "github.com/go-telegram/bot"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"
)

func main() {
	// Load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel := logger.ParseLevel(cfg.LogLevel)
	log := logger.New(logLevel)
	log.Info("Starting Script Agent Bot", "log_level", cfg.LogLevel, "backend", cfg.StorageBackend)

	// Open document stores on the configured backend
	var (
		dataStore     storage.DocumentStore
		pendingStore  storage.DocumentStore
		settingsStore storage.DocumentStore
	)
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		db, err := sql.Open("sqlite", cfg.DatabasePath)
		if err != nil {
			log.Error("Failed to open database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		// Enable WAL mode for better concurrency
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			log.Error("Failed to enable WAL mode", "error", err)
			os.Exit(1)
		}

		dbQueue := storage.NewDBQueue(db)
		defer dbQueue.Close()

		if err := storage.InitDocumentSchema(dbQueue); err != nil {
			log.Error("Failed to initialize database schema", "error", err)
			os.Exit(1)
		}
		log.Info("Database opened", "path", cfg.DatabasePath)

		dataStore = storage.NewSQLiteDocumentStore(dbQueue, "data")
		pendingStore = storage.NewSQLiteDocumentStore(dbQueue, "pending")
		settingsStore = storage.NewSQLiteDocumentStore(dbQueue, "settings")

	default:
		dataStore, err = storage.NewFileDocumentStore(cfg.DataFile)
		if err != nil {
			log.Error("Failed to open data file", "path", cfg.DataFile, "error", err)
			os.Exit(1)
		}
		pendingStore, err = storage.NewFileDocumentStore(cfg.PendingFile)
		if err != nil {
			log.Error("Failed to open pending file", "path", cfg.PendingFile, "error", err)
			os.Exit(1)
		}
		settingsStore, err = storage.NewFileDocumentStore(cfg.SettingsFile)
		if err != nil {
			log.Error("Failed to open settings file", "path", cfg.SettingsFile, "error", err)
			os.Exit(1)
		}
		log.Info("Document files opened", "data", cfg.DataFile, "pending", cfg.PendingFile)
	}

	// Typed stores over the documents
	records := storage.NewRecordStore(dataStore, log)
	pending := storage.NewPendingStore(pendingStore, log)
	settings := storage.NewSettingsStore(settingsStore, log)
	log.Info("Stores created")

	// In-memory wizard sessions
	sessions := session.NewRegistry(log)

	// Localization
	localizer, err := locale.NewLocalizer(locale.NewLocale(locale.En))
	if err != nil {
		log.Error("Failed to create localizer", "error", err)
		os.Exit(1)
	}
	log.Info("Localizer created")

	// Create context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize Telegram bot
	b, err := tgbot.New(cfg.TelegramToken)
	if err != nil {
		log.Error("Failed to create bot", "error", err)
		os.Exit(1)
	}
	log.Info("Telegram bot created")

	botInfo, err := b.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		os.Exit(1)
	}
	log.Info("Bot info retrieved", "username", botInfo.Username)

	// Domain services
	roles := bot.NewRoleService(b, cfg, records, log)
	reconciler := verify.NewReconciler(pending, records, roles, log)
	tickets := bot.NewTicketService(b, cfg, sessions, localizer, log)
	review := bot.NewReviewService(b, cfg, records, sessions, roles, tickets, localizer, log)
	templateFSM := bot.NewTemplateFSM(b, sessions, records, localizer, log)
	uploadFSM := bot.NewUploadFSM(b, sessions, review, localizer, log)
	requestFSM := bot.NewRequestFSM(b, sessions, tickets, localizer, log)
	log.Info("Services created")

	handler := bot.NewBotHandler(
		b,
		cfg,
		log,
		localizer,
		records,
		settings,
		sessions,
		reconciler,
		templateFSM,
		uploadFSM,
		requestFSM,
		review,
		tickets,
	)
	log.Info("Bot handler created")

	// Register command handlers
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/key", tgbot.MatchTypeExact, handler.HandleKey)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/help", tgbot.MatchTypeExact, handler.HandleHelp)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/version", tgbot.MatchTypeExact, handler.HandleVersion)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/github", tgbot.MatchTypeExact, handler.HandleGithub)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/commits", tgbot.MatchTypeExact, handler.HandleCommits)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/verify", tgbot.MatchTypePrefix, handler.HandleVerify)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/saves", tgbot.MatchTypeExact, handler.HandleSaves)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/clear", tgbot.MatchTypePrefix, handler.HandleClear)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/loadsave", tgbot.MatchTypePrefix, handler.HandleLoadSave)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/print", tgbot.MatchTypePrefix, handler.HandlePrint)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/template", tgbot.MatchTypeExact, handler.HandleTemplate)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/upload", tgbot.MatchTypeExact, handler.HandleUpload)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/request", tgbot.MatchTypeExact, handler.HandleRequest)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/revokekey", tgbot.MatchTypePrefix, handler.HandleRevokeKey)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/purge", tgbot.MatchTypePrefix, handler.HandlePurge)

	// Callback and conversation routing
	b.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, "", tgbot.MatchTypePrefix, handler.HandleCallback)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "", tgbot.MatchTypePrefix, handler.HandleMessage)
	log.Info("Command handlers registered")

	// Verification HTTP server
	verifyServer := verify.NewServer(cfg.VerifyListenAddr, pending, log)
	go func() {
		if err := verifyServer.Start(); err != nil {
			log.Error("Verification server failed", "error", err)
		}
	}()

	// Periodic sweeps for stale pending requests and idle sessions
	go func() {
		ticker := time.NewTicker(domain.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if _, err := pending.Sweep(now); err != nil {
					log.Error("Pending sweep failed", "error", err)
				}
				sessions.CleanupStale(now)
			}
		}
	}()

	// Operator console
	stopReason := make(chan console.StopReason, 1)
	operatorConsole := console.New(os.Stdin, os.Stdout, b, settings, records, sessions, log)
	go func() {
		stopReason <- operatorConsole.Run(ctx)
	}()

	// Start bot polling in a goroutine
	go func() {
		log.Info(localizer.MustLocalize(locale.BotStarted), "username", botInfo.Username)
		b.Start(ctx)
	}()

	log.Info("Bot is running. Press Ctrl+C to stop.")

	restart := false
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, stopping bot...")
	case reason := <-stopReason:
		if reason == console.StopRestart {
			restart = true
			log.Info("Restart requested from console")
		} else {
			log.Info("Quit requested from console")
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := verifyServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Verification server shutdown failed", "error", err)
	}

	if restart {
		exe, err := os.Executable()
		if err == nil {
			log.Info("Re-executing", "path", exe)
			err = syscall.Exec(exe, os.Args, os.Environ())
		}
		log.Error("Restart failed", "error", err)
		os.Exit(1)
	}

	log.Info("Bot stopped successfully")
}
