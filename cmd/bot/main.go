package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/mixelka/gmailbot/internal/classifier"
	"github.com/mixelka/gmailbot/internal/config"
	"github.com/mixelka/gmailbot/internal/database"
	"github.com/mixelka/gmailbot/internal/gmail"
	"github.com/mixelka/gmailbot/internal/lifecycle"
	"github.com/mixelka/gmailbot/internal/mailsync"
	"github.com/mixelka/gmailbot/internal/parser"
	"github.com/mixelka/gmailbot/internal/stream"
	"github.com/mixelka/gmailbot/internal/telegram"
	"github.com/mixelka/gmailbot/internal/watch"
	"github.com/mixelka/gmailbot/pkg/models"
)

const webhookPath = "/telegram/webhook"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting gmail-to-telegram bot", "accounts", len(cfg.GmailAccounts))

	if err := run(cfg, logger); err != nil {
		logger.Error("bot stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("bot stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("database migrations completed", "postgres", cfg.UsesPostgres())

	accounts, err := reconcileAccounts(ctx, cfg, db)
	if err != nil {
		return err
	}

	// Gmail
	gmailClient, err := gmail.NewClient(cfg.GmailClientSecretPath, parser.NewHTMLParser(), logger)
	if err != nil {
		return err
	}

	// Classifier
	var trimmer classifier.Trimmer
	if t, err := classifier.NewTiktokenTrimmer(cfg.OpenAIModel); err != nil {
		logger.Warn("tiktoken unavailable, using approximate token budget", "error", err)
		trimmer = classifier.ApproxTrimmer{}
	} else {
		trimmer = t
	}
	cls := classifier.New(classifier.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		Timeout: cfg.LLMTimeout,
	}, trimmer, logger)

	// Lifecycle and Telegram
	machine := lifecycle.NewMachine(db, gmailClient, accounts, cfg.LLMLowConfidenceThreshold, logger)
	bot, err := telegram.NewBot(telegram.BotDeps{
		Config:   cfg,
		DB:       db,
		Actions:  machine,
		Accounts: accounts,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	// Sync
	pipeline := mailsync.NewPipeline(mailsync.PipelineConfig{
		MaxInputTokens:         cfg.LLMMaxInputTokens,
		LowConfidenceThreshold: cfg.LLMLowConfidenceThreshold,
		Prices: classifier.Prices{
			Input:       cfg.OpenAIPriceInputPer1M,
			CachedInput: cfg.OpenAIPriceCachedInputPer1M,
			Output:      cfg.OpenAIPriceOutputPer1M,
		},
	}, db, gmailClient, cls, bot, logger)
	engine := mailsync.NewEngine(db, gmailClient, pipeline, cfg.GmailWatchLabelIDs[0], logger)
	dispatcher := mailsync.NewDispatcher(accounts, engine, logger)

	// Watch renewal
	scheduler := watch.NewScheduler(watch.Config{
		Topic:       cfg.GmailWatchTopic,
		LabelIDs:    cfg.GmailWatchLabelIDs,
		Interval:    cfg.WatchInterval,
		RenewWindow: cfg.WatchRenewWindow,
		AuthBase:    cfg.AuthBackoffBase,
		AuthMax:     cfg.AuthBackoffMax,
	}, db, gmailClient, accounts, logger)

	// Pub/Sub
	var pubsubOpts []option.ClientOption
	if cfg.GoogleCredentialsFile != "" {
		pubsubOpts = append(pubsubOpts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	}
	subscriber, err := stream.NewPubSubSubscriber(ctx, cfg.GoogleCloudProject, cfg.PubSubSubscription, cfg.PubSubMaxOutstanding, pubsubOpts...)
	if err != nil {
		return err
	}
	defer subscriber.Close()
	consumer := stream.NewConsumer(subscriber, dispatcher, cfg.StreamBackoffBase, cfg.StreamBackoffMax, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(cfg, bot, db),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(scheduler.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(consumer.Run(gctx)) })
	g.Go(func() error { return bot.Start(gctx) })
	g.Go(func() error {
		logger.Info("http server starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	logger.Info("bot is running, press Ctrl+C to stop")
	return g.Wait()
}

// reconcileAccounts upserts the configured accounts and attaches their ids
func reconcileAccounts(ctx context.Context, cfg *config.Config, db *database.DB) ([]models.Account, error) {
	emails := make([]string, 0, len(cfg.GmailAccounts))
	for _, a := range cfg.GmailAccounts {
		emails = append(emails, a.Email)
	}

	ids, err := db.EnsureAccounts(ctx, emails, cfg.GmailWatchLabelIDs)
	if err != nil {
		return nil, err
	}

	accounts := make([]models.Account, 0, len(cfg.GmailAccounts))
	for _, a := range cfg.GmailAccounts {
		accounts = append(accounts, models.Account{
			ID:           ids[a.Email],
			Email:        a.Email,
			RefreshToken: a.RefreshToken,
		})
	}
	return accounts, nil
}

func newRouter(cfg *config.Config, bot *telegram.Bot, db *database.DB) http.Handler {
	mux := http.NewServeMux()
	if cfg.WebhookEnabled() {
		mux.Handle("POST "+webhookPath, bot.WebhookHandler())
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	return mux
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
