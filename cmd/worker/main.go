package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"paperco.app/intake/common/id"
	"paperco.app/intake/common/llm"
	"paperco.app/intake/common/logger"
	"paperco.app/intake/common/otel"
	"paperco.app/intake/core/config"
	"paperco.app/intake/core/db"
	"paperco.app/intake/internal/approval"
	intakehttp "paperco.app/intake/internal/http"
	"paperco.app/intake/internal/inbox"
	"paperco.app/intake/internal/intel"
	"paperco.app/intake/internal/matching"
	"paperco.app/intake/internal/notify"
	"paperco.app/intake/internal/pipeline"
	"paperco.app/intake/internal/renderer"
	"paperco.app/intake/internal/store"
	"paperco.app/intake/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)
	logger.Setup(cfg)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	if cfg.OTel.Enabled() {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	}

	slog.InfoContext(ctx, "intake worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Inbox.Group,
		"consumer_name", cfg.Inbox.Consumer)

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

	redisOpts, err := redis.ParseURL(cfg.Inbox.RedisURL)
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
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Inbox.Stream)

	mail, err := inbox.NewRedisTransport(redisClient, cfg.Inbox)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create inbox transport", "error", err)
		os.Exit(1)
	}

	llmClient, err := llm.New(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}

	matcher := matching.NewTypesenseMatcher(cfg.Typesense, cfg.Matching.MaxCandidates)

	records := store.NewPgStore(database.Pool())
	txRunner := store.NewPgTxRunner(database)

	invoices, err := renderer.NewInvoiceRenderer(cfg.Renderer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create invoice renderer", "error", err)
		os.Exit(1)
	}

	gate := approval.NewGate(
		approval.NewRedisTransport(redisClient, cfg.Approval),
		cfg.Approval.Timeout,
		cfg.Approval.PollInterval,
	)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.Enabled() {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL)
	}

	p := pipeline.New(
		intel.NewClassifier(llmClient),
		intel.NewExtractor(llmClient),
		pipeline.NewResolver(matcher, records, cfg.Matching, cfg.Pricing, cfg.Credit),
		pipeline.NewRuleDecider(cfg.Matching.ConfidenceThreshold),
		pipeline.NewFulfiller(invoices, gate, txRunner, mail, notifier),
		pipeline.NewRejecter(mail),
	)

	metrics := &worker.Metrics{}
	w := worker.New(mail, p, worker.Config{MaxAttempts: 3}, metrics)

	server := opsServer(cfg, database, redisClient, metrics)
	go func() {
		slog.InfoContext(ctx, "ops server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "ops server error", "error", err)
			os.Exit(1)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx)
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	w.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "ops server shutdown error", "error", err)
	}

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "worker shutdown complete")
}

func opsServer(cfg config.Config, database *db.DB, redisClient *redis.Client, metrics *worker.Metrics) *http.Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(intakehttp.Recovery())
	router.Use(intakehttp.Logger())

	intakehttp.SetupRoutes(router, intakehttp.Deps{
		DB: func(ctx context.Context) error {
			return database.Pool().Ping(ctx)
		},
		Redis: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
		Metrics: metrics,
	})

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

const banner = `
██████╗  █████╗ ██████╗ ███████╗██████╗  ██████╗ ██████╗     ██╗███╗   ██╗████████╗ █████╗ ██╗  ██╗███████╗
██╔══██╗██╔══██╗██╔══██╗██╔════╝██╔══██╗██╔════╝██╔═══██╗    ██║████╗  ██║╚══██╔══╝██╔══██╗██║ ██╔╝██╔════╝
██████╔╝███████║██████╔╝█████╗  ██████╔╝██║     ██║   ██║    ██║██╔██╗ ██║   ██║   ███████║█████╔╝ █████╗
██╔═══╝ ██╔══██║██╔═══╝ ██╔══╝  ██╔══██╗██║     ██║   ██║    ██║██║╚██╗██║   ██║   ██╔══██║██╔═██╗ ██╔══╝
██║     ██║  ██║██║     ███████╗██║  ██║╚██████╗╚██████╔╝    ██║██║ ╚████║   ██║   ██║  ██║██║  ██╗███████╗
╚═╝     ╚═╝  ╚═╝╚═╝     ╚══════╝╚═╝  ╚═╝ ╚═════╝ ╚═════╝     ╚═╝╚═╝  ╚═══╝   ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝
`
