package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"verdict/auth"
	"verdict/db"
	"verdict/dispute"
	"verdict/escrow"
	"verdict/outbox"
	"verdict/receipt"
	"verdict/timeline"
)

type config struct {
	DatabaseURL   string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`
	ListenAddr    string `envconfig:"LISTEN_ADDR" default:":8080"`
	SystemAccount string `envconfig:"SYSTEM_ACCOUNT" default:"system"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("bootstrap database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ledger := escrow.NewLedger(pool)
	tl := timeline.NewWriter()
	out := outbox.NewWriter()

	receipts := receipt.NewRegistry(pool, cfg.SystemAccount).WithOutbox(out)

	disputeService := dispute.NewService(pool, dispute.NewRepository(pool), ledger, receipts, tl, out).
		WithSystemAccount(cfg.SystemAccount).
		WithMetrics(dispute.NewMetrics(registry))

	receipts.WithPauseCheck(disputeService.Paused)

	authService := auth.NewService(auth.NewPGRepository(pool), cfg.JWTSecret)
	worker := outbox.NewWorker(pool)

	server := &Server{
		authService:     authService,
		disputeService:  disputeService,
		receiptService:  receipts,
		escrowService:   ledger,
		timelineService: timeline.NewReader(pool),
		notifications:   worker,
		logger:          logger,
	}

	go deliverNotifications(ctx, worker, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", server.routes())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}

// deliverNotifications drains the outbox. Delivery is currently a structured
// log line per message; the claim/ack protocol stays the same when a real
// transport is attached.
func deliverNotifications(ctx context.Context, worker *outbox.Worker, logger *slog.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		messages, err := worker.Claim(ctx, 50)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim outbox messages", "error", err)
			continue
		}

		for _, msg := range messages {
			logger.Info("notification",
				"topic", msg.Topic,
				"message_id", msg.ID,
				"payload", string(msg.Payload),
			)
			if err := worker.MarkProcessed(ctx, msg.ID); err != nil {
				logger.Error("ack outbox message", "message_id", msg.ID, "error", err)
			}
		}
	}
}
