package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muneeb-ashraf/yt-summarizer-app/internal/servicetoken"
	"github.com/muneeb-ashraf/yt-summarizer-app/internal/usertoken"
	"github.com/muneeb-ashraf/yt-summarizer-app/internal/util"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/ai"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/events"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/queue"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/storage"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/store"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/summarize"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/youtube"
	"github.com/muneeb-ashraf/yt-summarizer-app/services/summary/internal/app"
	"github.com/muneeb-ashraf/yt-summarizer-app/services/summary/internal/config"
	"github.com/muneeb-ashraf/yt-summarizer-app/services/summary/internal/server"
)

// workerDrainTimeout bounds how long shutdown waits for claimed jobs.
const workerDrainTimeout = 2 * time.Minute

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel, "summary")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("invalid trusted proxy cidrs", "err", err)
	}
	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:    cfg.AuthJWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     cfg.Durations.JWTLeeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		util.Fatal("failed to init jwks verifier", "err", err)
	}

	var dataStore store.Store
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		dataStore = store.NewMemoryStore()
	}

	dispatcher, closeQueue := newDispatcher(cfg, logger)
	defer closeQueue()

	summarizer, err := newSummarizer(cfg, logger)
	if err != nil {
		util.Fatal("failed to init summarizer", "err", err)
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			util.Fatal("failed to init object storage", "err", err)
		}
		objects = minioStore
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		rabbit, err := events.NewRabbitPublisher(events.RabbitConfig{
			URL:      cfg.AMQPURL,
			Exchange: cfg.AMQPExchange,
		})
		if err != nil {
			util.Fatal("failed to init event publisher", "err", err)
		}
		publisher = rabbit
	}
	defer publisher.Close()

	appCore, err := app.New(app.Config{
		DatabaseURL:          cfg.DatabaseURL,
		Store:                dataStore,
		Dispatcher:           dispatcher,
		Summarizer:           summarizer,
		Objects:              objects,
		Events:               publisher,
		QueueConcurrency:     cfg.QueueConcurrency,
		ProcessingTimeout:    cfg.Durations.ProcessingTimeout,
		SweepInterval:        cfg.Durations.SweepInterval,
		ExportURLTTL:         cfg.Durations.ExportURLTTL,
		BillingWebhookSecret: cfg.BillingWebhookSecret,
		Logger:               logger,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	appCore.Start(workerCtx)

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		TokenVerifier:            tokenVerifier,
		RedisAddr:                rateLimitRedis(cfg),
		RedisPassword:            cfg.RedisPassword,
		SubmitRateLimitPerMinute: cfg.SubmitRateLimitPerMinute,
		TrustedProxies:           trusted,
		CORSAllowedOrigins:       cfg.CORSAllowedOrigins,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("summary server listening", "addr", addr, "mode", cfg.SummaryMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	cancelWorkers()
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), workerDrainTimeout)
	defer cancelDrain()
	if err := appCore.Wait(drainCtx); err != nil {
		// Jobs still processing are failed by the sweeper after restart.
		logger.Warn("workers did not drain", "err", err)
	}
}

// newDispatcher picks Redis Streams when redisAddr is set, else the in-process queue.
func newDispatcher(cfg config.FileConfig, logger *slog.Logger) (queue.Dispatcher, func()) {
	if cfg.RedisAddr == "" {
		logger.Warn("redisAddr not set, dispatching jobs in-process")
		return queue.NewLocalQueue(0, logger), func() {}
	}
	q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		Stream:    cfg.QueueStream,
		Group:     cfg.QueueGroup,
		Consumer:  util.NewID(),
		ClaimIdle: cfg.Durations.QueueClaimIdle,
		Logger:    logger,
	})
	if err != nil {
		util.Fatal("failed to init redis queue", "err", err)
	}
	return q, func() { _ = q.Close() }
}

func newSummarizer(cfg config.FileConfig, logger *slog.Logger) (app.Summarizer, error) {
	switch cfg.SummaryMode {
	case config.SummaryModeModel:
		generator, err := ai.NewGenerator(ai.GeneratorConfig{
			Provider:    cfg.GenerationProvider,
			BaseURL:     cfg.GenerationBaseURL,
			APIKey:      cfg.GenerationAPIKey,
			Model:       cfg.GenerationModel,
			Temperature: cfg.GenerationTemperature,
			Retries:     cfg.GenerationRetries,
			RetryDelay:  time.Second,
		})
		if err != nil {
			return nil, err
		}
		fetcher := youtube.NewFetcher(youtube.Config{
			APIKey:            cfg.YouTubeAPIKey,
			RequestsPerSecond: cfg.YouTubeRequestsPerSecond,
			Logger:            logger,
		})
		return app.NewModelSummarizer(fetcher, summarize.NewSummarizer(generator, cfg.ChunkSize, cfg.ChunkOverlap)), nil
	default:
		var signer ai.TokenSigner
		if cfg.WebhookSigningKeyPath != "" || cfg.WebhookSigningSecret != "" {
			s, err := servicetoken.NewSigner(servicetoken.SignerOptions{
				PrivateKeyPath: cfg.WebhookSigningKeyPath,
				SharedSecret:   cfg.WebhookSigningSecret,
				Issuer:         "summary",
			})
			if err != nil {
				return nil, err
			}
			signer = s
		}
		client, err := ai.NewWebhookClient(ai.WebhookConfig{
			URL:           cfg.SummaryWebhookURL,
			ContentFields: cfg.ContentFields,
			Timeout:       cfg.Durations.SummaryWebhookTimeout,
			Signer:        signer,
			Audience:      cfg.WebhookAudience,
		})
		if err != nil {
			return nil, err
		}
		return app.NewWebhookSummarizer(client), nil
	}
}

// rateLimitRedis enables the submit limiter only when a limit is configured.
func rateLimitRedis(cfg config.FileConfig) string {
	if cfg.SubmitRateLimitPerMinute <= 0 {
		return ""
	}
	return cfg.RedisAddr
}
