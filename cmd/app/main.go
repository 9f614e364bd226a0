package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"live-service/configs"
	"live-service/internal/adapter"
	"live-service/internal/adapter/slack"
	"live-service/internal/adapter/telegram"
	"live-service/internal/adapter/webapp"
	"live-service/internal/admin"
	"live-service/internal/bus"
	"live-service/internal/embed"
	"live-service/internal/engine"
	"live-service/internal/idem"
	"live-service/internal/kafka"
	"live-service/internal/media"
	"live-service/internal/page"
	"live-service/internal/polling"
	"live-service/internal/ratelimit"
	"live-service/internal/render"
	"live-service/internal/shared/httpx"
	"live-service/internal/shared/redisx"
	"live-service/internal/storage/pgrepo"
	"live-service/internal/storage/redisrepo"
	"live-service/internal/storage/s3"
	"live-service/internal/storage/sqliterepo"
	"live-service/internal/ws"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("live-service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := configs.LoadConfig()
	if err != nil {
		return err
	}

	shutdown, err := initOTEL(ctx, cfg.Env)
	if err != nil {
		return err
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(c)
	}()

	// Redis
	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb, err = redisx.Open(ctx, redisx.Options{Host: cfg.RedisHost, Port: cfg.RedisPort, Password: cfg.RedisPassword})
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	// Pages
	repo, closeRepo, err := openPageStore(cfg, rdb)
	if err != nil {
		return err
	}
	defer closeRepo()
	pages := page.NewRegistry(repo, logger.With("component", "pages"))
	if err := pages.Restore(ctx); err != nil {
		return err
	}

	// Media
	var store media.Store
	if cfg.S3Endpoint != "" {
		st, err := s3.New(s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			Bucket:    cfg.S3Bucket,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return err
		}
		if err := st.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("s3 bucket %s: %w", cfg.S3Bucket, err)
		}
		store = st
	}
	images := media.NewProcessor(store, nil, logger.With("component", "media"))
	embeds, err := embed.NewMatcher(cfg.EmbedPatterns)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Update bus
	var b bus.Bus
	switch cfg.Publisher {
	case configs.PublisherWebsocket:
		b = bus.NewLocalBus(logger.With("component", "bus"))
	case configs.PublisherRedis:
		transport := bus.NewRedisTransport(rdb, logger.With("component", "bus"))
		defer transport.Close()
		relay := bus.NewRelayBus(transport, logger.With("component", "bus"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(ctx); err != nil {
				logger.Error("relay bus stopped", "error", err)
			}
		}()
		b = relay
	}
	var pub bus.Publisher = bus.NopPublisher{}
	if b != nil {
		pub = b
	}

	renderer := render.NewHTML()
	eng := engine.New(pages, renderer, pub, images, embeds, logger.With("component", "engine"))

	var seen idem.Store = idem.NewMemory()
	if rdb != nil {
		seen = idem.NewRedis(rdb)
	}

	// HTTP
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})

	var limit func(http.Handler) http.Handler
	if cfg.PollRateLimit > 0 {
		limit = ratelimit.New(rdb).Middleware(cfg.PollRateLimit, time.Minute, ratelimit.PerClient)
	}
	responder := polling.NewResponder(pages, renderer, cfg.PollingInterval, cfg.PollingTimeout, logger.With("component", "polling"))
	polling.NewHandler(responder).Routes(mux, limit)

	if b != nil {
		ws.NewHandler(pages, b, logger.With("component", "ws")).Routes(mux)
	}

	if cfg.SlackSigningSecret != "" {
		mux.Handle("POST /slack/events", adapter.NewHandler(
			slack.New(cfg.SlackSigningSecret, cfg.SlackBotToken), eng, seen, logger))
	}
	if cfg.TelegramBotToken != "" {
		client := telegram.NewClient(cfg.TelegramAPIBase, cfg.TelegramBotToken, nil)
		secret := cfg.TelegramWebhookSecret
		if secret == "" {
			secret = telegram.WebhookSecret(cfg.TelegramBotToken)
		}
		mux.Handle("POST "+telegram.WebhookPath, adapter.NewHandler(
			telegram.New(secret, client, logger), eng, seen, logger))
	}
	if cfg.JWTSecret != "" {
		mux.Handle("POST /webapp/events", adapter.NewHandler(webapp.New(cfg.JWTSecret), eng, seen, logger))
		admin.NewHandler(eng, logger).Routes(mux, httpx.AuthMiddleware([]byte(cfg.JWTSecret)))
	} else {
		logger.Warn("JWT_SECRET not set; operator API and webapp adapter disabled")
	}

	// Kafka
	if cfg.KafkaBrokers != "" {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic,
			adapter.KafkaEvents(eng, logger), logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = consumer.Run(ctx)
		}()
	}

	handler := httpx.WithLogging(logger, mux)
	if cfg.TrustForwardedFor {
		handler = httpx.ForwardedFor(handler)
	}
	srv := &http.Server{
		Addr:              cfg.AppPort,
		Handler:           otelhttp.NewHandler(handler, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      responder.Timeout() + 10*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("live-service listening", "addr", cfg.AppPort, "publisher", cfg.Publisher, "page_store", cfg.PageStore)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		cancel()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	c, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(c)
}

func openPageStore(cfg *configs.Config, rdb *redis.Client) (page.Repository, func(), error) {
	switch cfg.PageStore {
	case configs.StoreRedis:
		return redisrepo.New(rdb, ""), func() {}, nil
	case configs.StorePostgres:
		db, err := pgrepo.Open(pgrepo.Options{
			Host: cfg.DBHost, Port: cfg.DBPort, User: cfg.DBUser, Password: cfg.DBPass, Name: cfg.DBName,
		})
		if err != nil {
			return nil, nil, err
		}
		return pgrepo.New(db), func() {
			if s, err := db.DB(); err == nil {
				_ = s.Close()
			}
		}, nil
	case configs.StoreSQLite:
		repo, err := sqliterepo.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	}
	return page.NopRepository{}, func() {}, nil
}
