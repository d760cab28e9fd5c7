// Command server runs the full fanout pipeline: HTTP API, transactional
// outbox dispatcher, and timeline materializer, all wired off one
// configuration and sharing one Postgres/Redis/NATS connection set.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/dtambussi/fanout/internal/api"
	"github.com/dtambussi/fanout/internal/cache"
	"github.com/dtambussi/fanout/internal/config"
	"github.com/dtambussi/fanout/internal/eventbus"
	"github.com/dtambussi/fanout/internal/logging"
	"github.com/dtambussi/fanout/internal/materializer"
	"github.com/dtambussi/fanout/internal/migrate"
	"github.com/dtambussi/fanout/internal/outbox"
	"github.com/dtambussi/fanout/internal/read"
	"github.com/dtambussi/fanout/internal/repository"
	"github.com/dtambussi/fanout/internal/write"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: os.Stderr})
	log := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Connect(cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to postgres")
	}
	defer db.Close()

	if err := migrate.Up(db.DB); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	redisClient, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to redis")
	}
	defer redisClient.Close()

	users := repository.NewUserStore(db)
	posts := repository.NewPostStore(db)
	follows := repository.NewFollowStore(db)
	outboxStore := repository.NewOutboxStore(db)
	timelineCache := cache.NewTimelineCache(redisClient, cfg.Timeline.CacheSize)

	natsURL, embeddedServer := startEventBus(cfg.EventBus, log)
	if embeddedServer != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := embeddedServer.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("embedded nats server shutdown")
			}
		}()
	}

	nc, err := natsgo.Connect(natsURL, natsgo.RetryOnFailedConnect(true), natsgo.MaxReconnects(cfg.EventBus.MaxReconnects))
	if err != nil {
		log.Fatal().Err(err).Msg("connect to nats")
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatal().Err(err).Msg("create jetstream client")
	}
	if _, err := eventbus.EnsureStream(ctx, js, eventbus.DefaultStreamConfig(cfg.EventBus.StreamName)); err != nil {
		log.Fatal().Err(err).Msg("ensure jetstream stream")
	}

	breaker := eventbus.NewCircuitBreaker(eventbus.DefaultCircuitBreakerConfig())
	publisher, err := eventbus.NewPublisher(eventbus.DefaultPublisherConfig(natsURL), breaker, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("create event publisher")
	}
	defer publisher.Close()

	subscriber, err := eventbus.NewSubscriber(eventbus.SubscriberConfig{
		URL:           natsURL,
		QueueGroup:    "materializer",
		DurablePrefix: "materializer",
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("create event subscriber")
	}

	dispatcher := outbox.NewDispatcher(outboxStore, publisher, outbox.DefaultDispatcherConfig())
	go dispatcher.Run(ctx)

	materializerCfg := materializer.DefaultConfig()
	materializerCfg.CelebrityThreshold = cfg.Timeline.CelebrityThreshold
	m := materializer.New(users, posts, follows, timelineCache, materializerCfg)
	materializerRouter, err := materializer.NewRouter(materializer.DefaultRouterConfig(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("create materializer router")
	}
	if err := materializer.RegisterHandlers(materializerRouter, subscriber, m); err != nil {
		log.Fatal().Err(err).Msg("register materializer handlers")
	}
	go func() {
		if err := materializerRouter.Run(ctx); err != nil {
			log.Error().Err(err).Msg("materializer router stopped")
		}
	}()
	defer materializerRouter.Close()

	writeSvc := write.New(db, posts, users, follows, outboxStore)
	readSvc := read.New(timelineCache, posts, follows, read.Config{CelebrityThreshold: cfg.Timeline.CelebrityThreshold})

	handler := api.NewHandler(writeSvc, readSvc, users, posts, follows, outboxStore, timelineCache, redisClient, api.Config{
		DefaultPageSize: cfg.Timeline.DefaultPageSize,
		MaxPageSize:     cfg.Timeline.MaxPageSize,
	})
	router := api.NewRouter(handler)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}

// startEventBus brings up either an embedded NATS JetStream server or
// returns the configured external URL unchanged, so the rest of startup
// never needs to know which mode it is running in.
func startEventBus(cfg config.EventBusConfig, log *zerolog.Logger) (string, *eventbus.EmbeddedServer) {
	if !cfg.EmbeddedServer {
		return cfg.URL, nil
	}

	srv, err := eventbus.NewEmbeddedServer(eventbus.EmbeddedServerConfig{
		Host:     "127.0.0.1",
		Port:     -1,
		StoreDir: cfg.StoreDir,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("start embedded nats server")
	}
	return srv.ClientURL(), srv
}
