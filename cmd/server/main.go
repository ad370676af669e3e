package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gdtech/pairgate/internal/config"
	"github.com/gdtech/pairgate/internal/database"
	"github.com/gdtech/pairgate/internal/delivery"
	"github.com/gdtech/pairgate/internal/handler"
	"github.com/gdtech/pairgate/internal/jobs"
	"github.com/gdtech/pairgate/internal/middleware"
	"github.com/gdtech/pairgate/internal/notify"
	"github.com/gdtech/pairgate/internal/provider/whatsapp"
	"github.com/gdtech/pairgate/internal/redis"
	"github.com/gdtech/pairgate/internal/session"
	"github.com/gdtech/pairgate/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	waProvider, err := whatsapp.New(context.Background(), db.Raw(), cfg.ChannelJID, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize whatsapp provider")
	}

	var sink delivery.CredentialSink = waProvider
	var subscriber delivery.ChannelSubscriber = waProvider
	if cfg.DeliveryMode == config.DeliveryModeQueue {
		queueSink := delivery.NewQueueSink(redisClient)
		sink = queueSink
		subscriber = queueSink
		log.Info().Msg("delivery routed through redis queue")
	}

	// Status events only fan out when redis is configured; the manager
	// tolerates a nil notifier.
	var broker *notify.Broker
	var notifier session.Notifier
	if redisClient != nil {
		broker = notify.NewBroker(redisClient)
		defer broker.Close()
		notifier = broker
	}

	sessionStore := store.New()
	manager := session.NewManager(sessionStore, waProvider, sink, subscriber, notifier, session.Config{
		TTL:                cfg.SessionTTL(),
		MaxConnectAttempts: cfg.MaxConnectAttempts,
	})
	defer manager.Close()

	sessionHandler := handler.NewSessionHandler(manager)

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		if broker != nil {
			eventsHandler := handler.NewEventsHandler(broker, manager)
			r.Get("/{sessionID}/events", eventsHandler.ServeHTTP)
		}
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Mount("/", sessionHandler.Routes())
		})
	})

	sweeper := jobs.NewSweeper(manager, cfg.SweepInterval())
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		// WriteTimeout stays zero so SSE streams are not cut off.
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
