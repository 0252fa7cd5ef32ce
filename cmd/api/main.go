package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pennpad/api/internal/ai"
	"pennpad/api/internal/app"
	"pennpad/api/internal/billing"
	"pennpad/api/internal/config"
	"pennpad/api/internal/identity"
	"pennpad/api/internal/media"
	"pennpad/api/internal/search"
	"pennpad/api/internal/session"
	"pennpad/api/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !cfg.Production() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer sessions.Close()

	deps := app.Deps{}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	deps.Search = search.NewService(meiliClient, pgfts)

	if cfg.StripeSecretKey != "" {
		deps.Billing = billing.New(billing.Config{
			SecretKey:  cfg.StripeSecretKey,
			PriceID:    cfg.StripePriceID,
			SuccessURL: cfg.CheckoutSuccessURL,
			CancelURL:  cfg.CheckoutCancelURL,
			ReturnURL:  cfg.PortalReturnURL,
		})
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, billing endpoints disabled")
	}

	if cfg.OpenAIAPIKey != "" {
		deps.Completion = ai.New(ai.Config{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.OpenAIModel,
			MaxTokens: cfg.CompletionMaxTokens,
		})
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, text transform endpoints disabled")
	}

	if cfg.MinioEndpoint != "" {
		mediaStore, err := media.New(ctx, media.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("object store connection failed")
		}
		deps.Media = mediaStore
	}

	verifier := identity.NewVerifier(cfg.IDTokenSecret)
	service := app.New(cfg, dataStore, sessions, verifier, deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.Production())
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("PennPad API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
