package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"genie/internal/genai"
	"genie/internal/http/handlers"
	"genie/internal/http/httpapi"
	"genie/internal/images"
	"genie/internal/infra"
	"genie/internal/share"
	"genie/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := infra.Migrate(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	storageCfg := storage.Config{
		Region:          cfg.StorageRegion,
		Endpoint:        cfg.StorageEndpoint,
		AccessKeyID:     cfg.StorageAccessKeyID,
		SecretAccessKey: cfg.StorageSecretAccessKey,
		Bucket:          cfg.StorageBucket,
		PublicBaseURL:   cfg.StoragePublicBaseURL,
		UseSSL:          cfg.StorageUseSSL,
	}
	var store storage.ObjectStore
	if cfg.StorageEndpoint != "" {
		store, err = storage.NewMinioStore(storageCfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create object store client")
		}
	} else {
		store, err = storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create filesystem store")
		}
		logger.Warn().Str("path", cfg.StoragePath).Msg("no storage endpoint configured; using local filesystem store")
	}
	writer := storage.NewWriter(store, storageCfg, logger)

	gateway := genai.NewClient(genai.Config{
		APIKey:  cfg.GatewayAPIKey,
		BaseURL: cfg.GatewayBaseURL,
		Model:   cfg.GatewayModel,
		Logger:  logger,
	})
	normalizer := images.NewNormalizer(nil)
	shares := share.NewPublisher(dbpool, cfg.AppPublicURL, logger)

	app := handlers.NewApp(logger, normalizer, gateway, writer, shares, cfg.NativeAppBaseURL)
	router := httpapi.NewRouter(app, logger, cfg.CORSAllowedOrigins)

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("model", gateway.Model()).Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
