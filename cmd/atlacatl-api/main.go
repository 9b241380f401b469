package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/abuse"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/cards"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/config"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/database"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/identity"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/server"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "atlacatl-api",
		Short: "Atlacatl social posting backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "PostgreSQL connection string")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", "", "Optional rotating JSON log file")
	cmd.PersistentFlags().String("ratelimit-store", defaults.GetString("ratelimit.store"), "Rate limit counter store (memory, redis)")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for shared rate limit counters")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Origins allowed to call the API with credentials")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.file", "log-file")
	bindFlag(cmd, "ratelimit.store", "ratelimit-store")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig(cmd *cobra.Command) error {
	if err := config.LoadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Options{
		Driver: appConfig.Database.Driver,
		Path:   appConfig.Database.Path,
		DSN:    appConfig.Database.DSN,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	cardsService, err := cards.NewService(cards.ServiceConfig{
		Database:     db,
		Clock:        time.Now,
		Logger:       logger,
		StoreTimeout: appConfig.Database.Timeout,
		FeedLimit:    appConfig.Feed.DefaultLimit,
		MaxFeedLimit: appConfig.Feed.MaxLimit,
	})
	if err != nil {
		return err
	}

	appMetrics := metrics.New()

	counterStore, closeStore, err := newCounterStore(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	guard, err := abuse.NewGuard(abuse.GuardConfig{
		Store: counterStore,
		Limits: map[abuse.Class]abuse.Limit{
			abuse.ClassPost:    {Requests: appConfig.RateLimit.Post.Limit, Window: appConfig.RateLimit.Post.Window},
			abuse.ClassComment: {Requests: appConfig.RateLimit.Comment.Limit, Window: appConfig.RateLimit.Comment.Window},
			abuse.ClassLike:    {Requests: appConfig.RateLimit.Like.Limit, Window: appConfig.RateLimit.Like.Window},
		},
		Logger:   logger,
		Observer: appMetrics,
	})
	if err != nil {
		return err
	}

	resolver := identity.NewResolver(identity.ResolverConfig{
		TrustedHeader:     appConfig.Identity.TrustedHeader,
		TrustForwardedFor: appConfig.Identity.TrustForwardedFor,
		CookieSecure:      appConfig.Identity.CookieSecure,
	})

	var generator assistant.Generator
	if appConfig.Assistant.APIKey != "" {
		client, err := assistant.NewOpenAICompatClient(assistant.Config{
			APIKey:  appConfig.Assistant.APIKey,
			BaseURL: appConfig.Assistant.BaseURL,
			Model:   appConfig.Assistant.Model,
			Timeout: appConfig.Assistant.Timeout,
		})
		if err != nil {
			return err
		}
		generator = client
	} else {
		logger.Warn("assistant api key not configured; ai replies disabled")
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		CardsService:   cardsService,
		Guard:          guard,
		Resolver:       resolver,
		Assistant:      generator,
		Metrics:        appMetrics,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.Database.Driver),
			zap.String("ratelimit_store", appConfig.RateLimit.Store))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newCounterStore(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (abuse.CounterStore, func(), error) {
	if appConfig.RateLimit.Store != config.RateLimitStoreRedis {
		return abuse.NewMemoryStore(nil), func() {}, nil
	}

	client, err := abuse.NewRedisClient(ctx, appConfig.Redis.Address, appConfig.Redis.Password, appConfig.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	store, err := abuse.NewRedisStore(abuse.RedisStoreConfig{Client: client})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logger.Info("rate limit counters shared through redis", zap.String("address", appConfig.Redis.Address))
	return store, func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}, nil
}
