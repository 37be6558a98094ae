package main

import (
	"MedicChat/pkg/cache"
	"MedicChat/pkg/config"
	"MedicChat/pkg/database"
	"MedicChat/pkg/logger"
	"MedicChat/pkg/relay"
	svc "MedicChat/pkg/services"
	"MedicChat/pkg/store"
	"MedicChat/routes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medicchat",
		Short: "Admin/customer message log and realtime relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the REST gateway and websocket relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the messages table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer closeDB(db, log)
			if err := store.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Str("driver", cfg.DBDriver).Msg("migration complete")
			return nil
		},
	}
}

func bootstrap() (*config.Config, zerolog.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("app_env", cfg.AppEnv).
		Str("db_driver", cfg.DBDriver).
		Bool("auth", cfg.AuthEnabled()).
		Int("rate_limit_capacity", cfg.RateLimitCapacity).
		Int("rate_limit_window_s", cfg.RateLimitWindowSeconds).
		Int("cache_ttl_s", cfg.ChatCacheTTLSeconds).
		Int("cache_max", cfg.ChatCacheMaxItems).
		Msg("config loaded")

	db, err := database.Open(database.Options{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
		Log:          log,
	})
	if err != nil {
		return nil, log, nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return cfg, log, db, nil
}

func runServer() error {
	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeDB(db, log)

	if err := store.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed migrate: %w", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var storeOpts []store.Option
	if cfg.HistoryCacheEnabled() {
		historyCache := cache.New(cfg.ChatCacheMaxItems, time.Minute)
		defer historyCache.Close()
		storeOpts = append(storeOpts, store.WithCache(historyCache, cfg.ChatCacheTTL()))
		log.Info().Dur("ttl", cfg.ChatCacheTTL()).Msg("history cache enabled; run a single instance per database")
	}
	st := store.New(db, storeOpts...)
	hub := relay.NewHub(log, relay.Options{
		SendBuffer:  cfg.WSSendBuffer,
		PingPeriod:  cfg.WSPingPeriod(),
		ReadTimeout: cfg.WSReadTimeout(),
	})
	chat := svc.NewChatService(st, hub, log)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: routes.NewEngine(routes.Deps{
			Chat:      chat,
			Customers: store.NewCustomerStore(db),
			Hub:       hub,
			DB:        st,
			Config:    cfg,
			Log:       log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err, ok := <-errCh:
		if ok && err != nil {
			hub.Close()
			return fmt.Errorf("listen: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// hijacked websocket connections are not covered by Shutdown
	hub.Close()
	return nil
}

func closeDB(db *gorm.DB, log zerolog.Logger) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}
}
