package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recsys/internal/config"
	"recsys/internal/handler"
	"recsys/internal/infrastructure/cache"
	"recsys/internal/infrastructure/database"
	"recsys/internal/infrastructure/mq"
	"recsys/internal/job"
	"recsys/internal/service"
	"recsys/pkg/idgen"
	"recsys/pkg/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Transaction numbers written by the API and the worker come from different
// snowflake nodes.
const nodeID = 1

var configFile string

var rootCmd = &cobra.Command{
	Use:   "recsys-server",
	Short: "Run the recommendation API, the outbox relay and the stale prediction sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return err
		}
		log.InitLog(cfg.Log.Level)

		db, err := database.InitMySQL(cmd.Context(), &cfg.MySQL)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		zap.S().Info("database schema is up to date")
		return nil
	},
}

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the item catalogue from a CSV file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return err
		}
		log.InitLog(cfg.Log.Level)

		f, err := os.Open(importFile)
		if err != nil {
			return err
		}
		defer f.Close()

		db, err := database.InitMySQL(cmd.Context(), &cfg.MySQL)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		n, err := service.NewItemService(db).ImportCSV(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("import %s: %w", importFile, err)
		}
		zap.S().Infof("imported %d items from %s", n, importFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVarP(&importFile, "file", "f", "data-generation.csv", "CSV file with a header row")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "Path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	logger := log.InitLog(cfg.Log.Level)
	defer func() { _ = logger.Sync() }()
	log := zap.S().Named("server")

	if err := idgen.Init(nodeID); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.InitMySQL(ctx, &cfg.MySQL)
	if err != nil {
		log.Fatalf("initializing database: %v", err)
	}

	redisClient, err := cache.InitRedis(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("initializing redis: %v", err)
	}
	defer redisClient.Close()

	producer, err := mq.NewProducer(ctx, &cfg.Kafka)
	if err != nil {
		log.Fatalf("initializing kafka producer: %v", err)
	}
	defer producer.Close()

	accounts := service.NewAccountService(db)
	predictions := service.NewPredictionService(db, redisClient, cfg, accounts)

	relay := job.NewOutboxRelay(db, producer, predictions, cfg)
	go relay.Start(ctx)

	sweeper := job.NewStalePredictionJob(db, predictions, cfg)
	go sweeper.Start(ctx)

	h := handler.NewHandler(accounts, service.NewItemService(db), predictions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.SetupRouter(h),
	}

	go func() {
		log.Infof("listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serving http: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http shutdown: %v", err)
	}

	log.Info("server stopped")
	return nil
}
