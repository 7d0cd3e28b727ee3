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
	"recsys/internal/infrastructure/database"
	"recsys/internal/infrastructure/mq"
	"recsys/internal/recommend"
	"recsys/internal/repository"
	"recsys/internal/service"
	"recsys/internal/worker"
	"recsys/pkg/idgen"
	"recsys/pkg/log"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const nodeID = 2

var configFile string

var rootCmd = &cobra.Command{
	Use:   "recsys-worker",
	Short: "Consume prediction tasks and store their similar items",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
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
	log := zap.S().Named("worker")

	if err := idgen.Init(nodeID); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.InitMySQL(ctx, &cfg.MySQL)
	if err != nil {
		log.Fatalf("initializing database: %v", err)
	}

	group, err := mq.NewConsumerGroup(ctx, &cfg.Kafka)
	if err != nil {
		log.Fatalf("initializing kafka consumer: %v", err)
	}
	defer group.Close()

	engine := recommend.NewCatalogEngine(cfg.Worker.ModelPath, repository.NewItemRepository(db), cfg.Business.SimilarItems)
	predictions := service.NewPredictionService(db, nil, cfg, service.NewAccountService(db))
	processor := worker.NewProcessor(db, engine, predictions, cfg)
	consumer := worker.NewConsumer(group, cfg.Kafka.Topic.Tasks, processor, cfg.Worker.RestartDelay)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler: mux,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("serving metrics: %v", err)
		}
	}()

	log.Infof("consuming topic %s as group %s", cfg.Kafka.Topic.Tasks, cfg.Kafka.ConsumerGroup)
	if err := consumer.Run(ctx); err != nil {
		log.Errorf("consumer stopped: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	log.Info("worker stopped")
	return nil
}
