// Command paramstored is the parameter store's primary daemon: it compiles
// the deployment's schema, opens the durable store, starts the parameter
// engine's periodic updater (component G) and exposes Prometheus metrics.
// A sibling cmd/paramfrontend process can be run alongside it against the
// same database/backup files to serve the JSON-RPC/WebSocket/REST
// surface, matching the system's real multi-process shape.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/paramstore/paramstore/internal/engine"
	"github.com/paramstore/paramstore/internal/schema"
	"github.com/paramstore/paramstore/pkg/logger"
	"github.com/paramstore/paramstore/pkg/metrics"
)

type config struct {
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
	LogOutput    string        `mapstructure:"log_output"`
	LogFile      string        `mapstructure:"log_file"`
	MetricsHost  string        `mapstructure:"metrics_host"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	SchemaPath   string        `mapstructure:"schema_path"`
	DBPath       string        `mapstructure:"db_path"`
	BackupPath   string        `mapstructure:"backup_path"`
	DataFolder   string        `mapstructure:"data_folder"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

func loadConfig() config {
	viper.SetEnvPrefix("PARAMSTORE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("log_output", "stdout")
	viper.SetDefault("metrics_host", "0.0.0.0")
	viper.SetDefault("metrics_port", 9090)
	viper.SetDefault("schema_path", os.Getenv("PARAMETERS_PROTO_PATH"))
	viper.SetDefault("db_path", "paramstore.db")
	viper.SetDefault("backup_path", "paramstore.backup.db")
	viper.SetDefault("data_folder", ".")
	viper.SetDefault("poll_interval", "30s")

	var cfg config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("paramstored: config: %v", err))
	}
	return cfg
}

func main() {
	cfg := loadConfig()
	log := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		Output:   cfg.LogOutput,
		Filename: cfg.LogFile,
	})
	slog.SetDefault(log)

	if cfg.SchemaPath == "" {
		log.Error("paramstored: no schema path given (set PARAMSTORE_SCHEMA_PATH or PARAMETERS_PROTO_PATH)")
		os.Exit(1)
	}

	ctx := context.Background()
	src, err := os.ReadFile(cfg.SchemaPath)
	if err != nil {
		log.Error("paramstored: reading schema", "path", cfg.SchemaPath, "error", err)
		os.Exit(1)
	}
	result, err := schema.Compile(ctx, cfg.SchemaPath, string(src))
	if err != nil {
		log.Error("paramstored: compiling schema", "error", err)
		os.Exit(1)
	}
	for _, w := range result.Warnings {
		log.Warn("paramstored: schema warning", "warning", w)
	}

	engineMetrics := engine.NewMetrics(prometheus.DefaultRegisterer)

	e, err := engine.New(ctx, engine.Config{
		Table:        result.Table,
		DBPath:       cfg.DBPath,
		BackupPath:   cfg.BackupPath,
		DataFolder:   cfg.DataFolder,
		Logger:       log,
		PollInterval: cfg.PollInterval,
		Metrics:      engineMetrics,
	})
	if err != nil {
		log.Error("paramstored: starting engine", "error", err)
		os.Exit(1)
	}
	defer e.Close()

	metricsConfig := metrics.DefaultEndpointConfig()
	metricsHandler, err := metrics.NewMetricsEndpointHandler(metricsConfig)
	if err != nil {
		log.Error("paramstored: building metrics endpoint", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsConfig.Path, metricsHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort)
	server := &http.Server{Addr: addr, Handler: mux}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("paramstored: listening", "addr", addr, "parameters", result.Table.Len())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("paramstored: server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	log.Info("paramstored: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("paramstored: graceful shutdown failed", "error", err)
	}
}
