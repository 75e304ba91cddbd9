// Command paramfrontend runs the supplementary JSON-RPC/WebSocket/REST
// front-end: a standalone process with its own parameter engine instance,
// reading and writing the same database and
// backup files a sibling cmd/paramstored daemon uses, and receiving the
// same multicast change notifications — demonstrating the system's real
// multi-process deployment shape.
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

	"github.com/spf13/viper"

	"github.com/paramstore/paramstore/internal/api/middleware"
	"github.com/paramstore/paramstore/internal/cache"
	"github.com/paramstore/paramstore/internal/engine"
	"github.com/paramstore/paramstore/internal/frontend"
	"github.com/paramstore/paramstore/internal/realtime"
	"github.com/paramstore/paramstore/internal/schema"
	applog "github.com/paramstore/paramstore/pkg/logger"
)

type config struct {
	LogLevel   string `mapstructure:"log_level"`
	LogFormat  string `mapstructure:"log_format"`
	LogOutput  string `mapstructure:"log_output"`
	LogFile    string `mapstructure:"log_file"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	SchemaPath string `mapstructure:"schema_path"`
	DBPath     string `mapstructure:"db_path"`
	BackupPath string `mapstructure:"backup_path"`
	DataFolder string `mapstructure:"data_folder"`
	CacheAddr  string `mapstructure:"cache_addr"`
	APIKey     string `mapstructure:"api_key"`
}

// apiKeyUsers parses a single configured operator API key into the
// middleware's key->user map. An empty key leaves authentication
// disabled, matching a trusted single-tenant deployment.
func apiKeyUsers(key string) map[string]*middleware.User {
	if key == "" {
		return nil
	}
	return map[string]*middleware.User{
		key: {ID: "operator", Username: "operator", Role: middleware.RoleOperator, APIKey: key},
	}
}

func loadConfig() config {
	viper.SetEnvPrefix("PARAMSTORE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("log_output", "stdout")
	viper.SetDefault("host", "0.0.0.0")
	viper.SetDefault("port", 8090)
	viper.SetDefault("schema_path", os.Getenv("PARAMETERS_PROTO_PATH"))
	viper.SetDefault("db_path", "paramstore.db")
	viper.SetDefault("backup_path", "paramstore.backup.db")
	viper.SetDefault("data_folder", ".")
	viper.SetDefault("cache_addr", "")
	viper.SetDefault("api_key", "")

	var cfg config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("paramfrontend: config: %v", err))
	}
	return cfg
}

func main() {
	cfg := loadConfig()
	logger := applog.New(applog.Config{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		Output:   cfg.LogOutput,
		Filename: cfg.LogFile,
	})
	slog.SetDefault(logger)

	if cfg.SchemaPath == "" {
		logger.Error("paramfrontend: no schema path given (set PARAMSTORE_SCHEMA_PATH or PARAMETERS_PROTO_PATH)")
		os.Exit(1)
	}

	ctx := context.Background()
	src, err := os.ReadFile(cfg.SchemaPath)
	if err != nil {
		logger.Error("paramfrontend: reading schema", "path", cfg.SchemaPath, "error", err)
		os.Exit(1)
	}
	result, err := schema.Compile(ctx, cfg.SchemaPath, string(src))
	if err != nil {
		logger.Error("paramfrontend: compiling schema", "error", err)
		os.Exit(1)
	}
	for _, w := range result.Warnings {
		logger.Warn("paramfrontend: schema warning", "warning", w)
	}

	e, err := engine.New(ctx, engine.Config{
		Table:      result.Table,
		DBPath:     cfg.DBPath,
		BackupPath: cfg.BackupPath,
		DataFolder: cfg.DataFolder,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("paramfrontend: starting engine", "error", err)
		os.Exit(1)
	}
	defer e.Close()

	bus := realtime.NewEventBus(logger, nil)
	busCtx, busCancel := context.WithCancel(ctx)
	defer busCancel()
	if err := bus.Start(busCtx); err != nil {
		logger.Error("paramfrontend: starting event bus", "error", err)
		os.Exit(1)
	}
	publisher := realtime.NewEventPublisher(bus, logger, nil)

	fe := frontend.New(e, result.Table, publisher, logger)
	fe.SetAuth(apiKeyUsers(cfg.APIKey))
	if cfg.CacheAddr != "" {
		rc, err := cache.NewRedisCache(cache.Config{Addr: cfg.CacheAddr}, logger)
		if err != nil {
			logger.Warn("paramfrontend: cache unavailable, reads will always hit the engine", "error", err)
		} else {
			defer rc.Close()
			fe.SetCache(rc)
		}
	}
	fe.Start()
	defer fe.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{Addr: addr, Handler: fe.Router()}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("paramfrontend: listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("paramfrontend: server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("paramfrontend: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("paramfrontend: graceful shutdown failed", "error", err)
	}
}
