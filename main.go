package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"mlserve/db"
	mhttp "mlserve/http"
	"mlserve/logger"
	"mlserve/ml"
	"mlserve/monitoring"
)

type Config struct {
	Model struct {
		Dir string `yaml:"dir"`
	} `yaml:"model"`
	Http struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log logger.Config `yaml:"log"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(config.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	// 2. Initialize database (optional bookkeeping store)
	if config.Database.Path != "" {
		if err := db.InitDB(config.Database.Path); err != nil {
			zlog.Fatal("failed to initialize database", zap.Error(err))
		}
		defer db.Close()
		zlog.Info("database initialized", zap.String("path", config.Database.Path))
	}

	// 3. Load the model artifact. A missing or mismatched artifact is the
	// one failure allowed to stop the process before it accepts traffic.
	artifact, err := ml.LoadArtifact(config.Model.Dir)
	if err != nil {
		zlog.Fatal("failed to load model artifact", zap.String("dir", config.Model.Dir), zap.Error(err))
	}
	zlog.Info("model loaded",
		zap.String("model_type", artifact.ModelType),
		zap.Strings("feature_names", artifact.Meta.FeatureNames),
		zap.Strings("target_names", artifact.Meta.TargetNames))

	metrics := monitoring.NewMetrics()
	metrics.SetModelLoaded(true)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := monitoring.NewHub(zlog)
	go hub.Run(hubCtx)

	// 4. Start HTTP server
	serverConfig := mhttp.DefaultServerConfig()
	if config.Http.Port > 0 {
		serverConfig.Port = config.Http.Port
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			serverConfig.Port = p
		}
	}
	if len(config.Http.AllowedOrigins) > 0 {
		serverConfig.AllowedOrigins = config.Http.AllowedOrigins
	}

	handlers := mhttp.NewHandlers(artifact, zlog, metrics, hub)
	server := mhttp.NewServer(serverConfig, handlers, zlog)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down")

	if err := server.Stop(); err != nil {
		zlog.Warn("server forced to shutdown", zap.Error(err))
	}
	stopHub()
	zlog.Info("exiting")
}

func loadConfig(path string) (*Config, error) {
	var config Config
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file: run on defaults.
			config.Model.Dir = "./model"
			return &config, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	if config.Model.Dir == "" {
		config.Model.Dir = "./model"
	}
	return &config, nil
}
