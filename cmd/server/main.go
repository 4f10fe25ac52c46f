package main

import (
	"github.com/studyflow/toolchat/internal/chat"
	"github.com/studyflow/toolchat/internal/provider"
	"github.com/studyflow/toolchat/internal/server"
	"github.com/studyflow/toolchat/internal/storage"
	"github.com/studyflow/toolchat/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	if cfg.OpenRouter.APIKey == "" {
		logger.Warn("OPENROUTER_API_KEY is not set, chat turns will fail until it is configured")
	}

	// Wire the chat subsystem
	openRouter := provider.NewOpenRouter(cfg.OpenRouter.APIKey, cfg.OpenRouter.BaseURL)
	registry := chat.NewSessionRegistry(store)
	messageLog := chat.NewMessageLog(store)
	resolver := chat.NewToolConfigResolver(store, logger)
	bridge := chat.NewTransferBridge(registry, messageLog, logger)
	gateway := chat.NewGateway(registry, messageLog, resolver, openRouter, cfg.Chat.WindowSize, logger)

	// Start the HTTP server
	srv := server.New(gateway, registry, messageLog, resolver, bridge, logger)
	if err := srv.Start(cfg.Server.Address); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
