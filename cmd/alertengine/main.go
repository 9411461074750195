package main

import (
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"alert-engine/internal/api"
	"alert-engine/internal/config"
	"alert-engine/internal/directory"
	"alert-engine/internal/engine"
	"alert-engine/internal/kafka"
	"alert-engine/internal/logging"
	"alert-engine/internal/models"
	"alert-engine/internal/resolver"
	"alert-engine/internal/store"
	"alert-engine/internal/transport"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Connect to database
	st, err := store.NewPostgres(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer st.Close()

	dir := directory.NewPostgres(st.Pool)
	res := resolver.New(dir, logger)

	// Channel adapters
	wsManager := transport.NewWebSocketManager(logger)
	senders := map[models.Channel]transport.Sender{
		models.ChannelSMS:      transport.NewSMS(cfg),
		models.ChannelEmail:    transport.NewEmail(cfg),
		models.ChannelWhatsApp: transport.NewWhatsApp(cfg),
		models.ChannelVoice:    transport.NewVoice(cfg),
		models.ChannelPush:     transport.NewPush(cfg, logger),
		models.ChannelInApp:    transport.NewInApp(wsManager),
	}

	// Start the engine
	eng := engine.New(st, res, senders, logger, cfg)
	var wg sync.WaitGroup
	eng.Start(&wg)

	// Start Kafka consumer
	consumer := kafka.NewConsumer(cfg, eng, logger)
	consumer.Start(&wg)

	// Start API server
	handler := api.NewHandler(eng, st, wsManager, logger)
	router := api.NewRouter(logger, cfg, handler)
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := router.Run(cfg.API.Port); err != nil {
			logger.Errorf("API server failed: %v", err)
		}
	}()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Infof("Shutting down...")
	consumer.Close()
	eng.Stop()
	wg.Wait()
	logger.Infof("Service stopped")
}
