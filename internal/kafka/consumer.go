package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"alert-engine/internal/config"
	"alert-engine/internal/engine"
	"alert-engine/internal/logging"
	"alert-engine/internal/models"
)

// Consumer reads alert-create events published by the authoring surface and
// feeds them into the engine's create path.
type Consumer struct {
	reader *kafka.Reader
	engine *engine.Engine
	logger *logging.Logger
}

// NewConsumer builds a reader for the configured topic and group.
func NewConsumer(cfg config.Config, eng *engine.Engine, logger *logging.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Kafka.Broker},
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, engine: eng, logger: logger}
}

// Start consumes messages until the reader is closed. Invalid events are
// logged and skipped; they never crash the loop.
func (c *Consumer) Start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started")
		for {
			msg, err := c.reader.ReadMessage(context.Background())
			if err != nil {
				c.logger.Errorf("Read message failed: %v", err)
				return
			}

			var payload models.AlertCreate
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				c.logger.Errorf("Unmarshal alert event failed: %v", err)
				continue
			}

			alert, err := c.engine.CreateAlert(context.Background(), payload)
			if err != nil {
				c.logger.Errorf("Rejected alert event: %v", err)
				continue
			}
			c.logger.Infof("Created alert %s from Kafka event", alert.ID)
		}
	}()
}

// Close stops the underlying reader.
func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Errorf("Kafka reader close failed: %v", err)
	}
}
