package backend

import (
	"context"
	"fmt"

	"pricememory/internal/amqp"
	"pricememory/internal/events"
	"pricememory/internal/log"
	"pricememory/internal/services"
	"pricememory/internal/storage"
	"pricememory/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	broker *events.Broker
}

// NewFactory creates a backend factory. Services it builds publish to
// broker, which may be nil.
func NewFactory(logger *log.Logger, broker *events.Broker) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if broker == nil {
		broker = events.NewBroker()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
		broker: broker,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var repo storage.PurchaseRepository
	switch config.Type {
	case SQLiteBackend:
		sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		repo = sqliteRepo
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		repo = memory.New()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	// Assign only a non-nil client so the service never sees a typed nil.
	var publisher services.EventPublisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without mirror events", log.FieldError, err)
		} else {
			publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	svc := services.NewPurchaseService(repo, f.broker, publisher, f.logger)
	entry := services.NewEntry(svc, config.MaxPhotoBytes, f.logger)

	f.logger.InfoContext(ctx, "Backend ready",
		"type", config.Type.String(),
		"events_enabled", publisher != nil)

	return &BackendResult{
		Repository: repo,
		Purchases:  svc,
		Entry:      entry,
		Cleanup:    svc.Close,
	}, nil
}
