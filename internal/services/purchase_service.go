package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pricememory/internal/core"
	"pricememory/internal/events"
	"pricememory/internal/log"
	"pricememory/internal/storage"
)

// EventPublisher forwards committed mutations to an external transport.
type EventPublisher interface {
	PublishPurchaseEvent(ctx context.Context, evt events.Event) error
	Close() error
}

// PurchaseService is the record store as seen by the UI: it validates,
// persists, and notifies observers of every committed mutation.
type PurchaseService struct {
	repo      storage.PurchaseRepository
	broker    *events.Broker
	publisher EventPublisher
	logger    *log.Logger
}

// NewPurchaseService wires the store. broker and publisher may be nil.
func NewPurchaseService(repo storage.PurchaseRepository, broker *events.Broker, publisher EventPublisher, logger *log.Logger) *PurchaseService {
	if broker == nil {
		broker = events.NewBroker()
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &PurchaseService{
		repo:      repo,
		broker:    broker,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentPurchase),
	}
}

// NewID returns a fresh purchase identifier.
func NewID() string {
	return uuid.NewString()
}

func (s *PurchaseService) Broker() *events.Broker {
	return s.broker
}

// Add persists p and notifies observers before returning.
func (s *PurchaseService) Add(ctx context.Context, p core.Purchase) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if err := s.repo.Add(ctx, p); err != nil {
		return fmt.Errorf("save purchase: %w", err)
	}

	s.logger.InfoContext(ctx, "Purchase recorded",
		log.FieldPurchaseID, p.ID,
		log.FieldItemName, p.ItemName,
		log.FieldAmount, p.Amount.String(),
		log.FieldHasPhoto, p.InvoicePhoto != nil)

	s.notify(ctx, events.Event{Type: events.PurchaseCreated, PurchaseID: p.ID, Purchase: &p})
	return nil
}

// List returns all purchases, newest first. Storage failures are logged
// and produce an empty list.
func (s *PurchaseService) List(ctx context.Context) []core.Purchase {
	purchases, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read purchases",
			log.FieldOperation, log.OpList,
			log.FieldError, err)
		return []core.Purchase{}
	}
	return purchases
}

// Snapshot is List with storage errors surfaced. Every call reads the
// store, so a read issued after a mutation returns sees it.
func (s *PurchaseService) Snapshot(ctx context.Context) ([]core.Purchase, error) {
	purchases, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return purchases, nil
}

func (s *PurchaseService) Get(ctx context.Context, id string) (core.Purchase, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return core.Purchase{}, fmt.Errorf("get purchase: %w", err)
	}
	return p, nil
}

// Delete removes id. Deleting an unknown id succeeds without notifying.
func (s *PurchaseService) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete purchase: %w", err)
	}
	if !deleted {
		s.logger.DebugContext(ctx, "Delete of unknown purchase ignored", log.FieldPurchaseID, id)
		return nil
	}

	s.logger.InfoContext(ctx, "Purchase deleted", log.FieldPurchaseID, id)
	s.notify(ctx, events.Event{Type: events.PurchaseDeleted, PurchaseID: id})
	return nil
}

func (s *PurchaseService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Ready reports whether the store can serve reads.
func (s *PurchaseService) Ready(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}

func (s *PurchaseService) notify(ctx context.Context, evt events.Event) {
	evt.At = time.Now()
	s.broker.Publish(evt)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPurchaseEvent(ctx, evt); err != nil {
		// The record is committed locally; the mirror catches up later.
		s.logger.ErrorContext(ctx, "Failed to publish purchase event",
			log.FieldPurchaseID, evt.PurchaseID,
			log.FieldEventType, string(evt.Type),
			log.FieldError, err)
	}
}

// Close releases the store and the publisher.
func (s *PurchaseService) Close() error {
	var errs []error

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	s.broker.Close()

	if len(errs) > 0 {
		return fmt.Errorf("close purchase service: %w", errors.Join(errs...))
	}
	return nil
}
