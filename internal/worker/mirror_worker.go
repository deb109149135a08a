// Package worker keeps the spreadsheet mirror in step with the record
// store: MirrorWorker applies AMQP events as they arrive and Reconciler
// periodically repairs whatever events were missed.
package worker

import (
	"context"
	"fmt"

	"pricememory/internal/amqp"
	"pricememory/internal/events"
	"pricememory/internal/log"
	"pricememory/internal/sheets"
)

// MirrorWorker applies purchase events to the mirror.
type MirrorWorker struct {
	mirror sheets.MirrorWriter
	logger *log.Logger
}

func NewMirrorWorker(mirror sheets.MirrorWriter, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &MirrorWorker{
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleMessage mirrors one event. Malformed messages are logged and
// dropped; mirror failures are returned so the delivery is retried.
func (w *MirrorWorker) HandleMessage(ctx context.Context, msg *amqp.PurchaseEventMessage) error {
	switch events.Type(msg.Type) {
	case events.PurchaseCreated:
		p, err := msg.Purchase()
		if err != nil {
			w.logger.WarnContext(ctx, "Dropping malformed created event",
				log.FieldPurchaseID, msg.ID,
				log.FieldError, err)
			return nil
		}
		ref, err := w.mirror.AppendPurchase(ctx, p)
		if err != nil {
			return fmt.Errorf("append %s to mirror: %w", p.ID, err)
		}
		w.logger.InfoContext(ctx, "Mirrored purchase",
			log.FieldPurchaseID, p.ID,
			log.FieldItemName, p.ItemName,
			log.FieldAmount, p.Amount.String(),
			log.FieldSheetsRef, ref)
		return nil

	case events.PurchaseDeleted:
		deleted, err := w.mirror.DeletePurchase(ctx, msg.ID)
		if err != nil {
			return fmt.Errorf("delete %s from mirror: %w", msg.ID, err)
		}
		w.logger.InfoContext(ctx, "Removed purchase from mirror",
			log.FieldPurchaseID, msg.ID,
			"found", deleted)
		return nil

	default:
		w.logger.WarnContext(ctx, "Ignoring unknown event type",
			log.FieldPurchaseID, msg.ID,
			log.FieldEventType, msg.Type)
		return nil
	}
}
