package storage

import (
	"context"
	"errors"

	"pricememory/internal/core"
)

var (
	ErrDuplicateID = errors.New("purchase id already exists")
	ErrNotFound    = errors.New("purchase not found")
)

// PurchaseRepository is the record store contract shared by the SQLite
// and in-memory backends.
type PurchaseRepository interface {
	// Add persists p, failing with ErrDuplicateID if p.ID is taken.
	Add(ctx context.Context, p core.Purchase) error
	// List returns every purchase, newest PurchasedAt first.
	List(ctx context.Context) ([]core.Purchase, error)
	Get(ctx context.Context, id string) (core.Purchase, error)
	// Delete removes the purchase and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
